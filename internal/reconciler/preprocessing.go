package reconciler

import (
	"fmt"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"timesheet-reconciliation-service/internal/currency"
	"timesheet-reconciliation-service/internal/models"
	"timesheet-reconciliation-service/pkg/errors"
	"timesheet-reconciliation-service/pkg/logger"
)

// ConversionConfig names the Planning fields holding an amount and its
// currency. Currency is used for every record when CurrencyField is empty.
type ConversionConfig struct {
	AmountField   string `json:"amount_field" mapstructure:"amount_field"`
	CurrencyField string `json:"currency_field" mapstructure:"currency_field"`
	Currency      string `json:"currency" mapstructure:"currency"`

	// Places rounds converted amounts; negative keeps full precision
	Places int32 `json:"places" mapstructure:"places"`
}

// DefaultConversionConfig converts the planning cost column
func DefaultConversionConfig() *ConversionConfig {
	return &ConversionConfig{
		AmountField:   "cost",
		CurrencyField: "currency",
		Places:        2,
	}
}

// Validate validates the conversion configuration
func (c *ConversionConfig) Validate() error {
	if strings.TrimSpace(c.AmountField) == "" {
		return fmt.Errorf("amount field cannot be empty")
	}
	if strings.TrimSpace(c.CurrencyField) == "" && strings.TrimSpace(c.Currency) == "" {
		return fmt.Errorf("either a currency field or a fixed currency is required")
	}
	return nil
}

// ConversionIssue is a record whose amount could not be converted. The
// record keeps a null in the converted column.
type ConversionIssue struct {
	Origin string `json:"origin"`
	Reason error  `json:"-"`
}

// ConversionStats tracks what the converter did
type ConversionStats struct {
	Total     int `json:"total"`
	Converted int `json:"converted"`
	Empty     int `json:"empty"`
	Failed    int `json:"failed"`
}

// CurrencyConverter adds a base currency amount column to records
type CurrencyConverter struct {
	config     *ConversionConfig
	normalizer *currency.Normalizer
	log        logger.Logger

	stats ConversionStats
	mu    sync.Mutex
}

// NewCurrencyConverter creates a converter over normalizer
func NewCurrencyConverter(config *ConversionConfig, normalizer *currency.Normalizer) *CurrencyConverter {
	if config == nil {
		config = DefaultConversionConfig()
	}
	return &CurrencyConverter{
		config:     config,
		normalizer: normalizer,
		log:        logger.GetGlobalLogger().WithComponent("currency_converter"),
	}
}

// WithLogger replaces the converter logger
func (cc *CurrencyConverter) WithLogger(l logger.Logger) *CurrencyConverter {
	if l != nil {
		cc.log = l.WithComponent("currency_converter")
	}
	return cc
}

// Column returns the name of the column Apply adds, e.g. "cost_ZAR"
func (cc *CurrencyConverter) Column() string {
	return cc.config.AmountField + "_" + cc.normalizer.Base()
}

// Apply returns copies of records carrying the converted column. Input
// records are left untouched and the output keeps their order.
func (cc *CurrencyConverter) Apply(records []*models.Record) ([]*models.Record, []*ConversionIssue) {
	cc.mu.Lock()
	defer cc.mu.Unlock()

	column := cc.Column()
	out := make([]*models.Record, len(records))
	var issues []*ConversionIssue

	for i, r := range records {
		cc.stats.Total++
		converted := r.Clone()
		out[i] = converted

		amount, ok, err := cc.convertRecord(r)
		switch {
		case err != nil:
			cc.stats.Failed++
			converted.Set(column, models.Null())
			issues = append(issues, &ConversionIssue{Origin: r.Origin, Reason: err})
			cc.log.WithField("origin", r.Origin).WithError(err).Warn("amount not converted")
		case !ok:
			cc.stats.Empty++
			converted.Set(column, models.Null())
		default:
			cc.stats.Converted++
			converted.Set(column, models.NumberValue(amount))
		}
	}

	return out, issues
}

// convertRecord returns the converted amount, or false when the record has
// no amount to convert
func (cc *CurrencyConverter) convertRecord(r *models.Record) (decimal.Decimal, bool, error) {
	value, ok := r.Lookup(cc.config.AmountField)
	if !ok || value.IsNull() {
		return decimal.Zero, false, nil
	}

	amount, err := cc.amount(value)
	if err != nil {
		return decimal.Zero, false, errors.ValidationError(errors.CodeInvalidAmount, cc.config.AmountField, value.String(), err)
	}

	code, err := cc.currencyOf(r)
	if err != nil {
		return decimal.Zero, false, err
	}

	converted, err := cc.normalizer.Convert(amount, code, cc.normalizer.Base())
	if err != nil {
		return decimal.Zero, false, err
	}

	if cc.config.Places >= 0 {
		converted = converted.Round(cc.config.Places)
	}
	return converted, true, nil
}

func (cc *CurrencyConverter) amount(v models.Value) (decimal.Decimal, error) {
	if d, ok := v.Number(); ok {
		return d, nil
	}
	text := strings.ReplaceAll(strings.TrimSpace(v.String()), ",", "")
	return decimal.NewFromString(text)
}

func (cc *CurrencyConverter) currencyOf(r *models.Record) (string, error) {
	if cc.config.CurrencyField == "" {
		return strings.ToUpper(cc.config.Currency), nil
	}

	value, ok := r.Lookup(cc.config.CurrencyField)
	if ok && !value.IsNull() && strings.TrimSpace(value.String()) != "" {
		return strings.ToUpper(strings.TrimSpace(value.String())), nil
	}
	if cc.config.Currency != "" {
		return strings.ToUpper(cc.config.Currency), nil
	}
	return "", errors.MissingFieldError(string(models.SystemPlanning), cc.config.CurrencyField)
}

// GetStatistics returns the conversion statistics
func (cc *CurrencyConverter) GetStatistics() ConversionStats {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.stats
}
