package sources

import (
	"context"
	"fmt"
	"strings"

	"timesheet-reconciliation-service/internal/models"
	"timesheet-reconciliation-service/pkg/errors"
)

// Rate sheet layout
const (
	SheetExchangeRates = "ExchangeRates"
	ColumnCurrency     = "Currency"
	ColumnRate         = "Rate"
	ColumnRateDate     = "Date"
)

// RateSheetReader reads the FX table: one row per currency with its rate
// against the base currency and an optional as-of date
type RateSheetReader struct {
	reader *ExportReader
}

// NewRateSheetReader creates a reader for workbooks (sheet ExchangeRates)
// and CSV files with the same columns
func NewRateSheetReader() *RateSheetReader {
	config := DefaultReaderConfig()
	config.Sheet = SheetExchangeRates
	config.RequiredColumns = []string{ColumnCurrency, ColumnRate}
	config.NumericColumns = []string{ColumnRate}
	config.DateColumns = []string{ColumnRateDate}
	return &RateSheetReader{reader: NewExportReader(config)}
}

// ReadRates reads every rate row. Rows without a currency are ignored; a
// row with a currency but no rate is an error.
func (rr *RateSheetReader) ReadRates(ctx context.Context, path string) ([]models.RateEntry, error) {
	records, _, err := rr.reader.ReadFile(ctx, path)
	if err != nil {
		return nil, err
	}

	entries := make([]models.RateEntry, 0, len(records))
	for _, r := range records {
		code, ok := r.Lookup(ColumnCurrency)
		if !ok || code.IsNull() {
			continue
		}

		rate, ok := r.Lookup(ColumnRate)
		amount, isNumber := rate.Number()
		if !ok || !isNumber {
			return nil, errors.ParseError(errors.CodeInvalidData, path, 0, ColumnRate, "",
				fmt.Errorf("no rate for %s", code.String())).
				WithContext("origin", r.Origin)
		}

		entry := models.RateEntry{
			Currency:   strings.ToUpper(strings.TrimSpace(code.String())),
			RateToBase: amount,
		}
		if d, ok := r.Lookup(ColumnRateDate); ok {
			if date, isDate := d.Date(); isDate {
				entry.AsOf = date
			}
		}
		entries = append(entries, entry)
	}

	return entries, nil
}
