package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultBaseCurrency is the reference currency of the exchange rate sheet
const DefaultBaseCurrency = "ZAR"

// RateEntry is one row of the rate table. RateToBase is expressed as units of
// the base currency per one unit of Currency.
type RateEntry struct {
	Currency   string          `json:"currency"`
	RateToBase decimal.Decimal `json:"rate_to_base"`
	AsOf       time.Time       `json:"as_of"`
}

// Validate performs basic validation on the entry
func (e RateEntry) Validate() error {
	if e.Currency == "" {
		return fmt.Errorf("rate entry has no currency")
	}
	if !e.RateToBase.IsPositive() {
		return fmt.Errorf("rate for %s must be positive, got %s", e.Currency, e.RateToBase)
	}
	return nil
}

// String returns a string representation of the entry
func (e RateEntry) String() string {
	if e.AsOf.IsZero() {
		return fmt.Sprintf("RateEntry{%s: %s}", e.Currency, e.RateToBase)
	}
	return fmt.Sprintf("RateEntry{%s: %s as of %s}", e.Currency, e.RateToBase, e.AsOf.Format(DateLayout))
}
