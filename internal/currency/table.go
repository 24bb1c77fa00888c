// Package currency converts monetary values between currencies using a rate
// table expressed against a single base currency.
package currency

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	xcurrency "golang.org/x/text/currency"

	"timesheet-reconciliation-service/internal/models"
	"timesheet-reconciliation-service/pkg/errors"
)

// Table holds one rate per currency, each in units of the base currency
// per unit of that currency. It is immutable once built.
type Table struct {
	base    string
	entries map[string]models.RateEntry
	all     []models.RateEntry
}

// NewTable validates entries and keeps, for every currency, the entry with
// the latest AsOf. Entries without a date lose to dated ones; among equal
// dates the later entry wins.
func NewTable(base string, entries []models.RateEntry) (*Table, error) {
	if base == "" {
		base = models.DefaultBaseCurrency
	}
	if err := checkCode(base); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "base_currency", base, err)
	}

	t := &Table{
		base:    base,
		entries: make(map[string]models.RateEntry),
		all:     append([]models.RateEntry(nil), entries...),
	}

	collector := errors.NewRuleErrorCollector(0)
	for i, e := range entries {
		if err := e.Validate(); err != nil {
			collector.Add(errors.ValidationError(errors.CodeInvalidAmount, "rate", e.RateToBase.String(), err).
				WithContext("entry", i+1))
			continue
		}
		if err := checkCode(e.Currency); err != nil {
			collector.Add(errors.ConfigurationError(errors.CodeInvalidConfig, "currency", e.Currency, err).
				WithContext("entry", i+1))
			continue
		}

		if current, ok := t.entries[e.Currency]; ok && e.AsOf.Before(current.AsOf) {
			continue
		}
		t.entries[e.Currency] = e
	}

	if err := collector.Err("rate table"); err != nil {
		return nil, err
	}
	return t, nil
}

func checkCode(code string) error {
	if len(code) != 3 {
		return fmt.Errorf("currency code %q is not three letters", code)
	}
	if _, err := xcurrency.ParseISO(code); err != nil {
		return fmt.Errorf("unknown currency code %q: %w", code, err)
	}
	return nil
}

// Base returns the base currency
func (t *Table) Base() string {
	return t.base
}

// Lookup returns the direct rate of code against the base
func (t *Table) Lookup(code string) (decimal.Decimal, bool) {
	e, ok := t.entries[code]
	if !ok {
		return decimal.Zero, false
	}
	return e.RateToBase, true
}

// Entry returns the entry in effect for code
func (t *Table) Entry(code string) (models.RateEntry, bool) {
	e, ok := t.entries[code]
	return e, ok
}

// Currencies returns the table currencies in alphabetical order
func (t *Table) Currencies() []string {
	codes := make([]string, 0, len(t.entries))
	for code := range t.entries {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// Len returns the number of currencies with a rate
func (t *Table) Len() int {
	return len(t.entries)
}

// AsOf returns a table built only from entries dated on or before date.
// Undated entries are always kept.
func (t *Table) AsOf(date time.Time) (*Table, error) {
	var kept []models.RateEntry
	for _, e := range t.all {
		if e.AsOf.IsZero() || !e.AsOf.After(date) {
			kept = append(kept, e)
		}
	}
	return NewTable(t.base, kept)
}
