package cmd

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"timesheet-reconciliation-service/internal/sources"
	"timesheet-reconciliation-service/pkg/errors"
)

func TestPrintRates(t *testing.T) {
	dir := writeInputs(t)
	entries, err := sources.NewRateSheetReader().ReadRates(context.Background(), filepath.Join(dir, "fx.csv"))
	if err != nil {
		t.Fatalf("failed to read rates: %v", err)
	}

	tests := []struct {
		name     string
		asOf     string
		from     string
		to       string
		amount   string
		expected string
	}{
		{"rate to base", "", "USD", "", "", "1 USD = 18.5 ZAR\n"},
		{"lower case codes", "", "eur", "zar", "", "1 EUR = 20 ZAR\n"},
		{"as of older date", "2024-01-01", "USD", "ZAR", "", "1 USD = 17 ZAR\n"},
		{"amount", "", "USD", "ZAR", "1,000", "1000 USD = 18500.00 ZAR\n"},
		{"cross rate", "", "EUR", "USD", "37", "37 EUR = 40.00 USD\n"},
		{"list all", "", "", "", "", "1 ZAR = 1 ZAR\n1 EUR = 20 ZAR\n1 USD = 18.5 ZAR\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			normalizer, err := buildNormalizer(entries, "ZAR", tt.asOf)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			var out bytes.Buffer
			if err := printRates(&out, normalizer, tt.from, tt.to, tt.amount); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if out.String() != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, out.String())
			}
		})
	}
}

func TestPrintRatesErrors(t *testing.T) {
	dir := writeInputs(t)
	entries, err := sources.NewRateSheetReader().ReadRates(context.Background(), filepath.Join(dir, "fx.csv"))
	if err != nil {
		t.Fatalf("failed to read rates: %v", err)
	}

	normalizer, err := buildNormalizer(entries, "ZAR", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var out bytes.Buffer
	if err := printRates(&out, normalizer, "GBP", "", ""); !errors.HasCode(err, errors.CodeRateNotFound) {
		t.Errorf("expected rate_not_found, got %v", err)
	}
	if err := printRates(&out, normalizer, "USD", "", "lots"); !errors.HasCode(err, errors.CodeInvalidAmount) {
		t.Errorf("expected invalid_amount, got %v", err)
	}

	if _, err := buildNormalizer(entries, "ZAR", "yesterday"); err == nil || !strings.Contains(err.Error(), "as-of") {
		t.Errorf("expected as-of error, got %v", err)
	}
}
