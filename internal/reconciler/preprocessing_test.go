package reconciler

import (
	"testing"

	"github.com/shopspring/decimal"

	"timesheet-reconciliation-service/internal/currency"
	"timesheet-reconciliation-service/internal/models"
	"timesheet-reconciliation-service/pkg/errors"
	"timesheet-reconciliation-service/pkg/logger"
)

func newTestConverter(t *testing.T, config *ConversionConfig) *CurrencyConverter {
	t.Helper()
	table, err := currency.NewTable("ZAR", testRates())
	if err != nil {
		t.Fatalf("NewTable() error = %v", err)
	}
	return NewCurrencyConverter(config, currency.NewNormalizer(table).WithLogger(logger.Discard())).
		WithLogger(logger.Discard())
}

func planningRecord(origin string, cost models.Value, code string) *models.Record {
	r := models.NewRecord(origin)
	r.Set("employee", models.StringValue("J.Doe"))
	r.Set("cost", cost)
	if code != "" {
		r.Set("currency", models.StringValue(code))
	}
	return r
}

func TestConversionConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  ConversionConfig
		wantErr bool
	}{
		{"currency field", ConversionConfig{AmountField: "cost", CurrencyField: "currency"}, false},
		{"fixed currency", ConversionConfig{AmountField: "cost", Currency: "USD"}, false},
		{"no amount field", ConversionConfig{CurrencyField: "currency"}, true},
		{"no currency", ConversionConfig{AmountField: "cost"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.config.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestCurrencyConverterApply(t *testing.T) {
	tests := []struct {
		name     string
		record   *models.Record
		expected string
		code     errors.ErrorCode
		empty    bool
	}{
		{"number in USD", planningRecord("p:1", models.NumberValue(decimal.NewFromInt(10)), "USD"), "185", "", false},
		{"text amount with separator", planningRecord("p:2", models.StringValue("1,000.50"), "EUR"), "20010", "", false},
		{"base currency", planningRecord("p:3", models.StringValue("42.125"), "ZAR"), "42.13", "", false},
		{"lower case code", planningRecord("p:4", models.StringValue("1"), "usd"), "18.5", "", false},
		{"null amount", planningRecord("p:5", models.Null(), "USD"), "", "", true},
		{"bad amount", planningRecord("p:6", models.StringValue("n/a"), "USD"), "", errors.CodeInvalidAmount, false},
		{"unknown currency", planningRecord("p:7", models.StringValue("5"), "GBP"), "", errors.CodeRateNotFound, false},
		{"missing currency", planningRecord("p:8", models.StringValue("5"), ""), "", errors.CodeMissingField, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			converter := newTestConverter(t, DefaultConversionConfig())
			out, issues := converter.Apply([]*models.Record{tt.record})

			if _, ok := tt.record.Lookup("cost_ZAR"); ok {
				t.Fatal("Apply must not modify its input")
			}

			value, ok := out[0].Lookup("cost_ZAR")
			if !ok {
				t.Fatal("Expected cost_ZAR column on every output record")
			}

			if tt.code != "" {
				if len(issues) != 1 || !errors.HasCode(issues[0].Reason, tt.code) {
					t.Fatalf("Expected one %s issue, got %v", tt.code, issues)
				}
				if !value.IsNull() {
					t.Errorf("Expected null column on failure, got %s", value)
				}
				return
			}

			if len(issues) != 0 {
				t.Fatalf("Expected no issues, got %v", issues[0].Reason)
			}
			if tt.empty {
				if !value.IsNull() {
					t.Errorf("Expected null column for empty amount, got %s", value)
				}
				return
			}

			got, _ := value.Number()
			if !got.Equal(decimal.RequireFromString(tt.expected)) {
				t.Errorf("Expected %s, got %s", tt.expected, got)
			}
		})
	}
}

func TestCurrencyConverterFixedCurrency(t *testing.T) {
	converter := newTestConverter(t, &ConversionConfig{AmountField: "cost", Currency: "EUR", Places: -1})

	records := []*models.Record{
		planningRecord("p:1", models.StringValue("0.333"), ""),
		planningRecord("p:2", models.StringValue("2"), "USD"),
	}
	out, issues := converter.Apply(records)
	if len(issues) != 0 {
		t.Fatalf("Expected no issues, got %d", len(issues))
	}

	first := out[0].Get("cost_ZAR")
	if first != "6.66" {
		t.Errorf("Expected unrounded 6.66, got %s", first)
	}
	if out[1].Get("cost_ZAR") != "40" {
		t.Errorf("Fixed currency must apply without a currency field, got %s", out[1].Get("cost_ZAR"))
	}

	stats := converter.GetStatistics()
	if stats.Total != 2 || stats.Converted != 2 {
		t.Errorf("Unexpected statistics %+v", stats)
	}
	if converter.Column() != "cost_ZAR" {
		t.Errorf("Expected cost_ZAR, got %s", converter.Column())
	}
}
