package currency

import (
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"timesheet-reconciliation-service/internal/models"
	"timesheet-reconciliation-service/pkg/errors"
	"timesheet-reconciliation-service/pkg/logger"
)

func entry(code, rate string) models.RateEntry {
	return models.RateEntry{Currency: code, RateToBase: decimal.RequireFromString(rate)}
}

func createTestNormalizer(t *testing.T) *Normalizer {
	t.Helper()
	table, err := NewTable("ZAR", []models.RateEntry{entry("USD", "18.5"), entry("GBP", "23.2")})
	if err != nil {
		t.Fatalf("NewTable() error = %v", err)
	}
	return NewNormalizer(table).WithLogger(logger.Discard())
}

func TestRateScenarioB(t *testing.T) {
	n := createTestNormalizer(t)

	tests := []struct {
		name     string
		from, to string
		places   int32
		expected string
	}{
		{"cross", "USD", "GBP", 4, "0.7974"},
		{"from base", "ZAR", "USD", 5, "0.05405"},
		{"to base", "USD", "ZAR", 2, "18.5"},
		{"identity", "GBP", "GBP", 0, "1"},
		{"identity outside the table", "JPY", "JPY", 0, "1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := n.Rate(tt.from, tt.to)
			if err != nil {
				t.Fatalf("Rate() error = %v", err)
			}
			if !got.Round(tt.places).Equal(decimal.RequireFromString(tt.expected)) {
				t.Errorf("Expected %s, got %s", tt.expected, got)
			}
		})
	}
}

func TestRateNotFound(t *testing.T) {
	n := createTestNormalizer(t)

	tests := []struct {
		name     string
		from, to string
	}{
		{"direct", "EUR", "ZAR"},
		{"inverse", "ZAR", "EUR"},
		{"cross, first leg", "EUR", "USD"},
		{"cross, second leg", "USD", "EUR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := n.Rate(tt.from, tt.to)
			if !errors.HasCode(err, errors.CodeRateNotFound) {
				t.Errorf("Expected rate_not_found, got %v", err)
			}
		})
	}
}

func TestRateCache(t *testing.T) {
	n := createTestNormalizer(t)

	if _, err := n.Rate("USD", "USD"); err != nil {
		t.Fatal(err)
	}
	if n.CacheSize() != 0 {
		t.Errorf("Identity must not be cached, cache size %d", n.CacheSize())
	}

	if _, err := n.Rate("USD", "GBP"); err != nil {
		t.Fatal(err)
	}
	// USD->GBP plus both legs
	if n.CacheSize() != 3 {
		t.Errorf("Expected 3 cached pairs, got %d", n.CacheSize())
	}

	n.ClearCache()
	if n.CacheSize() != 0 {
		t.Errorf("Expected empty cache after ClearCache, got %d", n.CacheSize())
	}
}

func TestRateConcurrentAccess(t *testing.T) {
	n := createTestNormalizer(t)
	codes := []string{"ZAR", "USD", "GBP"}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			from, to := codes[i%3], codes[(i+1)%3]
			if _, err := n.Rate(from, to); err != nil {
				t.Errorf("Rate(%s, %s) error = %v", from, to, err)
			}
		}(i)
	}
	wg.Wait()

	// ZAR->USD, USD->GBP, GBP->ZAR and the USD->ZAR leg
	if n.CacheSize() != 4 {
		t.Errorf("Expected 4 cached pairs, got %d", n.CacheSize())
	}
}

func TestConvert(t *testing.T) {
	n := createTestNormalizer(t)

	got, err := n.Convert(decimal.NewFromInt(100), "USD", "ZAR")
	if err != nil {
		t.Fatalf("Convert() error = %v", err)
	}
	if !got.Equal(decimal.NewFromInt(1850)) {
		t.Errorf("Expected 1850, got %s", got)
	}

	if _, err := n.Convert(decimal.NewFromInt(1), "EUR", "ZAR"); err == nil {
		t.Error("Expected error for unknown currency")
	}
}

func TestNewTable(t *testing.T) {
	jan := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)
	feb := time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		base    string
		entries []models.RateEntry
		wantErr bool
		usd     string
	}{
		{
			name:    "latest date wins",
			entries: []models.RateEntry{{Currency: "USD", RateToBase: decimal.RequireFromString("19.1"), AsOf: feb}, {Currency: "USD", RateToBase: decimal.RequireFromString("18.5"), AsOf: jan}},
			usd:     "19.1",
		},
		{
			name:    "later row wins on equal dates",
			entries: []models.RateEntry{entry("USD", "18.5"), entry("USD", "18.7")},
			usd:     "18.7",
		},
		{name: "unknown code", entries: []models.RateEntry{entry("XYZ", "1")}, wantErr: true},
		{name: "zero rate", entries: []models.RateEntry{entry("USD", "0")}, wantErr: true},
		{name: "negative rate", entries: []models.RateEntry{entry("USD", "-1")}, wantErr: true},
		{name: "bad base", base: "RANDS", entries: []models.RateEntry{entry("USD", "18.5")}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table, err := NewTable(tt.base, tt.entries)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewTable() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if table.Base() != models.DefaultBaseCurrency {
				t.Errorf("Expected default base, got %s", table.Base())
			}
			got, _ := table.Lookup("USD")
			if !got.Equal(decimal.RequireFromString(tt.usd)) {
				t.Errorf("Expected USD %s, got %s", tt.usd, got)
			}
		})
	}
}

func TestTableAsOf(t *testing.T) {
	jan := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)
	feb := time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC)

	table, err := NewTable("ZAR", []models.RateEntry{
		{Currency: "USD", RateToBase: decimal.RequireFromString("18.5"), AsOf: jan},
		{Currency: "USD", RateToBase: decimal.RequireFromString("19.1"), AsOf: feb},
		{Currency: "EUR", RateToBase: decimal.RequireFromString("20.3"), AsOf: feb},
		entry("GBP", "23.2"),
	})
	if err != nil {
		t.Fatalf("NewTable() error = %v", err)
	}

	past, err := table.AsOf(time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("AsOf() error = %v", err)
	}

	usd, _ := past.Lookup("USD")
	if !usd.Equal(decimal.RequireFromString("18.5")) {
		t.Errorf("Expected January USD rate, got %s", usd)
	}
	if _, ok := past.Lookup("EUR"); ok {
		t.Error("EUR is dated after the cut-off")
	}
	if _, ok := past.Lookup("GBP"); !ok {
		t.Error("Undated entries are always kept")
	}
}

func TestCurrencies(t *testing.T) {
	n := createTestNormalizer(t)
	got := n.Currencies()
	expected := []string{"ZAR", "GBP", "USD"}

	if len(got) != len(expected) {
		t.Fatalf("Expected %v, got %v", expected, got)
	}
	for i := range expected {
		if got[i] != expected[i] {
			t.Errorf("Expected %v, got %v", expected, got)
		}
	}
}
