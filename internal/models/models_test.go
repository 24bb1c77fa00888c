package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestParseSystem(t *testing.T) {
	tests := []struct {
		label    string
		expected System
		wantErr  bool
	}{
		{"ElapseIT", SystemTimesheet, false},
		{"timesheet", SystemTimesheet, false},
		{" Vision ", SystemPlanning, false},
		{"PLANNING", SystemPlanning, false},
		{"Xero", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			got, err := ParseSystem(tt.label)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseSystem(%q) error = %v, wantErr %v", tt.label, err, tt.wantErr)
			}
			if got != tt.expected {
				t.Errorf("ParseSystem(%q) = %v, want %v", tt.label, got, tt.expected)
			}
		})
	}
}

func TestValueString(t *testing.T) {
	tests := []struct {
		name     string
		value    Value
		expected string
	}{
		{"string kept verbatim", StringValue(" AKBANK|CVA "), " AKBANK|CVA "},
		{"number without trailing zeros", NumberValue(decimal.RequireFromString("12.50")), "12.5"},
		{"date", DateValue(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)), "2024-03-01"},
		{"null", Null(), ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.value.String(); got != tt.expected {
				t.Errorf("Value.String() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestValueEqual(t *testing.T) {
	if !NumberValue(decimal.RequireFromString("1.0")).Equal(NumberValue(decimal.NewFromInt(1))) {
		t.Error("Expected 1.0 and 1 to be equal numbers")
	}
	if StringValue("1").Equal(NumberValue(decimal.NewFromInt(1))) {
		t.Error("Expected values of different kinds to differ")
	}
}

func TestRecordOrderAndLookup(t *testing.T) {
	r := RecordFromStrings("test:1", "Person", "J.Doe", "Client", "AKBANK", "Project", "AKBANK|CVA")
	r.Set("Client", StringValue("AKB"))

	fields := r.Fields()
	expected := []string{"Person", "Client", "Project"}
	if len(fields) != len(expected) {
		t.Fatalf("Expected %d fields, got %d", len(expected), len(fields))
	}
	for i := range expected {
		if fields[i] != expected[i] {
			t.Errorf("Expected field %d to be %s, got %s", i, expected[i], fields[i])
		}
	}

	if v, ok := r.Lookup("Client"); !ok || v.String() != "AKB" {
		t.Errorf("Expected Client=AKB after overwrite, got %v (present=%v)", v, ok)
	}
	if _, ok := r.Lookup("client"); ok {
		t.Error("Expected field lookup to be case-sensitive")
	}

	clone := r.Clone()
	clone.Set("Person", StringValue("Other"))
	if r.Get("Person") != "J.Doe" {
		t.Error("Expected Clone to be independent of the original")
	}
}

func TestParseFormula(t *testing.T) {
	got := ParseFormula(" Person . Client ")
	if len(got) != 2 || got[0] != "Person" || got[1] != "Client" {
		t.Errorf("ParseFormula() = %v", got)
	}
	if ParseFormula("") != nil {
		t.Error("Expected empty formula to parse to nil")
	}
}

func TestParseExtractionMethod(t *testing.T) {
	tests := []struct {
		label    string
		expected ExtractionMethod
		wantErr  bool
	}{
		{"Direct field", MethodDirectField, false},
		{"direct-field", MethodDirectField, false},
		{"Split by pipe delimiter", MethodFormulaDerived, false},
		{"formula-derived", MethodFormulaDerived, false},
		{"regex", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			got, err := ParseExtractionMethod(tt.label)
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.expected {
				t.Errorf("got %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestRuleSetLookups(t *testing.T) {
	rs := NewRuleSet("test")
	rs.AddFieldMapping(&FieldMappingRule{ID: "FM001", SourceField: "Person", TargetField: "employee", Active: true})
	rs.AddFieldMapping(&FieldMappingRule{ID: "FM003", SourceField: "Client", TargetField: "client", Active: true})
	rs.AddCompositeKey(&CompositeKeyRule{ID: "CK001", System: SystemTimesheet, Formula: []string{"Person", "Client"}, Active: true})
	rs.AddCompositeKey(&CompositeKeyRule{ID: "CK002", System: SystemPlanning, Formula: []string{"employee", "client"}, Active: true})

	if target, ok := rs.TargetFieldFor("Person"); !ok || target != "employee" {
		t.Errorf("Expected Person -> employee, got %s (%v)", target, ok)
	}
	if source, ok := rs.SourceFieldFor("client"); !ok || source != "Client" {
		t.Errorf("Expected client -> Client, got %s (%v)", source, ok)
	}
	if got := rs.CompositeKeysFor(SystemPlanning); len(got) != 1 || got[0].ID != "CK002" {
		t.Errorf("Expected CK002 for planning, got %v", got)
	}
	if got := rs.CompositeKeysFor(SystemTimesheet)[0].FormulaText(); got != "Person.Client" {
		t.Errorf("Expected formula text Person.Client, got %s", got)
	}
	if rs.Counts()["field_mappings"] != 2 {
		t.Errorf("Expected 2 field mappings, got %d", rs.Counts()["field_mappings"])
	}
}

func TestClientMapTranslate(t *testing.T) {
	m := ClientMap{"AKBANK": "AKB"}
	if m.Translate("AKBANK") != "AKB" {
		t.Error("Expected mapped client")
	}
	if m.Translate("D360") != "D360" {
		t.Error("Expected unmapped client to pass through")
	}
}

func TestRateEntryValidate(t *testing.T) {
	if err := (RateEntry{Currency: "USD", RateToBase: decimal.RequireFromString("18.5")}).Validate(); err != nil {
		t.Errorf("Expected valid entry, got %v", err)
	}
	if err := (RateEntry{Currency: "USD", RateToBase: decimal.Zero}).Validate(); err == nil {
		t.Error("Expected zero rate to be rejected")
	}
	if err := (RateEntry{RateToBase: decimal.NewFromInt(1)}).Validate(); err == nil {
		t.Error("Expected missing currency to be rejected")
	}
}
