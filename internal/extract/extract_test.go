package extract

import (
	"testing"

	"timesheet-reconciliation-service/internal/models"
	"timesheet-reconciliation-service/pkg/errors"
)

// createTestRules mirrors the default rule workbook
func createTestRules() *models.RuleSet {
	rs := models.NewRuleSet("test")
	rs.AddFieldMapping(&models.FieldMappingRule{ID: "FM001", SourceField: "Person", TargetField: "employee", Active: true})
	rs.AddFieldMapping(&models.FieldMappingRule{ID: "FM002", SourceField: "Project", TargetField: "project", Active: true})
	rs.AddFieldMapping(&models.FieldMappingRule{ID: "FM003", SourceField: "Client", TargetField: "client", Active: true})
	rs.AddCompositeKey(&models.CompositeKeyRule{ID: "CK001", System: models.SystemTimesheet, Formula: []string{"Person", "Client"}, Active: true})
	rs.AddCompositeKey(&models.CompositeKeyRule{ID: "CK002", System: models.SystemPlanning, Formula: []string{"employee", "client"}, Active: true})
	rs.AddClientExtraction(&models.ClientExtractionRule{ID: "CE001", System: models.SystemTimesheet, FieldName: "Client", Method: models.MethodDirectField, Formula: "Client", Active: true})
	rs.AddClientExtraction(&models.ClientExtractionRule{ID: "CE002", System: models.SystemPlanning, FieldName: "client", Method: models.MethodDirectField, Formula: "client", Active: true})
	return rs
}

func newBuilder(t *testing.T, rs *models.RuleSet, opts ...KeyOption) *KeyBuilder {
	t.Helper()
	extractor, err := NewClientExtractor(rs)
	if err != nil {
		t.Fatalf("NewClientExtractor() error = %v", err)
	}
	kb, err := NewKeyBuilder(rs, extractor, opts...)
	if err != nil {
		t.Fatalf("NewKeyBuilder() error = %v", err)
	}
	return kb
}

func TestClientExtractorDirectField(t *testing.T) {
	extractor, err := NewClientExtractor(createTestRules())
	if err != nil {
		t.Fatalf("NewClientExtractor() error = %v", err)
	}

	tests := []struct {
		name     string
		system   models.System
		record   *models.Record
		expected string
		wantCode errors.ErrorCode
	}{
		{"timesheet", models.SystemTimesheet, models.RecordFromStrings("t:1", "Person", "J.Doe", "Client", "AKBANK"), "AKBANK", ""},
		{"planning", models.SystemPlanning, models.RecordFromStrings("p:1", "employee", "J.Doe", "client", "AKB"), "AKB", ""},
		{"verbatim, no trimming", models.SystemTimesheet, models.RecordFromStrings("t:2", "Client", " akbank "), " akbank ", ""},
		{"missing field", models.SystemTimesheet, models.RecordFromStrings("t:3", "Person", "J.Doe"), "", errors.CodeMissingField},
		{"wrong case field name", models.SystemPlanning, models.RecordFromStrings("p:2", "Client", "AKB"), "", errors.CodeMissingField},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := extractor.Extract(tt.system, tt.record)
			if tt.wantCode != "" {
				if !errors.HasCode(err, tt.wantCode) {
					t.Errorf("Expected %s, got %v", tt.wantCode, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Extract() error = %v", err)
			}
			if got != tt.expected {
				t.Errorf("Expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestClientExtractorNullIsMissing(t *testing.T) {
	extractor, _ := NewClientExtractor(createTestRules())
	r := models.NewRecord("t:1")
	r.Set("Client", models.Null())

	if _, err := extractor.Extract(models.SystemTimesheet, r); !errors.HasCode(err, errors.CodeMissingField) {
		t.Errorf("Expected missing_field for a null client, got %v", err)
	}
}

func TestClientExtractorNoRule(t *testing.T) {
	rs := createTestRules()
	delete(rs.ClientExtraction, "CE002")
	rs.ExtractionOrder = []string{"CE001"}

	extractor, err := NewClientExtractor(rs)
	if err != nil {
		t.Fatalf("NewClientExtractor() error = %v", err)
	}
	_, err = extractor.Extract(models.SystemPlanning, models.RecordFromStrings("p:1", "client", "AKB"))
	if !errors.HasCode(err, errors.CodeNoExtractionRule) {
		t.Errorf("Expected no_extraction_rule, got %v", err)
	}
}

func TestClientExtractorFormulas(t *testing.T) {
	tests := []struct {
		name     string
		field    string
		formula  string
		record   *models.Record
		expected string
		wantErr  bool
	}{
		{"split first token", "Project", "split:Project:|:0", models.RecordFromStrings("t:1", "Project", "AKBANK|CVA"), "AKBANK", false},
		{"split last token", "Project", "split:Project:|:-1", models.RecordFromStrings("t:1", "Project", "AKBANK|CVA"), "CVA", false},
		{"split default index", "Project", "split:Project:|", models.RecordFromStrings("t:1", "Project", "D360"), "D360", false},
		{"split out of range", "Project", "split:Project:|:4", models.RecordFromStrings("t:1", "Project", "AKBANK|CVA"), "", true},
		{"join", "Client", "join: :Client+Region", models.RecordFromStrings("t:1", "Client", "D360", "Region", "Bank"), "D360 Bank", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rs := createTestRules()
			rs.ClientExtraction["CE001"] = &models.ClientExtractionRule{
				ID: "CE001", System: models.SystemTimesheet, FieldName: tt.field,
				Method: models.MethodFormulaDerived, Formula: tt.formula, Active: true,
			}
			extractor, err := NewClientExtractor(rs)
			if err != nil {
				t.Fatalf("NewClientExtractor() error = %v", err)
			}
			got, err := extractor.Extract(models.SystemTimesheet, tt.record)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Extract() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.expected {
				t.Errorf("Expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestClientExtractorBadFormula(t *testing.T) {
	rs := createTestRules()
	rs.ClientExtraction["CE001"].Method = models.MethodFormulaDerived
	rs.ClientExtraction["CE001"].Formula = "upper:Client"

	if _, err := NewClientExtractor(rs); !errors.HasCode(err, errors.CodeConfigLoad) {
		t.Errorf("Expected config_load for an unknown function, got %v", err)
	}
}

func TestKeyBuilderScenarioA(t *testing.T) {
	kb := newBuilder(t, createTestRules())

	source := models.RecordFromStrings("t:1", "Person", "J.Doe", "Client", "AKBANK", "Project", "AKBANK|CVA")
	target := models.RecordFromStrings("p:1", "employee", "J.Doe", "client", "AKB", "project", "AKB|CHANGE|MX|FIX|CVA")

	sourceKey, err := kb.Build(models.SystemTimesheet, source)
	if err != nil {
		t.Fatalf("Build(source) error = %v", err)
	}
	targetKey, err := kb.Build(models.SystemPlanning, target)
	if err != nil {
		t.Fatalf("Build(target) error = %v", err)
	}

	if sourceKey != "J.Doe.AKBANK" {
		t.Errorf("Expected source key J.Doe.AKBANK, got %s", sourceKey)
	}
	if targetKey != "J.Doe.AKB" {
		t.Errorf("Expected target key J.Doe.AKB, got %s", targetKey)
	}
}

func TestKeyBuilderDeclaredOrder(t *testing.T) {
	rs := createTestRules()
	rs.CompositeKeys["CK001"].Formula = []string{"Client", "Person"}
	kb := newBuilder(t, rs)

	key, err := kb.Build(models.SystemTimesheet, models.RecordFromStrings("t:1", "Person", "J.Doe", "Client", "AKBANK"))
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if key != "AKBANK.J.Doe" {
		t.Errorf("Expected formula order to be kept, got %s", key)
	}
}

func TestKeyBuilderSemanticPlanningFormula(t *testing.T) {
	rs := createTestRules()
	rs.CompositeKeys["CK002"].Formula = []string{"Person", "Client"}
	kb := newBuilder(t, rs)

	key, err := kb.Build(models.SystemPlanning, models.RecordFromStrings("p:1", "employee", "J.Doe", "client", "AKB"))
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if key != "J.Doe.AKB" {
		t.Errorf("Expected semantic names to resolve to native fields, got %s", key)
	}
}

func TestKeyBuilderClientMapAndSplit(t *testing.T) {
	rs := createTestRules()
	rs.ClientExtraction["CE001"] = &models.ClientExtractionRule{
		ID: "CE001", System: models.SystemTimesheet, FieldName: "Project",
		Method: models.MethodFormulaDerived, Formula: "split:Project:|:0", Active: true,
	}
	kb := newBuilder(t, rs, WithClientMap(models.ClientMap{"AKBANK": "AKB"}))

	m, err := kb.Prepare(models.SystemTimesheet, models.RecordFromStrings("t:1", "Person", "J.Doe", "Project", "AKBANK|CVA"))
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	if m.Client != "AKB" || m.Key != "J.Doe.AKB" {
		t.Errorf("Expected mapped client AKB and key J.Doe.AKB, got %s / %s", m.Client, m.Key)
	}
}

func TestKeyBuilderMissingField(t *testing.T) {
	kb := newBuilder(t, createTestRules())

	_, err := kb.Build(models.SystemTimesheet, models.RecordFromStrings("t:1", "Client", "AKBANK"))
	if !errors.HasCode(err, errors.CodeMissingField) {
		t.Fatalf("Expected missing_field, got %v", err)
	}
	rerr, _ := errors.AsReconcilerError(err)
	if rerr.Context["field"] != "Person" {
		t.Errorf("Expected missing field Person, got %v", rerr.Context["field"])
	}
}

func TestKeyBuilderAmbiguousRule(t *testing.T) {
	rs := createTestRules()
	rs.AddCompositeKey(&models.CompositeKeyRule{ID: "CK003", System: models.SystemPlanning, Formula: []string{"employee"}, Active: true})
	extractor, _ := NewClientExtractor(rs)

	if _, err := NewKeyBuilder(rs, extractor); !errors.HasCode(err, errors.CodeAmbiguousRule) {
		t.Errorf("Expected ambiguous_rule, got %v", err)
	}
}

func TestFieldResolver(t *testing.T) {
	fr := NewFieldResolver(createTestRules())

	if got := fr.Native(models.SystemPlanning, "Project"); got != "project" {
		t.Errorf("Expected Project -> project, got %s", got)
	}
	if got := fr.Native(models.SystemTimesheet, "Project"); got != "Project" {
		t.Errorf("Expected timesheet names to be native, got %s", got)
	}
	if got := fr.Native(models.SystemPlanning, "employee"); got != "employee" {
		t.Errorf("Expected unmapped name to pass through, got %s", got)
	}
	if got := fr.Semantic(models.SystemPlanning, "client"); got != "Client" {
		t.Errorf("Expected client -> Client, got %s", got)
	}
}
