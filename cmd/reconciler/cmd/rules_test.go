package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"timesheet-reconciliation-service/pkg/errors"
)

func TestValidateRules(t *testing.T) {
	dir := writeInputs(t)

	var out bytes.Buffer
	if err := validateRules(context.Background(), filepath.Join(dir, "rules.yaml"), &out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	output := out.String()
	if !strings.Contains(output, "is valid") {
		t.Errorf("expected confirmation, got %q", output)
	}
	for _, line := range []string{"field mappings", "composite keys", "client extraction", "multimatch"} {
		if !strings.Contains(output, line) {
			t.Errorf("expected count line for %s, got %q", line, output)
		}
	}
}

func TestValidateRulesErrors(t *testing.T) {
	dir := t.TempDir()

	ambiguous := cliRules + `
  - id: MM002
    source_pattern: "AKBANK|MINI"
    target_pattern: "AKB|RUN|MX|FIX|F2B"
`
	ambiguous = strings.Replace(ambiguous, "client_extraction:", `  - id: CK003
    system: ElapseIT
    formula: Person.Project
client_extraction:`, 1)

	noExtraction := strings.Replace(cliRules, `  - id: CE002
    system: Vision
    field_name: client
    method: direct-field
`, "", 1)

	tests := []struct {
		name    string
		file    string
		content string
		code    errors.ErrorCode
	}{
		{"ambiguous composite key", "ambiguous.yaml", ambiguous, errors.CodeAmbiguousRule},
		{"no extraction rule", "noextract.yaml", noExtraction, errors.CodeNoExtractionRule},
		{"unsupported extension", "rules.txt", cliRules, errors.CodeConfigLoad},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.file)
			if err := os.WriteFile(path, []byte(tt.content), 0644); err != nil {
				t.Fatalf("failed to write rules: %v", err)
			}

			err := validateRules(context.Background(), path, &bytes.Buffer{})
			if !errors.HasCode(err, tt.code) {
				t.Errorf("expected %s, got %v", tt.code, err)
			}
		})
	}
}

func TestRulesInit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mapping_config.xlsx")

	rulesInitPath = path
	rulesForce = false
	defer func() { rulesInitPath = "mapping_config.xlsx" }()

	cmd := &cobra.Command{}
	var out bytes.Buffer
	cmd.SetOut(&out)

	if err := runRulesInit(cmd, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out.String(), path) {
		t.Errorf("expected output to name %s, got %q", path, out.String())
	}

	// The starter workbook must pass its own validation
	if err := validateRules(context.Background(), path, &bytes.Buffer{}); err != nil {
		t.Errorf("starter workbook is not valid: %v", err)
	}

	if err := runRulesInit(cmd, nil); err == nil {
		t.Errorf("expected refusal to overwrite without --force")
	}

	rulesForce = true
	defer func() { rulesForce = false }()
	if err := runRulesInit(cmd, nil); err != nil {
		t.Errorf("unexpected error with --force: %v", err)
	}

	rulesInitPath = filepath.Join(dir, "rules.yaml")
	if err := runRulesInit(cmd, nil); !errors.HasCode(err, errors.CodeInvalidConfig) {
		t.Errorf("expected invalid_config for a non-xlsx output, got %v", err)
	}
}
