package mapping

import (
	"context"
	"os"

	"gopkg.in/yaml.v2"

	"timesheet-reconciliation-service/internal/models"
	"timesheet-reconciliation-service/pkg/errors"
)

// yamlDocument mirrors the four rule sheets of the workbook
type yamlDocument struct {
	FieldMappings []struct {
		ID          string `yaml:"id"`
		SourceField string `yaml:"source_field"`
		TargetField string `yaml:"target_field"`
		Description string `yaml:"description"`
		Active      *bool  `yaml:"active"`
	} `yaml:"field_mappings"`

	CompositeKeys []struct {
		ID          string `yaml:"id"`
		System      string `yaml:"system"`
		Formula     string `yaml:"formula"`
		Description string `yaml:"description"`
		Active      *bool  `yaml:"active"`
	} `yaml:"composite_keys"`

	ClientExtraction []struct {
		ID            string `yaml:"id"`
		System        string `yaml:"system"`
		FieldName     string `yaml:"field_name"`
		Method        string `yaml:"method"`
		Formula       string `yaml:"formula"`
		Description   string `yaml:"description"`
		ExampleInput  string `yaml:"example_input"`
		ExampleOutput string `yaml:"example_output"`
		Active        *bool  `yaml:"active"`
	} `yaml:"client_extraction"`

	Multimatch []struct {
		ID            string `yaml:"id"`
		SourcePattern string `yaml:"source_pattern"`
		TargetPattern string `yaml:"target_pattern"`
		Description   string `yaml:"description"`
		Active        *bool  `yaml:"active"`
	} `yaml:"multimatch"`

	Instructions []map[string]string `yaml:"instructions"`
}

// YAMLStore reads rules from a YAML document. A rule without an active key is active.
type YAMLStore struct {
	path string
}

// NewYAMLStore creates a store for the YAML file at path
func NewYAMLStore(path string) *YAMLStore {
	return &YAMLStore{path: path}
}

// Source returns the YAML file path
func (s *YAMLStore) Source() string {
	return s.path
}

// Load reads and validates the document
func (s *YAMLStore) Load(ctx context.Context) (*models.RuleSet, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, errors.ConfigLoadError(&errors.RuleContext{Source: s.path}, "rule file not found",
			errors.FileError(errors.CodeFileNotFound, s.path, err))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return parseYAML(s.path, data)
}

func parseYAML(source string, data []byte) (*models.RuleSet, error) {
	var doc yamlDocument
	if err := yaml.UnmarshalStrict(data, &doc); err != nil {
		return nil, errors.ConfigLoadError(&errors.RuleContext{Source: source}, "malformed rule document", err)
	}

	a := newAssembler(source)
	for i, r := range doc.FieldMappings {
		a.addFieldMapping(&models.FieldMappingRule{
			ID:          r.ID,
			SourceField: r.SourceField,
			TargetField: r.TargetField,
			Description: r.Description,
			Active:      activeOrDefault(r.Active),
		}, yamlLoc(source, "field_mappings", i))
	}

	for i, r := range doc.CompositeKeys {
		loc := yamlLoc(source, "composite_keys", i)
		system, err := models.ParseSystem(r.System)
		if err != nil {
			loc.Column = "system"
			a.errs.Add(errors.ConfigLoadError(loc, err.Error(), nil))
			continue
		}
		a.addCompositeKey(&models.CompositeKeyRule{
			ID:          r.ID,
			System:      system,
			Formula:     models.ParseFormula(r.Formula),
			Description: r.Description,
			Active:      activeOrDefault(r.Active),
		}, loc)
	}

	for i, r := range doc.ClientExtraction {
		loc := yamlLoc(source, "client_extraction", i)
		system, err := models.ParseSystem(r.System)
		if err != nil {
			loc.Column = "system"
			a.errs.Add(errors.ConfigLoadError(loc, err.Error(), nil))
			continue
		}
		rule, err := newExtractionRule(r.Method, r.FieldName, r.Formula)
		if err != nil {
			loc.Column = "method"
			a.errs.Add(errors.ConfigLoadError(loc, err.Error(), nil))
			continue
		}
		rule.ID = r.ID
		rule.System = system
		rule.Description = r.Description
		rule.ExampleInput = r.ExampleInput
		rule.ExampleOutput = r.ExampleOutput
		rule.Active = activeOrDefault(r.Active)
		a.addClientExtraction(rule, loc)
	}

	for i, r := range doc.Multimatch {
		a.addMultimatch(&models.MultimatchRule{
			ID:            r.ID,
			SourcePattern: r.SourcePattern,
			TargetPattern: r.TargetPattern,
			Description:   r.Description,
			Active:        activeOrDefault(r.Active),
		}, yamlLoc(source, "multimatch", i))
	}

	return a.result()
}

func yamlLoc(source, section string, index int) *errors.RuleContext {
	return &errors.RuleContext{Source: source, Sheet: section, Row: index + 1}
}

func activeOrDefault(active *bool) bool {
	return active == nil || *active
}
