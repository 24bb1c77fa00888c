package models

import (
	"fmt"
	"strings"
)

// KeySeparator joins the components of a composite key
const KeySeparator = "."

// PatternDelimiter separates the tokens of a multimatch pattern
const PatternDelimiter = "|"

// FieldMappingRule maps a Timesheet System field to its Planning Database equivalent
type FieldMappingRule struct {
	ID          string `json:"id" yaml:"id" validate:"required"`
	SourceField string `json:"source_field" yaml:"source_field" validate:"required"`
	TargetField string `json:"target_field" yaml:"target_field" validate:"required"`
	Description string `json:"description,omitempty" yaml:"description"`
	Active      bool   `json:"active" yaml:"active"`
}

// CompositeKeyRule declares which fields, in order, form a system's join key
type CompositeKeyRule struct {
	ID          string   `json:"id" yaml:"id" validate:"required"`
	System      System   `json:"system" yaml:"system" validate:"required,system"`
	Formula     []string `json:"formula" yaml:"formula" validate:"required,min=1,dive,required"`
	Description string   `json:"description,omitempty" yaml:"description"`
	Active      bool     `json:"active" yaml:"active"`
}

// ParseFormula splits formula text such as "Person.Client" into field names
func ParseFormula(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	parts := strings.Split(text, KeySeparator)
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// FormulaText renders the formula back in its configuration form
func (r *CompositeKeyRule) FormulaText() string {
	return strings.Join(r.Formula, KeySeparator)
}

// ExtractionMethod is how a client identifier is derived from a record
type ExtractionMethod string

const (
	// MethodDirectField returns the value of a single field verbatim
	MethodDirectField ExtractionMethod = "direct-field"
	// MethodFormulaDerived evaluates an expression over one or more fields
	MethodFormulaDerived ExtractionMethod = "formula-derived"
)

// ParseExtractionMethod accepts the canonical names and the labels used in rule sheets
func ParseExtractionMethod(label string) (ExtractionMethod, error) {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "direct-field", "direct field", "direct":
		return MethodDirectField, nil
	case "formula-derived", "formula derived", "formula", "split by pipe delimiter":
		return MethodFormulaDerived, nil
	default:
		return "", fmt.Errorf("unknown extraction method: %q", label)
	}
}

// ClientExtractionRule derives a canonical client id from a system's records
type ClientExtractionRule struct {
	ID            string           `json:"id" yaml:"id" validate:"required"`
	System        System           `json:"system" yaml:"system" validate:"required,system"`
	FieldName     string           `json:"field_name" yaml:"field_name" validate:"required"`
	Method        ExtractionMethod `json:"method" yaml:"method" validate:"required,oneof=direct-field formula-derived"`
	Formula       string           `json:"formula" yaml:"formula" validate:"required_if=Method formula-derived"`
	Description   string           `json:"description,omitempty" yaml:"description"`
	ExampleInput  string           `json:"example_input,omitempty" yaml:"example_input"`
	ExampleOutput string           `json:"example_output,omitempty" yaml:"example_output"`
	Active        bool             `json:"active" yaml:"active"`
}

// MultimatchRule rewrites a delimited Timesheet project string into its Planning equivalent
type MultimatchRule struct {
	ID            string `json:"id" yaml:"id" validate:"required"`
	SourcePattern string `json:"source_pattern" yaml:"source_pattern" validate:"required"`
	TargetPattern string `json:"target_pattern" yaml:"target_pattern" validate:"required"`
	Description   string `json:"description,omitempty" yaml:"description"`
	Active        bool   `json:"active" yaml:"active"`
}

// SourceTokens returns the delimited tokens of the source pattern
func (r *MultimatchRule) SourceTokens() []string {
	return strings.Split(r.SourcePattern, PatternDelimiter)
}

// RuleSet is the active rule configuration for one run. The maps are keyed by
// rule id; the order slices preserve declaration order.
type RuleSet struct {
	FieldMappings    map[string]*FieldMappingRule
	CompositeKeys    map[string]*CompositeKeyRule
	ClientExtraction map[string]*ClientExtractionRule
	Multimatch       map[string]*MultimatchRule

	FieldMappingOrder []string
	CompositeKeyOrder []string
	ExtractionOrder   []string
	MultimatchOrder   []string

	// Source names where the rules were loaded from
	Source string
}

// NewRuleSet creates an empty rule set
func NewRuleSet(source string) *RuleSet {
	return &RuleSet{
		FieldMappings:    make(map[string]*FieldMappingRule),
		CompositeKeys:    make(map[string]*CompositeKeyRule),
		ClientExtraction: make(map[string]*ClientExtractionRule),
		Multimatch:       make(map[string]*MultimatchRule),
		Source:           source,
	}
}

// AddFieldMapping registers an active field mapping rule
func (rs *RuleSet) AddFieldMapping(r *FieldMappingRule) {
	rs.FieldMappings[r.ID] = r
	rs.FieldMappingOrder = append(rs.FieldMappingOrder, r.ID)
}

// AddCompositeKey registers an active composite key rule
func (rs *RuleSet) AddCompositeKey(r *CompositeKeyRule) {
	rs.CompositeKeys[r.ID] = r
	rs.CompositeKeyOrder = append(rs.CompositeKeyOrder, r.ID)
}

// AddClientExtraction registers an active client extraction rule
func (rs *RuleSet) AddClientExtraction(r *ClientExtractionRule) {
	rs.ClientExtraction[r.ID] = r
	rs.ExtractionOrder = append(rs.ExtractionOrder, r.ID)
}

// AddMultimatch registers an active multimatch rule
func (rs *RuleSet) AddMultimatch(r *MultimatchRule) {
	rs.Multimatch[r.ID] = r
	rs.MultimatchOrder = append(rs.MultimatchOrder, r.ID)
}

// OrderedFieldMappings returns the field mapping rules in declared order
func (rs *RuleSet) OrderedFieldMappings() []*FieldMappingRule {
	out := make([]*FieldMappingRule, 0, len(rs.FieldMappingOrder))
	for _, id := range rs.FieldMappingOrder {
		out = append(out, rs.FieldMappings[id])
	}
	return out
}

// OrderedMultimatch returns the multimatch rules in declared order
func (rs *RuleSet) OrderedMultimatch() []*MultimatchRule {
	out := make([]*MultimatchRule, 0, len(rs.MultimatchOrder))
	for _, id := range rs.MultimatchOrder {
		out = append(out, rs.Multimatch[id])
	}
	return out
}

// CompositeKeysFor returns every active composite key rule of system in declared order
func (rs *RuleSet) CompositeKeysFor(system System) []*CompositeKeyRule {
	var out []*CompositeKeyRule
	for _, id := range rs.CompositeKeyOrder {
		if r := rs.CompositeKeys[id]; r.System == system {
			out = append(out, r)
		}
	}
	return out
}

// ExtractionRulesFor returns every active client extraction rule of system in declared order
func (rs *RuleSet) ExtractionRulesFor(system System) []*ClientExtractionRule {
	var out []*ClientExtractionRule
	for _, id := range rs.ExtractionOrder {
		if r := rs.ClientExtraction[id]; r.System == system {
			out = append(out, r)
		}
	}
	return out
}

// TargetFieldFor translates a Timesheet System field name to the Planning
// Database name through the field mappings.
func (rs *RuleSet) TargetFieldFor(source string) (string, bool) {
	for _, id := range rs.FieldMappingOrder {
		if r := rs.FieldMappings[id]; r.SourceField == source {
			return r.TargetField, true
		}
	}
	return "", false
}

// SourceFieldFor is the reverse of TargetFieldFor
func (rs *RuleSet) SourceFieldFor(target string) (string, bool) {
	for _, id := range rs.FieldMappingOrder {
		if r := rs.FieldMappings[id]; r.TargetField == target {
			return r.SourceField, true
		}
	}
	return "", false
}

// Counts returns the number of active rules per kind
func (rs *RuleSet) Counts() map[string]int {
	return map[string]int{
		"field_mappings":    len(rs.FieldMappings),
		"composite_keys":    len(rs.CompositeKeys),
		"client_extraction": len(rs.ClientExtraction),
		"multimatch":        len(rs.Multimatch),
	}
}

// ClientMap translates Timesheet client ids into the Planning namespace
type ClientMap map[string]string

// Translate returns the mapped client id, or id itself when unmapped
func (m ClientMap) Translate(id string) string {
	if mapped, ok := m[id]; ok {
		return mapped
	}
	return id
}
