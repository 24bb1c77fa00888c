package errors

import (
	"fmt"
	"path/filepath"
	"strings"
)

// RuleContext locates a problem inside a mapping configuration source
type RuleContext struct {
	Source   string `json:"source"`
	Sheet    string `json:"sheet,omitempty"`
	Row      int    `json:"row,omitempty"`
	Column   string `json:"column,omitempty"`
	RuleID   string `json:"rule_id,omitempty"`
	Expected string `json:"expected,omitempty"`
}

func (c *RuleContext) location() string {
	if c == nil {
		return ""
	}
	location := fmt.Sprintf("at %s", filepath.Base(c.Source))
	if c.Sheet != "" {
		location += fmt.Sprintf("[%s]", c.Sheet)
	}
	if c.Row > 0 {
		location += fmt.Sprintf(":%d", c.Row)
	}
	if c.Column != "" {
		location += fmt.Sprintf(" column '%s'", c.Column)
	}
	return location
}

// ConfigLoadError creates an error for a mapping configuration source that is
// missing or malformed.
func ConfigLoadError(ctx *RuleContext, reason string, cause error) *ReconcilerError {
	message := fmt.Sprintf("cannot load mapping configuration: %s", reason)
	if loc := ctx.location(); loc != "" {
		message += " " + loc
	}

	err := newOrWrap(cause, CategoryConfiguration, CodeConfigLoad, message).
		WithSuggestion("check that every rule sheet exists and has its required header columns")
	if ctx != nil {
		err.WithContext("source", ctx.Source)
		if ctx.Sheet != "" {
			err.WithContext("sheet", ctx.Sheet)
		}
		if ctx.Row > 0 {
			err.WithContext("row", ctx.Row)
		}
		if ctx.Column != "" {
			err.WithContext("column", ctx.Column)
		}
		if ctx.RuleID != "" {
			err.WithContext("rule_id", ctx.RuleID)
		}
	}
	return err
}

// MissingColumnsError creates a ConfigLoadError listing the required columns absent from a header row
func MissingColumnsError(source, sheet string, expected, actual []string) *ReconcilerError {
	missing := findMissingColumns(expected, actual)
	ctx := &RuleContext{
		Source:   source,
		Sheet:    sheet,
		Row:      1,
		Column:   strings.Join(missing, ", "),
		Expected: strings.Join(expected, ", "),
	}
	return ConfigLoadError(ctx, fmt.Sprintf("missing required columns: %s", strings.Join(missing, ", ")), nil)
}

// AmbiguousRuleError is raised when a system has more than one active composite key rule
func AmbiguousRuleError(system string, ruleIDs []string) *ReconcilerError {
	return New(CategoryConfiguration, CodeAmbiguousRule,
		fmt.Sprintf("system %s has %d active composite key rules: %s", system, len(ruleIDs), strings.Join(ruleIDs, ", "))).
		WithSuggestion("deactivate all but one composite key rule for this system").
		WithContext("system", system).
		WithContext("rule_ids", ruleIDs)
}

// NoExtractionRuleError is raised when a system has no active client extraction rule
func NoExtractionRuleError(system string) *ReconcilerError {
	return New(CategoryConfiguration, CodeNoExtractionRule,
		fmt.Sprintf("no active client extraction rule for system %s", system)).
		WithSuggestion("activate one client extraction rule for this system").
		WithContext("system", system)
}

// MissingFieldError is raised when a record lacks a field a rule refers to
func MissingFieldError(system, field string) *ReconcilerError {
	return New(CategoryValidation, CodeMissingField,
		fmt.Sprintf("%s record has no field '%s'", system, field)).
		WithSuggestion("check the field mapping rules against the export headers").
		WithContext("system", system).
		WithContext("field", field)
}

// ExcludedRecordError marks a record left out of matching on purpose
func ExcludedRecordError(system, field, value string) *ReconcilerError {
	return New(CategoryValidation, CodeExcluded,
		fmt.Sprintf("%s record excluded: %s is '%s'", system, field, value)).
		WithContext("system", system).
		WithContext("field", field).
		WithContext("value", value)
}

// RateNotFoundError is raised when the rate table has no rate for a currency
func RateNotFoundError(currency, base string) *ReconcilerError {
	return New(CategoryLookup, CodeRateNotFound,
		fmt.Sprintf("no %s rate for currency %s", base, currency)).
		WithSuggestion("add the currency to the exchange rate sheet").
		WithContext("currency", currency).
		WithContext("base", base)
}

// RuleErrorCollector gathers every problem found while loading a rule source
// so they can be reported together.
type RuleErrorCollector struct {
	errors    []*ReconcilerError
	maxErrors int
}

// NewRuleErrorCollector creates a collector that stops accepting after maxErrors
func NewRuleErrorCollector(maxErrors int) *RuleErrorCollector {
	if maxErrors <= 0 {
		maxErrors = 50
	}
	return &RuleErrorCollector{maxErrors: maxErrors}
}

// Add records err and reports whether more errors may be added
func (c *RuleErrorCollector) Add(err *ReconcilerError) bool {
	if err == nil {
		return true
	}
	if len(c.errors) < c.maxErrors {
		c.errors = append(c.errors, err)
	}
	return len(c.errors) < c.maxErrors
}

// HasErrors returns true if any errors have been collected
func (c *RuleErrorCollector) HasErrors() bool {
	return len(c.errors) > 0
}

// Errors returns all collected errors
func (c *RuleErrorCollector) Errors() []*ReconcilerError {
	return c.errors
}

// Err returns nil, the single collected error, or a ConfigLoadError wrapping the summary
func (c *RuleErrorCollector) Err(source string) error {
	switch len(c.errors) {
	case 0:
		return nil
	case 1:
		return c.errors[0]
	}
	summary := NewErrorSummary(c.errors)
	return ConfigLoadError(&RuleContext{Source: source}, fmt.Sprintf("%d invalid rules", summary.Total), summary)
}

func findMissingColumns(expected, actual []string) []string {
	actualSet := make(map[string]bool)
	for _, col := range actual {
		actualSet[strings.ToLower(strings.TrimSpace(col))] = true
	}

	var missing []string
	for _, col := range expected {
		if !actualSet[strings.ToLower(strings.TrimSpace(col))] {
			missing = append(missing, col)
		}
	}

	return missing
}

// FormatErrorsForUser renders collected configuration errors one per block
func FormatErrorsForUser(errs []*ReconcilerError) string {
	if len(errs) == 0 {
		return "No errors"
	}

	var lines []string
	lines = append(lines, fmt.Sprintf("Found %d problem(s):", len(errs)))
	for _, err := range errs {
		lines = append(lines, "")
		lines = append(lines, fmt.Sprintf("ERROR: %s", err.Message))
		for _, key := range []string{"sheet", "row", "column", "rule_id", "system", "field"} {
			if v, ok := err.Context[key]; ok {
				lines = append(lines, fmt.Sprintf("  → %s: %v", key, v))
			}
		}
		if err.Suggestion != "" {
			lines = append(lines, fmt.Sprintf("  → Suggestion: %s", err.Suggestion))
		}
	}
	return strings.Join(lines, "\n")
}
