package extract

import (
	"fmt"
	"strconv"
	"strings"

	"timesheet-reconciliation-service/internal/models"
	"timesheet-reconciliation-service/pkg/errors"
)

// expression computes a client id from a record
type expression interface {
	eval(system models.System, r *models.Record) (string, error)
}

type directField struct {
	field string
}

func (d directField) eval(system models.System, r *models.Record) (string, error) {
	return lookup(system, d.field, r)
}

// splitField takes one token of a delimited field, e.g. the client part of "AKBANK|CVA"
type splitField struct {
	field string
	delim string
	index int
}

func (s splitField) eval(system models.System, r *models.Record) (string, error) {
	raw, err := lookup(system, s.field, r)
	if err != nil {
		return "", err
	}
	parts := strings.Split(raw, s.delim)
	idx := s.index
	if idx < 0 {
		idx += len(parts)
	}
	if idx < 0 || idx >= len(parts) {
		return "", errors.ValidationError(errors.CodeInvalidData, s.field, raw,
			fmt.Errorf("no token %d after splitting on %q", s.index, s.delim))
	}
	return parts[idx], nil
}

// joinFields concatenates several fields with a separator
type joinFields struct {
	sep    string
	fields []string
}

func (j joinFields) eval(system models.System, r *models.Record) (string, error) {
	values := make([]string, len(j.fields))
	for i, f := range j.fields {
		v, err := lookup(system, f, r)
		if err != nil {
			return "", err
		}
		values[i] = v
	}
	return strings.Join(values, j.sep), nil
}

// compile turns a rule into an expression. Formula-derived rules use
//
//	split:<field>:<delimiter>:<index>   one token of a delimited field
//	join:<separator>:<field>+<field>    several fields joined together
func compile(rule *models.ClientExtractionRule) (expression, error) {
	if rule.Method == models.MethodDirectField {
		return directField{field: rule.FieldName}, nil
	}

	parts := strings.SplitN(rule.Formula, ":", 2)
	if len(parts) != 2 {
		return nil, fmt.Errorf("formula %q has no function", rule.Formula)
	}

	switch parts[0] {
	case "split":
		args := strings.Split(parts[1], ":")
		if len(args) < 2 || len(args) > 3 || args[0] == "" || args[1] == "" {
			return nil, fmt.Errorf("split needs field and delimiter: %q", rule.Formula)
		}
		index := 0
		if len(args) == 3 {
			n, err := strconv.Atoi(args[2])
			if err != nil {
				return nil, fmt.Errorf("split index %q is not a number", args[2])
			}
			index = n
		}
		return splitField{field: args[0], delim: args[1], index: index}, nil
	case "join":
		args := strings.SplitN(parts[1], ":", 2)
		if len(args) != 2 || args[1] == "" {
			return nil, fmt.Errorf("join needs separator and fields: %q", rule.Formula)
		}
		return joinFields{sep: args[0], fields: strings.Split(args[1], "+")}, nil
	default:
		return nil, fmt.Errorf("unknown formula function %q", parts[0])
	}
}

// ClientExtractor derives the canonical client id of a record
type ClientExtractor struct {
	rules       map[models.System]*models.ClientExtractionRule
	expressions map[models.System]expression
}

// NewClientExtractor compiles the active client extraction rules. More than
// one active rule for a system is an AmbiguousRuleError; an uncompilable
// formula is a ConfigLoadError.
func NewClientExtractor(rs *models.RuleSet) (*ClientExtractor, error) {
	e := &ClientExtractor{
		rules:       make(map[models.System]*models.ClientExtractionRule),
		expressions: make(map[models.System]expression),
	}

	for _, system := range []models.System{models.SystemTimesheet, models.SystemPlanning} {
		rules := rs.ExtractionRulesFor(system)
		if len(rules) == 0 {
			continue
		}
		if len(rules) > 1 {
			ids := make([]string, len(rules))
			for i, r := range rules {
				ids[i] = r.ID
			}
			return nil, errors.AmbiguousRuleError(string(system), ids).WithContext("rule_kind", "client_extraction")
		}

		expr, err := compile(rules[0])
		if err != nil {
			return nil, errors.ConfigLoadError(&errors.RuleContext{Source: rs.Source, RuleID: rules[0].ID, Column: "Extraction_Formula"}, err.Error(), nil)
		}
		e.rules[system] = rules[0]
		e.expressions[system] = expr
	}

	return e, nil
}

// Extract returns the client id of r. Direct-field values come back
// byte-for-byte; no trimming or case folding happens here.
func (e *ClientExtractor) Extract(system models.System, r *models.Record) (string, error) {
	expr, ok := e.expressions[system]
	if !ok {
		return "", errors.NoExtractionRuleError(string(system))
	}
	return expr.eval(system, r)
}

// Rule returns the active extraction rule for system
func (e *ClientExtractor) Rule(system models.System) (*models.ClientExtractionRule, bool) {
	r, ok := e.rules[system]
	return r, ok
}
