// Package mapping loads the reconciliation rule set: field mappings,
// composite key formulas, client extraction rules and multimatch rules.
//
// Rules live outside the binary so that matching policy can be edited
// without a redeploy. Two sources are supported:
//
//   - a workbook with the sheets Field_Mappings, Composite_Keys,
//     Client_Extraction and Multimatcher (an Instructions sheet may be
//     present and is ignored)
//   - a YAML document with the same four relations
//
// Every row is validated when it is read. Inactive rows are validated too,
// so a broken rule is reported before someone switches it on. Only active
// rules end up in the returned RuleSet.
//
// A Store never caches: each Load call reads the source again.
package mapping

import (
	"context"
	"path/filepath"
	"strings"

	"timesheet-reconciliation-service/internal/models"
	"timesheet-reconciliation-service/pkg/errors"
	"timesheet-reconciliation-service/pkg/logger"
)

// Store loads the active rule set from a configuration source
type Store interface {
	Load(ctx context.Context) (*models.RuleSet, error)
	Source() string
}

// Open returns the Store matching the file extension of path
func Open(path string) (Store, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		return NewSpreadsheetStore(path), nil
	case ".yaml", ".yml":
		return NewYAMLStore(path), nil
	default:
		return nil, errors.ConfigLoadError(&errors.RuleContext{Source: path},
			"unsupported rule source, expected .xlsx, .yaml or .yml", nil)
	}
}

// assembler turns raw rows into a RuleSet, collecting every problem on the way
type assembler struct {
	rs        *models.RuleSet
	validator *RuleValidator
	errs      *errors.RuleErrorCollector
	ids       map[string]string
	pairs     map[string]string
	sources   map[string]string
	log       logger.Logger
}

func newAssembler(source string) *assembler {
	return &assembler{
		rs:        models.NewRuleSet(source),
		validator: NewRuleValidator(),
		errs:      errors.NewRuleErrorCollector(0),
		ids:       make(map[string]string),
		pairs:     make(map[string]string),
		sources:   make(map[string]string),
		log:       logger.WithComponent("mapping").WithField("source", source),
	}
}

// claimID rejects a rule id that was already used anywhere in the source
func (a *assembler) claimID(id string, loc *errors.RuleContext) bool {
	if id == "" {
		return true
	}
	if prev, ok := a.ids[id]; ok {
		a.errs.Add(errors.ConfigurationError(errors.CodeConfigConflict, "rule_id", id, nil).
			WithSuggestion("give every rule a unique id").
			WithContext("sheet", loc.Sheet).
			WithContext("row", loc.Row).
			WithContext("first_seen", prev))
		return false
	}
	a.ids[id] = loc.Sheet
	return true
}

func (a *assembler) check(rule interface{}, loc *errors.RuleContext) bool {
	if err := a.validator.Validate(rule); err != nil {
		a.errs.Add(errors.ConfigLoadError(loc, "invalid rule", err))
		return false
	}
	return true
}

func (a *assembler) addFieldMapping(r *models.FieldMappingRule, loc *errors.RuleContext) {
	loc.RuleID = r.ID
	if !a.claimID(r.ID, loc) || !a.check(r, loc) || !r.Active {
		return
	}
	a.rs.AddFieldMapping(r)
}

func (a *assembler) addCompositeKey(r *models.CompositeKeyRule, loc *errors.RuleContext) {
	loc.RuleID = r.ID
	if !a.claimID(r.ID, loc) || !a.check(r, loc) || !r.Active {
		return
	}
	a.rs.AddCompositeKey(r)
}

func (a *assembler) addClientExtraction(r *models.ClientExtractionRule, loc *errors.RuleContext) {
	loc.RuleID = r.ID
	if !a.claimID(r.ID, loc) || !a.check(r, loc) || !r.Active {
		return
	}
	a.rs.AddClientExtraction(r)
}

func (a *assembler) addMultimatch(r *models.MultimatchRule, loc *errors.RuleContext) {
	loc.RuleID = r.ID
	if !a.claimID(r.ID, loc) || !a.check(r, loc) || !r.Active {
		return
	}

	pair := r.SourcePattern + "\x00" + r.TargetPattern
	if prev, ok := a.pairs[pair]; ok {
		a.errs.Add(errors.ConfigurationError(errors.CodeConfigConflict, "multimatch", r.SourcePattern, nil).
			WithSuggestion("remove the duplicate multimatch rule").
			WithContext("rule_id", r.ID).
			WithContext("duplicate_of", prev))
		return
	}
	a.pairs[pair] = r.ID

	if prev, ok := a.sources[r.SourcePattern]; ok {
		a.log.WithFields(logger.Fields{
			"rule_id":        r.ID,
			"shadowed_by":    prev,
			"source_pattern": r.SourcePattern,
		}).Warn("Multimatch rule is shadowed by an earlier rule with the same source pattern")
	} else {
		a.sources[r.SourcePattern] = r.ID
	}
	a.rs.AddMultimatch(r)
}

func (a *assembler) result() (*models.RuleSet, error) {
	if err := a.errs.Err(a.rs.Source); err != nil {
		return nil, err
	}
	a.log.WithFields(logger.Fields{
		"field_mappings":    len(a.rs.FieldMappings),
		"composite_keys":    len(a.rs.CompositeKeys),
		"client_extraction": len(a.rs.ClientExtraction),
		"multimatch":        len(a.rs.Multimatch),
	}).Debug("Loaded active rules")
	return a.rs, nil
}

// parseActive reads an Is_Active cell. Only an explicit yes switches a rule on.
func parseActive(cell string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(cell)) {
	case "yes", "y", "true", "1":
		return true, true
	case "no", "n", "false", "0", "":
		return false, true
	default:
		return false, false
	}
}
