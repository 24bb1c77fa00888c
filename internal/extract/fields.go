// Package extract derives the values the matcher joins on: the canonical
// client of a record and the composite key built from a system's formula.
package extract

import (
	"timesheet-reconciliation-service/internal/models"
	"timesheet-reconciliation-service/pkg/errors"
)

// FieldResolver translates semantic field names into a system's native names.
// Semantic names are the Timesheet System names used on the source side of
// the field mappings, so Timesheet fields resolve to themselves.
type FieldResolver struct {
	rules *models.RuleSet
}

// NewFieldResolver creates a resolver over the active field mappings
func NewFieldResolver(rs *models.RuleSet) *FieldResolver {
	return &FieldResolver{rules: rs}
}

// Native returns the name under which system stores the semantic field. A
// name with no mapping is taken literally, which lets Planning formulas be
// written with native names such as "employee.client".
func (fr *FieldResolver) Native(system models.System, semantic string) string {
	if system == models.SystemPlanning {
		if target, ok := fr.rules.TargetFieldFor(semantic); ok {
			return target
		}
	}
	return semantic
}

// Semantic is the reverse of Native
func (fr *FieldResolver) Semantic(system models.System, native string) string {
	if system == models.SystemPlanning {
		if source, ok := fr.rules.SourceFieldFor(native); ok {
			return source
		}
	}
	return native
}

// Value looks up a semantic field in r. A field that is absent or null is a
// MissingFieldError; present values are returned verbatim.
func (fr *FieldResolver) Value(system models.System, semantic string, r *models.Record) (string, error) {
	return lookup(system, fr.Native(system, semantic), r)
}

func lookup(system models.System, field string, r *models.Record) (string, error) {
	v, ok := r.Lookup(field)
	if !ok || v.IsNull() {
		return "", errors.MissingFieldError(string(system), field).WithContext("origin", r.Origin)
	}
	return v.String(), nil
}
