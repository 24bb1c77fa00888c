package mapping

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"timesheet-reconciliation-service/internal/models"
	"timesheet-reconciliation-service/pkg/errors"
)

// RuleValidator checks individual rules against their struct tags
type RuleValidator struct {
	validator *validator.Validate
}

// NewRuleValidator creates a validator that reports fields by their json names
func NewRuleValidator() *RuleValidator {
	v := validator.New()

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	_ = v.RegisterValidation("system", func(fl validator.FieldLevel) bool {
		return models.System(fl.Field().String()).IsValid()
	})

	return &RuleValidator{validator: v}
}

// Validate validates a rule and returns detailed error information
func (rv *RuleValidator) Validate(rule interface{}) error {
	if err := rv.validator.Struct(rule); err != nil {
		fieldErrs, ok := err.(validator.ValidationErrors)
		if !ok {
			return err
		}

		var problems []string
		for _, fe := range fieldErrs {
			problems = append(problems, fmt.Sprintf("field '%s' %s", fe.Field(), rv.message(fe)))
		}
		return fmt.Errorf("validation failed: %s", strings.Join(problems, "; "))
	}
	return nil
}

func (rv *RuleValidator) message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "required_if":
		return fmt.Sprintf("is required when %s", fe.Param())
	case "min":
		return fmt.Sprintf("needs at least %s entries", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	case "system":
		return fmt.Sprintf("must be %s or %s", models.SystemTimesheet, models.SystemPlanning)
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}

// ValidateRuleSet checks the cross-rule constraints a run depends on: each
// system needs exactly one active composite key rule and exactly one active
// client extraction rule.
func ValidateRuleSet(rs *models.RuleSet) error {
	for _, system := range []models.System{models.SystemTimesheet, models.SystemPlanning} {
		keys := rs.CompositeKeysFor(system)
		switch {
		case len(keys) == 0:
			return errors.ConfigurationError(errors.CodeMissingConfig,
				fmt.Sprintf("composite key rule for %s", system), nil, nil)
		case len(keys) > 1:
			ids := make([]string, len(keys))
			for i, r := range keys {
				ids[i] = r.ID
			}
			return errors.AmbiguousRuleError(string(system), ids)
		}

		extraction := rs.ExtractionRulesFor(system)
		switch {
		case len(extraction) == 0:
			return errors.NoExtractionRuleError(string(system))
		case len(extraction) > 1:
			ids := make([]string, len(extraction))
			for i, r := range extraction {
				ids[i] = r.ID
			}
			return errors.AmbiguousRuleError(string(system), ids).
				WithContext("rule_kind", "client_extraction")
		}
	}
	return nil
}
