// Package matcher joins Timesheet System records to Planning Database records.
//
// Matching runs in two passes over fully materialized record sets:
//  1. Composite: every Planning record is keyed with its system's composite
//     formula and indexed (first write wins, later duplicates are reported as
//     warnings). Each Timesheet record is keyed the same way and looked up by
//     exact, case-sensitive string equality.
//  2. Multimatch: a Timesheet record that missed in pass 1 has its project
//     value compared with the source pattern of every active multimatch rule
//     in declared order. The first rule that matches supplies a target
//     pattern, which is looked up again in the Planning index.
//
// The per-record control flow is a small state machine (see state.go) so the
// rule "pass 1 always wins" is a property of the transition table.
//
// Every source record ends in exactly one of three dispositions:
//   - a MatchResult with pass composite or multimatch (target set)
//   - a MatchResult with pass unmatched (no target)
//   - a SkippedRecord, when the fields needed to build its key are missing
//
// Example usage:
//
//	engine, err := matcher.NewMatchingEngine(matcher.DefaultMatchingConfig(), rules, builder)
//	if err != nil {
//		return err
//	}
//	outcome, err := engine.Match(timesheetRecords, planningRecords)
package matcher

import (
	"fmt"
	"strings"
)

// MatchPass records how a source record was resolved
type MatchPass int

const (
	// PassDirect is reserved for a raw-field equality pass. With composite
	// keys in place it coincides with PassComposite and is never emitted.
	PassDirect MatchPass = iota

	// PassComposite means the source composite key was found in the target index
	PassComposite

	// PassMultimatch means a multimatch rule rewrote the key and the rewrite was found
	PassMultimatch

	// PassUnmatched means neither pass found a target
	PassUnmatched
)

// String returns the string representation of MatchPass
func (mp MatchPass) String() string {
	switch mp {
	case PassDirect:
		return "direct"
	case PassComposite:
		return "composite"
	case PassMultimatch:
		return "multimatch"
	case PassUnmatched:
		return "unmatched"
	default:
		return "unknown"
	}
}

// MarshalText lets passes appear by name in JSON output
func (mp MatchPass) MarshalText() ([]byte, error) {
	return []byte(mp.String()), nil
}

// DefaultExcludedPerson is the placeholder person the timesheet system uses
// for unassigned backlog capacity
const DefaultExcludedPerson = "BACKLOG ALLOCATIONS"

// MatchingConfig holds the knobs of the matching engine
type MatchingConfig struct {
	// ProjectField is the semantic field compared with multimatch source patterns
	ProjectField string `json:"project_field" mapstructure:"project_field"`

	// PersonField is the semantic field holding the person; used for
	// exclusions and to scope project lookups to one person
	PersonField string `json:"person_field" mapstructure:"person_field"`

	// ExcludedPersons lists person values whose source records are skipped
	ExcludedPersons []string `json:"excluded_persons" mapstructure:"excluded_persons"`

	// EnableProjectIndex allows a rewritten multimatch key to match a Planning
	// record of the same person by project value when no composite key equals it
	EnableProjectIndex bool `json:"enable_project_index" mapstructure:"enable_project_index"`

	// Workers is the number of goroutines building keys. 1 keeps everything sequential.
	Workers int `json:"workers" mapstructure:"workers"`
}

// DefaultMatchingConfig returns a configuration with sensible defaults
func DefaultMatchingConfig() *MatchingConfig {
	return &MatchingConfig{
		ProjectField:       "Project",
		PersonField:        "Person",
		ExcludedPersons:    []string{DefaultExcludedPerson},
		EnableProjectIndex: true,
		Workers:            1,
	}
}

// StrictMatchingConfig only accepts composite key equality in both passes and excludes nobody
func StrictMatchingConfig() *MatchingConfig {
	return &MatchingConfig{
		ProjectField:       "Project",
		PersonField:        "Person",
		EnableProjectIndex: false,
		Workers:            1,
	}
}

// Validate checks if the matching configuration is valid
func (mc *MatchingConfig) Validate() error {
	if strings.TrimSpace(mc.ProjectField) == "" {
		return fmt.Errorf("project field cannot be empty")
	}

	if strings.TrimSpace(mc.PersonField) == "" {
		return fmt.Errorf("person field cannot be empty")
	}

	if mc.Workers <= 0 {
		return fmt.Errorf("workers must be positive: %d", mc.Workers)
	}

	if mc.Workers > 64 {
		return fmt.Errorf("workers must be at most 64: %d", mc.Workers)
	}

	return nil
}

// IsExcluded reports whether person is on the exclusion list
func (mc *MatchingConfig) IsExcluded(person string) bool {
	for _, p := range mc.ExcludedPersons {
		if p == person {
			return true
		}
	}
	return false
}

// Clone creates a deep copy of the matching configuration
func (mc *MatchingConfig) Clone() *MatchingConfig {
	if mc == nil {
		return nil
	}

	clone := *mc
	clone.ExcludedPersons = append([]string(nil), mc.ExcludedPersons...)
	return &clone
}

// String returns a human-readable description of the configuration
func (mc *MatchingConfig) String() string {
	return fmt.Sprintf("MatchingConfig{ProjectField: %s, PersonField: %s, Excluded: %d, ProjectIndex: %v, Workers: %d}",
		mc.ProjectField, mc.PersonField, len(mc.ExcludedPersons), mc.EnableProjectIndex, mc.Workers)
}
