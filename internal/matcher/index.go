package matcher

import (
	"timesheet-reconciliation-service/internal/extract"
	"timesheet-reconciliation-service/internal/models"
)

// WarningKind classifies data-quality findings
type WarningKind string

const (
	// WarningDuplicateKey: two Planning records share a composite key; the later one is unreachable
	WarningDuplicateKey WarningKind = "duplicate_target_key"
	// WarningDuplicateProject: two Planning records share person and project
	WarningDuplicateProject WarningKind = "duplicate_target_project"
	// WarningTargetSkipped: a Planning record could not be keyed
	WarningTargetSkipped WarningKind = "target_not_indexed"
)

// Warning is a non-fatal finding reported for human review
type Warning struct {
	Kind    WarningKind    `json:"kind"`
	Key     string         `json:"key,omitempty"`
	Message string         `json:"message"`
	Kept    *models.Record `json:"-"`
	Dropped *models.Record `json:"-"`
}

// TargetIndex maps keys to Planning records. It is built once and read-only afterwards.
type TargetIndex struct {
	byKey     map[string]*extract.Matchable
	byProject map[string]*extract.Matchable
	entries   []*extract.Matchable
	warnings  []Warning
}

func newTargetIndex() *TargetIndex {
	return &TargetIndex{
		byKey:     make(map[string]*extract.Matchable),
		byProject: make(map[string]*extract.Matchable),
	}
}

// add indexes a prepared target. The first record seen for a key wins.
func (ti *TargetIndex) add(m *extract.Matchable, projectKey string) {
	ti.entries = append(ti.entries, m)

	if kept, ok := ti.byKey[m.Key]; ok {
		ti.warnings = append(ti.warnings, Warning{
			Kind:    WarningDuplicateKey,
			Key:     m.Key,
			Message: "duplicate composite key on planning side: " + m.Record.Origin + " is unreachable, kept " + kept.Record.Origin,
			Kept:    kept.Record,
			Dropped: m.Record,
		})
	} else {
		ti.byKey[m.Key] = m
	}

	if projectKey == "" {
		return
	}
	if kept, ok := ti.byProject[projectKey]; ok {
		ti.warnings = append(ti.warnings, Warning{
			Kind:    WarningDuplicateProject,
			Key:     projectKey,
			Message: "duplicate person and project on planning side: " + m.Record.Origin + " is unreachable by project, kept " + kept.Record.Origin,
			Kept:    kept.Record,
			Dropped: m.Record,
		})
		return
	}
	ti.byProject[projectKey] = m
}

func (ti *TargetIndex) skip(r *models.Record, err error) {
	ti.warnings = append(ti.warnings, Warning{
		Kind:    WarningTargetSkipped,
		Message: "planning record " + r.Origin + " not indexed: " + err.Error(),
		Dropped: r,
	})
}

// Lookup returns the target indexed under a composite key
func (ti *TargetIndex) Lookup(key string) (*extract.Matchable, bool) {
	m, ok := ti.byKey[key]
	return m, ok
}

// LookupProject returns the target indexed under person and project
func (ti *TargetIndex) LookupProject(person, project string) (*extract.Matchable, bool) {
	m, ok := ti.byProject[projectKey(person, project)]
	return m, ok
}

// Keys returns every distinct composite key in the index
func (ti *TargetIndex) Keys() []string {
	keys := make([]string, 0, len(ti.byKey))
	for _, m := range ti.entries {
		if ti.byKey[m.Key] == m {
			keys = append(keys, m.Key)
		}
	}
	return keys
}

// Entries returns every indexed target, duplicates included, in input order
func (ti *TargetIndex) Entries() []*extract.Matchable {
	return ti.entries
}

// Size returns the number of distinct composite keys
func (ti *TargetIndex) Size() int {
	return len(ti.byKey)
}

// Warnings returns the findings recorded while indexing
func (ti *TargetIndex) Warnings() []Warning {
	return ti.warnings
}

func projectKey(person, project string) string {
	if person == "" || project == "" {
		return ""
	}
	return person + models.KeySeparator + project
}
