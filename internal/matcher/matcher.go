package matcher

import (
	"fmt"
	"sync"

	"timesheet-reconciliation-service/internal/extract"
	"timesheet-reconciliation-service/internal/models"
	"timesheet-reconciliation-service/pkg/errors"
	"timesheet-reconciliation-service/pkg/logger"
)

// MatchingEngine is the core engine joining Timesheet records to Planning records
type MatchingEngine struct {
	config     *MatchingConfig
	builder    *extract.KeyBuilder
	resolver   *extract.FieldResolver
	multimatch []*models.MultimatchRule
	log        logger.Logger
}

// MatchResult is the disposition of one source record that took part in matching
type MatchResult struct {
	Source       *models.Record `json:"-"`
	Origin       string         `json:"origin"`
	SourceKey    string         `json:"source_key"`
	Person       string         `json:"person,omitempty"`
	Client       string         `json:"client,omitempty"`
	Project      string         `json:"project,omitempty"`
	Target       *models.Record `json:"-"`
	TargetOrigin string         `json:"target_origin,omitempty"`
	TargetKey    string         `json:"target_key,omitempty"`
	EffectiveKey string         `json:"effective_key,omitempty"`
	Pass         MatchPass      `json:"pass"`
	RuleID       string         `json:"rule_id,omitempty"`
}

// Matched reports whether a target was found
func (mr *MatchResult) Matched() bool {
	return mr.Target != nil
}

// SkippedRecord is a source record that never entered matching
type SkippedRecord struct {
	Source *models.Record `json:"-"`
	Origin string         `json:"origin"`
	Reason error          `json:"-"`
}

// Excluded reports whether the record was left out by configuration rather
// than because of missing data
func (sr *SkippedRecord) Excluded() bool {
	return errors.HasCode(sr.Reason, errors.CodeExcluded)
}

// Summary provides aggregate counts of an Outcome
type Summary struct {
	TotalSources     int `json:"total_sources"`
	TotalTargets     int `json:"total_targets"`
	IndexedTargets   int `json:"indexed_targets"`
	Composite        int `json:"composite"`
	Multimatch       int `json:"multimatch"`
	Unmatched        int `json:"unmatched"`
	Skipped          int `json:"skipped"`
	Excluded         int `json:"excluded"`
	Warnings         int `json:"warnings"`
	UnclaimedTargets int `json:"unclaimed_targets"`
}

// Matched returns the number of results with a target
func (s Summary) Matched() int {
	return s.Composite + s.Multimatch
}

// Outcome is everything one Match call produces. Results and Skipped
// together account for every source record, in input order.
type Outcome struct {
	Results          []*MatchResult   `json:"results"`
	Skipped          []*SkippedRecord `json:"skipped"`
	Warnings         []Warning        `json:"warnings"`
	UnclaimedTargets []*models.Record `json:"-"`
	Summary          Summary          `json:"summary"`
}

// ByPass returns the results resolved by pass
func (o *Outcome) ByPass(pass MatchPass) []*MatchResult {
	var out []*MatchResult
	for _, r := range o.Results {
		if r.Pass == pass {
			out = append(out, r)
		}
	}
	return out
}

// NewMatchingEngine creates a matching engine over the active multimatch
// rules of rs. Rules sharing a source pattern are resolved here in declared
// order, so the rule a project hits never depends on map iteration.
func NewMatchingEngine(config *MatchingConfig, rs *models.RuleSet, builder *extract.KeyBuilder) (*MatchingEngine, error) {
	if config == nil {
		config = DefaultMatchingConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "matching", nil, err)
	}
	if builder == nil {
		return nil, errors.InternalError(errors.CodeInvalidState, "matching", fmt.Errorf("key builder is required"))
	}

	return &MatchingEngine{
		config:     config.Clone(),
		builder:    builder,
		resolver:   builder.Resolver(),
		multimatch: rs.OrderedMultimatch(),
		log:        logger.GetGlobalLogger().WithComponent("matcher"),
	}, nil
}

// WithLogger replaces the engine's logger
func (me *MatchingEngine) WithLogger(l logger.Logger) *MatchingEngine {
	if l != nil {
		me.log = l.WithComponent("matcher")
	}
	return me
}

// GetConfiguration returns a copy of the engine configuration
func (me *MatchingEngine) GetConfiguration() *MatchingConfig {
	return me.config.Clone()
}

// FindRule returns the first multimatch rule, in declared order, whose
// source pattern equals project
func (me *MatchingEngine) FindRule(project string) (*models.MultimatchRule, bool) {
	for _, rule := range me.multimatch {
		if rule.SourcePattern == project {
			return rule, true
		}
	}
	return nil, false
}

// prepared is the result of key building for one record
type prepared struct {
	m   *extract.Matchable
	err error
}

// prepareAll builds keys for records. With more than one worker the records
// are split over a bounded pool; results land in input order either way.
func (me *MatchingEngine) prepareAll(system models.System, records []*models.Record) []prepared {
	out := make([]prepared, len(records))

	progress := logger.NewProgressTracker(logger.ProgressConfig{
		Operation: "key building (" + string(system) + ")",
		Total:     int64(len(records)),
		Logger:    me.log,
	})
	defer progress.Complete()

	if me.config.Workers <= 1 || len(records) < 2 {
		for i, r := range records {
			m, err := me.builder.Prepare(system, r)
			out[i] = prepared{m: m, err: err}
			progress.Increment()
		}
		return out
	}

	semaphore := make(chan struct{}, me.config.Workers)
	var wg sync.WaitGroup

	for i, r := range records {
		wg.Add(1)
		semaphore <- struct{}{}

		go func(i int, r *models.Record) {
			defer wg.Done()
			defer func() { <-semaphore }()

			m, err := me.builder.Prepare(system, r)
			out[i] = prepared{m: m, err: err}
			progress.Increment()
		}(i, r)
	}

	wg.Wait()
	return out
}

// BuildIndex keys every target record and indexes it. Targets that cannot
// be keyed are left out and reported as warnings.
func (me *MatchingEngine) BuildIndex(targets []*models.Record) *TargetIndex {
	index := newTargetIndex()

	for i, p := range me.prepareAll(models.SystemPlanning, targets) {
		if p.err != nil {
			index.skip(targets[i], p.err)
			continue
		}

		pk := ""
		if me.config.EnableProjectIndex {
			person, perr := me.resolver.Value(models.SystemPlanning, me.config.PersonField, targets[i])
			project, jerr := me.resolver.Value(models.SystemPlanning, me.config.ProjectField, targets[i])
			if perr == nil && jerr == nil {
				pk = projectKey(person, project)
			}
		}
		index.add(p.m, pk)
	}

	for _, w := range index.Warnings() {
		me.log.WithFields(logger.Fields{"kind": w.Kind, "key": w.Key}).Warn(w.Message)
	}

	return index
}

// Match runs both passes. Every source record ends up either in
// Outcome.Results or in Outcome.Skipped, exactly once. The error return is
// reserved for broken invariants; data problems never fail a run.
func (me *MatchingEngine) Match(sources, targets []*models.Record) (*Outcome, error) {
	opLog := logger.NewOperationLogger("match", me.log).
		WithField("sources", len(sources)).
		WithField("targets", len(targets))

	index := me.BuildIndex(targets)
	opLog.Step("index built", logger.Fields{"keys": index.Size(), "warnings": len(index.Warnings())})

	outcome := &Outcome{
		Warnings: append([]Warning(nil), index.Warnings()...),
	}
	claimed := make(map[*models.Record]bool)

	for i, p := range me.prepareAll(models.SystemTimesheet, sources) {
		source := sources[i]
		if p.err != nil {
			if _, err := me.settle(newMachine(), EventFieldMissing); err != nil {
				return nil, err
			}
			outcome.Skipped = append(outcome.Skipped, &SkippedRecord{Source: source, Origin: source.Origin, Reason: p.err})
			me.log.WithField("origin", source.Origin).WithError(p.err).Warn("source record skipped")
			continue
		}

		result, skip, err := me.resolve(p.m, index)
		if err != nil {
			return nil, err
		}
		if skip != nil {
			outcome.Skipped = append(outcome.Skipped, skip)
			me.log.WithField("origin", source.Origin).Debug(skip.Reason.Error())
			continue
		}

		if result.Target != nil {
			claimed[result.Target] = true
		}
		outcome.Results = append(outcome.Results, result)
	}

	for _, entry := range index.Entries() {
		if !claimed[entry.Record] {
			outcome.UnclaimedTargets = append(outcome.UnclaimedTargets, entry.Record)
		}
	}

	outcome.Summary = me.calculateSummary(outcome, len(sources), len(targets), len(index.Entries()))
	if n := outcome.Summary.TotalSources; len(outcome.Results)+len(outcome.Skipped) != n {
		return nil, errors.InternalError(errors.CodeInvalidState, "matching",
			fmt.Errorf("%d results and %d skipped for %d sources", len(outcome.Results), len(outcome.Skipped), n))
	}

	opLog.Success(fmt.Sprintf("matched %d of %d source records (composite %d, multimatch %d, unmatched %d, skipped %d)",
		outcome.Summary.Matched(), outcome.Summary.TotalSources, outcome.Summary.Composite,
		outcome.Summary.Multimatch, outcome.Summary.Unmatched, outcome.Summary.Skipped))

	return outcome, nil
}

// resolve walks one keyed source record through the state table
func (me *MatchingEngine) resolve(m *extract.Matchable, index *TargetIndex) (*MatchResult, *SkippedRecord, error) {
	fsm := newMachine()
	record := m.Record

	person, _ := me.resolver.Value(models.SystemTimesheet, me.config.PersonField, record)
	if person != "" && me.config.IsExcluded(person) {
		if _, err := me.settle(fsm, EventExcluded); err != nil {
			return nil, nil, err
		}
		return nil, &SkippedRecord{
			Source: record,
			Origin: record.Origin,
			Reason: errors.ExcludedRecordError(string(models.SystemTimesheet), me.config.PersonField, person),
		}, nil
	}

	project, _ := me.resolver.Value(models.SystemTimesheet, me.config.ProjectField, record)
	result := &MatchResult{
		Source:    record,
		Origin:    record.Origin,
		SourceKey: m.Key,
		Person:    person,
		Client:    m.Client,
		Project:   project,
	}

	// Pass 1
	if target, ok := index.Lookup(m.Key); ok {
		if err := fsm.fire(EventKeyHit); err != nil {
			return nil, nil, err
		}
		me.claim(result, target, m.Key, fsm)
		return result, nil, nil
	}
	if err := fsm.fire(EventKeyMiss); err != nil {
		return nil, nil, err
	}

	// Pass 2
	if project != "" {
		if rule, ok := me.FindRule(project); ok {
			result.RuleID = rule.ID
			result.EffectiveKey = rule.TargetPattern
			if target, hit := me.lookupSubstituted(index, person, rule.TargetPattern); hit {
				if err := fsm.fire(EventRuleHit); err != nil {
					return nil, nil, err
				}
				me.claim(result, target, rule.TargetPattern, fsm)
				return result, nil, nil
			}
		}
	}

	if err := fsm.fire(EventRuleMiss); err != nil {
		return nil, nil, err
	}
	result.Pass = fsm.pass()
	return result, nil, nil
}

// lookupSubstituted tries the composite index, then the person and project
// index when it is enabled
func (me *MatchingEngine) lookupSubstituted(index *TargetIndex, person, key string) (*extract.Matchable, bool) {
	if target, ok := index.Lookup(key); ok {
		return target, true
	}
	if me.config.EnableProjectIndex && person != "" {
		return index.LookupProject(person, key)
	}
	return nil, false
}

func (me *MatchingEngine) claim(result *MatchResult, target *extract.Matchable, effective string, fsm *machine) {
	result.Target = target.Record
	result.TargetOrigin = target.Record.Origin
	result.TargetKey = target.Key
	if result.EffectiveKey == "" {
		result.EffectiveKey = effective
	}
	result.Pass = fsm.pass()
}

// settle fires an event that must end in Skipped
func (me *MatchingEngine) settle(fsm *machine, e Event) (State, error) {
	if err := fsm.fire(e); err != nil {
		return fsm.state, err
	}
	if fsm.state != StateSkipped {
		return fsm.state, errors.InternalError(errors.CodeInvalidState, "matching",
			fmt.Errorf("event %s ended in %s", e, fsm.state))
	}
	return fsm.state, nil
}

// calculateSummary calculates summary statistics for the outcome
func (me *MatchingEngine) calculateSummary(o *Outcome, sources, targets, indexed int) Summary {
	summary := Summary{
		TotalSources:     sources,
		TotalTargets:     targets,
		IndexedTargets:   indexed,
		Skipped:          len(o.Skipped),
		Warnings:         len(o.Warnings),
		UnclaimedTargets: len(o.UnclaimedTargets),
	}

	for _, r := range o.Results {
		switch r.Pass {
		case PassComposite:
			summary.Composite++
		case PassMultimatch:
			summary.Multimatch++
		default:
			summary.Unmatched++
		}
	}

	for _, s := range o.Skipped {
		if s.Excluded() {
			summary.Excluded++
		}
	}

	return summary
}
