package reconciler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"

	"timesheet-reconciliation-service/internal/matcher"
	"timesheet-reconciliation-service/internal/models"
	"timesheet-reconciliation-service/internal/sources"
	"timesheet-reconciliation-service/pkg/errors"
	"timesheet-reconciliation-service/pkg/logger"
)

// Service runs one reconciliation between the Timesheet System and the
// Planning Database from a rules file and two record sources
type Service struct {
	config *Config
	log    logger.Logger

	progress *progressTracker
}

// Config holds configuration options for the reconciliation service
type Config struct {
	// Matching configures the two-pass matcher
	Matching *matcher.MatchingConfig

	// BaseCurrency is the currency converted amounts are expressed in
	BaseCurrency string

	// Hint options. HintThreshold is the largest normalized edit distance
	// between an unmatched key and a target key that still yields a hint.
	EnableHints   bool
	HintThreshold float64

	// MaxConcurrentFiles bounds concurrent reads inside a file source
	MaxConcurrentFiles int
}

// DefaultConfig returns a default configuration for the reconciliation service
func DefaultConfig() *Config {
	return &Config{
		Matching:           matcher.DefaultMatchingConfig(),
		BaseCurrency:       models.DefaultBaseCurrency,
		EnableHints:        true,
		HintThreshold:      0.25,
		MaxConcurrentFiles: 4,
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Matching == nil {
		return fmt.Errorf("matching configuration is required")
	}
	if err := c.Matching.Validate(); err != nil {
		return fmt.Errorf("invalid matching configuration: %w", err)
	}

	if len(strings.TrimSpace(c.BaseCurrency)) != 3 {
		return fmt.Errorf("base currency must be a three letter code, got %q", c.BaseCurrency)
	}

	if c.HintThreshold < 0 || c.HintThreshold > 1 {
		return fmt.Errorf("hint threshold must be between 0 and 1, got %v", c.HintThreshold)
	}

	if c.MaxConcurrentFiles <= 0 {
		return fmt.Errorf("max concurrent files must be positive, got %d", c.MaxConcurrentFiles)
	}

	return nil
}

// Request describes the inputs of one run
type Request struct {
	// RulesPath points at the mapping workbook (.xlsx) or YAML document
	RulesPath string

	// ClientMapPath optionally points at the ElapseIT to Vision client table
	ClientMapPath string

	Timesheet sources.RecordSource
	Planning  sources.RecordSource

	// Rates and Conversion are optional. When Conversion is set a converted
	// amount column is added to every Planning record.
	Rates      []models.RateEntry
	RatesAsOf  *time.Time
	Conversion *ConversionConfig
}

// Validate validates the reconciliation request
func (r *Request) Validate() error {
	if strings.TrimSpace(r.RulesPath) == "" {
		return errors.ConfigurationError(errors.CodeMissingConfig, "rules", nil, nil).
			WithSuggestion("Pass the mapping workbook or YAML rules file with --rules")
	}

	if r.Timesheet == nil {
		return errors.ConfigurationError(errors.CodeMissingConfig, "timesheet source", nil, nil)
	}

	if r.Planning == nil {
		return errors.ConfigurationError(errors.CodeMissingConfig, "planning source", nil, nil)
	}

	if r.Conversion != nil {
		if err := r.Conversion.Validate(); err != nil {
			return errors.ConfigurationError(errors.CodeInvalidConfig, "conversion", r.Conversion.AmountField, err)
		}
		if len(r.Rates) == 0 {
			return errors.ConfigurationError(errors.CodeMissingConfig, "exchange rates", nil, nil).
				WithSuggestion("Currency conversion needs an exchange rate file (--fx-file)")
		}
	}

	return nil
}

// Result contains the complete results of a run
type Result struct {
	RunID string `json:"run_id"`

	Summary *ResultSummary   `json:"summary"`
	Outcome *matcher.Outcome `json:"outcome"`

	Hints         []*Hint        `json:"hints,omitempty"`
	Discrepancies []*Discrepancy `json:"discrepancies,omitempty"`

	// Rates holds the rate into the base currency of every currency in the
	// rate table, when one was supplied
	Rates map[string]decimal.Decimal `json:"rates,omitempty"`

	ProcessingStats *ProcessingStats `json:"processing_stats,omitempty"`

	ProcessedAt time.Time     `json:"processed_at"`
	Duration    time.Duration `json:"duration"`

	metrics *prometheus.Registry
}

// ResultSummary provides a high-level overview of a run
type ResultSummary struct {
	TimesheetRecords int `json:"timesheet_records"`
	PlanningRecords  int `json:"planning_records"`

	Composite  int `json:"composite"`
	Multimatch int `json:"multimatch"`
	Unmatched  int `json:"unmatched"`
	Skipped    int `json:"skipped"`
	Excluded   int `json:"excluded"`

	Warnings         int `json:"warnings"`
	UnclaimedTargets int `json:"unclaimed_targets"`
	Hints            int `json:"hints"`
	ConversionIssues int `json:"conversion_issues"`

	// MatchRate is matched over matchable (not skipped) source records, in percent
	MatchRate float64 `json:"match_rate"`

	BaseCurrency string `json:"base_currency,omitempty"`
}

// Matched returns the number of source records that found a target
func (s *ResultSummary) Matched() int {
	return s.Composite + s.Multimatch
}

// ProcessingStats contains detailed processing statistics
type ProcessingStats struct {
	RuleCounts map[string]int `json:"rule_counts"`
	Sources    map[string]int `json:"sources"`

	ReadingTime         time.Duration `json:"reading_time"`
	ConversionTime      time.Duration `json:"conversion_time"`
	MatchingTime        time.Duration `json:"matching_time"`
	TotalProcessingTime time.Duration `json:"total_processing_time"`
	RecordsPerSecond    float64       `json:"records_per_second"`
	FXCacheEntries      int           `json:"fx_cache_entries"`
}

// Hint proposes the closest target key for an unmatched source record.
// Hints are for human review and never change a disposition.
type Hint struct {
	Origin          string  `json:"origin"`
	SourceKey       string  `json:"source_key"`
	CandidateKey    string  `json:"candidate_key"`
	CandidateOrigin string  `json:"candidate_origin"`
	Distance        int     `json:"distance"`
	Similarity      float64 `json:"similarity"`
}

// Discrepancy represents something in the run a reviewer should look at
type Discrepancy struct {
	Type        DiscrepancyType `json:"type"`
	Origin      string          `json:"origin,omitempty"`
	Key         string          `json:"key,omitempty"`
	Description string          `json:"description"`
	Severity    Severity        `json:"severity"`
}

// DiscrepancyType represents the type of discrepancy
type DiscrepancyType string

const (
	DiscrepancyUnmatchedSource  DiscrepancyType = "unmatched_source"
	DiscrepancyUnclaimedTarget  DiscrepancyType = "unclaimed_target"
	DiscrepancyDuplicateTarget  DiscrepancyType = "duplicate_target"
	DiscrepancyMissingField     DiscrepancyType = "missing_field"
	DiscrepancyConversionFailed DiscrepancyType = "conversion_failed"
)

// Severity represents the severity level of a discrepancy
type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityLow    Severity = "low"
	SeverityInfo   Severity = "info"
)

// NewService creates a new reconciliation service
func NewService(config *Config) (*Service, error) {
	if config == nil {
		config = DefaultConfig()
	}

	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "reconciler", nil, err)
	}

	return &Service{
		config:   config,
		log:      logger.GetGlobalLogger().WithComponent("reconciler"),
		progress: newProgressTracker(len(runSteps)),
	}, nil
}

// WithLogger replaces the service logger
func (s *Service) WithLogger(l logger.Logger) *Service {
	if l != nil {
		s.log = l.WithComponent("reconciler")
	}
	return s
}

// AddProgressCallback registers a function called after every run step
func (s *Service) AddProgressCallback(callback ProgressCallback) {
	s.progress.addCallback(callback)
}

// Progress returns a snapshot of the current or last run
func (s *Service) Progress() Progress {
	return s.progress.snapshot()
}

// GetConfiguration returns the current configuration
func (s *Service) GetConfiguration() *Config {
	return s.config
}

// UpdateConfiguration replaces the configuration for later runs
func (s *Service) UpdateConfiguration(config *Config) error {
	if err := config.Validate(); err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "reconciler", nil, err)
	}

	s.config = config
	return nil
}

// Run performs one complete reconciliation. Configuration problems abort the
// run before any record is read; record level problems end up in the result.
func (s *Service) Run(ctx context.Context, request *Request) (*Result, error) {
	if request == nil {
		return nil, errors.ConfigurationError(errors.CodeMissingConfig, "request", nil, nil)
	}
	if err := request.Validate(); err != nil {
		return nil, err
	}

	startTime := time.Now()
	runID := uuid.NewString()
	log := s.log.WithField("run_id", runID)
	opLog := logger.NewOperationLogger("reconcile", log)
	s.progress.start(runID, startTime)

	result := &Result{
		RunID:           runID,
		ProcessedAt:     startTime,
		Summary:         &ResultSummary{},
		ProcessingStats: &ProcessingStats{Sources: make(map[string]int)},
	}

	// Step 1: Load and validate the rule set, build the engine
	eng, err := s.buildEngine(ctx, request, log, result.ProcessingStats)
	if err != nil {
		opLog.Error(err, "rules could not be loaded")
		return nil, err
	}
	s.progress.advance(stepLoadRules)

	// Step 2: Read both systems
	readStart := time.Now()
	timesheet, err := s.readRecords(ctx, request.Timesheet, result.ProcessingStats)
	if err != nil {
		return nil, err
	}
	s.progress.advance(stepReadTimesheet)

	planning, err := s.readRecords(ctx, request.Planning, result.ProcessingStats)
	if err != nil {
		return nil, err
	}
	result.ProcessingStats.ReadingTime = time.Since(readStart)
	s.progress.advance(stepReadPlanning)
	opLog.Step("records read", logger.Fields{"timesheet": len(timesheet), "planning": len(planning)})

	// Step 3: Optional currency conversion of Planning amounts
	conversionStart := time.Now()
	planning, issues, normalizer, err := s.convertAmounts(request, planning, log)
	if err != nil {
		return nil, err
	}
	result.ProcessingStats.ConversionTime = time.Since(conversionStart)
	if normalizer != nil {
		result.Rates = s.rateSnapshot(normalizer)
		result.ProcessingStats.FXCacheEntries = normalizer.CacheSize()
		result.Summary.BaseCurrency = normalizer.Base()
	}
	s.progress.advance(stepConvert)

	// Step 4: Match
	if err := ctx.Err(); err != nil {
		return nil, errors.ReconciliationError(errors.CodeMatchingFailed, "matching", err)
	}
	matchStart := time.Now()
	outcome, err := eng.Match(timesheet, planning)
	if err != nil {
		opLog.Error(err, "matching failed")
		return nil, err
	}
	result.Outcome = outcome
	result.ProcessingStats.MatchingTime = time.Since(matchStart)
	s.progress.advance(stepMatch)

	// Step 5: Hints and discrepancies
	if s.config.EnableHints {
		result.Hints = s.findHints(outcome, eng)
	}
	result.Discrepancies = s.analyzeDiscrepancies(outcome, result.Hints, issues)
	s.progress.advance(stepAnalyze)

	// Step 6: Build the final result
	result.Duration = time.Since(startTime)
	s.buildFinalResult(result, len(timesheet), len(planning), len(issues))
	result.metrics = newRunMetrics().observe(result)
	s.progress.advance(stepBuild)

	opLog.Success(fmt.Sprintf("reconciled %d timesheet records against %d planning records (%.1f%% matched)",
		len(timesheet), len(planning), result.Summary.MatchRate))

	return result, nil
}

// Metrics returns the per-run metrics registry, or nil before Run completed
func (r *Result) Metrics() *prometheus.Registry {
	return r.metrics
}

// WriteMetrics writes the run metrics in the Prometheus text format
func (r *Result) WriteMetrics(path string) error {
	if r.metrics == nil {
		return errors.InternalError(errors.CodeInvalidState, "write metrics", fmt.Errorf("result has no metrics"))
	}
	if err := prometheus.WriteToTextfile(path, r.metrics); err != nil {
		return errors.FileError(errors.CodeFilePermission, path, err)
	}
	return nil
}
