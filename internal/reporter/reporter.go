// Package reporter renders reconciliation results.
//
// Supported output formats:
//   - Console: sectioned plain text for terminal display
//   - JSON: structured data for programmatic consumption
//   - CSV: one row per source record disposition, for spreadsheets
//
// Example usage:
//
//	generator, err := reporter.NewReportGenerator(&reporter.ReportConfig{Format: reporter.FormatCSV})
//	err = generator.GenerateReport(result, os.Stdout)
package reporter

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"timesheet-reconciliation-service/internal/matcher"
	"timesheet-reconciliation-service/internal/reconciler"
)

// OutputFormat represents the supported report output formats
type OutputFormat string

const (
	FormatConsole OutputFormat = "console"
	FormatJSON    OutputFormat = "json"
	FormatCSV     OutputFormat = "csv"
)

// IsValid checks if the output format is supported
func (f OutputFormat) IsValid() bool {
	switch f {
	case FormatConsole, FormatJSON, FormatCSV:
		return true
	default:
		return false
	}
}

// ReportConfig holds configuration options for report generation
type ReportConfig struct {
	Format OutputFormat `json:"format"`

	// Detail level options
	IncludeMatched         bool `json:"include_matched"`
	IncludeUnmatched       bool `json:"include_unmatched"`
	IncludeSkipped         bool `json:"include_skipped"`
	IncludeWarnings        bool `json:"include_warnings"`
	IncludeHints           bool `json:"include_hints"`
	IncludeDiscrepancies   bool `json:"include_discrepancies"`
	IncludeProcessingStats bool `json:"include_processing_stats"`

	// MaxListItems caps console lists; 0 prints everything
	MaxListItems int `json:"max_list_items"`

	// CSV options
	CSVDelimiter rune `json:"csv_delimiter"`
	CSVHeaders   bool `json:"csv_headers"`
}

// DefaultReportConfig returns a default report configuration
func DefaultReportConfig() *ReportConfig {
	return &ReportConfig{
		Format:                 FormatConsole,
		IncludeMatched:         false,
		IncludeUnmatched:       true,
		IncludeSkipped:         true,
		IncludeWarnings:        true,
		IncludeHints:           true,
		IncludeDiscrepancies:   false,
		IncludeProcessingStats: true,
		MaxListItems:           50,
		CSVDelimiter:           ',',
		CSVHeaders:             true,
	}
}

// Validate validates the report configuration
func (c *ReportConfig) Validate() error {
	if !c.Format.IsValid() {
		return fmt.Errorf("invalid output format: %s", c.Format)
	}

	if c.MaxListItems < 0 {
		return fmt.Errorf("max list items cannot be negative, got %d", c.MaxListItems)
	}

	if c.Format == FormatCSV && (c.CSVDelimiter == 0 || c.CSVDelimiter == '"' || c.CSVDelimiter == '\n') {
		return fmt.Errorf("invalid CSV delimiter %q", c.CSVDelimiter)
	}

	return nil
}

// CSVHeaders are the columns of the CSV report
var CSVHeaders = []string{
	"Disposition",
	"Pass",
	"Origin",
	"Source_Key",
	"Target_Origin",
	"Target_Key",
	"Person",
	"Client",
	"Project",
	"Rule_ID",
	"Reason",
}

// ReportGenerator generates reconciliation reports in various formats
type ReportGenerator struct {
	config *ReportConfig
}

// NewReportGenerator creates a new report generator with the specified configuration
func NewReportGenerator(config *ReportConfig) (*ReportGenerator, error) {
	if config == nil {
		config = DefaultReportConfig()
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid report configuration: %w", err)
	}

	return &ReportGenerator{
		config: config,
	}, nil
}

// GenerateReport writes a report of result to writer
func (rg *ReportGenerator) GenerateReport(result *reconciler.Result, writer io.Writer) error {
	if result == nil || result.Summary == nil || result.Outcome == nil {
		return fmt.Errorf("reconciliation result is incomplete")
	}

	switch rg.config.Format {
	case FormatConsole:
		return rg.generateConsoleReport(result, writer)
	case FormatJSON:
		return rg.generateJSONReport(result, writer)
	case FormatCSV:
		return rg.generateCSVReport(result, writer)
	default:
		return fmt.Errorf("unsupported output format: %s", rg.config.Format)
	}
}

// generateConsoleReport generates a human-readable console report
func (rg *ReportGenerator) generateConsoleReport(result *reconciler.Result, writer io.Writer) error {
	w := &errWriter{w: writer}

	w.printf("RECONCILIATION REPORT\n")
	w.printf("Run:                 %s\n", result.RunID)
	w.printf("Generated:           %s\n", result.ProcessedAt.Format(time.RFC3339))
	w.printf("Processing Duration: %v\n\n", result.Duration)

	w.printf("=== SUMMARY ===\n")
	rg.printSummaryTable(result.Summary, w)
	w.printf("\n")

	w.printf("=== MATCHED BY PASS ===\n")
	rg.printPassTable(result, w)
	w.printf("\n")

	if unmatched := result.Outcome.ByPass(matcher.PassUnmatched); rg.config.IncludeUnmatched && len(unmatched) > 0 {
		w.printf("=== UNMATCHED ===\n")
		rg.printResults(unmatched, w)
		w.printf("\n")
	}

	if rg.config.IncludeSkipped && len(result.Outcome.Skipped) > 0 {
		w.printf("=== SKIPPED ===\n")
		rg.printSkipped(result.Outcome.Skipped, w)
		w.printf("\n")
	}

	if rg.config.IncludeWarnings && len(result.Outcome.Warnings) > 0 {
		w.printf("=== WARNINGS ===\n")
		rg.printWarnings(result.Outcome.Warnings, w)
		w.printf("\n")
	}

	if rg.config.IncludeHints && len(result.Hints) > 0 {
		w.printf("=== HINTS ===\n")
		rg.printHints(result.Hints, w)
		w.printf("\n")
	}

	if rg.config.IncludeDiscrepancies && len(result.Discrepancies) > 0 {
		w.printf("=== DISCREPANCIES ===\n")
		rg.printDiscrepancies(result.Discrepancies, w)
	}

	if len(result.Rates) > 0 {
		w.printf("=== RATES ===\n")
		rg.printRates(result, w)
		w.printf("\n")
	}

	if rg.config.IncludeProcessingStats && result.ProcessingStats != nil {
		w.printf("=== PROCESSING STATISTICS ===\n")
		rg.printProcessingStats(result.ProcessingStats, w)
	}

	return w.err
}

// generateJSONReport generates a structured JSON report
func (rg *ReportGenerator) generateJSONReport(result *reconciler.Result, writer io.Writer) error {
	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")

	return encoder.Encode(rg.filterResultForOutput(result))
}

// generateCSVReport writes one row per source record disposition
func (rg *ReportGenerator) generateCSVReport(result *reconciler.Result, writer io.Writer) error {
	csvWriter := csv.NewWriter(writer)
	csvWriter.Comma = rg.config.CSVDelimiter

	if rg.config.CSVHeaders {
		if err := csvWriter.Write(CSVHeaders); err != nil {
			return fmt.Errorf("failed to write CSV headers: %w", err)
		}
	}

	hints := hintsByOrigin(result.Hints)
	for _, r := range result.Outcome.Results {
		if r.Matched() && !rg.config.IncludeMatched {
			continue
		}
		if !r.Matched() && !rg.config.IncludeUnmatched {
			continue
		}

		disposition := "matched"
		if !r.Matched() {
			disposition = "unmatched"
		}
		record := []string{
			disposition,
			r.Pass.String(),
			r.Origin,
			r.SourceKey,
			r.TargetOrigin,
			r.TargetKey,
			r.Person,
			r.Client,
			r.Project,
			r.RuleID,
			resultReason(r, hints[r.Origin]),
		}
		if err := csvWriter.Write(record); err != nil {
			return fmt.Errorf("failed to write result record: %w", err)
		}
	}

	if rg.config.IncludeSkipped {
		for _, s := range result.Outcome.Skipped {
			disposition := "skipped"
			if s.Excluded() {
				disposition = "excluded"
			}
			record := []string{disposition, "", s.Origin, "", "", "", "", "", "", "", s.Reason.Error()}
			if err := csvWriter.Write(record); err != nil {
				return fmt.Errorf("failed to write skipped record: %w", err)
			}
		}
	}

	csvWriter.Flush()
	return csvWriter.Error()
}

// resultReason explains a disposition in one cell
func resultReason(r *matcher.MatchResult, hint *reconciler.Hint) string {
	switch {
	case r.Pass == matcher.PassComposite:
		return "composite key found"
	case r.Pass == matcher.PassMultimatch:
		return fmt.Sprintf("rewritten by %s to %s", r.RuleID, r.EffectiveKey)
	case hint != nil:
		return fmt.Sprintf("no planning record found (closest: %s)", hint.CandidateKey)
	default:
		return "no planning record found"
	}
}

// Helper methods for console output formatting

func (rg *ReportGenerator) printSummaryTable(summary *reconciler.ResultSummary, w *errWriter) {
	matchable := summary.Matched() + summary.Unmatched

	w.printf("Timesheet Records: %d\n", summary.TimesheetRecords)
	w.printf("Planning Records:  %d\n", summary.PlanningRecords)
	w.printf("  Matched:   %d (%.1f%%)\n", summary.Matched(), rg.calculatePercentage(summary.Matched(), matchable))
	w.printf("  Unmatched: %d (%.1f%%)\n", summary.Unmatched, rg.calculatePercentage(summary.Unmatched, matchable))
	w.printf("  Skipped:   %d (%d excluded)\n", summary.Skipped, summary.Excluded)
	w.printf("Unclaimed Planning Records: %d\n", summary.UnclaimedTargets)
	w.printf("Warnings: %d, Hints: %d", summary.Warnings, summary.Hints)
	if summary.BaseCurrency != "" {
		w.printf(", Conversion Issues: %d", summary.ConversionIssues)
	}
	w.printf("\n")
}

func (rg *ReportGenerator) printPassTable(result *reconciler.Result, w *errWriter) {
	summary := result.Summary
	matched := summary.Matched()

	w.printf("Composite:  %d (%.1f%%)\n", summary.Composite, rg.calculatePercentage(summary.Composite, matched))
	w.printf("Multimatch: %d (%.1f%%)\n", summary.Multimatch, rg.calculatePercentage(summary.Multimatch, matched))

	if !rg.config.IncludeMatched {
		return
	}
	for _, pass := range []matcher.MatchPass{matcher.PassComposite, matcher.PassMultimatch} {
		results := result.Outcome.ByPass(pass)
		if len(results) == 0 {
			continue
		}
		w.printf("\n%s (%d):\n", cases.Title(language.English).String(pass.String()), len(results))
		rg.printResults(results, w)
	}
}

func (rg *ReportGenerator) printResults(results []*matcher.MatchResult, w *errWriter) {
	sorted := append([]*matcher.MatchResult(nil), results...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].SourceKey < sorted[j].SourceKey
	})

	for i, r := range sorted {
		if rg.truncated(i, len(sorted), w) {
			break
		}
		w.printf("  %d. %s [%s]", i+1, r.SourceKey, r.Origin)
		if r.Project != "" {
			w.printf(" project %s", r.Project)
		}
		if r.Matched() {
			w.printf(" -> %s [%s]", r.TargetKey, r.TargetOrigin)
		}
		if r.RuleID != "" {
			w.printf(" via %s", r.RuleID)
		}
		w.printf("\n")
	}
}

func (rg *ReportGenerator) printSkipped(skipped []*matcher.SkippedRecord, w *errWriter) {
	var excluded, missing []*matcher.SkippedRecord
	for _, s := range skipped {
		if s.Excluded() {
			excluded = append(excluded, s)
		} else {
			missing = append(missing, s)
		}
	}

	if len(missing) > 0 {
		w.printf("Missing Fields (%d):\n", len(missing))
		for i, s := range missing {
			if rg.truncated(i, len(missing), w) {
				break
			}
			w.printf("  %d. [%s] %v\n", i+1, s.Origin, s.Reason)
		}
	}
	if len(excluded) > 0 {
		w.printf("Excluded (%d)\n", len(excluded))
	}
}

func (rg *ReportGenerator) printWarnings(warnings []matcher.Warning, w *errWriter) {
	for i, warning := range warnings {
		if rg.truncated(i, len(warnings), w) {
			break
		}
		w.printf("  - %s: %s\n", warning.Kind, warning.Message)
	}
}

func (rg *ReportGenerator) printHints(hints []*reconciler.Hint, w *errWriter) {
	for i, h := range hints {
		if rg.truncated(i, len(hints), w) {
			break
		}
		w.printf("  %d. %s [%s] looks like %s [%s] (similarity %.0f%%)\n",
			i+1, h.SourceKey, h.Origin, h.CandidateKey, h.CandidateOrigin, h.Similarity*100)
	}
}

func (rg *ReportGenerator) printDiscrepancies(discrepancies []*reconciler.Discrepancy, w *errWriter) {
	w.printf("Total Discrepancies Found: %d\n\n", len(discrepancies))

	severityGroups := make(map[reconciler.Severity][]*reconciler.Discrepancy)
	for _, disc := range discrepancies {
		severityGroups[disc.Severity] = append(severityGroups[disc.Severity], disc)
	}

	severities := []reconciler.Severity{
		reconciler.SeverityHigh,
		reconciler.SeverityMedium,
		reconciler.SeverityLow,
		reconciler.SeverityInfo,
	}

	for _, severity := range severities {
		discs := severityGroups[severity]
		if len(discs) == 0 {
			continue
		}

		w.printf("%s Severity (%d):\n", strings.ToUpper(string(severity)), len(discs))
		for i, disc := range discs {
			if rg.truncated(i, len(discs), w) {
				break
			}
			w.printf("  - %s: %s", disc.Type, disc.Description)
			if disc.Origin != "" {
				w.printf(" [%s]", disc.Origin)
			}
			w.printf("\n")
		}
		w.printf("\n")
	}
}

func (rg *ReportGenerator) printRates(result *reconciler.Result, w *errWriter) {
	codes := make([]string, 0, len(result.Rates))
	for code := range result.Rates {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	for _, code := range codes {
		w.printf("  1 %s = %s %s\n", code, result.Rates[code].String(), result.Summary.BaseCurrency)
	}
}

func (rg *ReportGenerator) printProcessingStats(stats *reconciler.ProcessingStats, w *errWriter) {
	sources := make([]string, 0, len(stats.Sources))
	for name := range stats.Sources {
		sources = append(sources, name)
	}
	sort.Strings(sources)
	for _, name := range sources {
		w.printf("Source %s: %d records\n", name, stats.Sources[name])
	}

	w.printf("Records/Second:       %.2f\n", stats.RecordsPerSecond)
	w.printf("Total Processing:     %v\n", stats.TotalProcessingTime)
	w.printf("Reading Time:         %v\n", stats.ReadingTime)
	w.printf("Conversion Time:      %v\n", stats.ConversionTime)
	w.printf("Matching Time:        %v\n", stats.MatchingTime)
	if stats.FXCacheEntries > 0 {
		w.printf("FX Cache Entries:     %d\n", stats.FXCacheEntries)
	}
}

// truncated prints the overflow line once the list limit is reached
func (rg *ReportGenerator) truncated(i, total int, w *errWriter) bool {
	if rg.config.MaxListItems == 0 || i < rg.config.MaxListItems {
		return false
	}
	w.printf("  ... and %d more\n", total-i)
	return true
}

// Helper methods

func (rg *ReportGenerator) calculatePercentage(part, total int) float64 {
	if total == 0 {
		return 0.0
	}
	return float64(part) / float64(total) * 100.0
}

type skippedView struct {
	Origin   string `json:"origin"`
	Excluded bool   `json:"excluded"`
	Reason   string `json:"reason"`
}

func (rg *ReportGenerator) filterResultForOutput(result *reconciler.Result) map[string]interface{} {
	output := map[string]interface{}{
		"run_id":       result.RunID,
		"summary":      result.Summary,
		"processed_at": result.ProcessedAt,
		"duration":     result.Duration.String(),
	}

	var results []*matcher.MatchResult
	for _, r := range result.Outcome.Results {
		if (r.Matched() && rg.config.IncludeMatched) || (!r.Matched() && rg.config.IncludeUnmatched) {
			results = append(results, r)
		}
	}
	if results != nil {
		output["results"] = results
	}

	if rg.config.IncludeSkipped && len(result.Outcome.Skipped) > 0 {
		skipped := make([]skippedView, len(result.Outcome.Skipped))
		for i, s := range result.Outcome.Skipped {
			skipped[i] = skippedView{Origin: s.Origin, Excluded: s.Excluded(), Reason: s.Reason.Error()}
		}
		output["skipped"] = skipped
	}

	if rg.config.IncludeWarnings && len(result.Outcome.Warnings) > 0 {
		output["warnings"] = result.Outcome.Warnings
	}

	if rg.config.IncludeHints && result.Hints != nil {
		output["hints"] = result.Hints
	}

	if rg.config.IncludeDiscrepancies && result.Discrepancies != nil {
		output["discrepancies"] = result.Discrepancies
	}

	if len(result.Rates) > 0 {
		output["rates"] = result.Rates
	}

	if rg.config.IncludeProcessingStats && result.ProcessingStats != nil {
		output["processing_stats"] = result.ProcessingStats
	}

	return output
}

func hintsByOrigin(hints []*reconciler.Hint) map[string]*reconciler.Hint {
	out := make(map[string]*reconciler.Hint, len(hints))
	for _, h := range hints {
		out[h.Origin] = h
	}
	return out
}

// errWriter keeps the first write error so printing code stays linear
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...interface{}) {
	if ew.err != nil {
		return
	}
	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}

// UpdateConfiguration updates the report generator configuration
func (rg *ReportGenerator) UpdateConfiguration(config *ReportConfig) error {
	if err := config.Validate(); err != nil {
		return fmt.Errorf("invalid report configuration: %w", err)
	}

	rg.config = config
	return nil
}

// GetConfiguration returns the current configuration
func (rg *ReportGenerator) GetConfiguration() *ReportConfig {
	return rg.config
}
