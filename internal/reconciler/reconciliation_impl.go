package reconciler

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"

	"timesheet-reconciliation-service/internal/currency"
	"timesheet-reconciliation-service/internal/extract"
	"timesheet-reconciliation-service/internal/mapping"
	"timesheet-reconciliation-service/internal/matcher"
	"timesheet-reconciliation-service/internal/models"
	"timesheet-reconciliation-service/internal/sources"
	"timesheet-reconciliation-service/pkg/errors"
	"timesheet-reconciliation-service/pkg/logger"
)

// engine bundles the matcher with the key builder it was built on
type engine struct {
	*matcher.MatchingEngine
	builder *extract.KeyBuilder
}

// buildEngine loads the rule set, checks the cross-rule constraints and
// compiles the extractor, key builder and matcher. Any failure here is fatal.
func (s *Service) buildEngine(ctx context.Context, request *Request, log logger.Logger, stats *ProcessingStats) (*engine, error) {
	store, err := mapping.Open(request.RulesPath)
	if err != nil {
		return nil, err
	}

	rs, err := store.Load(ctx)
	if err != nil {
		return nil, err
	}

	if err := mapping.ValidateRuleSet(rs); err != nil {
		return nil, err
	}
	stats.RuleCounts = rs.Counts()
	log.WithFields(logger.Fields{
		"source": store.Source(),
		"rules":  stats.RuleCounts,
	}).Info("rule set loaded")

	var opts []extract.KeyOption
	if request.ClientMapPath != "" {
		clientMap, err := mapping.LoadClientMap(ctx, request.ClientMapPath)
		if err != nil {
			return nil, err
		}
		opts = append(opts, extract.WithClientMap(clientMap))
		log.WithField("entries", len(clientMap)).Info("client map loaded")
	}

	extractor, err := extract.NewClientExtractor(rs)
	if err != nil {
		return nil, err
	}

	builder, err := extract.NewKeyBuilder(rs, extractor, opts...)
	if err != nil {
		return nil, err
	}

	me, err := matcher.NewMatchingEngine(s.config.Matching, rs, builder)
	if err != nil {
		return nil, err
	}

	return &engine{MatchingEngine: me.WithLogger(log), builder: builder}, nil
}

// readRecords pulls every record out of source
func (s *Service) readRecords(ctx context.Context, source sources.RecordSource, stats *ProcessingStats) ([]*models.Record, error) {
	records, err := source.Records(ctx)
	if err != nil {
		return nil, err
	}

	stats.Sources[source.Describe()] = len(records)
	s.log.WithFields(logger.Fields{
		"source":  source.Describe(),
		"records": len(records),
	}).Debug("source read")

	return records, nil
}

// convertAmounts adds the converted amount column to Planning records when
// the request asks for it. Without a conversion the records pass through.
func (s *Service) convertAmounts(
	request *Request,
	planning []*models.Record,
	log logger.Logger,
) ([]*models.Record, []*ConversionIssue, *currency.Normalizer, error) {

	if len(request.Rates) == 0 {
		return planning, nil, nil, nil
	}

	table, err := currency.NewTable(s.config.BaseCurrency, request.Rates)
	if err != nil {
		return nil, nil, nil, err
	}
	if request.RatesAsOf != nil {
		if table, err = table.AsOf(*request.RatesAsOf); err != nil {
			return nil, nil, nil, err
		}
	}

	normalizer := currency.NewNormalizer(table).WithLogger(log)
	if request.Conversion == nil {
		return planning, nil, normalizer, nil
	}

	converter := NewCurrencyConverter(request.Conversion, normalizer).WithLogger(log)
	converted, issues := converter.Apply(planning)

	stats := converter.GetStatistics()
	log.WithFields(logger.Fields{
		"column":    converter.Column(),
		"converted": stats.Converted,
		"empty":     stats.Empty,
		"failed":    stats.Failed,
	}).Info("planning amounts converted")

	return converted, issues, normalizer, nil
}

// rateSnapshot resolves every table currency into the base currency
func (s *Service) rateSnapshot(n *currency.Normalizer) map[string]decimal.Decimal {
	rates := make(map[string]decimal.Decimal)
	for _, code := range n.Currencies() {
		rate, err := n.Rate(code, n.Base())
		if err != nil {
			s.log.WithError(err).WithField("currency", code).Warn("rate not resolvable")
			continue
		}
		rates[code] = rate
	}
	return rates
}

type hintCandidate struct {
	key    string
	folded string
	origin string
}

// findHints pairs each unmatched source record with the closest key among
// the Planning records nobody claimed, when that key is close enough
func (s *Service) findHints(outcome *matcher.Outcome, e *engine) []*Hint {
	fold := cases.Fold()
	candidates := make([]hintCandidate, 0, len(outcome.UnclaimedTargets))
	for _, r := range outcome.UnclaimedTargets {
		key, err := e.builder.Build(models.SystemPlanning, r)
		if err != nil {
			continue
		}
		candidates = append(candidates, hintCandidate{key: key, folded: fold.String(key), origin: r.Origin})
	}
	if len(candidates) == 0 {
		return nil
	}

	var hints []*Hint
	for _, result := range outcome.ByPass(matcher.PassUnmatched) {
		folded := fold.String(result.SourceKey)

		best, bestDistance := -1, 0
		for i, c := range candidates {
			d := levenshtein.ComputeDistance(folded, c.folded)
			if best < 0 || d < bestDistance {
				best, bestDistance = i, d
			}
		}

		// Distance and length both count runes of the folded keys
		longest := max(utf8.RuneCountInString(folded), utf8.RuneCountInString(candidates[best].folded))
		if longest == 0 {
			continue
		}
		ratio := float64(bestDistance) / float64(longest)
		if ratio > s.config.HintThreshold {
			continue
		}

		hints = append(hints, &Hint{
			Origin:          result.Origin,
			SourceKey:       result.SourceKey,
			CandidateKey:    candidates[best].key,
			CandidateOrigin: candidates[best].origin,
			Distance:        bestDistance,
			Similarity:      1 - ratio,
		})
	}

	return hints
}

// analyzeDiscrepancies lists everything a reviewer should follow up on
func (s *Service) analyzeDiscrepancies(
	outcome *matcher.Outcome,
	hints []*Hint,
	issues []*ConversionIssue,
) []*Discrepancy {

	hinted := make(map[string]*Hint, len(hints))
	for _, h := range hints {
		hinted[h.Origin] = h
	}

	var discrepancies []*Discrepancy

	for _, r := range outcome.ByPass(matcher.PassUnmatched) {
		d := &Discrepancy{
			Type:        DiscrepancyUnmatchedSource,
			Origin:      r.Origin,
			Key:         r.SourceKey,
			Description: fmt.Sprintf("no planning record for key %s", r.SourceKey),
			Severity:    SeverityHigh,
		}
		if h, ok := hinted[r.Origin]; ok {
			d.Description += fmt.Sprintf(" (closest: %s)", h.CandidateKey)
			d.Severity = SeverityMedium
		}
		discrepancies = append(discrepancies, d)
	}

	for _, skip := range outcome.Skipped {
		if skip.Excluded() {
			continue
		}
		discrepancies = append(discrepancies, &Discrepancy{
			Type:        DiscrepancyMissingField,
			Origin:      skip.Origin,
			Description: skip.Reason.Error(),
			Severity:    SeverityMedium,
		})
	}

	for _, w := range outcome.Warnings {
		d := &Discrepancy{
			Key:         w.Key,
			Description: w.Message,
		}
		if w.Dropped != nil {
			d.Origin = w.Dropped.Origin
		}
		switch w.Kind {
		case matcher.WarningTargetSkipped:
			d.Type, d.Severity = DiscrepancyMissingField, SeverityLow
		default:
			d.Type, d.Severity = DiscrepancyDuplicateTarget, SeverityMedium
		}
		discrepancies = append(discrepancies, d)
	}

	for _, r := range outcome.UnclaimedTargets {
		discrepancies = append(discrepancies, &Discrepancy{
			Type:        DiscrepancyUnclaimedTarget,
			Origin:      r.Origin,
			Description: "planning record not claimed by any timesheet record",
			Severity:    SeverityInfo,
		})
	}

	for _, issue := range issues {
		discrepancies = append(discrepancies, &Discrepancy{
			Type:        DiscrepancyConversionFailed,
			Origin:      issue.Origin,
			Description: issue.Reason.Error(),
			Severity:    s.conversionSeverity(issue),
		})
	}

	return discrepancies
}

// conversionSeverity ranks a missing rate above a malformed amount
func (s *Service) conversionSeverity(issue *ConversionIssue) Severity {
	if errors.HasCode(issue.Reason, errors.CodeRateNotFound) {
		return SeverityHigh
	}
	return SeverityMedium
}

// buildFinalResult fills the summary and processing stats from the outcome
func (s *Service) buildFinalResult(result *Result, timesheet, planning, conversionIssues int) {
	o := result.Outcome.Summary
	summary := result.Summary

	summary.TimesheetRecords = timesheet
	summary.PlanningRecords = planning
	summary.Composite = o.Composite
	summary.Multimatch = o.Multimatch
	summary.Unmatched = o.Unmatched
	summary.Skipped = o.Skipped
	summary.Excluded = o.Excluded
	summary.Warnings = o.Warnings
	summary.UnclaimedTargets = o.UnclaimedTargets
	summary.Hints = len(result.Hints)
	summary.ConversionIssues = conversionIssues

	if matchable := o.Composite + o.Multimatch + o.Unmatched; matchable > 0 {
		summary.MatchRate = float64(summary.Matched()) / float64(matchable) * 100
	}

	stats := result.ProcessingStats
	stats.TotalProcessingTime = result.Duration
	if seconds := result.Duration.Seconds(); seconds > 0 {
		stats.RecordsPerSecond = float64(timesheet+planning) / seconds
	}
}
