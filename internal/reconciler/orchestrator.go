// Package reconciler runs a complete reconciliation between the Timesheet
// System and the Planning Database.
//
// A run loads the mapping rules, reads both systems, optionally converts
// Planning amounts into the base currency, matches with the two-pass matcher
// and finally derives near-miss hints, discrepancies and metrics.
//
// Example usage:
//
//	service, err := reconciler.NewService(reconciler.DefaultConfig())
//	service.AddProgressCallback(func(p reconciler.Progress) {
//		fmt.Printf("Progress: %.1f%% - %s\n", p.PercentComplete, p.CurrentStep)
//	})
//
//	result, err := service.Run(ctx, &reconciler.Request{
//		RulesPath: "mapping_config.xlsx",
//		Timesheet: sources.NewFileSource(reader, 4, "elapseit.csv"),
//		Planning:  sources.NewPlanningDBReader(db, sources.DefaultPlanningQuery),
//	})
package reconciler

import (
	"sync"
	"time"
)

// Run steps in execution order
const (
	stepLoadRules     = "load rules"
	stepReadTimesheet = "read timesheet records"
	stepReadPlanning  = "read planning records"
	stepConvert       = "convert currency"
	stepMatch         = "match"
	stepAnalyze       = "analyze"
	stepBuild         = "build result"
)

var runSteps = []string{
	stepLoadRules,
	stepReadTimesheet,
	stepReadPlanning,
	stepConvert,
	stepMatch,
	stepAnalyze,
	stepBuild,
}

// Progress tracks the progress of a run
type Progress struct {
	RunID              string        `json:"run_id"`
	TotalSteps         int           `json:"total_steps"`
	CompletedSteps     int           `json:"completed_steps"`
	CurrentStep        string        `json:"current_step"`
	PercentComplete    float64       `json:"percent_complete"`
	StartTime          time.Time     `json:"start_time"`
	ElapsedTime        time.Duration `json:"elapsed_time"`
	EstimatedRemaining time.Duration `json:"estimated_remaining"`
}

// ProgressCallback is called after each completed step with a snapshot
type ProgressCallback func(Progress)

type progressTracker struct {
	mu        sync.RWMutex
	current   Progress
	callbacks []ProgressCallback
}

func newProgressTracker(totalSteps int) *progressTracker {
	return &progressTracker{current: Progress{TotalSteps: totalSteps}}
}

func (pt *progressTracker) addCallback(cb ProgressCallback) {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	pt.callbacks = append(pt.callbacks, cb)
}

func (pt *progressTracker) start(runID string, at time.Time) {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	pt.current = Progress{
		RunID:      runID,
		TotalSteps: pt.current.TotalSteps,
		StartTime:  at,
	}
}

// advance marks step as completed and notifies callbacks outside the lock
func (pt *progressTracker) advance(step string) {
	pt.mu.Lock()
	p := &pt.current
	p.CurrentStep = step
	p.CompletedSteps++
	p.ElapsedTime = time.Since(p.StartTime)
	p.PercentComplete = float64(p.CompletedSteps) / float64(p.TotalSteps) * 100

	p.EstimatedRemaining = 0
	if p.CompletedSteps > 0 && p.CompletedSteps < p.TotalSteps {
		perStep := p.ElapsedTime / time.Duration(p.CompletedSteps)
		p.EstimatedRemaining = perStep * time.Duration(p.TotalSteps-p.CompletedSteps)
	}

	snapshot := *p
	callbacks := append([]ProgressCallback(nil), pt.callbacks...)
	pt.mu.Unlock()

	for _, cb := range callbacks {
		cb(snapshot)
	}
}

func (pt *progressTracker) snapshot() Progress {
	pt.mu.RLock()
	defer pt.mu.RUnlock()
	return pt.current
}
