// Package engine implements the compute pipeline that rebuilds derived
// financial metrics and risk triggers from the normalized reference tables.
// A run is a strictly sequential batch: line metrics are initialized, the
// three actual-cost aggregators fold in labor, material and billing events,
// the finalizer derives variance ratios, project financials are rolled up
// with RFI counters, health scores are assigned, and triggers are
// re-evaluated. Everything happens inside one transaction with a single
// commit at the end; derived tables are cleared and fully rebuilt, so a
// rerun over unchanged input produces identical rows.
package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/marginwatch/internal/model"
	"github.com/sells-group/marginwatch/internal/registry"
	"github.com/sells-group/marginwatch/internal/store"
)

// Engine orchestrates the compute pipeline.
type Engine struct {
	store store.Store
	rules registry.Rules
	now   func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithRules overrides the default trigger thresholds.
func WithRules(r registry.Rules) Option {
	return func(e *Engine) { e.rules = r }
}

// WithNow pins the run's reference time. Overdue-RFI evaluation and trigger
// dates derive from it; pinning it makes repeated runs byte-identical.
func WithNow(t time.Time) Option {
	return func(e *Engine) { e.now = func() time.Time { return t } }
}

// New creates an Engine with default rules and wall-clock time.
func New(st store.Store, opts ...Option) *Engine {
	e := &Engine{
		store: st,
		rules: registry.DefaultRules(),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// lineKey identifies one estimate line across tables.
type lineKey struct {
	projectID string
	lineID    string
}

// Run executes the full compute pipeline: all stages in fixed order inside
// one transaction, committed once at the end. Any storage failure aborts the
// run and rolls the transaction back.
func (e *Engine) Run(ctx context.Context) (*model.ComputeRun, error) {
	log := zap.L()
	started := time.Now().UTC()
	runDate := e.now().UTC()

	tx, err := e.store.Begin(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "engine: begin")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	run := &model.ComputeRun{
		ID:        uuid.New().String(),
		StartedAt: started,
	}
	log.Info("engine: starting compute run", zap.String("run_id", run.ID))

	track := func(name string, fn func() (int, error)) error {
		start := time.Now()
		n, err := fn()
		duration := time.Since(start).Milliseconds()
		run.Stages = append(run.Stages, model.StageResult{Name: name, DurationMS: duration})
		if err != nil {
			log.Error("engine: stage failed",
				zap.String("stage", name),
				zap.Int64("duration_ms", duration),
				zap.Error(err),
			)
			return eris.Wrapf(err, "engine: %s", name)
		}
		log.Info("engine: stage complete",
			zap.String("stage", name),
			zap.Int64("duration_ms", duration),
			zap.Int("rows", n),
		)
		return nil
	}

	var rfiCounters map[string]model.RFICounters

	if err := track("initialize_line_metrics", func() (int, error) {
		n, err := e.initializeLineMetrics(ctx, tx)
		run.Lines = n
		return n, err
	}); err != nil {
		return nil, err
	}

	// The three actual-cost aggregators are mutually independent; they run
	// here in a fixed order but any order would produce the same rows.
	if err := track("aggregate_labor", func() (int, error) {
		return e.aggregateLabor(ctx, tx)
	}); err != nil {
		return nil, err
	}
	if err := track("aggregate_materials", func() (int, error) {
		return e.aggregateMaterials(ctx, tx)
	}); err != nil {
		return nil, err
	}
	if err := track("aggregate_billing", func() (int, error) {
		return e.aggregateBilling(ctx, tx)
	}); err != nil {
		return nil, err
	}

	if err := track("finalize_line_metrics", func() (int, error) {
		return e.finalizeLineMetrics(ctx, tx)
	}); err != nil {
		return nil, err
	}

	if err := track("aggregate_rfis", func() (int, error) {
		counters, err := e.aggregateRFIs(ctx, tx, runDate)
		rfiCounters = counters
		return len(counters), err
	}); err != nil {
		return nil, err
	}

	if err := track("project_financials", func() (int, error) {
		n, err := e.computeProjectFinancials(ctx, tx, rfiCounters)
		run.Projects = n
		return n, err
	}); err != nil {
		return nil, err
	}

	if err := track("health_score", func() (int, error) {
		return e.scoreHealth(ctx, tx)
	}); err != nil {
		return nil, err
	}

	if err := track("evaluate_triggers", func() (int, error) {
		n, err := e.evaluateTriggers(ctx, tx, runDate)
		run.Triggers = n
		return n, err
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, eris.Wrap(err, "engine: commit")
	}
	run.FinishedAt = time.Now().UTC()

	// Audit bookkeeping is best-effort; the committed run stands either way.
	if err := e.store.RecordRun(ctx, *run); err != nil {
		log.Warn("engine: failed to record run", zap.Error(err))
	}

	log.Info("engine: compute run complete",
		zap.String("run_id", run.ID),
		zap.Int("lines", run.Lines),
		zap.Int("projects", run.Projects),
		zap.Int("triggers", run.Triggers),
	)
	return run, nil
}
