package engine

import (
	"context"

	"github.com/sells-group/marginwatch/internal/model"
	"github.com/sells-group/marginwatch/internal/store"
)

// overtimeMultiplier is the fixed 1.5x overtime pay policy.
const overtimeMultiplier = 1.5

// laborEventCost is the burdened cost of a single labor log entry.
func laborEventCost(e model.LaborEvent) float64 {
	return (e.HoursStandard + overtimeMultiplier*e.HoursOvertime) * e.HourlyRate * e.BurdenMultiplier
}

// aggregateLabor folds labor events into per-line actual labor cost. Events
// referencing a line with no metrics row are ignored; the aggregator never
// creates rows.
func (e *Engine) aggregateLabor(ctx context.Context, tx store.Tx) (int, error) {
	known, err := knownLines(ctx, tx)
	if err != nil {
		return 0, err
	}
	events, err := tx.ListLaborEvents(ctx)
	if err != nil {
		return 0, err
	}

	totals := make(map[lineKey]float64)
	for _, ev := range events {
		k := lineKey{ev.ProjectID, ev.LineID}
		if !known[k] {
			continue
		}
		totals[k] += laborEventCost(ev)
	}

	for k, cost := range totals {
		if err := tx.UpdateLineLabor(ctx, k.projectID, k.lineID, cost); err != nil {
			return 0, err
		}
	}
	return len(totals), nil
}

// knownLines returns the set of (project, line) keys present in the derived
// line-metrics table.
func knownLines(ctx context.Context, tx store.Tx) (map[lineKey]bool, error) {
	metrics, err := tx.ListLineMetrics(ctx)
	if err != nil {
		return nil, err
	}
	known := make(map[lineKey]bool, len(metrics))
	for _, m := range metrics {
		known[lineKey{m.ProjectID, m.LineID}] = true
	}
	return known, nil
}
