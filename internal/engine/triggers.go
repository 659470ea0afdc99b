package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/sells-group/marginwatch/internal/model"
	"github.com/sells-group/marginwatch/internal/store"
)

// ClassifySeverity grades how far a measured value exceeds its threshold.
// A value at twice the threshold or more is HIGH, 1.25x or more is MEDIUM,
// anything else LOW. A zero threshold always classifies LOW.
func ClassifySeverity(value, threshold float64) model.Severity {
	var ratio float64
	if threshold != 0 {
		ratio = value / threshold
	}
	switch {
	case ratio >= 2:
		return model.SeverityHigh
	case ratio >= 1.25:
		return model.SeverityMedium
	default:
		return model.SeverityLow
	}
}

// evaluateTriggers rebuilds the triggers table from the freshly computed
// metrics. Trigger IDs are numbered per project starting at 1, in a stable
// order: line overruns first (by line number), then the three project-level
// rules. Re-running over unchanged inputs therefore reproduces identical IDs.
func (e *Engine) evaluateTriggers(ctx context.Context, tx store.Tx, runDate time.Time) (int, error) {
	if err := tx.ClearTriggers(ctx); err != nil {
		return 0, err
	}
	date := runDate.Format("2006-01-02")

	projects, err := tx.ListProjectMetrics(ctx)
	if err != nil {
		return 0, err
	}
	lineMetrics, err := tx.ListLineMetrics(ctx)
	if err != nil {
		return 0, err
	}

	// Line metrics arrive ordered by project and line number.
	linesByProject := make(map[string][]model.LineMetrics)
	for _, m := range lineMetrics {
		linesByProject[m.ProjectID] = append(linesByProject[m.ProjectID], m)
	}

	var all []model.Trigger
	for _, p := range projects {
		idx := 0
		emit := func(t model.Trigger) {
			idx++
			t.TriggerID = fmt.Sprintf("%s-TRG-%03d", p.ProjectID, idx)
			t.ProjectID = p.ProjectID
			t.Date = date
			t.Severity = ClassifySeverity(t.Value, t.Threshold)
			all = append(all, t)
		}

		for _, m := range linesByProject[p.ProjectID] {
			if m.OverrunPct > e.rules.LineOverrunPct {
				emit(model.Trigger{
					Type:          model.TriggerLineOverrun,
					Value:         m.OverrunPct,
					Threshold:     e.rules.LineOverrunPct,
					Details:       map[string]any{"overrun_amount": m.OverrunAmount},
					AffectedLines: []string{m.LineID},
				})
			}
		}

		pendingPct := safeRatio(p.PendingCOExposure, p.ContractValue)
		if pendingPct > e.rules.PendingCORatio {
			emit(model.Trigger{
				Type:      model.TriggerPendingCOExposure,
				Value:     pendingPct,
				Threshold: e.rules.PendingCORatio,
				Details:   map[string]any{"pending_co_exposure": p.PendingCOExposure},
			})
		}

		billingPct := safeRatio(p.BillingLag, p.ContractValue)
		if billingPct > e.rules.BillingLagRatio {
			emit(model.Trigger{
				Type:      model.TriggerBillingLag,
				Value:     billingPct,
				Threshold: e.rules.BillingLagRatio,
				Details:   map[string]any{"billing_lag": p.BillingLag},
			})
		}

		if p.OrphanRFIs > 0 {
			emit(model.Trigger{
				Type:      model.TriggerOrphanRFI,
				Value:     float64(p.OrphanRFIs),
				Threshold: e.rules.OrphanRFIThreshold,
				Details:   map[string]any{"orphan_rfis": p.OrphanRFIs},
			})
		}
	}

	if err := tx.InsertTriggers(ctx, all); err != nil {
		return 0, err
	}
	return len(all), nil
}
