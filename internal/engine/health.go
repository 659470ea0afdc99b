package engine

import (
	"context"

	"github.com/sells-group/marginwatch/internal/model"
	"github.com/sells-group/marginwatch/internal/store"
)

// HealthScore computes a project's 0..100 health score and its status band
// from an already-rolled-up metrics row. Six penalty terms are subtracted
// from a perfect 100, each individually capped so no single signal can sink
// the score alone. Ratio terms that divide by contract value or line count
// contribute nothing when the denominator is non-positive.
func HealthScore(m model.ProjectMetrics) (float64, model.HealthStatus) {
	score := 100.0

	score -= capped(m.MarginErosionPct*120, 40)

	if m.ContractValue > 0 {
		score -= capped(m.PendingCOExposure/m.ContractValue*200, 20)
		score -= capped(m.BillingLag/m.ContractValue*100, 20)
	}

	score -= capped(float64(m.OverdueRFIs)*0.75, 10)
	score -= capped(float64(m.OrphanRFIs)*1.2, 8)

	if m.TotalLines > 0 {
		score -= capped(float64(m.ExceedanceLines)/float64(m.TotalLines)*30, 12)
	}

	if score < 0 {
		score = 0
	} else if score > 100 {
		score = 100
	}

	switch {
	case score < 50:
		return score, model.StatusRed
	case score < 80:
		return score, model.StatusYellow
	default:
		return score, model.StatusGreen
	}
}

// capped clamps a penalty term to [0, limit].
func capped(v, limit float64) float64 {
	if v < 0 {
		return 0
	}
	if v > limit {
		return limit
	}
	return v
}

// scoreHealth writes a health score and status back onto every project
// metrics row produced by the financials stage.
func (e *Engine) scoreHealth(ctx context.Context, tx store.Tx) (int, error) {
	metrics, err := tx.ListProjectMetrics(ctx)
	if err != nil {
		return 0, err
	}
	for _, m := range metrics {
		score, status := HealthScore(m)
		if err := tx.UpdateProjectHealth(ctx, m.ProjectID, score, status); err != nil {
			return 0, err
		}
	}
	return len(metrics), nil
}
