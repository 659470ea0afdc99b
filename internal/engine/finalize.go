package engine

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/sells-group/marginwatch/internal/model"
	"github.com/sells-group/marginwatch/internal/store"
)

// finalizeLineMetrics folds rejected change-order exposure into each line
// and derives the variance and overrun ratios. It runs once all three
// actual-cost aggregators have completed.
func (e *Engine) finalizeLineMetrics(ctx context.Context, tx store.Tx) (int, error) {
	metrics, err := tx.ListLineMetrics(ctx)
	if err != nil {
		return 0, err
	}
	changeOrders, err := tx.ListChangeOrders(ctx)
	if err != nil {
		return 0, err
	}

	exposure := rejectedExposureByLine(changeOrders)

	for _, m := range metrics {
		m.RejectedCOExposure = exposure[lineKey{m.ProjectID, m.LineID}]
		m.LaborOverrunPct = safeRatio(m.ActualLaborCost-m.EstimatedLaborCost, m.EstimatedLaborCost)
		m.MaterialVariancePct = safeRatio(m.ActualMaterialCost-m.EstimatedMaterialCost, m.EstimatedMaterialCost)
		m.OverrunAmount = m.ActualLaborCost + m.ActualMaterialCost + m.RejectedCOExposure - m.BidMaxCost
		m.OverrunPct = safeRatio(m.OverrunAmount, m.BidMaxCost)
		if err := tx.UpdateLineDerived(ctx, m); err != nil {
			return 0, err
		}
	}
	return len(metrics), nil
}

// rejectedExposureByLine splits each rejected change order's amount evenly
// across its affected lines. Non-positive amounts and empty or malformed
// line lists contribute nothing; exposure is additive when several rejected
// change orders touch the same line.
func rejectedExposureByLine(changeOrders []model.ChangeOrder) map[lineKey]float64 {
	out := make(map[lineKey]float64)
	for _, co := range changeOrders {
		if co.Status != model.ChangeOrderRejected || co.Amount <= 0 {
			continue
		}
		lines := parseLineList(co.AffectedLines)
		if len(lines) == 0 {
			continue
		}
		piece := co.Amount / float64(len(lines))
		for _, line := range lines {
			out[lineKey{co.ProjectID, line}] += piece
		}
	}
	return out
}

// parseLineList parses a textual affected-line list. Upstream systems write
// these as JSON arrays, occasionally with single quotes; anything that does
// not parse as a list of strings yields an empty result, never an error.
func parseLineList(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	var lines []string
	if err := json.Unmarshal([]byte(raw), &lines); err == nil {
		return lines
	}
	// Tolerate the single-quoted variant when no double quotes are present.
	if !strings.Contains(raw, `"`) {
		if err := json.Unmarshal([]byte(strings.ReplaceAll(raw, "'", `"`)), &lines); err == nil {
			return lines
		}
	}
	return nil
}

// safeRatio returns num/denom, or 0 whenever denom is non-positive.
func safeRatio(num, denom float64) float64 {
	if denom <= 0 {
		return 0
	}
	return num / denom
}
