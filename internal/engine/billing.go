package engine

import (
	"context"

	"github.com/sells-group/marginwatch/internal/store"
)

// aggregateBilling sets each line's billing total to the MAXIMUM total_billed
// across its billing events. Billing rows are cumulative snapshots, not
// discrete transactions, so summing them would double-count. It then derives
// billing lag for every line as actual labor + material cost minus the
// billing total; a negative lag means the line is over-billed relative to
// incurred cost.
func (e *Engine) aggregateBilling(ctx context.Context, tx store.Tx) (int, error) {
	metrics, err := tx.ListLineMetrics(ctx)
	if err != nil {
		return 0, err
	}
	events, err := tx.ListBillingEvents(ctx)
	if err != nil {
		return 0, err
	}

	known := make(map[lineKey]bool, len(metrics))
	for _, m := range metrics {
		known[lineKey{m.ProjectID, m.LineID}] = true
	}

	maxBilled := make(map[lineKey]float64)
	for _, ev := range events {
		k := lineKey{ev.ProjectID, ev.LineID}
		if !known[k] {
			continue
		}
		// Seed on first sight so a negative maximum is not masked by the
		// map's zero value.
		if cur, ok := maxBilled[k]; !ok || ev.TotalBilled > cur {
			maxBilled[k] = ev.TotalBilled
		}
	}

	for _, m := range metrics {
		total := maxBilled[lineKey{m.ProjectID, m.LineID}]
		lag := m.ActualLaborCost + m.ActualMaterialCost - total
		if err := tx.UpdateLineBilling(ctx, m.ProjectID, m.LineID, total, lag); err != nil {
			return 0, err
		}
	}
	return len(metrics), nil
}
