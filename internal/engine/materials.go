package engine

import (
	"context"

	"github.com/sells-group/marginwatch/internal/store"
)

// aggregateMaterials folds material deliveries into per-line actual material
// cost. Events referencing unknown lines are ignored.
func (e *Engine) aggregateMaterials(ctx context.Context, tx store.Tx) (int, error) {
	known, err := knownLines(ctx, tx)
	if err != nil {
		return 0, err
	}
	events, err := tx.ListMaterialEvents(ctx)
	if err != nil {
		return 0, err
	}

	totals := make(map[lineKey]float64)
	for _, ev := range events {
		k := lineKey{ev.ProjectID, ev.LineID}
		if !known[k] {
			continue
		}
		totals[k] += ev.TotalCost
	}

	for k, cost := range totals {
		if err := tx.UpdateLineMaterial(ctx, k.projectID, k.lineID, cost); err != nil {
			return 0, err
		}
	}
	return len(totals), nil
}
