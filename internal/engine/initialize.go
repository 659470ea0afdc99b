package engine

import (
	"context"

	"github.com/sells-group/marginwatch/internal/model"
	"github.com/sells-group/marginwatch/internal/store"
)

// initializeLineMetrics truncates the derived line-metrics table and seeds
// one row per estimate line, outer-joined with its bid budget. A line
// without a budget row keeps zero estimate components and a zero bid-max
// cost rather than being omitted. All actual and derived fields start at
// zero.
func (e *Engine) initializeLineMetrics(ctx context.Context, tx store.Tx) (int, error) {
	lines, err := tx.ListEstimateLines(ctx)
	if err != nil {
		return 0, err
	}
	budgets, err := tx.ListBudgets(ctx)
	if err != nil {
		return 0, err
	}

	budgetByLine := make(map[string]model.Budget, len(budgets))
	for _, b := range budgets {
		budgetByLine[b.LineID] = b
	}

	rows := make([]model.LineMetrics, 0, len(lines))
	for _, l := range lines {
		b := budgetByLine[l.LineID] // zero value when no budget exists
		rows = append(rows, model.LineMetrics{
			ProjectID:              l.ProjectID,
			LineID:                 l.LineID,
			LineNumber:             l.LineNumber,
			Description:            l.Description,
			ScheduledValue:         l.ScheduledValue,
			EstimatedLaborCost:     b.LaborCost,
			EstimatedMaterialCost:  b.MaterialCost,
			EstimatedEquipmentCost: b.EquipmentCost,
			EstimatedSubCost:       b.SubCost,
			BidMaxCost:             b.BidMaxCost(),
		})
	}

	if err := tx.ClearLineMetrics(ctx); err != nil {
		return 0, err
	}
	if err := tx.InsertLineMetrics(ctx, rows); err != nil {
		return 0, err
	}
	return len(rows), nil
}
