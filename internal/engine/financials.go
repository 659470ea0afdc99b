package engine

import (
	"context"

	"github.com/sells-group/marginwatch/internal/model"
	"github.com/sells-group/marginwatch/internal/store"
)

// computeProjectFinancials rolls per-line metrics up to one financial
// summary row per project, pulls change-order totals by status, and merges
// in the RFI counters. Health score and status are placeholders for the
// scoring stage. The RFI counter map should contain every project; a
// missing entry defaults to zeros rather than failing.
func (e *Engine) computeProjectFinancials(ctx context.Context, tx store.Tx, rfiCounters map[string]model.RFICounters) (int, error) {
	if err := tx.ClearProjectMetrics(ctx); err != nil {
		return 0, err
	}

	contracts, err := tx.ListContracts(ctx)
	if err != nil {
		return 0, err
	}
	lineMetrics, err := tx.ListLineMetrics(ctx)
	if err != nil {
		return 0, err
	}
	changeOrders, err := tx.ListChangeOrders(ctx)
	if err != nil {
		return 0, err
	}

	type lineRollup struct {
		estimated  float64
		labor      float64
		material   float64
		billingLag float64
		exceeding  int
		total      int
	}
	rollups := make(map[string]lineRollup)
	for _, m := range lineMetrics {
		r := rollups[m.ProjectID]
		r.estimated += m.EstimatedLaborCost + m.EstimatedMaterialCost + m.EstimatedEquipmentCost + m.EstimatedSubCost
		r.labor += m.ActualLaborCost
		r.material += m.ActualMaterialCost
		r.billingLag += m.BillingLag
		if m.OverrunAmount > 0 {
			r.exceeding++
		}
		r.total++
		rollups[m.ProjectID] = r
	}

	type coTotals struct {
		pending  float64
		approved float64
		rejected float64
	}
	coByProject := make(map[string]coTotals)
	for _, co := range changeOrders {
		t := coByProject[co.ProjectID]
		switch co.Status {
		case model.ChangeOrderPending:
			t.pending += co.Amount
		case model.ChangeOrderApproved:
			t.approved += co.Amount
		case model.ChangeOrderRejected:
			t.rejected += co.Amount
		}
		coByProject[co.ProjectID] = t
	}

	for _, c := range contracts {
		r := rollups[c.ProjectID]
		co := coByProject[c.ProjectID]
		actualTotal := r.labor + r.material

		bidMargin := safeRatio(c.ContractValue-r.estimated, c.ContractValue)
		realizedMargin := safeRatio(c.ContractValue-actualTotal, c.ContractValue)

		counters := rfiCounters[c.ProjectID] // zero counters when absent

		m := model.ProjectMetrics{
			ProjectID:               c.ProjectID,
			ProjectName:             c.ProjectName,
			ContractValue:           c.ContractValue,
			TotalEstimatedCost:      r.estimated,
			TotalActualLaborCost:    r.labor,
			TotalActualMaterialCost: r.material,
			TotalActualCost:         actualTotal,
			BidMarginPct:            bidMargin,
			RealizedMarginPct:       realizedMargin,
			MarginErosionPct:        bidMargin - realizedMargin,
			PendingCOExposure:       co.pending,
			ApprovedCOTotal:         co.approved,
			RejectedCOTotal:         co.rejected,
			BillingLag:              r.billingLag,
			OpenRFIs:                counters.Open,
			OverdueRFIs:             counters.Overdue,
			OrphanRFIs:              counters.Orphan,
			HealthScore:             0,
			Status:                  model.StatusUnknown,
			ExceedanceLines:         r.exceeding,
			TotalLines:              r.total,
		}
		if err := tx.InsertProjectMetrics(ctx, m); err != nil {
			return 0, err
		}
	}
	return len(contracts), nil
}
