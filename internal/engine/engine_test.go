package engine

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/marginwatch/internal/model"
	"github.com/sells-group/marginwatch/internal/store"
)

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := store.NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

var testRunDate = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// seedSingleProject loads one project with one line: a 1,000,000 contract,
// a 100,000 bid-max line, 90,000 of actual labor, 30,000 of materials, a
// rejected 20,000 change order against the line, billing snapshots peaking
// at 80,000, and one overdue cost-impact RFI with no linked change order.
func seedSingleProject(t *testing.T, st store.Store) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, st.InsertContract(ctx, model.Contract{
		ProjectID: "P1", ProjectName: "Riverside Plant", ContractValue: 1_000_000,
	}))
	require.NoError(t, st.InsertEstimateLine(ctx, model.EstimateLine{
		ProjectID: "P1", LineID: "L1", LineNumber: 1, Description: "Sitework", ScheduledValue: 150_000,
	}))
	require.NoError(t, st.InsertBudget(ctx, model.Budget{
		LineID: "L1", LaborCost: 50_000, MaterialCost: 30_000, EquipmentCost: 10_000, SubCost: 10_000,
	}))
	require.NoError(t, st.InsertLaborEvent(ctx, model.LaborEvent{
		ProjectID: "P1", LineID: "L1", HoursStandard: 1000, HourlyRate: 90, BurdenMultiplier: 1.0,
	}))
	require.NoError(t, st.InsertMaterialEvent(ctx, model.MaterialEvent{
		ProjectID: "P1", LineID: "L1", TotalCost: 30_000,
	}))
	require.NoError(t, st.InsertBillingEvent(ctx, model.BillingEvent{
		ProjectID: "P1", LineID: "L1", TotalBilled: 50_000,
	}))
	require.NoError(t, st.InsertBillingEvent(ctx, model.BillingEvent{
		ProjectID: "P1", LineID: "L1", TotalBilled: 80_000,
	}))
	require.NoError(t, st.InsertChangeOrder(ctx, model.ChangeOrder{
		CONumber: "CO-001", ProjectID: "P1", Status: model.ChangeOrderRejected,
		Amount: 20_000, AffectedLines: `["L1"]`,
	}))
	require.NoError(t, st.InsertRFI(ctx, model.RFI{
		RFINumber: "RFI-001", ProjectID: "P1", Status: "Open",
		DateRequired: "2026-01-15", CostImpact: "yes",
	}))
}

func TestEngine_Run_EndToEnd(t *testing.T) {
	st := newTestStore(t)
	seedSingleProject(t, st)
	ctx := context.Background()

	run, err := New(st, WithNow(testRunDate)).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, run.Lines)
	assert.Equal(t, 1, run.Projects)
	assert.Len(t, run.Stages, 9)

	lines, err := st.ListLineMetrics(ctx, "P1")
	require.NoError(t, err)
	require.Len(t, lines, 1)
	m := lines[0]

	assert.InDelta(t, 100_000, m.BidMaxCost, 1e-9)
	assert.InDelta(t, 90_000, m.ActualLaborCost, 1e-9)
	assert.InDelta(t, 30_000, m.ActualMaterialCost, 1e-9)
	assert.InDelta(t, 80_000, m.BillingTotal, 1e-9) // max snapshot, not sum
	assert.InDelta(t, 40_000, m.BillingLag, 1e-9)
	assert.InDelta(t, 20_000, m.RejectedCOExposure, 1e-9)
	assert.InDelta(t, 0.80, m.LaborOverrunPct, 1e-9)
	assert.InDelta(t, 0.0, m.MaterialVariancePct, 1e-9)
	assert.InDelta(t, 40_000, m.OverrunAmount, 1e-9)
	assert.InDelta(t, 0.40, m.OverrunPct, 1e-9)

	projects, err := st.ListProjectMetrics(ctx)
	require.NoError(t, err)
	require.Len(t, projects, 1)
	p := projects[0]

	assert.InDelta(t, 100_000, p.TotalEstimatedCost, 1e-9)
	assert.InDelta(t, 120_000, p.TotalActualCost, 1e-9)
	assert.InDelta(t, 0.90, p.BidMarginPct, 1e-9)
	assert.InDelta(t, 0.88, p.RealizedMarginPct, 1e-9)
	assert.InDelta(t, 0.02, p.MarginErosionPct, 1e-9)
	assert.InDelta(t, 20_000, p.RejectedCOTotal, 1e-9)
	assert.InDelta(t, 40_000, p.BillingLag, 1e-9)
	assert.Equal(t, 1, p.OpenRFIs)
	assert.Equal(t, 1, p.OverdueRFIs)
	assert.Equal(t, 1, p.OrphanRFIs)
	assert.Equal(t, 1, p.ExceedanceLines)
	assert.Equal(t, 1, p.TotalLines)

	// 100 - erosion 2.4 - billing 4 - overdue 0.75 - orphan 1.2 - exceedance 12
	assert.InDelta(t, 79.65, p.HealthScore, 1e-9)
	assert.Equal(t, model.StatusYellow, p.Status)

	triggers, err := st.ListTriggers(ctx, "P1")
	require.NoError(t, err)
	require.Len(t, triggers, 3)
	assert.Equal(t, run.Triggers, len(triggers))

	overrun := triggers[0]
	assert.Equal(t, "P1-TRG-001", overrun.TriggerID)
	assert.Equal(t, model.TriggerLineOverrun, overrun.Type)
	assert.Equal(t, model.SeverityHigh, overrun.Severity) // 0.40 / 0.15 >= 2
	assert.Equal(t, "2026-03-01", overrun.Date)
	assert.Equal(t, []string{"L1"}, overrun.AffectedLines)
	assert.InDelta(t, 40_000, overrun.Details["overrun_amount"].(float64), 1e-9)

	billing := triggers[1]
	assert.Equal(t, "P1-TRG-002", billing.TriggerID)
	assert.Equal(t, model.TriggerBillingLag, billing.Type)
	assert.Equal(t, model.SeverityMedium, billing.Severity) // 0.04 / 0.03

	orphan := triggers[2]
	assert.Equal(t, "P1-TRG-003", orphan.TriggerID)
	assert.Equal(t, model.TriggerOrphanRFI, orphan.Type)
	assert.Equal(t, model.SeverityLow, orphan.Severity)
	assert.Empty(t, orphan.AffectedLines)
}

func TestEngine_Run_Idempotent(t *testing.T) {
	st := newTestStore(t)
	seedSingleProject(t, st)
	ctx := context.Background()

	eng := New(st, WithNow(testRunDate))
	_, err := eng.Run(ctx)
	require.NoError(t, err)

	lines1, err := st.ListLineMetrics(ctx, "P1")
	require.NoError(t, err)
	projects1, err := st.ListProjectMetrics(ctx)
	require.NoError(t, err)
	triggers1, err := st.ListTriggers(ctx, "P1")
	require.NoError(t, err)

	_, err = eng.Run(ctx)
	require.NoError(t, err)

	lines2, err := st.ListLineMetrics(ctx, "P1")
	require.NoError(t, err)
	projects2, err := st.ListProjectMetrics(ctx)
	require.NoError(t, err)
	triggers2, err := st.ListTriggers(ctx, "P1")
	require.NoError(t, err)

	assert.Equal(t, lines1, lines2)
	assert.Equal(t, projects1, projects2)
	assert.Equal(t, triggers1, triggers2)
}

func TestEngine_Run_UnknownLineEventsIgnored(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.InsertContract(ctx, model.Contract{
		ProjectID: "P1", ProjectName: "Depot", ContractValue: 500_000,
	}))
	require.NoError(t, st.InsertEstimateLine(ctx, model.EstimateLine{
		ProjectID: "P1", LineID: "L1", LineNumber: 1,
	}))
	require.NoError(t, st.InsertBudget(ctx, model.Budget{LineID: "L1", LaborCost: 10_000}))

	// Events against a line that has no estimate row must not create metrics.
	require.NoError(t, st.InsertLaborEvent(ctx, model.LaborEvent{
		ProjectID: "P1", LineID: "GHOST", HoursStandard: 100, HourlyRate: 50, BurdenMultiplier: 1,
	}))
	require.NoError(t, st.InsertMaterialEvent(ctx, model.MaterialEvent{
		ProjectID: "P1", LineID: "GHOST", TotalCost: 9_999,
	}))

	run, err := New(st, WithNow(testRunDate)).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, run.Lines)

	lines, err := st.ListLineMetrics(ctx, "P1")
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, "L1", lines[0].LineID)
	assert.Zero(t, lines[0].ActualLaborCost)
	assert.Zero(t, lines[0].ActualMaterialCost)
}

func TestEngine_Run_LineWithoutBudget(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.InsertContract(ctx, model.Contract{
		ProjectID: "P1", ProjectName: "Annex", ContractValue: 200_000,
	}))
	require.NoError(t, st.InsertEstimateLine(ctx, model.EstimateLine{
		ProjectID: "P1", LineID: "L1", LineNumber: 1,
	}))
	require.NoError(t, st.InsertLaborEvent(ctx, model.LaborEvent{
		ProjectID: "P1", LineID: "L1", HoursStandard: 10, HourlyRate: 100, BurdenMultiplier: 1,
	}))

	_, err := New(st, WithNow(testRunDate)).Run(ctx)
	require.NoError(t, err)

	lines, err := st.ListLineMetrics(ctx, "P1")
	require.NoError(t, err)
	require.Len(t, lines, 1)
	m := lines[0]

	// No budget: estimates stay zero and every ratio guards its denominator.
	assert.Zero(t, m.BidMaxCost)
	assert.InDelta(t, 1_000, m.ActualLaborCost, 1e-9)
	assert.Zero(t, m.LaborOverrunPct)
	assert.InDelta(t, 1_000, m.OverrunAmount, 1e-9)
	assert.Zero(t, m.OverrunPct)
}

func TestEngine_Run_LinkedRFINotOrphaned(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.InsertContract(ctx, model.Contract{
		ProjectID: "P1", ProjectName: "Substation", ContractValue: 1_000_000,
	}))

	// Two cost-impact RFIs: one answered by a change order, one not.
	require.NoError(t, st.InsertRFI(ctx, model.RFI{
		RFINumber: "RFI-1", ProjectID: "P1", Status: "Open",
		DateRequired: "2026-05-01", CostImpact: "yes",
	}))
	require.NoError(t, st.InsertRFI(ctx, model.RFI{
		RFINumber: "RFI-2", ProjectID: "P1", Status: "Open",
		DateRequired: "2026-05-01", CostImpact: "true",
	}))
	require.NoError(t, st.InsertChangeOrder(ctx, model.ChangeOrder{
		CONumber: "CO-1", ProjectID: "P1", Status: model.ChangeOrderPending,
		Amount: 1_000, AffectedLines: `[]`, RelatedRFI: "RFI-1",
	}))

	_, err := New(st, WithNow(testRunDate)).Run(ctx)
	require.NoError(t, err)

	projects, err := st.ListProjectMetrics(ctx)
	require.NoError(t, err)
	require.Len(t, projects, 1)
	assert.Equal(t, 2, projects[0].OpenRFIs)
	assert.Equal(t, 1, projects[0].OrphanRFIs) // only the unlinked RFI
}

func TestEngine_Run_NegativeBillingMax(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.InsertContract(ctx, model.Contract{
		ProjectID: "P1", ProjectName: "Yard", ContractValue: 100_000,
	}))
	require.NoError(t, st.InsertEstimateLine(ctx, model.EstimateLine{
		ProjectID: "P1", LineID: "L1", LineNumber: 1,
	}))

	// Credit-only billing: the maximum snapshot is negative, not zero.
	require.NoError(t, st.InsertBillingEvent(ctx, model.BillingEvent{
		ProjectID: "P1", LineID: "L1", TotalBilled: -2_000,
	}))
	require.NoError(t, st.InsertBillingEvent(ctx, model.BillingEvent{
		ProjectID: "P1", LineID: "L1", TotalBilled: -500,
	}))

	_, err := New(st, WithNow(testRunDate)).Run(ctx)
	require.NoError(t, err)

	lines, err := st.ListLineMetrics(ctx, "P1")
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.InDelta(t, -500, lines[0].BillingTotal, 1e-9)
	assert.InDelta(t, 500, lines[0].BillingLag, 1e-9)
}

func TestEngine_Run_EmptyDatabase(t *testing.T) {
	st := newTestStore(t)

	run, err := New(st, WithNow(testRunDate)).Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, run.Lines)
	assert.Zero(t, run.Projects)
	assert.Zero(t, run.Triggers)
}
