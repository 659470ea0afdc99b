package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/marginwatch/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func TestNewSQLite_InvalidDSN(t *testing.T) {
	_, err := NewSQLite("/nonexistent/dir/subdir/test.db")
	require.Error(t, err)
}

func TestSQLite_Migrate_Idempotent(t *testing.T) {
	st := newTestSQLiteStore(t)
	require.NoError(t, st.Migrate(context.Background()))
}

// --- Reference tables ---

func TestSQLite_ReferenceRoundTrip(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.InsertContract(ctx, model.Contract{
		ProjectID: "P1", ProjectName: "Harbor Terminal", ContractValue: 2_500_000,
	}))
	require.NoError(t, st.InsertEstimateLine(ctx, model.EstimateLine{
		ProjectID: "P1", LineID: "L1", LineNumber: 1, Description: "Excavation", ScheduledValue: 80_000,
	}))
	require.NoError(t, st.InsertBudget(ctx, model.Budget{
		LineID: "L1", LaborCost: 20_000, MaterialCost: 15_000, EquipmentCost: 5_000, SubCost: 0,
	}))
	require.NoError(t, st.InsertLaborEvent(ctx, model.LaborEvent{
		ProjectID: "P1", LineID: "L1", HoursStandard: 40, HoursOvertime: 5, HourlyRate: 65, BurdenMultiplier: 1.35,
	}))
	require.NoError(t, st.InsertMaterialEvent(ctx, model.MaterialEvent{
		ProjectID: "P1", LineID: "L1", TotalCost: 4_200,
	}))
	require.NoError(t, st.InsertBillingEvent(ctx, model.BillingEvent{
		ProjectID: "P1", LineID: "L1", TotalBilled: 12_000,
	}))
	require.NoError(t, st.InsertChangeOrder(ctx, model.ChangeOrder{
		CONumber: "CO-7", ProjectID: "P1", Status: model.ChangeOrderRejected,
		Amount: 3_000, AffectedLines: `["L1"]`, RelatedRFI: "RFI-2",
	}))
	require.NoError(t, st.InsertRFI(ctx, model.RFI{
		RFINumber: "RFI-2", ProjectID: "P1", Status: "Open",
		DateRequired: "2026-04-01", CostImpact: "true",
	}))

	tx, err := st.Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback(ctx) //nolint:errcheck

	contracts, err := tx.ListContracts(ctx)
	require.NoError(t, err)
	require.Len(t, contracts, 1)
	assert.Equal(t, "Harbor Terminal", contracts[0].ProjectName)

	lines, err := tx.ListEstimateLines(ctx)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, "Excavation", lines[0].Description)

	budgets, err := tx.ListBudgets(ctx)
	require.NoError(t, err)
	require.Len(t, budgets, 1)
	assert.InDelta(t, 40_000, budgets[0].BidMaxCost(), 1e-9)

	labor, err := tx.ListLaborEvents(ctx)
	require.NoError(t, err)
	require.Len(t, labor, 1)
	assert.InDelta(t, 1.35, labor[0].BurdenMultiplier, 1e-9)

	cos, err := tx.ListChangeOrders(ctx)
	require.NoError(t, err)
	require.Len(t, cos, 1)
	assert.Equal(t, model.ChangeOrderRejected, cos[0].Status)
	assert.Equal(t, "RFI-2", cos[0].RelatedRFI)

	rfis, err := tx.ListRFIs(ctx)
	require.NoError(t, err)
	require.Len(t, rfis, 1)
	assert.Equal(t, "true", rfis[0].CostImpact)
}

// --- Derived tables ---

func TestSQLite_LineMetricsLifecycle(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	tx, err := st.Begin(ctx)
	require.NoError(t, err)

	seed := []model.LineMetrics{
		{ProjectID: "P1", LineID: "L1", LineNumber: 1, BidMaxCost: 10_000},
		{ProjectID: "P1", LineID: "L2", LineNumber: 2, BidMaxCost: 20_000},
	}
	require.NoError(t, tx.ClearLineMetrics(ctx))
	require.NoError(t, tx.InsertLineMetrics(ctx, seed))

	require.NoError(t, tx.UpdateLineLabor(ctx, "P1", "L1", 7_500))
	require.NoError(t, tx.UpdateLineMaterial(ctx, "P1", "L1", 1_200))
	require.NoError(t, tx.UpdateLineBilling(ctx, "P1", "L1", 5_000, 3_700))
	require.NoError(t, tx.UpdateLineDerived(ctx, model.LineMetrics{
		ProjectID: "P1", LineID: "L1",
		RejectedCOExposure: 500, LaborOverrunPct: 0.1, OverrunAmount: -800, OverrunPct: -0.08,
	}))
	require.NoError(t, tx.Commit(ctx))

	got, err := st.ListLineMetrics(ctx, "P1")
	require.NoError(t, err)
	require.Len(t, got, 2)

	m := got[0]
	assert.Equal(t, "L1", m.LineID)
	assert.InDelta(t, 7_500, m.ActualLaborCost, 1e-9)
	assert.InDelta(t, 1_200, m.ActualMaterialCost, 1e-9)
	assert.InDelta(t, 5_000, m.BillingTotal, 1e-9)
	assert.InDelta(t, 3_700, m.BillingLag, 1e-9)
	assert.InDelta(t, 500, m.RejectedCOExposure, 1e-9)
	assert.InDelta(t, -800, m.OverrunAmount, 1e-9)

	// Untouched sibling line keeps its zeroes.
	assert.Equal(t, "L2", got[1].LineID)
	assert.Zero(t, got[1].ActualLaborCost)
}

func TestSQLite_ProjectMetricsLifecycle(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	tx, err := st.Begin(ctx)
	require.NoError(t, err)

	require.NoError(t, tx.ClearProjectMetrics(ctx))
	require.NoError(t, tx.InsertProjectMetrics(ctx, model.ProjectMetrics{
		ProjectID: "P1", ProjectName: "Depot", ContractValue: 900_000,
		TotalEstimatedCost: 700_000, BidMarginPct: 0.2222,
		OpenRFIs: 3, Status: model.StatusUnknown, TotalLines: 12,
	}))
	require.NoError(t, tx.UpdateProjectHealth(ctx, "P1", 64.5, model.StatusYellow))
	require.NoError(t, tx.Commit(ctx))

	got, err := st.ListProjectMetrics(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.InDelta(t, 64.5, got[0].HealthScore, 1e-9)
	assert.Equal(t, model.StatusYellow, got[0].Status)
	assert.Equal(t, 3, got[0].OpenRFIs)
	assert.Equal(t, 12, got[0].TotalLines)
}

func TestSQLite_UpdateProjectHealth_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	tx, err := st.Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback(ctx) //nolint:errcheck

	err = tx.UpdateProjectHealth(ctx, "missing", 50, model.StatusRed)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestSQLite_TriggersRoundTrip(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	tx, err := st.Begin(ctx)
	require.NoError(t, err)

	in := []model.Trigger{
		{
			TriggerID: "P1-TRG-001", ProjectID: "P1", Date: "2026-03-01",
			Type: model.TriggerLineOverrun, Severity: model.SeverityHigh,
			Value: 0.4, Threshold: 0.15,
			Details:       map[string]any{"overrun_amount": 40000.0},
			AffectedLines: []string{"L1"},
		},
		{
			// nil payloads must round-trip as empty JSON, not NULL.
			TriggerID: "P1-TRG-002", ProjectID: "P1", Date: "2026-03-01",
			Type: model.TriggerOrphanRFI, Severity: model.SeverityLow,
			Value: 1, Threshold: 1,
		},
	}
	require.NoError(t, tx.ClearTriggers(ctx))
	require.NoError(t, tx.InsertTriggers(ctx, in))
	require.NoError(t, tx.Commit(ctx))

	got, err := st.ListTriggers(ctx, "P1")
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, model.TriggerLineOverrun, got[0].Type)
	assert.Equal(t, []string{"L1"}, got[0].AffectedLines)
	assert.InDelta(t, 40000.0, got[0].Details["overrun_amount"].(float64), 1e-9)

	assert.Empty(t, got[1].AffectedLines)
	assert.Empty(t, got[1].Details)
}

func TestSQLite_RecordRun(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	err := st.RecordRun(ctx, model.ComputeRun{
		ID:         "run-1",
		StartedAt:  now,
		FinishedAt: now.Add(2 * time.Second),
		Stages:     []model.StageResult{{Name: "initialize_line_metrics", DurationMS: 12}},
		Lines:      4, Projects: 2, Triggers: 1,
	})
	require.NoError(t, err)

	// Duplicate run IDs are rejected by the primary key.
	err = st.RecordRun(ctx, model.ComputeRun{ID: "run-1", StartedAt: now, FinishedAt: now})
	require.Error(t, err)
}

func TestSQLite_RollbackAfterCommit(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	tx, err := st.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Commit(ctx))

	// The engine's deferred rollback after a successful commit is a no-op.
	assert.NoError(t, tx.Rollback(ctx))
}

func TestSQLite_Rollback_DiscardsWrites(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	tx, err := st.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.InsertLineMetrics(ctx, []model.LineMetrics{
		{ProjectID: "P1", LineID: "L1", LineNumber: 1},
	}))
	require.NoError(t, tx.Rollback(ctx))

	got, err := st.ListLineMetrics(ctx, "P1")
	require.NoError(t, err)
	assert.Empty(t, got)
}
