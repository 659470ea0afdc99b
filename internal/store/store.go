package store

import (
	"context"

	"github.com/sells-group/marginwatch/internal/model"
)

// Store defines the persistence interface around the compute engine. The
// Insert* methods are the loader surface used to populate the normalized
// reference tables before a run; the List* methods are the outbound surface
// read by the dossier and portfolio builders after a run.
type Store interface {
	// Loader surface (inbound reference tables).
	InsertContract(ctx context.Context, c model.Contract) error
	InsertEstimateLine(ctx context.Context, l model.EstimateLine) error
	InsertBudget(ctx context.Context, b model.Budget) error
	InsertLaborEvent(ctx context.Context, e model.LaborEvent) error
	InsertMaterialEvent(ctx context.Context, e model.MaterialEvent) error
	InsertBillingEvent(ctx context.Context, e model.BillingEvent) error
	InsertChangeOrder(ctx context.Context, co model.ChangeOrder) error
	InsertRFI(ctx context.Context, r model.RFI) error

	// Outbound surface (derived tables).
	ListProjectMetrics(ctx context.Context) ([]model.ProjectMetrics, error)
	ListLineMetrics(ctx context.Context, projectID string) ([]model.LineMetrics, error)
	ListTriggers(ctx context.Context, projectID string) ([]model.Trigger, error)

	// Run audit.
	RecordRun(ctx context.Context, run model.ComputeRun) error

	// Begin opens the unit of work a compute run operates in. The engine
	// holds exactly one Tx for a full run and commits once at the end.
	Begin(ctx context.Context) (Tx, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Tx is the transactional view the engine stages read from and write to.
// Every stage receives the same Tx; nothing is visible outside it until the
// engine commits.
type Tx interface {
	// Reference reads.
	ListContracts(ctx context.Context) ([]model.Contract, error)
	ListEstimateLines(ctx context.Context) ([]model.EstimateLine, error)
	ListBudgets(ctx context.Context) ([]model.Budget, error)
	ListLaborEvents(ctx context.Context) ([]model.LaborEvent, error)
	ListMaterialEvents(ctx context.Context) ([]model.MaterialEvent, error)
	ListBillingEvents(ctx context.Context) ([]model.BillingEvent, error)
	ListChangeOrders(ctx context.Context) ([]model.ChangeOrder, error)
	ListRFIs(ctx context.Context) ([]model.RFI, error)

	// Derived line metrics.
	ClearLineMetrics(ctx context.Context) error
	InsertLineMetrics(ctx context.Context, rows []model.LineMetrics) error
	ListLineMetrics(ctx context.Context) ([]model.LineMetrics, error)
	UpdateLineLabor(ctx context.Context, projectID, lineID string, cost float64) error
	UpdateLineMaterial(ctx context.Context, projectID, lineID string, cost float64) error
	UpdateLineBilling(ctx context.Context, projectID, lineID string, total, lag float64) error
	UpdateLineDerived(ctx context.Context, m model.LineMetrics) error

	// Derived project metrics.
	ClearProjectMetrics(ctx context.Context) error
	InsertProjectMetrics(ctx context.Context, m model.ProjectMetrics) error
	ListProjectMetrics(ctx context.Context) ([]model.ProjectMetrics, error)
	UpdateProjectHealth(ctx context.Context, projectID string, score float64, status model.HealthStatus) error

	// Triggers.
	ClearTriggers(ctx context.Context) error
	InsertTriggers(ctx context.Context, rows []model.Trigger) error

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}
