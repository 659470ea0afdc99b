package store

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/marginwatch/internal/model"
)

// PgxPool is the subset of pgxpool.Pool the store uses. pgxmock's
// PgxPoolIface satisfies it in tests.
type PgxPool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool PgxPool
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresWithPool wraps an existing pool (or a pgxmock pool in tests).
func NewPostgresWithPool(pool PgxPool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS contracts (
	project_id              TEXT PRIMARY KEY,
	project_name            TEXT NOT NULL,
	original_contract_value DOUBLE PRECISION NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS sov (
	project_id      TEXT NOT NULL,
	sov_line_id     TEXT NOT NULL,
	line_number     INTEGER NOT NULL DEFAULT 0,
	description     TEXT NOT NULL DEFAULT '',
	scheduled_value DOUBLE PRECISION NOT NULL DEFAULT 0,
	PRIMARY KEY (project_id, sov_line_id)
);

CREATE TABLE IF NOT EXISTS sov_budget (
	sov_line_id              TEXT PRIMARY KEY,
	estimated_labor_cost     DOUBLE PRECISION NOT NULL DEFAULT 0,
	estimated_material_cost  DOUBLE PRECISION NOT NULL DEFAULT 0,
	estimated_equipment_cost DOUBLE PRECISION NOT NULL DEFAULT 0,
	estimated_sub_cost       DOUBLE PRECISION NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS labor_logs (
	project_id        TEXT NOT NULL,
	sov_line_id       TEXT NOT NULL,
	hours_st          DOUBLE PRECISION NOT NULL DEFAULT 0,
	hours_ot          DOUBLE PRECISION NOT NULL DEFAULT 0,
	hourly_rate       DOUBLE PRECISION NOT NULL DEFAULT 0,
	burden_multiplier DOUBLE PRECISION NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS material_deliveries (
	project_id  TEXT NOT NULL,
	sov_line_id TEXT NOT NULL,
	total_cost  DOUBLE PRECISION NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS billing_line_items (
	project_id   TEXT NOT NULL,
	sov_line_id  TEXT NOT NULL,
	total_billed DOUBLE PRECISION NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS change_orders (
	co_number          TEXT NOT NULL,
	project_id         TEXT NOT NULL,
	status             TEXT NOT NULL,
	amount             DOUBLE PRECISION NOT NULL DEFAULT 0,
	affected_sov_lines TEXT NOT NULL DEFAULT '[]',
	related_rfi        TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS rfis (
	rfi_number    TEXT NOT NULL,
	project_id    TEXT NOT NULL,
	status        TEXT NOT NULL,
	date_required TEXT NOT NULL DEFAULT '',
	cost_impact   TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS computed_sov_metrics (
	project_id               TEXT NOT NULL,
	sov_line_id              TEXT NOT NULL,
	line_number              INTEGER NOT NULL DEFAULT 0,
	description              TEXT NOT NULL DEFAULT '',
	scheduled_value          DOUBLE PRECISION NOT NULL DEFAULT 0,
	estimated_labor_cost     DOUBLE PRECISION NOT NULL DEFAULT 0,
	estimated_material_cost  DOUBLE PRECISION NOT NULL DEFAULT 0,
	estimated_equipment_cost DOUBLE PRECISION NOT NULL DEFAULT 0,
	estimated_sub_cost       DOUBLE PRECISION NOT NULL DEFAULT 0,
	bid_max_cost             DOUBLE PRECISION NOT NULL DEFAULT 0,
	actual_labor_cost        DOUBLE PRECISION NOT NULL DEFAULT 0,
	actual_material_cost     DOUBLE PRECISION NOT NULL DEFAULT 0,
	billing_total            DOUBLE PRECISION NOT NULL DEFAULT 0,
	billing_lag              DOUBLE PRECISION NOT NULL DEFAULT 0,
	rejected_co_exposure     DOUBLE PRECISION NOT NULL DEFAULT 0,
	labor_overrun_pct        DOUBLE PRECISION NOT NULL DEFAULT 0,
	material_variance_pct    DOUBLE PRECISION NOT NULL DEFAULT 0,
	overrun_amount           DOUBLE PRECISION NOT NULL DEFAULT 0,
	overrun_pct              DOUBLE PRECISION NOT NULL DEFAULT 0,
	PRIMARY KEY (project_id, sov_line_id)
);

CREATE TABLE IF NOT EXISTS computed_project_metrics (
	project_id                 TEXT PRIMARY KEY,
	project_name               TEXT NOT NULL DEFAULT '',
	contract_value             DOUBLE PRECISION NOT NULL DEFAULT 0,
	total_estimated_cost       DOUBLE PRECISION NOT NULL DEFAULT 0,
	total_actual_labor_cost    DOUBLE PRECISION NOT NULL DEFAULT 0,
	total_actual_material_cost DOUBLE PRECISION NOT NULL DEFAULT 0,
	total_actual_cost          DOUBLE PRECISION NOT NULL DEFAULT 0,
	bid_margin_pct             DOUBLE PRECISION NOT NULL DEFAULT 0,
	realized_margin_pct        DOUBLE PRECISION NOT NULL DEFAULT 0,
	margin_erosion_pct         DOUBLE PRECISION NOT NULL DEFAULT 0,
	pending_co_exposure        DOUBLE PRECISION NOT NULL DEFAULT 0,
	approved_co_total          DOUBLE PRECISION NOT NULL DEFAULT 0,
	rejected_co_total          DOUBLE PRECISION NOT NULL DEFAULT 0,
	billing_lag                DOUBLE PRECISION NOT NULL DEFAULT 0,
	open_rfis                  INTEGER NOT NULL DEFAULT 0,
	overdue_rfis               INTEGER NOT NULL DEFAULT 0,
	orphan_rfis                INTEGER NOT NULL DEFAULT 0,
	health_score               DOUBLE PRECISION NOT NULL DEFAULT 0,
	status                     TEXT NOT NULL DEFAULT 'UNKNOWN',
	exceedance_lines           INTEGER NOT NULL DEFAULT 0,
	total_lines                INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS triggers (
	trigger_id         TEXT PRIMARY KEY,
	project_id         TEXT NOT NULL,
	date               TEXT NOT NULL,
	type               TEXT NOT NULL,
	severity           TEXT NOT NULL,
	value              DOUBLE PRECISION NOT NULL DEFAULT 0,
	threshold          DOUBLE PRECISION NOT NULL DEFAULT 0,
	details            JSONB NOT NULL DEFAULT '{}',
	affected_sov_lines JSONB NOT NULL DEFAULT '[]'
);

CREATE TABLE IF NOT EXISTS compute_runs (
	id          TEXT PRIMARY KEY,
	started_at  TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ NOT NULL,
	stages      JSONB NOT NULL DEFAULT '[]',
	lines       INTEGER NOT NULL DEFAULT 0,
	projects    INTEGER NOT NULL DEFAULT 0,
	triggers    INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_labor_logs_line ON labor_logs(project_id, sov_line_id);
CREATE INDEX IF NOT EXISTS idx_material_deliveries_line ON material_deliveries(project_id, sov_line_id);
CREATE INDEX IF NOT EXISTS idx_billing_line_items_line ON billing_line_items(project_id, sov_line_id);
CREATE INDEX IF NOT EXISTS idx_change_orders_project ON change_orders(project_id);
CREATE INDEX IF NOT EXISTS idx_rfis_project ON rfis(project_id);
CREATE INDEX IF NOT EXISTS idx_triggers_project ON triggers(project_id);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// Loader surface

func (s *PostgresStore) InsertContract(ctx context.Context, c model.Contract) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO contracts (project_id, project_name, original_contract_value) VALUES ($1, $2, $3)`,
		c.ProjectID, c.ProjectName, c.ContractValue,
	)
	return eris.Wrapf(err, "postgres: insert contract %s", c.ProjectID)
}

func (s *PostgresStore) InsertEstimateLine(ctx context.Context, l model.EstimateLine) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO sov (project_id, sov_line_id, line_number, description, scheduled_value) VALUES ($1, $2, $3, $4, $5)`,
		l.ProjectID, l.LineID, l.LineNumber, l.Description, l.ScheduledValue,
	)
	return eris.Wrapf(err, "postgres: insert sov line %s", l.LineID)
}

func (s *PostgresStore) InsertBudget(ctx context.Context, b model.Budget) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO sov_budget (sov_line_id, estimated_labor_cost, estimated_material_cost, estimated_equipment_cost, estimated_sub_cost) VALUES ($1, $2, $3, $4, $5)`,
		b.LineID, b.LaborCost, b.MaterialCost, b.EquipmentCost, b.SubCost,
	)
	return eris.Wrapf(err, "postgres: insert budget %s", b.LineID)
}

func (s *PostgresStore) InsertLaborEvent(ctx context.Context, e model.LaborEvent) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO labor_logs (project_id, sov_line_id, hours_st, hours_ot, hourly_rate, burden_multiplier) VALUES ($1, $2, $3, $4, $5, $6)`,
		e.ProjectID, e.LineID, e.HoursStandard, e.HoursOvertime, e.HourlyRate, e.BurdenMultiplier,
	)
	return eris.Wrap(err, "postgres: insert labor event")
}

func (s *PostgresStore) InsertMaterialEvent(ctx context.Context, e model.MaterialEvent) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO material_deliveries (project_id, sov_line_id, total_cost) VALUES ($1, $2, $3)`,
		e.ProjectID, e.LineID, e.TotalCost,
	)
	return eris.Wrap(err, "postgres: insert material event")
}

func (s *PostgresStore) InsertBillingEvent(ctx context.Context, e model.BillingEvent) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO billing_line_items (project_id, sov_line_id, total_billed) VALUES ($1, $2, $3)`,
		e.ProjectID, e.LineID, e.TotalBilled,
	)
	return eris.Wrap(err, "postgres: insert billing event")
}

func (s *PostgresStore) InsertChangeOrder(ctx context.Context, co model.ChangeOrder) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO change_orders (co_number, project_id, status, amount, affected_sov_lines, related_rfi) VALUES ($1, $2, $3, $4, $5, $6)`,
		co.CONumber, co.ProjectID, string(co.Status), co.Amount, co.AffectedLines, co.RelatedRFI,
	)
	return eris.Wrapf(err, "postgres: insert change order %s", co.CONumber)
}

func (s *PostgresStore) InsertRFI(ctx context.Context, r model.RFI) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO rfis (rfi_number, project_id, status, date_required, cost_impact) VALUES ($1, $2, $3, $4, $5)`,
		r.RFINumber, r.ProjectID, r.Status, r.DateRequired, r.CostImpact,
	)
	return eris.Wrapf(err, "postgres: insert rfi %s", r.RFINumber)
}

// Outbound surface

func (s *PostgresStore) ListProjectMetrics(ctx context.Context) ([]model.ProjectMetrics, error) {
	rows, err := s.pool.Query(ctx, selectProjectMetrics)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list project metrics")
	}
	return scanProjectMetricsRows(rows)
}

func (s *PostgresStore) ListLineMetrics(ctx context.Context, projectID string) ([]model.LineMetrics, error) {
	rows, err := s.pool.Query(ctx, selectLineMetrics+` WHERE project_id = $1 ORDER BY line_number`, projectID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list line metrics")
	}
	return scanLineMetricsRows(rows)
}

func (s *PostgresStore) ListTriggers(ctx context.Context, projectID string) ([]model.Trigger, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT trigger_id, project_id, date, type, severity, value, threshold, details, affected_sov_lines
		 FROM triggers WHERE project_id = $1 ORDER BY trigger_id`,
		projectID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list triggers")
	}
	defer rows.Close()

	var out []model.Trigger
	for rows.Next() {
		var tr model.Trigger
		var typ, sev string
		var detailsJSON, linesJSON []byte
		if err := rows.Scan(&tr.TriggerID, &tr.ProjectID, &tr.Date, &typ, &sev, &tr.Value, &tr.Threshold, &detailsJSON, &linesJSON); err != nil {
			return nil, eris.Wrap(err, "postgres: scan trigger")
		}
		tr.Type = model.TriggerType(typ)
		tr.Severity = model.Severity(sev)
		if err := json.Unmarshal(detailsJSON, &tr.Details); err != nil {
			return nil, eris.Wrapf(err, "postgres: unmarshal trigger details %s", tr.TriggerID)
		}
		if err := json.Unmarshal(linesJSON, &tr.AffectedLines); err != nil {
			return nil, eris.Wrapf(err, "postgres: unmarshal trigger lines %s", tr.TriggerID)
		}
		out = append(out, tr)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list triggers iterate")
}

func (s *PostgresStore) RecordRun(ctx context.Context, run model.ComputeRun) error {
	stagesJSON, err := json.Marshal(run.Stages)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal run stages")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO compute_runs (id, started_at, finished_at, stages, lines, projects, triggers) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		run.ID, run.StartedAt.UTC(), run.FinishedAt.UTC(), stagesJSON, run.Lines, run.Projects, run.Triggers,
	)
	return eris.Wrapf(err, "postgres: record run %s", run.ID)
}

// Begin opens the single transaction a compute run operates in.
func (s *PostgresStore) Begin(ctx context.Context) (Tx, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: begin")
	}
	return &postgresTx{tx: tx}, nil
}

type postgresTx struct {
	tx pgx.Tx
}

func (t *postgresTx) Commit(ctx context.Context) error {
	return eris.Wrap(t.tx.Commit(ctx), "postgres: commit")
}

func (t *postgresTx) Rollback(ctx context.Context) error {
	if err := t.tx.Rollback(ctx); err != nil && !eris.Is(err, pgx.ErrTxClosed) {
		return eris.Wrap(err, "postgres: rollback")
	}
	return nil
}

// Reference reads

func (t *postgresTx) ListContracts(ctx context.Context) ([]model.Contract, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT project_id, project_name, original_contract_value FROM contracts ORDER BY project_id`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list contracts")
	}
	defer rows.Close()

	var out []model.Contract
	for rows.Next() {
		var c model.Contract
		if err := rows.Scan(&c.ProjectID, &c.ProjectName, &c.ContractValue); err != nil {
			return nil, eris.Wrap(err, "postgres: scan contract")
		}
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list contracts iterate")
}

func (t *postgresTx) ListEstimateLines(ctx context.Context) ([]model.EstimateLine, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT project_id, sov_line_id, line_number, description, scheduled_value FROM sov ORDER BY project_id, line_number`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list sov lines")
	}
	defer rows.Close()

	var out []model.EstimateLine
	for rows.Next() {
		var l model.EstimateLine
		if err := rows.Scan(&l.ProjectID, &l.LineID, &l.LineNumber, &l.Description, &l.ScheduledValue); err != nil {
			return nil, eris.Wrap(err, "postgres: scan sov line")
		}
		out = append(out, l)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list sov lines iterate")
}

func (t *postgresTx) ListBudgets(ctx context.Context) ([]model.Budget, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT sov_line_id, estimated_labor_cost, estimated_material_cost, estimated_equipment_cost, estimated_sub_cost FROM sov_budget`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list budgets")
	}
	defer rows.Close()

	var out []model.Budget
	for rows.Next() {
		var b model.Budget
		if err := rows.Scan(&b.LineID, &b.LaborCost, &b.MaterialCost, &b.EquipmentCost, &b.SubCost); err != nil {
			return nil, eris.Wrap(err, "postgres: scan budget")
		}
		out = append(out, b)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list budgets iterate")
}

func (t *postgresTx) ListLaborEvents(ctx context.Context) ([]model.LaborEvent, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT project_id, sov_line_id, hours_st, hours_ot, hourly_rate, burden_multiplier FROM labor_logs`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list labor events")
	}
	defer rows.Close()

	var out []model.LaborEvent
	for rows.Next() {
		var e model.LaborEvent
		if err := rows.Scan(&e.ProjectID, &e.LineID, &e.HoursStandard, &e.HoursOvertime, &e.HourlyRate, &e.BurdenMultiplier); err != nil {
			return nil, eris.Wrap(err, "postgres: scan labor event")
		}
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list labor events iterate")
}

func (t *postgresTx) ListMaterialEvents(ctx context.Context) ([]model.MaterialEvent, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT project_id, sov_line_id, total_cost FROM material_deliveries`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list material events")
	}
	defer rows.Close()

	var out []model.MaterialEvent
	for rows.Next() {
		var e model.MaterialEvent
		if err := rows.Scan(&e.ProjectID, &e.LineID, &e.TotalCost); err != nil {
			return nil, eris.Wrap(err, "postgres: scan material event")
		}
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list material events iterate")
}

func (t *postgresTx) ListBillingEvents(ctx context.Context) ([]model.BillingEvent, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT project_id, sov_line_id, total_billed FROM billing_line_items`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list billing events")
	}
	defer rows.Close()

	var out []model.BillingEvent
	for rows.Next() {
		var e model.BillingEvent
		if err := rows.Scan(&e.ProjectID, &e.LineID, &e.TotalBilled); err != nil {
			return nil, eris.Wrap(err, "postgres: scan billing event")
		}
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list billing events iterate")
}

func (t *postgresTx) ListChangeOrders(ctx context.Context) ([]model.ChangeOrder, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT co_number, project_id, status, amount, affected_sov_lines, related_rfi FROM change_orders`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list change orders")
	}
	defer rows.Close()

	var out []model.ChangeOrder
	for rows.Next() {
		var co model.ChangeOrder
		var status string
		if err := rows.Scan(&co.CONumber, &co.ProjectID, &status, &co.Amount, &co.AffectedLines, &co.RelatedRFI); err != nil {
			return nil, eris.Wrap(err, "postgres: scan change order")
		}
		co.Status = model.ChangeOrderStatus(status)
		out = append(out, co)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list change orders iterate")
}

func (t *postgresTx) ListRFIs(ctx context.Context) ([]model.RFI, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT rfi_number, project_id, status, date_required, cost_impact FROM rfis`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list rfis")
	}
	defer rows.Close()

	var out []model.RFI
	for rows.Next() {
		var r model.RFI
		if err := rows.Scan(&r.RFINumber, &r.ProjectID, &r.Status, &r.DateRequired, &r.CostImpact); err != nil {
			return nil, eris.Wrap(err, "postgres: scan rfi")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list rfis iterate")
}

// Derived line metrics

func (t *postgresTx) ClearLineMetrics(ctx context.Context) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM computed_sov_metrics`)
	return eris.Wrap(err, "postgres: clear line metrics")
}

var lineMetricsColumns = []string{
	"project_id", "sov_line_id", "line_number", "description", "scheduled_value",
	"estimated_labor_cost", "estimated_material_cost", "estimated_equipment_cost",
	"estimated_sub_cost", "bid_max_cost",
	"actual_labor_cost", "actual_material_cost", "billing_total", "billing_lag",
	"rejected_co_exposure", "labor_overrun_pct", "material_variance_pct",
	"overrun_amount", "overrun_pct",
}

// InsertLineMetrics bulk-inserts via the COPY protocol.
func (t *postgresTx) InsertLineMetrics(ctx context.Context, rows []model.LineMetrics) error {
	if len(rows) == 0 {
		return nil
	}
	src := make([][]any, 0, len(rows))
	for _, m := range rows {
		src = append(src, []any{
			m.ProjectID, m.LineID, m.LineNumber, m.Description, m.ScheduledValue,
			m.EstimatedLaborCost, m.EstimatedMaterialCost, m.EstimatedEquipmentCost,
			m.EstimatedSubCost, m.BidMaxCost,
			m.ActualLaborCost, m.ActualMaterialCost, m.BillingTotal, m.BillingLag,
			m.RejectedCOExposure, m.LaborOverrunPct, m.MaterialVariancePct,
			m.OverrunAmount, m.OverrunPct,
		})
	}
	_, err := t.tx.CopyFrom(ctx, pgx.Identifier{"computed_sov_metrics"}, lineMetricsColumns, pgx.CopyFromRows(src))
	return eris.Wrap(err, "postgres: COPY INTO computed_sov_metrics")
}

func (t *postgresTx) ListLineMetrics(ctx context.Context) ([]model.LineMetrics, error) {
	rows, err := t.tx.Query(ctx, selectLineMetrics+` ORDER BY project_id, line_number`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list line metrics")
	}
	return scanLineMetricsRows(rows)
}

func (t *postgresTx) UpdateLineLabor(ctx context.Context, projectID, lineID string, cost float64) error {
	_, err := t.tx.Exec(ctx,
		`UPDATE computed_sov_metrics SET actual_labor_cost = $1 WHERE project_id = $2 AND sov_line_id = $3`,
		cost, projectID, lineID,
	)
	return eris.Wrapf(err, "postgres: update labor %s/%s", projectID, lineID)
}

func (t *postgresTx) UpdateLineMaterial(ctx context.Context, projectID, lineID string, cost float64) error {
	_, err := t.tx.Exec(ctx,
		`UPDATE computed_sov_metrics SET actual_material_cost = $1 WHERE project_id = $2 AND sov_line_id = $3`,
		cost, projectID, lineID,
	)
	return eris.Wrapf(err, "postgres: update material %s/%s", projectID, lineID)
}

func (t *postgresTx) UpdateLineBilling(ctx context.Context, projectID, lineID string, total, lag float64) error {
	_, err := t.tx.Exec(ctx,
		`UPDATE computed_sov_metrics SET billing_total = $1, billing_lag = $2 WHERE project_id = $3 AND sov_line_id = $4`,
		total, lag, projectID, lineID,
	)
	return eris.Wrapf(err, "postgres: update billing %s/%s", projectID, lineID)
}

func (t *postgresTx) UpdateLineDerived(ctx context.Context, m model.LineMetrics) error {
	_, err := t.tx.Exec(ctx,
		`UPDATE computed_sov_metrics
		 SET rejected_co_exposure = $1, labor_overrun_pct = $2, material_variance_pct = $3, overrun_amount = $4, overrun_pct = $5
		 WHERE project_id = $6 AND sov_line_id = $7`,
		m.RejectedCOExposure, m.LaborOverrunPct, m.MaterialVariancePct, m.OverrunAmount, m.OverrunPct,
		m.ProjectID, m.LineID,
	)
	return eris.Wrapf(err, "postgres: update derived %s/%s", m.ProjectID, m.LineID)
}

// Derived project metrics

func (t *postgresTx) ClearProjectMetrics(ctx context.Context) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM computed_project_metrics`)
	return eris.Wrap(err, "postgres: clear project metrics")
}

func (t *postgresTx) InsertProjectMetrics(ctx context.Context, m model.ProjectMetrics) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO computed_project_metrics (
			project_id, project_name, contract_value, total_estimated_cost,
			total_actual_labor_cost, total_actual_material_cost, total_actual_cost,
			bid_margin_pct, realized_margin_pct, margin_erosion_pct,
			pending_co_exposure, approved_co_total, rejected_co_total,
			billing_lag, open_rfis, overdue_rfis, orphan_rfis,
			health_score, status, exceedance_lines, total_lines
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)`,
		m.ProjectID, m.ProjectName, m.ContractValue, m.TotalEstimatedCost,
		m.TotalActualLaborCost, m.TotalActualMaterialCost, m.TotalActualCost,
		m.BidMarginPct, m.RealizedMarginPct, m.MarginErosionPct,
		m.PendingCOExposure, m.ApprovedCOTotal, m.RejectedCOTotal,
		m.BillingLag, m.OpenRFIs, m.OverdueRFIs, m.OrphanRFIs,
		m.HealthScore, string(m.Status), m.ExceedanceLines, m.TotalLines,
	)
	return eris.Wrapf(err, "postgres: insert project metrics %s", m.ProjectID)
}

func (t *postgresTx) ListProjectMetrics(ctx context.Context) ([]model.ProjectMetrics, error) {
	rows, err := t.tx.Query(ctx, selectProjectMetrics)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list project metrics")
	}
	return scanProjectMetricsRows(rows)
}

func (t *postgresTx) UpdateProjectHealth(ctx context.Context, projectID string, score float64, status model.HealthStatus) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE computed_project_metrics SET health_score = $1, status = $2 WHERE project_id = $3`,
		score, string(status), projectID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update health %s", projectID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("postgres: project metrics not found: %s", projectID)
	}
	return nil
}

// Triggers

func (t *postgresTx) ClearTriggers(ctx context.Context) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM triggers`)
	return eris.Wrap(err, "postgres: clear triggers")
}

var triggerColumns = []string{
	"trigger_id", "project_id", "date", "type", "severity",
	"value", "threshold", "details", "affected_sov_lines",
}

// InsertTriggers bulk-inserts via the COPY protocol.
func (t *postgresTx) InsertTriggers(ctx context.Context, rows []model.Trigger) error {
	if len(rows) == 0 {
		return nil
	}
	src := make([][]any, 0, len(rows))
	for _, tr := range rows {
		detailsJSON, linesJSON, err := marshalTriggerPayloads(tr)
		if err != nil {
			return err
		}
		src = append(src, []any{
			tr.TriggerID, tr.ProjectID, tr.Date, string(tr.Type), string(tr.Severity),
			tr.Value, tr.Threshold, []byte(detailsJSON), []byte(linesJSON),
		})
	}
	_, err := t.tx.CopyFrom(ctx, pgx.Identifier{"triggers"}, triggerColumns, pgx.CopyFromRows(src))
	return eris.Wrap(err, "postgres: COPY INTO triggers")
}

// shared pgx scan helpers

const selectLineMetrics = `
	SELECT project_id, sov_line_id, line_number, description, scheduled_value,
	       estimated_labor_cost, estimated_material_cost, estimated_equipment_cost,
	       estimated_sub_cost, bid_max_cost,
	       actual_labor_cost, actual_material_cost, billing_total, billing_lag,
	       rejected_co_exposure, labor_overrun_pct, material_variance_pct,
	       overrun_amount, overrun_pct
	FROM computed_sov_metrics`

const selectProjectMetrics = `
	SELECT project_id, project_name, contract_value, total_estimated_cost,
	       total_actual_labor_cost, total_actual_material_cost, total_actual_cost,
	       bid_margin_pct, realized_margin_pct, margin_erosion_pct,
	       pending_co_exposure, approved_co_total, rejected_co_total,
	       billing_lag, open_rfis, overdue_rfis, orphan_rfis,
	       health_score, status, exceedance_lines, total_lines
	FROM computed_project_metrics ORDER BY project_id`

func scanLineMetricsRows(rows pgx.Rows) ([]model.LineMetrics, error) {
	defer rows.Close()
	var out []model.LineMetrics
	for rows.Next() {
		var m model.LineMetrics
		if err := rows.Scan(
			&m.ProjectID, &m.LineID, &m.LineNumber, &m.Description, &m.ScheduledValue,
			&m.EstimatedLaborCost, &m.EstimatedMaterialCost, &m.EstimatedEquipmentCost,
			&m.EstimatedSubCost, &m.BidMaxCost,
			&m.ActualLaborCost, &m.ActualMaterialCost, &m.BillingTotal, &m.BillingLag,
			&m.RejectedCOExposure, &m.LaborOverrunPct, &m.MaterialVariancePct,
			&m.OverrunAmount, &m.OverrunPct,
		); err != nil {
			return nil, eris.Wrap(err, "postgres: scan line metrics")
		}
		out = append(out, m)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list line metrics iterate")
}

func scanProjectMetricsRows(rows pgx.Rows) ([]model.ProjectMetrics, error) {
	defer rows.Close()
	var out []model.ProjectMetrics
	for rows.Next() {
		var m model.ProjectMetrics
		var status string
		if err := rows.Scan(
			&m.ProjectID, &m.ProjectName, &m.ContractValue, &m.TotalEstimatedCost,
			&m.TotalActualLaborCost, &m.TotalActualMaterialCost, &m.TotalActualCost,
			&m.BidMarginPct, &m.RealizedMarginPct, &m.MarginErosionPct,
			&m.PendingCOExposure, &m.ApprovedCOTotal, &m.RejectedCOTotal,
			&m.BillingLag, &m.OpenRFIs, &m.OverdueRFIs, &m.OrphanRFIs,
			&m.HealthScore, &status, &m.ExceedanceLines, &m.TotalLines,
		); err != nil {
			return nil, eris.Wrap(err, "postgres: scan project metrics")
		}
		m.Status = model.HealthStatus(status)
		out = append(out, m)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list project metrics iterate")
}
