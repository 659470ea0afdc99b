package store

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/marginwatch/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS contracts (
	project_id              TEXT PRIMARY KEY,
	project_name            TEXT NOT NULL,
	original_contract_value REAL NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS sov (
	project_id      TEXT NOT NULL,
	sov_line_id     TEXT NOT NULL,
	line_number     INTEGER NOT NULL DEFAULT 0,
	description     TEXT NOT NULL DEFAULT '',
	scheduled_value REAL NOT NULL DEFAULT 0,
	PRIMARY KEY (project_id, sov_line_id)
);

CREATE TABLE IF NOT EXISTS sov_budget (
	sov_line_id              TEXT PRIMARY KEY,
	estimated_labor_cost     REAL NOT NULL DEFAULT 0,
	estimated_material_cost  REAL NOT NULL DEFAULT 0,
	estimated_equipment_cost REAL NOT NULL DEFAULT 0,
	estimated_sub_cost       REAL NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS labor_logs (
	project_id        TEXT NOT NULL,
	sov_line_id       TEXT NOT NULL,
	hours_st          REAL NOT NULL DEFAULT 0,
	hours_ot          REAL NOT NULL DEFAULT 0,
	hourly_rate       REAL NOT NULL DEFAULT 0,
	burden_multiplier REAL NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS material_deliveries (
	project_id  TEXT NOT NULL,
	sov_line_id TEXT NOT NULL,
	total_cost  REAL NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS billing_line_items (
	project_id   TEXT NOT NULL,
	sov_line_id  TEXT NOT NULL,
	total_billed REAL NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS change_orders (
	co_number          TEXT NOT NULL,
	project_id         TEXT NOT NULL,
	status             TEXT NOT NULL,
	amount             REAL NOT NULL DEFAULT 0,
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
	scheduled_value          REAL NOT NULL DEFAULT 0,
	estimated_labor_cost     REAL NOT NULL DEFAULT 0,
	estimated_material_cost  REAL NOT NULL DEFAULT 0,
	estimated_equipment_cost REAL NOT NULL DEFAULT 0,
	estimated_sub_cost       REAL NOT NULL DEFAULT 0,
	bid_max_cost             REAL NOT NULL DEFAULT 0,
	actual_labor_cost        REAL NOT NULL DEFAULT 0,
	actual_material_cost     REAL NOT NULL DEFAULT 0,
	billing_total            REAL NOT NULL DEFAULT 0,
	billing_lag              REAL NOT NULL DEFAULT 0,
	rejected_co_exposure     REAL NOT NULL DEFAULT 0,
	labor_overrun_pct        REAL NOT NULL DEFAULT 0,
	material_variance_pct    REAL NOT NULL DEFAULT 0,
	overrun_amount           REAL NOT NULL DEFAULT 0,
	overrun_pct              REAL NOT NULL DEFAULT 0,
	PRIMARY KEY (project_id, sov_line_id)
);

CREATE TABLE IF NOT EXISTS computed_project_metrics (
	project_id                 TEXT PRIMARY KEY,
	project_name               TEXT NOT NULL DEFAULT '',
	contract_value             REAL NOT NULL DEFAULT 0,
	total_estimated_cost       REAL NOT NULL DEFAULT 0,
	total_actual_labor_cost    REAL NOT NULL DEFAULT 0,
	total_actual_material_cost REAL NOT NULL DEFAULT 0,
	total_actual_cost          REAL NOT NULL DEFAULT 0,
	bid_margin_pct             REAL NOT NULL DEFAULT 0,
	realized_margin_pct        REAL NOT NULL DEFAULT 0,
	margin_erosion_pct         REAL NOT NULL DEFAULT 0,
	pending_co_exposure        REAL NOT NULL DEFAULT 0,
	approved_co_total          REAL NOT NULL DEFAULT 0,
	rejected_co_total          REAL NOT NULL DEFAULT 0,
	billing_lag                REAL NOT NULL DEFAULT 0,
	open_rfis                  INTEGER NOT NULL DEFAULT 0,
	overdue_rfis               INTEGER NOT NULL DEFAULT 0,
	orphan_rfis                INTEGER NOT NULL DEFAULT 0,
	health_score               REAL NOT NULL DEFAULT 0,
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
	value              REAL NOT NULL DEFAULT 0,
	threshold          REAL NOT NULL DEFAULT 0,
	details            TEXT NOT NULL DEFAULT '{}',
	affected_sov_lines TEXT NOT NULL DEFAULT '[]'
);

CREATE TABLE IF NOT EXISTS compute_runs (
	id          TEXT PRIMARY KEY,
	started_at  DATETIME NOT NULL,
	finished_at DATETIME NOT NULL,
	stages      TEXT NOT NULL DEFAULT '[]',
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

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// querier abstracts *sql.DB and *sql.Tx so the read/write helpers serve both
// the store's outbound surface and the engine's transactional view.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Loader surface

func (s *SQLiteStore) InsertContract(ctx context.Context, c model.Contract) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO contracts (project_id, project_name, original_contract_value) VALUES (?, ?, ?)`,
		c.ProjectID, c.ProjectName, c.ContractValue,
	)
	return eris.Wrapf(err, "sqlite: insert contract %s", c.ProjectID)
}

func (s *SQLiteStore) InsertEstimateLine(ctx context.Context, l model.EstimateLine) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sov (project_id, sov_line_id, line_number, description, scheduled_value) VALUES (?, ?, ?, ?, ?)`,
		l.ProjectID, l.LineID, l.LineNumber, l.Description, l.ScheduledValue,
	)
	return eris.Wrapf(err, "sqlite: insert sov line %s", l.LineID)
}

func (s *SQLiteStore) InsertBudget(ctx context.Context, b model.Budget) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sov_budget (sov_line_id, estimated_labor_cost, estimated_material_cost, estimated_equipment_cost, estimated_sub_cost) VALUES (?, ?, ?, ?, ?)`,
		b.LineID, b.LaborCost, b.MaterialCost, b.EquipmentCost, b.SubCost,
	)
	return eris.Wrapf(err, "sqlite: insert budget %s", b.LineID)
}

func (s *SQLiteStore) InsertLaborEvent(ctx context.Context, e model.LaborEvent) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO labor_logs (project_id, sov_line_id, hours_st, hours_ot, hourly_rate, burden_multiplier) VALUES (?, ?, ?, ?, ?, ?)`,
		e.ProjectID, e.LineID, e.HoursStandard, e.HoursOvertime, e.HourlyRate, e.BurdenMultiplier,
	)
	return eris.Wrap(err, "sqlite: insert labor event")
}

func (s *SQLiteStore) InsertMaterialEvent(ctx context.Context, e model.MaterialEvent) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO material_deliveries (project_id, sov_line_id, total_cost) VALUES (?, ?, ?)`,
		e.ProjectID, e.LineID, e.TotalCost,
	)
	return eris.Wrap(err, "sqlite: insert material event")
}

func (s *SQLiteStore) InsertBillingEvent(ctx context.Context, e model.BillingEvent) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO billing_line_items (project_id, sov_line_id, total_billed) VALUES (?, ?, ?)`,
		e.ProjectID, e.LineID, e.TotalBilled,
	)
	return eris.Wrap(err, "sqlite: insert billing event")
}

func (s *SQLiteStore) InsertChangeOrder(ctx context.Context, co model.ChangeOrder) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO change_orders (co_number, project_id, status, amount, affected_sov_lines, related_rfi) VALUES (?, ?, ?, ?, ?, ?)`,
		co.CONumber, co.ProjectID, string(co.Status), co.Amount, co.AffectedLines, co.RelatedRFI,
	)
	return eris.Wrapf(err, "sqlite: insert change order %s", co.CONumber)
}

func (s *SQLiteStore) InsertRFI(ctx context.Context, r model.RFI) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO rfis (rfi_number, project_id, status, date_required, cost_impact) VALUES (?, ?, ?, ?, ?)`,
		r.RFINumber, r.ProjectID, r.Status, r.DateRequired, r.CostImpact,
	)
	return eris.Wrapf(err, "sqlite: insert rfi %s", r.RFINumber)
}

// Outbound surface

func (s *SQLiteStore) ListProjectMetrics(ctx context.Context) ([]model.ProjectMetrics, error) {
	return listProjectMetrics(ctx, s.db)
}

func (s *SQLiteStore) ListLineMetrics(ctx context.Context, projectID string) ([]model.LineMetrics, error) {
	return listLineMetrics(ctx, s.db, `WHERE project_id = ?`, projectID)
}

func (s *SQLiteStore) ListTriggers(ctx context.Context, projectID string) ([]model.Trigger, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT trigger_id, project_id, date, type, severity, value, threshold, details, affected_sov_lines
		 FROM triggers WHERE project_id = ? ORDER BY trigger_id`,
		projectID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list triggers")
	}
	defer rows.Close()

	var out []model.Trigger
	for rows.Next() {
		t, err := scanTrigger(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list triggers iterate")
}

func (s *SQLiteStore) RecordRun(ctx context.Context, run model.ComputeRun) error {
	stagesJSON, err := json.Marshal(run.Stages)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal run stages")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO compute_runs (id, started_at, finished_at, stages, lines, projects, triggers) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.StartedAt.UTC(), run.FinishedAt.UTC(), string(stagesJSON), run.Lines, run.Projects, run.Triggers,
	)
	return eris.Wrapf(err, "sqlite: record run %s", run.ID)
}

// Begin opens the single transaction a compute run operates in.
func (s *SQLiteStore) Begin(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin")
	}
	return &sqliteTx{tx: tx}, nil
}

type sqliteTx struct {
	tx *sql.Tx
}

func (t *sqliteTx) Commit(ctx context.Context) error {
	return eris.Wrap(t.tx.Commit(), "sqlite: commit")
}

func (t *sqliteTx) Rollback(ctx context.Context) error {
	if err := t.tx.Rollback(); err != nil && err != sql.ErrTxDone {
		return eris.Wrap(err, "sqlite: rollback")
	}
	return nil
}

// Reference reads

func (t *sqliteTx) ListContracts(ctx context.Context) ([]model.Contract, error) {
	rows, err := t.tx.QueryContext(ctx,
		`SELECT project_id, project_name, original_contract_value FROM contracts ORDER BY project_id`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list contracts")
	}
	defer rows.Close()

	var out []model.Contract
	for rows.Next() {
		var c model.Contract
		if err := rows.Scan(&c.ProjectID, &c.ProjectName, &c.ContractValue); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan contract")
		}
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list contracts iterate")
}

func (t *sqliteTx) ListEstimateLines(ctx context.Context) ([]model.EstimateLine, error) {
	rows, err := t.tx.QueryContext(ctx,
		`SELECT project_id, sov_line_id, line_number, description, scheduled_value FROM sov ORDER BY project_id, line_number`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list sov lines")
	}
	defer rows.Close()

	var out []model.EstimateLine
	for rows.Next() {
		var l model.EstimateLine
		if err := rows.Scan(&l.ProjectID, &l.LineID, &l.LineNumber, &l.Description, &l.ScheduledValue); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan sov line")
		}
		out = append(out, l)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list sov lines iterate")
}

func (t *sqliteTx) ListBudgets(ctx context.Context) ([]model.Budget, error) {
	rows, err := t.tx.QueryContext(ctx,
		`SELECT sov_line_id, estimated_labor_cost, estimated_material_cost, estimated_equipment_cost, estimated_sub_cost FROM sov_budget`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list budgets")
	}
	defer rows.Close()

	var out []model.Budget
	for rows.Next() {
		var b model.Budget
		if err := rows.Scan(&b.LineID, &b.LaborCost, &b.MaterialCost, &b.EquipmentCost, &b.SubCost); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan budget")
		}
		out = append(out, b)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list budgets iterate")
}

func (t *sqliteTx) ListLaborEvents(ctx context.Context) ([]model.LaborEvent, error) {
	rows, err := t.tx.QueryContext(ctx,
		`SELECT project_id, sov_line_id, hours_st, hours_ot, hourly_rate, burden_multiplier FROM labor_logs`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list labor events")
	}
	defer rows.Close()

	var out []model.LaborEvent
	for rows.Next() {
		var e model.LaborEvent
		if err := rows.Scan(&e.ProjectID, &e.LineID, &e.HoursStandard, &e.HoursOvertime, &e.HourlyRate, &e.BurdenMultiplier); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan labor event")
		}
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list labor events iterate")
}

func (t *sqliteTx) ListMaterialEvents(ctx context.Context) ([]model.MaterialEvent, error) {
	rows, err := t.tx.QueryContext(ctx,
		`SELECT project_id, sov_line_id, total_cost FROM material_deliveries`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list material events")
	}
	defer rows.Close()

	var out []model.MaterialEvent
	for rows.Next() {
		var e model.MaterialEvent
		if err := rows.Scan(&e.ProjectID, &e.LineID, &e.TotalCost); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan material event")
		}
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list material events iterate")
}

func (t *sqliteTx) ListBillingEvents(ctx context.Context) ([]model.BillingEvent, error) {
	rows, err := t.tx.QueryContext(ctx,
		`SELECT project_id, sov_line_id, total_billed FROM billing_line_items`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list billing events")
	}
	defer rows.Close()

	var out []model.BillingEvent
	for rows.Next() {
		var e model.BillingEvent
		if err := rows.Scan(&e.ProjectID, &e.LineID, &e.TotalBilled); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan billing event")
		}
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list billing events iterate")
}

func (t *sqliteTx) ListChangeOrders(ctx context.Context) ([]model.ChangeOrder, error) {
	rows, err := t.tx.QueryContext(ctx,
		`SELECT co_number, project_id, status, amount, affected_sov_lines, related_rfi FROM change_orders`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list change orders")
	}
	defer rows.Close()

	var out []model.ChangeOrder
	for rows.Next() {
		var co model.ChangeOrder
		var status string
		if err := rows.Scan(&co.CONumber, &co.ProjectID, &status, &co.Amount, &co.AffectedLines, &co.RelatedRFI); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan change order")
		}
		co.Status = model.ChangeOrderStatus(status)
		out = append(out, co)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list change orders iterate")
}

func (t *sqliteTx) ListRFIs(ctx context.Context) ([]model.RFI, error) {
	rows, err := t.tx.QueryContext(ctx,
		`SELECT rfi_number, project_id, status, date_required, cost_impact FROM rfis`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list rfis")
	}
	defer rows.Close()

	var out []model.RFI
	for rows.Next() {
		var r model.RFI
		if err := rows.Scan(&r.RFINumber, &r.ProjectID, &r.Status, &r.DateRequired, &r.CostImpact); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan rfi")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list rfis iterate")
}

// Derived line metrics

func (t *sqliteTx) ClearLineMetrics(ctx context.Context) error {
	_, err := t.tx.ExecContext(ctx, `DELETE FROM computed_sov_metrics`)
	return eris.Wrap(err, "sqlite: clear line metrics")
}

func (t *sqliteTx) InsertLineMetrics(ctx context.Context, rows []model.LineMetrics) error {
	stmt, err := t.tx.PrepareContext(ctx, `
		INSERT INTO computed_sov_metrics (
			project_id, sov_line_id, line_number, description, scheduled_value,
			estimated_labor_cost, estimated_material_cost, estimated_equipment_cost,
			estimated_sub_cost, bid_max_cost,
			actual_labor_cost, actual_material_cost, billing_total, billing_lag,
			rejected_co_exposure, labor_overrun_pct, material_variance_pct,
			overrun_amount, overrun_pct
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare insert line metrics")
	}
	defer stmt.Close()

	for _, m := range rows {
		if _, err := stmt.ExecContext(ctx,
			m.ProjectID, m.LineID, m.LineNumber, m.Description, m.ScheduledValue,
			m.EstimatedLaborCost, m.EstimatedMaterialCost, m.EstimatedEquipmentCost,
			m.EstimatedSubCost, m.BidMaxCost,
			m.ActualLaborCost, m.ActualMaterialCost, m.BillingTotal, m.BillingLag,
			m.RejectedCOExposure, m.LaborOverrunPct, m.MaterialVariancePct,
			m.OverrunAmount, m.OverrunPct,
		); err != nil {
			return eris.Wrapf(err, "sqlite: insert line metrics %s/%s", m.ProjectID, m.LineID)
		}
	}
	return nil
}

func (t *sqliteTx) ListLineMetrics(ctx context.Context) ([]model.LineMetrics, error) {
	return listLineMetrics(ctx, t.tx, "")
}

func (t *sqliteTx) UpdateLineLabor(ctx context.Context, projectID, lineID string, cost float64) error {
	_, err := t.tx.ExecContext(ctx,
		`UPDATE computed_sov_metrics SET actual_labor_cost = ? WHERE project_id = ? AND sov_line_id = ?`,
		cost, projectID, lineID,
	)
	return eris.Wrapf(err, "sqlite: update labor %s/%s", projectID, lineID)
}

func (t *sqliteTx) UpdateLineMaterial(ctx context.Context, projectID, lineID string, cost float64) error {
	_, err := t.tx.ExecContext(ctx,
		`UPDATE computed_sov_metrics SET actual_material_cost = ? WHERE project_id = ? AND sov_line_id = ?`,
		cost, projectID, lineID,
	)
	return eris.Wrapf(err, "sqlite: update material %s/%s", projectID, lineID)
}

func (t *sqliteTx) UpdateLineBilling(ctx context.Context, projectID, lineID string, total, lag float64) error {
	_, err := t.tx.ExecContext(ctx,
		`UPDATE computed_sov_metrics SET billing_total = ?, billing_lag = ? WHERE project_id = ? AND sov_line_id = ?`,
		total, lag, projectID, lineID,
	)
	return eris.Wrapf(err, "sqlite: update billing %s/%s", projectID, lineID)
}

func (t *sqliteTx) UpdateLineDerived(ctx context.Context, m model.LineMetrics) error {
	_, err := t.tx.ExecContext(ctx,
		`UPDATE computed_sov_metrics
		 SET rejected_co_exposure = ?, labor_overrun_pct = ?, material_variance_pct = ?, overrun_amount = ?, overrun_pct = ?
		 WHERE project_id = ? AND sov_line_id = ?`,
		m.RejectedCOExposure, m.LaborOverrunPct, m.MaterialVariancePct, m.OverrunAmount, m.OverrunPct,
		m.ProjectID, m.LineID,
	)
	return eris.Wrapf(err, "sqlite: update derived %s/%s", m.ProjectID, m.LineID)
}

// Derived project metrics

func (t *sqliteTx) ClearProjectMetrics(ctx context.Context) error {
	_, err := t.tx.ExecContext(ctx, `DELETE FROM computed_project_metrics`)
	return eris.Wrap(err, "sqlite: clear project metrics")
}

func (t *sqliteTx) InsertProjectMetrics(ctx context.Context, m model.ProjectMetrics) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO computed_project_metrics (
			project_id, project_name, contract_value, total_estimated_cost,
			total_actual_labor_cost, total_actual_material_cost, total_actual_cost,
			bid_margin_pct, realized_margin_pct, margin_erosion_pct,
			pending_co_exposure, approved_co_total, rejected_co_total,
			billing_lag, open_rfis, overdue_rfis, orphan_rfis,
			health_score, status, exceedance_lines, total_lines
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ProjectID, m.ProjectName, m.ContractValue, m.TotalEstimatedCost,
		m.TotalActualLaborCost, m.TotalActualMaterialCost, m.TotalActualCost,
		m.BidMarginPct, m.RealizedMarginPct, m.MarginErosionPct,
		m.PendingCOExposure, m.ApprovedCOTotal, m.RejectedCOTotal,
		m.BillingLag, m.OpenRFIs, m.OverdueRFIs, m.OrphanRFIs,
		m.HealthScore, string(m.Status), m.ExceedanceLines, m.TotalLines,
	)
	return eris.Wrapf(err, "sqlite: insert project metrics %s", m.ProjectID)
}

func (t *sqliteTx) ListProjectMetrics(ctx context.Context) ([]model.ProjectMetrics, error) {
	return listProjectMetrics(ctx, t.tx)
}

func (t *sqliteTx) UpdateProjectHealth(ctx context.Context, projectID string, score float64, status model.HealthStatus) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE computed_project_metrics SET health_score = ?, status = ? WHERE project_id = ?`,
		score, string(status), projectID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update health %s", projectID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Errorf("sqlite: project metrics not found: %s", projectID)
	}
	return nil
}

// Triggers

func (t *sqliteTx) ClearTriggers(ctx context.Context) error {
	_, err := t.tx.ExecContext(ctx, `DELETE FROM triggers`)
	return eris.Wrap(err, "sqlite: clear triggers")
}

func (t *sqliteTx) InsertTriggers(ctx context.Context, rows []model.Trigger) error {
	stmt, err := t.tx.PrepareContext(ctx, `
		INSERT INTO triggers (trigger_id, project_id, date, type, severity, value, threshold, details, affected_sov_lines)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare insert triggers")
	}
	defer stmt.Close()

	for _, tr := range rows {
		detailsJSON, linesJSON, err := marshalTriggerPayloads(tr)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx,
			tr.TriggerID, tr.ProjectID, tr.Date, string(tr.Type), string(tr.Severity),
			tr.Value, tr.Threshold, detailsJSON, linesJSON,
		); err != nil {
			return eris.Wrapf(err, "sqlite: insert trigger %s", tr.TriggerID)
		}
	}
	return nil
}

// shared scan helpers

func listLineMetrics(ctx context.Context, q querier, where string, args ...any) ([]model.LineMetrics, error) {
	query := `
		SELECT project_id, sov_line_id, line_number, description, scheduled_value,
		       estimated_labor_cost, estimated_material_cost, estimated_equipment_cost,
		       estimated_sub_cost, bid_max_cost,
		       actual_labor_cost, actual_material_cost, billing_total, billing_lag,
		       rejected_co_exposure, labor_overrun_pct, material_variance_pct,
		       overrun_amount, overrun_pct
		FROM computed_sov_metrics ` + where + ` ORDER BY project_id, line_number`

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list line metrics")
	}
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
			return nil, eris.Wrap(err, "sqlite: scan line metrics")
		}
		out = append(out, m)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list line metrics iterate")
}

func listProjectMetrics(ctx context.Context, q querier) ([]model.ProjectMetrics, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT project_id, project_name, contract_value, total_estimated_cost,
		       total_actual_labor_cost, total_actual_material_cost, total_actual_cost,
		       bid_margin_pct, realized_margin_pct, margin_erosion_pct,
		       pending_co_exposure, approved_co_total, rejected_co_total,
		       billing_lag, open_rfis, overdue_rfis, orphan_rfis,
		       health_score, status, exceedance_lines, total_lines
		FROM computed_project_metrics ORDER BY project_id`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list project metrics")
	}
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
			return nil, eris.Wrap(err, "sqlite: scan project metrics")
		}
		m.Status = model.HealthStatus(status)
		out = append(out, m)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list project metrics iterate")
}

func scanTrigger(rows *sql.Rows) (model.Trigger, error) {
	var tr model.Trigger
	var typ, sev, detailsJSON, linesJSON string
	if err := rows.Scan(&tr.TriggerID, &tr.ProjectID, &tr.Date, &typ, &sev, &tr.Value, &tr.Threshold, &detailsJSON, &linesJSON); err != nil {
		return tr, eris.Wrap(err, "sqlite: scan trigger")
	}
	tr.Type = model.TriggerType(typ)
	tr.Severity = model.Severity(sev)
	if err := json.Unmarshal([]byte(detailsJSON), &tr.Details); err != nil {
		return tr, eris.Wrapf(err, "sqlite: unmarshal trigger details %s", tr.TriggerID)
	}
	if err := json.Unmarshal([]byte(linesJSON), &tr.AffectedLines); err != nil {
		return tr, eris.Wrapf(err, "sqlite: unmarshal trigger lines %s", tr.TriggerID)
	}
	return tr, nil
}

func marshalTriggerPayloads(tr model.Trigger) (string, string, error) {
	details := tr.Details
	if details == nil {
		details = map[string]any{}
	}
	detailsJSON, err := json.Marshal(details)
	if err != nil {
		return "", "", eris.Wrapf(err, "marshal trigger details %s", tr.TriggerID)
	}
	lines := tr.AffectedLines
	if lines == nil {
		lines = []string{}
	}
	linesJSON, err := json.Marshal(lines)
	if err != nil {
		return "", "", eris.Wrapf(err, "marshal trigger lines %s", tr.TriggerID)
	}
	return string(detailsJSON), string(linesJSON), nil
}
