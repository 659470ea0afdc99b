package model

// LineMetrics is one derived-metrics row per estimate line, fully rebuilt by
// each compute run.
type LineMetrics struct {
	ProjectID      string  `json:"project_id"`
	LineID         string  `json:"sov_line_id"`
	LineNumber     int     `json:"line_number"`
	Description    string  `json:"description"`
	ScheduledValue float64 `json:"scheduled_value"`

	EstimatedLaborCost     float64 `json:"estimated_labor_cost"`
	EstimatedMaterialCost  float64 `json:"estimated_material_cost"`
	EstimatedEquipmentCost float64 `json:"estimated_equipment_cost"`
	EstimatedSubCost       float64 `json:"estimated_sub_cost"`
	BidMaxCost             float64 `json:"bid_max_cost"`

	ActualLaborCost     float64 `json:"actual_labor_cost"`
	ActualMaterialCost  float64 `json:"actual_material_cost"`
	BillingTotal        float64 `json:"billing_total"`
	BillingLag          float64 `json:"billing_lag"`
	RejectedCOExposure  float64 `json:"rejected_co_exposure"`
	LaborOverrunPct     float64 `json:"labor_overrun_pct"`
	MaterialVariancePct float64 `json:"material_variance_pct"`
	OverrunAmount       float64 `json:"overrun_amount"`
	OverrunPct          float64 `json:"overrun_pct"`
}

// HealthStatus is the discrete project status derived from the health score.
type HealthStatus string

const (
	StatusGreen   HealthStatus = "GREEN"
	StatusYellow  HealthStatus = "YELLOW"
	StatusRed     HealthStatus = "RED"
	StatusUnknown HealthStatus = "UNKNOWN"
)

// ProjectMetrics is one derived financial summary row per project, fully
// rebuilt by each compute run.
type ProjectMetrics struct {
	ProjectID   string `json:"project_id"`
	ProjectName string `json:"project_name"`

	ContractValue           float64 `json:"contract_value"`
	TotalEstimatedCost      float64 `json:"total_estimated_cost"`
	TotalActualLaborCost    float64 `json:"total_actual_labor_cost"`
	TotalActualMaterialCost float64 `json:"total_actual_material_cost"`
	TotalActualCost         float64 `json:"total_actual_cost"`

	BidMarginPct      float64 `json:"bid_margin_pct"`
	RealizedMarginPct float64 `json:"realized_margin_pct"`
	MarginErosionPct  float64 `json:"margin_erosion_pct"`

	PendingCOExposure float64 `json:"pending_co_exposure"`
	ApprovedCOTotal   float64 `json:"approved_co_total"`
	RejectedCOTotal   float64 `json:"rejected_co_total"`
	BillingLag        float64 `json:"billing_lag"`

	OpenRFIs    int `json:"open_rfis"`
	OverdueRFIs int `json:"overdue_rfis"`
	OrphanRFIs  int `json:"orphan_rfis"`

	HealthScore     float64      `json:"health_score"`
	Status          HealthStatus `json:"status"`
	ExceedanceLines int          `json:"exceedance_lines"`
	TotalLines      int          `json:"total_lines"`
}

// RFICounters holds the per-project issue-tracking counters produced by the
// RFI aggregator and merged into project metrics.
type RFICounters struct {
	Open    int `json:"open_rfis"`
	Overdue int `json:"overdue_rfis"`
	Orphan  int `json:"orphan_rfis"`
}
