package model

// Contract is a project's immutable contract reference data.
type Contract struct {
	ProjectID     string  `json:"project_id"`
	ProjectName   string  `json:"project_name"`
	ContractValue float64 `json:"original_contract_value"`
}

// EstimateLine is a single schedule-of-values line within a project.
type EstimateLine struct {
	ProjectID      string  `json:"project_id"`
	LineID         string  `json:"sov_line_id"`
	LineNumber     int     `json:"line_number"`
	Description    string  `json:"description"`
	ScheduledValue float64 `json:"scheduled_value"`
}

// Budget holds the four bid-estimate cost components for an estimate line.
// A line without a budget row defaults every component to zero.
type Budget struct {
	LineID        string  `json:"sov_line_id"`
	LaborCost     float64 `json:"estimated_labor_cost"`
	MaterialCost  float64 `json:"estimated_material_cost"`
	EquipmentCost float64 `json:"estimated_equipment_cost"`
	SubCost       float64 `json:"estimated_sub_cost"`
}

// BidMaxCost is the contractual cost ceiling for the line: the sum of the
// four estimate components.
func (b Budget) BidMaxCost() float64 {
	return b.LaborCost + b.MaterialCost + b.EquipmentCost + b.SubCost
}

// LaborEvent is one labor log entry against an estimate line.
type LaborEvent struct {
	ProjectID        string  `json:"project_id"`
	LineID           string  `json:"sov_line_id"`
	HoursStandard    float64 `json:"hours_st"`
	HoursOvertime    float64 `json:"hours_ot"`
	HourlyRate       float64 `json:"hourly_rate"`
	BurdenMultiplier float64 `json:"burden_multiplier"`
}

// MaterialEvent is one material delivery against an estimate line.
type MaterialEvent struct {
	ProjectID string  `json:"project_id"`
	LineID    string  `json:"sov_line_id"`
	TotalCost float64 `json:"total_cost"`
}

// BillingEvent is a cumulative billing snapshot for an estimate line. Only
// the maximum total_billed across snapshots is authoritative.
type BillingEvent struct {
	ProjectID   string  `json:"project_id"`
	LineID      string  `json:"sov_line_id"`
	TotalBilled float64 `json:"total_billed"`
}

// ChangeOrderStatus is the lifecycle state of a change order.
type ChangeOrderStatus string

const (
	ChangeOrderPending  ChangeOrderStatus = "Pending"
	ChangeOrderApproved ChangeOrderStatus = "Approved"
	ChangeOrderRejected ChangeOrderStatus = "Rejected"
)

// ChangeOrder is a proposed contract/cost modification. AffectedLines holds
// the raw textual list payload; it may be empty or malformed and is parsed
// tolerantly by the engine.
type ChangeOrder struct {
	CONumber      string            `json:"co_number"`
	ProjectID     string            `json:"project_id"`
	Status        ChangeOrderStatus `json:"status"`
	Amount        float64           `json:"amount"`
	AffectedLines string            `json:"affected_sov_lines"`
	RelatedRFI    string            `json:"related_rfi"`
}

// RFI is a request for information. DateRequired is an ISO date string;
// CostImpact is a free-form flag matched case-insensitively against
// {"true", "1", "yes"}.
type RFI struct {
	RFINumber    string `json:"rfi_number"`
	ProjectID    string `json:"project_id"`
	Status       string `json:"status"`
	DateRequired string `json:"date_required"`
	CostImpact   string `json:"cost_impact"`
}

// RFIStatusClosed is the only status that excludes an RFI from open counts.
const RFIStatusClosed = "Closed"
