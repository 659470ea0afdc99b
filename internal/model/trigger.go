package model

// TriggerType identifies the rule that produced a trigger.
type TriggerType string

const (
	TriggerLineOverrun       TriggerType = "LINE_OVERRUN"
	TriggerPendingCOExposure TriggerType = "PENDING_CO_EXPOSURE"
	TriggerBillingLag        TriggerType = "BILLING_LAG"
	TriggerOrphanRFI         TriggerType = "ORPHAN_RFI"
)

// Severity classifies how far past its threshold a trigger's observed value
// landed.
type Severity string

const (
	SeverityLow    Severity = "LOW"
	SeverityMedium Severity = "MEDIUM"
	SeverityHigh   Severity = "HIGH"
)

// Trigger is a flagged risk event derived from the metrics snapshot.
// TriggerID is deterministic per project ("<project>-TRG-001", -002, ...),
// numbered in evaluation order. AffectedLines is empty for project-scoped
// triggers.
type Trigger struct {
	TriggerID     string         `json:"trigger_id"`
	ProjectID     string         `json:"project_id"`
	Date          string         `json:"date"`
	Type          TriggerType    `json:"type"`
	Severity      Severity       `json:"severity"`
	Value         float64        `json:"value"`
	Threshold     float64        `json:"threshold"`
	Details       map[string]any `json:"details"`
	AffectedLines []string       `json:"affected_sov_lines"`
}
