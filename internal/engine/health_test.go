package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/marginwatch/internal/model"
)

func TestHealthScore_Perfect(t *testing.T) {
	score, status := HealthScore(model.ProjectMetrics{
		ContractValue: 1_000_000,
		TotalLines:    10,
	})
	assert.InDelta(t, 100, score, 1e-9)
	assert.Equal(t, model.StatusGreen, status)
}

func TestHealthScore_PenaltyCaps(t *testing.T) {
	// Every term driven far past its cap: 100 - 40 - 20 - 20 - 10 - 8 - 12 = 0.
	score, status := HealthScore(model.ProjectMetrics{
		ContractValue:     1_000_000,
		MarginErosionPct:  1.0,
		PendingCOExposure: 500_000,
		BillingLag:        500_000,
		OverdueRFIs:       100,
		OrphanRFIs:        100,
		ExceedanceLines:   10,
		TotalLines:        10,
	})
	assert.InDelta(t, 0, score, 1e-9)
	assert.Equal(t, model.StatusRed, status)
}

func TestHealthScore_NegativeTermsIgnored(t *testing.T) {
	// Improving margin and over-billing must not raise the score above 100.
	score, status := HealthScore(model.ProjectMetrics{
		ContractValue:    1_000_000,
		MarginErosionPct: -0.5,
		BillingLag:       -200_000,
		TotalLines:       5,
	})
	assert.InDelta(t, 100, score, 1e-9)
	assert.Equal(t, model.StatusGreen, status)
}

func TestHealthScore_ZeroContractSkipsRatios(t *testing.T) {
	score, _ := HealthScore(model.ProjectMetrics{
		PendingCOExposure: 100_000,
		BillingLag:        100_000,
	})
	assert.InDelta(t, 100, score, 1e-9)
}

func TestHealthScore_StatusBands(t *testing.T) {
	green, status := HealthScore(model.ProjectMetrics{
		ContractValue:    1_000_000,
		MarginErosionPct: 0.1, // penalty 12, score 88
	})
	assert.InDelta(t, 88, green, 1e-9)
	assert.Equal(t, model.StatusGreen, status)

	yellow, status := HealthScore(model.ProjectMetrics{
		ContractValue:    1_000_000,
		MarginErosionPct: 0.25, // penalty 30, score 70
	})
	assert.InDelta(t, 70, yellow, 1e-9)
	assert.Equal(t, model.StatusYellow, status)

	// Erosion caps at 40, so a second signal is needed to go red.
	red, status := HealthScore(model.ProjectMetrics{
		ContractValue:     1_000_000,
		MarginErosionPct:  0.5,     // capped at 40
		PendingCOExposure: 200_000, // ratio 0.2 * 200 capped at 20
	})
	assert.InDelta(t, 40, red, 1e-9)
	assert.Equal(t, model.StatusRed, status)
}
