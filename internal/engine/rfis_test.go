package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestHasCostImpact(t *testing.T) {
	truthy := []string{"true", "TRUE", " True ", "1", "yes", "Yes"}
	for _, v := range truthy {
		assert.True(t, hasCostImpact(v), "%q should have cost impact", v)
	}

	falsy := []string{"", "false", "no", "0", "maybe", "2"}
	for _, v := range falsy {
		assert.False(t, hasCostImpact(v), "%q should not have cost impact", v)
	}
}

func TestRequiredBefore(t *testing.T) {
	runDate := time.Date(2026, 3, 1, 15, 30, 0, 0, time.UTC)

	assert.True(t, requiredBefore("2026-02-28", runDate))
	assert.False(t, requiredBefore("2026-03-01", runDate)) // same day is not overdue
	assert.False(t, requiredBefore("2026-03-02", runDate))
	assert.False(t, requiredBefore("", runDate))
	assert.False(t, requiredBefore("not-a-date", runDate))
	assert.False(t, requiredBefore("03/01/2026", runDate))
}
