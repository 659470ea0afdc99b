package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/marginwatch/internal/model"
)

func TestClassifySeverity(t *testing.T) {
	tests := []struct {
		name      string
		value     float64
		threshold float64
		want      model.Severity
	}{
		{"double threshold is high", 0.31, 0.15, model.SeverityHigh},
		{"exactly double is high", 0.30, 0.15, model.SeverityHigh},
		{"quarter over is medium", 0.19, 0.15, model.SeverityMedium},
		{"just over is low", 0.16, 0.15, model.SeverityLow},
		{"at threshold is low", 0.15, 0.15, model.SeverityLow},
		{"zero threshold is low", 100, 0, model.SeverityLow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifySeverity(tt.value, tt.threshold))
		})
	}
}
