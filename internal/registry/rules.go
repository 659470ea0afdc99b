// Package registry loads the trigger rule thresholds used by the compute
// engine. Defaults match the contractual risk policy; an optional YAML rules
// file can override individual thresholds.
package registry

import (
	"os"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Rules holds the evaluation thresholds for each trigger type.
type Rules struct {
	LineOverrunPct     float64 `yaml:"line_overrun_pct"`
	PendingCORatio     float64 `yaml:"pending_co_ratio"`
	BillingLagRatio    float64 `yaml:"billing_lag_ratio"`
	OrphanRFIThreshold float64 `yaml:"orphan_rfi_threshold"`
}

// DefaultRules returns the baked-in thresholds.
func DefaultRules() Rules {
	return Rules{
		LineOverrunPct:     0.15,
		PendingCORatio:     0.05,
		BillingLagRatio:    0.03,
		OrphanRFIThreshold: 1.0,
	}
}

// LoadRules reads threshold overrides from a YAML file, falling back to
// defaults for any threshold the file leaves at zero. An empty path returns
// the defaults unchanged.
func LoadRules(path string) (Rules, error) {
	rules := DefaultRules()
	if path == "" {
		return rules, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return rules, eris.Wrapf(err, "registry: read rules %s", path)
	}

	var overrides Rules
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return rules, eris.Wrapf(err, "registry: parse rules %s", path)
	}

	if overrides.LineOverrunPct > 0 {
		rules.LineOverrunPct = overrides.LineOverrunPct
	}
	if overrides.PendingCORatio > 0 {
		rules.PendingCORatio = overrides.PendingCORatio
	}
	if overrides.BillingLagRatio > 0 {
		rules.BillingLagRatio = overrides.BillingLagRatio
	}
	if overrides.OrphanRFIThreshold > 0 {
		rules.OrphanRFIThreshold = overrides.OrphanRFIThreshold
	}

	zap.L().Info("registry: rules loaded",
		zap.String("path", path),
		zap.Float64("line_overrun_pct", rules.LineOverrunPct),
		zap.Float64("pending_co_ratio", rules.PendingCORatio),
		zap.Float64("billing_lag_ratio", rules.BillingLagRatio),
	)
	return rules, nil
}
