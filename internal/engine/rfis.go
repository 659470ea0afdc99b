package engine

import (
	"context"
	"strings"
	"time"

	"github.com/sells-group/marginwatch/internal/model"
	"github.com/sells-group/marginwatch/internal/store"
)

// aggregateRFIs computes per-project issue-tracking counters. It is a pure
// read: the resulting map is handed to the project financials stage rather
// than written to a table. Every known project gets an entry, even when it
// has no RFIs.
func (e *Engine) aggregateRFIs(ctx context.Context, tx store.Tx, runDate time.Time) (map[string]model.RFICounters, error) {
	contracts, err := tx.ListContracts(ctx)
	if err != nil {
		return nil, err
	}
	rfis, err := tx.ListRFIs(ctx)
	if err != nil {
		return nil, err
	}
	changeOrders, err := tx.ListChangeOrders(ctx)
	if err != nil {
		return nil, err
	}

	// RFIs already answered by a change order are not orphaned.
	linked := make(map[string]map[string]bool)
	for _, co := range changeOrders {
		if co.RelatedRFI == "" {
			continue
		}
		if linked[co.ProjectID] == nil {
			linked[co.ProjectID] = make(map[string]bool)
		}
		linked[co.ProjectID][co.RelatedRFI] = true
	}

	out := make(map[string]model.RFICounters, len(contracts))
	for _, c := range contracts {
		out[c.ProjectID] = model.RFICounters{}
	}

	for _, r := range rfis {
		counters, ok := out[r.ProjectID]
		if !ok {
			continue // RFI for an unknown project
		}
		open := r.Status != model.RFIStatusClosed
		if open {
			counters.Open++
			if requiredBefore(r.DateRequired, runDate) {
				counters.Overdue++
			}
		}
		if hasCostImpact(r.CostImpact) && !linked[r.ProjectID][r.RFINumber] {
			counters.Orphan++
		}
		out[r.ProjectID] = counters
	}
	return out, nil
}

// hasCostImpact reports whether the free-form cost-impact flag is truthy.
func hasCostImpact(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "true", "1", "yes":
		return true
	}
	return false
}

// requiredBefore reports whether an ISO required-by date falls strictly
// before the run date (day granularity). Unparseable dates never count as
// overdue.
func requiredBefore(raw string, runDate time.Time) bool {
	d, err := time.Parse("2006-01-02", strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	today := time.Date(runDate.Year(), runDate.Month(), runDate.Day(), 0, 0, 0, 0, time.UTC)
	return d.Before(today)
}
