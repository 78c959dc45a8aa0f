package disputes

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

// CheckResult is the outcome of pinging one external system.
type CheckResult struct {
	Name     string `json:"name"`
	OK       bool   `json:"ok"`
	Error    string `json:"error,omitempty"`
	Duration string `json:"duration"`
}

// Check pings every boundary concurrently. Results keep a fixed order.
func (o *Orchestrator) Check(ctx context.Context) []CheckResult {
	probes := []struct {
		name string
		ping func(context.Context) error
	}{
		{"sheet", o.sheet.Ping},
		{"profile", o.bookings.Ping},
		{"warehouse", o.logs.Ping},
		{"audit", o.audit.Ping},
	}

	results := make([]CheckResult, len(probes))
	var g errgroup.Group
	for i, probe := range probes {
		g.Go(func() error {
			start := time.Now()
			err := probe.ping(ctx)
			results[i] = CheckResult{Name: probe.name, OK: err == nil, Duration: time.Since(start).Round(time.Millisecond).String()}
			if err != nil {
				results[i].Error = err.Error()
				o.log.Warn("connection check failed", "system", probe.name, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// AllOK reports whether every check passed.
func AllOK(results []CheckResult) bool {
	for _, r := range results {
		if !r.OK {
			return false
		}
	}
	return true
}
