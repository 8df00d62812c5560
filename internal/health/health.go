// Package health reports whether the watch loop is keeping the firewall
// in sync, for use behind an HTTP probe.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"grimm.is/originguard/internal/clock"
	"grimm.is/originguard/internal/firewall"
	"grimm.is/originguard/internal/policy"
	"grimm.is/originguard/internal/scheduler"
)

// Status represents the health status of a component.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// Check represents a single health check.
type Check struct {
	Name        string        `json:"name"`
	Status      Status        `json:"status"`
	Message     string        `json:"message,omitempty"`
	LastChecked time.Time     `json:"last_checked"`
	Duration    time.Duration `json:"duration_ms"`
}

// Report represents the overall health report.
type Report struct {
	Status    Status           `json:"status"`
	Checks    map[string]Check `json:"checks"`
	Timestamp time.Time        `json:"timestamp"`
}

// CheckFunc is a function that performs a health check.
type CheckFunc func(ctx context.Context) Check

// Checker runs registered checks and caches the report briefly.
type Checker struct {
	mu     sync.RWMutex
	checks map[string]CheckFunc
	cache  *Report
	ttl    time.Duration
	clock  clock.Clock
}

// NewChecker creates a checker with no checks registered.
func NewChecker(clk clock.Clock) *Checker {
	return &Checker{
		checks: make(map[string]CheckFunc),
		ttl:    5 * time.Second,
		clock:  clock.Or(clk),
	}
}

// Register adds a health check.
func (c *Checker) Register(name string, fn CheckFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = fn
	c.cache = nil
}

// Check runs all health checks and returns a report.
func (c *Checker) Check(ctx context.Context) Report {
	c.mu.RLock()
	if c.cache != nil && c.clock.Since(c.cache.Timestamp) < c.ttl {
		report := *c.cache
		c.mu.RUnlock()
		return report
	}
	checkFuncs := make(map[string]CheckFunc, len(c.checks))
	for name, fn := range c.checks {
		checkFuncs[name] = fn
	}
	c.mu.RUnlock()

	checks := make(map[string]Check, len(checkFuncs))
	overall := StatusHealthy

	var wg sync.WaitGroup
	var mu sync.Mutex
	for name, fn := range checkFuncs {
		wg.Add(1)
		go func(name string, fn CheckFunc) {
			defer wg.Done()
			start := c.clock.Now()
			check := fn(ctx)
			check.Name = name
			check.LastChecked = start
			check.Duration = c.clock.Since(start)

			mu.Lock()
			defer mu.Unlock()
			checks[name] = check
			overall = worse(overall, check.Status)
		}(name, fn)
	}
	wg.Wait()

	report := Report{
		Status:    overall,
		Checks:    checks,
		Timestamp: c.clock.Now(),
	}

	c.mu.Lock()
	c.cache = &report
	c.mu.Unlock()

	return report
}

func worse(a, b Status) Status {
	rank := map[Status]int{StatusHealthy: 0, StatusDegraded: 1, StatusUnhealthy: 2}
	if rank[b] > rank[a] {
		return b
	}
	return a
}

// Handler returns an HTTP handler serving the JSON report.
// Degraded still answers 200.
func (c *Checker) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
		defer cancel()

		report := c.Check(ctx)

		w.Header().Set("Content-Type", "application/json")
		if report.Status == StatusUnhealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}
		json.NewEncoder(w).Encode(report)
	}
}

// LivenessHandler returns a simple liveness probe handler.
func LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}
}

// LoopCheck judges the sync loop by its status. A loop that has not
// finished a run yet is degraded, as is one with failures below
// maxFailures. A loop whose last run is older than maxAge is unhealthy.
func LoopCheck(status func() scheduler.TaskStatus, maxAge time.Duration, maxFailures int, clk clock.Clock) CheckFunc {
	clk = clock.Or(clk)
	return func(ctx context.Context) Check {
		st := status()
		switch {
		case st.RunCount == 0:
			return Check{Status: StatusDegraded, Message: "waiting for first run"}
		case maxFailures > 0 && st.Failures >= maxFailures:
			return Check{Status: StatusUnhealthy, Message: fmt.Sprintf("%d consecutive failures: %s", st.Failures, st.LastError)}
		case st.Failures > 0:
			return Check{Status: StatusDegraded, Message: fmt.Sprintf("last run failed: %s", st.LastError)}
		}
		if age := clk.Since(st.LastRun); maxAge > 0 && age > maxAge {
			return Check{Status: StatusUnhealthy, Message: fmt.Sprintf("last run %s ago", age.Truncate(time.Second))}
		}
		return Check{Status: StatusHealthy, Message: fmt.Sprintf("%d runs", st.RunCount)}
	}
}

// Querier reads the live firewall state.
type Querier interface {
	Query(ctx context.Context, pol policy.Policy) (firewall.State, error)
}

// FirewallCheck verifies the bootstrap rules are installed and the
// allow-set is populated.
func FirewallCheck(q Querier, pol policy.Policy) CheckFunc {
	return func(ctx context.Context) Check {
		st, err := q.Query(ctx, pol)
		if err != nil {
			return Check{Status: StatusUnhealthy, Message: fmt.Sprintf("query failed: %v", err)}
		}
		if !st.Bootstrapped {
			return Check{Status: StatusUnhealthy, Message: "gate rules missing"}
		}
		if st.V4.Len() == 0 {
			return Check{Status: StatusDegraded, Message: "v4 allow-set is empty"}
		}
		return Check{Status: StatusHealthy, Message: fmt.Sprintf("v4=%d v6=%d", st.V4.Len(), st.V6.Len())}
	}
}
