// Package health runs dependency checks concurrently and serves liveness
// and readiness endpoints.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

type Status string

const (
	StatusUp       Status = "up"
	StatusDegraded Status = "degraded"
	StatusDown     Status = "down"
)

func (s Status) severity() int {
	switch s {
	case StatusUp:
		return 0
	case StatusDegraded:
		return 1
	}
	return 2
}

// Check tests one dependency. It should honour ctx's deadline.
type Check func(ctx context.Context) ComponentHealth

type ComponentHealth struct {
	Status    Status         `json:"status"`
	Message   string         `json:"message,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	LatencyMS int64          `json:"latency_ms"`
}

// PingCheck turns a ping function into a Check that reports onFailure when
// the ping errors. Optional dependencies pass StatusDegraded so losing them
// does not take the instance out of rotation. A nil ping is reported as
// not configured.
func PingCheck(ping func(ctx context.Context) error, onFailure Status) Check {
	return func(ctx context.Context) ComponentHealth {
		if ping == nil {
			return ComponentHealth{Status: StatusDegraded, Message: "not configured"}
		}
		if err := ping(ctx); err != nil {
			return ComponentHealth{Status: onFailure, Message: err.Error()}
		}
		return ComponentHealth{Status: StatusUp}
	}
}

type Report struct {
	Status     Status                     `json:"status"`
	Components map[string]ComponentHealth `json:"components"`
	CheckedAt  time.Time                  `json:"checked_at"`
}

// Checker holds named checks. Each check runs with its own timeout so one
// hung dependency cannot stall the whole report.
type Checker struct {
	mu           sync.RWMutex
	checks       map[string]Check
	checkTimeout time.Duration
	logger       *slog.Logger
}

func NewChecker() *Checker {
	return &Checker{
		checks:       make(map[string]Check),
		checkTimeout: 2 * time.Second,
		logger:       slog.Default().With("component", "health"),
	}
}

// Register adds or replaces the check called name.
func (c *Checker) Register(name string, check Check) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = check
}

// Run executes every check concurrently. The overall status is the worst
// component status.
func (c *Checker) Run(ctx context.Context) Report {
	c.mu.RLock()
	checks := make(map[string]Check, len(c.checks))
	for name, check := range c.checks {
		checks[name] = check
	}
	c.mu.RUnlock()

	report := Report{
		Status:     StatusUp,
		Components: make(map[string]ComponentHealth, len(checks)),
		CheckedAt:  time.Now().UTC(),
	}
	var mu sync.Mutex
	var g errgroup.Group
	for name, check := range checks {
		g.Go(func() error {
			result := c.runOne(ctx, name, check)
			mu.Lock()
			defer mu.Unlock()
			report.Components[name] = result
			if result.Status.severity() > report.Status.severity() {
				report.Status = result.Status
			}
			return nil
		})
	}
	g.Wait()
	return report
}

func (c *Checker) runOne(ctx context.Context, name string, check Check) (result ComponentHealth) {
	ctx, cancel := context.WithTimeout(ctx, c.checkTimeout)
	defer cancel()
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("health check panicked", "check", name, "panic", r)
			result = ComponentHealth{Status: StatusDown, Message: fmt.Sprintf("check panicked: %v", r)}
		}
		result.LatencyMS = time.Since(start).Milliseconds()
		if result.Status != StatusUp {
			c.logger.Warn("health check not up", "check", name, "status", result.Status, "message", result.Message)
		}
	}()
	return check(ctx)
}

// LiveHandler answers 200 while the process can serve HTTP at all.
func (c *Checker) LiveHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
	}
}

// ReadyHandler answers 503 only when a component is down. A degraded
// instance still serves searches.
func (c *Checker) ReadyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report := c.Run(r.Context())
		code := http.StatusOK
		if report.Status == StatusDown {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, report)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
