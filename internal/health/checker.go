// Package health provides periodic health checks for the ledger node.
// Three checks: store reachability, fund conservation and the data dir.
package health

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/tutu-network/cityledger/internal/domain"
	"github.com/tutu-network/cityledger/internal/infra/metrics"
)

// DefaultInterval is how often Run repeats the checks.
const DefaultInterval = 60 * time.Second

// Auditor verifies a ledger invariant against committed state.
type Auditor interface {
	Audit(ctx context.Context) error
}

// Check defines a single health check with optional recovery action.
type Check struct {
	Name      string
	CheckFn   func(ctx context.Context) error
	RecoverFn func(ctx context.Context) error
}

// Status represents the result of a health check.
type Status struct {
	Name      string    `json:"name"`
	Healthy   bool      `json:"healthy"`
	Error     string    `json:"error,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// Checker runs periodic health checks.
type Checker struct {
	mu       sync.RWMutex
	checks   []Check
	statuses []Status
	interval time.Duration
	logger   *slog.Logger
}

// NewChecker creates a health checker with the standard checks.
func NewChecker(store domain.Store, fund Auditor, dataDir string, logger *slog.Logger) *Checker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Checker{
		interval: DefaultInterval,
		logger:   logger.With("component", "health"),
		checks: []Check{
			{
				Name:    "store",
				CheckFn: store.Ping,
			},
			{
				Name:    "fund_conservation",
				CheckFn: fund.Audit,
			},
			{
				Name: "data_dir",
				CheckFn: func(ctx context.Context) error {
					return checkDataDir(dataDir)
				},
				RecoverFn: func(ctx context.Context) error {
					return recoverDataDir(dataDir)
				},
			},
		},
	}
}

// SetInterval overrides DefaultInterval. Call before Run.
func (c *Checker) SetInterval(d time.Duration) {
	if d > 0 {
		c.interval = d
	}
}

// Run starts the health check loop. Call in a goroutine.
func (c *Checker) Run(ctx context.Context) {
	// Run immediately on start
	c.RunOnce(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.RunOnce(ctx)
		}
	}
}

// RunOnce runs every check and records the results.
func (c *Checker) RunOnce(ctx context.Context) {
	statuses := make([]Status, len(c.checks))
	for i, check := range c.checks {
		s := Status{
			Name:      check.Name,
			CheckedAt: time.Now(),
		}
		err := check.CheckFn(ctx)
		if err != nil {
			c.logger.Warn("health check failed", "check", check.Name, "error", err)
			err = c.tryRecover(ctx, check, err)
		}
		if err != nil {
			s.Error = err.Error()
			metrics.HealthCheckStatus.WithLabelValues(check.Name).Set(0)
		} else {
			s.Healthy = true
			metrics.HealthCheckStatus.WithLabelValues(check.Name).Set(1)
		}
		statuses[i] = s
	}

	c.mu.Lock()
	c.statuses = statuses
	c.mu.Unlock()
}

// tryRecover runs the check's recovery action and re-checks. It returns the
// error that still stands, or nil when recovery worked.
func (c *Checker) tryRecover(ctx context.Context, check Check, cause error) error {
	if check.RecoverFn == nil {
		return cause
	}
	if err := check.RecoverFn(ctx); err != nil {
		c.logger.Error("health recovery failed", "check", check.Name, "error", err)
		return cause
	}
	if err := check.CheckFn(ctx); err != nil {
		return err
	}
	c.logger.Info("health check recovered", "check", check.Name)
	return nil
}

// Statuses returns the latest health check results.
func (c *Checker) Statuses() []Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	result := make([]Status, len(c.statuses))
	copy(result, c.statuses)
	return result
}

// IsHealthy returns true if all checks pass.
func (c *Checker) IsHealthy() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, s := range c.statuses {
		if !s.Healthy {
			return false
		}
	}
	return true
}

// ─── Check Implementations ──────────────────────────────────────────────────

func checkDataDir(dir string) error {
	if dir == "" {
		return nil // in-memory store
	}
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("check data dir: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", dir)
	}
	return nil
}

// recoverDataDir recreates a missing data directory.
func recoverDataDir(dir string) error {
	if dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("recreate data dir: %w", err)
	}
	return nil
}
