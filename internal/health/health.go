// Package health provides health checking and HTTP endpoints for the
// ingestion service.
package health

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/loganix/logwarden/internal/anomaly"
	"github.com/loganix/logwarden/internal/storage"
)

// Status represents the health status
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// Check represents a health check result
type Check struct {
	Name      string        `json:"name"`
	Status    Status        `json:"status"`
	Message   string        `json:"message,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
	Duration  time.Duration `json:"duration"`
}

// Checker performs health checks against the store and the anomaly detector.
type Checker struct {
	store          *storage.Store
	detector       *anomaly.Detector
	detectInterval time.Duration
	logger         *zap.Logger
}

// New creates a new health checker. detectInterval is the detector's
// configured cycle period, used to judge whether the last cycle is stale.
func New(store *storage.Store, detector *anomaly.Detector, detectInterval time.Duration, logger *zap.Logger) *Checker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Checker{
		store:          store,
		detector:       detector,
		detectInterval: detectInterval,
		logger:         logger,
	}
}

// CheckAll performs all health checks
func (c *Checker) CheckAll(ctx context.Context) (Status, []Check) {
	checks := []Check{
		c.checkStorage(ctx),
		c.checkDetector(),
	}

	overallStatus := StatusHealthy
	for _, check := range checks {
		if check.Status == StatusUnhealthy {
			overallStatus = StatusUnhealthy
			break
		} else if check.Status == StatusDegraded && overallStatus == StatusHealthy {
			overallStatus = StatusDegraded
		}
	}

	return overallStatus, checks
}

// checkStorage verifies the store can be scanned.
func (c *Checker) checkStorage(ctx context.Context) Check {
	start := time.Now()
	check := Check{
		Name:      "storage",
		Timestamp: start,
	}

	_, err := c.store.AllRecords(ctx)
	check.Duration = time.Since(start)

	if err != nil {
		check.Status = StatusUnhealthy
		check.Message = fmt.Sprintf("storage scan failed: %v", err)
		c.logger.Error("health check failed: storage",
			zap.Error(err),
			zap.Duration("duration", check.Duration),
		)
	} else {
		check.Status = StatusHealthy
		check.Message = "storage reachable"
		c.logger.Debug("health check passed: storage",
			zap.Duration("duration", check.Duration),
		)
	}

	return check
}

// checkDetector verifies anomaly detection cycles are running and recent.
func (c *Checker) checkDetector() Check {
	start := time.Now()
	check := Check{
		Name:      "anomaly_detector",
		Timestamp: start,
	}

	lastAt, lastErr := c.detector.LastCycle()
	check.Duration = time.Since(start)

	switch {
	case lastAt.IsZero():
		check.Status = StatusDegraded
		check.Message = "no detection cycle has run yet"
	case lastErr != nil:
		check.Status = StatusDegraded
		check.Message = fmt.Sprintf("last cycle at %s had errors: %v", lastAt.Format(time.RFC3339), lastErr)
	case c.detectInterval > 0 && time.Since(lastAt) > 3*c.detectInterval:
		check.Status = StatusUnhealthy
		check.Message = fmt.Sprintf("last detection cycle was %s ago, expected every %s", time.Since(lastAt), c.detectInterval)
	default:
		check.Status = StatusHealthy
		check.Message = fmt.Sprintf("last cycle at %s", lastAt.Format(time.RFC3339))
	}

	return check
}
