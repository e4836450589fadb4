// Package anomaly implements six detection strategies over hourly-bucketed
// windows of log records: volume z-score, error-rate surge, new-template
// surge, rare template reactivation, a statistical outlier scorer, and
// source silence. Each strategy runs independently; one strategy's failure
// never prevents the others from running.
package anomaly

import (
	"context"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/loganix/logwarden/internal/errors"
	"github.com/loganix/logwarden/internal/model"
	"github.com/loganix/logwarden/internal/storage"
)

// Strategy computes zero or more anomalies from one detection window. A
// strategy that cannot produce a verdict (not enough history, a bucket
// with zero records) returns no anomalies and no error; it returns an
// error only when it could not run at all.
type Strategy interface {
	Name() string
	Detect(ctx context.Context, window []model.LogRecord) ([]model.Anomaly, error)
}

// Config tunes detection thresholds. Defaults follow SPEC_FULL.md.
type Config struct {
	VolumeWindowHours  int           // rolling history length for the volume z-score baseline
	VolumeZThreshold   float64       // |z| above this triggers a volume anomaly
	ErrorRateThreshold float64       // fraction of WARN-or-worse records that triggers a surge
	NewTemplateRatio   float64       // fraction of the known template catalog first seen in-window that triggers a surge
	RarePercentile     float64       // occurrence-count percentile below which a template counts as "rare"
	RareHistoryWindow  time.Duration // trailing lookback used to compute the rare-template baseline
	SilenceGap         time.Duration // gap since a source's last record that counts as silence
	DetectWindow       time.Duration // how much record history RunCycle hands to every strategy
}

// DefaultConfig returns the documented default thresholds.
func DefaultConfig() Config {
	return Config{
		VolumeWindowHours:  24,
		VolumeZThreshold:   3.0,
		ErrorRateThreshold: 0.1,
		NewTemplateRatio:   0.05,
		RarePercentile:     0.05,
		RareHistoryWindow:  7 * 24 * time.Hour,
		SilenceGap:         1 * time.Hour,
		DetectWindow:       24 * time.Hour,
	}
}

// Detector runs every strategy over one cycle and persists the findings.
type Detector struct {
	store      *storage.Store
	strategies []Strategy
	window     time.Duration
	log        *zap.Logger

	mu           sync.RWMutex
	lastCycleAt  time.Time
	lastCycleErr error
}

// New builds a Detector with the standard six strategies.
func New(store *storage.Store, cfg Config, log *zap.Logger) *Detector {
	if log == nil {
		log = zap.NewNop()
	}
	window := cfg.DetectWindow
	if window <= 0 {
		window = 24 * time.Hour
	}
	return &Detector{
		store:  store,
		log:    log,
		window: window,
		strategies: []Strategy{
			&volumeZScore{cfg: cfg},
			&errorRateSurge{cfg: cfg},
			&newTemplateSurge{cfg: cfg, store: store},
			&rareTemplateReactivation{cfg: cfg, store: store},
			&statisticalOutlier{cfg: cfg},
			&sourceSilence{cfg: cfg},
		},
	}
}

// RunCycle pulls the trailing detection window of record history, runs
// every strategy against it, and persists every anomaly produced.
// Per-strategy failures are collected with multierr rather than aborting
// the cycle; the caller decides whether to treat the aggregate as fatal.
func (d *Detector) RunCycle(ctx context.Context) ([]model.Anomaly, error) {
	records, err := d.store.FindRecords(ctx, storage.RecordFilter{
		Since: storage.NewTimeBound(time.Now().Add(-d.window)),
	})
	if err != nil {
		return nil, errors.NewStorageUnavailable("find_records", err)
	}

	var (
		found []model.Anomaly
		errs  error
	)

	for _, s := range d.strategies {
		anomalies, sErr := s.Detect(ctx, records)
		if sErr != nil {
			wrapped := errors.NewCycleError(s.Name(), sErr)
			d.log.Warn("anomaly strategy failed", zap.String("strategy", s.Name()), zap.Error(sErr))
			errs = multierr.Append(errs, wrapped)
			continue
		}
		for _, a := range anomalies {
			if iErr := d.store.InsertAnomaly(ctx, a); iErr != nil {
				errs = multierr.Append(errs, errors.NewStorageUnavailable("insert_anomaly", iErr))
				continue
			}
			found = append(found, a)
		}
	}

	d.mu.Lock()
	d.lastCycleAt = time.Now()
	d.lastCycleErr = errs
	d.mu.Unlock()

	return found, errs
}

// LastCycle reports when RunCycle last completed and the error (if any) it
// returned, for use by health checks. The zero time means no cycle has run
// yet.
func (d *Detector) LastCycle() (time.Time, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.lastCycleAt, d.lastCycleErr
}
