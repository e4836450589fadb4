package anomaly

import (
	"context"
	"fmt"
	"time"

	"github.com/loganix/logwarden/internal/model"
)

// sourceSilence flags a source that has contributed no records for
// cfg.SilenceGap, evaluated against the latest record time observed
// across the whole window.
type sourceSilence struct {
	cfg Config
}

func (s *sourceSilence) Name() string { return "source_silence" }

func (s *sourceSilence) Detect(ctx context.Context, records []model.LogRecord) ([]model.Anomaly, error) {
	if len(records) == 0 {
		return nil, nil
	}

	lastSeen := map[string]time.Time{}
	var latest time.Time
	for _, rec := range records {
		if rec.EventTime.After(lastSeen[rec.Source]) {
			lastSeen[rec.Source] = rec.EventTime
		}
		if rec.EventTime.After(latest) {
			latest = rec.EventTime
		}
	}

	gap := s.cfg.SilenceGap
	if gap <= 0 {
		gap = time.Hour
	}

	var anomalies []model.Anomaly
	for source, last := range lastSeen {
		silentFor := latest.Sub(last)
		if silentFor < gap {
			continue
		}
		anomalies = append(anomalies, model.Anomaly{
			EventTime:   latest,
			Kind:        model.AnomalySourceSilence,
			Severity:    severityForSilence(silentFor, gap),
			Description: fmt.Sprintf("source %q has not logged in %s (last seen %s)", source, silentFor.Round(time.Minute), last.Format(time.RFC3339)),
			Score:       silentFor.Hours(),
			Details: map[string]interface{}{
				"source":    source,
				"last_seen": last,
			},
			CreatedAt: latest,
		})
	}
	return anomalies, nil
}

func severityForSilence(silentFor, gap time.Duration) model.AnomalySeverity {
	switch {
	case silentFor >= gap*6:
		return model.AnomalySeverityHigh
	case silentFor >= gap*3:
		return model.AnomalySeverityMedium
	default:
		return model.AnomalySeverityLow
	}
}
