package anomaly

import (
	"context"
	"fmt"

	"github.com/loganix/logwarden/internal/model"
)

// volumeZScore flags hours whose record count deviates from the rolling
// baseline by more than cfg.VolumeZThreshold standard deviations, in
// either direction (a drop is as notable as a spike).
type volumeZScore struct {
	cfg Config
}

func (v *volumeZScore) Name() string { return "volume_zscore" }

func (v *volumeZScore) Detect(ctx context.Context, records []model.LogRecord) ([]model.Anomaly, error) {
	buckets := bucketByHour(records)
	window := v.cfg.VolumeWindowHours
	if window <= 0 {
		window = 24
	}
	if len(buckets) <= window {
		return nil, nil
	}

	var anomalies []model.Anomaly
	for i := window; i < len(buckets); i++ {
		history := buckets[i-window : i]
		counts := make([]float64, len(history))
		for j, b := range history {
			counts[j] = float64(len(b.records))
		}
		mean, std := meanStd(counts)
		if std == 0 {
			continue
		}

		current := buckets[i]
		z := (float64(len(current.records)) - mean) / std
		if z > v.cfg.VolumeZThreshold {
			anomalies = append(anomalies, newVolumeAnomaly(current, z, mean, model.AnomalyVolumeSpike))
		} else if z < -v.cfg.VolumeZThreshold {
			anomalies = append(anomalies, newVolumeAnomaly(current, z, mean, model.AnomalyVolumeDrop))
		}
	}
	return anomalies, nil
}

func newVolumeAnomaly(b hourBucket, z, mean float64, kind model.AnomalyKind) model.Anomaly {
	direction := "spike"
	if kind == model.AnomalyVolumeDrop {
		direction = "drop"
	}
	sev := model.AnomalySeverityMedium
	if absf(z) >= 5 {
		sev = model.AnomalySeverityHigh
	}
	return model.Anomaly{
		EventTime:   b.hour,
		Kind:        kind,
		Severity:    sev,
		Description: fmt.Sprintf("volume %s: %d records vs baseline mean %.1f (z=%.2f)", direction, len(b.records), mean, z),
		LogCount:    int64(len(b.records)),
		Score:       absf(z),
		Details: map[string]interface{}{
			"baseline_mean": mean,
			"zscore":        z,
		},
		CreatedAt: b.hour,
	}
}

func absf(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
