package anomaly

import (
	"context"
	"fmt"

	"github.com/loganix/logwarden/internal/model"
)

// errorRateSurge flags hours where the fraction of ERROR-or-worse records
// (WARN included, see isErrorOrWorse) both exceeds cfg.ErrorRateThreshold and doubles the mean rate of every
// earlier hour in the window, so a corpus whose steady state already runs
// hot never alarms on its own baseline.
type errorRateSurge struct {
	cfg Config
}

func (e *errorRateSurge) Name() string { return "error_rate_surge" }

func (e *errorRateSurge) Detect(ctx context.Context, records []model.LogRecord) ([]model.Anomaly, error) {
	buckets := bucketByHour(records)
	if len(buckets) == 0 {
		return nil, nil
	}

	rates := make([]float64, len(buckets))
	errorCounts := make([]int, len(buckets))
	for i, b := range buckets {
		if len(b.records) == 0 {
			continue
		}
		for _, rec := range b.records {
			if isErrorOrWorse(rec.Severity) {
				errorCounts[i]++
			}
		}
		rates[i] = float64(errorCounts[i]) / float64(len(b.records))
	}

	var baseline float64
	if len(rates) > 1 {
		baseline, _ = meanStd(rates[:len(rates)-1])
	}

	threshold := e.cfg.ErrorRateThreshold
	if threshold <= 0 {
		threshold = 0.1
	}

	var anomalies []model.Anomaly
	for i, b := range buckets {
		if len(b.records) == 0 {
			continue
		}
		rate := rates[i]
		if rate <= threshold || rate <= baseline*2 {
			continue
		}

		sev := model.AnomalySeverityHigh
		if rate > 0.5 {
			sev = model.AnomalySeverityCritical
		}
		anomalies = append(anomalies, model.Anomaly{
			EventTime:   b.hour,
			Kind:        model.AnomalyHighErrorRate,
			Severity:    sev,
			Description: fmt.Sprintf("%d of %d records (%.0f%%) were ERROR or worse, baseline %.0f%%", errorCounts[i], len(b.records), rate*100, baseline*100),
			LogCount:    int64(errorCounts[i]),
			Score:       rate,
			Details: map[string]interface{}{
				"total_records": len(b.records),
				"error_records": errorCounts[i],
				"baseline_rate": baseline,
			},
			CreatedAt: b.hour,
		})
	}
	return anomalies, nil
}

func isErrorOrWorse(sev model.Severity) bool {
	switch sev {
	case model.SeverityEmergency, model.SeverityAlert, model.SeverityCritical, model.SeverityError, model.SeverityWarn:
		return true
	default:
		return false
	}
}
