package anomaly

import (
	"context"
	"fmt"
	"time"

	"github.com/loganix/logwarden/internal/model"
	"github.com/loganix/logwarden/internal/storage"
)

// rareTemplateReactivation flags a template whose 2-hour occurrence count
// exceeds 3x the rare-occurrence threshold for that template population: a
// pure volume check over a trailing 7-day baseline, re-evaluated every
// cycle, with no silence precondition.
type rareTemplateReactivation struct {
	cfg   Config
	store *storage.Store
}

func (r *rareTemplateReactivation) Name() string { return "rare_template_reactivation" }

func (r *rareTemplateReactivation) Detect(ctx context.Context, records []model.LogRecord) ([]model.Anomaly, error) {
	if len(records) == 0 {
		return nil, nil
	}

	historyWindow := r.cfg.RareHistoryWindow
	if historyWindow <= 0 {
		historyWindow = 7 * 24 * time.Hour
	}
	history, err := r.store.FindRecords(ctx, storage.RecordFilter{
		Since: storage.NewTimeBound(time.Now().Add(-historyWindow)),
	})
	if err != nil {
		return nil, err
	}
	if len(history) == 0 {
		return nil, nil
	}

	totalCounts := map[string]int64{}
	templateText := map[string]string{}
	for _, rec := range history {
		totalCounts[rec.TemplateID]++
		templateText[rec.TemplateID] = rec.Template
	}

	counts := make([]int64, 0, len(totalCounts))
	for _, c := range totalCounts {
		counts = append(counts, c)
	}
	rareThreshold := percentile(counts, r.cfg.RarePercentile)

	recentCutoff := time.Now().Add(-2 * time.Hour)
	recentCounts := map[string]int64{}
	for _, rec := range records {
		if rec.EventTime.Before(recentCutoff) {
			continue
		}
		recentCounts[rec.TemplateID]++
		templateText[rec.TemplateID] = rec.Template
	}

	var anomalies []model.Anomaly
	for id, recent := range recentCounts {
		total, known := totalCounts[id]
		if !known || float64(total) > rareThreshold {
			continue
		}
		if float64(recent) <= rareThreshold*3 {
			continue
		}

		score := float64(recent)
		if rareThreshold > 0 {
			score = float64(recent) / rareThreshold
		}
		anomalies = append(anomalies, model.Anomaly{
			EventTime:         time.Now(),
			Kind:              model.AnomalyRareTemplate,
			Severity:          model.AnomalySeverityMedium,
			Description:       fmt.Sprintf("rare template %q saw %d occurrences in the last 2 hours (rare threshold %.1f)", templateText[id], recent, rareThreshold),
			AffectedTemplates: []string{id},
			LogCount:          recent,
			Score:             score,
			Details: map[string]interface{}{
				"template_id":      id,
				"recent_count":     recent,
				"historical_total": total,
				"rare_threshold":   rareThreshold,
			},
			CreatedAt: time.Now(),
		})
	}
	return anomalies, nil
}
