package anomaly

import (
	"context"
	"fmt"
	"time"

	"github.com/loganix/logwarden/internal/model"
	"github.com/loganix/logwarden/internal/storage"
)

// newTemplateSurge flags a detection window where the templates first
// seen inside that window make up a disproportionate share of every
// template the miner has ever produced.
type newTemplateSurge struct {
	cfg   Config
	store *storage.Store
}

func (n *newTemplateSurge) Name() string { return "new_template_surge" }

func (n *newTemplateSurge) Detect(ctx context.Context, records []model.LogRecord) ([]model.Anomaly, error) {
	if len(records) == 0 {
		return nil, nil
	}

	var start, end time.Time
	for i, rec := range records {
		if i == 0 || rec.EventTime.Before(start) {
			start = rec.EventTime
		}
		if i == 0 || rec.EventTime.After(end) {
			end = rec.EventTime
		}
	}

	catalog, err := n.store.ListTemplates(ctx)
	if err != nil {
		return nil, err
	}
	if len(catalog) == 0 {
		return nil, nil
	}

	var newTemplates []string
	for _, tpl := range catalog {
		if !tpl.FirstSeen.Before(start) && !tpl.FirstSeen.After(end) {
			newTemplates = append(newTemplates, tpl.TemplateID)
		}
	}
	if len(newTemplates) == 0 {
		return nil, nil
	}

	ratio := float64(len(newTemplates)) / float64(len(catalog))
	threshold := n.cfg.NewTemplateRatio
	if threshold <= 0 {
		threshold = 0.05
	}
	if ratio <= threshold {
		return nil, nil
	}

	sev := model.AnomalySeverityMedium
	if ratio > 0.2 {
		sev = model.AnomalySeverityHigh
	}

	return []model.Anomaly{{
		EventTime:         end,
		Kind:              model.AnomalyNewTemplateSurge,
		Severity:          sev,
		Description:       fmt.Sprintf("%d of %d known templates (%.0f%%) were first seen in this window", len(newTemplates), len(catalog), ratio*100),
		AffectedTemplates: newTemplates,
		LogCount:          int64(len(newTemplates)),
		Score:             ratio,
		Details: map[string]interface{}{
			"total_templates": len(catalog),
			"new_templates":   len(newTemplates),
		},
		CreatedAt: end,
	}}, nil
}
