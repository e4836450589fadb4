// Package stats implements the Statistics Aggregator: read-only rollups
// computed on demand from the store's full record scan. Nothing here is
// incrementally maintained; at the volumes this pipeline targets a full
// scan per request is cheap and never risks drifting from the store.
package stats

import (
	"context"
	"sort"
	"time"

	"github.com/loganix/logwarden/internal/model"
	"github.com/loganix/logwarden/internal/storage"
)

// TopEntry is one row of a Top-N ranking.
type TopEntry struct {
	Key   string `json:"key"`
	Count int64  `json:"count"`
}

// HourlyActivity is the record count for one hour bucket.
type HourlyActivity struct {
	Hour  time.Time `json:"hour"`
	Count int64     `json:"count"`
}

// Overview is the /api/stats response shape.
type Overview struct {
	TotalRecords      int64            `json:"total_records"`
	TotalTemplates    int64            `json:"total_templates"`
	TotalFiles        int64            `json:"total_files"`
	SeverityHistogram map[string]int64 `json:"severity_histogram"`
	FormatHistogram   map[string]int64 `json:"format_histogram"`
	TopSources        []TopEntry       `json:"top_sources"`
	TopFiles          []TopEntry       `json:"top_files"`
	HourlyActivity    []HourlyActivity `json:"hourly_activity"`
	WithNetworkInfo   int64            `json:"with_network_info"`
}

// Compute produces the global rollup over every stored record.
func Compute(ctx context.Context, store *storage.Store) (Overview, error) {
	records, err := store.AllRecords(ctx)
	if err != nil {
		return Overview{}, err
	}
	templates, err := store.ListTemplates(ctx)
	if err != nil {
		return Overview{}, err
	}
	files, err := store.ListFiles(ctx)
	if err != nil {
		return Overview{}, err
	}

	ov := Overview{
		TotalTemplates:    int64(len(templates)),
		TotalFiles:        int64(len(files)),
		SeverityHistogram: map[string]int64{},
		FormatHistogram:   map[string]int64{},
	}

	sourceCounts := map[string]int64{}
	fileCounts := map[string]int64{}
	hourCounts := map[time.Time]int64{}

	cutoff := latestHour(records).Add(-23 * time.Hour)

	for _, rec := range records {
		ov.TotalRecords++
		ov.SeverityHistogram[string(rec.Severity)]++
		ov.FormatHistogram[rec.FormatTag]++
		if rec.Source != "" {
			sourceCounts[rec.Source]++
		}
		if rec.FileID != "" {
			fileCounts[rec.FileID]++
		}
		if rec.Network.HasInfo() {
			ov.WithNetworkInfo++
		}
		hour := rec.EventTime.UTC().Truncate(time.Hour)
		if !hour.Before(cutoff) {
			hourCounts[hour]++
		}
	}

	ov.TopSources = topN(sourceCounts, 10)
	ov.TopFiles = topN(fileCounts, 10)
	ov.HourlyActivity = sortedHours(hourCounts)

	return ov, nil
}

// FileOverview is the per-file /api/files/{file_id}/stats response shape,
// supplementing the base spec with a severity histogram and observed date
// range scoped to the one file.
type FileOverview struct {
	FileID            string           `json:"file_id"`
	TotalRecords      int64            `json:"total_records"`
	SeverityHistogram map[string]int64 `json:"severity_histogram"`
	EarliestEvent     time.Time        `json:"earliest_event"`
	LatestEvent       time.Time        `json:"latest_event"`
}

// FileStats scopes Overview's severity histogram and date range to one
// uploaded file.
func FileStats(ctx context.Context, store *storage.Store, fileID string) (FileOverview, error) {
	records, err := store.FindRecords(ctx, storage.RecordFilter{FileID: fileID})
	if err != nil {
		return FileOverview{}, err
	}

	fo := FileOverview{FileID: fileID, SeverityHistogram: map[string]int64{}}
	for _, rec := range records {
		fo.TotalRecords++
		fo.SeverityHistogram[string(rec.Severity)]++
		if fo.EarliestEvent.IsZero() || rec.EventTime.Before(fo.EarliestEvent) {
			fo.EarliestEvent = rec.EventTime
		}
		if rec.EventTime.After(fo.LatestEvent) {
			fo.LatestEvent = rec.EventTime
		}
	}
	return fo, nil
}

func topN(counts map[string]int64, n int) []TopEntry {
	entries := make([]TopEntry, 0, len(counts))
	for k, v := range counts {
		entries = append(entries, TopEntry{Key: k, Count: v})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Count != entries[j].Count {
			return entries[i].Count > entries[j].Count
		}
		return entries[i].Key < entries[j].Key
	})
	if len(entries) > n {
		entries = entries[:n]
	}
	return entries
}

func sortedHours(counts map[time.Time]int64) []HourlyActivity {
	out := make([]HourlyActivity, 0, len(counts))
	for h, c := range counts {
		out = append(out, HourlyActivity{Hour: h, Count: c})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Hour.Before(out[j].Hour) })
	return out
}

func latestHour(records []model.LogRecord) time.Time {
	var latest time.Time
	for _, rec := range records {
		h := rec.EventTime.UTC().Truncate(time.Hour)
		if h.After(latest) {
			latest = h
		}
	}
	if latest.IsZero() {
		return time.Now().UTC().Truncate(time.Hour)
	}
	return latest
}
