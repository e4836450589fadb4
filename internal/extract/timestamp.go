package extract

import (
	"strings"
	"time"
)

// Timestamp parses a captured timestamp string with the given registry
// layout. It returns ok=false if layout is empty or parsing fails; on
// failure the caller leaves event_time unset and the assembler falls back.
func Timestamp(raw, layout string) (time.Time, bool) {
	if layout == "" || raw == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(layout, raw)
	if err != nil {
		return time.Time{}, false
	}
	if t.Year() == 0 {
		// Layouts without a year component (bare syslog) parse into year 0;
		// assume the current year, matching how a live ingest stream would
		// interpret an undated line.
		now := time.Now().UTC()
		t = t.AddDate(now.Year(), 0, 0)
	}
	return t.UTC(), true
}

// JSONTimestamp implements the JSON-record timestamp lookup: check
// "timestamp" then "time", accepting ISO-8601 with a trailing "Z"
// rewritten to "+00:00".
func JSONTimestamp(fields map[string]interface{}) (time.Time, bool) {
	for _, key := range []string{"timestamp", "time"} {
		raw, ok := fields[key]
		if !ok {
			continue
		}
		s, ok := raw.(string)
		if !ok {
			continue
		}
		if t, ok := parseISO8601(s); ok {
			return t, true
		}
	}
	return time.Time{}, false
}

func parseISO8601(s string) (time.Time, bool) {
	if strings.HasSuffix(s, "Z") {
		s = strings.TrimSuffix(s, "Z") + "+00:00"
	}
	layouts := []string{
		"2006-01-02T15:04:05.999999999-07:00",
		"2006-01-02T15:04:05-07:00",
		time.RFC3339Nano,
		time.RFC3339,
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
