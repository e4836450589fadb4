// Package assemble implements the record assembler: it merges the line
// classifier's captures, the field extractors' output, and the template
// miner's verdict into a canonical model.LogRecord.
package assemble

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/loganix/logwarden/internal/classify"
	"github.com/loganix/logwarden/internal/extract"
	"github.com/loganix/logwarden/internal/miner"
	"github.com/loganix/logwarden/internal/model"
	"github.com/loganix/logwarden/internal/registry"
)

// consumedCaptureKeys names the registry capture keys that feed a canonical
// LogRecord field directly. Any other capture key is not "consumed" and
// flows into Metadata
var consumedCaptureKeys = map[string]bool{
	"timestamp": true, "message": true, "level": true, "pri": true,
	"src_ip": true, "dst_ip": true, "src_port": true, "dst_port": true,
	"proto": true, "protocol": true,
}

// consumedJSONKeys mirrors consumedCaptureKeys for JSON-tagged records.
var consumedJSONKeys = map[string]bool{
	"timestamp": true, "time": true, "message": true, "msg": true,
	"level": true, "severity": true,
	"src_ip": true, "dst_ip": true, "src_port": true, "dst_port": true,
	"protocol": true, "proto": true,
}

// Input bundles everything the assembler needs beyond the classifier
// result and miner verdict: the raw line, the caller context, and clock/
// skew configuration.
type Input struct {
	RawLine        string
	Source         string
	FileID         string
	CallerMetadata map[string]string
	Now            time.Time     // ingested_at
	MaxFutureSkew  time.Duration // event_time future-skew bound
}

// Assemble runs the classifier, the extractors, and the miner and returns
// the canonical record. The miner call is the only suspension point beyond
// what the caller already awaited.
func Assemble(ctx context.Context, in Input, m *miner.Miner) (model.LogRecord, error) {
	cls := classify.Classify(in.RawLine)

	entry, hasEntry := lookupEntry(cls.FormatTag)

	message := extractMessage(cls, entry, in.RawLine)

	verdict, err := m.Add(ctx, message)
	if err != nil {
		return model.LogRecord{}, err
	}

	rec := model.LogRecord{
		IngestedAt:   in.Now.UTC(),
		Message:      message,
		Source:       nonEmpty(in.Source, "unknown"),
		FormatTag:    cls.FormatTag,
		TemplateID:   verdict.TemplateID,
		Template:     verdict.TemplateString,
		ClusterSize:  int(verdict.ClusterSize),
		FileID:       in.FileID,
		ParsedFields: map[string]string{},
		Metadata:     map[string]string{},
	}

	rec.Severity = assignSeverity(cls, entry, hasEntry, message)

	eventTime, ok := assignEventTime(cls, entry, hasEntry)
	if !ok {
		eventTime = in.Now.UTC()
	}
	rec.EventTime = clampFuture(eventTime, in.Now.UTC(), in.MaxFutureSkew, &rec)

	structured := structuredNetwork(cls, hasEntry)
	augmented := extract.Network(message)
	extract.UnionNetwork(&structured, augmented)
	rec.Network = structured

	populateFieldsAndMetadata(&rec, cls)

	for k, v := range in.CallerMetadata {
		rec.Metadata[k] = v
	}

	return rec, nil
}

func lookupEntry(tag string) (registry.Entry, bool) {
	for _, e := range registry.Registry {
		if e.Name == tag {
			return e, true
		}
	}
	return registry.Entry{}, false
}

func extractMessage(cls classify.Result, entry registry.Entry, rawLine string) string {
	switch cls.FormatTag {
	case registry.JSONFormatTag:
		if v, ok := cls.JSONFields["message"]; ok {
			if s, ok := v.(string); ok {
				return s
			}
		}
		if v, ok := cls.JSONFields["msg"]; ok {
			if s, ok := v.(string); ok {
				return s
			}
		}
		return rawLine
	case registry.UnknownFormatTag:
		return strings.TrimSpace(rawLine)
	default:
		if msg, ok := cls.Captures["message"]; ok {
			return msg
		}
		return strings.TrimSpace(rawLine)
	}
}

func assignSeverity(cls classify.Result, entry registry.Entry, hasEntry bool, message string) model.Severity {
	if hasEntry && entry.SeverityFromCapture != "" {
		if v, ok := cls.Captures[entry.SeverityFromCapture]; ok {
			if sev, ok := entry.SeverityMap[v]; ok {
				return sev
			}
		}
	}
	if cls.FormatTag == registry.JSONFormatTag {
		for _, key := range []string{"level", "severity"} {
			if v, ok := cls.JSONFields[key]; ok {
				if s, ok := v.(string); ok {
					if sev, ok := jsonLevelToSeverity(s); ok {
						return sev
					}
				}
			}
		}
	}
	return extract.Severity(message)
}

// jsonLevelToSeverity maps a free-text JSON "level"/"severity" string onto
// the canonical enum using the same explicit-word cascade tier as
// extract.Severity, so "error"/"warn"/etc. resolve deterministically
// regardless of case.
func jsonLevelToSeverity(s string) (model.Severity, bool) {
	sev := extract.Severity(s)
	if sev == model.SeverityInfo && !strings.EqualFold(s, "info") {
		return "", false
	}
	return sev, true
}

func assignEventTime(cls classify.Result, entry registry.Entry, hasEntry bool) (time.Time, bool) {
	if hasEntry && entry.TimeLayout != "" {
		if raw, ok := cls.Captures["timestamp"]; ok {
			if t, ok := extract.Timestamp(raw, entry.TimeLayout); ok {
				return t, true
			}
		}
	}
	if cls.FormatTag == registry.JSONFormatTag {
		if t, ok := extract.JSONTimestamp(cls.JSONFields); ok {
			return t, true
		}
	}
	return time.Time{}, false
}

// clampFuture implements the skew guard: event_time is never in
// the future beyond MaxFutureSkew; on violation it is clamped to now and
// the record is annotated.
func clampFuture(eventTime, now time.Time, maxSkew time.Duration, rec *model.LogRecord) time.Time {
	if maxSkew <= 0 {
		maxSkew = 5 * time.Minute
	}
	if eventTime.After(now.Add(maxSkew)) {
		rec.ClampedEventTime = true
		return now
	}
	return eventTime
}

func structuredNetwork(cls classify.Result, hasEntry bool) model.NetworkInfo {
	switch cls.FormatTag {
	case registry.JSONFormatTag:
		captures := map[string]string{}
		for _, key := range []string{"src_ip", "dst_ip", "src_port", "dst_port", "protocol", "proto"} {
			if v, ok := cls.JSONFields[key]; ok {
				captures[key] = fmt.Sprintf("%v", v)
			}
		}
		return extract.NetworkFromCaptures(captures)
	default:
		if !hasEntry {
			return model.NetworkInfo{}
		}
		return extract.NetworkFromCaptures(cls.Captures)
	}
}

func populateFieldsAndMetadata(rec *model.LogRecord, cls classify.Result) {
	switch cls.FormatTag {
	case registry.JSONFormatTag:
		for k, v := range cls.JSONFields {
			if consumedJSONKeys[k] {
				continue
			}
			rec.Metadata[k] = fmt.Sprintf("%v", v)
		}
	case registry.UnknownFormatTag:
		// no captures to distribute
	default:
		for k, v := range cls.Captures {
			rec.ParsedFields[k] = v
			if !consumedCaptureKeys[k] {
				rec.Metadata[k] = v
			}
		}
	}
}

func nonEmpty(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}
