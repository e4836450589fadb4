// Package storage implements the Storage Adapter: an in-memory store of
// typed records, templates, files and anomalies. Document renders a record
// as the bson.M a MongoDB driver would receive. There is no aggregation
// pipeline and no secondary index: FindRecords scans every record and
// applies RecordFilter field by field. Every method is safe for
// concurrent use; readers never block writers for longer than a single
// map copy.
package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/loganix/logwarden/internal/errors"
	"github.com/loganix/logwarden/internal/model"
)

// Store holds all collections the pipeline needs: records, templates,
// files, and anomalies. Each collection is its own mutex-guarded map so
// that a slow scan of one never blocks inserts into another.
type Store struct {
	recordsMu sync.RWMutex
	records   map[string]model.LogRecord
	recordSeq []string // insertion order, for stable scans

	templatesMu sync.RWMutex
	templates   map[string]model.Template

	filesMu sync.RWMutex
	files   map[string]model.FileUpload

	anomaliesMu sync.RWMutex
	anomalies   []model.Anomaly
}

// New returns an empty store.
func New() *Store {
	return &Store{
		records:   make(map[string]model.LogRecord),
		templates: make(map[string]model.Template),
		files:     make(map[string]model.FileUpload),
	}
}

// InsertRecord stores one parsed log record, keyed by a caller-supplied ID
// (the ingest facade generates it with primitive.NewObjectID().Hex() so the
// record has its ID before the store round-trip completes).
func (s *Store) InsertRecord(ctx context.Context, id string, rec model.LogRecord) error {
	select {
	case <-ctx.Done():
		return errors.NewStorageUnavailable("insert_record", ctx.Err())
	default:
	}
	s.recordsMu.Lock()
	defer s.recordsMu.Unlock()
	if _, exists := s.records[id]; !exists {
		s.recordSeq = append(s.recordSeq, id)
	}
	s.records[id] = rec
	return nil
}

// GetRecord fetches a record by ID.
func (s *Store) GetRecord(ctx context.Context, id string) (model.LogRecord, bool) {
	s.recordsMu.RLock()
	defer s.recordsMu.RUnlock()
	rec, ok := s.records[id]
	return rec, ok
}

// RecordFilter narrows FindRecords. Zero-value fields are ignored.
type RecordFilter struct {
	Source          string
	SourceContains  string
	MessageContains string
	Severity        model.Severity
	FormatTag       string
	FileID          string
	TemplateID      string
	Protocol        string
	IPAddress       string
	// HasNetworkInfo, when true, restricts to records with at least one
	// populated network field. false and unset are equivalent ("no
	// constraint") per the resolved has_network_info open question.
	HasNetworkInfo bool
	Since          *TimeBound
	Until          *TimeBound
	Skip           int
	Limit          int // 0 means "all matching"
}

// TimeBound wraps a timestamp for RecordFilter.Since/Until so the filter's
// zero value (nil) means "unbounded" rather than relying on time.Time's own
// zero value, which is a valid (if unlikely) event time.
type TimeBound struct {
	unixNano int64
}

// NewTimeBound wraps a time.Time for use as RecordFilter.Since/Until.
func NewTimeBound(t time.Time) *TimeBound {
	return &TimeBound{unixNano: t.UnixNano()}
}

// FindRecords returns records matching filter, newest first, honoring
// Skip/Limit. This never blocks InsertRecord for more than the snapshot
// copy below.
func (s *Store) FindRecords(ctx context.Context, f RecordFilter) ([]model.LogRecord, error) {
	select {
	case <-ctx.Done():
		return nil, errors.NewStorageUnavailable("find_records", ctx.Err())
	default:
	}

	s.recordsMu.RLock()
	snapshot := make([]model.LogRecord, 0, len(s.recordSeq))
	for i := len(s.recordSeq) - 1; i >= 0; i-- {
		snapshot = append(snapshot, s.records[s.recordSeq[i]])
	}
	s.recordsMu.RUnlock()

	matched := make([]model.LogRecord, 0, len(snapshot))
	for _, rec := range snapshot {
		if f.Source != "" && rec.Source != f.Source {
			continue
		}
		if f.SourceContains != "" && !strings.Contains(rec.Source, f.SourceContains) {
			continue
		}
		if f.MessageContains != "" && !strings.Contains(rec.Message, f.MessageContains) {
			continue
		}
		if f.Severity != "" && rec.Severity != f.Severity {
			continue
		}
		if f.FormatTag != "" && rec.FormatTag != f.FormatTag {
			continue
		}
		if f.FileID != "" && rec.FileID != f.FileID {
			continue
		}
		if f.TemplateID != "" && rec.TemplateID != f.TemplateID {
			continue
		}
		if f.Protocol != "" && !containsFold(rec.Network.Protocols, f.Protocol) {
			continue
		}
		if f.IPAddress != "" && !matchesIP(rec, f.IPAddress) {
			continue
		}
		if f.HasNetworkInfo && !rec.Network.HasInfo() {
			continue
		}
		if f.Since != nil && rec.EventTime.UnixNano() < f.Since.unixNano {
			continue
		}
		if f.Until != nil && rec.EventTime.UnixNano() > f.Until.unixNano {
			continue
		}
		matched = append(matched, rec)
	}

	if f.Skip > 0 {
		if f.Skip >= len(matched) {
			return []model.LogRecord{}, nil
		}
		matched = matched[f.Skip:]
	}
	if f.Limit > 0 && f.Limit < len(matched) {
		matched = matched[:f.Limit]
	}
	return matched, nil
}

func containsFold(haystack []string, needle string) bool {
	for _, h := range haystack {
		if strings.EqualFold(h, needle) {
			return true
		}
	}
	return false
}

func matchesIP(rec model.LogRecord, ip string) bool {
	if rec.Network.SrcIP == ip || rec.Network.DstIP == ip {
		return true
	}
	for _, addr := range rec.Network.IPAddresses {
		if addr == ip {
			return true
		}
	}
	return false
}

// UpsertTemplate atomically creates or updates a template's occurrence
// count and last_seen timestamp.
func (s *Store) UpsertTemplate(ctx context.Context, tpl model.Template) error {
	select {
	case <-ctx.Done():
		return errors.NewStorageUnavailable("upsert_template", ctx.Err())
	default:
	}
	s.templatesMu.Lock()
	defer s.templatesMu.Unlock()

	existing, ok := s.templates[tpl.TemplateID]
	if !ok {
		s.templates[tpl.TemplateID] = tpl
		return nil
	}
	existing.Count = tpl.Count
	existing.LastSeen = tpl.LastSeen
	existing.TemplateString = tpl.TemplateString
	if existing.FirstSeen.IsZero() || tpl.FirstSeen.Before(existing.FirstSeen) {
		existing.FirstSeen = tpl.FirstSeen
	}
	s.templates[tpl.TemplateID] = existing
	return nil
}

// ListTemplates returns every known template, most-recently-seen first.
func (s *Store) ListTemplates(ctx context.Context) ([]model.Template, error) {
	select {
	case <-ctx.Done():
		return nil, errors.NewStorageUnavailable("list_templates", ctx.Err())
	default:
	}
	s.templatesMu.RLock()
	defer s.templatesMu.RUnlock()

	out := make([]model.Template, 0, len(s.templates))
	for _, t := range s.templates {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastSeen.After(out[j].LastSeen) })
	return out, nil
}

// InsertFile registers a new upload.
func (s *Store) InsertFile(ctx context.Context, f model.FileUpload) error {
	select {
	case <-ctx.Done():
		return errors.NewStorageUnavailable("insert_file", ctx.Err())
	default:
	}
	s.filesMu.Lock()
	defer s.filesMu.Unlock()
	s.files[f.FileID] = f
	return nil
}

// UpdateFile replaces an upload's stored state (status, counts, errors).
func (s *Store) UpdateFile(ctx context.Context, f model.FileUpload) error {
	return s.InsertFile(ctx, f)
}

// GetFile fetches an upload by ID.
func (s *Store) GetFile(ctx context.Context, id string) (model.FileUpload, bool) {
	s.filesMu.RLock()
	defer s.filesMu.RUnlock()
	f, ok := s.files[id]
	return f, ok
}

// ListFiles returns every upload, newest first.
func (s *Store) ListFiles(ctx context.Context) ([]model.FileUpload, error) {
	select {
	case <-ctx.Done():
		return nil, errors.NewStorageUnavailable("list_files", ctx.Err())
	default:
	}
	s.filesMu.RLock()
	defer s.filesMu.RUnlock()

	out := make([]model.FileUpload, 0, len(s.files))
	for _, f := range s.files {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UploadedAt.After(out[j].UploadedAt) })
	return out, nil
}

// InsertAnomaly appends a detected anomaly.
func (s *Store) InsertAnomaly(ctx context.Context, a model.Anomaly) error {
	select {
	case <-ctx.Done():
		return errors.NewStorageUnavailable("insert_anomaly", ctx.Err())
	default:
	}
	s.anomaliesMu.Lock()
	defer s.anomaliesMu.Unlock()
	s.anomalies = append(s.anomalies, a)
	return nil
}

// ListAnomalies returns every recorded anomaly, newest first.
func (s *Store) ListAnomalies(ctx context.Context) ([]model.Anomaly, error) {
	select {
	case <-ctx.Done():
		return nil, errors.NewStorageUnavailable("list_anomalies", ctx.Err())
	default:
	}
	s.anomaliesMu.RLock()
	defer s.anomaliesMu.RUnlock()

	out := make([]model.Anomaly, len(s.anomalies))
	copy(out, s.anomalies)
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// AllRecords snapshots every stored record, oldest first. Used by the
// statistics aggregator's global rollup and the storage health check, both
// of which need a full scan rather than a filtered query.
func (s *Store) AllRecords(ctx context.Context) ([]model.LogRecord, error) {
	select {
	case <-ctx.Done():
		return nil, errors.NewStorageUnavailable("all_records", ctx.Err())
	default:
	}
	s.recordsMu.RLock()
	defer s.recordsMu.RUnlock()

	out := make([]model.LogRecord, 0, len(s.recordSeq))
	for _, id := range s.recordSeq {
		out = append(out, s.records[id])
	}
	return out, nil
}

// Document renders a record as a bson.M, the shape a real MongoDB driver
// call would receive, for callers that want the document-store face of
// the abstraction rather than the typed struct.
func Document(rec model.LogRecord) bson.M {
	b, err := bson.Marshal(rec)
	if err != nil {
		return bson.M{}
	}
	var m bson.M
	if err := bson.Unmarshal(b, &m); err != nil {
		return bson.M{}
	}
	return m
}
