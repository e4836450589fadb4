// Package ingest implements the Query & Ingest Facade: the single entry
// point composing the line classifier, field extractors, template miner,
// record assembler, storage adapter, statistics aggregator, and anomaly
// detector into the operations the HTTP adapter (and tests) call directly.
package ingest

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/loganix/logwarden/internal/anomaly"
	"github.com/loganix/logwarden/internal/assemble"
	"github.com/loganix/logwarden/internal/audit"
	"github.com/loganix/logwarden/internal/cache"
	"github.com/loganix/logwarden/internal/config"
	"github.com/loganix/logwarden/internal/errors"
	"github.com/loganix/logwarden/internal/metrics"
	"github.com/loganix/logwarden/internal/miner"
	"github.com/loganix/logwarden/internal/model"
	"github.com/loganix/logwarden/internal/registry"
	"github.com/loganix/logwarden/internal/security"
	"github.com/loganix/logwarden/internal/stats"
	"github.com/loganix/logwarden/internal/storage"
	"github.com/loganix/logwarden/internal/tracing"
)

// maxLineBufferBytes bounds a single scanned upload line. A longer line
// stops the scan: it is counted as a failed line and the upload is marked
// failed (the lines after it are not ingested) rather than being silently
// truncated.
const maxLineBufferBytes = 1 << 20

// Service is the facade: IngestLine, IngestBatch, UploadFile, Query,
// ListTemplates, Stats, FileStats, and ListFiles are its public surface.
type Service struct {
	store    *storage.Store
	miner    *miner.Miner
	detector *anomaly.Detector
	metrics  *metrics.Metrics
	audit    *audit.Logger
	cache    *cache.Manager
	log      *zap.Logger

	limiter       *rate.Limiter
	maxFutureSkew time.Duration
	uploadDir     string
}

// New builds the facade from its already-constructed components.
func New(cfg *config.Config, store *storage.Store, m *miner.Miner, detector *anomaly.Detector, met *metrics.Metrics, auditLog *audit.Logger, cacheMgr *cache.Manager, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}

	limit := rate.Inf
	burst := cfg.RateLimitBurst
	if cfg.EnableRateLimit {
		limit = rate.Limit(cfg.RateLimit)
		if burst <= 0 {
			burst = 1
		}
	}

	return &Service{
		store:         store,
		miner:         m,
		detector:      detector,
		metrics:       met,
		audit:         auditLog,
		cache:         cacheMgr,
		log:           log.Named("ingest"),
		limiter:       rate.NewLimiter(limit, burst),
		maxFutureSkew: cfg.MaxEventSkew,
		uploadDir:     cfg.UploadDir,
	}
}

// IngestLine ingests a single log line. This path is all-or-nothing: a
// failure is returned directly rather than tolerated as partial success.
func (s *Service) IngestLine(ctx context.Context, line, source string, meta map[string]string) (model.LogRecord, error) {
	start := time.Now()
	rec, err := s.ingestOne(ctx, line, source, "", meta)
	s.audit.LogOperation(ctx, "ingest_line", "create", "record", rec.ID, err == nil, time.Since(start), err)
	if err != nil {
		return model.LogRecord{}, err
	}
	s.cache.InvalidateRelated("ingest")
	return rec, nil
}

// IngestBatch ingests a batch of lines sharing one source. Unlike
// IngestLine, a per-line failure does not abort the batch: processed/failed
// counts are returned and the caller decides how to report a partial
// success.
func (s *Service) IngestBatch(ctx context.Context, lines []string, source string) (processed, failed int64, err error) {
	ctx, span := tracing.IngestSpan(ctx, "ingest_batch")
	defer span.End()
	start := time.Now()

	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if ctx.Err() != nil {
			break
		}
		if _, ierr := s.ingestOne(ctx, line, source, "", nil); ierr != nil {
			failed++
			s.log.Debug("batch line failed", zap.Error(ierr))
			continue
		}
		processed++
	}

	s.cache.InvalidateRelated("ingest")
	tracing.SetResult(span, "ingest_batch", int(processed))
	tracing.SetSuccess(span)
	s.audit.LogOperation(ctx, "ingest_batch", "create", "record", "", failed == 0, time.Since(start), nil)
	return processed, failed, nil
}

// FluentBitEntry is one element of a Fluent-Bit forward-style batch: the
// raw log line plus optional timestamp/tag/source metadata.
type FluentBitEntry struct {
	Log    string
	Time   string
	Tag    string
	Source string
}

// IngestFluentBit ingests a Fluent-Bit batch. Like IngestBatch, failures
// are tolerated per-entry and reported as counters rather than aborting.
func (s *Service) IngestFluentBit(ctx context.Context, entries []FluentBitEntry) (processed, failed int64, err error) {
	ctx, span := tracing.IngestSpan(ctx, "ingest_fluent_bit")
	defer span.End()
	start := time.Now()

	for _, e := range entries {
		if ctx.Err() != nil {
			break
		}
		line := strings.TrimSpace(e.Log)
		if line == "" {
			continue
		}
		source := e.Source
		if source == "" {
			source = e.Tag
		}
		if source == "" {
			source = "fluent-bit"
		}
		if _, ierr := s.ingestOne(ctx, line, source, "", nil); ierr != nil {
			failed++
			s.log.Debug("fluent-bit entry failed", zap.Error(ierr))
			continue
		}
		processed++
	}

	s.cache.InvalidateRelated("ingest")
	tracing.SetResult(span, "ingest_fluent_bit", int(processed))
	tracing.SetSuccess(span)
	s.audit.LogOperation(ctx, "ingest_fluent_bit", "create", "record", "", failed == 0, time.Since(start), nil)
	return processed, failed, nil
}

// UploadFile stages r to disk under the configured upload directory, then
// ingests it line by line. Per-line failures are tolerated (FailedLogs);
// the upload as a whole only fails if nothing was staged.
func (s *Service) UploadFile(ctx context.Context, originalName string, r io.Reader) (model.FileUpload, error) {
	ctx, span := tracing.IngestSpan(ctx, "upload_file")
	defer span.End()
	start := time.Now()

	data, err := io.ReadAll(r)
	if err != nil {
		tracing.RecordError(span, err)
		return model.FileUpload{}, errors.NewBadInput("failed to read upload body").WithDetails(err.Error())
	}

	fileID := uuid.NewString()
	storedName := fileID + "_" + filepath.Base(originalName)

	if err := s.stageFile(storedName, data); err != nil {
		tracing.RecordError(span, err)
		return model.FileUpload{}, errors.Wrap(errors.KindStorageUnavailable, "failed to stage upload", err)
	}

	upload := model.FileUpload{
		FileID:       fileID,
		OriginalName: originalName,
		StoredName:   storedName,
		ByteSize:     int64(len(data)),
		UploadedAt:   time.Now().UTC(),
		Status:       model.FileStatusProcessing,
	}
	if err := s.store.InsertFile(ctx, upload); err != nil {
		tracing.RecordError(span, err)
		return model.FileUpload{}, err
	}

	var processed, failed int64
	scanner := bufio.NewScanner(strings.NewReader(string(data)))
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBufferBytes)
	for scanner.Scan() {
		if ctx.Err() != nil {
			upload.Status = model.FileStatusFailed
			upload.Error = "upload cancelled"
			break
		}
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		if _, ierr := s.ingestOne(ctx, line, originalName, fileID, nil); ierr != nil {
			failed++
			continue
		}
		processed++
	}
	if err := scanner.Err(); err != nil {
		failed++
		upload.Status = model.FileStatusFailed
		upload.Error = "line exceeds maximum length: " + err.Error()
	}

	upload.ProcessedLogs = processed
	upload.FailedLogs = failed
	if upload.Status != model.FileStatusFailed {
		if processed == 0 && failed > 0 {
			upload.Status = model.FileStatusFailed
			upload.Error = "all lines failed to ingest"
		} else {
			upload.Status = model.FileStatusCompleted
		}
	}

	if err := s.store.UpdateFile(ctx, upload); err != nil {
		tracing.RecordError(span, err)
		return upload, err
	}

	s.cache.InvalidateRelated("upload")
	tracing.SetResult(span, "file_upload", int(processed))
	tracing.SetSuccess(span)
	s.audit.LogOperation(ctx, "upload_file", "create", "file", fileID, upload.Status != model.FileStatusFailed, time.Since(start), nil)
	return upload, nil
}

func (s *Service) stageFile(storedName string, data []byte) error {
	if s.uploadDir == "" {
		return nil
	}
	if err := os.MkdirAll(s.uploadDir, 0o755); err != nil {
		return fmt.Errorf("create upload dir: %w", err)
	}
	path := filepath.Join(s.uploadDir, storedName)
	return os.WriteFile(path, data, 0o644) // #nosec G306 -- staging area is not served back to callers
}

// ingestOne runs the classify/extract/mine/assemble/store pipeline for one
// raw line, shared by IngestLine, IngestBatch, and UploadFile.
func (s *Service) ingestOne(ctx context.Context, raw, source, fileID string, meta map[string]string) (model.LogRecord, error) {
	if strings.TrimSpace(raw) == "" {
		return model.LogRecord{}, errors.NewBadInput("log line is empty")
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return model.LogRecord{}, errors.NewStorageUnavailable("ingest_rate_limit", err).
			WithSuggestion("retry; the ingest pipeline is saturated")
	}

	ctx, span := tracing.IngestSpan(ctx, "assemble")
	defer span.End()

	in := assemble.Input{
		RawLine:        raw,
		Source:         source,
		FileID:         fileID,
		CallerMetadata: meta,
		Now:            time.Now(),
		MaxFutureSkew:  s.maxFutureSkew,
	}

	rec, err := assemble.Assemble(ctx, in, s.miner)
	if err != nil {
		tracing.RecordError(span, err)
		return model.LogRecord{}, errors.NewParseFailure(err.Error())
	}

	redactSensitive(rec.ParsedFields)
	redactSensitive(rec.Metadata)

	if rec.FormatTag == registry.UnknownFormatTag {
		s.metrics.RecordParseFailure()
	}
	if strings.HasPrefix(rec.TemplateID, "fallback_") {
		s.metrics.RecordMinerFallback()
	}
	s.metrics.RecordLineIngested(rec.FormatTag)

	rec.ID = primitive.NewObjectID().Hex()
	if err := s.store.InsertRecord(ctx, rec.ID, rec); err != nil {
		tracing.RecordError(span, err)
		return model.LogRecord{}, err
	}

	tpl := model.Template{
		TemplateID:     rec.TemplateID,
		TemplateString: rec.Template,
		FirstSeen:      rec.EventTime,
		LastSeen:       rec.EventTime,
		Count:          int64(rec.ClusterSize),
	}
	if err := s.store.UpsertTemplate(ctx, tpl); err != nil {
		tracing.RecordError(span, err)
		return rec, err
	}

	tracing.SetSuccess(span)
	return rec, nil
}

// Query is all-or-nothing: a store failure is returned directly.
func (s *Service) Query(ctx context.Context, filter storage.RecordFilter) ([]model.LogRecord, error) {
	ctx, span := tracing.IngestSpan(ctx, "query")
	defer span.End()

	key := queryCacheKey(filter)
	if cached, ok := s.cache.Get("query", key); ok {
		if recs, ok := cached.([]model.LogRecord); ok {
			tracing.SetResult(span, "query", len(recs))
			tracing.SetSuccess(span)
			return recs, nil
		}
	}

	recs, err := s.store.FindRecords(ctx, filter)
	if err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}

	s.cache.Set("query", key, recs)
	tracing.SetResult(span, "query", len(recs))
	tracing.SetSuccess(span)
	return recs, nil
}

// GetRecord fetches one record by ID, supplementing the base query surface
// (see SPEC_FULL.md's Supplemented Features).
func (s *Service) GetRecord(ctx context.Context, id string) (model.LogRecord, bool) {
	return s.store.GetRecord(ctx, id)
}

// ListTemplates returns the template catalog, most-recently-seen first.
func (s *Service) ListTemplates(ctx context.Context) ([]model.Template, error) {
	if cached, ok := s.cache.Get("templates", "all"); ok {
		if tpls, ok := cached.([]model.Template); ok {
			return tpls, nil
		}
	}
	tpls, err := s.store.ListTemplates(ctx)
	if err != nil {
		return nil, err
	}
	s.cache.Set("templates", "all", tpls)
	return tpls, nil
}

// Stats returns the global rollup.
func (s *Service) Stats(ctx context.Context) (stats.Overview, error) {
	if cached, ok := s.cache.Get("stats", "overview"); ok {
		if ov, ok := cached.(stats.Overview); ok {
			return ov, nil
		}
	}
	ov, err := stats.Compute(ctx, s.store)
	if err != nil {
		return stats.Overview{}, err
	}
	s.cache.Set("stats", "overview", ov)
	return ov, nil
}

// FileStats returns the per-file rollup.
func (s *Service) FileStats(ctx context.Context, fileID string) (stats.FileOverview, error) {
	if cached, ok := s.cache.Get("file_stats", fileID); ok {
		if fo, ok := cached.(stats.FileOverview); ok {
			return fo, nil
		}
	}
	fo, err := stats.FileStats(ctx, s.store, fileID)
	if err != nil {
		return stats.FileOverview{}, err
	}
	s.cache.Set("file_stats", fileID, fo)
	return fo, nil
}

// ListFiles returns every upload manifest, newest first.
func (s *Service) ListFiles(ctx context.Context) ([]model.FileUpload, error) {
	return s.store.ListFiles(ctx)
}

// GetFile fetches one upload manifest by ID.
func (s *Service) GetFile(ctx context.Context, fileID string) (model.FileUpload, bool) {
	return s.store.GetFile(ctx, fileID)
}

// RunDetectionCycle runs one anomaly-detection pass; cmd/logwardend calls
// it once per detection interval.
func (s *Service) RunDetectionCycle(ctx context.Context) ([]model.Anomaly, error) {
	ctx, span := tracing.MinerSpan(ctx, "detect_cycle")
	defer span.End()
	found, err := s.detector.RunCycle(ctx)
	if err != nil {
		tracing.RecordError(span, err)
	}
	s.cache.InvalidateRelated("detect_cycle")
	tracing.SetResult(span, "anomalies", len(found))
	return found, err
}

// redactSensitive masks values under keys that look like credentials
// (password, token, api_key, ...) in place, so extracted fields and
// caller-supplied metadata never reach storage or logs unredacted.
func redactSensitive(fields map[string]string) {
	for k, v := range fields {
		if security.IsSensitiveField(k) {
			fields[k] = "***REDACTED***"
			continue
		}
		fields[k] = security.MaskSensitiveData(v)
	}
}

// queryCacheKey renders a RecordFilter into a stable cache key. Filter
// values are simple scalars, so string concatenation is deterministic
// without needing a canonical encoder.
func queryCacheKey(f storage.RecordFilter) string {
	since := ""
	if f.Since != nil {
		since = fmt.Sprintf("%v", *f.Since)
	}
	until := ""
	if f.Until != nil {
		until = fmt.Sprintf("%v", *f.Until)
	}
	return fmt.Sprintf("src=%s|srcc=%s|msgc=%s|sev=%s|fmt=%s|file=%s|tpl=%s|proto=%s|ip=%s|net=%t|since=%s|until=%s|skip=%d|limit=%d",
		f.Source, f.SourceContains, f.MessageContains, f.Severity, f.FormatTag, f.FileID, f.TemplateID,
		f.Protocol, f.IPAddress, f.HasNetworkInfo, since, until, f.Skip, f.Limit)
}
