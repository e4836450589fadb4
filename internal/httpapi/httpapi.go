// Package httpapi is the thin net/http adapter over internal/ingest: it
// translates requests/responses only and does not reimplement framing,
// CORS, or content negotiation beyond what encoding/json and
// mime/multipart already provide.
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/loganix/logwarden/internal/errors"
	"github.com/loganix/logwarden/internal/health"
	"github.com/loganix/logwarden/internal/ingest"
	"github.com/loganix/logwarden/internal/metrics"
	"github.com/loganix/logwarden/internal/model"
	"github.com/loganix/logwarden/internal/storage"
	"github.com/loganix/logwarden/internal/tracing"
)

// allowedUploadExtensions enumerates the file extensions spec.md's upload
// endpoint accepts; anything else is a bad_input.
var allowedUploadExtensions = map[string]bool{
	".log":  true,
	".txt":  true,
	".json": true,
}

// Server is the public HTTP surface: upload, ingest, query, templates,
// stats, files, and health.
type Server struct {
	svc     *ingest.Service
	checker *health.Checker
	metrics *metrics.Metrics
	log     *zap.Logger

	maxUploadSize int64
	httpServer    *http.Server
}

// NewServer builds the API server. bindAddr is the address to listen on
// (e.g. "0.0.0.0:8089").
func NewServer(svc *ingest.Service, checker *health.Checker, met *metrics.Metrics, log *zap.Logger, bindAddr string, maxUploadSize int64) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		svc:           svc,
		checker:       checker,
		metrics:       met,
		log:           log.Named("httpapi"),
		maxUploadSize: maxUploadSize,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/logs/upload", s.wrap("upload", s.handleUpload))
	mux.HandleFunc("POST /api/logs/ingest", s.wrap("ingest", s.handleIngest))
	mux.HandleFunc("POST /api/logs/ingest/fluent-bit", s.wrap("ingest_fluent_bit", s.handleIngestFluentBit))
	mux.HandleFunc("POST /api/logs/query", s.wrap("query", s.handleQuery))
	mux.HandleFunc("GET /api/logs/{id}", s.wrap("get_log", s.handleGetLog))
	mux.HandleFunc("GET /api/templates", s.wrap("templates", s.handleTemplates))
	mux.HandleFunc("GET /api/stats", s.wrap("stats", s.handleStats))
	mux.HandleFunc("GET /api/files", s.wrap("files", s.handleFiles))
	mux.HandleFunc("GET /api/files/{file_id}/stats", s.wrap("file_stats", s.handleFileStats))
	mux.HandleFunc("GET /api/health", s.wrap("health", s.handleHealth))

	s.httpServer = &http.Server{
		Addr:              bindAddr,
		Handler:           mux,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Start runs the HTTP server until it is shut down.
func (s *Server) Start() error {
	s.log.Info("starting API server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api server error: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// wrap adds tracing, timing, panic recovery, and metrics recording around
// a handler, matching the endpoint-tracking pattern of internal/metrics.
func (s *Server) wrap(endpoint string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracing.APISpan(r.Context(), r.Method, r.URL.Path)
		defer span.End()
		r = r.WithContext(ctx)

		start := time.Now()
		rw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		defer func() {
			if rec := recover(); rec != nil {
				s.log.Error("handler panic", zap.String("endpoint", endpoint), zap.Any("recover", rec))
				writeError(rw, errors.New(errors.KindCycleError, "internal error"))
			}
			latency := time.Since(start)
			success := rw.status < 400
			s.metrics.RecordRequest(success, latency, rw.status)
			s.metrics.RecordEndpoint(endpoint, success, latency)
			if success {
				tracing.SetSuccess(span)
			}
		}()

		h(rw, r)
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	var se *errors.StructuredError
	if asStructured(err, &se) {
		status = se.HTTPStatus()
		writeJSON(w, status, se)
		return
	}
	writeJSON(w, status, map[string]string{"kind": "internal", "message": err.Error()})
}

func asStructured(err error, target **errors.StructuredError) bool {
	if se, ok := err.(*errors.StructuredError); ok {
		*target = se
		return true
	}
	return false
}

// handleUpload implements POST /api/logs/upload.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if s.maxUploadSize > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadSize)
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, errors.NewBadInput("failed to parse multipart upload").WithDetails(err.Error()))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, errors.NewBadInput("missing \"file\" field in upload"))
		return
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if !allowedUploadExtensions[ext] {
		writeError(w, errors.NewBadInput(fmt.Sprintf("unsupported file extension %q: must be .log, .txt, or .json", ext)))
		return
	}

	upload, err := s.svc.UploadFile(r.Context(), header.Filename, file)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"file_id":        upload.FileID,
		"filename":       upload.OriginalName,
		"processed_logs": upload.ProcessedLogs,
		"failed_logs":    upload.FailedLogs,
		"file_size":      upload.ByteSize,
	})
}

type ingestRequest struct {
	Timestamp string            `json:"timestamp,omitempty"`
	Level     string            `json:"level,omitempty"`
	Message   string            `json:"message"`
	Source    string            `json:"source,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// handleIngest implements POST /api/logs/ingest.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.NewBadInput("invalid request body").WithDetails(err.Error()))
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, errors.NewBadInput("message is required"))
		return
	}

	payload := map[string]interface{}{"message": req.Message}
	if req.Timestamp != "" {
		payload["timestamp"] = req.Timestamp
	}
	if req.Level != "" {
		payload["level"] = req.Level
	}
	for k, v := range req.Metadata {
		payload[k] = v
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		writeError(w, errors.NewBadInput("failed to encode record"))
		return
	}

	rec, err := s.svc.IngestLine(r.Context(), string(raw), req.Source, req.Metadata)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"log_id":      rec.ID,
		"template_id": rec.TemplateID,
		"template":    rec.Template,
	})
}

type fluentBitEntry struct {
	Log    string `json:"log"`
	Time   string `json:"time,omitempty"`
	Tag    string `json:"tag,omitempty"`
	Source string `json:"source,omitempty"`
}

// handleIngestFluentBit implements POST /api/logs/ingest/fluent-bit.
func (s *Server) handleIngestFluentBit(w http.ResponseWriter, r *http.Request) {
	var entries []fluentBitEntry
	if err := json.NewDecoder(r.Body).Decode(&entries); err != nil {
		writeError(w, errors.NewBadInput("invalid request body: expected an array of log entries").WithDetails(err.Error()))
		return
	}

	converted := make([]ingest.FluentBitEntry, 0, len(entries))
	for _, e := range entries {
		converted = append(converted, ingest.FluentBitEntry{
			Log:    e.Log,
			Time:   e.Time,
			Tag:    e.Tag,
			Source: e.Source,
		})
	}

	processed, failed, err := s.svc.IngestFluentBit(r.Context(), converted)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]int64{
		"processed_logs": processed,
		"failed_logs":    failed,
	})
}

type queryRequest struct {
	TemplateID     string `json:"template_id,omitempty"`
	StartTime      string `json:"start_time,omitempty"`
	EndTime        string `json:"end_time,omitempty"`
	Level          string `json:"level,omitempty"`
	Source         string `json:"source,omitempty"`
	Message        string `json:"message,omitempty"`
	FileID         string `json:"file_id,omitempty"`
	FormatTag      string `json:"format_tag,omitempty"`
	HasNetworkInfo bool   `json:"has_network_info,omitempty"`
	Protocol       string `json:"protocol,omitempty"`
	IPAddress      string `json:"ip_address,omitempty"`
	Limit          int    `json:"limit,omitempty"`
	Offset         int    `json:"offset,omitempty"`
}

// handleQuery implements POST /api/logs/query.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if r.Body != nil {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, errors.NewBadInput("invalid filter body").WithDetails(err.Error()))
			return
		}
	}

	filter := storage.RecordFilter{
		SourceContains:  req.Source,
		MessageContains: req.Message,
		FormatTag:       req.FormatTag,
		FileID:          req.FileID,
		TemplateID:      req.TemplateID,
		Protocol:        req.Protocol,
		IPAddress:       req.IPAddress,
		HasNetworkInfo:  req.HasNetworkInfo,
	}
	if req.Level != "" {
		filter.Severity = model.Severity(strings.ToUpper(req.Level))
	}
	if req.StartTime != "" {
		t, err := time.Parse(time.RFC3339, req.StartTime)
		if err != nil {
			writeError(w, errors.NewBadInput("invalid start_time: must be RFC3339"))
			return
		}
		b := storage.NewTimeBound(t)
		filter.Since = b
	}
	if req.EndTime != "" {
		t, err := time.Parse(time.RFC3339, req.EndTime)
		if err != nil {
			writeError(w, errors.NewBadInput("invalid end_time: must be RFC3339"))
			return
		}
		b := storage.NewTimeBound(t)
		filter.Until = b
	}

	limit := req.Limit
	if limit <= 0 {
		limit = 100
	}
	offset := req.Offset
	if offset < 0 {
		offset = 0
	}

	all, err := s.svc.Query(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}

	total := len(all)
	start := offset
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}
	page := all[start:end]

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"logs":           page,
		"total_count":    total,
		"returned_count": len(page),
		"offset":         offset,
		"limit":          limit,
	})
}

// handleGetLog implements the supplemented GET /api/logs/{id}.
func (s *Server) handleGetLog(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	rec, ok := s.svc.GetRecord(r.Context(), id)
	if !ok {
		writeError(w, errors.NewBadInput("log not found").WithSuggestion("check the log_id and try again"))
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// handleTemplates implements GET /api/templates, ordered by count desc.
func (s *Server) handleTemplates(w http.ResponseWriter, r *http.Request) {
	tpls, err := s.svc.ListTemplates(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	sort.Slice(tpls, func(i, j int) bool { return tpls[i].Count > tpls[j].Count })
	writeJSON(w, http.StatusOK, map[string]interface{}{"templates": tpls})
}

// handleStats implements GET /api/stats.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	ov, err := s.svc.Stats(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ov)
}

// handleFiles implements GET /api/files.
func (s *Server) handleFiles(w http.ResponseWriter, r *http.Request) {
	files, err := s.svc.ListFiles(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"files": files})
}

// handleFileStats implements GET /api/files/{file_id}/stats.
func (s *Server) handleFileStats(w http.ResponseWriter, r *http.Request) {
	fileID := r.PathValue("file_id")
	if _, ok := s.svc.GetFile(r.Context(), fileID); !ok {
		writeError(w, errors.NewBadInput("unknown file_id"))
		return
	}
	fo, err := s.svc.FileStats(r.Context(), fileID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, fo)
}

// handleHealth implements GET /api/health: pings storage and reports status.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status, checks := s.checker.CheckAll(r.Context())
	code := http.StatusOK
	if status == health.StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]interface{}{
		"status":    status,
		"timestamp": time.Now().UTC(),
		"checks":    checks,
	})
}
