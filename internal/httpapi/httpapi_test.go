package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/loganix/logwarden/internal/anomaly"
	"github.com/loganix/logwarden/internal/audit"
	"github.com/loganix/logwarden/internal/cache"
	"github.com/loganix/logwarden/internal/config"
	"github.com/loganix/logwarden/internal/health"
	"github.com/loganix/logwarden/internal/ingest"
	"github.com/loganix/logwarden/internal/metrics"
	"github.com/loganix/logwarden/internal/miner"
	"github.com/loganix/logwarden/internal/storage"
)

func newTestServer(t *testing.T) (*Server, *ingest.Service) {
	t.Helper()
	store := storage.New()
	m := miner.New(miner.DefaultConfig())
	t.Cleanup(m.Close)
	detector := anomaly.New(store, anomaly.DefaultConfig(), zap.NewNop())

	cfg := &config.Config{
		MinerDepth:      4,
		MinerSimThresh:  0.4,
		EnableRateLimit: false,
		MaxEventSkew:    5 * time.Minute,
	}

	svc := ingest.New(cfg, store, m, detector, metrics.New(zap.NewNop()), audit.NewLogger(zap.NewNop(), false), cache.NewManager(cache.DefaultConfig()), zap.NewNop())
	checker := health.New(store, detector, time.Minute, zap.NewNop())
	return NewServer(svc, checker, metrics.New(zap.NewNop()), zap.NewNop(), "127.0.0.1:0", 1<<20), svc
}

func doRequest(s *Server, method, path string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rec, req)
	return rec
}

func TestHandleIngestAndGetLog(t *testing.T) {
	s, _ := newTestServer(t)

	body, _ := json.Marshal(ingestRequest{Message: "disk usage above threshold", Source: "node-1"})
	rec := doRequest(s, http.MethodPost, "/api/logs/ingest", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	logID := resp["log_id"]
	if logID == "" {
		t.Fatal("expected a non-empty log_id")
	}

	getRec := doRequest(s, http.MethodGet, "/api/logs/"+logID, nil)
	if getRec.Code != http.StatusOK {
		t.Fatalf("expected 200 on get, got %d: %s", getRec.Code, getRec.Body.String())
	}
}

func TestHandleIngestRejectsEmptyMessage(t *testing.T) {
	s, _ := newTestServer(t)
	body, _ := json.Marshal(ingestRequest{Message: "  "})
	rec := doRequest(s, http.MethodPost, "/api/logs/ingest", body)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHandleGetLogUnknownID(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doRequest(s, http.MethodGet, "/api/logs/does-not-exist", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown log id, got %d", rec.Code)
	}
}

func TestHandleQueryPagination(t *testing.T) {
	s, svc := newTestServer(t)
	for i := 0; i < 5; i++ {
		if _, err := svc.IngestLine(context.Background(), `{"message":"steady heartbeat"}`, "pager", nil); err != nil {
			t.Fatalf("IngestLine: %v", err)
		}
	}

	body, _ := json.Marshal(queryRequest{Limit: 2, Offset: 0})
	rec := doRequest(s, http.MethodPost, "/api/logs/query", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Logs          []map[string]interface{} `json:"logs"`
		TotalCount    int                       `json:"total_count"`
		ReturnedCount int                       `json:"returned_count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.TotalCount != 5 {
		t.Errorf("expected total_count 5, got %d", resp.TotalCount)
	}
	if resp.ReturnedCount != 2 {
		t.Errorf("expected returned_count 2, got %d", resp.ReturnedCount)
	}
}

func TestHandleUploadRejectsBadExtension(t *testing.T) {
	s, _ := newTestServer(t)

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, _ := w.CreateFormFile("file", "data.exe")
	part.Write([]byte("irrelevant"))
	w.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/logs/upload", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	rec := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unsupported extension, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHandleUploadAcceptsLogFile(t *testing.T) {
	s, _ := newTestServer(t)

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, _ := w.CreateFormFile("file", "app.log")
	part.Write([]byte("{\"message\":\"one\"}\n{\"message\":\"two\"}\n"))
	w.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/logs/upload", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	rec := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHandleHealth(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doRequest(s, http.MethodGet, "/api/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "status") {
		t.Error("expected health response to include a status field")
	}
}

func TestHandleFileStatsUnknownFile(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doRequest(s, http.MethodGet, "/api/files/unknown-id/stats", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown file_id, got %d", rec.Code)
	}
}
