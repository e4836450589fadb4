package ingest

import (
	"context"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/loganix/logwarden/internal/anomaly"
	"github.com/loganix/logwarden/internal/audit"
	"github.com/loganix/logwarden/internal/cache"
	"github.com/loganix/logwarden/internal/config"
	"github.com/loganix/logwarden/internal/metrics"
	"github.com/loganix/logwarden/internal/miner"
	"github.com/loganix/logwarden/internal/storage"
)

func newTestService(t *testing.T) *Service {
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

	return New(cfg, store, m, detector, metrics.New(zap.NewNop()), audit.NewLogger(zap.NewNop(), false), cache.NewManager(cache.DefaultConfig()), zap.NewNop())
}

func TestIngestLine(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	rec, err := svc.IngestLine(ctx, `{"level":"error","message":"connection refused to 10.0.0.5"}`, "app-1", nil)
	if err != nil {
		t.Fatalf("IngestLine: %v", err)
	}
	if rec.ID == "" {
		t.Error("expected a generated record ID")
	}
	if rec.Source != "app-1" {
		t.Errorf("expected source app-1, got %q", rec.Source)
	}
	if rec.TemplateID == "" {
		t.Error("expected a template ID to be assigned")
	}
}

func TestIngestLineRejectsBlank(t *testing.T) {
	svc := newTestService(t)
	if _, err := svc.IngestLine(context.Background(), "   ", "app-1", nil); err == nil {
		t.Error("expected an error for a blank line")
	}
}

func TestIngestBatchPartialSuccess(t *testing.T) {
	svc := newTestService(t)
	lines := []string{
		`{"message":"first event"}`,
		"",
		`{"message":"second event"}`,
	}

	processed, failed, err := svc.IngestBatch(context.Background(), lines, "batch-source")
	if err != nil {
		t.Fatalf("IngestBatch: %v", err)
	}
	if processed != 2 {
		t.Errorf("expected 2 processed, got %d", processed)
	}
	if failed != 0 {
		t.Errorf("expected 0 failed, got %d", failed)
	}
}

func TestIngestFluentBitUsesTagAsSourceFallback(t *testing.T) {
	svc := newTestService(t)
	entries := []FluentBitEntry{
		{Log: `{"message":"tagged event"}`, Tag: "kube.pod.app"},
	}

	processed, failed, err := svc.IngestFluentBit(context.Background(), entries)
	if err != nil {
		t.Fatalf("IngestFluentBit: %v", err)
	}
	if processed != 1 || failed != 0 {
		t.Fatalf("expected 1 processed 0 failed, got %d/%d", processed, failed)
	}

	recs, err := svc.Query(context.Background(), storage.RecordFilter{})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("expected 1 stored record, got %d", len(recs))
	}
	if recs[0].Source != "kube.pod.app" {
		t.Errorf("expected source to fall back to tag, got %q", recs[0].Source)
	}
}

func TestUploadFileTracksCounts(t *testing.T) {
	svc := newTestService(t)
	body := strings.NewReader("{\"message\":\"one\"}\n{\"message\":\"two\"}\n\n")

	upload, err := svc.UploadFile(context.Background(), "app.log", body)
	if err != nil {
		t.Fatalf("UploadFile: %v", err)
	}
	if upload.ProcessedLogs != 2 {
		t.Errorf("expected 2 processed logs, got %d", upload.ProcessedLogs)
	}
	if upload.FailedLogs != 0 {
		t.Errorf("expected 0 failed logs, got %d", upload.FailedLogs)
	}

	got, ok := svc.GetFile(context.Background(), upload.FileID)
	if !ok {
		t.Fatal("expected uploaded file to be retrievable")
	}
	if got.OriginalName != "app.log" {
		t.Errorf("expected original name app.log, got %q", got.OriginalName)
	}
}

func TestIngestLineRedactsSensitiveMetadata(t *testing.T) {
	svc := newTestService(t)
	meta := map[string]string{"api_key": "sk-abcdefghijklmnopqrst"}

	rec, err := svc.IngestLine(context.Background(), `{"message":"login ok"}`, "app-1", meta)
	if err != nil {
		t.Fatalf("IngestLine: %v", err)
	}
	if v, ok := rec.Metadata["api_key"]; ok && v == "sk-abcdefghijklmnopqrst" {
		t.Error("expected api_key metadata to be redacted before storage")
	}
}

func TestQueryFiltersBySeverity(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if _, err := svc.IngestLine(ctx, `{"level":"error","message":"boom"}`, "svc", nil); err != nil {
		t.Fatalf("IngestLine: %v", err)
	}
	if _, err := svc.IngestLine(ctx, `{"level":"info","message":"all good"}`, "svc", nil); err != nil {
		t.Fatalf("IngestLine: %v", err)
	}

	recs, err := svc.Query(ctx, storage.RecordFilter{Severity: "ERROR"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	for _, r := range recs {
		if r.Severity != "ERROR" {
			t.Errorf("expected only ERROR records, got %q", r.Severity)
		}
	}
}

func TestStatsAndTemplatesReflectIngestedLines(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := svc.IngestLine(ctx, `{"message":"repeated worker event"}`, "worker", nil); err != nil {
			t.Fatalf("IngestLine: %v", err)
		}
	}

	ov, err := svc.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if ov.TotalRecords < 3 {
		t.Errorf("expected at least 3 total records, got %d", ov.TotalRecords)
	}

	tpls, err := svc.ListTemplates(ctx)
	if err != nil {
		t.Fatalf("ListTemplates: %v", err)
	}
	if len(tpls) == 0 {
		t.Error("expected at least one mined template")
	}
}
