package pipeline_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"feple/internal/analysis"
	"feple/internal/config"
	"feple/internal/fragment"
	"feple/internal/pipeline"
	"feple/internal/results"
	"feple/internal/session"
	"feple/internal/testsupport"
)

type fixture struct {
	cfg      *config.Config
	sessions *session.Store
	results  *results.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	sessions, err := session.Open(cfg)
	if err != nil {
		t.Fatalf("open sessions: %v", err)
	}
	t.Cleanup(func() { sessions.Close() })
	resultStore, err := results.Open(cfg)
	if err != nil {
		t.Fatalf("open results: %v", err)
	}
	t.Cleanup(func() { resultStore.Close() })
	return &fixture{cfg: cfg, sessions: sessions, results: resultStore}
}

func (f *fixture) manager(t *testing.T, extractor analysis.Extractor) *pipeline.Manager {
	t.Helper()
	if extractor == nil {
		extractor = analysis.NewKeywordExtractor()
	}
	return pipeline.New(f.cfg, f.sessions, f.results, extractor, analysis.NewLinearPredictor(), nil)
}

const classificationPayload = `{
  "session_id": "40017",
  "consulting_content": "상담사: 안녕하세요. 무엇을 도와드릴까요?\n고객: 감사합니다. 만족스러운 상담이었습니다.",
  "instructions": [
    {"tuning_type": "classification", "data": [{"task_category": "상담 결과", "output": "만족"}]}
  ]
}`

const summaryPayload = `{
  "session_id": "40017",
  "consulting_content": "",
  "instructions": [
    {"tuning_type": "summary", "data": [{"task_category": "요약", "output": "일반 문의 응대"}]}
  ]
}`

func TestProcessPersistsResult(t *testing.T) {
	f := newFixture(t)
	manager := f.manager(t, nil)
	path := testsupport.WriteFile(t, f.cfg.Paths.WatchDir, "분류_40017_1.json", classificationPayload)

	attempt := manager.Process(context.Background(), path)
	if attempt.Err != nil {
		t.Fatalf("process: %v", attempt.Err)
	}
	if attempt.Status != pipeline.StatusPersisted {
		t.Fatalf("status = %q", attempt.Status)
	}
	if attempt.SessionID != "40017" || attempt.Kind != fragment.KindClassification {
		t.Fatalf("attempt = %+v", attempt)
	}

	stored, err := f.results.Get(context.Background(), "40017")
	if err != nil {
		t.Fatal(err)
	}
	if stored == nil {
		t.Fatal("no result row")
	}
	if !analysis.ValidLabel(stored.Label) {
		t.Errorf("label %q outside closed set", stored.Label)
	}
	if stored.Generation != 1 {
		t.Errorf("generation = %d, want 1", stored.Generation)
	}
}

func TestProcessBothFragmentOrdersYieldOneRow(t *testing.T) {
	for _, order := range []struct {
		name  string
		files []string
	}{
		{"classification first", []string{"분류_40017_1.json", "요약_40017_2.json"}},
		{"summary first", []string{"요약_40017_2.json", "분류_40017_1.json"}},
	} {
		t.Run(order.name, func(t *testing.T) {
			f := newFixture(t)
			manager := f.manager(t, nil)
			payloads := map[string]string{
				"분류_40017_1.json": classificationPayload,
				"요약_40017_2.json": summaryPayload,
			}
			for _, name := range order.files {
				path := testsupport.WriteFile(t, f.cfg.Paths.WatchDir, name, payloads[name])
				attempt := manager.Process(context.Background(), path)
				if attempt.Err != nil {
					t.Fatalf("process %s: %v", name, attempt.Err)
				}
			}

			all, err := f.results.List(context.Background())
			if err != nil {
				t.Fatal(err)
			}
			if len(all) != 1 {
				t.Fatalf("got %d rows, want 1", len(all))
			}
			if all[0].Generation != 2 {
				t.Errorf("generation = %d, want 2", all[0].Generation)
			}

			record, err := f.sessions.Get(context.Background(), "40017")
			if err != nil {
				t.Fatal(err)
			}
			if !record.HasKind(fragment.KindClassification) || !record.HasKind(fragment.KindSummary) {
				t.Errorf("kinds seen = %v", record.KindsSeen)
			}
			// The empty summary transcript must not have clobbered the content.
			if record.ConsultingContent == "" {
				t.Error("transcript lost during merge")
			}
		})
	}
}

func TestProcessReprocessingIsIdempotent(t *testing.T) {
	f := newFixture(t)
	manager := f.manager(t, nil)
	path := testsupport.WriteFile(t, f.cfg.Paths.WatchDir, "분류_40017_1.json", classificationPayload)

	first := manager.Process(context.Background(), path)
	if first.Err != nil {
		t.Fatal(first.Err)
	}
	second := manager.Process(context.Background(), path)
	if second.Err != nil {
		t.Fatal(second.Err)
	}

	if first.Result.Label != second.Result.Label {
		t.Errorf("label changed on reprocess: %q vs %q", first.Result.Label, second.Result.Label)
	}
	all, err := f.results.List(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 {
		t.Fatalf("got %d rows, want 1", len(all))
	}
}

func TestProcessUnrecognizedFileIsDropped(t *testing.T) {
	f := newFixture(t)
	manager := f.manager(t, nil)
	path := testsupport.WriteFile(t, f.cfg.Paths.WatchDir, "unlabeled_report.json", classificationPayload)

	attempt := manager.Process(context.Background(), path)
	if attempt.Err != nil {
		t.Fatalf("unexpected error: %v", attempt.Err)
	}
	if attempt.Kind != fragment.KindUnrecognized {
		t.Fatalf("kind = %q", attempt.Kind)
	}

	all, err := f.results.List(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 0 {
		t.Fatalf("unrecognized file produced %d rows", len(all))
	}
}

func TestProcessMalformedPayloadFailsValidation(t *testing.T) {
	f := newFixture(t)
	manager := f.manager(t, nil)
	path := testsupport.WriteFile(t, f.cfg.Paths.WatchDir, "분류_40017_1.json", "{broken")

	attempt := manager.Process(context.Background(), path)
	if attempt.Err == nil {
		t.Fatal("expected error")
	}
	count, err := f.sessions.Count(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Fatalf("malformed payload created %d session records", count)
	}
}

// blockingExtractor waits out its context, standing in for a hung model
// runtime.
type blockingExtractor struct{}

func (blockingExtractor) Extract(ctx context.Context, _ *session.Record) (analysis.Features, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestProcessExtractionTimeoutLeavesNoResult(t *testing.T) {
	f := newFixture(t)
	f.cfg.Pipeline.ExtractionTimeoutSeconds = 1
	manager := f.manager(t, blockingExtractor{})
	path := testsupport.WriteFile(t, f.cfg.Paths.WatchDir, "분류_40017_1.json", classificationPayload)

	started := time.Now()
	attempt := manager.Process(context.Background(), path)
	if attempt.Err == nil {
		t.Fatal("expected timeout error")
	}
	if attempt.Status != pipeline.StatusExtractionFailed {
		t.Errorf("status = %q", attempt.Status)
	}
	if elapsed := time.Since(started); elapsed > 5*time.Second {
		t.Errorf("timeout took %v, budget was 1s", elapsed)
	}

	// The merge already happened; only the result is withheld.
	record, err := f.sessions.Get(context.Background(), "40017")
	if err != nil {
		t.Fatal(err)
	}
	if record == nil {
		t.Fatal("session record missing after failed attempt")
	}
	all, err := f.results.List(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 0 {
		t.Fatalf("timed-out attempt produced %d rows", len(all))
	}
}

func TestProcessFailureDoesNotBlockOtherSessions(t *testing.T) {
	f := newFixture(t)
	manager := f.manager(t, nil)

	bad := testsupport.WriteFile(t, f.cfg.Paths.WatchDir, "분류_111.json", "{broken")
	good := testsupport.WriteFile(t, f.cfg.Paths.WatchDir, "분류_222.json", `{
	  "session_id": "222",
	  "consulting_content": "고객: 감사합니다.",
	  "instructions": []
	}`)

	if attempt := manager.Process(context.Background(), bad); attempt.Err == nil {
		t.Fatal("expected failure for malformed file")
	}
	if attempt := manager.Process(context.Background(), good); attempt.Err != nil {
		t.Fatalf("healthy session affected: %v", attempt.Err)
	}

	stored, err := f.results.Get(context.Background(), "222")
	if err != nil {
		t.Fatal(err)
	}
	if stored == nil {
		t.Fatal("healthy session has no result")
	}
}

func TestWorkerPoolDrainsBacklog(t *testing.T) {
	f := newFixture(t)
	manager := f.manager(t, nil)

	const sessions = 6
	paths := make([]string, 0, sessions)
	for i := 0; i < sessions; i++ {
		name := fmt.Sprintf("분류_%d000.json", i+1)
		payload := `{
		  "session_id": "",
		  "consulting_content": "고객: 감사합니다. 만족합니다.",
		  "instructions": []
		}`
		paths = append(paths, testsupport.WriteFile(t, f.cfg.Paths.WatchDir, name, payload))
	}

	if err := manager.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	for _, path := range paths {
		manager.Enqueue(path)
	}

	deadline := time.Now().Add(10 * time.Second)
	for {
		all, err := f.results.List(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if len(all) == sessions {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("only %d of %d sessions processed", len(all), sessions)
		}
		time.Sleep(20 * time.Millisecond)
	}
	manager.Stop()

	stats := manager.Stats()
	if stats.Persisted != sessions {
		t.Errorf("persisted = %d, want %d", stats.Persisted, sessions)
	}
	if stats.Failed != 0 {
		t.Errorf("failed = %d", stats.Failed)
	}
}

func TestStaleUpsertIsTolerated(t *testing.T) {
	f := newFixture(t)
	manager := f.manager(t, nil)
	path := testsupport.WriteFile(t, f.cfg.Paths.WatchDir, "분류_40017_1.json", classificationPayload)

	if attempt := manager.Process(context.Background(), path); attempt.Err != nil {
		t.Fatal(attempt.Err)
	}

	// Simulate a slow attempt from an older generation landing after a newer
	// result was accumulated.
	stale := &results.PredictionResult{
		SessionID:   "40017",
		Label:       "미흡",
		Confidence:  0.2,
		SourceKind:  fragment.KindSummary,
		Generation:  0,
		ProcessedAt: time.Now().UTC(),
	}
	err := f.results.Upsert(context.Background(), stale)
	if !errors.Is(err, results.ErrStaleResult) {
		t.Fatalf("got %v, want ErrStaleResult", err)
	}

	current, err := f.results.Get(context.Background(), "40017")
	if err != nil {
		t.Fatal(err)
	}
	if current.Label == "미흡" {
		t.Fatal("stale result overwrote the newer one")
	}
}

type logBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *logBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *logBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestAttemptLogsCarryCorrelationFields(t *testing.T) {
	f := newFixture(t)
	var out logBuffer
	logger := slog.New(slog.NewJSONHandler(&out, &slog.HandlerOptions{Level: slog.LevelDebug}))
	manager := pipeline.New(f.cfg, f.sessions, f.results,
		analysis.NewKeywordExtractor(), analysis.NewLinearPredictor(), logger)
	path := testsupport.WriteFile(t, f.cfg.Paths.WatchDir, "분류_40017_1.json", classificationPayload)

	if err := manager.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	manager.Enqueue(path)

	deadline := time.Now().Add(10 * time.Second)
	for !strings.Contains(out.String(), "fragment processed") {
		if time.Now().After(deadline) {
			t.Fatal("fragment never processed")
		}
		time.Sleep(20 * time.Millisecond)
	}
	manager.Stop()

	var correlationID string
	var sawExtractStage bool
	for _, line := range strings.Split(strings.TrimSpace(out.String()), "\n") {
		var record map[string]any
		if err := json.Unmarshal([]byte(line), &record); err != nil {
			t.Fatalf("log line not json: %v\n%s", err, line)
		}
		switch record["msg"] {
		case "fragment processed":
			id, _ := record["correlation_id"].(string)
			if id == "" {
				t.Errorf("fragment processed record lacks correlation_id: %s", line)
			}
			correlationID = id
		case "features extracted":
			if record["stage"] != "extract" {
				t.Errorf("stage = %v: %s", record["stage"], line)
			}
			if record["session_id"] != "40017" {
				t.Errorf("session_id = %v: %s", record["session_id"], line)
			}
			if id, _ := record["correlation_id"].(string); id == "" {
				t.Errorf("stage record lacks correlation_id: %s", line)
			}
			sawExtractStage = true
		}
	}
	if correlationID == "" {
		t.Fatal("no fragment processed record found")
	}
	if !sawExtractStage {
		t.Fatal("no extract stage record found")
	}
}

// slowExtractor adds a fixed delay in front of the real extractor.
type slowExtractor struct {
	delay time.Duration
}

func (s slowExtractor) Extract(ctx context.Context, record *session.Record) (analysis.Features, error) {
	select {
	case <-time.After(s.delay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return analysis.NewKeywordExtractor().Extract(ctx, record)
}

func TestDurationCoversExtractionAndPrediction(t *testing.T) {
	f := newFixture(t)
	delay := 80 * time.Millisecond
	manager := f.manager(t, slowExtractor{delay: delay})
	path := testsupport.WriteFile(t, f.cfg.Paths.WatchDir, "분류_40017_1.json", classificationPayload)

	attempt := manager.Process(context.Background(), path)
	if attempt.Err != nil {
		t.Fatal(attempt.Err)
	}
	if attempt.Result.Duration < delay {
		t.Errorf("duration %v shorter than the extraction stage alone (%v)", attempt.Result.Duration, delay)
	}

	stored, err := f.results.Get(context.Background(), "40017")
	if err != nil {
		t.Fatal(err)
	}
	if stored.Duration < delay {
		t.Errorf("persisted duration %v shorter than the extraction stage alone (%v)", stored.Duration, delay)
	}
}
