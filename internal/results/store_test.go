package results_test

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"math"
	"os"
	"sync"
	"testing"
	"time"

	"feple/internal/fragment"
	"feple/internal/results"
	"feple/internal/testsupport"
)

func openStore(t *testing.T) *results.Store {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store, err := results.Open(cfg)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleResult(sessionID string, generation int64) *results.PredictionResult {
	return &results.PredictionResult{
		SessionID:   sessionID,
		Label:       "만족",
		Confidence:  0.91,
		Duration:    42 * time.Millisecond,
		SourceKind:  fragment.KindClassification,
		Generation:  generation,
		ProcessedAt: time.Now().UTC(),
	}
}

func TestUpsertKeepsOneRowPerSession(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	for gen := int64(1); gen <= 3; gen++ {
		result := sampleResult("40017", gen)
		result.Confidence = 0.5 + float64(gen)/10
		if err := store.Upsert(ctx, result); err != nil {
			t.Fatalf("upsert gen %d: %v", gen, err)
		}
	}

	all, err := store.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 {
		t.Fatalf("got %d rows, want 1", len(all))
	}
	if all[0].Generation != 3 {
		t.Errorf("generation = %d, want 3", all[0].Generation)
	}
	if math.Abs(all[0].Confidence-0.8) > 1e-9 {
		t.Errorf("confidence = %v, want 0.8", all[0].Confidence)
	}
}

func TestUpsertRejectsStaleGeneration(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	if err := store.Upsert(ctx, sampleResult("40017", 5)); err != nil {
		t.Fatal(err)
	}

	stale := sampleResult("40017", 3)
	stale.Label = "미흡"
	err := store.Upsert(ctx, stale)
	if !errors.Is(err, results.ErrStaleResult) {
		t.Fatalf("got %v, want ErrStaleResult", err)
	}

	current, err := store.Get(ctx, "40017")
	if err != nil {
		t.Fatal(err)
	}
	if current.Label != "만족" || current.Generation != 5 {
		t.Fatalf("stale write changed the row: %+v", current)
	}

	// Equal generation is a legitimate reprocess and must be accepted.
	same := sampleResult("40017", 5)
	if err := store.Upsert(ctx, same); err != nil {
		t.Fatalf("equal generation rejected: %v", err)
	}
}

func TestUpsertValidatesConfidence(t *testing.T) {
	store := openStore(t)
	for _, confidence := range []float64{-0.1, 1.1} {
		result := sampleResult("1", 1)
		result.Confidence = confidence
		if err := store.Upsert(context.Background(), result); err == nil {
			t.Errorf("confidence %v accepted", confidence)
		}
	}
}

func TestCSVMirrorTracksStore(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	if err := store.Upsert(ctx, sampleResult("2", 1)); err != nil {
		t.Fatal(err)
	}
	if err := store.Upsert(ctx, sampleResult("1", 1)); err != nil {
		t.Fatal(err)
	}

	file, err := os.Open(store.CSVPath())
	if err != nil {
		t.Fatalf("open csv mirror: %v", err)
	}
	defer file.Close()

	rows, err := csv.NewReader(file).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 {
		t.Fatalf("got %d csv rows, want header + 2", len(rows))
	}
	if rows[0][0] != "session_id" {
		t.Errorf("header = %v", rows[0])
	}
	// Rows are ordered by session id.
	if rows[1][0] != "1" || rows[2][0] != "2" {
		t.Errorf("rows out of order: %v / %v", rows[1], rows[2])
	}
	if rows[1][1] != "만족" {
		t.Errorf("label column = %q", rows[1][1])
	}
}

func TestSummarize(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	// Nine satisfied sessions, one insufficient.
	for i := 0; i < 9; i++ {
		result := sampleResult(fmt.Sprintf("1000%d", i), 1)
		result.Confidence = 0.9
		if err := store.Upsert(ctx, result); err != nil {
			t.Fatal(err)
		}
	}
	low := sampleResult("20000", 1)
	low.Label = "미흡"
	low.Confidence = 0.4
	low.SourceKind = fragment.KindSummary
	if err := store.Upsert(ctx, low); err != nil {
		t.Fatal(err)
	}

	summary, err := store.Summarize(ctx, 0.8)
	if err != nil {
		t.Fatal(err)
	}
	if summary.Total != 10 {
		t.Fatalf("total = %d", summary.Total)
	}
	if got := summary.LabelPercent("만족"); math.Abs(got-90) > 1e-9 {
		t.Errorf("만족 percent = %v, want 90", got)
	}
	if got := summary.LabelPercent("미흡"); math.Abs(got-10) > 1e-9 {
		t.Errorf("미흡 percent = %v, want 10", got)
	}
	wantMean := (9*0.9 + 0.4) / 10
	if math.Abs(summary.MeanConfidence-wantMean) > 1e-9 {
		t.Errorf("mean confidence = %v, want %v", summary.MeanConfidence, wantMean)
	}
	if summary.HighConfidence != 9 {
		t.Errorf("high confidence = %d, want 9", summary.HighConfidence)
	}
	if summary.KindCounts[fragment.KindClassification] != 9 || summary.KindCounts[fragment.KindSummary] != 1 {
		t.Errorf("kind counts = %v", summary.KindCounts)
	}
}

func TestSummarizeEmptyStore(t *testing.T) {
	store := openStore(t)
	summary, err := store.Summarize(context.Background(), 0.8)
	if err != nil {
		t.Fatal(err)
	}
	if summary.Total != 0 || summary.MeanConfidence != 0 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if summary.LabelPercent("만족") != 0 {
		t.Error("percent on empty store should be 0")
	}
}

func TestConcurrentUpsertsKeepMirrorComplete(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	const n = 12
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := store.Upsert(ctx, sampleResult(fmt.Sprintf("3%03d", i), 1)); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("upsert error: %v", err)
	}

	file, err := os.Open(store.CSVPath())
	if err != nil {
		t.Fatalf("open csv mirror: %v", err)
	}
	defer file.Close()
	rows, err := csv.NewReader(file).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	// Whichever export ran last must reflect every committed row.
	if len(rows) != n+1 {
		t.Fatalf("csv has %d rows, want header + %d", len(rows), n)
	}
}
