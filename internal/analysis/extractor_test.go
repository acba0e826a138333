package analysis

import (
	"context"
	"testing"

	"feple/internal/fragment"
	"feple/internal/session"
)

func TestExtractCountsKeywordGroups(t *testing.T) {
	record := &session.Record{
		SessionID: "40017",
		ConsultingContent: "상담사: 감사합니다. 도움이 되셨나요?\n" +
			"고객: 네, 만족합니다. 감사합니다!\n" +
			"상담사: 불편을 드려 죄송합니다.",
		Annotations: []fragment.Annotation{
			{TaskCategory: "상담 결과", Output: "만족"},
		},
	}

	features, err := NewKeywordExtractor().Extract(context.Background(), record)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}

	// 감사 twice, 만족 once.
	if got := features["positive_count"]; got != 3 {
		t.Errorf("positive_count = %v, want 3", got)
	}
	if got := features["apology_count"]; got != 1 {
		t.Errorf("apology_count = %v, want 1", got)
	}
	if got := features["counselor_turns"]; got != 2 {
		t.Errorf("counselor_turns = %v, want 2", got)
	}
	if got := features["customer_turns"]; got != 1 {
		t.Errorf("customer_turns = %v, want 1", got)
	}
	if got := features["annotation_count"]; got != 1 {
		t.Errorf("annotation_count = %v, want 1", got)
	}
	if features["sentence_count"] <= 0 {
		t.Errorf("sentence_count = %v", features["sentence_count"])
	}
	if features["transcript_chars"] <= 0 {
		t.Errorf("transcript_chars = %v", features["transcript_chars"])
	}
}

func TestExtractEmptyTranscript(t *testing.T) {
	features, err := NewKeywordExtractor().Extract(context.Background(), &session.Record{SessionID: "1"})
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if features["polite_ratio"] != 0 {
		t.Errorf("polite_ratio = %v, want 0", features["polite_ratio"])
	}
	if features["sentence_count"] != 0 {
		t.Errorf("sentence_count = %v, want 0", features["sentence_count"])
	}
}

func TestExtractNilRecord(t *testing.T) {
	if _, err := NewKeywordExtractor().Extract(context.Background(), nil); err == nil {
		t.Fatal("expected error for nil record")
	}
}

func TestExtractHonorsCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewKeywordExtractor().Extract(ctx, &session.Record{SessionID: "1"}); err == nil {
		t.Fatal("expected context error")
	}
}

func TestExtractDeterministic(t *testing.T) {
	record := &session.Record{
		SessionID:         "40017",
		ConsultingContent: "상담사: 감사합니다. 확인 부탁드립니다.",
	}
	extractor := NewKeywordExtractor()
	first, err := extractor.Extract(context.Background(), record)
	if err != nil {
		t.Fatal(err)
	}
	second, err := extractor.Extract(context.Background(), record)
	if err != nil {
		t.Fatal(err)
	}
	if len(first) != len(second) {
		t.Fatalf("feature sets differ in size: %d vs %d", len(first), len(second))
	}
	for name, value := range first {
		if second[name] != value {
			t.Errorf("feature %q differs: %v vs %v", name, value, second[name])
		}
	}
}
