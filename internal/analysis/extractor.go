package analysis

import (
	"context"
	"strings"

	"feple/internal/services"
	"feple/internal/session"
)

// Features maps extracted feature names to numeric values.
type Features map[string]float64

// Extractor computes text features from a merged session record. Implementations
// must be safe for concurrent per-session invocation.
type Extractor interface {
	Extract(ctx context.Context, record *session.Record) (Features, error)
}

// Keyword groups mirrored from the upstream feature pipeline. Counts of these
// in the transcript are the model's core inputs.
var featureKeywords = map[string][]string{
	"polite":       {"습니다", "아요", "세요", "요.", "니다"},
	"positive":     {"감사", "고맙", "좋", "만족", "훌륭", "완벽"},
	"negative":     {"불만", "화나", "짜증", "실망", "최악", "불편"},
	"apology":      {"죄송", "미안", "양해"},
	"empathy":      {"이해", "공감", "마음"},
	"confirmation": {"맞나요", "맞습니까", "확인"},
	"alternative":  {"방법", "대안", "다른"},
	"conflict":     {"문제", "갈등", "충돌"},
	"manual":       {"메뉴얼", "규정", "정책", "절차"},
}

// KeywordExtractor derives transcript statistics and keyword-group counts. It
// is stateless and deterministic.
type KeywordExtractor struct{}

// NewKeywordExtractor constructs the default extractor.
func NewKeywordExtractor() *KeywordExtractor {
	return &KeywordExtractor{}
}

// Extract computes features for the record's transcript and annotations.
func (e *KeywordExtractor) Extract(ctx context.Context, record *session.Record) (Features, error) {
	if record == nil {
		return nil, services.Wrap(services.ErrValidation, "extract", "", "session record is nil", nil)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	content := record.ConsultingContent
	features := make(Features, len(featureKeywords)+6)

	for group, keywords := range featureKeywords {
		count := 0
		for _, keyword := range keywords {
			count += strings.Count(content, keyword)
		}
		features[group+"_count"] = float64(count)
	}

	counselorTurns, customerTurns := countSpeakerTurns(content)
	features["counselor_turns"] = float64(counselorTurns)
	features["customer_turns"] = float64(customerTurns)
	features["transcript_chars"] = float64(len([]rune(content)))
	features["sentence_count"] = float64(countSentences(content))
	features["annotation_count"] = float64(len(record.Annotations))
	if sentences := features["sentence_count"]; sentences > 0 {
		features["polite_ratio"] = features["polite_count"] / sentences
	} else {
		features["polite_ratio"] = 0
	}

	return features, nil
}

// countSpeakerTurns counts 상담사 (counselor) and 고객 (customer) speaker
// markers at line starts.
func countSpeakerTurns(content string) (counselor, customer int) {
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "상담사"):
			counselor++
		case strings.HasPrefix(trimmed, "고객"):
			customer++
		}
	}
	return counselor, customer
}

func countSentences(content string) int {
	count := 0
	for _, r := range content {
		switch r {
		case '.', '?', '!':
			count++
		}
	}
	if count == 0 && strings.TrimSpace(content) != "" {
		return 1
	}
	return count
}
