package results

import (
	"time"

	"feple/internal/fragment"
)

// PredictionResult is one session's current classification outcome. Exactly
// one row per session id is retained; later results overwrite earlier ones.
type PredictionResult struct {
	SessionID  string
	Label      string
	Confidence float64
	Duration   time.Duration
	SourceKind fragment.Kind
	// Generation is the session record generation the pipeline run started
	// from. Upserts carrying an older generation than the stored row are
	// rejected as stale.
	Generation  int64
	ProcessedAt time.Time
}

// Summary aggregates the cumulative store for the periodic snapshot.
type Summary struct {
	Total          int
	LabelCounts    map[string]int
	KindCounts     map[fragment.Kind]int
	MeanConfidence float64
	HighConfidence int
	Threshold      float64
	GeneratedAt    time.Time
}

// LabelPercent returns the share of sessions carrying the label.
func (s Summary) LabelPercent(label string) float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.LabelCounts[label]) / float64(s.Total) * 100
}
