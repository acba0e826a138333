package session

import (
	"time"

	"feple/internal/fragment"
)

// Record is a session's accumulated state after combining all fragments seen
// so far. Records are owned by the Store and mutated only through Merge.
type Record struct {
	SessionID         string
	ConsultingContent string
	Annotations       []fragment.Annotation
	KindsSeen         []fragment.Kind
	// Generation increments on every merge. Pipeline runs carry the generation
	// they were started from so stale results can be rejected at upsert time.
	Generation int64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// HasKind reports whether a fragment of the given kind has been merged.
func (r *Record) HasKind(kind fragment.Kind) bool {
	for _, k := range r.KindsSeen {
		if k == kind {
			return true
		}
	}
	return false
}

// Clone returns a deep copy safe to hand to pipeline stages.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	cp := *r
	cp.Annotations = make([]fragment.Annotation, len(r.Annotations))
	copy(cp.Annotations, r.Annotations)
	cp.KindsSeen = make([]fragment.Kind, len(r.KindsSeen))
	copy(cp.KindsSeen, r.KindsSeen)
	return &cp
}
