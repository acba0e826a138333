package session

import (
	"strings"

	"feple/internal/fragment"
)

// applyFragment folds one fragment into the session record.
//
// Merge policy: the most recently arrived non-empty transcript wins (an empty
// incoming transcript never clobbers existing content). Annotations are
// deduplicated by (task_category, output); a pair that already exists is
// discarded as redundant. Kinds-seen is a set union.
func applyFragment(record *Record, kind fragment.Kind, frag *fragment.Record) {
	if content := strings.TrimSpace(frag.ConsultingContent); content != "" {
		record.ConsultingContent = content
	}

	seen := make(map[string]struct{}, len(record.Annotations))
	for _, ann := range record.Annotations {
		seen[ann.Key()] = struct{}{}
	}
	for _, ann := range frag.Annotations() {
		if _, dup := seen[ann.Key()]; dup {
			continue
		}
		seen[ann.Key()] = struct{}{}
		record.Annotations = append(record.Annotations, ann)
	}

	if !record.HasKind(kind) {
		record.KindsSeen = append(record.KindsSeen, kind)
	}
}
