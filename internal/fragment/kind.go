package fragment

import "strings"

// Kind identifies which facet of a session a fragment file carries. The set is
// closed: classification switch statements should handle every constant plus
// KindUnrecognized.
type Kind string

const (
	KindClassification Kind = "classification"
	KindSummary        Kind = "summary"
	KindQA             Kind = "qa"
	KindUnrecognized   Kind = "unrecognized"
)

var allKinds = []Kind{KindClassification, KindSummary, KindQA}

// keywordTable associates a kind with the filename keywords that select it.
// Tables are matched in declaration order; overlapping matches are resolved by
// the earliest keyword position in the filename, then by table order. Korean
// forms come first since they are the canonical upstream naming.
type keywordTable struct {
	kind     Kind
	keywords []string
}

var keywordTables = []keywordTable{
	{KindClassification, []string{"분류", "classification", "classify", "class"}},
	{KindSummary, []string{"요약", "summary", "summarize", "sum"}},
	{KindQA, []string{"질의응답", "qa", "qna", "question", "answer"}},
}

// AllKinds returns the recognized kinds in declaration order.
func AllKinds() []Kind {
	cp := make([]Kind, len(allKinds))
	copy(cp, allKinds)
	return cp
}

// ParseKind converts a string into a known Kind.
func ParseKind(value string) (Kind, bool) {
	normalized := Kind(strings.ToLower(strings.TrimSpace(value)))
	for _, kind := range allKinds {
		if kind == normalized {
			return kind, true
		}
	}
	return KindUnrecognized, false
}

// Korean display names, kept for report output parity with the upstream data
// producers.
var kindLabels = map[Kind]string{
	KindClassification: "분류",
	KindSummary:        "요약",
	KindQA:             "질의응답",
	KindUnrecognized:   "미분류",
}

// Label returns the Korean display name for the kind.
func (k Kind) Label() string {
	if label, ok := kindLabels[k]; ok {
		return label
	}
	return string(k)
}
