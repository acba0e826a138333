package analysis

// Quality labels form a closed set matching the trained upstream model's
// classes. Every predictor implementation must emit one of these.
const (
	LabelSatisfied     = "만족"
	LabelInsufficient  = "미흡"
	LabelUnresolvable  = "해결 불가"
	LabelNeedsFollowUp = "추가 상담 필요"
)

var labels = []string{LabelSatisfied, LabelInsufficient, LabelUnresolvable, LabelNeedsFollowUp}

// Labels returns the closed label set in canonical order.
func Labels() []string {
	cp := make([]string, len(labels))
	copy(cp, labels)
	return cp
}

// ValidLabel reports whether value belongs to the closed label set.
func ValidLabel(value string) bool {
	for _, label := range labels {
		if label == value {
			return true
		}
	}
	return false
}
