package fragment

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"feple/internal/services"
)

// Annotation is one labeled instruction entry inside a fragment. Pairs are
// deduplicated by (TaskCategory, Output) during session merge.
type Annotation struct {
	TaskCategory string `json:"task_category"`
	Output       string `json:"output"`
}

// Key returns the dedup key for the annotation.
func (a Annotation) Key() string {
	return a.TaskCategory + "\x00" + a.Output
}

// Instruction groups annotations under the tuning type that produced them.
type Instruction struct {
	TuningType string       `json:"tuning_type"`
	Data       []Annotation `json:"data"`
}

// Record is the parsed content of one fragment file.
type Record struct {
	SessionID         string        `json:"session_id"`
	ConsultingContent string        `json:"consulting_content"`
	Instructions      []Instruction `json:"instructions"`
}

// Annotations flattens all instruction data entries in order.
func (r *Record) Annotations() []Annotation {
	var out []Annotation
	for _, inst := range r.Instructions {
		out = append(out, inst.Data...)
	}
	return out
}

// ParseRecord decodes a fragment payload. Upstream producers sometimes wrap
// the record in a single-element array; the first element is used in that
// case, matching their consumers.
func ParseRecord(data []byte) (*Record, error) {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return nil, services.Wrap(services.ErrValidation, "", "parse record", "empty payload", nil)
	}

	if strings.HasPrefix(trimmed, "[") {
		var records []Record
		if err := json.Unmarshal([]byte(trimmed), &records); err != nil {
			return nil, services.Wrap(services.ErrValidation, "", "parse record", "decode array payload", err)
		}
		if len(records) == 0 {
			return nil, services.Wrap(services.ErrValidation, "", "parse record", "empty array payload", nil)
		}
		return &records[0], nil
	}

	var record Record
	if err := json.Unmarshal([]byte(trimmed), &record); err != nil {
		return nil, services.Wrap(services.ErrValidation, "", "parse record", "decode payload", err)
	}
	return &record, nil
}

// LoadRecord reads and decodes a fragment file.
func LoadRecord(path string) (*Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fragment %s: %w", path, err)
	}
	return ParseRecord(data)
}
