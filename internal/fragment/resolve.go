package fragment

import (
	"path/filepath"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// UnknownSessionID is returned when a filename carries no digit run.
const UnknownSessionID = "unknown"

// Resolve maps a filename to its fragment kind and session identifier. It is
// pure: no filesystem access, deterministic for a given name. Directory
// components are ignored.
func Resolve(filename string) (Kind, string) {
	base := filepath.Base(filename)
	return DetectKind(base), ExtractSessionID(base)
}

// DetectKind performs a case-insensitive substring match of the keyword tables
// against the filename. Filenames are NFC-normalized first so decomposed
// Hangul (as produced by some filesystems) matches the composed keywords.
func DetectKind(filename string) Kind {
	name := strings.ToLower(norm.NFC.String(filename))

	bestKind := KindUnrecognized
	bestPos := -1
	for _, table := range keywordTables {
		pos := earliestKeywordPos(name, table.keywords)
		if pos < 0 {
			continue
		}
		if bestPos < 0 || pos < bestPos {
			bestKind = table.kind
			bestPos = pos
		}
	}
	return bestKind
}

func earliestKeywordPos(name string, keywords []string) int {
	best := -1
	for _, keyword := range keywords {
		idx := strings.Index(name, keyword)
		if idx < 0 {
			continue
		}
		if best < 0 || idx < best {
			best = idx
		}
	}
	return best
}

// ExtractSessionID returns the longest contiguous digit run in the filename,
// preferring the leftmost run on equal length. Filenames without digits map to
// UnknownSessionID.
func ExtractSessionID(filename string) string {
	var best string
	start := -1
	for i, r := range filename {
		if r >= '0' && r <= '9' {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			if run := filename[start:i]; len(run) > len(best) {
				best = run
			}
			start = -1
		}
	}
	if start >= 0 {
		if run := filename[start:]; len(run) > len(best) {
			best = run
		}
	}
	if best == "" {
		return UnknownSessionID
	}
	return best
}
