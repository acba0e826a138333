// Package fragment classifies incoming transcript files by filename and parses
// their content.
//
// Upstream producers drop files named like 분류_40017_1.json: a kind keyword
// (classification, summary, or question-answer, in Korean or English), a
// session identifier, and a sequence number. Resolve extracts the kind and
// session id; Record models the shared payload schema. Unrecognized filenames
// are reported by the caller and dropped, never treated as fatal.
package fragment
