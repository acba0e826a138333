// Package results owns the cumulative prediction store: one row per session,
// append-or-update keyed by session id, with stale-generation rejection and a
// CSV mirror for downstream consumers. Callers never touch the underlying
// storage directly; the upsert contract is the only write path.
package results
