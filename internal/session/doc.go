// Package session persists merged session records in SQLite and owns the merge
// semantics for fragments arriving out of order.
//
// Merges into the same session are strictly serialized in arrival order via a
// per-session lock held across the read-modify-write and the durable commit.
// Records are never deleted automatically; the store survives restarts.
package session
