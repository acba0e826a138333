// Package daemon assembles the watcher, pipeline, and reporter into one
// supervised process guarded by a file lock.
package daemon
