// Package config loads, validates, and normalizes the TOML configuration that
// drives the daemon: watched directories, pipeline concurrency and stage
// budgets, watcher debounce, summary reporting, and logging.
package config
