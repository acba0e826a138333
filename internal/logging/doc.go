// Package logging builds the slog loggers used across the daemon, with a
// console handler for interactive use and a JSON handler for structured
// collection, plus helpers for deriving log fields from context.
package logging
