// Package watcher turns raw filesystem notifications on the input directory
// into at-most-one dispatch per stable file write, with a size-stability
// debounce so partially written files are never read.
package watcher
