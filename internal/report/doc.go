// Package report writes the periodic plain-text summary of accumulated
// classification results.
package report
