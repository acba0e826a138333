// Package pipeline runs fragments through the processing stages. A bounded
// worker pool drains an unbounded backlog; each fragment is merged into its
// session record, analyzed under per-stage time budgets, and its prediction
// accumulated. Failures are confined to the fragment that caused them.
package pipeline
