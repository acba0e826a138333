// Package analysis holds the pipeline's external collaborators behind small
// interfaces: text feature extraction and quality prediction. The bundled
// implementations are deterministic; a non-deterministic model swapped in
// behind Predictor would weaken the pipeline's idempotence guarantee to
// label-stability only.
package analysis
