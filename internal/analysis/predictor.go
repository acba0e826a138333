package analysis

import (
	"context"
	"math"

	"feple/internal/services"
)

// Predictor classifies a feature vector into one of the closed quality labels
// with a confidence in [0,1].
type Predictor interface {
	Predict(ctx context.Context, features Features) (label string, confidence float64, err error)
}

// LinearPredictor scores each label with a linear model and softmax, standing
// in for the trained gradient-boosting classifier behind the same contract.
// It is fully deterministic, so re-running a pipeline attempt on the same
// merged record yields the same label and confidence.
type LinearPredictor struct {
	weights map[string]Features
	bias    map[string]float64
}

// NewLinearPredictor constructs the predictor with the bundled weights.
func NewLinearPredictor() *LinearPredictor {
	return &LinearPredictor{
		weights: map[string]Features{
			LabelSatisfied: {
				"positive_count": 1.6,
				"polite_ratio":   1.2,
				"empathy_count":  0.8,
				"negative_count": -1.4,
				"conflict_count": -0.6,
			},
			LabelInsufficient: {
				"negative_count": 1.5,
				"apology_count":  0.9,
				"positive_count": -0.8,
				"polite_ratio":   -0.4,
			},
			LabelUnresolvable: {
				"manual_count":   1.3,
				"conflict_count": 1.0,
				"negative_count": 0.5,
				"positive_count": -0.7,
			},
			LabelNeedsFollowUp: {
				"alternative_count":  1.2,
				"confirmation_count": 0.9,
				"conflict_count":     0.4,
			},
		},
		bias: map[string]float64{
			LabelSatisfied:     0.5,
			LabelInsufficient:  0.0,
			LabelUnresolvable:  -0.5,
			LabelNeedsFollowUp: -0.2,
		},
	}
}

// Predict returns the highest-scoring label and its softmax probability.
func (p *LinearPredictor) Predict(ctx context.Context, features Features) (string, float64, error) {
	if features == nil {
		return "", 0, services.Wrap(services.ErrValidation, "predict", "", "features are nil", nil)
	}
	if err := ctx.Err(); err != nil {
		return "", 0, err
	}

	scores := make([]float64, len(labels))
	for i, label := range labels {
		score := p.bias[label]
		for name, weight := range p.weights[label] {
			score += weight * features[name]
		}
		scores[i] = score
	}

	// Softmax with max subtraction for numeric stability.
	maxScore := scores[0]
	for _, score := range scores[1:] {
		if score > maxScore {
			maxScore = score
		}
	}
	var sum float64
	exps := make([]float64, len(scores))
	for i, score := range scores {
		exps[i] = math.Exp(score - maxScore)
		sum += exps[i]
	}

	bestIdx := 0
	for i := range exps {
		if exps[i] > exps[bestIdx] {
			bestIdx = i
		}
	}
	return labels[bestIdx], exps[bestIdx] / sum, nil
}
