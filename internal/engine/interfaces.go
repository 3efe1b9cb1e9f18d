package engine

import (
	"context"

	"github.com/Veraticus/vatflow/internal/model"
	"github.com/Veraticus/vatflow/internal/refine"
)

// RuleClassifier produces the initial rule-based guess for an entry.
type RuleClassifier interface {
	Classify(entry model.NormalizedEntry) model.Classification
	Version() string
}

// Refiner improves a low-confidence guess. It must not fail; problems are
// reported through the returned classification.
type Refiner interface {
	Refine(ctx context.Context, entry model.NormalizedEntry, initial model.Classification) refine.Result
}
