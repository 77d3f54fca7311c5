// Package engine defines the contracts for the external geometry and rule
// engines. Pipelines depend only on these interfaces; concrete adapters live
// in subpackages.
package engine

import (
	"context"
	"encoding/json"
)

// ProgressFunc receives the engine's own completion percentage (0-100).
// Implementations may call it from a different goroutine than Convert.
type ProgressFunc func(pct int)

// Converter turns a raw model file into viewer-format geometry bytes.
type Converter interface {
	Convert(ctx context.Context, model []byte, onProgress ProgressFunc) ([]byte, error)
}

// Model is a loaded building model rule specifications are evaluated against.
type Model interface {
	// Name returns the model's display name, usually the upload file name.
	Name() string
	// Lookup resolves a global element id into the model's internal handle.
	// The second return is false when the element is not part of this model.
	Lookup(elementID int64) (int64, bool)
}

// Specification is one parsed rule specification.
type Specification interface {
	ID() string
	Name() string
}

// RuleEngine parses rule specifications and evaluates them one at a time.
// Evaluate returns the engine's raw outcome document; callers normalize it
// before use.
type RuleEngine interface {
	LoadModel(ctx context.Context, data []byte, name string) (Model, error)
	ParseSpecifications(data []byte) ([]Specification, error)
	Evaluate(ctx context.Context, spec Specification, model Model) (json.RawMessage, error)
}
