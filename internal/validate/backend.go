// Package validate runs rule-specification validation as background jobs.
// Two interchangeable backends exist: an in-process rule engine and an
// out-of-process ifctester invocation. Both produce raw output that is
// normalized before persistence.
package validate

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrSpecParse marks an unusable rule specification. Jobs failing with it are
// classified as input errors and never retried.
var ErrSpecParse = errors.New("rule specification parse failed")

// ProgressFunc reports specifications completed out of the total.
type ProgressFunc func(done, total int)

// Backend evaluates a rule specification against a model and returns the raw
// outcome document for normalization.
type Backend interface {
	// Name identifies the backend in result document metadata.
	Name() string
	Validate(ctx context.Context, model, ruleSpec []byte, fileName string, onProgress ProgressFunc) (json.RawMessage, error)
}
