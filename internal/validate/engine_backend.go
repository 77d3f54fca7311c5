package validate

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/vinnividivicci/openingbim-cicd/internal/engine"
	"github.com/vinnividivicci/openingbim-cicd/internal/log"
)

// EngineBackend validates with the same in-process rule engine used for
// conversion. Specifications are evaluated sequentially; one specification's
// evaluation error degrades to a synthetic failed entry instead of aborting
// the run.
type EngineBackend struct {
	eng engine.RuleEngine
}

var _ Backend = (*EngineBackend)(nil)

func NewEngineBackend(eng engine.RuleEngine) *EngineBackend {
	return &EngineBackend{eng: eng}
}

func (b *EngineBackend) Name() string { return "engine" }

func (b *EngineBackend) Validate(ctx context.Context, model, ruleSpec []byte, fileName string, onProgress ProgressFunc) (json.RawMessage, error) {
	specs, err := b.eng.ParseSpecifications(ruleSpec)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSpecParse, err)
	}
	if len(specs) == 0 {
		return nil, fmt.Errorf("%w: no specifications found", ErrSpecParse)
	}

	loaded, err := b.eng.LoadModel(ctx, model, fileName)
	if err != nil {
		return nil, fmt.Errorf("load model %q: %w", fileName, err)
	}

	logger := log.WithComponent("validate").With("file", fileName)

	entries := make([]map[string]any, 0, len(specs))
	evaluated := 0
	var lastErr error

	for i, spec := range specs {
		raw, err := b.eng.Evaluate(ctx, spec, loaded)
		if err != nil {
			logger.Warn("specification evaluation failed",
				"spec_id", spec.ID(), "error", err)
			entries = append(entries, syntheticFailure(spec, err))
			lastErr = err
		} else {
			entries = append(entries, specEntry(spec, raw))
			evaluated++
		}

		if onProgress != nil {
			onProgress(i+1, len(specs))
		}
	}

	if evaluated == 0 {
		return nil, fmt.Errorf("no specification could be evaluated: %w", lastErr)
	}

	out, err := json.Marshal(map[string]any{"specifications": entries})
	if err != nil {
		return nil, fmt.Errorf("assemble validation output: %w", err)
	}
	return out, nil
}

// specEntry wraps a raw per-specification outcome, stamping the id and name
// when the engine did not include them.
func specEntry(spec engine.Specification, raw json.RawMessage) map[string]any {
	var entry map[string]any
	if err := json.Unmarshal(raw, &entry); err != nil || entry == nil {
		entry = map[string]any{}
	}
	if _, ok := entry["id"]; !ok {
		entry["id"] = spec.ID()
	}
	if _, ok := entry["name"]; !ok {
		entry["name"] = spec.Name()
	}
	return entry
}

// syntheticFailure represents a specification whose evaluation threw: a
// single failed requirement carrying the error message as its reason.
func syntheticFailure(spec engine.Specification, evalErr error) map[string]any {
	return map[string]any{
		"id":   spec.ID(),
		"name": spec.Name(),
		"requirements": []map[string]any{
			{
				"id":          "evaluation-error",
				"name":        "Evaluation error",
				"description": evalErr.Error(),
				"status":      "failed",
				"failedCount": 1,
			},
		},
	}
}
