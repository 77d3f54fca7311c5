// Package results defines the canonical validation result model and the
// normalizer that reconciles the raw output shapes of the supported
// validation backends into it.
package results

import "time"

type Status string

const (
	StatusPassed Status = "passed"
	StatusFailed Status = "failed"
)

// FailedElement is one piece of element evidence attached to a failed
// requirement.
type FailedElement struct {
	ElementID   string         `json:"elementId"`
	ElementType string         `json:"elementType"`
	Name        string         `json:"name,omitempty"`
	Reason      string         `json:"reason"`
	Properties  map[string]any `json:"properties,omitempty"`
}

// Requirement is one checkable rule within a specification.
type Requirement struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Description    string          `json:"description,omitempty"`
	Status         Status          `json:"status"`
	PassedCount    int             `json:"passedCount"`
	FailedCount    int             `json:"failedCount"`
	FailedElements []FailedElement `json:"failedElements"`
}

// Summary counts requirements by status. It is always derived from the
// requirement sequence, never supplied by upstream.
type Summary struct {
	Total  int `json:"total"`
	Passed int `json:"passed"`
	Failed int `json:"failed"`
}

// ValidationResult is the canonical per-specification outcome.
type ValidationResult struct {
	SpecificationID   string        `json:"specificationId"`
	SpecificationName string        `json:"specificationName"`
	ModelName         string        `json:"modelName,omitempty"`
	Requirements      []Requirement `json:"requirements"`
	Summary           Summary       `json:"summary"`
}

// Metadata describes the validation run a stored document belongs to.
type Metadata struct {
	FileName  string    `json:"fileName"`
	Timestamp time.Time `json:"timestamp"`
	JobID     string    `json:"jobId"`
	Validator string    `json:"validator"`
}

// OverallSummary aggregates across every specification in a document.
type OverallSummary struct {
	TotalSpecifications int `json:"totalSpecifications"`
	TotalRequirements   int `json:"totalRequirements"`
	TotalPassed         int `json:"totalPassed"`
	TotalFailed         int `json:"totalFailed"`
}

// Document is the self-describing JSON persisted for a validation job.
type Document struct {
	ValidationResults []ValidationResult `json:"validationResults"`
	Summary           OverallSummary     `json:"summary"`
	Metadata          Metadata           `json:"metadata"`
}

// NewDocument assembles a result document, deriving the overall summary from
// the canonical results.
func NewDocument(res []ValidationResult, fileName, jobID, validator string) Document {
	var overall OverallSummary
	overall.TotalSpecifications = len(res)
	for _, r := range res {
		overall.TotalRequirements += r.Summary.Total
		overall.TotalPassed += r.Summary.Passed
		overall.TotalFailed += r.Summary.Failed
	}
	return Document{
		ValidationResults: res,
		Summary:           overall,
		Metadata: Metadata{
			FileName:  fileName,
			Timestamp: time.Now().UTC(),
			JobID:     jobID,
			Validator: validator,
		},
	}
}
