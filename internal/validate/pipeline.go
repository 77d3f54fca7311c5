package validate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/vinnividivicci/openingbim-cicd/internal/jobs"
	"github.com/vinnividivicci/openingbim-cicd/internal/log"
	"github.com/vinnividivicci/openingbim-cicd/internal/results"
	"github.com/vinnividivicci/openingbim-cicd/internal/store"
)

// Specification progress is mapped into this band; the tail is reserved for
// normalization and result persistence.
const (
	bandStart = 50
	bandEnd   = 90
)

// Result is the job result for a completed validation: a reference to the
// stored result document plus the same data inlined.
type Result struct {
	ResultFileID string `json:"resultFileId"`
	results.Document
}

// Pipeline validates model files against rule specifications asynchronously.
type Pipeline struct {
	ledger    *jobs.Ledger
	artifacts *store.Store
	backend   Backend
	logger    *slog.Logger
}

func New(ledger *jobs.Ledger, artifacts *store.Store, backend Backend) *Pipeline {
	return &Pipeline{
		ledger:    ledger,
		artifacts: artifacts,
		backend:   backend,
		logger:    log.WithComponent("validate"),
	}
}

// Validate registers a job and returns its id immediately. The raw model is
// additionally cached under the new job id so a later conversion request can
// reuse it without re-upload.
func (p *Pipeline) Validate(ctx context.Context, model, ruleSpec []byte, fileName string) string {
	jobID := p.ledger.Create()
	p.logger.Info("validation started",
		"job_id", jobID, "file", fileName, "backend", p.backend.Name())

	go p.run(context.WithoutCancel(ctx), jobID, model, ruleSpec, fileName)
	return jobID
}

func (p *Pipeline) run(ctx context.Context, jobID string, model, ruleSpec []byte, fileName string) {
	defer func() {
		if r := recover(); r != nil {
			p.ledger.Fail(jobID, jobs.ErrorKindInfra, fmt.Sprintf("validation panicked: %v", r))
		}
	}()

	if _, err := p.artifacts.StoreIfcForCache(model, fileName, jobID); err != nil {
		p.ledger.Fail(jobID, jobs.ErrorKindInfra, err.Error())
		return
	}
	p.ledger.SetProgress(jobID, 10)

	raw, err := p.backend.Validate(ctx, model, ruleSpec, fileName, func(done, total int) {
		p.ledger.SetProgress(jobID, scaleSpecProgress(done, total))
	})
	if err != nil {
		kind := jobs.ErrorKindInfra
		if errors.Is(err, ErrSpecParse) {
			kind = jobs.ErrorKindInput
		}
		p.ledger.Fail(jobID, kind, err.Error())
		return
	}

	p.ledger.SetProgress(jobID, bandEnd)

	canonical := results.Normalize(raw, []string{fileName})
	doc := results.NewDocument(canonical, fileName, jobID, p.backend.Name())

	docBytes, err := json.Marshal(doc)
	if err != nil {
		p.ledger.Fail(jobID, jobs.ErrorKindInfra, err.Error())
		return
	}

	fileID, err := p.artifacts.StoreFile(docBytes, fileName+".validation.json", store.CategoryResults, "application/json")
	if err != nil {
		p.ledger.Fail(jobID, jobs.ErrorKindInfra, err.Error())
		return
	}

	jobResult, err := json.Marshal(Result{ResultFileID: fileID, Document: doc})
	if err != nil {
		p.ledger.Fail(jobID, jobs.ErrorKindInfra, err.Error())
		return
	}
	p.ledger.Complete(jobID, jobResult)
}

// scaleSpecProgress maps specifications completed onto the pipeline's band.
func scaleSpecProgress(done, total int) int {
	if total <= 0 {
		return bandStart
	}
	if done > total {
		done = total
	}
	if done < 0 {
		done = 0
	}
	return bandStart + done*(bandEnd-bandStart)/total
}
