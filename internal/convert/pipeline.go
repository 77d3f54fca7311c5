// Package convert runs the geometry conversion pipeline: raw model bytes in,
// a stored viewer-format artifact out, tracked as a background job.
package convert

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/vinnividivicci/openingbim-cicd/internal/engine"
	"github.com/vinnividivicci/openingbim-cicd/internal/jobs"
	"github.com/vinnividivicci/openingbim-cicd/internal/log"
	"github.com/vinnividivicci/openingbim-cicd/internal/store"
)

// Engine progress is scaled into this band, leaving headroom for setup and
// artifact persistence.
const (
	bandStart = 20
	bandEnd   = 90
)

// Result references the stored artifact a completed conversion produced.
type Result struct {
	FileID   string `json:"fileId"`
	FileName string `json:"fileName"`
	Size     int64  `json:"size"`
}

// Pipeline converts model files asynchronously.
type Pipeline struct {
	ledger    *jobs.Ledger
	artifacts *store.Store
	converter engine.Converter
	logger    *slog.Logger
}

func New(ledger *jobs.Ledger, artifacts *store.Store, converter engine.Converter) *Pipeline {
	return &Pipeline{
		ledger:    ledger,
		artifacts: artifacts,
		converter: converter,
		logger:    log.WithComponent("convert"),
	}
}

// Convert registers a job and returns its id immediately. The work runs in a
// detached goroutine; callers poll the ledger for progress and the result.
func (p *Pipeline) Convert(ctx context.Context, raw []byte, fileName string) string {
	jobID := p.ledger.Create()
	p.logger.Info("conversion started", "job_id", jobID, "file", fileName, "size", len(raw))

	go p.run(context.WithoutCancel(ctx), jobID, raw, fileName)
	return jobID
}

func (p *Pipeline) run(ctx context.Context, jobID string, raw []byte, fileName string) {
	// A panic escaping into a detached goroutine would be an unobservable
	// failure; fold it into the job record instead.
	defer func() {
		if r := recover(); r != nil {
			p.ledger.Fail(jobID, jobs.ErrorKindInfra, fmt.Sprintf("conversion panicked: %v", r))
		}
	}()

	p.ledger.SetProgress(jobID, 10)

	out, err := p.converter.Convert(ctx, raw, func(pct int) {
		p.ledger.SetProgress(jobID, scaleProgress(pct))
	})
	if err != nil {
		p.ledger.Fail(jobID, jobs.ErrorKindInfra, err.Error())
		return
	}

	p.ledger.SetProgress(jobID, bandEnd)

	outName := fragmentName(fileName)
	fileID, err := p.artifacts.StoreFile(out, outName, store.CategoryFragments, "application/octet-stream")
	if err != nil {
		p.ledger.Fail(jobID, jobs.ErrorKindInfra, err.Error())
		return
	}

	result, err := json.Marshal(Result{FileID: fileID, FileName: outName, Size: int64(len(out))})
	if err != nil {
		p.ledger.Fail(jobID, jobs.ErrorKindInfra, err.Error())
		return
	}
	p.ledger.Complete(jobID, result)
}

// scaleProgress maps the engine's 0-100 onto the pipeline's band.
func scaleProgress(enginePct int) int {
	if enginePct < 0 {
		enginePct = 0
	}
	if enginePct > 100 {
		enginePct = 100
	}
	return bandStart + enginePct*(bandEnd-bandStart)/100
}

func fragmentName(fileName string) string {
	base := strings.TrimSuffix(fileName, filepath.Ext(fileName))
	if base == "" {
		base = "model"
	}
	return base + ".frag"
}
