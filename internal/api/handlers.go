package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/vinnividivicci/openingbim-cicd/internal/results"
	"github.com/vinnividivicci/openingbim-cicd/internal/store"
)

// maxUploadBytes caps multipart uploads; large campus models stay well below
// this.
const maxUploadBytes = 500 << 20

// handleHealthz handles GET /healthz (no auth).
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, HealthzResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		JobsTracked:   s.jobs.Len(),
	})
}

// handleConvert handles POST /api/v1/fragments: multipart "ifcFile" upload,
// responds 202 with the job id.
func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	data, name, err := s.formFile(r, "ifcFile")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	jobID := s.conversion.Convert(r.Context(), data, name)
	s.respondJSON(w, http.StatusAccepted, AcceptedResponse{JobID: jobID})
}

// handleConvertFromJob handles POST /api/v1/fragments/from-job/{validationJobId}:
// converts the raw model cached by an earlier validation job, no re-upload.
func (s *Server) handleConvertFromJob(w http.ResponseWriter, r *http.Request) {
	validationJobID := chi.URLParam(r, "validationJobId")

	data, meta, err := s.artifacts.GetCachedIfc(validationJobID)
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "no cached model for validation job "+validationJobID)
		return
	}
	if err != nil {
		s.logger.Error("cached model lookup failed", "validation_job_id", validationJobID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to read cached model")
		return
	}

	jobID := s.conversion.Convert(r.Context(), data, meta.OriginalName)
	s.respondJSON(w, http.StatusAccepted, AcceptedResponse{JobID: jobID})
}

// handleIdsCheck handles POST /api/v1/ids/check: multipart "ifcFile" and
// "idsFile" uploads, responds 202 with the job id.
func (s *Server) handleIdsCheck(w http.ResponseWriter, r *http.Request) {
	model, name, err := s.formFile(r, "ifcFile")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ruleSpec, _, err := s.formFile(r, "idsFile")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	jobID := s.validation.Validate(r.Context(), model, ruleSpec, name)
	s.respondJSON(w, http.StatusAccepted, AcceptedResponse{JobID: jobID})
}

// handleDownload serves a stored artifact by id (fragments or result
// documents).
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	fileID := chi.URLParam(r, "fileId")

	data, meta, err := s.artifacts.GetFile(fileID)
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "file not found")
		return
	}
	if err != nil {
		s.logger.Error("artifact read failed", "file_id", fileID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to read file")
		return
	}

	if format := r.URL.Query().Get("format"); format != "" {
		s.serveResultExport(w, data, meta, format)
		return
	}

	contentType := meta.MimeKind
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", meta.OriginalName))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// serveResultExport re-renders a stored validation result document in the
// requested format ("csv" or "json").
func (s *Server) serveResultExport(w http.ResponseWriter, data []byte, meta store.Metadata, format string) {
	if meta.Category != store.CategoryResults {
		s.writeError(w, http.StatusBadRequest, "format export is only available for validation results")
		return
	}

	var doc results.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		s.logger.Error("stored result document unreadable", "file_id", meta.ID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to decode result document")
		return
	}

	base := strings.TrimSuffix(meta.OriginalName, ".json")
	var (
		out         []byte
		contentType string
		name        string
		err         error
	)
	switch format {
	case "csv":
		out, err = results.ExportCSV(doc.ValidationResults)
		contentType, name = "text/csv", base+".csv"
	case "json":
		out, err = results.ExportJSON(doc.ValidationResults)
		contentType, name = "application/json", base+".json"
	default:
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown export format %q", format))
		return
	}
	if err != nil {
		s.logger.Error("result export failed", "file_id", meta.ID, "format", format, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to export results")
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out)
}

// handleGetJob handles GET /api/v1/jobs/{jobId}. Unknown ids are 404; a
// running job is a 200 with in-progress status.
func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobId")

	j, ok := s.jobs.Get(jobID)
	if !ok {
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	}

	s.respondJSON(w, http.StatusOK, JobResponse{
		JobID:    j.ID,
		Status:   j.Status,
		Progress: j.Progress,
		Result:   j.Result,
		Error:    j.Error,
	})
}

func (s *Server) formFile(r *http.Request, field string) ([]byte, string, error) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return nil, "", fmt.Errorf("invalid multipart form: %w", err)
	}

	file, header, err := r.FormFile(field)
	if err != nil {
		return nil, "", fmt.Errorf("no %s provided", field)
	}
	defer func(f multipart.File) { _ = f.Close() }(file)

	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
	if err != nil {
		return nil, "", fmt.Errorf("read %s: %w", field, err)
	}
	return data, header.Filename, nil
}
