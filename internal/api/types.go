package api

import (
	"encoding/json"
	"net/http"

	"github.com/vinnividivicci/openingbim-cicd/internal/jobs"
)

// AcceptedResponse is returned when a pipeline job has been started.
type AcceptedResponse struct {
	JobID string `json:"jobId"`
}

// JobResponse is the poll payload for GET /api/v1/jobs/{jobId}. Result and
// Error are status-dependent.
type JobResponse struct {
	JobID    string          `json:"jobId"`
	Status   jobs.Status     `json:"status"`
	Progress int             `json:"progress"`
	Result   json.RawMessage `json:"result,omitempty"`
	Error    *jobs.Error     `json:"error,omitempty"`
}

// HealthzResponse is the payload for GET /healthz.
type HealthzResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	JobsTracked   int    `json:"jobs_tracked"`
}

// ErrorResponse is the common error payload.
type ErrorResponse struct {
	Error string `json:"error"`
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.respondJSON(w, status, ErrorResponse{Error: msg})
}
