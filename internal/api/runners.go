package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/merfantz/runnerd/internal/core"
)

// RunnerResponse is the API representation of a process record.
type RunnerResponse struct {
	ID         string     `json:"id"`
	WorkflowID string     `json:"workflow_id"`
	Port       int        `json:"port"`
	PID        int        `json:"pid"`
	Status     string     `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"process_started_at,omitempty"`
}

// StartRunnerRequest is the request body for starting a runner.
type StartRunnerRequest struct {
	TemplatePath string `json:"template_path"`
}

// StartRunnerResponse is returned on a successful launch.
type StartRunnerResponse struct {
	RecordID string `json:"record_id"`
	PID      int    `json:"pid"`
	Port     int    `json:"port"`
}

// StopRunnerResponse carries the discriminated termination result.
type StopRunnerResponse struct {
	Outcome   string `json:"outcome"`
	Port      int    `json:"port,omitempty"`
	PID       int    `json:"pid,omitempty"`
	PIDReused bool   `json:"pid_reused,omitempty"`
	Detail    string `json:"detail,omitempty"`
}

// handleStartRunner launches a runner for a workflow.
func (s *Server) handleStartRunner(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	workflowID := chi.URLParam(r, "workflowID")
	if workflowID == "" {
		respondError(w, http.StatusBadRequest, "workflow ID is required")
		return
	}

	var req StartRunnerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.TemplatePath == "" {
		respondError(w, http.StatusBadRequest, "template_path is required")
		return
	}

	result, err := s.manager.StartRunner(ctx, workflowID, req.TemplatePath)
	if err != nil {
		s.logger.Error("failed to start runner",
			"workflow_id", workflowID, "error", err)
		status, msg := httpStatusForError(err)
		respondError(w, status, msg)
		return
	}

	respondJSON(w, http.StatusCreated, StartRunnerResponse{
		RecordID: result.RecordID,
		PID:      result.PID,
		Port:     result.Port,
	})
}

// handleStopRunner terminates a workflow's active runner. Termination
// never fails for expected conditions; the outcome is always reported
// in the body, with the HTTP status mirroring the discriminant.
func (s *Server) handleStopRunner(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	workflowID := chi.URLParam(r, "workflowID")
	if workflowID == "" {
		respondError(w, http.StatusBadRequest, "workflow ID is required")
		return
	}

	result := s.manager.StopRunner(ctx, workflowID)
	respondJSON(w, httpStatusForOutcome(result.Outcome), StopRunnerResponse{
		Outcome:   string(result.Outcome),
		Port:      result.Port,
		PID:       result.PID,
		PIDReused: result.PIDReused,
		Detail:    result.Detail,
	})
}

// handleGetRunner returns a workflow's active runner record.
func (s *Server) handleGetRunner(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	workflowID := chi.URLParam(r, "workflowID")
	if workflowID == "" {
		respondError(w, http.StatusBadRequest, "workflow ID is required")
		return
	}

	rec, err := s.manager.ActiveRunner(ctx, workflowID)
	if err != nil {
		s.logger.Error("failed to look up runner",
			"workflow_id", workflowID, "error", err)
		status, msg := httpStatusForError(err)
		respondError(w, status, msg)
		return
	}
	if rec == nil {
		respondError(w, http.StatusNotFound, "no active runner for workflow")
		return
	}

	respondJSON(w, http.StatusOK, recordToResponse(rec))
}

// handleListRunners returns every registry record, newest first.
func (s *Server) handleListRunners(w http.ResponseWriter, r *http.Request) {
	records, err := s.manager.List(r.Context())
	if err != nil {
		s.logger.Error("failed to list runners", "error", err)
		status, msg := httpStatusForError(err)
		respondError(w, status, msg)
		return
	}

	response := make([]RunnerResponse, 0, len(records))
	for _, rec := range records {
		response = append(response, recordToResponse(rec))
	}
	respondJSON(w, http.StatusOK, response)
}

// handleReconcile triggers one registry/OS reconciliation sweep.
func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	if s.reconciler == nil {
		respondError(w, http.StatusNotFound, "reconciler is not enabled")
		return
	}

	reaped, err := s.reconciler.Sweep(r.Context())
	if err != nil {
		s.logger.Error("reconcile sweep failed", "error", err)
		status, msg := httpStatusForError(err)
		respondError(w, status, msg)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"reaped": reaped})
}

func recordToResponse(rec *core.ProcessRecord) RunnerResponse {
	resp := RunnerResponse{
		ID:         rec.ID,
		WorkflowID: rec.WorkflowID,
		Port:       rec.Port,
		PID:        rec.PID,
		Status:     string(rec.Status),
		CreatedAt:  rec.CreatedAt,
	}
	if !rec.ProcessStartedAt.IsZero() {
		t := rec.ProcessStartedAt
		resp.StartedAt = &t
	}
	return resp
}
