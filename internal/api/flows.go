package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nik-kale/guidekit/internal/audit"
	"github.com/nik-kale/guidekit/internal/flow"
	"github.com/nik-kale/guidekit/internal/store"
	"github.com/nik-kale/guidekit/internal/webhook"
)

func (s *Server) handleDefineFlow(w http.ResponseWriter, r *http.Request) {
	var def flow.Flow
	if err := json.NewDecoder(r.Body).Decode(&def); err != nil {
		writeErrorCode(w, r, http.StatusBadRequest, ErrCodeInvalidJSON, "invalid JSON")
		return
	}
	warnings, err := s.flows.Define(def)
	if err != nil {
		writeErrorCode(w, r, http.StatusBadRequest, ErrCodeValidation, err.Error())
		return
	}
	s.publishDefinition(r, store.KindFlow, def.ID, def, webhook.EventFlowDefined)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "id": def.ID, "warnings": warnings})
}

type startFlowRequest struct {
	identityRequest
	UserData map[string]any `json:"userData,omitempty"`
}

type executionResponse struct {
	ExecutionID string   `json:"executionId"`
	FlowID      string   `json:"flowId"`
	Status      string   `json:"status"`
	CurrentStep string   `json:"currentStep"`
	Completed   []string `json:"completedSteps"`
	Skipped     []string `json:"skippedSteps"`
}

func toExecutionResponse(x *flow.Execution) executionResponse {
	rec := x.Record()
	return executionResponse{
		ExecutionID: rec.ExecutionID,
		FlowID:      rec.FlowID,
		Status:      rec.Status,
		CurrentStep: rec.CurrentStep,
		Completed:   rec.Completed,
		Skipped:     rec.Skipped,
	}
}

func (s *Server) handleStartFlow(w http.ResponseWriter, r *http.Request) {
	flowID := chi.URLParam(r, "id")
	var req startFlowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorCode(w, r, http.StatusBadRequest, ErrCodeInvalidJSON, "invalid JSON")
		return
	}
	exec, err := s.flows.Start(r.Context(), flowID, req.identity(), req.UserData)
	if err != nil {
		status, code := notFoundStatus(err, flow.ErrFlowNotFound)
		writeErrorCode(w, r, status, code, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, toExecutionResponse(exec))
}

type advanceRequest struct {
	Action string `json:"action,omitempty"`
}

func (s *Server) handleAdvance(w http.ResponseWriter, r *http.Request) {
	execID := chi.URLParam(r, "id")
	var req advanceRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeErrorCode(w, r, http.StatusBadRequest, ErrCodeInvalidJSON, "invalid JSON")
			return
		}
	}
	exec, err := s.flows.Advance(r.Context(), execID, req.Action)
	if err != nil {
		s.writeFlowError(w, r, err)
		return
	}
	if s.metrics != nil {
		s.metrics.FlowAdvances.WithLabelValues(exec.FlowID, "completed").Inc()
	}
	resp := toExecutionResponse(exec)
	if resp.Status == "completed" {
		s.dispatchEvent(r, webhook.EventFlowCompleted, "execution", resp.ExecutionID,
			map[string]any{"flowId": resp.FlowID})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGoBack(w http.ResponseWriter, r *http.Request) {
	exec, err := s.flows.GoToPreviousStep(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeFlowError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toExecutionResponse(exec))
}

func (s *Server) handleSkip(w http.ResponseWriter, r *http.Request) {
	exec, err := s.flows.SkipCurrentStep(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeFlowError(w, r, err)
		return
	}
	if s.metrics != nil {
		s.metrics.FlowAdvances.WithLabelValues(exec.FlowID, "skipped").Inc()
	}
	writeJSON(w, http.StatusOK, toExecutionResponse(exec))
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	exec, err := s.flows.Pause(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeFlowError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toExecutionResponse(exec))
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	exec, err := s.flows.Resume(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeFlowError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toExecutionResponse(exec))
}

func (s *Server) handleStopFlow(w http.ResponseWriter, r *http.Request) {
	flowID := chi.URLParam(r, "id")
	stopped := s.flows.Stop(r.Context(), flowID)
	s.dispatchEvent(r, webhook.EventFlowStopped, "flow", flowID, map[string]any{"aborted": stopped})
	s.recordAudit(r, audit.ActionStopped, "flow", flowID, map[string]any{"aborted": stopped})
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "aborted": stopped})
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	progress, err := s.flows.GetFlowProgress(chi.URLParam(r, "id"))
	if err != nil {
		s.writeFlowError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, progress)
}

func (s *Server) handleDefineChecklist(w http.ResponseWriter, r *http.Request) {
	var c flow.Checklist
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		writeErrorCode(w, r, http.StatusBadRequest, ErrCodeInvalidJSON, "invalid JSON")
		return
	}
	if err := s.flows.DefineChecklist(c); err != nil {
		writeErrorCode(w, r, http.StatusBadRequest, ErrCodeValidation, err.Error())
		return
	}
	s.publishDefinition(r, store.KindChecklist, c.ID, c, webhook.EventChecklistDefined)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "id": c.ID, "percent": c.Percent()})
}

type toggleItemRequest struct {
	Completed bool `json:"completed"`
}

func (s *Server) handleToggleChecklistItem(w http.ResponseWriter, r *http.Request) {
	var req toggleItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorCode(w, r, http.StatusBadRequest, ErrCodeInvalidJSON, "invalid JSON")
		return
	}
	percent, err := s.flows.ToggleChecklistItem(chi.URLParam(r, "id"), chi.URLParam(r, "itemId"), req.Completed)
	if err != nil {
		s.writeFlowError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "percent": percent})
}

func (s *Server) writeFlowError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case isAny(err, flow.ErrFlowNotFound, flow.ErrExecNotFound):
		writeErrorCode(w, r, http.StatusNotFound, ErrCodeNotFound, err.Error())
	case isAny(err, flow.ErrExecTerminal):
		writeErrorCode(w, r, http.StatusConflict, ErrCodeConflict, err.Error())
	case isAny(err, flow.ErrNotPermitted, flow.ErrNothingToGoBack):
		writeErrorCode(w, r, http.StatusForbidden, ErrCodeNotPermitted, err.Error())
	default:
		writeErrorCode(w, r, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
	}
}
