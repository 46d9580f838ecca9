package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nik-kale/guidekit/internal/audit"
	"github.com/nik-kale/guidekit/internal/condition"
	"github.com/nik-kale/guidekit/internal/experiment"
	"github.com/nik-kale/guidekit/internal/store"
	"github.com/nik-kale/guidekit/internal/webhook"
)

func (s *Server) handleCreateExperiment(w http.ResponseWriter, r *http.Request) {
	var def experiment.Experiment
	if err := json.NewDecoder(r.Body).Decode(&def); err != nil {
		writeErrorCode(w, r, http.StatusBadRequest, ErrCodeInvalidJSON, "invalid JSON")
		return
	}
	if err := s.experiments.Create(r.Context(), def); err != nil {
		writeErrorCode(w, r, http.StatusBadRequest, ErrCodeValidation, err.Error())
		return
	}
	s.publishDefinition(r, store.KindExperiment, def.ID, def, webhook.EventExperimentCreated)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "id": def.ID, "status": experiment.StatusDraft})
}

type statusRequest struct {
	Status experiment.Status `json:"status"`
}

func (s *Server) handleExperimentStatus(w http.ResponseWriter, r *http.Request) {
	expID := chi.URLParam(r, "id")
	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorCode(w, r, http.StatusBadRequest, ErrCodeInvalidJSON, "invalid JSON")
		return
	}
	if err := s.experiments.SetStatus(expID, req.Status); err != nil {
		status, code := notFoundStatus(err, experiment.ErrNotFound)
		writeErrorCode(w, r, status, code, err.Error())
		return
	}
	eventType := webhook.EventExperimentStatus
	if req.Status == experiment.StatusCompleted {
		eventType = webhook.EventExperimentCompleted
	}
	s.dispatchEvent(r, eventType, "experiment", expID, map[string]any{"status": string(req.Status)})
	s.recordAudit(r, audit.ActionStatusChanged, "experiment", expID, map[string]any{"status": string(req.Status)})
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "status": req.Status})
}

type assignRequest struct {
	identityRequest
	Context map[string]any `json:"context,omitempty"`
}

type assignResponse struct {
	Assigned  bool           `json:"assigned"`
	VariantID string         `json:"variantId,omitempty"`
	Config    map[string]any `json:"config,omitempty"`
}

func (s *Server) handleAssignVariant(w http.ResponseWriter, r *http.Request) {
	expID := chi.URLParam(r, "id")
	var req assignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorCode(w, r, http.StatusBadRequest, ErrCodeInvalidJSON, "invalid JSON")
		return
	}

	assignment, err := s.experiments.AssignVariant(r.Context(), expID, req.identity(), condition.Context(req.Context))
	if err != nil {
		status, code := notFoundStatus(err, experiment.ErrNotFound)
		writeErrorCode(w, r, status, code, err.Error())
		return
	}
	if assignment == nil {
		if s.metrics != nil {
			s.metrics.Assignments.WithLabelValues(expID, "skipped").Inc()
		}
		writeJSON(w, http.StatusOK, assignResponse{Assigned: false})
		return
	}
	if s.metrics != nil {
		path := "random"
		if assignment.Identity.UserID != "" {
			path = "deterministic"
		}
		s.metrics.Assignments.WithLabelValues(expID, path).Inc()
	}
	writeJSON(w, http.StatusOK, assignResponse{
		Assigned:  true,
		VariantID: assignment.VariantID,
		Config:    assignment.Config,
	})
}

func (s *Server) handleTrackGoal(w http.ResponseWriter, r *http.Request) {
	expID := chi.URLParam(r, "id")
	goalID := chi.URLParam(r, "goalId")
	var req identityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorCode(w, r, http.StatusBadRequest, ErrCodeInvalidJSON, "invalid JSON")
		return
	}

	// Goal events for non-participants are a legitimate no-op.
	s.experiments.TrackGoal(expID, goalID, req.identity())
	if s.metrics != nil {
		s.metrics.GoalEvents.WithLabelValues(expID, "received").Inc()
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	expID := chi.URLParam(r, "id")
	analysis, err := s.experiments.Analyze(expID)
	if err != nil {
		status, code := notFoundStatus(err, experiment.ErrNotFound)
		writeErrorCode(w, r, status, code, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, analysis)
}
