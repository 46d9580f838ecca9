package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/nik-kale/guidekit/internal/identity"
	"github.com/nik-kale/guidekit/internal/segment"
	"github.com/nik-kale/guidekit/internal/store"
	"github.com/nik-kale/guidekit/internal/webhook"
)

type identityRequest struct {
	UserID    string `json:"userId,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
}

func (ir identityRequest) identity() identity.Identity {
	return identity.Identity{UserID: strings.TrimSpace(ir.UserID), SessionID: strings.TrimSpace(ir.SessionID)}
}

func (s *Server) handleDefineSegment(w http.ResponseWriter, r *http.Request) {
	var seg segment.Segment
	if err := json.NewDecoder(r.Body).Decode(&seg); err != nil {
		writeErrorCode(w, r, http.StatusBadRequest, ErrCodeInvalidJSON, "invalid JSON")
		return
	}
	if err := s.segments.DefineSegment(seg); err != nil {
		writeErrorCode(w, r, http.StatusBadRequest, ErrCodeValidation, err.Error())
		return
	}
	if s.metrics != nil {
		s.metrics.SegmentScans.Inc()
	}
	s.publishDefinition(r, store.KindSegment, seg.ID, seg, webhook.EventSegmentDefined)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "id": seg.ID})
}

type attributesRequest struct {
	identityRequest
	segment.AttributePatch
}

type profileResponse struct {
	UserID    string   `json:"userId,omitempty"`
	SessionID string   `json:"sessionId,omitempty"`
	Segments  []string `json:"segments"`
	Cohorts   []string `json:"cohorts"`
}

func (s *Server) handleUpdateAttributes(w http.ResponseWriter, r *http.Request) {
	var req attributesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorCode(w, r, http.StatusBadRequest, ErrCodeInvalidJSON, "invalid JSON")
		return
	}
	p, err := s.segments.UpdateAttributes(req.identity(), req.AttributePatch)
	if err != nil {
		writeErrorCode(w, r, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, profileResponse{
		UserID:    p.Identity.UserID,
		SessionID: p.Identity.SessionID,
		Segments:  p.SegmentIDs(),
		Cohorts:   p.CohortIDs(),
	})
}

func (s *Server) handleSegmentsFor(w http.ResponseWriter, r *http.Request) {
	id := identity.Identity{
		UserID:    strings.TrimSpace(r.URL.Query().Get("userId")),
		SessionID: strings.TrimSpace(r.URL.Query().Get("sessionId")),
	}
	if _, ok := id.Key(); !ok {
		writeErrorCode(w, r, http.StatusBadRequest, ErrCodeBadRequest, "userId or sessionId query parameter is required")
		return
	}
	segments := s.segments.SegmentsFor(id)
	if segments == nil {
		segments = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"segments": segments})
}

type cohortMemberRequest struct {
	identityRequest
	Name string `json:"name,omitempty"`
}

func (s *Server) handleAddCohortMember(w http.ResponseWriter, r *http.Request) {
	cohortID := chi.URLParam(r, "id")
	var req cohortMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorCode(w, r, http.StatusBadRequest, ErrCodeInvalidJSON, "invalid JSON")
		return
	}
	if err := s.segments.AddUserToCohort(req.identity(), cohortID, req.Name); err != nil {
		writeErrorCode(w, r, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleRemoveCohortMember(w http.ResponseWriter, r *http.Request) {
	cohortID := chi.URLParam(r, "id")
	var req cohortMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorCode(w, r, http.StatusBadRequest, ErrCodeInvalidJSON, "invalid JSON")
		return
	}
	if err := s.segments.RemoveUserFromCohort(req.identity(), cohortID); err != nil {
		writeErrorCode(w, r, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// notFoundStatus maps engine errors onto HTTP statuses.
func notFoundStatus(err error, notFound error) (int, ErrorCode) {
	if errors.Is(err, notFound) {
		return http.StatusNotFound, ErrCodeNotFound
	}
	return http.StatusBadRequest, ErrCodeBadRequest
}
