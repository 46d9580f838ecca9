package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/nik-kale/guidekit/internal/audit"
	"github.com/nik-kale/guidekit/internal/snapshot"
	"github.com/nik-kale/guidekit/internal/store"
	"github.com/nik-kale/guidekit/internal/webhook"
)

// maxWait caps the long-poll duration on /v1/definitions.
const maxWait = 60 * time.Second

// handleDefinitions serves the current definitions snapshot with a weak
// ETag. With If-None-Match and ?wait=<duration>, the request long-polls
// until the snapshot changes or the wait elapses (304).
func (s *Server) handleDefinitions(w http.ResponseWriter, r *http.Request) {
	if s.snap == nil {
		writeErrorCode(w, r, http.StatusNotFound, ErrCodeNotFound, "definitions snapshot is not enabled")
		return
	}

	snap := s.snap.Load()
	match := r.Header.Get("If-None-Match")
	if match == "" || match != snap.ETag {
		s.writeSnapshot(w, snap)
		return
	}

	wait := parseWait(r.URL.Query().Get("wait"))
	if wait <= 0 {
		w.Header().Set("ETag", snap.ETag)
		w.WriteHeader(http.StatusNotModified)
		return
	}

	updates, unsub := s.snap.Subscribe()
	defer unsub()
	timer := time.NewTimer(wait)
	defer timer.Stop()

	for {
		select {
		case <-updates:
			if next := s.snap.Load(); next.ETag != match {
				s.writeSnapshot(w, next)
				return
			}
		case <-timer.C:
			w.Header().Set("ETag", snap.ETag)
			w.WriteHeader(http.StatusNotModified)
			return
		case <-r.Context().Done():
			return
		}
	}
}

func (s *Server) writeSnapshot(w http.ResponseWriter, snap *snapshot.Snapshot) {
	w.Header().Set("ETag", snap.ETag)
	writeJSON(w, http.StatusOK, snap)
}

func parseWait(raw string) time.Duration {
	if raw == "" {
		return 0
	}
	wait, err := time.ParseDuration(raw)
	if err != nil || wait <= 0 {
		return 0
	}
	if wait > maxWait {
		return maxWait
	}
	return wait
}

// publishDefinition records a successful admin mutation everywhere it is
// observable: the snapshot, the webhook stream, and the audit trail.
func (s *Server) publishDefinition(r *http.Request, kind store.DocumentKind, id string, def any, eventType string) {
	body, err := json.Marshal(def)
	if err != nil {
		s.log.Error().Err(err).Str("kind", string(kind)).Str("id", id).Msg("failed to marshal definition")
		return
	}
	if s.snap != nil {
		s.snap.Put(kind, id, body)
	}
	s.dispatchEvent(r, eventType, string(kind), id, nil)
	s.recordAudit(r, audit.ActionDefined, string(kind), id, nil)
}

func (s *Server) dispatchEvent(r *http.Request, eventType, resourceType, resourceID string, data map[string]any) {
	if s.hooks == nil {
		return
	}
	event := webhook.NewEvent(eventType, resourceType, resourceID, data)
	event.RequestID = middleware.GetReqID(r.Context())
	s.hooks.Dispatch(event)
}

func (s *Server) recordAudit(r *http.Request, action, resourceType, resourceID string, details map[string]any) {
	if s.trail == nil {
		return
	}
	s.trail.Record(r.Context(), audit.Entry{
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		RemoteAddr:   r.RemoteAddr,
		RequestID:    middleware.GetReqID(r.Context()),
		Details:      details,
	})
}
