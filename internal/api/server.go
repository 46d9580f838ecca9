// Package api exposes the decision engines over HTTP. Handlers return
// plain data decisions (segment ids, variant ids/config, step ids); no
// rendering happens here.
package api

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/rs/zerolog"

	"github.com/nik-kale/guidekit/internal/audit"
	"github.com/nik-kale/guidekit/internal/condition"
	"github.com/nik-kale/guidekit/internal/experiment"
	"github.com/nik-kale/guidekit/internal/flow"
	"github.com/nik-kale/guidekit/internal/segment"
	"github.com/nik-kale/guidekit/internal/snapshot"
	"github.com/nik-kale/guidekit/internal/telemetry"
	"github.com/nik-kale/guidekit/internal/webhook"
)

// Server wires the decision engines behind an HTTP router.
type Server struct {
	log         zerolog.Logger
	adminAPIKey string
	rateLimit   int

	eval        *condition.Evaluator
	segments    *segment.Engine
	experiments *experiment.Engine
	flows       *flow.Engine
	metrics     *telemetry.Metrics

	hooks *webhook.Dispatcher
	snap  *snapshot.Holder
	trail *audit.Trail
}

// ServerOption configures optional server collaborators.
type ServerOption func(*Server)

// WithWebhooks wires an event dispatcher; definition changes and flow
// completions are published to it.
func WithWebhooks(d *webhook.Dispatcher) ServerOption {
	return func(s *Server) { s.hooks = d }
}

// WithSnapshot wires the definitions snapshot served to polling SDKs.
func WithSnapshot(h *snapshot.Holder) ServerOption {
	return func(s *Server) { s.snap = h }
}

// WithAudit wires the admin mutation audit trail.
func WithAudit(t *audit.Trail) ServerOption {
	return func(s *Server) { s.trail = t }
}

// NewServer builds a Server over the given engines. metrics may be nil.
func NewServer(log zerolog.Logger, adminKey string, rateLimit int,
	eval *condition.Evaluator, se *segment.Engine, ex *experiment.Engine, fl *flow.Engine,
	metrics *telemetry.Metrics, opts ...ServerOption) *Server {
	s := &Server{
		log:         log.With().Str("component", "api").Logger(),
		adminAPIKey: adminKey,
		rateLimit:   rateLimit,
		eval:        eval,
		segments:    se,
		experiments: ex,
		flows:       fl,
		metrics:     metrics,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router assembles the HTTP routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)
	if s.metrics != nil {
		r.Use(s.metrics.Middleware)
	}
	if s.rateLimit > 0 {
		r.Use(httprate.LimitByIP(s.rateLimit, time.Minute))
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/v1", func(r chi.Router) {
		// The definitions endpoint long-polls up to maxWait, so it stays
		// outside the request timeout.
		r.Get("/definitions", s.handleDefinitions)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(5 * time.Second))

			// Admin: definition writes.
			r.Post("/segments", s.authAdmin(s.handleDefineSegment))
			r.Post("/experiments", s.authAdmin(s.handleCreateExperiment))
			r.Post("/experiments/{id}/status", s.authAdmin(s.handleExperimentStatus))
			r.Post("/flows", s.authAdmin(s.handleDefineFlow))
			r.Post("/flows/{id}/stop", s.authAdmin(s.handleStopFlow))
			r.Post("/checklists", s.authAdmin(s.handleDefineChecklist))

			// Public: decisions.
			r.Post("/profiles/attributes", s.handleUpdateAttributes)
			r.Get("/profiles/segments", s.handleSegmentsFor)
			r.Post("/cohorts/{id}/members", s.handleAddCohortMember)
			r.Delete("/cohorts/{id}/members", s.handleRemoveCohortMember)
			r.Post("/experiments/{id}/assign", s.handleAssignVariant)
			r.Post("/experiments/{id}/goals/{goalId}/events", s.handleTrackGoal)
			r.Get("/experiments/{id}/analysis", s.handleAnalyze)
			r.Post("/flows/{id}/start", s.handleStartFlow)
			r.Post("/executions/{id}/advance", s.handleAdvance)
			r.Post("/executions/{id}/back", s.handleGoBack)
			r.Post("/executions/{id}/skip", s.handleSkip)
			r.Post("/executions/{id}/pause", s.handlePause)
			r.Post("/executions/{id}/resume", s.handleResume)
			r.Get("/executions/{id}/progress", s.handleProgress)
			r.Post("/checklists/{id}/items/{itemId}", s.handleToggleChecklistItem)
			r.Post("/evaluate", s.handleEvaluate)
		})
	})

	return r
}

// authAdmin protects write endpoints with the configured admin key,
// compared in constant time.
func (s *Server) authAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get("X-API-Key")
		if s.adminAPIKey == "" ||
			subtle.ConstantTimeCompare([]byte(key), []byte(s.adminAPIKey)) != 1 {
			s.recordAudit(r, audit.ActionAuthFailed, "admin", r.URL.Path, nil)
			writeErrorCode(w, r, http.StatusUnauthorized, ErrCodeUnauthorized, "invalid or missing API key")
			return
		}
		next(w, r)
	}
}
