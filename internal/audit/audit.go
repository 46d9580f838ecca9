// Package audit records admin mutations (definition writes, lifecycle
// changes) to pluggable sinks so operators can answer "who changed what,
// when" without trawling request logs.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/nik-kale/guidekit/internal/store"
)

// Actions recorded by the admin surface.
const (
	ActionDefined       = "defined"
	ActionStatusChanged = "status_changed"
	ActionStopped       = "stopped"
	ActionAuthFailed    = "auth_failed"
)

// Entry is one recorded admin action. ID and Timestamp are filled by the
// trail when left zero.
type Entry struct {
	ID           string         `json:"id"`
	Timestamp    time.Time      `json:"timestamp"`
	Action       string         `json:"action"`
	ResourceType string         `json:"resourceType,omitempty"`
	ResourceID   string         `json:"resourceId,omitempty"`
	RemoteAddr   string         `json:"remoteAddr,omitempty"`
	RequestID    string         `json:"requestId,omitempty"`
	Details      map[string]any `json:"details,omitempty"`
}

// Sink receives finished entries. Sink failures are logged, never
// propagated; auditing must not fail the mutation it describes.
type Sink interface {
	Write(ctx context.Context, e Entry) error
}

// Trail stamps, redacts, and fans entries out to its sinks.
type Trail struct {
	log   zerolog.Logger
	sinks []Sink
	now   func() time.Time
}

// NewTrail builds a trail over the given sinks.
func NewTrail(log zerolog.Logger, sinks ...Sink) *Trail {
	return &Trail{
		log:   log.With().Str("component", "audit").Logger(),
		sinks: sinks,
		now:   time.Now,
	}
}

// Record completes the entry and writes it to every sink.
func (t *Trail) Record(ctx context.Context, e Entry) {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = t.now().UTC()
	}
	e.Details = redact(e.Details)

	for _, sink := range t.sinks {
		if err := sink.Write(ctx, e); err != nil {
			t.log.Error().Err(err).
				Str("action", e.Action).
				Str("resource", e.ResourceType+"/"+e.ResourceID).
				Msg("audit sink write failed")
		}
	}
}

// sensitiveKeys are masked in entry details before any sink sees them.
var sensitiveKeys = map[string]struct{}{
	"password":      {},
	"secret":        {},
	"token":         {},
	"apiKey":        {},
	"api_key":       {},
	"authorization": {},
	"cookie":        {},
}

func redact(details map[string]any) map[string]any {
	if details == nil {
		return nil
	}
	out := make(map[string]any, len(details))
	for k, v := range details {
		if _, ok := sensitiveKeys[k]; ok {
			out[k] = "[REDACTED]"
			continue
		}
		if nested, ok := v.(map[string]any); ok {
			out[k] = redact(nested)
			continue
		}
		out[k] = v
	}
	return out
}

// LogSink writes entries as structured log lines.
type LogSink struct {
	log zerolog.Logger
}

// NewLogSink returns a sink that logs entries at info level.
func NewLogSink(log zerolog.Logger) *LogSink {
	return &LogSink{log: log}
}

func (s *LogSink) Write(_ context.Context, e Entry) error {
	s.log.Info().
		Str("auditId", e.ID).
		Str("action", e.Action).
		Str("resourceType", e.ResourceType).
		Str("resourceId", e.ResourceID).
		Str("remoteAddr", e.RemoteAddr).
		Str("requestId", e.RequestID).
		Msg("admin action")
	return nil
}

// StoreSink persists entries as audit documents in the configured store.
type StoreSink struct {
	store store.Store
}

// KindAudit is the document kind used for persisted audit entries.
const KindAudit store.DocumentKind = "audit"

// NewStoreSink returns a sink that persists entries through st.
func NewStoreSink(st store.Store) *StoreSink {
	return &StoreSink{store: st}
}

func (s *StoreSink) Write(ctx context.Context, e Entry) error {
	body, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return s.store.SaveDocument(ctx, store.DocumentRecord{
		Kind:      KindAudit,
		ID:        e.ID,
		Body:      body,
		UpdatedAt: e.Timestamp,
	})
}
