// Package webhook delivers decision-engine events to external HTTP
// endpoints. Deliveries are signed with an HMAC of the payload so
// receivers can authenticate them.
package webhook

import (
	"time"
)

// Event types dispatched by the engines and the admin API.
const (
	EventSegmentDefined      = "segment.defined"
	EventExperimentCreated   = "experiment.created"
	EventExperimentStatus    = "experiment.status_changed"
	EventExperimentCompleted = "experiment.completed"
	EventFlowDefined         = "flow.defined"
	EventFlowCompleted       = "flow.completed"
	EventFlowStopped         = "flow.stopped"
	EventChecklistDefined    = "checklist.defined"
)

// Event is the payload delivered to subscribed endpoints.
type Event struct {
	Type      string         `json:"event"`
	Timestamp time.Time      `json:"timestamp"`
	Resource  Resource       `json:"resource"`
	Data      map[string]any `json:"data,omitempty"`
	RequestID string         `json:"requestId,omitempty"`
}

// Resource identifies the entity that triggered the event.
type Resource struct {
	Type string `json:"type"` // segment, experiment, flow, checklist, execution
	ID   string `json:"id"`
}

// NewEvent builds an event stamped with the current time.
func NewEvent(eventType, resourceType, resourceID string, data map[string]any) Event {
	return Event{
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Resource:  Resource{Type: resourceType, ID: resourceID},
		Data:      data,
	}
}

// Endpoint is a configured event receiver.
type Endpoint struct {
	URL        string
	Secret     string
	Events     []string // empty subscribes to all events
	MaxRetries int
	Timeout    time.Duration
}

// Wants reports whether the endpoint subscribes to the given event type.
func (ep Endpoint) Wants(eventType string) bool {
	if len(ep.Events) == 0 {
		return true
	}
	for _, e := range ep.Events {
		if e == eventType {
			return true
		}
	}
	return false
}
