package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	// queueSize bounds the in-flight event buffer. Dispatch drops
	// events rather than block callers once the buffer is full.
	queueSize = 1000

	defaultTimeout = 10 * time.Second
)

// Dispatcher fans decision-engine events out to configured endpoints.
// Delivery runs on a single background worker so engine and API paths
// never wait on receiver latency.
type Dispatcher struct {
	log       zerolog.Logger
	endpoints []Endpoint
	client    *http.Client
	queue     chan Event
	done      chan struct{}
	closed    int32

	// backoff computes the wait before retry attempt n (0-based).
	backoff func(attempt int) time.Duration
}

// NewDispatcher builds a dispatcher over the given endpoints. Call
// Start to begin delivery and Close to drain and stop.
func NewDispatcher(log zerolog.Logger, endpoints []Endpoint) *Dispatcher {
	return &Dispatcher{
		log:       log.With().Str("component", "webhook").Logger(),
		endpoints: endpoints,
		client:    &http.Client{Timeout: defaultTimeout},
		queue:     make(chan Event, queueSize),
		done:      make(chan struct{}),
		backoff: func(attempt int) time.Duration {
			return time.Duration(1<<attempt) * time.Second
		},
	}
}

// Start begins processing queued events.
func (d *Dispatcher) Start() {
	go d.worker()
}

// Close drains the queue and stops the worker. Safe to call more than
// once; later calls are no-ops.
func (d *Dispatcher) Close() error {
	if !atomic.CompareAndSwapInt32(&d.closed, 0, 1) {
		return nil
	}
	close(d.queue)
	<-d.done
	return nil
}

// Dispatch queues an event for delivery without blocking. Events are
// dropped with a warning when the queue is full.
func (d *Dispatcher) Dispatch(event Event) {
	if atomic.LoadInt32(&d.closed) == 1 {
		return
	}
	select {
	case d.queue <- event:
	default:
		d.log.Warn().
			Str("event", event.Type).
			Str("resource", event.Resource.Type+"/"+event.Resource.ID).
			Msg("webhook queue full, dropping event")
	}
}

func (d *Dispatcher) worker() {
	defer close(d.done)
	for event := range d.queue {
		for _, ep := range d.endpoints {
			if ep.Wants(event.Type) {
				d.deliverWithRetry(context.Background(), ep, event)
			}
		}
	}
}

func (d *Dispatcher) deliverWithRetry(ctx context.Context, ep Endpoint, event Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		d.log.Error().Err(err).Str("event", event.Type).Msg("failed to marshal event")
		return
	}

	signature := ComputeHMAC(payload, ep.Secret)
	deliveryID := uuid.New().String()
	timeout := ep.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	for attempt := 0; attempt <= ep.MaxRetries; attempt++ {
		start := time.Now()
		statusCode, err := d.deliver(ctx, ep, event, payload, signature, deliveryID, timeout)
		success := err == nil && statusCode >= 200 && statusCode < 300

		if success {
			d.log.Debug().
				Str("event", event.Type).
				Str("url", ep.URL).
				Int("status", statusCode).
				Dur("duration", time.Since(start)).
				Msg("webhook delivered")
			return
		}

		logEvt := d.log.Warn().
			Str("event", event.Type).
			Str("url", ep.URL).
			Int("status", statusCode).
			Int("attempt", attempt+1)
		if err != nil {
			logEvt = logEvt.Err(err)
		}
		if attempt < ep.MaxRetries {
			wait := d.backoff(attempt)
			logEvt.Dur("retryIn", wait).Msg("webhook delivery failed, retrying")
			time.Sleep(wait)
		} else {
			logEvt.Msg("webhook delivery failed permanently")
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, ep Endpoint, event Event,
	payload []byte, signature, deliveryID string, timeout time.Duration) (int, error) {
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, ep.URL, bytes.NewReader(payload))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Guidekit-Signature", signature)
	req.Header.Set("X-Guidekit-Event", event.Type)
	req.Header.Set("X-Guidekit-Delivery", deliveryID)

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	return resp.StatusCode, nil
}
