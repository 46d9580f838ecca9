package snapshot

import (
	"sync"
)

// hub fans new ETags out to long-poll listeners.
type hub struct {
	mu   sync.Mutex
	subs map[chan string]struct{}
}

func (h *hub) subscribe() (<-chan string, func()) {
	ch := make(chan string, 1)
	h.mu.Lock()
	if h.subs == nil {
		h.subs = make(map[chan string]struct{})
	}
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	unsub := func() {
		h.mu.Lock()
		if _, ok := h.subs[ch]; ok {
			delete(h.subs, ch)
			close(ch)
		}
		h.mu.Unlock()
	}
	return ch, unsub
}

// publish notifies all listeners without blocking; a slow listener
// misses intermediate tags and catches up on the next one.
func (h *hub) publish(etag string) {
	h.mu.Lock()
	for ch := range h.subs {
		select {
		case ch <- etag:
		default:
		}
	}
	h.mu.Unlock()
}
