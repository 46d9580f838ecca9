// Package snapshot maintains an immutable, ETag-versioned view of all
// definition documents for host SDKs that poll or long-poll the decision
// server instead of pushing evaluation contexts per request.
package snapshot

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nik-kale/guidekit/internal/store"
)

// Snapshot is one immutable view of the published definitions. The ETag
// is a weak validator over the definition bodies; identical definitions
// always produce the same tag.
type Snapshot struct {
	ETag        string                       `json:"etag"`
	Definitions map[string][]json.RawMessage `json:"definitions"`
	UpdatedAt   time.Time                    `json:"updatedAt"`
}

// Holder owns the current snapshot and rebuilds it as definitions are
// published. Reads are lock-free; writers rebuild and swap atomically.
type Holder struct {
	mu   sync.Mutex
	docs map[store.DocumentKind]map[string]json.RawMessage

	current atomic.Pointer[Snapshot]
	hub     hub
}

// NewHolder returns an empty holder.
func NewHolder() *Holder {
	h := &Holder{docs: make(map[store.DocumentKind]map[string]json.RawMessage)}
	h.current.Store(build(h.docs))
	return h
}

// Load returns the current snapshot.
func (h *Holder) Load() *Snapshot {
	return h.current.Load()
}

// Put publishes one definition body, rebuilds the snapshot, and notifies
// subscribers of the new ETag.
func (h *Holder) Put(kind store.DocumentKind, id string, body json.RawMessage) {
	h.mu.Lock()
	byID, ok := h.docs[kind]
	if !ok {
		byID = make(map[string]json.RawMessage)
		h.docs[kind] = byID
	}
	byID[id] = body

	snap := build(h.docs)
	h.current.Store(snap)
	h.mu.Unlock()

	h.hub.publish(snap.ETag)
}

// Subscribe registers an ETag listener. The returned cancel func must be
// called to release the subscription.
func (h *Holder) Subscribe() (<-chan string, func()) {
	return h.hub.subscribe()
}

func build(docs map[store.DocumentKind]map[string]json.RawMessage) *Snapshot {
	defs := make(map[string][]json.RawMessage, len(docs))
	for kind, byID := range docs {
		ids := make([]string, 0, len(byID))
		for id := range byID {
			ids = append(ids, id)
		}
		sort.Strings(ids)

		bodies := make([]json.RawMessage, 0, len(ids))
		for _, id := range ids {
			bodies = append(bodies, byID[id])
		}
		defs[string(kind)] = bodies
	}

	blob, _ := json.Marshal(defs)
	sum := sha256.Sum256(blob)
	return &Snapshot{
		ETag:        `W/"` + hex.EncodeToString(sum[:]) + `"`,
		Definitions: defs,
		UpdatedAt:   time.Now().UTC(),
	}
}
