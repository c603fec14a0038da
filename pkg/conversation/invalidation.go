package conversation

import (
	"sync"

	"github.com/google/uuid"
)

// InvalidationHub is an in-memory fan-out of cache invalidation signals.
// Views subscribe to the logical keys they cache; the clear flow invalidates
// those keys on success and subscribers refetch. Signals per subscriber are
// coalesced: an invalidation that arrives while one is already pending is
// absorbed into it.
type InvalidationHub struct {
	mu   sync.RWMutex
	keys map[string]map[string]chan struct{}
}

// NewInvalidationHub creates an empty hub.
func NewInvalidationHub() *InvalidationHub {
	return &InvalidationHub{
		keys: make(map[string]map[string]chan struct{}),
	}
}

// Invalidate signals every subscriber of each given key. Never blocks.
func (h *InvalidationHub) Invalidate(keys ...CacheKey) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, key := range keys {
		for _, ch := range h.keys[key.String()] {
			select {
			case ch <- struct{}{}:
			default:
				// Signal already pending, coalesce.
			}
		}
	}
}

// Subscribe registers interest in a key. The returned channel receives one
// value per (coalesced) invalidation; unsubscribe removes the registration
// and closes the channel.
func (h *InvalidationHub) Subscribe(key CacheKey) (<-chan struct{}, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	k := key.String()
	subs, ok := h.keys[k]
	if !ok {
		subs = make(map[string]chan struct{})
		h.keys[k] = subs
	}

	subID := uuid.NewString()
	ch := make(chan struct{}, 1)
	subs[subID] = ch

	unsubscribe := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if _, ok := subs[subID]; ok {
			delete(subs, subID)
			close(ch)
		}
	}
	return ch, unsubscribe
}
