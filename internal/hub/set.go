package hub

import (
	"context"
	"sync"
	"time"

	"github.com/connct/screenagent/internal/store"
)

// Set hands out one hub per user, starting its actor goroutine lazily. The
// map itself is the only shared state and is mutex-guarded; everything
// inside a hub stays single-threaded.
type Set struct {
	mu      sync.Mutex
	hubs    map[string]*Hub
	store   *store.Store
	timeout time.Duration
	ctx     context.Context
}

// NewSet creates the hub set. Hubs run until ctx is cancelled.
func NewSet(ctx context.Context, st *store.Store, timeout time.Duration) *Set {
	return &Set{
		hubs:    make(map[string]*Hub),
		store:   st,
		timeout: timeout,
		ctx:     ctx,
	}
}

// Get returns the hub for a user, creating and starting it on first use.
func (s *Set) Get(userKey string) *Hub {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h, ok := s.hubs[userKey]; ok {
		return h
	}
	h := New(userKey, s.store, s.timeout)
	s.hubs[userKey] = h
	go h.Run(s.ctx)
	return h
}
