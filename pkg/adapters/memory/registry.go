package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/aretw0/hmi/pkg/domain"
	"github.com/aretw0/hmi/pkg/ports"
)

var _ ports.Dialer = (*Registry)(nil)

// Registry resolves endpoint names to in-process servers.
type Registry struct {
	mu      sync.Mutex
	servers map[string]*Server
	changed chan struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		servers: make(map[string]*Server),
		changed: make(chan struct{}),
	}
}

// Register makes s reachable under name and wakes pending dials.
func (r *Registry) Register(name string, s *Server) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.servers[name] = s
	close(r.changed)
	r.changed = make(chan struct{})
}

// Dial blocks until a server is registered under name or ctx is done.
func (r *Registry) Dial(ctx context.Context, name string) (ports.Transport, error) {
	for {
		r.mu.Lock()
		s, ok := r.servers[name]
		changed := r.changed
		r.mu.Unlock()
		if ok {
			return s.Transport(), nil
		}

		select {
		case <-changed:
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s: %v", domain.ErrServerUnavailable, name, ctx.Err())
		}
	}
}
