package session

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/MrSnakeDoc/pulse/internal/cache"
	"github.com/MrSnakeDoc/pulse/internal/hydrate"
	"github.com/MrSnakeDoc/pulse/internal/logger"
	"github.com/MrSnakeDoc/pulse/internal/resources"
	"github.com/MrSnakeDoc/pulse/internal/upstream"
)

// DefaultID is used when the caller sends no session header.
const DefaultID = "default"

// Publisher announces customer mutations to other replicas.
type Publisher interface {
	Publish(ctx context.Context, customerID string) error
}

// Options configures new sessions.
type Options struct {
	IdleTTL        time.Duration
	SearchDebounce time.Duration
	RollupParallel int
}

// Registry creates sessions lazily and reclaims idle ones.
type Registry struct {
	transport *upstream.Transport
	resources *resources.Registry
	logger    logger.Logger
	opts      Options
	now       func() time.Time

	mu        sync.Mutex
	sessions  map[string]*Session
	publisher Publisher
}

func NewRegistry(transport *upstream.Transport, descriptors *resources.Registry, log logger.Logger, opts Options) *Registry {
	return &Registry{
		transport: transport,
		resources: descriptors,
		logger:    log,
		opts:      opts,
		now:       time.Now,
		sessions:  make(map[string]*Session),
	}
}

// SetPublisher enables cross-replica propagation of mutations.
func (r *Registry) SetPublisher(p Publisher) {
	r.mu.Lock()
	r.publisher = p
	r.mu.Unlock()
}

// Get returns the session, creating it with fresh stores on first use.
func (r *Registry) Get(id string) *Session {
	if id == "" {
		id = DefaultID
	}

	r.mu.Lock()
	s, ok := r.sessions[id]
	if !ok {
		s = r.newSession(id)
		r.sessions[id] = s
	}
	r.mu.Unlock()

	if !ok {
		r.logger.Debug("session created", logger.String("session", id))
	}
	s.Touch(r.now())
	return s
}

// Peek returns a live session without creating or touching it.
func (r *Registry) Peek(id string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[id]
}

func (r *Registry) newSession(id string) *Session {
	log := r.logger.With(logger.String("session", id))
	client := upstream.NewClient(r.transport, cache.NewTTL(), cache.NewDedup(), log)
	loaders := resources.NewLoaders(client, r.resources, log)

	return &Session{
		id:      id,
		loaders: loaders,
		overview: hydrate.NewOverview(loaders, log, hydrate.OverviewOptions{
			RollupParallel: r.opts.RollupParallel,
			SearchDebounce: r.opts.SearchDebounce,
		}),
		logger: log,
		pages:  make(map[string]*hydrate.CustomerPage),
	}
}

// Len is the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// IDs lists live session ids, sorted.
func (r *Registry) IDs() []string {
	r.mu.Lock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	sort.Strings(ids)
	return ids
}

// Reap drops sessions idle for longer than the configured TTL and returns
// how many were removed.
func (r *Registry) Reap(now time.Time) int {
	if r.opts.IdleTTL <= 0 {
		return 0
	}

	r.mu.Lock()
	var idle []*Session
	for id, s := range r.sessions {
		if now.Sub(s.LastSeen()) > r.opts.IdleTTL {
			idle = append(idle, s)
			delete(r.sessions, id)
		}
	}
	r.mu.Unlock()

	for _, s := range idle {
		s.close()
	}
	return len(idle)
}

// InvalidateCustomer propagates a mutation of customerID: every local
// session drops the customer and marks its page and overview stale, the
// session that ran the action included, then other replicas are told.
func (r *Registry) InvalidateCustomer(ctx context.Context, customerID string) error {
	r.ApplyRemote(customerID)

	r.mu.Lock()
	pub := r.publisher
	r.mu.Unlock()
	if pub == nil {
		return nil
	}
	return pub.Publish(ctx, customerID)
}

// ApplyRemote invalidates customerID in every local session.
func (r *Registry) ApplyRemote(customerID string) int {
	r.mu.Lock()
	targets := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		targets = append(targets, s)
	}
	r.mu.Unlock()

	for _, s := range targets {
		s.InvalidateCustomer(customerID)
	}
	return len(targets)
}

// Close waits for background work of every session.
func (r *Registry) Close() {
	r.mu.Lock()
	all := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		all = append(all, s)
	}
	r.mu.Unlock()

	for _, s := range all {
		s.close()
	}
}
