package session

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrSnakeDoc/pulse/internal/hydrate"
	"github.com/MrSnakeDoc/pulse/internal/logger"
	"github.com/MrSnakeDoc/pulse/internal/resources"
)

// Session is one dashboard page session. It owns its cache, deduplicator
// and loaders; nothing is shared with other sessions but the transport.
type Session struct {
	id       string
	loaders  *resources.Loaders
	overview *hydrate.Overview
	logger   logger.Logger

	mu    sync.Mutex
	pages map[string]*hydrate.CustomerPage

	lastSeen atomic.Int64
}

func (s *Session) ID() string { return s.id }

// Loaders exposes the session loaders.
func (s *Session) Loaders() *resources.Loaders { return s.loaders }

// Overview returns the landing page orchestrator.
func (s *Session) Overview() *hydrate.Overview { return s.overview }

// Page returns the customer page, creating it on first use.
func (s *Session) Page(customerID string) *hydrate.CustomerPage {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pages[customerID]
	if !ok {
		p = hydrate.NewCustomerPage(customerID, s.loaders, s.logger)
		s.pages[customerID] = p
	}
	return p
}

// InvalidateCustomer drops the customer's cached families and marks its
// page and the overview stale.
func (s *Session) InvalidateCustomer(customerID string) {
	s.loaders.InvalidateCustomer(customerID)

	s.mu.Lock()
	p, ok := s.pages[customerID]
	s.mu.Unlock()
	if ok {
		p.MarkStale()
	}
	s.overview.MarkStale()
}

// Touch records activity at now.
func (s *Session) Touch(now time.Time) {
	s.lastSeen.Store(now.UnixNano())
}

// LastSeen is the time of the latest activity.
func (s *Session) LastSeen() time.Time {
	return time.Unix(0, s.lastSeen.Load())
}

// close waits for background hydration of every page, then drops the
// session cache.
func (s *Session) close() {
	s.mu.Lock()
	pages := make([]*hydrate.CustomerPage, 0, len(s.pages))
	for _, p := range s.pages {
		pages = append(pages, p)
	}
	s.mu.Unlock()

	for _, p := range pages {
		p.WaitBackground()
	}
	s.loaders.InvalidateAll()
}
