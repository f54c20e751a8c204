package scheduler

import (
	"context"
	"time"

	"github.com/MrSnakeDoc/pulse/internal/logger"
)

const (
	// DefaultReapInterval is how often idle sessions are looked for
	DefaultReapInterval = 10 * time.Minute
)

// Reapable is a set of sessions that can drop its idle members.
type Reapable interface {
	Reap(now time.Time) int
	Len() int
}

// SessionReaper periodically drops idle dashboard sessions
type SessionReaper struct {
	sessions Reapable
	logger   logger.Logger
	interval time.Duration
	now      func() time.Time
	stopCh   chan struct{}
}

// NewSessionReaper creates a new session reaper
func NewSessionReaper(sessions Reapable, log logger.Logger, interval time.Duration) *SessionReaper {
	if interval <= 0 {
		interval = DefaultReapInterval
	}

	return &SessionReaper{
		sessions: sessions,
		logger:   log,
		interval: interval,
		now:      time.Now,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the periodic reaping
func (sr *SessionReaper) Start(ctx context.Context) {
	ticker := time.NewTicker(sr.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				sr.Reap()
			case <-sr.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the reaper
func (sr *SessionReaper) Stop() {
	close(sr.stopCh)
}

// Reap drops idle sessions once and returns how many went away
func (sr *SessionReaper) Reap() int {
	removed := sr.sessions.Reap(sr.now())
	if removed > 0 {
		sr.logger.Info("reaped idle sessions",
			logger.Int("removed", removed),
			logger.Int("remaining", sr.sessions.Len()))
	} else {
		sr.logger.Debug("no idle sessions")
	}
	return removed
}
