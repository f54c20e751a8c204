package scheduler

import (
	"context"
	"time"

	"github.com/MrSnakeDoc/pulse/internal/logger"
	redisstore "github.com/MrSnakeDoc/pulse/internal/store/redis"
)

const (
	listenerInitialBackoff = time.Second
	listenerMaxBackoff     = 30 * time.Second

	// A subscription that stayed up this long counts as established.
	listenerStableAfter = 10 * time.Second
)

// Subscriber delivers invalidations until ctx is done.
type Subscriber interface {
	Subscribe(ctx context.Context, apply func(redisstore.Invalidation)) error
}

// Invalidator applies a remote invalidation to local sessions.
type Invalidator interface {
	ApplyRemote(customerID string) int
}

// InvalidationListener keeps the Redis subscription alive and feeds remote
// invalidations into the local sessions.
type InvalidationListener struct {
	sub      Subscriber
	sessions Invalidator
	logger   logger.Logger
	done     chan struct{}
}

// NewInvalidationListener creates a new listener.
func NewInvalidationListener(sub Subscriber, sessions Invalidator, log logger.Logger) *InvalidationListener {
	return &InvalidationListener{
		sub:      sub,
		sessions: sessions,
		logger:   log,
		done:     make(chan struct{}),
	}
}

// Start runs the subscription loop in the background. A dropped
// subscription is re-established with exponential backoff, which starts
// over once a subscription was established.
func (il *InvalidationListener) Start(ctx context.Context) {
	go func() {
		defer close(il.done)
		wait := listenerInitialBackoff
		for {
			started := time.Now()
			err := il.sub.Subscribe(ctx, il.apply)
			if ctx.Err() != nil {
				return
			}
			wait = retryDelay(wait, err, time.Since(started))
			if err != nil {
				il.logger.Warn("invalidation subscription lost, retrying",
					logger.Duration("next_retry_in", wait),
					logger.Error(err))
			}

			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}

			wait = min(wait*2, listenerMaxBackoff)
		}
	}()
}

// retryDelay is the wait before the next subscription attempt. It falls
// back to the initial delay when the previous subscription ended cleanly
// or lived long enough to count as established.
func retryDelay(wait time.Duration, err error, lived time.Duration) time.Duration {
	if err == nil || lived >= listenerStableAfter {
		return listenerInitialBackoff
	}
	return wait
}

// Done is closed once the loop exited.
func (il *InvalidationListener) Done() <-chan struct{} {
	return il.done
}

func (il *InvalidationListener) apply(inv redisstore.Invalidation) {
	n := il.sessions.ApplyRemote(inv.CustomerID)
	il.logger.Debug("remote invalidation applied",
		logger.String("customer", inv.CustomerID),
		logger.String("origin", inv.Origin),
		logger.Int("sessions", n))
}
