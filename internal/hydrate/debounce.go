package hydrate

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrSuperseded is returned to a debounced caller replaced by a newer one
// before its quiet period elapsed.
var ErrSuperseded = errors.New("superseded by a newer request")

// Debouncer lets only the last of a burst of triggers through. Each Wait
// restarts the quiet period and cancels the pending one.
type Debouncer struct {
	delay time.Duration

	mu      sync.Mutex
	pending chan struct{}
}

func NewDebouncer(delay time.Duration) *Debouncer {
	return &Debouncer{delay: delay}
}

// Wait blocks for the quiet period. It returns nil if no other Wait started
// meanwhile, ErrSuperseded otherwise.
func (d *Debouncer) Wait(ctx context.Context) error {
	d.mu.Lock()
	if d.pending != nil {
		close(d.pending)
	}
	mine := make(chan struct{})
	d.pending = mine
	d.mu.Unlock()

	if d.delay <= 0 {
		return d.settle(mine)
	}

	timer := time.NewTimer(d.delay)
	defer timer.Stop()

	select {
	case <-mine:
		return ErrSuperseded
	case <-ctx.Done():
		d.mu.Lock()
		if d.pending == mine {
			d.pending = nil
		}
		d.mu.Unlock()
		return ctx.Err()
	case <-timer.C:
		return d.settle(mine)
	}
}

func (d *Debouncer) settle(mine chan struct{}) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pending != mine {
		return ErrSuperseded
	}
	d.pending = nil
	return nil
}
