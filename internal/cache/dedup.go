package cache

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

// Dedup collapses concurrent calls for the same key into one execution.
// The key is released as soon as that execution settles, failures included,
// so a failed call never blocks the next attempt.
type Dedup struct {
	group    singleflight.Group
	inFlight atomic.Int64
}

// NewDedup creates an empty deduplicator.
func NewDedup() *Dedup {
	return &Dedup{}
}

// Do runs start once per burst of callers sharing key. shared reports
// whether the result was handed to more than one caller.
//
// start receives a context detached from the caller's cancellation: once a
// call begins it runs to completion. ctx only bounds how long this caller
// waits for it.
func (d *Dedup) Do(ctx context.Context, key string, start func(context.Context) ([]byte, error)) ([]byte, bool, error) {
	detached := context.WithoutCancel(ctx)

	ch := d.group.DoChan(key, func() (any, error) {
		d.inFlight.Add(1)
		defer d.inFlight.Add(-1)
		return start(detached)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Shared, res.Err
		}
		value, _ := res.Val.([]byte)
		return value, res.Shared, nil
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}

// Forget detaches the running execution for key, if any. It still
// completes for the callers already waiting on it; later callers start a
// new one.
func (d *Dedup) Forget(key string) {
	d.group.Forget(key)
}

// InFlight returns the number of executions currently running.
func (d *Dedup) InFlight() int {
	return int(d.inFlight.Load())
}
