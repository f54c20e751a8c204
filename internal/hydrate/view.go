package hydrate

import (
	"context"
	"sync"
	"time"

	"github.com/MrSnakeDoc/pulse/internal/logger"
)

// Status is the hydration state of a view.
type Status string

const (
	StatusUnactivated Status = "unactivated"
	StatusLoading     Status = "loading"
	StatusLoaded      Status = "loaded"
	StatusFailed      Status = "failed"
)

// ViewState is the queryable hydration state of a view.
type ViewState struct {
	Activated    bool       `json:"activated"`
	LastLoadedAt *time.Time `json:"last_loaded_at,omitempty"`
	Status       Status     `json:"status"`
	Stale        bool       `json:"stale,omitempty"`
	Err          string     `json:"error,omitempty"`
}

// LoadFunc produces the render data of a view.
type LoadFunc func(ctx context.Context) (any, error)

// flight is one load of a view. Waiters read result after done is closed.
type flight struct {
	done   chan struct{}
	result Result
}

// View is one lazily hydrated dashboard panel or tab.
type View struct {
	name   string
	load   LoadFunc
	logger logger.Logger
	now    func() time.Time

	mu      sync.Mutex
	state   ViewState
	result  Result
	current *flight
}

// NewView builds an unactivated view.
func NewView(name string, load LoadFunc, log logger.Logger) *View {
	return &View{
		name:   name,
		load:   load,
		logger: log,
		now:    time.Now,
		state:  ViewState{Status: StatusUnactivated},
	}
}

func (v *View) Name() string { return v.name }

// State returns a snapshot of the view state.
func (v *View) State() ViewState {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

// Activate hydrates the view on first use and serves the loaded result
// afterwards. Concurrent activations join the running load. Failed and
// stale views load again. ctx bounds only the wait: a started load always
// runs to completion.
func (v *View) Activate(ctx context.Context) (Result, error) {
	v.mu.Lock()
	v.state.Activated = true

	var f *flight
	switch {
	case v.state.Status == StatusLoading:
		f = v.current
	case v.state.Status == StatusLoaded && !v.state.Stale:
		r := v.result
		v.mu.Unlock()
		return r, nil
	default:
		f = v.startLocked(ctx)
	}
	v.mu.Unlock()

	return wait(ctx, f)
}

// Reload enters Loading regardless of the current state. A load already
// running is superseded: its result no longer updates the view.
func (v *View) Reload(ctx context.Context) (Result, error) {
	v.mu.Lock()
	v.state.Activated = true
	f := v.startLocked(ctx)
	v.mu.Unlock()

	return wait(ctx, f)
}

// MarkStale makes the next activation of a loaded view fetch again.
func (v *View) MarkStale() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.state.Status == StatusLoaded {
		v.state.Stale = true
	}
}

// Wait blocks until the running load, if any, settles.
func (v *View) Wait(ctx context.Context) error {
	v.mu.Lock()
	f := v.current
	v.mu.Unlock()
	if f == nil {
		return nil
	}
	_, err := wait(ctx, f)
	return err
}

func (v *View) startLocked(ctx context.Context) *flight {
	f := &flight{done: make(chan struct{})}
	v.current = f
	v.state.Status = StatusLoading
	v.state.Err = ""

	go v.run(context.WithoutCancel(ctx), f)
	return f
}

func (v *View) run(ctx context.Context, f *flight) {
	start := v.now()
	data, err := v.load(ctx)
	res := Classify(data, err)
	f.result = res

	v.mu.Lock()
	if v.current == f {
		v.current = nil
		v.result = res
		if err != nil {
			v.state.Status = StatusFailed
			v.state.Err = err.Error()
			v.logger.Warn("view load failed",
				logger.String("view", v.name),
				logger.String("kind", string(res.Kind)),
				logger.Error(err))
		} else {
			loadedAt := v.now()
			v.state.Status = StatusLoaded
			v.state.Stale = false
			v.state.LastLoadedAt = &loadedAt
			v.logger.Debug("view loaded",
				logger.String("view", v.name),
				logger.Duration("took", loadedAt.Sub(start)))
		}
	}
	v.mu.Unlock()

	close(f.done)
}

func wait(ctx context.Context, f *flight) (Result, error) {
	select {
	case <-f.done:
		return f.result, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}
