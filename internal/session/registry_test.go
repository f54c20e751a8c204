package session

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrSnakeDoc/pulse/internal/logger"
	"github.com/MrSnakeDoc/pulse/internal/resources"
	"github.com/MrSnakeDoc/pulse/internal/upstream"
)

type fakePublisher struct {
	mu  sync.Mutex
	ids []string
	err error
}

func (f *fakePublisher) Publish(_ context.Context, customerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ids = append(f.ids, customerID)
	return f.err
}

func newTestRegistry(t *testing.T, opts Options) (*Registry, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"score":90}`)
	}))
	t.Cleanup(srv.Close)

	tr := upstream.NewTransport(upstream.TransportConfig{BaseURL: srv.URL, Prefix: "/api", Timeout: 5 * time.Second})
	t.Cleanup(func() { _ = tr.Close() })

	return NewRegistry(tr, resources.NewRegistry(resources.Defaults()), logger.NewNop(), opts), &calls
}

func TestRegistryGetIsLazyAndStable(t *testing.T) {
	reg, _ := newTestRegistry(t, Options{})

	a := reg.Get("tab-1")
	assert.Same(t, a, reg.Get("tab-1"))
	assert.Equal(t, DefaultID, reg.Get("").ID())
	assert.Equal(t, []string{DefaultID, "tab-1"}, reg.IDs())
	assert.Same(t, a.Page("acme"), a.Page("acme"))
}

func TestSessionsHaveIsolatedCaches(t *testing.T) {
	reg, calls := newTestRegistry(t, Options{})
	ctx := context.Background()

	_, err := reg.Get("a").Loaders().Health(ctx, "acme")
	require.NoError(t, err)
	_, err = reg.Get("a").Loaders().Health(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())

	_, err = reg.Get("b").Loaders().Health(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load(), "a new session starts with an empty cache")
}

func TestRegistryReap(t *testing.T) {
	reg, _ := newTestRegistry(t, Options{IdleTTL: time.Hour})
	start := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)

	reg.now = func() time.Time { return start }
	reg.Get("old")
	reg.now = func() time.Time { return start.Add(50 * time.Minute) }
	reg.Get("fresh")

	removed := reg.Reap(start.Add(90 * time.Minute))
	assert.Equal(t, 1, removed)
	assert.Equal(t, []string{"fresh"}, reg.IDs())

	disabled, _ := newTestRegistry(t, Options{})
	disabled.Get("x")
	assert.Equal(t, 0, disabled.Reap(time.Now().Add(24*time.Hour)))
}

func TestRegistryInvalidateCustomer(t *testing.T) {
	reg, _ := newTestRegistry(t, Options{})
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		_, err := reg.Get(id).Loaders().Health(ctx, "acme")
		require.NoError(t, err)
	}

	pub := &fakePublisher{}
	reg.SetPublisher(pub)
	require.NoError(t, reg.InvalidateCustomer(ctx, "acme"))

	for _, id := range []string{"a", "b", "c"} {
		_, ok := reg.Get(id).Loaders().Cache().Get("health:acme")
		assert.False(t, ok, "session %s should be invalidated", id)
	}
	assert.Equal(t, []string{"acme"}, pub.ids)

	pub.err = errors.New("redis down")
	assert.Error(t, reg.InvalidateCustomer(ctx, "acme"))
}

func TestApplyRemoteHitsEverySession(t *testing.T) {
	reg, _ := newTestRegistry(t, Options{})
	reg.Get("a")
	reg.Get("b")
	assert.Equal(t, 2, reg.ApplyRemote("acme"))
}
