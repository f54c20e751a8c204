package resources

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrSnakeDoc/pulse/internal/cache"
	"github.com/MrSnakeDoc/pulse/internal/logger"
	"github.com/MrSnakeDoc/pulse/internal/upstream"
)

type recorder struct {
	mu    sync.Mutex
	paths []string
}

func (r *recorder) add(req *http.Request) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paths = append(r.paths, req.Method+" "+req.URL.RequestURI())
}

func (r *recorder) count(prefix string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, p := range r.paths {
		if strings.HasPrefix(p, prefix) {
			n++
		}
	}
	return n
}

func newLoaders(t *testing.T, h http.HandlerFunc) (*Loaders, *recorder) {
	t.Helper()
	rec := &recorder{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.add(r)
		h(w, r)
	}))
	t.Cleanup(srv.Close)

	tr := upstream.NewTransport(upstream.TransportConfig{BaseURL: srv.URL, Prefix: "/api"})
	t.Cleanup(func() { _ = tr.Close() })
	client := upstream.NewClient(tr, cache.NewTTL(), cache.NewDedup(), logger.NewNop())
	return NewLoaders(client, NewRegistry(Defaults()), logger.NewNop()), rec
}

func okJSON(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = io.WriteString(w, body)
}

func TestKey(t *testing.T) {
	assert.Equal(t, "customers", Key(KindCustomers, ""))
	assert.Equal(t, "health:acme", Key(KindHealth, "acme"))
	assert.NotEqual(t, Key(KindHealth, "acme"), Key(KindHistory, "acme"))
	assert.NotEqual(t, Key(KindHealth, "acme"), Key(KindHealth, "globex"))
}

func TestDescriptorPathFor(t *testing.T) {
	d := Defaults()[KindHealth]
	assert.Equal(t, "/customers/acme%2Fwest/health", d.PathFor("acme/west"))
	assert.True(t, d.CustomerScoped())
	assert.False(t, Defaults()[KindCustomers].CustomerScoped())
	assert.Equal(t, time.Duration(0), Defaults()[KindNotify].EffectiveTTL())
}

func TestHealthLoaderHitsNetworkOnce(t *testing.T) {
	loaders, rec := newLoaders(t, func(w http.ResponseWriter, r *http.Request) {
		okJSON(w, `{"score":91}`)
	})

	_, err := loaders.Health(context.Background(), "acme")
	require.NoError(t, err)
	_, err = loaders.Health(context.Background(), "acme")
	require.NoError(t, err)

	assert.Equal(t, 1, rec.count("GET /api/customers/acme/health"))
}

func TestLoadersRequireCustomerID(t *testing.T) {
	loaders, _ := newLoaders(t, func(w http.ResponseWriter, r *http.Request) { okJSON(w, `{}`) })

	_, err := loaders.Devices(context.Background(), "")
	assert.Error(t, err)
}

func TestInvalidateCustomerDropsEveryFamily(t *testing.T) {
	loaders, _ := newLoaders(t, func(w http.ResponseWriter, r *http.Request) { okJSON(w, `{}`) })
	ctx := context.Background()

	for _, id := range []string{"acme", "acme2"} {
		for _, load := range []func(context.Context, string) (json.RawMessage, error){
			loaders.Health, loaders.History, loaders.Licenses, loaders.Devices, loaders.Alerts,
		} {
			_, err := load(ctx, id)
			require.NoError(t, err)
		}
	}

	removed := loaders.InvalidateCustomer("acme")
	assert.Equal(t, 5, removed)

	c := loaders.client.Cache()
	for _, key := range []string{"health:acme", "history:acme", "licenses:acme", "devices:acme", "alerts:acme"} {
		_, ok := c.Get(key)
		assert.False(t, ok, "%s should be invalidated", key)
	}
	_, ok := c.Get("health:acme2")
	assert.True(t, ok, "another customer sharing the textual prefix must survive")
}

func TestInvalidateCustomerLeavesColonIDsAlone(t *testing.T) {
	loaders, _ := newLoaders(t, func(w http.ResponseWriter, r *http.Request) { okJSON(w, `{}`) })
	ctx := context.Background()

	for _, id := range []string{"a", "a:b"} {
		_, err := loaders.Health(ctx, id)
		require.NoError(t, err)
	}

	assert.Equal(t, 1, loaders.InvalidateCustomer("a"))

	c := loaders.Cache()
	_, ok := c.Get("health:a")
	assert.False(t, ok)
	_, ok = c.Get("health:a:b")
	assert.True(t, ok, "a customer whose id extends another with a colon must survive")
}

func TestMutationDuringInFlightReadIsNotOverwritten(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	unblock := sync.OnceFunc(func() { close(release) })
	t.Cleanup(unblock)
	var gets atomic.Int32

	loaders, rec := newLoaders(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			okJSON(w, `{"queued":true}`)
			return
		}
		if gets.Add(1) == 1 {
			close(started)
			<-release
			okJSON(w, `{"score":10,"v":"pre"}`)
			return
		}
		okJSON(w, `{"score":95,"v":"post"}`)
	})
	ctx := context.Background()

	stale := make(chan json.RawMessage, 1)
	go func() {
		body, err := loaders.Health(ctx, "acme")
		assert.NoError(t, err)
		stale <- body
	}()
	<-started

	_, err := loaders.Notify(ctx, "acme", map[string]string{"message": "hi"})
	require.NoError(t, err)

	// a reader arriving after the mutation does not join the older request
	body, err := loaders.Health(ctx, "acme")
	require.NoError(t, err)
	assert.Contains(t, string(body), `"post"`)

	unblock()
	assert.Contains(t, string(<-stale), `"pre"`)

	body, err = loaders.Health(ctx, "acme")
	require.NoError(t, err)
	assert.Contains(t, string(body), `"post"`, "the pre-mutation answer must not be cached")
	assert.Equal(t, 2, rec.count("GET /api/customers/acme/health"))
}

func TestReevaluateUsesUniqueKeysPerAction(t *testing.T) {
	loaders, rec := newLoaders(t, func(w http.ResponseWriter, r *http.Request) {
		okJSON(w, `{"status":"queued"}`)
	})
	ctx := context.Background()

	first, err := loaders.Reevaluate(ctx, "acme")
	require.NoError(t, err)
	second, err := loaders.Reevaluate(ctx, "acme")
	require.NoError(t, err)

	assert.Equal(t, KindReevaluate, first.Via)
	assert.Equal(t, KindReevaluate, second.Via)
	assert.Equal(t, 2, rec.count("POST /api/customers/acme/health/reevaluate"))
	assert.NotEqual(t, loaders.actionKey(KindReevaluate, "acme"), loaders.actionKey(KindReevaluate, "acme"))
}

func TestReevaluateFallsBackOnlyOn404(t *testing.T) {
	t.Run("404 falls back to cache-busting GET", func(t *testing.T) {
		loaders, rec := newLoaders(t, func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodPost {
				http.NotFound(w, r)
				return
			}
			assert.Equal(t, "true", r.URL.Query().Get("refresh"))
			assert.NotEmpty(t, r.URL.Query().Get("_"))
			okJSON(w, `{"score":70}`)
		})

		res, err := loaders.Reevaluate(context.Background(), "acme")
		require.NoError(t, err)
		assert.Equal(t, KindReevaluateFallback, res.Via)
		assert.Equal(t, 1, rec.count("GET /api/customers/acme/health?refresh=true&_="))
	})

	t.Run("500 is surfaced without fallback", func(t *testing.T) {
		loaders, rec := newLoaders(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadGateway)
			_, _ = io.WriteString(w, `{"error":"upstream"}`)
		})

		_, err := loaders.Reevaluate(context.Background(), "acme")
		require.Error(t, err)
		assert.Equal(t, http.StatusBadGateway, upstream.StatusOf(err))
		assert.Equal(t, 0, rec.count("GET "))
	})
}

func TestNotifyInvalidatesAfterSuccess(t *testing.T) {
	loaders, rec := newLoaders(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			raw, _ := io.ReadAll(r.Body)
			assert.JSONEq(t, `{"message":"hi"}`, string(raw))
		}
		okJSON(w, `{}`)
	})
	ctx := context.Background()

	_, err := loaders.Alerts(ctx, "acme")
	require.NoError(t, err)

	_, err = loaders.Notify(ctx, "acme", map[string]string{"message": "hi"})
	require.NoError(t, err)

	_, err = loaders.Alerts(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, 2, rec.count("GET /api/customers/acme/alerts"))
}

func TestLoadRegistryOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "resources.yaml")
	content := `resources:
  health:
    path: /v2/customers/{id}/health
    ttl: 45s
  devices:
    ttl: 0s
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	reg, err := LoadRegistry(path)
	require.NoError(t, err)

	health, _ := reg.Lookup(KindHealth)
	assert.Equal(t, "/v2/customers/{id}/health", health.Path)
	assert.Equal(t, 45*time.Second, health.TTL)

	devices, _ := reg.Lookup(KindDevices)
	assert.Equal(t, time.Duration(0), devices.EffectiveTTL())
}

func TestLoadRegistryRejectsBadOverrides(t *testing.T) {
	tests := map[string]string{
		"unknown kind":         "resources:\n  weather:\n    ttl: 1s\n",
		"bad duration":         "resources:\n  health:\n    ttl: soon\n",
		"ttl on non-cacheable": "resources:\n  notify:\n    ttl: 1m\n",
		"not yaml":             "resources: [",
	}

	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "resources.yaml")
			require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
			_, err := LoadRegistry(path)
			assert.Error(t, err)
		})
	}
}

func TestLoadRegistryDefaultsWithoutFile(t *testing.T) {
	reg, err := LoadRegistry("")
	require.NoError(t, err)
	assert.Equal(t,
		[]Kind{KindAlerts, KindAnalytics, KindCDR, KindDevices, KindHealth, KindHistory, KindLicenses, KindPSTN},
		reg.CustomerFamilies())
}
