package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrSnakeDoc/pulse/internal/cache"
	"github.com/MrSnakeDoc/pulse/internal/logger"
)

type upstreamStub struct {
	server *httptest.Server
	calls  atomic.Int32
}

func newStub(t *testing.T, h http.HandlerFunc) *upstreamStub {
	t.Helper()
	s := &upstreamStub{}
	s.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.calls.Add(1)
		h(w, r)
	}))
	t.Cleanup(s.server.Close)
	return s
}

func newTestClient(t *testing.T, baseURL string, now func() time.Time) *Client {
	t.Helper()
	tr := NewTransport(TransportConfig{BaseURL: baseURL, Prefix: "/api", Timeout: 5 * time.Second})
	t.Cleanup(func() { _ = tr.Close() })
	return NewClient(tr, cache.NewTTLWithClock(now), cache.NewDedup(), logger.NewNop())
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

func TestFetchCachesWithinTTL(t *testing.T) {
	stub := newStub(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/customers/acme/health", r.URL.Path)
		writeJSON(w, http.StatusOK, `{"score":88}`)
	})

	now := time.Now()
	var mu sync.Mutex
	clock := func() time.Time { mu.Lock(); defer mu.Unlock(); return now }
	c := newTestClient(t, stub.server.URL, clock)

	opts := Options{CacheKey: "health:acme", TTL: 30 * time.Second}
	first, err := c.Fetch(context.Background(), "/customers/acme/health", opts)
	require.NoError(t, err)

	mu.Lock()
	now = now.Add(29 * time.Second)
	mu.Unlock()

	second, err := c.Fetch(context.Background(), "/customers/acme/health", opts)
	require.NoError(t, err)

	assert.JSONEq(t, string(first), string(second))
	assert.Equal(t, int32(1), stub.calls.Load(), "second call within TTL must be served from cache")

	mu.Lock()
	now = now.Add(2 * time.Second)
	mu.Unlock()

	_, err = c.Fetch(context.Background(), "/customers/acme/health", opts)
	require.NoError(t, err)
	assert.Equal(t, int32(2), stub.calls.Load(), "read after TTL must refetch")
}

func TestFetchDeduplicatesConcurrentCallers(t *testing.T) {
	release := make(chan struct{})
	stub := newStub(t, func(w http.ResponseWriter, r *http.Request) {
		<-release
		writeJSON(w, http.StatusOK, `[{"id":"acme"}]`)
	})
	c := newTestClient(t, stub.server.URL, time.Now)

	const callers = 8
	var wg sync.WaitGroup
	results := make([]json.RawMessage, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = c.Fetch(context.Background(), "/customers", Options{CacheKey: "customers", TTL: time.Minute})
		}(i)
	}

	require.Eventually(t, func() bool { return stub.calls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), stub.calls.Load())
	for i := range results {
		require.NoError(t, errs[i])
		assert.JSONEq(t, `[{"id":"acme"}]`, string(results[i]))
	}
}

func TestFetchSharesFailureAndAllowsRetry(t *testing.T) {
	var fail atomic.Bool
	fail.Store(true)
	stub := newStub(t, func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			writeJSON(w, http.StatusInternalServerError, `{"error":"boom"}`)
			return
		}
		writeJSON(w, http.StatusOK, `{}`)
	})
	c := newTestClient(t, stub.server.URL, time.Now)
	opts := Options{CacheKey: "licenses:acme", TTL: time.Minute}

	_, err := c.Fetch(context.Background(), "/customers/acme/licenses", opts)
	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusInternalServerError, httpErr.Status)
	assert.Contains(t, httpErr.Body, "boom")

	fail.Store(false)
	_, err = c.Fetch(context.Background(), "/customers/acme/licenses", opts)
	require.NoError(t, err)
	assert.Equal(t, int32(2), stub.calls.Load())
}

func TestFetchErrorClassification(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		contentType string
		body        string
		check       func(t *testing.T, err error)
	}{
		{
			name:        "server error",
			status:      http.StatusInternalServerError,
			contentType: "application/json",
			body:        `{"error":"x"}`,
			check: func(t *testing.T, err error) {
				var e *HTTPError
				require.ErrorAs(t, err, &e)
				assert.Equal(t, 500, e.Status)
				assert.False(t, IsNotFound(err))
			},
		},
		{
			name:        "html body on 200",
			status:      http.StatusOK,
			contentType: "text/html",
			body:        "<html>login</html>",
			check: func(t *testing.T, err error) {
				var e *MalformedResponseError
				require.ErrorAs(t, err, &e)
				assert.Equal(t, 200, e.Status)
				assert.Equal(t, 200, StatusOf(err))
				assert.False(t, IsNotFound(err))
			},
		},
		{
			name:        "json content type but broken body",
			status:      http.StatusOK,
			contentType: "application/json",
			body:        `{"score":`,
			check: func(t *testing.T, err error) {
				var e *MalformedResponseError
				require.ErrorAs(t, err, &e)
			},
		},
		{
			name:        "not found",
			status:      http.StatusNotFound,
			contentType: "application/json",
			body:        `{"detail":"no pstn"}`,
			check: func(t *testing.T, err error) {
				assert.True(t, IsNotFound(err))
				var malformed *MalformedResponseError
				assert.False(t, errors.As(err, &malformed))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := newStub(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", tt.contentType)
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			})
			c := newTestClient(t, stub.server.URL, time.Now)

			_, err := c.Fetch(context.Background(), "/x", Options{CacheKey: "x", TTL: time.Minute})
			require.Error(t, err)
			tt.check(t, err)
			assert.Equal(t, 0, c.Cache().Len(), "failures must never be cached")
		})
	}
}

func TestFetchNetworkFailure(t *testing.T) {
	stub := newStub(t, func(w http.ResponseWriter, r *http.Request) {})
	url := stub.server.URL
	stub.server.Close()

	c := newTestClient(t, url, time.Now)
	_, err := c.Fetch(context.Background(), "/customers", Options{CacheKey: "customers", TTL: time.Minute})

	var netErr *NetworkError
	require.ErrorAs(t, err, &netErr)
	assert.Equal(t, 0, StatusOf(err))
}

func TestFetchNonCacheableSendsJSONBodyAndHeaders(t *testing.T) {
	stub := newStub(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "dashboard", r.Header.Get("X-Trigger"))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))

		raw, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"channel":"email"}`, string(raw))
		writeJSON(w, http.StatusAccepted, `{"queued":true}`)
	})
	c := newTestClient(t, stub.server.URL, time.Now)

	opts := Options{
		CacheKey: "notify:acme:1",
		Method:   http.MethodPost,
		Body:     map[string]string{"channel": "email"},
		Headers:  map[string]string{"X-Trigger": "dashboard"},
	}
	_, err := c.Fetch(context.Background(), "/customers/acme/notify", opts)
	require.NoError(t, err)
	_, err = c.Fetch(context.Background(), "/customers/acme/notify", opts)
	require.NoError(t, err)

	assert.Equal(t, int32(2), stub.calls.Load(), "ttl=0 results are never served from cache")
	assert.Equal(t, 0, c.Cache().Len())
}

func TestTruncateKeepsRunes(t *testing.T) {
	long := strings.Repeat("é", maxBodySnippet)
	got := truncate([]byte(long))

	assert.LessOrEqual(t, len(got), maxBodySnippet+len("…"))
	assert.True(t, strings.HasSuffix(got, "…"))
	assert.True(t, strings.HasPrefix(got, "éé"))
}
