package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"resty.dev/v3"

	"github.com/MrSnakeDoc/pulse/internal/cache"
	"github.com/MrSnakeDoc/pulse/internal/logger"
)

// TransportConfig describes how to reach the partner API.
type TransportConfig struct {
	BaseURL   string        // scheme + host, ex: "https://partner.example.com"
	Prefix    string        // path prefix every resource lives under, ex: "/api"
	Token     string        // optional bearer token
	Timeout   time.Duration // per-request transport timeout, 0 = none
	UserAgent string
}

// Transport is the shared HTTP side of the fetch layer. It is safe for
// concurrent use and is shared by every session.
type Transport struct {
	http   *resty.Client
	prefix string
}

// NewTransport builds the resty client used for every upstream call.
func NewTransport(cfg TransportConfig) *Transport {
	rc := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetHeader("Accept", "application/json")

	if cfg.Timeout > 0 {
		rc.SetTimeout(cfg.Timeout)
	}
	if cfg.UserAgent != "" {
		rc.SetHeader("User-Agent", cfg.UserAgent)
	}
	if cfg.Token != "" {
		rc.SetAuthToken(cfg.Token)
	}

	return &Transport{
		http:   rc,
		prefix: strings.TrimRight(cfg.Prefix, "/"),
	}
}

// Close releases idle connections held by the transport.
func (t *Transport) Close() error {
	return t.http.Close()
}

// Options tune a single Fetch.
type Options struct {
	CacheKey string            // logical resource identity; defaults to method + path
	TTL      time.Duration     // <= 0 disables caching for this call
	Method   string            // defaults to GET
	Body     any               // JSON-encoded when non-nil
	Headers  map[string]string // merged over the transport defaults
}

// Client binds the shared transport to one session's cache and deduplicator.
type Client struct {
	transport *Transport
	cache     *cache.TTL
	dedup     *cache.Dedup
	logger    logger.Logger
}

// NewClient creates a fetch client over the given stores.
func NewClient(t *Transport, c *cache.TTL, d *cache.Dedup, log logger.Logger) *Client {
	return &Client{
		transport: t,
		cache:     c,
		dedup:     d,
		logger:    log,
	}
}

// Cache exposes the TTL cache the client commits into.
func (c *Client) Cache() *cache.TTL { return c.cache }

// Invalidate removes key from the cache and detaches any request in flight
// for it, so the next Fetch goes to the network.
func (c *Client) Invalidate(key string) bool {
	removed := c.cache.Delete(key)
	c.dedup.Forget(key)
	return removed
}

// Fetch returns the JSON document at path.
//
// A fresh cache entry short-circuits the network. Otherwise concurrent
// callers with the same cache key share one request, and a successful
// result is committed to the cache when opts.TTL > 0 and nothing was
// invalidated while it was in flight. Errors are one of
// *HTTPError, *MalformedResponseError or *NetworkError and are never retried.
func (c *Client) Fetch(ctx context.Context, path string, opts Options) (json.RawMessage, error) {
	method := opts.Method
	if method == "" {
		method = http.MethodGet
	}
	key := opts.CacheKey
	if key == "" {
		key = method + " " + path
	}

	if cached, ok := c.cache.Get(key); ok {
		c.logger.Debug("upstream cache hit", logger.String("key", key))
		return cached, nil
	}

	gen := c.cache.Generation()
	value, shared, err := c.dedup.Do(ctx, key, func(flightCtx context.Context) ([]byte, error) {
		body, err := c.roundTrip(flightCtx, method, path, opts)
		if err != nil {
			return nil, err
		}
		if opts.TTL > 0 && !c.cache.SetIfGeneration(key, body, opts.TTL, gen) {
			c.logger.Debug("upstream result not cached, invalidated while in flight",
				logger.String("key", key))
		}
		return body, nil
	})
	if err != nil {
		c.logger.Warn("upstream fetch failed",
			logger.String("method", method),
			logger.String("path", path),
			logger.String("key", key),
			logger.Error(err))
		return nil, err
	}

	if shared {
		c.logger.Debug("upstream fetch shared", logger.String("key", key))
	}
	return value, nil
}

func (c *Client) roundTrip(ctx context.Context, method, path string, opts Options) ([]byte, error) {
	req := c.transport.http.R().
		SetContext(ctx).
		SetDoNotParseResponse(true)

	if opts.Body != nil {
		payload, err := json.Marshal(opts.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		req.SetHeader("Content-Type", "application/json").SetBody(payload)
	}
	if len(opts.Headers) > 0 {
		req.SetHeaders(opts.Headers)
	}

	start := time.Now()
	resp, err := req.Execute(method, c.transport.prefix+path)
	if err != nil {
		return nil, &NetworkError{Err: err}
	}

	raw := resp.RawResponse
	if raw == nil || raw.Body == nil {
		return nil, &NetworkError{Err: fmt.Errorf("empty response for %s %s", method, path)}
	}
	defer func() {
		_ = raw.Body.Close()
	}()

	body, err := io.ReadAll(raw.Body)
	if err != nil {
		return nil, &NetworkError{Err: fmt.Errorf("failed to read response body: %w", err)}
	}

	c.logger.Debug("upstream request",
		logger.String("method", method),
		logger.String("path", path),
		logger.Int("status", raw.StatusCode),
		logger.Duration("duration", time.Since(start)))

	return classify(raw.StatusCode, raw.Header.Get("Content-Type"), body)
}

// classify maps a completed response onto the fetch error taxonomy.
func classify(status int, contentType string, body []byte) ([]byte, error) {
	if status < 200 || status > 299 {
		return nil, &HTTPError{Status: status, Body: truncate(body)}
	}
	if !isJSON(contentType) || !json.Valid(body) {
		return nil, &MalformedResponseError{
			Status:      status,
			ContentType: contentType,
			Body:        truncate(body),
		}
	}
	return body, nil
}

func isJSON(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}
