package resources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/MrSnakeDoc/pulse/internal/cache"
	"github.com/MrSnakeDoc/pulse/internal/logger"
	"github.com/MrSnakeDoc/pulse/internal/upstream"
)

// Loaders are the typed accessors of the upstream resources. Every read
// goes through the fetch client with the resource's key and TTL.
type Loaders struct {
	client   *upstream.Client
	registry *Registry
	logger   logger.Logger
	now      func() time.Time
	seq      atomic.Uint64
}

// NewLoaders binds a fetch client to a descriptor registry.
func NewLoaders(client *upstream.Client, registry *Registry, log logger.Logger) *Loaders {
	return &Loaders{
		client:   client,
		registry: registry,
		logger:   log,
		now:      time.Now,
	}
}

// Cache exposes the session cache for diagnostics.
func (l *Loaders) Cache() *cache.TTL { return l.client.Cache() }

func (l *Loaders) load(ctx context.Context, kind Kind, customerID string) (json.RawMessage, error) {
	d, ok := l.registry.Lookup(kind)
	if !ok {
		return nil, fmt.Errorf("unknown resource kind %q", kind)
	}
	if d.CustomerScoped() && customerID == "" {
		return nil, fmt.Errorf("resource %s requires a customer id", kind)
	}

	return l.client.Fetch(ctx, d.PathFor(customerID), upstream.Options{
		CacheKey: Key(kind, customerID),
		TTL:      d.EffectiveTTL(),
		Method:   d.Method,
	})
}

// Load fetches any read resource by kind. Used by the hydration layer to
// drive tab views generically.
func (l *Loaders) Load(ctx context.Context, kind Kind, customerID string) (json.RawMessage, error) {
	return l.load(ctx, kind, customerID)
}

func (l *Loaders) Customers(ctx context.Context) (json.RawMessage, error) {
	return l.load(ctx, KindCustomers, "")
}

func (l *Loaders) Health(ctx context.Context, customerID string) (json.RawMessage, error) {
	return l.load(ctx, KindHealth, customerID)
}

func (l *Loaders) History(ctx context.Context, customerID string) (json.RawMessage, error) {
	return l.load(ctx, KindHistory, customerID)
}

func (l *Loaders) Licenses(ctx context.Context, customerID string) (json.RawMessage, error) {
	return l.load(ctx, KindLicenses, customerID)
}

func (l *Loaders) Devices(ctx context.Context, customerID string) (json.RawMessage, error) {
	return l.load(ctx, KindDevices, customerID)
}

func (l *Loaders) Alerts(ctx context.Context, customerID string) (json.RawMessage, error) {
	return l.load(ctx, KindAlerts, customerID)
}

func (l *Loaders) Analytics(ctx context.Context, customerID string) (json.RawMessage, error) {
	return l.load(ctx, KindAnalytics, customerID)
}

func (l *Loaders) PSTN(ctx context.Context, customerID string) (json.RawMessage, error) {
	return l.load(ctx, KindPSTN, customerID)
}

func (l *Loaders) CDR(ctx context.Context, customerID string) (json.RawMessage, error) {
	return l.load(ctx, KindCDR, customerID)
}

// ActionResult is the outcome of a user-triggered mutation.
type ActionResult struct {
	Via  Kind            // endpoint that accepted the action
	Body json.RawMessage // upstream answer, passed through
}

// Reevaluate asks the upstream to recompute a customer's health.
//
// The POST endpoint is tried first. Only a 404 from it (endpoint not
// deployed) falls back to the cache-busting GET; any other failure is
// returned so a side-effecting re-evaluation is never triggered twice.
// On success every cached family of the customer is invalidated.
func (l *Loaders) Reevaluate(ctx context.Context, customerID string) (*ActionResult, error) {
	body, err := l.action(ctx, KindReevaluate, customerID, nil)
	via := KindReevaluate

	if upstream.IsNotFound(err) {
		l.logger.Info("reevaluate endpoint missing, using cache-busting fallback",
			logger.String("customer", customerID))
		body, err = l.action(ctx, KindReevaluateFallback, customerID, nil)
		via = KindReevaluateFallback
	}
	if err != nil {
		return nil, fmt.Errorf("failed to reevaluate %s: %w", customerID, err)
	}

	l.InvalidateCustomer(customerID)
	return &ActionResult{Via: via, Body: body}, nil
}

// Notify sends a notification for a customer. payload is JSON-encoded.
func (l *Loaders) Notify(ctx context.Context, customerID string, payload any) (*ActionResult, error) {
	body, err := l.action(ctx, KindNotify, customerID, payload)
	if err != nil {
		return nil, fmt.Errorf("failed to send notification for %s: %w", customerID, err)
	}

	l.InvalidateCustomer(customerID)
	return &ActionResult{Via: KindNotify, Body: body}, nil
}

// action issues a non-cacheable call under a key unique to this invocation,
// so two user actions are never collapsed into one request.
func (l *Loaders) action(ctx context.Context, kind Kind, customerID string, payload any) (json.RawMessage, error) {
	d, ok := l.registry.Lookup(kind)
	if !ok {
		return nil, fmt.Errorf("unknown resource kind %q", kind)
	}

	key := l.actionKey(kind, customerID)
	path := d.PathFor(customerID)
	if d.Method == "" || d.Method == http.MethodGet {
		path = withCacheBuster(path, l.now())
	}

	return l.client.Fetch(ctx, path, upstream.Options{
		CacheKey: key,
		TTL:      0,
		Method:   d.Method,
		Body:     payload,
	})
}

func (l *Loaders) actionKey(kind Kind, customerID string) string {
	seq := l.seq.Add(1)
	return fmt.Sprintf("%s:%s:%d:%d", kind, customerID, l.now().UnixNano(), seq)
}

func withCacheBuster(path string, now time.Time) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_=" + strconv.FormatInt(now.UnixMilli(), 10)
}

// InvalidateCustomer drops every cached family of customerID by exact key,
// never keys of other customers, and detaches fetches still in flight for
// them. Returns the number of entries removed.
func (l *Loaders) InvalidateCustomer(customerID string) int {
	removed := 0
	for _, kind := range l.registry.CustomerFamilies() {
		if l.client.Invalidate(Key(kind, customerID)) {
			removed++
		}
	}

	l.logger.Debug("invalidated customer resources",
		logger.String("customer", customerID),
		logger.Int("removed", removed))
	return removed
}

// InvalidateCustomers drops the cached customer list.
func (l *Loaders) InvalidateCustomers() {
	l.client.Invalidate(Key(KindCustomers, ""))
}

// InvalidateAll empties the cache.
func (l *Loaders) InvalidateAll() {
	l.client.Cache().Clear()
}
