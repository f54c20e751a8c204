package resources

import (
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"
)

// Kind names a logical upstream resource.
type Kind string

const (
	KindCustomers          Kind = "customers"
	KindHealth             Kind = "health"
	KindHistory            Kind = "history"
	KindLicenses           Kind = "licenses"
	KindDevices            Kind = "devices"
	KindAlerts             Kind = "alerts"
	KindAnalytics          Kind = "analytics"
	KindPSTN               Kind = "pstn"
	KindCDR                Kind = "cdr"
	KindReevaluate         Kind = "reevaluate"
	KindReevaluateFallback Kind = "reevaluate_fallback"
	KindNotify             Kind = "notify"
)

// idPlaceholder is substituted with the escaped customer identifier.
const idPlaceholder = "{id}"

// Descriptor is the static configuration of one resource kind.
type Descriptor struct {
	Kind      Kind
	Path      string // template, may contain {id}
	Method    string
	TTL       time.Duration
	Cacheable bool
}

// EffectiveTTL is the TTL handed to the fetch client: zero when the
// resource opts out of caching.
func (d Descriptor) EffectiveTTL() time.Duration {
	if !d.Cacheable {
		return 0
	}
	return d.TTL
}

// PathFor renders the path template for a customer.
func (d Descriptor) PathFor(customerID string) string {
	return strings.ReplaceAll(d.Path, idPlaceholder, url.PathEscape(customerID))
}

// CustomerScoped reports whether the resource is parameterized by customer.
func (d Descriptor) CustomerScoped() bool {
	return strings.Contains(d.Path, idPlaceholder)
}

// Defaults returns the built-in descriptor table.
func Defaults() map[Kind]Descriptor {
	return map[Kind]Descriptor{
		KindCustomers: {Kind: KindCustomers, Path: "/customers", Method: http.MethodGet, TTL: time.Minute, Cacheable: true},
		KindHealth:    {Kind: KindHealth, Path: "/customers/{id}/health", Method: http.MethodGet, TTL: 30 * time.Second, Cacheable: true},
		KindHistory:   {Kind: KindHistory, Path: "/customers/{id}/health/history", Method: http.MethodGet, TTL: 5 * time.Minute, Cacheable: true},
		KindLicenses:  {Kind: KindLicenses, Path: "/customers/{id}/licenses", Method: http.MethodGet, TTL: 5 * time.Minute, Cacheable: true},
		KindDevices:   {Kind: KindDevices, Path: "/customers/{id}/devices", Method: http.MethodGet, TTL: time.Minute, Cacheable: true},
		KindAlerts:    {Kind: KindAlerts, Path: "/customers/{id}/alerts", Method: http.MethodGet, TTL: 30 * time.Second, Cacheable: true},
		KindAnalytics: {Kind: KindAnalytics, Path: "/customers/{id}/analytics", Method: http.MethodGet, TTL: 5 * time.Minute, Cacheable: true},
		KindPSTN:      {Kind: KindPSTN, Path: "/customers/{id}/pstn", Method: http.MethodGet, TTL: 5 * time.Minute, Cacheable: true},
		KindCDR:       {Kind: KindCDR, Path: "/customers/{id}/cdr", Method: http.MethodGet, TTL: 2 * time.Minute, Cacheable: true},

		KindReevaluate:         {Kind: KindReevaluate, Path: "/customers/{id}/health/reevaluate", Method: http.MethodPost},
		KindReevaluateFallback: {Kind: KindReevaluateFallback, Path: "/customers/{id}/health?refresh=true", Method: http.MethodGet},
		KindNotify:             {Kind: KindNotify, Path: "/customers/{id}/notify", Method: http.MethodPost},
	}
}

// Registry is the read-only descriptor table used by the loaders.
type Registry struct {
	descriptors map[Kind]Descriptor
}

// NewRegistry freezes a descriptor table. The map is copied.
func NewRegistry(descriptors map[Kind]Descriptor) *Registry {
	cp := make(map[Kind]Descriptor, len(descriptors))
	for k, d := range descriptors {
		cp[k] = d
	}
	return &Registry{descriptors: cp}
}

// Lookup returns the descriptor for kind.
func (r *Registry) Lookup(kind Kind) (Descriptor, bool) {
	d, ok := r.descriptors[kind]
	return d, ok
}

// Descriptors returns the whole table sorted by kind.
func (r *Registry) Descriptors() []Descriptor {
	out := make([]Descriptor, 0, len(r.descriptors))
	for _, d := range r.descriptors {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Kind < out[j].Kind })
	return out
}

// CustomerFamilies lists the cacheable kinds keyed per customer, sorted.
func (r *Registry) CustomerFamilies() []Kind {
	kinds := make([]Kind, 0, len(r.descriptors))
	for kind, d := range r.descriptors {
		if d.Cacheable && d.CustomerScoped() {
			kinds = append(kinds, kind)
		}
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// Key builds the cache key of a resource instance: "customers" for the
// list, "<kind>:<customerID>" otherwise.
func Key(kind Kind, customerID string) string {
	if customerID == "" {
		return string(kind)
	}
	return string(kind) + ":" + customerID
}
