package hydrate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrSnakeDoc/pulse/internal/logger"
	"github.com/MrSnakeDoc/pulse/internal/resources"
	"github.com/MrSnakeDoc/pulse/internal/viewmodel"
)

// View names of a customer page.
const (
	ViewHealth    = "health"
	ViewHistory   = "history"
	ViewLicenses  = "licenses"
	ViewDevices   = "devices"
	ViewAlerts    = "alerts"
	ViewAnalytics = "analytics"
	ViewPSTN      = "pstn"
	ViewCDR       = "cdr"
)

var (
	// coreViews are loaded together before the page shell renders.
	coreViews = []string{ViewHealth, ViewHistory, ViewLicenses}
	// secondaryViews are hydrated in the background after the core.
	secondaryViews = []string{ViewDevices, ViewAlerts}
	// allViews keeps a stable order for snapshots.
	allViews = []string{ViewHealth, ViewHistory, ViewLicenses, ViewDevices, ViewAlerts, ViewAnalytics, ViewPSTN, ViewCDR}
)

// ErrUnknownView is returned for a view name the page does not have.
var ErrUnknownView = errors.New("unknown view")

// PageSnapshot is what the page shell renders after Open.
type PageSnapshot struct {
	CustomerID string               `json:"customer_id"`
	Panels     map[string]Result    `json:"panels"`
	Views      map[string]ViewState `json:"views"`
}

// CustomerPage orchestrates the views of one customer.
type CustomerPage struct {
	id      string
	loaders *resources.Loaders
	logger  logger.Logger
	now     func() time.Time

	views      map[string]*View
	background sync.WaitGroup
}

// NewCustomerPage wires every view of a customer to its loader. No view is
// loaded until activated.
func NewCustomerPage(customerID string, loaders *resources.Loaders, log logger.Logger) *CustomerPage {
	p := &CustomerPage{
		id:      customerID,
		loaders: loaders,
		logger:  log.With(logger.String("customer", customerID)),
		now:     time.Now,
	}

	raw := func(kind resources.Kind) LoadFunc {
		return func(ctx context.Context) (any, error) {
			return p.loaders.Load(ctx, kind, p.id)
		}
	}

	p.views = map[string]*View{
		ViewHealth: NewView(ViewHealth, func(ctx context.Context) (any, error) {
			body, err := p.loaders.Health(ctx, p.id)
			if err != nil {
				return nil, err
			}
			return viewmodel.HealthSummary(body)
		}, p.logger),
		ViewHistory:  NewView(ViewHistory, raw(resources.KindHistory), p.logger),
		ViewLicenses: NewView(ViewLicenses, raw(resources.KindLicenses), p.logger),
		ViewDevices: NewView(ViewDevices, func(ctx context.Context) (any, error) {
			body, err := p.loaders.Devices(ctx, p.id)
			if err != nil {
				return nil, err
			}
			return viewmodel.NormalizeDevices(body, p.now())
		}, p.logger),
		ViewAlerts: NewView(ViewAlerts, func(ctx context.Context) (any, error) {
			body, err := p.loaders.Alerts(ctx, p.id)
			if err != nil {
				return nil, err
			}
			return viewmodel.AlertRows(body)
		}, p.logger),
		ViewAnalytics: NewView(ViewAnalytics, raw(resources.KindAnalytics), p.logger),
		ViewPSTN:      NewView(ViewPSTN, raw(resources.KindPSTN), p.logger),
		ViewCDR:       NewView(ViewCDR, raw(resources.KindCDR), p.logger),
	}
	return p
}

func (p *CustomerPage) CustomerID() string { return p.id }

// Open loads health, history and licenses together and returns once all
// three settled. Devices and alerts then hydrate in the background.
func (p *CustomerPage) Open(ctx context.Context) (*PageSnapshot, error) {
	results := make([]Result, len(coreViews))

	var g errgroup.Group
	for i, name := range coreViews {
		i, name := i, name
		g.Go(func() error {
			res, err := p.views[name].Activate(ctx)
			results[i] = res
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to open customer %s: %w", p.id, err)
	}

	p.hydrateSecondary(ctx)

	snap := &PageSnapshot{
		CustomerID: p.id,
		Panels:     make(map[string]Result, len(coreViews)),
		Views:      p.States(),
	}
	for i, name := range coreViews {
		snap.Panels[name] = results[i]
	}
	return snap, nil
}

// hydrateSecondary starts the best-effort views without waiting for them.
func (p *CustomerPage) hydrateSecondary(ctx context.Context) {
	detached := context.WithoutCancel(ctx)
	for _, name := range secondaryViews {
		v := p.views[name]
		p.background.Add(1)
		go func() {
			defer p.background.Done()
			if _, err := v.Activate(detached); err != nil {
				p.logger.Debug("secondary hydration aborted",
					logger.String("view", v.Name()), logger.Error(err))
			}
		}()
	}
}

// Activate hydrates one view by name.
func (p *CustomerPage) Activate(ctx context.Context, name string) (Result, error) {
	v, ok := p.views[name]
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrUnknownView, name)
	}
	return v.Activate(ctx)
}

// States returns the state of every view.
func (p *CustomerPage) States() map[string]ViewState {
	out := make(map[string]ViewState, len(allViews))
	for _, name := range allViews {
		out[name] = p.views[name].State()
	}
	return out
}

// Refresh drops every cached family of the customer, then reloads each
// activated view regardless of its state. The cache keys are gone before
// any reload is issued.
func (p *CustomerPage) Refresh(ctx context.Context) (map[string]Result, error) {
	removed := p.loaders.InvalidateCustomer(p.id)
	p.logger.Info("refreshing customer page", logger.Int("invalidated", removed))

	var (
		mu  sync.Mutex
		out = make(map[string]Result)
		g   errgroup.Group
	)
	for _, name := range allViews {
		name := name
		v := p.views[name]
		if !v.State().Activated {
			continue
		}
		g.Go(func() error {
			res, err := v.Reload(ctx)
			if err != nil {
				return err
			}
			mu.Lock()
			out[name] = res
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to refresh customer %s: %w", p.id, err)
	}
	return out, nil
}

// MarkStale makes every loaded view fetch again on next activation. Used
// when the customer was mutated elsewhere.
func (p *CustomerPage) MarkStale() {
	for _, v := range p.views {
		v.MarkStale()
	}
}

// Reevaluate triggers a health re-evaluation and marks the page stale.
func (p *CustomerPage) Reevaluate(ctx context.Context) (*resources.ActionResult, error) {
	res, err := p.loaders.Reevaluate(ctx, p.id)
	if err != nil {
		return nil, err
	}
	p.MarkStale()
	return res, nil
}

// Notify sends a customer notification and marks the page stale.
func (p *CustomerPage) Notify(ctx context.Context, payload any) (*resources.ActionResult, error) {
	res, err := p.loaders.Notify(ctx, p.id, payload)
	if err != nil {
		return nil, err
	}
	p.MarkStale()
	return res, nil
}

// WaitBackground blocks until background hydration settled.
func (p *CustomerPage) WaitBackground() {
	p.background.Wait()
}

// Report is the printable report preview of a customer.
type Report struct {
	CustomerID  string                  `json:"customer_id"`
	GeneratedAt time.Time               `json:"generated_at"`
	Health      viewmodel.Health        `json:"health"`
	Devices     Result                  `json:"devices"`
	Alerts      Result                  `json:"alerts"`
	Counts      *viewmodel.DeviceCounts `json:"device_counts,omitempty"`
}

// Report builds the report preview. Health is required and its error is
// returned; devices and alerts are best-effort and replaced by the absent
// marker on any failure.
func (p *CustomerPage) Report(ctx context.Context) (*Report, error) {
	var (
		health  viewmodel.Health
		devices []viewmodel.DeviceRow
		alerts  []viewmodel.AlertRow
		devErr  error
		alErr   error
	)

	var g errgroup.Group
	g.Go(func() error {
		body, err := p.loaders.Health(ctx, p.id)
		if err != nil {
			return err
		}
		health, err = viewmodel.HealthSummary(body)
		return err
	})
	g.Go(func() error {
		devices, devErr = bestEffort(ctx, p.loaders.Devices, p.id, func(b []byte) ([]viewmodel.DeviceRow, error) {
			return viewmodel.NormalizeDevices(b, p.now())
		})
		return nil
	})
	g.Go(func() error {
		alerts, alErr = bestEffort(ctx, p.loaders.Alerts, p.id, viewmodel.AlertRows)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to build report for %s: %w", p.id, err)
	}

	rep := &Report{
		CustomerID:  p.id,
		GeneratedAt: p.now(),
		Health:      health,
		Devices:     Absent(),
		Alerts:      Absent(),
	}
	if devErr == nil {
		rep.Devices = Classify(devices, nil)
		counts := viewmodel.CountDevices(devices)
		rep.Counts = &counts
	} else {
		p.logger.Debug("report devices omitted", logger.Error(devErr))
	}
	if alErr == nil {
		rep.Alerts = Classify(alerts, nil)
	} else {
		p.logger.Debug("report alerts omitted", logger.Error(alErr))
	}
	return rep, nil
}

func bestEffort[T any](
	ctx context.Context,
	load func(context.Context, string) (json.RawMessage, error),
	id string,
	decode func([]byte) (T, error),
) (T, error) {
	var zero T
	body, err := load(ctx, id)
	if err != nil {
		return zero, err
	}
	return decode(body)
}
