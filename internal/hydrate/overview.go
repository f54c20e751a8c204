package hydrate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrSnakeDoc/pulse/internal/logger"
	"github.com/MrSnakeDoc/pulse/internal/resources"
	"github.com/MrSnakeDoc/pulse/internal/viewmodel"
)

// Overview drives the landing page: the customer list and the executive
// rollup, each an independent view.
type Overview struct {
	loaders  *resources.Loaders
	logger   logger.Logger
	parallel int
	debounce *Debouncer

	customers *View
	rollup    *View
}

// OverviewOptions tunes the landing page.
type OverviewOptions struct {
	// RollupParallel bounds the per-customer health fetches of the rollup.
	RollupParallel int
	// SearchDebounce is the quiet period of Search.
	SearchDebounce time.Duration
}

func NewOverview(loaders *resources.Loaders, log logger.Logger, opts OverviewOptions) *Overview {
	if opts.RollupParallel < 1 {
		opts.RollupParallel = 1
	}

	o := &Overview{
		loaders:  loaders,
		logger:   log,
		parallel: opts.RollupParallel,
		debounce: NewDebouncer(opts.SearchDebounce),
	}
	o.customers = NewView("customers", func(ctx context.Context) (any, error) {
		return o.customerRows(ctx)
	}, log)
	o.rollup = NewView("rollup", func(ctx context.Context) (any, error) {
		return o.buildRollup(ctx)
	}, log)
	return o
}

func (o *Overview) customerRows(ctx context.Context) ([]viewmodel.CustomerRow, error) {
	body, err := o.loaders.Customers(ctx)
	if err != nil {
		return nil, err
	}
	return viewmodel.CustomerRows(body)
}

// Customers returns the customer list filtered by query.
func (o *Overview) Customers(ctx context.Context, query string) (Result, error) {
	res, err := o.customers.Activate(ctx)
	if err != nil || res.Kind != KindReady {
		return res, err
	}

	rows, _ := res.Data.([]viewmodel.CustomerRow)
	return Classify(viewmodel.FilterCustomers(rows, query), nil), nil
}

// Search is Customers behind the debouncer: of a burst of calls only the
// last one runs, the others get ErrSuperseded.
func (o *Overview) Search(ctx context.Context, query string) (Result, error) {
	if err := o.debounce.Wait(ctx); err != nil {
		return Result{}, err
	}
	return o.Customers(ctx, query)
}

// Rollup returns the executive rollup.
func (o *Overview) Rollup(ctx context.Context) (Result, error) {
	return o.rollup.Activate(ctx)
}

// buildRollup fetches every customer's health with bounded concurrency. A
// customer whose health fails counts as unknown and never fails the rollup.
func (o *Overview) buildRollup(ctx context.Context) (viewmodel.ExecutiveRollup, error) {
	rows, err := o.customerRows(ctx)
	if err != nil {
		return viewmodel.ExecutiveRollup{}, fmt.Errorf("failed to list customers: %w", err)
	}

	items := make([]viewmodel.CustomerHealth, len(rows))

	var g errgroup.Group
	g.SetLimit(o.parallel)
	for i, row := range rows {
		i, row := i, row
		items[i].Customer = row
		g.Go(func() error {
			body, err := o.loaders.Health(ctx, row.ID)
			if err != nil {
				o.logger.Debug("rollup health unavailable",
					logger.String("customer", row.ID), logger.Error(err))
				return nil
			}
			h, err := viewmodel.HealthSummary(body)
			if err != nil {
				return nil
			}
			items[i].Health = &h
			return nil
		})
	}
	_ = g.Wait()

	return viewmodel.Rollup(items), nil
}

// Refresh drops the cached customer list and reloads activated views.
func (o *Overview) Refresh(ctx context.Context) error {
	o.loaders.InvalidateCustomers()

	var errs []error
	for _, v := range []*View{o.customers, o.rollup} {
		if !v.State().Activated {
			continue
		}
		if _, err := v.Reload(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// MarkStale makes the list and rollup fetch again on next activation.
func (o *Overview) MarkStale() {
	o.customers.MarkStale()
	o.rollup.MarkStale()
}

// States returns the state of both overview views.
func (o *Overview) States() map[string]ViewState {
	return map[string]ViewState{
		"customers": o.customers.State(),
		"rollup":    o.rollup.State(),
	}
}
