package tablestate

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/lucasriondel/use-persisting-state-for-react-table-sub001/pkg/bucket"
	"github.com/lucasriondel/use-persisting-state-for-react-table-sub001/pkg/metrics"
)

// Handlers is the change surface handed to the table renderer.
type Handlers struct {
	OnPaginationChange       func(Updater[PaginationState]) error
	OnSortingChange          func(Updater[SortingState]) error
	OnColumnFiltersChange    func(Updater[ColumnFiltersState]) error
	OnColumnVisibilityChange func(Updater[ColumnVisibilityState]) error
	OnGlobalFilterChange     func(Updater[string]) error
	OnRowSelectionChange     func(Updater[RowSelectionState]) error

	// ResetPagination moves to page 0 and keeps the page size.
	ResetPagination func() error

	// HasFinishedProcessingAsyncFilters reports whether no filter column
	// is loading its options at the time of the call.
	HasFinishedProcessingAsyncFilters func() bool
}

// Table is the persisted state of one table instance. It resolves the six
// state slices from the buckets once, then routes every change back to them.
// A Table is safe for concurrent use.
type Table struct {
	mu sync.Mutex

	facade    *bucket.Facade
	leaves    []Column
	opts      options
	state     State
	readiness *Readiness

	// held keeps the values of loading columns excluded from the live
	// filters until their options arrive.
	held map[string]any

	initialPersisted bool

	listeners    map[int]func(State)
	nextListener int

	tracer  trace.Tracer
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// New resolves the initial state of a table from facade and writes explicit
// initial values into buckets that hold nothing for them yet.
//
// A nil facade is replaced with one over two in-memory stores.
func New(ctx context.Context, facade *bucket.Facade, columns []Column, opts ...Option) (*Table, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if facade == nil {
		facade = bucket.NewFacade(nil, nil)
	}

	if err := Validate(columns, o.persistence); err != nil {
		return nil, err
	}
	leaves := FlattenColumns(columns)

	t := &Table{
		facade:    facade,
		leaves:    leaves,
		opts:      o,
		readiness: NewReadiness(leaves),
		held:      map[string]any{},
		listeners: map[int]func(State){},
		tracer:    otel.Tracer(o.tracerName),
		logger:    o.logger,
		metrics:   o.metrics,
	}

	_, span := t.tracer.Start(ctx, "tablestate.New",
		trace.WithAttributes(
			attribute.Int("tablestate.columns", len(leaves)),
			attribute.Bool("tablestate.optimistic_async", o.persistence.Filters.OptimisticAsync),
		))
	defer span.End()

	t.registerCodecs(leaves)
	t.resolveLocked()
	if err := t.persistInitialLocked(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.StringSlice("tablestate.pending", t.readiness.Pending()))
	return t, nil
}

// State returns a copy of the live state.
func (t *Table) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state.clone()
}

// Columns returns the current leaf columns.
func (t *Table) Columns() []Column {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Column(nil), t.leaves...)
}

// Persistence returns the persistence configuration of the table.
func (t *Table) Persistence() Persistence {
	return t.opts.persistence
}

// PendingFilters returns the filter columns whose options are loading.
func (t *Table) PendingFilters() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.readiness.Pending()
}

// HasFinishedProcessingAsyncFilters reports whether no filter column is loading.
func (t *Table) HasFinishedProcessingAsyncFilters() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.readiness.Finished()
}

// Handlers returns the change functions bound to ctx.
func (t *Table) Handlers(ctx context.Context) Handlers {
	return Handlers{
		OnPaginationChange: func(u Updater[PaginationState]) error {
			return t.SetPagination(ctx, u)
		},
		OnSortingChange: func(u Updater[SortingState]) error {
			return t.SetSorting(ctx, u)
		},
		OnColumnFiltersChange: func(u Updater[ColumnFiltersState]) error {
			return t.SetColumnFilters(ctx, u)
		},
		OnColumnVisibilityChange: func(u Updater[ColumnVisibilityState]) error {
			return t.SetColumnVisibility(ctx, u)
		},
		OnGlobalFilterChange: func(u Updater[string]) error {
			return t.SetGlobalFilter(ctx, u)
		},
		OnRowSelectionChange: func(u Updater[RowSelectionState]) error {
			return t.SetRowSelection(ctx, u)
		},
		ResetPagination: func() error {
			return t.ResetPagination(ctx)
		},
		HasFinishedProcessingAsyncFilters: t.HasFinishedProcessingAsyncFilters,
	}
}

// SetPagination applies u to the live pagination and persists the result.
func (t *Table) SetPagination(ctx context.Context, u Updater[PaginationState]) error {
	return t.mutate(ctx, "pagination", func() error {
		cur := t.state.Pagination
		next, err := u.Resolve(&cur)
		if err != nil {
			return err
		}
		return t.setPaginationLocked(next)
	})
}

// ResetPagination moves to page 0 and keeps the page size.
func (t *Table) ResetPagination(ctx context.Context) error {
	return t.mutate(ctx, "pagination", t.resetPaginationLocked)
}

// SetSorting applies u to the live sorting and persists the result.
func (t *Table) SetSorting(ctx context.Context, u Updater[SortingState]) error {
	return t.mutate(ctx, "sorting", func() error {
		cur := t.state.Sorting
		next, err := u.Resolve(&cur)
		if err != nil {
			return err
		}
		if err := HandleSortingChange(t.facade, t.opts.persistence.Sorting, next); err != nil {
			return err
		}
		if next == nil {
			next = SortingState{}
		}
		t.state.Sorting = next
		return nil
	})
}

// SetColumnFilters applies u to the live filters and persists the changed
// columns, then resets the page index when automatic page reset is on.
func (t *Table) SetColumnFilters(ctx context.Context, u Updater[ColumnFiltersState]) error {
	return t.mutate(ctx, "columnFilters", func() error {
		cur := t.state.ColumnFilters
		next, err := u.Resolve(&cur)
		if err != nil {
			return err
		}
		next = next.dedupe()
		for id := range t.held {
			if next.Has(id) {
				delete(t.held, id)
			}
		}
		if err := persistColumnFilters(t.facade, t.leaves, next, t.held); err != nil {
			return err
		}
		t.state.ColumnFilters = next
		if t.opts.automaticPageReset {
			return t.resetPaginationLocked()
		}
		return nil
	})
}

// SetColumnVisibility applies u to the live visibility and persists the result.
func (t *Table) SetColumnVisibility(ctx context.Context, u Updater[ColumnVisibilityState]) error {
	return t.mutate(ctx, "columnVisibility", func() error {
		cur := t.state.ColumnVisibility
		next, err := u.Resolve(&cur)
		if err != nil {
			return err
		}
		if err := HandleColumnVisibilityChange(t.facade, t.opts.persistence.ColumnVisibility, next); err != nil {
			return err
		}
		if next == nil {
			next = ColumnVisibilityState{}
		}
		t.state.ColumnVisibility = next
		return nil
	})
}

// SetGlobalFilter applies u to the live global filter and persists the
// result, then resets the page index when automatic page reset is on.
func (t *Table) SetGlobalFilter(ctx context.Context, u Updater[string]) error {
	return t.mutate(ctx, "globalFilter", func() error {
		cur := t.state.GlobalFilter
		next, err := u.Resolve(&cur)
		if err != nil {
			return err
		}
		if err := HandleGlobalFilterChange(t.facade, t.opts.persistence.GlobalFilter, next); err != nil {
			return err
		}
		t.state.GlobalFilter = next
		if t.opts.automaticPageReset {
			return t.resetPaginationLocked()
		}
		return nil
	})
}

// SetRowSelection applies u to the live selection and persists its true subset.
func (t *Table) SetRowSelection(ctx context.Context, u Updater[RowSelectionState]) error {
	return t.mutate(ctx, "rowSelection", func() error {
		cur := t.state.RowSelection
		next, err := u.Resolve(&cur)
		if err != nil {
			return err
		}
		selected, err := HandleRowSelectionChange(t.facade, t.opts.persistence.RowSelection, next)
		if err != nil {
			return err
		}
		t.state.RowSelection = selected
		return nil
	})
}

// Sync re-resolves every slice from the buckets, for example after the host
// re-hydrated the URL bucket on history navigation. Initial values are not
// written again.
func (t *Table) Sync(ctx context.Context) error {
	return t.mutate(ctx, "sync", func() error {
		t.resolveLocked()
		return nil
	})
}

// ClearPersisted removes every key of one bucket and re-resolves the state.
func (t *Table) ClearPersisted(ctx context.Context, kind bucket.Kind) error {
	return t.mutate(ctx, "clear", func() error {
		if err := t.facade.Clear(kind); err != nil {
			return err
		}
		t.resolveLocked()
		return nil
	})
}

// Subscribe registers fn to receive a snapshot after every successful change.
// The returned function unregisters it.
func (t *Table) Subscribe(fn func(State)) func() {
	t.mu.Lock()
	id := t.nextListener
	t.nextListener++
	t.listeners[id] = fn
	t.mu.Unlock()

	return func() {
		t.mu.Lock()
		delete(t.listeners, id)
		t.mu.Unlock()
	}
}

// mutate runs fn under the lock inside a span, then notifies listeners
// outside the lock. Live state is only changed by fn after its writes succeed.
func (t *Table) mutate(ctx context.Context, slice string, fn func() error) error {
	_, span := t.tracer.Start(ctx, fmt.Sprintf("tablestate.%s", slice),
		trace.WithAttributes(attribute.String("tablestate.slice", slice)))
	defer span.End()

	start := time.Now()
	t.mu.Lock()
	before := t.state.clone()
	err := fn()
	snapshot := t.state.clone()
	listeners := make([]func(State), 0, len(t.listeners))
	for _, l := range t.listeners {
		listeners = append(listeners, l)
	}
	t.mu.Unlock()
	t.metrics.ObserveHandler(slice, time.Since(start))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		t.logger.Warn("table state change failed",
			slog.String("slice", slice),
			slog.Any("error", err))
		return err
	}
	if reflect.DeepEqual(before, snapshot) {
		return nil
	}
	for _, l := range listeners {
		l(snapshot)
	}
	return nil
}

func (t *Table) setPaginationLocked(next PaginationState) error {
	written, err := HandlePaginationChange(t.facade, t.opts.persistence.Pagination, next)
	if err != nil {
		return err
	}
	t.state.Pagination = written
	return nil
}

func (t *Table) resetPaginationLocked() error {
	return t.setPaginationLocked(PaginationState{PageIndex: 0, PageSize: t.state.Pagination.PageSize})
}

// resolveLocked recomputes every slice from the buckets.
func (t *Table) resolveLocked() {
	in := t.opts.initial
	p := t.opts.persistence
	var s State
	var res resolution

	s.Pagination, res = resolvePagination(t.facade, p.Pagination, in.Pagination)
	t.observe("pagination", res)
	s.Sorting, res = resolveSorting(t.facade, p.Sorting, in.Sorting)
	t.observe("sorting", res)
	s.ColumnVisibility, res = resolveColumnVisibility(t.facade, p.ColumnVisibility, in.ColumnVisibility)
	t.observe("columnVisibility", res)
	s.GlobalFilter, res = resolveGlobalFilter(t.facade, p.GlobalFilter, in.GlobalFilter)
	t.observe("globalFilter", res)
	s.RowSelection, res = resolveRowSelection(t.facade, p.RowSelection, in.RowSelection)
	t.observe("rowSelection", res)

	fr := resolveColumnFilters(t.facade, t.leaves, in.ColumnFilters, p.Filters.OptimisticAsync)
	s.ColumnFilters = fr.filters
	t.observe("columnFilters", fr.res)

	t.held = map[string]any{}
	if !p.Filters.OptimisticAsync {
		for id, v := range fr.pending {
			t.held[id] = v
		}
	}
	t.state = s
}

func (t *Table) observe(slice string, res resolution) {
	t.metrics.RecordResolve(slice, string(res.source))
	if res.malformed {
		t.metrics.RecordFallback(slice)
		t.logger.Debug("ignoring malformed persisted value",
			slog.String("slice", slice),
			slog.String("source", string(res.source)))
	}
}

// persistInitialLocked writes explicit initial values into empty keys.
// It runs once per Table.
func (t *Table) persistInitialLocked() error {
	if t.initialPersisted {
		return nil
	}
	t.initialPersisted = true

	in := t.opts.initial
	p := t.opts.persistence
	steps := []func() error{
		func() error { return persistInitialPagination(t.facade, p.Pagination, in.Pagination) },
		func() error { return persistInitialSorting(t.facade, p.Sorting, in.Sorting) },
		func() error { return persistInitialColumnFilters(t.facade, t.leaves, in.ColumnFilters) },
		func() error { return persistInitialColumnVisibility(t.facade, p.ColumnVisibility, in.ColumnVisibility) },
		func() error { return persistInitialGlobalFilter(t.facade, p.GlobalFilter, in.GlobalFilter) },
		func() error { return persistInitialRowSelection(t.facade, p.RowSelection, in.RowSelection) },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
	}
	return nil
}

// registerCodecs forwards column codecs to the URL store.
func (t *Table) registerCodecs(leaves []Column) {
	for _, col := range leaves {
		tgt := col.filterTarget()
		if tgt.enabled && tgt.kind == bucket.URL && col.Filter.Codec.Valid() {
			t.facade.RegisterCodec(tgt.key, col.Filter.Codec)
		}
	}
}
