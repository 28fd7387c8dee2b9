package tablestate

import (
	"log/slog"

	"github.com/lucasriondel/use-persisting-state-for-react-table-sub001/pkg/metrics"
)

// defaultTracerName is the OpenTelemetry tracer used by tables.
const defaultTracerName = "tablestate"

type options struct {
	initial            InitialState
	persistence        Persistence
	automaticPageReset bool
	logger             *slog.Logger
	metrics            *metrics.Metrics
	tracerName         string
}

func defaultOptions() options {
	return options{
		automaticPageReset: true,
		logger:             slog.Default(),
		tracerName:         defaultTracerName,
	}
}

// Option configures a Table.
type Option func(*options)

// WithInitialState sets explicit initial values. Persisted values win over them.
func WithInitialState(initial InitialState) Option {
	return func(o *options) {
		o.initial = initial
	}
}

// WithPersistence replaces the whole persistence configuration.
func WithPersistence(p Persistence) Option {
	return func(o *options) {
		o.persistence = p
	}
}

// WithPagination sets the pagination targets and page size allow-list.
func WithPagination(c PaginationConfig) Option {
	return func(o *options) {
		o.persistence.Pagination = c
	}
}

// WithSorting sets the sorting target.
func WithSorting(t Target) Option {
	return func(o *options) {
		o.persistence.Sorting = t
	}
}

// WithColumnVisibility sets the column visibility target.
func WithColumnVisibility(t Target) Option {
	return func(o *options) {
		o.persistence.ColumnVisibility = t
	}
}

// WithGlobalFilter sets the global filter target.
func WithGlobalFilter(t Target) Option {
	return func(o *options) {
		o.persistence.GlobalFilter = t
	}
}

// WithRowSelection sets the row selection target.
func WithRowSelection(t Target) Option {
	return func(o *options) {
		o.persistence.RowSelection = t
	}
}

// WithOptimisticAsync applies persisted values of loading filter columns
// before their options arrive.
func WithOptimisticAsync(enabled bool) Option {
	return func(o *options) {
		o.persistence.Filters.OptimisticAsync = enabled
	}
}

// WithAutomaticPageReset controls whether filter and global filter changes
// reset the page index to 0. Enabled by default.
func WithAutomaticPageReset(enabled bool) Option {
	return func(o *options) {
		o.automaticPageReset = enabled
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics records resolutions, fallbacks and handler latency on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithTracerName sets the OpenTelemetry tracer name (default: "tablestate").
func WithTracerName(name string) Option {
	return func(o *options) {
		o.tracerName = name
	}
}
