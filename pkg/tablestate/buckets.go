package tablestate

import (
	"context"
	"log/slog"
	"net/url"

	"github.com/lucasriondel/use-persisting-state-for-react-table-sub001/pkg/bucket"
	"github.com/lucasriondel/use-persisting-state-for-react-table-sub001/pkg/localbucket"
	"github.com/lucasriondel/use-persisting-state-for-react-table-sub001/pkg/metrics"
	"github.com/lucasriondel/use-persisting-state-for-react-table-sub001/pkg/urlbucket"
)

// DefaultLocalStorageKey is the local blob key used when none is configured.
const DefaultLocalStorageKey = "tableState"

// BucketsConfig describes the two buckets of one table.
type BucketsConfig struct {
	// Persistence supplies the URL namespace and the local blob key.
	Persistence Persistence

	// Backend stores the local blob. Defaults to an in-memory backend.
	Backend localbucket.Backend

	// Query hydrates the URL bucket.
	Query url.Values

	// URLOptions are passed to the URL bucket after the namespace.
	URLOptions []urlbucket.Option

	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Buckets are the stores of one table and the facade shared by its slices.
type Buckets struct {
	URL    *urlbucket.Store
	Local  *localbucket.Store
	Facade *bucket.Facade
}

// OpenBuckets creates both buckets, hydrates the URL bucket from
// cfg.Query and loads the local blob.
func OpenBuckets(ctx context.Context, cfg BucketsConfig) (*Buckets, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	urlOpts := append([]urlbucket.Option{urlbucket.WithNamespace(cfg.Persistence.URLNamespace)}, cfg.URLOptions...)
	u := urlbucket.New(urlOpts...)
	u.Hydrate(cfg.Query)

	key := cfg.Persistence.LocalStorageKey
	if key == "" {
		key = DefaultLocalStorageKey
	}
	l := localbucket.New(key, cfg.Backend, localbucket.WithLogger(logger))
	if err := l.Load(ctx); err != nil {
		return nil, err
	}

	return &Buckets{
		URL:   u,
		Local: l,
		Facade: bucket.NewFacade(u, l,
			bucket.WithLogger(logger),
			bucket.WithMetrics(cfg.Metrics)),
	}, nil
}
