package bucket

import (
	"fmt"
	"log/slog"

	tserrors "github.com/lucasriondel/use-persisting-state-for-react-table-sub001/internal/errors"
	"github.com/lucasriondel/use-persisting-state-for-react-table-sub001/pkg/metrics"
)

// Facade routes reads and writes to the URL or local bucket of one table.
// It is constructed once per table and shared by reference.
type Facade struct {
	url     Store
	local   Store
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// FacadeOption configures a Facade.
type FacadeOption func(*Facade)

// WithLogger sets the logger used for write tracing.
func WithLogger(logger *slog.Logger) FacadeOption {
	return func(f *Facade) {
		f.logger = logger
	}
}

// WithMetrics records bucket writes on m.
func WithMetrics(m *metrics.Metrics) FacadeOption {
	return func(f *Facade) {
		f.metrics = m
	}
}

// NewFacade creates a facade over the URL and local stores.
// A nil store is replaced with an empty MemoryStore.
func NewFacade(url, local Store, opts ...FacadeOption) *Facade {
	if url == nil {
		url = NewMemoryStore(nil)
	}
	if local == nil {
		local = NewMemoryStore(nil)
	}
	f := &Facade{
		url:    url,
		local:  local,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Store returns the underlying store for kind, or nil for an unknown kind.
func (f *Facade) Store(kind Kind) Store {
	switch kind {
	case URL:
		return f.url
	case Local:
		return f.local
	default:
		return nil
	}
}

// RegisterCodec forwards a per-key codec to the URL store when it supports codecs.
func (f *Facade) RegisterCodec(key string, codec *Codec) {
	if !codec.Valid() {
		return
	}
	if r, ok := f.url.(CodecRegistrar); ok {
		r.RegisterCodec(key, codec)
	}
}

// Codec returns the codec registered for key on the URL store, if any.
func (f *Facade) Codec(key string) *Codec {
	if l, ok := f.url.(interface{ Codec(string) *Codec }); ok {
		return l.Codec(key)
	}
	return nil
}

// ReadAll returns every key of the selected bucket.
func (f *Facade) ReadAll(kind Kind) map[string]any {
	s := f.Store(kind)
	if s == nil {
		return map[string]any{}
	}
	return s.ReadAll()
}

// Get returns the value stored under key in the selected bucket.
func (f *Facade) Get(kind Kind, key string) (any, bool) {
	s := f.Store(kind)
	if s == nil {
		return nil, false
	}
	return s.Get(key)
}

// Patch merges partial into the selected bucket. An empty patch is a no-op.
func (f *Facade) Patch(kind Kind, partial map[string]any) error {
	if len(partial) == 0 {
		return nil
	}
	s, err := f.writable(kind)
	if err != nil {
		return err
	}
	err = s.Patch(partial)
	f.record(kind, "patch", len(partial), err)
	if err != nil {
		return fmt.Errorf("bucket %s: patch: %w", kind, err)
	}
	return nil
}

// Remove deletes keys from the selected bucket. No keys is a no-op.
func (f *Facade) Remove(kind Kind, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	s, err := f.writable(kind)
	if err != nil {
		return err
	}
	err = s.Remove(keys...)
	f.record(kind, "remove", len(keys), err)
	if err != nil {
		return fmt.Errorf("bucket %s: remove: %w", kind, err)
	}
	return nil
}

// Clear deletes every key of the selected bucket.
func (f *Facade) Clear(kind Kind) error {
	s, err := f.writable(kind)
	if err != nil {
		return err
	}
	err = s.Clear()
	f.record(kind, "clear", 0, err)
	if err != nil {
		return fmt.Errorf("bucket %s: clear: %w", kind, err)
	}
	return nil
}

func (f *Facade) writable(kind Kind) (Store, error) {
	s := f.Store(kind)
	if s == nil {
		return nil, tserrors.New("TS103").WithDetail(fmt.Sprintf("got %s", kind))
	}
	return s, nil
}

func (f *Facade) record(kind Kind, op string, keys int, err error) {
	f.metrics.RecordWrite(kind.String(), op, err)
	if err != nil {
		f.logger.Warn("bucket write failed",
			slog.String("bucket", kind.String()),
			slog.String("op", op),
			slog.Any("error", err))
		return
	}
	f.logger.Debug("bucket write",
		slog.String("bucket", kind.String()),
		slog.String("op", op),
		slog.Int("keys", keys))
}
