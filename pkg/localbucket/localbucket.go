// Package localbucket provides the persistent local bucket of a table.
//
// The bucket is a single JSON object stored under one blob key (the table's
// localStorageKey), shaped as map[sliceKeyOrFilterKey]value. The Store keeps
// the decoded object in memory and writes it through a Backend on every
// mutation, so storage failures surface at the call that caused them.
//
// Example:
//
//	store := localbucket.New("orders-table", localbucket.NewFileBackend("./state"))
//	if err := store.Load(ctx); err != nil {
//	    return err
//	}
//	store.Set("columnVisibility", map[string]any{"email": false})
package localbucket

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/lucasriondel/use-persisting-state-for-react-table-sub001/pkg/bucket"
)

// DefaultTimeout bounds each backend call made by a write.
const DefaultTimeout = 5 * time.Second

// Backend persists blobs by key.
type Backend interface {
	// Load returns the blob stored under key, or nil when there is none.
	Load(ctx context.Context, key string) ([]byte, error)

	// Save stores data under key.
	Save(ctx context.Context, key string, data []byte) error

	// Delete removes the blob stored under key. Deleting a missing blob is not an error.
	Delete(ctx context.Context, key string) error
}

// Watcher is implemented by backends that report external changes.
type Watcher interface {
	// Watch calls fn whenever the blob under key changes, until ctx is done.
	Watch(ctx context.Context, key string, fn func()) error
}

// Option is a functional option for configuring the store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithTimeout bounds each backend call made by a write.
func WithTimeout(d time.Duration) Option {
	return func(s *Store) {
		s.timeout = d
	}
}

// Store is the local bucket. It implements bucket.Store.
type Store struct {
	key     string
	backend Backend
	logger  *slog.Logger
	timeout time.Duration

	mu     sync.RWMutex
	values map[string]any
}

var _ bucket.Store = (*Store)(nil)

// New creates an empty store for the blob key. Call Load to read the
// persisted blob.
func New(key string, backend Backend, opts ...Option) *Store {
	if backend == nil {
		backend = NewMemoryBackend()
	}
	s := &Store{
		key:     key,
		backend: backend,
		logger:  slog.Default(),
		timeout: DefaultTimeout,
		values:  make(map[string]any),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Key returns the blob key.
func (s *Store) Key() string {
	return s.key
}

// Load replaces the in-memory contents with the persisted blob.
// A malformed blob is logged and treated as empty; backend errors are returned.
func (s *Store) Load(ctx context.Context) error {
	data, err := s.backend.Load(ctx, s.key)
	if err != nil {
		return fmt.Errorf("localbucket: load %q: %w", s.key, err)
	}

	values := make(map[string]any)
	if len(data) > 0 {
		if err := json.Unmarshal(data, &values); err != nil {
			s.logger.Warn("ignoring malformed local bucket",
				slog.String("key", s.key),
				slog.Any("error", err))
			values = make(map[string]any)
		}
	}

	s.mu.Lock()
	s.values = values
	s.mu.Unlock()
	return nil
}

// Watch reloads the store whenever the backend reports an external change
// and then calls onChange. It returns immediately when the backend cannot
// watch.
func (s *Store) Watch(ctx context.Context, onChange func()) error {
	w, ok := s.backend.(Watcher)
	if !ok {
		return nil
	}
	return w.Watch(ctx, s.key, func() {
		if err := s.Load(ctx); err != nil {
			s.logger.Warn("local bucket reload failed",
				slog.String("key", s.key),
				slog.Any("error", err))
			return
		}
		if onChange != nil {
			onChange()
		}
	})
}

// ReadAll implements bucket.Store.
func (s *Store) ReadAll() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.values)
}

// Get implements bucket.Store.
func (s *Store) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

// Set implements bucket.Store.
func (s *Store) Set(key string, value any) error {
	return s.Patch(map[string]any{key: value})
}

// Patch implements bucket.Store.
func (s *Store) Patch(partial map[string]any) error {
	return s.mutate(func(values map[string]any) {
		maps.Copy(values, partial)
	})
}

// Remove implements bucket.Store.
func (s *Store) Remove(keys ...string) error {
	return s.mutate(func(values map[string]any) {
		for _, k := range keys {
			delete(values, k)
		}
	})
}

// Clear implements bucket.Store.
func (s *Store) Clear() error {
	return s.mutate(func(values map[string]any) {
		clear(values)
	})
}

// mutate applies fn to a copy and commits it only after the backend accepted
// the new blob. An emptied bucket deletes the blob.
func (s *Store) mutate(fn func(map[string]any)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := maps.Clone(s.values)
	if next == nil {
		next = make(map[string]any)
	}
	fn(next)

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if len(next) == 0 {
		if err := s.backend.Delete(ctx, s.key); err != nil {
			return fmt.Errorf("localbucket: delete %q: %w", s.key, err)
		}
	} else {
		data, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("localbucket: encode %q: %w", s.key, err)
		}
		if err := s.backend.Save(ctx, s.key, data); err != nil {
			return fmt.Errorf("localbucket: save %q: %w", s.key, err)
		}
	}

	s.values = next
	return nil
}
