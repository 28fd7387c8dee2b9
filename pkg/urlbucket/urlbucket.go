// Package urlbucket provides the query-string bucket of a table.
//
// The store keeps decoded values in memory and renders them as query
// parameters named "<namespace>.<key>". Every write schedules a navigation
// through the configured NavigateFunc:
//   - Push/Replace history modes
//   - Debouncing to coalesce rapid writes into one history entry
//   - Per-key codecs for filter values with a custom URL form
//
// Values without a codec are written as JSON, except plain strings which are
// written verbatim whenever that is unambiguous:
//
//	?orders.pageIndex=3&orders.globalFilter=acme&orders.sorting=[{"id":"name","desc":true}]
//
// Example:
//
//	store := urlbucket.New(
//	    urlbucket.WithNamespace("orders"),
//	    urlbucket.Replace,
//	    urlbucket.Debounce(300*time.Millisecond),
//	    urlbucket.WithNavigator(func(query string, mode urlbucket.Mode) {
//	        // push or replace the browser history entry
//	    }),
//	)
//	store.Hydrate(r.URL.Query())
package urlbucket

import (
	"encoding/json"
	"fmt"
	"maps"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/lucasriondel/use-persisting-state-for-react-table-sub001/pkg/bucket"
)

// Mode determines how URL updates are handled.
type Mode int

const (
	// ModePush adds a new history entry (default behavior).
	ModePush Mode = iota

	// ModeReplace replaces the current history entry (no back button spam).
	ModeReplace
)

// String returns "push" or "replace".
func (m Mode) String() string {
	if m == ModeReplace {
		return "replace"
	}
	return "push"
}

// NavigateFunc receives the encoded query string after a write.
type NavigateFunc func(query string, mode Mode)

// Option is a functional option for configuring the store.
type Option interface {
	apply(*config)
}

type config struct {
	namespace string
	mode      Mode
	debounce  time.Duration
	navigate  NavigateFunc
}

// Mode options as values (not functions) to mirror the option set of a param.
var (
	// Push creates a new history entry (default behavior).
	Push Option = modeOption{mode: ModePush}

	// Replace updates the URL without creating a history entry.
	Replace Option = modeOption{mode: ModeReplace}
)

type modeOption struct {
	mode Mode
}

func (o modeOption) apply(c *config) {
	c.mode = o.mode
}

type debounceOption struct {
	d time.Duration
}

func (o debounceOption) apply(c *config) {
	c.debounce = o.d
}

// Debounce delays navigation by the specified duration so that rapid writes
// produce a single history update.
func Debounce(d time.Duration) Option {
	return debounceOption{d: d}
}

type namespaceOption struct {
	ns string
}

func (o namespaceOption) apply(c *config) {
	c.namespace = o.ns
}

// WithNamespace prefixes every key as "<namespace>.<key>".
func WithNamespace(ns string) Option {
	return namespaceOption{ns: ns}
}

type navigatorOption struct {
	fn NavigateFunc
}

func (o navigatorOption) apply(c *config) {
	c.navigate = o.fn
}

// WithNavigator sets the function that applies history updates.
func WithNavigator(fn NavigateFunc) Option {
	return navigatorOption{fn: fn}
}

// Store is the URL bucket. It implements bucket.Store and
// bucket.CodecRegistrar.
type Store struct {
	mu      sync.RWMutex
	values  map[string]any
	codecs  map[string]*bucket.Codec
	foreign url.Values
	config  config

	// Debounce timer
	timerMu sync.Mutex
	timer   *time.Timer
}

var (
	_ bucket.Store          = (*Store)(nil)
	_ bucket.CodecRegistrar = (*Store)(nil)
)

// New creates an empty URL bucket.
func New(opts ...Option) *Store {
	s := &Store{
		values:  make(map[string]any),
		codecs:  make(map[string]*bucket.Codec),
		foreign: url.Values{},
	}
	for _, opt := range opts {
		opt.apply(&s.config)
	}
	return s
}

// Namespace returns the key prefix, without the trailing dot.
func (s *Store) Namespace() string {
	return s.config.namespace
}

// Mode returns the configured history mode.
func (s *Store) Mode() Mode {
	return s.config.mode
}

// SetNavigator replaces the navigation function.
func (s *Store) SetNavigator(fn NavigateFunc) {
	s.mu.Lock()
	s.config.navigate = fn
	s.mu.Unlock()
}

// RegisterCodec applies codec to key on hydration and rendering.
// A raw value already stored under key is parsed immediately.
func (s *Store) RegisterCodec(key string, codec *bucket.Codec) {
	if !codec.Valid() {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codecs[key] = codec
	if raw, ok := s.values[key].(string); ok {
		if v, err := codec.Parse(raw); err == nil {
			s.values[key] = v
		}
	}
}

// Codec returns the codec registered for key.
func (s *Store) Codec(key string) *bucket.Codec {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.codecs[key]
}

// Hydrate replaces the bucket contents with the parameters of query that
// belong to this namespace. Other parameters are kept and re-emitted
// untouched by Query. Hydrate does not trigger navigation.
func (s *Store) Hydrate(query url.Values) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.values = make(map[string]any)
	s.foreign = url.Values{}
	for param, vals := range query {
		if len(vals) == 0 {
			continue
		}
		key, ok := s.stripNamespace(param)
		if !ok {
			s.foreign[param] = append([]string(nil), vals...)
			continue
		}
		raw := vals[len(vals)-1]
		if codec := s.codecs[key]; codec != nil {
			if v, err := codec.Parse(raw); err == nil {
				s.values[key] = v
				continue
			}
			// Keep the raw string; readers retry the codec.
			s.values[key] = raw
			continue
		}
		s.values[key] = DecodeValue(raw)
	}
}

// HydrateString parses a raw query string (with or without leading "?").
func (s *Store) HydrateString(raw string) error {
	q, err := url.ParseQuery(strings.TrimPrefix(raw, "?"))
	if err != nil {
		return fmt.Errorf("urlbucket: parse query: %w", err)
	}
	s.Hydrate(q)
	return nil
}

// Query renders the bucket, and any foreign parameters, as query values.
func (s *Store) Query() url.Values {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q := url.Values{}
	for k, vals := range s.foreign {
		q[k] = append([]string(nil), vals...)
	}
	for key, v := range s.values {
		raw, err := s.encode(key, v)
		if err != nil {
			continue
		}
		q.Set(s.withNamespace(key), raw)
	}
	return q
}

// Encode returns the rendered query string without a leading "?".
func (s *Store) Encode() string {
	return s.Query().Encode()
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

// Patch implements bucket.Store. A value the key's codec cannot serialize
// rejects the whole patch.
func (s *Store) Patch(partial map[string]any) error {
	s.mu.Lock()
	for key, v := range partial {
		if _, err := s.encode(key, v); err != nil {
			s.mu.Unlock()
			return fmt.Errorf("urlbucket: encode %q: %w", key, err)
		}
	}
	maps.Copy(s.values, partial)
	s.mu.Unlock()

	s.scheduleNavigation()
	return nil
}

// Remove implements bucket.Store.
func (s *Store) Remove(keys ...string) error {
	s.mu.Lock()
	for _, k := range keys {
		delete(s.values, k)
	}
	s.mu.Unlock()

	s.scheduleNavigation()
	return nil
}

// Clear implements bucket.Store.
func (s *Store) Clear() error {
	s.mu.Lock()
	clear(s.values)
	s.mu.Unlock()

	s.scheduleNavigation()
	return nil
}

// Flush performs a pending debounced navigation immediately.
func (s *Store) Flush() {
	s.timerMu.Lock()
	pending := s.timer != nil && s.timer.Stop()
	s.timer = nil
	s.timerMu.Unlock()

	if pending {
		s.performNavigation()
	}
}

// scheduleNavigation schedules a URL update, respecting debounce settings.
func (s *Store) scheduleNavigation() {
	if s.config.debounce > 0 {
		s.timerMu.Lock()
		defer s.timerMu.Unlock()

		if s.timer != nil {
			s.timer.Stop()
		}
		s.timer = time.AfterFunc(s.config.debounce, s.performNavigation)
		return
	}

	s.performNavigation()
}

// performNavigation renders the current contents, so coalesced writes are
// all reflected in one update.
func (s *Store) performNavigation() {
	s.mu.RLock()
	navigate := s.config.navigate
	mode := s.config.mode
	s.mu.RUnlock()

	if navigate == nil {
		return
	}
	navigate(s.Encode(), mode)
}

func (s *Store) encode(key string, v any) (string, error) {
	if codec := s.codecs[key]; codec != nil {
		if raw, ok := v.(string); ok {
			parsed, err := codec.Parse(raw)
			if err != nil {
				// Not in codec form yet; emit as received.
				return raw, nil
			}
			v = parsed
		}
		return codec.Serialize(v)
	}
	return EncodeValue(v)
}

func (s *Store) withNamespace(key string) string {
	if s.config.namespace == "" {
		return key
	}
	return s.config.namespace + "." + key
}

func (s *Store) stripNamespace(param string) (string, bool) {
	if s.config.namespace == "" {
		return param, true
	}
	prefix := s.config.namespace + "."
	if !strings.HasPrefix(param, prefix) || len(param) == len(prefix) {
		return "", false
	}
	return param[len(prefix):], true
}

// EncodeValue renders v in its query-string form. Strings are written
// verbatim unless DecodeValue would read them back as something else.
func EncodeValue(v any) (string, error) {
	if str, ok := v.(string); ok {
		if back, ok := DecodeValue(str).(string); ok && back == str {
			return str, nil
		}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// DecodeValue reads a query-string value: JSON when it parses, the raw
// string otherwise.
func DecodeValue(raw string) any {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return raw
	}
	return v
}
