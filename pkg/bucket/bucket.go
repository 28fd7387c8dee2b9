// Package bucket provides the shared bucket facade used by every table state
// slice.
//
// A table instance owns two flat key-value stores: a URL bucket backed by the
// query string and a local bucket backed by a persistent blob. Both are
// external collaborators reached through the Store contract. The Facade wraps
// the pair so that all slices of one table read and write through a single
// instance and observe the same snapshot.
//
// Example:
//
//	url := urlbucket.New(urlbucket.WithNamespace("orders"))
//	local := localbucket.New("orders-table", localbucket.NewMemoryBackend())
//	f := bucket.NewFacade(url, local)
//
//	f.Patch(bucket.URL, map[string]any{"pageIndex": 3})
//	raw, ok := f.Get(bucket.URL, "pageIndex")
package bucket

import (
	"fmt"
)

// Kind selects one of the two buckets of a table.
type Kind int

const (
	// URL is the query-string bucket.
	URL Kind = iota

	// Local is the persistent local bucket.
	Local
)

// String returns the bucket kind name used in logs and metrics.
func (k Kind) String() string {
	switch k {
	case URL:
		return "url"
	case Local:
		return "local"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Store is the key-value contract both bucket collaborators implement.
//
// Values are decoded Go values (string, float64, bool, []any, map[string]any
// or whatever a codec produced). Write errors are returned unmodified so that
// storage failures reach the host application.
type Store interface {
	// ReadAll returns a copy of every key in the bucket.
	ReadAll() map[string]any

	// Get returns the value stored under key.
	Get(key string) (any, bool)

	// Set stores a single value.
	Set(key string, value any) error

	// Patch merges partial into the bucket.
	Patch(partial map[string]any) error

	// Remove deletes keys from the bucket.
	Remove(keys ...string) error

	// Clear deletes every key from the bucket.
	Clear() error
}

// Codec converts a value to and from its query-string form.
type Codec struct {
	Parse     func(raw string) (any, error)
	Serialize func(value any) (string, error)
}

// Valid reports whether both directions are set.
func (c *Codec) Valid() bool {
	return c != nil && c.Parse != nil && c.Serialize != nil
}

// CodecRegistrar is implemented by stores that apply per-key codecs.
type CodecRegistrar interface {
	RegisterCodec(key string, codec *Codec)
}
