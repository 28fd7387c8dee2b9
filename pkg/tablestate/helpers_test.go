package tablestate

import (
	"errors"

	"github.com/lucasriondel/use-persisting-state-for-react-table-sub001/pkg/bucket"
)

var errBoom = errors.New("quota exceeded")

// brokenStore accepts reads but rejects every write.
type brokenStore struct {
	*bucket.MemoryStore
}

func (s brokenStore) Set(string, any) error      { return errBoom }
func (s brokenStore) Patch(map[string]any) error { return errBoom }
func (s brokenStore) Remove(...string) error     { return errBoom }
func (s brokenStore) Clear() error               { return errBoom }

func newFacade(url, local map[string]any) *bucket.Facade {
	return bucket.NewFacade(bucket.NewMemoryStore(url), bucket.NewMemoryStore(local))
}

func statusColumn(storage Storage, loading *bool, options ...string) Column {
	opts := make([]FilterOption, 0, len(options))
	for _, o := range options {
		opts = append(opts, FilterOption{Value: o, Label: o})
	}
	return Column{
		ID: "status",
		Filter: &FilterMeta{
			Variant:            VariantSelect,
			PersistenceStorage: storage,
			Options:            opts,
			IsLoading:          loading,
		},
	}
}

func textColumn(id string, storage Storage) Column {
	return Column{ID: id, Filter: &FilterMeta{Variant: VariantText, PersistenceStorage: storage}}
}
