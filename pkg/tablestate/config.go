package tablestate

import (
	"fmt"

	tserrors "github.com/lucasriondel/use-persisting-state-for-react-table-sub001/internal/errors"
	"github.com/lucasriondel/use-persisting-state-for-react-table-sub001/pkg/bucket"
)

// Storage names the bucket a slice persists to.
type Storage string

const (
	// StorageDefault selects the slice's default storage.
	StorageDefault Storage = ""

	// StorageURL persists to the query-string bucket.
	StorageURL Storage = "url"

	// StorageLocal persists to the local bucket.
	StorageLocal Storage = "localStorage"

	// StorageNone disables persistence for the slice.
	StorageNone Storage = "none"
)

// Validate reports an unknown storage name.
func (s Storage) Validate() error {
	switch s {
	case StorageDefault, StorageURL, StorageLocal, StorageNone:
		return nil
	default:
		return tserrors.New("TS104").WithDetail(fmt.Sprintf("got %q", string(s)))
	}
}

// Target declares where one slice (or one field of a composite slice) persists.
type Target struct {
	Storage Storage `json:"persistenceStorage,omitempty"`
	Key     string  `json:"key,omitempty"`
}

// PaginationConfig declares independent targets for pageIndex and pageSize.
type PaginationConfig struct {
	PageIndex Target `json:"pageIndex"`
	PageSize  Target `json:"pageSize"`

	// AllowedPageSizes, when set, restricts resolved and persisted page sizes.
	AllowedPageSizes []int `json:"allowedPageSizes,omitempty"`
}

// FiltersConfig configures column-filter reconciliation.
type FiltersConfig struct {
	// OptimisticAsync applies persisted values of loading columns immediately.
	OptimisticAsync bool `json:"optimisticAsync,omitempty"`
}

// Persistence is the per-slice persistence configuration of a table.
// Column filter targets are declared on the columns themselves.
type Persistence struct {
	URLNamespace     string           `json:"urlNamespace,omitempty"`
	LocalStorageKey  string           `json:"localStorageKey,omitempty"`
	Pagination       PaginationConfig `json:"pagination"`
	Sorting          Target           `json:"sorting"`
	ColumnVisibility Target           `json:"columnVisibility"`
	GlobalFilter     Target           `json:"globalFilter"`
	RowSelection     Target           `json:"rowSelection"`
	Filters          FiltersConfig    `json:"filters"`
}

// Default keys per slice.
const (
	KeyPageIndex        = "pageIndex"
	KeyPageSize         = "pageSize"
	KeySorting          = "sorting"
	KeyColumnVisibility = "columnVisibility"
	KeyGlobalFilter     = "globalFilter"
	KeyRowSelection     = "rowSelection"
)

// target is a Target with defaults applied.
type target struct {
	enabled bool
	kind    bucket.Kind
	key     string
}

func (t Target) resolve(def Storage, defKey string) target {
	storage := t.Storage
	if storage == StorageDefault {
		storage = def
	}
	key := t.Key
	if key == "" {
		key = defKey
	}
	switch storage {
	case StorageURL:
		return target{enabled: true, kind: bucket.URL, key: key}
	case StorageLocal:
		return target{enabled: true, kind: bucket.Local, key: key}
	default:
		return target{}
	}
}

func (c PaginationConfig) pageIndexTarget() target {
	return c.PageIndex.resolve(StorageURL, KeyPageIndex)
}

func (c PaginationConfig) pageSizeTarget() target {
	return c.PageSize.resolve(StorageURL, KeyPageSize)
}

func sortingTarget(t Target) target          { return t.resolve(StorageURL, KeySorting) }
func columnVisibilityTarget(t Target) target { return t.resolve(StorageLocal, KeyColumnVisibility) }
func globalFilterTarget(t Target) target     { return t.resolve(StorageURL, KeyGlobalFilter) }
func rowSelectionTarget(t Target) target     { return t.resolve(StorageLocal, KeyRowSelection) }

// validate checks storage names, the page size allow-list and key ownership.
// No two slices may persist under the same key of the same bucket.
func (p Persistence) validate(leaves []Column) error {
	for _, s := range []Storage{
		p.Pagination.PageIndex.Storage, p.Pagination.PageSize.Storage,
		p.Sorting.Storage, p.ColumnVisibility.Storage,
		p.GlobalFilter.Storage, p.RowSelection.Storage,
	} {
		if err := s.Validate(); err != nil {
			return err
		}
	}
	for _, size := range p.Pagination.AllowedPageSizes {
		if size <= 0 {
			return tserrors.New("TS122").WithDetail(fmt.Sprintf("got %d", size))
		}
	}

	owners := map[bucket.Kind]map[string]string{}
	claim := func(owner string, t target) error {
		if !t.enabled {
			return nil
		}
		if owners[t.kind] == nil {
			owners[t.kind] = map[string]string{}
		}
		if prev, ok := owners[t.kind][t.key]; ok {
			return tserrors.New("TS105").WithDetail(fmt.Sprintf("%s and %s both persist %q in the %s bucket", prev, owner, t.key, t.kind))
		}
		owners[t.kind][t.key] = owner
		return nil
	}

	slices := []struct {
		owner string
		t     target
	}{
		{"pagination.pageIndex", p.Pagination.pageIndexTarget()},
		{"pagination.pageSize", p.Pagination.pageSizeTarget()},
		{"sorting", sortingTarget(p.Sorting)},
		{"columnVisibility", columnVisibilityTarget(p.ColumnVisibility)},
		{"globalFilter", globalFilterTarget(p.GlobalFilter)},
		{"rowSelection", rowSelectionTarget(p.RowSelection)},
	}
	for _, s := range slices {
		if err := claim(s.owner, s.t); err != nil {
			return err
		}
	}
	for _, col := range leaves {
		if col.Filter == nil {
			continue
		}
		if err := claim("filter "+col.ID, col.filterTarget()); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks column declarations and persistence settings the same
// way New does, without building a table.
func Validate(columns []Column, p Persistence) error {
	leaves := FlattenColumns(columns)
	if err := validateColumns(leaves); err != nil {
		return err
	}
	return p.validate(leaves)
}
