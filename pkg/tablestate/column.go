package tablestate

import (
	"fmt"

	tserrors "github.com/lucasriondel/use-persisting-state-for-react-table-sub001/internal/errors"
	"github.com/lucasriondel/use-persisting-state-for-react-table-sub001/pkg/bucket"
)

// Variant is the discriminant of a column filter declaration.
type Variant string

const (
	VariantText        Variant = "text"
	VariantNumber      Variant = "number"
	VariantDate        Variant = "date"
	VariantSelect      Variant = "select"
	VariantMultiSelect Variant = "multiSelect"
	VariantNumberRange Variant = "numberRange"
	VariantDateRange   Variant = "dateRange"
)

// Validate reports an unknown variant.
func (v Variant) Validate() error {
	switch v {
	case VariantText, VariantNumber, VariantDate, VariantSelect,
		VariantMultiSelect, VariantNumberRange, VariantDateRange:
		return nil
	default:
		return tserrors.New("TS121").WithDetail(fmt.Sprintf("got %q", string(v)))
	}
}

// hasOptions reports whether the variant selects from an option set.
func (v Variant) hasOptions() bool {
	return v == VariantSelect || v == VariantMultiSelect
}

// FilterOption is one selectable value of a select or multiSelect filter.
type FilterOption struct {
	Value any    `json:"value"`
	Label string `json:"label,omitempty"`
}

// FilterMeta declares how a column is filtered and where its filter persists.
//
// IsLoading is nil for static option sets. A non-nil IsLoading marks the
// option set as loaded asynchronously: true while loading, false once Options
// is final.
type FilterMeta struct {
	Variant            Variant        `json:"variant"`
	PersistenceStorage Storage        `json:"persistenceStorage,omitempty"`
	Key                string         `json:"key,omitempty"`
	Codec              *bucket.Codec  `json:"-"`
	Options            []FilterOption `json:"options,omitempty"`
	IsLoading          *bool          `json:"isLoading,omitempty"`
}

// Column is a node of the column tree. Group columns have Columns; leaves
// may declare a Filter.
type Column struct {
	ID      string      `json:"id"`
	Header  string      `json:"header,omitempty"`
	Columns []Column    `json:"columns,omitempty"`
	Filter  *FilterMeta `json:"filter,omitempty"`
}

// Loading returns a pointer to b, for FilterMeta.IsLoading.
func Loading(b bool) *bool {
	return &b
}

// filterTarget returns where the column's filter persists. Filters persist
// only when the column declares a storage.
func (c Column) filterTarget() target {
	if c.Filter == nil {
		return target{}
	}
	return Target{Storage: c.Filter.PersistenceStorage, Key: c.Filter.Key}.resolve(StorageNone, c.ID)
}

// FlattenColumns expands group columns to their leaves, depth first.
func FlattenColumns(columns []Column) []Column {
	var leaves []Column
	var walk func([]Column)
	walk = func(cols []Column) {
		for _, c := range cols {
			if len(c.Columns) > 0 {
				walk(c.Columns)
				continue
			}
			leaves = append(leaves, c)
		}
	}
	walk(columns)
	return leaves
}

// validateColumns checks leaf ids and filter declarations.
func validateColumns(leaves []Column) error {
	seen := make(map[string]bool, len(leaves))
	for _, c := range leaves {
		if seen[c.ID] {
			return tserrors.New("TS102").WithDetail(fmt.Sprintf("column %q", c.ID))
		}
		seen[c.ID] = true
		if c.Filter == nil {
			continue
		}
		if err := c.Filter.Variant.Validate(); err != nil {
			return fmt.Errorf("column %q: %w", c.ID, err)
		}
		if err := c.Filter.PersistenceStorage.Validate(); err != nil {
			return fmt.Errorf("column %q: %w", c.ID, err)
		}
	}
	return nil
}

// leafByID indexes leaves by id.
func leafByID(leaves []Column) map[string]Column {
	out := make(map[string]Column, len(leaves))
	for _, c := range leaves {
		out[c.ID] = c
	}
	return out
}
