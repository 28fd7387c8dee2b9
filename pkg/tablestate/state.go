package tablestate

import (
	"maps"
	"slices"
)

// PaginationState is the current page of the table.
type PaginationState struct {
	PageIndex int `json:"pageIndex"`
	PageSize  int `json:"pageSize"`
}

// ColumnSort is one sort criterion. Desc is false for ascending order.
type ColumnSort struct {
	ID   string `json:"id"`
	Desc bool   `json:"desc"`
}

// SortingState lists sort criteria, primary sort first.
type SortingState []ColumnSort

// ColumnFilter is the filter value applied to one column. Value is a scalar,
// a two-element range tuple or an array, depending on the column's variant.
type ColumnFilter struct {
	ID    string `json:"id"`
	Value any    `json:"value"`
}

// ColumnFiltersState holds at most one filter per column.
type ColumnFiltersState []ColumnFilter

// ColumnVisibilityState maps column ids to visibility. Absent means visible.
type ColumnVisibilityState map[string]bool

// RowSelectionState maps row ids to selection. Only true entries matter.
type RowSelectionState map[string]bool

// State is the reconciled snapshot handed to the table renderer.
type State struct {
	Pagination       PaginationState       `json:"pagination"`
	Sorting          SortingState          `json:"sorting"`
	ColumnFilters    ColumnFiltersState    `json:"columnFilters"`
	ColumnVisibility ColumnVisibilityState `json:"columnVisibility"`
	GlobalFilter     string                `json:"globalFilter"`
	RowSelection     RowSelectionState     `json:"rowSelection"`
}

// InitialState carries explicit initial values. A nil field means the caller
// supplied no initial value for that slice.
type InitialState struct {
	Pagination       *PaginationState      `json:"pagination,omitempty"`
	Sorting          SortingState          `json:"sorting,omitempty"`
	ColumnFilters    ColumnFiltersState    `json:"columnFilters,omitempty"`
	ColumnVisibility ColumnVisibilityState `json:"columnVisibility,omitempty"`
	GlobalFilter     *string               `json:"globalFilter,omitempty"`
	RowSelection     RowSelectionState     `json:"rowSelection,omitempty"`
}

// Hard defaults used when neither the buckets nor the initial state supply a value.
const (
	DefaultPageIndex = 0
	DefaultPageSize  = 10
)

// DefaultPagination returns {pageIndex: 0, pageSize: 10}.
func DefaultPagination() PaginationState {
	return PaginationState{PageIndex: DefaultPageIndex, PageSize: DefaultPageSize}
}

// Get returns the filter value for id.
func (s ColumnFiltersState) Get(id string) (any, bool) {
	for _, f := range s {
		if f.ID == id {
			return f.Value, true
		}
	}
	return nil, false
}

// Has reports whether s holds a filter for id.
func (s ColumnFiltersState) Has(id string) bool {
	_, ok := s.Get(id)
	return ok
}

// Without returns s minus the filters whose id is in ids.
func (s ColumnFiltersState) Without(ids map[string]bool) ColumnFiltersState {
	out := make(ColumnFiltersState, 0, len(s))
	for _, f := range s {
		if !ids[f.ID] {
			out = append(out, f)
		}
	}
	return out
}

// With returns s with the filter for id replaced by value, or appended.
func (s ColumnFiltersState) With(id string, value any) ColumnFiltersState {
	out := make(ColumnFiltersState, 0, len(s)+1)
	replaced := false
	for _, f := range s {
		if f.ID == id {
			out = append(out, ColumnFilter{ID: id, Value: value})
			replaced = true
			continue
		}
		out = append(out, f)
	}
	if !replaced {
		out = append(out, ColumnFilter{ID: id, Value: value})
	}
	return out
}

// dedupe keeps the first filter of each column.
func (s ColumnFiltersState) dedupe() ColumnFiltersState {
	seen := make(map[string]bool, len(s))
	out := make(ColumnFiltersState, 0, len(s))
	for _, f := range s {
		if seen[f.ID] {
			continue
		}
		seen[f.ID] = true
		out = append(out, f)
	}
	return out
}

// Selected returns the true subset of s.
func (s RowSelectionState) Selected() RowSelectionState {
	out := make(RowSelectionState, len(s))
	for id, ok := range s {
		if ok {
			out[id] = true
		}
	}
	return out
}

// clone returns a deep copy of the snapshot so callers cannot alias live state.
func (s State) clone() State {
	out := s
	out.Sorting = slices.Clone(s.Sorting)
	out.ColumnFilters = slices.Clone(s.ColumnFilters)
	out.ColumnVisibility = maps.Clone(s.ColumnVisibility)
	out.RowSelection = maps.Clone(s.RowSelection)
	return out
}
