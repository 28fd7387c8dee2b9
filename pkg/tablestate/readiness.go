package tablestate

import (
	"fmt"
	"sort"
)

// AsyncState is the readiness of a filter column's option set.
type AsyncState int

const (
	// AsyncUnknown means the column declares no loading flag and is
	// treated as ready.
	AsyncUnknown AsyncState = iota

	// AsyncLoading means the option set is still loading.
	AsyncLoading

	// AsyncReady means the option set has loaded.
	AsyncReady
)

// String returns the state name used in logs and metrics.
func (s AsyncState) String() string {
	switch s {
	case AsyncUnknown:
		return "unknown"
	case AsyncLoading:
		return "loading"
	case AsyncReady:
		return "ready"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

func asyncStateOf(meta *FilterMeta) AsyncState {
	switch {
	case meta == nil || meta.IsLoading == nil:
		return AsyncUnknown
	case *meta.IsLoading:
		return AsyncLoading
	default:
		return AsyncReady
	}
}

// Transition is a readiness change of one column.
type Transition struct {
	Column string
	From   AsyncState
	To     AsyncState
}

// Readiness tracks the async state of every filter column.
// It is not safe for concurrent use; Table serializes access.
type Readiness struct {
	states map[string]AsyncState
}

// NewReadiness records the current state of leaves without reporting
// transitions.
func NewReadiness(leaves []Column) *Readiness {
	r := &Readiness{states: map[string]AsyncState{}}
	r.Observe(leaves)
	return r
}

// Observe records the state of leaves and returns the columns whose state
// changed, in column order. Columns that disappeared are forgotten.
func (r *Readiness) Observe(leaves []Column) []Transition {
	var out []Transition
	seen := make(map[string]bool, len(leaves))
	for _, col := range leaves {
		if col.Filter == nil {
			continue
		}
		seen[col.ID] = true
		next := asyncStateOf(col.Filter)
		prev, known := r.states[col.ID]
		r.states[col.ID] = next
		if known && prev != next {
			out = append(out, Transition{Column: col.ID, From: prev, To: next})
		}
	}
	for id := range r.states {
		if !seen[id] {
			delete(r.states, id)
		}
	}
	return out
}

// State returns the recorded state of column id.
func (r *Readiness) State(id string) AsyncState {
	return r.states[id]
}

// Pending returns the loading columns, sorted.
func (r *Readiness) Pending() []string {
	var ids []string
	for id, s := range r.states {
		if s == AsyncLoading {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Finished reports whether no column is loading.
func (r *Readiness) Finished() bool {
	for _, s := range r.states {
		if s == AsyncLoading {
			return false
		}
	}
	return true
}
