package tablestate

import (
	"reflect"

	"github.com/lucasriondel/use-persisting-state-for-react-table-sub001/pkg/bucket"
)

// filterResolution is the outcome of resolving column filters from the buckets.
type filterResolution struct {
	filters ColumnFiltersState

	// pending holds the bucket values of columns whose options are loading.
	pending map[string]any

	res resolution
}

// ResolveColumnFilters computes the initial column filters over the leaves
// of columns. Only columns declaring a filter storage take part.
//
// Values of columns whose options are loading are applied only when
// optimistic is true. Select columns without a loading flag take the
// persisted value as-is. When nothing resolves but a loading column holds
// bucket data that initial also targets, the result is empty so the async
// result decides; otherwise initial is returned unchanged.
func ResolveColumnFilters(r Reader, columns []Column, initial ColumnFiltersState, optimistic bool) ColumnFiltersState {
	return resolveColumnFilters(r, FlattenColumns(columns), initial, optimistic).filters
}

func resolveColumnFilters(r Reader, leaves []Column, initial ColumnFiltersState, optimistic bool) filterResolution {
	out := filterResolution{
		pending: map[string]any{},
		res:     resolution{source: fallbackSource(initial != nil)},
	}
	fallback := initial
	if fallback == nil {
		fallback = ColumnFiltersState{}
	}

	persisting := false
	hadData := false
	resolved := ColumnFiltersState{}
	for _, col := range leaves {
		t := col.filterTarget()
		if !t.enabled {
			continue
		}
		persisting = true

		raw, ok := read(r, t)
		if !ok || isEmptyValue(raw) {
			continue
		}
		hadData = true
		raw = decodeFilterValue(col.Filter, t, raw)

		switch asyncStateOf(col.Filter) {
		case AsyncLoading:
			out.pending[col.ID] = raw
			if optimistic {
				resolved = append(resolved, ColumnFilter{ID: col.ID, Value: raw})
			}
		default:
			v, ok := admitFilter(*col.Filter, raw)
			if !ok {
				out.res.malformed = true
				continue
			}
			resolved = append(resolved, ColumnFilter{ID: col.ID, Value: v})
		}
	}

	switch {
	case !persisting:
		out.filters = fallback
	case len(resolved) > 0:
		out.filters = sameAs(resolved.dedupe(), initial)
		out.res.source = sourcePersisted
	case hadData && pendingInitial(out.pending, initial):
		out.filters = ColumnFiltersState{}
	default:
		out.filters = fallback
	}
	return out
}

// admitFilter returns the value a persisted filter applies with. Select
// columns without a loading flag take it as-is; all others are sanitized.
func admitFilter(meta FilterMeta, raw any) (any, bool) {
	if asyncStateOf(&meta) == AsyncUnknown && meta.Variant.hasOptions() {
		return raw, !isEmptyValue(raw)
	}
	return Sanitize(meta, raw)
}

// pendingInitial reports whether initial targets a loading column that
// holds bucket data.
func pendingInitial(pending map[string]any, initial ColumnFiltersState) bool {
	for id := range pending {
		if initial.Has(id) {
			return true
		}
	}
	return false
}

// decodeFilterValue applies the column codec to a raw URL string. A parse
// failure keeps the raw string.
func decodeFilterValue(meta *FilterMeta, t target, raw any) any {
	s, ok := raw.(string)
	if !ok || t.kind != bucket.URL || !meta.Codec.Valid() {
		return raw
	}
	v, err := meta.Codec.Parse(s)
	if err != nil {
		return raw
	}
	return v
}

// filterBucketValue is the form a filter value is stored in. Codec columns
// in the URL bucket are stored as-is for the URL store to serialize.
func filterBucketValue(meta *FilterMeta, t target, v any) (any, error) {
	if t.kind == bucket.URL && meta.Codec.Valid() {
		return v, nil
	}
	return jsonValue(v)
}

// HandleColumnFiltersChange persists next. Only keys whose value changed
// are written, and columns missing from next have their keys removed.
func HandleColumnFiltersChange(w Writer, columns []Column, next ColumnFiltersState) error {
	return persistColumnFilters(w, FlattenColumns(columns), next, nil)
}

// persistColumnFilters diffs next against the buckets. Columns in held
// keep their persisted value when absent from next.
func persistColumnFilters(w Writer, leaves []Column, next ColumnFiltersState, held map[string]any) error {
	ps := newPatchSet()
	for _, col := range leaves {
		t := col.filterTarget()
		if !t.enabled {
			continue
		}
		cur, has := read(w, t)
		v, ok := next.Get(col.ID)
		if ok && !isEmptyValue(v) {
			val, err := filterBucketValue(col.Filter, t, v)
			if err != nil {
				return err
			}
			if has && reflect.DeepEqual(cur, val) {
				continue
			}
			ps.set(t, val)
			continue
		}
		if _, isHeld := held[col.ID]; isHeld {
			continue
		}
		if has {
			ps.remove(t)
		}
	}
	return ps.apply(w)
}

// persistInitialColumnFilters writes initial filters whose keys are empty.
func persistInitialColumnFilters(w Writer, leaves []Column, initial ColumnFiltersState) error {
	byID := leafByID(leaves)
	ps := newPatchSet()
	for _, f := range initial {
		col, ok := byID[f.ID]
		if !ok {
			continue
		}
		t := col.filterTarget()
		if !t.enabled || isEmptyValue(f.Value) || present(w, t) {
			continue
		}
		val, err := filterBucketValue(col.Filter, t, f.Value)
		if err != nil {
			return err
		}
		ps.set(t, val)
	}
	return ps.apply(w)
}
