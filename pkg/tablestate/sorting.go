package tablestate

// ResolveSorting computes the initial sorting. A persisted empty list is a
// valid value and clears the initial sort.
func ResolveSorting(r Reader, t Target, initial SortingState) SortingState {
	s, _ := resolveSorting(r, t, initial)
	return s
}

func resolveSorting(r Reader, t Target, initial SortingState) (SortingState, resolution) {
	res := resolution{source: fallbackSource(initial != nil)}
	fallback := initial
	if fallback == nil {
		fallback = SortingState{}
	}
	raw, ok := read(r, sortingTarget(t))
	if !ok {
		return fallback, res
	}
	s, ok := decodeSorting(raw)
	if !ok {
		res.malformed = true
		return fallback, res
	}
	res.source = sourcePersisted
	return sameAs(s, initial), res
}

func decodeSorting(raw any) (SortingState, bool) {
	items, ok := generic(raw).([]any)
	if !ok {
		return nil, false
	}
	out := make(SortingState, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, false
		}
		id, ok := m["id"].(string)
		if !ok || id == "" {
			return nil, false
		}
		sort := ColumnSort{ID: id}
		if d, has := m["desc"]; has && d != nil {
			desc, ok := d.(bool)
			if !ok {
				return nil, false
			}
			sort.Desc = desc
		}
		out = append(out, sort)
	}
	return out, true
}

// HandleSortingChange persists next. An empty sort removes the key.
func HandleSortingChange(w Writer, t Target, next SortingState) error {
	return writeOrRemove(w, sortingTarget(t), next, len(next) == 0)
}

func persistInitialSorting(w Writer, t Target, initial SortingState) error {
	if len(initial) == 0 || present(w, sortingTarget(t)) {
		return nil
	}
	return HandleSortingChange(w, t, initial)
}
