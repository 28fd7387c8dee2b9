package tablestate

// ResolveColumnVisibility computes the initial column visibility. The
// persisted value must be an object of booleans.
func ResolveColumnVisibility(r Reader, t Target, initial ColumnVisibilityState) ColumnVisibilityState {
	v, _ := resolveColumnVisibility(r, t, initial)
	return v
}

func resolveColumnVisibility(r Reader, t Target, initial ColumnVisibilityState) (ColumnVisibilityState, resolution) {
	res := resolution{source: fallbackSource(initial != nil)}
	fallback := initial
	if fallback == nil {
		fallback = ColumnVisibilityState{}
	}
	raw, ok := read(r, columnVisibilityTarget(t))
	if !ok {
		return fallback, res
	}
	m, ok := decodeBoolMap(raw)
	if !ok {
		res.malformed = true
		return fallback, res
	}
	res.source = sourcePersisted
	return sameAs(ColumnVisibilityState(m), initial), res
}

// decodeBoolMap accepts an object whose values are all booleans.
func decodeBoolMap(raw any) (map[string]bool, bool) {
	obj, ok := generic(raw).(map[string]any)
	if !ok {
		return nil, false
	}
	out := make(map[string]bool, len(obj))
	for k, v := range obj {
		b, ok := v.(bool)
		if !ok {
			return nil, false
		}
		out[k] = b
	}
	return out, true
}

// HandleColumnVisibilityChange persists next. An empty map removes the key.
func HandleColumnVisibilityChange(w Writer, t Target, next ColumnVisibilityState) error {
	return writeOrRemove(w, columnVisibilityTarget(t), next, len(next) == 0)
}

func persistInitialColumnVisibility(w Writer, t Target, initial ColumnVisibilityState) error {
	if len(initial) == 0 || present(w, columnVisibilityTarget(t)) {
		return nil
	}
	return HandleColumnVisibilityChange(w, t, initial)
}
