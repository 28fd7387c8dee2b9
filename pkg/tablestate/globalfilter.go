package tablestate

import "strconv"

// ResolveGlobalFilter computes the initial global filter. A persisted
// number is accepted as its decimal form; false, 0, null and "" count as
// absent.
func ResolveGlobalFilter(r Reader, t Target, initial *string) string {
	s, _ := resolveGlobalFilter(r, t, initial)
	return s
}

func resolveGlobalFilter(r Reader, t Target, initial *string) (string, resolution) {
	res := resolution{source: fallbackSource(initial != nil)}
	fallback := ""
	if initial != nil {
		fallback = *initial
	}
	raw, ok := read(r, globalFilterTarget(t))
	if !ok || isFalsy(raw) {
		return fallback, res
	}
	switch v := raw.(type) {
	case string:
		res.source = sourcePersisted
		return v, res
	case float64:
		res.source = sourcePersisted
		return strconv.FormatFloat(v, 'f', -1, 64), res
	}
	res.malformed = true
	return fallback, res
}

// HandleGlobalFilterChange persists next, or removes the key when next is "".
func HandleGlobalFilterChange(w Writer, t Target, next string) error {
	return writeOrRemove(w, globalFilterTarget(t), next, next == "")
}

func persistInitialGlobalFilter(w Writer, t Target, initial *string) error {
	if initial == nil || *initial == "" {
		return nil
	}
	if raw, ok := read(w, globalFilterTarget(t)); ok && !isFalsy(raw) {
		return nil
	}
	return HandleGlobalFilterChange(w, t, *initial)
}
