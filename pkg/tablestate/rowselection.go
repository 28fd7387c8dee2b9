package tablestate

// ResolveRowSelection computes the initial row selection. Only true
// entries of the persisted object are kept.
func ResolveRowSelection(r Reader, t Target, initial RowSelectionState) RowSelectionState {
	s, _ := resolveRowSelection(r, t, initial)
	return s
}

func resolveRowSelection(r Reader, t Target, initial RowSelectionState) (RowSelectionState, resolution) {
	res := resolution{source: fallbackSource(initial != nil)}
	fallback := initial
	if fallback == nil {
		fallback = RowSelectionState{}
	}
	raw, ok := read(r, rowSelectionTarget(t))
	if !ok {
		return fallback, res
	}
	m, ok := decodeBoolMap(raw)
	if !ok {
		res.malformed = true
		return fallback, res
	}
	res.source = sourcePersisted
	return sameAs(RowSelectionState(m).Selected(), initial), res
}

// HandleRowSelectionChange persists the true subset of next and returns it.
// An empty subset removes the key.
func HandleRowSelectionChange(w Writer, t Target, next RowSelectionState) (RowSelectionState, error) {
	selected := next.Selected()
	return selected, writeOrRemove(w, rowSelectionTarget(t), selected, len(selected) == 0)
}

func persistInitialRowSelection(w Writer, t Target, initial RowSelectionState) error {
	if len(initial.Selected()) == 0 || present(w, rowSelectionTarget(t)) {
		return nil
	}
	_, err := HandleRowSelectionChange(w, t, initial)
	return err
}
