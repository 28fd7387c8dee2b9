package tablestate

import "slices"

// ValidatePageSize returns size when allowed is empty or contains it, and the
// first allowed size otherwise.
func ValidatePageSize(size int, allowed []int) int {
	if len(allowed) == 0 || slices.Contains(allowed, size) {
		return size
	}
	return allowed[0]
}

// ResolvePagination computes the initial pagination. pageIndex and pageSize
// are resolved independently from their own targets.
func ResolvePagination(r Reader, cfg PaginationConfig, initial *PaginationState) PaginationState {
	p, _ := resolvePagination(r, cfg, initial)
	return p
}

func resolvePagination(r Reader, cfg PaginationConfig, initial *PaginationState) (PaginationState, resolution) {
	base := DefaultPagination()
	if initial != nil {
		base = *initial
	}
	res := resolution{source: fallbackSource(initial != nil)}
	if !cfg.pageIndexTarget().enabled && !cfg.pageSizeTarget().enabled {
		return base, res
	}

	out := base
	if raw, ok := read(r, cfg.pageIndexTarget()); ok {
		if i, ok := asInt(raw); ok && i >= 0 {
			out.PageIndex = i
			res.source = sourcePersisted
		} else {
			res.malformed = true
		}
	}
	if raw, ok := read(r, cfg.pageSizeTarget()); ok {
		if size, ok := asInt(raw); ok && size > 0 {
			out.PageSize = size
			res.source = sourcePersisted
		} else {
			res.malformed = true
		}
	}
	out.PageSize = ValidatePageSize(out.PageSize, cfg.AllowedPageSizes)
	return out, res
}

// HandlePaginationChange persists next and returns the value actually
// written. Each field goes to its own target; the page size is checked
// against the allow-list first.
func HandlePaginationChange(w Writer, cfg PaginationConfig, next PaginationState) (PaginationState, error) {
	next.PageSize = ValidatePageSize(next.PageSize, cfg.AllowedPageSizes)
	ps := newPatchSet()
	ps.set(cfg.pageIndexTarget(), float64(next.PageIndex))
	ps.set(cfg.pageSizeTarget(), float64(next.PageSize))
	return next, ps.apply(w)
}

// persistInitialPagination writes the fields of initial whose keys are empty.
// A persisted pageIndex of 0 counts as present.
func persistInitialPagination(w Writer, cfg PaginationConfig, initial *PaginationState) error {
	if initial == nil {
		return nil
	}
	ps := newPatchSet()
	if t := cfg.pageIndexTarget(); !present(w, t) {
		ps.set(t, float64(initial.PageIndex))
	}
	if t := cfg.pageSizeTarget(); !present(w, t) {
		ps.set(t, float64(ValidatePageSize(initial.PageSize, cfg.AllowedPageSizes)))
	}
	return ps.apply(w)
}
