package tablestate

import (
	"context"
	"log/slog"
	"reflect"
)

// SetColumns replaces the column declarations, typically when a filter's
// option set finishes loading. Columns entering the loading state are held
// back from the live filters unless optimistic async is on. Columns leaving
// it have their persisted value re-sanitized against the new options;
// values that no longer match are dropped from both the live state and
// the bucket.
func (t *Table) SetColumns(ctx context.Context, columns []Column) error {
	if err := Validate(columns, t.opts.persistence); err != nil {
		return err
	}
	leaves := FlattenColumns(columns)

	return t.mutate(ctx, "columns", func() error {
		t.leaves = leaves
		t.registerCodecs(leaves)
		byID := leafByID(leaves)

		filters := t.state.ColumnFilters
		ps := newPatchSet()
		for _, tr := range t.readiness.Observe(leaves) {
			t.metrics.RecordReadiness(tr.From.String(), tr.To.String())
			t.logger.Debug("filter readiness changed",
				slog.String("column", tr.Column),
				slog.String("from", tr.From.String()),
				slog.String("to", tr.To.String()))

			col := byID[tr.Column]
			switch {
			case tr.To == AsyncLoading:
				if t.opts.persistence.Filters.OptimisticAsync {
					continue
				}
				if v, ok := filters.Get(col.ID); ok {
					t.held[col.ID] = v
					filters = filters.Without(map[string]bool{col.ID: true})
				}
			case tr.From == AsyncLoading:
				var err error
				if filters, err = t.settleLocked(col, filters, ps); err != nil {
					return err
				}
			}
		}
		if err := ps.apply(t.facade); err != nil {
			return err
		}
		t.state.ColumnFilters = filters
		return nil
	})
}

// settleLocked re-evaluates a column whose options stopped loading. The
// bucket value wins over a held value, which wins over the live value.
func (t *Table) settleLocked(col Column, filters ColumnFiltersState, ps *patchSet) (ColumnFiltersState, error) {
	tgt := col.filterTarget()
	candidate, found := read(t.facade, tgt)
	if found && !isEmptyValue(candidate) {
		candidate = decodeFilterValue(col.Filter, tgt, candidate)
	} else if v, ok := t.held[col.ID]; ok {
		candidate, found = v, true
	} else {
		candidate, found = filters.Get(col.ID)
	}
	delete(t.held, col.ID)
	if !found {
		return filters, nil
	}

	v, ok := admitFilter(*col.Filter, candidate)
	if !ok {
		t.logger.Debug("dropping stale filter value", slog.String("column", col.ID))
		if present(t.facade, tgt) {
			ps.remove(tgt)
		}
		return filters.Without(map[string]bool{col.ID: true}), nil
	}

	if tgt.enabled {
		val, err := filterBucketValue(col.Filter, tgt, v)
		if err != nil {
			return filters, err
		}
		if cur, has := read(t.facade, tgt); !has || !reflect.DeepEqual(cur, val) {
			ps.set(tgt, val)
		}
	}
	return filters.With(col.ID, v), nil
}
