// Package tablestate keeps the view state of an interactive table mirrored
// across memory, a URL query-string bucket and a local persistent bucket.
//
// Six slices are reconciled independently: pagination, sorting, column
// filters, column visibility, global filter and row selection. For each slice
// the package provides
//   - a resolver that merges explicit initial state with bucket contents
//     (persisted values win when they are well-formed),
//   - a change handler that writes a mutation back under the slice's keys,
//     removing keys whose value became empty,
//   - an initial-state persistor that seeds empty keys once per table.
//
// Column filters backed by asynchronously loaded option sets are tracked by a
// readiness manager: while a column's options are loading its persisted value
// is either applied optimistically or held back, and it is re-sanitized
// against the options once they arrive.
//
// Table composes all of the above. OpenBuckets builds the facade over a
// hydrated URL bucket and a loaded local bucket:
//
//	b, err := tablestate.OpenBuckets(ctx, tablestate.BucketsConfig{
//	    Persistence: tablestate.Persistence{URLNamespace: "orders"},
//	    Query:       r.URL.Query(),
//	})
//	if err != nil {
//	    return err
//	}
//	facade := b.Facade
//	table, err := tablestate.New(ctx, facade, columns,
//	    tablestate.WithInitialState(tablestate.InitialState{
//	        Pagination: &tablestate.PaginationState{PageIndex: 0, PageSize: 20},
//	    }),
//	    tablestate.WithPagination(tablestate.PaginationConfig{
//	        AllowedPageSizes: []int{10, 20, 50},
//	    }),
//	)
//	if err != nil {
//	    return err
//	}
//
//	h := table.Handlers(ctx)
//	err = h.OnGlobalFilterChange(tablestate.Set("acme")) // also resets pageIndex to 0
package tablestate
