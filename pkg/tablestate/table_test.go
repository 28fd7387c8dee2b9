package tablestate

import (
	"context"
	"errors"
	"reflect"
	"sort"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	tserrors "github.com/lucasriondel/use-persisting-state-for-react-table-sub001/internal/errors"
	"github.com/lucasriondel/use-persisting-state-for-react-table-sub001/pkg/bucket"
	"github.com/lucasriondel/use-persisting-state-for-react-table-sub001/pkg/metrics"
	"github.com/lucasriondel/use-persisting-state-for-react-table-sub001/pkg/urlbucket"
)

func newTable(t *testing.T, f *bucket.Facade, cols []Column, opts ...Option) *Table {
	t.Helper()
	table, err := New(context.Background(), f, cols, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return table
}

func TestTablePageResetCoupling(t *testing.T) {
	cols := []Column{textColumn("name", StorageURL)}
	initial := WithInitialState(InitialState{Pagination: &PaginationState{PageIndex: 5, PageSize: 10}})
	ctx := context.Background()

	t.Run("Enabled", func(t *testing.T) {
		f := newFacade(nil, nil)
		table := newTable(t, f, cols, initial)

		if err := table.Handlers(ctx).OnColumnFiltersChange(Set(ColumnFiltersState{{ID: "name", Value: "bob"}})); err != nil {
			t.Fatalf("OnColumnFiltersChange: %v", err)
		}
		got := table.State().Pagination
		if got != (PaginationState{PageIndex: 0, PageSize: 10}) {
			t.Errorf("pagination = %+v, want {0 10}", got)
		}
		if v, _ := f.Get(bucket.URL, "pageIndex"); v != 0.0 {
			t.Errorf("persisted pageIndex = %v, want 0", v)
		}
	})

	t.Run("GlobalFilter", func(t *testing.T) {
		table := newTable(t, newFacade(nil, nil), cols, initial)
		if err := table.SetGlobalFilter(ctx, Set("acme")); err != nil {
			t.Fatalf("SetGlobalFilter: %v", err)
		}
		if got := table.State().Pagination.PageIndex; got != 0 {
			t.Errorf("pageIndex = %d, want 0", got)
		}
	})

	t.Run("Disabled", func(t *testing.T) {
		table := newTable(t, newFacade(nil, nil), cols, initial, WithAutomaticPageReset(false))
		if err := table.SetColumnFilters(ctx, Set(ColumnFiltersState{{ID: "name", Value: "bob"}})); err != nil {
			t.Fatalf("SetColumnFilters: %v", err)
		}
		if got := table.State().Pagination.PageIndex; got != 5 {
			t.Errorf("pageIndex = %d, want 5", got)
		}
	})
}

func TestTableResetPaginationIsIdempotent(t *testing.T) {
	f := newFacade(map[string]any{"pageIndex": 8.0, "pageSize": 20.0}, nil)
	table := newTable(t, f, nil)
	h := table.Handlers(context.Background())

	for i := 0; i < 3; i++ {
		if err := h.ResetPagination(); err != nil {
			t.Fatalf("ResetPagination: %v", err)
		}
		if got := table.State().Pagination; got != (PaginationState{PageIndex: 0, PageSize: 20}) {
			t.Fatalf("after %d resets pagination = %+v, want {0 20}", i+1, got)
		}
	}
}

func TestTableFilterWritesPrecedePagination(t *testing.T) {
	u := urlbucket.New()
	var order []string
	rec := &recordingStore{Store: u, order: &order}
	table := newTable(t, bucket.NewFacade(rec, nil), []Column{textColumn("name", StorageURL)})

	if err := table.SetColumnFilters(context.Background(), Set(ColumnFiltersState{{ID: "name", Value: "bob"}})); err != nil {
		t.Fatalf("SetColumnFilters: %v", err)
	}
	want := []string{"name", "pageIndex,pageSize"}
	if !reflect.DeepEqual(order, want) {
		t.Errorf("write order = %v, want %v", order, want)
	}
}

type recordingStore struct {
	bucket.Store
	order *[]string
}

func (s *recordingStore) Patch(partial map[string]any) error {
	keys := make([]string, 0, len(partial))
	for k := range partial {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	*s.order = append(*s.order, strings.Join(keys, ","))
	return s.Store.Patch(partial)
}

func TestTableInitialPersistors(t *testing.T) {
	t.Run("SeedsEmptyKeys", func(t *testing.T) {
		f := newFacade(nil, nil)
		newTable(t, f, []Column{textColumn("name", StorageLocal)}, WithInitialState(InitialState{
			Pagination:       &PaginationState{PageIndex: 1, PageSize: 20},
			Sorting:          SortingState{{ID: "name"}},
			ColumnFilters:    ColumnFiltersState{{ID: "name", Value: "bob"}},
			ColumnVisibility: ColumnVisibilityState{"email": false},
			GlobalFilter:     ptr("acme"),
			RowSelection:     RowSelectionState{"3": true, "4": false},
		}))

		wantURL := map[string]any{
			"pageIndex":    1.0,
			"pageSize":     20.0,
			"sorting":      []any{map[string]any{"id": "name", "desc": false}},
			"globalFilter": "acme",
		}
		if got := f.ReadAll(bucket.URL); !reflect.DeepEqual(got, wantURL) {
			t.Errorf("URL bucket = %v, want %v", got, wantURL)
		}
		wantLocal := map[string]any{
			"name":             "bob",
			"columnVisibility": map[string]any{"email": false},
			"rowSelection":     map[string]any{"3": true},
		}
		if got := f.ReadAll(bucket.Local); !reflect.DeepEqual(got, wantLocal) {
			t.Errorf("local bucket = %v, want %v", got, wantLocal)
		}
	})

	t.Run("NeverOverwrites", func(t *testing.T) {
		persisted := []any{map[string]any{"id": "age", "desc": true}}
		f := newFacade(map[string]any{"sorting": persisted, "pageIndex": 0.0}, nil)
		table := newTable(t, f, nil, WithInitialState(InitialState{
			Pagination: &PaginationState{PageIndex: 3, PageSize: 20},
			Sorting:    SortingState{{ID: "name"}},
		}))

		if got, _ := f.Get(bucket.URL, "sorting"); !reflect.DeepEqual(got, persisted) {
			t.Errorf("sorting overwritten: %v", got)
		}
		if got, _ := f.Get(bucket.URL, "pageIndex"); got != 0.0 {
			t.Errorf("pageIndex 0 must count as present, got %v", got)
		}
		if got, _ := f.Get(bucket.URL, "pageSize"); got != 20.0 {
			t.Errorf("pageSize = %v, want seeded 20", got)
		}
		if got := table.State().Sorting; !reflect.DeepEqual(got, SortingState{{ID: "age", Desc: true}}) {
			t.Errorf("state sorting = %v", got)
		}
	})

	t.Run("FalsyGlobalFilterIsAbsent", func(t *testing.T) {
		f := newFacade(map[string]any{"globalFilter": false}, nil)
		newTable(t, f, nil, WithInitialState(InitialState{GlobalFilter: ptr("acme")}))
		if got, _ := f.Get(bucket.URL, "globalFilter"); got != "acme" {
			t.Errorf("globalFilter = %v, want acme", got)
		}
	})
}

func ptr[T any](v T) *T { return &v }

func TestTableAsyncFilters(t *testing.T) {
	ctx := context.Background()

	t.Run("HeldUntilReady", func(t *testing.T) {
		f := newFacade(map[string]any{"status": "active"}, nil)
		table := newTable(t, f, []Column{statusColumn(StorageURL, Loading(true))})
		h := table.Handlers(ctx)

		if table.State().ColumnFilters.Has("status") {
			t.Fatal("status applied while loading")
		}
		if h.HasFinishedProcessingAsyncFilters() {
			t.Error("HasFinishedProcessingAsyncFilters = true while loading")
		}

		if err := table.SetColumns(ctx, []Column{statusColumn(StorageURL, Loading(false), "active", "archived")}); err != nil {
			t.Fatalf("SetColumns: %v", err)
		}
		want := ColumnFiltersState{{ID: "status", Value: "active"}}
		if got := table.State().ColumnFilters; !reflect.DeepEqual(got, want) {
			t.Errorf("filters = %v, want %v", got, want)
		}
		if !h.HasFinishedProcessingAsyncFilters() {
			t.Error("handler HasFinishedProcessingAsyncFilters = false after ready")
		}
	})

	t.Run("StaleValueDropped", func(t *testing.T) {
		f := newFacade(map[string]any{"status": "deleted"}, nil)
		table := newTable(t, f, []Column{statusColumn(StorageURL, Loading(true))}, WithOptimisticAsync(true))

		want := ColumnFiltersState{{ID: "status", Value: "deleted"}}
		if got := table.State().ColumnFilters; !reflect.DeepEqual(got, want) {
			t.Fatalf("optimistic filters = %v, want %v", got, want)
		}

		if err := table.SetColumns(ctx, []Column{statusColumn(StorageURL, Loading(false), "active")}); err != nil {
			t.Fatalf("SetColumns: %v", err)
		}
		if got := table.State().ColumnFilters; len(got) != 0 {
			t.Errorf("filters = %v, want stale value dropped", got)
		}
		if _, ok := f.Get(bucket.URL, "status"); ok {
			t.Error("stale status key should be removed")
		}
	})

	t.Run("HeldValueSurvivesOtherFilterChanges", func(t *testing.T) {
		f := newFacade(map[string]any{"status": "active"}, nil)
		cols := []Column{statusColumn(StorageURL, Loading(true)), textColumn("name", StorageURL)}
		table := newTable(t, f, cols)

		if err := table.SetColumnFilters(ctx, Set(ColumnFiltersState{{ID: "name", Value: "bob"}})); err != nil {
			t.Fatalf("SetColumnFilters: %v", err)
		}
		if v, _ := f.Get(bucket.URL, "status"); v != "active" {
			t.Errorf("held status key = %v, want active", v)
		}
	})

	t.Run("DroppingLoadingFlagKeepsValueAsIs", func(t *testing.T) {
		f := newFacade(map[string]any{"status": "legacy"}, nil)
		table := newTable(t, f, []Column{statusColumn(StorageURL, Loading(true))})

		if err := table.SetColumns(ctx, []Column{statusColumn(StorageURL, nil, "active")}); err != nil {
			t.Fatalf("SetColumns: %v", err)
		}
		if v, ok := table.State().ColumnFilters.Get("status"); !ok || v != "legacy" {
			t.Errorf("status = %v, %v; want legacy", v, ok)
		}
		if v, _ := f.Get(bucket.URL, "status"); v != "legacy" {
			t.Errorf("status key = %v, want legacy", v)
		}
	})

	t.Run("EnteringLoadingHoldsLiveValue", func(t *testing.T) {
		f := newFacade(map[string]any{"status": "active"}, nil)
		table := newTable(t, f, []Column{statusColumn(StorageURL, Loading(false), "active")})
		if !table.State().ColumnFilters.Has("status") {
			t.Fatal("status should apply when ready")
		}

		if err := table.SetColumns(ctx, []Column{statusColumn(StorageURL, Loading(true))}); err != nil {
			t.Fatalf("SetColumns: %v", err)
		}
		if table.State().ColumnFilters.Has("status") {
			t.Error("status should be held while reloading options")
		}
		if got := table.PendingFilters(); !reflect.DeepEqual(got, []string{"status"}) {
			t.Errorf("PendingFilters() = %v", got)
		}
	})
}

func TestTableStoreFailure(t *testing.T) {
	f := bucket.NewFacade(brokenStore{bucket.NewMemoryStore(nil)}, nil)
	table := newTable(t, f, nil)

	err := table.SetGlobalFilter(context.Background(), Set("acme"))
	if !errors.Is(err, errBoom) {
		t.Fatalf("err = %v, want errBoom", err)
	}
	if got := table.State().GlobalFilter; got != "" {
		t.Errorf("global filter = %q, live state must not change on failure", got)
	}
}

func TestTableRowSelection(t *testing.T) {
	f := newFacade(nil, nil)
	table := newTable(t, f, nil)
	ctx := context.Background()

	if err := table.SetRowSelection(ctx, Set(RowSelectionState{"0": true, "1": false, "2": true})); err != nil {
		t.Fatalf("SetRowSelection: %v", err)
	}
	if got, _ := f.Get(bucket.Local, "rowSelection"); !reflect.DeepEqual(got, map[string]any{"0": true, "2": true}) {
		t.Errorf("persisted = %v", got)
	}

	err := table.SetRowSelection(ctx, Update(func(prev RowSelectionState) RowSelectionState {
		next := RowSelectionState{}
		for id := range prev {
			if id != "0" {
				next[id] = true
			}
		}
		return next
	}))
	if err != nil {
		t.Fatalf("SetRowSelection: %v", err)
	}
	if got := table.State().RowSelection; !reflect.DeepEqual(got, RowSelectionState{"2": true}) {
		t.Errorf("state = %v", got)
	}
}

func TestTableSyncAndSubscribe(t *testing.T) {
	u := urlbucket.New(urlbucket.WithNamespace("orders"))
	table := newTable(t, bucket.NewFacade(u, nil), nil)

	var snapshots []State
	unsubscribe := table.Subscribe(func(s State) { snapshots = append(snapshots, s) })

	if err := u.HydrateString("orders.pageIndex=2&orders.sorting=%5B%7B%22id%22%3A%22name%22%7D%5D"); err != nil {
		t.Fatalf("HydrateString: %v", err)
	}
	if err := table.Sync(context.Background()); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	if len(snapshots) != 1 {
		t.Fatalf("snapshots = %d, want 1", len(snapshots))
	}
	if snapshots[0].Pagination.PageIndex != 2 {
		t.Errorf("pageIndex = %d, want 2", snapshots[0].Pagination.PageIndex)
	}
	if !reflect.DeepEqual(snapshots[0].Sorting, SortingState{{ID: "name"}}) {
		t.Errorf("sorting = %v", snapshots[0].Sorting)
	}

	unsubscribe()
	if err := table.ResetPagination(context.Background()); err != nil {
		t.Fatalf("ResetPagination: %v", err)
	}
	if len(snapshots) != 1 {
		t.Errorf("snapshots after unsubscribe = %d, want 1", len(snapshots))
	}
}

func TestTableClearPersisted(t *testing.T) {
	f := newFacade(map[string]any{"globalFilter": "acme", "pageIndex": 4.0}, nil)
	table := newTable(t, f, nil)

	if err := table.ClearPersisted(context.Background(), bucket.URL); err != nil {
		t.Fatalf("ClearPersisted: %v", err)
	}
	if len(f.ReadAll(bucket.URL)) != 0 {
		t.Errorf("URL bucket = %v, want empty", f.ReadAll(bucket.URL))
	}
	if got := table.State(); got.GlobalFilter != "" || got.Pagination != DefaultPagination() {
		t.Errorf("state = %+v, want defaults", got)
	}
}

func TestNewValidation(t *testing.T) {
	tests := []struct {
		name string
		cols []Column
		opts []Option
		code string
	}{
		{
			name: "DuplicateColumn",
			cols: []Column{{ID: "a"}, {ID: "g", Columns: []Column{{ID: "a"}}}},
			code: "TS102",
		},
		{
			name: "UnknownVariant",
			cols: []Column{{ID: "a", Filter: &FilterMeta{Variant: "slider"}}},
			code: "TS121",
		},
		{
			name: "UnknownStorage",
			opts: []Option{WithSorting(Target{Storage: "session"})},
			code: "TS104",
		},
		{
			name: "BadAllowList",
			opts: []Option{WithPagination(PaginationConfig{AllowedPageSizes: []int{10, 0}})},
			code: "TS122",
		},
		{
			name: "KeyCollision",
			cols: []Column{textColumn("sorting", StorageURL)},
			code: "TS105",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(context.Background(), nil, tt.cols, tt.opts...)
			if !errors.Is(err, tserrors.New(tt.code)) {
				t.Errorf("err = %v, want %s", err, tt.code)
			}
		})
	}
}

func TestTableMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(metrics.WithRegistry(reg))

	f := newFacade(map[string]any{"pageIndex": "invalid", "sorting": []any{}}, nil)
	newTable(t, f, nil, WithMetrics(m))

	if got := gatherValue(t, reg, "tablestate_fallbacks_total", map[string]string{"slice": "pagination"}); got != 1 {
		t.Errorf("pagination fallbacks = %v, want 1", got)
	}
	if got := gatherValue(t, reg, "tablestate_resolutions_total", map[string]string{"slice": "sorting", "source": "persisted"}); got != 1 {
		t.Errorf("sorting persisted resolutions = %v, want 1", got)
	}
}

func gatherValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	metric:
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if want, ok := labels[lp.GetName()]; ok && want != lp.GetValue() {
					continue metric
				}
			}
			return m.GetCounter().GetValue()
		}
	}
	return 0
}
