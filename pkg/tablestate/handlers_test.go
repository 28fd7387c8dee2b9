package tablestate

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/lucasriondel/use-persisting-state-for-react-table-sub001/pkg/bucket"
	"github.com/lucasriondel/use-persisting-state-for-react-table-sub001/pkg/localbucket"
	"github.com/lucasriondel/use-persisting-state-for-react-table-sub001/pkg/urlbucket"
)

func TestHandleGlobalFilterChangeRemovesOnEmpty(t *testing.T) {
	f := newFacade(map[string]any{"globalFilter": "acme"}, nil)

	if err := HandleGlobalFilterChange(f, Target{}, ""); err != nil {
		t.Fatalf("HandleGlobalFilterChange: %v", err)
	}
	if _, ok := f.Get(bucket.URL, "globalFilter"); ok {
		t.Error("globalFilter key should be removed, not stored empty")
	}
}

func TestHandleRowSelectionChangeStripsFalse(t *testing.T) {
	f := newFacade(nil, nil)

	selected, err := HandleRowSelectionChange(f, Target{}, RowSelectionState{"0": true, "1": false, "2": true})
	if err != nil {
		t.Fatalf("HandleRowSelectionChange: %v", err)
	}
	want := map[string]any{"0": true, "2": true}
	got, _ := f.Get(bucket.Local, "rowSelection")
	if !reflect.DeepEqual(got, want) {
		t.Errorf("persisted %v, want %v", got, want)
	}
	if !reflect.DeepEqual(selected, RowSelectionState{"0": true, "2": true}) {
		t.Errorf("returned %v", selected)
	}

	if _, err := HandleRowSelectionChange(f, Target{}, RowSelectionState{"0": false}); err != nil {
		t.Fatalf("HandleRowSelectionChange: %v", err)
	}
	if _, ok := f.Get(bucket.Local, "rowSelection"); ok {
		t.Error("rowSelection key should be removed when nothing is selected")
	}
}

func TestHandlePaginationChange(t *testing.T) {
	t.Run("RevalidatesPageSize", func(t *testing.T) {
		f := newFacade(nil, nil)
		cfg := PaginationConfig{AllowedPageSizes: []int{10, 20, 50}}

		written, err := HandlePaginationChange(f, cfg, PaginationState{PageIndex: 2, PageSize: 15})
		if err != nil {
			t.Fatalf("HandlePaginationChange: %v", err)
		}
		if written.PageSize != 10 {
			t.Errorf("written PageSize = %d, want 10", written.PageSize)
		}
		if v, _ := f.Get(bucket.URL, "pageSize"); v != 10.0 {
			t.Errorf("persisted pageSize = %v, want 10", v)
		}
		if v, _ := f.Get(bucket.URL, "pageIndex"); v != 2.0 {
			t.Errorf("persisted pageIndex = %v, want 2", v)
		}
	})

	t.Run("FieldsGoToTheirOwnTargets", func(t *testing.T) {
		f := newFacade(nil, nil)
		cfg := PaginationConfig{
			PageIndex: Target{Storage: StorageNone},
			PageSize:  Target{Storage: StorageLocal, Key: "size"},
		}
		if _, err := HandlePaginationChange(f, cfg, PaginationState{PageIndex: 3, PageSize: 20}); err != nil {
			t.Fatalf("HandlePaginationChange: %v", err)
		}
		if len(f.ReadAll(bucket.URL)) != 0 {
			t.Errorf("URL bucket = %v, want empty", f.ReadAll(bucket.URL))
		}
		if v, _ := f.Get(bucket.Local, "size"); v != 20.0 {
			t.Errorf("local size = %v, want 20", v)
		}
	})
}

func TestHandleSortingAndVisibilityRemoveOnEmpty(t *testing.T) {
	f := newFacade(map[string]any{"sorting": []any{}}, map[string]any{"columnVisibility": map[string]any{"a": false}})

	if err := HandleSortingChange(f, Target{}, nil); err != nil {
		t.Fatalf("HandleSortingChange: %v", err)
	}
	if err := HandleColumnVisibilityChange(f, Target{}, ColumnVisibilityState{}); err != nil {
		t.Fatalf("HandleColumnVisibilityChange: %v", err)
	}
	if _, ok := f.Get(bucket.URL, "sorting"); ok {
		t.Error("sorting key should be removed")
	}
	if _, ok := f.Get(bucket.Local, "columnVisibility"); ok {
		t.Error("columnVisibility key should be removed")
	}
}

func TestHandleColumnFiltersChange(t *testing.T) {
	cols := []Column{
		textColumn("name", StorageURL),
		{ID: "age", Filter: &FilterMeta{Variant: VariantNumberRange, PersistenceStorage: StorageLocal, Key: "ageRange"}},
		textColumn("notes", StorageNone),
	}

	t.Run("WritesAndRemovesPerColumn", func(t *testing.T) {
		f := newFacade(map[string]any{"name": "bob"}, map[string]any{"ageRange": []any{18.0, 30.0}})

		next := ColumnFiltersState{
			{ID: "name", Value: "alice"},
			{ID: "notes", Value: "vip"},
		}
		if err := HandleColumnFiltersChange(f, cols, next); err != nil {
			t.Fatalf("HandleColumnFiltersChange: %v", err)
		}
		if v, _ := f.Get(bucket.URL, "name"); v != "alice" {
			t.Errorf("name = %v, want alice", v)
		}
		if _, ok := f.Get(bucket.Local, "ageRange"); ok {
			t.Error("ageRange should be removed once its filter is dropped")
		}
		if _, ok := f.Get(bucket.URL, "notes"); ok {
			t.Error("notes has no storage and must not be persisted")
		}
	})

	t.Run("UnchangedKeysAreNotWritten", func(t *testing.T) {
		url := &countingStore{MemoryStore: bucket.NewMemoryStore(map[string]any{"name": "bob"})}
		f := bucket.NewFacade(url, nil)

		if err := HandleColumnFiltersChange(f, cols, ColumnFiltersState{{ID: "name", Value: "bob"}}); err != nil {
			t.Fatalf("HandleColumnFiltersChange: %v", err)
		}
		if url.patches != 0 {
			t.Errorf("patches = %d, want 0", url.patches)
		}
	})

	t.Run("EmptyValueRemovesKey", func(t *testing.T) {
		f := newFacade(map[string]any{"name": "bob"}, nil)
		if err := HandleColumnFiltersChange(f, cols, ColumnFiltersState{{ID: "name", Value: ""}}); err != nil {
			t.Fatalf("HandleColumnFiltersChange: %v", err)
		}
		if _, ok := f.Get(bucket.URL, "name"); ok {
			t.Error("name should be removed for an empty value")
		}
	})

	t.Run("StoreErrorsPropagate", func(t *testing.T) {
		f := bucket.NewFacade(brokenStore{bucket.NewMemoryStore(nil)}, nil)
		err := HandleColumnFiltersChange(f, cols, ColumnFiltersState{{ID: "name", Value: "x"}})
		if !errors.Is(err, errBoom) {
			t.Errorf("err = %v, want errBoom", err)
		}
	})
}

type countingStore struct {
	*bucket.MemoryStore
	patches int
}

func (s *countingStore) Patch(partial map[string]any) error {
	s.patches++
	return s.MemoryStore.Patch(partial)
}

// TestRoundTrip writes every slice through its handler into real URL and
// local stores, reloads both from their persisted form and resolves again.
func TestRoundTrip(t *testing.T) {
	for _, storage := range []Storage{StorageURL, StorageLocal} {
		t.Run(string(storage), func(t *testing.T) {
			backend := localbucket.NewMemoryBackend()
			u := urlbucket.New(urlbucket.WithNamespace("t"))
			l := localbucket.New("blob", backend)
			f := bucket.NewFacade(u, l)

			target := Target{Storage: storage}
			pcfg := PaginationConfig{PageIndex: target, PageSize: target}
			cols := []Column{
				{ID: "age", Filter: &FilterMeta{Variant: VariantNumberRange, PersistenceStorage: storage}},
				{ID: "tags", Filter: &FilterMeta{Variant: VariantMultiSelect, PersistenceStorage: storage}},
			}

			pagination := PaginationState{PageIndex: 4, PageSize: 50}
			sorting := SortingState{{ID: "name", Desc: true}, {ID: "age"}}
			filters := ColumnFiltersState{
				{ID: "age", Value: []any{18.0, -1.0}},
				{ID: "tags", Value: []any{"red", "blue"}},
			}
			visibility := ColumnVisibilityState{"email": false}
			selection := RowSelectionState{"7": true}

			mustOK(t, func() error { _, err := HandlePaginationChange(f, pcfg, pagination); return err })
			mustOK(t, func() error { return HandleSortingChange(f, target, sorting) })
			mustOK(t, func() error { return HandleColumnFiltersChange(f, cols, filters) })
			mustOK(t, func() error { return HandleColumnVisibilityChange(f, target, visibility) })
			mustOK(t, func() error { return HandleGlobalFilterChange(f, target, "123") })
			mustOK(t, func() error { _, err := HandleRowSelectionChange(f, target, selection); return err })

			u2 := urlbucket.New(urlbucket.WithNamespace("t"))
			if err := u2.HydrateString(u.Encode()); err != nil {
				t.Fatalf("HydrateString: %v", err)
			}
			l2 := localbucket.New("blob", backend)
			if err := l2.Load(context.Background()); err != nil {
				t.Fatalf("Load: %v", err)
			}
			f2 := bucket.NewFacade(u2, l2)

			if got := ResolvePagination(f2, pcfg, nil); got != pagination {
				t.Errorf("pagination = %+v, want %+v", got, pagination)
			}
			if got := ResolveSorting(f2, target, nil); !reflect.DeepEqual(got, sorting) {
				t.Errorf("sorting = %+v, want %+v", got, sorting)
			}
			if got := ResolveColumnFilters(f2, cols, nil, false); !reflect.DeepEqual(got, filters) {
				t.Errorf("filters = %+v, want %+v", got, filters)
			}
			if got := ResolveColumnVisibility(f2, target, nil); !reflect.DeepEqual(got, visibility) {
				t.Errorf("visibility = %+v, want %+v", got, visibility)
			}
			if got := ResolveGlobalFilter(f2, target, nil); got != "123" {
				t.Errorf("global filter = %q, want 123", got)
			}
			if got := ResolveRowSelection(f2, target, nil); !reflect.DeepEqual(got, selection) {
				t.Errorf("row selection = %+v, want %+v", got, selection)
			}
		})
	}
}

func mustOK(t *testing.T, fn func() error) {
	t.Helper()
	if err := fn(); err != nil {
		t.Fatal(err)
	}
}
