package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/lucasriondel/use-persisting-state-for-react-table-sub001/internal/config"
	"github.com/lucasriondel/use-persisting-state-for-react-table-sub001/pkg/localbucket"
	"github.com/lucasriondel/use-persisting-state-for-react-table-sub001/pkg/metrics"
	"github.com/lucasriondel/use-persisting-state-for-react-table-sub001/pkg/tablestate"
)

func testConfig(statusLoading bool) *config.Config {
	cfg := config.New()
	cfg.Server.Debounce = "0s"
	cfg.Server.Metrics = true
	cfg.Tables["orders"] = config.TableConfig{
		Persistence: tablestate.Persistence{
			URLNamespace:    "orders",
			LocalStorageKey: "orders-state",
			Pagination: tablestate.PaginationConfig{
				AllowedPageSizes: []int{10, 20, 50},
			},
		},
		Columns: []tablestate.Column{
			{ID: "name", Filter: &tablestate.FilterMeta{
				Variant:            tablestate.VariantText,
				PersistenceStorage: tablestate.StorageURL,
			}},
			{ID: "status", Filter: &tablestate.FilterMeta{
				Variant:            tablestate.VariantSelect,
				PersistenceStorage: tablestate.StorageURL,
				IsLoading:          tablestate.Loading(statusLoading),
			}},
		},
	}
	return cfg
}

type testServer struct {
	*Server
	backend *localbucket.MemoryBackend
	reg     *prometheus.Registry
}

func newTestServer(t *testing.T, cfg *config.Config) *testServer {
	t.Helper()
	reg := prometheus.NewRegistry()
	backend := localbucket.NewMemoryBackend()
	s := New(cfg,
		WithBackend(backend),
		WithMetrics(metrics.New(metrics.WithRegistry(reg))),
		WithGatherer(reg),
		WithCheckOrigin(func(*http.Request) bool { return true }),
	)
	t.Cleanup(func() { s.Shutdown(context.Background()) })
	return &testServer{Server: s, backend: backend, reg: reg}
}

// do performs a request as client and decodes the JSON response into out.
func (ts *testServer) do(t *testing.T, client, method, target string, body any, out any) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	if client != "" {
		req.Header.Set(ClientHeader, client)
	}
	rec := httptest.NewRecorder()
	ts.Handler().ServeHTTP(rec, req)

	if out != nil && rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
			t.Fatalf("decode %s %s response %q: %v", method, target, rec.Body.String(), err)
		}
	}
	return rec.Code
}

func gaugeValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() == name && len(mf.GetMetric()) > 0 {
			return mf.GetMetric()[0].GetGauge().GetValue()
		}
	}
	return 0
}

func TestStateHydratesQuery(t *testing.T) {
	ts := newTestServer(t, testConfig(false))

	req := httptest.NewRequest(http.MethodGet, "/tables/orders/state?orders.pageIndex=2&orders.pageSize=20&orders.name=acme", nil)
	rec := httptest.NewRecorder()
	ts.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, body %s", rec.Code, rec.Body.String())
	}
	var snap Snapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snap.State.Pagination != (tablestate.PaginationState{PageIndex: 2, PageSize: 20}) {
		t.Errorf("pagination: got %+v", snap.State.Pagination)
	}
	if v, ok := snap.State.ColumnFilters.Get("name"); !ok || v != "acme" {
		t.Errorf("name filter: got %v, %v", v, ok)
	}
	if !snap.HasFinishedProcessingAsyncFilters {
		t.Error("expected async filters to be finished")
	}

	var cookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == ClientCookie {
			cookie = c
		}
	}
	if cookie == nil {
		t.Fatal("expected a client cookie")
	}
	if _, err := uuid.Parse(cookie.Value); err != nil {
		t.Errorf("client cookie %q is not a uuid: %v", cookie.Value, err)
	}
	if ts.Sessions().Count() != 1 {
		t.Errorf("sessions: got %d, want 1", ts.Sessions().Count())
	}
}

func TestStateNavigatesExistingSession(t *testing.T) {
	ts := newTestServer(t, testConfig(false))
	client := uuid.NewString()

	var snap Snapshot
	ts.do(t, client, http.MethodGet, "/tables/orders/state?orders.pageIndex=1", nil, &snap)
	if snap.State.Pagination.PageIndex != 1 {
		t.Fatalf("pageIndex: got %d, want 1", snap.State.Pagination.PageIndex)
	}

	ts.do(t, client, http.MethodGet, "/tables/orders/state?orders.pageIndex=4", nil, &snap)
	if snap.State.Pagination.PageIndex != 4 {
		t.Errorf("pageIndex after navigation: got %d, want 4", snap.State.Pagination.PageIndex)
	}
	if ts.Sessions().Count() != 1 {
		t.Errorf("sessions: got %d, want 1", ts.Sessions().Count())
	}
}

func TestSetSlice(t *testing.T) {
	ts := newTestServer(t, testConfig(false))
	client := uuid.NewString()
	ts.do(t, client, http.MethodGet, "/tables/orders/state?orders.pageIndex=3", nil, nil)

	var snap Snapshot
	code := ts.do(t, client, http.MethodPost, "/tables/orders/state/globalFilter",
		map[string]any{"value": "acme"}, &snap)
	if code != http.StatusOK {
		t.Fatalf("status: got %d", code)
	}
	if snap.State.GlobalFilter != "acme" {
		t.Errorf("globalFilter: got %q", snap.State.GlobalFilter)
	}
	if snap.State.Pagination.PageIndex != 0 {
		t.Errorf("pageIndex after global filter: got %d, want 0", snap.State.Pagination.PageIndex)
	}
	if !strings.Contains(snap.Query, "orders.globalFilter=acme") {
		t.Errorf("query %q does not carry the global filter", snap.Query)
	}

	code = ts.do(t, client, http.MethodPost, "/tables/orders/state/sorting",
		map[string]any{"value": []map[string]any{{"id": "name", "desc": true}}}, &snap)
	if code != http.StatusOK {
		t.Fatalf("sorting status: got %d", code)
	}
	if len(snap.State.Sorting) != 1 || !snap.State.Sorting[0].Desc {
		t.Errorf("sorting: got %+v", snap.State.Sorting)
	}
}

func TestSetSliceErrors(t *testing.T) {
	ts := newTestServer(t, testConfig(false))
	client := uuid.NewString()

	tests := []struct {
		name     string
		method   string
		target   string
		body     any
		wantCode int
		wantErr  string
	}{
		{"unknown table", http.MethodGet, "/tables/missing/state", nil, http.StatusNotFound, "TS123"},
		{"unknown slice", http.MethodPost, "/tables/orders/state/density", map[string]any{"value": 1}, http.StatusNotFound, "TS106"},
		{"bad payload", http.MethodPost, "/tables/orders/state/pagination", map[string]any{"value": "three"}, http.StatusBadRequest, "TS108"},
		{"unknown column", http.MethodPost, "/tables/orders/columns/owner", map[string]any{"options": []any{}}, http.StatusNotFound, "TS107"},
		{"unknown bucket", http.MethodDelete, "/tables/orders/persisted/session", nil, http.StatusBadRequest, "TS103"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body errorBody
			code := ts.do(t, client, tt.method, tt.target, tt.body, &body)
			if code != tt.wantCode {
				t.Errorf("status: got %d, want %d", code, tt.wantCode)
			}
			if body.Code != tt.wantErr {
				t.Errorf("code: got %q, want %q (%s)", body.Code, tt.wantErr, body.Error)
			}
		})
	}
}

func TestColumnOptionsSettleLoadingFilter(t *testing.T) {
	ts := newTestServer(t, testConfig(true))
	client := uuid.NewString()

	var snap Snapshot
	ts.do(t, client, http.MethodGet, "/tables/orders/state?orders.status=open", nil, &snap)
	if snap.State.ColumnFilters.Has("status") {
		t.Errorf("loading column should be held back, got %+v", snap.State.ColumnFilters)
	}
	if snap.HasFinishedProcessingAsyncFilters {
		t.Error("expected async filters to be pending")
	}
	if len(snap.PendingFilters) != 1 || snap.PendingFilters[0] != "status" {
		t.Errorf("pending: got %v", snap.PendingFilters)
	}

	code := ts.do(t, client, http.MethodPost, "/tables/orders/columns/status", map[string]any{
		"options": []map[string]any{{"value": "open", "label": "Open"}, {"value": "closed", "label": "Closed"}},
	}, &snap)
	if code != http.StatusOK {
		t.Fatalf("status: got %d", code)
	}
	if v, ok := snap.State.ColumnFilters.Get("status"); !ok || v != "open" {
		t.Errorf("status filter: got %v, %v", v, ok)
	}
	if !snap.HasFinishedProcessingAsyncFilters {
		t.Error("expected async filters to be finished")
	}
}

func TestLocalBlobScopedByClient(t *testing.T) {
	ts := newTestServer(t, testConfig(false))
	alice, bob := uuid.NewString(), uuid.NewString()

	code := ts.do(t, alice, http.MethodPost, "/tables/orders/state/columnVisibility",
		map[string]any{"value": map[string]bool{"status": false}}, nil)
	if code != http.StatusOK {
		t.Fatalf("status: got %d", code)
	}

	data, err := ts.backend.Load(context.Background(), alice+"/orders-state")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !strings.Contains(string(data), `"columnVisibility"`) {
		t.Errorf("alice blob %s does not hold column visibility", data)
	}

	var snap Snapshot
	ts.do(t, bob, http.MethodGet, "/tables/orders/state", nil, &snap)
	if len(snap.State.ColumnVisibility) != 0 {
		t.Errorf("bob should not see alice's visibility, got %v", snap.State.ColumnVisibility)
	}

	// A new session for alice reads her blob back.
	if !ts.Sessions().Close(alice, "orders") {
		t.Fatal("expected alice's session to close")
	}
	ts.do(t, alice, http.MethodGet, "/tables/orders/state", nil, &snap)
	if visible, ok := snap.State.ColumnVisibility["status"]; !ok || visible {
		t.Errorf("alice visibility after reopen: got %v", snap.State.ColumnVisibility)
	}
}

func TestClearPersisted(t *testing.T) {
	ts := newTestServer(t, testConfig(false))
	client := uuid.NewString()

	var snap Snapshot
	ts.do(t, client, http.MethodGet, "/tables/orders/state?orders.pageIndex=5&orders.globalFilter=acme", nil, &snap)
	if snap.State.GlobalFilter != "acme" {
		t.Fatalf("globalFilter: got %q", snap.State.GlobalFilter)
	}

	code := ts.do(t, client, http.MethodDelete, "/tables/orders/persisted/url", nil, &snap)
	if code != http.StatusOK {
		t.Fatalf("status: got %d", code)
	}
	if snap.State.GlobalFilter != "" || snap.State.Pagination.PageIndex != 0 {
		t.Errorf("state after clear: got %+v", snap.State)
	}
	if snap.Query != "" {
		t.Errorf("query after clear: got %q", snap.Query)
	}
}

func TestCloseSession(t *testing.T) {
	ts := newTestServer(t, testConfig(false))
	client := uuid.NewString()

	if code := ts.do(t, client, http.MethodDelete, "/tables/orders/session", nil, nil); code != http.StatusNotFound {
		t.Errorf("close missing session: got %d, want 404", code)
	}
	ts.do(t, client, http.MethodGet, "/tables/orders/state", nil, nil)
	if got := gaugeValue(t, ts.reg, "tablestate_active_sessions"); got != 1 {
		t.Errorf("active sessions: got %v, want 1", got)
	}
	if code := ts.do(t, client, http.MethodDelete, "/tables/orders/session", nil, nil); code != http.StatusNoContent {
		t.Errorf("close session: got %d, want 204", code)
	}
	if got := gaugeValue(t, ts.reg, "tablestate_active_sessions"); got != 0 {
		t.Errorf("active sessions after close: got %v, want 0", got)
	}
}

func TestSessionExpiry(t *testing.T) {
	ts := newTestServer(t, testConfig(false))
	client := uuid.NewString()
	ts.do(t, client, http.MethodGet, "/tables/orders/state", nil, nil)

	sm := ts.Sessions()
	if n := sm.cleanupExpired(time.Now()); n != 0 {
		t.Errorf("fresh session expired: %d", n)
	}
	if n := sm.cleanupExpired(time.Now().Add(2 * ts.cfg.SessionTTLDuration())); n != 1 {
		t.Errorf("expired: got %d, want 1", n)
	}
	if _, ok := sm.Get(client, "orders"); ok {
		t.Error("expected expired session to be removed")
	}
}

func TestListTablesAndMetrics(t *testing.T) {
	ts := newTestServer(t, testConfig(false))

	var list struct {
		Tables []string `json:"tables"`
	}
	ts.do(t, "", http.MethodGet, "/tables/", nil, &list)
	if len(list.Tables) != 1 || list.Tables[0] != "orders" {
		t.Errorf("tables: got %v", list.Tables)
	}

	ts.do(t, uuid.NewString(), http.MethodGet, "/tables/orders/state", nil, nil)

	rec := httptest.NewRecorder()
	ts.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics status: got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "tablestate_active_sessions 1") {
		t.Errorf("metrics output missing active sessions:\n%s", rec.Body.String())
	}
}

func TestWatchStreamsEvents(t *testing.T) {
	ts := newTestServer(t, testConfig(false))
	srv := httptest.NewServer(ts.Handler())
	defer srv.Close()

	client := uuid.NewString()
	header := http.Header{}
	header.Set(ClientHeader, client)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/tables/orders/watch"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, header)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	read := func() Event {
		t.Helper()
		conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		var ev Event
		if err := conn.ReadJSON(&ev); err != nil {
			t.Fatalf("ReadJSON: %v", err)
		}
		return ev
	}

	first := read()
	if first.Type != EventState || first.Snapshot == nil {
		t.Fatalf("first event: got %+v", first)
	}
	if got := gaugeValue(t, ts.reg, "tablestate_watchers"); got != 1 {
		t.Errorf("watchers: got %v, want 1", got)
	}

	ts.do(t, client, http.MethodPost, "/tables/orders/state/pagination",
		map[string]any{"value": map[string]int{"pageIndex": 2, "pageSize": 50}}, nil)

	var sawNavigate, sawState bool
	for !(sawNavigate && sawState) {
		ev := read()
		switch ev.Type {
		case EventNavigate:
			sawNavigate = true
			if !strings.Contains(ev.Query, "orders.pageIndex=2") || ev.Mode != "replace" {
				t.Errorf("navigate event: got %+v", ev)
			}
		case EventState:
			sawState = true
			if ev.Snapshot.State.Pagination != (tablestate.PaginationState{PageIndex: 2, PageSize: 50}) {
				t.Errorf("state event pagination: got %+v", ev.Snapshot.State.Pagination)
			}
		}
	}

	ts.Sessions().Close(client, "orders")
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, _, err := conn.ReadMessage(); !websocket.IsCloseError(err, websocket.CloseGoingAway) {
		t.Errorf("expected going-away close, got %v", err)
	}
}
