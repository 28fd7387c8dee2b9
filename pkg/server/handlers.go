package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	tserrors "github.com/lucasriondel/use-persisting-state-for-react-table-sub001/internal/errors"
	"github.com/lucasriondel/use-persisting-state-for-react-table-sub001/pkg/bucket"
	"github.com/lucasriondel/use-persisting-state-for-react-table-sub001/pkg/tablestate"
	"github.com/lucasriondel/use-persisting-state-for-react-table-sub001/pkg/urlbucket"
)

const (
	// ClientCookie holds the client id that scopes sessions and local blobs.
	ClientCookie = "tablestate_client"

	// ClientHeader overrides the cookie for non-browser clients.
	ClientHeader = "X-Tablestate-Client"

	maxBodyBytes = 1 << 20
)

// openSession creates the buckets and table state of a new session. The
// local blob key is scoped by client so that clients never share a blob.
func (s *Server) openSession(ctx context.Context, clientID, name string, query url.Values) (*Session, error) {
	tc, err := s.cfg.Table(name)
	if err != nil {
		return nil, err
	}
	sess := newSession(clientID, name, s.logger)

	mode := urlbucket.Replace
	if s.cfg.Server.HistoryMode == "push" {
		mode = urlbucket.Push
	}

	persistence := tc.Persistence
	localKey := persistence.LocalStorageKey
	if localKey == "" {
		localKey = tablestate.DefaultLocalStorageKey
	}
	persistence.LocalStorageKey = clientID + "/" + localKey

	buckets, err := tablestate.OpenBuckets(ctx, tablestate.BucketsConfig{
		Persistence: persistence,
		Backend:     s.backend,
		Query:       query,
		URLOptions: []urlbucket.Option{
			mode,
			urlbucket.Debounce(s.cfg.DebounceDuration()),
			urlbucket.WithNavigator(sess.navigate),
		},
		Logger:  s.logger,
		Metrics: s.metrics,
	})
	if err != nil {
		return nil, tserrors.New("TS111").Wrap(err)
	}

	opts := append(tc.Options(),
		tablestate.WithLogger(s.logger),
		tablestate.WithMetrics(s.metrics))
	table, err := tablestate.New(ctx, buckets.Facade, tc.Columns, opts...)
	if err != nil {
		return nil, err
	}

	watchCtx, cancel := context.WithCancel(context.Background())
	sess.attach(table, buckets, cancel)

	if s.cfg.Local.Watch {
		err := buckets.Local.Watch(watchCtx, func() {
			if err := table.Sync(watchCtx); err != nil {
				sess.logger.Warn("sync after local change failed", "error", err)
			}
		})
		if err != nil {
			sess.logger.Warn("local bucket watch unavailable", "error", err)
		}
	}
	return sess, nil
}

// clientID returns the client id of r, issuing a new cookie when absent.
func clientID(w http.ResponseWriter, r *http.Request) string {
	if id := r.Header.Get(ClientHeader); id != "" {
		if _, err := uuid.Parse(id); err == nil {
			return id
		}
	}
	if c, err := r.Cookie(ClientCookie); err == nil {
		if _, err := uuid.Parse(c.Value); err == nil {
			return c.Value
		}
	}

	id := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     ClientCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return id
}

// session resolves the session of the request. A non-empty query on an
// existing session is treated as a history navigation.
func (s *Server) session(w http.ResponseWriter, r *http.Request) (*Session, error) {
	id := clientID(w, r)
	name := chi.URLParam(r, "table")
	query := r.URL.Query()

	sess, created, err := s.sessions.Acquire(r.Context(), id, name, query)
	if err != nil {
		return nil, err
	}
	if !created && r.Method == http.MethodGet && len(query) > 0 {
		if err := sess.Navigate(r.Context(), query); err != nil {
			return nil, err
		}
	}
	return sess, nil
}

func (s *Server) handleListTables(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"tables": s.cfg.TableNames()})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

// slicePayload is the body of a slice update.
type slicePayload struct {
	Value json.RawMessage `json:"value"`
}

func (s *Server) handleSetSlice(w http.ResponseWriter, r *http.Request) {
	var body slicePayload
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&body); err != nil {
		s.writeError(w, r, tserrors.New("TS108").Wrap(err))
		return
	}

	sess, err := s.session(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := ApplySlice(r.Context(), sess.Table(), chi.URLParam(r, "slice"), body.Value); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

// ApplySlice decodes raw into the value of the named slice and sets it on t.
func ApplySlice(ctx context.Context, t *tablestate.Table, slice string, raw json.RawMessage) error {
	switch slice {
	case "pagination":
		var v tablestate.PaginationState
		if err := decodeSlice(raw, &v); err != nil {
			return err
		}
		return t.SetPagination(ctx, tablestate.Set(v))
	case "sorting":
		var v tablestate.SortingState
		if err := decodeSlice(raw, &v); err != nil {
			return err
		}
		return t.SetSorting(ctx, tablestate.Set(v))
	case "columnFilters":
		var v tablestate.ColumnFiltersState
		if err := decodeSlice(raw, &v); err != nil {
			return err
		}
		return t.SetColumnFilters(ctx, tablestate.Set(v))
	case "columnVisibility":
		var v tablestate.ColumnVisibilityState
		if err := decodeSlice(raw, &v); err != nil {
			return err
		}
		return t.SetColumnVisibility(ctx, tablestate.Set(v))
	case "globalFilter":
		var v string
		if err := decodeSlice(raw, &v); err != nil {
			return err
		}
		return t.SetGlobalFilter(ctx, tablestate.Set(v))
	case "rowSelection":
		var v tablestate.RowSelectionState
		if err := decodeSlice(raw, &v); err != nil {
			return err
		}
		return t.SetRowSelection(ctx, tablestate.Set(v))
	default:
		return tserrors.New("TS106").WithDetail(slice)
	}
}

// decodeSlice decodes raw into v. A missing value decodes to the zero value.
func decodeSlice(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return tserrors.New("TS108").Wrap(err)
	}
	return nil
}

func (s *Server) handleResetPagination(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := sess.Table().ResetPagination(r.Context()); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := sess.Buckets().Local.Load(r.Context()); err != nil {
		s.writeError(w, r, tserrors.New("TS111").Wrap(err))
		return
	}
	if err := sess.Table().Sync(r.Context()); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

// columnPayload updates the filter options of one column.
type columnPayload struct {
	Options   []tablestate.FilterOption `json:"options"`
	IsLoading *bool                     `json:"isLoading"`
}

func (s *Server) handleColumnOptions(w http.ResponseWriter, r *http.Request) {
	var body columnPayload
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&body); err != nil {
		s.writeError(w, r, tserrors.New("TS108").Wrap(err))
		return
	}

	sess, err := s.session(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	id := chi.URLParam(r, "column")
	columns := sess.Table().Columns()
	found := false
	for i := range columns {
		if columns[i].ID != id || columns[i].Filter == nil {
			continue
		}
		meta := *columns[i].Filter
		meta.Options = body.Options
		meta.IsLoading = body.IsLoading
		if meta.IsLoading == nil {
			meta.IsLoading = tablestate.Loading(false)
		}
		columns[i].Filter = &meta
		found = true
	}
	if !found {
		s.writeError(w, r, tserrors.New("TS107").WithDetail(id))
		return
	}

	if err := sess.Table().SetColumns(r.Context(), columns); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

func (s *Server) handleClearPersisted(w http.ResponseWriter, r *http.Request) {
	var kind bucket.Kind
	switch name := chi.URLParam(r, "bucket"); name {
	case "url":
		kind = bucket.URL
	case "local":
		kind = bucket.Local
	default:
		s.writeError(w, r, tserrors.New("TS103").WithDetail(name))
		return
	}

	sess, err := s.session(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := sess.Table().ClearPersisted(r.Context(), kind); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

func (s *Server) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	if !s.sessions.Close(clientID(w, r), chi.URLParam(r, "table")) {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// errorBody is the JSON error response.
type errorBody struct {
	Code  string `json:"code,omitempty"`
	Error string `json:"error"`
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	body := errorBody{Error: err.Error()}

	var coded *tserrors.Error
	if errors.As(err, &coded) {
		body.Code = coded.Code
		switch coded.Code {
		case "TS106", "TS107", "TS123":
			status = http.StatusNotFound
		case "TS101", "TS103", "TS104", "TS108", "TS121", "TS122":
			status = http.StatusBadRequest
		}
	}

	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err)
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		fmt.Fprintf(w, `{"error":%q}`, err.Error())
	}
}
