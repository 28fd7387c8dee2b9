package server

import (
	"context"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lucasriondel/use-persisting-state-for-react-table-sub001/pkg/metrics"
	"github.com/lucasriondel/use-persisting-state-for-react-table-sub001/pkg/tablestate"
	"github.com/lucasriondel/use-persisting-state-for-react-table-sub001/pkg/urlbucket"
)

// EventType tags the messages sent to watchers.
type EventType string

const (
	// EventState carries a full snapshot after a state change.
	EventState EventType = "state"

	// EventNavigate carries a URL bucket navigation.
	EventNavigate EventType = "navigate"
)

// Event is one message on a watch stream.
type Event struct {
	Type     EventType `json:"type"`
	Snapshot *Snapshot `json:"snapshot,omitempty"`

	// Query and Mode are set on navigate events.
	Query string `json:"query,omitempty"`
	Mode  string `json:"mode,omitempty"`
}

// Snapshot is the externally visible state of a session.
type Snapshot struct {
	Table                             string           `json:"table"`
	State                             tablestate.State `json:"state"`
	Query                             string           `json:"query"`
	PendingFilters                    []string         `json:"pendingFilters,omitempty"`
	HasFinishedProcessingAsyncFilters bool             `json:"hasFinishedProcessingAsyncFilters"`
}

// watcherBuffer is the per-watcher event backlog. Events beyond it are
// dropped for that watcher.
const watcherBuffer = 16

// Session is the state of one table for one client.
type Session struct {
	ClientID  string
	TableName string
	CreatedAt time.Time

	table   *tablestate.Table
	buckets *tablestate.Buckets

	lastActive atomic.Int64

	mu          sync.Mutex
	watchers    map[int]chan Event
	nextWatcher int
	closed      bool

	unsubscribe func()
	cancel      context.CancelFunc
	logger      *slog.Logger
}

func newSession(clientID, table string, logger *slog.Logger) *Session {
	s := &Session{
		ClientID:  clientID,
		TableName: table,
		CreatedAt: time.Now(),
		watchers:  make(map[int]chan Event),
		logger:    logger.With("client_id", clientID, "table", table),
	}
	s.Touch()
	return s
}

// attach binds the table and buckets to the session and starts fan-out of
// state changes to watchers.
func (s *Session) attach(table *tablestate.Table, buckets *tablestate.Buckets, cancel context.CancelFunc) {
	s.table = table
	s.buckets = buckets
	s.cancel = cancel
	s.unsubscribe = table.Subscribe(func(tablestate.State) {
		snap := s.Snapshot()
		s.broadcast(Event{Type: EventState, Snapshot: &snap})
	})
}

// Table returns the table state of the session.
func (s *Session) Table() *tablestate.Table {
	return s.table
}

// Buckets returns the buckets of the session.
func (s *Session) Buckets() *tablestate.Buckets {
	return s.buckets
}

// Touch marks the session as active.
func (s *Session) Touch() {
	s.lastActive.Store(time.Now().UnixNano())
}

// LastActive returns the time of the last request on the session.
func (s *Session) LastActive() time.Time {
	return time.Unix(0, s.lastActive.Load())
}

// Snapshot returns the current state of the session.
func (s *Session) Snapshot() Snapshot {
	return Snapshot{
		Table:                             s.TableName,
		State:                             s.table.State(),
		Query:                             s.buckets.URL.Encode(),
		PendingFilters:                    s.table.PendingFilters(),
		HasFinishedProcessingAsyncFilters: s.table.HasFinishedProcessingAsyncFilters(),
	}
}

// Navigate re-hydrates the URL bucket from query and re-resolves the state,
// as on browser history navigation.
func (s *Session) Navigate(ctx context.Context, query url.Values) error {
	s.buckets.URL.Hydrate(query)
	return s.table.Sync(ctx)
}

// Watch registers a watcher and returns its event channel and a function
// that unregisters it.
func (s *Session) Watch() (<-chan Event, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan Event, watcherBuffer)
	if s.closed {
		close(ch)
		return ch, func() {}
	}
	id := s.nextWatcher
	s.nextWatcher++
	s.watchers[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if w, ok := s.watchers[id]; ok {
				delete(s.watchers, id)
				close(w)
			}
		})
	}
}

// Watchers returns the number of open watch streams.
func (s *Session) Watchers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.watchers)
}

func (s *Session) navigate(query string, mode urlbucket.Mode) {
	s.broadcast(Event{Type: EventNavigate, Query: query, Mode: mode.String()})
}

func (s *Session) broadcast(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, ch := range s.watchers {
		select {
		case ch <- ev:
		default:
			s.logger.Warn("dropping event for slow watcher", "watcher", id, "type", ev.Type)
		}
	}
}

// Close stops the session and ends every watch stream.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	for id, ch := range s.watchers {
		delete(s.watchers, id)
		close(ch)
	}
	s.mu.Unlock()

	if s.unsubscribe != nil {
		s.unsubscribe()
	}
	if s.cancel != nil {
		s.cancel()
	}
	if s.buckets != nil {
		s.buckets.URL.Flush()
	}
}

// OpenFunc creates the session of a client for a table.
type OpenFunc func(ctx context.Context, clientID, table string, query url.Values) (*Session, error)

// SessionManagerConfig configures a SessionManager.
type SessionManagerConfig struct {
	// TTL closes sessions idle for longer. Zero keeps them until shutdown.
	TTL time.Duration

	// CleanupInterval is how often expired sessions are swept.
	CleanupInterval time.Duration

	// Open creates missing sessions.
	Open OpenFunc

	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// SessionManager manages all active sessions.
// It handles session creation, lookup and idle cleanup.
type SessionManager struct {
	sessions map[string]*Session
	mu       sync.RWMutex

	ttl  time.Duration
	open OpenFunc

	cleanupInterval time.Duration
	done            chan struct{}
	cleanupDone     chan struct{}
	shutdownOnce    sync.Once

	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewSessionManager creates a SessionManager and starts its cleanup loop.
func NewSessionManager(cfg SessionManagerConfig) *SessionManager {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	interval := cfg.CleanupInterval
	if interval <= 0 {
		interval = DefaultCleanupInterval
	}

	sm := &SessionManager{
		sessions:        make(map[string]*Session),
		ttl:             cfg.TTL,
		open:            cfg.Open,
		cleanupInterval: interval,
		done:            make(chan struct{}),
		cleanupDone:     make(chan struct{}),
		logger:          logger.With("component", "session_manager"),
		metrics:         cfg.Metrics,
	}

	go sm.cleanupLoop()

	return sm
}

func sessionKey(clientID, table string) string {
	return clientID + "/" + table
}

// Acquire returns the session of clientID for table, opening it with query
// when it does not exist. created reports whether a new session was opened.
func (sm *SessionManager) Acquire(ctx context.Context, clientID, table string, query url.Values) (sess *Session, created bool, err error) {
	key := sessionKey(clientID, table)

	sm.mu.RLock()
	sess, ok := sm.sessions[key]
	sm.mu.RUnlock()
	if ok {
		sess.Touch()
		return sess, false, nil
	}

	opened, err := sm.open(ctx, clientID, table, query)
	if err != nil {
		return nil, false, err
	}

	sm.mu.Lock()
	if existing, ok := sm.sessions[key]; ok {
		sm.mu.Unlock()
		opened.Close()
		existing.Touch()
		return existing, false, nil
	}
	sm.sessions[key] = opened
	count := len(sm.sessions)
	sm.mu.Unlock()

	sm.metrics.RecordSessionCreate()
	sm.logger.Info("session created",
		"client_id", clientID,
		"table", table,
		"active_sessions", count)

	return opened, true, nil
}

// Get returns the session of clientID for table, if open.
func (sm *SessionManager) Get(clientID, table string) (*Session, bool) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	sess, ok := sm.sessions[sessionKey(clientID, table)]
	return sess, ok
}

// Close closes and removes the session of clientID for table.
func (sm *SessionManager) Close(clientID, table string) bool {
	key := sessionKey(clientID, table)

	sm.mu.Lock()
	sess, ok := sm.sessions[key]
	if ok {
		delete(sm.sessions, key)
	}
	sm.mu.Unlock()

	if !ok {
		return false
	}
	sm.closeSession(sess, "closed")
	return true
}

// Count returns the number of open sessions.
func (sm *SessionManager) Count() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.sessions)
}

func (sm *SessionManager) closeSession(sess *Session, reason string) {
	sess.Close()
	sm.metrics.RecordSessionDestroy()
	sm.logger.Info("session closed",
		"client_id", sess.ClientID,
		"table", sess.TableName,
		"reason", reason)
}

func (sm *SessionManager) cleanupLoop() {
	defer close(sm.cleanupDone)

	ticker := time.NewTicker(sm.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			sm.cleanupExpired(time.Now())
		case <-sm.done:
			return
		}
	}
}

// cleanupExpired removes sessions idle past the TTL. Sessions with an open
// watch stream never expire.
func (sm *SessionManager) cleanupExpired(now time.Time) int {
	if sm.ttl <= 0 {
		return 0
	}

	sm.mu.Lock()
	var expired []*Session
	for key, sess := range sm.sessions {
		if sess.Watchers() > 0 {
			continue
		}
		if now.Sub(sess.LastActive()) > sm.ttl {
			expired = append(expired, sess)
			delete(sm.sessions, key)
		}
	}
	sm.mu.Unlock()

	for _, sess := range expired {
		sm.closeSession(sess, "expired")
	}
	if len(expired) > 0 {
		sm.logger.Debug("expired sessions removed", "count", len(expired))
	}
	return len(expired)
}

// Shutdown stops the cleanup loop and closes every session.
func (sm *SessionManager) Shutdown() {
	sm.shutdownOnce.Do(func() {
		close(sm.done)
		<-sm.cleanupDone

		sm.mu.Lock()
		sessions := make([]*Session, 0, len(sm.sessions))
		for _, s := range sm.sessions {
			sessions = append(sessions, s)
		}
		sm.sessions = make(map[string]*Session)
		sm.mu.Unlock()

		for _, s := range sessions {
			sm.closeSession(s, "shutdown")
		}
	})
}
