package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/doc-analyzer/widget/internal/i18n"
	"github.com/doc-analyzer/widget/internal/widget"
	"github.com/google/uuid"
)

// DefaultMaxSessions limits concurrent widgets when no limit is configured.
const DefaultMaxSessions = 100

// SessionKeepAliveWindow is how long a session counts as in use after its
// last event.
const SessionKeepAliveWindow = 5 * time.Minute

var (
	// ErrTooManySessions is returned when the session limit is reached and no
	// idle session can be reclaimed.
	ErrTooManySessions = errors.New("too many active sessions")
	// ErrSessionClosed is returned when sending to a session that has ended.
	ErrSessionClosed = errors.New("session closed")
)

// Session is one page view with its running widget.
type Session struct {
	ID        string
	Lang      string
	CreatedAt time.Time
	Widget    *widget.Widget

	events       chan widget.Event
	cancel       context.CancelFunc
	done         chan struct{}
	lastAccessed time.Time
}

// Send delivers an event to the session's widget.
func (s *Session) Send(ctx context.Context, ev widget.Event) error {
	select {
	case s.events <- ev:
		return nil
	case <-s.done:
		return ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed once the widget has stopped.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Manager tracks the live widget sessions.
type Manager struct {
	sessions    map[string]*Session
	mu          sync.RWMutex
	base        widget.Config
	maxSessions int
}

// NewManager creates a session manager. base supplies the collaborators
// shared by every widget; ID, View and Catalog are set per session.
func NewManager(base widget.Config, maxSessions int) *Manager {
	if maxSessions <= 0 {
		maxSessions = DefaultMaxSessions
	}
	return &Manager{
		sessions:    make(map[string]*Session),
		base:        base,
		maxSessions: maxSessions,
	}
}

// StartSession creates a widget for a new page view and starts its loop.
func (m *Manager) StartSession(lang string, view widget.View) (*Session, error) {
	if !i18n.Supported(lang) {
		lang = i18n.DefaultLang
	}

	cfg := m.base
	cfg.ID = uuid.New().String()
	cfg.View = view
	cfg.Catalog = i18n.Lookup(lang)

	ctx, cancel := context.WithCancel(context.Background())
	now := time.Now()
	s := &Session{
		ID:           cfg.ID,
		Lang:         lang,
		CreatedAt:    now,
		Widget:       widget.New(cfg),
		events:       make(chan widget.Event),
		cancel:       cancel,
		done:         make(chan struct{}),
		lastAccessed: now,
	}

	// The slot is checked and taken under one lock.
	m.mu.Lock()
	victim, ok := m.makeRoomLocked()
	if !ok {
		m.mu.Unlock()
		cancel()
		return nil, ErrTooManySessions
	}
	m.sessions[s.ID] = s
	m.mu.Unlock()

	if victim != nil {
		fmt.Printf("[Manager] Reclaimed idle session %s to make room\n", shortID(victim.ID))
		stop(victim)
	}

	go m.run(ctx, s)

	fmt.Printf("[Session %s] Started (lang=%s)\n", shortID(s.ID), lang)
	return s, nil
}

func (m *Manager) run(ctx context.Context, s *Session) {
	defer func() {
		if r := recover(); r != nil {
			fmt.Printf("[Session %s] PANIC recovered: %v\n", shortID(s.ID), r)
		}
		close(s.done)

		m.mu.Lock()
		if cur, ok := m.sessions[s.ID]; ok && cur == s {
			delete(m.sessions, s.ID)
		}
		m.mu.Unlock()
	}()

	if err := s.Widget.Run(ctx, s.events); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Printf("[Session %s] Widget stopped: %v\n", shortID(s.ID), err)
	}
}

// makeRoomLocked frees a slot when at capacity by unregistering the least
// recently used idle session, which the caller stops. m.mu must be held.
func (m *Manager) makeRoomLocked() (*Session, bool) {
	if len(m.sessions) < m.maxSessions {
		return nil, true
	}

	keepAliveCutoff := time.Now().Add(-SessionKeepAliveWindow)
	var victim *Session
	for _, s := range m.sessions {
		if s.lastAccessed.After(keepAliveCutoff) {
			continue
		}
		if victim == nil || s.lastAccessed.Before(victim.lastAccessed) {
			victim = s
		}
	}
	if victim == nil {
		return nil, false
	}
	delete(m.sessions, victim.ID)
	return victim, true
}

// GetSession returns a session by ID.
func (m *Manager) GetSession(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	return s, ok
}

// TouchSession updates the last access time of a session.
func (m *Manager) TouchSession(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return false
	}
	s.lastAccessed = time.Now()
	return true
}

// Snapshot returns the current state of a session's widget.
func (m *Manager) Snapshot(ctx context.Context, id string) (widget.Snapshot, bool, error) {
	s, ok := m.GetSession(id)
	if !ok {
		return widget.Snapshot{}, false, nil
	}
	snap, err := s.Widget.Snapshot(ctx)
	return snap, true, err
}

// ListSessions returns the IDs of live sessions, oldest first.
func (m *Manager) ListSessions() []string {
	m.mu.RLock()
	list := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		list = append(list, s)
	}
	m.mu.RUnlock()

	sort.Slice(list, func(i, j int) bool {
		return list[i].CreatedAt.Before(list[j].CreatedAt)
	})
	ids := make([]string, len(list))
	for i, s := range list {
		ids[i] = s.ID
	}
	return ids
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// EndSession stops a session's widget and waits for it to release its files.
func (m *Manager) EndSession(id string) bool {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	if !ok {
		return false
	}
	stop(s)
	fmt.Printf("[Session %s] Ended\n", shortID(id))
	return true
}

// CleanupOldSessions ends sessions that have not been touched for maxAge.
func (m *Manager) CleanupOldSessions(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)

	m.mu.Lock()
	var stale []*Session
	for id, s := range m.sessions {
		if s.lastAccessed.Before(cutoff) {
			stale = append(stale, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, s := range stale {
		stop(s)
		fmt.Printf("[Manager] Cleaned up aged session %s (last accessed: %s ago)\n",
			shortID(s.ID), time.Since(s.lastAccessed).Round(time.Second))
	}
	return len(stale)
}

// Shutdown ends every session.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	all := make([]*Session, 0, len(m.sessions))
	for id, s := range m.sessions {
		all = append(all, s)
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	for _, s := range all {
		stop(s)
	}
}

func stop(s *Session) {
	s.cancel()
	<-s.done
}

func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
