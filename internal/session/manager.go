package session

import (
	"context"
	"log/slog"
	"net"
	"sync"

	"github.com/deskrelay/gateway/internal/cache"
	"github.com/deskrelay/gateway/internal/display"
	"github.com/deskrelay/gateway/internal/keymap"
	"github.com/deskrelay/gateway/internal/pacer"
	"github.com/google/uuid"
)

// Manager tracks every session attached to one display (spec §4.10/
// §5: the "listen thread per display" accepts connections that this
// Manager then owns for their lifetime).
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	disp      *display.Display
	cacheSet  *cache.Set
	keymapMgr *keymap.Manager
	pacerCfg  pacer.Config
	cfg       Config
	log       *slog.Logger

	onHandshake func(*Session, ConnectParams) error
}

// OnHandshakeComplete registers fn to run once a session's handshake
// has produced ConnectParams, before synchronization starts — the seam
// cmd/gateway uses to dial the RDP-side connection (which needs the
// negotiated domain/username/password/dimensions) and wire its
// input/clipboard forwarding hooks (OnReleaseKeys, OnMouseEvent,
// OnKeyEvent, OnClipboard, OnResize) onto the session. Returning an
// error aborts the connection before any display state is replayed.
func (m *Manager) OnHandshakeComplete(fn func(*Session, ConnectParams) error) {
	m.onHandshake = fn
}

// NewManager builds a Manager for a single display; every accepted
// connection becomes one Session rendering that display.
func NewManager(disp *display.Display, cacheSet *cache.Set, keymapMgr *keymap.Manager, pacerCfg pacer.Config, cfg Config, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		sessions:  make(map[string]*Session),
		disp:      disp,
		cacheSet:  cacheSet,
		keymapMgr: keymapMgr,
		pacerCfg:  pacerCfg,
		cfg:       cfg,
		log:       log,
	}
}

// Accept runs one connection's full lifecycle: handshake, sync, a
// dedicated pacer, and the steady-state input loop, blocking until the
// session ends. Callers typically invoke this in its own goroutine per
// accepted net.Conn.
func (m *Manager) Accept(ctx context.Context, conn net.Conn) error {
	id := uuid.NewString()
	sess := New(id, conn, m.disp, m.cacheSet, m.keymapMgr, m.cfg, m.log)

	m.mu.Lock()
	m.sessions[id] = sess
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		delete(m.sessions, id)
		m.mu.Unlock()
		sess.Close()
	}()

	params, err := sess.Handshake(ctx)
	if err != nil {
		m.log.Warn("session handshake failed", "session", id, "error", err)
		sess.writer.Error(err.Error(), 0)
		return err
	}

	if m.onHandshake != nil {
		if err := m.onHandshake(sess, params); err != nil {
			m.log.Warn("session post-handshake hook failed", "session", id, "error", err)
			sess.writer.Error(err.Error(), 0)
			return err
		}
	}

	if err := sess.SyncDisplay(); err != nil {
		m.log.Warn("session sync failed", "session", id, "error", err)
		return err
	}

	sessCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := pacer.New(m.pacerCfg, sess.FlushFrame, nil, m.log)
	sess.setPacer(p)
	go p.Run(sessCtx)

	return sess.RunSteadyState(sessCtx)
}

// Get returns the session with the given id, if still connected.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Broadcast notifies every attached session's pacer that a
// driver-side mutation happened (spec §4.10 shutdown step: "signal any
// other sessions attached to the same display").
func (m *Manager) Broadcast() {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.sessions {
		if s.pacer != nil {
			s.pacer.MarkModified()
		}
	}
}

// Sessions returns a snapshot of every currently attached session, for
// callers that need to act on each individually (e.g. the driver
// core's forced-flush broadcast after a composited copy).
func (m *Manager) Sessions() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	return out
}

// Count reports the number of currently attached sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// CloseAll closes every attached session, used during process
// shutdown.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
}
