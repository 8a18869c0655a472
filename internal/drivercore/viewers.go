package drivercore

import (
	"context"
	"log/slog"
	"net"
	"sync"

	"github.com/deskrelay/gateway/internal/cache"
	"github.com/deskrelay/gateway/internal/display"
	"github.com/deskrelay/gateway/internal/keymap"
	"github.com/deskrelay/gateway/internal/pacer"
	"github.com/deskrelay/gateway/internal/session"
	"github.com/deskrelay/gateway/internal/surface"
	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"
)

// Server owns one shared Display (and the Hooks mutating it) plus
// every viewer attached to it. Unlike the RDP side, where one process
// renders exactly one session, §1/§3 says the driver core's display
// stream may have "possibly many per session" viewers watching the
// same X11 desktop concurrently. A single Display.Flush call drains
// the shared dirty state, so there is exactly one pacer for the whole
// Server; its flush callback fans the resulting delta out to every
// attached viewer's socket concurrently (guac_multicast.c's per-client
// loop, translated into a conc/pool fan-out so one slow viewer can't
// delay the rest).
type Server struct {
	Hooks *Hooks

	disp      *display.Display
	cacheSet  *cache.Set
	keymapMgr *keymap.Manager
	sessCfg   session.Config
	pacer     *pacer.FramePacer
	log       *slog.Logger

	mu      sync.RWMutex
	viewers map[string]*session.Session
}

// NewServer builds a Server around a freshly created Display of the
// given dimensions, shared by every attached viewer.
func NewServer(width, height int, surfCfg surface.Config, cacheCaps cache.Capacities, pacerCfg pacer.Config, sessCfg session.Config, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	cacheSet := cache.New(cacheCaps)
	disp := display.New(width, height, surfCfg, cacheSet)
	srv := &Server{
		Hooks:     NewHooks(disp, log),
		disp:      disp,
		cacheSet:  cacheSet,
		keymapMgr: keymap.NewManager(),
		sessCfg:   sessCfg,
		log:       log,
		viewers:   make(map[string]*session.Session),
	}
	srv.pacer = pacer.New(pacerCfg, srv.broadcastFlush, nil, log)
	return srv
}

// Run drives the Server's shared pacer until ctx is canceled. The
// caller runs this alongside whatever accepts X11-side GC hook calls
// and viewer connections (cmd/drivercore's responsibility).
func (srv *Server) Run(ctx context.Context) {
	srv.pacer.Run(ctx)
}

// Attach runs one viewer connection's handshake and initial sync, then
// its steady-state input loop, blocking until it disconnects. No
// per-viewer pacer is started — the Server's single shared pacer
// drives every viewer's output.
func (srv *Server) Attach(ctx context.Context, conn net.Conn) error {
	id := uuid.NewString()
	sess := session.New(id, conn, srv.disp, srv.cacheSet, srv.keymapMgr, srv.sessCfg, srv.log)

	srv.mu.Lock()
	srv.viewers[id] = sess
	srv.mu.Unlock()
	defer func() {
		srv.mu.Lock()
		delete(srv.viewers, id)
		srv.mu.Unlock()
		sess.Close()
	}()

	if _, err := sess.Handshake(ctx); err != nil {
		return err
	}
	if err := sess.SyncDisplay(); err != nil {
		return err
	}
	return sess.RunSteadyState(ctx)
}

func (srv *Server) snapshotViewers() []*session.Session {
	srv.mu.RLock()
	defer srv.mu.RUnlock()
	out := make([]*session.Session, 0, len(srv.viewers))
	for _, v := range srv.viewers {
		out = append(out, v)
	}
	return out
}

// broadcastFlush is the shared pacer's flush callback: drain the
// display once, then apply the resulting delta to every attached
// viewer concurrently.
func (srv *Server) broadcastFlush() {
	deltas, disposals, cursor := srv.disp.Flush()
	if len(deltas) == 0 && len(disposals) == 0 && cursor == nil {
		return
	}

	viewers := srv.snapshotViewers()
	p := pool.New()
	for _, v := range viewers {
		v := v
		p.Go(func() { v.ApplyDelta(deltas, disposals, cursor) })
	}
	p.Wait()
}

// Count reports the number of currently attached viewers.
func (srv *Server) Count() int {
	srv.mu.RLock()
	defer srv.mu.RUnlock()
	return len(srv.viewers)
}

// CloseAll disconnects every attached viewer, used during process
// shutdown.
func (srv *Server) CloseAll() {
	srv.mu.Lock()
	viewers := make([]*session.Session, 0, len(srv.viewers))
	for _, v := range srv.viewers {
		viewers = append(viewers, v)
	}
	srv.viewers = make(map[string]*session.Session)
	srv.mu.Unlock()

	for _, v := range viewers {
		v.Close()
	}
}
