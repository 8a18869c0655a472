package session

import (
	"context"
	"io"
	"strconv"
	"time"

	"github.com/deskrelay/gateway/internal/gwerr"
	"github.com/deskrelay/gateway/internal/inputstate"
	"github.com/deskrelay/gateway/internal/protocol"
)

// OnMouseEvent, OnKeyEvent, and OnClipboard forward translated input
// to the RDP side and clipboard bridge respectively. The RDP
// connection is opaque to this package (spec §6's callback table), so
// the caller wires these after construction; any left nil are simply
// not dispatched.
func (s *Session) OnMouseEvent(fn func(motion *inputstate.MotionEvent, buttons []inputstate.ButtonEvent)) {
	s.onMouse = fn
}

func (s *Session) OnKeyEvent(fn func([]inputstate.KeyEvent)) {
	s.onKey = fn
}

func (s *Session) OnClipboard(fn func(mimeType string, data []byte)) {
	s.onClipboard = fn
}

// RunSteadyState reads inbound instructions until the connection
// closes, ctx is canceled, or a "disconnect" instruction arrives,
// dispatching each to the relevant state machine per spec §4.10's
// steady-state phase. It returns once the input side has stopped; the
// caller is responsible for then calling Close.
func (s *Session) RunSteadyState(ctx context.Context) error {
	s.setState(StateSteady)
	s.conn.SetReadDeadline(time.Time{})

	go s.heartbeatLoop(ctx)

	for {
		if ctx.Err() != nil {
			return nil
		}
		inst, err := s.reader.ReadInstruction()
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return gwerr.New(gwerr.ClassProtocolError, "session", err)
		}
		s.touchActivity()

		switch inst.Opcode {
		case protocol.OpMouse:
			s.handleMouse(inst.Args)
		case protocol.OpKey:
			s.handleKey(inst.Args)
		case protocol.OpSize:
			s.handleResize(inst.Args)
		case protocol.OpClipboard:
			s.handleClipboard(inst.Args)
		case protocol.OpDisconnect:
			return nil
		default:
			s.log.Debug("session: ignoring unrecognized inbound opcode", "opcode", inst.Opcode)
		}
	}
}

func (s *Session) handleMouse(args []string) {
	if len(args) < 3 {
		return
	}
	x, _ := strconv.Atoi(args[0])
	y, _ := strconv.Atoi(args[1])
	mask, _ := strconv.Atoi(args[2])
	motion, buttons := s.mouseState.HandleMouse(x, y, uint8(mask))
	if s.onMouse != nil && (motion != nil || len(buttons) > 0) {
		s.onMouse(motion, buttons)
	}
}

func (s *Session) handleKey(args []string) {
	if len(args) < 2 {
		return
	}
	keysym, err := strconv.ParseUint(args[0], 0, 32)
	if err != nil {
		return
	}
	pressed := args[1] == "1" || args[1] == "true"
	events := s.keyState.HandleKey(uint32(keysym), pressed)
	if s.onKey != nil && len(events) > 0 {
		s.onKey(events)
	}
}

func (s *Session) handleResize(args []string) {
	if len(args) < 2 {
		return
	}
	w, err1 := strconv.Atoi(args[0])
	h, err2 := strconv.Atoi(args[1])
	if err1 != nil || err2 != nil || w <= 0 || h <= 0 {
		return
	}
	if s.onResize != nil {
		s.onResize(w, h)
	}
}

func (s *Session) handleClipboard(args []string) {
	if s.onClipboard == nil || len(args) < 2 {
		return
	}
	mimeType := args[0]
	s.onClipboard(mimeType, []byte(args[1]))
}

// OnResize registers the hook invoked when the client requests a
// new optimal size; typically wired to renegotiate the RDP session's
// desktop_resize callback.
func (s *Session) OnResize(fn func(w, h int)) {
	s.onResize = fn
}

func (s *Session) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.closed:
			return
		case <-ticker.C:
			s.updateLock.Lock()
			err := s.writer.Sync(time.Now().UnixMilli())
			s.updateLock.Unlock()
			if err != nil {
				s.log.Debug("session: heartbeat sync write failed", "error", err)
				return
			}
			s.mu.Lock()
			idle := time.Since(s.lastActivity)
			s.mu.Unlock()
			if idle > 2*s.cfg.HeartbeatInterval {
				s.log.Warn("session: no client activity within timeout window, closing", "idle", idle)
				s.Close()
				return
			}
		}
	}
}
