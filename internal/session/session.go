// Package session implements the per-client lifecycle described in
// spec §4.10 (C10): handshake, initial synchronization, steady-state
// input dispatch, and shutdown.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/deskrelay/gateway/internal/audio"
	"github.com/deskrelay/gateway/internal/cache"
	"github.com/deskrelay/gateway/internal/display"
	"github.com/deskrelay/gateway/internal/gwerr"
	"github.com/deskrelay/gateway/internal/inputstate"
	"github.com/deskrelay/gateway/internal/keymap"
	"github.com/deskrelay/gateway/internal/pacer"
	"github.com/deskrelay/gateway/internal/protocol"
	"github.com/deskrelay/gateway/internal/rdp"
)

// State is the session's lifecycle stage (spec §5's cancellation
// model: a status field every loop checks).
type State int

const (
	StateHandshake State = iota
	StateSyncing
	StateSteady
	StateStopping
	StateClosed
)

// advertisedParams is the fixed set of connection parameter names sent
// in the handshake "args" instruction, matching the CLI flags named in
// spec §6 that make sense per-connection rather than per-process.
var advertisedParams = []string{
	"domain", "username", "password",
	"width", "height", "initial-program", "color-depth",
	"disable-audio", "console", "console-audio",
}

// ConnectParams is the parsed payload of the handshake's "connect"
// instruction, positional per advertisedParams.
type ConnectParams struct {
	Domain         string
	Username       string
	Password       string
	Width          int
	Height         int
	InitialProgram string
	ColorDepth     int
	DisableAudio   bool
	Console        bool
	ConsoleAudio   bool

	OptimalWidth  int
	OptimalHeight int
	AudioMimeTypes []string
	VideoMimeTypes []string
}

// Config holds per-session tuning knobs.
type Config struct {
	HandshakeTimeout time.Duration // default 15s, per spec §5
	HeartbeatInterval time.Duration // default 15s: steady-state ping-equivalent cadence
}

func (c Config) withDefaults() Config {
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 15 * time.Second
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 15 * time.Second
	}
	return c
}

// Session owns one client connection end-to-end: the socket, the
// display it renders, the input/modifier state machines, and the
// pacer driving its outbound flush cadence.
type Session struct {
	ID   string
	conn net.Conn

	reader *protocol.Reader
	writer *protocol.Writer
	// updateLock guards the outbound socket (spec §5): acquired by the
	// pacer on every flush and by the initial-sync code, never held
	// across a blocking read.
	updateLock sync.Mutex

	disp      *display.Display
	cacheSet  *cache.Set
	keymapMgr *keymap.Manager
	handlers  *rdp.Handlers

	keyState   *inputstate.KeyStateMachine
	mouseState *inputstate.MouseStateMachine
	audio      *audio.Stream

	pacer *pacer.FramePacer
	cfg   Config
	log   *slog.Logger

	// releaseKeys forwards C5's shutdown release-all events to the RDP
	// side's input channel. The RDP connection itself is opaque to this
	// package (spec §6: a callback table registered with the third-party
	// library), so the caller supplies this hook; nil is a valid no-op
	// for tests and for sessions with no live RDP side yet.
	releaseKeys func([]inputstate.KeyEvent)
	onMouse     func(motion *inputstate.MotionEvent, buttons []inputstate.ButtonEvent)
	onKey       func([]inputstate.KeyEvent)
	onClipboard func(mimeType string, data []byte)
	onResize    func(w, h int)
	onClose     func()

	mu    sync.Mutex
	state State

	introduced   map[int]bool
	lastActivity time.Time

	closeOnce sync.Once
	closed    chan struct{}
}

// New builds a Session bound to conn, rendering through disp/cacheSet.
// The caller supplies keymapMgr (shared across sessions attached to
// the same display) so the session's key state machine can resolve
// keysyms through the active layered chain.
func New(id string, conn net.Conn, disp *display.Display, cacheSet *cache.Set, keymapMgr *keymap.Manager, cfg Config, log *slog.Logger) *Session {
	if log == nil {
		log = slog.Default()
	}
	s := &Session{
		ID:        id,
		conn:      conn,
		reader:    protocol.NewReader(conn),
		writer:    protocol.NewWriter(conn),
		disp:      disp,
		cacheSet:  cacheSet,
		keymapMgr: keymapMgr,
		handlers:  rdp.NewHandlers(disp, cacheSet, log),
		cfg:       cfg.withDefaults(),
		log:       log.With("session", id),
		closed:    make(chan struct{}),
	}
	s.keyState = inputstate.NewKeyStateMachine(keymapMgr.Lookup)
	s.mouseState = inputstate.NewMouseStateMachine()
	return s
}

// OnReleaseKeys registers the hook used to forward C5's shutdown
// release-all events to the RDP side.
func (s *Session) OnReleaseKeys(fn func([]inputstate.KeyEvent)) {
	s.releaseKeys = fn
}

// OnClose registers fn to run once, when the session is torn down —
// the seam the RDP-side connection uses to close itself alongside the
// display-protocol socket.
func (s *Session) OnClose(fn func()) {
	s.onClose = fn
}

// MarkModified notifies this session's pacer that the display changed,
// if the pacer has been started yet. The RDP-side EndPaint callback
// calls this (via rdp.NewCallbacks) to trigger a flush; it is a no-op
// before the pacer is attached, which can happen briefly during the
// post-handshake hook since the pacer starts only after synchronization.
func (s *Session) MarkModified() {
	s.mu.Lock()
	p := s.pacer
	s.mu.Unlock()
	if p != nil {
		p.MarkModified()
	}
}

// PushClipboard writes a clipboard update toward this session's client,
// the hook a clipboard.Bridge wires via OnPushToClient to forward a
// remote-desktop-initiated clipboard change.
func (s *Session) PushClipboard(mimeType string, data []byte) error {
	s.updateLock.Lock()
	defer s.updateLock.Unlock()
	return s.writer.Clipboard(mimeType, data)
}

// audioStreamID names the single chunked blob substream this session's
// negotiated audio encoder writes to (spec §4.7: "encoded frames are
// written into a chunked binary substream on the display protocol").
const audioStreamID = "audio-0"

// PushAudioPCM feeds raw PCM samples from the RDP audio channel into
// the negotiated encoder and forwards whatever it produced to the
// client's audio blob substream. A no-op if audio was disabled or no
// encoder was negotiated at handshake time (spec §4.7: "if none match,
// audio is silently disabled").
func (s *Session) PushAudioPCM(pcm []byte) error {
	if s.audio == nil {
		return nil
	}
	if err := s.audio.Push(pcm); err != nil {
		return gwerr.New(gwerr.ClassNotSupported, "session", err)
	}
	if encoded := s.audio.Drain(); len(encoded) > 0 {
		s.updateLock.Lock()
		defer s.updateLock.Unlock()
		return s.writer.BlobStream(audioStreamID, encoded)
	}
	return nil
}

// endAudio flushes the negotiated encoder's trailing frames and sends
// whatever that produced, called once during shutdown.
func (s *Session) endAudio() {
	if s.audio == nil {
		return
	}
	if err := s.audio.End(); err != nil {
		s.log.Debug("session: audio end failed", "error", err)
		return
	}
	if encoded := s.audio.Drain(); len(encoded) > 0 {
		s.updateLock.Lock()
		defer s.updateLock.Unlock()
		if err := s.writer.BlobStream(audioStreamID, encoded); err != nil {
			s.log.Debug("session: write failed", "error", err)
		}
	}
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// State reports the session's current lifecycle stage.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) touchActivity() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

// Handshake runs the handshake phase: select → args → size → audio →
// video → connect, per spec §4.10. Every step is bounded by
// HandshakeTimeout; a timed-out or malformed step is fatal.
func (s *Session) Handshake(ctx context.Context) (ConnectParams, error) {
	s.setState(StateHandshake)
	s.conn.SetReadDeadline(time.Now().Add(s.cfg.HandshakeTimeout))
	defer s.conn.SetReadDeadline(time.Time{})

	sel, err := s.reader.ReadInstruction()
	if err != nil {
		return ConnectParams{}, gwerr.New(gwerr.ClassTimeout, "session", err)
	}
	if sel.Opcode != protocol.OpSelect || len(sel.Args) == 0 || sel.Args[0] != "rdp" {
		return ConnectParams{}, gwerr.New(gwerr.ClassProtocolError, "session", fmt.Errorf("select: expected protocol \"rdp\", got %v", sel.Args))
	}

	if err := s.writer.Args(advertisedParams...); err != nil {
		return ConnectParams{}, gwerr.New(gwerr.ClassTransient, "session", err)
	}

	sizeInst, err := s.reader.ReadInstruction()
	if err != nil || sizeInst.Opcode != protocol.OpSize || len(sizeInst.Args) < 2 {
		return ConnectParams{}, gwerr.New(gwerr.ClassProtocolError, "session", fmt.Errorf("expected size instruction"))
	}
	optimalWidth, _ := strconv.Atoi(sizeInst.Args[0])
	optimalHeight, _ := strconv.Atoi(sizeInst.Args[1])

	audioInst, err := s.reader.ReadInstruction()
	if err != nil || audioInst.Opcode != protocol.OpAudio {
		return ConnectParams{}, gwerr.New(gwerr.ClassProtocolError, "session", fmt.Errorf("expected audio instruction"))
	}

	videoInst, err := s.reader.ReadInstruction()
	if err != nil || videoInst.Opcode != protocol.OpVideo {
		return ConnectParams{}, gwerr.New(gwerr.ClassProtocolError, "session", fmt.Errorf("expected video instruction"))
	}

	connectInst, err := s.reader.ReadInstruction()
	if err != nil || connectInst.Opcode != protocol.OpConnect {
		return ConnectParams{}, gwerr.New(gwerr.ClassProtocolError, "session", fmt.Errorf("expected connect instruction"))
	}

	params := parseConnectParams(connectInst.Args)
	params.OptimalWidth, params.OptimalHeight = optimalWidth, optimalHeight
	params.AudioMimeTypes = audioInst.Args
	params.VideoMimeTypes = videoInst.Args

	if !params.DisableAudio {
		if enc, ok := audio.Negotiate(params.AudioMimeTypes); ok {
			s.audio = audio.NewStream(enc, audio.PCMFormat{Channels: 2, SampleRateHz: 44100, BytesPerSample: 2})
		}
	}

	s.touchActivity()
	return params, nil
}

// parseConnectParams maps the connect instruction's positional fields
// onto advertisedParams, falling back to zero values for any field the
// client omitted rather than failing the handshake — a short arg list
// is a lesser-featured client, not a protocol error.
func parseConnectParams(args []string) ConnectParams {
	get := func(i int) string {
		if i < len(args) {
			return args[i]
		}
		return ""
	}
	atoi := func(v string, fallback int) int {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fallback
		}
		return n
	}
	return ConnectParams{
		Domain:         get(0),
		Username:       get(1),
		Password:       get(2),
		Width:          atoi(get(3), 1024),
		Height:         atoi(get(4), 768),
		InitialProgram: get(5),
		ColorDepth:     atoi(get(6), 16),
		DisableAudio:   get(7) == "true",
		Console:        get(8) == "true",
		ConsoleAudio:   get(9) == "true",
	}
}

// Close tears the session down: releases held keys (C5), signals
// shutdown to any loop checking Done, and closes the socket. Safe to
// call more than once and from any goroutine.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.setState(StateStopping)
		if s.keyState != nil {
			releases := s.keyState.Shutdown()
			if len(releases) > 0 && s.releaseKeys != nil {
				s.releaseKeys(releases)
			}
		}
		s.endAudio()
		if s.onClose != nil {
			s.onClose()
		}
		err = s.conn.Close()
		s.setState(StateClosed)
		close(s.closed)
	})
	return err
}

// Done returns a channel closed once the session has shut down.
func (s *Session) Done() <-chan struct{} {
	return s.closed
}

// setPacer attaches this session's running pacer, called once by
// Manager.Accept after the initial synchronization completes.
func (s *Session) setPacer(p *pacer.FramePacer) {
	s.mu.Lock()
	s.pacer = p
	s.mu.Unlock()
}
