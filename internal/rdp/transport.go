package rdp

import (
	"errors"
	"log/slog"

	"github.com/deskrelay/gateway/internal/clipboard"
	"github.com/deskrelay/gateway/internal/gwerr"
	"github.com/deskrelay/gateway/internal/inputstate"
)

var errNoTransport = errors.New("rdp: no transport registered")

// ConnectParams are the parameters needed to establish the wire-level
// RDP connection (spec §6's connection CLI surface, carried from
// internal/config and/or the display protocol's "connect" instruction).
type ConnectParams struct {
	Hostname       string
	Port           int
	Domain         string
	Username       string
	Password       string
	Width          int
	Height         int
	ColorDepth     int
	InitialProgram string
	Console        bool
	ConsoleAudio   bool
	DisableAudio   bool
}

// Callbacks is the Go shape of the callback table spec §6 says gets
// registered with the third-party RDP library: one entry per
// connection lifecycle hook plus one per drawing order (already
// implemented as Handlers methods in handlers.go). EndPaint and
// DesktopResize are the two hooks that do not correspond one-to-one to
// a single drawing order.
type Callbacks struct {
	PreConnect    func() error
	PostConnect   func() error
	EndPaint      func()
	DesktopResize func(w, h int) error
}

// NewCallbacks builds the callback table a real RDP client library
// would register, wired so EndPaint marks the frame pacer modified
// (spec §4.9: drawing-order handlers and this callback are the only
// producers that ever call MarkModified) and DesktopResize resizes the
// root surface. markModified is a closure rather than a *pacer.FramePacer
// directly since the owning session's pacer is not started until after
// the post-handshake hook that builds these callbacks returns (spec
// §4.10 synchronizes the display before the pacer runs); session.Session
// exposes a MarkModified method that is a safe no-op until then.
func NewCallbacks(h *Handlers, markModified func(), onResize func(w, h int) error) Callbacks {
	return Callbacks{
		PreConnect:  func() error { return nil },
		PostConnect: func() error { return nil },
		EndPaint: func() {
			if markModified != nil {
				markModified()
			}
		},
		DesktopResize: func(w, h int) error {
			if onResize != nil {
				return onResize(w, h)
			}
			return nil
		},
	}
}

// Connection is what a connected RDP session exposes back to
// internal/session for forwarding translated input and clipboard
// traffic (spec §4.10 steady state: "updates... flow through C8 → C9",
// inbound events flow the opposite direction through here).
type Connection interface {
	// SendKeyEvents forwards C5's key-state-machine output (scancode,
	// flags, pressed) to the RDP input channel.
	SendKeyEvents(events []inputstate.KeyEvent) error
	// SendMotion forwards a coalesced absolute pointer position.
	SendMotion(ev *inputstate.MotionEvent) error
	// SendButtons forwards discrete button press/release events.
	SendButtons(events []inputstate.ButtonEvent) error
	// Clipboard returns the bridge wired to this connection's cliprdr
	// channel, or nil if clipboard redirection was not negotiated.
	Clipboard() *clipboard.Bridge
	// OnAudioPCM registers fn to be called with raw interleaved PCM
	// samples as the RDP audio channel delivers them (spec §4.7: the
	// pump's input side). A no-op registration is valid when audio
	// redirection was not negotiated or is disabled.
	OnAudioPCM(fn func(pcm []byte))
	// Close tears down the RDP-side connection.
	Close() error
}

// Transport dials the wire-level RDP connection and registers cb
// against it. Spec §1 scopes the actual binary framing/TLS/NLA
// handshake and MCS channel handling out of this core — "a
// third-party library supplies it; the core consumes decoded drawing
// orders through a callback table" — so Transport is the seam a real
// deployment plugs a concrete RDP client library into, the same way
// the teacher's screen-capture/encoder backends are selected per
// platform behind a common interface (internal/remote/desktop's
// capture_*.go / encoder_*.go split, before that subsystem was
// dropped — see DESIGN.md).
type Transport interface {
	Dial(params ConnectParams, cb Callbacks, handlers *Handlers) (Connection, error)
}

// UnavailableTransport is the default Transport: it reports
// NotSupported rather than silently no-opping, mirroring the teacher's
// own build-tag stub backends (e.g. capture_other.go's
// newPlatformCapturer) that return ErrNotSupported when no concrete
// backend is compiled in for the current target. A deployment that
// vendors a real RDP client library registers its own Transport
// instead of this one (see cmd/gateway's wiring).
type UnavailableTransport struct {
	Log *slog.Logger
}

func (t UnavailableTransport) Dial(params ConnectParams, cb Callbacks, handlers *Handlers) (Connection, error) {
	log := t.Log
	if log == nil {
		log = slog.Default()
	}
	log.Error("rdp: no transport registered; wire-level RDP codec is out of scope for this core (spec §1) and must be supplied by a vendored client library", "hostname", params.Hostname, "port", params.Port)
	return nil, gwerr.New(gwerr.ClassNotSupported, "rdp", errNoTransport)
}
