// Package clipboard bridges clipboard content between the RDP side's
// cliprdr channel and the display protocol's "clipboard" instruction
// (spec §4.10/§6), normalizing text so a copy on one platform pastes
// correctly on the other.
package clipboard

import (
	"log/slog"
	"sync"

	"golang.org/x/text/unicode/norm"
)

// ContentType identifies the payload carried by a Content value.
type ContentType string

const (
	ContentTypeText ContentType = "text"
)

const defaultMimeType = "text/plain"

// Content is one clipboard snapshot. Only plain text crosses the
// display protocol boundary (spec §6 lists "clipboard" with no
// image/RTF framing), so Text is the only payload field.
type Content struct {
	Type ContentType
	Text string
}

// Provider is the RDP-side clipboard: whatever the remote desktop's
// cliprdr virtual channel currently holds, and a way to push a new
// value down to it. The RDP connection itself is opaque to this
// package (spec §6's callback table), so callers supply an
// implementation wired to their own cliprdr handling.
type Provider interface {
	GetContent() (Content, error)
	SetContent(content Content) error
}

// Bridge forwards clipboard changes in both directions for one
// session: client → RDP via Provider.SetContent, and RDP → client via
// a registered push function. It normalizes text to NFC on the way
// in from the client and on the way out to the client, since X11 and
// Windows clipboard implementations disagree on composed-form
// conventions for accented characters.
type Bridge struct {
	provider Provider
	log      *slog.Logger

	mu       sync.Mutex
	toClient func(mimeType string, data []byte) error
	lastSeen string
}

// New builds a Bridge over the given RDP-side provider.
func New(provider Provider, log *slog.Logger) *Bridge {
	if log == nil {
		log = slog.Default()
	}
	return &Bridge{provider: provider, log: log}
}

// OnPushToClient registers the function used to emit clipboard updates
// toward the display protocol client — typically *session.Session's
// Writer.Clipboard, wrapped by the caller.
func (b *Bridge) OnPushToClient(fn func(mimeType string, data []byte) error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.toClient = fn
}

// FromClient applies a clipboard update the display protocol client
// sent (the inbound "clipboard" instruction's decoded payload) to the
// RDP side, after NFC-normalizing the text.
func (b *Bridge) FromClient(mimeType string, data []byte) error {
	text := norm.NFC.String(string(data))
	b.mu.Lock()
	b.lastSeen = text
	b.mu.Unlock()
	return b.provider.SetContent(Content{Type: ContentTypeText, Text: text})
}

// FromRemote is called when the RDP side's cliprdr channel reports a
// new clipboard value (format-list/data-response). It skips pushing
// to the client if the value already originated there, avoiding an
// echo loop between the two sides.
func (b *Bridge) FromRemote(content Content) error {
	normalized := norm.NFC.String(content.Text)

	b.mu.Lock()
	if normalized == b.lastSeen {
		b.mu.Unlock()
		return nil
	}
	b.lastSeen = normalized
	push := b.toClient
	b.mu.Unlock()

	if push == nil {
		return nil
	}
	if err := push(defaultMimeType, []byte(normalized)); err != nil {
		b.log.Debug("clipboard: push to client failed", "error", err)
		return err
	}
	return nil
}

// Refresh polls the provider once and forwards the result via
// FromRemote, for RDP backends that expose clipboard changes only
// through polling rather than a push notification.
func (b *Bridge) Refresh() error {
	content, err := b.provider.GetContent()
	if err != nil {
		return err
	}
	return b.FromRemote(content)
}
