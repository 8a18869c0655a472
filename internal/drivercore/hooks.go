// Package drivercore implements the companion component described in
// spec §1/§3 (the inverse role for a locally-rendered X11 session): it
// intercepts an X server's drawing primitives through a GC hook table,
// maintains the same Surface/CacheSet/Display shadow state (C1/C2/C3)
// the RDP side uses, and exposes the resulting display stream to one
// or more attached viewers.
package drivercore

import (
	"log/slog"

	"github.com/deskrelay/gateway/internal/display"
	"github.com/deskrelay/gateway/internal/surface"
)

// Hooks is the Go equivalent of the X.Org driver's GCOps dispatch
// table: one method per drawing primitive the (hypothetical, built
// elsewhere) X server integration calls into synchronously from its
// own single-threaded event loop (spec §5's scheduling model). Every
// method just mutates the shared Display; the pacer attached to it
// picks up the resulting dirty state on its own schedule.
type Hooks struct {
	disp *display.Display
	log  *slog.Logger
}

// NewHooks builds a Hooks bound to disp.
func NewHooks(disp *display.Display, log *slog.Logger) *Hooks {
	if log == nil {
		log = slog.Default()
	}
	return &Hooks{disp: disp, log: log}
}

// CreateDrawable allocates a new composed layer for an X11 window or
// pixmap, mirroring guac_drv_create_drawable.
func (h *Hooks) CreateDrawable(parentID, x, y, z, w, height int, opacity uint8) int {
	return h.disp.CreateLayer(parentID, x, y, z, w, height, opacity)
}

// DestroyDrawable removes a drawable, mirroring guac_drv_destroy_drawable.
func (h *Hooks) DestroyDrawable(id int) error {
	return h.disp.DestroyLayer(id)
}

// MoveDrawable reparents/repositions a drawable.
func (h *Hooks) MoveDrawable(id, parentID, x, y, z int) error {
	return h.disp.Move(id, parentID, x, y, z)
}

// ResizeDrawable changes a drawable's pixel extent.
func (h *Hooks) ResizeDrawable(id, w, height int) error {
	return h.disp.Resize(id, w, height)
}

// ShadeDrawable updates a drawable's blend opacity.
func (h *Hooks) ShadeDrawable(id int, opacity uint8) error {
	return h.disp.SetOpacity(id, opacity)
}

// CopyArea mirrors xf86-video-guac's copy.c/composite.c split (the
// supplemented feature #5): a plain CopyArea is a fast-path blit that
// can go through the destination surface's deferred copy queue, same
// as any other region copy. A composited (alpha-blended) copy has
// already been rendered by the X server into source pixels the copy
// queue's "replay as memcpy" semantics cannot reproduce, so it must
// materialize into the destination immediately instead of being
// queued.
func (h *Hooks) CopyArea(srcID int, sx, sy, w, height int, dstID int, dx, dy int, composited bool) error {
	src, err := h.disp.Surface(srcID)
	if err != nil {
		return err
	}
	dst, err := h.disp.Surface(dstID)
	if err != nil {
		return err
	}

	if !composited {
		dst.CopyRect(src, sx, sy, w, height, dx, dy)
		return nil
	}

	pixels := src.ReadRect(surface.Rect{X: sx, Y: sy, W: w, H: height})
	return dst.DrawImage(dx, dy, pixels, w*4, surface.FormatRGBA32)
}

// FillRect mirrors the fillspans/polyfillrect family for a solid-color
// fill, the one shape common across all of the X server's many
// fill-primitive entry points.
func (h *Hooks) FillRect(id int, x, y, w, height int, rgba [4]byte) error {
	s, err := h.disp.Surface(id)
	if err != nil {
		return err
	}
	s.SetRect(x, y, w, height, rgba)
	return nil
}

// PutImage mirrors guac_drv_putimage: a direct client-side pixel blit
// (text rendering, image rendering, XPutImage) that always forces an
// image update rather than a queued copy.
func (h *Hooks) PutImage(id int, x, y int, pixels []byte, stride int, format surface.Format) error {
	s, err := h.disp.Surface(id)
	if err != nil {
		return err
	}
	return s.DrawImage(x, y, pixels, stride, format)
}
