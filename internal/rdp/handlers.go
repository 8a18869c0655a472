// Package rdp implements the drawing-order handlers described in spec
// §4.8 (C8): one function per RDP order, each translating protocol
// coordinates and cache references into the corresponding C1 surface
// mutation.
package rdp

import (
	"fmt"
	"log/slog"

	"github.com/deskrelay/gateway/internal/cache"
	"github.com/deskrelay/gateway/internal/display"
	"github.com/deskrelay/gateway/internal/gwerr"
	"github.com/deskrelay/gateway/internal/surface"
)

// Handlers dispatches translated RDP drawing orders onto a Display's
// surfaces, resolving cache references against a shared cache.Set.
type Handlers struct {
	disp  *display.Display
	cache *cache.Set
	log   *slog.Logger
}

// NewHandlers builds an order dispatcher bound to disp and cacheSet.
func NewHandlers(disp *display.Display, cacheSet *cache.Set, log *slog.Logger) *Handlers {
	if log == nil {
		log = slog.Default()
	}
	return &Handlers{disp: disp, cache: cacheSet, log: log}
}

// resolveMode translates rop and logs the fallback, matching spec
// §4.8's "fallback: emit as if SRCCOPY, log at debug" and the
// REDESIGN FLAGS note that unmapped codes may be logged uniformly
// regardless of which order triggered them.
func (h *Handlers) resolveMode(order string, rop byte) CompositingMode {
	mode, ok := translateROP3(rop)
	if !ok {
		h.log.Debug("rdp: unmapped ROP3, falling back to SRCCOPY", "order", order, "rop", fmt.Sprintf("0x%02X", rop))
	}
	return mode
}

// DstBltOrder is the DSTBLT order: a destination-only raster operation
// over a rectangle, with no source or pattern operand.
type DstBltOrder struct {
	SurfaceID  int
	X, Y, W, H int
	Rop        byte
}

func (h *Handlers) DstBlt(o DstBltOrder) error {
	surf, err := h.disp.Surface(o.SurfaceID)
	if err != nil {
		return err
	}
	mode := h.resolveMode("dstblt", o.Rop)
	rect := surface.Rect{X: o.X, Y: o.Y, W: o.W, H: o.H}
	pixels := surf.ReadRect(rect)
	for i := 0; i+3 < len(pixels); i += 4 {
		pixels[i+0] = applyDstOnlyOp(mode, pixels[i+0])
		pixels[i+1] = applyDstOnlyOp(mode, pixels[i+1])
		pixels[i+2] = applyDstOnlyOp(mode, pixels[i+2])
	}
	return surf.DrawImage(o.X, o.Y, pixels, o.W*4, surface.FormatRGBA32)
}

// PatBltOrder is the PATBLT order: a rectangle filled with a cached
// brush pattern (for ModePatCopy) or a destination-only raster op
// (any other resolved mode, same handling as DSTBLT).
type PatBltOrder struct {
	SurfaceID  int
	X, Y, W, H int
	Rop        byte
	BrushCache int
	BrushEntry int
}

func (h *Handlers) PatBlt(o PatBltOrder) error {
	surf, err := h.disp.Surface(o.SurfaceID)
	if err != nil {
		return err
	}
	mode := h.resolveMode("patblt", o.Rop)

	if mode != ModePatCopy {
		rect := surface.Rect{X: o.X, Y: o.Y, W: o.W, H: o.H}
		pixels := surf.ReadRect(rect)
		for i := 0; i+3 < len(pixels); i += 4 {
			pixels[i+0] = applyDstOnlyOp(mode, pixels[i+0])
			pixels[i+1] = applyDstOnlyOp(mode, pixels[i+1])
			pixels[i+2] = applyDstOnlyOp(mode, pixels[i+2])
		}
		return surf.DrawImage(o.X, o.Y, pixels, o.W*4, surface.FormatRGBA32)
	}

	brush, err := h.cache.GetBrush(cache.Key{CacheID: o.BrushCache, EntryID: o.BrushEntry})
	if err != nil {
		return err
	}
	tiled := tileBrush(brush, o.W, o.H)
	return surf.DrawImage(o.X, o.Y, tiled, o.W*3, surface.FormatRGB24)
}

// tileBrush repeats an 8x8 or 16x16 RGB24 brush pattern to cover a
// w x h rectangle, row-major RGB24.
func tileBrush(brush cache.BrushEntry, w, h int) []byte {
	out := make([]byte, w*h*3)
	if brush.Size == 0 {
		return out
	}
	for row := 0; row < h; row++ {
		srcRow := row % brush.Size
		for col := 0; col < w; col++ {
			srcCol := col % brush.Size
			srcOff := (srcRow*brush.Size + srcCol) * 3
			dstOff := (row*w + col) * 3
			if srcOff+3 <= len(brush.Pattern) {
				copy(out[dstOff:dstOff+3], brush.Pattern[srcOff:srcOff+3])
			}
		}
	}
	return out
}

// ScrBltOrder is the SCRBLT order: a screen-to-screen copy, source and
// destination on the same surface (or between surfaces sharing a
// display, e.g. offscreen blits).
type ScrBltOrder struct {
	SurfaceID    int
	SrcSurfaceID int
	SX, SY, DX, DY, W, H int
	Rop          byte
}

func (h *Handlers) ScrBlt(o ScrBltOrder) error {
	dst, err := h.disp.Surface(o.SurfaceID)
	if err != nil {
		return err
	}
	src, err := h.disp.Surface(o.SrcSurfaceID)
	if err != nil {
		return err
	}
	h.resolveMode("scrblt", o.Rop) // SCRBLT only has a faithful surface-copy path; any rop besides SRCCOPY degrades to it, logged above.
	dst.CopyRect(src, o.SX, o.SY, o.W, o.H, o.DX, o.DY)
	return nil
}

// MemBltOrder is the MEMBLT order: a blit from a cached bitmap onto a
// surface.
type MemBltOrder struct {
	SurfaceID   int
	X, Y        int
	BitmapCache int
	BitmapEntry int
	Rop         byte
}

func (h *Handlers) MemBlt(o MemBltOrder) error {
	surf, err := h.disp.Surface(o.SurfaceID)
	if err != nil {
		return err
	}
	bmp, err := h.cache.GetBitmap(cache.Key{CacheID: o.BitmapCache, EntryID: o.BitmapEntry})
	if err != nil {
		return err
	}
	h.resolveMode("memblt", o.Rop) // cached-bitmap blits are always treated as SRCCOPY; other modes log and degrade.
	stride := bmp.Width * bytesPerPixelFor(bmp.Format)
	return surf.DrawImage(o.X, o.Y, bmp.Pixels, stride, bmp.Format)
}

func bytesPerPixelFor(f surface.Format) int {
	if f == surface.FormatRGB24 {
		return 3
	}
	return 4
}

// OpaqueRectOrder is the OPAQUE-RECT order: a solid-color fill.
type OpaqueRectOrder struct {
	SurfaceID  int
	X, Y, W, H int
	Color      [3]byte
}

func (h *Handlers) OpaqueRect(o OpaqueRectOrder) error {
	surf, err := h.disp.Surface(o.SurfaceID)
	if err != nil {
		return err
	}
	surf.SetRect(o.X, o.Y, o.W, o.H, [4]byte{o.Color[0], o.Color[1], o.Color[2], 0xFF})
	return nil
}

// PolylineOrder is the POLYLINE order: a sequence of connected line
// segments in a single color.
type PolylineOrder struct {
	SurfaceID int
	Points    []Point
	Color     [3]byte
}

// Point is one vertex of a POLYLINE order, in surface space.
type Point struct {
	X, Y int
}

func (h *Handlers) Polyline(o PolylineOrder) error {
	surf, err := h.disp.Surface(o.SurfaceID)
	if err != nil {
		return err
	}
	rgba := [4]byte{o.Color[0], o.Color[1], o.Color[2], 0xFF}
	for i := 1; i < len(o.Points); i++ {
		for _, p := range linePixels(o.Points[i-1], o.Points[i]) {
			surf.SetRect(p.X, p.Y, 1, 1, rgba)
		}
	}
	return nil
}

// linePixels walks a and b via Bresenham's algorithm.
func linePixels(a, b Point) []Point {
	dx := abs(b.X - a.X)
	dy := -abs(b.Y - a.Y)
	sx, sy := 1, 1
	if a.X > b.X {
		sx = -1
	}
	if a.Y > b.Y {
		sy = -1
	}
	err := dx + dy

	var out []Point
	x, y := a.X, a.Y
	for {
		out = append(out, Point{X: x, Y: y})
		if x == b.X && y == b.Y {
			break
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x += sx
		}
		if e2 <= dx {
			err += dx
			y += sy
		}
	}
	return out
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// GlyphIndexOrder is the GLYPH-INDEX order: a run of cached glyph
// masks stamped at successive pen positions in a single foreground
// color.
type GlyphIndexOrder struct {
	SurfaceID  int
	GlyphCache int
	Glyphs     []GlyphRun
	Color      [3]byte
}

// GlyphRun places one cached glyph's mask at (X, Y) plus the glyph's
// own origin offset.
type GlyphRun struct {
	EntryID int
	X, Y    int
}

func (h *Handlers) GlyphIndex(o GlyphIndexOrder) error {
	surf, err := h.disp.Surface(o.SurfaceID)
	if err != nil {
		return err
	}
	for _, run := range o.Glyphs {
		glyph, err := h.cache.GetGlyph(cache.Key{CacheID: o.GlyphCache, EntryID: run.EntryID})
		if err != nil {
			return err
		}
		x, y := run.X+glyph.OriginX, run.Y+glyph.OriginY
		rect := surface.Rect{X: x, Y: y, W: glyph.Width, H: glyph.Height}
		dst := surf.ReadRect(rect)
		stampGlyph(dst, glyph, o.Color)
		if err := surf.DrawImage(x, y, dst, glyph.Width*4, surface.FormatRGBA32); err != nil {
			return gwerr.New(gwerr.ClassProtocolError, "rdp", err)
		}
	}
	return nil
}

// PointerColorOrder is the Color/New Pointer update: a full ARGB
// cursor image delivered inline (not a cache reference), optionally
// cached under EntryID for later reuse via PointerCachedOrder.
type PointerColorOrder struct {
	EntryID            int
	Image              []byte // row-major ARGB32
	Width, Height      int
	HotspotX, HotspotY int
	X, Y               int // current screen position, for the cursor primitive
}

// PointerColor handles a New/Color Pointer update: cache the image
// under its entry id (future CACHED-POINTER orders reference it) and
// set it as the display's current cursor.
func (h *Handlers) PointerColor(o PointerColorOrder) {
	entry := cache.PointerEntry{
		Image: o.Image, Width: o.Width, Height: o.Height,
		HotspotX: o.HotspotX, HotspotY: o.HotspotY,
	}
	h.cache.PutPointer(o.EntryID, entry)
	h.disp.SetCursor(entry.Image, entry.Width, entry.Height, entry.HotspotX, entry.HotspotY, o.X, o.Y)
}

// PointerCachedOrder is the CACHED-POINTER update: switch the current
// cursor to a previously-cached pointer entry by id.
type PointerCachedOrder struct {
	EntryID int
	X, Y    int
}

// PointerCached handles a Cached Pointer update. A miss is not fatal
// here (unlike every other cache in §4.2): it renders the built-in
// default cursor instead, per the cache contract's one
// non-fatal-miss rule, and logs the fallback at debug since a
// well-behaved server should not reference an entry it never cached.
func (h *Handlers) PointerCached(o PointerCachedOrder) {
	if _, ok := h.cache.GetPointer(o.EntryID); !ok {
		h.log.Debug("rdp: cached-pointer miss, rendering default cursor", "entry", o.EntryID)
	}
	entry := h.cache.GetPointerOrDefault(o.EntryID)
	h.disp.SetCursor(entry.Image, entry.Width, entry.Height, entry.HotspotX, entry.HotspotY, o.X, o.Y)
}

// PointerNullOrder is the NULL-POINTER update: hide the cursor
// entirely by setting an empty (zero-sized, nil) cursor image at the
// given position.
type PointerNullOrder struct {
	X, Y int
}

// PointerNull handles a hidden-cursor update.
func (h *Handlers) PointerNull(o PointerNullOrder) {
	h.disp.SetCursor(nil, 0, 0, 0, 0, o.X, o.Y)
}

// stampGlyph paints color over dst wherever the glyph's 1-bit mask is
// set, leaving unset pixels untouched. dst is row-major RGBA32 sized
// glyph.Width x glyph.Height; mask is packed MSB-first, one bit per
// pixel, rows byte-aligned.
func stampGlyph(dst []byte, glyph cache.GlyphEntry, color [3]byte) {
	rowBytes := (glyph.Width + 7) / 8
	for row := 0; row < glyph.Height; row++ {
		for col := 0; col < glyph.Width; col++ {
			byteIdx := row*rowBytes + col/8
			if byteIdx >= len(glyph.Mask) {
				continue
			}
			bit := glyph.Mask[byteIdx] & (0x80 >> uint(col%8))
			if bit == 0 {
				continue
			}
			off := (row*glyph.Width + col) * 4
			if off+4 > len(dst) {
				continue
			}
			dst[off+0], dst[off+1], dst[off+2], dst[off+3] = color[0], color[1], color[2], 0xFF
		}
	}
}
