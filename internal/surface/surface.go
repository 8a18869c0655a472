// Package surface implements the per-layer pixel buffer with dirty-region
// coalescing described in spec §4.1 (C1): the shadow copy of one RDP
// surface or X11 drawable, tracking what changed since the last flush
// and turning that into the cheapest primitive sequence that reproduces
// it on the remote viewer.
package surface

import (
	"fmt"

	"github.com/deskrelay/gateway/internal/gwerr"
)

// Format identifies the pixel layout of an external image blitted in
// via DrawImage. The surface's own buffer is always 32-bit RGBA.
type Format int

const (
	FormatRGBA32 Format = iota
	FormatBGRA32
	FormatRGB24
)

// ImagePrimitive is an instruction-stream "png"/"rect" candidate: a
// rectangle of pixels to be re-sent to the client, in RGBA32.
type ImagePrimitive struct {
	Rect   Rect
	Pixels []byte // len == Rect.W*Rect.H*4, row-major RGBA
}

// CopyPrimitive is a "copy" instruction candidate: a blit the client can
// perform locally instead of receiving new pixel data.
type CopyPrimitive struct {
	SrcSurfaceID int
	Src          Rect
	DstX, DstY   int
}

// FillPrimitive is a "rect"+"cfill" instruction candidate: the entire
// dirty region this flush is one constant color, so the client can be
// told to paint a rectangle rather than receive pixel data for it
// (spec §8 scenario 1).
type FillPrimitive struct {
	Rect  Rect
	Color [4]byte
}

// FrameDelta is what Flush found to report. Copies, Fill, Image, and
// Tiles are mutually exclusive per §4.1: a flush is entirely queued
// copies (cheap), a single constant-color fill (cheaper still), or
// collapses to one image update. Tiles holds that same image update
// split into grid-aligned pieces when it exceeds the surface's
// configured per-instruction byte budget (MaxTileBytes); Image and
// Tiles are themselves mutually exclusive — a flush picks one or the
// other, never both.
type FrameDelta struct {
	Copies []CopyPrimitive
	Fill   *FillPrimitive
	Image  *ImagePrimitive
	Tiles  []ImagePrimitive
}

// Empty reports whether the flush produced nothing to send.
func (d FrameDelta) Empty() bool {
	return len(d.Copies) == 0 && d.Fill == nil && d.Image == nil && len(d.Tiles) == 0
}

type copyEntry struct {
	src          Rect
	srcSurfaceID int
	srcPixels    []byte // snapshot taken at enqueue time for same-surface self-copies
	dstX, dstY   int
	downgrade    bool // computed at enqueue time per the intersecting-copy rule
}

// Surface owns one rectangular RGBA pixel buffer plus the bookkeeping
// needed to flush it efficiently: a bounding dirty rect, an optional
// clip region, and a bounded FIFO of pending copy operations.
type Surface struct {
	ID       int
	ParentID int
	X, Y, Z  int
	Opacity  uint8

	width, height int
	pixels        []byte // row-major RGBA32

	dirtyFromPaint Rect // union of set_rect/draw_image/overflow-materialized regions
	dirtyFromCopy  Rect // union of still-queued copy destination regions
	bounds         *Rect

	copyQueue    []copyEntry
	queueCap     int
	gridSnap     int
	maxTileBytes int

	// fillValid tracks whether everything dirtied so far this frame is a
	// single set_rect call's constant color, so Flush can emit a cfill
	// instead of rasterizing an image. Any other mutation (a second
	// paint op, draw_image, or a materialized copy) clears it.
	fillValid bool
	fillColor [4]byte
}

// Config controls tuning knobs that in the real deployment come from
// the process configuration (spec §6): copy-queue depth and grid-snap
// alignment.
type Config struct {
	CopyQueueCapacity int
	GridSnap          int
	MaxTileBytes      int
}

// New creates a surface of the given extent, initially fully transparent.
func New(id, parentID int, x, y, z int, width, height int, opacity uint8, cfg Config) *Surface {
	if cfg.CopyQueueCapacity <= 0 {
		cfg.CopyQueueCapacity = 256
	}
	if cfg.GridSnap <= 0 {
		cfg.GridSnap = 64
	}
	return &Surface{
		ID:           id,
		ParentID:     parentID,
		X:            x,
		Y:            y,
		Z:            z,
		Opacity:      opacity,
		width:        width,
		height:       height,
		pixels:       make([]byte, width*height*4),
		queueCap:     cfg.CopyQueueCapacity,
		gridSnap:     cfg.GridSnap,
		maxTileBytes: cfg.MaxTileBytes,
	}
}

// Width and Height report the surface's current pixel extent.
func (s *Surface) Width() int  { return s.width }
func (s *Surface) Height() int { return s.height }

func (s *Surface) extent() Rect {
	return Rect{W: s.width, H: s.height}
}

// applyClip intersects area with the active bounds (if any) via the
// clip-split algorithm, returning only the portion that should actually
// be painted. Rectangles split outside the bounds are dropped per §4.1.
func (s *Surface) applyClip(area Rect) Rect {
	if s.bounds == nil {
		return area.ClampTo(s.extent())
	}
	inside, _ := clipSplit(area, *s.bounds)
	return inside.ClampTo(s.extent())
}

func (s *Surface) markPaintDirty(area Rect) {
	s.dirtyFromPaint = s.dirtyFromPaint.Union(area)
}

// SetRect fills area with a constant RGBA color.
func (s *Surface) SetRect(x, y, w, h int, rgba [4]byte) {
	area := s.applyClip(Rect{X: x, Y: y, W: w, H: h})
	if area.Empty() {
		return
	}
	for row := area.Y; row < area.Bottom(); row++ {
		base := (row*s.width + area.X) * 4
		for col := 0; col < area.W; col++ {
			copy(s.pixels[base+col*4:base+col*4+4], rgba[:])
		}
	}
	if s.dirtyFromPaint.Empty() && s.dirtyFromCopy.Empty() {
		s.fillValid = true
		s.fillColor = rgba
	} else {
		s.fillValid = false
	}
	s.markPaintDirty(area)
}

// DrawImage blits an externally-sourced image into the surface at (x,y).
// srcPixels is row-major in the given format with srcStride bytes per row.
func (s *Surface) DrawImage(x, y int, srcPixels []byte, srcStride int, format Format) error {
	srcW, srcH := strideDims(srcStride, format, len(srcPixels))
	area := s.applyClip(Rect{X: x, Y: y, W: srcW, H: srcH})
	if area.Empty() {
		return nil
	}

	s.fillValid = false

	bpp := bytesPerPixel(format)
	for row := 0; row < area.H; row++ {
		srcRow := row + (area.Y - y)
		srcOff := srcRow*srcStride + (area.X-x)*bpp
		dstOff := ((area.Y+row)*s.width + area.X) * 4
		for col := 0; col < area.W; col++ {
			so := srcOff + col*bpp
			if so+bpp > len(srcPixels) {
				return gwerr.New(gwerr.ClassBadArgument, "surface", fmt.Errorf("draw_image source out of bounds"))
			}
			convertPixel(format, srcPixels[so:so+bpp], s.pixels[dstOff+col*4:dstOff+col*4+4])
		}
	}
	s.markPaintDirty(area)
	return nil
}

// CopyRect queues a copy from src (on srcSurface, which may be s itself)
// into s at (dx,dy). The copy is not applied to pixel memory immediately;
// see §4.1's copy-queue policy. If the queue is at capacity, the oldest
// entry is materialized into pixel memory now and evicted to make room.
func (s *Surface) CopyRect(srcSurface *Surface, sx, sy, w, h, dx, dy int) {
	src := Rect{X: sx, Y: sy, W: w, H: h}.ClampTo(srcSurface.extent())
	if src.Empty() {
		return
	}
	dst := s.applyClip(Rect{X: dx, Y: dy, W: src.W, H: src.H})
	if dst.Empty() {
		return
	}
	// Re-clamp src to the (possibly clipped) dst size.
	src.W, src.H = dst.W, dst.H

	// Identity copy: same surface, same rectangle. Emits no primitive
	// and mutates no pixels (testable invariant #3).
	if srcSurface.ID == s.ID && src.X == dst.X && src.Y == dst.Y && src.W == dst.W && src.H == dst.H {
		return
	}

	s.fillValid = false

	entry := copyEntry{
		src:          src,
		srcSurfaceID: srcSurface.ID,
		dstX:         dst.X,
		dstY:         dst.Y,
	}

	// Intersecting-copy rule: same-surface copy whose source overlaps the
	// destination, where the source region was already dirtied earlier
	// this frame, is downgraded to an image update — the remote hasn't
	// seen the source in its current state yet.
	if srcSurface.ID == s.ID && src.Overlaps(Rect{X: dst.X, Y: dst.Y, W: dst.W, H: dst.H}) && s.dirtyFromPaint.Overlaps(src) {
		entry.downgrade = true
	}

	// Snapshot source pixels now: same-surface copies must see the state
	// at enqueue time, not whatever the buffer looks like at flush time
	// after other queued entries have been materialized ahead of it.
	entry.srcPixels = srcSurface.snapshot(src)

	if len(s.copyQueue) >= s.queueCap {
		oldest := s.copyQueue[0]
		s.copyQueue = s.copyQueue[1:]
		s.materialize(oldest)
	}
	s.copyQueue = append(s.copyQueue, entry)
	s.dirtyFromCopy = s.dirtyFromCopy.Union(Rect{X: dst.X, Y: dst.Y, W: dst.W, H: dst.H})
}

// ReadRect returns a row-major RGBA32 copy of area, clamped to the
// surface's extent. Used by callers that need to composite against
// existing destination content (raster-op translation) rather than
// simply overwrite it.
func (s *Surface) ReadRect(area Rect) []byte {
	return s.snapshot(area.ClampTo(s.extent()))
}

func (s *Surface) snapshot(area Rect) []byte {
	out := make([]byte, area.W*area.H*4)
	for row := 0; row < area.H; row++ {
		srcOff := ((area.Y+row)*s.width + area.X) * 4
		dstOff := row * area.W * 4
		copy(out[dstOff:dstOff+area.W*4], s.pixels[srcOff:srcOff+area.W*4])
	}
	return out
}

// materialize writes a queued copy entry's pixels into the buffer
// without producing a wire primitive for it; used both for normal queue
// draining (flush) and for eager eviction on overflow.
func (s *Surface) materialize(e copyEntry) {
	for row := 0; row < e.src.H; row++ {
		srcOff := row * e.src.W * 4
		dstOff := ((e.dstY+row)*s.width + e.dstX) * 4
		copy(s.pixels[dstOff:dstOff+e.src.W*4], e.srcPixels[srcOff:srcOff+e.src.W*4])
	}
	area := Rect{X: e.dstX, Y: e.dstY, W: e.src.W, H: e.src.H}
	s.fillValid = false
	s.markPaintDirty(area)
}

// Resize changes the surface's dimensions. Content outside the new
// extent is discarded; the dirty region is recomputed to cover the
// entire new extent so the next flush resends it whole.
func (s *Surface) Resize(w, h int) {
	next := make([]byte, w*h*4)
	copyW, copyH := min(w, s.width), min(h, s.height)
	for row := 0; row < copyH; row++ {
		srcOff := row * s.width * 4
		dstOff := row * w * 4
		copy(next[dstOff:dstOff+copyW*4], s.pixels[srcOff:srcOff+copyW*4])
	}
	s.pixels = next
	s.width, s.height = w, h
	s.copyQueue = nil
	s.dirtyFromCopy = Rect{}
	s.dirtyFromPaint = Rect{W: w, H: h}
	s.fillValid = false
}

// SetBounds sets (or, with rect == nil, clears) the clip rectangle
// applied to subsequent mutating operations.
func (s *Surface) SetBounds(rect *Rect) {
	s.bounds = rect
}

// Flush drains pending mutations into the cheapest primitive
// representation and clears dirty state. Returns an empty FrameDelta if
// nothing changed since the last flush.
func (s *Surface) Flush() FrameDelta {
	queue := s.copyQueue
	s.copyQueue = nil

	var copies []CopyPrimitive
	for _, e := range queue {
		if e.downgrade {
			s.materialize(e)
			continue
		}
		// The client replays this copy itself, so its pixels are applied
		// without counting as paint dirt.
		paintBefore := s.dirtyFromPaint
		s.materialize(e)
		s.dirtyFromPaint = paintBefore
		copies = append(copies, CopyPrimitive{
			SrcSurfaceID: e.srcSurfaceID,
			Src:          e.src,
			DstX:         e.dstX,
			DstY:         e.dstY,
		})
	}

	paintDirty := s.dirtyFromPaint
	copyDirty := s.dirtyFromCopy
	s.dirtyFromPaint = Rect{}
	s.dirtyFromCopy = Rect{}

	union := paintDirty.Union(copyDirty)
	if union.Empty() {
		return FrameDelta{}
	}

	// Pure copy traffic (no paint dirty at all): the copy sequence alone
	// reproduces the surface, so skip the image update entirely.
	if paintDirty.Empty() && len(copies) > 0 {
		return FrameDelta{Copies: copies}
	}

	// A single constant-color set_rect with nothing else dirtying this
	// frame: tell the client to paint the rectangle instead of shipping
	// pixel data for it. Not grid-snapped — a solid fill has no encoder
	// block-alignment concern, unlike an image capture.
	if s.fillValid {
		s.fillValid = false
		return FrameDelta{Fill: &FillPrimitive{Rect: paintDirty, Color: s.fillColor}}
	}

	snapped := snapOutward(union, s.gridSnap, s.extent())
	if snapped.Empty() {
		return FrameDelta{}
	}

	if needsTiling(snapped, s.maxTileBytes) {
		tileRects := splitTiles(snapped, s.gridSnap, s.maxTileBytes)
		tiles := make([]ImagePrimitive, 0, len(tileRects))
		for _, tr := range tileRects {
			tiles = append(tiles, ImagePrimitive{Rect: tr, Pixels: s.snapshot(tr)})
		}
		return FrameDelta{Tiles: tiles}
	}

	return FrameDelta{Image: &ImagePrimitive{Rect: snapped, Pixels: s.snapshot(snapped)}}
}

func bytesPerPixel(f Format) int {
	switch f {
	case FormatRGB24:
		return 3
	default:
		return 4
	}
}

func strideDims(stride int, format Format, dataLen int) (w, h int) {
	bpp := bytesPerPixel(format)
	if stride <= 0 || bpp == 0 {
		return 0, 0
	}
	w = stride / bpp
	h = dataLen / stride
	return w, h
}

func convertPixel(format Format, src []byte, dst []byte) {
	switch format {
	case FormatBGRA32:
		dst[0], dst[1], dst[2], dst[3] = src[2], src[1], src[0], src[3]
	case FormatRGB24:
		dst[0], dst[1], dst[2], dst[3] = src[0], src[1], src[2], 0xFF
	default: // FormatRGBA32
		copy(dst, src[:4])
	}
}
