package rdp

import (
	"testing"

	"github.com/deskrelay/gateway/internal/cache"
	"github.com/deskrelay/gateway/internal/display"
	"github.com/deskrelay/gateway/internal/surface"
)

func newTestHandlers(w, h int) (*Handlers, *display.Display) {
	cacheSet := cache.New(cache.Capacities{Bitmap: 16, Glyph: 16, Pointer: 16, Brush: 16})
	disp := display.New(w, h, surface.Config{}, cacheSet)
	return NewHandlers(disp, cacheSet, nil), disp
}

func TestTranslateROP3KnownCodes(t *testing.T) {
	cases := map[byte]CompositingMode{
		0x00: ModeBlack,
		0x55: ModeDstInvert,
		0xAA: ModeNop,
		0xCC: ModeSrcCopy,
		0xEE: ModeSrcPaint,
		0xF0: ModePatCopy,
		0xFF: ModeWhite,
	}
	for rop, want := range cases {
		got, ok := translateROP3(rop)
		if !ok {
			t.Fatalf("rop 0x%02X: expected a named match", rop)
		}
		if got != want {
			t.Fatalf("rop 0x%02X = %v, want %v", rop, got, want)
		}
	}
}

func TestTranslateROP3UnknownFallsBackToSrcCopy(t *testing.T) {
	mode, ok := translateROP3(0x5A)
	if ok {
		t.Fatal("expected 0x5A to be unmapped")
	}
	if mode != ModeSrcCopy {
		t.Fatalf("fallback mode = %v, want ModeSrcCopy", mode)
	}
}

func TestOpaqueRectFillsColor(t *testing.T) {
	h, disp := newTestHandlers(64, 64)
	err := h.OpaqueRect(OpaqueRectOrder{SurfaceID: display.RootID, X: 0, Y: 0, W: 10, H: 10, Color: [3]byte{10, 20, 30}})
	if err != nil {
		t.Fatalf("OpaqueRect: %v", err)
	}
	root, _ := disp.Surface(display.RootID)
	pixels := root.ReadRect(surface.Rect{X: 0, Y: 0, W: 1, H: 1})
	if pixels[0] != 10 || pixels[1] != 20 || pixels[2] != 30 {
		t.Fatalf("pixel = %v, want [10 20 30 255]", pixels)
	}
}

func TestDstBltBlackZeroesDestination(t *testing.T) {
	h, disp := newTestHandlers(32, 32)
	root, _ := disp.Surface(display.RootID)
	root.SetRect(0, 0, 8, 8, [4]byte{0xFF, 0xFF, 0xFF, 0xFF})

	if err := h.DstBlt(DstBltOrder{SurfaceID: display.RootID, X: 0, Y: 0, W: 8, H: 8, Rop: 0x00}); err != nil {
		t.Fatalf("DstBlt: %v", err)
	}
	pixels := root.ReadRect(surface.Rect{X: 0, Y: 0, W: 1, H: 1})
	if pixels[0] != 0 || pixels[1] != 0 || pixels[2] != 0 {
		t.Fatalf("pixel = %v, want black", pixels)
	}
}

func TestDstBltDstInvertInvertsExistingPixels(t *testing.T) {
	h, disp := newTestHandlers(32, 32)
	root, _ := disp.Surface(display.RootID)
	root.SetRect(0, 0, 4, 4, [4]byte{0x0F, 0x0F, 0x0F, 0xFF})

	if err := h.DstBlt(DstBltOrder{SurfaceID: display.RootID, X: 0, Y: 0, W: 4, H: 4, Rop: 0x55}); err != nil {
		t.Fatalf("DstBlt: %v", err)
	}
	pixels := root.ReadRect(surface.Rect{X: 0, Y: 0, W: 1, H: 1})
	if pixels[0] != 0xF0 {
		t.Fatalf("channel = %#x, want 0xF0", pixels[0])
	}
}

func TestMemBltMissingBitmapIsFatal(t *testing.T) {
	h, _ := newTestHandlers(32, 32)
	err := h.MemBlt(MemBltOrder{SurfaceID: display.RootID, X: 0, Y: 0, BitmapCache: 1, BitmapEntry: 99, Rop: 0xCC})
	if err == nil {
		t.Fatal("expected a fatal error for an unpopulated bitmap cache entry")
	}
}

func TestMemBltDrawsCachedBitmap(t *testing.T) {
	h, disp := newTestHandlers(32, 32)
	bmp := cache.BitmapEntry{Pixels: []byte{1, 2, 3, 255}, Width: 1, Height: 1, Format: surface.FormatRGBA32}
	if err := h.cache.PutBitmap(cache.Key{CacheID: 1, EntryID: 1}, bmp); err != nil {
		t.Fatalf("PutBitmap: %v", err)
	}

	if err := h.MemBlt(MemBltOrder{SurfaceID: display.RootID, X: 0, Y: 0, BitmapCache: 1, BitmapEntry: 1, Rop: 0xCC}); err != nil {
		t.Fatalf("MemBlt: %v", err)
	}
	root, _ := disp.Surface(display.RootID)
	pixels := root.ReadRect(surface.Rect{X: 0, Y: 0, W: 1, H: 1})
	if pixels[0] != 1 || pixels[1] != 2 || pixels[2] != 3 {
		t.Fatalf("pixel = %v, want [1 2 3 255]", pixels)
	}
}

func TestScrBltCopiesRegion(t *testing.T) {
	h, disp := newTestHandlers(32, 32)
	root, _ := disp.Surface(display.RootID)
	root.SetRect(0, 0, 4, 4, [4]byte{9, 9, 9, 0xFF})
	root.Flush() // drain the initial dirty state so the copy below is isolated

	if err := h.ScrBlt(ScrBltOrder{SurfaceID: display.RootID, SrcSurfaceID: display.RootID, SX: 0, SY: 0, DX: 10, DY: 10, W: 4, H: 4, Rop: 0xCC}); err != nil {
		t.Fatalf("ScrBlt: %v", err)
	}
	delta := root.Flush()
	if len(delta.Copies) != 1 {
		t.Fatalf("expected one queued copy primitive, got %+v", delta)
	}
}

func TestPolylineDrawsEndpoints(t *testing.T) {
	h, disp := newTestHandlers(32, 32)
	err := h.Polyline(PolylineOrder{
		SurfaceID: display.RootID,
		Points:    []Point{{X: 0, Y: 0}, {X: 5, Y: 0}},
		Color:     [3]byte{200, 0, 0},
	})
	if err != nil {
		t.Fatalf("Polyline: %v", err)
	}
	root, _ := disp.Surface(display.RootID)
	pixels := root.ReadRect(surface.Rect{X: 5, Y: 0, W: 1, H: 1})
	if pixels[0] != 200 {
		t.Fatalf("endpoint pixel = %v, want red", pixels)
	}
}

func TestPointerColorCachesAndSetsCursor(t *testing.T) {
	h, disp := newTestHandlers(32, 32)
	h.PointerColor(PointerColorOrder{
		EntryID: 5, Image: []byte{1, 2, 3, 255}, Width: 1, Height: 1,
		HotspotX: 0, HotspotY: 0, X: 10, Y: 20,
	})

	if _, ok := h.cache.GetPointer(5); !ok {
		t.Fatal("expected PointerColor to populate the pointer cache")
	}
	cur := disp.CurrentCursor()
	if cur.X != 10 || cur.Y != 20 {
		t.Fatalf("cursor position = (%d,%d), want (10,20)", cur.X, cur.Y)
	}
	if cur.Width != 1 || cur.Image[0] != 1 {
		t.Fatalf("cursor image not applied: %+v", cur)
	}
}

func TestPointerCachedUsesCachedEntry(t *testing.T) {
	h, disp := newTestHandlers(32, 32)
	h.cache.PutPointer(3, cacheEntryFixture())

	h.PointerCached(PointerCachedOrder{EntryID: 3, X: 1, Y: 2})

	cur := disp.CurrentCursor()
	if cur.Width != 4 {
		t.Fatalf("expected cached entry's dimensions, got %+v", cur)
	}
}

func TestPointerCachedMissRendersDefault(t *testing.T) {
	h, disp := newTestHandlers(32, 32)
	h.PointerCached(PointerCachedOrder{EntryID: 99, X: 1, Y: 2})

	cur := disp.CurrentCursor()
	def := cache.DefaultPointer()
	if cur.Width != def.Width || cur.Height != def.Height {
		t.Fatalf("expected default cursor on miss, got %+v", cur)
	}
}

func TestPointerNullHidesCursor(t *testing.T) {
	h, disp := newTestHandlers(32, 32)
	h.PointerNull(PointerNullOrder{X: 7, Y: 8})

	cur := disp.CurrentCursor()
	if cur.Width != 0 || cur.Height != 0 {
		t.Fatalf("expected a zero-sized hidden cursor, got %+v", cur)
	}
}

func cacheEntryFixture() cache.PointerEntry {
	return cache.PointerEntry{Image: []byte{1, 1, 1, 1}, Width: 4, Height: 4}
}

func TestGlyphIndexMissingGlyphIsFatal(t *testing.T) {
	h, _ := newTestHandlers(32, 32)
	err := h.GlyphIndex(GlyphIndexOrder{
		SurfaceID:  display.RootID,
		GlyphCache: 1,
		Glyphs:     []GlyphRun{{EntryID: 1, X: 0, Y: 0}},
		Color:      [3]byte{0, 0, 0},
	})
	if err == nil {
		t.Fatal("expected a fatal error for an unpopulated glyph cache entry")
	}
}

func TestGlyphIndexStampsMaskedPixelsOnly(t *testing.T) {
	h, disp := newTestHandlers(32, 32)
	root, _ := disp.Surface(display.RootID)
	root.SetRect(0, 0, 2, 1, [4]byte{50, 50, 50, 0xFF})

	glyph := cache.GlyphEntry{Mask: []byte{0x80}, Width: 2, Height: 1}
	if err := h.cache.PutGlyph(cache.Key{CacheID: 1, EntryID: 1}, glyph); err != nil {
		t.Fatalf("PutGlyph: %v", err)
	}

	err := h.GlyphIndex(GlyphIndexOrder{
		SurfaceID:  display.RootID,
		GlyphCache: 1,
		Glyphs:     []GlyphRun{{EntryID: 1, X: 0, Y: 0}},
		Color:      [3]byte{255, 0, 0},
	})
	if err != nil {
		t.Fatalf("GlyphIndex: %v", err)
	}

	set := root.ReadRect(surface.Rect{X: 0, Y: 0, W: 1, H: 1})
	if set[0] != 255 {
		t.Fatalf("masked pixel = %v, want red stamped", set)
	}
	unset := root.ReadRect(surface.Rect{X: 1, Y: 0, W: 1, H: 1})
	if unset[0] != 50 {
		t.Fatalf("unmasked pixel = %v, want untouched background", unset)
	}
}
