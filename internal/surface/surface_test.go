package surface

import "testing"

func testConfig() Config {
	return Config{CopyQueueCapacity: 4, GridSnap: 8}
}

func TestSetRectMarksDirtyAndFills(t *testing.T) {
	s := New(1, 0, 0, 0, 0, 32, 32, 255, testConfig())
	s.SetRect(4, 4, 8, 8, [4]byte{10, 20, 30, 255})

	delta := s.Flush()
	if delta.Empty() {
		t.Fatal("expected a non-empty delta after set_rect")
	}
	if delta.Fill == nil {
		t.Fatal("expected a constant-fill primitive for a single solid-color paint")
	}
	if delta.Fill.Rect.Empty() {
		t.Fatal("fill rect should not be empty")
	}
	if delta.Fill.Color != ([4]byte{10, 20, 30, 255}) {
		t.Fatalf("fill color = %v, want {10 20 30 255}", delta.Fill.Color)
	}
}

func TestFlushEmitsImageForNonUniformPaint(t *testing.T) {
	s := New(1, 0, 0, 0, 0, 32, 32, 255, testConfig())
	s.SetRect(0, 0, 8, 8, [4]byte{1, 1, 1, 255})
	s.SetRect(0, 0, 4, 4, [4]byte{2, 2, 2, 255})

	delta := s.Flush()
	if delta.Fill != nil {
		t.Fatal("mixed-color paint should not collapse to a constant fill")
	}
	if delta.Image == nil {
		t.Fatal("expected an image primitive once more than one color is dirtied")
	}
}

func TestFlushWithNoChangesIsEmpty(t *testing.T) {
	s := New(1, 0, 0, 0, 0, 16, 16, 255, testConfig())
	delta := s.Flush()
	if !delta.Empty() {
		t.Fatal("expected empty delta with no mutations")
	}
}

func TestCopyRectBetweenSurfacesEmitsCopyPrimitive(t *testing.T) {
	src := New(1, 0, 0, 0, 0, 16, 16, 255, testConfig())
	src.SetRect(0, 0, 16, 16, [4]byte{1, 2, 3, 255})
	src.Flush() // clear src's own dirty state so it doesn't interfere

	dst := New(2, 0, 0, 0, 0, 16, 16, 255, testConfig())
	dst.CopyRect(src, 0, 0, 8, 8, 4, 4)

	delta := dst.Flush()
	if delta.Image != nil {
		t.Fatalf("expected pure copy delta, got an image primitive too: %+v", delta.Image)
	}
	if len(delta.Copies) != 1 {
		t.Fatalf("Copies = %d, want 1", len(delta.Copies))
	}
	if delta.Copies[0].SrcSurfaceID != 1 {
		t.Fatalf("SrcSurfaceID = %d, want 1", delta.Copies[0].SrcSurfaceID)
	}
}

func TestCopyRectMixedWithPaintCollapsesToImage(t *testing.T) {
	src := New(1, 0, 0, 0, 0, 16, 16, 255, testConfig())
	dst := New(2, 0, 0, 0, 0, 16, 16, 255, testConfig())

	dst.SetRect(0, 0, 2, 2, [4]byte{9, 9, 9, 255})
	dst.CopyRect(src, 0, 0, 4, 4, 8, 8)

	delta := dst.Flush()
	if delta.Image == nil {
		t.Fatal("mixed paint+copy flush should collapse to one image update")
	}
	if len(delta.Copies) != 0 {
		t.Fatalf("expected no copy primitives when paint dirty is present, got %d", len(delta.Copies))
	}
}

func TestCopyRectIdentityIsNoOp(t *testing.T) {
	s := New(1, 0, 0, 0, 0, 16, 16, 255, testConfig())
	s.SetRect(0, 0, 16, 16, [4]byte{1, 2, 3, 255})
	s.Flush() // clear dirty state so only the identity copy's effect, if any, would show

	s.CopyRect(s, 4, 4, 8, 8, 4, 4)

	if len(s.copyQueue) != 0 {
		t.Fatalf("copyQueue len = %d, want 0 for an identity copy", len(s.copyQueue))
	}
	delta := s.Flush()
	if !delta.Empty() {
		t.Fatalf("identity copy_rect should emit no primitives, got %+v", delta)
	}
}

func TestCopyQueueOverflowMaterializesOldest(t *testing.T) {
	src := New(1, 0, 0, 0, 0, 16, 16, 255, testConfig())
	dst := New(2, 0, 0, 0, 0, 16, 16, 255, Config{CopyQueueCapacity: 2, GridSnap: 8})

	dst.CopyRect(src, 0, 0, 2, 2, 0, 0)
	dst.CopyRect(src, 0, 0, 2, 2, 4, 4)
	// Third push overflows capacity 2; the first entry is materialized
	// eagerly and falls out of the queue.
	dst.CopyRect(src, 0, 0, 2, 2, 8, 8)

	if len(dst.copyQueue) != 2 {
		t.Fatalf("copyQueue len = %d, want 2 after overflow", len(dst.copyQueue))
	}
}

func TestResizeDiscardsOutOfBoundsContentAndDirtiesAll(t *testing.T) {
	s := New(1, 0, 0, 0, 0, 16, 16, 255, testConfig())
	s.SetRect(0, 0, 16, 16, [4]byte{5, 5, 5, 255})
	s.Flush()

	s.Resize(8, 8)
	if s.Width() != 8 || s.Height() != 8 {
		t.Fatalf("dimensions after resize = %dx%d, want 8x8", s.Width(), s.Height())
	}

	delta := s.Flush()
	if delta.Image == nil {
		t.Fatal("resize should dirty the whole new extent")
	}
}

func TestSetBoundsClipsDrawsOutsideBounds(t *testing.T) {
	s := New(1, 0, 0, 0, 0, 32, 32, 255, testConfig())
	bounds := Rect{X: 0, Y: 0, W: 8, H: 8}
	s.SetBounds(&bounds)

	s.SetRect(4, 4, 16, 16, [4]byte{1, 1, 1, 255})
	delta := s.Flush()
	if delta.Fill == nil {
		t.Fatal("expected some dirty region from the clipped draw")
	}
	if delta.Fill.Rect.Right() > 8 || delta.Fill.Rect.Bottom() > 8 {
		t.Fatalf("dirty rect %+v exceeds bounds", delta.Fill.Rect)
	}
}

func TestClipSplitOrderTopLeftBottomRight(t *testing.T) {
	bounds := Rect{X: 10, Y: 10, W: 10, H: 10}
	area := Rect{X: 0, Y: 0, W: 40, H: 40}

	inside, outside := clipSplit(area, bounds)
	if inside != bounds {
		t.Fatalf("inside = %+v, want %+v", inside, bounds)
	}
	if len(outside) == 0 {
		t.Fatal("expected outside rectangles for an area larger than bounds")
	}
	// First entry must be the top strip: full width of remaining area,
	// starting at area's own Y, height bounds.Y-area.Y.
	top := outside[0]
	if top.Y != 0 || top.H != bounds.Y {
		t.Fatalf("top strip = %+v, want Y=0 H=%d", top, bounds.Y)
	}
}

func TestFlushTilesOversizedDirtyRegion(t *testing.T) {
	cfg := Config{CopyQueueCapacity: 4, GridSnap: 8, MaxTileBytes: 8 * 32 * 4} // budget = 8 rows per tile
	s := New(1, 0, 0, 0, 0, 32, 32, 255, cfg)
	// Two different colors so this isn't a single constant-fill candidate
	// and actually exercises the image/tile path.
	s.SetRect(0, 0, 32, 16, [4]byte{7, 7, 7, 255})
	s.SetRect(0, 16, 32, 16, [4]byte{8, 8, 8, 255})

	delta := s.Flush()
	if delta.Fill != nil {
		t.Fatal("multi-color region should not collapse to a constant fill")
	}
	if delta.Image != nil {
		t.Fatal("oversized region should tile, not collapse to one image")
	}
	if len(delta.Tiles) < 2 {
		t.Fatalf("Tiles = %d, want at least 2", len(delta.Tiles))
	}
	var rows int
	for _, tile := range delta.Tiles {
		if tile.Rect.W != 32 {
			t.Fatalf("tile width = %d, want 32", tile.Rect.W)
		}
		rows += tile.Rect.H
	}
	if rows != 32 {
		t.Fatalf("tiles cover %d rows, want 32", rows)
	}
}

func TestFlushUntiledWhenUnderBudget(t *testing.T) {
	cfg := Config{CopyQueueCapacity: 4, GridSnap: 8, MaxTileBytes: 1 << 20}
	s := New(1, 0, 0, 0, 0, 32, 32, 255, cfg)
	s.SetRect(0, 0, 8, 8, [4]byte{7, 7, 7, 255})
	s.SetRect(0, 0, 4, 4, [4]byte{9, 9, 9, 255})

	delta := s.Flush()
	if delta.Image == nil {
		t.Fatal("expected a single image update under the byte budget")
	}
	if len(delta.Tiles) != 0 {
		t.Fatalf("expected no tiles under budget, got %d", len(delta.Tiles))
	}
}

func TestSnapOutwardShiftsInwardAtExtentEdge(t *testing.T) {
	extent := Rect{W: 100, H: 100}
	rect := Rect{X: 90, Y: 90, W: 8, H: 8}
	snapped := snapOutward(rect, 64, extent)
	if snapped.Right() > extent.W || snapped.Bottom() > extent.H {
		t.Fatalf("snapped rect %+v exceeds extent %+v", snapped, extent)
	}
}
