package surface

// Rect is an axis-aligned pixel rectangle in a surface's local
// coordinate space.
type Rect struct {
	X, Y, W, H int
}

// Empty reports whether the rectangle covers no area.
func (r Rect) Empty() bool {
	return r.W <= 0 || r.H <= 0
}

// Right returns the exclusive right edge (X + W).
func (r Rect) Right() int { return r.X + r.W }

// Bottom returns the exclusive bottom edge (Y + H).
func (r Rect) Bottom() int { return r.Y + r.H }

// Union returns the smallest rectangle containing both r and other. An
// empty operand is ignored; unioning two empty rectangles yields an
// empty rectangle.
func (r Rect) Union(other Rect) Rect {
	if r.Empty() {
		return other
	}
	if other.Empty() {
		return r
	}
	minX := min(r.X, other.X)
	minY := min(r.Y, other.Y)
	maxX := max(r.Right(), other.Right())
	maxY := max(r.Bottom(), other.Bottom())
	return Rect{X: minX, Y: minY, W: maxX - minX, H: maxY - minY}
}

// Intersect returns the overlapping region of r and other, which is
// empty if they don't overlap.
func (r Rect) Intersect(other Rect) Rect {
	minX := max(r.X, other.X)
	minY := max(r.Y, other.Y)
	maxX := min(r.Right(), other.Right())
	maxY := min(r.Bottom(), other.Bottom())
	if maxX <= minX || maxY <= minY {
		return Rect{}
	}
	return Rect{X: minX, Y: minY, W: maxX - minX, H: maxY - minY}
}

// Overlaps reports whether r and other share any area.
func (r Rect) Overlaps(other Rect) bool {
	return !r.Intersect(other).Empty()
}

// ClampTo clips r to lie entirely within bounds, which must describe a
// surface's full extent starting at (0,0).
func (r Rect) ClampTo(bounds Rect) Rect {
	return r.Intersect(bounds)
}

// clipSplit implements §4.1's clip-split algorithm: given the affected
// area and the active clip bounds, it returns the portion of area that
// falls inside bounds (empty if none) and up to four disjoint
// rectangles that fall outside, tried in the order top, left, bottom,
// right — the first match in each direction wins, so the returned
// "outside" slice never double-covers a pixel.
func clipSplit(area, bounds Rect) (inside Rect, outside []Rect) {
	inside = area.Intersect(bounds)

	remaining := area
	if remaining.Empty() {
		return inside, nil
	}

	// Top strip: the portion of area above bounds.
	if remaining.Y < bounds.Y {
		h := bounds.Y - remaining.Y
		if h > remaining.H {
			h = remaining.H
		}
		outside = append(outside, Rect{X: remaining.X, Y: remaining.Y, W: remaining.W, H: h})
		remaining = Rect{X: remaining.X, Y: remaining.Y + h, W: remaining.W, H: remaining.H - h}
	}
	if remaining.Empty() {
		return inside, outside
	}

	// Left strip: the portion of the remaining area left of bounds.
	if remaining.X < bounds.X {
		w := bounds.X - remaining.X
		if w > remaining.W {
			w = remaining.W
		}
		outside = append(outside, Rect{X: remaining.X, Y: remaining.Y, W: w, H: remaining.H})
		remaining = Rect{X: remaining.X + w, Y: remaining.Y, W: remaining.W - w, H: remaining.H}
	}
	if remaining.Empty() {
		return inside, outside
	}

	// Bottom strip: the portion of the remaining area below bounds.
	if remaining.Bottom() > bounds.Bottom() {
		h := remaining.Bottom() - bounds.Bottom()
		if h > remaining.H {
			h = remaining.H
		}
		outside = append(outside, Rect{X: remaining.X, Y: bounds.Bottom(), W: remaining.W, H: h})
		remaining = Rect{X: remaining.X, Y: remaining.Y, W: remaining.W, H: remaining.H - h}
	}
	if remaining.Empty() {
		return inside, outside
	}

	// Right strip: whatever of the remaining area is right of bounds.
	if remaining.Right() > bounds.Right() {
		w := remaining.Right() - bounds.Right()
		if w > remaining.W {
			w = remaining.W
		}
		outside = append(outside, Rect{X: bounds.Right(), Y: remaining.Y, W: w, H: remaining.H})
	}

	return inside, outside
}

// snapOutward rounds rect outward to the nearest grid-pixel boundary,
// then clamps to extent. If the snapped rectangle would exceed extent,
// the grid alignment is shifted inward rather than the snap abandoned
// (spec §4.1's grid-snap rule).
func snapOutward(rect Rect, grid int, extent Rect) Rect {
	if grid <= 1 || rect.Empty() {
		return rect.ClampTo(extent)
	}

	minX := floorTo(rect.X, grid)
	minY := floorTo(rect.Y, grid)
	maxX := ceilTo(rect.Right(), grid)
	maxY := ceilTo(rect.Bottom(), grid)

	if maxX > extent.Right() {
		shift := maxX - extent.Right()
		minX -= shift
		maxX -= shift
	}
	if maxY > extent.Bottom() {
		shift := maxY - extent.Bottom()
		minY -= shift
		maxY -= shift
	}

	snapped := Rect{X: minX, Y: minY, W: maxX - minX, H: maxY - minY}
	return snapped.ClampTo(extent)
}

func floorTo(v, grid int) int {
	if v >= 0 {
		return (v / grid) * grid
	}
	return -(((-v) + grid - 1) / grid) * grid
}

func ceilTo(v, grid int) int {
	if v >= 0 {
		return ((v + grid - 1) / grid) * grid
	}
	return -((-v) / grid) * grid
}
