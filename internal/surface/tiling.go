package surface

// splitTiles breaks rect into full-width horizontal strips of at most
// grid pixel rows each, no larger than maxBytes worth of RGBA32 pixels
// (a strip of one row may exceed it) (SUPPLEMENTED FEATURE: large dirty
// regions get tiled rather than shipped as one oversized "png"
// primitive, the same byte-budget split the original RDP plugin's
// update paths perform before handing a region to its PNG encoder).
// Strips are produced top to bottom and do not overlap, so a client
// applying them reconstructs rect exactly regardless of order.
func splitTiles(rect Rect, grid, maxBytes int) []Rect {
	if grid <= 0 {
		grid = 64
	}
	// Largest whole number of grid rows that still fits the byte
	// budget for the rect's full width; at least one row so a tile
	// always makes progress even under a pathologically small budget.
	rowBytes := rect.W * 4
	rowsPerTile := grid
	if rowBytes > 0 && maxBytes > 0 {
		fit := maxBytes / rowBytes
		if fit < 1 {
			fit = 1
		}
		if fit < rowsPerTile {
			rowsPerTile = fit
		}
	}
	if rowsPerTile < 1 {
		rowsPerTile = 1
	}

	var tiles []Rect
	for y := rect.Y; y < rect.Bottom(); y += rowsPerTile {
		h := rowsPerTile
		if y+h > rect.Bottom() {
			h = rect.Bottom() - y
		}
		tiles = append(tiles, Rect{X: rect.X, Y: y, W: rect.W, H: h})
	}
	return tiles
}

// needsTiling reports whether rect's pixel payload (RGBA32) exceeds
// the configured per-instruction byte budget. maxBytes <= 0 disables
// tiling entirely (the default: one image primitive per flush, as in
// the original §4.1 algorithm).
func needsTiling(rect Rect, maxBytes int) bool {
	return maxBytes > 0 && rect.W*rect.H*4 > maxBytes
}
