package rdp

// CompositingMode is the high-level operation a ROP3 code collapses to,
// named in spec §4.8's abbreviated key mapping.
type CompositingMode int

const (
	ModeSrcCopy CompositingMode = iota
	ModeBlack
	ModeWhite
	ModeDstInvert
	ModeNop
	ModeSrcPaint
	ModePatCopy
)

// ropTable is the fixed 256-entry ROP3-to-CompositingMode mapping
// described in spec §4.8. Only the named codes get an explicit entry;
// everything else defaults to ModeSrcCopy, which translateROP3 reports
// via the ok return so the caller can log the fallback.
var ropTable = buildROPTable()

func buildROPTable() [256]CompositingMode {
	var t [256]CompositingMode // zero value is ModeSrcCopy
	t[0x00] = ModeBlack
	t[0x55] = ModeDstInvert
	t[0xAA] = ModeNop
	t[0xCC] = ModeSrcCopy
	t[0xEE] = ModeSrcPaint
	t[0xF0] = ModePatCopy
	t[0xFF] = ModeWhite
	return t
}

// namedROPs are the codes explicitly called out in spec §4.8; a code
// outside this set still resolves via ropTable (to ModeSrcCopy) but is
// reported as unmapped so callers can log the fallback at debug.
var namedROPs = map[byte]bool{
	0x00: true, 0x55: true, 0xAA: true, 0xCC: true,
	0xEE: true, 0xF0: true, 0xFF: true,
}

// translateROP3 resolves an RDP ternary raster-op code to a
// CompositingMode. ok is false when the code fell through to the
// SRCCOPY default rather than matching a named entry.
func translateROP3(rop byte) (mode CompositingMode, ok bool) {
	return ropTable[rop], namedROPs[rop]
}

// applyDstOnlyOp returns the destination byte that results from mode
// acting on a single destination-only pixel channel (used by DSTBLT,
// which has no source or pattern operand). ModeSrcPaint and
// ModePatCopy have no meaningful destination-only interpretation and
// are treated as ModeNop here, same as an unmapped code would be.
func applyDstOnlyOp(mode CompositingMode, dst byte) byte {
	switch mode {
	case ModeBlack:
		return 0x00
	case ModeWhite:
		return 0xFF
	case ModeDstInvert:
		return ^dst
	default:
		return dst
	}
}
