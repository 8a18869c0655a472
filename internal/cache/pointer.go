package cache

// defaultPointerSize is the width/height of the built-in fallback
// cursor bitmap, a simple filled-arrow in the style of
// xf86-video-guac's default_pointer.h (the arrow rendered whenever the
// driver has no cached pointer image to show yet).
const defaultPointerSize = 16

// defaultPointerHotspotX/Y place the hotspot at the arrow's tip.
const (
	defaultPointerHotspotX = 0
	defaultPointerHotspotY = 0
)

// defaultPointerImage is built once at package initialization; it never
// changes so there is no reason to regenerate it per miss.
var defaultPointerImage = buildDefaultPointerImage()

// buildDefaultPointerImage draws a solid black arrow with a white
// outline into a defaultPointerSize x defaultPointerSize ARGB buffer.
// The shape is a simple diagonal wedge — faithful pixel-for-pixel
// reproduction of a real desktop's arrow cursor is not the point; a
// recognizable, always-available fallback is.
func buildDefaultPointerImage() []byte {
	n := defaultPointerSize
	img := make([]byte, n*n*4)
	for y := 0; y < n; y++ {
		for x := 0; x < n; x++ {
			off := (y*n + x) * 4
			switch {
			case x <= y && y < n-1:
				// Body of the arrow: black fill.
				img[off+0], img[off+1], img[off+2], img[off+3] = 0, 0, 0, 0xFF
			case x == y+1:
				// One-pixel white outline along the diagonal edge.
				img[off+0], img[off+1], img[off+2], img[off+3] = 0xFF, 0xFF, 0xFF, 0xFF
			default:
				// Fully transparent elsewhere.
			}
		}
	}
	return img
}

// DefaultPointer returns the built-in fallback cursor image, used per
// §4.2's "Render default" rule whenever a pointer-cache id has never
// been populated (a new-pointer or cached-pointer reference the server
// sent before — or without ever — loading the corresponding entry).
func DefaultPointer() PointerEntry {
	return PointerEntry{
		Image:    defaultPointerImage,
		Width:    defaultPointerSize,
		Height:   defaultPointerSize,
		HotspotX: defaultPointerHotspotX,
		HotspotY: defaultPointerHotspotY,
	}
}

// GetPointerOrDefault looks up a cached pointer entry, falling back to
// DefaultPointer on a miss rather than failing the session — the one
// cache in §4.2 whose contract is "on miss: render default" instead of
// a fatal protocol error.
func (s *Set) GetPointerOrDefault(id int) PointerEntry {
	if entry, ok := s.GetPointer(id); ok {
		return entry
	}
	return DefaultPointer()
}
