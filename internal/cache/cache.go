// Package cache implements the six bounded cache tables described in
// spec §4.2 (C2): bitmap, glyph, pointer, brush, offscreen, and
// palette. The RDP protocol assumes these are populated ahead of use
// by the server, so the cache is a passive store — it never evicts or
// invents an entry except where §4.2 explicitly says so (pointer LRU,
// palette overwrite).
package cache

import (
	"container/list"
	"fmt"
	"sync"

	"github.com/deskrelay/gateway/internal/gwerr"
	"github.com/deskrelay/gateway/internal/surface"
)

// Key addresses a bitmap/glyph/brush cache slot.
type Key struct {
	CacheID int
	EntryID int
}

// BitmapEntry is a cached raw bitmap (spec §3: "bitmap (raw pixels +
// dimensions + format)").
type BitmapEntry struct {
	Pixels []byte
	Width  int
	Height int
	Format surface.Format
}

// GlyphEntry is a cached 1-bit glyph mask used by GLYPH-INDEX orders.
type GlyphEntry struct {
	Mask    []byte
	OriginX int
	OriginY int
	Width   int
	Height  int
}

// PointerEntry is a cached ARGB cursor image with its hotspot.
type PointerEntry struct {
	Image    []byte
	Width    int
	Height   int
	HotspotX int
	HotspotY int
}

// BrushEntry is a cached 8x8 or 16x16 pixel pattern brush.
type BrushEntry struct {
	Pattern []byte
	Size    int
}

// Palette is 256 RGB triples; the zero value is the "zero palette"
// fallback named in §4.2.
type Palette [256][3]byte

// Capacities are negotiated during connection setup (spec §4.2);
// exceeding any of the fixed-capacity tables is a fatal protocol
// violation.
type Capacities struct {
	Bitmap  int
	Glyph   int
	Pointer int
	Brush   int
}

// Set is the session's full cache set.
type Set struct {
	mu sync.RWMutex

	bitmap map[Key]BitmapEntry
	glyph  map[Key]GlyphEntry
	brush  map[Key]BrushEntry

	pointer    map[int]*list.Element
	pointerLRU *list.List // front = least recently used
	pointerCap int

	offscreen map[int]*surface.Surface

	palette Palette

	cap Capacities
}

type pointerNode struct {
	id    int
	entry PointerEntry
}

// New builds an empty cache set with the given negotiated capacities.
func New(cap Capacities) *Set {
	return &Set{
		bitmap:     make(map[Key]BitmapEntry),
		glyph:      make(map[Key]GlyphEntry),
		brush:      make(map[Key]BrushEntry),
		pointer:    make(map[int]*list.Element),
		pointerLRU: list.New(),
		pointerCap: cap.Pointer,
		offscreen:  make(map[int]*surface.Surface),
		cap:        cap,
	}
}

// PutBitmap inserts a bitmap cache entry. Exceeding the negotiated
// capacity is a fatal ResourceExhausted error — the cache never evicts
// bitmaps.
func (s *Set) PutBitmap(key Key, entry BitmapEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.bitmap[key]; !exists && s.cap.Bitmap > 0 && len(s.bitmap) >= s.cap.Bitmap {
		return gwerr.New(gwerr.ClassResourceExhausted, "cache", fmt.Errorf("bitmap cache overflow at capacity %d", s.cap.Bitmap))
	}
	s.bitmap[key] = entry
	return nil
}

// GetBitmap looks up a bitmap entry. A miss is always fatal (§4.2).
func (s *Set) GetBitmap(key Key) (BitmapEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.bitmap[key]
	if !ok {
		return BitmapEntry{}, gwerr.New(gwerr.ClassProtocolError, "cache", fmt.Errorf("bitmap cache miss at %+v", key)).WithCode(int(gwerr.ClassProtocolError))
	}
	return entry, nil
}

// PutGlyph inserts a glyph cache entry, subject to the same no-eviction
// fatal-on-overflow rule as bitmaps.
func (s *Set) PutGlyph(key Key, entry GlyphEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.glyph[key]; !exists && s.cap.Glyph > 0 && len(s.glyph) >= s.cap.Glyph {
		return gwerr.New(gwerr.ClassResourceExhausted, "cache", fmt.Errorf("glyph cache overflow at capacity %d", s.cap.Glyph))
	}
	s.glyph[key] = entry
	return nil
}

// GetGlyph looks up a glyph entry. A miss is fatal.
func (s *Set) GetGlyph(key Key) (GlyphEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.glyph[key]
	if !ok {
		return GlyphEntry{}, gwerr.New(gwerr.ClassProtocolError, "cache", fmt.Errorf("glyph cache miss at %+v", key))
	}
	return entry, nil
}

// PutBrush inserts a brush cache entry, fatal-on-overflow like bitmap/glyph.
func (s *Set) PutBrush(key Key, entry BrushEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.brush[key]; !exists && s.cap.Brush > 0 && len(s.brush) >= s.cap.Brush {
		return gwerr.New(gwerr.ClassResourceExhausted, "cache", fmt.Errorf("brush cache overflow at capacity %d", s.cap.Brush))
	}
	s.brush[key] = entry
	return nil
}

// GetBrush looks up a brush entry. A miss is fatal.
func (s *Set) GetBrush(key Key) (BrushEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.brush[key]
	if !ok {
		return BrushEntry{}, gwerr.New(gwerr.ClassProtocolError, "cache", fmt.Errorf("brush cache miss at %+v", key))
	}
	return entry, nil
}

// PutPointer inserts or refreshes a pointer cache entry. This is the
// one cache with eviction: inserting beyond capacity evicts the least
// recently used entry rather than failing.
func (s *Set) PutPointer(id int, entry PointerEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if el, ok := s.pointer[id]; ok {
		el.Value.(*pointerNode).entry = entry
		s.pointerLRU.MoveToBack(el)
		return
	}

	if s.pointerCap > 0 && s.pointerLRU.Len() >= s.pointerCap {
		front := s.pointerLRU.Front()
		if front != nil {
			evicted := front.Value.(*pointerNode)
			delete(s.pointer, evicted.id)
			s.pointerLRU.Remove(front)
		}
	}

	el := s.pointerLRU.PushBack(&pointerNode{id: id, entry: entry})
	s.pointer[id] = el
}

// GetPointer looks up a pointer entry. A miss returns ok=false so the
// caller can render the default cursor instead of failing the session
// (§4.2's "Render default" rule is the one cache miss that is not
// fatal).
func (s *Set) GetPointer(id int) (entry PointerEntry, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	el, found := s.pointer[id]
	if !found {
		return PointerEntry{}, false
	}
	s.pointerLRU.MoveToBack(el)
	return el.Value.(*pointerNode).entry, true
}

// PutOffscreen registers a surface as an offscreen cache entry, keyed
// by the surface's own (negative) identifier.
func (s *Set) PutOffscreen(surfaceID int, surf *surface.Surface) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.offscreen[surfaceID] = surf
}

// DeleteOffscreen explicitly removes an offscreen cache entry — the
// only eviction path this table has.
func (s *Set) DeleteOffscreen(surfaceID int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.offscreen, surfaceID)
}

// GetOffscreen looks up an offscreen surface. A miss is fatal.
func (s *Set) GetOffscreen(surfaceID int) (*surface.Surface, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	surf, ok := s.offscreen[surfaceID]
	if !ok {
		return nil, gwerr.New(gwerr.ClassProtocolError, "cache", fmt.Errorf("offscreen cache miss at surface %d", surfaceID))
	}
	return surf, nil
}

// SetPalette overwrites the single palette slot.
func (s *Set) SetPalette(p Palette) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.palette = p
}

// GetPalette returns the current palette, or the zero palette if none was
// ever set (§4.2's "Zero palette" fallback).
func (s *Set) GetPalette() Palette {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.palette
}
