// Package display implements the z-ordered collection of surfaces plus
// shared cursor state described in spec §4.3 (C3): the aggregation
// point between per-layer drawing (C1) and the frame pacer (C9).
package display

import (
	"fmt"
	"sort"
	"sync"

	"github.com/deskrelay/gateway/internal/cache"
	"github.com/deskrelay/gateway/internal/gwerr"
	"github.com/deskrelay/gateway/internal/surface"
)

// RootID is the identifier of the surface that always exists and is
// never destroyed (spec §4.3).
const RootID = 0

// CursorState is the single global pointer image and its last known
// position, coalesced to at most one "cursor" primitive per frame.
type CursorState struct {
	Image    []byte
	Width    int
	Height   int
	HotspotX int
	HotspotY int
	X        int
	Y        int
}

// LayerDelta pairs a surface's flush output with the layer id it came
// from, so the frame pacer/instruction writer know which "move"/"size"
// state it applies to.
type LayerDelta struct {
	LayerID int
	Delta   surface.FrameDelta
}

// DisposeKind distinguishes the two teardown primitives named in §4.3.
type DisposeKind int

const (
	DisposeLayer DisposeKind = iota
	DisposeClearOffscreen
)

// Disposal describes what Flush (or an explicit DestroyLayer) must
// still communicate to the client for a removed id.
type Disposal struct {
	ID   int
	Kind DisposeKind
}

// Display owns every surface in one session: the permanent root, the
// positive-id composed layers, and the negative-id offscreen buffers
// that back the cache set.
type Display struct {
	mu sync.Mutex

	root   *surface.Surface
	layers map[int]*surface.Surface

	nextLayerID     int
	nextOffscreenID int

	cache *cache.Set
	cfg   surface.Config

	cursor      CursorState
	cursorDirty bool

	pending []Disposal
}

// New creates a display with a root surface of the given extent.
func New(width, height int, cfg surface.Config, cacheSet *cache.Set) *Display {
	return &Display{
		root:            surface.New(RootID, RootID, 0, 0, 0, width, height, 255, cfg),
		layers:          make(map[int]*surface.Surface),
		nextLayerID:     1,
		nextOffscreenID: -1,
		cache:           cacheSet,
		cfg:             cfg,
	}
}

// Root returns the permanent root surface (id 0).
func (d *Display) Root() *surface.Surface {
	return d.root
}

// Surface resolves any id (root, layer, or offscreen) to its surface.
func (d *Display) Surface(id int) (*surface.Surface, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.surfaceLocked(id)
}

func (d *Display) surfaceLocked(id int) (*surface.Surface, error) {
	if id == RootID {
		return d.root, nil
	}
	if id > 0 {
		if s, ok := d.layers[id]; ok {
			return s, nil
		}
		return nil, gwerr.New(gwerr.ClassProtocolError, "display", fmt.Errorf("unknown layer %d", id)).WithCode(0)
	}
	surf, err := d.cache.GetOffscreen(id)
	if err != nil {
		return nil, err
	}
	return surf, nil
}

// CreateLayer allocates a new positive-id composed layer.
func (d *Display) CreateLayer(parentID, x, y, z, w, h int, opacity uint8) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := d.nextLayerID
	d.nextLayerID++
	d.layers[id] = surface.New(id, parentID, x, y, z, w, h, opacity, d.cfg)
	return id
}

// CreateOffscreen allocates a new negative-id offscreen buffer and
// registers it with the cache set under the same id.
func (d *Display) CreateOffscreen(w, h int) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := d.nextOffscreenID
	d.nextOffscreenID--
	surf := surface.New(id, id, 0, 0, 0, w, h, 255, d.cfg)
	d.cache.PutOffscreen(id, surf)
	return id
}

// DestroyLayer removes id. A layer (positive id) queues a "dispose"
// primitive for the next flush; an offscreen buffer (negative id)
// queues a "clear to transparent" primitive so the client's equivalent
// slot becomes reusable (spec §4.3). The root may never be destroyed.
func (d *Display) DestroyLayer(id int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if id == RootID {
		return gwerr.New(gwerr.ClassProtocolError, "display", fmt.Errorf("root surface cannot be destroyed"))
	}
	if id > 0 {
		if _, ok := d.layers[id]; !ok {
			return gwerr.New(gwerr.ClassProtocolError, "display", fmt.Errorf("unknown layer %d", id))
		}
		delete(d.layers, id)
		d.pending = append(d.pending, Disposal{ID: id, Kind: DisposeLayer})
		return nil
	}

	d.cache.DeleteOffscreen(id)
	d.pending = append(d.pending, Disposal{ID: id, Kind: DisposeClearOffscreen})
	return nil
}

// Move updates a layer's parent, position, and z order. The new parent
// chain is checked for cycles before the mutation is applied (spec §9
// Design Notes: "the parent-child graph is checked for cycles at move
// time; a cycle is a BadArgument").
func (d *Display) Move(id, parentID, x, y, z int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, err := d.surfaceLocked(id)
	if err != nil {
		return err
	}
	if err := d.checkNoCycleLocked(id, parentID); err != nil {
		return err
	}
	s.ParentID, s.X, s.Y, s.Z = parentID, x, y, z
	return nil
}

// checkNoCycleLocked walks the chain of parent ids starting at
// parentID, failing if id itself is ever reached — which would mean
// id becomes its own ancestor once reparented under parentID. Must be
// called with d.mu held.
func (d *Display) checkNoCycleLocked(id, parentID int) error {
	if parentID == id {
		return gwerr.New(gwerr.ClassBadArgument, "display", fmt.Errorf("surface %d cannot be its own parent", id))
	}
	visited := make(map[int]bool)
	current := parentID
	for current != RootID {
		if visited[current] {
			// Already-broken graph elsewhere; nothing more to report
			// for this move, which isn't what introduced the loop.
			break
		}
		visited[current] = true
		if current == id {
			return gwerr.New(gwerr.ClassBadArgument, "display", fmt.Errorf("move of surface %d to parent %d would create a cycle", id, parentID))
		}
		surf, err := d.surfaceLocked(current)
		if err != nil {
			// Dangling parent reference; not this function's concern.
			break
		}
		current = surf.ParentID
	}
	return nil
}

// SetOpacity updates a layer's blend opacity (0-255).
func (d *Display) SetOpacity(id int, opacity uint8) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, err := d.surfaceLocked(id)
	if err != nil {
		return err
	}
	s.Opacity = opacity
	return nil
}

// Resize changes a surface's pixel extent in place.
func (d *Display) Resize(id, w, h int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, err := d.surfaceLocked(id)
	if err != nil {
		return err
	}
	s.Resize(w, h)
	return nil
}

// SetCursor updates the single global cursor image/position. Coalesced
// to one "cursor" primitive per frame by Flush.
func (d *Display) SetCursor(image []byte, w, h, hotspotX, hotspotY, x, y int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cursor = CursorState{
		Image: image, Width: w, Height: h,
		HotspotX: hotspotX, HotspotY: hotspotY,
		X: x, Y: y,
	}
	d.cursorDirty = true
}

// Flush drains every surface's dirty state plus any pending
// disposals/cursor update, in z-ascending order (ties broken by
// surface id, per spec §3/§4.3). The caller (the frame pacer) is
// responsible for turning these into wire instructions.
func (d *Display) Flush() ([]LayerDelta, []Disposal, *CursorState) {
	d.mu.Lock()
	defer d.mu.Unlock()

	ordered := d.orderedLayerIDsLocked()

	deltas := make([]LayerDelta, 0, len(ordered)+1)
	if rd := d.root.Flush(); !rd.Empty() {
		deltas = append(deltas, LayerDelta{LayerID: RootID, Delta: rd})
	}
	for _, id := range ordered {
		s := d.layers[id]
		if fd := s.Flush(); !fd.Empty() {
			deltas = append(deltas, LayerDelta{LayerID: id, Delta: fd})
		}
	}

	disposals := d.pending
	d.pending = nil

	var cursor *CursorState
	if d.cursorDirty {
		c := d.cursor
		cursor = &c
		d.cursorDirty = false
	}

	return deltas, disposals, cursor
}

func (d *Display) orderedLayerIDsLocked() []int {
	ids := make([]int, 0, len(d.layers))
	for id := range d.layers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		si, sj := d.layers[ids[i]], d.layers[ids[j]]
		if si.Z != sj.Z {
			return si.Z < sj.Z
		}
		return ids[i] < ids[j]
	})
	return ids
}

// LayerSnapshot is the full current state of one surface, used to
// replay the display to a newly joined client (spec §4.10's
// synchronization phase), independent of and without disturbing any
// dirty-region bookkeeping a later Flush would consume.
type LayerSnapshot struct {
	ID, ParentID int
	X, Y, Z      int
	Opacity      uint8
	Width        int
	Height       int
	Pixels       []byte // row-major RGBA32, the entire surface
}

// SyncSnapshot returns every surface's full current state, root first
// and then layers in parents-before-children order: layers are visited
// in ascending-id order, and a layer whose parent is another layer not
// yet emitted has that parent emitted first (Move can reparent a layer
// under one with a higher id).
func (d *Display) SyncSnapshot() []LayerSnapshot {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]LayerSnapshot, 0, len(d.layers)+1)
	out = append(out, snapshotOf(d.root))

	ids := make([]int, 0, len(d.layers))
	for id := range d.layers {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	emitted := make(map[int]bool, len(ids))
	var emit func(id int)
	emit = func(id int) {
		if emitted[id] {
			return
		}
		emitted[id] = true
		s := d.layers[id]
		if _, isLayer := d.layers[s.ParentID]; isLayer {
			emit(s.ParentID)
		}
		out = append(out, snapshotOf(s))
	}
	for _, id := range ids {
		emit(id)
	}
	return out
}

// CurrentCursor returns the last cursor state set via SetCursor,
// regardless of whether Flush has already reported it dirty this
// frame — used to replay the cursor to a newly joined client.
func (d *Display) CurrentCursor() CursorState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cursor
}

func snapshotOf(s *surface.Surface) LayerSnapshot {
	return LayerSnapshot{
		ID:       s.ID,
		ParentID: s.ParentID,
		X:        s.X,
		Y:        s.Y,
		Z:        s.Z,
		Opacity:  s.Opacity,
		Width:    s.Width(),
		Height:   s.Height(),
		Pixels:   s.ReadRect(surface.Rect{W: s.Width(), H: s.Height()}),
	}
}
