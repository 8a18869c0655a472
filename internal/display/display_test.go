package display

import (
	"testing"

	"github.com/deskrelay/gateway/internal/cache"
	"github.com/deskrelay/gateway/internal/surface"
)

func newTestDisplay() *Display {
	return New(640, 480, surface.Config{CopyQueueCapacity: 64, GridSnap: 8}, cache.New(cache.Capacities{}))
}

func TestRootCannotBeDestroyed(t *testing.T) {
	d := newTestDisplay()
	if err := d.DestroyLayer(RootID); err == nil {
		t.Fatal("expected an error destroying the root surface")
	}
}

func TestCreateLayerAssignsAscendingPositiveIDs(t *testing.T) {
	d := newTestDisplay()
	a := d.CreateLayer(RootID, 0, 0, 0, 10, 10, 255)
	b := d.CreateLayer(RootID, 0, 0, 1, 10, 10, 255)
	if a <= 0 || b <= a {
		t.Fatalf("ids = %d, %d; want ascending positive ids", a, b)
	}
}

func TestCreateOffscreenAssignsNegativeIDs(t *testing.T) {
	d := newTestDisplay()
	id := d.CreateOffscreen(16, 16)
	if id >= 0 {
		t.Fatalf("offscreen id = %d, want negative", id)
	}
	if _, err := d.Surface(id); err != nil {
		t.Fatalf("expected offscreen surface to be resolvable: %v", err)
	}
}

func TestDestroyLayerQueuesDisposePrimitive(t *testing.T) {
	d := newTestDisplay()
	id := d.CreateLayer(RootID, 0, 0, 0, 10, 10, 255)
	if err := d.DestroyLayer(id); err != nil {
		t.Fatal(err)
	}
	_, disposals, _ := d.Flush()
	if len(disposals) != 1 || disposals[0].ID != id || disposals[0].Kind != DisposeLayer {
		t.Fatalf("disposals = %+v, want one DisposeLayer for id %d", disposals, id)
	}
}

func TestDestroyOffscreenQueuesClearPrimitive(t *testing.T) {
	d := newTestDisplay()
	id := d.CreateOffscreen(8, 8)
	if err := d.DestroyLayer(id); err != nil {
		t.Fatal(err)
	}
	_, disposals, _ := d.Flush()
	if len(disposals) != 1 || disposals[0].Kind != DisposeClearOffscreen {
		t.Fatalf("disposals = %+v, want one DisposeClearOffscreen", disposals)
	}
}

func TestFlushOrdersLayersByZThenID(t *testing.T) {
	d := newTestDisplay()
	high := d.CreateLayer(RootID, 0, 0, 5, 10, 10, 255)
	low := d.CreateLayer(RootID, 0, 0, 1, 10, 10, 255)
	tie := d.CreateLayer(RootID, 0, 0, 1, 10, 10, 255)

	for _, id := range []int{high, low, tie} {
		surf, err := d.Surface(id)
		if err != nil {
			t.Fatal(err)
		}
		surf.SetRect(0, 0, 4, 4, [4]byte{1, 1, 1, 255})
	}

	deltas, _, _ := d.Flush()
	var order []int
	for _, ld := range deltas {
		if ld.LayerID != RootID {
			order = append(order, ld.LayerID)
		}
	}
	if len(order) != 3 || order[0] != low || order[1] != tie || order[2] != high {
		t.Fatalf("flush order = %v, want [%d %d %d]", order, low, tie, high)
	}
}

func TestMoveRejectsSelfParent(t *testing.T) {
	d := newTestDisplay()
	id := d.CreateLayer(RootID, 0, 0, 0, 10, 10, 255)
	if err := d.Move(id, id, 0, 0, 0); err == nil {
		t.Fatal("expected an error making a surface its own parent")
	}
}

func TestMoveRejectsCycleThroughDescendant(t *testing.T) {
	d := newTestDisplay()
	parent := d.CreateLayer(RootID, 0, 0, 0, 10, 10, 255)
	child := d.CreateLayer(parent, 0, 0, 0, 10, 10, 255)

	if err := d.Move(parent, child, 0, 0, 0); err == nil {
		t.Fatal("expected an error reparenting parent under its own descendant")
	}
}

func TestMoveAllowsNonCyclicReparent(t *testing.T) {
	d := newTestDisplay()
	a := d.CreateLayer(RootID, 0, 0, 0, 10, 10, 255)
	b := d.CreateLayer(RootID, 0, 0, 0, 10, 10, 255)

	if err := d.Move(b, a, 1, 2, 3); err != nil {
		t.Fatalf("expected reparenting under an unrelated sibling to succeed: %v", err)
	}
	surf, _ := d.Surface(b)
	if surf.ParentID != a || surf.X != 1 || surf.Y != 2 || surf.Z != 3 {
		t.Fatalf("surface after move = %+v, want parent=%d x=1 y=2 z=3", surf, a)
	}
}

func TestCursorCoalescedOncePerFrame(t *testing.T) {
	d := newTestDisplay()
	d.SetCursor([]byte{1, 2, 3, 4}, 1, 1, 0, 0, 5, 5)
	d.SetCursor([]byte{5, 6, 7, 8}, 1, 1, 0, 0, 6, 6)

	_, _, cursor := d.Flush()
	if cursor == nil {
		t.Fatal("expected a cursor update")
	}
	if cursor.X != 6 || cursor.Y != 6 {
		t.Fatalf("cursor = %+v, want the latest set position", cursor)
	}

	_, _, cursor = d.Flush()
	if cursor != nil {
		t.Fatal("second flush with no new SetCursor should report no cursor update")
	}
}
