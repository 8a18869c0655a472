package cache

import (
	"errors"
	"testing"

	"github.com/deskrelay/gateway/internal/gwerr"
)

func TestBitmapMissIsFatal(t *testing.T) {
	s := New(Capacities{Bitmap: 4})
	_, err := s.GetBitmap(Key{CacheID: 0, EntryID: 1})
	if err == nil {
		t.Fatal("expected error on bitmap miss")
	}
	if !gwerr.IsFatal(err) {
		t.Fatal("bitmap miss should be fatal")
	}
}

func TestBitmapOverflowIsResourceExhausted(t *testing.T) {
	s := New(Capacities{Bitmap: 1})
	if err := s.PutBitmap(Key{EntryID: 1}, BitmapEntry{Width: 1, Height: 1}); err != nil {
		t.Fatalf("first put should succeed: %v", err)
	}
	err := s.PutBitmap(Key{EntryID: 2}, BitmapEntry{Width: 1, Height: 1})
	if err == nil {
		t.Fatal("expected overflow error on second distinct key at capacity 1")
	}
	class, ok := gwerr.ClassOf(err)
	if !ok || class != gwerr.ClassResourceExhausted {
		t.Fatalf("class = %v, %v; want ClassResourceExhausted, true", class, ok)
	}
}

func TestBitmapOverwriteSameKeyDoesNotCountAsOverflow(t *testing.T) {
	s := New(Capacities{Bitmap: 1})
	key := Key{EntryID: 1}
	if err := s.PutBitmap(key, BitmapEntry{Width: 1, Height: 1}); err != nil {
		t.Fatal(err)
	}
	if err := s.PutBitmap(key, BitmapEntry{Width: 2, Height: 2}); err != nil {
		t.Fatalf("overwriting the same key should not overflow: %v", err)
	}
}

func TestPointerEvictsLeastRecentlyUsed(t *testing.T) {
	s := New(Capacities{Pointer: 2})
	s.PutPointer(1, PointerEntry{Width: 1})
	s.PutPointer(2, PointerEntry{Width: 2})
	// Touch 1 so 2 becomes the least recently used.
	if _, ok := s.GetPointer(1); !ok {
		t.Fatal("expected pointer 1 to be present")
	}
	s.PutPointer(3, PointerEntry{Width: 3})

	if _, ok := s.GetPointer(2); ok {
		t.Fatal("pointer 2 should have been evicted as LRU")
	}
	if _, ok := s.GetPointer(1); !ok {
		t.Fatal("pointer 1 should still be present")
	}
	if _, ok := s.GetPointer(3); !ok {
		t.Fatal("pointer 3 should be present")
	}
}

func TestPointerMissReportsNotFoundInsteadOfFailing(t *testing.T) {
	s := New(Capacities{Pointer: 2})
	_, ok := s.GetPointer(99)
	if ok {
		t.Fatal("expected miss")
	}
}

func TestGetPointerOrDefaultFallsBackOnMiss(t *testing.T) {
	s := New(Capacities{Pointer: 2})
	entry := s.GetPointerOrDefault(7)
	def := DefaultPointer()
	if entry.Width != def.Width || entry.Height != def.Height {
		t.Fatalf("expected default pointer dimensions %dx%d, got %dx%d", def.Width, def.Height, entry.Width, entry.Height)
	}
}

func TestGetPointerOrDefaultReturnsCachedEntry(t *testing.T) {
	s := New(Capacities{Pointer: 2})
	s.PutPointer(7, PointerEntry{Width: 3, Height: 3})
	entry := s.GetPointerOrDefault(7)
	if entry.Width != 3 || entry.Height != 3 {
		t.Fatalf("expected cached entry, got %+v", entry)
	}
}

func TestOffscreenMissIsFatal(t *testing.T) {
	s := New(Capacities{})
	_, err := s.GetOffscreen(-1)
	if err == nil || !errors.As(err, new(*gwerr.Error)) {
		t.Fatal("expected a *gwerr.Error on offscreen miss")
	}
}

func TestOffscreenExplicitDelete(t *testing.T) {
	s := New(Capacities{})
	s.PutOffscreen(-1, nil)
	s.DeleteOffscreen(-1)
	if _, err := s.GetOffscreen(-1); err == nil {
		t.Fatal("expected miss after explicit delete")
	}
}

func TestPaletteDefaultsToZeroPalette(t *testing.T) {
	s := New(Capacities{})
	p := s.GetPalette()
	var zero Palette
	if p != zero {
		t.Fatal("expected zero palette before any SetPalette call")
	}
}

func TestPaletteOverwrite(t *testing.T) {
	s := New(Capacities{})
	var p Palette
	p[0] = [3]byte{1, 2, 3}
	s.SetPalette(p)
	if got := s.GetPalette(); got[0] != [3]byte{1, 2, 3} {
		t.Fatalf("GetPalette()[0] = %v, want [1 2 3]", got[0])
	}
}
