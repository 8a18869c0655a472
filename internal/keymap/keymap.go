// Package keymap implements the X keysym -> scancode translation table
// described in spec §4.4 (C4): an ordered chain of sparse layers with
// parent-chain fallback, loaded atomically so input processing never
// observes a half-applied chain.
package keymap

import (
	"fmt"
)

// Entry is what a keysym resolves to: an 8-bit scancode plus a flag
// byte (extended, pause, etc. — spec §3).
type Entry struct {
	Scancode uint8
	Flags    uint8
}

// Layer is one link in the chain: a sparse keysym->Entry table plus an
// optional name for logging.
type Layer struct {
	Name    string
	Entries map[uint32]Entry
}

// Chain is one fully-resolved lookup chain, child-to-root. index 0 is
// the most specific (child) layer.
type Chain []Layer

// Lookup walks the chain from child to root and returns the first
// defined entry, or the zero Entry if none matched (spec §4.4).
func (c Chain) Lookup(keysym uint32) Entry {
	for _, layer := range c {
		if e, ok := layer.Entries[keysym]; ok {
			return e
		}
	}
	return Entry{}
}

// Merge flattens the chain into a single keysym->Entry map: child
// entries shadow parent entries at the same keysym. The load rule in
// §4.4 says layers are loaded root-first and a child's entries memcopy
// over the parent's, which is exactly the fold this performs (it walks
// the chain from root to child, so the child is applied last and wins
// ties).
func (c Chain) Merge() map[uint32]Entry {
	merged := make(map[uint32]Entry)
	for i := len(c) - 1; i >= 0; i-- {
		for k, v := range c[i].Entries {
			merged[k] = v
		}
	}
	return merged
}

// NewLayer builds a layer from an in-memory entry map. The only check
// it makes is that the entry map is not nil; the entries themselves are
// not validated.
func NewLayer(name string, entries map[uint32]Entry) (Layer, error) {
	if entries == nil {
		return Layer{}, fmt.Errorf("keymap: layer %q has a nil entry table", name)
	}
	return Layer{Name: name, Entries: entries}, nil
}
