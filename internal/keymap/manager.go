package keymap

import (
	"sync/atomic"
)

// Manager owns the session's active lookup chain and swaps it
// atomically so an in-flight key event is always resolved against a
// complete chain, never a partially-loaded one (spec §4.4's "Loading
// is atomic w.r.t. input processing").
type Manager struct {
	active atomic.Value // stores map[uint32]Entry, the merged chain
	chain  atomic.Value // stores Chain, kept for Reload/inspection
}

// NewManager builds a manager with an empty chain; callers load the
// base keymap immediately after construction via LoadDefault.
func NewManager() *Manager {
	m := &Manager{}
	m.active.Store(map[uint32]Entry{})
	m.chain.Store(Chain(nil))
	return m
}

// LoadDefault replaces the entire chain with base as its sole (root)
// layer.
func (m *Manager) LoadDefault(base Layer) {
	m.swap(Chain{base})
}

// LoadChild pushes child onto the front of the current chain (so it
// shadows every existing layer) and atomically swaps in the result.
func (m *Manager) LoadChild(child Layer) {
	current := m.chain.Load().(Chain)
	next := make(Chain, 0, len(current)+1)
	next = append(next, child)
	next = append(next, current...)
	m.swap(next)
}

// Reload atomically replaces the whole chain, used by the keymap
// directory's fsnotify watcher when a layer file changes on disk.
func (m *Manager) Reload(chain Chain) {
	m.swap(chain)
}

func (m *Manager) swap(chain Chain) {
	merged := chain.Merge()
	m.chain.Store(chain)
	m.active.Store(merged)
}

// Lookup resolves keysym against the currently active chain.
func (m *Manager) Lookup(keysym uint32) Entry {
	merged := m.active.Load().(map[uint32]Entry)
	e, ok := merged[keysym]
	if !ok {
		return Entry{}
	}
	return e
}

// CurrentChain returns the chain last installed via LoadDefault/
// LoadChild/Reload, for diagnostics.
func (m *Manager) CurrentChain() Chain {
	return m.chain.Load().(Chain)
}
