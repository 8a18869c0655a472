package keymap

import (
	"os"
	"path/filepath"
	"testing"
)

func TestChainLookupChildWinsOverParent(t *testing.T) {
	parent := Layer{Name: "us", Entries: map[uint32]Entry{0x61: {Scancode: 30}}}
	child := Layer{Name: "us-custom", Entries: map[uint32]Entry{0x61: {Scancode: 99}}}
	chain := Chain{child, parent}

	got := chain.Lookup(0x61)
	if got.Scancode != 99 {
		t.Fatalf("Scancode = %d, want 99 (child should win)", got.Scancode)
	}
}

func TestChainLookupFallsBackToParent(t *testing.T) {
	parent := Layer{Name: "us", Entries: map[uint32]Entry{0x62: {Scancode: 48}}}
	child := Layer{Name: "us-custom", Entries: map[uint32]Entry{0x61: {Scancode: 99}}}
	chain := Chain{child, parent}

	got := chain.Lookup(0x62)
	if got.Scancode != 48 {
		t.Fatalf("Scancode = %d, want 48 from parent fallback", got.Scancode)
	}
}

func TestChainLookupMissReturnsZero(t *testing.T) {
	chain := Chain{{Name: "us", Entries: map[uint32]Entry{}}}
	got := chain.Lookup(0xdead)
	if got != (Entry{}) {
		t.Fatalf("expected zero Entry on miss, got %+v", got)
	}
}

func TestManagerLoadDefaultThenLoadChild(t *testing.T) {
	m := NewManager()
	m.LoadDefault(Layer{Name: "us", Entries: map[uint32]Entry{0x61: {Scancode: 30}}})
	if m.Lookup(0x61).Scancode != 30 {
		t.Fatal("base layer lookup failed")
	}

	m.LoadChild(Layer{Name: "us-custom", Entries: map[uint32]Entry{0x61: {Scancode: 77}}})
	if m.Lookup(0x61).Scancode != 77 {
		t.Fatal("child layer should shadow base entry")
	}
}

func TestManagerReloadReplacesChainAtomically(t *testing.T) {
	m := NewManager()
	m.LoadDefault(Layer{Name: "us", Entries: map[uint32]Entry{0x61: {Scancode: 30}}})

	m.Reload(Chain{{Name: "de", Entries: map[uint32]Entry{0x61: {Scancode: 44}}}})
	if m.Lookup(0x61).Scancode != 44 {
		t.Fatal("Reload should swap in the new chain")
	}
}

func TestLoadChainFromFileFollowsParent(t *testing.T) {
	dir := t.TempDir()
	writeYAML(t, dir, "base.yaml", `
entries:
  "0x61": {scancode: 30, flags: 0}
`)
	writeYAML(t, dir, "custom.yaml", `
parent: base
entries:
  "0x62": {scancode: 48, flags: 0}
`)

	chain, err := LoadChainFromFile(dir, "custom")
	if err != nil {
		t.Fatal(err)
	}
	if len(chain) != 2 {
		t.Fatalf("chain length = %d, want 2", len(chain))
	}
	if chain.Lookup(0x61).Scancode != 30 || chain.Lookup(0x62).Scancode != 48 {
		t.Fatalf("unexpected lookups from loaded chain: %+v", chain)
	}
}

func TestLoadChainFromFileDetectsCycle(t *testing.T) {
	dir := t.TempDir()
	writeYAML(t, dir, "a.yaml", "parent: b\nentries: {}\n")
	writeYAML(t, dir, "b.yaml", "parent: a\nentries: {}\n")

	_, err := LoadChainFromFile(dir, "a")
	if err == nil {
		t.Fatal("expected a cyclic parent chain error")
	}
}

func writeYAML(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}
