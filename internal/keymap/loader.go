package keymap

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// diskLayer is the on-disk YAML shape: a sparse keysym->entry map keyed
// by a hex or decimal keysym string (e.g. "0xffe1" or "65505"), plus an
// optional parent layer file name resolved relative to the same
// directory.
type diskLayer struct {
	Parent  string               `yaml:"parent"`
	Entries map[string]diskEntry `yaml:"entries"`
}

type diskEntry struct {
	Scancode uint8 `yaml:"scancode"`
	Flags    uint8 `yaml:"flags"`
}

// LoadLayerFile parses one YAML keymap layer file into a Layer. The
// layer's Name is the file's base name without extension.
func LoadLayerFile(path string) (Layer, string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Layer{}, "", fmt.Errorf("keymap: reading %s: %w", path, err)
	}

	var disk diskLayer
	if err := yaml.Unmarshal(raw, &disk); err != nil {
		return Layer{}, "", fmt.Errorf("keymap: parsing %s: %w", path, err)
	}

	entries := make(map[uint32]Entry, len(disk.Entries))
	for key, de := range disk.Entries {
		keysym, err := parseKeysym(key)
		if err != nil {
			return Layer{}, "", fmt.Errorf("keymap: %s: %w", path, err)
		}
		entries[keysym] = Entry{Scancode: de.Scancode, Flags: de.Flags}
	}

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	layer, err := NewLayer(name, entries)
	return layer, disk.Parent, err
}

func parseKeysym(key string) (uint32, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(key), 0, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid keysym %q: %w", key, err)
	}
	return uint32(v), nil
}

// LoadChainFromFile resolves name.yaml within dir, following its parent
// chain (each parent resolved the same way, relative to dir) until a
// layer with no parent is reached. The result is ordered child-first,
// matching Chain's lookup order.
func LoadChainFromFile(dir, name string) (Chain, error) {
	var chain Chain
	seen := make(map[string]bool)

	current := name
	for current != "" {
		if seen[current] {
			return nil, fmt.Errorf("keymap: cyclic parent chain at %q", current)
		}
		seen[current] = true

		path := filepath.Join(dir, current+".yaml")
		layer, parent, err := LoadLayerFile(path)
		if err != nil {
			return nil, err
		}
		chain = append(chain, layer)
		current = parent
	}
	return chain, nil
}

// LoadAllLayers lists the layer names (file names without the .yaml
// extension) of every .yaml file in dir, sorted. It does not open the
// files or follow parent links.
func LoadAllLayers(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("keymap: reading dir %s: %w", dir, err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".yaml" {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), ".yaml"))
	}
	sort.Strings(names)
	return names, nil
}
