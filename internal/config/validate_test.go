package config

import (
	"strings"
	"testing"
)

func TestNormalizeMissingHostnameIsFatal(t *testing.T) {
	cfg := Default()
	result := cfg.Normalize()
	if !result.HasFatals() {
		t.Fatal("missing hostname should be fatal")
	}
}

func TestNormalizeInvalidPortFallsBack(t *testing.T) {
	cfg := Default()
	cfg.Hostname = "desktop.example.com"
	cfg.Port = 0
	result := cfg.Normalize()
	if result.HasFatals() {
		t.Fatalf("invalid port should be a warning, not fatal: %v", result.Fatals)
	}
	if cfg.Port != 3389 {
		t.Fatalf("Port = %d, want 3389", cfg.Port)
	}
}

func TestNormalizeWidthRoundsUpToMultipleOf4(t *testing.T) {
	cfg := Default()
	cfg.Hostname = "desktop.example.com"
	cfg.Width = 1023
	result := cfg.Normalize()
	if result.HasFatals() {
		t.Fatalf("non-multiple-of-4 width should be a warning: %v", result.Fatals)
	}
	if cfg.Width != 1024 {
		t.Fatalf("Width = %d, want 1024", cfg.Width)
	}
}

func TestNormalizeWidthAlreadyAlignedIsUnchanged(t *testing.T) {
	cfg := Default()
	cfg.Hostname = "desktop.example.com"
	cfg.Width = 1280
	result := cfg.Normalize()
	if result.HasFatals() {
		t.Fatalf("aligned width should not be fatal: %v", result.Fatals)
	}
	if cfg.Width != 1280 {
		t.Fatalf("Width = %d, want unchanged 1280", cfg.Width)
	}
}

func TestNormalizeInvalidColorDepthFallsBackTo16(t *testing.T) {
	for _, depth := range []int{0, 9, 17, 64} {
		cfg := Default()
		cfg.Hostname = "desktop.example.com"
		cfg.ColorDepth = depth
		result := cfg.Normalize()
		if result.HasFatals() {
			t.Fatalf("invalid depth %d should be a warning: %v", depth, result.Fatals)
		}
		if cfg.ColorDepth != 16 {
			t.Fatalf("ColorDepth(%d) = %d, want 16", depth, cfg.ColorDepth)
		}
	}
}

func TestNormalizeValidColorDepthsAreUnchanged(t *testing.T) {
	for _, depth := range []int{8, 16, 24, 32} {
		cfg := Default()
		cfg.Hostname = "desktop.example.com"
		cfg.ColorDepth = depth
		cfg.Normalize()
		if cfg.ColorDepth != depth {
			t.Fatalf("ColorDepth(%d) changed to %d", depth, cfg.ColorDepth)
		}
	}
}

func TestNormalizeInvalidLogFormatIsWarning(t *testing.T) {
	cfg := Default()
	cfg.Hostname = "desktop.example.com"
	cfg.LogFormat = "xml"
	result := cfg.Normalize()
	if result.HasFatals() {
		t.Fatal("invalid log format should not be fatal")
	}
	found := false
	for _, w := range result.Warnings {
		if strings.Contains(w.Error(), "log_format") {
			found = true
		}
	}
	if !found {
		t.Fatal("expected warning about log_format")
	}
	if cfg.LogFormat != "text" {
		t.Fatalf("LogFormat = %q, want text", cfg.LogFormat)
	}
}

func TestNormalizeInvalidTransportFallsBackToTCP(t *testing.T) {
	cfg := Default()
	cfg.Hostname = "desktop.example.com"
	cfg.ListenTransport = "carrier-pigeon"
	cfg.Normalize()
	if cfg.ListenTransport != "tcp" {
		t.Fatalf("ListenTransport = %q, want tcp", cfg.ListenTransport)
	}
}

func TestHasFatals(t *testing.T) {
	var r ValidationResult
	if r.HasFatals() {
		t.Fatal("HasFatals() on empty result should be false")
	}
}

func TestValidConfigHasNoWarnings(t *testing.T) {
	cfg := Default()
	cfg.Hostname = "desktop.example.com"
	result := cfg.Normalize()
	if result.HasFatals() {
		t.Fatalf("valid config has fatals: %v", result.Fatals)
	}
	if len(result.Warnings) > 0 {
		t.Fatalf("valid default config has warnings: %v", result.Warnings)
	}
}
