// Package config loads gateway configuration from flags, environment, and
// an optional file, the way the teacher's agent config layer does.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Config holds one gateway process's full configuration. A process
// represents one active session (spec §1), so most fields here are the
// connection parameters for that single session plus the ambient
// logging/pacing knobs that apply to it.
type Config struct {
	// RDP connection (§6).
	Hostname        string `mapstructure:"hostname"`
	Port            int    `mapstructure:"port"`
	Domain          string `mapstructure:"domain"`
	Username        string `mapstructure:"username"`
	Password        string `mapstructure:"password"`
	Width           int    `mapstructure:"width"`
	Height          int    `mapstructure:"height"`
	InitialProgram  string `mapstructure:"initial_program"`
	ColorDepth      int    `mapstructure:"color_depth"`
	DisableAudio    bool   `mapstructure:"disable_audio"`
	Console         bool   `mapstructure:"console"`
	ConsoleAudio    bool   `mapstructure:"console_audio"`

	// Display protocol (outbound/inbound instruction stream, §6).
	ListenAddr        string `mapstructure:"listen_addr"`
	ListenTransport    string `mapstructure:"listen_transport"` // "tcp" or "websocket"
	MaxConnections     int    `mapstructure:"max_connections"`
	HandshakeTimeoutMS int    `mapstructure:"handshake_timeout_ms"`

	// Frame pacer (§4.9).
	MaxFrameDurationMS int     `mapstructure:"max_frame_duration_ms"`
	LagThresholdMS     int     `mapstructure:"lag_threshold_ms"`
	WaitTimeoutMS      int     `mapstructure:"wait_timeout_ms"`
	FillPollMS         int     `mapstructure:"fill_poll_ms"`
	MaxFlushRateHz     float64 `mapstructure:"max_flush_rate_hz"`

	// Surface (§4.1).
	GridSnap          int `mapstructure:"grid_snap"`
	CopyQueueCapacity int `mapstructure:"copy_queue_capacity"`
	MaxTileBytes      int `mapstructure:"max_tile_bytes"`

	// Keymap (§4.4).
	KeymapDir     string `mapstructure:"keymap_dir"`
	KeymapDefault string `mapstructure:"keymap_default"`

	// Logging.
	LogLevel      string `mapstructure:"log_level"`
	LogFormat     string `mapstructure:"log_format"`
	LogFile       string `mapstructure:"log_file"`
	LogMaxSizeMB  int    `mapstructure:"log_max_size_mb"`
	LogMaxBackups int    `mapstructure:"log_max_backups"`
}

// validColorDepths is the Open Question resolution from §6/§8: invalid
// depths fall back to 16 rather than being passed through.
var validColorDepths = map[int]bool{8: true, 16: true, 24: true, 32: true}

// Default returns the documented fallback configuration.
func Default() *Config {
	return &Config{
		Port:       3389,
		Width:      1024,
		Height:     768,
		ColorDepth: 16,

		ListenAddr:         ":4822",
		ListenTransport:    "tcp",
		MaxConnections:     16,
		HandshakeTimeoutMS: 15_000,

		MaxFrameDurationMS: 40,
		LagThresholdMS:     100,
		WaitTimeoutMS:      1000,
		FillPollMS:         10,
		MaxFlushRateHz:     30,

		GridSnap:          64,
		CopyQueueCapacity: 256,
		MaxTileBytes:      256 * 1024,

		KeymapDir:     "/etc/deskrelay/keymaps",
		KeymapDefault: "us",

		LogLevel:      "info",
		LogFormat:     "text",
		LogMaxSizeMB:  50,
		LogMaxBackups: 3,
	}
}

// Load reads configuration from cfgFile (if set) plus flags/env bound by the
// caller, applies §6's boundary-behavior fallbacks, and validates the
// result. Fatal validation errors block startup; warnings are logged and
// the offending field is clamped to a safe default.
func Load(cfgFile string) (*Config, error) {
	cfg := Default()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("gateway")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(configDir())
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("DESKRELAY")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	if err := viper.Unmarshal(cfg); err != nil {
		return nil, err
	}

	result := cfg.Normalize()
	for _, w := range result.Warnings {
		slog.Warn("config validation", "error", w)
	}
	if result.HasFatals() {
		for _, f := range result.Fatals {
			slog.Error("config validation fatal", "error", f)
		}
		return nil, fmt.Errorf("config has fatal validation errors: %v", result.Fatals[0])
	}

	return cfg, nil
}

func configDir() string {
	if dir := os.Getenv("DESKRELAY_CONFIG_DIR"); dir != "" {
		return dir
	}
	return filepath.Join(string(filepath.Separator), "etc", "deskrelay")
}
