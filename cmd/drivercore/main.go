// Command drivercore is the companion process described in spec §1/§3:
// it sits behind an X11-hooked local session instead of an RDP
// connection, maintaining one shared Display that possibly many
// attached viewers watch concurrently.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/net/netutil"
	"golang.org/x/sync/errgroup"

	"github.com/deskrelay/gateway/internal/cache"
	"github.com/deskrelay/gateway/internal/drivercore"
	"github.com/deskrelay/gateway/internal/logging"
	"github.com/deskrelay/gateway/internal/pacer"
	"github.com/deskrelay/gateway/internal/session"
	"github.com/deskrelay/gateway/internal/surface"
)

var version = "0.1.0"

var cfgFile string

var log = logging.L("drivercore")

var rootCmd = &cobra.Command{
	Use:   "drivercore",
	Short: "DeskRelay driver core: shared X11-hooked display fanned out to attached viewers",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDriverCore()
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default /etc/deskrelay/drivercore.yaml)")
	flags.Int("width", 1024, "shared desktop width")
	flags.Int("height", 768, "shared desktop height")
	flags.String("listen-addr", ":4823", "viewer listen address")
	flags.Int("max-connections", 32, "maximum concurrent viewer connections")
	flags.Int("handshake-timeout-ms", 15_000, "viewer handshake timeout in milliseconds")
	flags.String("log-level", "info", "log level")
	flags.String("log-format", "text", "log format: text or json")

	for _, name := range []string{
		"width", "height", "listen-addr", "max-connections", "handshake-timeout-ms",
		"log-level", "log-format",
	} {
		viper.BindPFlag(name, flags.Lookup(name))
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// driverConfig holds the subset of spec §6's knobs that make sense for
// a shared-display process rather than a single RDP session: no RDP
// connection parameters, but the same pacer/surface/listen tuning.
type driverConfig struct {
	Width             int
	Height            int
	ListenAddr        string
	MaxConnections    int
	HandshakeTimeout  time.Duration
	GridSnap          int
	CopyQueueCapacity int
	MaxTileBytes      int
	LogLevel          string
	LogFormat         string
}

func loadDriverConfig() (*driverConfig, error) {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("drivercore")
		viper.SetConfigType("yaml")
		viper.AddConfigPath("/etc/deskrelay")
		viper.AddConfigPath(".")
	}
	viper.AutomaticEnv()
	viper.SetEnvPrefix("DESKRELAY")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	cfg := &driverConfig{
		Width:             viper.GetInt("width"),
		Height:            viper.GetInt("height"),
		ListenAddr:        viper.GetString("listen-addr"),
		MaxConnections:    viper.GetInt("max-connections"),
		HandshakeTimeout:  time.Duration(viper.GetInt("handshake-timeout-ms")) * time.Millisecond,
		GridSnap:          64,
		CopyQueueCapacity: 256,
		MaxTileBytes:      256 * 1024,
		LogLevel:          viper.GetString("log-level"),
		LogFormat:         viper.GetString("log-format"),
	}
	if cfg.Width <= 0 {
		cfg.Width = 1024
	}
	if cfg.Height <= 0 {
		cfg.Height = 768
	}
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = 32
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 15 * time.Second
	}
	return cfg, nil
}

func runDriverCore() error {
	cfg, err := loadDriverConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	var output io.Writer = os.Stdout
	logging.Init(cfg.LogFormat, cfg.LogLevel, output)
	log = logging.L("drivercore")
	log.Info("starting driver core", "version", version, "width", cfg.Width, "height", cfg.Height)

	srv := drivercore.NewServer(
		cfg.Width, cfg.Height,
		surface.Config{
			CopyQueueCapacity: cfg.CopyQueueCapacity,
			GridSnap:          cfg.GridSnap,
			MaxTileBytes:      cfg.MaxTileBytes,
		},
		cache.Capacities{Bitmap: 4096, Glyph: 4096, Pointer: 64, Brush: 64},
		pacer.Config{
			WaitTimeout:      time.Second,
			MaxFrameDuration: 40 * time.Millisecond,
			FillPollInterval: 10 * time.Millisecond,
			LagThreshold:     100 * time.Millisecond,
			MaxFlushRate:     30,
		},
		session.Config{HandshakeTimeout: cfg.HandshakeTimeout, HeartbeatInterval: 15 * time.Second},
		log,
	)

	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", cfg.ListenAddr, err)
	}
	ln = netutil.LimitListener(ln, cfg.MaxConnections)
	defer ln.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		srv.Run(gctx)
		return nil
	})
	g.Go(func() error {
		viewerAcceptLoop(gctx, ln, srv, log)
		return nil
	})
	g.Go(func() error {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		select {
		case <-sigCh:
			log.Info("shutting down driver core")
		case <-gctx.Done():
		}
		cancel()
		srv.CloseAll()
		ln.Close()
		return nil
	})
	return g.Wait()
}

func viewerAcceptLoop(ctx context.Context, ln net.Listener, srv *drivercore.Server, log *slog.Logger) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warn("drivercore: accept failed", "error", err)
			continue
		}
		go func() {
			if err := srv.Attach(ctx, conn); err != nil {
				log.Debug("drivercore: viewer disconnected", "error", err)
			}
		}()
	}
}
