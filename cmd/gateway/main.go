// Command gateway is the RDP-terminating process described in spec
// §1/§4.10: one instance represents one active remote desktop session,
// translating decoded RDP drawing orders into the line-framed display
// protocol and translating inbound display-protocol input back onto
// the RDP side.
package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/net/netutil"
	"golang.org/x/sync/errgroup"

	"github.com/deskrelay/gateway/internal/cache"
	"github.com/deskrelay/gateway/internal/config"
	"github.com/deskrelay/gateway/internal/display"
	"github.com/deskrelay/gateway/internal/inputstate"
	"github.com/deskrelay/gateway/internal/keymap"
	"github.com/deskrelay/gateway/internal/logging"
	"github.com/deskrelay/gateway/internal/pacer"
	"github.com/deskrelay/gateway/internal/rdp"
	"github.com/deskrelay/gateway/internal/session"
	"github.com/deskrelay/gateway/internal/surface"
)

var version = "0.1.0"

var cfgFile string

var log = logging.L("main")

var rootCmd = &cobra.Command{
	Use:   "gateway",
	Short: "DeskRelay gateway: one RDP session re-encoded as a display-protocol stream",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runGateway()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("gateway v%s\n", version)
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default /etc/deskrelay/gateway.yaml)")
	flags.String("hostname", "", "RDP server hostname")
	flags.Int("port", 3389, "RDP server port")
	flags.String("domain", "", "RDP domain")
	flags.String("username", "", "RDP username")
	flags.String("password", "", "RDP password")
	flags.Int("width", 1024, "initial desktop width")
	flags.Int("height", 768, "initial desktop height")
	flags.String("initial-program", "", "program to launch on connect")
	flags.Int("color-depth", 16, "color depth (8, 16, 24, or 32)")
	flags.Bool("disable-audio", false, "disable audio redirection")
	flags.Bool("console", false, "connect to the console session")
	flags.Bool("console-audio", false, "redirect console audio")
	flags.String("listen-addr", ":4822", "display-protocol listen address")
	flags.String("listen-transport", "tcp", "display-protocol transport: tcp or websocket")

	for _, name := range []string{
		"hostname", "port", "domain", "username", "password", "width", "height",
		"initial-program", "color-depth", "disable-audio", "console", "console-audio",
		"listen-addr", "listen-transport",
	} {
		viper.BindPFlag(viperKey(name), flags.Lookup(name))
	}

	rootCmd.AddCommand(versionCmd)
}

// viperKey maps a CLI flag's dashed name onto the Config struct's
// mapstructure tag (underscored), matching the teacher's own
// flag-to-config binding convention.
func viperKey(flagName string) string {
	key := flagName
	for i := 0; i < len(key); i++ {
		if key[i] == '-' {
			key = key[:i] + "_" + key[i+1:]
		}
	}
	switch flagName {
	case "listen-addr":
		return "listen_addr"
	case "listen-transport":
		return "listen_transport"
	}
	return key
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func initLogging(cfg *config.Config) {
	var output io.Writer = os.Stdout
	if cfg.LogFile != "" {
		rw, err := logging.NewRotatingWriter(cfg.LogFile, cfg.LogMaxSizeMB, cfg.LogMaxBackups)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to open log file %s: %v (logging to stdout)\n", cfg.LogFile, err)
		} else {
			output = logging.TeeWriter(os.Stdout, rw)
		}
	}
	logging.Init(cfg.LogFormat, cfg.LogLevel, output)
	log = logging.L("main")
}

// runGateway wires every component named in spec §2's data-flow table
// for a single gateway process and runs it until a shutdown signal
// arrives.
func runGateway() error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	initLogging(cfg)
	log.Info("starting gateway", "version", version, "hostname", cfg.Hostname, "port", cfg.Port)

	cacheSet := cache.New(cache.Capacities{Bitmap: 4096, Glyph: 4096, Pointer: 64, Brush: 64})

	surfCfg := surface.Config{
		CopyQueueCapacity: cfg.CopyQueueCapacity,
		GridSnap:          cfg.GridSnap,
		MaxTileBytes:      cfg.MaxTileBytes,
	}
	disp := display.New(cfg.Width, cfg.Height, surfCfg, cacheSet)

	keymapMgr, keymapWatcher, err := loadKeymap(cfg)
	if err != nil {
		return fmt.Errorf("loading keymap: %w", err)
	}
	if keymapWatcher != nil {
		defer keymapWatcher.Close()
	}

	handlers := rdp.NewHandlers(disp, cacheSet, logging.L("rdp"))

	pacerCfg := pacer.Config{
		WaitTimeout:      time.Duration(cfg.WaitTimeoutMS) * time.Millisecond,
		MaxFrameDuration: time.Duration(cfg.MaxFrameDurationMS) * time.Millisecond,
		FillPollInterval: time.Duration(cfg.FillPollMS) * time.Millisecond,
		LagThreshold:     time.Duration(cfg.LagThresholdMS) * time.Millisecond,
		MaxFlushRate:     cfg.MaxFlushRateHz,
	}

	sessCfg := session.Config{
		HandshakeTimeout:  time.Duration(cfg.HandshakeTimeoutMS) * time.Millisecond,
		HeartbeatInterval: 15 * time.Second,
	}
	mgr := session.NewManager(disp, cacheSet, keymapMgr, pacerCfg, sessCfg, logging.L("session"))

	transport := rdp.Transport(rdp.UnavailableTransport{Log: logging.L("rdp-transport")})
	wireRDPConnection(mgr, handlers, cfg, transport)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ln, err := listen(cfg)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", cfg.ListenAddr, err)
	}
	ln = netutil.LimitListener(ln, cfg.MaxConnections)
	defer ln.Close()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		acceptLoop(gctx, ln, mgr)
		return nil
	})
	g.Go(func() error {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		select {
		case <-sigCh:
			log.Info("shutting down gateway")
		case <-gctx.Done():
		}
		cancel()
		mgr.CloseAll()
		ln.Close()
		return nil
	})
	return g.Wait()
}

// loadKeymap loads the configured default chain and, if the keymap
// directory exists, starts a hot-reload watcher on it (SPEC_FULL.md's
// config-hot-reload section).
func loadKeymap(cfg *config.Config) (*keymap.Manager, *keymap.Watcher, error) {
	mgr := keymap.NewManager()

	if _, err := os.Stat(cfg.KeymapDir); err != nil {
		log.Warn("keymap directory not found, starting with an empty keymap", "dir", cfg.KeymapDir, "error", err)
		return mgr, nil, nil
	}

	chain, err := keymap.LoadChainFromFile(cfg.KeymapDir, cfg.KeymapDefault)
	if err != nil {
		return nil, nil, err
	}
	mgr.Reload(chain)

	watcher, err := keymap.NewWatcher(cfg.KeymapDir, cfg.KeymapDefault, mgr)
	if err != nil {
		log.Warn("keymap watcher failed to start, hot-reload disabled", "error", err)
		return mgr, nil, nil
	}
	return mgr, watcher, nil
}

// wireRDPConnection registers the post-handshake hook that dials the
// RDP side (spec §4.10: "connect (credentials, options, dimensions,
// depth)") and forwards input/clipboard between the two directions of
// the data flow in spec §2.
func wireRDPConnection(mgr *session.Manager, handlers *rdp.Handlers, cfg *config.Config, transport rdp.Transport) {
	mgr.OnHandshakeComplete(func(sess *session.Session, params session.ConnectParams) error {
		connectParams := rdp.ConnectParams{
			Hostname:       cfg.Hostname,
			Port:           cfg.Port,
			Domain:         firstNonEmpty(params.Domain, cfg.Domain),
			Username:       firstNonEmpty(params.Username, cfg.Username),
			Password:       firstNonEmpty(params.Password, cfg.Password),
			Width:          firstPositive(params.Width, cfg.Width),
			Height:         firstPositive(params.Height, cfg.Height),
			ColorDepth:     firstPositive(params.ColorDepth, cfg.ColorDepth),
			InitialProgram: firstNonEmpty(params.InitialProgram, cfg.InitialProgram),
			Console:        params.Console || cfg.Console,
			ConsoleAudio:   params.ConsoleAudio || cfg.ConsoleAudio,
			DisableAudio:   params.DisableAudio || cfg.DisableAudio,
		}

		cb := rdp.NewCallbacks(handlers, sess.MarkModified, func(w, h int) error {
			return nil
		})

		conn, err := transport.Dial(connectParams, cb, handlers)
		if err != nil {
			return err
		}

		sess.OnReleaseKeys(func(events []inputstate.KeyEvent) {
			if err := conn.SendKeyEvents(events); err != nil {
				log.Debug("gateway: release-key forward failed", "session", sess.ID, "error", err)
			}
		})
		sess.OnKeyEvent(func(events []inputstate.KeyEvent) {
			if err := conn.SendKeyEvents(events); err != nil {
				log.Debug("gateway: key forward failed", "session", sess.ID, "error", err)
			}
		})
		sess.OnMouseEvent(func(motion *inputstate.MotionEvent, buttons []inputstate.ButtonEvent) {
			if motion != nil {
				if err := conn.SendMotion(motion); err != nil {
					log.Debug("gateway: motion forward failed", "session", sess.ID, "error", err)
				}
			}
			if len(buttons) > 0 {
				if err := conn.SendButtons(buttons); err != nil {
					log.Debug("gateway: button forward failed", "session", sess.ID, "error", err)
				}
			}
		})
		if bridge := conn.Clipboard(); bridge != nil {
			bridge.OnPushToClient(func(mimeType string, data []byte) error {
				return sess.PushClipboard(mimeType, data)
			})
			sess.OnClipboard(func(mimeType string, data []byte) {
				if err := bridge.FromClient(mimeType, data); err != nil {
					log.Debug("gateway: clipboard forward failed", "session", sess.ID, "error", err)
				}
			})
		}
		conn.OnAudioPCM(func(pcm []byte) {
			if err := sess.PushAudioPCM(pcm); err != nil {
				log.Debug("gateway: audio forward failed", "session", sess.ID, "error", err)
			}
		})
		sess.OnResize(func(w, h int) {
			// A desktop_resize request from the RDP side arrives through
			// cb.DesktopResize; a client-requested resize here would need
			// the RDP transport to renegotiate its own desktop size, which
			// spec §1 leaves to the opaque third-party library.
			log.Debug("gateway: client requested resize, not forwarded (needs transport renegotiation)", "width", w, "height", h)
		})

		sess.OnClose(func() { conn.Close() })
		return nil
	})
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstPositive(vals ...int) int {
	for _, v := range vals {
		if v > 0 {
			return v
		}
	}
	return 0
}

// listen opens the display-protocol listener per cfg.ListenTransport:
// a plain TCP listener, or an HTTP server upgrading every request to a
// websocket and adapting the result onto a net.Listener via a small
// channel-backed shim, matching how real Guacamole deployments proxy
// guacd through a websocket tunnel (SPEC_FULL.md's DOMAIN STACK table).
func listen(cfg *config.Config) (net.Listener, error) {
	if cfg.ListenTransport != "websocket" {
		return net.Listen("tcp", cfg.ListenAddr)
	}

	tcpLn, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return nil, err
	}
	return newWebSocketListener(tcpLn), nil
}

// webSocketListener upgrades each accepted HTTP connection to a
// websocket and hands the resulting websocket connection out through
// Accept as if it were a plain net.Conn, so the rest of the gateway
// (session.Manager, protocol.Reader/Writer) never has to know the
// transport differs.
type webSocketListener struct {
	tcpLn    net.Listener
	upgrader websocket.Upgrader
	conns    chan net.Conn
	srv      *http.Server
}

func newWebSocketListener(tcpLn net.Listener) *webSocketListener {
	l := &webSocketListener{
		tcpLn: tcpLn,
		conns: make(chan net.Conn, 16),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		wsConn, err := l.upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Debug("gateway: websocket upgrade failed", "error", err)
			return
		}
		l.conns <- &websocketConnAdapter{Conn: wsConn}
	})
	l.srv = &http.Server{Handler: mux}
	go l.srv.Serve(tcpLn)
	return l
}

func (l *webSocketListener) Accept() (net.Conn, error) {
	conn, ok := <-l.conns
	if !ok {
		return nil, net.ErrClosed
	}
	return conn, nil
}

func (l *webSocketListener) Close() error {
	close(l.conns)
	return l.srv.Close()
}

func (l *webSocketListener) Addr() net.Addr {
	return l.tcpLn.Addr()
}

// websocketConnAdapter adapts a *websocket.Conn onto the net.Conn
// interface protocol.Reader/Writer expect, reading/writing each
// websocket message as one frame of the underlying byte stream.
type websocketConnAdapter struct {
	*websocket.Conn
	readBuf []byte
}

func (a *websocketConnAdapter) Read(p []byte) (int, error) {
	for len(a.readBuf) == 0 {
		_, data, err := a.Conn.ReadMessage()
		if err != nil {
			return 0, err
		}
		a.readBuf = data
	}
	n := copy(p, a.readBuf)
	a.readBuf = a.readBuf[n:]
	return n, nil
}

func (a *websocketConnAdapter) Write(p []byte) (int, error) {
	if err := a.Conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (a *websocketConnAdapter) SetDeadline(t time.Time) error {
	if err := a.Conn.SetReadDeadline(t); err != nil {
		return err
	}
	return a.Conn.SetWriteDeadline(t)
}

func acceptLoop(ctx context.Context, ln net.Listener, mgr *session.Manager) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warn("gateway: accept failed", "error", err)
			continue
		}
		go func() {
			if err := mgr.Accept(ctx, conn); err != nil {
				log.Debug("gateway: session ended", "error", err)
			}
		}()
	}
}
