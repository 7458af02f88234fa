// Package daemon wires the session runtime's components into a single
// running process: the agent manager, the remote-share manager, and
// the terminal WebSocket front door, plus the signal-driven shutdown
// sequence.
//
// Grounded on the teacher's internal/hub/hub.go, which plays the same
// "central orchestrator owns every subsystem" role for botster-hub;
// the New/Run/Shutdown method shape is carried over directly,
// generalized from the TUI-driven GitHub-issue hub to the session
// runtime's HTTP/WebSocket front door.
package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/trybotster/hubd/internal/agentmanager"
	"github.com/trybotster/hubd/internal/config"
	"github.com/trybotster/hubd/internal/remoteshare"
	"github.com/trybotster/hubd/internal/tokenstore"
	"github.com/trybotster/hubd/internal/wire"
	"github.com/trybotster/hubd/internal/workspacestore"
)

// Daemon is the central orchestrator for hubd: it owns the agent
// manager, the remote-share manager, and the HTTP server exposing the
// terminal wire.
type Daemon struct {
	Config *config.Config
	Logger *slog.Logger

	Agents  *agentmanager.Manager
	Share   *remoteshare.Manager
	Tokens  *tokenstore.Store

	upgrader websocket.Upgrader
	server   *http.Server

	tunnelPollWg   sync.WaitGroup
	tunnelPollStop chan struct{}
}

// New constructs a Daemon from configuration, wiring the workspace
// store, token store, identity, agent manager, and remote-share
// manager together.
func New(cfg *config.Config, logger *slog.Logger) (*Daemon, error) {
	if logger == nil {
		logger = slog.Default()
	}

	storeDir, err := config.ConfigDir()
	if err != nil {
		return nil, fmt.Errorf("daemon: resolve config dir: %w", err)
	}
	wsStore, err := workspacestore.New(storeDir + "/workspaces")
	if err != nil {
		return nil, fmt.Errorf("daemon: create workspace store: %w", err)
	}

	ident, err := remoteshare.LoadOrCreateIdentity("")
	if err != nil {
		return nil, fmt.Errorf("daemon: load identity: %w", err)
	}

	tokens := tokenstore.New()

	agents := agentmanager.New(wsStore, logger)

	shareCfg := remoteshare.Config{
		FrontendConnectURL: "https://hubd.dev/connect",
		LocalPort:          parsePort(cfg.ListenAddr),
		ProviderOrder:      cfg.TunnelProviders,
	}
	share := remoteshare.New(shareCfg, tokens, ident, logger)

	d := &Daemon{
		Config: cfg,
		Logger: logger,
		Agents: agents,
		Share:  share,
		Tokens: tokens,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		tunnelPollStop: make(chan struct{}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/sessions", d.handleListSessions)
	mux.HandleFunc("/terminal/", d.handleTerminal)
	d.server = &http.Server{Addr: cfg.ListenAddr, Handler: mux}

	return d, nil
}

func parsePort(addr string) int {
	for i := len(addr) - 1; i >= 0; i-- {
		if addr[i] == ':' {
			port := 0
			for _, r := range addr[i+1:] {
				if r < '0' || r > '9' {
					return 0
				}
				port = port*10 + int(r-'0')
			}
			return port
		}
	}
	return 0
}

// Run starts the HTTP server and the remote-share tunnel poller,
// blocking until ctx is cancelled.
func (d *Daemon) Run(ctx context.Context) error {
	d.Agents.ReconcileSessionStatuses()
	d.Agents.TransitionRestoredToRunning()

	d.tunnelPollWg.Add(1)
	go d.pollTunnelLoop()

	errCh := make(chan error, 1)
	go func() {
		d.Logger.Info("hubd: listening", "addr", d.Config.ListenAddr)
		if err := d.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		return d.Shutdown()
	case err := <-errCh:
		return err
	}
}

func (d *Daemon) pollTunnelLoop() {
	defer d.tunnelPollWg.Done()
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-d.tunnelPollStop:
			return
		case <-ticker.C:
			d.Share.PollTunnel()
		}
	}
}

// Shutdown stops the tunnel poller, tears down any active share, stops
// every session, and only then shuts down the HTTP server; the server
// keeps accepting requests until that last step.
func (d *Daemon) Shutdown() error {
	d.Logger.Info("hubd: shutting down")

	close(d.tunnelPollStop)
	d.tunnelPollWg.Wait()

	d.Share.StopShare()
	d.Agents.ShutdownAll()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return d.server.Shutdown(ctx)
}

func (d *Daemon) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions := d.Agents.ListSessions()
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(sessions)
}

func (d *Daemon) handleTerminal(w http.ResponseWriter, r *http.Request) {
	sessionIDStr := r.URL.Path[len("/terminal/"):]
	sessionID, err := uuid.Parse(sessionIDStr)
	if err != nil {
		http.Error(w, "invalid session id", http.StatusBadRequest)
		return
	}

	ws, err := d.upgrader.Upgrade(w, r, nil)
	if err != nil {
		d.Logger.Warn("hubd: websocket upgrade failed", "error", err)
		return
	}

	conn := wire.NewConn(ws, d.Agents, sessionID, d.Logger)
	if err := conn.Serve(r.Context(), 0, 0); err != nil {
		d.Logger.Debug("hubd: terminal connection ended", "session_id", sessionID, "error", err)
	}
}
