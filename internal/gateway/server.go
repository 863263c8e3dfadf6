package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/nextlevelbuilder/lettabot/internal/config"
)

const shutdownTimeout = 5 * time.Second

// ChannelStatus reports whether the platform connection is up.
type ChannelStatus interface {
	IsRunning() bool
}

// RelayStats exposes relay counters for the health endpoint.
type RelayStats interface {
	DedupeLen() int
}

// Server is the health HTTP listener.
type Server struct {
	cfg     config.GatewayConfig
	channel ChannelStatus
	relay   RelayStats
	version string

	httpServer *http.Server
	mux        *http.ServeMux
}

// NewServer creates a health server. channel and relay may be nil.
func NewServer(cfg config.GatewayConfig, channel ChannelStatus, relay RelayStats, version string) *Server {
	return &Server{cfg: cfg, channel: channel, relay: relay, version: version}
}

// BuildMux creates and caches the HTTP mux with all routes registered.
func (s *Server) BuildMux() *http.ServeMux {
	if s.mux != nil {
		return s.mux
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	s.mux = mux
	return mux
}

// Start listens on the configured address until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		return fmt.Errorf("gateway listen: %w", err)
	}
	return s.Serve(ctx, ln)
}

// Serve runs the server on ln until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.httpServer = &http.Server{
		Handler:           s.BuildMux(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("gateway starting", "addr", ln.Addr().String())

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Warn("gateway shutdown", "error", err)
		}
	}()

	if err := s.httpServer.Serve(ln); err != http.ErrServerClosed {
		return fmt.Errorf("gateway server: %w", err)
	}
	return nil
}

type healthResponse struct {
	Status        string `json:"status"`
	Discord       bool   `json:"discord"`
	DedupeEntries int    `json:"dedupe_entries"`
	Version       string `json:"version,omitempty"`
}

// handleHealth reports liveness plus the platform connection state.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Version: s.version}
	if s.channel != nil {
		resp.Discord = s.channel.IsRunning()
	}
	if s.relay != nil {
		resp.DedupeEntries = s.relay.DedupeLen()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(resp)
}
