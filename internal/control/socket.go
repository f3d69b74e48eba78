// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 BoncaRobot Contributors

// Package control serves the admin channel: HTTP over a Unix socket.
package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/boncarobot/boncarobot/internal/xdg"
)

// maxCommandBytes bounds a POST /command body.
const maxCommandBytes = 64 << 10

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// PluginInfo describes one resident plugin.
type PluginInfo struct {
	Name     string    `json:"name"`
	Path     string    `json:"path"`
	LoadedAt time.Time `json:"loaded_at"`
	Commands []string  `json:"commands"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	Running       bool         `json:"running"`
	PID           int          `json:"pid"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	Plugins       []PluginInfo `json:"plugins"`
}

// CommandRequest is the body of POST /command.
type CommandRequest struct {
	Line string `json:"line"`
}

// CommandResponse carries the single reply line of an admin command.
type CommandResponse struct {
	Reply string `json:"reply"`
}

// Executor runs one admin command line and returns its reply.
type Executor interface {
	Execute(ctx context.Context, line string) string
}

// PluginLister enumerates resident plugins for /status.
type PluginLister func() []PluginInfo

// Server runs HTTP over a Unix socket for administration.
type Server struct {
	socketPath string
	executor   Executor
	plugins    PluginLister
	startTime  time.Time
	listener   net.Listener
	httpServer *http.Server
	running    atomic.Bool
}

// NewServer creates a control server for socketPath. plugins may be nil.
func NewServer(socketPath string, executor Executor, plugins PluginLister) *Server {
	s := &Server{
		socketPath: socketPath,
		executor:   executor,
		plugins:    plugins,
		startTime:  time.Now(),
	}
	s.running.Store(true)
	return s
}

// DefaultSocketPath is the socket used when none is configured.
func DefaultSocketPath() string {
	return filepath.Join(xdg.RuntimeDir(), "control.sock")
}

// SocketPath returns the path the server listens on.
func (s *Server) SocketPath() string { return s.socketPath }

// Handler returns the HTTP routes; Start serves them on the socket.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("POST /command", s.handleCommand)
	return mux
}

// Start begins listening on the Unix socket, replacing a stale socket file.
func (s *Server) Start() error {
	if err := xdg.EnsureDir(filepath.Dir(s.socketPath)); err != nil {
		return fmt.Errorf("failed to create socket directory: %w", err)
	}
	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("failed to listen on socket: %w", err)
	}
	s.listener = listener

	if err := os.Chmod(s.socketPath, 0o600); err != nil {
		_ = listener.Close()
		return fmt.Errorf("failed to set socket permissions: %w", err)
	}

	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("control socket server error", "socket", s.socketPath, "error", err)
		}
	}()

	slog.Info("control socket listening", "socket", s.socketPath)
	return nil
}

// Stop shuts the server down and removes the socket file.
func (s *Server) Stop(ctx context.Context) error {
	s.running.Store(false)

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to shutdown http server: %w", err)
		}
	}
	if s.listener != nil {
		if err := s.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			slog.Warn("failed to close control socket listener", "error", err)
		}
	}
	if s.listener != nil {
		if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
			slog.Warn("failed to remove control socket file", "path", s.socketPath, "error", err)
		}
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.respond(w, http.StatusOK, HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	resp := StatusResponse{
		Running:       s.running.Load(),
		PID:           os.Getpid(),
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Plugins:       []PluginInfo{},
	}
	if s.plugins != nil {
		if p := s.plugins(); p != nil {
			resp.Plugins = p
		}
	}
	s.respond(w, http.StatusOK, resp)
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	var req CommandRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxCommandBytes)).Decode(&req); err != nil {
		s.respond(w, http.StatusBadRequest, CommandResponse{Reply: "malformed request"})
		return
	}
	line := strings.TrimSpace(req.Line)
	if line == "" {
		s.respond(w, http.StatusBadRequest, CommandResponse{Reply: "empty command"})
		return
	}
	if s.executor == nil {
		s.respond(w, http.StatusServiceUnavailable, CommandResponse{Reply: "admin commands unavailable"})
		return
	}

	slog.InfoContext(r.Context(), "admin command", "line", line)
	s.respond(w, http.StatusOK, CommandResponse{Reply: s.executor.Execute(r.Context(), line)})
}

func (s *Server) respond(w http.ResponseWriter, status int, v any) {
	if err := writeJSON(w, status, v); err != nil {
		slog.Error("failed to write control response", "error", err)
	}
}

// writeJSON writes v as a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, statusCode int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		return fmt.Errorf("failed to encode JSON response: %w", err)
	}
	return nil
}
