package web

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"markestedt/typetool/config"
	"markestedt/typetool/storage"
)

//go:embed static/*
var staticFiles embed.FS

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// the server only listens on 127.0.0.1
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Server is the local dashboard
type Server struct {
	db    *storage.DB
	store *config.Store
	port  int
	hub   *Hub

	mu       sync.RWMutex
	status   func() string
	onConfig func(old, cur config.Config)
}

// NewServer creates a dashboard server. db may be nil when history is off.
func NewServer(db *storage.DB, store *config.Store, port int) *Server {
	return &Server{
		db:    db,
		store: store,
		port:  port,
		hub:   NewHub(),
	}
}

// SetStatusFunc sets the source of /api/status
func (s *Server) SetStatusFunc(fn func() string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = fn
}

// OnConfigChange sets the callback run after a config update was saved
func (s *Server) OnConfigChange(fn func(old, cur config.Config)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onConfig = fn
}

// Handler returns the HTTP routes of the dashboard
func (s *Server) Handler() (http.Handler, error) {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/config", s.handleConfig)
	mux.HandleFunc("/api/stats", s.handleStats)
	mux.HandleFunc("/api/history", s.handleHistory)
	mux.HandleFunc("/api/history/", s.handleHistory)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/ws", s.handleWebSocket)

	staticFS, err := fs.Sub(staticFiles, "static")
	if err != nil {
		return nil, fmt.Errorf("failed to load static files: %w", err)
	}
	mux.Handle("/", http.FileServer(http.FS(staticFS)))

	return mux, nil
}

// Start serves the dashboard on 127.0.0.1 until ctx is done
func (s *Server) Start(ctx context.Context) error {
	handler, err := s.Handler()
	if err != nil {
		return err
	}

	addr := fmt.Sprintf("127.0.0.1:%d", s.port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	go s.hub.Run()
	go func() {
		<-ctx.Done()
		s.hub.Stop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("Web server shutdown failed", "error", err)
		}
	}()

	slog.Info("Starting web server", "url", s.URL())
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("web server failed: %w", err)
	}
	return nil
}

// URL returns the dashboard address
func (s *Server) URL() string {
	return fmt.Sprintf("http://127.0.0.1:%d/", s.port)
}

// BroadcastStatus sends the engine state to all connected clients
func (s *Server) BroadcastStatus(status string) {
	s.hub.BroadcastMessage(Message{
		Type: MessageTypeStatus,
		Data: StatusMessage{Status: status},
	})
}

// BroadcastJob sends a job transition to all connected clients
func (s *Server) BroadcastJob(id int64, state string, unitsSent int) {
	s.hub.BroadcastMessage(Message{
		Type: MessageTypeJob,
		Data: JobMessage{ID: id, State: state, UnitsSent: unitsSent},
	})
}

func (s *Server) currentStatus() string {
	s.mu.RLock()
	fn := s.status
	s.mu.RUnlock()
	if fn == nil {
		return "idle"
	}
	return fn()
}

func (s *Server) configChanged(old, cur config.Config) {
	s.mu.RLock()
	fn := s.onConfig
	s.mu.RUnlock()
	if fn != nil {
		fn(old, cur)
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("Failed to upgrade WebSocket connection", "error", err)
		return
	}

	client := &Client{
		hub:  s.hub,
		conn: conn,
		send: make(chan []byte, 256),
	}

	select {
	case s.hub.register <- client:
	case <-s.hub.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}
