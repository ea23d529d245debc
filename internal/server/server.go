// Package server is the live display surface: an embedded page, a websocket that
// streams frame previews and analyses, and a command channel back to the pipeline.
package server

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"depthrig-go/internal/config"
)

//go:embed web/*
var webFS embed.FS

// CommandFunc forwards an operator command typed in the browser. It reports
// whether the command was understood and queued.
type CommandFunc func(command string) bool

type Server struct {
	upgrader  websocket.Upgrader
	clients   map[*client]struct{}
	mu        sync.Mutex
	cfg       config.AppConfig
	statusFn  func() map[string]any
	commandFn CommandFunc
	logger    *zap.SugaredLogger
}

const (
	writeWait = 10 * time.Second
	pongWait  = 60 * time.Second
	pingEvery = (pongWait * 9) / 10
)

func New(cfg config.AppConfig, statusFn func() map[string]any, commandFn CommandFunc, logger *zap.SugaredLogger) *Server {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Server{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients:   make(map[*client]struct{}),
		cfg:       cfg,
		statusFn:  statusFn,
		commandFn: commandFn,
		logger:    logger,
	}
}

func (s *Server) Handler() (http.Handler, error) {
	sub, err := fs.Sub(webFS, "web")
	if err != nil {
		return nil, err
	}
	mux := http.NewServeMux()
	mux.Handle("/", http.FileServer(http.FS(sub)))
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/config", s.handleConfig)
	mux.HandleFunc("/status", s.handleStatus)
	return mux, nil
}

// Run serves until ctx is done, broadcasting every value received on messages.
func (s *Server) Run(ctx context.Context, messages <-chan any) error {
	handler, err := s.Handler()
	if err != nil {
		return err
	}
	httpServer := &http.Server{
		Addr:              ":" + strconv.Itoa(s.cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	go s.Broadcast(ctx, messages)

	s.logger.Infow("live display listening", "port", s.cfg.Port)
	if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type clientMessage struct {
	Type    string `json:"type"`
	Command string `json:"command"`
}

// client serializes writes to one websocket connection.
type client struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (c *client) write(messageType int, payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(messageType, payload)
}

func (c *client) writeJSON(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.write(websocket.TextMessage, payload)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debugw("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	c := &client{conn: conn}
	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()
	s.logger.Debugw("websocket client connected", "remote", r.RemoteAddr)

	_ = c.writeJSON(s.configPayload("config"))

	done := make(chan struct{})
	go s.keepAlive(c, done)
	go func() {
		defer close(done)
		defer s.removeClient(c)
		s.readCommands(c)
	}()
}

// keepAlive pings c until done is closed or a ping fails.
func (s *Server) keepAlive(c *client, done <-chan struct{}) {
	ticker := time.NewTicker(pingEvery)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				_ = c.conn.Close()
				return
			}
		}
	}
}

// readCommands forwards command messages from c until the connection fails.
// Every command is acknowledged with whether it was accepted.
func (s *Server) readCommands(c *client) {
	for {
		messageType, payload, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		var request clientMessage
		if err := json.Unmarshal(payload, &request); err != nil || request.Type != "command" {
			continue
		}
		accepted := false
		if s.commandFn != nil {
			accepted = s.commandFn(request.Command)
		}
		s.logger.Infow("websocket command", "command", request.Command, "accepted", accepted)
		_ = c.writeJSON(map[string]any{
			"type":     "ack",
			"command":  request.Command,
			"accepted": accepted,
		})
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) configPayload(msgType string) map[string]any {
	p := s.cfg.Pipeline
	payload := map[string]any{
		"source":           s.cfg.Source,
		"thresholds":       p.Thresholds,
		"kernel_size":      p.KernelSize,
		"dilate":           p.DilateIterations,
		"erode":            p.ErodeIterations,
		"pixel_min":        p.PixelMin,
		"min_contour_area": p.MinContourArea,
		"max_distance":     s.cfg.MaxDistance,
		"port":             s.cfg.Port,
	}
	if msgType != "" {
		payload["type"] = msgType
	}
	return payload
}

func (s *Server) handleConfig(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.configPayload(""))
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	payload := map[string]any{}
	if s.statusFn != nil {
		payload = s.statusFn()
	}
	payload["ws_clients"] = s.clientCount()
	_ = json.NewEncoder(w).Encode(payload)
}

// Broadcast writes each message to every client until ctx is done or messages
// is closed. Clients that fail a write are dropped.
func (s *Server) Broadcast(ctx context.Context, messages <-chan any) {
	for {
		select {
		case <-ctx.Done():
			return
		case message, ok := <-messages:
			if !ok {
				return
			}
			payload, err := json.Marshal(message)
			if err != nil {
				s.logger.Warnw("broadcast encode failed", "error", err)
				continue
			}
			for _, c := range s.snapshotClients() {
				if err := c.write(websocket.TextMessage, payload); err != nil {
					s.logger.Debugw("dropping websocket client", "error", err)
					s.removeClient(c)
				}
			}
		}
	}
}

func (s *Server) snapshotClients() []*client {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		out = append(out, c)
	}
	return out
}

func (s *Server) removeClient(c *client) {
	s.mu.Lock()
	delete(s.clients, c)
	s.mu.Unlock()
	_ = c.conn.Close()
}

func (s *Server) clientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}
