package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/proctorhub/backend/internal/event"
	"github.com/proctorhub/backend/internal/protocol"
	"github.com/proctorhub/backend/internal/registry"
	"github.com/proctorhub/backend/internal/relay"
	"github.com/proctorhub/backend/internal/report"
	"github.com/proctorhub/backend/internal/upload"
)

// EventLog is the read side of the durable log, consumed by the report
// endpoint. nil when the store was unreachable at boot.
type EventLog interface {
	QueryBySession(ctx context.Context, sessionID string) ([]event.Event, error)
}

type Server struct {
	registry       *registry.Registry
	engine         *relay.Engine
	uploads        *upload.DiskStore
	eventLog       EventLog
	sendBuffer     int
	authToken      string
	allowedOrigins map[string]bool
	allowedHosts   map[string]bool
	startedAt      time.Time

	mu    sync.RWMutex
	conns map[*client]bool
}

func NewServer(reg *registry.Registry, engine *relay.Engine, uploads *upload.DiskStore, eventLog EventLog, sendBuffer int, allowedOrigins []string, authToken string) *Server {
	s := &Server{
		registry:       reg,
		engine:         engine,
		uploads:        uploads,
		eventLog:       eventLog,
		sendBuffer:     sendBuffer,
		authToken:      authToken,
		allowedOrigins: make(map[string]bool),
		allowedHosts:   make(map[string]bool),
		startedAt:      time.Now(),
		conns:          make(map[*client]bool),
	}

	for _, origin := range allowedOrigins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		s.allowedOrigins[trimmed] = true
		if parsed, err := url.Parse(trimmed); err == nil && parsed.Host != "" {
			s.allowedHosts[parsed.Host] = true
		}
	}

	return s
}

func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/upload", s.handleUpload)
	mux.HandleFunc("/report/", s.handleReport)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/status", s.handleStatus)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: s.checkOrigin,
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade error: %v", err)
		return
	}

	c := newClient(conn, s.sendBuffer, r.RemoteAddr)
	s.addConn(c)
	log.Printf("ws client connected: %s", c.remote)

	go s.readLoop(c)
}

// readLoop drives one connection. Its deferred teardown is the single exit
// path for every kind of disconnect, so the registry leave happens exactly
// once per connection.
func (s *Server) readLoop(c *client) {
	defer func() {
		s.registry.Leave(c)
		s.removeConn(c)
		c.close()
		log.Printf("ws client disconnected: %s", c.remote)
	}()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		s.handleMessage(c, data)
	}
}

func (s *Server) handleMessage(c *client, data []byte) {
	var msg protocol.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		s.sendError(c, "malformed message")
		return
	}

	switch msg.Type {
	case protocol.MsgJoinSession:
		var sessionID string
		if err := json.Unmarshal(msg.Payload, &sessionID); err != nil || sessionID == "" {
			s.sendError(c, "join-session requires a session id")
			return
		}
		s.registry.Join(c, sessionID)
		log.Printf("ws client %s joined session %s", c.remote, sessionID)

	case protocol.MsgProctorEvent:
		var ev event.Event
		if err := json.Unmarshal(msg.Payload, &ev); err != nil {
			s.sendError(c, "malformed proctor-event payload")
			return
		}
		if err := s.engine.HandleEvent(c, ev); err != nil {
			if errors.Is(err, event.ErrMissingSession) {
				s.sendError(c, err.Error())
				return
			}
			log.Printf("ws relay error from %s: %v", c.remote, err)
		}

	default:
		s.sendError(c, "unknown message type")
	}
}

// sendError reports a protocol error back to the sender. The connection
// stays up; a misbehaving payload is not grounds for teardown.
func (s *Server) sendError(c *client, reason string) {
	data, err := protocol.EncodeError(reason)
	if err != nil {
		return
	}
	c.Deliver(data)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.uploads == nil {
		http.Error(w, "uploads not configured", http.StatusServiceUnavailable)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "missing file field", http.StatusBadRequest)
		return
	}
	defer file.Close()

	saved, err := s.uploads.Save(header.Filename, file)
	if err != nil {
		log.Printf("upload failed: %v", err)
		http.Error(w, "storing upload failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"ok":   true,
		"file": saved,
	})
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.eventLog == nil {
		http.Error(w, "event log unavailable", http.StatusServiceUnavailable)
		return
	}

	sessionID, err := url.PathUnescape(strings.TrimPrefix(r.URL.Path, "/report/"))
	if err != nil || sessionID == "" || strings.Contains(sessionID, "/") {
		http.Error(w, "invalid session id", http.StatusBadRequest)
		return
	}

	events, err := s.eventLog.QueryBySession(r.Context(), sessionID)
	if err != nil {
		log.Printf("report query failed for %s: %v", sessionID, err)
		http.Error(w, "querying events failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(report.Build(sessionID, events))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) addConn(c *client) {
	s.mu.Lock()
	s.conns[c] = true
	s.mu.Unlock()
}

func (s *Server) removeConn(c *client) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
}

func (s *Server) connCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conns)
}

func (s *Server) authorize(r *http.Request) bool {
	if s.authToken == "" {
		return true
	}

	if r.URL.Query().Get("token") == s.authToken {
		return true
	}

	if r.Header.Get("X-Proctor-Token") == s.authToken {
		return true
	}

	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == s.authToken {
		return true
	}

	return false
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	if len(s.allowedOrigins) > 0 {
		if s.allowedOrigins[origin] {
			return true
		}
		if parsed, err := url.Parse(origin); err == nil && parsed.Host != "" {
			return s.allowedHosts[parsed.Host]
		}
		return false
	}

	parsed, err := url.Parse(origin)
	if err != nil {
		return false
	}

	host := parsed.Host
	if host == "" {
		return false
	}

	if host == r.Host {
		return true
	}

	if strings.HasPrefix(host, "localhost:") || host == "localhost" {
		return true
	}
	if strings.HasPrefix(host, "127.0.0.1:") || host == "127.0.0.1" {
		return true
	}
	if strings.HasPrefix(host, "[::1]:") || host == "::1" {
		return true
	}

	return false
}
