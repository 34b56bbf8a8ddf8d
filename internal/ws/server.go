// Package ws is the real-time transport: an authenticated websocket endpoint
// that broadcasts change events to every connected client and answers
// search and diagnostics requests.
package ws

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	subprotocolPrefix = "auth.bearer."
	writeTimeout      = 5 * time.Second
)

// Conn is one client connection. Writes are serialized per connection.
type Conn struct {
	ws *websocket.Conn
	mu sync.Mutex
	id uint64
}

func (c *Conn) ID() uint64 { return c.id }

// SendJSON writes v as one text message.
func (c *Conn) SendJSON(v any) error {
	buf, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.write(buf)
}

func (c *Conn) write(buf []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.ws.WriteMessage(websocket.TextMessage, buf)
}

// Errorf sends an error message to the client.
func (c *Conn) Errorf(format string, args ...any) {
	_ = c.SendJSON(map[string]any{
		"type":    "error",
		"message": fmt.Sprintf(format, args...),
	})
}

// Server accepts websocket clients and broadcasts to all of them.
type Server struct {
	Token     string
	Upgrader  websocket.Upgrader
	OnMessage func(c *Conn, msg map[string]any)
	// OnClose is called when the websocket connection is about to close.
	OnClose func(c *Conn)

	logger  zerolog.Logger
	mu      sync.RWMutex
	clients map[*Conn]struct{}
	nextID  atomic.Uint64
	seq     atomic.Uint64
}

func NewServer(token string, logger zerolog.Logger) *Server {
	return &Server{
		Token:   token,
		logger:  logger.With().Str("component", "ws").Logger(),
		clients: make(map[*Conn]struct{}),
		Upgrader: websocket.Upgrader{
			// Same-origin from loopback, plus null origins. Cross-site WS blocked.
			CheckOrigin: checkOrigin,
		},
	}
}

func checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "null" {
		return true
	}
	if origin == "" {
		// No origin header: allow only if remote addr is loopback
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			return false
		}
		ip := net.ParseIP(host)
		return ip != nil && ip.IsLoopback()
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	h := u.Hostname()
	if h == "localhost" {
		return true
	}
	ip := net.ParseIP(h)
	return ip != nil && ip.IsLoopback()
}

// authenticate looks for the auth.bearer.<token> subprotocol and returns the
// header echoing it back.
func (s *Server) authenticate(r *http.Request) (http.Header, bool) {
	for _, p := range websocket.Subprotocols(r) {
		if tok, ok := strings.CutPrefix(p, subprotocolPrefix); ok && tok == s.Token {
			h := http.Header{}
			h.Set("Sec-WebSocket-Protocol", p)
			return h, true
		}
	}
	return nil, false
}

func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	respHdr, ok := s.authenticate(r)
	if !ok {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	wsc, err := s.Upgrader.Upgrade(w, r, respHdr)
	if err != nil {
		s.logger.Warn().Err(err).Msg("ws upgrade error")
		return
	}
	c := &Conn{ws: wsc, id: s.nextID.Add(1)}
	s.mu.Lock()
	s.clients[c] = struct{}{}
	n := len(s.clients)
	s.mu.Unlock()
	s.logger.Info().Uint64("conn", c.id).Int("clients", n).Msg("client connected")

	defer func() {
		// notify upper layers first, then close the socket
		if s.OnClose != nil {
			s.OnClose(c)
		}
		s.drop(c)
	}()

	for {
		_, data, err := wsc.ReadMessage()
		if err != nil {
			return
		}
		var m map[string]any
		if err := json.Unmarshal(data, &m); err != nil {
			s.logger.Debug().Err(err).Uint64("conn", c.id).Msg("bad json")
			c.Errorf("bad json: %v", err)
			continue
		}
		if s.OnMessage != nil {
			s.OnMessage(c, m)
		}
	}
}

func (s *Server) drop(c *Conn) {
	s.mu.Lock()
	_, ok := s.clients[c]
	delete(s.clients, c)
	n := len(s.clients)
	s.mu.Unlock()
	_ = c.ws.Close()
	if ok {
		s.logger.Info().Uint64("conn", c.id).Int("clients", n).Msg("client disconnected")
	}
}

// Emit broadcasts payload on channel to every connected client. Clients whose
// write fails are disconnected.
func (s *Server) Emit(channel string, payload any) error {
	buf, err := json.Marshal(map[string]any{
		"type":    "event",
		"channel": channel,
		"seq":     s.seq.Add(1),
		"payload": payload,
	})
	if err != nil {
		return fmt.Errorf("ws: marshal %s payload: %w", channel, err)
	}

	s.mu.RLock()
	targets := make([]*Conn, 0, len(s.clients))
	for c := range s.clients {
		targets = append(targets, c)
	}
	s.mu.RUnlock()

	for _, c := range targets {
		if err := c.write(buf); err != nil {
			s.logger.Warn().Err(err).Uint64("conn", c.id).Msg("broadcast write failed, dropping client")
			s.drop(c)
		}
	}
	return nil
}

// Clients returns the number of connected clients.
func (s *Server) Clients() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// CloseAll sends a close frame to every client and disconnects it.
func (s *Server) CloseAll() {
	s.mu.RLock()
	targets := make([]*Conn, 0, len(s.clients))
	for c := range s.clients {
		targets = append(targets, c)
	}
	s.mu.RUnlock()

	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
	for _, c := range targets {
		c.mu.Lock()
		_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		c.mu.Unlock()
		s.drop(c)
	}
}
