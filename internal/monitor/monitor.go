// Package monitor streams session events and decoded packets to WebSocket
// clients as JSON, one message per event.
package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/1ureka/smproxy/internal/protocol"
	"github.com/1ureka/smproxy/internal/session"
	"github.com/1ureka/smproxy/internal/util"
)

// Tuning constants.
const (
	sendBufferSize = 256 // per-client outgoing message capacity
	writeTimeout   = 5 * time.Second
)

// Message types.
const (
	TypeSessionStarted = "session_started"
	TypePacket         = "packet"
	TypeSessionClosed  = "session_closed"
)

// Message is what clients receive.
type Message struct {
	Type       string           `json:"type"`
	Time       time.Time        `json:"time"`
	Session    string           `json:"session"`
	Username   string           `json:"username,omitempty"`
	Client     string           `json:"client,omitempty"`
	Server     string           `json:"server,omitempty"`
	Direction  string           `json:"direction,omitempty"`
	PacketID   string           `json:"id,omitempty"`
	Name       string           `json:"name,omitempty"`
	Fields     []protocol.Field `json:"fields,omitempty"`
	Suppressed bool             `json:"suppressed,omitempty"`
	Error      string           `json:"error,omitempty"`
	BytesIn    int64            `json:"bytes_in,omitempty"`  // client wire bytes, on close
	BytesOut   int64            `json:"bytes_out,omitempty"` // client wire bytes, on close
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub is a session.Observer that fans events out to every connected
// WebSocket client. A client that falls behind loses messages instead of
// slowing the sessions down.
type Hub struct {
	mu      sync.Mutex
	clients map[*client]struct{}

	dropped atomic.Int64
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// New returns a hub with no clients.
func New() *Hub {
	return &Hub{clients: make(map[*client]struct{})}
}

// Handler serves the feed on /ws.
func (h *Hub) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", h.handleWS)
	return mux
}

// ListenAndServe serves the feed on addr until ctx is cancelled.
func (h *Hub) ListenAndServe(ctx context.Context, addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to start monitor: %w", err)
	}
	srv := &http.Server{Handler: h.Handler(), ReadHeaderTimeout: 10 * time.Second}

	go func() {
		<-ctx.Done()
		srv.Close()
		h.closeAll()
	}()

	util.LogSuccess("monitor listening on ws://%s/ws", listener.Addr())
	if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Dropped returns how many messages were discarded for slow clients.
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}

func (h *Hub) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	c := &client{conn: conn, send: make(chan []byte, sendBufferSize)}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	util.LogDebug("monitor client %s connected", conn.RemoteAddr())

	go h.writeLoop(c)
	h.readLoop(c)
}

// readLoop discards anything the client sends and unregisters it once the
// connection goes away.
func (h *Hub) readLoop(c *client) {
	defer h.remove(c)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writeLoop(c *client) {
	defer c.conn.Close()
	for b := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseGoingAway, "monitor closed"))
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
		util.LogDebug("monitor client %s disconnected", c.conn.RemoteAddr())
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *Hub) broadcast(m Message) {
	b, err := json.Marshal(m)
	if err != nil {
		util.LogWarning("monitor: encode %s: %v", m.Type, err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- b:
		default:
			h.dropped.Add(1)
		}
	}
}

// ---------------------------------------------------------------------------
// session.Observer
// ---------------------------------------------------------------------------

func (h *Hub) SessionStarted(s *session.Session) {
	h.broadcast(Message{
		Type:    TypeSessionStarted,
		Time:    time.Now(),
		Session: s.ID.String(),
		Client:  s.ClientAddr().String(),
		Server:  s.ServerAddr().String(),
	})
}

func (h *Hub) PacketReceived(e *session.Event) {
	if e.Packet == nil || h.Clients() == 0 {
		return
	}
	h.broadcast(Message{
		Type:       TypePacket,
		Time:       time.Now(),
		Session:    e.Session.ID.String(),
		Username:   e.Session.Username(),
		Direction:  e.Direction.String(),
		PacketID:   fmt.Sprintf("0x%02X", e.Packet.ID()),
		Name:       protocol.Name(e.Packet.ID()),
		Fields:     protocol.Dump(e.Packet),
		Suppressed: e.Suppressed,
	})
}

func (h *Hub) SessionClosed(s *session.Session, err error) {
	m := Message{
		Type:     TypeSessionClosed,
		Time:     time.Now(),
		Session:  s.ID.String(),
		Username: s.Username(),
		BytesIn:  s.BytesIn(),
		BytesOut: s.BytesOut(),
	}
	if err != nil {
		m.Error = err.Error()
	}
	h.broadcast(m)
}
