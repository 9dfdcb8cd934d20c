package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/voicenotes/internal/observe"
	"github.com/MrWong99/voicenotes/internal/session"
)

// Event types the hub sends in addition to the controller's.
const (
	EventSnapshot     = "snapshot"
	EventChat         = "chat"
	EventChatMessage  = "chat_message"
	EventChatFragment = "chat_fragment"
	EventChatInput    = "chat_input"
	EventChatClosed   = "chat_closed"
)

const (
	defaultClientBuffer = 64
	writeTimeout        = 5 * time.Second
)

// Envelope is one message on the event stream.
type Envelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Hub fans events out to every connected WebSocket client. It implements
// [session.EventSink]; a client that cannot keep up loses events rather than
// stalling the sender.
type Hub struct {
	metrics *observe.Metrics
	origins []string
	buffer  int

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
	done    chan struct{}
}

type client struct {
	send    chan []byte
	dropped int
}

var _ session.EventSink = (*Hub)(nil)

// HubOption configures a [Hub].
type HubOption func(*Hub)

// WithOriginPatterns sets the cross-origin hosts allowed to connect.
func WithOriginPatterns(patterns ...string) HubOption {
	return func(h *Hub) { h.origins = patterns }
}

// WithClientBuffer sets how many events may queue per client.
func WithClientBuffer(n int) HubOption {
	return func(h *Hub) {
		if n > 0 {
			h.buffer = n
		}
	}
}

// WithHubMetrics sets the metrics used to count subscribers.
func WithHubMetrics(m *observe.Metrics) HubOption {
	return func(h *Hub) { h.metrics = m }
}

// NewHub returns an empty hub.
func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		buffer:  defaultClientBuffer,
		clients: make(map[*client]struct{}),
		done:    make(chan struct{}),
	}
	for _, o := range opts {
		o(h)
	}
	if h.metrics == nil {
		h.metrics = observe.DefaultMetrics()
	}
	return h
}

// Emit sends a controller event to every client.
func (h *Hub) Emit(e session.Event) {
	h.Broadcast(string(e.Type()), e)
}

// Broadcast sends an event of type typ to every client.
func (h *Hub) Broadcast(typ string, data any) {
	b, err := json.Marshal(Envelope{Type: typ, Data: data})
	if err != nil {
		slog.Error("web: marshal event", "type", typ, "err", err)
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- b:
		default:
			c.dropped++
		}
	}
}

// Len returns the number of connected clients.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	close(h.done)
}

// Serve upgrades the request to a WebSocket and streams events until the
// peer goes away or the hub is closed. The greeting envelopes are written
// before any broadcast event.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, greeting ...Envelope) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.origins})
	if err != nil {
		observe.Logger(r.Context()).Warn("web: websocket accept failed", "err", err)
		return
	}
	defer conn.CloseNow()

	c, ok := h.add()
	if !ok {
		conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}
	defer h.remove(c)

	// The client never sends anything meaningful; CloseRead handles control
	// frames and cancels ctx when the peer disconnects.
	ctx := conn.CloseRead(context.WithoutCancel(r.Context()))

	for _, g := range greeting {
		b, err := json.Marshal(g)
		if err != nil {
			continue
		}
		if err := write(ctx, conn, b); err != nil {
			return
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			conn.Close(websocket.StatusGoingAway, "server shutting down")
			return
		case b := <-c.send:
			if err := write(ctx, conn, b); err != nil {
				slog.Debug("web: websocket write failed", "err", err)
				return
			}
		}
	}
}

func write(ctx context.Context, conn *websocket.Conn, b []byte) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, b)
}

func (h *Hub) add() (*client, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, false
	}
	c := &client{send: make(chan []byte, h.buffer)}
	h.clients[c] = struct{}{}
	h.metrics.ActiveSubscribers.Add(context.Background(), 1)
	return c, true
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	dropped := c.dropped
	h.mu.Unlock()
	h.metrics.ActiveSubscribers.Add(context.Background(), -1)
	if dropped > 0 {
		slog.Debug("web: client dropped events", "count", dropped)
	}
}
