package web

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"

	"github.com/MrWong99/emotive/internal/observe"
	"github.com/MrWong99/emotive/internal/suggest"
)

const (
	sendBuffer   = 32
	writeTimeout = 5 * time.Second
	readLimit    = 64 << 10
)

// Outbound message types.
const (
	MsgHello        = "hello"
	MsgSuggestions  = "suggestions"
	MsgReactionShow = "reaction.show"
	MsgReactionHide = "reaction.hide"
	MsgError        = "error"
	MsgAck          = "ack"
	MsgMappings     = "mappings.changed"
	MsgPreferences  = "preferences.changed"
)

// ErrNoClients is returned by display calls while no client is connected.
var ErrNoClients = errors.New("web: no display clients connected")

// Envelope is one websocket message in either direction. Payload is decoded
// according to Type.
type Envelope struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ReactionShow is the payload of a [MsgReactionShow] message.
type ReactionShow struct {
	suggest.Reaction
	DurationMS int64 `json:"duration_ms"`
}

// InboundFunc handles a message received from a client. A returned error is
// sent back to that client as a [MsgError] message.
type InboundFunc func(ctx context.Context, clientID string, msg Envelope) error

type client struct {
	id     string
	send   chan Envelope
	cancel context.CancelFunc
}

// Hub fans suggestion updates and display commands out to every connected
// websocket client and feeds client messages into an [InboundFunc]. It
// implements [suggest.Panel] and [suggest.Display].
type Hub struct {
	metrics *observe.Metrics
	origins []string

	mu      sync.RWMutex
	clients map[string]*client
	last    *Envelope
	inbound InboundFunc
}

var (
	_ suggest.Panel   = (*Hub)(nil)
	_ suggest.Display = (*Hub)(nil)
)

// HubOption configures a [Hub].
type HubOption func(*Hub)

// WithOriginPatterns sets the allowed cross-origin hosts for the websocket
// handshake. By default only same-origin requests are accepted.
func WithOriginPatterns(patterns ...string) HubOption {
	return func(h *Hub) { h.origins = patterns }
}

// WithHubMetrics records connected clients on m.
func WithHubMetrics(m *observe.Metrics) HubOption {
	return func(h *Hub) { h.metrics = m }
}

// NewHub creates an empty hub.
func NewHub(opts ...HubOption) *Hub {
	h := &Hub{clients: make(map[string]*client)}
	for _, o := range opts {
		o(h)
	}
	if h.metrics == nil {
		h.metrics = observe.DefaultMetrics()
	}
	return h
}

// OnMessage installs fn as the handler for client messages.
func (h *Hub) OnMessage(fn InboundFunc) {
	h.mu.Lock()
	h.inbound = fn
	h.mu.Unlock()
}

// Len returns the number of connected clients.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request to a websocket and serves the client until
// it disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.origins})
	if err != nil {
		observe.Logger(r.Context()).Warn("web: websocket accept failed", "err", err)
		return
	}
	conn.SetReadLimit(readLimit)

	ctx, cancel := context.WithCancel(r.Context())
	c := &client{id: uuid.NewString(), send: make(chan Envelope, sendBuffer), cancel: cancel}
	h.register(ctx, c)
	defer func() {
		h.unregister(ctx, c)
		cancel()
		_ = conn.Close(websocket.StatusNormalClosure, "")
	}()

	log := observe.Logger(ctx).With("client", c.id)
	log.Info("web: client connected", "remote", r.RemoteAddr)

	go h.writeLoop(ctx, conn, c)

	for {
		var msg Envelope
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			if websocket.CloseStatus(err) == -1 && ctx.Err() == nil {
				log.Debug("web: client read failed", "err", err)
			}
			log.Info("web: client disconnected")
			return
		}
		h.dispatch(ctx, c, msg)
	}
}

func (h *Hub) dispatch(ctx context.Context, c *client, msg Envelope) {
	h.mu.RLock()
	fn := h.inbound
	h.mu.RUnlock()
	if fn == nil {
		c.enqueue(errorEnvelope(msg.ID, errors.New("messages are not accepted")))
		return
	}
	if err := fn(ctx, c.id, msg); err != nil {
		c.enqueue(errorEnvelope(msg.ID, err))
		return
	}
	if msg.ID != "" {
		c.enqueue(Envelope{Type: MsgAck, ID: msg.ID})
	}
}

func (h *Hub) writeLoop(ctx context.Context, conn *websocket.Conn, c *client) {
	for {
		select {
		case <-ctx.Done():
			return
		case env := <-c.send:
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := wsjson.Write(wctx, conn, env)
			cancel()
			if err != nil {
				slog.Debug("web: client write failed", "client", c.id, "err", err)
				c.cancel()
				return
			}
		}
	}
}

func (h *Hub) register(ctx context.Context, c *client) {
	hello := mustEnvelope(MsgHello, map[string]string{"client_id": c.id})
	c.enqueue(hello)

	h.mu.Lock()
	h.clients[c.id] = c
	if h.last != nil {
		c.enqueue(*h.last)
	}
	h.mu.Unlock()
	h.metrics.ActiveClients.Add(ctx, 1)
}

func (h *Hub) unregister(ctx context.Context, c *client) {
	h.mu.Lock()
	delete(h.clients, c.id)
	h.mu.Unlock()
	h.metrics.ActiveClients.Add(context.WithoutCancel(ctx), -1)
}

// broadcast queues env on every client without blocking. It returns the
// number of clients reached.
func (h *Hub) broadcast(env Envelope) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, c := range h.clients {
		if c.enqueue(env) {
			n++
		}
	}
	return n
}

// enqueue drops the message when the client is too slow to keep up.
func (c *client) enqueue(env Envelope) bool {
	select {
	case c.send <- env:
		return true
	default:
		slog.Debug("web: dropping message for slow client", "client", c.id, "type", env.Type)
		return false
	}
}

// ShowSuggestions implements [suggest.Panel]. The latest update is replayed
// to clients that connect later.
func (h *Hub) ShowSuggestions(u suggest.Update) {
	env := mustEnvelope(MsgSuggestions, u)
	h.mu.Lock()
	h.last = &env
	h.mu.Unlock()
	h.broadcast(env)
}

// ShowReaction implements [suggest.Display].
func (h *Hub) ShowReaction(_ context.Context, r suggest.Reaction, d time.Duration) error {
	if h.broadcast(mustEnvelope(MsgReactionShow, ReactionShow{Reaction: r, DurationMS: d.Milliseconds()})) == 0 {
		return ErrNoClients
	}
	return nil
}

// HideReaction implements [suggest.Display].
func (h *Hub) HideReaction(context.Context) error {
	h.broadcast(Envelope{Type: MsgReactionHide})
	return nil
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range h.clients {
		c.cancel()
	}
}

func mustEnvelope(typ string, payload any) Envelope {
	raw, err := json.Marshal(payload)
	if err != nil {
		slog.Error("web: encode payload", "type", typ, "err", err)
		return Envelope{Type: typ}
	}
	return Envelope{Type: typ, Payload: raw}
}

func errorEnvelope(id string, err error) Envelope {
	env := mustEnvelope(MsgError, map[string]string{"error": err.Error()})
	env.ID = id
	return env
}
