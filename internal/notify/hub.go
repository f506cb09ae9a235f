// Package notify implements the realtime notification fan-out: a websocket
// hub broadcasting lock-table and pending-edit-table snapshots to all
// connected clients.
package notify

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/AdirGamil/animeedit/internal/metrics"
	"github.com/AdirGamil/animeedit/internal/model"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Event names pushed over the websocket channel.
const (
	EventLocksUpdated        = "locksUpdated"
	EventPendingEditsUpdated = "pendingEditsUpdated"
)

const (
	writeTimeout   = 10 * time.Second
	pongTimeout    = 60 * time.Second
	pingPeriod     = 50 * time.Second
	maxMessageSize = 512
)

// Event is the wire envelope for a broadcast snapshot.
type Event struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// command is one unit of hub work. Exactly one field is set: an event to
// broadcast, or a client joining the fan-out.
type command struct {
	event *Event
	join  *client
}

// Hub fans table snapshots out to connected websocket clients. Mutations
// enqueue events while holding the mutated table's lock, and new connections
// enqueue a join on the same queue; a single consumer goroutine drains it, so
// every client observes snapshots in commit order from its first message on.
type Hub struct {
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}

	commands chan command

	onDisconnect func(identity string)

	metrics *metrics.Metrics
	logger  *zap.Logger
}

type client struct {
	identity string
	conn     *websocket.Conn
	send     chan Event

	closed bool // guarded by Hub.mu
}

// NewHub creates a hub with the given command queue depth.
func NewHub(queueDepth int, m *metrics.Metrics, logger *zap.Logger) *Hub {
	if queueDepth <= 0 {
		queueDepth = 256
	}
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		clients:  make(map[*client]struct{}),
		commands: make(chan command, queueDepth),
		metrics:  m,
		logger:   logger,
	}
}

// OnDisconnect registers a callback invoked with the client identity when a
// connection drops. Wired to the lock table's ReleaseByHolder. Must be called
// before Run starts and before the first connection is served; the field is
// read without synchronization after that.
func (h *Hub) OnDisconnect(fn func(identity string)) {
	h.onDisconnect = fn
}

// PublishLocks enqueues a lock-table snapshot. Called inside the lock table's
// critical section so queue order equals commit order.
func (h *Hub) PublishLocks(locks []model.Lock) {
	h.commands <- command{event: &Event{Event: EventLocksUpdated, Data: locks}}
	if h.metrics != nil {
		h.metrics.SetActiveLocks(len(locks))
	}
}

// PublishPendingEdits enqueues a pending-edit-table snapshot.
func (h *Hub) PublishPendingEdits(edits []model.PendingEdit) {
	h.commands <- command{event: &Event{Event: EventPendingEditsUpdated, Data: edits}}
	if h.metrics != nil {
		h.metrics.SetPendingEdits(len(edits))
	}
}

// Run drains the command queue until the context is canceled, broadcasting
// events and admitting joining clients in queue order. Must run in exactly
// one goroutine.
//
// The latest snapshot of each kind is retained as the initial view for
// joining clients. Seeding both as empty is exact: the tables start empty and
// publish every mutation, so at any queue position the retained snapshots
// equal the committed state as of that position.
func (h *Hub) Run(ctx context.Context) {
	lastLocks := []model.Lock{}
	lastPending := []model.PendingEdit{}

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case cmd := <-h.commands:
			switch {
			case cmd.event != nil:
				switch data := cmd.event.Data.(type) {
				case []model.Lock:
					lastLocks = data
				case []model.PendingEdit:
					lastPending = data
				}
				h.broadcast(*cmd.event)
			case cmd.join != nil:
				h.admit(cmd.join, lastLocks, lastPending)
			}
		}
	}
}

// HandleWebSocket upgrades the connection and services it until it drops.
// The client identity comes from the clientId query parameter; anonymous
// connections get a generated identity so their disconnect cleanup cannot
// touch other holders' locks.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	identity := r.URL.Query().Get("clientId")
	if identity == "" {
		identity = "anon-" + uuid.New().String()
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &client{
		identity: identity,
		conn:     conn,
		send:     make(chan Event, 16),
	}

	// The join rides the same queue as the broadcasts, so the initial
	// snapshots sent to this client are serialized with every event published
	// before and after it.
	h.commands <- command{join: c}

	h.logger.Info("websocket client connected",
		zap.String("identity", identity),
		zap.String("remote_addr", r.RemoteAddr),
	)

	go c.writePump(h)
	c.readPump(h)
}

// admit registers a joining client and queues its initial snapshots. Runs on
// the Run goroutine, so the snapshots are current as of the join's queue
// position and every later broadcast is at least as new.
func (h *Hub) admit(c *client, locks []model.Lock, pending []model.PendingEdit) {
	h.mu.Lock()
	if c.closed {
		// The connection dropped before its join was processed.
		h.mu.Unlock()
		return
	}
	h.clients[c] = struct{}{}
	c.send <- Event{Event: EventLocksUpdated, Data: locks}
	c.send <- Event{Event: EventPendingEditsUpdated, Data: pending}
	count := len(h.clients)
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.SetWebsocketClients(count)
	}
}

// broadcast delivers an event to every client. A client whose send queue is
// full is dropped rather than allowed to stall the fan-out.
func (h *Hub) broadcast(ev Event) {
	h.mu.Lock()
	var stalled []*client
	for c := range h.clients {
		select {
		case c.send <- ev:
		default:
			stalled = append(stalled, c)
		}
	}
	for _, c := range stalled {
		c.closed = true
		delete(h.clients, c)
		close(c.send)
	}
	count := len(h.clients)
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.RecordEventPublished(ev.Event)
		if len(stalled) > 0 {
			h.metrics.SetWebsocketClients(count)
		}
	}
	for _, c := range stalled {
		h.logger.Warn("dropping slow websocket client", zap.String("identity", c.identity))
		if h.onDisconnect != nil {
			// Run in a fresh goroutine: the disconnect path publishes new
			// events, and the consumer loop must never block on its own queue.
			go h.onDisconnect(c.identity)
		}
	}
}

// unregister removes a client and fires the disconnect callback.
func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	wasOpen := !c.closed
	if wasOpen {
		c.closed = true
		delete(h.clients, c)
		close(c.send)
	}
	count := len(h.clients)
	h.mu.Unlock()

	if !wasOpen {
		return
	}

	if h.metrics != nil {
		h.metrics.SetWebsocketClients(count)
	}
	h.logger.Info("websocket client disconnected",
		zap.String("identity", c.identity),
		zap.Int("clients", count),
	)

	if h.onDisconnect != nil {
		h.onDisconnect(c.identity)
	}
}

// closeAll disconnects every client during shutdown.
func (h *Hub) closeAll() {
	h.mu.Lock()
	for c := range h.clients {
		c.closed = true
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// readPump consumes incoming frames until the connection drops. Inbound
// payloads are ignored; the channel is server-to-client only.
func (c *client) readPump(h *Hub) {
	defer func() {
		h.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump writes queued events and keepalive pings to the connection.
func (c *client) writePump(h *Hub) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case ev, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
