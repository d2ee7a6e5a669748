// Package stream implements the Binary Stream Manager (spec §4.E): one-way
// server-to-client WebSocket fan-out of binary frames (radar spokes, chart
// tiles-in-motion, and similar), keyed by an opaque stream ID. Delivery is
// best-effort; a client that falls behind gets dropped rather than
// slowing down every other subscriber.
package stream

import (
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
)

// upgrader negotiates the WebSocket handshake for every stream route.
// Buffer sizes match a single binary frame's typical size (a radar spoke
// or chart-tile delta); origin checking is left to the embedding server's
// reverse proxy, consistent with the host having no notion of browser
// origin policy of its own.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// clientBufferSize is how many outstanding frames a slow client can queue
// before new frames start being dropped for it.
const clientBufferSize = 32

// Client is one subscriber's fan-out channel, modeled on the gateway's SSE
// fan-out client: a buffered channel with drop-on-full semantics and an
// idempotent Close via CAS.
type Client struct {
	conn    *websocket.Conn
	out     chan []byte
	dropped atomic.Int64
	closed  atomic.Bool
}

func newClient(conn *websocket.Conn) *Client {
	return &Client{conn: conn, out: make(chan []byte, clientBufferSize)}
}

// send enqueues a frame for delivery, dropping it if the client's buffer
// is full or the client has already disconnected.
func (c *Client) send(frame []byte) bool {
	if c.closed.Load() {
		return false
	}
	select {
	case c.out <- frame:
		return true
	default:
		c.dropped.Add(1)
		return false
	}
}

// Close stops the write pump and closes the underlying connection.
func (c *Client) Close() {
	if c.closed.CompareAndSwap(false, true) {
		close(c.out)
		c.conn.Close()
	}
}

func (c *Client) writePump() {
	for frame := range c.out {
		if err := c.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
			c.Close()
			return
		}
	}
}

// Manager holds every active fan-out group, one per stream ID.
type Manager struct {
	mu      sync.Mutex
	streams map[string]map[*Client]struct{}
}

func NewManager() *Manager {
	return &Manager{streams: make(map[string]map[*Client]struct{})}
}

// Subscribe registers conn as a fan-out client of streamID and starts its
// write pump. The returned Client must be unregistered (Unsubscribe) when
// the connection's read loop exits.
func (m *Manager) Subscribe(streamID string, conn *websocket.Conn) *Client {
	c := newClient(conn)
	m.mu.Lock()
	group, ok := m.streams[streamID]
	if !ok {
		group = make(map[*Client]struct{})
		m.streams[streamID] = group
	}
	group[c] = struct{}{}
	m.mu.Unlock()

	go c.writePump()
	return c
}

// Unsubscribe removes a client from a stream's fan-out group and closes it.
func (m *Manager) Unsubscribe(streamID string, c *Client) {
	m.mu.Lock()
	if group, ok := m.streams[streamID]; ok {
		delete(group, c)
		if len(group) == 0 {
			delete(m.streams, streamID)
		}
	}
	m.mu.Unlock()
	c.Close()
}

// Emit fans frame out to every client currently subscribed to streamID.
// Delivery is best-effort: a full client buffer drops the frame for that
// client only.
func (m *Manager) Emit(streamID string, frame []byte) {
	m.mu.Lock()
	group := m.streams[streamID]
	clients := make([]*Client, 0, len(group))
	for c := range group {
		clients = append(clients, c)
	}
	m.mu.Unlock()

	for _, c := range clients {
		c.send(frame)
	}
}

// SubscriberCount reports how many clients are attached to streamID.
func (m *Manager) SubscriberCount(streamID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.streams[streamID])
}

// ServeWS upgrades r to a WebSocket connection and subscribes it to
// streamID's fan-out group (spec §6: /signalk/v2/api/streams/<id> and the
// radar-stream alias). Streams are one-way server-to-client, so the read
// loop only exists to detect the client going away; any frame the client
// sends is discarded.
func (m *Manager) ServeWS(w http.ResponseWriter, r *http.Request, streamID string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	client := m.Subscribe(streamID, conn)
	go func() {
		defer m.Unsubscribe(streamID, client)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// RadarStreamID builds the conventional stream ID for a radar provider's
// spoke feed (spec GLOSSARY: "radars/{id}").
func RadarStreamID(radarID string) string {
	return "radars/" + radarID
}
