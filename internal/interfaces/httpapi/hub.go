package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"coinpulse/internal/application/service"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 30 * time.Second
	wsSendBuffer = 16
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// the API is served to browser dashboards on other origins
	CheckOrigin: func(r *http.Request) bool { return true },
}

type wsEnvelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Hub pushes market snapshots to every connected websocket client. A
// new client gets a snapshot immediately; everyone gets one per tick.
type Hub struct {
	queries  *service.QueryService
	interval time.Duration

	mu      sync.Mutex
	clients map[*wsClient]struct{}
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

func NewHub(queries *service.QueryService, interval time.Duration) *Hub {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Hub{
		queries:  queries,
		interval: interval,
		clients:  make(map[*wsClient]struct{}),
	}
}

// Run broadcasts snapshots until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if h.count() == 0 {
				continue
			}
			payload, err := h.snapshot(ctx, "market_update")
			if err != nil {
				log.Warn().Err(err).Msg("market snapshot failed")
				continue
			}
			h.broadcast(payload)
		}
	}
}

func (h *Hub) ServeWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := &wsClient{conn: conn, send: make(chan []byte, wsSendBuffer)}
	h.register(client)

	if payload, err := h.snapshot(c.Request.Context(), "market_data"); err == nil {
		client.enqueue(payload)
	}

	go h.writePump(client)
	go h.readPump(client)
}

func (h *Hub) snapshot(ctx context.Context, kind string) ([]byte, error) {
	snap, err := h.queries.Market(ctx)
	if err != nil {
		return nil, err
	}
	return json.Marshal(wsEnvelope{Type: kind, Data: snap})
}

func (h *Hub) register(c *wsClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) unregister(c *wsClient) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

func (h *Hub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) broadcast(payload []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- payload:
		default:
			// slow client, skip this tick
		}
	}
}

func (c *wsClient) enqueue(payload []byte) {
	select {
	case c.send <- payload:
	default:
	}
}

func (h *Hub) writePump(c *wsClient) {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) readPump(c *wsClient) {
	defer h.unregister(c)
	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	// clients only listen; drain until the connection drops
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
