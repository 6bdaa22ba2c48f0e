// Package ws serves the live delivery-outcome feed for the admin dashboard.
// The feed is one-way: the engine publishes, connected operators listen.
package ws

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/trannm/healthpulse/internal/model"
	"go.uber.org/zap"
)

const redisChannel = "healthpulse:deliveries"

// Hub fans delivery events out to connected admin clients. Events go through
// Redis Pub/Sub so every engine instance's outcomes reach every dashboard,
// regardless of which instance it is connected to.
type Hub struct {
	clients map[*Client]bool
	mu      sync.RWMutex

	register   chan *Client
	unregister chan *Client
	outbound   chan []byte

	rdb *redis.Client
	log *zap.Logger
}

// NewHub creates the feed hub. rdb may be nil for single-process deployments;
// events then stay local.
func NewHub(rdb *redis.Client, log *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		outbound:   make(chan []byte, 256),
		rdb:        rdb,
		log:        log,
	}
}

// Run starts the hub's event loop. Blocks until ctx is canceled.
func (h *Hub) Run(ctx context.Context) {
	if h.rdb != nil {
		go h.subscribeRedis(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			h.addClient(client)

		case client := <-h.unregister:
			h.removeClient(client)

		case data := <-h.outbound:
			h.forward(ctx, data)
		}
	}
}

// Register queues a client for registration with the hub
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Publish pushes one delivery outcome onto the feed. Implements the engine's
// event sink. The event is handed to the hub loop over a buffered channel so
// a slow Redis round-trip never stalls the dispatch cycle; when the backlog
// is full the event is dropped.
func (h *Hub) Publish(event model.DeliveryEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		h.log.Error("delivery event marshal failed", zap.Error(err))
		return
	}

	select {
	case h.outbound <- data:
	default:
		h.log.Warn("⚠️ Delivery feed backlog full, event dropped")
	}
}

// forward moves one event off the hub loop: through Redis when configured so
// every instance's dashboards see it, straight to local clients otherwise.
func (h *Hub) forward(ctx context.Context, data []byte) {
	if h.rdb != nil {
		if err := h.rdb.Publish(ctx, redisChannel, data).Err(); err != nil {
			h.log.Error("delivery event publish failed", zap.Error(err))
		}
		return
	}
	h.broadcastLocal(data)
}

// ClientCount reports connected dashboard clients on this instance
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client] = true
	h.log.Info("✅ Delivery feed client connected", zap.Int("clients", len(h.clients)))
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
	h.log.Info("Delivery feed client disconnected", zap.Int("clients", len(h.clients)))
}

func (h *Hub) broadcastLocal(data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		select {
		case client.send <- data:
		default:
			// Client can't keep up, drop the connection
			close(client.send)
			delete(h.clients, client)
		}
	}
}

func (h *Hub) subscribeRedis(ctx context.Context) {
	pubsub := h.rdb.Subscribe(ctx, redisChannel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	h.log.Info("📡 Delivery feed subscriber started")

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			h.broadcastLocal([]byte(msg.Payload))
		}
	}
}
