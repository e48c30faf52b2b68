package stream

import (
	"context"
	"log"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Hub fans live samples out to websocket subscribers, keyed by journey id.
// With redis configured, broadcasts also cross process boundaries via
// pub/sub.
type Hub struct {
	redis   *redis.Client
	clients map[string]map[*Client]struct{}
	mu      sync.RWMutex
}

type Client struct {
	JourneyID string
	Send      chan []byte
}

func NewHub(redisClient *redis.Client) *Hub {
	h := &Hub{
		redis:   redisClient,
		clients: map[string]map[*Client]struct{}{},
	}

	if redisClient != nil {
		go h.subscribeRedis()
	}
	return h
}

func (h *Hub) Register(journeyID string) *Client {
	client := &Client{
		JourneyID: journeyID,
		Send:      make(chan []byte, 64),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[journeyID] == nil {
		h.clients[journeyID] = map[*Client]struct{}{}
	}
	h.clients[journeyID][client] = struct{}{}
	return client
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if journeyClients, ok := h.clients[client.JourneyID]; ok {
		delete(journeyClients, client)
		if len(journeyClients) == 0 {
			delete(h.clients, client.JourneyID)
		}
	}
	close(client.Send)
}

// Broadcast delivers the payload to the journey's subscribers once each.
// With redis configured the payload is only published; the pattern
// subscription brings it back to local subscribers the same way it reaches
// every other process. Slow subscribers are skipped, never blocked on.
func (h *Hub) Broadcast(journeyID string, payload []byte) {
	if h.redis == nil {
		h.deliverLocal(journeyID, payload)
		return
	}

	err := h.redis.Publish(context.Background(), redisChannel(journeyID), payload).Err()
	if err != nil {
		log.Printf("redis publish error: %v", err)
		h.deliverLocal(journeyID, payload)
	}
}

func (h *Hub) deliverLocal(journeyID string, payload []byte) {
	h.mu.RLock()
	clients := h.clients[journeyID]
	h.mu.RUnlock()

	for client := range clients {
		select {
		case client.Send <- payload:
		default:
		}
	}
}

func (h *Hub) subscribeRedis() {
	ctx := context.Background()
	pubsub := h.redis.PSubscribe(ctx, "journeys:*:samples")
	defer pubsub.Close()

	for msg := range pubsub.Channel() {
		h.deliverLocal(journeyIDFromChannel(msg.Channel), []byte(msg.Payload))
	}
}

func redisChannel(journeyID string) string {
	return "journeys:" + journeyID + ":samples"
}

func journeyIDFromChannel(ch string) string {
	// journeys:{id}:samples
	const prefix = "journeys:"
	const suffix = ":samples"
	if len(ch) <= len(prefix)+len(suffix) {
		return ""
	}
	return ch[len(prefix) : len(ch)-len(suffix)]
}
