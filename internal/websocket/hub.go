package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/playfab-session/internal/domain"
)

// Message types
const (
	MessageTypeStatUpdate        = "stat_update"
	MessageTypeLeaderboardUpdate = "leaderboard_update"
	MessageTypeSubscribe         = "subscribe"
	MessageTypeUnsubscribe       = "unsubscribe"
	MessageTypeSubscribed        = "subscribed"
	MessageTypeUnsubscribed      = "unsubscribed"
	MessageTypePing              = "ping"
	MessageTypePong              = "pong"
	MessageTypeError             = "error"
)

// Message represents a WebSocket message
type Message struct {
	Type      string    `json:"type"`
	StatName  string    `json:"stat_name,omitempty"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// LeaderboardUpdate is the payload of a leaderboard_update message
type LeaderboardUpdate struct {
	StatName string                    `json:"stat_name"`
	Entries  []domain.LeaderboardEntry `json:"entries"`
}

type subscription struct {
	client   *Client
	statName string
	active   bool
}

// Hub fans stat and leaderboard updates out to the clients subscribed to a statistic.
// The last leaderboard of every statistic is replayed to new subscribers.
type Hub struct {
	subscribers map[string]map[*Client]struct{}
	clients     map[*Client]struct{}
	boards      map[string][]byte

	register   chan *Client
	unregister chan *Client
	subs       chan subscription
	broadcast  chan *Message

	mu     sync.RWMutex
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// NewHub creates a new Hub
func NewHub(logger *slog.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		subscribers: make(map[string]map[*Client]struct{}),
		clients:     make(map[*Client]struct{}),
		boards:      make(map[string][]byte),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		subs:        make(chan subscription, 64),
		broadcast:   make(chan *Message, 256),
		logger:      logger,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	h.logger.Info("WebSocket hub started")
	for {
		select {
		case <-h.ctx.Done():
			h.logger.Info("WebSocket hub stopping")
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = struct{}{}
			h.mu.Unlock()
			h.logger.Debug("client registered", "client_id", client.id)

		case client := <-h.unregister:
			h.removeClient(client)

		case sub := <-h.subs:
			h.applySubscription(sub)

		case message := <-h.broadcast:
			h.deliver(message)
		}
	}
}

// Stop stops the hub
func (h *Hub) Stop() {
	h.cancel()
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	for statName, clients := range h.subscribers {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.subscribers, statName)
		}
	}
	close(client.send)
	h.logger.Debug("client unregistered", "client_id", client.id)
}

// applySubscription updates the subscriber set and acknowledges from the hub loop, so a
// client that saw the ack receives every later broadcast for the statistic
func (h *Hub) applySubscription(sub subscription) {
	h.mu.Lock()
	if _, ok := h.clients[sub.client]; !ok {
		h.mu.Unlock()
		return
	}

	ackType := MessageTypeUnsubscribed
	var replay []byte
	if sub.active {
		ackType = MessageTypeSubscribed
		if h.subscribers[sub.statName] == nil {
			h.subscribers[sub.statName] = make(map[*Client]struct{})
		}
		h.subscribers[sub.statName][sub.client] = struct{}{}
		replay = h.boards[sub.statName]
	} else if clients, ok := h.subscribers[sub.statName]; ok {
		delete(clients, sub.client)
		if len(clients) == 0 {
			delete(h.subscribers, sub.statName)
		}
	}
	h.mu.Unlock()

	h.logger.Debug("subscription changed",
		"client_id", sub.client.id,
		"stat_name", sub.statName,
		"subscribed", sub.active,
	)

	sub.client.sendMessage(&Message{
		Type:      ackType,
		StatName:  sub.statName,
		Data:      map[string]string{"status": "ok"},
		Timestamp: time.Now(),
	})
	if replay != nil {
		sub.client.enqueue(replay)
	}
}

// deliver sends a message to the subscribers of its statistic
func (h *Hub) deliver(message *Message) {
	data, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("failed to marshal message", "error", err)
		return
	}

	h.mu.Lock()
	if message.Type == MessageTypeLeaderboardUpdate {
		h.boards[message.StatName] = data
	}
	h.mu.Unlock()

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.subscribers[message.StatName] {
		if !client.enqueue(data) {
			h.logger.Warn("client buffer full, skipping", "client_id", client.id)
		}
	}
}

func (h *Hub) publish(message *Message) {
	select {
	case h.broadcast <- message:
	default:
		h.logger.Warn("broadcast channel full, dropping message", "type", message.Type)
	}
}

// BroadcastStatUpdate notifies subscribers of statName that a player's value changed
func (h *Hub) BroadcastStatUpdate(statName string, update domain.StatUpdate) {
	h.publish(&Message{
		Type:      MessageTypeStatUpdate,
		StatName:  statName,
		Data:      update,
		Timestamp: time.Now(),
	})
}

// BroadcastLeaderboard sends the latest aggregated leaderboard of statName
func (h *Hub) BroadcastLeaderboard(statName string, entries []domain.LeaderboardEntry) {
	h.publish(&Message{
		Type:     MessageTypeLeaderboardUpdate,
		StatName: statName,
		Data: LeaderboardUpdate{
			StatName: statName,
			Entries:  entries,
		},
		Timestamp: time.Now(),
	})
}

// Register adds a client to the hub
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister removes a client from the hub
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// changeSubscription queues a subscribe or unsubscribe for the hub loop
func (h *Hub) changeSubscription(client *Client, statName string, active bool) {
	h.subs <- subscription{client: client, statName: statName, active: active}
}

// SubscriberCount returns the number of subscribers of a statistic
func (h *Hub) SubscriberCount(statName string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[statName])
}

// TotalConnections returns the number of connected clients
func (h *Hub) TotalConnections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
