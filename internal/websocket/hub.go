// Package websocket pushes ranking changes to subscribed clients.
package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/biohunter/internal/domain"
)

// Message types
const (
	MessageTypeRankingUpdate = "ranking_update"
	MessageTypeSubscribe     = "subscribe"
	MessageTypeUnsubscribe   = "unsubscribe"
	MessageTypeSubscribed    = "subscribed"
	MessageTypeUnsubscribed  = "unsubscribed"
	MessageTypePing          = "ping"
	MessageTypePong          = "pong"
	MessageTypeError         = "error"
)

// Message is the envelope of every server-to-client frame
type Message struct {
	Type        string      `json:"type"`
	RankingType string      `json:"rankingType,omitempty"`
	Data        interface{} `json:"data,omitempty"`
	Timestamp   time.Time   `json:"timestamp"`
}

// RankingUpdate carries the head of a ranking after a change
type RankingUpdate struct {
	RankingType  string               `json:"rankingType"`
	Entries      []domain.RankedEntry `json:"entries"`
	TotalPlayers int64                `json:"totalPlayers"`
}

// Hub tracks connected clients and their ranking subscriptions
type Hub struct {
	// subscribers by ranking type
	clients map[string]map[*Client]bool

	allClients map[*Client]bool

	register    chan *Client
	unregister  chan *Client
	broadcast   chan *Message
	subscribe   chan *subscriptionRequest
	unsubscribe chan *subscriptionRequest

	mu     sync.RWMutex
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

type subscriptionRequest struct {
	client      *Client
	rankingType string
}

// NewHub creates a new Hub
func NewHub(logger *slog.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients:     make(map[string]map[*Client]bool),
		allClients:  make(map[*Client]bool),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		broadcast:   make(chan *Message, 256),
		subscribe:   make(chan *subscriptionRequest, 64),
		unsubscribe: make(chan *subscriptionRequest, 64),
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
			h.closeAll()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.allClients[client] = true
			h.mu.Unlock()
			h.logger.Debug("client registered", "client_id", client.id)

		case client := <-h.unregister:
			h.remove(client)
			h.logger.Debug("client unregistered", "client_id", client.id)

		case req := <-h.subscribe:
			h.mu.Lock()
			if _, ok := h.allClients[req.client]; ok {
				if _, ok := h.clients[req.rankingType]; !ok {
					h.clients[req.rankingType] = make(map[*Client]bool)
				}
				h.clients[req.rankingType][req.client] = true
			}
			h.mu.Unlock()
			h.logger.Debug("client subscribed", "client_id", req.client.id, "type", req.rankingType)

		case req := <-h.unsubscribe:
			h.mu.Lock()
			if clients, ok := h.clients[req.rankingType]; ok {
				delete(clients, req.client)
				if len(clients) == 0 {
					delete(h.clients, req.rankingType)
				}
			}
			h.mu.Unlock()
			h.logger.Debug("client unsubscribed", "client_id", req.client.id, "type", req.rankingType)

		case message := <-h.broadcast:
			h.broadcastMessage(message)
		}
	}
}

// Stop stops the hub and closes every client
func (h *Hub) Stop() {
	h.cancel()
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.allClients[client]; !ok {
		return
	}
	delete(h.allClients, client)
	for rankingType, clients := range h.clients {
		if _, ok := clients[client]; ok {
			delete(clients, client)
			if len(clients) == 0 {
				delete(h.clients, rankingType)
			}
		}
	}
	close(client.send)
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.allClients {
		close(client.send)
	}
	h.allClients = make(map[*Client]bool)
	h.clients = make(map[string]map[*Client]bool)
}

// broadcastMessage sends a message to the subscribers of its ranking type
func (h *Hub) broadcastMessage(message *Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	data, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("failed to marshal message", "error", err)
		return
	}

	for client := range h.clients[message.RankingType] {
		select {
		case client.send <- data:
		default:
			// Client's buffer is full, skip
			h.logger.Warn("client buffer full, skipping", "client_id", client.id)
		}
	}
}

// BroadcastRankingUpdate sends the head of a ranking to its subscribers
func (h *Hub) BroadcastRankingUpdate(rankingType string, entries []domain.RankedEntry, totalPlayers int64) {
	message := &Message{
		Type:        MessageTypeRankingUpdate,
		RankingType: rankingType,
		Data: RankingUpdate{
			RankingType:  rankingType,
			Entries:      entries,
			TotalPlayers: totalPlayers,
		},
		Timestamp: time.Now().UTC(),
	}

	select {
	case h.broadcast <- message:
	default:
		h.logger.Warn("broadcast channel full, dropping message", "type", rankingType)
	}
}

// Register adds a client to the hub
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.ctx.Done():
		return false
	}
}

// Unregister removes a client from the hub
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.ctx.Done():
	}
}

// Subscribe adds a client to a ranking subscription
func (h *Hub) Subscribe(client *Client, rankingType string) {
	select {
	case h.subscribe <- &subscriptionRequest{client: client, rankingType: rankingType}:
	case <-h.ctx.Done():
	}
}

// Unsubscribe removes a client from a ranking subscription
func (h *Hub) Unsubscribe(client *Client, rankingType string) {
	select {
	case h.unsubscribe <- &subscriptionRequest{client: client, rankingType: rankingType}:
	case <-h.ctx.Done():
	}
}

// SubscriberCount returns the number of subscribers of a ranking type
func (h *Hub) SubscriberCount(rankingType string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[rankingType])
}

// ConnectionCount returns the total number of connected clients
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.allClients)
}
