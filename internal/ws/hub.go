package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/kacharaalert/internal/logger"
	"github.com/kacharaalert/internal/model"
	"github.com/kacharaalert/internal/repository"
)

// MessageCreator stores a message sent over the live channel.
// *repository.MessageRepository implements it.
type MessageCreator interface {
	Create(ctx context.Context, senderID, recipientID, body, replyToID string) (*model.Message, error)
}

// Hub tracks live connections per user, answers messages:send and fans
// message events out to both participants.
type Hub struct {
	mu       sync.RWMutex
	clients  map[string]map[*Client]struct{}
	total    int
	maxConns int
	limits   Limits
	messages MessageCreator

	register   chan *Client
	unregister chan *Client
	done       chan struct{}
}

func NewHub(messages MessageCreator, maxConns int, limits Limits) *Hub {
	if maxConns <= 0 {
		maxConns = 10000
	}
	return &Hub{
		clients:    make(map[string]map[*Client]struct{}),
		maxConns:   maxConns,
		limits:     limits.withDefaults(),
		messages:   messages,
		register:   make(chan *Client, 64),
		unregister: make(chan *Client, 64),
		done:       make(chan struct{}),
	}
}

func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		}
	}
}

func (h *Hub) shutdown() {
	// Collect under the lock, close outside it (network I/O).
	h.mu.Lock()
	all := make([]*Client, 0, h.total)
	for _, clients := range h.clients {
		for c := range clients {
			all = append(all, c)
		}
	}
	h.clients = make(map[string]map[*Client]struct{})
	h.total = 0
	h.mu.Unlock()

	for _, c := range all {
		c.Close()
	}
	for _, c := range all {
		c.Wait()
	}
}

func (h *Hub) addClient(c *Client) {
	if c.closed() {
		return
	}
	h.mu.Lock()
	if h.total >= h.maxConns {
		h.mu.Unlock()
		logger.Errorf("ws connection limit reached (%d), rejecting user=%s", h.maxConns, c.userID)
		c.Close()
		return
	}
	if _, ok := h.clients[c.userID]; !ok {
		h.clients[c.userID] = make(map[*Client]struct{})
	}
	h.clients[c.userID][c] = struct{}{}
	h.total++
	h.mu.Unlock()
	logger.Debugf("ws connected user=%s", c.userID)
}

func (h *Hub) removeClient(c *Client) {
	h.mu.Lock()
	clients, ok := h.clients[c.userID]
	if !ok {
		h.mu.Unlock()
		c.Close()
		return
	}
	if _, exists := clients[c]; exists {
		delete(clients, c)
		h.total--
		if len(clients) == 0 {
			delete(h.clients, c.userID)
		}
	}
	h.mu.Unlock()
	c.Close()
}

// Connections returns the number of live connections of userID.
func (h *Hub) Connections(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

// HandleFrame dispatches one client frame.
func (h *Hub) HandleFrame(ctx context.Context, c *Client, f model.Frame) {
	if f.Type != model.FrameEmit {
		h.sendToClient(c, model.Frame{Type: model.FrameError, ID: f.ID, Error: "unsupported frame type"})
		return
	}
	switch f.Event {
	case model.EventMessageSend:
		h.handleSend(ctx, c, f)
	default:
		h.ack(c, f.ID, model.Ack{Success: false, Error: "unknown event"})
	}
}

func (h *Hub) handleSend(ctx context.Context, c *Client, f model.Frame) {
	defer logger.DeferLogDuration("ws.handleSend", time.Now())()
	var req model.SendMessageRequest
	if err := json.Unmarshal(f.Data, &req); err != nil || req.RecipientID == "" {
		h.ack(c, f.ID, model.Ack{Success: false, Error: "recipientId and body required"})
		return
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	msg, err := h.messages.Create(ctx, c.userID, req.RecipientID, req.Body, req.ReplyToMessageID)
	if err != nil {
		h.ack(c, f.ID, model.Ack{Success: false, Error: repository.Reason(err)})
		return
	}
	data, err := json.Marshal(msg)
	if err != nil {
		logger.Errorf("ws marshal message %s: %v", msg.ID, err)
		h.ack(c, f.ID, model.Ack{Success: false, Error: "internal error"})
		return
	}
	h.ack(c, f.ID, model.Ack{Success: true, Data: data})
	h.BroadcastMessage(model.EventMessageNew, msg)
}

func (h *Hub) ack(c *Client, id uint64, a model.Ack) {
	f, err := model.AckFrame(id, a)
	if err != nil {
		logger.Errorf("ws ack user=%s: %v", c.userID, err)
		return
	}
	h.sendToClient(c, f)
}

// BroadcastMessage pushes event with msg to every connection of the sender
// and the recipient.
func (h *Hub) BroadcastMessage(event string, msg *model.Message) {
	f, err := model.EventFrame(event, msg)
	if err != nil {
		logger.Errorf("ws broadcast %s: %v", event, err)
		return
	}
	h.sendToUser(msg.SenderID, f)
	if msg.RecipientID != msg.SenderID {
		h.sendToUser(msg.RecipientID, f)
	}
}

func (h *Hub) sendToUser(userID string, f model.Frame) {
	h.mu.RLock()
	clients, ok := h.clients[userID]
	if !ok {
		h.mu.RUnlock()
		return
	}
	targets := make([]*Client, 0, len(clients))
	for c := range clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		h.sendToClient(c, f)
	}
}

func (h *Hub) sendToClient(c *Client, f model.Frame) {
	select {
	case c.send <- f:
	case <-c.done:
	default:
		// Backpressure: send buffer full, close slow client.
		logger.Errorf("ws send buffer full, closing slow client user=%s", c.userID)
		c.Close()
	}
}

func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	case <-h.done:
		c.Close()
	}
}

func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}
