package devserver

import (
	"sync"

	"ai-workspace-editor/internal/pkg/logger"
)

// Hub tracks the open stream connections.
type Hub struct {
	clients map[*streamClient]bool

	// Register requests from the clients.
	register chan *streamClient

	// Unregister requests from clients.
	unregister chan *streamClient

	stop     chan struct{}
	stopOnce sync.Once

	mu     sync.RWMutex
	logger logger.ILogger
}

func NewHub(log logger.ILogger) *Hub {
	return &Hub{
		clients:    make(map[*streamClient]bool),
		register:   make(chan *streamClient),
		unregister: make(chan *streamClient),
		stop:       make(chan struct{}),
		logger:     log,
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.logger.Info("Hub", "Stream client registered", map[string]interface{}{"user_id": client.userId})

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.shutdown()
			}
			h.mu.Unlock()
			h.logger.Info("Hub", "Stream client unregistered", map[string]interface{}{"user_id": client.userId})

		case <-h.stop:
			return
		}
	}
}

func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.stop) })
}

func (h *Hub) add(c *streamClient) {
	select {
	case h.register <- c:
	case <-h.stop:
	}
}

func (h *Hub) remove(c *streamClient) {
	select {
	case h.unregister <- c:
	case <-h.stop:
		c.shutdown()
	}
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// CloseAll ends every connection with code; code 0 drops the socket without a close frame.
func (h *Hub) CloseAll(code int) {
	h.mu.RLock()
	clients := make([]*streamClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		c.closeWith(code)
	}
}
