package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"story-server/internal/model"
)

// Message - конверт, в котором уведомление уходит в браузер.
type Message struct {
	Type    string       `json:"type"`
	Payload model.Notice `json:"payload"`
}

const messageTypeNotice = "notice"

// client - одно WebSocket соединение. У одного владельца может быть несколько
// соединений (несколько вкладок), поэтому ключом служит ID соединения.
type client struct {
	id       uuid.UUID
	userID   string
	clientID string
	send     chan []byte
}

func (c *client) matches(owner model.Owner) bool {
	return (owner.UserID != "" && c.userID == owner.UserID) ||
		(owner.ClientID != "" && c.clientID == owner.ClientID)
}

// Hub хранит активные соединения и рассылает им уведомления.
type Hub struct {
	logger  *zap.Logger
	mu      sync.RWMutex
	clients map[uuid.UUID]*client
	closed  bool
}

// NewHub создает пустой Hub.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		logger:  logger.Named("WSHub"),
		clients: make(map[uuid.UUID]*client),
	}
}

func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c.id] = c
	h.logger.Info("Client registered", zap.String("conn_id", c.id.String()), zap.String("user_id", c.userID), zap.String("client_id", c.clientID))
	return true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c.id]; ok {
		delete(h.clients, c.id)
		close(c.send)
		h.logger.Info("Client unregistered", zap.String("conn_id", c.id.String()))
	}
}

// Notify отправляет уведомление всем соединениям владельца.
// Если владелец не в сети, уведомление отбрасывается.
func (h *Hub) Notify(_ context.Context, notice model.Notice) error {
	data, err := json.Marshal(Message{Type: messageTypeNotice, Payload: notice})
	if err != nil {
		return fmt.Errorf("failed to marshal notice: %w", err)
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	delivered := 0
	for _, c := range h.clients {
		if !c.matches(notice.Owner) {
			continue
		}
		select {
		case c.send <- data:
			delivered++
		default:
			h.logger.Warn("Send queue is full, notice dropped", zap.String("conn_id", c.id.String()))
		}
	}
	if delivered == 0 {
		h.logger.Debug("Owner is offline, notice dropped",
			zap.String("user_id", notice.Owner.UserID),
			zap.String("client_id", notice.Owner.ClientID),
			zap.String("kind", string(notice.Kind)))
	}
	return nil
}

// Connections возвращает количество активных соединений.
func (h *Hub) Connections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close закрывает все соединения и перестает принимать новые.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for id, c := range h.clients {
		close(c.send)
		delete(h.clients, id)
	}
}
