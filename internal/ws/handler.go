package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"story-server/internal/auth"
)

const (
	// Время, разрешенное для записи сообщения клиенту.
	writeWait = 10 * time.Second
	// Время, разрешенное для чтения следующего pong сообщения от клиента.
	pongWait = 60 * time.Second
	// Отправлять пинги клиенту с этим периодом. Должно быть меньше pongWait.
	pingPeriod = (pongWait * 9) / 10
	// Максимальный размер сообщения, разрешенный от клиента.
	maxMessageSize = 512
)

// TokenVerifier проверяет токен пользователя.
type TokenVerifier interface {
	VerifyToken(ctx context.Context, tokenString string) (*auth.Claims, error)
}

// Handler принимает WebSocket соединения и регистрирует их в Hub.
type Handler struct {
	hub      *Hub
	verifier TokenVerifier // nil - аутентификация отключена
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewHandler создает обработчик. allowedOrigins пустой - разрешены все источники.
func NewHandler(hub *Hub, verifier TokenVerifier, allowedOrigins []string, logger *zap.Logger) *Handler {
	origins := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		origins[o] = true
	}
	return &Handler{
		hub:      hub,
		verifier: verifier,
		logger:   logger.Named("WSHandler"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return len(origins) == 0 || origin == "" || origins[origin]
			},
		},
	}
}

// ServeWS обрабатывает GET /ws?client_id=&token=.
// Нужен хотя бы один идентификатор: client_id или валидный token.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	clientID := r.URL.Query().Get("client_id")
	var userID string
	if token := r.URL.Query().Get("token"); token != "" {
		if h.verifier == nil {
			http.Error(w, "Unauthorized: authentication is disabled", http.StatusUnauthorized)
			return
		}
		claims, err := h.verifier.VerifyToken(r.Context(), token)
		if err != nil {
			h.logger.Warn("Invalid websocket token", zap.Error(err))
			http.Error(w, "Unauthorized: Invalid token", http.StatusUnauthorized)
			return
		}
		userID = claims.UserID()
	}
	if clientID == "" && userID == "" {
		http.Error(w, "client_id or token is required", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade connection", zap.Error(err))
		return
	}

	c := &client{
		id:       uuid.New(),
		userID:   userID,
		clientID: clientID,
		send:     make(chan []byte, 256),
	}
	if !h.hub.register(c) {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
		_ = conn.Close()
		return
	}

	log := h.logger.With(zap.String("conn_id", c.id.String()))
	go h.writePump(conn, c, log)
	go h.readPump(conn, c, log)
}

// readPump читает соединение только ради pong и закрытия: клиент ничего не отправляет.
func (h *Handler) readPump(conn *websocket.Conn, c *client, log *zap.Logger) {
	defer func() {
		h.hub.unregister(c)
		_ = conn.Close()
	}()
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Warn("WebSocket read error", zap.Error(err))
			}
			return
		}
	}
}

func (h *Handler) writePump(conn *websocket.Conn, c *client, log *zap.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Warn("Failed to write message", zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Debug("Failed to send ping", zap.Error(err))
				return
			}
		}
	}
}
