package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/lalith-99/chatlog/internal/stream"
)

const (
	pingInterval = 30 * time.Second
	writeTimeout = 10 * time.Second
	readLimit    = 512
)

type ChatResolver interface {
	ChatID(ctx context.Context, token string, chatNumber int64) (int64, error)
}

// StreamHandler pushes each message of a chat to websocket clients as soon
// as a worker has persisted it.
type StreamHandler struct {
	svc      ChatResolver
	broker   stream.Broker
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

func NewStreamHandler(svc ChatResolver, broker stream.Broker, logger *zap.Logger) *StreamHandler {
	return &StreamHandler{
		svc:    svc,
		broker: broker,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger: logger.Named("stream"),
	}
}

// Stream handles GET /api/v1/applications/:token/chats/:chat_number/messages/stream
func (h *StreamHandler) Stream(c *gin.Context) {
	chatID, err := h.svc.ChatID(c.Request.Context(), c.Param("token"), number(c, "chat_number"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the error response.
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	sub, err := h.broker.Subscribe(ctx, chatID)
	if err != nil {
		h.logger.Error("subscribe failed", zap.Int64("chat_id", chatID), zap.Error(err))
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "subscribe failed"),
			time.Now().Add(writeTimeout))
		return
	}
	defer sub.Close()

	// Clients only send control frames; the read loop exists to notice
	// the disconnect.
	go func() {
		defer cancel()
		conn.SetReadLimit(readLimit)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-sub.C():
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(msg); err != nil {
				h.logger.Debug("websocket write failed", zap.Error(err))
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return
			}
		}
	}
}
