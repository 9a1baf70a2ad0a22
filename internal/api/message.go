package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/lalith-99/chatlog/internal/models"
)

type MessageService interface {
	AllocateMessageNumber(ctx context.Context, token string, chatNumber int64, body string) (int64, error)
	GetMessage(ctx context.Context, token string, chatNumber, messageNumber int64) (*models.Message, error)
	ListMessages(ctx context.Context, token string, chatNumber int64) ([]models.Message, error)
	SearchMessages(ctx context.Context, token string, chatNumber int64, q string) ([]models.Message, error)
}

type MessageHandler struct {
	svc    MessageService
	logger *zap.Logger
}

func NewMessageHandler(svc MessageService, logger *zap.Logger) *MessageHandler {
	return &MessageHandler{svc: svc, logger: logger}
}

// createMessageRequest binds from JSON or form data, whichever the client
// sent. A missing body is reported by the service, after the chat has
// been resolved.
type createMessageRequest struct {
	Body string `json:"body" form:"body"`
}

// Create handles POST /api/v1/applications/:token/chats/:chat_number/messages
func (h *MessageHandler) Create(c *gin.Context) {
	var req createMessageRequest
	_ = c.ShouldBind(&req)

	n, err := h.svc.AllocateMessageNumber(c.Request.Context(), c.Param("token"), number(c, "chat_number"), req.Body)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"message_number": n})
}

// List handles GET /api/v1/applications/:token/chats/:chat_number/messages
func (h *MessageHandler) List(c *gin.Context) {
	msgs, err := h.svc.ListMessages(c.Request.Context(), c.Param("token"), number(c, "chat_number"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, msgs)
}

// Get handles GET /api/v1/applications/:token/chats/:chat_number/messages/:message_number
func (h *MessageHandler) Get(c *gin.Context) {
	msg, err := h.svc.GetMessage(c.Request.Context(), c.Param("token"), number(c, "chat_number"), number(c, "message_number"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, msg)
}

// Search handles GET /api/v1/applications/:token/chats/:chat_number/messages/search?q=
func (h *MessageHandler) Search(c *gin.Context) {
	msgs, err := h.svc.SearchMessages(c.Request.Context(), c.Param("token"), number(c, "chat_number"), c.Query("q"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, msgs)
}
