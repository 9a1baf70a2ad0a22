package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/lalith-99/chatlog/internal/models"
	"github.com/lalith-99/chatlog/internal/service"
)

type ChatService interface {
	AllocateChatNumber(ctx context.Context, token string) (int64, error)
	GetChat(ctx context.Context, token string, chatNumber int64) (*models.Chat, error)
	ListChats(ctx context.Context, token string, page service.PageRequest) (*service.ChatPage, error)
}

type ChatHandler struct {
	svc    ChatService
	logger *zap.Logger
}

func NewChatHandler(svc ChatService, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{svc: svc, logger: logger}
}

// Create handles POST /api/v1/applications/:token/chats
//
// The chat is only queued; 202 carries the number it will have.
func (h *ChatHandler) Create(c *gin.Context) {
	n, err := h.svc.AllocateChatNumber(c.Request.Context(), c.Param("token"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"number": n})
}

// List handles GET /api/v1/applications/:token/chats?page=1&per_page=20
func (h *ChatHandler) List(c *gin.Context) {
	page := service.PageRequest{
		Page:    queryInt(c, "page"),
		PerPage: queryInt(c, "per_page"),
	}
	res, err := h.svc.ListChats(c.Request.Context(), c.Param("token"), page)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// Get handles GET /api/v1/applications/:token/chats/:chat_number
func (h *ChatHandler) Get(c *gin.Context) {
	chat, err := h.svc.GetChat(c.Request.Context(), c.Param("token"), number(c, "chat_number"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, chat)
}

// queryInt returns 0 for a missing or unparseable value; the service
// substitutes its defaults.
func queryInt(c *gin.Context, key string) int {
	n, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return 0
	}
	return n
}
