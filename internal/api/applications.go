package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/lalith-99/chatlog/internal/models"
)

type ApplicationService interface {
	CreateApplication(ctx context.Context, name string) (*models.Application, error)
	GetApplication(ctx context.Context, token string) (*models.Application, error)
	UpdateApplication(ctx context.Context, token, name string) (*models.Application, error)
}

type ApplicationHandler struct {
	svc    ApplicationService
	logger *zap.Logger
}

func NewApplicationHandler(svc ApplicationService, logger *zap.Logger) *ApplicationHandler {
	return &ApplicationHandler{svc: svc, logger: logger}
}

// applicationRequest accepts both {"name": ...} and the wrapped
// {"application": {"name": ...}} form.
type applicationRequest struct {
	Name        string `json:"name"`
	Application *struct {
		Name string `json:"name"`
	} `json:"application"`
}

func (r applicationRequest) name() string {
	if r.Application != nil && r.Application.Name != "" {
		return r.Application.Name
	}
	return r.Name
}

func (h *ApplicationHandler) bind(c *gin.Context) (string, bool) {
	var req applicationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
		return "", false
	}
	return req.name(), true
}

// Create handles POST /api/v1/applications
func (h *ApplicationHandler) Create(c *gin.Context) {
	name, ok := h.bind(c)
	if !ok {
		return
	}
	app, err := h.svc.CreateApplication(c.Request.Context(), name)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, app)
}

// Get handles GET /api/v1/applications/:token
func (h *ApplicationHandler) Get(c *gin.Context) {
	app, err := h.svc.GetApplication(c.Request.Context(), c.Param("token"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, app)
}

// Update handles PATCH and PUT /api/v1/applications/:token
func (h *ApplicationHandler) Update(c *gin.Context) {
	name, ok := h.bind(c)
	if !ok {
		return
	}
	app, err := h.svc.UpdateApplication(c.Request.Context(), c.Param("token"), name)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, app)
}
