package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/lalith-99/chatlog/internal/middleware"
	"github.com/lalith-99/chatlog/internal/reconcile"
	"github.com/lalith-99/chatlog/internal/tasks"
)

type TaskStats interface {
	Stats(ctx context.Context) (tasks.Stats, error)
}

type Reconciler interface {
	RunAll(ctx context.Context) ([]reconcile.Result, error)
}

type ApplicationDeleter interface {
	DeleteApplication(ctx context.Context, token string) error
}

// AdminHandler serves the operator endpoints. Every route sits behind
// middleware.AuthMiddleware.
type AdminHandler struct {
	tasks      TaskStats
	reconciler Reconciler
	apps       ApplicationDeleter
	logger     *zap.Logger
}

func NewAdminHandler(t TaskStats, r Reconciler, apps ApplicationDeleter, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{tasks: t, reconciler: r, apps: apps, logger: logger.Named("admin")}
}

// Tasks handles GET /admin/tasks
func (h *AdminHandler) Tasks(c *gin.Context) {
	stats, err := h.tasks.Stats(c.Request.Context())
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// Reconcile handles POST /admin/reconcile
func (h *AdminHandler) Reconcile(c *gin.Context) {
	h.logger.Info("manual reconcile", zap.String("subject", middleware.GetSubject(c)))
	results, err := h.reconciler.RunAll(c.Request.Context())
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sweeps": results})
}

// DeleteApplication handles DELETE /admin/applications/:token
func (h *AdminHandler) DeleteApplication(c *gin.Context) {
	token := c.Param("token")
	if err := h.apps.DeleteApplication(c.Request.Context(), token); err != nil {
		writeError(c, h.logger, err)
		return
	}
	h.logger.Info("application deleted by operator",
		zap.String("token", token),
		zap.String("subject", middleware.GetSubject(c)),
	)
	c.Status(http.StatusNoContent)
}
