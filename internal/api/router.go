package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/lalith-99/chatlog/internal/middleware"
	"github.com/lalith-99/chatlog/internal/observ"
	"github.com/lalith-99/chatlog/internal/service"
	"github.com/lalith-99/chatlog/internal/stream"
)

// RouterDeps wires the HTTP surface. Gatherer may be nil to leave out
// /metrics.
type RouterDeps struct {
	Service        *service.Service
	Tasks          TaskStats
	Reconciler     Reconciler
	Broker         stream.Broker
	AdminJWTSecret string
	Metrics        *observ.Metrics
	Gatherer       prometheus.Gatherer
	Logger         *zap.Logger
}

func NewRouter(d RouterDeps) *gin.Engine {
	r := gin.New()
	r.Use(
		gin.Recovery(),
		middleware.RequestID(),
		middleware.AccessLog(d.Logger),
		middleware.Instrument(d.Metrics),
	)

	r.GET("/up", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if d.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))
	}

	apps := NewApplicationHandler(d.Service, d.Logger)
	chats := NewChatHandler(d.Service, d.Logger)
	messages := NewMessageHandler(d.Service, d.Logger)

	v1 := r.Group("/api/v1")
	v1.POST("/applications", apps.Create)

	app := v1.Group("/applications/:token")
	app.GET("", apps.Get)
	app.PATCH("", apps.Update)
	app.PUT("", apps.Update)

	app.POST("/chats", chats.Create)
	app.GET("/chats", chats.List)
	app.GET("/chats/:chat_number", chats.Get)

	msgs := app.Group("/chats/:chat_number/messages")
	msgs.POST("", messages.Create)
	msgs.GET("", messages.List)
	msgs.GET("/search", messages.Search)
	msgs.GET("/:message_number", messages.Get)

	if d.Broker != nil {
		live := NewStreamHandler(d.Service, d.Broker, d.Logger)
		msgs.GET("/stream", live.Stream)
	}

	admin := NewAdminHandler(d.Tasks, d.Reconciler, d.Service, d.Logger)
	ag := r.Group("/admin", middleware.AuthMiddleware(d.AdminJWTSecret))
	ag.GET("/tasks", admin.Tasks)
	ag.POST("/reconcile", admin.Reconcile)
	ag.DELETE("/applications/:token", admin.DeleteApplication)

	return r
}
