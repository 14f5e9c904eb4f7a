package router

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/mamadbah2/avicontrol/internal/server/handlers"
)

// New wires the Gin engine with required routes and middlewares. gatherer
// backs /metrics and may be nil to omit the endpoint.
func New(h *handlers.Handler, gatherer prometheus.Gatherer, logger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(zapLoggerMiddleware(logger))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	api := r.Group("/api")
	api.POST("/login", h.Login)

	authed := api.Group("")
	authed.Use(h.Authenticate())
	{
		authed.GET("/me", h.Me)
		authed.GET("/events", h.Events)

		authed.GET("/users", h.ListUsers)
		authed.POST("/users", h.CreateUser)
		authed.PUT("/users/:id", h.UpdateUser)
		authed.DELETE("/users/:id", h.DeleteUser)

		authed.GET("/batches", h.ListBatches)
		authed.POST("/batches", h.CreateBatch)
		authed.GET("/batches/:id", h.GetBatch)
		authed.PUT("/batches/:id", h.UpdateBatch)
		authed.DELETE("/batches/:id", h.DeleteBatch)
		authed.POST("/batches/:id/close", h.CloseBatch)
		authed.GET("/batches/:id/totals", h.BatchTotals)
		authed.GET("/batches/:id/report", h.BatchReport)
		authed.POST("/batches/:id/export", h.ExportBatch)

		authed.GET("/orders", h.ListOrders)
		authed.POST("/orders", h.CreateOrder)
		authed.GET("/orders/:id", h.GetOrder)
		authed.PUT("/orders/:id", h.UpdateOrder)
		authed.DELETE("/orders/:id", h.DeleteOrder)
		authed.POST("/orders/:id/records", h.AddRecord)
		authed.DELETE("/orders/:id/records/:recordId", h.DeleteRecord)
		authed.POST("/orders/:id/checkout", h.Checkout)
		authed.POST("/orders/:id/payments", h.RegisterPayment)
		authed.GET("/orders/:id/totals", h.OrderTotals)

		authed.GET("/config", h.GetConfig)
	}

	admin := authed.Group("")
	admin.Use(h.RequireAdmin())
	{
		admin.PUT("/config", h.SaveConfig)
		admin.POST("/reset", h.Reset)

		admin.GET("/sync/status", h.SyncStatus)
		admin.POST("/sync/enable", h.EnableSync)
		admin.POST("/sync/disable", h.DisableSync)
		admin.POST("/sync/test", h.TestSync)
		admin.POST("/sync/push", h.PushSync)
		admin.POST("/sync/wipe", h.WipeSync)
	}

	if logger != nil {
		logger.Info("router initialized")
	}

	return r
}

func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.Info("request completed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("client_ip", c.ClientIP()))
	}
}
