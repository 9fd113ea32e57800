package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ObiwanKenobee/vest-aladdin-finance-1-sub002/internal/handlers"
	"github.com/ObiwanKenobee/vest-aladdin-finance-1-sub002/internal/service"
	"github.com/ObiwanKenobee/vest-aladdin-finance-1-sub002/internal/telemetry"
)

func NewRouter(gateway *service.Gateway) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(telemetry.TracingMiddleware())

	// Prometheus metrics
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "payment-gateway"})
	})

	h := handlers.NewPaymentHandler(gateway)

	r.POST("/payments", h.ProcessPayment)
	r.GET("/payments", h.ListTransactions)
	r.GET("/payments/:id", h.GetTransaction)
	r.POST("/payments/:id/verify", h.VerifyPayment)
	r.POST("/refunds", h.ProcessRefund)
	r.GET("/providers", h.GetProviders)
	r.POST("/webhooks/:provider", h.HandleWebhook)

	return r
}
