package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"marketpay/internal/config"
)

// SetupRouter 配置路由
func SetupRouter(h *Handler, users UserResolver, cfg *config.Config, log logrus.FieldLogger) *gin.Engine {
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	// 注册中间件
	r.Use(RecoveryMiddleware(log))
	r.Use(otelgin.Middleware(cfg.Telemetry.ServiceName))
	r.Use(LoggerMiddleware(log))
	r.Use(CORSMiddleware())

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// 以下路由均需要登录
	api := r.Group("/api/v1")
	api.Use(AuthRequiredMiddleware([]byte(cfg.Auth.JWTSecret), users))
	{
		api.POST("/settlements", h.Settle)

		api.POST("/payouts", h.Payout)
		api.GET("/payouts", h.ListPayouts)
		api.GET("/payouts/:intent_no", h.GetPayout)
		api.POST("/transfers", h.Transfer)

		account := api.Group("/account")
		{
			account.GET("/balance", h.GetBalance)
		}

		processor := api.Group("/processor")
		{
			processor.POST("/account", h.CreateProcessorAccount)
			processor.DELETE("/account", h.DeleteProcessorAccount)
		}

		api.POST("/items", h.CreateItem)
		api.GET("/orders", h.ListOrders)
		api.GET("/orders/:id", h.GetOrder)
		api.GET("/sales-transactions", h.ListSales)
		api.POST("/payment-sheet", h.CreatePaymentSheet)
	}

	return r
}
