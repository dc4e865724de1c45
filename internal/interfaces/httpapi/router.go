package httpapi

import (
	"github.com/gin-gonic/gin"
)

type Config struct {
	PriceHandler  *PriceHandler
	SignalHandler *SignalHandler
	SystemHandler *SystemHandler
	Hub           *Hub
}

func NewRouter(cfg *Config) *gin.Engine {
	router := gin.Default()

	api := router.Group("/api")
	registerPriceRoutes(api, cfg.PriceHandler)
	registerSignalRoutes(api, cfg.SignalHandler)
	api.GET("/health", cfg.SystemHandler.Health)

	if cfg.Hub != nil {
		router.GET("/ws", cfg.Hub.ServeWS)
	}

	return router
}

func registerPriceRoutes(router *gin.RouterGroup, h *PriceHandler) {
	router.GET("/price/:symbol", h.GetPrice)
	router.GET("/prices", h.GetPrices)
	router.GET("/price-history/:symbol", h.GetHistory)
	router.GET("/search", h.Search)
	router.GET("/all-coins", h.GetAllCoins)
	router.GET("/top-coins", h.GetTopCoins)
}

func registerSignalRoutes(router *gin.RouterGroup, h *SignalHandler) {
	router.POST("/create-signal", h.Create)
	router.GET("/signals", h.List)
	router.GET("/dashboard", h.Dashboard)
}
