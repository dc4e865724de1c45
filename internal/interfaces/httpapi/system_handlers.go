package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"coinpulse/internal/application/port"
)

type SystemHandler struct {
	feed  port.PriceFeed
	cache port.QuoteCache
}

func NewSystemHandler(feed port.PriceFeed, cache port.QuoteCache) *SystemHandler {
	return &SystemHandler{feed: feed, cache: cache}
}

func (h *SystemHandler) Health(c *gin.Context) {
	connected := false
	authenticated := false
	if h.feed != nil {
		connected = h.feed.Connected()
		authenticated = h.feed.Authenticated()
	}

	status := "ok"
	code := http.StatusOK
	if !connected {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	c.JSON(code, gin.H{
		"status": status,
		"feed": gin.H{
			"connected":     connected,
			"authenticated": authenticated,
		},
		"symbolsTracked": h.cache.Len(),
	})
}
