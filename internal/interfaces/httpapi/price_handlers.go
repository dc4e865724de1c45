package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"coinpulse/internal/application/service"
)

type PriceHandler struct {
	queries *service.QueryService
}

func NewPriceHandler(queries *service.QueryService) *PriceHandler {
	return &PriceHandler{queries: queries}
}

func (h *PriceHandler) GetPrice(c *gin.Context) {
	symbol := c.Param("symbol")
	quote, ok := h.queries.CurrentPrice(symbol)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "symbol not found or not updated yet"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"symbol": strings.ToUpper(strings.TrimSpace(symbol)),
		"price":  quote.Price,
		"quote":  quote,
	})
}

func (h *PriceHandler) GetPrices(c *gin.Context) {
	c.JSON(http.StatusOK, h.queries.AllPrices())
}

func (h *PriceHandler) GetHistory(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	points, err := h.queries.History(c.Request.Context(), c.Param("symbol"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load price history"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"symbol": strings.ToUpper(c.Param("symbol")), "history": points})
}

func (h *PriceHandler) Search(c *gin.Context) {
	term := strings.TrimSpace(c.Query("q"))
	if term == "" {
		term = strings.TrimSpace(c.Query("query"))
	}
	if len(term) < 2 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "search term must be at least 2 characters"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))
	results, err := h.queries.Search(c.Request.Context(), term, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "search failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}

func (h *PriceHandler) GetAllCoins(c *gin.Context) {
	coins, err := h.queries.AllCoins(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load coins"})
		return
	}
	c.JSON(http.StatusOK, coins)
}

func (h *PriceHandler) GetTopCoins(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))
	coins, err := h.queries.TopCoins(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load top coins"})
		return
	}
	c.JSON(http.StatusOK, coins)
}
