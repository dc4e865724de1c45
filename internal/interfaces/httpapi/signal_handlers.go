package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"coinpulse/internal/application/service"
)

type SignalHandler struct {
	signals *service.SignalService
}

func NewSignalHandler(signals *service.SignalService) *SignalHandler {
	return &SignalHandler{signals: signals}
}

type createSignalRequest struct {
	Symbol   string  `json:"symbol" binding:"required"`
	StopLoss float64 `json:"stopLoss" binding:"required"`
	Target   float64 `json:"target" binding:"required"`
}

func (h *SignalHandler) Create(c *gin.Context) {
	var req createSignalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol, stopLoss and target are required"})
		return
	}

	sig, err := h.signals.Create(c.Request.Context(), req.Symbol, req.StopLoss, req.Target)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, sig)
}

func (h *SignalHandler) List(c *gin.Context) {
	views, err := h.signals.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load signals"})
		return
	}
	c.JSON(http.StatusOK, views)
}

func (h *SignalHandler) Dashboard(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("recent", "10"))
	dash, err := h.signals.Dashboard(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load dashboard"})
		return
	}
	c.JSON(http.StatusOK, dash)
}
