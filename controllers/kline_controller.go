package controllers

import (
	"net/http"
	"strconv"

	"kline_backend/services/kline"

	"github.com/gin-gonic/gin"
)

// KlineController serves derived kline views
type KlineController struct {
	kline *kline.Service
}

// NewKlineController creates a new kline controller
func NewKlineController(svc *kline.Service) *KlineController {
	return &KlineController{kline: svc}
}

// GetKline returns the period view for one instrument
// GET /api/v1/stocks/:code/kline?period=day|week|month&limit=N
func (kc *KlineController) GetKline(c *gin.Context) {
	code := c.Param("code")

	period, err := kline.ParsePeriod(c.DefaultQuery("period", "day"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))

	result, err := kc.kline.GetKline(code, period, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load kline data"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}
