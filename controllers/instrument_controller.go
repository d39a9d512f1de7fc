package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"kline_backend/models"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// InstrumentController serves the instrument catalog (read-only)
type InstrumentController struct {
	db *gorm.DB
}

// NewInstrumentController creates a new instrument controller
func NewInstrumentController(db *gorm.DB) *InstrumentController {
	return &InstrumentController{db: db}
}

// GetInstruments returns the catalog with simple pagination
// GET /api/v1/stocks
func (ic *InstrumentController) GetInstruments(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if page < 1 {
		page = 1
	}
	offset := (page - 1) * limit

	query := ic.db.Model(&models.Instrument{})
	if exchange := c.Query("exchange"); exchange != "" {
		query = query.Where("exchange = ?", exchange)
	}

	var total int64
	query.Count(&total)

	var instruments []models.Instrument
	if err := query.Order("code ASC").Limit(limit).Offset(offset).Find(&instruments).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch instruments"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": instruments,
		"pagination": gin.H{
			"page":  page,
			"limit": limit,
			"total": total,
		},
	})
}

// GetInstrument returns one catalog entry by code
// GET /api/v1/stocks/:code
func (ic *InstrumentController) GetInstrument(c *gin.Context) {
	code := c.Param("code")

	var inst models.Instrument
	if err := ic.db.Where("code = ?", code).First(&inst).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Instrument not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch instrument"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": inst})
}
