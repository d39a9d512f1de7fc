package controllers

import (
	"errors"
	"net/http"

	"kline_backend/middleware"
	"kline_backend/models"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// WatchlistController manages per-user instrument watchlists
type WatchlistController struct {
	db *gorm.DB
}

// NewWatchlistController creates a new watchlist controller
func NewWatchlistController(db *gorm.DB) *WatchlistController {
	return &WatchlistController{db: db}
}

// GetWatchlist lists the caller's entries
// GET /api/v1/watchlist
func (wc *WatchlistController) GetWatchlist(c *gin.Context) {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var entries []models.WatchlistEntry
	if err := wc.db.Where("user_id = ?", userID).Order("code ASC").Find(&entries).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch watchlist"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": entries})
}

type addWatchlistRequest struct {
	Code  string `json:"code" binding:"required"`
	Notes string `json:"notes"`
}

// AddEntry adds an instrument to the caller's watchlist
// POST /api/v1/watchlist
func (wc *WatchlistController) AddEntry(c *gin.Context) {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var req addWatchlistRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	// Only catalog instruments can be watched
	var inst models.Instrument
	if err := wc.db.Where("code = ?", req.Code).First(&inst).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Unknown instrument code"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to look up instrument"})
		return
	}

	entry := models.WatchlistEntry{
		UserID: userID,
		Code:   req.Code,
		Notes:  req.Notes,
	}
	if err := wc.db.Create(&entry).Error; err != nil {
		// The (user_id, code) unique index rejects duplicates
		c.JSON(http.StatusConflict, gin.H{"error": "Instrument already on watchlist"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": entry})
}

// RemoveEntry removes an instrument from the caller's watchlist
// DELETE /api/v1/watchlist/:code
func (wc *WatchlistController) RemoveEntry(c *gin.Context) {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	code := c.Param("code")
	result := wc.db.Where("user_id = ? AND code = ?", userID, code).Delete(&models.WatchlistEntry{})
	if result.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to remove entry"})
		return
	}
	if result.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Entry not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Entry removed"})
}
