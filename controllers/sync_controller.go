package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"kline_backend/middleware"
	"kline_backend/models"
	"kline_backend/services/ingestion"
	"kline_backend/services/joblog"
	"kline_backend/services/stream"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// SyncController exposes the ingestion pipeline triggers and status
type SyncController struct {
	db          *gorm.DB
	coordinator *ingestion.Coordinator
	recorder    *joblog.Recorder
	hub         *stream.Hub
}

// NewSyncController creates a new sync controller
func NewSyncController(db *gorm.DB, coordinator *ingestion.Coordinator, recorder *joblog.Recorder, hub *stream.Hub) *SyncController {
	return &SyncController{
		db:          db,
		coordinator: coordinator,
		recorder:    recorder,
		hub:         hub,
	}
}

// StartBulkRefresh triggers a full-universe refresh in the background
// POST /api/v1/sync/all
func (sc *SyncController) StartBulkRefresh(c *gin.Context) {
	if err := sc.coordinator.StartBulkRefresh(); err != nil {
		if errors.Is(err, ingestion.ErrSyncInProgress) {
			c.JSON(http.StatusConflict, gin.H{
				"error":   "conflict",
				"message": "A sync is already in progress",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"message": "Sync started"})
}

// StartSingleRefresh refreshes one instrument synchronously and returns
// its outcome. Runs independently of the bulk job status.
// POST /api/v1/sync/:code
func (sc *SyncController) StartSingleRefresh(c *gin.Context) {
	code := c.Param("code")
	if code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Instrument code required"})
		return
	}

	outcome := sc.coordinator.RefreshOne(c.Request.Context(), code)
	c.JSON(http.StatusOK, gin.H{"outcome": outcome})
}

// StartWatchlistRefresh triggers a background refresh restricted to the
// caller's watchlist
// POST /api/v1/sync/watchlist
func (sc *SyncController) StartWatchlistRefresh(c *gin.Context) {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var codes []string
	if err := sc.db.Model(&models.WatchlistEntry{}).
		Where("user_id = ?", userID).
		Order("code ASC").
		Pluck("code", &codes).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load watchlist"})
		return
	}

	if len(codes) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Watchlist is empty"})
		return
	}

	if err := sc.coordinator.StartFilteredRefresh(codes); err != nil {
		if errors.Is(err, ingestion.ErrSyncInProgress) {
			c.JSON(http.StatusConflict, gin.H{
				"error":   "conflict",
				"message": "A sync is already in progress",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"message": "Watchlist sync started",
		"count":   len(codes),
	})
}

// GetStatus returns a snapshot of the shared job status
// GET /api/v1/sync/status
func (sc *SyncController) GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, sc.coordinator.Status())
}

// Cancel requests cancellation of the running bulk job
// POST /api/v1/sync/cancel
func (sc *SyncController) Cancel(c *gin.Context) {
	if !sc.coordinator.Cancel() {
		c.JSON(http.StatusConflict, gin.H{
			"error":   "conflict",
			"message": "No sync in progress",
		})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"message": "Cancel requested"})
}

// GetHistory returns recent sync run reports from the audit log
// GET /api/v1/sync/history?limit=N
func (sc *SyncController) GetHistory(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	runs, err := sc.recorder.RecentRuns(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load sync history"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":    runs,
		"enabled": sc.recorder.Enabled(),
	})
}

// StreamStatus upgrades to a websocket pushing job status snapshots
// GET /ws/sync
func (sc *SyncController) StreamStatus(c *gin.Context) {
	sc.hub.ServeWS(c.Writer, c.Request)
}
