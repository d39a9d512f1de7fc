package routes

import (
	"kline_backend/config"
	"kline_backend/controllers"
	"kline_backend/middleware"
	"kline_backend/services/forecast"
	"kline_backend/services/history"
	"kline_backend/services/ingestion"
	"kline_backend/services/joblog"
	"kline_backend/services/kline"
	"kline_backend/services/stream"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Services bundles the shared service instances the routes expose
type Services struct {
	Store       *history.Store
	Coordinator *ingestion.Coordinator
	Recorder    *joblog.Recorder
	Hub         *stream.Hub
	Forecaster  *forecast.Service
}

// SetupRoutes sets up all API routes
func SetupRoutes(router *gin.Engine, db *gorm.DB, svc *Services) {
	klineService := kline.NewService(svc.Store, svc.Forecaster)

	klineController := controllers.NewKlineController(klineService)
	instrumentController := controllers.NewInstrumentController(db)
	syncController := controllers.NewSyncController(db, svc.Coordinator, svc.Recorder, svc.Hub)
	userController := controllers.NewUserController(db)
	watchlistController := controllers.NewWatchlistController(db)

	auth := middleware.JWTAuthMiddleware(config.AppConfig.JWTSecret)

	// API v1 group
	api := router.Group("/api/v1")
	{
		// Auth routes
		authRoutes := api.Group("/auth")
		{
			authRoutes.POST("/register", userController.Register)
			authRoutes.POST("/login", middleware.LoginRateLimitMiddleware(), userController.Login)
		}

		// Instrument catalog and kline views
		stocks := api.Group("/stocks")
		{
			stocks.GET("", instrumentController.GetInstruments)
			stocks.GET("/:code", instrumentController.GetInstrument)
			stocks.GET("/:code/kline", klineController.GetKline)
		}

		// Sync pipeline triggers and status
		sync := api.Group("/sync")
		{
			sync.POST("/all", syncController.StartBulkRefresh)
			sync.POST("/cancel", syncController.Cancel)
			sync.GET("/status", syncController.GetStatus)
			sync.GET("/history", syncController.GetHistory)
			sync.POST("/watchlist", auth, syncController.StartWatchlistRefresh)
			sync.POST("/:code", syncController.StartSingleRefresh)
		}

		// Watchlist routes (authenticated)
		watchlist := api.Group("/watchlist", auth)
		{
			watchlist.GET("", watchlistController.GetWatchlist)
			watchlist.POST("", watchlistController.AddEntry)
			watchlist.DELETE("/:code", watchlistController.RemoveEntry)
		}
	}

	// Live job progress stream
	router.GET("/ws/sync", syncController.StreamStatus)
}
