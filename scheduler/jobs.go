package scheduler

import (
	"errors"
	"log"
	"time"

	"kline_backend/services/history"
	"kline_backend/services/ingestion"

	"github.com/go-co-op/gocron"
)

// barRetentionYears is how long daily bars are kept before the weekly cleanup
// removes them
const barRetentionYears = 5

// Scheduler manages scheduled jobs
type Scheduler struct {
	cron        *gocron.Scheduler
	store       *history.Store
	coordinator *ingestion.Coordinator
}

// NewScheduler creates a new scheduler instance
func NewScheduler(store *history.Store, coordinator *ingestion.Coordinator) *Scheduler {
	return &Scheduler{
		cron:        gocron.NewScheduler(time.Local),
		store:       store,
		coordinator: coordinator,
	}
}

// Start starts all scheduled jobs
func (s *Scheduler) Start() {
	log.Println("Starting scheduler...")

	// Refresh all histories daily at 16:30, after market close
	s.cron.Every(1).Day().At("16:30").Do(func() {
		if isTradingDay() {
			s.runNightlyRefresh()
		}
	})

	// Prune bars past retention weekly on Sunday at 01:00
	s.cron.Every(1).Week().Sunday().At("01:00").Do(func() {
		s.pruneOldBars()
	})

	s.cron.StartAsync()
	log.Println("Scheduler started successfully")
}

// Stop stops the scheduler
func (s *Scheduler) Stop() {
	s.cron.Stop()
	log.Println("Scheduler stopped")
}

// runNightlyRefresh kicks off the bulk refresh unless one is already running
func (s *Scheduler) runNightlyRefresh() {
	log.Println("Starting nightly history refresh...")

	if err := s.coordinator.StartBulkRefresh(); err != nil {
		if errors.Is(err, ingestion.ErrSyncInProgress) {
			log.Println("Nightly refresh skipped: a sync is already in progress")
			return
		}
		log.Printf("Nightly refresh failed to start: %v", err)
	}
}

// pruneOldBars removes bars older than the retention window
func (s *Scheduler) pruneOldBars() {
	cutoff := time.Now().AddDate(-barRetentionYears, 0, 0)
	removed, err := s.store.PruneBefore(cutoff)
	if err != nil {
		log.Printf("Error pruning old bars: %v", err)
		return
	}
	log.Printf("Pruned %d bars older than %s", removed, cutoff.Format("2006-01-02"))
}

// isTradingDay checks whether the exchange trades today
func isTradingDay() bool {
	weekday := time.Now().Weekday()
	return weekday != time.Saturday && weekday != time.Sunday
}
