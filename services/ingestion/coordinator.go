package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"kline_backend/models"
	"kline_backend/services/marketdata"
)

// DefaultWorkers is the fixed concurrency of the bulk refresh pool
const DefaultWorkers = 10

// ErrSyncInProgress is returned when a bulk refresh is requested while one
// is already running
var ErrSyncInProgress = errors.New("sync already in progress")

// Fetcher retrieves one instrument's daily history from the market data
// source
type Fetcher interface {
	FetchDaily(ctx context.Context, code string) ([]models.BarRecord, error)
}

// Store is the slice of the history store the coordinator needs: atomic
// per-instrument replacement and universe enumeration.
type Store interface {
	Replace(code string, bars []models.BarRecord) error
	ListActiveCodes() ([]string, error)
}

// RunReport summarizes one finished bulk refresh for the audit log
type RunReport struct {
	StartedAt  time.Time `bson:"started_at" json:"started_at"`
	FinishedAt time.Time `bson:"finished_at" json:"finished_at"`
	Total      int       `bson:"total" json:"total"`
	Success    int       `bson:"success" json:"success"`
	NoData     int       `bson:"no_data" json:"no_data"`
	Failed     int       `bson:"failed" json:"failed"`
	Canceled   bool      `bson:"canceled" json:"canceled"`
	Message    string    `bson:"message" json:"message"`
}

// RunRecorder persists finished run reports. Recording is best effort and
// never blocks the job outcome.
type RunRecorder interface {
	RecordRun(report RunReport)
}

// Coordinator orchestrates the bounded worker pool that refreshes stored
// history. Per-instrument advisory locks serialize writers so a single
// refresh can never race a bulk worker on the same instrument.
type Coordinator struct {
	fetcher Fetcher
	store   Store
	tracker *ProgressTracker
	workers int
	locks   instrumentLocks

	mu     sync.Mutex
	cancel context.CancelFunc
	gen    uint64

	notify   func(JobStatus)
	recorder RunRecorder
}

// NewCoordinator creates a coordinator with the given worker count.
// workers <= 0 selects DefaultWorkers.
func NewCoordinator(fetcher Fetcher, store Store, tracker *ProgressTracker, workers int) *Coordinator {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Coordinator{
		fetcher: fetcher,
		store:   store,
		tracker: tracker,
		workers: workers,
	}
}

// SetNotifier registers a callback invoked with every status change of a
// bulk job. Used to push snapshots to websocket subscribers.
func (c *Coordinator) SetNotifier(fn func(JobStatus)) {
	c.notify = fn
}

// SetRunRecorder registers an audit sink for finished runs
func (c *Coordinator) SetRunRecorder(r RunRecorder) {
	c.recorder = r
}

// Status returns the current job status snapshot
func (c *Coordinator) Status() JobStatus {
	return c.tracker.Snapshot()
}

// StartBulkRefresh launches a background refresh of the whole instrument
// universe. The call returns immediately; exactly one bulk job may run at a
// time and a second request gets ErrSyncInProgress.
func (c *Coordinator) StartBulkRefresh() error {
	return c.startBulk(nil)
}

// StartFilteredRefresh launches a background refresh restricted to the
// given codes, e.g. a user's watchlist. Shares the single-flight guard and
// progress tracker with the full-universe job.
func (c *Coordinator) StartFilteredRefresh(codes []string) error {
	if len(codes) == 0 {
		return errors.New("no instruments to update")
	}
	return c.startBulk(codes)
}

func (c *Coordinator) startBulk(codes []string) error {
	if !c.tracker.TryStart("fetching instrument list") {
		return ErrSyncInProgress
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	c.gen++
	gen := c.gen
	c.cancel = cancel
	c.mu.Unlock()

	go c.runBulk(ctx, gen, codes)
	return nil
}

// Cancel stops dispatching remaining instruments of the running bulk job.
// In-flight fetches finish; the job then ends with a canceled summary.
// Returns false when no job is running.
func (c *Coordinator) Cancel() bool {
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()

	if cancel == nil || !c.tracker.Snapshot().Running {
		return false
	}
	cancel()
	return true
}

// runBulk is the body of the background job. Individual instrument
// failures are reported through the tracker and never abort the batch;
// only universe enumeration failure ends the job as failed.
func (c *Coordinator) runBulk(ctx context.Context, gen uint64, codes []string) {
	startedAt := time.Now()
	report := RunReport{StartedAt: startedAt}

	// Finish releases the single-flight guard before this cleanup runs, so
	// a newer job may already own the cancel handle. Only clear our own.
	defer func() {
		c.mu.Lock()
		if c.gen == gen {
			c.cancel = nil
		}
		c.mu.Unlock()
	}()

	var err error
	if codes == nil {
		codes, err = c.store.ListActiveCodes()
		if err != nil {
			status := c.tracker.Finish(fmt.Sprintf("update failed: %v", err))
			c.push(status)
			report.FinishedAt = time.Now()
			report.Message = status.Message
			c.record(report)
			log.Printf("Bulk refresh failed to enumerate instruments: %v", err)
			return
		}
	}

	if len(codes) == 0 {
		status := c.tracker.Finish("no instruments to update")
		c.push(status)
		report.FinishedAt = time.Now()
		report.Message = status.Message
		c.record(report)
		return
	}

	total := len(codes)
	report.Total = total
	c.tracker.SetTotal(total)
	c.push(c.tracker.Snapshot())
	log.Printf("Starting bulk refresh of %d instruments with %d workers", total, c.workers)

	jobs := make(chan string)
	results := make(chan string)

	var wg sync.WaitGroup
	for i := 0; i < c.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for code := range jobs {
				results <- c.refreshInstrument(ctx, code)
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, code := range codes {
			select {
			case <-ctx.Done():
				return
			case jobs <- code:
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	// Results arrive in completion order; every one advances progress by
	// exactly one.
	for outcome := range results {
		switch {
		case strings.HasPrefix(outcome, outcomeSuccess):
			report.Success++
		case strings.HasPrefix(outcome, outcomeNoData):
			report.NoData++
		default:
			report.Failed++
		}
		c.push(c.tracker.Step(outcome))
	}

	var status JobStatus
	if ctx.Err() != nil {
		report.Canceled = true
		done := c.tracker.Snapshot().Progress
		status = c.tracker.Finish(fmt.Sprintf("update canceled after %d/%d instruments", done, total))
	} else {
		status = c.tracker.Finish(fmt.Sprintf("all %d instruments updated", total))
	}
	c.push(status)

	report.FinishedAt = time.Now()
	report.Message = status.Message
	c.record(report)
	log.Printf("Bulk refresh finished: success=%d no-data=%d failed=%d canceled=%v elapsed=%s",
		report.Success, report.NoData, report.Failed, report.Canceled,
		report.FinishedAt.Sub(startedAt).Round(time.Millisecond))
}

// Per-instrument outcome prefixes rendered into the job message
const (
	outcomeSuccess = "success"
	outcomeNoData  = "no-data"
	outcomeFailure = "failure"
)

// RefreshOne synchronously refreshes a single instrument and returns its
// outcome string. It does not touch the shared job status, but it takes
// the same per-instrument lock as the bulk workers.
func (c *Coordinator) RefreshOne(ctx context.Context, code string) string {
	return c.refreshInstrument(ctx, code)
}

// refreshInstrument runs fetch -> normalize -> atomic replace for one code
func (c *Coordinator) refreshInstrument(ctx context.Context, code string) string {
	if ctx.Err() != nil {
		return fmt.Sprintf("%s: %s - canceled before dispatch", outcomeFailure, code)
	}

	unlock := c.locks.lock(code)
	defer unlock()

	bars, err := c.fetcher.FetchDaily(ctx, code)
	if err != nil {
		if errors.Is(err, marketdata.ErrEmptyResult) {
			log.Printf("No kline data for %s", code)
			return fmt.Sprintf("%s: %s", outcomeNoData, code)
		}
		log.Printf("Fetch failed for %s: %v", code, err)
		return fmt.Sprintf("%s: %s - %v", outcomeFailure, code, err)
	}

	if err := c.store.Replace(code, bars); err != nil {
		log.Printf("Store failed for %s: %v", code, err)
		return fmt.Sprintf("%s: %s - %v", outcomeFailure, code, err)
	}

	return fmt.Sprintf("%s: %s", outcomeSuccess, code)
}

func (c *Coordinator) push(status JobStatus) {
	if c.notify != nil {
		c.notify(status)
	}
}

func (c *Coordinator) record(report RunReport) {
	if c.recorder != nil {
		c.recorder.RecordRun(report)
	}
}

// instrumentLocks hands out one advisory mutex per instrument code so two
// writers never replace the same history concurrently
type instrumentLocks struct {
	mu sync.Mutex
	m  map[string]*sync.Mutex
}

func (l *instrumentLocks) lock(code string) func() {
	l.mu.Lock()
	if l.m == nil {
		l.m = make(map[string]*sync.Mutex)
	}
	lock, ok := l.m[code]
	if !ok {
		lock = &sync.Mutex{}
		l.m[code] = lock
	}
	l.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}
