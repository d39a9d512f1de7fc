package ingestion

import (
	"fmt"
	"sync"
)

// JobStatus is a point-in-time snapshot of the bulk refresh job
type JobStatus struct {
	Running  bool   `json:"running"`
	Progress int    `json:"progress"`
	Total    int    `json:"total"`
	Message  string `json:"message"`
}

// ProgressTracker is the single shared job-status record. The coordinator
// is the only writer; any number of pollers read snapshots. All updates go
// through the mutex so concurrent worker completions never lose a count.
type ProgressTracker struct {
	mu     sync.Mutex
	status JobStatus
}

// NewProgressTracker creates an idle tracker
func NewProgressTracker() *ProgressTracker {
	return &ProgressTracker{}
}

// TryStart flips the running flag if no job is active. Returns false when
// another job already holds it, which the caller reports as a conflict.
func (t *ProgressTracker) TryStart(message string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status.Running {
		return false
	}
	t.status = JobStatus{
		Running: true,
		Message: message,
	}
	return true
}

// SetTotal records the size of the instrument set once enumeration succeeds
func (t *ProgressTracker) SetTotal(total int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status.Total = total
}

// Step records one completed instrument: progress advances by exactly one
// and the message is overwritten with "(done/total) <outcome>". Completion
// order is whatever the workers produce; only the count is deterministic.
func (t *ProgressTracker) Step(outcome string) JobStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status.Progress++
	t.status.Message = fmt.Sprintf("(%d/%d) %s", t.status.Progress, t.status.Total, outcome)
	return t.status
}

// Finish clears the running flag unconditionally and leaves a terminal
// summary. Called on success, enumeration failure, and cancellation alike.
func (t *ProgressTracker) Finish(message string) JobStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status.Running = false
	t.status.Message = message
	return t.status
}

// Snapshot returns a copy of the current status
func (t *ProgressTracker) Snapshot() JobStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}
