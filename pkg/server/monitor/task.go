package monitor

import (
	"sync"
	"time"
)

const maxConsecutiveErrors = 3

// TaskMonitor tracks the health of a periodic background task.
type TaskMonitor struct {
	name   string
	maxAge time.Duration

	mu                sync.RWMutex
	lastSuccess       time.Time
	lastAttempt       time.Time
	consecutiveErrors int
	lastError         string
}

// NewTaskMonitor returns a monitor that reports unhealthy when the task has
// not succeeded within maxAge.
func NewTaskMonitor(name string, maxAge time.Duration) *TaskMonitor {
	if maxAge <= 0 {
		maxAge = time.Hour
	}
	return &TaskMonitor{name: name, maxAge: maxAge}
}

// Name returns the task name.
func (tm *TaskMonitor) Name() string {
	return tm.name
}

// RecordSuccess records a successful run.
func (tm *TaskMonitor) RecordSuccess() {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	now := time.Now()
	tm.lastSuccess = now
	tm.lastAttempt = now
	tm.consecutiveErrors = 0
	tm.lastError = ""
}

// RecordFailure records a failed run.
func (tm *TaskMonitor) RecordFailure(err error) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	tm.lastAttempt = time.Now()
	tm.consecutiveErrors++
	if err != nil {
		tm.lastError = err.Error()
	}
}

// IsHealthy returns true if the task is working properly.
// Unhealthy conditions:
//   - Never succeeded
//   - Haven't succeeded within maxAge
//   - More than 3 consecutive failures
func (tm *TaskMonitor) IsHealthy() bool {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	return tm.healthy()
}

func (tm *TaskMonitor) healthy() bool {
	switch {
	case tm.lastSuccess.IsZero():
		return false
	case time.Since(tm.lastSuccess) > tm.maxAge:
		return false
	case tm.consecutiveErrors > maxConsecutiveErrors:
		return false
	}
	return true
}

// TaskStatus is the health check view of a task.
type TaskStatus struct {
	Name              string `json:"name"`
	Healthy           bool   `json:"healthy"`
	LastSuccess       string `json:"last_success,omitempty"`
	TimeSinceSuccess  string `json:"time_since_success,omitempty"`
	LastAttempt       string `json:"last_attempt,omitempty"`
	ConsecutiveErrors int    `json:"consecutive_errors,omitempty"`
	LastError         string `json:"last_error,omitempty"`
}

// Status returns current task status for health checks.
func (tm *TaskMonitor) Status() TaskStatus {
	tm.mu.RLock()
	defer tm.mu.RUnlock()

	status := TaskStatus{
		Name:    tm.name,
		Healthy: tm.healthy(),
	}

	if !tm.lastSuccess.IsZero() {
		status.LastSuccess = tm.lastSuccess.Format(time.RFC3339)
		status.TimeSinceSuccess = time.Since(tm.lastSuccess).Round(time.Second).String()
	}

	if !tm.lastAttempt.IsZero() {
		status.LastAttempt = tm.lastAttempt.Format(time.RFC3339)
	}

	if tm.consecutiveErrors > 0 {
		status.ConsecutiveErrors = tm.consecutiveErrors
		status.LastError = tm.lastError
	}

	return status
}
