package graph

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// defaultWarningRatio is the share of an operation's timeout after which a
// successful run is still logged as slow
const defaultWarningRatio = 0.8

// TimeoutStats tracks executions of one store operation
type TimeoutStats struct {
	Operation       string
	TotalExecutions int
	TimeoutCount    int
	FailureCount    int
	AverageDuration time.Duration
	MaxDuration     time.Duration
}

// TimeoutMonitor bounds store operations by their transaction timeout and
// logs failed, timed-out and slow runs
type TimeoutMonitor struct {
	logger       *logrus.Entry
	warningRatio float64

	mu    sync.Mutex
	stats map[string]*TimeoutStats
}

// NewTimeoutMonitor creates a monitor with default settings
func NewTimeoutMonitor(logger *logrus.Entry) *TimeoutMonitor {
	return &TimeoutMonitor{
		logger:       logger.WithField("component", "timeout_monitor"),
		warningRatio: defaultWarningRatio,
		stats:        make(map[string]*TimeoutStats),
	}
}

// Run executes fn with a context limited to the operation's configured
// timeout and records how long it took
func (tm *TimeoutMonitor) Run(ctx context.Context, operation string, fn func(context.Context) error) error {
	timeout := GetConfigForOperation(operation).Timeout
	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	err := fn(timeoutCtx)
	duration := time.Since(start)

	timedOut := err != nil && timeoutCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil
	tm.record(operation, duration, err != nil, timedOut)

	fields := logrus.Fields{
		"operation":        operation,
		"duration_seconds": duration.Seconds(),
		"timeout_seconds":  timeout.Seconds(),
	}
	switch {
	case timedOut:
		tm.logger.WithFields(fields).Error("operation timed out")
	case err != nil:
		tm.logger.WithFields(fields).WithError(err).Debug("operation failed")
	case duration >= time.Duration(float64(timeout)*tm.warningRatio):
		fields["percent_used"] = duration.Seconds() / timeout.Seconds() * 100
		tm.logger.WithFields(fields).Warn("operation approaching timeout")
	}
	return err
}

func (tm *TimeoutMonitor) record(operation string, duration time.Duration, failed, timedOut bool) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	stats := tm.stats[operation]
	if stats == nil {
		stats = &TimeoutStats{Operation: operation}
		tm.stats[operation] = stats
	}

	stats.TotalExecutions++
	if failed {
		stats.FailureCount++
	}
	if timedOut {
		stats.TimeoutCount++
	}

	total := stats.AverageDuration.Nanoseconds()*int64(stats.TotalExecutions-1) + duration.Nanoseconds()
	stats.AverageDuration = time.Duration(total / int64(stats.TotalExecutions))
	if duration > stats.MaxDuration {
		stats.MaxDuration = duration
	}
}

// Stats returns a copy of the statistics for an operation
func (tm *TimeoutMonitor) Stats(operation string) (TimeoutStats, bool) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	stats, ok := tm.stats[operation]
	if !ok {
		return TimeoutStats{}, false
	}
	return *stats, true
}

// LogSummary logs the collected statistics at debug level
func (tm *TimeoutMonitor) LogSummary() {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	for operation, stats := range tm.stats {
		tm.logger.WithFields(logrus.Fields{
			"operation":            operation,
			"total_executions":     stats.TotalExecutions,
			"failures":             stats.FailureCount,
			"timeouts":             stats.TimeoutCount,
			"avg_duration_seconds": stats.AverageDuration.Seconds(),
			"max_duration_seconds": stats.MaxDuration.Seconds(),
		}).Debug("operation stats")
	}
}
