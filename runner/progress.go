package runner

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hpc-infra/cluster-acceptor/types"
)

// ProgressIndicator interface for UI updates
type ProgressIndicator interface {
	StartSuite(suiteName string, totalInvocations int)
	StartTest(invocationKey string)
	UpdateTest(invocationKey string, status types.TestStatus)
	CompleteSuite(suiteName string)
}

// noOpProgressIndicator provides a no-op implementation of ProgressIndicator
type noOpProgressIndicator struct{}

// NewNoOpProgressIndicator creates a progress indicator that does nothing
func NewNoOpProgressIndicator() ProgressIndicator {
	return &noOpProgressIndicator{}
}

func (n *noOpProgressIndicator) StartSuite(suiteName string, totalInvocations int)      {}
func (n *noOpProgressIndicator) StartTest(invocationKey string)                         {}
func (n *noOpProgressIndicator) UpdateTest(invocationKey string, status types.TestStatus) {}
func (n *noOpProgressIndicator) CompleteSuite(suiteName string)                         {}

// consoleProgressIndicator provides a console-based progress indicator.
// Cluster tests routinely run for an hour, so a periodic heartbeat with the
// longest-running invocations is worth the noise.
type consoleProgressIndicator struct {
	logger *zap.SugaredLogger
	ticker *time.Ticker
	stopCh chan struct{}
	mu     sync.RWMutex

	currentSuite    string
	completedTests  int
	totalTests      int
	suiteStartTime  time.Time

	// Track currently running invocations
	runningTests map[string]time.Time // invocation key -> start time

	lastUpdateTime time.Time
}

// NewConsoleProgressIndicator creates a progress indicator that shows updates in the console
func NewConsoleProgressIndicator(logger *zap.SugaredLogger, updateInterval time.Duration) ProgressIndicator {
	if updateInterval == 0 {
		updateInterval = 30 * time.Second
	}

	indicator := &consoleProgressIndicator{
		logger:       logger,
		ticker:       time.NewTicker(updateInterval),
		stopCh:       make(chan struct{}),
		runningTests: make(map[string]time.Time),
	}

	go indicator.progressReporter()

	return indicator
}

func (c *consoleProgressIndicator) StartSuite(suiteName string, totalInvocations int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.currentSuite = suiteName
	c.totalTests = totalInvocations
	c.completedTests = 0
	c.suiteStartTime = time.Now()
	c.lastUpdateTime = time.Now()
	c.runningTests = make(map[string]time.Time) // Reset running invocations

	c.logger.Infow("Starting suite", "suite", suiteName, "totalInvocations", totalInvocations)
}

// StartTest tracks when an invocation starts running
func (c *consoleProgressIndicator) StartTest(invocationKey string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.runningTests[invocationKey] = time.Now()
	c.logger.Debugw("Invocation started", "invocation", invocationKey, "running", len(c.runningTests))
}

func (c *consoleProgressIndicator) UpdateTest(invocationKey string, status types.TestStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.runningTests, invocationKey)

	c.completedTests++
	c.lastUpdateTime = time.Now()

	// Log individual completions at debug level to avoid spam
	c.logger.Debugw("Invocation completed",
		"invocation", invocationKey,
		"status", status,
		"completed", c.completedTests,
		"total", c.totalTests,
		"running", len(c.runningTests))
}

func (c *consoleProgressIndicator) CompleteSuite(suiteName string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	duration := time.Since(c.suiteStartTime).Truncate(time.Second)
	c.logger.Infow("Completed suite",
		"suite", suiteName,
		"totalInvocations", c.totalTests,
		"completed", c.completedTests,
		"duration", duration)
	c.currentSuite = ""
}

// progressReporter runs in a goroutine and periodically reports progress
func (c *consoleProgressIndicator) progressReporter() {
	for {
		select {
		case <-c.ticker.C:
			c.reportProgress()
		case <-c.stopCh:
			return
		}
	}
}

func (c *consoleProgressIndicator) reportProgress() {
	c.mu.RLock()
	defer c.mu.RUnlock()

	detailsStr := formatRunningTests(c.runningTests, 3)

	var percentComplete float64
	if c.totalTests > 0 {
		percentComplete = float64(c.completedTests) * 100.0 / float64(c.totalTests)
	}

	c.logger.Infow("Progress update",
		"suite", c.currentSuite,
		"completed", c.completedTests,
		"total", c.totalTests,
		"percent", fmt.Sprintf("%.1f%%", percentComplete),
		"numRunning", len(c.runningTests),
		"longestRunning", detailsStr,
	)
}

// Stop stops the progress indicator
func (c *consoleProgressIndicator) Stop() {
	if c.ticker != nil {
		c.ticker.Stop()
	}
	close(c.stopCh)
}

// Helper function that formats running invocations into a display string
func formatRunningTests(runningTests map[string]time.Time, maxShow int) string {
	if len(runningTests) == 0 {
		return ""
	}

	type runningTest struct {
		name     string
		duration time.Duration
	}

	var running []runningTest
	now := time.Now()
	for key, startTime := range runningTests {
		running = append(running, runningTest{
			name:     key,
			duration: now.Sub(startTime),
		})
	}

	// Sort by duration (longest running first)
	sort.Slice(running, func(i, j int) bool {
		return running[i].duration > running[j].duration
	})

	var runningStrs []string
	for i, test := range running {
		if i >= maxShow {
			break
		}
		duration := test.duration.Truncate(time.Second)
		runningStrs = append(runningStrs, fmt.Sprintf("%s (%v)", test.name, duration))
	}

	if len(running) > maxShow {
		runningStrs = append(runningStrs, fmt.Sprintf("+%d more", len(running)-maxShow))
	}

	return strings.Join(runningStrs, ", ")
}
