package runner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hpc-infra/cluster-acceptor/types"
)

// InvocationWork represents a unit of work that can be executed in parallel
type InvocationWork struct {
	Invocation types.TestInvocation
}

// InvocationWorkResult contains the result of executing an InvocationWork
type InvocationWorkResult struct {
	Work   InvocationWork
	Result *types.TestResult
	Error  error
}

// ParallelExecutor manages parallel invocation execution across multiple workers
type ParallelExecutor struct {
	runner      *runner
	concurrency int
	log         *zap.SugaredLogger
	ui          ProgressIndicator
}

// NewParallelExecutor creates a new parallel executor with validation
func NewParallelExecutor(runner *runner, concurrency int, ui ProgressIndicator) *ParallelExecutor {
	if runner == nil {
		panic("runner cannot be nil")
	}
	if concurrency < 0 {
		panic("concurrency cannot be negative")
	}

	// Each worker may hold an entire cluster; warn on unreasonable values
	if concurrency > 16 {
		runner.log.Warnw("Very high concurrency requested", "concurrency", concurrency,
			"recommendation", "each worker can create its own cluster, consider lower values")
	}

	return &ParallelExecutor{
		runner:      runner,
		concurrency: concurrency,
		log:         runner.log.With("component", "parallel-executor"),
		ui:          ui,
	}
}

// ExecuteInvocations runs the provided invocations in parallel and folds the
// results into the given RunnerResult
func (pe *ParallelExecutor) ExecuteInvocations(ctx context.Context, invocations []types.TestInvocation, result *RunnerResult) error {
	start := time.Now()

	if len(invocations) == 0 {
		pe.log.Debug("No invocations to execute")
		return nil
	}

	if pe.ui != nil {
		pe.initializeProgressTracking(invocations)
	}

	pe.log.Infow("Starting parallel execution",
		"totalInvocations", len(invocations), "concurrency", pe.concurrency)

	// Conservative channel buffering to bound memory regardless of matrix size
	bufferSize := min(pe.concurrency*2, 100)
	workChan := make(chan InvocationWork, bufferSize)
	resultChan := make(chan InvocationWorkResult, bufferSize)

	var wg sync.WaitGroup
	for i := 0; i < pe.concurrency; i++ {
		wg.Add(1)
		go pe.worker(ctx, &wg, workChan, resultChan)
	}

	// Send work to workers
	go func() {
		defer close(workChan)
		for _, inv := range invocations {
			select {
			case workChan <- InvocationWork{Invocation: inv}:
			case <-ctx.Done():
				pe.log.Debug("Context cancelled while sending work items")
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(resultChan)
	}()

	var aggregationErrors []error
	successCount := 0

	for workResult := range resultChan {
		if workResult.Error != nil {
			pe.log.Errorw("Invocation execution failed",
				"invocation", workResult.Work.Invocation.Key(), "error", workResult.Error)
			aggregationErrors = append(aggregationErrors,
				fmt.Errorf("invocation %s failed: %w", workResult.Work.Invocation.Key(), workResult.Error))
			continue
		}

		successCount++
		pe.runner.recordResult(result, workResult.Result)
	}

	if len(aggregationErrors) > 0 {
		pe.log.Errorw("Parallel execution completed with errors",
			"totalErrors", len(aggregationErrors),
			"successfulInvocations", successCount,
			"totalInvocations", len(invocations))

		errorMsg := fmt.Sprintf("parallel execution failed: %d out of %d invocations errored",
			len(aggregationErrors), len(invocations))
		shown := min(len(aggregationErrors), 3)
		for i := 0; i < shown; i++ {
			errorMsg += fmt.Sprintf("\n  %d. %v", i+1, aggregationErrors[i])
		}
		if len(aggregationErrors) > shown {
			errorMsg += fmt.Sprintf("\n  ... and %d more errors", len(aggregationErrors)-shown)
		}
		return fmt.Errorf("%s", errorMsg)
	}

	pe.log.Infow("Parallel execution completed",
		"duration", time.Since(start),
		"totalInvocations", len(invocations),
		"completed", successCount)

	return nil
}

// worker is a goroutine that processes invocation work items.
// It safely handles context cancellation and channel operations.
func (pe *ParallelExecutor) worker(ctx context.Context, wg *sync.WaitGroup, workChan <-chan InvocationWork, resultChan chan<- InvocationWorkResult) {
	defer wg.Done()

	workerID := fmt.Sprintf("worker-%p", wg)
	pe.log.Debugw("Worker starting", "workerID", workerID)
	defer pe.log.Debugw("Worker exiting", "workerID", workerID)

	for {
		select {
		case work, ok := <-workChan:
			if !ok {
				return // Channel closed, worker should exit
			}

			key := work.Invocation.Key()
			pe.log.Debugw("Worker processing invocation", "workerID", workerID, "invocation", key)

			if pe.ui != nil {
				pe.ui.StartTest(key)
			}

			invResult, err := pe.runner.RunInvocation(ctx, work.Invocation)
			if err != nil {
				pe.log.Errorw("Invocation failed in worker",
					"workerID", workerID, "invocation", key, "error", err)
			}

			if pe.ui != nil && invResult != nil {
				pe.ui.UpdateTest(key, invResult.Status)
			}

			select {
			case resultChan <- InvocationWorkResult{Work: work, Result: invResult, Error: err}:
			case <-ctx.Done():
				pe.log.Debugw("Context cancelled while sending result",
					"workerID", workerID, "invocation", key)
				return
			}

		case <-ctx.Done():
			pe.log.Debugw("Worker received context cancellation", "workerID", workerID)
			return
		}
	}
}

// initializeProgressTracking announces per-suite totals before any worker starts
func (pe *ParallelExecutor) initializeProgressTracking(invocations []types.TestInvocation) {
	suiteGroups := make(map[string][]types.TestInvocation)
	for _, inv := range invocations {
		suiteGroups[inv.Suite] = append(suiteGroups[inv.Suite], inv)
	}
	for suiteName, suiteInvs := range suiteGroups {
		pe.ui.StartSuite(suiteName, len(suiteInvs))
	}
}
