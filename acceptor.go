// Package acceptor runs a templated YAML test matrix against a cluster
// integration-test harness and reports aggregated results.
package acceptor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/urfave/cli/v2"

	"github.com/hpc-infra/cluster-acceptor/awspreflight"
	"github.com/hpc-infra/cluster-acceptor/exitcodes"
	"github.com/hpc-infra/cluster-acceptor/logging"
	"github.com/hpc-infra/cluster-acceptor/metrics"
	"github.com/hpc-infra/cluster-acceptor/registry"
	"github.com/hpc-infra/cluster-acceptor/runner"
	"github.com/hpc-infra/cluster-acceptor/types"
)

// acceptor is a matrix acceptance tester that runs harness invocations.
type acceptor struct {
	ctx      context.Context
	config   *Config
	version  string
	registry *registry.Registry
	runner   runner.TestRunner
	result   *runner.RunnerResult

	running atomic.Bool
	done    chan struct{}
	wg      sync.WaitGroup

	shutdownCallback func(error) // Callback to signal application shutdown
}

func New(ctx context.Context, config *Config, version string, shutdownCallback func(error)) (*acceptor, error) {
	if config == nil {
		return nil, errors.New("config is required")
	}

	config.Log.Debugw("Creating acceptor with config",
		"matrixConfig", config.MatrixConfig,
		"constantsFile", config.ConstantsFile,
		"targetSuite", config.TargetSuite,
		"runInterval", config.RunInterval,
		"runOnce", config.RunOnce,
		"concurrency", config.Concurrency)

	reg, err := registry.NewRegistry(registry.Config{
		Log:              config.Log,
		MatrixConfigFile: config.MatrixConfig,
		ConstantsFile:    config.ConstantsFile,
		Vars:             config.Vars,
		TestDir:          config.TestDir,
		DefaultTimeout:   config.DefaultTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create registry: %w", err)
	}

	var preflight *awspreflight.Checker
	if config.Preflight {
		preflight, err = awspreflight.NewChecker(config.Log)
		if err != nil {
			return nil, fmt.Errorf("failed to create preflight checker: %w", err)
		}
	}

	var progress runner.ProgressIndicator
	if config.ShowProgress {
		progress = runner.NewConsoleProgressIndicator(config.Log, config.ProgressInterval)
	}

	workDir := config.TestDir
	if workDir == "" {
		workDir, err = os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to determine working directory: %w", err)
		}
	}

	// Create runner with registry
	testRunner, err := runner.NewTestRunner(runner.Config{
		Registry:      reg,
		TargetSuite:   config.TargetSuite,
		Filter:        config.Filter,
		WorkDir:       workDir,
		Log:           config.Log,
		HarnessBinary: config.HarnessBinary,
		Concurrency:   config.Concurrency,
		Preflight:     preflight,
		Progress:      progress,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create test runner: %w", err)
	}
	config.Log.Infow("acceptor.New: created registry and test runner")

	return &acceptor{
		ctx:              ctx,
		config:           config,
		version:          version,
		registry:         reg,
		runner:           testRunner,
		done:             make(chan struct{}),
		shutdownCallback: shutdownCallback,
	}, nil
}

// Start runs the matrix periodically at the configured interval, or exactly
// once in run-once mode.
func (a *acceptor) Start(ctx context.Context) error {
	// Set up panic recovery to ensure we exit with code 2 for runtime errors
	defer func() {
		if r := recover(); r != nil {
			a.config.Log.Errorw("Runtime error occurred", "error", r)
			os.Exit(exitcodes.RuntimeErr)
		}
	}()

	a.ctx = ctx
	a.done = make(chan struct{})
	a.running.Store(true)

	if a.config.RunOnce {
		a.config.Log.Infow("Starting cluster-acceptor in run-once mode")
	} else {
		a.config.Log.Infow("Starting cluster-acceptor in continuous mode", "interval", a.config.RunInterval)
	}

	// Run the matrix immediately on startup
	err := a.runMatrix(ctx)
	if err != nil {
		// For runtime errors (like panics or configuration issues), return exit code 2
		a.config.Log.Errorw("Runtime error running matrix", "error", err)
		return cli.Exit(err.Error(), exitcodes.RuntimeErr)
	}

	// If in run-once mode, trigger shutdown and return
	if a.config.RunOnce {
		a.config.Log.Infow("Matrix run completed, exiting (run-once mode)")

		// Check if any invocations failed and return the appropriate exit code
		if a.result != nil && a.result.Status != types.TestStatusPass && a.result.Status != types.TestStatusSkip {
			a.config.Log.Warnw("Run-once matrix run completed with failures, returning exit code 1")
			// Return exit code 1 for test failures (assertions failed)
			return NewTestFailureError(a.result.String())
		}

		// Only need to call this when we're in run-once mode and all tests passed
		go func() {
			a.shutdownCallback(nil)
		}()
		return nil // Success (exit code 0)
	}

	// Start a goroutine for periodic matrix runs
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.config.Log.Debugw("Starting periodic matrix runner goroutine", "interval", a.config.RunInterval)

		for {
			select {
			case <-time.After(a.config.RunInterval):
				// Check if we should still be running
				if !a.running.Load() {
					a.config.Log.Debugw("Service stopped, exiting periodic matrix runner")
					return
				}

				a.config.Log.Infow("Running periodic matrix")
				if err := a.runMatrix(ctx); err != nil {
					a.config.Log.Errorw("Error running periodic matrix", "error", err)
				}
				a.config.Log.Infow("Matrix run interval", "interval", a.config.RunInterval)

			case <-a.done:
				a.config.Log.Debugw("Done signal received, stopping periodic matrix runner")
				return

			case <-ctx.Done():
				a.config.Log.Debugw("Context canceled, stopping periodic matrix runner")
				a.running.Store(false)
				return
			}
		}
	}()
	a.config.Log.Debugw("cluster-acceptor started successfully")
	return nil
}

// runMatrix runs the whole matrix once and processes the results.
// Each run gets its own run ID and log directory.
func (a *acceptor) runMatrix(ctx context.Context) error {
	runID := uuid.New().String()
	fileLogger, err := logging.NewFileLogger(a.config.LogDir, runID, a.config.MatrixConfig)
	if err != nil {
		return NewRuntimeError(fmt.Errorf("failed to create file logger: %w", err))
	}
	if rwl, ok := a.runner.(runner.TestRunnerWithFileLogger); ok {
		rwl.SetFileLogger(fileLogger)
	}

	a.config.Log.Infow("Running matrix...", "run_id", runID)
	result, err := a.runner.RunAllTests(ctx)
	if err != nil {
		// Flush whatever was logged before the run broke, then surface the
		// runtime error (not a test failure)
		if cerr := fileLogger.Complete(runID); cerr != nil {
			a.config.Log.Warnw("Failed to flush run artifacts", "run_id", runID, "error", cerr)
		}
		a.config.Log.Errorw("Runtime error running matrix", "error", err)
		return NewRuntimeError(err)
	}
	a.result = result

	// Flush the sinks so the summary and HTML report land in the run directory
	if err := fileLogger.Complete(result.RunID); err != nil {
		a.config.Log.Warnw("Failed to flush run artifacts", "run_id", result.RunID, "error", err)
	}

	a.printResultsTable(result.RunID)
	fmt.Println(a.result.String())
	if logDir, err := fileLogger.GetDirectoryForRunID(result.RunID); err == nil {
		fmt.Printf("Invocation logs: %s\n", logDir)
	}
	a.config.Log.Infow("Matrix run completed", "run_id", result.RunID, "status", a.result.Status)
	return nil
}

// Stop stops the cluster-acceptor service.
func (a *acceptor) Stop(ctx context.Context) error {
	a.config.Log.Infow("Stopping cluster-acceptor")

	// Check if we're already stopped
	if !a.running.Load() {
		a.config.Log.Debugw("Service already stopped, nothing to do")
		return nil
	}

	// Update running state first to prevent new matrix runs
	a.running.Store(false)

	// Signal goroutines to exit
	a.config.Log.Debugw("Sending done signal to goroutines")
	close(a.done)

	a.config.Log.Infow("cluster-acceptor stopped successfully")
	return nil
}

// Stopped returns true if the cluster-acceptor service is stopped.
func (a *acceptor) Stopped() bool {
	return !a.running.Load()
}

// printResultsTable prints the results of the matrix run to the console.
func (a *acceptor) printResultsTable(runID string) {
	a.config.Log.Infow("Printing results...")
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle(fmt.Sprintf("Matrix Run Results (%s)", formatDuration(a.result.Duration)))

	// Configure columns
	t.AppendHeader(table.Row{
		"Type", "ID", "Duration", "Invocations", "Passed", "Failed", "Skipped", "Errored", "Status", "Error",
	})

	// Set column configurations for better readability
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Type", AutoMerge: true},
		{Name: "ID", WidthMax: 50, WidthMaxEnforcer: text.WrapSoft},
		{Name: "Duration", Align: text.AlignRight},
		{Name: "Invocations", Align: text.AlignRight},
		{Name: "Passed", Align: text.AlignRight},
		{Name: "Failed", Align: text.AlignRight},
		{Name: "Skipped", Align: text.AlignRight},
		{Name: "Errored", Align: text.AlignRight},
		{Name: "Error", WidthMax: 80, WidthMaxEnforcer: text.WrapSoft},
	})

	// Print suites and their results
	for _, suiteName := range sortedMapKeys(a.result.Suites) {
		suite := a.result.Suites[suiteName]

		// Suite row - show invocation counts but don't count the suite itself
		t.AppendRow(table.Row{
			"Suite",
			suite.ID,
			formatDuration(suite.Duration),
			"-",
			suite.Stats.Passed,
			suite.Stats.Failed,
			suite.Stats.Skipped,
			suite.Stats.Errored,
			getResultString(suite.Status),
			"",
		})

		// Print cases in this suite
		caseNames := sortedMapKeys(suite.Cases)
		for i, caseName := range caseNames {
			testCase := suite.Cases[caseName]

			prefix := "├──"
			if i == len(caseNames)-1 {
				prefix = "└──"
			}

			t.AppendRow(table.Row{
				"Case",
				fmt.Sprintf("%s %s", prefix, caseName),
				formatDuration(testCase.Duration),
				"-",
				testCase.Stats.Passed,
				testCase.Stats.Failed,
				testCase.Stats.Skipped,
				testCase.Stats.Errored,
				getResultString(testCase.Status),
				"",
			})

			// Print each dimension point of the case
			dimLabels := sortedMapKeys(testCase.Invocations)
			for j, dimLabel := range dimLabels {
				inv := testCase.Invocations[dimLabel]

				subPrefix := "│   ├──"
				if i == len(caseNames)-1 {
					subPrefix = "    ├──"
				}
				if j == len(dimLabels)-1 {
					if i == len(caseNames)-1 {
						subPrefix = "    └──"
					} else {
						subPrefix = "│   └──"
					}
				}

				// Extract key error information
				errorMsg := extractKeyErrorMessage(inv.Error)

				t.AppendRow(table.Row{
					"",
					fmt.Sprintf("%s %s", subPrefix, dimLabel),
					formatDuration(inv.Duration),
					"1", // Count actual invocations
					boolToInt(inv.Status == types.TestStatusPass),
					boolToInt(inv.Status == types.TestStatusFail),
					boolToInt(inv.Status == types.TestStatusSkip),
					boolToInt(inv.Status == types.TestStatusError),
					getResultString(inv.Status),
					errorMsg,
				})
			}
		}

		t.AppendSeparator()
	}

	// Update the table style setting based on result status
	if a.result.Status == types.TestStatusPass {
		t.SetStyle(table.StyleColoredBlackOnGreenWhite)
	} else if a.result.Status == types.TestStatusSkip {
		t.SetStyle(table.StyleColoredBlackOnYellowWhite)
	} else {
		t.SetStyle(table.StyleColoredBlackOnRedWhite)
	}

	// Add summary footer
	t.AppendFooter(table.Row{
		"TOTAL",
		"",
		formatDuration(a.result.Duration),
		a.result.Stats.Total,
		a.result.Stats.Passed,
		a.result.Stats.Failed,
		a.result.Stats.Skipped,
		a.result.Stats.Errored,
		getResultString(a.result.Status),
		"",
	})

	t.Render()

	// Emit metrics
	metrics.RecordMatrixRun(
		runID,
		string(a.result.Status),
		a.result.Stats.Total,
		a.result.Stats.Passed,
		a.result.Stats.Failed,
		a.result.Duration,
	)
}

// WaitForShutdown blocks until all goroutines have terminated.
// This is useful in tests to ensure complete cleanup before moving to the next test.
func (a *acceptor) WaitForShutdown(ctx context.Context) error {
	a.config.Log.Debugw("Waiting for all goroutines to terminate")

	// Create a channel that will be closed when the WaitGroup is done
	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	// Wait for either WaitGroup completion or context expiration
	select {
	case <-done:
		a.config.Log.Debugw("All goroutines terminated successfully")
		return nil
	case <-ctx.Done():
		a.config.Log.Warnw("Timed out waiting for goroutines to terminate", "error", ctx.Err())
		return ctx.Err()
	}
}

// sortedMapKeys returns the keys of a map sorted for deterministic output.
func sortedMapKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
