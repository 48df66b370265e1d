package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/hpc-infra/cluster-acceptor/awspreflight"
	"github.com/hpc-infra/cluster-acceptor/logging"
	"github.com/hpc-infra/cluster-acceptor/matrix"
	"github.com/hpc-infra/cluster-acceptor/metrics"
	"github.com/hpc-infra/cluster-acceptor/registry"
	"github.com/hpc-infra/cluster-acceptor/types"
)

// TestRunner defines the interface for running a test matrix
type TestRunner interface {
	RunAllTests(ctx context.Context) (*RunnerResult, error)
	RunInvocation(ctx context.Context, inv types.TestInvocation) (*types.TestResult, error)
}

// TestRunnerWithFileLogger extends the TestRunner interface with a method
// to set the file logger after creation
type TestRunnerWithFileLogger interface {
	TestRunner
	SetFileLogger(logger *logging.FileLogger)
}

// runner struct implements TestRunner interface
type runner struct {
	registry      *registry.Registry
	cases         []types.CaseMetadata
	invocations   []types.TestInvocation
	workDir       string // Directory the harness runs in
	log           *zap.SugaredLogger
	runID         string
	harnessBinary string
	concurrency   int
	fileLogger    *logging.FileLogger
	preflight     *awspreflight.Checker
	progress      ProgressIndicator
	resultMgr     *ResultHierarchyManager
	tracer        trace.Tracer

	caseIndex map[string]types.CaseMetadata // suite + case name -> metadata
}

// Config holds configuration for creating a new runner
type Config struct {
	Registry      *registry.Registry
	TargetSuite   string                // When set, only this suite's cases run
	Filter        matrix.Filter         // Optional dimension filter
	WorkDir       string
	Log           *zap.SugaredLogger
	HarnessBinary string
	Concurrency   int                   // Number of parallel workers; <=1 runs serially
	FileLogger    *logging.FileLogger   // Logger for storing invocation results
	Preflight     *awspreflight.Checker // Optional EC2 offering check, may be nil
	Progress      ProgressIndicator
}

// NewTestRunner creates a new test runner instance
func NewTestRunner(cfg Config) (TestRunner, error) {
	if cfg.Registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if cfg.WorkDir == "" {
		return nil, fmt.Errorf("work directory is required")
	}
	if cfg.Log == nil {
		cfg.Log = zap.S()
		cfg.Log.Error("No logger provided, using default")
	}

	var cases []types.CaseMetadata
	if len(cfg.TargetSuite) > 0 {
		cases = cfg.Registry.GetCasesBySuite(cfg.TargetSuite)
	} else {
		cases = cfg.Registry.GetCases()
	}
	if len(cases) == 0 {
		return nil, fmt.Errorf("no test cases found")
	}

	invocations := matrix.ExpandWithFilter(cases, cfg.Filter)
	if len(invocations) == 0 {
		return nil, fmt.Errorf("dimension filter matched no invocations")
	}

	if cfg.HarnessBinary == "" {
		cfg.HarnessBinary = DefaultHarnessBinary
	}
	if cfg.Progress == nil {
		cfg.Progress = NewNoOpProgressIndicator()
	}

	caseIndex := make(map[string]types.CaseMetadata, len(cases))
	for _, c := range cases {
		caseIndex[c.Suite+"/"+c.Name()] = c
	}

	cfg.Log.Debugw("NewTestRunner()",
		"targetSuite", cfg.TargetSuite,
		"workDir", cfg.WorkDir,
		"harnessBinary", cfg.HarnessBinary,
		"cases", len(cases),
		"invocations", len(invocations),
		"concurrency", cfg.Concurrency)

	return &runner{
		registry:      cfg.Registry,
		cases:         cases,
		invocations:   invocations,
		workDir:       cfg.WorkDir,
		log:           cfg.Log,
		harnessBinary: cfg.HarnessBinary,
		concurrency:   cfg.Concurrency,
		fileLogger:    cfg.FileLogger,
		preflight:     cfg.Preflight,
		progress:      cfg.Progress,
		resultMgr:     NewResultHierarchyManager(),
		tracer:        otel.Tracer("matrix runner"),
		caseIndex:     caseIndex,
	}, nil
}

// RunAllTests implements the TestRunner interface
func (r *runner) RunAllTests(ctx context.Context) (*RunnerResult, error) {
	// Use fileLogger's runID if available, otherwise generate new
	if r.fileLogger != nil {
		r.runID = r.fileLogger.GetRunID()
	} else {
		r.runID = uuid.New().String()
	}
	defer func() {
		r.runID = ""
	}()

	start := time.Now()
	r.log.Debugw("Running test matrix", "run_id", r.runID, "invocations", len(r.invocations))

	result := r.resultMgr.CreateEmptyResult(r.runID, start)

	runnable := r.applyPreflight(ctx, result)

	var err error
	if r.concurrency > 1 {
		result.IsParallel = true
		err = r.runParallel(ctx, runnable, result)
	} else {
		err = r.runSerial(ctx, runnable, result)
	}
	if err != nil {
		return nil, err
	}

	r.resultMgr.FinalizeResults(result, start)
	return result, nil
}

// applyPreflight records an error result for every invocation whose
// region/instance pair EC2 does not offer, and returns the rest. Without a
// preflight checker all invocations run.
func (r *runner) applyPreflight(ctx context.Context, result *RunnerResult) []types.TestInvocation {
	if r.preflight == nil {
		return r.invocations
	}

	runnable := make([]types.TestInvocation, 0, len(r.invocations))
	for _, inv := range r.invocations {
		if err := r.preflight.CheckInvocation(ctx, inv); err != nil {
			r.log.Warnw("Skipping invocation after failed preflight",
				"invocation", inv.Key(), "error", err)
			r.recordResult(result, newErrorResult(inv, err))
			continue
		}
		runnable = append(runnable, inv)
	}
	return runnable
}

// runSerial executes invocations one at a time, grouped by suite
func (r *runner) runSerial(ctx context.Context, invocations []types.TestInvocation, result *RunnerResult) error {
	bySuite := make(map[string][]types.TestInvocation)
	var suiteOrder []string
	for _, inv := range invocations {
		if _, seen := bySuite[inv.Suite]; !seen {
			suiteOrder = append(suiteOrder, inv.Suite)
		}
		bySuite[inv.Suite] = append(bySuite[inv.Suite], inv)
	}

	for _, suiteName := range suiteOrder {
		suiteInvs := bySuite[suiteName]
		ctx, span := r.tracer.Start(ctx, fmt.Sprintf("suite %s", suiteName))
		r.progress.StartSuite(suiteName, len(suiteInvs))

		for _, inv := range suiteInvs {
			r.progress.StartTest(inv.Key())
			invResult, err := r.RunInvocation(ctx, inv)
			if err != nil {
				span.End()
				return fmt.Errorf("running invocation %s: %w", inv.Key(), err)
			}
			r.progress.UpdateTest(inv.Key(), invResult.Status)
			r.recordResult(result, invResult)
		}

		r.progress.CompleteSuite(suiteName)
		span.End()
	}
	return nil
}

// runParallel executes invocations through the worker pool
func (r *runner) runParallel(ctx context.Context, invocations []types.TestInvocation, result *RunnerResult) error {
	executor := NewParallelExecutor(r, r.concurrency, r.progress)
	return executor.ExecuteInvocations(ctx, invocations, result)
}

// recordResult adds one invocation result to the hierarchy and feeds the
// file logger and metrics
func (r *runner) recordResult(result *RunnerResult, invResult *types.TestResult) {
	metadata := r.lookupCase(invResult.Invocation)
	r.resultMgr.AddInvocationToResults(result, metadata, invResult)
	metrics.RecordInvocation(r.runID, invResult.Invocation, invResult.Status)

	if r.fileLogger != nil {
		if err := r.fileLogger.LogInvocationResult(invResult, r.runID); err != nil {
			r.log.Errorw("Failed to log invocation result",
				"invocation", invResult.Invocation.Key(), "error", err)
		}
	}
}

// lookupCase resolves the case metadata an invocation was expanded from
func (r *runner) lookupCase(inv types.TestInvocation) types.CaseMetadata {
	if metadata, ok := r.caseIndex[inv.Suite+"/"+inv.ID.String()]; ok {
		return metadata
	}
	// An invocation the registry does not know; keep it visible anyway
	return types.CaseMetadata{ID: inv.ID, Suite: inv.Suite, Timeout: inv.Timeout}
}

// RunInvocation implements the TestRunner interface
func (r *runner) RunInvocation(ctx context.Context, inv types.TestInvocation) (result *types.TestResult, err error) {
	// Use defer and recover to catch panics and convert them to errors
	defer func() {
		if rec := recover(); rec != nil {
			errMsg := fmt.Sprintf("runtime error: %v", rec)
			r.log.Errorw("Panic in RunInvocation", "error", errMsg, "invocation", inv.Key())

			if result == nil {
				result = newErrorResult(inv, fmt.Errorf("%s", errMsg))
			} else {
				result.Status = types.TestStatusError
				result.Error = fmt.Errorf("%s", errMsg)
			}
			err = fmt.Errorf("%s", errMsg)
		}
	}()

	ctx, span := r.tracer.Start(ctx, fmt.Sprintf("invocation %s", inv.Key()))
	defer span.End()

	if inv.Timeout != 0 {
		var cancel func()
		// The parent deadline is a backstop; the grace period lets the
		// harness hit its own timeout and report first.
		ctx, cancel = context.WithTimeout(ctx, inv.Timeout+timeoutGracePeriod)
		defer cancel()
	}

	r.log.Infow("Running invocation", "invocation", inv.Key())
	start := time.Now()
	result, err = r.runHarness(ctx, inv)
	if result != nil && result.Duration == 0 {
		result.Duration = time.Since(start)
	}
	return result, err
}

// SetFileLogger sets the file logger for the runner
func (r *runner) SetFileLogger(logger *logging.FileLogger) {
	r.fileLogger = logger
}

// Invocations returns the expanded invocation list this runner will execute
func (r *runner) Invocations() []types.TestInvocation {
	return r.invocations
}

// Make sure the runner type implements both interfaces
var _ TestRunner = &runner{}
var _ TestRunnerWithFileLogger = &runner{}
