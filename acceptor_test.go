package acceptor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/hpc-infra/cluster-acceptor/logging"
	"github.com/hpc-infra/cluster-acceptor/runner"
	"github.com/hpc-infra/cluster-acceptor/types"
)

// trackedMockRunner is a mock runner that counts executions and provides synchronization
type trackedMockRunner struct {
	mock.Mock
	execCount atomic.Int32  // Count of RunAllTests executions
	execCh    chan struct{} // Channel for signaling on each execution
}

func newTrackedMockRunner() *trackedMockRunner {
	return &trackedMockRunner{
		execCh: make(chan struct{}, 100), // Buffer to prevent blocking
	}
}

// RunAllTests implements the runner.TestRunner interface
func (m *trackedMockRunner) RunAllTests(ctx context.Context) (*runner.RunnerResult, error) {
	m.execCount.Add(1)
	args := m.Called(ctx)

	// Signal that an execution has happened
	select {
	case m.execCh <- struct{}{}:
	default:
	}

	return args.Get(0).(*runner.RunnerResult), args.Error(1)
}

// RunInvocation implements the runner.TestRunner interface
func (m *trackedMockRunner) RunInvocation(ctx context.Context, inv types.TestInvocation) (*types.TestResult, error) {
	args := m.Called(ctx, inv)
	return args.Get(0).(*types.TestResult), args.Error(1)
}

// waitForExecutions waits for a specific number of executions with timeout
func (m *trackedMockRunner) waitForExecutions(ctx context.Context, count int32) bool {
	timeoutCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		if m.execCount.Load() >= count {
			return true
		}

		select {
		case <-m.execCh:
			continue
		case <-ticker.C:
			continue
		case <-timeoutCtx.Done():
			return false
		}
	}
}

// matrixResult builds a minimal single-invocation run result in the given status.
func matrixResult(status types.TestStatus) *runner.RunnerResult {
	inv := types.TestInvocation{
		Suite:     "core",
		ID:        types.TestID{File: "test_scaling.py", Function: "test_scaling"},
		Region:    "us-east-1",
		Instance:  "c5.xlarge",
		OS:        "alinux2",
		Scheduler: "slurm",
	}

	caseResult := &runner.CaseResult{
		Metadata: types.CaseMetadata{ID: inv.ID, Suite: inv.Suite},
		Invocations: map[string]*types.TestResult{
			inv.DimensionLabel(): {
				Invocation: inv,
				Status:     status,
				Duration:   time.Second,
			},
		},
		Status:   status,
		Duration: time.Second,
	}
	caseResult.Stats = runner.ResultStats{Total: 1}

	suite := &runner.SuiteResult{
		ID:       "core",
		Cases:    map[string]*runner.CaseResult{inv.ID.String(): caseResult},
		Status:   status,
		Duration: time.Second,
	}

	result := &runner.RunnerResult{
		Suites:   map[string]*runner.SuiteResult{"core": suite},
		Status:   status,
		Duration: time.Second,
		RunID:    "test-run",
	}
	result.Stats = runner.ResultStats{Total: 1}
	switch status {
	case types.TestStatusPass:
		result.Stats.Passed = 1
	case types.TestStatusFail:
		result.Stats.Failed = 1
	case types.TestStatusError:
		result.Stats.Errored = 1
	case types.TestStatusSkip:
		result.Stats.Skipped = 1
	}
	return result
}

// setupTest creates a test service with a tracked mock runner
func setupTest(t *testing.T, runOnce bool) (*trackedMockRunner, *acceptor, context.Context, context.CancelFunc) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)

	mockRunner := newTrackedMockRunner()

	svc := &acceptor{
		ctx: ctx,
		config: &Config{
			Log:          zaptest.NewLogger(t).Sugar(),
			RunInterval:  25 * time.Millisecond, // Short interval for testing
			RunOnce:      runOnce,
			LogDir:       t.TempDir(),
			MatrixConfig: "test_matrix.yaml",
		},
		runner:           mockRunner,
		done:             make(chan struct{}),
		shutdownCallback: func(error) {},
	}

	return mockRunner, svc, ctx, cancel
}

func TestRunOnceModePass(t *testing.T) {
	mockRunner, svc, ctx, cancel := setupTest(t, true)
	defer cancel()

	shutdownCalled := make(chan struct{})
	svc.shutdownCallback = func(error) { close(shutdownCalled) }

	mockRunner.On("RunAllTests", mock.Anything).Return(matrixResult(types.TestStatusPass), nil)

	err := svc.Start(ctx)
	require.NoError(t, err)

	select {
	case <-shutdownCalled:
	case <-time.After(time.Second):
		t.Fatal("shutdown callback was not invoked after a passing run-once run")
	}
	mockRunner.AssertExpectations(t)
}

func TestRunOnceModeFailure(t *testing.T) {
	mockRunner, svc, ctx, cancel := setupTest(t, true)
	defer cancel()

	mockRunner.On("RunAllTests", mock.Anything).Return(matrixResult(types.TestStatusFail), nil)

	err := svc.Start(ctx)
	require.Error(t, err)
	assert.True(t, IsTestFailureError(err))
	mockRunner.AssertExpectations(t)
}

func TestRunOnceModeError(t *testing.T) {
	mockRunner, svc, ctx, cancel := setupTest(t, true)
	defer cancel()

	// Invocations that error out count against the run just like failures
	mockRunner.On("RunAllTests", mock.Anything).Return(matrixResult(types.TestStatusError), nil)

	err := svc.Start(ctx)
	require.Error(t, err)
	assert.True(t, IsTestFailureError(err))
}

func TestRunOnceModeWritesRunArtifacts(t *testing.T) {
	mockRunner, svc, ctx, cancel := setupTest(t, true)
	defer cancel()

	mockRunner.On("RunAllTests", mock.Anything).Return(matrixResult(types.TestStatusPass), nil)
	require.NoError(t, svc.Start(ctx))

	// The run directory must hold the flushed summary and HTML report
	entries, err := os.ReadDir(svc.config.LogDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.True(t, strings.HasPrefix(entries[0].Name(), logging.RunDirectoryPrefix))

	runDir := filepath.Join(svc.config.LogDir, entries[0].Name())
	for _, artifact := range []string{"summary.log", "results.html"} {
		_, statErr := os.Stat(filepath.Join(runDir, artifact))
		assert.NoError(t, statErr, "expected %s in run directory", artifact)
	}
}

func TestRuntimeErrorStillFlushesArtifacts(t *testing.T) {
	mockRunner, svc, ctx, cancel := setupTest(t, true)
	defer cancel()

	mockRunner.On("RunAllTests", mock.Anything).Return((*runner.RunnerResult)(nil), errors.New("harness binary vanished"))

	err := svc.Start(ctx)
	require.Error(t, err)

	entries, readErr := os.ReadDir(svc.config.LogDir)
	require.NoError(t, readErr)
	require.Len(t, entries, 1)

	runDir := filepath.Join(svc.config.LogDir, entries[0].Name())
	_, statErr := os.Stat(filepath.Join(runDir, "summary.log"))
	assert.NoError(t, statErr, "summary must be flushed even when the run breaks")
}

func TestPeriodicModeRunsRepeatedly(t *testing.T) {
	mockRunner, svc, ctx, cancel := setupTest(t, false)
	defer cancel()

	mockRunner.On("RunAllTests", mock.Anything).Return(matrixResult(types.TestStatusPass), nil)

	err := svc.Start(ctx)
	require.NoError(t, err)
	assert.False(t, svc.Stopped())

	// The first run happens at startup, further runs come from the scheduler
	require.True(t, mockRunner.waitForExecutions(ctx, 2), "expected at least two matrix runs")

	require.NoError(t, svc.Stop(ctx))
	assert.True(t, svc.Stopped())
	require.NoError(t, svc.WaitForShutdown(ctx))
}

func TestStopIsIdempotent(t *testing.T) {
	mockRunner, svc, ctx, cancel := setupTest(t, false)
	defer cancel()

	mockRunner.On("RunAllTests", mock.Anything).Return(matrixResult(types.TestStatusPass), nil)

	require.NoError(t, svc.Start(ctx))
	require.NoError(t, svc.Stop(ctx))
	require.NoError(t, svc.Stop(ctx))
	assert.True(t, svc.Stopped())
}

func TestNewRequiresConfig(t *testing.T) {
	_, err := New(context.Background(), nil, "v0.0.0", func(error) {})
	require.Error(t, err)
	require.Contains(t, err.Error(), "config is required")
}
