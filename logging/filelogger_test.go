package logging

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpc-infra/cluster-acceptor/types"
)

func sampleResult(region string, status types.TestStatus) *types.TestResult {
	return &types.TestResult{
		Invocation: types.TestInvocation{
			Suite:     "scaling",
			ID:        types.TestID{File: "test_scaling.py", Function: "test_scaling"},
			Region:    region,
			Instance:  "c5.xlarge",
			OS:        "alinux2",
			Scheduler: "slurm",
		},
		Status:   status,
		Duration: time.Minute,
		Stdout:   "cluster created\n",
	}
}

func TestNewFileLogger_Validation(t *testing.T) {
	_, err := NewFileLogger("", "run1", "matrix.yaml")
	require.Error(t, err)

	_, err = NewFileLogger(t.TempDir(), "", "matrix.yaml")
	require.Error(t, err)
}

func TestFileLogger_CreatesRunDirectories(t *testing.T) {
	base := t.TempDir()
	logger, err := NewFileLogger(base, "run1", "matrix.yaml")
	require.NoError(t, err)

	runDir := filepath.Join(base, "testrun-run1")
	assert.DirExists(t, runDir)
	assert.DirExists(t, filepath.Join(runDir, "passed"))
	assert.DirExists(t, filepath.Join(runDir, "failed"))

	got, err := logger.GetDirectoryForRunID("run1")
	require.NoError(t, err)
	assert.Equal(t, runDir, got)

	assert.Equal(t, "run1", logger.GetRunID())
}

func TestFileLogger_WritesPerInvocationLogs(t *testing.T) {
	base := t.TempDir()
	logger, err := NewFileLogger(base, "run1", "matrix.yaml")
	require.NoError(t, err)

	passing := sampleResult("us-east-1", types.TestStatusPass)
	failing := sampleResult("eu-west-1", types.TestStatusFail)
	failing.Error = errors.New("AssertionError")

	require.NoError(t, logger.LogInvocationResult(passing, "run1"))
	require.NoError(t, logger.LogInvocationResult(failing, "run1"))
	require.NoError(t, logger.Complete("run1"))

	runDir := filepath.Join(base, "testrun-run1")

	passedEntries, err := os.ReadDir(filepath.Join(runDir, "passed"))
	require.NoError(t, err)
	require.Len(t, passedEntries, 1)
	assert.Contains(t, passedEntries[0].Name(), "us-east-1")

	failedEntries, err := os.ReadDir(filepath.Join(runDir, "failed"))
	require.NoError(t, err)
	require.Len(t, failedEntries, 1)

	failedLog, err := os.ReadFile(filepath.Join(runDir, "failed", failedEntries[0].Name()))
	require.NoError(t, err)
	assert.Contains(t, string(failedLog), "status: fail")
	assert.Contains(t, string(failedLog), "AssertionError")
}

func TestFileLogger_CombinedAndSummaryFiles(t *testing.T) {
	base := t.TempDir()
	logger, err := NewFileLogger(base, "run1", "matrix.yaml")
	require.NoError(t, err)

	require.NoError(t, logger.LogInvocationResult(sampleResult("us-east-1", types.TestStatusPass), "run1"))
	require.NoError(t, logger.LogInvocationResult(sampleResult("eu-west-1", types.TestStatusPass), "run1"))
	require.NoError(t, logger.Complete("run1"))

	runDir := filepath.Join(base, "testrun-run1")

	allLogs, err := os.ReadFile(filepath.Join(runDir, "all.log"))
	require.NoError(t, err)
	assert.Contains(t, string(allLogs), "us-east-1")
	assert.Contains(t, string(allLogs), "eu-west-1")

	summary, err := os.ReadFile(filepath.Join(runDir, "summary.log"))
	require.NoError(t, err)
	assert.Contains(t, string(summary), "Overall: PASS")

	assert.FileExists(t, filepath.Join(runDir, "results.html"))
}

func TestFileLogger_RetainsRawReportLog(t *testing.T) {
	base := t.TempDir()
	logger, err := NewFileLogger(base, "run1", "matrix.yaml")
	require.NoError(t, err)

	first := sampleResult("us-east-1", types.TestStatusPass)
	first.ReportLog = []byte(`{"$report_type": "TestReport", "when": "call", "outcome": "passed"}`)
	second := sampleResult("eu-west-1", types.TestStatusFail)
	second.ReportLog = []byte(`{"$report_type": "TestReport", "when": "call", "outcome": "failed"}` + "\n")
	third := sampleResult("ap-northeast-1", types.TestStatusError)
	// No report log at all, e.g. the harness never started

	require.NoError(t, logger.LogInvocationResult(first, "run1"))
	require.NoError(t, logger.LogInvocationResult(second, "run1"))
	require.NoError(t, logger.LogInvocationResult(third, "run1"))
	require.NoError(t, logger.Complete("run1"))

	raw, err := os.ReadFile(filepath.Join(base, "testrun-run1", "raw_report_events.jsonl"))
	require.NoError(t, err)

	lines := strings.Split(strings.TrimRight(string(raw), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"outcome": "passed"`)
	assert.Contains(t, lines[1], `"outcome": "failed"`)
}

func TestFormatInvocationLog_StripsANSI(t *testing.T) {
	result := sampleResult("us-east-1", types.TestStatusFail)
	result.Stdout = "\x1b[31mred error text\x1b[0m\n"

	out := formatInvocationLog(result)
	assert.Contains(t, out, "red error text")
	assert.NotContains(t, out, "\x1b[31m")
}

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "a_b_c_d", sanitizeFilename("a/b:c d"))
}
