package types

import "time"

// TestStatus represents the possible states of a test execution
type TestStatus string

const (
	TestStatusPass  TestStatus = "pass"
	TestStatusFail  TestStatus = "fail"
	TestStatusSkip  TestStatus = "skip"
	TestStatusError TestStatus = "error"
)

// TestResult captures the outcome of a single invocation run
type TestResult struct {
	Invocation TestInvocation
	Status     TestStatus
	Error      error
	Duration   time.Duration
	Stdout     string // Tail of stdout, kept for failing invocations
	TimedOut   bool

	// ReportLog holds the raw report-log records the harness emitted for
	// this invocation, retained for downstream tooling.
	ReportLog []byte

	// Phases records per-phase outcomes (setup/call/teardown) when the
	// harness reports them.
	Phases map[string]TestStatus
}

// Failed reports whether the result should count against the run.
func (tr *TestResult) Failed() bool {
	return tr.Status == TestStatusFail || tr.Status == TestStatusError
}
