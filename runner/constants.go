package runner

import "time"

// pytest report-log record types
// See https://github.com/pytest-dev/pytest-reportlog
const (
	ReportTypeSessionStart  = "SessionStart"
	ReportTypeSessionFinish = "SessionFinish"
	ReportTypeTestReport    = "TestReport"
	ReportTypeCollectReport = "CollectReport"
)

// pytest test report outcomes
const (
	OutcomePassed  = "passed"
	OutcomeFailed  = "failed"
	OutcomeSkipped = "skipped"
)

// pytest test report phases
const (
	PhaseSetup    = "setup"
	PhaseCall     = "call"
	PhaseTeardown = "teardown"
)

// pytest exit codes
const (
	ExitOK             = 0
	ExitTestsFailed    = 1
	ExitInterrupted    = 2
	ExitInternalError  = 3
	ExitUsageError     = 4
	ExitNoTestsRun     = 5
)

const (
	// DefaultHarnessBinary is the test harness invoked per matrix point.
	DefaultHarnessBinary = "pytest"

	// timeoutGracePeriod is added to the parent context deadline so the
	// harness gets a chance to time out and report on its own first.
	timeoutGracePeriod = 200 * time.Millisecond
)
