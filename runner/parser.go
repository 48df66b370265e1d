package runner

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/hpc-infra/cluster-acceptor/types"
)

// reportEvent is a single line of the harness's report log. Only the fields
// the runner needs are decoded; the rest of the record is ignored.
type reportEvent struct {
	ReportType string    `json:"$report_type"`
	NodeID     string    `json:"nodeid"`
	When       string    `json:"when"`
	Outcome    string    `json:"outcome"`
	Duration   float64   `json:"duration"`
	Longrepr   *longrepr `json:"longrepr"`
	ExitStatus int       `json:"exitstatus"`
}

type longrepr struct {
	Reprcrash *reprCrash `json:"reprcrash"`
}

type reprCrash struct {
	Path    string `json:"path"`
	Lineno  int    `json:"lineno"`
	Message string `json:"message"`
}

// parseReportLog turns the harness's newline-delimited JSON report into a
// TestResult for the given invocation. Records for other node ids (fixtures
// from other modules, collection noise) are skipped.
func (r *runner) parseReportLog(output []byte, inv types.TestInvocation) *types.TestResult {
	if len(output) == 0 {
		r.log.Debugw("Empty report log", "invocation", inv.Key())
		return newErrorResult(inv, fmt.Errorf("empty report log"))
	}

	result := &types.TestResult{
		Invocation: inv,
		Status:     types.TestStatusPass, // Default to pass unless determined otherwise
		Phases:     make(map[string]types.TestStatus),
	}

	nodeID := inv.ID.String()
	var errorMsg strings.Builder
	var totalDuration float64
	var hasAnyReport bool

	for _, line := range bytes.Split(output, []byte("\n")) {
		if len(line) == 0 {
			continue
		}

		event, err := parseReportEvent(line)
		if err != nil {
			r.log.Debugw("Failed to parse report log line", "error", err, "line", string(line))
			continue
		}

		if event.ReportType != ReportTypeTestReport || !nodeIDMatches(event.NodeID, nodeID) {
			continue
		}

		hasAnyReport = true
		totalDuration += event.Duration
		result.Phases[event.When] = outcomeToStatus(event.Outcome)

		switch event.Outcome {
		case OutcomeFailed:
			// A failure outside the call phase means the harness itself
			// broke, not the behavior under test.
			if event.When == PhaseCall {
				result.Status = types.TestStatusFail
			} else if result.Status != types.TestStatusFail {
				result.Status = types.TestStatusError
			}
			appendCrashMessage(&errorMsg, event)
		case OutcomeSkipped:
			if result.Status == types.TestStatusPass {
				result.Status = types.TestStatusSkip
			}
		}
	}

	if !hasAnyReport {
		return newErrorResult(inv, fmt.Errorf("no report for %s in report log", nodeID))
	}

	result.Duration = time.Duration(totalDuration * float64(time.Second))
	if errorMsg.Len() > 0 {
		result.Error = fmt.Errorf("%s", strings.TrimSuffix(errorMsg.String(), "\n"))
	}

	r.log.Debugw("Parsed report log",
		"invocation", inv.Key(),
		"status", result.Status,
		"phases", len(result.Phases),
		"hasError", result.Error != nil)

	return result
}

// parseReportEvent parses a single report log line
func parseReportEvent(line []byte) (reportEvent, error) {
	var event reportEvent
	err := json.Unmarshal(line, &event)
	return event, err
}

// nodeIDMatches reports whether a report's node id refers to the given test.
// The harness may prefix node ids with directories relative to its rootdir.
func nodeIDMatches(got, want string) bool {
	if got == want {
		return true
	}
	return strings.HasSuffix(got, "/"+want)
}

func outcomeToStatus(outcome string) types.TestStatus {
	switch outcome {
	case OutcomePassed:
		return types.TestStatusPass
	case OutcomeFailed:
		return types.TestStatusFail
	case OutcomeSkipped:
		return types.TestStatusSkip
	default:
		return types.TestStatusError
	}
}

func appendCrashMessage(b *strings.Builder, event reportEvent) {
	if event.Longrepr == nil || event.Longrepr.Reprcrash == nil {
		fmt.Fprintf(b, "%s failed\n", event.When)
		return
	}
	crash := event.Longrepr.Reprcrash
	fmt.Fprintf(b, "%s:%d: %s\n", crash.Path, crash.Lineno, crash.Message)
}

// newErrorResult creates a result for an invocation that never produced a
// usable report
func newErrorResult(inv types.TestInvocation, err error) *types.TestResult {
	return &types.TestResult{
		Invocation: inv,
		Status:     types.TestStatusError,
		Error:      err,
		Phases:     make(map[string]types.TestStatus),
	}
}
