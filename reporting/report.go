package reporting

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/hpc-infra/cluster-acceptor/types"
)

// Stats counts invocation outcomes at one level of the report
type Stats struct {
	Total   int
	Passed  int
	Failed  int
	Skipped int
	Errored int
}

func (s *Stats) record(status types.TestStatus) {
	s.Total++
	switch status {
	case types.TestStatusPass:
		s.Passed++
	case types.TestStatusFail:
		s.Failed++
	case types.TestStatusSkip:
		s.Skipped++
	case types.TestStatusError:
		s.Errored++
	}
}

// Status derives an aggregate status from the counts
func (s Stats) Status() types.TestStatus {
	switch {
	case s.Total == 0 || s.Total == s.Skipped:
		return types.TestStatusSkip
	case s.Failed > 0 || s.Errored > 0:
		return types.TestStatusFail
	default:
		return types.TestStatusPass
	}
}

// Report is the intermediate representation shared by all report formats
type Report struct {
	RunID       string
	MatrixFile  string
	GeneratedAt time.Time
	Suites      []*SuiteReport
	Stats       Stats
	Duration    time.Duration
}

type SuiteReport struct {
	Name     string
	Cases    []*CaseReport
	Stats    Stats
	Duration time.Duration
}

type CaseReport struct {
	ID          string
	Invocations []*InvocationReport
	Stats       Stats
	Duration    time.Duration
}

type InvocationReport struct {
	Dimensions string
	Status     types.TestStatus
	Duration   time.Duration
	Error      string
	TimedOut   bool
}

// BuildReport groups raw invocation results into the suite/case hierarchy,
// sorted for stable output
func BuildReport(results []*types.TestResult, runID, matrixFile string) *Report {
	report := &Report{
		RunID:       runID,
		MatrixFile:  matrixFile,
		GeneratedAt: time.Now(),
	}

	suites := make(map[string]*SuiteReport)
	cases := make(map[string]map[string]*CaseReport)

	for _, result := range results {
		inv := result.Invocation

		suite, ok := suites[inv.Suite]
		if !ok {
			suite = &SuiteReport{Name: inv.Suite}
			suites[inv.Suite] = suite
			cases[inv.Suite] = make(map[string]*CaseReport)
		}

		caseID := inv.ID.String()
		caseReport, ok := cases[inv.Suite][caseID]
		if !ok {
			caseReport = &CaseReport{ID: caseID}
			cases[inv.Suite][caseID] = caseReport
		}

		invReport := &InvocationReport{
			Dimensions: inv.DimensionLabel(),
			Status:     result.Status,
			Duration:   result.Duration,
			TimedOut:   result.TimedOut,
		}
		if result.Error != nil {
			invReport.Error = result.Error.Error()
		}
		caseReport.Invocations = append(caseReport.Invocations, invReport)

		caseReport.Stats.record(result.Status)
		caseReport.Duration += result.Duration
		suite.Stats.record(result.Status)
		suite.Duration += result.Duration
		report.Stats.record(result.Status)
		report.Duration += result.Duration
	}

	for _, suiteName := range sortedKeys(suites) {
		suite := suites[suiteName]
		for _, caseID := range sortedKeys(cases[suiteName]) {
			caseReport := cases[suiteName][caseID]
			sort.Slice(caseReport.Invocations, func(i, j int) bool {
				return caseReport.Invocations[i].Dimensions < caseReport.Invocations[j].Dimensions
			})
			suite.Cases = append(suite.Cases, caseReport)
		}
		report.Suites = append(report.Suites, suite)
	}

	return report
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// FormatText renders the report as a plain-text summary tree
func (r *Report) FormatText() string {
	var b strings.Builder

	fmt.Fprintf(&b, "Matrix run %s\n", r.RunID)
	if r.MatrixFile != "" {
		fmt.Fprintf(&b, "Matrix config: %s\n", r.MatrixFile)
	}
	fmt.Fprintf(&b, "Generated: %s\n", r.GeneratedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "Overall: %s (%d total, %d passed, %d failed, %d skipped, %d errored)\n",
		strings.ToUpper(string(r.Stats.Status())),
		r.Stats.Total, r.Stats.Passed, r.Stats.Failed, r.Stats.Skipped, r.Stats.Errored)

	for _, suite := range r.Suites {
		fmt.Fprintf(&b, "\n%s: %s (%d passed, %d failed, %d skipped, %d errored)\n",
			suite.Name, suite.Stats.Status(),
			suite.Stats.Passed, suite.Stats.Failed, suite.Stats.Skipped, suite.Stats.Errored)

		for _, caseReport := range suite.Cases {
			fmt.Fprintf(&b, "  %s: %s\n", caseReport.ID, caseReport.Stats.Status())
			for _, inv := range caseReport.Invocations {
				line := fmt.Sprintf("    [%s] %s (%.1fs)", inv.Status, inv.Dimensions, inv.Duration.Seconds())
				if inv.TimedOut {
					line += " TIMED OUT"
				}
				b.WriteString(line + "\n")
				if inv.Error != "" && inv.Status != types.TestStatusPass {
					for _, errLine := range strings.Split(strings.TrimSpace(inv.Error), "\n") {
						fmt.Fprintf(&b, "      %s\n", errLine)
					}
				}
			}
		}
	}

	return b.String()
}
