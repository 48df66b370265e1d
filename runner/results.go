package runner

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/hpc-infra/cluster-acceptor/types"
)

// CaseResult captures aggregated results for one configured test case across
// all of its dimension points
type CaseResult struct {
	Metadata    types.CaseMetadata
	Invocations map[string]*types.TestResult // keyed by dimension label
	Status      types.TestStatus
	Duration    time.Duration
	Stats       ResultStats
}

// SuiteResult captures aggregated results for a test suite
type SuiteResult struct {
	ID          string
	Description string
	Cases       map[string]*CaseResult // keyed by test id
	Status      types.TestStatus
	Duration    time.Duration
	Stats       ResultStats
}

// RunnerResult captures the complete matrix run results
type RunnerResult struct {
	Suites        map[string]*SuiteResult
	Status        types.TestStatus
	Duration      time.Duration // Sum of invocation durations
	WallClockTime time.Duration // Elapsed time of the whole run
	IsParallel    bool
	Stats         ResultStats
	RunID         string
}

// ResultStats tracks invocation statistics at each level
type ResultStats struct {
	Total     int
	Passed    int
	Failed    int
	Skipped   int
	Errored   int
	StartTime time.Time
	EndTime   time.Time
}

func (s *ResultStats) record(status types.TestStatus) {
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

// ResultHierarchyManager handles the creation and management of result
// hierarchies. This consolidates logic shared between the serial and parallel
// execution paths.
type ResultHierarchyManager struct{}

func NewResultHierarchyManager() *ResultHierarchyManager {
	return &ResultHierarchyManager{}
}

// AddInvocationToResults places an invocation result under its suite and case
// and updates statistics at every level
func (rhm *ResultHierarchyManager) AddInvocationToResults(
	result *RunnerResult,
	metadata types.CaseMetadata,
	invResult *types.TestResult,
) {
	suite := rhm.ensureSuiteExists(result, metadata.Suite)
	caseResult := rhm.ensureCaseExists(suite, metadata)

	caseResult.Invocations[invResult.Invocation.DimensionLabel()] = invResult

	caseResult.Stats.record(invResult.Status)
	caseResult.Duration += invResult.Duration
	suite.Stats.record(invResult.Status)
	suite.Duration += invResult.Duration
	result.Stats.record(invResult.Status)
	result.Duration += invResult.Duration
}

func (rhm *ResultHierarchyManager) ensureSuiteExists(result *RunnerResult, suiteID string) *SuiteResult {
	suite, exists := result.Suites[suiteID]
	if !exists {
		suite = &SuiteResult{
			ID:    suiteID,
			Cases: make(map[string]*CaseResult),
			Stats: ResultStats{StartTime: time.Now()},
		}
		result.Suites[suiteID] = suite
	}
	return suite
}

func (rhm *ResultHierarchyManager) ensureCaseExists(suite *SuiteResult, metadata types.CaseMetadata) *CaseResult {
	caseResult, exists := suite.Cases[metadata.Name()]
	if !exists {
		caseResult = &CaseResult{
			Metadata:    metadata,
			Invocations: make(map[string]*types.TestResult),
			Stats:       ResultStats{StartTime: time.Now()},
		}
		suite.Cases[metadata.Name()] = caseResult
	}
	return caseResult
}

// FinalizeResults applies final status determination and timing to all results
func (rhm *ResultHierarchyManager) FinalizeResults(result *RunnerResult, startTime time.Time) {
	endTime := time.Now()

	for _, suite := range result.Suites {
		for _, caseResult := range suite.Cases {
			caseResult.Status = determineCaseStatus(caseResult)
			caseResult.Stats.EndTime = endTime
		}
		suite.Status = determineSuiteStatus(suite)
		suite.Stats.EndTime = endTime
	}

	// For parallel execution, Duration stays the sum of invocation durations
	// and WallClockTime reflects elapsed time. For serial execution they are
	// the same.
	result.WallClockTime = time.Since(startTime)
	if !result.IsParallel {
		result.Duration = result.WallClockTime
	}

	result.Status = determineRunnerStatus(result)
	result.Stats.EndTime = endTime
}

// CreateEmptyResult creates a properly initialized empty result
func (rhm *ResultHierarchyManager) CreateEmptyResult(runID string, startTime time.Time) *RunnerResult {
	return &RunnerResult{
		Suites: make(map[string]*SuiteResult),
		Stats:  ResultStats{StartTime: startTime},
		RunID:  runID,
		Status: types.TestStatusSkip,
	}
}

// determineStatusFromFlags is a helper that returns a status based on common flag logic
func determineStatusFromFlags(allSkipped, anyFailed bool) types.TestStatus {
	if allSkipped {
		return types.TestStatusSkip
	}
	if anyFailed {
		return types.TestStatusFail
	}
	return types.TestStatusPass
}

// determineCaseStatus determines the overall status of a case based on its invocations
func determineCaseStatus(caseResult *CaseResult) types.TestStatus {
	if len(caseResult.Invocations) == 0 {
		return types.TestStatusSkip
	}

	allSkipped := true
	anyFailed := false
	for _, inv := range caseResult.Invocations {
		if inv.Status != types.TestStatusSkip {
			allSkipped = false
		}
		if inv.Failed() {
			anyFailed = true
		}
	}
	return determineStatusFromFlags(allSkipped, anyFailed)
}

// determineSuiteStatus determines the overall status of a suite based on its cases
func determineSuiteStatus(suite *SuiteResult) types.TestStatus {
	if len(suite.Cases) == 0 {
		return types.TestStatusSkip
	}

	allSkipped := true
	anyFailed := false
	for _, caseResult := range suite.Cases {
		if caseResult.Status != types.TestStatusSkip {
			allSkipped = false
		}
		if caseResult.Status == types.TestStatusFail {
			anyFailed = true
		}
	}
	return determineStatusFromFlags(allSkipped, anyFailed)
}

// determineRunnerStatus determines the overall status of the matrix run
func determineRunnerStatus(result *RunnerResult) types.TestStatus {
	if len(result.Suites) == 0 {
		return types.TestStatusSkip
	}

	allSkipped := true
	anyFailed := false
	for _, suite := range result.Suites {
		if suite.Status != types.TestStatusSkip {
			allSkipped = false
		}
		if suite.Status == types.TestStatusFail {
			anyFailed = true
		}
	}
	return determineStatusFromFlags(allSkipped, anyFailed)
}

// GetInvocationResults returns all invocation results in the run, ordered by
// suite, case, and dimension label
func (r *RunnerResult) GetInvocationResults() []*types.TestResult {
	var results []*types.TestResult
	for _, suiteID := range sortedKeys(r.Suites) {
		suite := r.Suites[suiteID]
		for _, caseID := range sortedKeys(suite.Cases) {
			caseResult := suite.Cases[caseID]
			for _, label := range sortedKeys(caseResult.Invocations) {
				results = append(results, caseResult.Invocations[label])
			}
		}
	}
	return results
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// formatDuration formats the duration to seconds with 1 decimal place
func formatDuration(d time.Duration) string {
	return fmt.Sprintf("%.1fs", d.Seconds())
}

// String returns a formatted string representation of the matrix run results
func (r *RunnerResult) String() string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Matrix Run Results (%s):\n", formatDuration(r.Duration)))
	b.WriteString(fmt.Sprintf("Total: %d, Passed: %d, Failed: %d, Skipped: %d, Errored: %d\n",
		r.Stats.Total, r.Stats.Passed, r.Stats.Failed, r.Stats.Skipped, r.Stats.Errored))

	for _, suiteName := range sortedKeys(r.Suites) {
		suite := r.Suites[suiteName]
		b.WriteString(fmt.Sprintf("\nSuite: %s (%s)\n", suiteName, formatDuration(suite.Duration)))
		b.WriteString(fmt.Sprintf("├── Status: %s\n", suite.Status))
		b.WriteString(fmt.Sprintf("├── Invocations: %d passed, %d failed, %d skipped, %d errored\n",
			suite.Stats.Passed, suite.Stats.Failed, suite.Stats.Skipped, suite.Stats.Errored))

		caseIDs := sortedKeys(suite.Cases)
		for ci, caseID := range caseIDs {
			casePrefix := "├──"
			if ci == len(caseIDs)-1 {
				casePrefix = "└──"
			}
			caseResult := suite.Cases[caseID]
			b.WriteString(fmt.Sprintf("%s Case: %s (%s) [status=%s]\n",
				casePrefix, caseID, formatDuration(caseResult.Duration), caseResult.Status))

			labels := sortedKeys(caseResult.Invocations)
			for li, label := range labels {
				invPrefix := "│       ├──"
				if li == len(labels)-1 {
					invPrefix = "│       └──"
				}
				inv := caseResult.Invocations[label]
				b.WriteString(fmt.Sprintf("%s %s (%s) [status=%s]\n",
					invPrefix, label, formatDuration(inv.Duration), inv.Status))
				if inv.Error != nil {
					b.WriteString(fmt.Sprintf("│       │       └── Error: %s\n", inv.Error.Error()))
				}
			}
		}
	}
	return b.String()
}
