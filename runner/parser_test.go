package runner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap/zaptest"

	"github.com/hpc-infra/cluster-acceptor/types"
)

func testRunner(t *testing.T) *runner {
	t.Helper()
	return &runner{
		log:       zaptest.NewLogger(t).Sugar(),
		resultMgr: NewResultHierarchyManager(),
		tracer:    otel.Tracer("matrix runner"),
	}
}

func scalingInvocation() types.TestInvocation {
	return types.TestInvocation{
		Suite:     "core",
		ID:        types.TestID{File: "test_scaling.py", Function: "test_scaling"},
		Region:    "us-east-1",
		Instance:  "c5.xlarge",
		OS:        "alinux2",
		Scheduler: "slurm",
	}
}

func TestParseReportLog(t *testing.T) {
	inv := scalingInvocation()

	tests := []struct {
		name       string
		output     string
		wantStatus types.TestStatus
		wantError  bool
		wantPhases int
	}{
		{
			name:       "empty output",
			output:     "",
			wantStatus: types.TestStatusError,
			wantError:  true,
			wantPhases: 0,
		},
		{
			name: "passing test",
			output: `{"$report_type":"SessionStart","pytest_version":"4.6.9"}
{"$report_type":"TestReport","nodeid":"test_scaling.py::test_scaling","when":"setup","outcome":"passed","duration":0.2}
{"$report_type":"TestReport","nodeid":"test_scaling.py::test_scaling","when":"call","outcome":"passed","duration":412.5}
{"$report_type":"TestReport","nodeid":"test_scaling.py::test_scaling","when":"teardown","outcome":"passed","duration":1.1}
{"$report_type":"SessionFinish","exitstatus":0}`,
			wantStatus: types.TestStatusPass,
			wantError:  false,
			wantPhases: 3,
		},
		{
			name: "failing call phase",
			output: `{"$report_type":"TestReport","nodeid":"test_scaling.py::test_scaling","when":"setup","outcome":"passed","duration":0.2}
{"$report_type":"TestReport","nodeid":"test_scaling.py::test_scaling","when":"call","outcome":"failed","duration":90.0,"longrepr":{"reprcrash":{"path":"test_scaling.py","lineno":42,"message":"AssertionError: expected 4 nodes"}}}
{"$report_type":"TestReport","nodeid":"test_scaling.py::test_scaling","when":"teardown","outcome":"passed","duration":1.0}`,
			wantStatus: types.TestStatusFail,
			wantError:  true,
			wantPhases: 3,
		},
		{
			name: "failing setup is an error not a failure",
			output: `{"$report_type":"TestReport","nodeid":"test_scaling.py::test_scaling","when":"setup","outcome":"failed","duration":30.0,"longrepr":{"reprcrash":{"path":"conftest.py","lineno":10,"message":"fixture error"}}}`,
			wantStatus: types.TestStatusError,
			wantError:  true,
			wantPhases: 1,
		},
		{
			name: "skipped test",
			output: `{"$report_type":"TestReport","nodeid":"test_scaling.py::test_scaling","when":"setup","outcome":"skipped","duration":0.1}
{"$report_type":"TestReport","nodeid":"test_scaling.py::test_scaling","when":"teardown","outcome":"passed","duration":0.1}`,
			wantStatus: types.TestStatusSkip,
			wantError:  false,
			wantPhases: 2,
		},
		{
			name: "reports for other node ids are ignored",
			output: `{"$report_type":"TestReport","nodeid":"test_other.py::test_other","when":"call","outcome":"failed","duration":1.0}
{"$report_type":"TestReport","nodeid":"test_scaling.py::test_scaling","when":"call","outcome":"passed","duration":2.0}`,
			wantStatus: types.TestStatusPass,
			wantError:  false,
			wantPhases: 1,
		},
		{
			name: "node id with directory prefix still matches",
			output: `{"$report_type":"TestReport","nodeid":"tests/test_scaling.py::test_scaling","when":"call","outcome":"passed","duration":2.0}`,
			wantStatus: types.TestStatusPass,
			wantError:  false,
			wantPhases: 1,
		},
		{
			name: "no matching report",
			output: `{"$report_type":"SessionStart","pytest_version":"4.6.9"}
{"$report_type":"SessionFinish","exitstatus":5}`,
			wantStatus: types.TestStatusError,
			wantError:  true,
			wantPhases: 0,
		},
		{
			name: "malformed lines are skipped",
			output: `not json at all
{"$report_type":"TestReport","nodeid":"test_scaling.py::test_scaling","when":"call","outcome":"passed","duration":2.0}`,
			wantStatus: types.TestStatusPass,
			wantError:  false,
			wantPhases: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := testRunner(t)
			result := r.parseReportLog([]byte(tt.output), inv)

			require.NotNil(t, result)
			assert.Equal(t, tt.wantStatus, result.Status)
			assert.Equal(t, tt.wantError, result.Error != nil, "error presence should match, got %v", result.Error)
			assert.Len(t, result.Phases, tt.wantPhases)
			assert.Equal(t, inv, result.Invocation)
		})
	}
}

func TestParseReportLog_DurationSumsPhases(t *testing.T) {
	r := testRunner(t)
	output := `{"$report_type":"TestReport","nodeid":"test_scaling.py::test_scaling","when":"setup","outcome":"passed","duration":1.0}
{"$report_type":"TestReport","nodeid":"test_scaling.py::test_scaling","when":"call","outcome":"passed","duration":2.5}
{"$report_type":"TestReport","nodeid":"test_scaling.py::test_scaling","when":"teardown","outcome":"passed","duration":0.5}`

	result := r.parseReportLog([]byte(output), scalingInvocation())
	assert.InDelta(t, 4.0, result.Duration.Seconds(), 0.001)
}

func TestParseReportLog_CrashMessageInError(t *testing.T) {
	r := testRunner(t)
	output := `{"$report_type":"TestReport","nodeid":"test_scaling.py::test_scaling","when":"call","outcome":"failed","duration":1.0,"longrepr":{"reprcrash":{"path":"test_scaling.py","lineno":42,"message":"AssertionError: expected 4 nodes"}}}`

	result := r.parseReportLog([]byte(output), scalingInvocation())
	require.Error(t, result.Error)
	assert.Contains(t, result.Error.Error(), "test_scaling.py:42")
	assert.Contains(t, result.Error.Error(), "AssertionError: expected 4 nodes")
}
