package metrics

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/hpc-infra/cluster-acceptor/types"
)

const (
	MetricsNamespace = "harness"
)

var (
	Debug                bool = true
	validResults              = []types.TestStatus{types.TestStatusPass, types.TestStatusFail, types.TestStatusSkip, types.TestStatusError}
	nonAlphanumericRegex      = regexp.MustCompile(`[^a-zA-Z ]+`)

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "errors_total",
		Help:      "Count of errors",
	}, []string{
		"error",
	})

	invocationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "invocations_total",
		Help:      "Count of test invocations",
	}, []string{
		"run_id",
		"suite",
		"test",
		"region",
		"instance",
		"os",
		"scheduler",
		"result",
	})

	matrixResults = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "matrix_results",
		Help:      "Result of a full matrix run",
	}, []string{
		"run_id",
		"result",
	})

	matrixTestTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "matrix_test_total",
		Help:      "Total number of invocations in a matrix run",
	}, []string{
		"run_id",
	})

	matrixTestPassed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "matrix_test_passed",
		Help:      "Number of passed invocations in a matrix run",
	}, []string{
		"run_id",
	})

	matrixTestFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "matrix_test_failed",
		Help:      "Number of failed invocations in a matrix run",
	}, []string{
		"run_id",
	})

	matrixTestDuration = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "matrix_test_duration",
		Help:      "Duration of a matrix run",
	}, []string{
		"run_id",
	})
)

// errToLabel tries to make the error string a more valid Prometheus label
func errToLabel(err error) string {
	if err == nil {
		return "nil"
	}
	errClean := nonAlphanumericRegex.ReplaceAllString(err.Error(), "")
	errClean = strings.ReplaceAll(errClean, " ", "_")
	errClean = strings.ReplaceAll(errClean, "__", "_")
	return errClean
}

func RecordError(error string) {
	if Debug {
		zap.S().Debugw("metric inc",
			"m", "errors_total",
			"error", error,
		)
	}
	errorsTotal.WithLabelValues(error).Inc()
}

// RecordErrorDetails concats the error message to the label
// and also tries to clean the label to be a valid Prometheus label
func RecordErrorDetails(label string, err error) {
	if err == nil {
		return
	}
	label = fmt.Sprintf("%s.%s", label, errToLabel(err))
	RecordError(label)
}

func RecordInvocation(runID string, inv types.TestInvocation, result types.TestStatus) {
	if !isValidResult(result) {
		zap.S().Errorw("RecordInvocation - invalid result", "result", result)
		return
	}
	if Debug {
		zap.S().Debugw("metric inc",
			"m", "invocations_total",
			"run_id", runID,
			"invocation", inv.Key(),
			"result", result)
	}
	invocationsTotal.WithLabelValues(
		runID,
		inv.Suite,
		inv.ID.String(),
		inv.Region,
		inv.Instance,
		inv.OS,
		inv.Scheduler,
		string(result),
	).Inc()
}

func RecordMatrixRun(
	runID string,
	result string,
	total int,
	passed int,
	failed int,
	duration time.Duration,
) {
	matrixResults.WithLabelValues(runID, result).Set(1)
	matrixTestTotal.WithLabelValues(runID).Add(float64(total))
	matrixTestPassed.WithLabelValues(runID).Add(float64(passed))
	matrixTestFailed.WithLabelValues(runID).Add(float64(failed))
	matrixTestDuration.WithLabelValues(runID).Set(duration.Seconds())
}

func isValidResult(result types.TestStatus) bool {
	return slices.Contains(validResults, result)
}
