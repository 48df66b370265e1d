package acceptor

import (
	"fmt"
	"strings"
	"time"

	"github.com/hpc-infra/cluster-acceptor/types"
)

// extractKeyErrorMessage extracts the most pertinent part of the error message for display
func extractKeyErrorMessage(err error) string {
	if err == nil {
		return ""
	}

	errStr := err.Error()

	// Cluster config rejections carry the offending parameter on one line
	if idx := strings.Index(errStr, "invalid cluster config:"); idx != -1 {
		return firstLineFrom(errStr, idx)
	}

	// Assertion failures from the harness, with or without a file:line prefix
	if idx := strings.Index(errStr, "AssertionError"); idx != -1 {
		return firstLineFrom(errStr, idx)
	}

	// Collection and fixture errors
	for _, pattern := range []string{"Failed:", "Error:", "fixture"} {
		if idx := strings.Index(errStr, pattern); idx != -1 {
			return firstLineFrom(errStr, idx)
		}
	}

	// For harness exit errors, the crash line already holds the useful part
	if strings.Contains(errStr, "exited with code") {
		return firstLineFrom(errStr, 0)
	}

	// If we can't find a specific pattern, limit to the first line or 80 chars
	if idx := strings.Index(errStr, "\n"); idx != -1 {
		return errStr[:idx]
	} else if len(errStr) > 80 {
		return errStr[:70] + "..."
	}

	return errStr
}

// firstLineFrom returns the text from start up to the next newline.
func firstLineFrom(s string, start int) string {
	end := len(s)
	if newLine := strings.Index(s[start:], "\n"); newLine != -1 {
		end = start + newLine
	}
	return s[start:end]
}

// Helper function to convert bool to int
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// getResultString returns a colored string representing the test result
func getResultString(status types.TestStatus) string {
	switch status {
	case types.TestStatusPass:
		return "✓ pass"
	case types.TestStatusSkip:
		return "- skip"
	case types.TestStatusError:
		return "! error"
	default:
		return "✗ fail"
	}
}

// Helper function to format duration to seconds with 1 decimal place
func formatDuration(d time.Duration) string {
	return fmt.Sprintf("%.1fs", d.Seconds())
}
