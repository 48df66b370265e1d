package reporting

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/hpc-infra/cluster-acceptor/types"
)

// TextSummarySink accumulates invocation results and writes a plain-text
// summary at the end of the run
type TextSummarySink struct {
	outputDir  string
	runID      string
	matrixFile string
	results    map[string][]*types.TestResult
}

// NewTextSummarySink creates a new text summary sink
func NewTextSummarySink(outputDir, runID, matrixFile string) *TextSummarySink {
	return &TextSummarySink{
		outputDir:  outputDir,
		runID:      runID,
		matrixFile: matrixFile,
		results:    make(map[string][]*types.TestResult),
	}
}

// Consume collects invocation results for later summary generation
func (s *TextSummarySink) Consume(result *types.TestResult, runID string) error {
	s.results[runID] = append(s.results[runID], result)
	return nil
}

// Complete generates the text summary file
func (s *TextSummarySink) Complete(runID string) error {
	report := BuildReport(s.results[runID], runID, s.matrixFile)

	if err := os.MkdirAll(s.outputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory %s: %w", s.outputDir, err)
	}

	summaryFile := filepath.Join(s.outputDir, "summary.log")
	if err := os.WriteFile(summaryFile, []byte(report.FormatText()), 0644); err != nil {
		return fmt.Errorf("failed to write summary file: %w", err)
	}

	return nil
}
