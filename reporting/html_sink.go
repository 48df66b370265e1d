package reporting

import (
	"embed"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hpc-infra/cluster-acceptor/types"
)

//go:embed templates/results.tmpl.html
var templateFS embed.FS

const (
	htmlResultsTemplate = "templates/results.tmpl.html"
	htmlResultsFilename = "results.html"
)

// HTMLSink accumulates invocation results and renders a browsable HTML report
// at the end of the run
type HTMLSink struct {
	outputDir  string
	runID      string
	matrixFile string
	template   *template.Template
	results    map[string][]*types.TestResult
}

// NewHTMLSink creates a new HTML report sink
func NewHTMLSink(outputDir, runID, matrixFile string) (*HTMLSink, error) {
	tmpl, err := template.New(filepath.Base(htmlResultsTemplate)).
		Funcs(template.FuncMap{
			"formatDuration": func(d time.Duration) string {
				return fmt.Sprintf("%.1fs", d.Seconds())
			},
			"statusUpper": func(s types.TestStatus) string {
				return strings.ToUpper(string(s))
			},
		}).
		ParseFS(templateFS, htmlResultsTemplate)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML template: %w", err)
	}

	return &HTMLSink{
		outputDir:  outputDir,
		runID:      runID,
		matrixFile: matrixFile,
		template:   tmpl,
		results:    make(map[string][]*types.TestResult),
	}, nil
}

// Consume collects invocation results for later report generation
func (s *HTMLSink) Consume(result *types.TestResult, runID string) error {
	s.results[runID] = append(s.results[runID], result)
	return nil
}

// Complete renders the HTML report file
func (s *HTMLSink) Complete(runID string) error {
	report := BuildReport(s.results[runID], runID, s.matrixFile)

	if err := os.MkdirAll(s.outputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory %s: %w", s.outputDir, err)
	}

	outFile := filepath.Join(s.outputDir, htmlResultsFilename)
	f, err := os.Create(outFile)
	if err != nil {
		return fmt.Errorf("failed to create HTML report file: %w", err)
	}
	defer f.Close()

	if err := s.template.Execute(f, report); err != nil {
		return fmt.Errorf("failed to render HTML report: %w", err)
	}
	return nil
}
