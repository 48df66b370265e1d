package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/acarl005/stripansi"

	"github.com/hpc-infra/cluster-acceptor/reporting"
	"github.com/hpc-infra/cluster-acceptor/types"
)

const (
	RunDirectoryPrefix = "testrun-" // Standardized prefix for run directories

	rawReportLog = "raw_report_events.jsonl"
)

// ResultSink is an interface for different ways of consuming invocation results
type ResultSink interface {
	// Consume processes a single invocation result
	Consume(result *types.TestResult, runID string) error
	// Complete is called when all results have been consumed
	Complete(runID string) error
}

// FileLogger handles writing harness output to files
type FileLogger struct {
	baseDir      string                // Base directory for logs
	logDir       string                // Root log directory for this run
	failedDir    string                // Directory for failed invocations
	passedDir    string                // Directory for passed invocations
	allLogsFile  string                // Path to the combined log file
	mu           sync.Mutex            // Protects concurrent file operations
	sinks        []ResultSink          // Collection of result consumers
	asyncWriters map[string]*AsyncFile // Map of async file writers
	runID        string                // Current run ID
}

// AsyncFile provides non-blocking file writing capabilities
type AsyncFile struct {
	file    *os.File
	queue   chan []byte
	wg      sync.WaitGroup
	mu      sync.Mutex
	stopped bool
}

// NewAsyncFile creates a new AsyncFile for non-blocking writes
func NewAsyncFile(filepath string) (*AsyncFile, error) {
	file, err := os.Create(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to create file %s: %w", filepath, err)
	}

	af := &AsyncFile{
		file:  file,
		queue: make(chan []byte, 100), // Buffer channel to reduce blocking
	}

	af.wg.Add(1)
	go af.processQueue()

	return af, nil
}

// Write queues data to be written asynchronously
func (af *AsyncFile) Write(data []byte) error {
	af.mu.Lock()
	defer af.mu.Unlock()

	if af.stopped {
		return fmt.Errorf("async file is closed")
	}

	// Make a copy of the data to avoid race conditions
	dataCopy := make([]byte, len(data))
	copy(dataCopy, data)

	af.queue <- dataCopy
	return nil
}

// processQueue processes the write queue in the background
func (af *AsyncFile) processQueue() {
	defer af.wg.Done()

	for data := range af.queue {
		_, err := af.file.Write(data)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error writing to file: %v\n", err)
		}
	}
}

// Close stops the async writer and closes the file
func (af *AsyncFile) Close() error {
	af.mu.Lock()
	if !af.stopped {
		af.stopped = true
		close(af.queue)
	}
	af.mu.Unlock()

	// Wait for all writes to complete
	af.wg.Wait()
	return af.file.Close()
}

// NewFileLogger creates a new FileLogger with the given configuration. Each
// run gets its own directory under baseDir, with per-invocation logs split by
// outcome plus the combined and summary files produced by the reporting sinks.
func NewFileLogger(baseDir string, runID string, matrixFile string) (*FileLogger, error) {
	if runID == "" {
		return nil, fmt.Errorf("runID cannot be empty")
	}
	if baseDir == "" {
		return nil, fmt.Errorf("baseDir cannot be empty")
	}

	logDir := filepath.Join(baseDir, RunDirectoryPrefix+runID)
	failedDir := filepath.Join(logDir, "failed")
	passedDir := filepath.Join(logDir, "passed")
	allLogsFile := filepath.Join(logDir, "all.log")

	for _, dir := range []string{baseDir, logDir, failedDir, passedDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	logger := &FileLogger{
		baseDir:      baseDir,
		logDir:       logDir,
		failedDir:    failedDir,
		passedDir:    passedDir,
		allLogsFile:  allLogsFile,
		sinks:        make([]ResultSink, 0),
		asyncWriters: make(map[string]*AsyncFile),
		runID:        runID,
	}

	allLogsSink := &AllLogsFileSink{logger: logger}
	logger.sinks = append(logger.sinks, allLogsSink)

	perInvocationSink := &PerInvocationFileSink{logger: logger}
	logger.sinks = append(logger.sinks, perInvocationSink)

	rawReportSink := &RawReportSink{logger: logger}
	logger.sinks = append(logger.sinks, rawReportSink)

	textSummarySink := reporting.NewTextSummarySink(logDir, runID, matrixFile)
	logger.sinks = append(logger.sinks, textSummarySink)

	htmlSink, err := reporting.NewHTMLSink(logDir, runID, matrixFile)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTML sink: %w", err)
	}
	logger.sinks = append(logger.sinks, htmlSink)

	return logger, nil
}

// getAsyncWriter gets or creates an AsyncFile for the given path
func (l *FileLogger) getAsyncWriter(path string) (*AsyncFile, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if writer, exists := l.asyncWriters[path]; exists {
		return writer, nil
	}

	writer, err := NewAsyncFile(path)
	if err != nil {
		return nil, err
	}

	l.asyncWriters[path] = writer
	return writer, nil
}

// closeAllWriters closes all async writers
func (l *FileLogger) closeAllWriters() {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, writer := range l.asyncWriters {
		_ = writer.Close()
	}
	l.asyncWriters = make(map[string]*AsyncFile)
}

// GetRunID returns the run ID this logger writes under
func (l *FileLogger) GetRunID() string {
	return l.runID
}

// GetDirectoryForRunID returns the log directory path for a specific runID
func (l *FileLogger) GetDirectoryForRunID(runID string) (string, error) {
	if runID == "" {
		return "", fmt.Errorf("runID cannot be empty")
	}
	if runID == l.runID {
		return l.logDir, nil
	}
	return filepath.Join(l.baseDir, RunDirectoryPrefix+runID), nil
}

// LogInvocationResult processes an invocation result through all registered sinks
func (l *FileLogger) LogInvocationResult(result *types.TestResult, runID string) error {
	if runID == "" {
		return fmt.Errorf("runID cannot be empty")
	}

	for _, sink := range l.sinks {
		if err := sink.Consume(result, runID); err != nil {
			return fmt.Errorf("error in sink: %w", err)
		}
	}
	return nil
}

// Complete flushes all sinks and closes open writers. Call once all results
// for the run have been logged.
func (l *FileLogger) Complete(runID string) error {
	if runID == "" {
		return fmt.Errorf("runID cannot be empty")
	}

	for _, sink := range l.sinks {
		if err := sink.Complete(runID); err != nil {
			return fmt.Errorf("error completing sink: %w", err)
		}
	}

	l.closeAllWriters()
	return nil
}

// AllLogsFileSink appends every invocation's output to a single combined log
type AllLogsFileSink struct {
	logger *FileLogger
}

func (s *AllLogsFileSink) Consume(result *types.TestResult, runID string) error {
	writer, err := s.logger.getAsyncWriter(s.logger.allLogsFile)
	if err != nil {
		return err
	}
	return writer.Write([]byte(formatInvocationLog(result)))
}

func (s *AllLogsFileSink) Complete(runID string) error {
	return nil
}

// PerInvocationFileSink writes one log file per invocation, split into
// passed/ and failed/ directories by outcome
type PerInvocationFileSink struct {
	logger *FileLogger
}

func (s *PerInvocationFileSink) Consume(result *types.TestResult, runID string) error {
	targetDir := s.logger.passedDir
	if result.Failed() {
		targetDir = s.logger.failedDir
	}

	path := filepath.Join(targetDir, invocationFilename(result.Invocation))
	writer, err := s.logger.getAsyncWriter(path)
	if err != nil {
		return err
	}
	return writer.Write([]byte(formatInvocationLog(result)))
}

func (s *PerInvocationFileSink) Complete(runID string) error {
	return nil
}

// RawReportSink retains the harness's raw report-log records in a single
// combined file. This is useful for feeding to tools that consume the
// report-log format directly.
type RawReportSink struct {
	logger *FileLogger
}

func (s *RawReportSink) Consume(result *types.TestResult, runID string) error {
	if len(result.ReportLog) == 0 {
		return nil
	}

	baseDir, err := s.logger.GetDirectoryForRunID(runID)
	if err != nil {
		return err
	}

	writer, err := s.logger.getAsyncWriter(filepath.Join(baseDir, rawReportLog))
	if err != nil {
		return err
	}

	records := result.ReportLog
	if records[len(records)-1] != '\n' {
		records = append(records, '\n')
	}
	return writer.Write(records)
}

func (s *RawReportSink) Complete(runID string) error {
	return nil
}

// formatInvocationLog renders an invocation result as a log block. Terminal
// escape codes from the harness output are stripped so the files stay
// greppable.
func formatInvocationLog(result *types.TestResult) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("=== %s\n", result.Invocation.Key()))
	b.WriteString(fmt.Sprintf("status: %s duration: %s\n", result.Status, result.Duration))
	if result.TimedOut {
		b.WriteString("timed out\n")
	}
	if result.Error != nil {
		b.WriteString(fmt.Sprintf("error: %s\n", stripansi.Strip(result.Error.Error())))
	}
	if result.Stdout != "" {
		b.WriteString(stripansi.Strip(result.Stdout))
		if !strings.HasSuffix(result.Stdout, "\n") {
			b.WriteString("\n")
		}
	}
	b.WriteString("\n")
	return b.String()
}

// invocationFilename generates a filesystem-safe filename for an invocation
func invocationFilename(inv types.TestInvocation) string {
	name := fmt.Sprintf("%s_%s_%s_%s_%s_%s",
		inv.Suite, inv.ID.Function, inv.Region, inv.Instance, inv.OS, inv.Scheduler)
	return sanitizeFilename(name) + ".log"
}

// sanitizeFilename makes a string safe to use as a filename
func sanitizeFilename(s string) string {
	for _, c := range []string{"/", "\\", ":", "*", "?", "\"", "<", ">", "|", " "} {
		s = strings.ReplaceAll(s, c, "_")
	}
	return s
}
