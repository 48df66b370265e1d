package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/hpc-infra/cluster-acceptor/clusterconfig"
	"github.com/hpc-infra/cluster-acceptor/types"
)

// buildHarnessArgs constructs the command line arguments for one invocation
func (r *runner) buildHarnessArgs(inv types.TestInvocation, clusterConfigPath, reportPath string) []string {
	args := []string{inv.ID.String()}

	// Dimension coordinates, consumed by the harness's fixtures
	args = append(args,
		"--region", inv.Region,
		"--instance", inv.Instance,
		"--os", inv.OS,
		"--scheduler", inv.Scheduler,
	)

	args = append(args, "--cluster-config", clusterConfigPath)

	// Machine-readable results, one JSON record per line
	args = append(args, "--report-log", reportPath)

	args = append(args, "-q")

	return args
}

// runHarness executes the harness for a single invocation and parses its
// report log into a TestResult. A non-nil result is always returned; the
// error is reserved for failures of the runner itself.
func (r *runner) runHarness(ctx context.Context, inv types.TestInvocation) (*types.TestResult, error) {
	// Reject dimension combinations the cluster stack cannot build before
	// spending any harness time on them.
	clusterCfg := clusterconfig.Generate(inv)
	if err := clusterCfg.Validate(); err != nil {
		return newErrorResult(inv, fmt.Errorf("invalid cluster config: %w", err)), nil
	}

	artifactDir, err := os.MkdirTemp("", "cluster-acceptor-run-*")
	if err != nil {
		return nil, fmt.Errorf("creating artifact directory: %w", err)
	}
	defer os.RemoveAll(artifactDir)

	clusterConfigPath := filepath.Join(artifactDir, "cluster.config")
	if err := os.WriteFile(clusterConfigPath, clusterCfg.Encode(), 0644); err != nil {
		return nil, fmt.Errorf("writing cluster config: %w", err)
	}
	reportPath := filepath.Join(artifactDir, "report.jsonl")

	args := r.buildHarnessArgs(inv, clusterConfigPath, reportPath)
	cmd := exec.CommandContext(ctx, r.harnessBinary, args...)
	cmd.Dir = r.workDir

	stdout := newTailBuffer(0)
	var stderr bytes.Buffer
	cmd.Stdout = stdout
	cmd.Stderr = &stderr

	r.log.Debugw("Running harness command",
		"dir", cmd.Dir,
		"invocation", inv.Key(),
		"command", cmd.String(),
		"timeout", inv.Timeout)

	runErr := cmd.Run()

	if ctx.Err() == context.DeadlineExceeded {
		return &types.TestResult{
			Invocation: inv,
			Status:     types.TestStatusFail,
			TimedOut:   true,
			Error:      fmt.Errorf("invocation timed out after %v", inv.Timeout),
			Stdout:     string(stdout.Bytes()),
			Phases:     make(map[string]types.TestStatus),
		}, nil
	}

	report, readErr := os.ReadFile(reportPath)
	if readErr != nil {
		report = nil
	}

	result := r.parseReportLog(report, inv)
	// The artifact dir is deleted on return; the raw records survive on the
	// result so the logging sinks can retain them.
	result.ReportLog = report

	// The harness exits 1 when tests fail; that is already reflected in the
	// report. Any other non-zero exit means the harness itself broke.
	var exitErr *exec.ExitError
	if errors.As(runErr, &exitErr) && exitErr.ExitCode() > ExitTestsFailed {
		result.Status = types.TestStatusError
		err := fmt.Errorf("harness exited with code %d", exitErr.ExitCode())
		if result.Error != nil {
			err = fmt.Errorf("%w: %v", err, result.Error)
		}
		result.Error = err
	} else if runErr != nil && exitErr == nil {
		// The binary could not be started at all
		result.Status = types.TestStatusError
		result.Error = fmt.Errorf("starting harness: %w", runErr)
	}

	if result.Failed() || result.Status == types.TestStatusSkip {
		if stdout.TotalBytes() > 0 {
			result.Stdout = string(stdout.Bytes())
		}
		if stderr.Len() > 0 {
			if result.Error != nil {
				result.Error = fmt.Errorf("%w\nstderr: %s", result.Error, stderr.String())
			} else {
				result.Error = fmt.Errorf("stderr: %s", stderr.String())
			}
		}
	}

	return result, nil
}
