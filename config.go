package acceptor

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/hpc-infra/cluster-acceptor/flags"
	"github.com/hpc-infra/cluster-acceptor/matrix"
)

// Config holds the application configuration
type Config struct {
	MatrixConfig     string
	ConstantsFile    string
	TargetSuite      string
	TestDir          string
	HarnessBinary    string
	RunInterval      time.Duration // Interval between matrix runs
	RunOnce          bool          // Indicates if the service should exit after one matrix run
	DefaultTimeout   time.Duration // Default timeout for individual invocations, can be overridden per test
	LogDir           string        // Directory to store invocation logs
	Concurrency      int           // Number of concurrent harness workers (0 or 1 = serial)
	ShowProgress     bool          // Whether to show periodic progress updates during matrix runs
	ProgressInterval time.Duration // Interval between progress updates when ShowProgress is 'true'
	Preflight        bool          // Check EC2 offerings per region before running
	Filter           matrix.Filter // Dimension filter applied to the expanded matrix
	Vars             map[string]string
	Log              *zap.SugaredLogger
}

// NewConfig creates a new Config from cli context
func NewConfig(ctx *cli.Context, log *zap.SugaredLogger, matrixConfig string) (*Config, error) {
	// Parse flags
	if err := flags.CheckRequired(ctx); err != nil {
		return nil, fmt.Errorf("missing required flags: %w", err)
	}
	if matrixConfig == "" {
		return nil, errors.New("matrix config file is required")
	}

	absMatrixConfig, err := filepath.Abs(matrixConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path for matrix config '%s': %w", matrixConfig, err)
	}

	constantsFile := ctx.String(flags.ConstantsFile.Name)
	if constantsFile != "" {
		constantsFile, err = filepath.Abs(constantsFile)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve absolute path for constants file '%s': %w", constantsFile, err)
		}
	}

	testDir := ctx.String(flags.TestDir.Name)
	if testDir != "" {
		testDir, err = filepath.Abs(testDir)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve absolute path for test directory '%s': %w", testDir, err)
		}
	}

	runInterval := ctx.Duration(flags.RunInterval.Name)
	runOnce := runInterval == 0

	// Get log directory, default to "logs" if not specified
	logDir := ctx.String(flags.LogDir.Name)
	if logDir == "" {
		logDir = "logs"
	}
	logDir, err = filepath.Abs(logDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path for log directory '%s': %w", logDir, err)
	}

	vars, err := parseVars(ctx.StringSlice(flags.Vars.Name))
	if err != nil {
		return nil, err
	}

	return &Config{
		MatrixConfig:     absMatrixConfig,
		ConstantsFile:    constantsFile,
		TargetSuite:      ctx.String(flags.Suite.Name),
		TestDir:          testDir,
		HarnessBinary:    ctx.String(flags.HarnessBinary.Name),
		RunInterval:      runInterval,
		RunOnce:          runOnce,
		DefaultTimeout:   ctx.Duration(flags.DefaultTimeout.Name),
		LogDir:           logDir,
		Concurrency:      ctx.Int(flags.Concurrency.Name),
		ShowProgress:     ctx.Bool(flags.ShowProgress.Name),
		ProgressInterval: ctx.Duration(flags.ProgressInterval.Name),
		Preflight:        ctx.Bool(flags.Preflight.Name),
		Filter: matrix.Filter{
			Region:    ctx.String(flags.FilterRegion.Name),
			Instance:  ctx.String(flags.FilterInstance.Name),
			OS:        ctx.String(flags.FilterOS.Name),
			Scheduler: ctx.String(flags.FilterScheduler.Name),
		},
		Vars: vars,
		Log:  log,
	}, nil
}

// parseVars parses repeated key=value flags into a template variable map.
func parseVars(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	vars := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, found := strings.Cut(pair, "=")
		if !found || key == "" {
			return nil, fmt.Errorf("invalid template variable %q, expected key=value", pair)
		}
		vars[key] = value
	}
	return vars, nil
}
