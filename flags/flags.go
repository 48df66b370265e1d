package flags

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v2"
)

const EnvVarPrefix = "CLUSTER_ACCEPTOR"

// prefixEnvVar adds the service prefix to an env var name.
func prefixEnvVar(name string) []string {
	return []string{EnvVarPrefix + "_" + name}
}

var (
	MatrixConfig = &cli.StringFlag{
		Name:     "matrix",
		Value:    "",
		Required: true,
		EnvVars:  prefixEnvVar("MATRIX"),
		Usage:    "Path to matrix config file (eg. 'test_matrix.yaml')",
	}
	ConstantsFile = &cli.StringFlag{
		Name:    "constants",
		Value:   "",
		EnvVars: prefixEnvVar("CONSTANTS"),
		Usage:   "Path to shared constants file imported by the matrix config",
	}
	Suite = &cli.StringFlag{
		Name:    "suite",
		Value:   "",
		EnvVars: prefixEnvVar("SUITE"),
		Usage:   "Run only this test suite (eg. 'cfn-init')",
	}
	TestDir = &cli.StringFlag{
		Name:    "testdir",
		Value:   "",
		EnvVars: prefixEnvVar("TESTDIR"),
		Usage:   "Path to the directory holding the harness test files",
	}
	HarnessBinary = &cli.StringFlag{
		Name:    "harness-binary",
		Value:   "pytest",
		EnvVars: prefixEnvVar("HARNESS_BINARY"),
		Usage:   "Path to the harness binary used to run tests",
	}
	RunInterval = &cli.DurationFlag{
		Name:    "run-interval",
		Value:   0,
		EnvVars: prefixEnvVar("RUN_INTERVAL"),
		Usage:   "Interval between matrix runs (e.g. '1h', '30m'). Set to 0 or omit for run-once mode.",
	}
	DefaultTimeout = &cli.DurationFlag{
		Name:    "default-timeout",
		Value:   0,
		EnvVars: prefixEnvVar("DEFAULT_TIMEOUT"),
		Usage:   "Default timeout for individual invocations. Can be overridden per test in the matrix config.",
	}
	LogDir = &cli.StringFlag{
		Name:    "logdir",
		Value:   "logs",
		EnvVars: prefixEnvVar("LOGDIR"),
		Usage:   "Directory to store invocation logs and run reports",
	}
	Concurrency = &cli.IntFlag{
		Name:    "concurrency",
		Value:   0,
		EnvVars: prefixEnvVar("CONCURRENCY"),
		Usage:   "Number of concurrent harness workers. Values of 0 or 1 run invocations serially.",
	}
	ShowProgress = &cli.BoolFlag{
		Name:    "show-progress",
		Value:   false,
		EnvVars: prefixEnvVar("SHOW_PROGRESS"),
		Usage:   "Print periodic progress updates during long matrix runs",
	}
	ProgressInterval = &cli.DurationFlag{
		Name:    "progress-interval",
		Value:   30 * time.Second,
		EnvVars: prefixEnvVar("PROGRESS_INTERVAL"),
		Usage:   "Interval between progress updates when --show-progress is set",
	}
	Preflight = &cli.BoolFlag{
		Name:    "preflight",
		Value:   false,
		EnvVars: prefixEnvVar("PREFLIGHT"),
		Usage:   "Check EC2 instance type offerings per region before running, skipping impossible invocations",
	}
	FilterRegion = &cli.StringFlag{
		Name:    "region",
		Value:   "",
		EnvVars: prefixEnvVar("REGION"),
		Usage:   "Restrict the expanded matrix to this region",
	}
	FilterInstance = &cli.StringFlag{
		Name:    "instance",
		Value:   "",
		EnvVars: prefixEnvVar("INSTANCE"),
		Usage:   "Restrict the expanded matrix to this instance type",
	}
	FilterOS = &cli.StringFlag{
		Name:    "os",
		Value:   "",
		EnvVars: prefixEnvVar("OS"),
		Usage:   "Restrict the expanded matrix to this OS",
	}
	FilterScheduler = &cli.StringFlag{
		Name:    "scheduler",
		Value:   "",
		EnvVars: prefixEnvVar("SCHEDULER"),
		Usage:   "Restrict the expanded matrix to this scheduler",
	}
	Vars = &cli.StringSliceFlag{
		Name:    "var",
		EnvVars: prefixEnvVar("VAR"),
		Usage:   "Template variable as key=value, may be repeated (eg. --var key_name=my-key)",
	}
	LogLevel = &cli.StringFlag{
		Name:    "log-level",
		Value:   "info",
		EnvVars: prefixEnvVar("LOG_LEVEL"),
		Usage:   "Log level: debug, info, warn, error",
	}
)

var requiredFlags = []cli.Flag{
	MatrixConfig,
}

var optionalFlags = []cli.Flag{
	ConstantsFile,
	Suite,
	TestDir,
	HarnessBinary,
	RunInterval,
	DefaultTimeout,
	LogDir,
	Concurrency,
	ShowProgress,
	ProgressInterval,
	Preflight,
	FilterRegion,
	FilterInstance,
	FilterOS,
	FilterScheduler,
	Vars,
	LogLevel,
}

var Flags []cli.Flag

func init() {
	Flags = append(requiredFlags, optionalFlags...)
}

func CheckRequired(ctx *cli.Context) error {
	for _, f := range requiredFlags {
		if !ctx.IsSet(f.Names()[0]) {
			return fmt.Errorf("flag %s is required", f.Names()[0])
		}
	}
	return nil
}
