package acceptor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap/zaptest"

	"github.com/hpc-infra/cluster-acceptor/flags"
)

// runConfig drives NewConfig through a real cli app with the given arguments.
func runConfig(t *testing.T, args ...string) (*Config, error) {
	t.Helper()

	var cfg *Config
	var cfgErr error

	app := cli.NewApp()
	app.Flags = flags.Flags
	app.Action = func(ctx *cli.Context) error {
		cfg, cfgErr = NewConfig(ctx, zaptest.NewLogger(t).Sugar(), ctx.String(flags.MatrixConfig.Name))
		return nil
	}

	err := app.Run(append([]string{"cluster-acceptor"}, args...))
	require.NoError(t, err)
	return cfg, cfgErr
}

func TestNewConfigDefaults(t *testing.T) {
	cfg, err := runConfig(t, "--matrix", "test_matrix.yaml")
	require.NoError(t, err)

	assert.True(t, cfg.RunOnce)
	assert.Zero(t, cfg.RunInterval)
	assert.Equal(t, "pytest", cfg.HarnessBinary)
	assert.Equal(t, 0, cfg.Concurrency)
	assert.False(t, cfg.Preflight)
	assert.True(t, cfg.Filter.IsZero())
	assert.Nil(t, cfg.Vars)

	// Paths are resolved to absolute
	assert.True(t, cfg.MatrixConfig != "test_matrix.yaml")
	assert.Contains(t, cfg.MatrixConfig, "test_matrix.yaml")
	assert.Contains(t, cfg.LogDir, "logs")
}

func TestNewConfigRunInterval(t *testing.T) {
	cfg, err := runConfig(t, "--matrix", "test_matrix.yaml", "--run-interval", "1h")
	require.NoError(t, err)

	assert.False(t, cfg.RunOnce)
	assert.Equal(t, time.Hour, cfg.RunInterval)
}

func TestNewConfigFilterAndVars(t *testing.T) {
	cfg, err := runConfig(t, "--matrix", "test_matrix.yaml",
		"--suite", "core",
		"--region", "eu-west-1",
		"--scheduler", "slurm",
		"--var", "key_name=ci-key",
		"--var", "vpc_stack=integ",
	)
	require.NoError(t, err)

	assert.Equal(t, "core", cfg.TargetSuite)
	assert.Equal(t, "eu-west-1", cfg.Filter.Region)
	assert.Equal(t, "slurm", cfg.Filter.Scheduler)
	assert.Equal(t, map[string]string{"key_name": "ci-key", "vpc_stack": "integ"}, cfg.Vars)
}

func TestNewConfigRejectsMalformedVar(t *testing.T) {
	_, err := runConfig(t, "--matrix", "test_matrix.yaml", "--var", "missing-equals")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected key=value")
}

func TestNewConfigRequiresMatrix(t *testing.T) {
	app := cli.NewApp()
	app.Flags = flags.Flags
	var cfgErr error
	app.Action = func(ctx *cli.Context) error {
		_, cfgErr = NewConfig(ctx, zaptest.NewLogger(t).Sugar(), "")
		return nil
	}
	// Satisfy the required flag, then pass an empty path to NewConfig directly
	require.NoError(t, app.Run([]string{"cluster-acceptor", "--matrix", "x.yaml"}))
	require.Error(t, cfgErr)
	assert.Contains(t, cfgErr.Error(), "matrix config file is required")
}
