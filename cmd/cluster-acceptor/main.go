package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/honeycombio/otel-config-go/otelconfig"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	acceptor "github.com/hpc-infra/cluster-acceptor"
	"github.com/hpc-infra/cluster-acceptor/exitcodes"
	"github.com/hpc-infra/cluster-acceptor/flags"
	"github.com/hpc-infra/cluster-acceptor/service"
)

var (
	Version   = "v0.3.0"
	GitCommit = ""
	GitDate   = ""
)

func main() {
	app := cli.NewApp()
	app.Version = fmt.Sprintf("%s-%s-%s", Version, GitCommit, GitDate)
	app.Name = "cluster-acceptor"
	app.Usage = "Cluster Test Matrix Runner Service"
	app.Description = "cluster-acceptor expands a templated YAML test matrix and drives a harness across its dimension points"
	app.Flags = flags.Flags
	app.Action = run
	app.ExitErrHandler = func(c *cli.Context, err error) {
		var exitErr cli.ExitCoder
		if errors.As(err, &exitErr) {
			// Use the exit code from the ExitCoder
			cli.HandleExitCoder(exitErr)
		} else if err != nil {
			// Check for typed runtime errors
			if acceptor.IsRuntimeError(err) {
				cli.HandleExitCoder(cli.Exit(err.Error(), exitcodes.RuntimeErr))
			} else if acceptor.IsTestFailureError(err) {
				cli.HandleExitCoder(cli.Exit(err.Error(), exitcodes.TestFailure))
			} else {
				// For other unspecified errors, default to exit code 1
				cli.HandleExitCoder(cli.Exit(err.Error(), exitcodes.TestFailure))
			}
		}
	}

	// Start telemetry
	shutdown, err := otelconfig.ConfigureOpenTelemetry(
		otelconfig.WithServiceName(app.Name),
		otelconfig.WithServiceVersion(app.Version),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to setup open telemetry: %v\n", err)
		os.Exit(exitcodes.RuntimeErr)
	}
	defer shutdown()

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Application failed: %v\n", err)
		os.Exit(exitcodes.RuntimeErr)
	}
}

func run(cliCtx *cli.Context) error {
	log := newLogger(cliCtx.String(flags.LogLevel.Name))
	defer func() { _ = log.Sync() }()

	cfg, err := acceptor.NewConfig(cliCtx, log, cliCtx.String(flags.MatrixConfig.Name))
	if err != nil {
		// Wrap in RuntimeError to signal this should exit with code 2
		return acceptor.NewRuntimeError(fmt.Errorf("failed to create config: %w", err))
	}

	log.Debugw("Config", "config", cfg)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Start the healthz and metrics servers
	svc := service.New(log)
	svc.Start(ctx)
	defer svc.Shutdown()

	app, err := acceptor.New(ctx, cfg, Version, func(error) { cancel() })
	if err != nil {
		// Wrap in RuntimeError to signal this should exit with code 2
		return acceptor.NewRuntimeError(fmt.Errorf("failed to create acceptor: %w", err))
	}

	if err := app.Start(ctx); err != nil {
		return err
	}

	if cfg.RunOnce {
		return nil
	}

	// Continuous mode: block until interrupted, then drain the scheduler
	<-ctx.Done()
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	if err := app.Stop(stopCtx); err != nil {
		return acceptor.NewRuntimeError(fmt.Errorf("failed to stop acceptor: %w", err))
	}
	return app.WaitForShutdown(stopCtx)
}

// newLogger builds the process-wide sugared logger. Packages that log through
// zap.S() pick it up via ReplaceGlobals.
func newLogger(level string) *zap.SugaredLogger {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, err := cfg.Build()
	if err != nil {
		panic(fmt.Sprintf("failed to build logger: %v", err))
	}
	zap.ReplaceGlobals(logger)
	return logger.Sugar()
}
