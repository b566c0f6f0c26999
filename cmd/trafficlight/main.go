// Package main provides the traffic light simulation entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/trafficlight/internal/app/light"
	"github.com/osa030/trafficlight/internal/app/simulation"
	"github.com/osa030/trafficlight/internal/infra/config"
	"github.com/osa030/trafficlight/internal/infra/logger"
)

var (
	app        = kingpin.New("trafficlight", "Traffic light simulation")
	configPath = app.Flag("config", "Path to config file").Default("config/trafficlight.yaml").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: config or stdout)").String()

	// check-config command
	checkConfigCmd = app.Command("check-config", "Validate the config file and exit")
)

func init() {
	// run command (default)
	app.Command("run", "Run the simulation (default)").Default()
}

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config %s: %v\n", *configPath, err)
		os.Exit(1)
	}

	if command == checkConfigCmd.FullCommand() {
		fmt.Printf("Config %s is valid: lights=%d vehicles_per_light=%d\n",
			*configPath, cfg.Simulation.Lights, cfg.Simulation.VehiclesPerLight)
		return
	}

	// Command-line flags take precedence over the config file
	loggerConfig := logger.Config{
		Output: cfg.Log.Output,
		Level:  cfg.Log.Level,
	}
	if *verbose {
		loggerConfig.Level = "debug"
	}
	if *logfile != "" {
		loggerConfig.Output = *logfile
	}
	if err := logger.Init(loggerConfig); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}

	if err := run(cfg); err != nil {
		zlog.Error().Msgf("Simulation error: %v", err)
		os.Exit(1)
	}
}

// run executes the simulation until interrupted or run_for elapses.
func run(cfg *config.Config) error {
	runFor, err := cfg.ParseRunFor()
	if err != nil {
		return err
	}

	runner, err := simulation.NewRunner(simulation.Config{
		Lights:           cfg.Simulation.Lights,
		VehiclesPerLight: cfg.Simulation.VehiclesPerLight,
		CrossingTime:     cfg.CrossingTime(),
		Light: light.Config{
			PollInterval: cfg.PollInterval(),
			Seed:         cfg.Light.Seed,
		},
	})
	if err != nil {
		return errors.Wrap(err, "failed to create simulation")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if runFor > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, runFor)
		defer cancel()
		zlog.Info().Msgf("Running simulation for %v", runFor)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- runner.Run(ctx)
	}()

	executeHooks(cfg.Hooks.OnStarted, "on_started")

	statsTicker := time.NewTicker(30 * time.Second)
	defer statsTicker.Stop()

	var runErr error
loop:
	for {
		select {
		case runErr = <-errCh:
			break loop
		case <-statsTicker.C:
			printStats(runner.Stats())
		}
	}

	if ctx.Err() != nil {
		zlog.Info().Msg("Simulation stopped")
	}
	printStats(runner.Stats())

	executeHooks(cfg.Hooks.OnStopped, "on_stopped")

	return runErr
}

// printStats logs per-light statistics.
func printStats(stats []simulation.LightStats) {
	for _, s := range stats {
		zlog.Info().Msgf("light=%s phase=%s transitions=%d crossings=%d",
			s.ID, s.Phase, s.Transitions, s.Crossings)
	}
}

// executeHooks runs a list of shell commands.
func executeHooks(hooks []string, stage string) {
	if len(hooks) == 0 {
		return
	}

	zlog.Info().Msgf("Executing %s hooks (%d commands)", stage, len(hooks))

	for _, hook := range hooks {
		zlog.Info().Msgf("Executing hook: %s", hook)
		cmd := exec.Command("sh", "-c", hook)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr

		if err := cmd.Run(); err != nil {
			zlog.Error().Err(err).Msgf("Failed to execute hook: %s", hook)
		}
	}
}
