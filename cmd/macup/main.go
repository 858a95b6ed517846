package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/macup/macup/cmd/macup/commands"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Version information (set via ldflags during build)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

func main() {
	setupLogging()

	// Cancelling the context stops scheduling new installs; running ones are
	// interrupted and the run is reported as aborted.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := commands.Execute(ctx, Version, Commit, BuildDate)
	stop()

	var exitErr *commands.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		log.Error().Err(err).Msg("Command execution failed")
	}
	os.Exit(commands.ExitCode(err))
}

// setupLogging configures the global zerolog logger used for top-level
// errors. Run logs go through the telemetry logger.
func setupLogging() {
	level, err := zerolog.ParseLevel(os.Getenv("MACUP_LOG_LEVEL"))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level)
}
