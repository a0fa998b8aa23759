package main

import (
	"context"
	"io"
	"log"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"handleprobe/internal/app"
	"handleprobe/internal/config"
	"handleprobe/internal/platform/otel"
)

var (
	flagConfig  string
	flagVerbose bool
)

var rootCmd = &cobra.Command{
	Use:           "handleprobe",
	Short:         "Check where a username is registered",
	SilenceUsage:  true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagConfig, "config", "c", "", "YAML config file")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "Log each request to stderr")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func isTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

func newLogger(tui bool) *log.Logger {
	if !flagVerbose || tui {
		return log.New(io.Discard, "", 0)
	}
	return log.New(os.Stderr, "", log.LstdFlags)
}

// setup loads config, starts tracing and builds the app. The registry must
// load; the CLI has nothing to do without it.
func setup(ctx context.Context, tui bool, override func(*config.Config)) (*app.App, func(), error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, nil, err
	}
	if override != nil {
		override(&cfg)
		if err := cfg.Validate(); err != nil {
			return nil, nil, err
		}
	}

	shutdown, err := otel.Setup(ctx, "handleprobe-cli", cfg.OTelEndpoint)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() { shutdown(context.Background()) }

	logger := newLogger(tui)
	reg, err := app.LoadRegistry(cfg, logger)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	a, err := app.New(cfg, reg, logger)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return a, cleanup, nil
}
