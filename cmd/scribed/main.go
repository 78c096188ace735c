package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/scribelabs/scribe-core/internal/config"
	"github.com/scribelabs/scribe-core/internal/logging"
	"github.com/scribelabs/scribe-core/internal/runtime"
)

var version = "0.1.0-dev"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("scribed", flag.ContinueOnError)
	var (
		configPath  string
		showVersion bool
	)
	fs.StringVar(&configPath, "config", "", "Path to configuration file (optional)")
	fs.BoolVar(&showVersion, "version", false, "Print version and exit")
	fs.Usage = func() { usage(fs) }
	if err := fs.Parse(args); err != nil {
		return 2
	}

	if showVersion {
		fmt.Println(version)
		return 0
	}

	switch cmd := fs.Arg(0); cmd {
	case "start":
		return serve(configPath, false)
	case "dev":
		return serve(configPath, true)
	case "":
		usage(fs)
		return 2
	default:
		fmt.Fprintf(os.Stderr, "scribed: unknown command %q\n\n", cmd)
		usage(fs)
		return 2
	}
}

func serve(configPath string, dev bool) int {
	if dev {
		loadDotEnv()
	}

	// A broken configuration must stop the process here, before any meeting
	// job can start against it.
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "scribed: %v\n", err)
		return 1
	}
	if dev {
		cfg.Environment = "development"
		cfg.Log.Level = "debug"
		cfg.Log.Format = "console"
	}

	logger := logging.Init(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	logger.Info().Str("version", version).Bool("dev", dev).Msg("scribed starting")
	logger.Debug().Interface("config", cfg.Redacted()).Msg("effective configuration")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt := runtime.New(cfg, logger)
	if err := rt.Start(ctx); err != nil {
		logger.Error().Err(err).Msg("worker exited with error")
		return 1
	}

	logger.Info().Msg("shutdown complete")
	return 0
}

// loadDotEnv pulls a local .env file into the environment before the config
// is read. Missing files are fine; dev machines without one just use the
// ambient environment.
func loadDotEnv() {
	if _, err := os.Stat(".env"); err != nil {
		return
	}
	if err := godotenv.Load(); err != nil {
		fmt.Fprintf(os.Stderr, "scribed: load .env: %v\n", err)
	}
}

func usage(fs *flag.FlagSet) {
	fmt.Fprint(os.Stderr, `scribed runs the meeting transcription worker.

Usage:

  scribed [flags] <command>

Commands:

  start   Run the worker against the ambient environment
  dev     Run the worker with .env loading and console debug logging

Flags:

`)
	fs.PrintDefaults()
}
