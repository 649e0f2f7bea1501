// Package main implements the log-ship daemon entry point: parse flags,
// load and validate the configuration, build the engine, and run until the
// routes finish or a signal initiates graceful shutdown.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/log-store/log-ship/config"
	"github.com/log-store/log-ship/engine"
)

// Version is the daemon version, stamped at build time
var Version = "0.9.0"

// Exit codes
const (
	exitOK        = 0
	exitConfig    = 1
	exitRuntime   = 2
	exitInterrupt = 130
)

func main() {
	os.Exit(run())
}

func run() int {
	flags := flag.NewFlagSet("log-ship", flag.ContinueOnError)
	flags.Usage = usage(flags)

	configFile := flags.String("config-file", "", "Optional config file location")
	logFile := flags.String("log-file", "", "Optional log file location")
	check := flags.Bool("check", false, "Check the config file, and print the routes")
	debug := flags.Bool("debug", false, "")
	version := flags.Bool("V", false, "Print the version and exit")

	if err := flags.Parse(os.Args[1:]); err != nil {
		if err == flag.ErrHelp {
			return exitOK
		}
		return exitConfig
	}

	if *version {
		fmt.Printf("log-ship %s\n", Version)
		return exitOK
	}

	// Locate the configuration file
	configPath := *configFile
	if configPath != "" {
		if info, err := os.Stat(configPath); err != nil || info.IsDir() {
			fmt.Fprintf(os.Stderr, "The configuration file specified on the command line (%s) was not found\n", configPath)
			return exitConfig
		}
	} else {
		path, checked, err := config.Find()
		if err != nil {
			fmt.Fprintf(os.Stderr, "The configuration file (%s) for log-ship was not found\n", config.FileName)
			fmt.Fprintln(os.Stderr, "The following places were checked:")
			for _, p := range checked {
				fmt.Fprintf(os.Stderr, "\t%s\n", p)
			}
			return exitConfig
		}
		configPath = path
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading the config file: %v\n", err)
		return exitConfig
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error checking the config file: %v\n", err)
		return exitConfig
	}

	if *check {
		cfg.PrintRoutes(os.Stdout)
		return exitOK
	}

	// The command line overrides the configured log file
	logPath := cfg.Globals.LogFile
	if *logFile != "" {
		logPath = *logFile
	}
	logger, closeLog, err := setupLogging(logPath, *debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening log_file: %v\n", err)
		return exitConfig
	}
	defer closeLog()
	slog.SetDefault(logger)

	eng, err := engine.New(cfg, logger)
	if err != nil {
		logger.Error("configuration error", "error", err)
		return exitConfig
	}

	logger.Info("starting log-ship", "version", Version, "config_file", configPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err = eng.Run(ctx)

	if ctx.Err() != nil {
		logger.Warn("shut down on signal")
		return exitInterrupt
	}
	if err != nil {
		return exitRuntime
	}
	return exitOK
}

// setupLogging builds the process-wide logger. All routes share this single
// writer; slog serializes the writes.
func setupLogging(path string, debug bool) (*slog.Logger, func(), error) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	if path == "" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts)), func() {}, nil
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, err
	}
	return slog.New(slog.NewJSONHandler(file, opts)), func() { _ = file.Close() }, nil
}

// usage prints flag help without the hidden debug flag
func usage(flags *flag.FlagSet) func() {
	return func() {
		fmt.Fprintln(flags.Output(), "log-ship - the most versatile log shipper")
		fmt.Fprintln(flags.Output(), "\nUsage:")
		fmt.Fprintln(flags.Output(), "  log-ship [--config-file CONFIG_FILE] [--log-file LOG_FILE] [--check] [-V]")
		fmt.Fprintln(flags.Output(), "\nOptions:")
		fmt.Fprintln(flags.Output(), "  --config-file CONFIG_FILE  Optional config file location")
		fmt.Fprintln(flags.Output(), "  --log-file LOG_FILE        Optional log file location")
		fmt.Fprintln(flags.Output(), "  --check                    Validate the config file, print the routes, and exit")
		fmt.Fprintln(flags.Output(), "  -V                         Print the version and exit")
	}
}
