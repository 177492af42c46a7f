// Command wasmcrypt runs crypto operations on a pool of module workers.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/BotecoDaFerramenta/desmistificando-webassembly/internal/config"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

type command struct {
	name    string
	summary string
	run     func(ctx context.Context, cfg *config.Config, logger *zap.Logger, args []string) error
}

var commands = []command{
	{"derive", "derive a key from a password with Argon2id", runDerive},
	{"encrypt", "encrypt and decrypt a message with AES-256-GCM", runEncrypt},
	{"hmac", "compute an HMAC-SHA256 digest", runHMAC},
	{"probe", "time a run of HMAC operations", runProbe},
	{"inspect", "parse a header-then-body frame file and summarize typed views", runInspect},
}

func usage() {
	out := flag.CommandLine.Output()
	fmt.Fprintf(out, "Usage: wasmcrypt [flags] <command> [args]\n\nCommands:\n")
	for _, c := range commands {
		fmt.Fprintf(out, "  %-8s %s\n", c.name, c.summary)
	}
	fmt.Fprintf(out, "\nFlags:\n")
	flag.PrintDefaults()
}

func main() {
	// Parse command-line flags
	configPath := flag.String("config", "", "Path to configuration file")
	logLevel := flag.String("log-level", "", "Log level (debug, info, warn, error); overrides the config file")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() == 0 {
		usage()
		os.Exit(2)
	}

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	// Initialize logger
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Debug("Starting wasmcrypt",
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("date", date),
	)

	// Cancel on shutdown signals
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	name, args := flag.Arg(0), flag.Args()[1:]
	for _, c := range commands {
		if c.name != name {
			continue
		}
		if err := c.run(ctx, cfg, logger, args); err != nil {
			logger.Error("Command failed", zap.String("command", name), zap.Error(err))
			logger.Sync()
			os.Exit(1)
		}
		return
	}

	fmt.Fprintf(os.Stderr, "unknown command %q\n\n", name)
	usage()
	os.Exit(2)
}

// newLogger builds a development logger for debug and a production logger
// at the configured level otherwise.
func newLogger(level string) (*zap.Logger, error) {
	if level == "debug" {
		return zap.NewDevelopment()
	}
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, err
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = lvl
	return cfg.Build()
}
