package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/vinnividivicci/openingbim-cicd/internal/api"
	"github.com/vinnividivicci/openingbim-cicd/internal/config"
	"github.com/vinnividivicci/openingbim-cicd/internal/convert"
	"github.com/vinnividivicci/openingbim-cicd/internal/doctor"
	"github.com/vinnividivicci/openingbim-cicd/internal/engine/extproc"
	"github.com/vinnividivicci/openingbim-cicd/internal/events"
	"github.com/vinnividivicci/openingbim-cicd/internal/jobs"
	"github.com/vinnividivicci/openingbim-cicd/internal/lock"
	"github.com/vinnividivicci/openingbim-cicd/internal/log"
	"github.com/vinnividivicci/openingbim-cicd/internal/store"
	"github.com/vinnividivicci/openingbim-cicd/internal/tui/watch"
	"github.com/vinnividivicci/openingbim-cicd/internal/validate"
)

const version = "0.1.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "start":
		os.Exit(runStart(args))
	case "watch":
		os.Exit(runWatch(args))
	case "doctor":
		os.Exit(runDoctor(args))
	case "version":
		fmt.Printf("openingbim version %s\n", version)
		os.Exit(0)
	case "help", "--help", "-h":
		printUsage()
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Print(`openingbim - IFC conversion and IDS validation service

Usage:
  openingbim <command> [flags]

Commands:
  start       Start the service in foreground (--config path)
  watch       Real-time monitoring TUI (--api-url, --api-key)
  doctor      Check configuration and host readiness (--config, --json)
  version     Show version information
  help        Show this help message
`)
}

func runStart(args []string) int {
	fs := flag.NewFlagSet("start", flag.ExitOnError)
	configPath := fs.String("config", "./config.yaml", "Path to configuration file")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	log.Setup(cfg.Service.LogLevel)
	logger := log.WithComponent("main")
	logger.Info("openingbim starting", "version", version, "config", *configPath)

	pidLock, err := lock.Acquire(filepath.Join(cfg.Storage.Dir, "openingbim.lock"))
	if err != nil {
		logger.Error("failed to acquire instance lock", "error", err)
		return 1
	}
	defer pidLock.Release()

	hub := events.NewHub(cfg.Storage.EventsBuffer)
	ledger := jobs.NewLedger(hub)

	artifacts, err := store.New(cfg.Storage.Dir, cfg.Storage.Retention, cfg.Storage.SweepInterval, hub)
	if err != nil {
		logger.Error("failed to initialize artifact store", "dir", cfg.Storage.Dir, "error", err)
		return 1
	}
	artifacts.Start()
	defer artifacts.Stop()

	converter, err := extproc.New(cfg.Conversion.Command, cfg.Conversion.Args, cfg.Conversion.TempDir)
	if err != nil {
		logger.Error("failed to initialize converter", "error", err)
		return 1
	}
	conversion := convert.New(ledger, artifacts, converter)

	backend, err := buildValidationBackend(cfg)
	if err != nil {
		logger.Error("failed to initialize validation backend", "backend", cfg.Validation.Backend, "error", err)
		return 1
	}
	validation := validate.New(ledger, artifacts, backend)

	server := api.New(api.Config{
		Listen: cfg.API.Listen,
		APIKey: cfg.API.Auth.APIKey,
	}, conversion, validation, ledger, artifacts, hub, log.WithComponent("api"))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("server exited", "error", err)
		return 1
	}

	logger.Info("openingbim stopped")
	return 0
}

func runDoctor(args []string) int {
	fs := flag.NewFlagSet("doctor", flag.ExitOnError)
	configPath := fs.String("config", "./config.yaml", "Path to configuration file")
	asJSON := fs.Bool("json", false, "Emit the report as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	r := doctor.New(cfg).Validate()
	if *asJSON {
		out, err := doctor.FormatJSON(r)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to format report: %v\n", err)
			return 1
		}
		fmt.Println(out)
	} else {
		fmt.Print(doctor.FormatHuman(r))
	}

	if !r.Valid {
		return 1
	}
	return 0
}

func runWatch(args []string) int {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	apiURL := fs.String("api-url", "http://127.0.0.1:3001", "Service API URL")
	apiKey := fs.String("api-key", os.Getenv("OPENINGBIM_API_KEY"), "API Bearer Token")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	m := watch.New(*apiURL, *apiKey)
	if _, err := tea.NewProgram(m).Run(); err != nil {
		fmt.Fprintf(os.Stderr, "TUI error: %v\n", err)
		return 1
	}
	return 0
}

// buildValidationBackend wires the configured backend. The engine backend
// needs a linked-in rule engine, which this binary does not embed; it is
// available to programs that construct the pipeline with their own
// engine.RuleEngine.
func buildValidationBackend(cfg *config.Config) (validate.Backend, error) {
	switch cfg.Validation.Backend {
	case "ifctester":
		return validate.NewIfcTesterBackend(
			cfg.Validation.Command,
			cfg.Validation.Args,
			cfg.Validation.TempDir,
			cfg.Validation.Timeout,
		)
	case "engine":
		return nil, fmt.Errorf("the engine backend requires an embedded rule engine; configure validation.backend: ifctester")
	default:
		return nil, fmt.Errorf("unknown validation backend %q", cfg.Validation.Backend)
	}
}
