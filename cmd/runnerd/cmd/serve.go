package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/merfantz/runnerd/internal/api"
	"github.com/merfantz/runnerd/internal/config"
	"github.com/merfantz/runnerd/internal/logging"
	"github.com/merfantz/runnerd/internal/reconcile"
	"github.com/merfantz/runnerd/internal/registry"
	"github.com/merfantz/runnerd/internal/runner"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the runner control plane",
	Long: `Start the HTTP control plane for managing workflow runners.

Examples:
  # Start with defaults (localhost:8080)
  runnerd serve

  # Start on custom host and port
  runnerd serve --host 0.0.0.0 --port 3000`,
	RunE: runServe,
}

var (
	serveHost   string
	servePort   int
	serveNoCORS bool
)

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveHost, "host", "",
		"host address to bind to (overrides config)")
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0,
		"port to listen on (overrides config)")
	serveCmd.Flags().BoolVar(&serveNoCORS, "no-cors", false,
		"disable CORS headers")
}

func runServe(_ *cobra.Command, _ []string) error {
	logger := logging.New(logging.Config{
		Level:  logLevel,
		Format: logFormat,
		Output: os.Stdout,
	})

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if serveHost != "" {
		cfg.Server.Host = serveHost
	}
	if servePort != 0 {
		cfg.Server.Port = servePort
	}
	if serveNoCORS {
		cfg.Server.EnableCORS = false
	}

	store, err := registry.NewSQLiteStore(cfg.State.Path)
	if err != nil {
		return fmt.Errorf("opening process registry: %w", err)
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			logger.Warn("failed to close registry", "error", closeErr)
		}
	}()

	gracePeriod, err := time.ParseDuration(cfg.Runner.GracePeriod)
	if err != nil {
		return fmt.Errorf("parsing grace period: %w", err)
	}

	inspector := runner.NewProcessInspector()
	allocator := runner.NewPortAllocator(store, cfg.Runner.PortRangeStart, cfg.Runner.PortRangeEnd)
	injector := runner.NewEndpointInjector(cfg.Runner.EntryClassMarker)
	launcher := runner.NewLauncher(store, allocator, injector, inspector, runner.LauncherConfig{
		Interpreter: cfg.Runner.Interpreter,
		BaseDir:     cfg.Runner.BaseDir,
		LogDir:      cfg.Runner.LogDir,
	}, logger.Logger)
	terminator := runner.NewTerminator(store, inspector,
		cfg.Runner.ProcessName, gracePeriod, logger.Logger)
	manager := runner.NewManager(store, launcher, terminator)

	serverOpts := []api.ServerOption{
		api.WithLogger(logger.Logger),
		api.WithCORS(cfg.Server.EnableCORS),
	}

	var reconciler *reconcile.Reconciler
	if cfg.Reconcile.Enabled {
		reconciler = reconcile.New(store, inspector,
			cfg.Runner.ProcessName, cfg.Reconcile.Schedule,
			logger.WithComponent("reconciler").Logger)
		serverOpts = append(serverOpts, api.WithReconciler(reconciler))
	}

	server := api.NewServer(manager, serverOpts...)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	if reconciler != nil {
		if err := reconciler.Start(); err != nil {
			return fmt.Errorf("starting reconciler: %w", err)
		}
		defer reconciler.Stop()
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	g.Go(func() error {
		return server.ListenAndServe(ctx, addr)
	})

	logger.Info("runnerd started",
		"addr", addr,
		"port_range_start", cfg.Runner.PortRangeStart,
		"port_range_end", cfg.Runner.PortRangeEnd,
		"registry", cfg.State.Path,
	)

	if err := g.Wait(); err != nil {
		return fmt.Errorf("serving: %w", err)
	}
	logger.Info("runnerd stopped")
	return nil
}

// loadConfig loads and validates configuration for all commands.
func loadConfig() (*config.Config, error) {
	loader := config.NewLoader()
	if cfgFile != "" {
		loader.WithConfigFile(cfgFile)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, err
	}
	if err := config.NewValidator().Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
