package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/teranos/entres/am"
	"github.com/teranos/entres/errors"
	"github.com/teranos/entres/logger"
	"github.com/teranos/entres/resolution/storage"
	"github.com/teranos/entres/server"
	"github.com/teranos/entres/telemetry"
	"github.com/teranos/entres/version"
)

// ServeCmd starts the resolution server
var ServeCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"server"},
	Short:   "Start the resolution HTTP/WebSocket server",
	Long: `Start the entres server.

Resolution jobs are served on POST /_zentity/resolution[/{entity_type}], job
events stream over GET /ws/resolution, and models are managed under
/_zentity/models. Prometheus metrics are exposed on /metrics unless
telemetry.metrics is false.

The first Ctrl+C drains in-flight jobs; a second one exits immediately.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

var (
	servePort   int
	serveDBPath string
)

func init() {
	ServeCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (overrides server.port)")
	ServeCmd.Flags().StringVar(&serveDBPath, "db-path", "", "Database path (overrides config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	verbosity, _ := cmd.Flags().GetCount("verbose")

	cfg, err := am.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load configuration")
	}
	port := cfg.GetServerPort()
	if servePort != 0 {
		port = servePort
	}

	database, err := openDatabase(serveDBPath)
	if err != nil {
		return errors.Wrap(err, "failed to open database")
	}
	defer database.Close()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	opts, err := server.OptionsFromConfig(cfg)
	if err != nil {
		return errors.Wrap(err, "invalid resolution defaults")
	}
	opts.Store = storage.NewSQLiteDocumentStore(database, logger.ComponentLogger("store"))
	opts.Metrics = telemetry.NewMetrics(cfg.Telemetry)
	opts.Logger = logger.ComponentLogger("server")

	modelSource := "database"
	if cfg.Models.Source == am.ModelSourceDirectory {
		dir, err := storage.NewDirectoryModelProvider(cfg.Models.Directory, logger.ComponentLogger("models"))
		if err != nil {
			return err
		}
		if cfg.Models.Watch {
			if err := dir.Watch(ctx); err != nil {
				return err
			}
		}
		opts.Models = dir
		modelSource = cfg.Models.Directory
	} else {
		opts.Models = storage.NewSQLiteModelStore(database, logger.ComponentLogger("models"))
	}

	srv, err := server.New(opts)
	if err != nil {
		return errors.Wrap(err, "failed to create server")
	}

	if path := am.ConfigPath(); path != "" {
		stopWatch, err := watchConfig(path, verbosity, logger.ComponentLogger("config"))
		if err != nil {
			logger.Logger.Warnw("Config hot reload disabled", "path", path, logger.FieldError, err.Error())
		} else {
			defer stopWatch()
		}
	}

	dbPath := serveDBPath
	if dbPath == "" {
		dbPath = cfg.GetDatabasePath()
	}
	printStartupBanner(port, dbPath, modelSource, opts.Metrics.Enabled())

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.ListenAndServe(ctx, fmt.Sprintf(":%d", port))
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case err := <-errChan:
		return errors.Wrap(err, "server stopped unexpectedly")
	case <-sigChan:
		pterm.Info.Println("Shutting down gracefully (press Ctrl+C again to force)...")
		cancel()

		select {
		case err := <-errChan:
			if err != nil {
				return errors.Wrap(err, "shutdown error")
			}
			pterm.Success.Println("Server stopped cleanly")
			return nil
		case <-sigChan:
			pterm.Warning.Println("Force shutdown - exiting immediately")
			os.Exit(1)
			return nil
		}
	}
}

// watchConfig follows log.level in the config file unless -v pinned the level
func watchConfig(path string, verbosity int, log *zap.SugaredLogger) (func(), error) {
	watcher, err := am.NewConfigWatcher(path)
	if err != nil {
		return nil, err
	}
	watcher.OnReload(func(cfg *am.Config) error {
		if verbosity == 0 {
			logger.SetLevel(logger.ParseLevel(cfg.Log.Level))
		}
		log.Infow("Configuration reloaded", "path", path, "log_level", logger.Level().String())
		return nil
	})
	am.SetGlobalWatcher(watcher)
	watcher.Start()

	return func() {
		am.SetGlobalWatcher(nil)
		if err := watcher.Stop(); err != nil {
			log.Debugw("Config watcher stop failed", logger.FieldError, err.Error())
		}
	}, nil
}

// printStartupBanner prints where the server listens and what it serves
func printStartupBanner(port int, dbPath, models string, metrics bool) {
	info := version.Get()

	pterm.DefaultHeader.WithFullWidth().Println("entres " + info.Version)
	rows := [][]string{
		{"Listening", fmt.Sprintf("http://localhost:%d", port)},
		{"Version", fmt.Sprintf("%s (commit %s)", info.Version, info.Short())},
		{"Built", info.BuildTime},
		{"Database", dbPath},
		{"Models", models},
		{"Log level", logger.Level().String()},
	}
	if metrics {
		rows = append(rows, []string{"Metrics", fmt.Sprintf("http://localhost:%d/metrics", port)})
	}
	for _, r := range rows {
		pterm.Printf("  %-10s %s\n", r[0], r[1])
	}
	pterm.Println()
	pterm.Info.Println("Press Ctrl+C to stop")
}
