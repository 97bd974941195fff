package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/ria8651/open-msupply/internal/api"
	"github.com/ria8651/open-msupply/internal/central"
	"github.com/ria8651/open-msupply/internal/config"
	"github.com/ria8651/open-msupply/internal/snapshot"
	"github.com/ria8651/open-msupply/internal/store"
	"github.com/ria8651/open-msupply/internal/synchroniser"
	"github.com/ria8651/open-msupply/internal/translator"
	"github.com/ria8651/open-msupply/internal/worker"
	"github.com/spf13/cobra"
)

// Version is set at build time via ldflags: -ldflags "-X main.Version=1.0.0"
var Version = "dev"

var configPath string

var rootCmd = &cobra.Command{
	Use:          "omsupply-sync",
	Short:        "omSupply remote site sync engine",
	Long:         "Pulls central records into the local site database, integrates them and pushes local changes back.",
	RunE:         runServe,
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API with the sync and backup workers",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"Config file path (overrides OMSUPPLY_CONFIG_PATH)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(siteCmd)
	rootCmd.AddCommand(bufferCmd)
	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig loads configuration from --config when given, otherwise from
// the default locations.
func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.LoadFromFile(configPath)
	}
	return config.Load()
}

func runServe(cmd *cobra.Command, args []string) error {
	// 1. Signal handling
	ctx, cancel := signal.NotifyContext(cmd.Context(),
		syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	// 2. Load configuration
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// 3. Initialize logger
	logger := newLogger(os.Stdout, cfg.Log)
	slog.SetDefault(logger)
	slog.Info("configuration loaded")
	slog.Info("logger initialized", "level", cfg.Log.Level, "format", cfg.Log.Format)

	// 4. Initialize store (migrations, WAL mode)
	db, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return err
	}
	slog.Info("store initialized", "path", cfg.Database.Path)

	// 5. Sync driver
	driver := newSynchroniser(cfg, db, logger)
	slog.Info("synchroniser initialized", "central_url", cfg.Sync.CentralURL)

	// 6. Backup uploader
	uploader, err := snapshot.NewUploader(cfg.Backup)
	if err != nil {
		db.Close()
		return fmt.Errorf("backup uploader: %w", err)
	}

	// 7. Initialize HTTP router
	handler := api.NewHandler(db, driver, cfg.Auth.APIKey, Version)
	router := api.NewRouter(handler)
	slog.Info("router initialized")
	if cfg.Auth.APIKey == "" {
		slog.Warn("OMSUPPLY_API_KEY not set; sync routes will reject every request")
	}

	// 8. Configure HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout),
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout),
	}

	// 9. Workers
	var wg sync.WaitGroup
	syncWorker := worker.NewSyncCoordinator(driver, time.Duration(cfg.Sync.Interval))
	startWorker(ctx, &wg, "sync", syncWorker.Run)
	backupWorker := worker.NewBackupCoordinator(db, uploader, cfg.Backup.Dir, time.Duration(cfg.Backup.Interval))
	startWorker(ctx, &wg, "backup", backupWorker.Run)

	// 10. Start HTTP server in goroutine
	go func() {
		slog.Info("server starting", "address", addr)
		// ErrServerClosed is the expected error when Shutdown() is called gracefully.
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			cancel() // Trigger shutdown on server failure
		}
	}()

	// 11. Block until signal received
	<-ctx.Done()
	slog.Info("shutdown initiated")

	// 12. Graceful shutdown sequence
	shutdownCtx, shutdownCancel := context.WithTimeout(
		context.Background(),
		time.Duration(cfg.Server.ShutdownTimeout))
	defer shutdownCancel()

	// 12a. Stop HTTP server (drains in-flight requests)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	// 12b. Wait for workers and manually triggered cycles
	wg.Wait()
	handler.Wait()

	// 12c. Close store
	if err := db.Close(); err != nil {
		slog.Error("store close error", "error", err)
	}

	slog.Info("shutdown complete")
	return nil
}

// newSynchroniser wires the central client and translator registry into a
// sync driver.
func newSynchroniser(cfg *config.Config, db *store.SQLiteStore, logger *slog.Logger) *synchroniser.Synchroniser {
	client := central.NewHTTPClient(
		cfg.Sync.CentralURL,
		central.Credentials{
			Username:   cfg.Sync.Username,
			Password:   cfg.Sync.Password,
			HardwareID: cfg.Sync.HardwareID,
		},
		cfg.Sync.AppVersion,
		time.Duration(cfg.Sync.RequestTimeout),
	)
	return synchroniser.New(db, client, translator.NewDefaultRegistry(logger), synchroniser.Config{
		PullBatchSize: cfg.Sync.PullBatchSize,
		PushBatchSize: cfg.Sync.PushBatchSize,
	}, logger)
}

// newLogger builds the process logger. Format "text" selects the
// human-readable handler; anything else logs JSON.
func newLogger(w io.Writer, cfg config.LogConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Level)}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// startWorker launches a background worker goroutine that respects context cancellation.
// Workers are tracked via WaitGroup for graceful shutdown.
func startWorker(ctx context.Context, wg *sync.WaitGroup, name string, fn func(ctx context.Context)) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		slog.Info("worker started", "worker", name)
		fn(ctx)
		slog.Info("worker stopped", "worker", name)
	}()
}
