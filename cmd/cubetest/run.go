package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/magiclantern/cubetest/internal/config"
	"github.com/magiclantern/cubetest/internal/persist"
	"github.com/magiclantern/cubetest/internal/scene"
	"github.com/magiclantern/cubetest/internal/title"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start a title session",
	Long: `Loads the config, sets up the title from its workprint and runs the
main loop until SIGINT or SIGTERM, which pauses the session (terminal) and
tears it down. With a database DSN configured, actor state is saved at
teardown and optionally restored at startup.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context())
	},
}

// ── Startup display helpers ────────────────────────────────────────

func printSection(title string) {
	lineLen := 46 - len(title) - 1
	if lineLen < 3 {
		lineLen = 3
	}
	fmt.Printf("  \033[33m── %s %s\033[0m\n", title, strings.Repeat("─", lineLen))
}

func printOK(msg string) {
	fmt.Printf("  \033[32m✓\033[0m %s\n", msg)
}

func printReady(msg string) {
	fmt.Printf("  \033[32m▶\033[0m %s\n", msg)
}

func run(parent context.Context) error {
	// 1. Load config
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// 2. Init logger
	log, err := newLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	printSection(cfg.Title.Name)

	// 3. Optional snapshot database
	var snapshots title.SnapshotStore
	if cfg.Database.DSN != "" {
		db, err := openSnapshots(parent, cfg.Database, log)
		if err != nil {
			return fmt.Errorf("database: %w", err)
		}
		defer db.Close()
		snapshots = persist.NewSnapshotRepo(db)
		printOK("snapshot database ready")
	}

	// 4. Start the session
	surface := &scene.LogSurface{Log: log.Named("surface"), Every: cfg.Loop.LogEvery}
	sess := title.NewSession(title.Options{
		Config:    cfg,
		Surface:   surface,
		Snapshots: snapshots,
	}, log)

	// 5. A signal during startup pauses the session before the loop starts
	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(shutdownCh)

	startDone := make(chan struct{})
	go func() {
		select {
		case sig := <-shutdownCh:
			log.Info("shutdown signal received", zap.String("signal", sig.String()))
			sess.OnPause()
		case <-startDone:
		}
	}()

	startCtx, cancel := context.WithTimeout(parent, 30*time.Second)
	defer cancel()
	err = sess.OnStart(startCtx)
	close(startDone)
	switch {
	case errors.Is(err, title.ErrSessionTerminated):
		log.Info("paused during startup")
	case err != nil:
		return err
	default:
		printReady(fmt.Sprintf("session %s running (%dx%d, frame %s)",
			sess.Title().ID, cfg.Title.Width, cfg.Title.Height, cfg.Loop.FrameInterval))

		// 6. Wait for a signal or for the loop to stop on its own (QUIT)
		select {
		case sig := <-shutdownCh:
			log.Info("shutdown signal received", zap.String("signal", sig.String()))
			sess.OnPause()
		case <-sess.Done():
			log.Info("main loop exited")
		}
	}

	teardownCtx, cancelTeardown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelTeardown()
	if err := sess.Teardown(teardownCtx); err != nil {
		return fmt.Errorf("teardown: %w", err)
	}
	log.Info("session stopped")
	return nil
}

func openSnapshots(ctx context.Context, cfg config.DatabaseConfig, log *zap.Logger) (*persist.DB, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	return persist.Open(ctx, cfg, log.Named("db"))
}
