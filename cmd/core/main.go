// Package main runs the Kuapa offline core headless: it opens the local stores,
// reconciles interrupted sync attempts and keeps retrying pending scans until it is
// interrupted.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kuapa/kuapa/backend/internal/app"
	"github.com/kuapa/kuapa/backend/internal/config"
	"github.com/kuapa/kuapa/backend/internal/db"
	"github.com/kuapa/kuapa/backend/internal/logging"
)

// Version is set at build time
var Version = "0.1.0"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("kuapa-core", flag.ContinueOnError)
	fs.SetOutput(out)
	configPath := fs.String("config", "kuapa.yaml", "path to the YAML configuration file")
	envPath := fs.String("env", ".env", "path to the .env file")
	showVersion := fs.Bool("version", false, "print the version and exit")
	migrateDown := fs.Bool("migrate-down", false, "roll back the most recent schema migration and exit")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *showVersion {
		fmt.Fprintf(out, "Kuapa Core v%s\n", Version)
		return nil
	}

	cfg, err := config.Load(*configPath, *envPath)
	if err != nil {
		return err
	}
	logging.Init(out, cfg.Level())

	if *migrateDown {
		return rollback(cfg.DataDir, out)
	}

	core, err := app.Open(ctx, cfg)
	if err != nil {
		return err
	}
	core.Start(ctx)

	logging.Info("kuapa core running", map[string]interface{}{
		"version":  Version,
		"data_dir": cfg.DataDir,
	})
	<-ctx.Done()

	return core.Close(10 * time.Second)
}

// rollback reverts the last schema migration of the database in dataDir. The next
// start provisions it again.
func rollback(dataDir string, out io.Writer) error {
	database, err := db.Open(dataDir)
	if err != nil {
		return err
	}
	defer database.Close()

	version, err := database.Rollback()
	if err != nil {
		return fmt.Errorf("rollback failed: %w", err)
	}
	fmt.Fprintf(out, "schema rolled back to version %d\n", version)
	return nil
}
