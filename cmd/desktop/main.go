// Package main provides the local bridge for desktop platforms.
// Desktop clients communicate via REST/WebSocket on localhost:8090.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"github.com/kuapa/kuapa/backend/cmd/desktop/handlers"
	"github.com/kuapa/kuapa/backend/internal/app"
	"github.com/kuapa/kuapa/backend/internal/config"
	"github.com/kuapa/kuapa/backend/internal/logging"
	"github.com/kuapa/kuapa/backend/internal/telemetry"
)

// Version is set at build time
var Version = "0.1.0"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, nil); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newRouter mounts the REST API and the websocket endpoint.
func newRouter(core *app.App, hub *WSHub) *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/api/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"status":"ok","service":"kuapa-desktop","version":%q}`, Version)
	}).Methods(http.MethodGet)

	r.HandleFunc("/api/telemetry", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(telemetry.Take())
	}).Methods(http.MethodGet)

	handlers.NewScanHandler(core.Scans, core.Scheduler).Register(r)
	handlers.NewSyncHandler(core.Queue, core.Scheduler).Register(r)
	handlers.NewNotificationHandler(core.Notifications).Register(r)
	handlers.NewAuthHandler(core.Auth).Register(r)

	r.HandleFunc("/ws", HandleWebSocket(hub))
	return r
}

// run serves until ctx is done. When ready is not nil it receives the bound address.
func run(ctx context.Context, args []string, out io.Writer, ready chan<- string) error {
	fs := flag.NewFlagSet("kuapa-desktop", flag.ContinueOnError)
	fs.SetOutput(out)
	configPath := fs.String("config", "kuapa.yaml", "path to the YAML configuration file")
	envPath := fs.String("env", ".env", "path to the .env file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath, *envPath)
	if err != nil {
		return err
	}
	logging.Init(out, cfg.Level())

	core, err := app.Open(ctx, cfg)
	if err != nil {
		return err
	}

	hub := NewWSHub()
	stopWatching := hub.Watch(core)

	listener, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		stopWatching()
		hub.Close()
		core.Close(5 * time.Second)
		return fmt.Errorf("failed to listen on %s: %w", cfg.ListenAddr, err)
	}

	server := &http.Server{
		Handler:           newRouter(core, hub),
		ReadHeaderTimeout: 10 * time.Second,
	}

	core.Start(ctx)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Serve(listener)
	}()

	logging.Info("kuapa desktop server listening", map[string]interface{}{
		"addr":    listener.Addr().String(),
		"version": Version,
	})
	if ready != nil {
		ready <- listener.Addr().String()
	}

	var result error
	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			result = err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logging.Warn("server shutdown incomplete", map[string]interface{}{"error": err.Error()})
	}
	stopWatching()
	hub.Close()

	if err := core.Close(10 * time.Second); err != nil && result == nil {
		result = err
	}
	return result
}
