package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/allisson/capvault/internal/app"
)

// shutdownTimeout bounds the graceful shutdown of both servers.
const shutdownTimeout = 30 * time.Second

// RunServer starts the local API with graceful shutdown support. The capability
// manifest and routing table are loaded before the listener starts and, with
// WATCH_MANIFESTS, reloaded on change. The vault starts locked; unlock it through
// POST /v1/unlock. Blocks until SIGINT/SIGTERM or a fatal server error; in-flight
// credential sessions are wiped when the server context is cancelled.
func RunServer(ctx context.Context, container *app.Container, version string) error {
	cfg := container.Config()
	logger := container.Logger()
	logger.Info("starting server", slog.String("version", version))

	// Ensure cleanup on exit
	defer closeContainer(container, logger)

	if err := loadCapabilities(ctx, container); err != nil {
		return err
	}

	server, err := container.HTTPServer()
	if err != nil {
		return fmt.Errorf("failed to initialize HTTP server: %w", err)
	}

	metricsServer, err := container.MetricsServer()
	if err != nil {
		return fmt.Errorf("failed to initialize metrics server: %w", err)
	}

	// Setup graceful shutdown
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var watchers sync.WaitGroup
	defer watchers.Wait()
	defer cancel()
	if cfg.WatchManifests {
		startWatchers(ctx, container, &watchers)
	}

	serverErr := make(chan error, 2)
	go func() {
		if err := server.Start(ctx); err != nil {
			serverErr <- fmt.Errorf("api server error: %w", err)
		}
	}()

	if metricsServer != nil {
		go func() {
			if err := metricsServer.Start(ctx); err != nil {
				serverErr <- fmt.Errorf("metrics server error: %w", err)
			}
		}()
	}

	var shutdownErrors []error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		logger.Error("server error, initiating shutdown", slog.Any("error", err))
		shutdownErrors = append(shutdownErrors, err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		shutdownErrors = append(shutdownErrors, fmt.Errorf("api server shutdown: %w", err))
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("metrics server shutdown: %w", err))
		}
	}

	return errors.Join(shutdownErrors...)
}

// loadCapabilities performs the first refresh of the registry and then of the routing
// table, which is validated against the registry.
func loadCapabilities(ctx context.Context, container *app.Container) error {
	set, err := container.Registry().Refresh(ctx)
	if err != nil {
		return fmt.Errorf("failed to load capability manifest: %w", err)
	}
	table, err := container.Router().Refresh(ctx)
	if err != nil {
		return fmt.Errorf("failed to load routing table: %w", err)
	}

	container.Logger().Info("capabilities loaded",
		slog.Int("capabilities", set.Len()),
		slog.Int("rules", len(table.Rules)),
	)
	return nil
}

func startWatchers(ctx context.Context, container *app.Container, wg *sync.WaitGroup) {
	logger := container.Logger()
	watchers := map[string]func(context.Context) error{
		"capabilities": container.Registry().Watch,
		"routing":      container.Router().Watch,
	}
	for name, watch := range watchers {
		wg.Go(func() {
			if err := watch(ctx); err != nil {
				logger.Warn("watcher stopped", slog.String("watcher", name), slog.Any("error", err))
			}
		})
	}
}
