package serverapp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"golang.org/x/sync/errgroup"
)

// Run serves HTTP and polls the descriptor file until ctx is canceled or the
// server fails. It calls Init when needed. Shutdown must still be called to
// release the remaining resources.
func (a *App) Run(ctx context.Context) error {
	ctx = ensureContext(ctx)
	if err := a.Init(ctx); err != nil {
		return err
	}

	a.stateMu.Lock()
	logger, srv, listener, manager := a.logger, a.srv, a.listener, a.manager
	a.stateMu.Unlock()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		attrs := []any{
			slog.String("address", listener.Addr().String()),
			slog.String("graphql_endpoint", "/graphql"),
			slog.String("health_endpoint", "/health"),
			slog.String("schema_file", a.cfg.Schema.File),
			slog.String("storage_driver", a.cfg.Storage.Driver),
		}
		if a.cfg.Observability.MetricsEnabled {
			attrs = append(attrs, slog.String("metrics_endpoint", "/metrics"))
		}
		if a.cfg.Server.RateLimit.Enabled {
			attrs = append(attrs,
				slog.Float64("rate_limit_rps", a.cfg.Server.RateLimit.RPS),
				slog.Int("rate_limit_burst", a.cfg.Server.RateLimit.Burst),
			)
		}
		logger.Info("server starting", attrs...)

		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		manager.Start(gctx)
		<-gctx.Done()
		return manager.Wait(context.Background())
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("stopping HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
