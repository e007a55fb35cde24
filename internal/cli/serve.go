package cli

import (
	"context"
	"errors"
	"net/http"
	"time"

	httpAdapter "github.com/aretw0/errand/pkg/adapters/http"
	"golang.org/x/sync/errgroup"
)

// Handler builds the API handler for app.
func (a *App) Handler(version string) http.Handler {
	return httpAdapter.NewHandler(a.Orchestrator,
		httpAdapter.WithLogger(a.Logger),
		httpAdapter.WithMetrics(a.Metrics.Handler()),
		httpAdapter.WithAllowedOrigins(a.Config.HTTP.AllowedOrigins...),
		httpAdapter.WithStreams(a.Streams),
		httpAdapter.WithMaxBodySize(int64(a.Config.Input.MaxSize)*4),
		httpAdapter.WithVersion(version),
	)
}

// Serve runs the API server and the graph cache sweeper until ctx ends,
// then shuts the server down within the configured timeout.
func (a *App) Serve(ctx context.Context, version string) error {
	srv := &http.Server{
		Addr:              a.Config.HTTP.Addr,
		Handler:           a.Handler(version),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.Cache.Run(gctx, a.Config.Cache.SweepInterval)
		return nil
	})
	g.Go(func() error {
		a.Logger.Info("errand server listening", "address", srv.Addr, "store", a.Config.Store.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.Logger.Info("shutting down", "timeout", a.Config.HTTP.ShutdownTimeout)
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), a.Config.HTTP.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.Logger.Warn("graceful shutdown did not complete", "err", err)
			return srv.Close()
		}
		return nil
	})

	err := g.Wait()
	a.Cache.Purge()
	return err
}
