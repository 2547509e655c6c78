package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"real-estate-catalog/internal/catalog"
	"real-estate-catalog/internal/cleanup"
	"real-estate-catalog/internal/config"
	"real-estate-catalog/internal/database"
	"real-estate-catalog/internal/handlers"
	"real-estate-catalog/internal/ratelimit"
	"real-estate-catalog/internal/scheduler"
	"real-estate-catalog/internal/search"
	"real-estate-catalog/internal/snapshot"
)

func serveCmd(flags *rootFlags) *cobra.Command {
	var refreshOnStart bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the catalog HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup(flags)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg, logger, refreshOnStart)
		},
	}
	cmd.Flags().BoolVar(&refreshOnStart, "refresh-on-start", false, "run one scheduled refresh right after startup")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger, refreshOnStart bool) error {
	gin.SetMode(gin.ReleaseMode)

	agg, err := newAggregator(cfg, logger)
	if err != nil {
		return err
	}
	view := catalog.NewView(agg)

	store, err := database.Open(cfg.Database, logger)
	switch {
	case errors.Is(err, database.ErrDisabled):
		logger.Info("snapshot database disabled")
	case err != nil:
		return err
	default:
		defer store.Close()
		if err := store.InitSchema(); err != nil {
			return fmt.Errorf("initialize schema: %w", err)
		}
		logger.Info("snapshot database ready", "type", cfg.Database.Type)
	}

	searchClient := search.NewFromConfig(cfg.Search.Meilisearch, logger)
	if searchClient != nil {
		if err := searchClient.InitIndex(); err != nil {
			logger.Warn("failed to initialize search index", "err", err)
		}
	}

	// Interfaces stay nil when the backing service is off.
	var (
		snapshots *snapshot.Service
		cleaner   *cleanup.Service
		deps      = scheduler.Deps{Refresher: view}
	)
	if searchClient != nil {
		deps.Indexer = searchClient
	}
	if store != nil {
		var deleter cleanup.SearchDeleter
		if searchClient != nil {
			deleter = searchClient
		}
		snapshots = snapshot.NewService(store, logger)
		cleaner = cleanup.NewService(store.DB(), deleter, logger)
		deps.Snapshots = snapshots
		deps.Cleaner = cleaner
		deps.State = store
	}

	sched := scheduler.NewScheduler(deps, cfg, logger)
	if err := sched.Start(); err != nil {
		return err
	}
	defer sched.Stop()

	if refreshOnStart {
		go func() {
			if _, err := sched.RunNow(ctx); err != nil {
				logger.Error("startup refresh failed", "err", err)
			}
		}()
	}

	limiter := ratelimit.NewFromConfig(cfg.RateLimit)
	router := handlers.NewRouter(handlers.RouterDeps{
		Catalog:       agg,
		View:          view,
		Store:         store,
		Scheduler:     sched,
		Snapshots:     snapshots,
		Cleanup:       cleaner,
		Search:        searchClient,
		RateLimiter:   limiter,
		AllowOrigins:  cfg.Server.AllowOrigins,
		RetentionDays: cfg.Snapshots.RetentionDays,
		LogRequests:   cfg.Logging.LogRequests,
		Logger:        logger,
	})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           router,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("starting server",
			"addr", addr,
			"image_policy", agg.Policy(),
			"rate_limit", cfg.RateLimit.Enabled)
		serverErr <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
		logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown error: %w", err)
		}
		logger.Info("server stopped")
	}
	return nil
}
