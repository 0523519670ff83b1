package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"

	"github.com/agentic-research/dmpath/internal/binding"
	"github.com/agentic-research/dmpath/internal/config"
	"github.com/agentic-research/dmpath/internal/httpapi"
	"github.com/agentic-research/dmpath/internal/metrics"
)

var watchConfig bool

func init() {
	serveCmd.Flags().BoolVar(&watchConfig, "watch", true, "Reload feeds when the config file changes")
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the enabled modules and serve the HTTP API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), unix.SIGINT, unix.SIGTERM)
		defer stop()

		cfg, err := config.LoadWithFallback(configPath)
		if err != nil {
			return err
		}

		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		m := metrics.NewWithRegistry(reg)

		rt, err := newRuntime(cfg, cmd.ErrOrStderr(), m)
		if err != nil {
			return err
		}
		logger := rt.logger

		if _, statErr := os.Stat(configPath); statErr == nil && watchConfig {
			holder, err := config.NewHolder(configPath, logger, m)
			if err != nil {
				return err
			}
			defer holder.Stop()
			holder.OnChange(func(old, new *config.Config) {
				if old.Feeds == new.Feeds {
					return
				}
				if err := rt.reloadFeeds(ctx, new.Feeds); err != nil {
					logger.Error().Err(err).Msg("feed reload failed")
				}
			})
			if err := holder.WatchFile(); err != nil {
				return err
			}
			holder.WatchSignals()
		}

		store, err := binding.Open(cfg.Store.DSN)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		tracker := binding.NewTracker(rt.manager, logger, m)
		defer tracker.Close()
		if err := tracker.Load(ctx, store); err != nil {
			return err
		}

		if err := rt.enableStartup(ctx); err != nil {
			return err
		}
		defer rt.close(context.Background())

		routerCfg := httpapi.Config{
			Manager:  rt.manager,
			Tracker:  tracker,
			Store:    store,
			Logger:   logger,
			Metrics:  m,
			MaxDepth: cfg.Engine.MaxDepth,
		}
		if cfg.HTTP.Metrics {
			routerCfg.Gatherer = reg
		}
		srv := &http.Server{
			Addr:         cfg.HTTP.Addr,
			Handler:      httpapi.NewRouter(routerCfg),
			ReadTimeout:  cfg.HTTP.ReadTimeout,
			WriteTimeout: cfg.HTTP.WriteTimeout,
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			return rt.manager.Run(gctx, cfg.Engine.TickInterval)
		})
		g.Go(func() error {
			logger.Info().Str("addr", cfg.HTTP.Addr).Msg("http server listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})

		err = g.Wait()
		logger.Info().Msg("shutting down")
		return err
	},
}
