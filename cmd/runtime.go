package cmd

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"slices"
	"sync"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/rs/zerolog"

	"github.com/agentic-research/dmpath/api"
	"github.com/agentic-research/dmpath/internal/config"
	"github.com/agentic-research/dmpath/internal/feed"
	"github.com/agentic-research/dmpath/internal/logging"
	"github.com/agentic-research/dmpath/internal/metrics"
	"github.com/agentic-research/dmpath/internal/module"
	"github.com/agentic-research/dmpath/internal/sim"
)

const simTrack = "Spa-Francorchamps"

// runtime is the module set shared by every command.
type runtime struct {
	cfg     *config.Config
	logger  zerolog.Logger
	metrics *metrics.Collector
	manager *module.Manager

	mu    sync.Mutex
	feeds []string
}

func newRuntime(cfg *config.Config, logOut io.Writer, m *metrics.Collector) (*runtime, error) {
	logger, err := logging.New(cfg.Logging, logOut)
	if err != nil {
		return nil, err
	}
	if m == nil {
		m = metrics.Nop()
	}
	rt := &runtime{
		cfg:     cfg,
		logger:  logger,
		metrics: m,
		manager: module.NewManager(logger, m),
	}
	if err := rt.manager.Register(sim.New(simTrack, logger)); err != nil {
		return nil, err
	}
	mods, err := loadFeeds(cfg.Feeds, logger, m)
	if err != nil {
		return nil, err
	}
	for _, mod := range mods {
		if err := rt.manager.Register(mod); err != nil {
			return nil, err
		}
		rt.feeds = append(rt.feeds, mod.ID())
	}
	return rt, nil
}

func loadFeeds(cfg config.FeedsConfig, logger zerolog.Logger, m *metrics.Collector) ([]*feed.Module, error) {
	if cfg.File == "" {
		return nil, nil
	}
	defs := osfs.New(filepath.Dir(cfg.File))
	set, err := api.LoadFeeds(defs, filepath.Base(cfg.File))
	if err != nil {
		return nil, err
	}
	return feed.NewSet(set, osfs.New(cfg.Dir), logger, m)
}

// enableStartup enables the modules configured to run at startup.
func (rt *runtime) enableStartup(ctx context.Context) error {
	if rt.cfg.Modules.Simulator {
		if err := rt.manager.Enable(ctx, sim.ID); err != nil {
			return err
		}
	}
	rt.mu.Lock()
	feeds := slices.Clone(rt.feeds)
	rt.mu.Unlock()
	for _, id := range feeds {
		if err := rt.manager.Enable(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// enableOne enables id and runs one update so feeds are populated.
func (rt *runtime) enableOne(ctx context.Context, id string) error {
	if err := rt.manager.Enable(ctx, id); err != nil {
		return err
	}
	return rt.manager.UpdateAll(ctx, 0)
}

// reloadFeeds hot swaps feed modules after a configuration change. Feeds
// that disappeared are unregistered; new ones are enabled.
func (rt *runtime) reloadFeeds(ctx context.Context, cfg config.FeedsConfig) error {
	mods, err := loadFeeds(cfg, rt.logger, rt.metrics)
	if err != nil {
		return fmt.Errorf("reload feeds: %w", err)
	}

	rt.mu.Lock()
	defer rt.mu.Unlock()

	next := make([]string, 0, len(mods))
	for _, mod := range mods {
		id := mod.ID()
		next = append(next, id)
		existed := slices.Contains(rt.feeds, id)
		if err := rt.manager.Swap(ctx, mod); err != nil {
			rt.logger.Error().Err(err).Str("module", id).Msg("feed swap failed")
			continue
		}
		if !existed {
			if err := rt.manager.Enable(ctx, id); err != nil {
				rt.logger.Error().Err(err).Str("module", id).Msg("feed enable failed")
			}
		}
	}
	for _, id := range rt.feeds {
		if slices.Contains(next, id) {
			continue
		}
		if err := rt.manager.Unregister(ctx, id); err != nil {
			rt.logger.Error().Err(err).Str("module", id).Msg("feed removal failed")
		}
	}
	rt.feeds = next
	rt.logger.Info().Strs("feeds", next).Msg("feeds reloaded")
	return nil
}

func (rt *runtime) close(ctx context.Context) {
	if err := rt.manager.DisableAll(ctx); err != nil {
		rt.logger.Warn().Err(err).Msg("disable modules")
	}
}
