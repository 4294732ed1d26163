package main

import (
	"context"
	"time"

	"github.com/rxtech-lab/argo-tradlet/internal/account"
	"github.com/rxtech-lab/argo-tradlet/internal/api"
	"github.com/rxtech-lab/argo-tradlet/internal/config"
	"github.com/rxtech-lab/argo-tradlet/internal/group"
	"github.com/rxtech-lab/argo-tradlet/internal/journal"
	"github.com/rxtech-lab/argo-tradlet/internal/logger"
	"github.com/rxtech-lab/argo-tradlet/internal/marketdata"
	"github.com/rxtech-lab/argo-tradlet/internal/tradlet"
	"github.com/rxtech-lab/argo-tradlet/internal/tradlet/builtin"
	"github.com/rxtech-lab/argo-tradlet/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// host owns every group of one configuration plus the shared journal, stream and API server.
type host struct {
	config    *config.Config
	log       *logger.Logger
	snapshots *marketdata.MemorySnapshotStore
	journal   *journal.DuckDBJournal
	stream    *marketdata.BinanceStream
	server    *api.Server
	groups    []*group.Group
	configs   map[string]group.Config
}

// configUpdates carries validated configuration changes and rejected ones.
type configUpdates struct {
	changes <-chan *config.Config
	invalid <-chan error
}

func newHost(cfg *config.Config, log *logger.Logger) (*host, error) {
	h := &host{
		config:    cfg,
		log:       log,
		snapshots: marketdata.NewMemorySnapshotStore(),
		journal:   nil,
		stream:    nil,
		server:    nil,
		groups:    nil,
		configs:   make(map[string]group.Config, len(cfg.Groups)),
	}

	registry, err := tradlet.NewRegistry(builtin.Entries(), cfg.TradletAliases, tradlet.Discovered())
	if err != nil {
		return nil, err
	}

	if cfg.Journal.Enabled {
		h.journal = journal.NewDuckDBJournal(cfg.Journal.Dir, log)
		if err := h.journal.Initialize(); err != nil {
			return nil, err
		}
	}

	if cfg.Feed.Source == "binance" {
		h.stream = marketdata.NewBinanceStream(cfg.Feed.Interval, log)
	}

	for _, gc := range cfg.Groups {
		acct, events, err := h.newAccount(gc)
		if err != nil {
			h.close()

			return nil, err
		}

		deps := group.Dependencies{
			Account:   acct,
			Events:    events,
			Snapshots: h.snapshots,
			Templates: cfg.TemplateStore(),
			Registry:  registry,
			Journal:   nil,
			Logger:    log,
		}
		if h.journal != nil {
			deps.Journal = h.journal
		}

		g := group.NewGroup(gc, deps)
		if err := g.Init(); err != nil {
			h.close()

			return nil, errors.Wrapf(errors.ErrCodeGroupInitFailed, err, "failed to init group %s", gc.ID)
		}

		h.groups = append(h.groups, g)
		h.configs[gc.ID] = gc
	}

	if cfg.API.Enabled {
		sources := make([]api.GroupSource, 0, len(h.groups))
		for _, g := range h.groups {
			sources = append(sources, g)
		}

		var transitions api.TransitionStore
		if h.journal != nil {
			transitions = h.journal
		}

		h.server = api.NewServer(sources, transitions, log)
	}

	return h, nil
}

func (h *host) newAccount(gc group.Config) (account.Account, account.EventSource, error) {
	switch gc.Account {
	case "binance":
		acct, err := account.NewBinanceAccount(h.config.Binance)
		if err != nil {
			return nil, nil, err
		}

		return acct, acct, nil
	default:
		acct := account.NewPaperAccount(h.config.Paper, h.snapshots)

		return acct, acct, nil
	}
}

// run drives every group until ctx is done or one of them fails.
func (h *host) run(ctx context.Context, updates configUpdates) error {
	defer h.close()

	if h.server != nil {
		if err := h.server.Start(h.config.API.Address); err != nil {
			return err
		}

		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			if err := h.server.Stop(shutdownCtx); err != nil {
				h.log.Warn("Failed to stop API server", zap.Error(err))
			}
		}()
	}

	eg, ctx := errgroup.WithContext(ctx)

	for _, g := range h.groups {
		feed, err := h.subscribe(ctx, g.ID())
		if err != nil {
			return err
		}

		eg.Go(func() error {
			return g.Run(ctx, feed)
		})
	}

	eg.Go(func() error {
		h.watch(ctx, updates)

		return nil
	})

	if h.journal != nil && h.config.Journal.FlushSeconds > 0 {
		eg.Go(func() error {
			h.flushEvery(ctx, time.Duration(h.config.Journal.FlushSeconds)*time.Second)

			return nil
		})
	}

	return eg.Wait()
}

func (h *host) subscribe(ctx context.Context, groupID string) (group.Feed, error) {
	if h.stream == nil {
		return group.Feed{Ticks: nil, Bars: nil}, nil
	}

	ticks, bars, err := h.stream.Subscribe(ctx, h.configs[groupID].Instrument)
	if err != nil {
		return group.Feed{}, err
	}

	return group.Feed{Ticks: ticks, Bars: bars}, nil
}

func (h *host) watch(ctx context.Context, updates configUpdates) {
	for {
		select {
		case <-ctx.Done():
			return
		case err := <-updates.invalid:
			h.log.Warn("Ignoring invalid configuration change", zap.Error(err))
		case next := <-updates.changes:
			h.apply(ctx, next)
		}
	}
}

// apply reloads every tradlet whose configuration text changed. Added or removed groups and
// tradlets need a restart and are only reported.
func (h *host) apply(ctx context.Context, next *config.Config) {
	for _, g := range h.groups {
		prev := h.configs[g.ID()]

		nextGroup, ok := next.Group(g.ID())
		if !ok {
			h.log.Warn("Group removed from configuration, restart to apply", zap.String("group_id", g.ID()))

			continue
		}

		for _, change := range reloads(prev, nextGroup) {
			err := g.Execute(ctx, func() error {
				return g.ReloadTradlet(change.TradletID(), change.Config)
			})
			if err != nil {
				h.log.Error("Failed to reload tradlet", zap.String("group_id", g.ID()), zap.String("tradlet_id", change.TradletID()), zap.Error(err))

				continue
			}

			h.log.Info("Tradlet reloaded", zap.String("group_id", g.ID()), zap.String("tradlet_id", change.TradletID()))
		}

		h.configs[g.ID()] = nextGroup
	}
}

// reloads returns the tradlets of next whose config differs from prev.
func reloads(prev, next group.Config) []group.TradletConfig {
	before := make(map[string]group.TradletConfig, len(prev.Tradlets))
	for _, tc := range prev.Tradlets {
		before[tc.TradletID()] = tc
	}

	var changed []group.TradletConfig

	for _, tc := range next.Tradlets {
		old, ok := before[tc.TradletID()]
		if !ok || old.Name != tc.Name {
			continue
		}

		if old.Config != tc.Config {
			changed = append(changed, tc)
		}
	}

	return changed
}

func (h *host) flushEvery(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := h.journal.Flush(); err != nil {
				h.log.Warn("Failed to flush journal", zap.Error(err))
			}
		}
	}
}

func (h *host) close() {
	if h.journal == nil {
		return
	}

	if err := h.journal.Close(); err != nil {
		h.log.Warn("Failed to close journal", zap.Error(err))
	}

	h.journal = nil
}
