package group

import (
	"context"
	"time"

	"github.com/rxtech-lab/argo-tradlet/internal/types"
	"github.com/rxtech-lab/argo-tradlet/pkg/errors"
	"go.uber.org/zap"
)

// Feed carries market data into a running group. Nil channels are never read.
type Feed struct {
	Ticks <-chan types.Tick
	Bars  <-chan types.Bar
}

// Run drives the group until ctx is done: market data as it arrives, and once per second an
// account poll followed by OnNoopSecond. Destroy is called on the way out.
func (g *Group) Run(ctx context.Context, feed Feed) error {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	defer g.Destroy()

	g.log.Info("Group started", zap.String("instrument", g.config.Instrument), zap.Int("tradlets", len(g.holders)))

	for {
		select {
		case <-ctx.Done():
			g.log.Info("Group stopping")

			return nil
		case tick, ok := <-feed.Ticks:
			if !ok {
				feed.Ticks = nil

				continue
			}

			g.OnTick(tick)
		case bar, ok := <-feed.Bars:
			if !ok {
				feed.Bars = nil

				continue
			}

			g.OnNewBar(bar)
		case cmd := <-g.commands:
			cmd.done <- cmd.fn()
		case <-ticker.C:
			if err := g.Poll(ctx); err != nil {
				g.log.Warn("Failed to poll account events", zap.Error(err))
			}

			g.OnNoopSecond()
		}
	}
}

// Execute runs fn on the group's goroutine and waits for its result.
// It fails with ErrCodeGroupStopped when ctx ends before the group picks fn up.
func (g *Group) Execute(ctx context.Context, fn func() error) error {
	cmd := command{fn: fn, done: make(chan error, 1)}

	select {
	case g.commands <- cmd:
	case <-ctx.Done():
		return errors.Wrapf(errors.ErrCodeGroupStopped, ctx.Err(), "group %s is not running", g.config.ID)
	}

	select {
	case err := <-cmd.done:
		return err
	case <-ctx.Done():
		return errors.Wrapf(errors.ErrCodeGroupStopped, ctx.Err(), "group %s did not finish the command", g.config.ID)
	}
}
