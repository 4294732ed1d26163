package group

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rxtech-lab/argo-tradlet/internal/account"
	"github.com/rxtech-lab/argo-tradlet/internal/logger"
	"github.com/rxtech-lab/argo-tradlet/internal/marketdata"
	"github.com/rxtech-lab/argo-tradlet/internal/playbook"
	"github.com/rxtech-lab/argo-tradlet/internal/tradlet"
	"github.com/rxtech-lab/argo-tradlet/internal/types"
	"github.com/rxtech-lab/argo-tradlet/pkg/errors"
	"go.uber.org/zap"
)

// Journal persists what happens in a group. Failures are logged and never stop trading.
type Journal interface {
	RecordOrder(groupID string, order *types.Order) error
	RecordTransaction(groupID string, txn *types.Transaction) error
	RecordTransition(groupID string, pb *playbook.Playbook, prev playbook.StateTuple) error
}

// Dependencies are the collaborators of a group. Journal may be nil.
type Dependencies struct {
	Account   account.Account
	Events    account.EventSource
	Snapshots *marketdata.MemorySnapshotStore
	Templates playbook.TemplateStore
	Registry  tradlet.Registry
	Journal   Journal
	Logger    *logger.Logger
}

// Group is the isolation unit owning one keeper, its tradlet holders and one account.
// Everything except Snapshot and Execute must be called from the goroutine running the group.
type Group struct {
	config   Config
	deps     Dependencies
	keeper   *playbook.Keeper
	holders  []*tradlet.Holder
	log      *logger.Logger
	now      func() time.Time
	snapshot atomic.Pointer[Snapshot]
	finished []playbook.View
	commands chan command
}

type command struct {
	fn   func() error
	done chan error
}

func NewGroup(config Config, deps Dependencies) *Group {
	log := deps.Logger.Named("group", zap.String("group_id", config.ID))

	g := &Group{
		config:   config,
		deps:     deps,
		keeper:   playbook.NewKeeper(playbook.KeeperConfig{GroupID: config.ID, Instrument: config.Instrument}, deps.Account, deps.Snapshots, deps.Templates, deps.Logger),
		holders:  nil,
		log:      log,
		now:      time.Now,
		snapshot: atomic.Pointer[Snapshot]{},
		finished: nil,
		commands: make(chan command),
	}

	onOrderRegistered := playbook.OnOrderRegisteredCallback(g.onOrderRegistered)
	onStateChanged := playbook.OnStateChangedCallback(g.onStateChanged)
	g.keeper.SetCallbacks(playbook.KeeperCallbacks{
		OnPlaybookCreated: nil,
		OnOrderRegistered: &onOrderRegistered,
		OnStateChanged:    &onStateChanged,
	})

	g.publish()

	return g
}

// SetClock replaces the time source of the group, its keeper and holders.
func (g *Group) SetClock(now func() time.Time) {
	g.now = now
	g.keeper.SetClock(now)

	for _, h := range g.holders {
		h.SetClock(now)
	}
}

func (g *Group) ID() string {
	return g.config.ID
}

func (g *Group) Keeper() *playbook.Keeper {
	return g.keeper
}

// Holders returns the active tradlet holders.
func (g *Group) Holders() []*tradlet.Holder {
	return append([]*tradlet.Holder(nil), g.holders...)
}

// Init resolves and initializes the configured tradlets. A tradlet that fails is left out;
// the group fails only when none is left.
func (g *Group) Init() error {
	for _, tc := range g.config.Tradlets {
		id := tc.TradletID()

		t, err := g.deps.Registry.Resolve(tc.Name)
		if err != nil {
			g.log.Error("Failed to resolve tradlet", zap.String("tradlet_id", id), zap.String("name", tc.Name), zap.Error(err))

			continue
		}

		holder := tradlet.NewHolder(id, t, &tradlet.Context{
			GroupID:    g.config.ID,
			Instrument: g.config.Instrument,
			Keeper:     g.keeper,
			Config:     tc.Config,
			Logger:     g.log.Named("tradlet", zap.String("tradlet_id", id)),
		})
		holder.SetClock(g.now)

		if err := holder.Init(); err != nil {
			g.log.Error("Failed to init tradlet", zap.String("tradlet_id", id), zap.Error(err))

			continue
		}

		g.holders = append(g.holders, holder)
		g.log.Info("Tradlet initialized", zap.String("tradlet_id", id), zap.String("name", tc.Name))
	}

	g.publish()

	if len(g.config.Tradlets) > 0 && len(g.holders) == 0 {
		return errors.Newf(errors.ErrCodeNoActiveTradlets, "no tradlet of group %s could be initialized", g.config.ID)
	}

	return nil
}

// OnTick records the tick in the market snapshot and hands it to every tradlet.
func (g *Group) OnTick(tick types.Tick) {
	if g.deps.Snapshots != nil {
		g.deps.Snapshots.Update(tick)
	}

	for _, h := range g.holders {
		g.checkFault(h, "OnTick", h.OnTick(tick))
	}

	g.publish()
}

func (g *Group) OnNewBar(bar types.Bar) {
	for _, h := range g.holders {
		g.checkFault(h, "OnNewBar", h.OnNewBar(bar))
	}

	g.publish()
}

// OnNoopSecond advances playbook timeouts, then calls every tradlet.
func (g *Group) OnNoopSecond() {
	g.keeper.OnNoopSecond()

	for _, h := range g.holders {
		g.checkFault(h, "OnNoopSecond", h.OnNoopSecond())
	}

	g.publish()
}

func (g *Group) OnOrder(order *types.Order) {
	g.keeper.UpdateOnOrder(order)

	if order != nil {
		g.journalOrder(g.keeper.Order(order.Ref))
	}

	g.publish()
}

func (g *Group) OnTransaction(txn *types.Transaction) {
	g.keeper.UpdateOnTxn(txn)

	if g.deps.Journal != nil && txn != nil {
		if err := g.deps.Journal.RecordTransaction(g.config.ID, txn); err != nil {
			g.log.Warn("Failed to journal transaction", zap.String("txn_id", txn.ID), zap.Error(err))
		}

		g.journalOrder(g.keeper.Order(txn.OrderRef))
	}

	g.publish()
}

// HandleEvent dispatches an account event.
func (g *Group) HandleEvent(event account.Event) {
	switch event.Kind {
	case account.EventKindOrder:
		g.OnOrder(event.Order)
	case account.EventKindTransaction:
		g.OnTransaction(event.Txn)
	default:
		g.log.Warn("Dropping unknown account event", zap.String("kind", string(event.Kind)))
	}
}

// Poll drains the account's event source.
func (g *Group) Poll(ctx context.Context) error {
	if g.deps.Events == nil {
		return nil
	}

	events, err := g.deps.Events.Poll(ctx)
	if err != nil {
		return err
	}

	for _, event := range events {
		g.HandleEvent(event)
	}

	return nil
}

// ReloadTradlet hands a tradlet a new configuration. A successful reload clears its last fault.
func (g *Group) ReloadTradlet(id, config string) error {
	for _, h := range g.holders {
		if h.ID() != id {
			continue
		}

		if err := h.Reload(config); err != nil {
			g.checkFault(h, "Reload", err)

			return errors.Wrapf(errors.ErrCodeTradletFault, err, "failed to reload tradlet %s", id)
		}

		h.ClearThrowable()
		g.log.Info("Tradlet reloaded", zap.String("tradlet_id", id))
		g.publish()

		return nil
	}

	return errors.Newf(errors.ErrCodeTradletNotFound, "tradlet %s not found in group %s", id, g.config.ID)
}

// Destroy cancels pending orders and destroys every tradlet.
func (g *Group) Destroy() {
	canceled := g.keeper.CancelAllPendingOrders()

	for _, h := range g.holders {
		g.checkFault(h, "Destroy", h.Destroy())
	}

	g.log.Info("Group destroyed", zap.Int("canceled_orders", canceled))
	g.publish()
}

// checkFault records a hook failure on its holder and logs it unless it repeats the last one.
func (g *Group) checkFault(h *tradlet.Holder, hook string, err error) {
	if err == nil {
		return
	}

	if h.SetThrowable(err) {
		g.log.Error("Tradlet hook failed", zap.String("tradlet_id", h.ID()), zap.String("hook", hook), zap.Error(err))

		return
	}

	g.log.Debug("Tradlet hook failed again", zap.String("tradlet_id", h.ID()), zap.String("hook", hook))
}

func (g *Group) onOrderRegistered(_ *playbook.Playbook, order *types.Order) {
	g.journalOrder(order)
}

func (g *Group) onStateChanged(pb *playbook.Playbook, prev playbook.StateTuple) {
	if pb.State().IsDone() && !prev.State.IsDone() {
		g.finish(pb)
	}

	if g.deps.Journal != nil {
		if err := g.deps.Journal.RecordTransition(g.config.ID, pb, prev); err != nil {
			g.log.Warn("Failed to journal transition", zap.String("playbook_id", pb.ID()), zap.Error(err))
		}
	}

	for _, h := range g.holders {
		g.checkFault(h, "OnPlaybookStateChanged", h.OnPlaybookStateChanged(pb, prev))
	}
}

func (g *Group) journalOrder(order *types.Order) {
	if g.deps.Journal == nil || order == nil {
		return
	}

	if err := g.deps.Journal.RecordOrder(g.config.ID, order); err != nil {
		g.log.Warn("Failed to journal order", zap.String("order_ref", order.Ref), zap.Error(err))
	}
}
