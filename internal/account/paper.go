package account

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/rxtech-lab/argo-tradlet/internal/marketdata"
	"github.com/rxtech-lab/argo-tradlet/internal/types"
	"github.com/rxtech-lab/argo-tradlet/pkg/errors"
)

// PaperConfig controls the paper account's fill simulation.
type PaperConfig struct {
	// AutoFill fills every working order in full on the next Poll.
	AutoFill bool `yaml:"autoFill" json:"autoFill" mapstructure:"autoFill" jsonschema:"title=Auto fill,description=Fill working orders in full on the next poll"`
}

// PaperAccount is an in-memory Account for simulation runs and tests.
// Requests are acknowledged synchronously; updates and fills are queued until the next Poll.
type PaperAccount struct {
	mu        sync.Mutex
	config    PaperConfig
	snapshots marketdata.SnapshotStore
	orders    map[string]*types.Order
	queue     []Event
	nextRef   int
	nextTxn   int
	now       func() time.Time
}

// NewPaperAccount creates a paper account. snapshots may be nil; it is used to price BEST orders.
func NewPaperAccount(config PaperConfig, snapshots marketdata.SnapshotStore) *PaperAccount {
	return &PaperAccount{
		mu:        sync.Mutex{},
		config:    config,
		snapshots: snapshots,
		orders:    make(map[string]*types.Order),
		queue:     nil,
		nextRef:   0,
		nextTxn:   0,
		now:       time.Now,
	}
}

// CreateOrder implements Account.
func (p *PaperAccount) CreateOrder(spec types.OrderSpec) (*types.Order, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.nextRef++
	ref := "paper-" + strconv.Itoa(p.nextRef)
	order := types.NewOrder(ref, spec, p.now())
	order.State = types.OrderStateSubmitted
	p.orders[ref] = order

	accepted := order.Clone()
	accepted.State = types.OrderStateAccepted
	p.apply(accepted)

	return order.Clone(), nil
}

// CancelOrder implements Account.
func (p *PaperAccount) CancelOrder(ref string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	order, ok := p.orders[ref]
	if !ok {
		return errors.Newf(errors.ErrCodeOrderNotFound, "order not found: %s", ref)
	}

	if order.State.IsDone() {
		return errors.Newf(errors.ErrCodeCancelFailed, "order %s is already %s", ref, order.State)
	}

	canceled := order.Clone()
	canceled.State = types.OrderStateCanceled
	p.apply(canceled)

	return nil
}

// Fill reports a fill of volume units at price for a working order.
func (p *PaperAccount) Fill(ref string, volume int, price float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.fill(ref, volume, price)
}

// Reject rejects a working order.
func (p *PaperAccount) Reject(ref string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	order, ok := p.orders[ref]
	if !ok {
		return errors.Newf(errors.ErrCodeOrderNotFound, "order not found: %s", ref)
	}

	if order.State.IsDone() {
		return errors.Newf(errors.ErrCodeAccountRejected, "order %s is already %s", ref, order.State)
	}

	rejected := order.Clone()
	rejected.State = types.OrderStateRejected
	p.apply(rejected)

	return nil
}

// Order returns a copy of the account's view of an order.
func (p *PaperAccount) Order(ref string) (*types.Order, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	order, ok := p.orders[ref]
	if !ok {
		return nil, false
	}

	return order.Clone(), true
}

// Poll implements EventSource.
func (p *PaperAccount) Poll(_ context.Context) ([]Event, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.config.AutoFill {
		p.autoFill()
	}

	events := p.queue
	p.queue = nil

	return events, nil
}

// autoFill fills all working orders that can be priced. Caller holds p.mu.
func (p *PaperAccount) autoFill() {
	for i := 1; i <= p.nextRef; i++ {
		ref := "paper-" + strconv.Itoa(i)

		order, ok := p.orders[ref]
		if !ok || order.State.IsDone() {
			continue
		}

		price, ok := p.fillPrice(order)
		if !ok {
			continue
		}

		_ = p.fill(ref, order.Volume-order.FilledVolume, price)
	}
}

func (p *PaperAccount) fillPrice(order *types.Order) (float64, bool) {
	if order.PriceType == types.OrderPriceTypeLimit {
		return order.LimitPrice, true
	}

	if p.snapshots == nil {
		return 0, false
	}

	tick := p.snapshots.LastTick(order.Instrument)
	if tick.IsNone() {
		return 0, false
	}

	t := tick.Unwrap()
	if !t.HasQuote() {
		return t.LastPrice, t.LastPrice > 0
	}

	if order.Direction == types.OrderDirectionBuy {
		return t.AskPrice, true
	}

	return t.BidPrice, true
}

// fill records a fill. Caller holds p.mu.
func (p *PaperAccount) fill(ref string, volume int, price float64) error {
	order, ok := p.orders[ref]
	if !ok {
		return errors.Newf(errors.ErrCodeOrderNotFound, "order not found: %s", ref)
	}

	if order.State.IsDone() {
		return errors.Newf(errors.ErrCodeAccountRejected, "order %s is already %s", ref, order.State)
	}

	if volume <= 0 || order.FilledVolume+volume > order.Volume {
		return errors.Newf(errors.ErrCodeInvalidParameter, "invalid fill volume %d for order %s (%d/%d filled)",
			volume, ref, order.FilledVolume, order.Volume)
	}

	p.nextTxn++
	txn := &types.Transaction{
		ID:        "t-" + strconv.Itoa(p.nextTxn),
		OrderRef:  ref,
		Direction: order.Direction,
		Volume:    volume,
		Price:     price,
		Time:      p.now(),
	}
	p.queue = append(p.queue, TxnEvent(txn))

	updated := order.Clone()
	updated.FilledVolume += volume
	updated.State = types.OrderStatePartiallyFilled

	if updated.FilledVolume == updated.Volume {
		updated.State = types.OrderStateFilled
	}

	p.apply(updated)

	return nil
}

// apply stores the new order view and queues an update. Caller holds p.mu.
func (p *PaperAccount) apply(order *types.Order) {
	order.UpdateTime = p.now()
	p.orders[order.Ref] = order
	p.queue = append(p.queue, OrderEvent(order.Clone()))
}

var _ Account = (*PaperAccount)(nil)

var _ EventSource = (*PaperAccount)(nil)
