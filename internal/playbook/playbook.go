package playbook

import (
	"maps"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rxtech-lab/argo-tradlet/internal/types"
	"github.com/shopspring/decimal"
)

// Playbook is one round-trip trading intent: an opening order and zero or more closing orders.
// It is owned by a Keeper and only mutated on the owning group's goroutine.
type Playbook struct {
	id         string
	groupID    string
	instrument string
	direction  types.PosDirection
	volume     int
	templateID string
	orders     []*types.Order
	stateTuple StateTuple
	attrs      map[string]string
	createTime time.Time

	openedVolume int
	txnVolumes   map[string]int
	seenTxns     map[string]struct{}
	openAmount   decimal.Decimal
	openTxnVol   int
	closeAmount  decimal.Decimal
	closeTxnVol  int

	// pendingClose is set while a close was requested on an Opening playbook.
	pendingClose   bool
	pendingForce   bool
	forceClose     bool
	timeoutSeconds int
	elapsedSeconds int
	timeoutFired   bool
}

func newPlaybookID() string {
	return "pbk_" + uuid.New().String()
}

func newPlaybook(id, groupID, instrument string, builder Builder, attrs map[string]string, order *types.Order, now time.Time) *Playbook {
	pb := &Playbook{
		id:         id,
		groupID:    groupID,
		instrument: instrument,
		direction:  builder.Direction,
		volume:     builder.Volume,
		templateID: builder.TemplateID,
		orders:     []*types.Order{order},
		stateTuple: StateTuple{
			State:    PlaybookStateOpening,
			OrderRef: order.Ref,
			Action:   StateActionSend,
			Time:     now,
		},
		attrs:          attrs,
		createTime:     now,
		openedVolume:   0,
		txnVolumes:     make(map[string]int),
		seenTxns:       make(map[string]struct{}),
		openAmount:     decimal.Zero,
		openTxnVol:     0,
		closeAmount:    decimal.Zero,
		closeTxnVol:    0,
		pendingClose:   false,
		pendingForce:   false,
		forceClose:     false,
		timeoutSeconds: 0,
		elapsedSeconds: 0,
		timeoutFired:   false,
	}

	if seconds, err := strconv.Atoi(attrs[AttrCloseTimeout]); err == nil && seconds > 0 {
		pb.armCloseTimeout(seconds)
	}

	return pb
}

func (p *Playbook) ID() string {
	return p.id
}

func (p *Playbook) GroupID() string {
	return p.groupID
}

func (p *Playbook) Instrument() string {
	return p.instrument
}

func (p *Playbook) Direction() types.PosDirection {
	return p.direction
}

// Volume is the requested volume.
func (p *Playbook) Volume() int {
	return p.volume
}

func (p *Playbook) TemplateID() string {
	return p.templateID
}

func (p *Playbook) CreateTime() time.Time {
	return p.createTime
}

// Orders returns the playbook's orders; the first one is the opening order.
func (p *Playbook) Orders() []*types.Order {
	out := make([]*types.Order, len(p.orders))
	copy(out, p.orders)

	return out
}

// OpeningOrder returns the order that opened the playbook.
func (p *Playbook) OpeningOrder() *types.Order {
	return p.orders[0]
}

// LastOrder returns the most recently sent order.
func (p *Playbook) LastOrder() *types.Order {
	return p.orders[len(p.orders)-1]
}

func (p *Playbook) StateTuple() StateTuple {
	return p.stateTuple
}

func (p *Playbook) State() PlaybookState {
	return p.stateTuple.State
}

// Attr returns a playbook attribute, or "" when missing.
func (p *Playbook) Attr(key string) string {
	return p.attrs[key]
}

// Attrs returns a copy of the playbook attributes.
func (p *Playbook) Attrs() map[string]string {
	return maps.Clone(p.attrs)
}

// ActionID returns the action id recorded under attr (AttrActionOpen or AttrActionClose).
func (p *Playbook) ActionID(attr string) string {
	return p.attrs[attr]
}

// OpenedVolume is the volume actually opened. Zero until the playbook leaves Opening.
func (p *Playbook) OpenedVolume() int {
	return p.openedVolume
}

// ClosedVolume is the volume filled by closing orders so far.
func (p *Playbook) ClosedVolume() int {
	closed := 0
	for _, order := range p.orders[1:] {
		closed += order.FilledVolume
	}

	return closed
}

// AvgOpenPrice is the volume-weighted price of the opening fills seen as transactions.
func (p *Playbook) AvgOpenPrice() decimal.Decimal {
	if p.openTxnVol == 0 {
		return decimal.Zero
	}

	return p.openAmount.Div(decimal.NewFromInt(int64(p.openTxnVol)))
}

// AvgClosePrice is the volume-weighted price of the closing fills seen as transactions.
func (p *Playbook) AvgClosePrice() decimal.Decimal {
	if p.closeTxnVol == 0 {
		return decimal.Zero
	}

	return p.closeAmount.Div(decimal.NewFromInt(int64(p.closeTxnVol)))
}

// RealizedPnL is the price difference earned on the closed volume, in quote units per volume unit.
func (p *Playbook) RealizedPnL() decimal.Decimal {
	if p.openTxnVol == 0 || p.closeTxnVol == 0 {
		return decimal.Zero
	}

	diff := p.AvgClosePrice().Sub(p.AvgOpenPrice())
	if p.direction == types.PosDirectionShort {
		diff = diff.Neg()
	}

	return diff.Mul(decimal.NewFromInt(int64(p.closeTxnVol)))
}

// CloseTimeout returns the armed forced-close timeout in seconds, or 0.
func (p *Playbook) CloseTimeout() int {
	return p.timeoutSeconds
}

func (p *Playbook) isOpeningOrder(ref string) bool {
	return p.orders[0].Ref == ref
}

func (p *Playbook) setAttr(key, value string) {
	if p.attrs == nil {
		p.attrs = make(map[string]string)
	}

	p.attrs[key] = value
}

// armCloseTimeout starts counting seconds towards a forced close.
func (p *Playbook) armCloseTimeout(seconds int) {
	p.timeoutSeconds = seconds
	p.elapsedSeconds = 0
	p.timeoutFired = false
	p.setAttr(AttrCloseTimeout, strconv.Itoa(seconds))
}

// recordTxn accounts a fill once. It returns false for a duplicate delivery.
func (p *Playbook) recordTxn(txn types.Transaction) bool {
	key := txn.Key()
	if _, seen := p.seenTxns[key]; seen {
		return false
	}

	p.seenTxns[key] = struct{}{}
	p.txnVolumes[txn.OrderRef] += txn.Volume

	amount := decimal.NewFromFloat(txn.Price).Mul(decimal.NewFromInt(int64(txn.Volume)))
	if p.isOpeningOrder(txn.OrderRef) {
		p.openAmount = p.openAmount.Add(amount)
		p.openTxnVol += txn.Volume
	} else {
		p.closeAmount = p.closeAmount.Add(amount)
		p.closeTxnVol += txn.Volume
	}

	return true
}

// txnVolume is the deduplicated fill volume seen as transactions for an order.
func (p *Playbook) txnVolume(ref string) int {
	return p.txnVolumes[ref]
}

// requestClose marks an Opening playbook to be closed once the opening order resolves.
func (p *Playbook) requestClose(force bool) {
	p.pendingClose = true
	p.pendingForce = p.pendingForce || force
}

// appendCloseOrder records a newly sent closing order.
func (p *Playbook) appendCloseOrder(order *types.Order, force bool) {
	p.orders = append(p.orders, order)
	p.forceClose = force
}

// retryTimeout lets the next second fire the forced close again after a failed attempt.
func (p *Playbook) retryTimeout() {
	if p.timeoutSeconds > 0 {
		p.timeoutFired = false
	}
}

// remainingVolume is the opened volume not yet covered by closing fills.
func (p *Playbook) remainingVolume() int {
	return p.openedVolume - p.ClosedVolume()
}

// updateOnOrder evaluates the playbook against the current view of one of its orders.
// It returns nil when nothing changes.
func (p *Playbook) updateOnOrder(order *types.Order, action StateAction, now time.Time) *Transition {
	switch p.State() {
	case PlaybookStateOpening:
		if p.isOpeningOrder(order.Ref) {
			return p.evaluateOpening(order, action, now)
		}
	case PlaybookStateOpened:
		// late fills of an aborted close attempt may still cover the position
		if p.openedVolume > 0 && p.remainingVolume() <= 0 {
			return stateChange(PlaybookStateClosed, order, action, now)
		}
	case PlaybookStateClosing:
		return p.evaluateClosing(order, action, now)
	case PlaybookStateClosed, PlaybookStateCanceled, PlaybookStateFailed:
	}

	return nil
}

func (p *Playbook) evaluateOpening(order *types.Order, action StateAction, now time.Time) *Transition {
	filled := order.FilledVolume
	if filled < order.Volume && !order.State.IsDone() {
		return nil
	}

	if filled == 0 {
		if order.State == types.OrderStateFailed {
			return stateChange(PlaybookStateFailed, order, action, now)
		}

		return stateChange(PlaybookStateCanceled, order, action, now)
	}

	// fully filled, or a terminal order with a partial fill
	p.openedVolume = filled
	tr := stateChange(PlaybookStateOpened, order, action, now)

	if p.pendingClose {
		force := p.pendingForce
		p.pendingClose = false
		p.pendingForce = false

		return tr.withIntent(Intent{Kind: IntentCloseOrder, OrderRef: "", Force: force})
	}

	return tr
}

func (p *Playbook) evaluateClosing(order *types.Order, action StateAction, now time.Time) *Transition {
	if p.remainingVolume() <= 0 {
		return stateChange(PlaybookStateClosed, order, action, now)
	}

	if order.Ref != p.LastOrder().Ref || !order.State.IsDone() {
		return nil
	}

	switch order.State {
	case types.OrderStateFailed:
		return stateChange(PlaybookStateFailed, order, action, now)
	case types.OrderStateCanceled, types.OrderStateRejected:
		if p.forceClose {
			return intentOnly(Intent{Kind: IntentCloseOrder, OrderRef: "", Force: true})
		}

		return stateChange(PlaybookStateOpened, order, action, now)
	default:
		// filled short of the remaining volume: keep closing the rest
		return intentOnly(Intent{Kind: IntentCloseOrder, OrderRef: "", Force: p.forceClose})
	}
}

// onNoopSecond advances the close timeout by one second.
func (p *Playbook) onNoopSecond(now time.Time) *Transition {
	if p.State().IsDone() || p.timeoutSeconds <= 0 || p.timeoutFired {
		return nil
	}

	p.elapsedSeconds++
	if p.elapsedSeconds < p.timeoutSeconds {
		return nil
	}

	p.timeoutFired = true

	switch p.State() {
	case PlaybookStateOpening:
		p.requestClose(true)

		return intentOnly(Intent{Kind: IntentCancelOrder, OrderRef: p.OpeningOrder().Ref, Force: true})
	case PlaybookStateOpened:
		return intentOnly(Intent{Kind: IntentCloseOrder, OrderRef: "", Force: true})
	case PlaybookStateClosing:
		p.forceClose = true
		last := p.LastOrder()

		if last.State.IsDone() {
			return intentOnly(Intent{Kind: IntentCloseOrder, OrderRef: "", Force: true})
		}

		return intentOnly(Intent{Kind: IntentCancelOrder, OrderRef: last.Ref, Force: true})
	case PlaybookStateClosed, PlaybookStateCanceled, PlaybookStateFailed:
	}

	return nil
}
