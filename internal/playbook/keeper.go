package playbook

import (
	"strings"
	"time"

	"github.com/rxtech-lab/argo-tradlet/internal/account"
	"github.com/rxtech-lab/argo-tradlet/internal/logger"
	"github.com/rxtech-lab/argo-tradlet/internal/marketdata"
	"github.com/rxtech-lab/argo-tradlet/internal/types"
	"github.com/rxtech-lab/argo-tradlet/pkg/errors"
	"go.uber.org/zap"
)

// OnPlaybookCreatedCallback is called after a playbook and its opening order are registered.
type OnPlaybookCreatedCallback func(pb *Playbook)

// OnOrderRegisteredCallback is called for every order added to the keeper, opening orders included.
type OnOrderRegisteredCallback func(pb *Playbook, order *types.Order)

// OnStateChangedCallback is called when a playbook's state changes. prev is the tuple before the change.
type OnStateChangedCallback func(pb *Playbook, prev StateTuple)

// KeeperCallbacks holds the optional observers of a Keeper.
// All callbacks are optional - nil callbacks are simply not called.
type KeeperCallbacks struct {
	OnPlaybookCreated *OnPlaybookCreatedCallback
	OnOrderRegistered *OnOrderRegisteredCallback
	OnStateChanged    *OnStateChangedCallback
}

// KeeperConfig identifies the group and instrument a keeper trades.
type KeeperConfig struct {
	GroupID    string
	Instrument string
}

// Keeper owns every order and playbook of one trading group and routes account events to them.
// It is not safe for concurrent use; the owning group calls it from a single goroutine.
type Keeper struct {
	config    KeeperConfig
	account   account.Account
	snapshots marketdata.SnapshotStore
	templates TemplateStore
	log       *logger.Logger
	callbacks KeeperCallbacks
	now       func() time.Time

	allOrders       []*types.Order
	ordersByRef     map[string]*types.Order
	pendingOrders   []*types.Order
	allPlaybooks    map[string]*Playbook
	playbookOrder   []*Playbook
	activePlaybooks []*Playbook
}

// NewKeeper creates a keeper. snapshots and templates may be nil.
func NewKeeper(config KeeperConfig, acct account.Account, snapshots marketdata.SnapshotStore, templates TemplateStore, log *logger.Logger) *Keeper {
	return &Keeper{
		config:    config,
		account:   acct,
		snapshots: snapshots,
		templates: templates,
		log:       log.Named("keeper", zap.String("group_id", config.GroupID)),
		callbacks: KeeperCallbacks{
			OnPlaybookCreated: nil,
			OnOrderRegistered: nil,
			OnStateChanged:    nil,
		},
		now:             time.Now,
		allOrders:       nil,
		ordersByRef:     make(map[string]*types.Order),
		pendingOrders:   nil,
		allPlaybooks:    make(map[string]*Playbook),
		playbookOrder:   nil,
		activePlaybooks: nil,
	}
}

// SetCallbacks replaces the keeper's observers.
func (k *Keeper) SetCallbacks(callbacks KeeperCallbacks) {
	k.callbacks = callbacks
}

// SetClock replaces the keeper's time source.
func (k *Keeper) SetClock(now func() time.Time) {
	k.now = now
}

func (k *Keeper) GroupID() string {
	return k.config.GroupID
}

func (k *Keeper) Instrument() string {
	return k.config.Instrument
}

// AllOrders returns every order ever registered, in registration order.
func (k *Keeper) AllOrders() []*types.Order {
	return append([]*types.Order(nil), k.allOrders...)
}

// PendingOrders returns the registered orders that have not reached a terminal state.
func (k *Keeper) PendingOrders() []*types.Order {
	return append([]*types.Order(nil), k.pendingOrders...)
}

// LastOrder returns the most recently registered order, or nil.
func (k *Keeper) LastOrder() *types.Order {
	if len(k.allOrders) == 0 {
		return nil
	}

	return k.allOrders[len(k.allOrders)-1]
}

// LastPendingOrder returns the most recently registered pending order, or nil.
func (k *Keeper) LastPendingOrder() *types.Order {
	if len(k.pendingOrders) == 0 {
		return nil
	}

	return k.pendingOrders[len(k.pendingOrders)-1]
}

// AllPlaybooks returns every playbook ever created, in creation order.
func (k *Keeper) AllPlaybooks() []*Playbook {
	return append([]*Playbook(nil), k.playbookOrder...)
}

// ActivePlaybooks returns the non-terminal playbooks whose open action id starts with
// openActionIDPrefix. An empty prefix matches all.
func (k *Keeper) ActivePlaybooks(openActionIDPrefix string) []*Playbook {
	if openActionIDPrefix == "" {
		return append([]*Playbook(nil), k.activePlaybooks...)
	}

	result := make([]*Playbook, 0, len(k.activePlaybooks))
	for _, pb := range k.activePlaybooks {
		if strings.HasPrefix(pb.ActionID(AttrActionOpen), openActionIDPrefix) {
			result = append(result, pb)
		}
	}

	return result
}

// Order returns the keeper's view of the order with the given ref, or nil.
func (k *Keeper) Order(ref string) *types.Order {
	return k.ordersByRef[ref]
}

// Playbook returns the playbook with the given id, or nil.
func (k *Keeper) Playbook(id string) *Playbook {
	return k.allPlaybooks[id]
}

// CreatePlaybook sends the opening order and registers the new playbook.
// Nothing is registered when the account rejects the order.
func (k *Keeper) CreatePlaybook(builder Builder) (*Playbook, error) {
	if err := builder.Validate(); err != nil {
		return nil, err
	}

	id := newPlaybookID()
	attrs := k.mergeAttrs(builder)

	spec := types.OrderSpec{
		Instrument: k.config.Instrument,
		Direction:  builder.Direction.OpenOrderDirection(),
		PriceType:  types.OrderPriceTypeLimit,
		LimitPrice: 0,
		Volume:     builder.Volume,
		OffsetFlag: types.OrderOffsetOpen,
		Attrs:      map[string]string{types.AttrPlaybookID: id},
	}

	if builder.OpenPrice.IsSome() {
		spec.LimitPrice = builder.OpenPrice.Unwrap()
	} else {
		k.priceFromSnapshot(&spec)
	}

	order, err := k.account.CreateOrder(spec)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrCodeOrderFailed, err, "failed to create opening order for playbook %s", id)
	}

	pb := newPlaybook(id, k.config.GroupID, k.config.Instrument, builder, attrs, order, k.now())
	k.allPlaybooks[id] = pb
	k.playbookOrder = append(k.playbookOrder, pb)
	k.activePlaybooks = append(k.activePlaybooks, pb)

	k.log.Info("Playbook created",
		zap.String("playbook_id", id),
		zap.String("order_ref", order.Ref),
		zap.String("direction", string(pb.Direction())),
		zap.Int("volume", pb.Volume()),
		zap.String("price_type", string(order.PriceType)),
		zap.Float64("limit_price", order.LimitPrice),
	)

	if k.callbacks.OnPlaybookCreated != nil {
		(*k.callbacks.OnPlaybookCreated)(pb)
	}

	k.registerOrder(pb, order)

	// some accounts resolve orders synchronously
	if order.State.IsDone() {
		k.reconcile(pb, pb.updateOnOrder(order, StateActionUpdate, k.now()))
	}

	return pb, nil
}

// ClosePlaybook requests closing pb. An Opening playbook gets its opening order canceled; an
// Opened one gets a closing order and moves to Closing. Any other state, or an account failure,
// returns false.
func (k *Keeper) ClosePlaybook(pb *Playbook, req CloseRequest) bool {
	if pb == nil {
		return false
	}

	result := false

	switch pb.State() {
	case PlaybookStateOpening:
		result = k.cancelOpeningOrder(pb)
	case PlaybookStateOpened:
		result = k.sendCloseOrder(pb, false)
	case PlaybookStateClosing, PlaybookStateClosed, PlaybookStateCanceled, PlaybookStateFailed:
		result = false
	}

	if result {
		if req.Timeout > 0 {
			pb.armCloseTimeout(req.Timeout)
		}

		if req.ActionID != "" {
			pb.setAttr(AttrActionClose, req.ActionID)
		}
	}

	return result
}

// SetCloseTimeout arms a forced close after seconds noop seconds. It returns false for terminal
// playbooks or a non-positive timeout.
func (k *Keeper) SetCloseTimeout(pb *Playbook, seconds int) bool {
	if pb == nil || pb.State().IsDone() || seconds <= 0 {
		return false
	}

	pb.armCloseTimeout(seconds)

	return true
}

// CancelAllPendingOrders requests cancellation of every revocable pending order and returns
// how many requests were accepted. Failures are logged and skipped.
func (k *Keeper) CancelAllPendingOrders() int {
	sent := 0

	for _, order := range k.PendingOrders() {
		if !order.State.IsRevocable() {
			continue
		}

		if k.cancelOrder(order.Ref) {
			sent++
		}
	}

	return sent
}

// UpdateOnOrder applies an order update reported by the account.
func (k *Keeper) UpdateOnOrder(update *types.Order) {
	if update == nil {
		return
	}

	stored, pb := k.resolve(update.Ref)
	if pb == nil {
		k.log.Warn("Dropping order update without playbook",
			zap.String("order_ref", update.Ref),
			zap.String("playbook_id", update.PlaybookID()),
			zap.String("state", string(update.State)),
		)

		return
	}

	if !mergeOrderUpdate(stored, update, k.now()) {
		k.log.Debug("Ignoring duplicate order update", zap.String("order_ref", update.Ref))

		return
	}

	if stored.State.IsDone() {
		k.removePending(stored.Ref)
	}

	k.reconcile(pb, pb.updateOnOrder(stored, StateActionUpdate, k.now()))
}

// UpdateOnTxn applies a fill reported by the account. Repeated deliveries are ignored.
func (k *Keeper) UpdateOnTxn(txn *types.Transaction) {
	if txn == nil {
		return
	}

	stored, pb := k.resolve(txn.OrderRef)
	if pb == nil {
		k.log.Warn("Dropping transaction without playbook",
			zap.String("order_ref", txn.OrderRef),
			zap.String("txn_id", txn.ID),
		)

		return
	}

	if !pb.recordTxn(*txn) {
		k.log.Debug("Ignoring duplicate transaction", zap.String("order_ref", txn.OrderRef), zap.String("txn_id", txn.ID))

		return
	}

	if !mergeFill(stored, pb.txnVolume(stored.Ref), k.now()) {
		return
	}

	if stored.State.IsDone() {
		k.removePending(stored.Ref)
	}

	k.reconcile(pb, pb.updateOnOrder(stored, StateActionFill, k.now()))
}

// OnNoopSecond advances time-based transitions of every active playbook by one second.
func (k *Keeper) OnNoopSecond() {
	now := k.now()

	for _, pb := range k.ActivePlaybooks("") {
		k.reconcile(pb, pb.onNoopSecond(now))
	}
}

func (k *Keeper) resolve(ref string) (*types.Order, *Playbook) {
	stored, ok := k.ordersByRef[ref]
	if !ok {
		return nil, nil
	}

	pb := k.allPlaybooks[stored.PlaybookID()]
	if pb == nil {
		return nil, nil
	}

	return stored, pb
}

// reconcile applies a transition and performs the intent it carries.
func (k *Keeper) reconcile(pb *Playbook, tr *Transition) {
	if tr == nil {
		return
	}

	expected := pb.stateTuple
	if tr.Next.IsSome() {
		expected = tr.Next.Unwrap()
		k.changeState(pb, expected)
	}

	if tr.Intent.IsNone() || pb.State().IsDone() {
		return
	}

	intent := tr.Intent.Unwrap()

	// a state change observer may have acted on pb already
	if pb.stateTuple.State != expected.State || pb.stateTuple.OrderRef != expected.OrderRef {
		k.log.Debug("Dropping stale playbook intent",
			zap.String("playbook_id", pb.ID()),
			zap.String("intent", string(intent.Kind)),
			zap.String("state", string(pb.State())),
		)

		return
	}

	switch intent.Kind {
	case IntentCancelOrder:
		k.cancelOrder(intent.OrderRef)
	case IntentCloseOrder:
		if !k.sendCloseOrder(pb, intent.Force) && intent.Force {
			pb.retryTimeout()
		}
	}
}

func (k *Keeper) changeState(pb *Playbook, next StateTuple) {
	prev := pb.stateTuple
	pb.stateTuple = next

	if prev.State == next.State {
		return
	}

	k.log.Info("Playbook state changed",
		zap.String("playbook_id", pb.ID()),
		zap.String("from", string(prev.State)),
		zap.String("to", string(next.State)),
		zap.String("order_ref", next.OrderRef),
		zap.String("action", string(next.Action)),
	)

	if next.State.IsDone() {
		k.retire(pb)
	}

	if k.callbacks.OnStateChanged != nil {
		(*k.callbacks.OnStateChanged)(pb, prev)
	}
}

func (k *Keeper) cancelOpeningOrder(pb *Playbook) bool {
	order := pb.OpeningOrder()
	if order.State.IsDone() {
		return false
	}

	if !k.cancelOrder(order.Ref) {
		return false
	}

	pb.requestClose(false)

	return true
}

// sendCloseOrder sends one closing order for the remaining volume and moves pb to Closing.
func (k *Keeper) sendCloseOrder(pb *Playbook, force bool) bool {
	if pb.State() == PlaybookStateClosing && !pb.LastOrder().State.IsDone() {
		return false
	}

	remaining := pb.remainingVolume()
	if remaining <= 0 {
		return false
	}

	spec := types.OrderSpec{
		Instrument: pb.Instrument(),
		Direction:  pb.Direction().CloseOrderDirection(),
		PriceType:  types.OrderPriceTypeBest,
		LimitPrice: 0,
		Volume:     remaining,
		OffsetFlag: types.OrderOffsetClose,
		Attrs:      map[string]string{types.AttrPlaybookID: pb.ID()},
	}

	if !force {
		k.priceFromSnapshot(&spec)
	}

	order, err := k.account.CreateOrder(spec)
	if err != nil {
		k.log.Error("Failed to create closing order",
			zap.String("playbook_id", pb.ID()),
			zap.Bool("force", force),
			zap.Error(err),
		)

		return false
	}

	pb.appendCloseOrder(order, force)
	k.registerOrder(pb, order)
	k.changeState(pb, StateTuple{
		State:    PlaybookStateClosing,
		OrderRef: order.Ref,
		Action:   StateActionSend,
		Time:     k.now(),
	})

	if order.State.IsDone() {
		k.reconcile(pb, pb.updateOnOrder(order, StateActionUpdate, k.now()))
	}

	return true
}

func (k *Keeper) cancelOrder(ref string) bool {
	if err := k.account.CancelOrder(ref); err != nil {
		k.log.Error("Failed to cancel order", zap.String("order_ref", ref), zap.Error(err))

		return false
	}

	return true
}

// priceFromSnapshot prices spec at the opposing best quote, or BEST without one.
func (k *Keeper) priceFromSnapshot(spec *types.OrderSpec) {
	spec.PriceType = types.OrderPriceTypeBest
	spec.LimitPrice = 0

	if k.snapshots == nil {
		return
	}

	tick := k.snapshots.LastTick(spec.Instrument)
	if tick.IsNone() {
		return
	}

	price := tick.Unwrap().BidPrice
	if spec.Direction == types.OrderDirectionSell {
		price = tick.Unwrap().AskPrice
	}

	if price > 0 {
		spec.PriceType = types.OrderPriceTypeLimit
		spec.LimitPrice = price
	}
}

// mergeAttrs layers template attributes under the builder's own.
func (k *Keeper) mergeAttrs(builder Builder) map[string]string {
	attrs := make(map[string]string)

	if builder.TemplateID != "" {
		var template map[string]string

		found := false
		if k.templates != nil {
			template, found = k.templates.Template(builder.TemplateID)
		}

		if found {
			for key, value := range template {
				attrs[key] = value
			}
		} else {
			k.log.Warn("Playbook template not found", zap.String("template_id", builder.TemplateID))
		}
	}

	for key, value := range builder.Attrs {
		attrs[key] = value
	}

	if builder.OpenActionID != "" {
		attrs[AttrActionOpen] = builder.OpenActionID
	}

	return attrs
}

func (k *Keeper) registerOrder(pb *Playbook, order *types.Order) {
	k.allOrders = append(k.allOrders, order)
	k.ordersByRef[order.Ref] = order

	if !order.State.IsDone() {
		k.pendingOrders = append(k.pendingOrders, order)
	}

	if k.callbacks.OnOrderRegistered != nil {
		(*k.callbacks.OnOrderRegistered)(pb, order)
	}
}

// removePending drops ref from the pending set. Removing an absent order is a no-op.
func (k *Keeper) removePending(ref string) {
	for i, order := range k.pendingOrders {
		if order.Ref == ref {
			k.pendingOrders = append(k.pendingOrders[:i], k.pendingOrders[i+1:]...)

			return
		}
	}
}

func (k *Keeper) retire(pb *Playbook) {
	for i, active := range k.activePlaybooks {
		if active == pb {
			k.activePlaybooks = append(k.activePlaybooks[:i], k.activePlaybooks[i+1:]...)

			return
		}
	}
}

// orderStateRank orders the non-terminal states so stale updates never move an order backwards.
func orderStateRank(state types.OrderState) int {
	switch state {
	case types.OrderStateSubmitting:
		return 0
	case types.OrderStateSubmitted:
		return 1
	case types.OrderStateAccepted:
		return 2
	case types.OrderStatePartiallyFilled:
		return 3
	default:
		return 4
	}
}

// mergeOrderUpdate folds an account update into the keeper's order. It returns false when the
// update changes nothing: a duplicate, a stale update, or anything after a terminal state.
func mergeOrderUpdate(stored, update *types.Order, now time.Time) bool {
	if stored.State.IsDone() {
		return false
	}

	state := update.State
	filled := max(stored.FilledVolume, update.FilledVolume)

	if state == types.OrderStateFilled {
		filled = stored.Volume
	}

	if !state.IsDone() && orderStateRank(state) < orderStateRank(stored.State) {
		state = stored.State
	}

	if state == stored.State && filled == stored.FilledVolume {
		return false
	}

	stored.State = state
	stored.FilledVolume = min(filled, stored.Volume)
	stored.UpdateTime = now

	return true
}

// mergeFill raises the order's filled volume to the deduplicated transaction total.
// A transaction total reaching the order volume completes the order.
func mergeFill(stored *types.Order, txnVolume int, now time.Time) bool {
	filled := min(txnVolume, stored.Volume)
	if filled <= stored.FilledVolume {
		return false
	}

	stored.FilledVolume = filled
	stored.UpdateTime = now

	if stored.State.IsDone() {
		return true
	}

	if filled == stored.Volume {
		stored.State = types.OrderStateFilled
	} else {
		stored.State = types.OrderStatePartiallyFilled
	}

	return true
}
