package playbook_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/rxtech-lab/argo-tradlet/internal/logger"
	"github.com/rxtech-lab/argo-tradlet/internal/marketdata"
	"github.com/rxtech-lab/argo-tradlet/internal/playbook"
	"github.com/rxtech-lab/argo-tradlet/internal/types"
	"github.com/rxtech-lab/argo-tradlet/mocks"
	argoerrors "github.com/rxtech-lab/argo-tradlet/pkg/errors"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"
)

const instrument = "BTCUSDT"

type KeeperTestSuite struct {
	suite.Suite
	ctrl      *gomock.Controller
	account   *mocks.MockAccount
	snapshots *marketdata.MemorySnapshotStore
	templates playbook.StaticTemplateStore
	keeper    *playbook.Keeper
	now       time.Time
	nextRef   int
	specs     []types.OrderSpec
	changes   []string
}

func TestKeeperSuite(t *testing.T) {
	suite.Run(t, new(KeeperTestSuite))
}

func (suite *KeeperTestSuite) SetupTest() {
	suite.ctrl = gomock.NewController(suite.T())
	suite.account = mocks.NewMockAccount(suite.ctrl)
	suite.snapshots = marketdata.NewMemorySnapshotStore()
	suite.templates = playbook.StaticTemplateStore{
		"scalp": {playbook.AttrCloseTimeout: "30", "stop": "template"},
	}
	suite.now = time.Date(2024, 1, 1, 9, 30, 0, 0, time.UTC)
	suite.nextRef = 0
	suite.specs = nil
	suite.changes = nil

	suite.keeper = playbook.NewKeeper(
		playbook.KeeperConfig{GroupID: "g1", Instrument: instrument},
		suite.account,
		suite.snapshots,
		suite.templates,
		logger.NewNop(),
	)
	suite.keeper.SetClock(func() time.Time { return suite.now })

	onStateChanged := playbook.OnStateChangedCallback(func(pb *playbook.Playbook, prev playbook.StateTuple) {
		suite.changes = append(suite.changes, fmt.Sprintf("%s->%s", prev.State, pb.State()))
	})
	suite.keeper.SetCallbacks(playbook.KeeperCallbacks{
		OnPlaybookCreated: nil,
		OnOrderRegistered: nil,
		OnStateChanged:    &onStateChanged,
	})
}

func (suite *KeeperTestSuite) TearDownTest() {
	suite.ctrl.Finish()
}

func (suite *KeeperTestSuite) quote(bid, ask float64) {
	suite.snapshots.Update(types.Tick{Instrument: instrument, Time: suite.now, BidPrice: bid, AskPrice: ask})
}

// expectCreate accepts times order creations, each answered with a Submitted order.
func (suite *KeeperTestSuite) expectCreate(times int) {
	suite.account.EXPECT().CreateOrder(gomock.Any()).DoAndReturn(func(spec types.OrderSpec) (*types.Order, error) {
		suite.nextRef++
		suite.specs = append(suite.specs, spec)
		order := types.NewOrder(fmt.Sprintf("o-%d", suite.nextRef), spec, suite.now)
		order.State = types.OrderStateSubmitted

		return order, nil
	}).Times(times)
}

func (suite *KeeperTestSuite) lastSpec() types.OrderSpec {
	suite.Require().NotEmpty(suite.specs)

	return suite.specs[len(suite.specs)-1]
}

func (suite *KeeperTestSuite) create(direction types.PosDirection, volume int) *playbook.Playbook {
	suite.expectCreate(1)

	pb, err := suite.keeper.CreatePlaybook(playbook.NewBuilder(direction, volume))
	suite.Require().NoError(err)

	return pb
}

func (suite *KeeperTestSuite) fill(ref, id string, volume int, price float64) {
	suite.keeper.UpdateOnTxn(&types.Transaction{
		ID:        id,
		OrderRef:  ref,
		Direction: types.OrderDirectionBuy,
		Volume:    volume,
		Price:     price,
		Time:      suite.now,
	})
}

func (suite *KeeperTestSuite) update(ref string, state types.OrderState, filled int) {
	for _, order := range suite.keeper.AllOrders() {
		if order.Ref == ref {
			update := order.Clone()
			update.State = state
			update.FilledVolume = filled
			suite.keeper.UpdateOnOrder(update)

			return
		}
	}

	suite.FailNow("unknown order " + ref)
}

func (suite *KeeperTestSuite) open(direction types.PosDirection, volume int) *playbook.Playbook {
	pb := suite.create(direction, volume)
	suite.fill(pb.OpeningOrder().Ref, "open-fill", volume, 100)
	suite.Require().Equal(playbook.PlaybookStateOpened, pb.State())

	return pb
}

func (suite *KeeperTestSuite) TestCreatePlaybook_UsesOpposingQuote() {
	suite.quote(99, 101)

	long := suite.create(types.PosDirectionLong, 5)
	spec := suite.lastSpec()
	suite.Equal(types.OrderDirectionBuy, spec.Direction)
	suite.Equal(types.OrderPriceTypeLimit, spec.PriceType)
	suite.Equal(99.0, spec.LimitPrice)
	suite.Equal(types.OrderOffsetOpen, spec.OffsetFlag)
	suite.Equal(5, spec.Volume)
	suite.Equal(instrument, spec.Instrument)
	suite.Equal(long.ID(), spec.Attrs[types.AttrPlaybookID])

	suite.create(types.PosDirectionShort, 2)
	spec = suite.lastSpec()
	suite.Equal(types.OrderDirectionSell, spec.Direction)
	suite.Equal(101.0, spec.LimitPrice)
}

func (suite *KeeperTestSuite) TestCreatePlaybook_BestWithoutSnapshot() {
	suite.create(types.PosDirectionLong, 1)

	spec := suite.lastSpec()
	suite.Equal(types.OrderPriceTypeBest, spec.PriceType)
	suite.Zero(spec.LimitPrice)
}

func (suite *KeeperTestSuite) TestCreatePlaybook_FixedPrice() {
	suite.quote(99, 101)
	suite.expectCreate(1)

	_, err := suite.keeper.CreatePlaybook(playbook.NewBuilder(types.PosDirectionLong, 1).WithOpenPrice(95.5))
	suite.Require().NoError(err)
	suite.Equal(types.OrderPriceTypeLimit, suite.lastSpec().PriceType)
	suite.Equal(95.5, suite.lastSpec().LimitPrice)
}

func (suite *KeeperTestSuite) TestCreatePlaybook_Registers() {
	pb := suite.create(types.PosDirectionLong, 5)

	suite.True(strings.HasPrefix(pb.ID(), "pbk_"))
	suite.Equal("g1", pb.GroupID())
	suite.Equal(playbook.PlaybookStateOpening, pb.State())
	suite.Equal(pb.OpeningOrder().Ref, pb.StateTuple().OrderRef)
	suite.Equal(playbook.StateActionSend, pb.StateTuple().Action)
	suite.Len(suite.keeper.AllOrders(), 1)
	suite.Len(suite.keeper.PendingOrders(), 1)
	suite.Len(suite.keeper.AllPlaybooks(), 1)
	suite.Len(suite.keeper.ActivePlaybooks(""), 1)
	suite.Same(pb, suite.keeper.Playbook(pb.ID()))
	suite.Same(pb.OpeningOrder(), suite.keeper.LastOrder())
	suite.Same(pb.OpeningOrder(), suite.keeper.LastPendingOrder())
}

func (suite *KeeperTestSuite) TestCreatePlaybook_MergesTemplate() {
	suite.expectCreate(1)

	builder := playbook.NewBuilder(types.PosDirectionLong, 1).
		WithTemplate("scalp").
		WithAttr("stop", "explicit").
		WithOpenActionID("breakout-1")

	pb, err := suite.keeper.CreatePlaybook(builder)
	suite.Require().NoError(err)
	suite.Equal("explicit", pb.Attr("stop"))
	suite.Equal("30", pb.Attr(playbook.AttrCloseTimeout))
	suite.Equal(30, pb.CloseTimeout())
	suite.Equal("breakout-1", pb.ActionID(playbook.AttrActionOpen))
	suite.Equal("scalp", pb.TemplateID())
}

func (suite *KeeperTestSuite) TestCreatePlaybook_UnknownTemplateIsIgnored() {
	suite.expectCreate(1)

	pb, err := suite.keeper.CreatePlaybook(playbook.NewBuilder(types.PosDirectionLong, 1).WithTemplate("missing"))
	suite.Require().NoError(err)
	suite.Empty(pb.Attr(playbook.AttrCloseTimeout))
}

func (suite *KeeperTestSuite) TestCreatePlaybook_AccountFailureRegistersNothing() {
	suite.account.EXPECT().CreateOrder(gomock.Any()).Return(nil, errors.New("venue down"))

	pb, err := suite.keeper.CreatePlaybook(playbook.NewBuilder(types.PosDirectionLong, 5))
	suite.Nil(pb)
	suite.True(argoerrors.HasCode(err, argoerrors.ErrCodeOrderFailed))
	suite.Contains(err.Error(), "venue down")
	suite.Empty(suite.keeper.AllOrders())
	suite.Empty(suite.keeper.PendingOrders())
	suite.Empty(suite.keeper.AllPlaybooks())
	suite.Empty(suite.keeper.ActivePlaybooks(""))
}

func (suite *KeeperTestSuite) TestCreatePlaybook_InvalidBuilder() {
	_, err := suite.keeper.CreatePlaybook(playbook.NewBuilder(types.PosDirectionLong, 0))
	suite.True(argoerrors.HasCode(err, argoerrors.ErrCodeInvalidPlaybook))

	_, err = suite.keeper.CreatePlaybook(playbook.NewBuilder("SIDEWAYS", 1))
	suite.True(argoerrors.HasCode(err, argoerrors.ErrCodeInvalidPlaybook))

	_, err = suite.keeper.CreatePlaybook(playbook.NewBuilder(types.PosDirectionLong, 1).WithOpenPrice(-1))
	suite.True(argoerrors.HasCode(err, argoerrors.ErrCodeInvalidPlaybook))
}

func (suite *KeeperTestSuite) TestEndToEndOpenAndClose() {
	suite.quote(99, 101)

	pb := suite.create(types.PosDirectionLong, 5)
	suite.Equal(99.0, suite.lastSpec().LimitPrice)

	suite.fill(pb.OpeningOrder().Ref, "t1", 5, 99)
	suite.Equal(playbook.PlaybookStateOpened, pb.State())
	suite.Equal(5, pb.OpenedVolume())
	suite.Empty(suite.keeper.PendingOrders())

	suite.expectCreate(1)
	suite.True(suite.keeper.ClosePlaybook(pb, playbook.CloseRequest{ActionID: "exit-1", Timeout: 0}))
	suite.Equal(playbook.PlaybookStateClosing, pb.State())
	suite.Len(pb.Orders(), 2)
	suite.Equal("exit-1", pb.ActionID(playbook.AttrActionClose))

	closeSpec := suite.lastSpec()
	suite.Equal(types.OrderDirectionSell, closeSpec.Direction)
	suite.Equal(types.OrderOffsetClose, closeSpec.OffsetFlag)
	suite.Equal(5, closeSpec.Volume)
	suite.Equal(types.OrderPriceTypeLimit, closeSpec.PriceType)
	suite.Equal(101.0, closeSpec.LimitPrice)

	suite.fill(pb.LastOrder().Ref, "t2", 5, 101)
	suite.Equal(playbook.PlaybookStateClosed, pb.State())
	suite.Len(suite.keeper.AllOrders(), 2)
	suite.Empty(suite.keeper.PendingOrders())
	suite.Empty(suite.keeper.ActivePlaybooks(""))
	suite.Len(suite.keeper.AllPlaybooks(), 1)
	suite.Equal([]string{"OPENING->OPENED", "OPENED->CLOSING", "CLOSING->CLOSED"}, suite.changes)
	suite.Equal("10", pb.RealizedPnL().String())
}

func (suite *KeeperTestSuite) TestCancelBeforeFill() {
	pb := suite.create(types.PosDirectionLong, 5)

	suite.account.EXPECT().CancelOrder(pb.OpeningOrder().Ref).Return(nil)
	suite.Equal(1, suite.keeper.CancelAllPendingOrders())

	suite.update(pb.OpeningOrder().Ref, types.OrderStateCanceled, 0)
	suite.Equal(playbook.PlaybookStateCanceled, pb.State())
	suite.Empty(suite.keeper.ActivePlaybooks(""))
	suite.Empty(suite.keeper.PendingOrders())
	suite.Len(suite.keeper.AllPlaybooks(), 1)
}

func (suite *KeeperTestSuite) TestDuplicateTerminalUpdateRemovesPendingOnce() {
	first := suite.create(types.PosDirectionLong, 5)
	second := suite.create(types.PosDirectionLong, 5)

	suite.update(first.OpeningOrder().Ref, types.OrderStateCanceled, 0)
	suite.update(first.OpeningOrder().Ref, types.OrderStateCanceled, 0)
	suite.update(first.OpeningOrder().Ref, types.OrderStateFilled, 5)

	suite.Equal(playbook.PlaybookStateCanceled, first.State())
	suite.Equal([]string{"OPENING->CANCELED"}, suite.changes)

	pending := suite.keeper.PendingOrders()
	suite.Require().Len(pending, 1)
	suite.Same(second.OpeningOrder(), pending[0])

	active := suite.keeper.ActivePlaybooks("")
	suite.Require().Len(active, 1)
	suite.Same(second, active[0])
}

func (suite *KeeperTestSuite) TestCloseOnTerminalPlaybookIsNotApplicable() {
	canceled := suite.create(types.PosDirectionLong, 5)
	suite.update(canceled.OpeningOrder().Ref, types.OrderStateCanceled, 0)

	failed := suite.create(types.PosDirectionLong, 5)
	suite.update(failed.OpeningOrder().Ref, types.OrderStateFailed, 0)
	suite.Equal(playbook.PlaybookStateFailed, failed.State())

	closed := suite.open(types.PosDirectionLong, 5)
	suite.expectCreate(1)
	suite.Require().True(suite.keeper.ClosePlaybook(closed, playbook.CloseRequest{}))
	suite.fill(closed.LastOrder().Ref, "close-fill", 5, 100)
	suite.Require().Equal(playbook.PlaybookStateClosed, closed.State())

	// the mock fails the test on any further account call
	for _, pb := range []*playbook.Playbook{canceled, failed, closed} {
		suite.False(suite.keeper.ClosePlaybook(pb, playbook.CloseRequest{ActionID: "late", Timeout: 5}))
		suite.Empty(pb.ActionID(playbook.AttrActionClose))
		suite.False(suite.keeper.SetCloseTimeout(pb, 5))
	}

	suite.False(suite.keeper.ClosePlaybook(nil, playbook.CloseRequest{}))
	suite.Len(suite.keeper.AllPlaybooks(), 3)
}

func (suite *KeeperTestSuite) TestCloseWhileClosingIsNotApplicable() {
	pb := suite.open(types.PosDirectionLong, 5)
	suite.expectCreate(1)
	suite.Require().True(suite.keeper.ClosePlaybook(pb, playbook.CloseRequest{}))

	suite.False(suite.keeper.ClosePlaybook(pb, playbook.CloseRequest{}))
	suite.Len(pb.Orders(), 2)
}

func (suite *KeeperTestSuite) TestPartialFillsAccumulate() {
	pb := suite.create(types.PosDirectionLong, 5)
	ref := pb.OpeningOrder().Ref

	suite.fill(ref, "t1", 2, 100)
	suite.Equal(playbook.PlaybookStateOpening, pb.State())
	suite.Equal(types.OrderStatePartiallyFilled, pb.OpeningOrder().State)
	suite.Len(suite.keeper.PendingOrders(), 1)

	suite.fill(ref, "t2", 3, 102)
	suite.Equal(playbook.PlaybookStateOpened, pb.State())
	suite.Equal(types.OrderStateFilled, pb.OpeningOrder().State)
	suite.Equal("101.2", pb.AvgOpenPrice().String())
}

func (suite *KeeperTestSuite) TestDuplicateTransactionIsNotDoubleCounted() {
	pb := suite.create(types.PosDirectionLong, 5)
	ref := pb.OpeningOrder().Ref

	suite.fill(ref, "t1", 3, 100)
	suite.fill(ref, "t1", 3, 100)
	suite.Equal(playbook.PlaybookStateOpening, pb.State())
	suite.Equal(3, pb.OpeningOrder().FilledVolume)

	suite.fill(ref, "t2", 2, 100)
	suite.Equal(playbook.PlaybookStateOpened, pb.State())
	suite.Equal(5, pb.OpenedVolume())
}

func (suite *KeeperTestSuite) TestOrderUpdateAndTransactionAgree() {
	pb := suite.create(types.PosDirectionLong, 5)
	ref := pb.OpeningOrder().Ref

	suite.update(ref, types.OrderStatePartiallyFilled, 3)
	suite.fill(ref, "t1", 3, 100)
	suite.Equal(3, pb.OpeningOrder().FilledVolume)
	suite.Equal(playbook.PlaybookStateOpening, pb.State())

	// the venue reports completion before the last fill arrives
	suite.update(ref, types.OrderStateFilled, 5)
	suite.Equal(playbook.PlaybookStateOpened, pb.State())

	suite.fill(ref, "t2", 2, 100)
	suite.Equal(5, pb.OpeningOrder().FilledVolume)
	suite.Equal([]string{"OPENING->OPENED"}, suite.changes)
}

func (suite *KeeperTestSuite) TestStaleUpdateDoesNotRegress() {
	pb := suite.create(types.PosDirectionLong, 5)
	ref := pb.OpeningOrder().Ref

	suite.update(ref, types.OrderStatePartiallyFilled, 2)
	suite.update(ref, types.OrderStateAccepted, 0)

	suite.Equal(types.OrderStatePartiallyFilled, pb.OpeningOrder().State)
	suite.Equal(2, pb.OpeningOrder().FilledVolume)
}

func (suite *KeeperTestSuite) TestPartialOpenThenCancelOpensFilledVolume() {
	pb := suite.create(types.PosDirectionLong, 5)
	ref := pb.OpeningOrder().Ref

	suite.fill(ref, "t1", 2, 100)
	suite.update(ref, types.OrderStateCanceled, 2)
	suite.Equal(playbook.PlaybookStateOpened, pb.State())
	suite.Equal(2, pb.OpenedVolume())

	suite.expectCreate(1)
	suite.True(suite.keeper.ClosePlaybook(pb, playbook.CloseRequest{}))
	suite.Equal(2, suite.lastSpec().Volume)
}

func (suite *KeeperTestSuite) TestRejectedOpeningOrderCancelsPlaybook() {
	pb := suite.create(types.PosDirectionShort, 1)

	suite.update(pb.OpeningOrder().Ref, types.OrderStateRejected, 0)
	suite.Equal(playbook.PlaybookStateCanceled, pb.State())
}

func (suite *KeeperTestSuite) TestCanceledCloseReturnsToOpened() {
	pb := suite.open(types.PosDirectionLong, 5)

	suite.expectCreate(1)
	suite.Require().True(suite.keeper.ClosePlaybook(pb, playbook.CloseRequest{}))
	suite.update(pb.LastOrder().Ref, types.OrderStateCanceled, 0)

	suite.Equal(playbook.PlaybookStateOpened, pb.State())
	suite.Len(suite.keeper.ActivePlaybooks(""), 1)

	// a second attempt adds exactly one more order
	suite.expectCreate(1)
	suite.Require().True(suite.keeper.ClosePlaybook(pb, playbook.CloseRequest{}))
	suite.Len(pb.Orders(), 3)
	suite.Equal(playbook.PlaybookStateClosing, pb.State())
}

func (suite *KeeperTestSuite) TestPartialCloseThenCancelClosesRemainderLater() {
	pb := suite.open(types.PosDirectionLong, 5)

	suite.expectCreate(1)
	suite.Require().True(suite.keeper.ClosePlaybook(pb, playbook.CloseRequest{}))
	suite.fill(pb.LastOrder().Ref, "c1", 3, 100)
	suite.update(pb.LastOrder().Ref, types.OrderStateCanceled, 3)
	suite.Equal(playbook.PlaybookStateOpened, pb.State())
	suite.Equal(3, pb.ClosedVolume())

	suite.expectCreate(1)
	suite.Require().True(suite.keeper.ClosePlaybook(pb, playbook.CloseRequest{}))
	suite.Equal(2, suite.lastSpec().Volume)

	suite.fill(pb.LastOrder().Ref, "c2", 2, 100)
	suite.Equal(playbook.PlaybookStateClosed, pb.State())
}

func (suite *KeeperTestSuite) TestFailedCloseOrderFailsPlaybook() {
	pb := suite.open(types.PosDirectionLong, 5)

	suite.expectCreate(1)
	suite.Require().True(suite.keeper.ClosePlaybook(pb, playbook.CloseRequest{}))
	suite.update(pb.LastOrder().Ref, types.OrderStateFailed, 0)

	suite.Equal(playbook.PlaybookStateFailed, pb.State())
	suite.Empty(suite.keeper.ActivePlaybooks(""))
	suite.Same(pb, suite.keeper.Playbook(pb.ID()))
}

func (suite *KeeperTestSuite) TestCloseWhileOpeningCancelsThenCanceled() {
	pb := suite.create(types.PosDirectionLong, 5)

	suite.account.EXPECT().CancelOrder(pb.OpeningOrder().Ref).Return(nil)
	suite.True(suite.keeper.ClosePlaybook(pb, playbook.CloseRequest{ActionID: "exit", Timeout: 0}))
	suite.Equal(playbook.PlaybookStateOpening, pb.State())
	suite.Equal("exit", pb.ActionID(playbook.AttrActionClose))

	suite.update(pb.OpeningOrder().Ref, types.OrderStateCanceled, 0)
	suite.Equal(playbook.PlaybookStateCanceled, pb.State())
	suite.Len(pb.Orders(), 1)
}

func (suite *KeeperTestSuite) TestFillAfterCancelRequestIsHonouredThenClosed() {
	suite.quote(99, 101)
	pb := suite.create(types.PosDirectionLong, 5)

	suite.account.EXPECT().CancelOrder(pb.OpeningOrder().Ref).Return(nil)
	suite.Require().True(suite.keeper.ClosePlaybook(pb, playbook.CloseRequest{}))

	// the fill beat the cancel at the venue
	suite.expectCreate(1)
	suite.fill(pb.OpeningOrder().Ref, "t1", 5, 99)

	suite.Equal(playbook.PlaybookStateClosing, pb.State())
	suite.Equal([]string{"OPENING->OPENED", "OPENED->CLOSING"}, suite.changes)
	suite.Len(pb.Orders(), 2)
	suite.Equal(types.OrderOffsetClose, suite.lastSpec().OffsetFlag)

	// the late terminal report of the opening order changes nothing
	suite.update(pb.OpeningOrder().Ref, types.OrderStateCanceled, 5)
	suite.Len(pb.Orders(), 2)
	suite.Equal(playbook.PlaybookStateClosing, pb.State())
}

func (suite *KeeperTestSuite) TestCloseFromStateObserverSendsSingleCloseOrder() {
	suite.quote(99, 101)
	pb := suite.create(types.PosDirectionLong, 5)

	suite.account.EXPECT().CancelOrder(pb.OpeningOrder().Ref).Return(nil)
	suite.Require().True(suite.keeper.ClosePlaybook(pb, playbook.CloseRequest{}))

	// an observer closing on OPENED races the pending close request
	onStateChanged := playbook.OnStateChangedCallback(func(changed *playbook.Playbook, prev playbook.StateTuple) {
		if changed.State() == playbook.PlaybookStateOpened {
			suite.keeper.ClosePlaybook(changed, playbook.CloseRequest{})
		}
	})
	suite.keeper.SetCallbacks(playbook.KeeperCallbacks{
		OnPlaybookCreated: nil,
		OnOrderRegistered: nil,
		OnStateChanged:    &onStateChanged,
	})

	suite.expectCreate(1)
	suite.fill(pb.OpeningOrder().Ref, "t1", 5, 99)

	suite.Equal(playbook.PlaybookStateClosing, pb.State())
	suite.Len(pb.Orders(), 2)
	suite.Len(suite.specs, 2)
	suite.Equal(5, suite.lastSpec().Volume)
	suite.Equal(types.OrderOffsetClose, suite.lastSpec().OffsetFlag)
}

func (suite *KeeperTestSuite) TestCloseRequestFailures() {
	opening := suite.create(types.PosDirectionLong, 5)
	suite.account.EXPECT().CancelOrder(opening.OpeningOrder().Ref).Return(errors.New("too late"))
	suite.False(suite.keeper.ClosePlaybook(opening, playbook.CloseRequest{ActionID: "x"}))
	suite.Empty(opening.ActionID(playbook.AttrActionClose))

	// the fill arrives: no close was requested
	suite.fill(opening.OpeningOrder().Ref, "t1", 5, 100)
	suite.Equal(playbook.PlaybookStateOpened, opening.State())

	suite.account.EXPECT().CreateOrder(gomock.Any()).Return(nil, errors.New("rejected"))
	suite.False(suite.keeper.ClosePlaybook(opening, playbook.CloseRequest{}))
	suite.Equal(playbook.PlaybookStateOpened, opening.State())
	suite.Len(opening.Orders(), 1)
}

func (suite *KeeperTestSuite) TestTimeoutFiresOnceOnTickT() {
	suite.quote(99, 101)
	pb := suite.open(types.PosDirectionLong, 5)
	suite.True(suite.keeper.SetCloseTimeout(pb, 3))
	suite.Equal("3", pb.Attr(playbook.AttrCloseTimeout))

	suite.keeper.OnNoopSecond()
	suite.keeper.OnNoopSecond()
	suite.Equal(playbook.PlaybookStateOpened, pb.State())
	suite.Len(pb.Orders(), 1)

	suite.expectCreate(1)
	suite.keeper.OnNoopSecond()
	suite.Equal(playbook.PlaybookStateClosing, pb.State())
	suite.Len(pb.Orders(), 2)
	suite.Equal(types.OrderPriceTypeBest, suite.lastSpec().PriceType)

	suite.keeper.OnNoopSecond()
	suite.Len(pb.Orders(), 2)
	suite.Len(suite.keeper.AllOrders(), 2)
}

func (suite *KeeperTestSuite) TestTimeoutWhileClosingReissuesAtBest() {
	suite.quote(99, 101)
	pb := suite.open(types.PosDirectionLong, 5)

	suite.expectCreate(1)
	suite.Require().True(suite.keeper.ClosePlaybook(pb, playbook.CloseRequest{Timeout: 2}))
	suite.Equal(types.OrderPriceTypeLimit, suite.lastSpec().PriceType)
	limitClose := pb.LastOrder().Ref

	suite.keeper.OnNoopSecond()

	suite.account.EXPECT().CancelOrder(limitClose).Return(nil)
	suite.keeper.OnNoopSecond()
	suite.Equal(playbook.PlaybookStateClosing, pb.State())

	suite.expectCreate(1)
	suite.update(limitClose, types.OrderStateCanceled, 0)
	suite.Equal(playbook.PlaybookStateClosing, pb.State())
	suite.Len(pb.Orders(), 3)
	suite.Equal(types.OrderPriceTypeBest, suite.lastSpec().PriceType)

	suite.fill(pb.LastOrder().Ref, "c1", 5, 98)
	suite.Equal(playbook.PlaybookStateClosed, pb.State())
}

func (suite *KeeperTestSuite) TestTimeoutWhileOpeningCancelsOpeningOrder() {
	suite.expectCreate(1)
	pb, err := suite.keeper.CreatePlaybook(playbook.NewBuilder(types.PosDirectionLong, 5).WithAttr(playbook.AttrCloseTimeout, "1"))
	suite.Require().NoError(err)

	suite.account.EXPECT().CancelOrder(pb.OpeningOrder().Ref).Return(nil)
	suite.keeper.OnNoopSecond()
	suite.keeper.OnNoopSecond()

	suite.update(pb.OpeningOrder().Ref, types.OrderStateCanceled, 0)
	suite.Equal(playbook.PlaybookStateCanceled, pb.State())
}

func (suite *KeeperTestSuite) TestFailedForcedCloseRetriesNextSecond() {
	pb := suite.open(types.PosDirectionLong, 5)
	suite.True(suite.keeper.SetCloseTimeout(pb, 1))

	suite.account.EXPECT().CreateOrder(gomock.Any()).Return(nil, errors.New("throttled"))
	suite.keeper.OnNoopSecond()
	suite.Equal(playbook.PlaybookStateOpened, pb.State())

	suite.expectCreate(1)
	suite.keeper.OnNoopSecond()
	suite.Equal(playbook.PlaybookStateClosing, pb.State())
}

func (suite *KeeperTestSuite) TestCancelAllPendingOrdersContinuesOnFailure() {
	first := suite.create(types.PosDirectionLong, 1)
	second := suite.create(types.PosDirectionLong, 1)
	third := suite.create(types.PosDirectionLong, 1)
	suite.update(third.OpeningOrder().Ref, types.OrderStatePartiallyFilled, 0)

	gomock.InOrder(
		suite.account.EXPECT().CancelOrder(first.OpeningOrder().Ref).Return(errors.New("unknown order")),
		suite.account.EXPECT().CancelOrder(second.OpeningOrder().Ref).Return(nil),
		suite.account.EXPECT().CancelOrder(third.OpeningOrder().Ref).Return(nil),
	)

	suite.Equal(2, suite.keeper.CancelAllPendingOrders())
}

func (suite *KeeperTestSuite) TestCancelAllPendingOrdersSkipsUnacknowledged() {
	suite.account.EXPECT().CreateOrder(gomock.Any()).DoAndReturn(func(spec types.OrderSpec) (*types.Order, error) {
		return types.NewOrder("raw", spec, suite.now), nil
	})

	_, err := suite.keeper.CreatePlaybook(playbook.NewBuilder(types.PosDirectionLong, 1))
	suite.Require().NoError(err)
	suite.Equal(0, suite.keeper.CancelAllPendingOrders())
}

func (suite *KeeperTestSuite) TestOrphanEventsAreDropped() {
	pb := suite.create(types.PosDirectionLong, 1)

	suite.NotPanics(func() {
		suite.keeper.UpdateOnOrder(&types.Order{Ref: "ghost", State: types.OrderStateFilled})
		suite.keeper.UpdateOnTxn(&types.Transaction{ID: "t", OrderRef: "ghost", Volume: 1})
		suite.keeper.UpdateOnOrder(nil)
		suite.keeper.UpdateOnTxn(nil)
	})

	suite.Equal(playbook.PlaybookStateOpening, pb.State())
	suite.Len(suite.keeper.PendingOrders(), 1)
}

func (suite *KeeperTestSuite) TestActivePlaybooksByOpenActionPrefix() {
	suite.expectCreate(3)

	a, err := suite.keeper.CreatePlaybook(playbook.NewBuilder(types.PosDirectionLong, 1).WithOpenActionID("trend.1"))
	suite.Require().NoError(err)
	b, err := suite.keeper.CreatePlaybook(playbook.NewBuilder(types.PosDirectionLong, 1).WithOpenActionID("trend.2"))
	suite.Require().NoError(err)
	_, err = suite.keeper.CreatePlaybook(playbook.NewBuilder(types.PosDirectionLong, 1).WithOpenActionID("revert.1"))
	suite.Require().NoError(err)

	suite.Equal([]*playbook.Playbook{a, b}, suite.keeper.ActivePlaybooks("trend."))
	suite.Len(suite.keeper.ActivePlaybooks(""), 3)
	suite.Empty(suite.keeper.ActivePlaybooks("none"))
	suite.Nil(suite.keeper.Playbook("pbk_missing"))
}

func (suite *KeeperTestSuite) TestSnapshotJSON() {
	pb := suite.create(types.PosDirectionShort, 2)
	suite.create(types.PosDirectionLong, 1)
	suite.update(pb.OpeningOrder().Ref, types.OrderStateCanceled, 0)

	snapshot := suite.keeper.Snapshot()
	suite.Equal(2, snapshot.AllOrderCount)
	suite.Equal(1, snapshot.PendingOrderCount)
	suite.Equal(2, snapshot.AllPlaybookCount)
	suite.Equal(1, snapshot.ActivePlaybookCount)
	suite.Require().Len(snapshot.ActivePlaybooks, 1)

	data, err := json.Marshal(snapshot)
	suite.Require().NoError(err)

	var decoded map[string]any
	suite.Require().NoError(json.Unmarshal(data, &decoded))
	suite.EqualValues(2, decoded["allOrderCount"])
	suite.EqualValues(1, decoded["pendingOrderCount"])
	suite.EqualValues(2, decoded["allPlaybookCount"])
	suite.Len(decoded["activePlaybooks"], 1)
}

func (suite *KeeperTestSuite) TestCallbacksObserveRegistration() {
	var created, registered []string

	onCreated := playbook.OnPlaybookCreatedCallback(func(pb *playbook.Playbook) {
		created = append(created, pb.ID())
	})
	onRegistered := playbook.OnOrderRegisteredCallback(func(pb *playbook.Playbook, order *types.Order) {
		registered = append(registered, order.Ref)
	})
	suite.keeper.SetCallbacks(playbook.KeeperCallbacks{
		OnPlaybookCreated: &onCreated,
		OnOrderRegistered: &onRegistered,
		OnStateChanged:    nil,
	})

	pb := suite.open(types.PosDirectionLong, 1)
	suite.expectCreate(1)
	suite.Require().True(suite.keeper.ClosePlaybook(pb, playbook.CloseRequest{}))

	suite.Equal([]string{pb.ID()}, created)
	suite.Equal([]string{"o-1", "o-2"}, registered)
}

func (suite *KeeperTestSuite) TestShortRealizedPnL() {
	pb := suite.create(types.PosDirectionShort, 2)
	suite.fill(pb.OpeningOrder().Ref, "t1", 2, 110)

	suite.expectCreate(1)
	suite.Require().True(suite.keeper.ClosePlaybook(pb, playbook.CloseRequest{}))
	suite.Equal(types.OrderDirectionBuy, suite.lastSpec().Direction)
	suite.Equal(types.OrderPriceTypeBest, suite.lastSpec().PriceType)

	suite.fill(pb.LastOrder().Ref, "t2", 2, 100)
	suite.Equal(playbook.PlaybookStateClosed, pb.State())
	suite.Equal("20", pb.RealizedPnL().String())
}
