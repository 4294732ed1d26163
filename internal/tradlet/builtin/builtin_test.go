package builtin_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/rxtech-lab/argo-tradlet/internal/logger"
	"github.com/rxtech-lab/argo-tradlet/internal/playbook"
	"github.com/rxtech-lab/argo-tradlet/internal/tradlet"
	"github.com/rxtech-lab/argo-tradlet/internal/tradlet/builtin"
	"github.com/rxtech-lab/argo-tradlet/internal/types"
	"github.com/rxtech-lab/argo-tradlet/mocks"
	argoerrors "github.com/rxtech-lab/argo-tradlet/pkg/errors"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"
)

type BuiltinTestSuite struct {
	suite.Suite
	ctrl    *gomock.Controller
	account *mocks.MockAccount
	keeper  *playbook.Keeper
	ctx     *tradlet.Context
	hosted  tradlet.Tradlet
	nextRef int
}

func TestBuiltinSuite(t *testing.T) {
	suite.Run(t, new(BuiltinTestSuite))
}

func (suite *BuiltinTestSuite) SetupTest() {
	suite.ctrl = gomock.NewController(suite.T())
	suite.account = mocks.NewMockAccount(suite.ctrl)
	suite.nextRef = 0
	suite.hosted = nil

	suite.account.EXPECT().CreateOrder(gomock.Any()).DoAndReturn(func(spec types.OrderSpec) (*types.Order, error) {
		suite.nextRef++
		order := types.NewOrder(fmt.Sprintf("o-%d", suite.nextRef), spec, time.Now())
		order.State = types.OrderStateSubmitted

		return order, nil
	}).AnyTimes()

	suite.keeper = playbook.NewKeeper(playbook.KeeperConfig{GroupID: "g1", Instrument: "ETHUSDT"}, suite.account, nil, nil, logger.NewNop())
	suite.ctx = &tradlet.Context{
		GroupID:    "g1",
		Instrument: "ETHUSDT",
		Keeper:     suite.keeper,
		Config:     "",
		Logger:     logger.NewNop(),
	}

	onStateChanged := playbook.OnStateChangedCallback(func(pb *playbook.Playbook, prev playbook.StateTuple) {
		if suite.hosted != nil {
			suite.Require().NoError(suite.hosted.OnPlaybookStateChanged(pb, prev))
		}
	})
	suite.keeper.SetCallbacks(playbook.KeeperCallbacks{
		OnPlaybookCreated: nil,
		OnOrderRegistered: nil,
		OnStateChanged:    &onStateChanged,
	})
}

func (suite *BuiltinTestSuite) TearDownTest() {
	suite.ctrl.Finish()
}

func (suite *BuiltinTestSuite) openPlaybook(builder playbook.Builder) *playbook.Playbook {
	pb, err := suite.keeper.CreatePlaybook(builder)
	suite.Require().NoError(err)

	suite.keeper.UpdateOnTxn(&types.Transaction{
		ID:        "fill-" + pb.OpeningOrder().Ref,
		OrderRef:  pb.OpeningOrder().Ref,
		Direction: types.OrderDirectionBuy,
		Volume:    builder.Volume,
		Price:     2000,
		Time:      time.Now(),
	})
	suite.Require().Equal(playbook.PlaybookStateOpened, pb.State())

	return pb
}

func (suite *BuiltinTestSuite) TestEntries() {
	r, err := tradlet.NewRegistry(builtin.Entries(), nil, nil)
	suite.Require().NoError(err)
	suite.Equal([]string{builtin.NameNoop, builtin.NamePlaybookTimeout, builtin.NameStateLogger}, r.Names())

	for _, name := range r.Names() {
		t, err := r.Resolve(name)
		suite.NoError(err)
		suite.NotNil(t)
	}
}

func (suite *BuiltinTestSuite) TestNoop() {
	noop := builtin.NewNoop()

	suite.NoError(noop.Init(suite.ctx))
	suite.NoError(noop.OnTick(types.Tick{}))
	suite.NoError(noop.OnNewBar(types.Bar{}))
	suite.NoError(noop.OnNoopSecond())
	suite.NoError(noop.OnPlaybookStateChanged(nil, playbook.StateTuple{}))
	suite.NoError(noop.Reload(suite.ctx))
	noop.Destroy()
}

func (suite *BuiltinTestSuite) TestPlaybookTimeoutRequiresMaxHold() {
	t := builtin.NewPlaybookTimeout()

	err := t.Init(suite.ctx)
	suite.True(argoerrors.HasCode(err, argoerrors.ErrCodeInvalidConfiguration))

	err = t.Init(suite.ctx.WithConfig("maxHoldSeconds: nope"))
	suite.True(argoerrors.HasCode(err, argoerrors.ErrCodeInvalidConfiguration))
}

func (suite *BuiltinTestSuite) TestPlaybookTimeoutArmsOpenedPlaybooks() {
	suite.hosted = builtin.NewPlaybookTimeout()
	suite.Require().NoError(suite.hosted.Init(suite.ctx.WithConfig("maxHoldSeconds: 3")))

	pb := suite.openPlaybook(playbook.NewBuilder(types.PosDirectionLong, 2))
	suite.Equal(3, pb.CloseTimeout())

	suite.keeper.OnNoopSecond()
	suite.keeper.OnNoopSecond()
	suite.Equal(playbook.PlaybookStateOpened, pb.State())

	suite.keeper.OnNoopSecond()
	suite.Equal(playbook.PlaybookStateClosing, pb.State())
	suite.Equal(types.OrderPriceTypeBest, pb.LastOrder().PriceType)
}

func (suite *BuiltinTestSuite) TestPlaybookTimeoutKeepsExplicitTimeout() {
	suite.hosted = builtin.NewPlaybookTimeout()
	suite.Require().NoError(suite.hosted.Init(suite.ctx.WithConfig("maxHoldSeconds: 3")))

	pb := suite.openPlaybook(playbook.NewBuilder(types.PosDirectionLong, 1).WithAttr(playbook.AttrCloseTimeout, "60"))
	suite.Equal(60, pb.CloseTimeout())
}

func (suite *BuiltinTestSuite) TestPlaybookTimeoutFiltersByOpenAction() {
	suite.hosted = builtin.NewPlaybookTimeout()
	suite.Require().NoError(suite.hosted.Init(suite.ctx.WithConfig("maxHoldSeconds: 3\nopenActionPrefix: scalp.")))

	scalp := suite.openPlaybook(playbook.NewBuilder(types.PosDirectionLong, 1).WithOpenActionID("scalp.1"))
	swing := suite.openPlaybook(playbook.NewBuilder(types.PosDirectionLong, 1).WithOpenActionID("swing.1"))

	suite.Equal(3, scalp.CloseTimeout())
	suite.Zero(swing.CloseTimeout())
}

func (suite *BuiltinTestSuite) TestStateLoggerCounts() {
	stateLogger := builtin.NewStateLogger()
	suite.Require().NoError(stateLogger.Init(suite.ctx))
	suite.hosted = stateLogger

	pb := suite.openPlaybook(playbook.NewBuilder(types.PosDirectionShort, 1))
	suite.Require().True(suite.keeper.ClosePlaybook(pb, playbook.CloseRequest{}))
	suite.keeper.UpdateOnTxn(&types.Transaction{
		ID:        "close",
		OrderRef:  pb.LastOrder().Ref,
		Direction: types.OrderDirectionBuy,
		Volume:    1,
		Price:     1990,
		Time:      time.Now(),
	})

	counter, ok := stateLogger.(*builtin.StateLogger)
	suite.Require().True(ok)
	suite.Equal(1, counter.Count(playbook.PlaybookStateOpened))
	suite.Equal(1, counter.Count(playbook.PlaybookStateClosing))
	suite.Equal(1, counter.Count(playbook.PlaybookStateClosed))
	suite.NotPanics(stateLogger.Destroy)
}
