package builtin

import (
	"github.com/rxtech-lab/argo-tradlet/internal/logger"
	"github.com/rxtech-lab/argo-tradlet/internal/playbook"
	"github.com/rxtech-lab/argo-tradlet/internal/tradlet"
	"github.com/rxtech-lab/argo-tradlet/internal/types"
	"go.uber.org/zap"
)

// StateLogger logs every playbook state change of its group.
type StateLogger struct {
	log   *logger.Logger
	count map[playbook.PlaybookState]int
}

func NewStateLogger() tradlet.Tradlet {
	return &StateLogger{
		log:   logger.NewNop(),
		count: make(map[playbook.PlaybookState]int),
	}
}

func (s *StateLogger) Init(ctx *tradlet.Context) error {
	s.log = ctx.Logger.Named("state_logger")

	return nil
}

func (s *StateLogger) Reload(_ *tradlet.Context) error {
	return nil
}

func (s *StateLogger) Destroy() {
	s.log.Info("Playbook state summary",
		zap.Int("opened", s.count[playbook.PlaybookStateOpened]),
		zap.Int("closed", s.count[playbook.PlaybookStateClosed]),
		zap.Int("canceled", s.count[playbook.PlaybookStateCanceled]),
		zap.Int("failed", s.count[playbook.PlaybookStateFailed]),
	)
}

func (s *StateLogger) OnTick(_ types.Tick) error {
	return nil
}

func (s *StateLogger) OnNewBar(_ types.Bar) error {
	return nil
}

func (s *StateLogger) OnNoopSecond() error {
	return nil
}

func (s *StateLogger) OnPlaybookStateChanged(pb *playbook.Playbook, prev playbook.StateTuple) error {
	s.count[pb.State()]++

	s.log.Info("Playbook state changed",
		zap.String("playbook_id", pb.ID()),
		zap.String("from", string(prev.State)),
		zap.String("to", string(pb.State())),
		zap.String("order_ref", pb.StateTuple().OrderRef),
		zap.Int("opened_volume", pb.OpenedVolume()),
		zap.Int("closed_volume", pb.ClosedVolume()),
		zap.String("realized_pnl", pb.RealizedPnL().String()),
	)

	return nil
}

// Count returns how many times a playbook entered state.
func (s *StateLogger) Count(state playbook.PlaybookState) int {
	return s.count[state]
}
