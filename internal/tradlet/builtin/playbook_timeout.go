package builtin

import (
	"strings"

	"github.com/rxtech-lab/argo-tradlet/internal/playbook"
	"github.com/rxtech-lab/argo-tradlet/internal/tradlet"
	"github.com/rxtech-lab/argo-tradlet/internal/types"
	"github.com/rxtech-lab/argo-tradlet/pkg/errors"
	"go.uber.org/zap"
)

// PlaybookTimeoutConfig configures PlaybookTimeout.
type PlaybookTimeoutConfig struct {
	// MaxHoldSeconds is how long an opened playbook may stay open before a forced close.
	MaxHoldSeconds int `yaml:"maxHoldSeconds" json:"maxHoldSeconds" jsonschema:"title=Max Hold Seconds,minimum=1"`
	// OpenActionPrefix limits the tradlet to playbooks whose open action id has this prefix.
	OpenActionPrefix string `yaml:"openActionPrefix" json:"openActionPrefix"`
}

// PlaybookTimeout arms a close timeout on every playbook that opens without one.
type PlaybookTimeout struct {
	ctx    *tradlet.Context
	config PlaybookTimeoutConfig
}

func NewPlaybookTimeout() tradlet.Tradlet {
	return &PlaybookTimeout{
		ctx:    nil,
		config: PlaybookTimeoutConfig{MaxHoldSeconds: 0, OpenActionPrefix: ""},
	}
}

func (t *PlaybookTimeout) Init(ctx *tradlet.Context) error {
	return t.Reload(ctx)
}

func (t *PlaybookTimeout) Reload(ctx *tradlet.Context) error {
	var config PlaybookTimeoutConfig
	if err := ctx.DecodeConfig(&config); err != nil {
		return err
	}

	if config.MaxHoldSeconds <= 0 {
		return errors.Newf(errors.ErrCodeInvalidConfiguration, "maxHoldSeconds must be positive, got %d", config.MaxHoldSeconds)
	}

	t.ctx = ctx
	t.config = config

	return nil
}

func (t *PlaybookTimeout) Destroy() {}

func (t *PlaybookTimeout) OnTick(_ types.Tick) error {
	return nil
}

func (t *PlaybookTimeout) OnNewBar(_ types.Bar) error {
	return nil
}

func (t *PlaybookTimeout) OnNoopSecond() error {
	return nil
}

func (t *PlaybookTimeout) OnPlaybookStateChanged(pb *playbook.Playbook, prev playbook.StateTuple) error {
	if prev.State != playbook.PlaybookStateOpening || pb.State() != playbook.PlaybookStateOpened {
		return nil
	}

	if pb.CloseTimeout() > 0 {
		return nil
	}

	if !strings.HasPrefix(pb.ActionID(playbook.AttrActionOpen), t.config.OpenActionPrefix) {
		return nil
	}

	if t.ctx.Keeper.SetCloseTimeout(pb, t.config.MaxHoldSeconds) {
		t.ctx.Logger.Debug("Armed close timeout",
			zap.String("playbook_id", pb.ID()),
			zap.Int("seconds", t.config.MaxHoldSeconds),
		)
	}

	return nil
}
