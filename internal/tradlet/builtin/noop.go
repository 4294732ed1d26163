package builtin

import (
	"github.com/rxtech-lab/argo-tradlet/internal/playbook"
	"github.com/rxtech-lab/argo-tradlet/internal/tradlet"
	"github.com/rxtech-lab/argo-tradlet/internal/types"
)

// Noop does nothing. It keeps a group alive without trading logic.
type Noop struct{}

func NewNoop() tradlet.Tradlet {
	return &Noop{}
}

func (n *Noop) Init(_ *tradlet.Context) error {
	return nil
}

func (n *Noop) Reload(_ *tradlet.Context) error {
	return nil
}

func (n *Noop) Destroy() {}

func (n *Noop) OnTick(_ types.Tick) error {
	return nil
}

func (n *Noop) OnNewBar(_ types.Bar) error {
	return nil
}

func (n *Noop) OnNoopSecond() error {
	return nil
}

func (n *Noop) OnPlaybookStateChanged(_ *playbook.Playbook, _ playbook.StateTuple) error {
	return nil
}
