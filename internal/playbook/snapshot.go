package playbook

import (
	"time"

	"github.com/rxtech-lab/argo-tradlet/internal/types"
)

// View is an immutable, serializable copy of a playbook.
type View struct {
	ID            string             `json:"id"`
	GroupID       string             `json:"groupId"`
	Instrument    string             `json:"instrument"`
	Direction     types.PosDirection `json:"direction"`
	Volume        int                `json:"volume"`
	TemplateID    string             `json:"templateId,omitempty"`
	StateTuple    StateTuple         `json:"stateTuple"`
	OrderRefs     []string           `json:"orderRefs"`
	Attrs         map[string]string  `json:"attrs"`
	OpenedVolume  int                `json:"openedVolume"`
	ClosedVolume  int                `json:"closedVolume"`
	AvgOpenPrice  string             `json:"avgOpenPrice"`
	AvgClosePrice string             `json:"avgClosePrice"`
	RealizedPnL   string             `json:"realizedPnl"`
	CloseTimeout  int                `json:"closeTimeout,omitempty"`
	CreateTime    time.Time          `json:"createTime"`
}

// View returns an immutable copy of the playbook.
func (p *Playbook) View() View {
	refs := make([]string, 0, len(p.orders))
	for _, order := range p.orders {
		refs = append(refs, order.Ref)
	}

	return View{
		ID:            p.id,
		GroupID:       p.groupID,
		Instrument:    p.instrument,
		Direction:     p.direction,
		Volume:        p.volume,
		TemplateID:    p.templateID,
		StateTuple:    p.stateTuple,
		OrderRefs:     refs,
		Attrs:         p.Attrs(),
		OpenedVolume:  p.openedVolume,
		ClosedVolume:  p.ClosedVolume(),
		AvgOpenPrice:  p.AvgOpenPrice().String(),
		AvgClosePrice: p.AvgClosePrice().String(),
		RealizedPnL:   p.RealizedPnL().String(),
		CloseTimeout:  p.timeoutSeconds,
		CreateTime:    p.createTime,
	}
}

// Snapshot is the keeper's introspection view.
type Snapshot struct {
	AllOrderCount       int    `json:"allOrderCount"`
	PendingOrderCount   int    `json:"pendingOrderCount"`
	AllPlaybookCount    int    `json:"allPlaybookCount"`
	ActivePlaybookCount int    `json:"activePlaybookCount"`
	ActivePlaybooks     []View `json:"activePlaybooks"`
}

// Snapshot returns an immutable copy of the keeper's bookkeeping.
func (k *Keeper) Snapshot() Snapshot {
	active := make([]View, 0, len(k.activePlaybooks))
	for _, pb := range k.activePlaybooks {
		active = append(active, pb.View())
	}

	return Snapshot{
		AllOrderCount:       len(k.allOrders),
		PendingOrderCount:   len(k.pendingOrders),
		AllPlaybookCount:    len(k.playbookOrder),
		ActivePlaybookCount: len(k.activePlaybooks),
		ActivePlaybooks:     active,
	}
}
