package tradlet

import (
	"time"

	"github.com/rxtech-lab/argo-tradlet/internal/playbook"
	"github.com/rxtech-lab/argo-tradlet/internal/types"
	"github.com/rxtech-lab/argo-tradlet/pkg/errors"
)

// Holder hosts one tradlet inside a group and keeps track of its faults.
// Hook panics are recovered and returned as ErrCodeTradletFault errors.
type Holder struct {
	id                string
	tradlet           Tradlet
	ctx               *Context
	lastThrowable     error
	lastThrowableTime time.Time
	cleared           bool
	now               func() time.Time
}

// HolderView is the serializable state of a holder.
type HolderView struct {
	ID                string    `json:"id"`
	LastThrowableTime time.Time `json:"lastThrowableTime,omitzero"`
	LastThrowable     string    `json:"lastThrowable,omitempty"`
}

func NewHolder(id string, tradlet Tradlet, ctx *Context) *Holder {
	return &Holder{
		id:                id,
		tradlet:           tradlet,
		ctx:               ctx,
		lastThrowable:     nil,
		lastThrowableTime: time.Time{},
		cleared:           false,
		now:               time.Now,
	}
}

// SetClock replaces the holder's time source.
func (h *Holder) SetClock(now func() time.Time) {
	h.now = now
}

func (h *Holder) ID() string {
	return h.id
}

func (h *Holder) Tradlet() Tradlet {
	return h.tradlet
}

func (h *Holder) Context() *Context {
	return h.ctx
}

// Init initializes the tradlet. A failure only fails this tradlet's activation.
func (h *Holder) Init() error {
	if err := h.invoke(func() error { return h.tradlet.Init(h.ctx) }); err != nil {
		return errors.Wrapf(errors.ErrCodeTradletInitFailed, err, "failed to init tradlet %s", h.id)
	}

	return nil
}

// Reload hands the tradlet a new configuration. The holder keeps the new context even when
// the tradlet rejects it, so a later reload can fix it.
func (h *Holder) Reload(config string) error {
	h.ctx = h.ctx.WithConfig(config)

	return h.invoke(func() error { return h.tradlet.Reload(h.ctx) })
}

// Destroy destroys the tradlet, swallowing panics.
func (h *Holder) Destroy() error {
	return h.invoke(func() error {
		h.tradlet.Destroy()

		return nil
	})
}

func (h *Holder) OnTick(tick types.Tick) error {
	return h.invoke(func() error { return h.tradlet.OnTick(tick) })
}

func (h *Holder) OnNewBar(bar types.Bar) error {
	return h.invoke(func() error { return h.tradlet.OnNewBar(bar) })
}

func (h *Holder) OnNoopSecond() error {
	return h.invoke(h.tradlet.OnNoopSecond)
}

func (h *Holder) OnPlaybookStateChanged(pb *playbook.Playbook, prev playbook.StateTuple) error {
	return h.invoke(func() error { return h.tradlet.OnPlaybookStateChanged(pb, prev) })
}

// SetThrowable records a fault. It returns true when the caller should log it: the fault
// differs from the last one, or the last one was cleared. A nil fault is ignored.
func (h *Holder) SetThrowable(err error) bool {
	if err == nil {
		return false
	}

	prev := h.lastThrowable
	repeated := prev != nil && !h.cleared && prev.Error() == err.Error()

	h.lastThrowable = err
	h.lastThrowableTime = h.now()
	h.cleared = false

	return !repeated
}

// ClearThrowable marks the last fault as resolved, so the next one is logged even if identical.
// The fault stays visible in View.
func (h *Holder) ClearThrowable() {
	h.cleared = true
}

// LastThrowable returns the last recorded fault, or nil.
func (h *Holder) LastThrowable() error {
	return h.lastThrowable
}

func (h *Holder) View() HolderView {
	view := HolderView{
		ID:                h.id,
		LastThrowableTime: h.lastThrowableTime,
		LastThrowable:     "",
	}

	if h.lastThrowable != nil {
		view.LastThrowable = h.lastThrowable.Error()
	}

	return view
}

func (h *Holder) invoke(hook func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.FromPanic(errors.ErrCodeTradletFault, r)
		}
	}()

	return hook()
}
