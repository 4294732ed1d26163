package playbook

import (
	"time"

	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-tradlet/internal/types"
)

type PlaybookState string

const (
	PlaybookStateOpening  PlaybookState = "OPENING"
	PlaybookStateOpened   PlaybookState = "OPENED"
	PlaybookStateClosing  PlaybookState = "CLOSING"
	PlaybookStateClosed   PlaybookState = "CLOSED"
	PlaybookStateCanceled PlaybookState = "CANCELED"
	PlaybookStateFailed   PlaybookState = "FAILED"
)

// IsDone reports whether the state is terminal.
func (s PlaybookState) IsDone() bool {
	switch s {
	case PlaybookStateClosed, PlaybookStateCanceled, PlaybookStateFailed:
		return true
	default:
		return false
	}
}

// StateAction is what caused a state tuple to be recorded.
type StateAction string

const (
	StateActionSend    StateAction = "SEND"
	StateActionCancel  StateAction = "CANCEL"
	StateActionUpdate  StateAction = "UPDATE"
	StateActionFill    StateAction = "FILL"
	StateActionTimeout StateAction = "TIMEOUT"
)

// StateTuple is a playbook state together with the order and action that produced it.
type StateTuple struct {
	State    PlaybookState `yaml:"state" json:"state"`
	OrderRef string        `yaml:"order_ref" json:"orderRef"`
	Action   StateAction   `yaml:"action" json:"action"`
	Time     time.Time     `yaml:"time" json:"time"`
}

type IntentKind string

const (
	// IntentCancelOrder asks the keeper to cancel OrderRef.
	IntentCancelOrder IntentKind = "CANCEL_ORDER"
	// IntentCloseOrder asks the keeper to send one closing order for the remaining volume.
	IntentCloseOrder IntentKind = "CLOSE_ORDER"
)

// Intent is a side effect a playbook wants performed. Playbooks never call the account themselves.
type Intent struct {
	Kind     IntentKind
	OrderRef string
	// Force prices a closing order at BEST regardless of the market snapshot.
	Force bool
}

// Transition is the outcome of feeding one event to a playbook.
// Next is set when the state tuple changes; Intent is set when the keeper has work to do.
type Transition struct {
	Next   optional.Option[StateTuple]
	Intent optional.Option[Intent]
}

func stateChange(state PlaybookState, order *types.Order, action StateAction, now time.Time) *Transition {
	return &Transition{
		Next:   optional.Some(StateTuple{State: state, OrderRef: order.Ref, Action: action, Time: now}),
		Intent: optional.None[Intent](),
	}
}

// withIntent attaches an intent and returns t.
func (t *Transition) withIntent(intent Intent) *Transition {
	t.Intent = optional.Some(intent)

	return t
}

func intentOnly(intent Intent) *Transition {
	return &Transition{
		Next:   optional.None[StateTuple](),
		Intent: optional.Some(intent),
	}
}
