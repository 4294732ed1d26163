package account

import (
	"context"

	"github.com/rxtech-lab/argo-tradlet/internal/types"
)

// Account accepts order create and cancel requests for one trading group.
// Both calls only submit the request; the outcome is reported later through an EventSource.
type Account interface {
	// CreateOrder submits a new order and returns it in its initial state.
	CreateOrder(spec types.OrderSpec) (*types.Order, error)
	// CancelOrder requests cancellation of the order with the given ref.
	CancelOrder(ref string) error
}

// EventKind tells which field of an Event is set.
type EventKind string

const (
	EventKindOrder       EventKind = "order"
	EventKindTransaction EventKind = "transaction"
)

// Event is one asynchronous report from an account.
type Event struct {
	Kind  EventKind
	Order *types.Order
	Txn   *types.Transaction
}

// OrderEvent wraps an order update.
func OrderEvent(order *types.Order) Event {
	return Event{Kind: EventKindOrder, Order: order, Txn: nil}
}

// TxnEvent wraps a fill.
func TxnEvent(txn *types.Transaction) Event {
	return Event{Kind: EventKindTransaction, Order: nil, Txn: txn}
}

// EventSource yields the order updates and fills an account observed since the last call.
// Poll is called from the owning group's goroutine.
type EventSource interface {
	Poll(ctx context.Context) ([]Event, error)
}
