package types

import (
	"maps"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rxtech-lab/argo-tradlet/pkg/errors"
)

type OrderDirection string

type OrderPriceType string

type OrderOffsetFlag string

type OrderState string

const (
	OrderDirectionBuy  OrderDirection = "BUY"
	OrderDirectionSell OrderDirection = "SELL"
)

const (
	// OrderPriceTypeLimit uses LimitPrice.
	OrderPriceTypeLimit OrderPriceType = "LIMIT"
	// OrderPriceTypeBest lets the venue pick the best available price. LimitPrice is ignored.
	OrderPriceTypeBest OrderPriceType = "BEST"
)

const (
	OrderOffsetOpen  OrderOffsetFlag = "OPEN"
	OrderOffsetClose OrderOffsetFlag = "CLOSE"
)

const (
	OrderStateSubmitting      OrderState = "SUBMITTING"
	OrderStateSubmitted       OrderState = "SUBMITTED"
	OrderStateAccepted        OrderState = "ACCEPTED"
	OrderStatePartiallyFilled OrderState = "PARTIALLY_FILLED"
	OrderStateFilled          OrderState = "FILLED"
	OrderStateCanceled        OrderState = "CANCELED"
	OrderStateRejected        OrderState = "REJECTED"
	OrderStateFailed          OrderState = "FAILED"
)

// AttrPlaybookID is the order attribute holding the id of the playbook that owns the order.
const AttrPlaybookID = "playbook.id"

// IsDone reports whether the order reached a terminal state.
func (s OrderState) IsDone() bool {
	switch s {
	case OrderStateFilled, OrderStateCanceled, OrderStateRejected, OrderStateFailed:
		return true
	default:
		return false
	}
}

// IsRevocable reports whether a cancel request makes sense for an order in this state.
func (s OrderState) IsRevocable() bool {
	switch s {
	case OrderStateSubmitted, OrderStateAccepted, OrderStatePartiallyFilled:
		return true
	default:
		return false
	}
}

// Opposite returns the direction that offsets d.
func (d OrderDirection) Opposite() OrderDirection {
	if d == OrderDirectionBuy {
		return OrderDirectionSell
	}

	return OrderDirectionBuy
}

// OrderSpec is the request handed to an Account to create an order.
type OrderSpec struct {
	Instrument string            `yaml:"instrument" json:"instrument" validate:"required"`
	Direction  OrderDirection    `yaml:"direction" json:"direction" validate:"required,oneof=BUY SELL"`
	PriceType  OrderPriceType    `yaml:"price_type" json:"price_type" validate:"required,oneof=LIMIT BEST"`
	LimitPrice float64           `yaml:"limit_price" json:"limit_price" validate:"required_if=PriceType LIMIT,gte=0"`
	Volume     int               `yaml:"volume" json:"volume" validate:"required,gt=0"`
	OffsetFlag OrderOffsetFlag   `yaml:"offset_flag" json:"offset_flag" validate:"required,oneof=OPEN CLOSE"`
	Attrs      map[string]string `yaml:"attrs" json:"attrs"`
}

// Validate validates the OrderSpec struct.
func (s *OrderSpec) Validate() error {
	validate := validator.New()
	if err := validate.Struct(s); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidOrder, "invalid order spec", err)
	}

	return nil
}

// Order is an order created by an Account. Request attributes never change after creation;
// State, FilledVolume and UpdateTime follow the venue.
type Order struct {
	Ref          string            `yaml:"ref" json:"ref"`
	Instrument   string            `yaml:"instrument" json:"instrument"`
	Direction    OrderDirection    `yaml:"direction" json:"direction"`
	PriceType    OrderPriceType    `yaml:"price_type" json:"price_type"`
	LimitPrice   float64           `yaml:"limit_price" json:"limit_price"`
	Volume       int               `yaml:"volume" json:"volume"`
	OffsetFlag   OrderOffsetFlag   `yaml:"offset_flag" json:"offset_flag"`
	Attrs        map[string]string `yaml:"attrs" json:"attrs"`
	State        OrderState        `yaml:"state" json:"state"`
	FilledVolume int               `yaml:"filled_volume" json:"filled_volume"`
	CreateTime   time.Time         `yaml:"create_time" json:"create_time"`
	UpdateTime   time.Time         `yaml:"update_time" json:"update_time"`
}

// NewOrder builds an order in Submitting state from a spec.
func NewOrder(ref string, spec OrderSpec, now time.Time) *Order {
	return &Order{
		Ref:          ref,
		Instrument:   spec.Instrument,
		Direction:    spec.Direction,
		PriceType:    spec.PriceType,
		LimitPrice:   spec.LimitPrice,
		Volume:       spec.Volume,
		OffsetFlag:   spec.OffsetFlag,
		Attrs:        maps.Clone(spec.Attrs),
		State:        OrderStateSubmitting,
		FilledVolume: 0,
		CreateTime:   now,
		UpdateTime:   now,
	}
}

// Attr returns an order attribute, or "" when missing.
func (o *Order) Attr(key string) string {
	if o == nil || o.Attrs == nil {
		return ""
	}

	return o.Attrs[key]
}

// PlaybookID returns the id of the owning playbook.
func (o *Order) PlaybookID() string {
	return o.Attr(AttrPlaybookID)
}

// Clone returns a deep copy, so accounts and keepers never share mutable order state.
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}

	c := *o
	c.Attrs = maps.Clone(o.Attrs)

	return &c
}
