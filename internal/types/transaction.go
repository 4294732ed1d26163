package types

import "time"

// Transaction is one fill event of an order. Accounts may deliver the same fill more than once;
// (OrderRef, ID) identifies it.
type Transaction struct {
	ID        string         `yaml:"id" json:"id" csv:"id"`
	OrderRef  string         `yaml:"order_ref" json:"order_ref" csv:"order_ref"`
	Direction OrderDirection `yaml:"direction" json:"direction" csv:"direction"`
	Volume    int            `yaml:"volume" json:"volume" csv:"volume"`
	Price     float64        `yaml:"price" json:"price" csv:"price"`
	Time      time.Time      `yaml:"time" json:"time" csv:"time"`
}

// Key returns the deduplication key of the transaction.
func (t Transaction) Key() string {
	return t.OrderRef + "/" + t.ID
}
