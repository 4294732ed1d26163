package types

type PosDirection string

const (
	PosDirectionLong  PosDirection = "LONG"
	PosDirectionShort PosDirection = "SHORT"
)

// OpenOrderDirection is the order direction that opens a position in this direction.
func (d PosDirection) OpenOrderDirection() OrderDirection {
	if d == PosDirectionShort {
		return OrderDirectionSell
	}

	return OrderDirectionBuy
}

// CloseOrderDirection is the order direction that closes a position in this direction.
func (d PosDirection) CloseOrderDirection() OrderDirection {
	return d.OpenOrderDirection().Opposite()
}
