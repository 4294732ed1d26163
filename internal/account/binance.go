package account

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/rxtech-lab/argo-tradlet/internal/types"
	"github.com/rxtech-lab/argo-tradlet/pkg/errors"
	"github.com/shopspring/decimal"
)

const (
	// BinanceDecimalPrecision is the default quantity precision.
	// 8 decimals allows for satoshi-level precision (0.00000001 BTC).
	BinanceDecimalPrecision = 8

	binanceRequestTimeout = 10 * time.Second

	// binanceClockSkew widens the first trade lookup of an instrument.
	binanceClockSkew = time.Minute
)

// Service interfaces for mocking the Binance API

// CreateOrderService interface for creating orders.
type CreateOrderService interface {
	Symbol(symbol string) CreateOrderService
	Side(side binance.SideType) CreateOrderService
	Type(orderType binance.OrderType) CreateOrderService
	Quantity(quantity string) CreateOrderService
	Price(price string) CreateOrderService
	TimeInForce(tif binance.TimeInForceType) CreateOrderService
	Do(ctx context.Context) (*binance.CreateOrderResponse, error)
}

// CancelOrderService interface for canceling orders.
type CancelOrderService interface {
	Symbol(symbol string) CancelOrderService
	OrderID(orderID int64) CancelOrderService
	Do(ctx context.Context) (*binance.CancelOrderResponse, error)
}

// GetOrderService interface for querying one order.
type GetOrderService interface {
	Symbol(symbol string) GetOrderService
	OrderID(orderID int64) GetOrderService
	Do(ctx context.Context) (*binance.Order, error)
}

// ListTradesService interface for listing trades.
type ListTradesService interface {
	Symbol(symbol string) ListTradesService
	StartTime(startTime int64) ListTradesService
	FromID(fromID int64) ListTradesService
	Do(ctx context.Context) ([]*binance.TradeV3, error)
}

// BinanceClient interface abstracts the Binance client for testing.
type BinanceClient interface {
	NewCreateOrderService() CreateOrderService
	NewCancelOrderService() CancelOrderService
	NewGetOrderService() GetOrderService
	NewListTradesService() ListTradesService
}

// realBinanceClient wraps the actual binance.Client.
type realBinanceClient struct {
	client *binance.Client
}

func (r *realBinanceClient) NewCreateOrderService() CreateOrderService {
	return &realCreateOrderService{service: r.client.NewCreateOrderService()}
}

func (r *realBinanceClient) NewCancelOrderService() CancelOrderService {
	return &realCancelOrderService{service: r.client.NewCancelOrderService()}
}

func (r *realBinanceClient) NewGetOrderService() GetOrderService {
	return &realGetOrderService{service: r.client.NewGetOrderService()}
}

func (r *realBinanceClient) NewListTradesService() ListTradesService {
	return &realListTradesService{service: r.client.NewListTradesService()}
}

// Real service wrappers

type realCreateOrderService struct {
	service *binance.CreateOrderService
}

func (s *realCreateOrderService) Symbol(symbol string) CreateOrderService {
	s.service = s.service.Symbol(symbol)

	return s
}

func (s *realCreateOrderService) Side(side binance.SideType) CreateOrderService {
	s.service = s.service.Side(side)

	return s
}

func (s *realCreateOrderService) Type(orderType binance.OrderType) CreateOrderService {
	s.service = s.service.Type(orderType)

	return s
}

func (s *realCreateOrderService) Quantity(quantity string) CreateOrderService {
	s.service = s.service.Quantity(quantity)

	return s
}

func (s *realCreateOrderService) Price(price string) CreateOrderService {
	s.service = s.service.Price(price)

	return s
}

func (s *realCreateOrderService) TimeInForce(tif binance.TimeInForceType) CreateOrderService {
	s.service = s.service.TimeInForce(tif)

	return s
}

func (s *realCreateOrderService) Do(ctx context.Context) (*binance.CreateOrderResponse, error) {
	return s.service.Do(ctx)
}

type realCancelOrderService struct {
	service *binance.CancelOrderService
}

func (s *realCancelOrderService) Symbol(symbol string) CancelOrderService {
	s.service = s.service.Symbol(symbol)

	return s
}

func (s *realCancelOrderService) OrderID(orderID int64) CancelOrderService {
	s.service = s.service.OrderID(orderID)

	return s
}

func (s *realCancelOrderService) Do(ctx context.Context) (*binance.CancelOrderResponse, error) {
	return s.service.Do(ctx)
}

type realGetOrderService struct {
	service *binance.GetOrderService
}

func (s *realGetOrderService) Symbol(symbol string) GetOrderService {
	s.service = s.service.Symbol(symbol)

	return s
}

func (s *realGetOrderService) OrderID(orderID int64) GetOrderService {
	s.service = s.service.OrderID(orderID)

	return s
}

func (s *realGetOrderService) Do(ctx context.Context) (*binance.Order, error) {
	return s.service.Do(ctx)
}

type realListTradesService struct {
	service *binance.ListTradesService
}

func (s *realListTradesService) Symbol(symbol string) ListTradesService {
	s.service = s.service.Symbol(symbol)

	return s
}

func (s *realListTradesService) StartTime(startTime int64) ListTradesService {
	s.service = s.service.StartTime(startTime)

	return s
}

func (s *realListTradesService) FromID(fromID int64) ListTradesService {
	s.service = s.service.FromID(fromID)

	return s
}

func (s *realListTradesService) Do(ctx context.Context) ([]*binance.TradeV3, error) {
	return s.service.Do(ctx)
}

// BinanceAccount implements Account and EventSource on the Binance spot REST API.
// Order volume units are converted to base-asset quantity with the configured lot size.
type BinanceAccount struct {
	client           BinanceClient
	lotSize          decimal.Decimal
	decimalPrecision int32
	mu               sync.Mutex
	orders           map[string]*types.Order
	seenTrades       map[int64]struct{}
	tradeCursors     map[string]int64
	reportedQty      map[string]decimal.Decimal
	since            time.Time
	now              func() time.Time
}

// NewBinanceAccount creates a Binance account.
// If config.UseTestnet is true, connects to Binance Testnet (https://testnet.binance.vision/).
// If config.BaseURL is set, it takes precedence over UseTestnet.
func NewBinanceAccount(config BinanceConfig) (*BinanceAccount, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	if config.UseTestnet {
		binance.UseTestnet = true
	}

	client := binance.NewClient(config.ApiKey, config.SecretKey)

	// Set custom base URL if provided (takes precedence over useTestnet)
	if config.BaseURL != "" {
		client.BaseURL = config.BaseURL
	}

	precision := config.DecimalPrecision
	if precision == 0 {
		precision = BinanceDecimalPrecision
	}

	return newBinanceAccountWithClient(&realBinanceClient{client: client}, config.LotSize, precision), nil
}

// newBinanceAccountWithClient creates a Binance account with a custom client.
// This is used for testing with mock clients.
func newBinanceAccountWithClient(client BinanceClient, lotSize float64, decimalPrecision int32) *BinanceAccount {
	return &BinanceAccount{
		client:           client,
		lotSize:          decimal.NewFromFloat(lotSize),
		decimalPrecision: decimalPrecision,
		mu:               sync.Mutex{},
		orders:           make(map[string]*types.Order),
		seenTrades:       make(map[int64]struct{}),
		tradeCursors:     make(map[string]int64),
		reportedQty:      make(map[string]decimal.Decimal),
		since:            time.Now().Add(-binanceClockSkew),
		now:              time.Now,
	}
}

// CreateOrder implements Account.
func (b *BinanceAccount) CreateOrder(spec types.OrderSpec) (*types.Order, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	side, err := toBinanceSide(spec.Direction)
	if err != nil {
		return nil, err
	}

	quantity := b.toQuantity(spec.Volume)
	if !quantity.IsPositive() {
		return nil, errors.Newf(errors.ErrCodeInvalidOrder,
			"order volume %d is too small after rounding to %d decimal places", spec.Volume, b.decimalPrecision)
	}

	ctx, cancel := context.WithTimeout(context.Background(), binanceRequestTimeout)
	defer cancel()

	orderService := b.client.NewCreateOrderService().
		Symbol(spec.Instrument).
		Side(side).
		Quantity(quantity.StringFixed(b.decimalPrecision))

	// BEST maps to a market order, LIMIT adds price and time in force
	if spec.PriceType == types.OrderPriceTypeLimit {
		orderService = orderService.
			Type(binance.OrderTypeLimit).
			Price(strconv.FormatFloat(spec.LimitPrice, 'f', -1, 64)).
			TimeInForce(binance.TimeInForceTypeGTC)
	} else {
		orderService = orderService.Type(binance.OrderTypeMarket)
	}

	resp, err := orderService.Do(ctx)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeOrderFailed, "failed to place order on Binance", err)
	}

	order := types.NewOrder(strconv.FormatInt(resp.OrderID, 10), spec, b.now())
	order.State = types.OrderStateSubmitted

	b.mu.Lock()
	b.orders[order.Ref] = order.Clone()
	b.mu.Unlock()

	return order, nil
}

// CancelOrder implements Account.
func (b *BinanceAccount) CancelOrder(ref string) error {
	b.mu.Lock()
	order, ok := b.orders[ref]
	b.mu.Unlock()

	if !ok {
		return errors.Newf(errors.ErrCodeOrderNotFound, "order not found: %s", ref)
	}

	orderID, err := strconv.ParseInt(ref, 10, 64)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInvalidParameter, "invalid order ID format", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), binanceRequestTimeout)
	defer cancel()

	_, err = b.client.NewCancelOrderService().
		Symbol(order.Instrument).
		OrderID(orderID).
		Do(ctx)
	if err != nil {
		return errors.Wrap(errors.ErrCodeCancelFailed, "failed to cancel order on Binance", err)
	}

	return nil
}

// Poll implements EventSource. It queries every tracked working order, then the trades of every
// instrument with a working order or with fills not yet reported as transactions.
// Trades are read from a per-instrument trade id cursor.
func (b *BinanceAccount) Poll(ctx context.Context) ([]Event, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var events []Event

	for ref, order := range b.orders {
		if order.State.IsDone() {
			continue
		}

		orderID, err := strconv.ParseInt(ref, 10, 64)
		if err != nil {
			continue
		}

		bo, err := b.client.NewGetOrderService().Symbol(order.Instrument).OrderID(orderID).Do(ctx)
		if err != nil {
			return events, errors.Wrapf(errors.ErrCodeQueryFailed, err, "failed to query order %s on Binance", ref)
		}

		state := mapBinanceOrderStatus(bo.Status)
		filled := b.toVolume(bo.ExecutedQuantity)

		if state == order.State && filled == order.FilledVolume {
			continue
		}

		order.State = state
		order.FilledVolume = filled
		order.UpdateTime = b.now()
		events = append(events, OrderEvent(order.Clone()))
	}

	for instrument := range b.tradeInstruments() {
		service := b.client.NewListTradesService().Symbol(instrument)
		if cursor, ok := b.tradeCursors[instrument]; ok {
			service = service.FromID(cursor)
		} else {
			service = service.StartTime(b.since.UnixMilli())
		}

		trades, err := service.Do(ctx)
		if err != nil {
			return events, errors.Wrapf(errors.ErrCodeQueryFailed, err, "failed to list trades for %s on Binance", instrument)
		}

		for _, bt := range trades {
			if next := bt.ID + 1; next > b.tradeCursors[instrument] {
				b.tradeCursors[instrument] = next
			}

			if _, seen := b.seenTrades[bt.ID]; seen {
				continue
			}

			ref := strconv.FormatInt(bt.OrderID, 10)
			if _, tracked := b.orders[ref]; !tracked {
				continue
			}

			b.seenTrades[bt.ID] = struct{}{}
			if qty, err := decimal.NewFromString(bt.Quantity); err == nil {
				b.reportedQty[ref] = b.reportedQty[ref].Add(qty)
			}

			events = append(events, TxnEvent(b.convertTrade(bt)))
		}
	}

	return events, nil
}

// tradeInstruments returns the instruments whose trades may still carry unreported fills.
func (b *BinanceAccount) tradeInstruments() map[string]struct{} {
	instruments := make(map[string]struct{})

	for ref, order := range b.orders {
		if !order.State.IsDone() || b.toVolume(b.reportedQty[ref].String()) < order.FilledVolume {
			instruments[order.Instrument] = struct{}{}
		}
	}

	return instruments
}

// Helper functions

func (b *BinanceAccount) toQuantity(volume int) decimal.Decimal {
	return decimal.NewFromInt(int64(volume)).Mul(b.lotSize).Round(b.decimalPrecision)
}

func (b *BinanceAccount) toVolume(quantity string) int {
	qty, err := decimal.NewFromString(quantity)
	if err != nil || b.lotSize.IsZero() {
		return 0
	}

	return int(qty.Div(b.lotSize).Floor().IntPart())
}

func (b *BinanceAccount) convertTrade(bt *binance.TradeV3) *types.Transaction {
	price, _ := strconv.ParseFloat(bt.Price, 64)

	direction := types.OrderDirectionSell
	if bt.IsBuyer {
		direction = types.OrderDirectionBuy
	}

	return &types.Transaction{
		ID:        strconv.FormatInt(bt.ID, 10),
		OrderRef:  strconv.FormatInt(bt.OrderID, 10),
		Direction: direction,
		Volume:    b.toVolume(bt.Quantity),
		Price:     price,
		Time:      time.UnixMilli(bt.Time),
	}
}

func toBinanceSide(direction types.OrderDirection) (binance.SideType, error) {
	switch direction {
	case types.OrderDirectionBuy:
		return binance.SideTypeBuy, nil
	case types.OrderDirectionSell:
		return binance.SideTypeSell, nil
	default:
		return "", errors.Newf(errors.ErrCodeInvalidOrder, "unsupported order direction: %s", direction)
	}
}

// mapBinanceOrderStatus maps Binance order status to our OrderState type.
func mapBinanceOrderStatus(status binance.OrderStatusType) types.OrderState {
	switch status {
	case binance.OrderStatusTypeNew, binance.OrderStatusTypePendingCancel:
		return types.OrderStateAccepted
	case binance.OrderStatusTypePartiallyFilled:
		return types.OrderStatePartiallyFilled
	case binance.OrderStatusTypeFilled:
		return types.OrderStateFilled
	case binance.OrderStatusTypeCanceled, binance.OrderStatusTypeExpired:
		return types.OrderStateCanceled
	case binance.OrderStatusTypeRejected:
		return types.OrderStateRejected
	default:
		return types.OrderStateFailed
	}
}

var _ Account = (*BinanceAccount)(nil)

var _ EventSource = (*BinanceAccount)(nil)
