package marketdata

import (
	"context"
	"strconv"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/rxtech-lab/argo-tradlet/internal/logger"
	"github.com/rxtech-lab/argo-tradlet/internal/types"
	"github.com/rxtech-lab/argo-tradlet/pkg/errors"
	"go.uber.org/zap"
)

// WebSocketService opens Binance market streams. The methods mirror the go-binance package functions.
type WebSocketService interface {
	WsBookTickerServe(symbol string, handler binance.WsBookTickerHandler, errHandler binance.ErrHandler) (doneC, stopC chan struct{}, err error)
	WsKlineServe(symbol, interval string, handler binance.WsKlineHandler, errHandler binance.ErrHandler) (doneC, stopC chan struct{}, err error)
}

type realWebSocketService struct{}

func (realWebSocketService) WsBookTickerServe(symbol string, handler binance.WsBookTickerHandler, errHandler binance.ErrHandler) (chan struct{}, chan struct{}, error) {
	return binance.WsBookTickerServe(symbol, handler, errHandler)
}

func (realWebSocketService) WsKlineServe(symbol, interval string, handler binance.WsKlineHandler, errHandler binance.ErrHandler) (chan struct{}, chan struct{}, error) {
	return binance.WsKlineServe(symbol, interval, handler, errHandler)
}

// streamBuffer is the capacity of the tick and bar channels.
const streamBuffer = 64

// BinanceStream turns Binance book ticker and kline streams into ticks and bars.
type BinanceStream struct {
	ws       WebSocketService
	interval string
	log      *logger.Logger
	now      func() time.Time
}

// NewBinanceStream creates a stream producing bars of the given kline interval, e.g. "1m".
func NewBinanceStream(interval string, log *logger.Logger) *BinanceStream {
	return newBinanceStreamWithService(realWebSocketService{}, interval, log)
}

func newBinanceStreamWithService(ws WebSocketService, interval string, log *logger.Logger) *BinanceStream {
	return &BinanceStream{
		ws:       ws,
		interval: interval,
		log:      log.Named("binance_stream"),
		now:      time.Now,
	}
}

// Subscribe streams ticks and finalized bars of instrument until ctx is done.
// Both channels are closed once the underlying streams stopped.
func (s *BinanceStream) Subscribe(ctx context.Context, instrument string) (<-chan types.Tick, <-chan types.Bar, error) {
	ticks := make(chan types.Tick, streamBuffer)
	bars := make(chan types.Bar, streamBuffer)
	log := s.log.Named(instrument)

	onError := func(err error) {
		log.Warn("Market stream error", zap.Error(err))
	}

	tickDone, tickStop, err := s.ws.WsBookTickerServe(instrument, func(event *binance.WsBookTickerEvent) {
		tick, ok := s.convertBookTicker(instrument, event)
		if !ok {
			return
		}

		select {
		case ticks <- tick:
		case <-ctx.Done():
		}
	}, onError)
	if err != nil {
		return nil, nil, errors.Wrapf(errors.ErrCodeQueryFailed, err, "failed to subscribe to %s book ticker", instrument)
	}

	barDone, barStop, err := s.ws.WsKlineServe(instrument, s.interval, func(event *binance.WsKlineEvent) {
		bar, ok := convertKline(instrument, event)
		if !ok {
			return
		}

		select {
		case bars <- bar:
		case <-ctx.Done():
		}
	}, onError)
	if err != nil {
		close(tickStop)
		<-tickDone

		return nil, nil, errors.Wrapf(errors.ErrCodeQueryFailed, err, "failed to subscribe to %s klines", instrument)
	}

	go func() {
		// TODO: resubscribe when Binance drops a stream before ctx is done.
		<-ctx.Done()
		close(tickStop)
		close(barStop)
		<-tickDone
		<-barDone
		close(ticks)
		close(bars)
		log.Info("Market stream stopped")
	}()

	log.Info("Market stream started", zap.String("interval", s.interval))

	return ticks, bars, nil
}

func (s *BinanceStream) convertBookTicker(instrument string, event *binance.WsBookTickerEvent) (types.Tick, bool) {
	bid, err := strconv.ParseFloat(event.BestBidPrice, 64)
	if err != nil {
		return types.Tick{}, false
	}

	ask, err := strconv.ParseFloat(event.BestAskPrice, 64)
	if err != nil {
		return types.Tick{}, false
	}

	bidQty, _ := strconv.ParseFloat(event.BestBidQty, 64)
	askQty, _ := strconv.ParseFloat(event.BestAskQty, 64)

	return types.Tick{
		Instrument: instrument,
		Time:       s.now(),
		LastPrice:  (bid + ask) / 2,
		BidPrice:   bid,
		AskPrice:   ask,
		BidVolume:  bidQty,
		AskVolume:  askQty,
		Volume:     0,
	}, true
}

// convertKline keeps finalized candles only.
func convertKline(instrument string, event *binance.WsKlineEvent) (types.Bar, bool) {
	k := event.Kline
	if !k.IsFinal {
		return types.Bar{}, false
	}

	prices := make([]float64, 5)
	for i, raw := range []string{k.Open, k.High, k.Low, k.Close, k.Volume} {
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return types.Bar{}, false
		}

		prices[i] = value
	}

	return types.Bar{
		Id:         instrument + "-" + strconv.FormatInt(k.StartTime, 10),
		Instrument: instrument,
		Interval:   k.Interval,
		Time:       time.UnixMilli(k.StartTime).UTC(),
		Open:       prices[0],
		High:       prices[1],
		Low:        prices[2],
		Close:      prices[3],
		Volume:     prices[4],
	}, true
}
