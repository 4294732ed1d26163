package types

import "time"

// Tick is a level-1 market snapshot for one instrument.
type Tick struct {
	Instrument string    `yaml:"instrument" json:"instrument"`
	Time       time.Time `yaml:"time" json:"time"`
	LastPrice  float64   `yaml:"last_price" json:"last_price"`
	BidPrice   float64   `yaml:"bid_price" json:"bid_price"`
	AskPrice   float64   `yaml:"ask_price" json:"ask_price"`
	BidVolume  float64   `yaml:"bid_volume" json:"bid_volume"`
	AskVolume  float64   `yaml:"ask_volume" json:"ask_volume"`
	Volume     float64   `yaml:"volume" json:"volume"`
}

// HasQuote reports whether both sides of the book are present.
func (t Tick) HasQuote() bool {
	return t.BidPrice > 0 && t.AskPrice > 0
}

// Bar is an aggregated OHLCV candle.
type Bar struct {
	Id         string    `yaml:"id" json:"id"`
	Instrument string    `yaml:"instrument" json:"instrument"`
	Interval   string    `yaml:"interval" json:"interval"`
	Time       time.Time `yaml:"time" json:"time"`
	Open       float64   `yaml:"open" json:"open"`
	High       float64   `yaml:"high" json:"high"`
	Low        float64   `yaml:"low" json:"low"`
	Close      float64   `yaml:"close" json:"close"`
	Volume     float64   `yaml:"volume" json:"volume"`
}
