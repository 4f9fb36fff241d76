package pulsedb

import (
	// Required for easyjson generation
	_ "github.com/mailru/easyjson/gen"
)

//go:generate go install github.com/mailru/easyjson/...@v0.7.7
//go:generate easyjson -all -lower_camel_case $GOFILE

// EventKind discriminates the event types stored in a database file.
type EventKind byte

const (
	// KindMarketData is a market-depth snapshot event.
	KindMarketData EventKind = iota
	// KindTrade is a single trade event.
	KindTrade
)

// Event is a single row of a database file: either a *MarketData or a *Trade.
type Event interface {
	// Kind returns the event discriminator.
	Kind() EventKind
	// Time returns the event timestamp in milliseconds since the Unix epoch.
	Time() int64
}

// Quote is one price level of a market-depth snapshot.
type Quote struct {
	Price  float64 `json:"p"`
	Volume uint32  `json:"v"`
}

// MarketData is a market-depth snapshot with Depth levels on each side.
// Sides shorter than the file depth are right-padded with empty quotes on
// write; longer sides are truncated.
type MarketData struct {
	Timestamp int64   `json:"t"`
	Bid       []Quote `json:"b"`
	Ask       []Quote `json:"a"`
}

// Kind implements Event.
func (m *MarketData) Kind() EventKind { return KindMarketData }

// Time implements Event.
func (m *MarketData) Time() int64 { return m.Timestamp }

// Trade is a single trade that happened on the market.
type Trade struct {
	Timestamp int64   `json:"t"`
	Price     float64 `json:"p"`
	Volume    uint32  `json:"v"`
}

// Kind implements Event.
func (t *Trade) Kind() EventKind { return KindTrade }

// Time implements Event.
func (t *Trade) Time() int64 { return t.Timestamp }

// Candle is the day's running O/H/L/C over all trades, in scaled prices.
// Valid is false until the first trade of the day has been appended.
type Candle struct {
	Open  int64 `json:"o"`
	High  int64 `json:"h"`
	Low   int64 `json:"l"`
	Close int64 `json:"c"`
	Valid bool  `json:"valid"`
}
