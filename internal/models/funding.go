package models

import (
	"strings"
	"time"
)

// Instrument identifies one monitored perpetual futures contract. Instances
// are created from configuration at startup and never mutated afterwards.
type Instrument struct {
	Symbol string // exchange stream symbol, lower case, e.g. "btcusdt"
	Name   string // display name used for columns and logs, e.g. "BTC"
}

// NewInstrument derives an Instrument from a configured symbol. The display
// name is the symbol with the quote suffix removed and upper cased, matching
// the funding table column headers.
func NewInstrument(symbol string) Instrument {
	sym := strings.ToLower(strings.TrimSpace(symbol))
	name := strings.ToUpper(strings.TrimSuffix(sym, "usdt"))
	return Instrument{Symbol: sym, Name: name}
}

// Instruments builds the instrument list for a configured symbol set,
// preserving configuration order.
func Instruments(symbols []string) []Instrument {
	out := make([]Instrument, 0, len(symbols))
	for _, s := range symbols {
		out = append(out, NewInstrument(s))
	}
	return out
}

// MarkPriceUpdate mirrors one frame of the Binance futures mark price stream.
// Only the funding rate is consumed; the remaining fields are decoded so the
// frame can be validated and logged.
type MarkPriceUpdate struct {
	EventType       string `json:"e"`
	EventTime       int64  `json:"E"`
	Symbol          string `json:"s"`
	MarkPrice       string `json:"p"`
	IndexPrice      string `json:"i"`
	FundingRate     string `json:"r"`
	NextFundingTime int64  `json:"T"`
}

// RateSnapshot is an immutable point-in-time copy of the rate aggregate,
// keyed by instrument display name. Time is truncated to the minute in UTC.
type RateSnapshot struct {
	Time  time.Time
	Rates map[string]float64
}
