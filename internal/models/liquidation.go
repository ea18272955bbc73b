package models

import "time"

// ForceOrderEvent wraps one frame of the Binance futures forced order stream.
type ForceOrderEvent struct {
	EventType string     `json:"e"`
	EventTime int64      `json:"E"`
	Order     ForceOrder `json:"o"`
}

// ForceOrder carries the order object of a forced liquidation. Quantities and
// prices arrive as decimal strings and are parsed during classification.
type ForceOrder struct {
	Symbol        string `json:"s"`
	Side          string `json:"S"`
	OrderType     string `json:"o"`
	TimeInForce   string `json:"f"`
	OrigQuantity  string `json:"q"`
	Price         string `json:"p"`
	AveragePrice  string `json:"ap"`
	Status        string `json:"X"`
	LastFilledQty string `json:"l"`
	FilledQty     string `json:"z"`
	TradeTime     int64  `json:"T"`
}

// RawLiquidationMessage carries one undecoded liquidation frame from the
// stream reader to the processor.
type RawLiquidationMessage struct {
	Exchange string
	Data     []byte
	Received time.Time
}

// LiquidationEvent is one classified forced order that passed the watch-list
// and notional filters. It is rendered and persisted immediately and never
// retained afterwards.
type LiquidationEvent struct {
	Order          ForceOrder
	Category       string  // matched watch-list label, e.g. "BTC"
	USDSize        float64 // filled quantity x price
	LongLiquidated bool    // a forced SELL closes a long position
	Emphasized     bool    // presentation flag for large notionals
	LocalTime      string  // HH:MM:SS in the display timezone
}
