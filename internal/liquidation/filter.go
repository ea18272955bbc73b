package liquidation

import (
	"strconv"
	"strings"
	"time"

	"fundingflow/internal/models"
	"fundingflow/logger"
)

// Watchlist is an ordered list of token prefixes. Order matters: the first
// prefix that matches a symbol decides the category, so a more specific
// prefix must be listed before a shorter one that would shadow it.
type Watchlist []string

// NewWatchlist normalizes tokens to uppercase, preserving order.
func NewWatchlist(tokens []string) Watchlist {
	w := make(Watchlist, 0, len(tokens))
	for _, tok := range tokens {
		tok = strings.ToUpper(strings.TrimSpace(tok))
		if tok != "" {
			w = append(w, tok)
		}
	}
	return w
}

// Match returns the category for a symbol already stripped of its quote
// suffix, or false when no watched prefix matches.
func (w Watchlist) Match(base string) (string, bool) {
	for _, tok := range w {
		if strings.HasPrefix(base, tok) {
			return tok, true
		}
	}
	return "", false
}

// Filter decides which force orders survive into the event log and
// annotates the survivors with category, notional and display fields.
type Filter struct {
	watch       Watchlist
	minUSD      float64
	emphasisUSD float64
	loc         *time.Location
	log         *logger.Log
}

// NewFilter builds a filter. loc is the timezone used for the per-category
// local-time column; nil falls back to UTC.
func NewFilter(watch Watchlist, minUSD, emphasisUSD float64, loc *time.Location) *Filter {
	if loc == nil {
		loc = time.UTC
	}
	return &Filter{
		watch:       watch,
		minUSD:      minUSD,
		emphasisUSD: emphasisUSD,
		loc:         loc,
		log:         logger.GetLogger(),
	}
}

// Process evaluates one force order. The second return is false when the
// order is discarded: unwatched symbol, notional under the floor, or
// unparseable fields. Discards are silent except for malformed numerics,
// which are logged because they indicate an upstream format change.
func (f *Filter) Process(order models.ForceOrder) (*models.LiquidationEvent, bool) {
	base := strings.TrimSuffix(order.Symbol, "USDT")
	category, ok := f.watch.Match(base)
	if !ok {
		return nil, false
	}

	qty, err := strconv.ParseFloat(order.FilledQty, 64)
	if err != nil {
		f.log.WithComponent("liquidation_filter").WithError(err).WithFields(logger.Fields{
			"symbol": order.Symbol,
			"field":  "z",
			"value":  order.FilledQty,
		}).Warn("discarding force order with malformed quantity")
		return nil, false
	}
	price, err := strconv.ParseFloat(order.Price, 64)
	if err != nil {
		f.log.WithComponent("liquidation_filter").WithError(err).WithFields(logger.Fields{
			"symbol": order.Symbol,
			"field":  "p",
			"value":  order.Price,
		}).Warn("discarding force order with malformed price")
		return nil, false
	}
	if order.TradeTime <= 0 {
		f.log.WithComponent("liquidation_filter").WithFields(logger.Fields{
			"symbol": order.Symbol,
		}).Warn("discarding force order without trade time")
		return nil, false
	}

	usd := qty * price
	if usd < f.minUSD {
		return nil, false
	}

	return &models.LiquidationEvent{
		Order:          order,
		Category:       category,
		USDSize:        usd,
		LongLiquidated: order.Side == "SELL",
		Emphasized:     usd > f.emphasisUSD,
		LocalTime:      time.UnixMilli(order.TradeTime).In(f.loc).Format("15:04:05"),
	}, true
}
