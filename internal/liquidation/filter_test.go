package liquidation

import (
	"testing"
	"time"

	"fundingflow/internal/models"
)

func defaultFilter() *Filter {
	watch := NewWatchlist([]string{"BTC", "ETH", "SOL", "XRP", "AVAX", "BNB"})
	return NewFilter(watch, 3000, 10000, time.UTC)
}

func order(symbol, side, qty, price string, tradeTime int64) models.ForceOrder {
	return models.ForceOrder{
		Symbol:    symbol,
		Side:      side,
		FilledQty: qty,
		Price:     price,
		TradeTime: tradeTime,
	}
}

func TestProcessLongLiquidation(t *testing.T) {
	f := defaultFilter()
	ts := time.Date(2024, 5, 1, 12, 31, 2, 0, time.UTC).UnixMilli()

	ev, ok := f.Process(order("BTCUSDT", "SELL", "0.5", "90000", ts))
	if !ok {
		t.Fatalf("expected order to survive the filter")
	}
	if ev.Category != "BTC" {
		t.Fatalf("category = %q, want BTC", ev.Category)
	}
	if ev.USDSize != 45000 {
		t.Fatalf("usd size = %v, want 45000", ev.USDSize)
	}
	if !ev.LongLiquidated {
		t.Fatalf("a SELL force order liquidates a long")
	}
	if !ev.Emphasized {
		t.Fatalf("45000 exceeds the emphasis threshold")
	}
	if ev.LocalTime != "12:31:02" {
		t.Fatalf("local time = %q, want 12:31:02", ev.LocalTime)
	}
}

func TestProcessShortLiquidation(t *testing.T) {
	f := defaultFilter()
	ev, ok := f.Process(order("ETHUSDT", "BUY", "2", "3000", 1714566662000))
	if !ok {
		t.Fatalf("expected order to survive the filter")
	}
	if ev.LongLiquidated {
		t.Fatalf("a BUY force order liquidates a short")
	}
	if ev.Emphasized {
		t.Fatalf("6000 is below the emphasis threshold")
	}
}

func TestProcessDiscardsSmallNotional(t *testing.T) {
	f := defaultFilter()
	if _, ok := f.Process(order("BTCUSDT", "SELL", "0.01", "90000", 1714566662000)); ok {
		t.Fatalf("900 USD is below the floor and must be discarded")
	}
}

func TestProcessKeepsExactFloor(t *testing.T) {
	f := defaultFilter()
	if _, ok := f.Process(order("ETHUSDT", "SELL", "1", "3000", 1714566662000)); !ok {
		t.Fatalf("a notional exactly at the floor is kept")
	}
}

func TestProcessDiscardsUnwatchedSymbol(t *testing.T) {
	f := defaultFilter()
	if _, ok := f.Process(order("DOGEUSDT", "SELL", "1000000", "0.2", 1714566662000)); ok {
		t.Fatalf("symbols outside the watchlist must be discarded")
	}
}

func TestProcessDiscardsMalformedNumerics(t *testing.T) {
	f := defaultFilter()
	if _, ok := f.Process(order("BTCUSDT", "SELL", "abc", "90000", 1714566662000)); ok {
		t.Fatalf("malformed quantity must be discarded")
	}
	if _, ok := f.Process(order("BTCUSDT", "SELL", "0.5", "", 1714566662000)); ok {
		t.Fatalf("malformed price must be discarded")
	}
	if _, ok := f.Process(order("BTCUSDT", "SELL", "0.5", "90000", 0)); ok {
		t.Fatalf("missing trade time must be discarded")
	}
}

func TestWatchlistFirstPrefixWins(t *testing.T) {
	watch := NewWatchlist([]string{"ETH", "ETC"})
	if cat, ok := watch.Match("ETHW"); !ok || cat != "ETH" {
		t.Fatalf("Match(ETHW) = %q,%v, want ETH", cat, ok)
	}

	// A shorter prefix listed first shadows the longer one.
	shadow := NewWatchlist([]string{"BTC", "BTCDOM"})
	if cat, _ := shadow.Match("BTCDOM"); cat != "BTC" {
		t.Fatalf("Match(BTCDOM) = %q, want BTC under listed order", cat)
	}
}

func TestWatchlistNormalization(t *testing.T) {
	watch := NewWatchlist([]string{" btc ", "", "eth"})
	if len(watch) != 2 {
		t.Fatalf("blank tokens must be dropped, got %v", watch)
	}
	if cat, ok := watch.Match("BTCUSD"); !ok || cat != "BTC" {
		t.Fatalf("lowercased tokens must match uppercase symbols, got %q,%v", cat, ok)
	}
}

func TestNilLocationFallsBackToUTC(t *testing.T) {
	watch := NewWatchlist([]string{"BTC"})
	f := NewFilter(watch, 3000, 10000, nil)
	ts := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC).UnixMilli()
	ev, ok := f.Process(order("BTCUSDT", "SELL", "1", "90000", ts))
	if !ok || ev.LocalTime != "09:00:00" {
		t.Fatalf("nil location should render UTC, got %v %v", ev, ok)
	}
}
