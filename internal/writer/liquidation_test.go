package writer

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"fundingflow/internal/models"
)

func sampleEvent() models.LiquidationEvent {
	return models.LiquidationEvent{
		Order: models.ForceOrder{
			Symbol:        "BTCUSDT",
			Side:          "SELL",
			OrderType:     "LIMIT",
			TimeInForce:   "IOC",
			OrigQuantity:  "0.500",
			Price:         "90000.00",
			AveragePrice:  "90000.00",
			Status:        "FILLED",
			LastFilledQty: "0.500",
			FilledQty:     "0.500",
			TradeTime:     1714566662000,
		},
		Category:       "BTC",
		USDSize:        45000,
		LongLiquidated: true,
		Emphasized:     true,
		LocalTime:      "08:31:02",
	}
}

func TestLiquidationLogAppend(t *testing.T) {
	dir := t.TempDir()
	l, err := NewLiquidationLog(dir, []string{"BTC", "ETH"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := l.Append(sampleEvent()); err != nil {
		t.Fatalf("append failed: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	global, err := os.ReadFile(filepath.Join(dir, "binance_all_liquidations.csv"))
	if err != nil {
		t.Fatalf("read global log: %v", err)
	}
	lines := strings.Split(strings.TrimRight(string(global), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected header plus one row in global log, got %d", len(lines))
	}
	wantHeader := "symbol,side,order_type,time_in_force,original_quantity,price,average_price,order_status,order_last_filled_quantity,order_filled_accumulated_quantity,order_trade_time,usd_size"
	if lines[0] != wantHeader {
		t.Fatalf("unexpected global header: %q", lines[0])
	}
	wantRow := "BTCUSDT,SELL,LIMIT,IOC,0.500,90000.00,90000.00,FILLED,0.500,0.500,1714566662000,45000"
	if lines[1] != wantRow {
		t.Fatalf("unexpected global row: %q", lines[1])
	}

	token, err := os.ReadFile(filepath.Join(dir, tokenSubdir, "BTC_liquidations.csv"))
	if err != nil {
		t.Fatalf("read token log: %v", err)
	}
	tlines := strings.Split(strings.TrimRight(string(token), "\n"), "\n")
	if tlines[0] != wantHeader+",local_time" {
		t.Fatalf("unexpected token header: %q", tlines[0])
	}
	if tlines[1] != wantRow+",08:31:02" {
		t.Fatalf("unexpected token row: %q", tlines[1])
	}
}

func TestLiquidationLogCreatesAllCategoryFiles(t *testing.T) {
	dir := t.TempDir()
	cats := []string{"BTC", "ETH", "SOL"}
	l, err := NewLiquidationLog(dir, cats)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer l.Close()

	for _, cat := range cats {
		path := filepath.Join(dir, tokenSubdir, cat+"_liquidations.csv")
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("expected %s log to exist: %v", cat, err)
		}
	}
}

func TestLiquidationLogUnknownCategoryStillHitsGlobal(t *testing.T) {
	dir := t.TempDir()
	l, err := NewLiquidationLog(dir, []string{"ETH"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ev := sampleEvent() // category BTC has no per-token file here
	if err := l.Append(ev); err != nil {
		t.Fatalf("append failed: %v", err)
	}
	l.Close()

	global, _ := os.ReadFile(filepath.Join(dir, "binance_all_liquidations.csv"))
	if !strings.Contains(string(global), "BTCUSDT") {
		t.Fatalf("expected global log to contain the row")
	}
}
