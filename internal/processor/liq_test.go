package processor

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	appconfig "fundingflow/config"
	liqchannel "fundingflow/internal/channel/liq"
	"fundingflow/internal/liquidation"
	"fundingflow/internal/models"
)

type memorySink struct {
	events []models.LiquidationEvent
}

func (m *memorySink) Append(ev models.LiquidationEvent) error {
	m.events = append(m.events, ev)
	return nil
}

func newTestProcessor(ch *liqchannel.Channels, sink *memorySink) *LiquidationProcessor {
	watch := liquidation.NewWatchlist([]string{"BTC", "ETH"})
	filter := liquidation.NewFilter(watch, 3000, 10000, time.UTC)
	p := NewLiquidationProcessor(&appconfig.Config{}, ch, filter, sink, nil)
	p.out = &bytes.Buffer{}
	return p
}

func TestHandleMessagePersistsQualifyingEvent(t *testing.T) {
	ch := liqchannel.NewChannels(1)
	defer ch.Close()
	sink := &memorySink{}
	p := newTestProcessor(ch, sink)
	p.ctx = context.Background()

	frame := []byte(`{"e":"forceOrder","E":1714566662100,"o":{"s":"BTCUSDT","S":"SELL","o":"LIMIT","f":"IOC","q":"0.500","p":"90000","ap":"90000","X":"FILLED","l":"0.500","z":"0.5","T":1714566662000}}`)
	p.handleMessage(models.RawLiquidationMessage{Exchange: "binance", Data: frame})

	if len(sink.events) != 1 {
		t.Fatalf("expected one persisted event, got %d", len(sink.events))
	}
	ev := sink.events[0]
	if ev.Category != "BTC" || ev.USDSize != 45000 || !ev.LongLiquidated {
		t.Fatalf("unexpected event: %+v", ev)
	}

	out := p.out.(*bytes.Buffer).String()
	if !strings.Contains(out, "L LIQ BTC") || !strings.Contains(out, "$45000") {
		t.Fatalf("unexpected console render: %q", out)
	}
}

func TestHandleMessageDiscardsMalformedFrame(t *testing.T) {
	ch := liqchannel.NewChannels(1)
	defer ch.Close()
	sink := &memorySink{}
	p := newTestProcessor(ch, sink)
	p.ctx = context.Background()

	p.handleMessage(models.RawLiquidationMessage{Exchange: "binance", Data: []byte(`{broken`)})

	if len(sink.events) != 0 {
		t.Fatalf("malformed frames must not reach the sink")
	}
}

func TestHandleMessageDiscardsFilteredEvent(t *testing.T) {
	ch := liqchannel.NewChannels(1)
	defer ch.Close()
	sink := &memorySink{}
	p := newTestProcessor(ch, sink)
	p.ctx = context.Background()

	// below the notional floor
	frame := []byte(`{"e":"forceOrder","o":{"s":"BTCUSDT","S":"SELL","p":"90000","z":"0.01","T":1714566662000}}`)
	p.handleMessage(models.RawLiquidationMessage{Exchange: "binance", Data: frame})

	if len(sink.events) != 0 {
		t.Fatalf("sub-threshold events must not reach the sink")
	}
}

func TestWorkerPreservesArrivalOrder(t *testing.T) {
	ch := liqchannel.NewChannels(8)
	sink := &memorySink{}
	p := newTestProcessor(ch, sink)

	ctx, cancel := context.WithCancel(context.Background())
	if err := p.Start(ctx); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	frames := []string{
		`{"o":{"s":"BTCUSDT","S":"SELL","p":"90000","z":"1","T":1714566662000}}`,
		`{"o":{"s":"ETHUSDT","S":"BUY","p":"3000","z":"2","T":1714566663000}}`,
		`{"o":{"s":"BTCUSDT","S":"BUY","p":"91000","z":"1","T":1714566664000}}`,
	}
	for _, f := range frames {
		if !ch.SendRaw(ctx, models.RawLiquidationMessage{Exchange: "binance", Data: []byte(f)}) {
			t.Fatalf("send failed")
		}
	}
	ch.Close()
	p.Stop()
	cancel()

	if len(sink.events) != 3 {
		t.Fatalf("expected three events, got %d", len(sink.events))
	}
	if sink.events[0].Order.TradeTime >= sink.events[1].Order.TradeTime ||
		sink.events[1].Order.TradeTime >= sink.events[2].Order.TradeTime {
		t.Fatalf("events out of arrival order: %+v", sink.events)
	}
}
