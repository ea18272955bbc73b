package liq

import (
	"context"
	"testing"
	"time"

	"fundingflow/internal/models"
)

func TestChannels_SendRaw(t *testing.T) {
	ch := NewChannels(1)
	defer ch.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	msg := models.RawLiquidationMessage{Exchange: "binance", Data: []byte(`{}`)}
	if !ch.SendRaw(ctx, msg) {
		t.Fatalf("expected send to succeed")
	}
	if stats := ch.GetStats(); stats.RawSent != 1 {
		t.Fatalf("expected raw sent counter to be 1, got %d", stats.RawSent)
	}

	// buffer full should increment dropped counter
	if ch.SendRaw(ctx, msg) {
		t.Fatalf("expected send to fail due to full buffer")
	}
	if stats := ch.GetStats(); stats.RawDropped != 1 {
		t.Fatalf("expected raw dropped counter to be 1, got %d", stats.RawDropped)
	}
}

func TestChannels_Occupancy(t *testing.T) {
	ch := NewChannels(4)
	defer ch.Close()

	ctx := context.Background()
	ch.SendRaw(ctx, models.RawLiquidationMessage{Exchange: "binance"})
	ch.SendRaw(ctx, models.RawLiquidationMessage{Exchange: "binance"})

	if ch.RawLen() != 2 {
		t.Fatalf("expected occupancy 2, got %d", ch.RawLen())
	}
	if ch.RawCap() != 4 {
		t.Fatalf("expected capacity 4, got %d", ch.RawCap())
	}
}
