package binance

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	futures "github.com/adshao/go-binance/v2/futures"
	"golang.org/x/time/rate"

	appconfig "fundingflow/config"
	"fundingflow/logger"
)

// newFuturesClient builds a REST client backed by a pooled transport sized
// from the reader config.
func newFuturesClient(cfg *appconfig.Config) *futures.Client {
	transport := &http.Transport{
		MaxIdleConns:    cfg.Reader.ConnectionPool.MaxIdleConns,
		MaxConnsPerHost: cfg.Reader.ConnectionPool.MaxConnsPerHost,
		IdleConnTimeout: cfg.Reader.ConnectionPool.IdleConnTimeout,
	}

	client := futures.NewClient("", "")
	client.HTTPClient = &http.Client{
		Transport: transport,
		Timeout:   cfg.Reader.Timeout,
	}
	if cfg.Source.Binance.RestURL != "" {
		client.BaseURL = cfg.Source.Binance.RestURL
	}
	return client
}

// ValidateSymbols checks the configured symbols against the exchange info
// endpoint. Unknown or non-trading symbols produce warnings only; the stream
// subscriptions are attempted regardless, so a transient REST failure never
// blocks startup.
func ValidateSymbols(ctx context.Context, cfg *appconfig.Config, symbols []string) error {
	log := logger.GetLogger().WithComponent("binance_rest")

	limiter := rate.NewLimiter(
		rate.Limit(cfg.Reader.RateLimit.RequestsPerSecond),
		cfg.Reader.RateLimit.BurstSize,
	)
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	client := newFuturesClient(cfg)
	info, err := client.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return fmt.Errorf("fetch exchange info: %w", err)
	}

	trading := make(map[string]bool, len(info.Symbols))
	for _, s := range info.Symbols {
		if s.Status == "TRADING" {
			trading[strings.ToUpper(s.Symbol)] = true
		}
	}

	for _, symbol := range symbols {
		if !trading[strings.ToUpper(symbol)] {
			log.WithFields(logger.Fields{"symbol": symbol}).Warn("symbol not trading on exchange")
		}
	}

	log.WithFields(logger.Fields{
		"configured": len(symbols),
		"available":  len(trading),
	}).Info("symbol validation completed")
	return nil
}
