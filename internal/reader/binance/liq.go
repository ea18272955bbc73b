package binance

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	appconfig "fundingflow/config"
	"fundingflow/internal/backoff"
	liq "fundingflow/internal/channel/liq"
	"fundingflow/internal/metrics"
	"fundingflow/internal/models"
	"fundingflow/internal/stream"
	"fundingflow/logger"
)

const forceOrderStream = "!forceOrder@arr"

// Binance_LIQ_Reader streams liquidation orders from the Binance futures
// websocket API and forwards raw payloads to the configured channel. The
// stream is market-wide; filtering happens downstream in the processor.
type Binance_LIQ_Reader struct {
	config   *appconfig.Config
	channels *liq.Channels
	ctx      context.Context
	cancel   context.CancelFunc
	wg       *sync.WaitGroup
	mu       sync.RWMutex
	running  bool
	log      *logger.Log
}

// Binance_LIQ_NewReader constructs a new liquidation reader.
func Binance_LIQ_NewReader(cfg *appconfig.Config, ch *liq.Channels) *Binance_LIQ_Reader {
	return &Binance_LIQ_Reader{
		config:   cfg,
		channels: ch,
		wg:       &sync.WaitGroup{},
		log:      logger.GetLogger(),
	}
}

// Binance_LIQ_Start launches the shared force-order subscription. The
// subscription is restarted automatically until the context is cancelled.
func (r *Binance_LIQ_Reader) Binance_LIQ_Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("binance liquidation reader already running")
	}
	r.running = true
	r.ctx, r.cancel = context.WithCancel(ctx)
	r.mu.Unlock()

	log := r.log.WithComponent("binance_liq_reader")

	if !r.config.Source.Binance.Liquidation.Enabled {
		log.Warn("binance liquidation stream disabled via configuration")
		return fmt.Errorf("binance liquidation stream disabled")
	}

	log.WithFields(logger.Fields{"stream": forceOrderStream}).Info("starting binance liquidation reader")

	r.wg.Add(1)
	go r.streamForceOrders()

	log.Info("binance liquidation reader started successfully")
	return nil
}

// Binance_LIQ_Stop cancels the subscription and waits for the worker.
func (r *Binance_LIQ_Reader) Binance_LIQ_Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	cancel := r.cancel
	r.cancel = nil
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	r.wg.Wait()
	r.log.WithComponent("binance_liq_reader").Info("binance liquidation reader stopped")
}

func (r *Binance_LIQ_Reader) streamForceOrders() {
	defer r.wg.Done()

	url := fmt.Sprintf("%s/%s", strings.TrimRight(r.config.Source.Binance.WebsocketURL, "/"), forceOrderStream)
	ctrl := backoff.New(r.config.Reader.Retry.BaseDelay, r.config.Reader.Retry.MaxDelay)
	ctrl.Jitter = r.config.Reader.Retry.Jitter
	conn := stream.New(stream.Config{
		URL:     url,
		Name:    "liquidations",
		Backoff: ctrl,
	}, r.handleFrame)

	conn.Run(r.ctx)
}

// handleFrame forwards the raw payload without decoding it; the processor
// owns decode failures so a malformed frame never bounces the connection.
func (r *Binance_LIQ_Reader) handleFrame(data []byte) error {
	msg := models.RawLiquidationMessage{
		Exchange: "binance",
		Data:     append([]byte(nil), data...),
		Received: time.Now().UTC(),
	}

	if !r.channels.SendRaw(r.ctx, msg) {
		metrics.EmitDropMetric(r.log, metrics.DropMetricLiquidationRaw, "binance", "", "raw")
	}
	return nil
}
