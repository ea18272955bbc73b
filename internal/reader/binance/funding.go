package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"

	appconfig "fundingflow/config"
	"fundingflow/internal/backoff"
	"fundingflow/internal/models"
	"fundingflow/internal/rates"
	"fundingflow/internal/stream"
	"fundingflow/logger"
)

// Binance_FUND_Reader maintains one mark-price websocket subscription per
// configured instrument and feeds annualized funding rates into the shared
// aggregate. Each subscription reconnects independently, so one instrument
// going dark never affects the others.
type Binance_FUND_Reader struct {
	config      *appconfig.Config
	agg         *rates.Aggregator
	instruments []models.Instrument
	ctx         context.Context
	cancel      context.CancelFunc
	wg          *sync.WaitGroup
	mu          sync.RWMutex
	running     bool
	log         *logger.Log
}

// Binance_FUND_NewReader constructs a funding reader over the configured
// instruments.
func Binance_FUND_NewReader(cfg *appconfig.Config, agg *rates.Aggregator, instruments []models.Instrument) *Binance_FUND_Reader {
	return &Binance_FUND_Reader{
		config:      cfg,
		agg:         agg,
		instruments: instruments,
		wg:          &sync.WaitGroup{},
		log:         logger.GetLogger(),
	}
}

// Binance_FUND_Start launches one stream connection per instrument.
// Connections are restarted automatically until the context is cancelled.
func (r *Binance_FUND_Reader) Binance_FUND_Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("binance funding reader already running")
	}
	r.running = true
	r.ctx, r.cancel = context.WithCancel(ctx)
	r.mu.Unlock()

	log := r.log.WithComponent("binance_funding_reader")

	if !r.config.Source.Binance.Funding.Enabled {
		log.Warn("binance funding stream disabled via configuration")
		return fmt.Errorf("binance funding stream disabled")
	}
	if len(r.instruments) == 0 {
		log.Warn("no instruments configured for binance funding reader")
		return fmt.Errorf("no instruments configured for binance funding reader")
	}

	names := make([]string, 0, len(r.instruments))
	for _, inst := range r.instruments {
		names = append(names, inst.Name)
	}
	log.WithFields(logger.Fields{"instruments": strings.Join(names, ",")}).Info("starting binance funding reader")

	for _, inst := range r.instruments {
		r.wg.Add(1)
		go r.streamInstrument(inst)
	}

	log.Info("binance funding reader started successfully")
	return nil
}

// Binance_FUND_Stop cancels all subscriptions and waits for the workers.
func (r *Binance_FUND_Reader) Binance_FUND_Stop() {
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
	r.log.WithComponent("binance_funding_reader").Info("binance funding reader stopped")
}

func (r *Binance_FUND_Reader) streamInstrument(inst models.Instrument) {
	defer r.wg.Done()

	url := fmt.Sprintf("%s/%s@markPrice", strings.TrimRight(r.config.Source.Binance.WebsocketURL, "/"), inst.Symbol)
	ctrl := backoff.New(r.config.Reader.Retry.BaseDelay, r.config.Reader.Retry.MaxDelay)
	ctrl.Jitter = r.config.Reader.Retry.Jitter
	conn := stream.New(stream.Config{
		URL:     url,
		Name:    fmt.Sprintf("funding_%s", inst.Name),
		Backoff: ctrl,
	}, func(data []byte) error {
		return r.handleFrame(inst, data)
	})

	conn.Run(r.ctx)
}

func (r *Binance_FUND_Reader) handleFrame(inst models.Instrument, data []byte) error {
	var update models.MarkPriceUpdate
	if err := json.Unmarshal(data, &update); err != nil {
		return fmt.Errorf("decode mark price update: %w", err)
	}

	raw, err := strconv.ParseFloat(update.FundingRate, 64)
	if err != nil {
		return fmt.Errorf("parse funding rate %q: %w", update.FundingRate, err)
	}

	r.agg.Update(inst.Name, rates.Annualize(raw))
	logger.IncrementFundingUpdate(len(data))
	return nil
}
