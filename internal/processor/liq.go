package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/fatih/color"

	appconfig "fundingflow/config"
	liqchannel "fundingflow/internal/channel/liq"
	"fundingflow/internal/liquidation"
	"fundingflow/internal/models"
	"fundingflow/logger"
)

// EventSink receives classified liquidation events. ArchiveSink is the
// optional secondary destination; a nil archive disables it.
type EventSink interface {
	Append(ev models.LiquidationEvent) error
}

type ArchiveSink interface {
	Add(ev models.LiquidationEvent)
}

// LiquidationProcessor consumes raw force-order frames, filters them through
// the watchlist and notional floor, renders survivors to the console and
// appends them to the CSV logs. A single worker preserves arrival order in
// the output files.
type LiquidationProcessor struct {
	config   *appconfig.Config
	channels *liqchannel.Channels
	filter   *liquidation.Filter
	sink     EventSink
	archive  ArchiveSink
	ctx      context.Context
	wg       *sync.WaitGroup
	mu       sync.RWMutex
	running  bool
	log      *logger.Log
	out      io.Writer
}

// NewLiquidationProcessor builds the processor instance. archive may be nil.
func NewLiquidationProcessor(cfg *appconfig.Config, ch *liqchannel.Channels, filter *liquidation.Filter, sink EventSink, archive ArchiveSink) *LiquidationProcessor {
	return &LiquidationProcessor{
		config:   cfg,
		channels: ch,
		filter:   filter,
		sink:     sink,
		archive:  archive,
		wg:       &sync.WaitGroup{},
		log:      logger.GetLogger(),
		out:      color.Output,
	}
}

// Start begins consuming raw liquidation messages.
func (p *LiquidationProcessor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("liquidation processor already running")
	}
	p.running = true
	p.ctx = ctx
	p.mu.Unlock()

	log := p.log.WithComponent("liq_processor")
	log.Info("starting liquidation processor")

	p.wg.Add(1)
	go p.worker()
	return nil
}

// Stop waits for the worker to finish. The worker exits when the context is
// cancelled or the raw channel is closed.
func (p *LiquidationProcessor) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.mu.Unlock()

	p.wg.Wait()
	p.log.WithComponent("liq_processor").Info("liquidation processor stopped")
}

func (p *LiquidationProcessor) worker() {
	defer p.wg.Done()
	for {
		select {
		case <-p.ctx.Done():
			return
		case msg, ok := <-p.channels.Raw:
			if !ok {
				return
			}
			p.handleMessage(msg)
		}
	}
}

func (p *LiquidationProcessor) handleMessage(msg models.RawLiquidationMessage) {
	log := p.log.WithComponent("liq_processor")

	var event models.ForceOrderEvent
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		log.WithError(err).WithFields(logger.Fields{
			"exchange": msg.Exchange,
		}).Warn("discarding malformed liquidation frame")
		return
	}

	ev, ok := p.filter.Process(event.Order)
	if !ok {
		return
	}

	p.render(ev)

	if err := p.sink.Append(*ev); err != nil {
		log.WithError(err).WithFields(logger.Fields{
			"symbol": ev.Order.Symbol,
		}).Error("failed to persist liquidation event")
	}
	if p.archive != nil {
		p.archive.Add(*ev)
	}
	logger.IncrementLiquidationEvent(len(msg.Data))
}

// render prints one color-coded line per event: green background for a
// liquidated long, red for a liquidated short, bold above the emphasis
// threshold.
func (p *LiquidationProcessor) render(ev *models.LiquidationEvent) {
	kind := "S LIQ"
	style := color.New(color.FgWhite, color.BgRed)
	if ev.LongLiquidated {
		kind = "L LIQ"
		style = color.New(color.FgWhite, color.BgGreen)
	}
	if ev.Emphasized {
		style = style.Add(color.Bold)
	}

	style.Fprintf(p.out, "%s %s %s $%.0f", kind, ev.Category, ev.LocalTime, ev.USDSize)
	io.WriteString(p.out, "\n")
}
