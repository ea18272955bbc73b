package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"fundingflow/config"
	liqchannel "fundingflow/internal/channel/liq"
	"fundingflow/internal/liquidation"
	"fundingflow/internal/metrics"
	"fundingflow/internal/models"
	"fundingflow/internal/processor"
	"fundingflow/internal/rates"
	"fundingflow/internal/reader/binance"
	"fundingflow/internal/writer"
	"fundingflow/logger"
)

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", "config/config.yml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	log.WithFields(logger.Fields{
		"service": cfg.Fundingflow.Name,
		"version": cfg.Fundingflow.Version,
	}).Info("starting fundingflow")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Metrics.CloudWatch.Enabled {
		logger.InitCloudWatch(cfg.Metrics.CloudWatch.Region, cfg.Metrics.CloudWatch.Namespace)
		metrics.InitCloudWatch(cfg.Metrics.CloudWatch.Region, cfg.Metrics.CloudWatch.Namespace)
	}

	if strings.ToLower(cfg.Logging.Level) == "report" {
		logger.StartReport(ctx, log, 30*time.Second)
	}

	startHeartbeat(ctx, log, cfg.Logging.HeartbeatInterval)

	instruments := models.Instruments(cfg.Source.Binance.Funding.Symbols)
	names := make([]string, 0, len(instruments))
	symbols := make([]string, 0, len(instruments))
	for _, inst := range instruments {
		names = append(names, inst.Name)
		symbols = append(symbols, inst.Symbol)
	}

	if cfg.Reader.ValidateSymbols {
		if err := binance.ValidateSymbols(ctx, cfg, symbols); err != nil {
			log.WithError(err).Warn("symbol validation failed; continuing with configured symbols")
		}
	}

	agg := rates.NewAggregator(names)

	fundingWriter, err := writer.NewFundingWriter(cfg.Output.FundingCSV, names)
	if err != nil {
		log.WithError(err).Error("failed to create funding writer")
		os.Exit(1)
	}
	defer fundingWriter.Close()

	watch := liquidation.NewWatchlist(cfg.Source.Binance.Liquidation.Watchlist)
	loc, err := time.LoadLocation(cfg.Source.Binance.Liquidation.DisplayTimezone)
	if err != nil {
		log.WithError(err).WithFields(logger.Fields{
			"timezone": cfg.Source.Binance.Liquidation.DisplayTimezone,
		}).Warn("invalid display timezone; falling back to UTC")
		loc = time.UTC
	}
	filter := liquidation.NewFilter(watch, cfg.Source.Binance.Liquidation.MinUSD, cfg.Source.Binance.Liquidation.EmphasisUSD, loc)

	liqLog, err := writer.NewLiquidationLog(cfg.Output.LiquidationDir, watch)
	if err != nil {
		log.WithError(err).Error("failed to create liquidation log")
		os.Exit(1)
	}
	defer liqLog.Close()

	var archive *writer.ArchiveWriter
	if cfg.Storage.S3.Enabled {
		archive, err = writer.NewArchiveWriter(cfg)
		if err != nil {
			log.WithError(err).Error("failed to create archive writer")
			os.Exit(1)
		}
	} else {
		log.WithComponent("main").Info("S3 storage disabled; skipping archive writer")
	}

	channels := liqchannel.NewChannels(cfg.Channels.RawBuffer)
	defer channels.Close()

	if cfg.Metrics.ChannelSize {
		metrics.StartChannelSizeMetrics(ctx, channels, time.Second)
	}

	fundingReader := binance.Binance_FUND_NewReader(cfg, agg, instruments)
	liqReader := binance.Binance_LIQ_NewReader(cfg, channels)

	var archiveSink processor.ArchiveSink
	if archive != nil {
		archiveSink = archive
	}
	liqProcessor := processor.NewLiquidationProcessor(cfg, channels, filter, liqLog, archiveSink)
	scheduler := rates.NewScheduler(agg, fundingWriter)

	var wg sync.WaitGroup

	if cfg.Source.Binance.Funding.Enabled {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fundingReader.Binance_FUND_Start(ctx); err != nil {
				log.WithError(err).Warn("funding reader failed to start")
			}
		}()

		wg.Add(1)
		go func() {
			defer wg.Done()
			scheduler.Run(ctx)
		}()
	}

	if cfg.Source.Binance.Liquidation.Enabled {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := liqReader.Binance_LIQ_Start(ctx); err != nil {
				log.WithError(err).Warn("liquidation reader failed to start")
			}
		}()

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := liqProcessor.Start(ctx); err != nil {
				log.WithError(err).Warn("liquidation processor failed to start")
			}
		}()
	}

	if archive != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := archive.Start(ctx); err != nil {
				log.WithError(err).Warn("archive writer failed to start")
			}
		}()
	}

	time.Sleep(2 * time.Second)
	log.Info("all components started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	log.WithFields(logger.Fields{"signal": sig.String()}).Info("shutdown signal received")

	log.Info("starting graceful shutdown")
	cancel()

	if archive != nil {
		log.Info("stopping archive writer")
		archive.Stop()
	}

	log.Info("stopping liquidation processor")
	liqProcessor.Stop()

	log.Info("stopping liquidation reader")
	liqReader.Binance_LIQ_Stop()

	log.Info("stopping funding reader")
	fundingReader.Binance_FUND_Stop()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info("graceful shutdown completed")
	case <-time.After(30 * time.Second):
		log.Warn("graceful shutdown timeout exceeded")
	}

	log.Info("fundingflow stopped")
}


var start = time.Now()

// startHeartbeat logs a liveness line on a fixed cadence so long quiet
// stretches in the market are distinguishable from a wedged process.
func startHeartbeat(ctx context.Context, log *logger.Log, interval time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				log.WithComponent("heartbeat").WithFields(logger.Fields{
					"uptime": time.Since(start).Round(time.Second).String(),
				}).Info("service heartbeat")
			}
		}
	}()
}
