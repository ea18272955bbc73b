package writer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/source"
	"github.com/xitongsys/parquet-go/writer"

	appconfig "fundingflow/config"
	"fundingflow/internal/models"
	"fundingflow/logger"
)

const defaultArchiveFlush = time.Minute

type archiveMemFile struct {
	buffer *bytes.Buffer
}

func newArchiveMemFile() *archiveMemFile {
	return &archiveMemFile{buffer: &bytes.Buffer{}}
}

func (m *archiveMemFile) Create(string) (source.ParquetFile, error) { return m, nil }
func (m *archiveMemFile) Open(string) (source.ParquetFile, error)   { return m, nil }
func (m *archiveMemFile) Seek(int64, int) (int64, error)            { return int64(m.buffer.Len()), nil }
func (m *archiveMemFile) Read([]byte) (int, error)                  { return 0, io.EOF }
func (m *archiveMemFile) Write(b []byte) (int, error)               { return m.buffer.Write(b) }
func (m *archiveMemFile) Close() error                              { return nil }
func (m *archiveMemFile) Bytes() []byte                             { return m.buffer.Bytes() }

// archiveRecord is the parquet schema for archived liquidation events.
type archiveRecord struct {
	Symbol     string  `parquet:"name=symbol, type=BYTE_ARRAY, convertedtype=UTF8"`
	Category   string  `parquet:"name=category, type=BYTE_ARRAY, convertedtype=UTF8"`
	Side       string  `parquet:"name=side, type=BYTE_ARRAY, convertedtype=UTF8"`
	OrderType  string  `parquet:"name=order_type, type=BYTE_ARRAY, convertedtype=UTF8"`
	Price      string  `parquet:"name=price, type=BYTE_ARRAY, convertedtype=UTF8"`
	Quantity   string  `parquet:"name=quantity, type=BYTE_ARRAY, convertedtype=UTF8"`
	USDSize    float64 `parquet:"name=usd_size, type=DOUBLE"`
	LongLiq    bool    `parquet:"name=long_liquidated, type=BOOLEAN"`
	TradeTime  int64   `parquet:"name=trade_time, type=INT64, convertedtype=TIMESTAMP_MILLIS"`
	ArchivedAt int64   `parquet:"name=archived_at, type=INT64, convertedtype=TIMESTAMP_MILLIS"`
}

// ArchiveWriter buffers classified liquidation events per category and
// periodically uploads them to S3 as snappy-compressed parquet batches. It
// is an optional sink beside the CSV logs, never in their write path.
type ArchiveWriter struct {
	cfg      *appconfig.Config
	s3Client *s3.Client
	log      *logger.Log
	bucket   string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu            sync.Mutex
	running       bool
	buffer        map[string][]models.LiquidationEvent
	lastFlush     map[string]time.Time
	flushTicker   *time.Ticker
	flushInterval time.Duration
	maxBufferSize int
}

// NewArchiveWriter initializes the writer from the storage section of cfg.
// It errors when S3 storage is disabled so callers can treat construction
// as the feature gate.
func NewArchiveWriter(cfg *appconfig.Config) (*ArchiveWriter, error) {
	log := logger.GetLogger()
	if !cfg.Storage.S3.Enabled {
		return nil, fmt.Errorf("s3 storage is disabled")
	}

	bucket := strings.TrimSpace(cfg.Storage.S3.Bucket)
	if bucket == "" {
		return nil, fmt.Errorf("s3 bucket not configured")
	}

	ctx := context.Background()
	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Storage.S3.Region)}
	if cfg.Storage.S3.AccessKeyID != "" && cfg.Storage.S3.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(
				cfg.Storage.S3.AccessKeyID,
				cfg.Storage.S3.SecretAccessKey,
				"",
			),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Storage.S3.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Storage.S3.Endpoint)
		}
		o.UsePathStyle = cfg.Storage.S3.PathStyle
	})

	flushInterval := cfg.Storage.S3.FlushInterval
	if flushInterval <= 0 {
		flushInterval = defaultArchiveFlush
	}
	maxBuffer := cfg.Storage.S3.MaxBuffer
	if maxBuffer <= 0 {
		maxBuffer = 100
	}

	w := &ArchiveWriter{
		cfg:           cfg,
		s3Client:      s3Client,
		log:           log,
		bucket:        bucket,
		buffer:        make(map[string][]models.LiquidationEvent),
		lastFlush:     make(map[string]time.Time),
		flushInterval: flushInterval,
		maxBufferSize: maxBuffer,
	}

	log.WithComponent("archive_writer").WithFields(logger.Fields{
		"bucket":         bucket,
		"region":         cfg.Storage.S3.Region,
		"endpoint":       cfg.Storage.S3.Endpoint,
		"path_style":     cfg.Storage.S3.PathStyle,
		"flush_interval": flushInterval.String(),
	}).Info("archive writer initialized")

	return w, nil
}

// Start launches the flush worker.
func (w *ArchiveWriter) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("archive writer already running")
	}
	w.running = true
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.buffer = make(map[string][]models.LiquidationEvent)
	w.lastFlush = make(map[string]time.Time)
	w.flushTicker = time.NewTicker(w.flushInterval)
	w.mu.Unlock()

	w.wg.Add(1)
	go w.flushWorker()

	return nil
}

// Stop terminates the flush worker and writes any remaining batches.
func (w *ArchiveWriter) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	cancel := w.cancel
	ticker := w.flushTicker
	w.cancel = nil
	w.flushTicker = nil
	w.mu.Unlock()

	if ticker != nil {
		ticker.Stop()
	}
	if cancel != nil {
		cancel()
	}

	w.wg.Wait()
	w.flushAll("stop")
	w.log.WithComponent("archive_writer").Info("archive writer stopped")
}

// Add buffers one event under its category. A full buffer triggers an
// immediate flush of that category.
func (w *ArchiveWriter) Add(ev models.LiquidationEvent) {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.buffer[ev.Category] = append(w.buffer[ev.Category], ev)
	if _, ok := w.lastFlush[ev.Category]; !ok {
		w.lastFlush[ev.Category] = time.Now()
	}
	shouldFlush := len(w.buffer[ev.Category]) >= w.maxBufferSize
	w.mu.Unlock()

	if shouldFlush {
		w.flushCategory(ev.Category)
	}
}

func (w *ArchiveWriter) flushWorker() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case <-w.flushTicker.C:
			w.flushTimedOut()
		}
	}
}

func (w *ArchiveWriter) flushTimedOut() {
	now := time.Now()
	w.mu.Lock()
	categories := make([]string, 0, len(w.buffer))
	for cat := range w.buffer {
		if len(w.buffer[cat]) == 0 {
			continue
		}
		if now.Sub(w.lastFlush[cat]) >= w.flushInterval {
			categories = append(categories, cat)
		}
	}
	w.mu.Unlock()

	for _, cat := range categories {
		w.flushCategory(cat)
	}
}

func (w *ArchiveWriter) flushAll(reason string) {
	w.mu.Lock()
	categories := make([]string, 0, len(w.buffer))
	for cat := range w.buffer {
		if len(w.buffer[cat]) > 0 {
			categories = append(categories, cat)
		}
	}
	w.mu.Unlock()

	if len(categories) == 0 {
		return
	}

	w.log.WithComponent("archive_writer").WithFields(logger.Fields{
		"flushed_buffers": len(categories),
		"reason":          reason,
	}).Info("flushing archive buffers")

	for _, cat := range categories {
		w.flushCategory(cat)
	}
}

func (w *ArchiveWriter) flushCategory(category string) {
	w.mu.Lock()
	events := w.buffer[category]
	if len(events) == 0 {
		w.mu.Unlock()
		return
	}
	delete(w.buffer, category)
	delete(w.lastFlush, category)
	w.mu.Unlock()

	data, err := w.createParquet(events)
	if err != nil {
		w.log.WithComponent("archive_writer").WithError(err).Error("failed to create parquet for liquidation batch")
		return
	}

	key := w.generateS3Key(category, events)
	if err := w.upload(key, data); err != nil {
		w.log.WithComponent("archive_writer").WithError(err).WithFields(logger.Fields{
			"s3_key": key,
		}).Error("failed to upload liquidation batch")
		return
	}

	w.log.WithComponent("archive_writer").WithFields(logger.Fields{
		"s3_key":  key,
		"records": len(events),
		"bytes":   len(data),
	}).Info("liquidation batch uploaded")
}

func (w *ArchiveWriter) createParquet(events []models.LiquidationEvent) ([]byte, error) {
	mf := newArchiveMemFile()
	pw, err := writer.NewParquetWriter(mf, new(archiveRecord), 1)
	if err != nil {
		return nil, err
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	archivedAt := time.Now().UTC().UnixMilli()
	for _, ev := range events {
		rec := archiveRecord{
			Symbol:     ev.Order.Symbol,
			Category:   ev.Category,
			Side:       ev.Order.Side,
			OrderType:  ev.Order.OrderType,
			Price:      ev.Order.Price,
			Quantity:   ev.Order.FilledQty,
			USDSize:    ev.USDSize,
			LongLiq:    ev.LongLiquidated,
			TradeTime:  ev.Order.TradeTime,
			ArchivedAt: archivedAt,
		}
		if err := pw.Write(rec); err != nil {
			return nil, err
		}
	}

	if err := pw.WriteStop(); err != nil {
		return nil, err
	}
	return mf.Bytes(), nil
}

func (w *ArchiveWriter) upload(key string, data []byte) error {
	input := &s3.PutObjectInput{
		Bucket: aws.String(w.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	}

	ctx := context.WithoutCancel(w.ctx)
	_, err := w.s3Client.PutObject(ctx, input)
	return err
}

func (w *ArchiveWriter) generateS3Key(category string, events []models.LiquidationEvent) string {
	var latest time.Time
	for _, ev := range events {
		if ev.Order.TradeTime > 0 {
			ts := time.UnixMilli(ev.Order.TradeTime)
			if ts.After(latest) {
				latest = ts
			}
		}
	}
	if latest.IsZero() {
		latest = time.Now().UTC()
	}
	latest = latest.UTC()

	parts := []string{
		"exchange=binance",
		fmt.Sprintf("category=%s", strings.ToUpper(category)),
		fmt.Sprintf("date=%04d-%02d-%02d", latest.Year(), latest.Month(), latest.Day()),
	}

	batchID := uuid.NewString()
	filename := fmt.Sprintf("binance_liq_%s_%s_%s.parquet",
		strings.ToUpper(category), latest.Format("20060102150405"), batchID)
	return filepath.ToSlash(filepath.Join(append(parts, filename)...))
}
