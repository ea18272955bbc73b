package writer

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"fundingflow/internal/models"
	"fundingflow/logger"
)

const tokenSubdir = "token_liquidations"

var globalColumns = []string{
	"symbol", "side", "order_type", "time_in_force",
	"original_quantity", "price", "average_price", "order_status",
	"order_last_filled_quantity", "order_filled_accumulated_quantity",
	"order_trade_time", "usd_size",
}

// csvFile is one append-only log file with its own lock. A row is a single
// WriteString call so rows never interleave.
type csvFile struct {
	file *os.File
	mu   sync.Mutex
}

func openCSVFile(path string, columns []string) (*csvFile, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open liquidation csv: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat liquidation csv: %w", err)
	}
	if info.Size() == 0 {
		if _, err := f.WriteString(strings.Join(columns, ",") + "\n"); err != nil {
			f.Close()
			return nil, fmt.Errorf("write liquidation csv header: %w", err)
		}
	}
	return &csvFile{file: f}, nil
}

func (c *csvFile) appendRow(fields []string) error {
	row := strings.Join(fields, ",") + "\n"
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.file.WriteString(row)
	return err
}

func (c *csvFile) close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.file.Close()
}

// LiquidationLog maintains the global liquidation CSV and one per-category
// CSV for each watched token. All files are created, headers included, at
// construction so a restart never loses a header.
type LiquidationLog struct {
	global *csvFile
	tokens map[string]*csvFile
	log    *logger.Log
}

// NewLiquidationLog creates dir (and its token subdirectory) and opens the
// global log plus one file per category.
func NewLiquidationLog(dir string, categories []string) (*LiquidationLog, error) {
	log := logger.GetLogger()

	tokenDir := filepath.Join(dir, tokenSubdir)
	if err := os.MkdirAll(tokenDir, 0o755); err != nil {
		return nil, fmt.Errorf("create liquidation dirs: %w", err)
	}

	global, err := openCSVFile(filepath.Join(dir, "binance_all_liquidations.csv"), globalColumns)
	if err != nil {
		return nil, err
	}

	tokenColumns := append(append([]string(nil), globalColumns...), "local_time")
	tokens := make(map[string]*csvFile, len(categories))
	for _, cat := range categories {
		path := filepath.Join(tokenDir, cat+"_liquidations.csv")
		cf, err := openCSVFile(path, tokenColumns)
		if err != nil {
			global.close()
			for _, open := range tokens {
				open.close()
			}
			return nil, err
		}
		tokens[cat] = cf
	}

	log.WithComponent("liquidation_log").WithFields(logger.Fields{
		"dir":        dir,
		"categories": len(categories),
	}).Info("liquidation log initialized")

	return &LiquidationLog{global: global, tokens: tokens, log: log}, nil
}

// Append writes one row to the global log and one to the event's category
// log. A failure on one file does not prevent the write to the other.
func (l *LiquidationLog) Append(ev models.LiquidationEvent) error {
	fields := rowFields(ev)

	var firstErr error
	if err := l.global.appendRow(fields); err != nil {
		firstErr = fmt.Errorf("append global liquidation row: %w", err)
	}

	if tf, ok := l.tokens[ev.Category]; ok {
		row := append(append([]string(nil), fields...), ev.LocalTime)
		if err := tf.appendRow(row); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("append %s liquidation row: %w", ev.Category, err)
		}
	}

	return firstErr
}

func (l *LiquidationLog) Close() error {
	var firstErr error
	if err := l.global.close(); err != nil {
		firstErr = err
	}
	for _, tf := range l.tokens {
		if err := tf.close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// rowFields emits the order fields verbatim as received from the exchange;
// only usd_size and order_trade_time are formatted locally.
func rowFields(ev models.LiquidationEvent) []string {
	o := ev.Order
	return []string{
		o.Symbol,
		o.Side,
		o.OrderType,
		o.TimeInForce,
		o.OrigQuantity,
		o.Price,
		o.AveragePrice,
		o.Status,
		o.LastFilledQty,
		o.FilledQty,
		strconv.FormatInt(o.TradeTime, 10),
		strconv.FormatFloat(ev.USDSize, 'f', -1, 64),
	}
}
