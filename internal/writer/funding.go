package writer

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"fundingflow/internal/models"
	"fundingflow/logger"
)

// FundingWriter appends one CSV row per minute snapshot. The file handle is
// held open for the process lifetime; each row is written with a single
// WriteString call so concurrent misuse cannot interleave partial rows.
type FundingWriter struct {
	path  string
	names []string
	file  *os.File
	mu    sync.Mutex
	log   *logger.Log
}

// NewFundingWriter opens (or creates) the CSV at path. The header is written
// only when the file is created empty, so restarts append to existing data
// without repeating it. Column order follows names and never changes for the
// lifetime of the file.
func NewFundingWriter(path string, names []string) (*FundingWriter, error) {
	log := logger.GetLogger()

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create funding output dir: %w", err)
		}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open funding csv: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat funding csv: %w", err)
	}

	w := &FundingWriter{
		path:  path,
		names: append([]string(nil), names...),
		file:  f,
		log:   log,
	}

	if info.Size() == 0 {
		header := "Time (UTC)," + strings.Join(w.names, ",") + "\n"
		if _, err := f.WriteString(header); err != nil {
			f.Close()
			return nil, fmt.Errorf("write funding csv header: %w", err)
		}
	}

	log.WithComponent("funding_writer").WithFields(logger.Fields{
		"path":    path,
		"columns": len(names),
	}).Info("funding writer initialized")

	return w, nil
}

// AppendSnapshot writes one row: the snapshot time as HH:MM:SS followed by
// each rate formatted to two decimals with a percent sign, in column order.
func (w *FundingWriter) AppendSnapshot(snap models.RateSnapshot) error {
	var b strings.Builder
	b.WriteString(snap.Time.UTC().Format("15:04:05"))
	for _, name := range w.names {
		b.WriteString(fmt.Sprintf(",%.2f%%", snap.Rates[name]))
	}
	b.WriteString("\n")

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.file.WriteString(b.String()); err != nil {
		return fmt.Errorf("append funding row: %w", err)
	}
	return nil
}

func (w *FundingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Close()
}
