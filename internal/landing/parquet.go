// Package landing is the durable landing zone that mirrors every raw
// ingest event into dated Parquet files, one file per flushed batch,
// mirroring original_source/tradingbot_storage/parquet_sink.py's
// ParquetSink (same schema, same daily/event directory layout, same
// filename convention), ported to github.com/xitongsys/parquet-go +
// parquet-go-source/local.
package landing

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/google/uuid"
)

// Row is the Parquet schema: one JSON-encoded payload per raw event,
// exactly parquet_sink.py's four-column schema.
type Row struct {
	IngestedAt int64  `parquet:"name=ingested_at, type=INT64, convertedtype=TIMESTAMP_MICROS"`
	Event      string `parquet:"name=event, type=BYTE_ARRAY, convertedtype=UTF8"`
	Market     string `parquet:"name=market, type=BYTE_ARRAY, convertedtype=UTF8"`
	Payload    string `parquet:"name=payload, type=BYTE_ARRAY, convertedtype=UTF8"`
}

// Config is the base directory Parquet files are written under.
type Config struct {
	BaseDir string
}

// DefaultConfig mirrors ParquetConfig.from_env's fallback default.
func DefaultConfig() Config {
	return Config{BaseDir: "/srv/trading/storage/parquet"}
}

// Sink writes batches of raw events to dated Parquet files.
type Sink struct {
	mu  sync.Mutex
	cfg Config
}

// NewSink builds a Sink rooted at cfg.BaseDir.
func NewSink(cfg Config) *Sink {
	return &Sink{cfg: cfg}
}

// Write persists rows (arbitrary JSON-able values) as one Parquet file
// under <base>/<YYYY-MM-DD>/<event>/<market>-<HHMMSS>-<token>.parquet.
// A nil or empty rows slice is a no-op, matching the Python sink.
func (s *Sink) Write(event, market string, rows []interface{}) error {
	if len(rows) == 0 {
		return nil
	}

	now := time.Now().UTC()
	parquetRows := make([]Row, 0, len(rows))
	for _, row := range rows {
		payload, err := json.Marshal(row)
		if err != nil {
			return fmt.Errorf("landing: encode payload: %w", err)
		}
		parquetRows = append(parquetRows, Row{
			IngestedAt: now.UnixMicro(),
			Event:      event,
			Market:     market,
			Payload:    string(payload),
		})
	}

	dir := s.dailyDir(event, now)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("landing: mkdir %s: %w", dir, err)
	}
	path := filepath.Join(dir, filename(market, now))

	s.mu.Lock()
	defer s.mu.Unlock()
	return writeParquetFile(path, parquetRows)
}

func (s *Sink) dailyDir(event string, now time.Time) string {
	return filepath.Join(s.cfg.BaseDir, now.Format("2006-01-02"), event)
}

func filename(market string, now time.Time) string {
	safe := market
	if safe == "" {
		safe = "unknown"
	}
	token := uuid.New().String()
	if len(token) > 10 {
		token = token[:10]
	}
	return fmt.Sprintf("%s-%s-%s.parquet", safe, now.Format("150405"), token)
}

func writeParquetFile(path string, rows []Row) error {
	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		return fmt.Errorf("landing: open %s: %w", path, err)
	}
	defer fw.Close()

	pw, err := writer.NewParquetWriter(fw, new(Row), 4)
	if err != nil {
		return fmt.Errorf("landing: new writer: %w", err)
	}
	pw.RowGroupSize = 64 * 1024 * 1024
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for i := range rows {
		if err := pw.Write(rows[i]); err != nil {
			return fmt.Errorf("landing: write row: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		return fmt.Errorf("landing: write stop: %w", err)
	}
	return nil
}
