package writer

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// DB is the subset of *pgxpool.Pool the writer uses.
type DB interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// WriterConfig holds batching settings.
type WriterConfig struct {
	BatchSize     int           // Flush when this many rows are pending
	FlushInterval time.Duration // Flush at least this often
	BufferSize    int           // Initial capacity of the input buffer
}

// DefaultWriterConfig returns the default batching settings.
func DefaultWriterConfig() WriterConfig {
	return WriterConfig{
		BatchSize:     500,
		FlushInterval: time.Second,
		BufferSize:    1000,
	}
}

// WriterMetrics counts writer activity.
type WriterMetrics struct {
	Inserts   int64 // Rows written
	Conflicts int64 // Token rows skipped because the id already exists
	Flushes   int64 // Successful batch round trips
	Errors    int64 // Failed batch round trips
	Skipped   int64 // Messages with no table or arriving after Stop
}

type tokenRow struct {
	TokenID     string
	Name        string
	Symbol      string
	Logo        string
	TweetSource string
	ReceivedAt  time.Time
}

type botLogRow struct {
	TokenID       string
	InfoTag       string
	Message       string
	WalletAddress string
	Symbol        string
	Stage         string
	IsError       bool
	TransportID   uuid.UUID
	ReceivedAt    time.Time
}

type priceRow struct {
	TokenID      string
	Price        decimal.Decimal
	VolumeSOL    decimal.Decimal
	VolumeUSD    decimal.Decimal
	HolderCount  decimal.Decimal
	MarketCap    decimal.Decimal
	AllTimeHigh  decimal.Decimal
	AllTimeLow   decimal.Decimal
	AveragePrice decimal.Decimal
	ReceivedAt   time.Time
}

// pending holds rows not yet flushed.
type pending struct {
	tokens []tokenRow
	logs   []botLogRow
	prices []priceRow
}

func (p *pending) len() int {
	return len(p.tokens) + len(p.logs) + len(p.prices)
}
