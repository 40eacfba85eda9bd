package writer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/jackc/pgx/v5"

	"github.com/alphaorbit/livefeed/internal/dispatch"
	"github.com/alphaorbit/livefeed/internal/model"
)

const (
	insertToken = `
		INSERT INTO tokens (token_id, name, symbol, logo, tweet_source, received_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (token_id) DO NOTHING`

	insertBotLog = `
		INSERT INTO bot_logs (token_id, info_tag, message, wallet_address, symbol, stage, is_error, transport_id, received_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	insertPrice = `
		INSERT INTO price_updates (token_id, token_price, volume_sol, volume_usd, holder_count, market_cap,
			all_time_high, all_time_low, average_price, received_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
)

// Writer consumes decoded messages and writes them to Postgres in batches.
type Writer struct {
	cfg    WriterConfig
	logger *slog.Logger
	clock  clock.Clock

	// Input fed by Sink
	input *dispatch.GrowableBuffer[model.InboundMessage]

	// Database
	db DB

	// Batching
	batch   pending
	batchMu sync.Mutex

	// Lifecycle. ctx stops the flush loop; writeCtx bounds inserts and
	// outlives ctx so queued rows can still be written during Stop.
	ctx          context.Context
	cancel       context.CancelFunc
	writeCtx     context.Context
	cancelWrites context.CancelFunc
	consumed     chan struct{}
	wg           sync.WaitGroup

	// Metrics
	metrics WriterMetrics
}

// New creates a Writer. Call Start before attaching Sink to channels.
func New(cfg WriterConfig, db DB, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 1
	}
	return &Writer{
		cfg:      cfg,
		logger:   logger,
		clock:    clock.New(),
		input:    dispatch.NewGrowableBuffer[model.InboundMessage](cfg.BufferSize),
		db:       db,
		consumed: make(chan struct{}),
	}
}

// WithClock replaces the flush ticker clock. Must be called before Start.
func (w *Writer) WithClock(c clock.Clock) *Writer {
	w.clock = c
	return w
}

// Sink returns a handler that queues every message for writing. It never
// blocks the calling channel.
func (w *Writer) Sink() dispatch.Handler {
	return dispatch.HandlerFunc(func(msg model.InboundMessage) {
		if !w.input.Send(msg) {
			w.batchMu.Lock()
			w.metrics.Skipped++
			w.batchMu.Unlock()
		}
	})
}

// Start begins consuming messages and writing to the database.
func (w *Writer) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.writeCtx, w.cancelWrites = context.WithCancel(context.WithoutCancel(ctx))

	go w.consumeLoop()

	w.wg.Add(1)
	go w.flushLoop(w.clock.Ticker(w.cfg.FlushInterval))

	w.logger.Info("writer started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
	)
	return nil
}

// Stop drains queued messages, stops the flush loop and writes what is
// left using ctx. Rows are still written when the Start context is
// already cancelled; only ctx expiring aborts pending inserts.
func (w *Writer) Stop(ctx context.Context) error {
	w.logger.Info("stopping writer")

	w.input.Close()
	if w.cancel == nil {
		return nil
	}
	defer w.cancelWrites()

	select {
	case <-w.consumed:
	case <-ctx.Done():
		w.logger.Warn("writer drain timed out", "queued", w.input.Len())
		w.cancelWrites()
	}

	w.cancel()
	w.wg.Wait()

	w.flush(ctx)

	w.logger.Info("writer stopped")
	return nil
}

// Stats returns current metrics.
func (w *Writer) Stats() WriterMetrics {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	return w.metrics
}

// Pending returns the number of rows waiting for the next flush.
func (w *Writer) Pending() int {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	return w.batch.len()
}

// consumeLoop reads from the input buffer until it is closed and empty.
func (w *Writer) consumeLoop() {
	defer close(w.consumed)

	for {
		msg, ok := w.input.Receive()
		if !ok {
			return
		}
		w.handleMessage(msg)
	}
}

// flushLoop periodically flushes the batch.
func (w *Writer) flushLoop(ticker *clock.Ticker) {
	defer w.wg.Done()
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.flush(w.writeCtx)
		}
	}
}

// handleMessage transforms and adds a message to the batch.
func (w *Writer) handleMessage(msg model.InboundMessage) {
	w.batchMu.Lock()
	if !w.transform(msg) {
		w.metrics.Skipped++
		w.batchMu.Unlock()
		return
	}
	shouldFlush := w.batch.len() >= w.cfg.BatchSize
	w.batchMu.Unlock()

	if shouldFlush {
		w.flush(w.writeCtx)
	}
}

// transform appends msg to the matching table batch. Caller holds batchMu.
func (w *Writer) transform(msg model.InboundMessage) bool {
	switch p := msg.Payload.(type) {
	case model.TokenCreated:
		if p.ID == "" {
			return false
		}
		w.batch.tokens = append(w.batch.tokens, tokenRow{
			TokenID:     p.ID.String(),
			Name:        p.Name,
			Symbol:      p.Symbol,
			Logo:        p.Logo,
			TweetSource: p.TweetSource,
			ReceivedAt:  msg.ReceivedAt,
		})
	case model.BotLog:
		w.batch.logs = append(w.batch.logs, botLogRow{
			TokenID:       msg.ResourceID,
			InfoTag:       p.InfoTag,
			Message:       p.Message,
			WalletAddress: p.WalletAddress,
			Symbol:        p.Symbol,
			Stage:         p.Stage,
			IsError:       p.IsError(),
			TransportID:   msg.TransportID,
			ReceivedAt:    msg.ReceivedAt,
		})
	case model.PriceUpdate:
		w.batch.prices = append(w.batch.prices, priceRow{
			TokenID:      msg.ResourceID,
			Price:        p.Price,
			VolumeSOL:    p.VolumeSOL,
			VolumeUSD:    p.VolumeUSD,
			HolderCount:  p.HolderCount,
			MarketCap:    p.MarketCap,
			AllTimeHigh:  p.AllTimeHigh,
			AllTimeLow:   p.AllTimeLow,
			AveragePrice: p.AveragePrice,
			ReceivedAt:   msg.ReceivedAt,
		})
	default:
		return false
	}
	return true
}

// flush writes the current batch to the database.
func (w *Writer) flush(ctx context.Context) {
	w.batchMu.Lock()
	if w.batch.len() == 0 {
		w.batchMu.Unlock()
		return
	}

	// Take ownership of current batch
	batch := w.batch
	w.batch = pending{}
	w.batchMu.Unlock()

	start := w.clock.Now()

	inserts, conflicts, err := w.batchInsert(ctx, batch)
	if err != nil {
		w.logger.Error("batch insert failed", "error", err, "count", batch.len())
		w.batchMu.Lock()
		w.metrics.Errors++
		w.batchMu.Unlock()
		return
	}

	w.batchMu.Lock()
	w.metrics.Inserts += int64(inserts)
	w.metrics.Conflicts += int64(conflicts)
	w.metrics.Flushes++
	w.batchMu.Unlock()

	w.logger.Debug("flushed rows",
		"tokens", len(batch.tokens),
		"bot_logs", len(batch.logs),
		"prices", len(batch.prices),
		"conflicts", conflicts,
		"duration", w.clock.Since(start).Round(time.Microsecond),
	)
}

// batchInsert sends every pending row in one pgx.Batch. Token rows use
// ON CONFLICT DO NOTHING, so a zero row count marks a duplicate.
func (w *Writer) batchInsert(ctx context.Context, rows pending) (inserts, conflicts int, err error) {
	batch := &pgx.Batch{}
	for _, r := range rows.tokens {
		batch.Queue(insertToken, r.TokenID, r.Name, r.Symbol, r.Logo, r.TweetSource, r.ReceivedAt)
	}
	for _, r := range rows.logs {
		batch.Queue(insertBotLog, r.TokenID, r.InfoTag, r.Message, r.WalletAddress, r.Symbol, r.Stage,
			r.IsError, r.TransportID.String(), r.ReceivedAt)
	}
	for _, r := range rows.prices {
		batch.Queue(insertPrice, r.TokenID, r.Price, r.VolumeSOL, r.VolumeUSD, r.HolderCount, r.MarketCap,
			r.AllTimeHigh, r.AllTimeLow, r.AveragePrice, r.ReceivedAt)
	}

	results := w.db.SendBatch(ctx, batch)
	defer results.Close()

	for i := 0; i < batch.Len(); i++ {
		ct, err := results.Exec()
		if err != nil {
			return 0, 0, err
		}
		if ct.RowsAffected() == 0 {
			conflicts++
		} else {
			inserts++
		}
	}

	return inserts, conflicts, nil
}
