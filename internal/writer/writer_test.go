package writer

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/alphaorbit/livefeed/internal/model"
)

// fakeDB records every queued statement. Statements whose SQL contains
// conflictOn report zero affected rows. A batch sent with a done context
// fails like pgx does.
type fakeDB struct {
	mu         sync.Mutex
	queries    []*pgx.QueuedQuery
	batches    int
	conflictOn string
	err        error
}

func (f *fakeDB) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return &fakeResults{db: f, err: err}
	}
	f.batches++
	f.queries = append(f.queries, b.QueuedQueries...)
	return &fakeResults{db: f, queued: b.QueuedQueries}
}

func (f *fakeDB) snapshot() (int, []*pgx.QueuedQuery) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.batches, append([]*pgx.QueuedQuery(nil), f.queries...)
}

type fakeResults struct {
	db     *fakeDB
	queued []*pgx.QueuedQuery
	next   int
	err    error
}

func (r *fakeResults) Exec() (pgconn.CommandTag, error) {
	if r.err != nil {
		return pgconn.CommandTag{}, r.err
	}
	if r.db.err != nil {
		return pgconn.CommandTag{}, r.db.err
	}
	q := r.queued[r.next]
	r.next++
	if r.db.conflictOn != "" && strings.Contains(q.SQL, r.db.conflictOn) {
		return pgconn.NewCommandTag("INSERT 0 0"), nil
	}
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (r *fakeResults) Query() (pgx.Rows, error) { return nil, errors.New("not supported") }
func (r *fakeResults) QueryRow() pgx.Row        { return nil }
func (r *fakeResults) Close() error             { return nil }

func tokenMsg(id string) model.InboundMessage {
	return model.InboundMessage{
		ChannelID: "tokens",
		Kind:      model.KindTokenCreated,
		Payload: model.TokenCreated{
			ID:     model.TokenID(id),
			Name:   "Token " + id,
			Symbol: "TK" + id,
		},
		ReceivedAt: time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC),
	}
}

func TestWriter_Transform(t *testing.T) {
	w := New(DefaultWriterConfig(), nil, nil)
	transportID := uuid.New()
	receivedAt := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)

	ok := w.transform(model.InboundMessage{
		ChannelID:  "logs:42",
		ResourceID: "42",
		Kind:       model.KindBotLog,
		Payload: model.BotLog{
			InfoTag:       "error",
			Message:       "swap failed",
			WalletAddress: "9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin",
			Symbol:        "PEPE",
			Stage:         "buy",
		},
		TransportID: transportID,
		ReceivedAt:  receivedAt,
	})
	if !ok {
		t.Fatal("transform rejected bot log")
	}
	if len(w.batch.logs) != 1 {
		t.Fatalf("logs batch = %d, want 1", len(w.batch.logs))
	}
	row := w.batch.logs[0]
	if row.TokenID != "42" {
		t.Errorf("TokenID = %q, want 42", row.TokenID)
	}
	if !row.IsError {
		t.Error("IsError = false, want true")
	}
	if row.TransportID != transportID {
		t.Errorf("TransportID = %v, want %v", row.TransportID, transportID)
	}
	if !row.ReceivedAt.Equal(receivedAt) {
		t.Errorf("ReceivedAt = %v, want %v", row.ReceivedAt, receivedAt)
	}

	ok = w.transform(model.InboundMessage{
		ChannelID:  "price:42",
		ResourceID: "42",
		Kind:       model.KindPriceUpdate,
		Payload: model.PriceUpdate{
			Price:     decimal.RequireFromString("0.0000042"),
			MarketCap: decimal.RequireFromString("123456.78"),
		},
	})
	if !ok {
		t.Fatal("transform rejected price update")
	}
	price := w.batch.prices[0]
	if !price.Price.Equal(decimal.RequireFromString("0.0000042")) {
		t.Errorf("Price = %s, want 0.0000042", price.Price)
	}
	if !price.MarketCap.Equal(decimal.RequireFromString("123456.78")) {
		t.Errorf("MarketCap = %s, want 123456.78", price.MarketCap)
	}
}

func TestWriter_TransformRejects(t *testing.T) {
	w := New(DefaultWriterConfig(), nil, nil)

	if w.transform(model.InboundMessage{Payload: "raw"}) {
		t.Error("transform accepted unknown payload")
	}
	if w.transform(tokenMsg("")) {
		t.Error("transform accepted token without id")
	}
	if w.batch.len() != 0 {
		t.Errorf("batch len = %d, want 0", w.batch.len())
	}
}

func TestWriter_FlushOnBatchSize(t *testing.T) {
	db := &fakeDB{}
	cfg := WriterConfig{BatchSize: 2, FlushInterval: time.Hour, BufferSize: 4}
	w := New(cfg, db, nil).WithClock(clock.NewMock())

	ctx := context.Background()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	sink := w.Sink()
	sink.HandleMessage(tokenMsg("1"))
	sink.HandleMessage(tokenMsg("2"))

	deadline := time.Now().Add(2 * time.Second)
	for {
		if batches, _ := db.snapshot(); batches == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("batch was not flushed at batch size")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := w.Stop(ctx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	stats := w.Stats()
	if stats.Inserts != 2 || stats.Flushes != 1 {
		t.Errorf("stats = %+v, want 2 inserts in 1 flush", stats)
	}
}

func TestWriter_FlushOnInterval(t *testing.T) {
	db := &fakeDB{}
	mock := clock.NewMock()
	cfg := WriterConfig{BatchSize: 100, FlushInterval: time.Second, BufferSize: 4}
	w := New(cfg, db, nil).WithClock(mock)

	ctx := context.Background()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer w.Stop(ctx)

	w.Sink().HandleMessage(tokenMsg("1"))

	deadline := time.Now().Add(2 * time.Second)
	for w.Pending() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("message never reached the batch")
		}
		time.Sleep(5 * time.Millisecond)
	}

	for {
		mock.Add(time.Second)
		if batches, _ := db.snapshot(); batches == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("batch was not flushed on interval")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestWriter_StopDrainsAndFlushes(t *testing.T) {
	db := &fakeDB{}
	cfg := WriterConfig{BatchSize: 100, FlushInterval: time.Hour, BufferSize: 4}
	w := New(cfg, db, nil).WithClock(clock.NewMock())

	ctx := context.Background()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	sink := w.Sink()
	for _, id := range []string{"1", "2", "3"} {
		sink.HandleMessage(tokenMsg(id))
	}
	sink.HandleMessage(model.InboundMessage{
		ChannelID:  "price:1",
		ResourceID: "1",
		Kind:       model.KindPriceUpdate,
		Payload:    model.PriceUpdate{Price: decimal.NewFromInt(1)},
	})

	if err := w.Stop(ctx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	batches, queries := db.snapshot()
	if batches != 1 {
		t.Errorf("batches = %d, want 1", batches)
	}
	if len(queries) != 4 {
		t.Fatalf("queued %d statements, want 4", len(queries))
	}
	if !strings.Contains(queries[3].SQL, "price_updates") {
		t.Errorf("last statement = %q, want price_updates insert", queries[3].SQL)
	}

	// Messages after Stop are counted, not written
	sink.HandleMessage(tokenMsg("4"))
	if got := w.Stats().Skipped; got != 1 {
		t.Errorf("Skipped = %d, want 1", got)
	}
}

func TestWriter_StopAfterRunContextCancelled(t *testing.T) {
	db := &fakeDB{}
	cfg := WriterConfig{BatchSize: 2, FlushInterval: time.Hour, BufferSize: 4}
	w := New(cfg, db, nil).WithClock(clock.NewMock())

	runCtx, cancel := context.WithCancel(context.Background())
	if err := w.Start(runCtx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// Shutdown signal arrives before the channels are closed.
	cancel()

	sink := w.Sink()
	for _, id := range []string{"1", "2", "3", "4", "5"} {
		sink.HandleMessage(tokenMsg(id))
	}

	if err := w.Stop(context.Background()); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	stats := w.Stats()
	if stats.Inserts != 5 {
		t.Errorf("Inserts = %d, want 5", stats.Inserts)
	}
	if stats.Errors != 0 {
		t.Errorf("Errors = %d, want 0", stats.Errors)
	}
	if w.Pending() != 0 {
		t.Errorf("Pending = %d, want 0", w.Pending())
	}
}

func TestWriter_StopTimeoutAbortsInserts(t *testing.T) {
	db := &fakeDB{}
	cfg := WriterConfig{BatchSize: 100, FlushInterval: time.Hour, BufferSize: 4}
	w := New(cfg, db, nil).WithClock(clock.NewMock())

	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	w.Sink().HandleMessage(tokenMsg("1"))

	stopCtx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := w.Stop(stopCtx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	// Nothing reached the database with an expired Stop context.
	if batches, _ := db.snapshot(); batches != 0 {
		t.Errorf("batches = %d, want 0", batches)
	}
}

func TestWriter_Conflicts(t *testing.T) {
	db := &fakeDB{conflictOn: "INSERT INTO tokens"}
	cfg := WriterConfig{BatchSize: 100, FlushInterval: time.Hour, BufferSize: 4}
	w := New(cfg, db, nil).WithClock(clock.NewMock())

	ctx := context.Background()
	w.Start(ctx)
	w.Sink().HandleMessage(tokenMsg("1"))
	w.Sink().HandleMessage(model.InboundMessage{
		ResourceID: "1",
		Kind:       model.KindBotLog,
		Payload:    model.BotLog{InfoTag: "info", Message: "started"},
	})
	w.Stop(ctx)

	stats := w.Stats()
	if stats.Conflicts != 1 {
		t.Errorf("Conflicts = %d, want 1", stats.Conflicts)
	}
	if stats.Inserts != 1 {
		t.Errorf("Inserts = %d, want 1", stats.Inserts)
	}
}

func TestWriter_InsertError(t *testing.T) {
	db := &fakeDB{err: errors.New("connection reset")}
	cfg := WriterConfig{BatchSize: 100, FlushInterval: time.Hour, BufferSize: 4}
	w := New(cfg, db, nil).WithClock(clock.NewMock())

	ctx := context.Background()
	w.Start(ctx)
	w.Sink().HandleMessage(tokenMsg("1"))
	w.Stop(ctx)

	stats := w.Stats()
	if stats.Errors != 1 {
		t.Errorf("Errors = %d, want 1", stats.Errors)
	}
	if stats.Flushes != 0 {
		t.Errorf("Flushes = %d, want 0", stats.Flushes)
	}
}

func TestWriter_StopWithoutStart(t *testing.T) {
	w := New(DefaultWriterConfig(), &fakeDB{}, nil)
	if err := w.Stop(context.Background()); err != nil {
		t.Errorf("Stop failed: %v", err)
	}
}
