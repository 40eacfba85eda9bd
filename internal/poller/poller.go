package poller

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/alphaorbit/livefeed/internal/api"
)

// TokenLister lists tokens. *api.Client implements it.
type TokenLister interface {
	ListTokens(ctx context.Context, page, pageSize int) (*api.TokenPage, error)
}

// Watcher starts and stops the per-token feeds.
type Watcher interface {
	Watch(tokenID string) error
	Unwatch(tokenID string)
	Failed(tokenID string) bool
}

// Config holds poller configuration.
type Config struct {
	Interval     time.Duration // Discovery interval (0 = static tokens only)
	PageSize     int           // Tokens requested per cycle
	Timeout      time.Duration // Per-request timeout
	ApprovedOnly bool          // Skip tokens not approved for trading
	StaticIDs    []string      // Watched regardless of the listing
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Interval:     time.Minute,
		PageSize:     50,
		Timeout:      10 * time.Second,
		ApprovedOnly: true,
	}
}

// Stats contains discovery statistics.
type Stats struct {
	Cycles  int64
	Errors  int64
	Watched int
}

// Poller reconciles watched tokens against the REST listing.
type Poller struct {
	cfg     Config
	lister  TokenLister
	watcher Watcher
	logger  *slog.Logger
	clock   clock.Clock

	mu      sync.Mutex
	watched map[string]bool
	static  map[string]bool
	cycles  int64
	errors  int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new Poller. lister may be nil when Interval is 0.
func New(cfg Config, lister TokenLister, watcher Watcher, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}

	static := make(map[string]bool, len(cfg.StaticIDs))
	for _, id := range cfg.StaticIDs {
		static[id] = true
	}

	return &Poller{
		cfg:     cfg,
		lister:  lister,
		watcher: watcher,
		logger:  logger,
		clock:   clock.New(),
		watched: make(map[string]bool),
		static:  static,
	}
}

// WithClock replaces the clock driving the discovery interval.
func (p *Poller) WithClock(c clock.Clock) *Poller {
	p.clock = c
	return p
}

// Start watches the static tokens and, when an interval is configured,
// begins the discovery loop.
func (p *Poller) Start(ctx context.Context) error {
	p.ctx, p.cancel = context.WithCancel(ctx)

	for _, id := range p.cfg.StaticIDs {
		p.watch(id)
	}

	if p.cfg.Interval > 0 && p.lister != nil {
		p.wg.Add(1)
		go p.run()
	}

	p.logger.Info("discovery poller started",
		"interval", p.cfg.Interval,
		"static", len(p.cfg.StaticIDs),
	)

	return nil
}

// Stop gracefully shuts down the poller. Watched tokens stay watched;
// the registry's CloseAll releases them.
func (p *Poller) Stop(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("discovery poller stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run is the main discovery loop.
func (p *Poller) run() {
	defer p.wg.Done()

	ticker := p.clock.Ticker(p.cfg.Interval)
	defer ticker.Stop()

	// Discover immediately on start.
	p.discover()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.discover()
		}
	}
}

// discover lists one page of tokens and reconciles the watched set.
// A failed listing leaves the watched set untouched.
func (p *Poller) discover() {
	ctx, cancel := context.WithTimeout(p.ctx, p.cfg.Timeout)
	defer cancel()

	page, err := p.lister.ListTokens(ctx, 1, p.cfg.PageSize)

	p.mu.Lock()
	p.cycles++
	if err != nil {
		p.errors++
	}
	p.mu.Unlock()

	if err != nil {
		p.logger.Warn("failed to list tokens", "err", err)
		return
	}

	listed := make(map[string]bool, len(page.Results))
	for _, tok := range page.Results {
		if p.cfg.ApprovedOnly && !tok.IsApproved {
			continue
		}
		if id := tok.ID.String(); id != "" {
			listed[id] = true
		}
	}

	p.reconcile(listed)

	if page.HasMore() {
		p.logger.Debug("token listing truncated to first page",
			"count", page.Count,
			"page_size", p.cfg.PageSize,
		)
	}
}

// reconcile watches listed and static ids and unwatches the rest. A watched
// id whose feeds gave up reconnecting is forgotten first so it is reopened.
func (p *Poller) reconcile(listed map[string]bool) {
	var added, removed, reopened int

	p.mu.Lock()
	var watched []string
	for id := range p.watched {
		watched = append(watched, id)
	}
	p.mu.Unlock()

	for _, id := range watched {
		if (listed[id] || p.static[id]) && p.watcher.Failed(id) {
			p.logger.Warn("reopening failed feeds", "token", id)
			p.mu.Lock()
			delete(p.watched, id)
			p.mu.Unlock()
			reopened++
		}
	}

	for id := range listed {
		if p.watch(id) {
			added++
		}
	}
	for id := range p.static {
		if p.watch(id) {
			added++
		}
	}

	p.mu.Lock()
	var stale []string
	for id := range p.watched {
		if !listed[id] && !p.static[id] {
			stale = append(stale, id)
		}
	}
	p.mu.Unlock()

	for _, id := range stale {
		p.unwatch(id)
		removed++
	}

	if added > 0 || removed > 0 {
		p.logger.Info("watched tokens changed",
			"added", added,
			"removed", removed,
			"reopened", reopened,
			"watched", p.Stats().Watched,
		)
	}
}

// watch returns true if id was newly watched.
func (p *Poller) watch(id string) bool {
	p.mu.Lock()
	if p.watched[id] {
		p.mu.Unlock()
		return false
	}
	p.mu.Unlock()

	if err := p.watcher.Watch(id); err != nil {
		p.logger.Warn("failed to watch token", "token", id, "err", err)
		return false
	}

	p.mu.Lock()
	p.watched[id] = true
	p.mu.Unlock()
	return true
}

func (p *Poller) unwatch(id string) {
	p.watcher.Unwatch(id)

	p.mu.Lock()
	delete(p.watched, id)
	p.mu.Unlock()
}

// Watched returns the watched token ids, sorted.
func (p *Poller) Watched() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	ids := make([]string, 0, len(p.watched))
	for id := range p.watched {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Stats returns current statistics.
func (p *Poller) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		Cycles:  p.cycles,
		Errors:  p.errors,
		Watched: len(p.watched),
	}
}
