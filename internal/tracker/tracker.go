// Package tracker implements the Trade Tracker (C4): an in-memory,
// append-only ledger of entries and exits, with realized P&L and per-ticker
// aggregation, optionally mirrored to a durable Sink.
package tracker

import (
	"sync"
	"time"

	"momentum/internal/metrics"
	"momentum/internal/models"
)

// Sink is the opaque durable-persistence abstraction from §6. The tracker
// itself stays in-memory; a Sink implementation decides how (or whether) a
// closed trade is written durably.
type Sink interface {
	WriteTrade(models.Trade) error
	Close() error
}

// Aggregate is one ticker's running statistics.
type Aggregate struct {
	Wins        int
	Losses      int
	RealizedPnL int64
	Trades      int
}

// Snapshot is the tracker's summary at a point in time.
type Snapshot struct {
	Wins            int
	Losses          int
	TotalRealizedPnL int64
	OpenTrades      int
	ByTicker        map[string]Aggregate
}

// Tracker is safe for concurrent use by many trader goroutines.
type Tracker struct {
	mu     sync.Mutex
	open     map[string]*models.Trade // keyed by ticker, at most one per I1
	closed   []models.Trade
	byTicker map[string]Aggregate
	sink     Sink
}

func New(sink Sink) *Tracker {
	return &Tracker{
		open:     make(map[string]*models.Trade),
		byTicker: make(map[string]Aggregate),
		sink:     sink,
	}
}

// RecordEntry appends an open trade. Per I1/P5, an entry must not be
// recorded while another trade for the same ticker is still open.
func (t *Tracker) RecordEntry(ticker string, side models.Side, size int, entryPrice models.PriceCents, openedAt time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.open[ticker] = &models.Trade{
		Ticker:     ticker,
		Side:       side,
		Size:       size,
		EntryPrice: entryPrice,
		OpenedAt:   openedAt,
	}
}

// RecordExit closes the open trade for ticker and computes realized P&L per
// §4.4's convention: (exit - entry - fee) x size for whichever side was held.
func (t *Tracker) RecordExit(ticker string, exitPrice models.PriceCents, closedAt time.Time, reason models.ExitReason, feeCents int64) (models.Trade, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	open, ok := t.open[ticker]
	if !ok {
		return models.Trade{}, false
	}
	delete(t.open, ticker)

	perContract := int64(exitPrice) - int64(open.EntryPrice) - feeCents
	trade := *open
	trade.ExitPrice = exitPrice
	trade.ClosedAt = closedAt
	trade.ExitReason = reason
	trade.RealizedPnL = perContract * int64(open.Size)
	trade.Closed = true

	t.closed = append(t.closed, trade)

	agg := t.byTicker[ticker]
	agg.Trades++
	agg.RealizedPnL += trade.RealizedPnL
	if trade.RealizedPnL >= 0 {
		agg.Wins++
	} else {
		agg.Losses++
	}
	t.byTicker[ticker] = agg
	metrics.RecordTrade(ticker, string(reason), trade.RealizedPnL)

	if t.sink != nil {
		// A persistence failure must not undo an already-closed trade, so
		// the WriteTrade error is discarded here; neither this call nor the
		// sinks log or report it.
		_ = t.sink.WriteTrade(trade)
	}

	return trade, true
}

// HasOpenPosition reports whether ticker currently has an open trade (I1).
func (t *Tracker) HasOpenPosition(ticker string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.open[ticker]
	return ok
}

// Snapshot returns win/loss counts, realized P&L, and per-ticker aggregates.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	snap := Snapshot{
		OpenTrades: len(t.open),
		ByTicker:   make(map[string]Aggregate, len(t.byTicker)),
	}
	for ticker, agg := range t.byTicker {
		snap.ByTicker[ticker] = agg
		snap.Wins += agg.Wins
		snap.Losses += agg.Losses
		snap.TotalRealizedPnL += agg.RealizedPnL
	}
	return snap
}

// ClosedTrades returns a copy of all closed trades recorded so far.
func (t *Tracker) ClosedTrades() []models.Trade {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]models.Trade, len(t.closed))
	copy(out, t.closed)
	return out
}

func (t *Tracker) Close() error {
	if t.sink != nil {
		return t.sink.Close()
	}
	return nil
}
