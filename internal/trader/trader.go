// Package trader implements the Market Trader (C5): the per-market state
// machine that turns momentum signals into positions and manages their
// exit. One Trader owns exactly one ticker and runs on its own goroutine.
package trader

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"momentum/internal/engineerr"
	"momentum/internal/kalshi"
	"momentum/internal/market"
	"momentum/internal/metrics"
	"momentum/internal/models"
	"momentum/internal/risk"
	"momentum/internal/strategy"
	"momentum/internal/tracker"
)

// Config mirrors the trader-relevant subset of the engine configuration.
type Config struct {
	OrderSize         int
	StopLossCents     int64
	TrailingStopCents int64
	KalshiFeeCents    int64
	MaxSpreadCents    int

	TickInterval     time.Duration // 200ms per §4.5
	StrategyCadence  time.Duration // 500ms: entry checks and reversal checks
	OrderAckTimeout  time.Duration
	ExitOrderTimeout time.Duration

	Strategy strategy.Config
}

// Trader drives one market through Flat -> Holding -> Exiting -> Flat (or
// Retired from Flat). All mutable state is behind mu; REST calls happen with
// the lock released.
type Trader struct {
	ticker  string
	cfg     Config
	rest    kalshi.REST
	riskMgr *risk.Manager
	trk     *tracker.Tracker
	mkt     *market.State
	log     *zap.Logger

	mu               sync.Mutex
	state            models.TraderState
	position         *models.Position
	reservation      *risk.Reservation
	shuttingDown     bool
	lastStrategyTick time.Time
	stats            Stats

	done chan struct{}
}

func New(ticker string, cfg Config, rest kalshi.REST, riskMgr *risk.Manager, trk *tracker.Tracker, mkt *market.State, log *zap.Logger) *Trader {
	return &Trader{
		ticker:  ticker,
		cfg:     cfg,
		rest:    rest,
		riskMgr: riskMgr,
		trk:     trk,
		mkt:     mkt,
		log:     log.With(zap.String("ticker", ticker)),
		state:   models.StateFlat,
		done:    make(chan struct{}),
	}
}

func (t *Trader) Ticker() string { return t.ticker }

func (t *Trader) State() models.TraderState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Stats is a snapshot of one trader's lifetime counters, exposed through
// the /status HTTP endpoint for operator visibility.
type Stats struct {
	SignalsDetected int
	Entries         int
	Exits           int
	StopLosses      int
	TrailingStops   int
	Reversals       int
}

func (t *Trader) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stats
}

// Done closes once Run has returned (the trader reached Retired, or Run's
// context was cancelled).
func (t *Trader) Done() <-chan struct{} { return t.done }

// OnSample feeds a price update from the fan-out (C6). It updates the
// market history and, while Holding, ratchets the trailing stop. Per §4.5,
// updates during Exiting are not applied to the ratchet.
func (t *Trader) OnSample(sample models.Sample) {
	t.mkt.Insert(sample)

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != models.StateHolding || t.position == nil {
		return
	}
	d := sample.Derive()
	mid, ok := midCents(d, t.position.Side)
	if !ok {
		return
	}
	if mid > t.position.HighestSeen {
		t.position.HighestSeen = mid
	}
	t.position.TrailingStopPrice = t.position.HighestSeen - models.PriceCents(t.cfg.TrailingStopCents)
}

// RequestShutdown flips the shutdown flag. A Holding trader begins exiting
// on its next tick; a Flat trader retires on its next tick.
func (t *Trader) RequestShutdown() {
	t.mu.Lock()
	t.shuttingDown = true
	t.mu.Unlock()
}

// TryRetire forcibly retires a Flat trader (called by discovery when the
// market has lost liquidity). Returns false if the trader is not Flat.
func (t *Trader) TryRetire() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != models.StateFlat {
		return false
	}
	t.state = models.StateRetired
	return true
}

// Run is the trader's main loop: one goroutine per market, ticking at
// cfg.TickInterval. It returns once the trader reaches Retired.
func (t *Trader) Run(ctx context.Context) {
	defer close(t.done)

	ticker := time.NewTicker(t.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if t.onTick(ctx, now) {
				return
			}
		}
	}
}

// onTick returns true when the trader has reached Retired and Run should
// stop.
func (t *Trader) onTick(ctx context.Context, now time.Time) bool {
	t.mu.Lock()
	state := t.state
	shuttingDown := t.shuttingDown
	dueForStrategy := now.Sub(t.lastStrategyTick) >= t.cfg.StrategyCadence
	if dueForStrategy {
		t.lastStrategyTick = now
	}
	t.mu.Unlock()

	switch state {
	case models.StateFlat:
		if shuttingDown {
			t.mu.Lock()
			t.state = models.StateRetired
			t.mu.Unlock()
			return true
		}
		if dueForStrategy {
			t.tryEntry(ctx, now)
		}
	case models.StateHolding:
		if shuttingDown {
			t.beginExit(ctx, now, models.ExitShutdown)
			return false
		}
		t.evaluateExit(ctx, now, dueForStrategy)
	case models.StateExiting:
		// runExitLoop (spawned by beginExit) drives Exiting to completion;
		// nothing to do here, per §4.5's freeze of stop conditions on exit.
	case models.StateRetired:
		return true
	}
	return false
}

func midCents(d models.Derived, side models.Side) (models.PriceCents, bool) {
	if side == models.Yes {
		if !d.YesMidOK {
			return 0, false
		}
		return models.PriceCents(d.YesMid / 10), true
	}
	if !d.NoMidOK {
		return 0, false
	}
	return models.PriceCents(d.NoMid / 10), true
}

func (t *Trader) tryEntry(ctx context.Context, now time.Time) {
	sig := strategy.Analyze(t.mkt, now, t.cfg.Strategy)
	metrics.RecordSignal(t.ticker, string(sig.Kind))
	if sig.Kind == models.Neutral {
		return
	}
	t.mu.Lock()
	t.stats.SignalsDetected++
	t.mu.Unlock()

	latest, ok := t.mkt.Latest()
	if !ok {
		return
	}

	side := models.Yes
	if sig.Kind == models.Bearish {
		side = models.No
	}
	mid, ok := midCents(latest, side)
	if !ok {
		return
	}

	limitPrice := mid + 1
	size := t.cfg.OrderSize

	res, err := t.riskMgr.CheckAndReserve(t.ticker, side, size, limitPrice)
	if err != nil {
		if kind, _ := engineerr.KindOf(err); kind == engineerr.RiskReject {
			return
		}
		t.log.Warn("entry reservation failed", zap.Error(err))
		return
	}

	metrics.TickToOrderLatency.WithLabelValues(t.ticker, "entry").Observe(float64(time.Since(now).Milliseconds()))
	submittedAt := time.Now()
	reqCtx, cancel := context.WithTimeout(ctx, t.cfg.OrderAckTimeout)
	result, err := t.rest.PlaceOrder(reqCtx, kalshi.PlaceOrderRequest{
		Ticker:     t.ticker,
		Side:       string(side),
		Action:     string(models.Buy),
		Count:      size,
		PriceCents: int(limitPrice),
		ClientID:   fmt.Sprintf("%s-entry-%d", t.ticker, now.UnixNano()),
	})
	cancel()
	metrics.OrderExecutionLatency.WithLabelValues("buy").Observe(float64(time.Since(submittedAt).Milliseconds()))

	filled := err == nil && (result.Status == string(models.OrderFilled) || result.Status == string(models.OrderPartiallyFilled))
	if !filled {
		if err == nil && result.OrderID != "" {
			_ = t.rest.CancelOrder(ctx, result.OrderID)
		}
		t.riskMgr.Release(res)
		return
	}
	if result.Status == string(models.OrderPartiallyFilled) && result.OrderID != "" {
		_ = t.rest.CancelOrder(ctx, result.OrderID)
	}

	avgPrice := models.PriceCents(result.AvgFillPrice)
	filledSize := result.FilledCount
	t.riskMgr.CommitEntry(res, filledSize, avgPrice)

	pos := &models.Position{
		Ticker:            t.ticker,
		Side:              side,
		Size:              filledSize,
		EntryPrice:        avgPrice,
		HighestSeen:       avgPrice,
		StopLossPrice:     avgPrice - models.PriceCents(t.cfg.StopLossCents) - models.PriceCents(t.cfg.KalshiFeeCents),
		TrailingStopPrice: avgPrice - models.PriceCents(t.cfg.TrailingStopCents),
		OpenedAt:          now,
		EntryOrderID:      result.OrderID,
	}
	t.trk.RecordEntry(t.ticker, side, filledSize, avgPrice, now)

	t.mu.Lock()
	t.position = pos
	t.reservation = res
	t.state = models.StateHolding
	t.stats.Entries++
	t.mu.Unlock()
}

func (t *Trader) evaluateExit(ctx context.Context, now time.Time, checkReversal bool) {
	t.mu.Lock()
	if t.position == nil {
		t.mu.Unlock()
		return
	}
	pos := *t.position
	t.mu.Unlock()

	latest, ok := t.mkt.Latest()
	if !ok {
		return
	}
	mid, ok := midCents(latest, pos.Side)
	if !ok {
		return
	}

	if mid <= pos.StopLossPrice {
		t.beginExit(ctx, now, models.ExitStopLoss)
		return
	}
	if mid <= pos.TrailingStopPrice {
		t.beginExit(ctx, now, models.ExitTrailingStop)
		return
	}
	if !checkReversal {
		return
	}

	sig := strategy.Analyze(t.mkt, now, t.cfg.Strategy)
	metrics.RecordSignal(t.ticker, string(sig.Kind))
	if sig.Kind != models.Neutral {
		t.mu.Lock()
		t.stats.SignalsDetected++
		t.mu.Unlock()
	}
	opposite := (pos.Side == models.Yes && sig.Kind == models.Bearish) ||
		(pos.Side == models.No && sig.Kind == models.Bullish)
	if opposite && sig.Confidence >= 0.5 {
		t.beginExit(ctx, now, models.ExitReversal)
	}
}

// beginExit transitions Holding -> Exiting and hands the position off to a
// background loop that submits (and, on timeout, re-submits) the exit order
// until it fills. Stop-loss/trailing-stop conditions do not re-fire during
// Exiting (§4.5's freeze).
func (t *Trader) beginExit(ctx context.Context, now time.Time, reason models.ExitReason) {
	t.mu.Lock()
	if t.state != models.StateHolding || t.position == nil {
		t.mu.Unlock()
		return
	}
	pos := *t.position
	t.state = models.StateExiting
	t.mu.Unlock()

	go t.runExitLoop(ctx, pos, reason)
}

func (t *Trader) runExitLoop(ctx context.Context, pos models.Position, reason models.ExitReason) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		exitPrice, filledSize, ok := t.attemptExit(ctx, pos)
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-time.After(t.cfg.TickInterval):
			}
			continue // retry at the new best price, per §4.5
		}

		feeCents := t.cfg.KalshiFeeCents
		perContract := int64(exitPrice) - int64(pos.EntryPrice) - feeCents
		realizedPnL := perContract * int64(filledSize)

		t.riskMgr.CommitExit(t.ticker, filledSize, pos.EntryPrice, realizedPnL)
		t.trk.RecordExit(t.ticker, exitPrice, time.Now(), reason, feeCents)

		t.mu.Lock()
		t.position = nil
		t.reservation = nil
		t.state = models.StateFlat
		t.stats.Exits++
		switch reason {
		case models.ExitStopLoss:
			t.stats.StopLosses++
		case models.ExitTrailingStop:
			t.stats.TrailingStops++
		case models.ExitReversal:
			t.stats.Reversals++
		}
		t.mu.Unlock()

		if reason == models.ExitReversal {
			t.tryEntry(ctx, time.Now())
		}
		return
	}
}

// attemptExit submits one exit order, bounding the REST call by
// ExitOrderTimeout. ok is false on an error or on any status other than
// filled/partially filled (a resting order is cancelled); the caller then
// waits one TickInterval and retries at a refreshed price.
func (t *Trader) attemptExit(ctx context.Context, pos models.Position) (exitPrice models.PriceCents, filledSize int, ok bool) {
	limitPrice := pos.EntryPrice // best-effort fallback if the book has gone dark
	if latest, has := t.mkt.Latest(); has {
		if mid, midOK := midCents(latest, pos.Side); midOK {
			limitPrice = mid - 1
		}
	}

	reqCtx, cancel := context.WithTimeout(ctx, t.cfg.ExitOrderTimeout)
	defer cancel()

	submittedAt := time.Now()
	result, err := t.rest.PlaceOrder(reqCtx, kalshi.PlaceOrderRequest{
		Ticker:     t.ticker,
		Side:       string(pos.Side),
		Action:     string(models.Sell),
		Count:      pos.Size,
		PriceCents: int(limitPrice),
		ClientID:   fmt.Sprintf("%s-exit-%d", t.ticker, time.Now().UnixNano()),
	})
	metrics.OrderExecutionLatency.WithLabelValues("sell").Observe(float64(time.Since(submittedAt).Milliseconds()))
	if err != nil {
		return 0, 0, false
	}
	if result.Status != string(models.OrderFilled) && result.Status != string(models.OrderPartiallyFilled) {
		if result.OrderID != "" {
			_ = t.rest.CancelOrder(ctx, result.OrderID)
		}
		return 0, 0, false
	}
	return models.PriceCents(result.AvgFillPrice), result.FilledCount, true
}
