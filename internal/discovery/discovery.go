// Package discovery implements the Discovery Loop (C7): periodically
// classifies open markets by liquidity and spawns or retires per-market
// traders to track cfg.max_markets.
package discovery

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"momentum/internal/engineerr"
	"momentum/internal/fanout"
	"momentum/internal/kalshi"
	"momentum/internal/market"
	"momentum/internal/metrics"
	"momentum/internal/models"
	"momentum/internal/risk"
	"momentum/internal/tracker"
	"momentum/internal/trader"
)

// Config mirrors the discovery-relevant subset of the engine configuration.
type Config struct {
	ScanInterval      time.Duration
	MaxSpreadCents    int
	MinVolume         int
	MaxMarkets        int
	WindowSeconds     time.Duration
	MinSampleInterval time.Duration
}

// Loop owns the set of running traders and keeps it aligned with the
// currently liquid markets.
type Loop struct {
	cfg       Config
	traderCfg trader.Config
	rest      kalshi.REST
	router    *fanout.Router
	riskMgr   *risk.Manager
	trk       *tracker.Tracker
	log       *zap.Logger

	mu      sync.Mutex
	traders map[string]*trader.Trader

	wg    sync.WaitGroup
	errCh chan error
}

func New(cfg Config, traderCfg trader.Config, rest kalshi.REST, router *fanout.Router, riskMgr *risk.Manager, trk *tracker.Tracker, log *zap.Logger) *Loop {
	return &Loop{
		cfg:       cfg,
		traderCfg: traderCfg,
		rest:      rest,
		router:    router,
		riskMgr:   riskMgr,
		trk:       trk,
		log:       log,
		traders:   make(map[string]*trader.Trader),
		errCh:     make(chan error, 1),
	}
}

// Err reports unrecoverable REST conditions encountered during a scan, such
// as an authentication failure that will never resolve on retry (§7).
func (l *Loop) Err() <-chan error { return l.errCh }

// Run scans every cfg.ScanInterval until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) {
	l.scan(ctx)

	ticker := time.NewTicker(l.cfg.ScanInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.scan(ctx)
		}
	}
}

func isLiquid(m kalshi.MarketSummary, cfg Config) bool {
	if m.YesBid <= 0 || m.YesAsk <= 0 {
		return false
	}
	if m.YesAsk-m.YesBid > cfg.MaxSpreadCents {
		return false
	}
	if cfg.MinVolume > 0 && m.Volume24h < cfg.MinVolume {
		return false
	}
	return true
}

func (l *Loop) scan(ctx context.Context) {
	markets, err := l.rest.ListOpenMarkets(ctx)
	if err != nil {
		if kind, _ := engineerr.KindOf(err); kind == engineerr.Unrecoverable {
			l.log.Error("discovery: list open markets failed unrecoverably", zap.Error(err))
			select {
			case l.errCh <- err:
			default:
			}
			return
		}
		l.log.Warn("discovery: list open markets failed", zap.Error(err))
		return
	}

	liquid := make([]kalshi.MarketSummary, 0, len(markets))
	for _, m := range markets {
		if isLiquid(m, l.cfg) {
			liquid = append(liquid, m)
		}
	}
	sort.Slice(liquid, func(i, j int) bool { return liquid[i].Volume24h > liquid[j].Volume24h })
	metrics.LiquidMarkets.Set(float64(len(liquid)))

	liquidSet := make(map[string]bool, len(liquid))
	for _, m := range liquid {
		liquidSet[m.Ticker] = true
	}

	l.mu.Lock()
	running := make(map[string]bool, len(l.traders))
	for t := range l.traders {
		running[t] = true
	}
	l.mu.Unlock()

	// Retire running traders whose market is no longer liquid. Holding or
	// Exiting traders are deferred to the next scan (§4.7).
	for ticker := range running {
		if liquidSet[ticker] {
			continue
		}
		l.mu.Lock()
		tr := l.traders[ticker]
		l.mu.Unlock()
		if tr == nil {
			continue
		}
		if tr.TryRetire() {
			l.router.Detach(ticker)
			l.mu.Lock()
			delete(l.traders, ticker)
			l.mu.Unlock()
		}
	}

	// Spawn traders for newly liquid markets, respecting max_markets and
	// volume-based prioritization (liquid is already sorted descending).
	for _, m := range liquid {
		l.mu.Lock()
		count := len(l.traders)
		_, alreadyRunning := l.traders[m.Ticker]
		l.mu.Unlock()

		if alreadyRunning {
			continue
		}
		if count >= l.cfg.MaxMarkets {
			break
		}
		l.spawn(ctx, m.Ticker)
	}

	l.reportStateGauges()
}

func (l *Loop) reportStateGauges() {
	counts := map[models.TraderState]int{}
	for _, tr := range l.Traders() {
		counts[tr.State()]++
	}
	metrics.OpenPositions.WithLabelValues("flat").Set(float64(counts[models.StateFlat]))
	metrics.OpenPositions.WithLabelValues("holding").Set(float64(counts[models.StateHolding]))
	metrics.OpenPositions.WithLabelValues("exiting").Set(float64(counts[models.StateExiting]))
	metrics.OpenPositions.WithLabelValues("retired").Set(float64(counts[models.StateRetired]))
}

func (l *Loop) spawn(ctx context.Context, ticker string) {
	mkt := market.New(ticker, l.traderCfg.Strategy.WindowSeconds, l.cfg.MinSampleInterval)
	tr := trader.New(ticker, l.traderCfg, l.rest, l.riskMgr, l.trk, mkt, l.log)

	l.mu.Lock()
	l.traders[ticker] = tr
	l.mu.Unlock()

	l.router.Attach(ticker, tr)

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		tr.Run(ctx)
	}()

	l.log.Info("spawned trader", zap.String("ticker", ticker))
}

// Traders returns a snapshot of all currently running traders.
func (l *Loop) Traders() []*trader.Trader {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*trader.Trader, 0, len(l.traders))
	for _, tr := range l.traders {
		out = append(out, tr)
	}
	return out
}

// Wait blocks until every trader goroutine spawned by this loop has
// returned (used during orchestrated shutdown).
func (l *Loop) Wait() {
	l.wg.Wait()
}
