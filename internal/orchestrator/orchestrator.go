// Package orchestrator implements the Orchestrator (C8): owns the risk
// manager and trade tracker, drives the fan-out and discovery loops, and
// coordinates graceful shutdown.
package orchestrator

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"momentum/internal/discovery"
	"momentum/internal/fanout"
	"momentum/internal/httpapi"
	"momentum/internal/kalshi"
	"momentum/internal/risk"
	"momentum/internal/tracker"
)

// Config mirrors the orchestrator-relevant subset of the engine
// configuration.
type Config struct {
	ShutdownGrace time.Duration
	HTTPAddr      string

	// SweepInterval is the cadence of the background sweep that expires
	// stale risk reservations (§4.3): reuses C5's tick interval so a
	// crashed or stuck submit path cannot leak exposure for longer than
	// the risk manager's OrderAckTimeout plus one tick.
	SweepInterval time.Duration
}

// Orchestrator wires C3, C4, C6 and C7 together, serves the operator HTTP
// surface, and owns the shutdown sequence described in §4.8.
type Orchestrator struct {
	cfg       Config
	riskMgr   *risk.Manager
	trk       *tracker.Tracker
	router    *fanout.Router
	discovery *discovery.Loop
	feed      kalshi.Feed
	log       *zap.Logger
	httpSrv   *http.Server
}

func New(cfg Config, riskMgr *risk.Manager, trk *tracker.Tracker, router *fanout.Router, disc *discovery.Loop, feed kalshi.Feed, log *zap.Logger) *Orchestrator {
	o := &Orchestrator{
		cfg:       cfg,
		riskMgr:   riskMgr,
		trk:       trk,
		router:    router,
		discovery: disc,
		feed:      feed,
		log:       log,
	}
	if cfg.HTTPAddr != "" {
		mux := httpapi.NewRouter(httpapi.Dependencies{RiskMgr: riskMgr, Tracker: trk, Discovery: disc, Log: log})
		o.httpSrv = &http.Server{Addr: cfg.HTTPAddr, Handler: mux}
	}
	return o
}

// Run starts C6, C7 and the operator HTTP surface, blocks until ctx is
// cancelled (typically by a signal handler in main) or C6/C7 report an
// unrecoverable error, then runs the shutdown sequence and returns that
// error combined with any teardown errors.
func (o *Orchestrator) Run(ctx context.Context) error {
	feedCtx, cancelFeeds := context.WithCancel(context.Background())

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); o.router.Run(feedCtx) }()
	go func() { defer wg.Done(); o.discovery.Run(feedCtx) }()

	if o.cfg.SweepInterval > 0 {
		wg.Add(1)
		go func() { defer wg.Done(); o.sweepLoop(feedCtx) }()
	}

	if o.httpSrv != nil {
		go func() {
			if err := o.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				o.log.Error("http server stopped unexpectedly", zap.Error(err))
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
		o.log.Info("shutdown signal received")
	case err := <-o.router.Err():
		o.log.Error("unrecoverable feed condition; initiating shutdown", zap.Error(err))
		runErr = err
	case err := <-o.discovery.Err():
		o.log.Error("unrecoverable REST condition; initiating shutdown", zap.Error(err))
		runErr = err
	}

	if shutdownErr := o.shutdown(cancelFeeds, &wg); shutdownErr != nil {
		runErr = multierr.Append(runErr, shutdownErr)
	}
	return runErr
}

// sweepLoop periodically releases reservations that never got a fill or
// rejection acknowledgement, so a crashed or stuck submit path cannot
// leak exposure forever.
func (o *Orchestrator) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(o.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.riskMgr.SweepExpired()
		}
	}
}

func (o *Orchestrator) shutdown(cancelFeeds context.CancelFunc, wg *sync.WaitGroup) error {
	// §4.8: refuse new reservations globally before touching any trader.
	o.riskMgr.SetShuttingDown(true)

	traders := o.discovery.Traders()
	for _, tr := range traders {
		tr.RequestShutdown()
	}

	allDone := make(chan struct{})
	go func() {
		for _, tr := range traders {
			<-tr.Done()
		}
		close(allDone)
	}()

	select {
	case <-allDone:
		o.log.Info("all traders reached a terminal state")
	case <-time.After(o.cfg.ShutdownGrace):
		o.log.Warn("shutdown grace period elapsed; terminating feed with traders still active")
	}

	// Stop C6/C7 only after traders have had their chance to exit cleanly
	// (traders run, and make their REST calls, under feedCtx, so cancelling
	// it earlier would cut their exits short).
	cancelFeeds()
	wg.Wait()

	var err error
	if o.httpSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if closeErr := o.httpSrv.Shutdown(shutdownCtx); closeErr != nil {
			err = multierr.Append(err, closeErr)
		}
		cancel()
	}
	if closeErr := o.feed.Close(); closeErr != nil {
		err = multierr.Append(err, closeErr)
	}
	if closeErr := o.trk.Close(); closeErr != nil {
		err = multierr.Append(err, closeErr)
	}
	return err
}
