package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"momentum/internal/config"
	"momentum/internal/discovery"
	"momentum/internal/fanout"
	"momentum/internal/kalshi"
	"momentum/internal/kalshifeed"
	"momentum/internal/orchestrator"
	"momentum/internal/risk"
	"momentum/internal/strategy"
	"momentum/internal/tracker"
	"momentum/internal/trader"
	"momentum/pkg/utils"
)

// exit codes per the engine's operational contract: 0 clean shutdown,
// 1 startup/config failure, 2 unrecoverable runtime error.
const (
	exitOK      = 0
	exitStartup = 1
	exitRuntime = 2
)

func main() {
	os.Exit(run())
}

// flags layer CLI overrides on top of the environment-driven config, for
// the single "start" command this binary exposes.
type flags struct {
	demo         *bool
	port         *int
	logLevel     *string
	tradeLogPath *string
}

func parseFlags() flags {
	f := flags{
		demo:         flag.Bool("demo", false, "force the Kalshi demo environment regardless of KALSHI_USE_DEMO"),
		port:         flag.Int("port", 0, "override SERVER_PORT for the operator HTTP surface"),
		logLevel:     flag.String("log-level", "", "override LOG_LEVEL"),
		tradeLogPath: flag.String("trade-log-path", "", "override TRADE_LOG_PATH"),
	}
	flag.Parse()
	return f
}

func (f flags) apply(cfg *config.Config) {
	if *f.demo {
		cfg.Security.UseDemo = true
	}
	if *f.port != 0 {
		cfg.Server.Port = *f.port
	}
	if *f.logLevel != "" {
		cfg.Logging.Level = *f.logLevel
	}
	if *f.tradeLogPath != "" {
		cfg.Trader.TradeLogPath = *f.tradeLogPath
	}
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		return exitStartup
	}
	parseFlags().apply(cfg)

	log := utils.InitLogger(utils.LogConfig{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		Development: cfg.Logging.Development,
	}).Logger
	defer log.Sync()

	log.Info("starting engine", zap.Bool("use_demo", cfg.Security.UseDemo))

	privateKeyPEM, err := os.ReadFile(cfg.Security.PrivateKeyPath)
	if err != nil {
		log.Error("failed to read kalshi private key", zap.Error(err))
		return exitStartup
	}

	restBase, wsBase := kalshi.ProdRESTBaseURL, kalshi.ProdWSBaseURL
	if cfg.Security.UseDemo {
		restBase, wsBase = kalshi.DemoRESTBaseURL, kalshi.DemoWSBaseURL
	}

	rest, err := kalshi.NewClient(restBase, cfg.Security.APIKey, privateKeyPEM, kalshi.DefaultHTTPClientConfig())
	if err != nil {
		log.Error("failed to build kalshi REST client", zap.Error(err))
		return exitStartup
	}

	balanceCtx, cancelBalance := context.WithTimeout(context.Background(), 10*time.Second)
	balanceCents, err := rest.GetBalance(balanceCtx)
	cancelBalance()
	if err != nil {
		log.Error("failed to read kalshi account balance at startup", zap.Error(err))
		return exitStartup
	}
	log.Info("kalshi account balance confirmed", zap.Int64("balance_cents", balanceCents))

	feed, err := kalshifeed.NewFeed(wsBase, kalshifeed.DefaultReconnectConfig(), log)
	if err != nil {
		log.Error("failed to connect kalshi price feed", zap.Error(err))
		return exitStartup
	}

	sink, err := buildSink(cfg)
	if err != nil {
		log.Error("failed to open trade sink", zap.Error(err))
		return exitStartup
	}

	if cfg.Security.EncryptionKey != "" && cfg.Trader.TradeLogBackend == "jsonl" {
		if err := tracker.WriteSessionMetadata(
			cfg.Trader.TradeLogPath,
			cfg.Security.APIKey,
			cfg.Security.PrivateKeyPath,
			cfg.Security.UseDemo,
			[]byte(cfg.Security.EncryptionKey),
		); err != nil {
			log.Warn("failed to write session metadata", zap.Error(err))
		}
	}

	riskMgr := risk.New(risk.Config{
		MaxPositionPerMarket:  cfg.Risk.MaxPositionPerMarket,
		MaxTotalExposureCents: cfg.Risk.MaxTotalExposureCents,
		MaxDailyLossCents:     cfg.Risk.MaxDailyLossCents,
		CooldownSeconds:       cfg.Risk.CooldownSeconds,
		OrderAckTimeout:       cfg.Risk.OrderAckTimeout,
	})

	trk := tracker.New(sink)

	router := fanout.NewRouter(feed, cfg.Strategy.MinSampleInterval, log)

	traderCfg := trader.Config{
		OrderSize:         cfg.Risk.OrderSize,
		StopLossCents:     int64(cfg.Trader.StopLossCents),
		TrailingStopCents: int64(cfg.Trader.TrailingStopCents),
		KalshiFeeCents:    int64(cfg.Trader.KalshiFeeCents),
		MaxSpreadCents:    cfg.Market.MaxSpreadCents,
		TickInterval:      cfg.Trader.TickInterval,
		StrategyCadence:   500 * time.Millisecond,
		OrderAckTimeout:   cfg.Risk.OrderAckTimeout,
		ExitOrderTimeout:  cfg.Trader.OrderTimeout,
		Strategy: strategy.Config{
			WindowSeconds:           cfg.Strategy.WindowSeconds,
			EntryThresholdCents:     cfg.Strategy.EntryThresholdCents,
			ConvergenceThresholdPct: cfg.Strategy.ConvergenceThresholdPct,
		},
	}

	discCfg := discovery.Config{
		ScanInterval:      cfg.Market.ScanInterval,
		MaxSpreadCents:    cfg.Market.MaxSpreadCents,
		MinVolume:         cfg.Market.MinVolume,
		MaxMarkets:        cfg.Market.MaxMarkets,
		WindowSeconds:     cfg.Strategy.WindowSeconds,
		MinSampleInterval: cfg.Strategy.MinSampleInterval,
	}
	disc := discovery.New(discCfg, traderCfg, rest, router, riskMgr, trk, log)

	orchCfg := orchestrator.Config{
		ShutdownGrace: cfg.Trader.ShutdownGrace,
		HTTPAddr:      fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		SweepInterval: cfg.Trader.TickInterval,
	}
	orch := orchestrator.New(orchCfg, riskMgr, trk, router, disc, feed, log)

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info("received shutdown signal", zap.String("signal", sig.String()))
		cancel()
	}()

	if err := orch.Run(ctx); err != nil {
		log.Error("engine exited with error", zap.Error(err))
		return exitRuntime
	}

	log.Info("engine shut down cleanly")
	return exitOK
}

func buildSink(cfg *config.Config) (tracker.Sink, error) {
	switch cfg.Trader.TradeLogBackend {
	case "postgres":
		db, err := sql.Open(cfg.Database.Driver, cfg.Database.DSN())
		if err != nil {
			return nil, fmt.Errorf("open trade database: %w", err)
		}
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(2)
		db.SetConnMaxLifetime(5 * time.Minute)

		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := db.PingContext(pingCtx); err != nil {
			return nil, fmt.Errorf("ping trade database: %w", err)
		}
		return tracker.NewPostgresSink(db), nil
	default:
		return tracker.NewJSONLSink(cfg.Trader.TradeLogPath)
	}
}
