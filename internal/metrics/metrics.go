// Package metrics exposes the engine's Prometheus instrumentation:
// tick-to-order latency, signal and reservation counters, circuit and
// position gauges, and realized P&L.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ============ Latency ============

// TickToOrderLatency measures the time from a price sample landing on a
// market's state to the REST order submission it triggered.
var TickToOrderLatency = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "momentum",
		Subsystem: "trading",
		Name:      "tick_to_order_latency_ms",
		Help:      "Latency from price tick to order submission in milliseconds",
		Buckets:   []float64{0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500},
	},
	[]string{"ticker", "stage"}, // stage: entry, exit
)

// OrderExecutionLatency measures the time between order submission and a
// terminal fill/rejection response from the exchange.
var OrderExecutionLatency = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "momentum",
		Subsystem: "trading",
		Name:      "order_execution_latency_ms",
		Help:      "Time to fill or reject an order on the exchange in milliseconds",
		Buckets:   []float64{50, 100, 250, 500, 1000, 2000, 5000, 10000},
	},
	[]string{"action"}, // buy, sell
)

// ============ Counters ============

// SignalsDetected counts momentum signals by kind, regardless of whether a
// trader was Flat and free to act on them.
var SignalsDetected = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "momentum",
		Subsystem: "strategy",
		Name:      "signals_detected_total",
		Help:      "Number of momentum signals detected by kind",
	},
	[]string{"ticker", "kind"}, // kind: bullish, bearish, neutral
)

// ReservationsTotal counts risk manager reservation outcomes.
var ReservationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "momentum",
		Subsystem: "risk",
		Name:      "reservations_total",
		Help:      "Number of position reservation attempts by outcome",
	},
	[]string{"ticker", "outcome"}, // outcome: granted, rejected
)

// TradesTotal counts closed trades by exit reason.
var TradesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "momentum",
		Subsystem: "trading",
		Name:      "trades_total",
		Help:      "Total number of closed trades by exit reason",
	},
	[]string{"ticker", "reason"},
)

// PnLCentsTotal accumulates realized P&L in cents across all closed trades.
var PnLCentsTotal = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "momentum",
		Subsystem: "trading",
		Name:      "pnl_cents_total",
		Help:      "Total realized profit and loss in cents",
	},
)

// ============ Gauges ============

// OpenPositions reports the current number of traders in each state.
var OpenPositions = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "momentum",
		Subsystem: "trading",
		Name:      "traders_by_state",
		Help:      "Number of traders currently in each state",
	},
	[]string{"state"}, // flat, holding, exiting, retired
)

// CircuitTripped reports whether the risk manager's daily loss circuit is
// currently tripped (1) or not (0).
var CircuitTripped = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "momentum",
		Subsystem: "risk",
		Name:      "circuit_tripped",
		Help:      "1 if the daily loss circuit breaker is tripped, 0 otherwise",
	},
)

// ExposureCents reports the risk manager's current total exposure across
// all markets.
var ExposureCents = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "momentum",
		Subsystem: "risk",
		Name:      "exposure_cents",
		Help:      "Current total exposure across all open positions in cents",
	},
)

// LiquidMarkets reports the number of markets the discovery loop currently
// considers liquid.
var LiquidMarkets = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "momentum",
		Subsystem: "discovery",
		Name:      "liquid_markets",
		Help:      "Number of markets classified as liquid on the last scan",
	},
)

// FeedErrorsTotal counts feed-side problems that were dropped rather than
// acted on: malformed wire messages and out-of-order or inadmissible
// samples the market state buffer refused to insert.
var FeedErrorsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "momentum",
		Subsystem: "feed",
		Name:      "errors_total",
		Help:      "Number of feed messages or samples dropped by reason",
	},
	[]string{"reason"}, // decode, dropped_sample
)

// ============ Helpers ============

// RecordReservation records a risk manager reservation outcome.
func RecordReservation(ticker string, granted bool) {
	outcome := "rejected"
	if granted {
		outcome = "granted"
	}
	ReservationsTotal.WithLabelValues(ticker, outcome).Inc()
}

// RecordSignal records a momentum signal detection.
func RecordSignal(ticker, kind string) {
	SignalsDetected.WithLabelValues(ticker, kind).Inc()
}

// RecordTrade records a closed trade and its realized P&L.
func RecordTrade(ticker, reason string, pnlCents int64) {
	TradesTotal.WithLabelValues(ticker, reason).Inc()
	PnLCentsTotal.Add(float64(pnlCents))
}

// SetCircuitTripped updates the circuit breaker gauge.
func SetCircuitTripped(tripped bool) {
	if tripped {
		CircuitTripped.Set(1)
	} else {
		CircuitTripped.Set(0)
	}
}
