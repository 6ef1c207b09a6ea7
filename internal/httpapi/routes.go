// Package httpapi exposes the engine's always-on operator surface:
// liveness, Prometheus scraping, a JSON status snapshot, and a small
// admin endpoint to clear a tripped circuit breaker.
package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"momentum/internal/discovery"
	"momentum/internal/risk"
	"momentum/internal/tracker"
	"momentum/internal/trader"
)

// Dependencies are the components the HTTP surface reports on. It never
// drives trading decisions itself, only reads and, for the admin endpoint,
// clears the circuit breaker.
type Dependencies struct {
	RiskMgr   *risk.Manager
	Tracker   *tracker.Tracker
	Discovery *discovery.Loop
	Log       *zap.Logger
}

// NewRouter builds the mux.Router the way the teacher's SetupRoutes wires
// handlers, minus the trading-pair CRUD surface this engine has no use for.
func NewRouter(deps Dependencies) *mux.Router {
	router := mux.NewRouter()
	router.Use(recovery(deps.Log))
	router.Use(logging(deps.Log))

	router.HandleFunc("/healthz", healthzHandler).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	router.HandleFunc("/status", statusHandler(deps)).Methods(http.MethodGet)
	router.HandleFunc("/admin/reset-circuit", resetCircuitHandler(deps)).Methods(http.MethodPost)

	return router
}

func healthzHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

type statusResponse struct {
	CircuitTripped        bool                    `json:"circuit_tripped"`
	TotalExposureCents    int64                   `json:"total_exposure_cents"`
	RealizedPnLTodayCents int64                   `json:"realized_pnl_today_cents"`
	TradersByState        map[string]int          `json:"traders_by_state"`
	TraderStats           map[string]trader.Stats `json:"trader_stats"`
	Trades                tracker.Snapshot        `json:"trades"`
}

func statusHandler(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		byState := map[string]int{"flat": 0, "holding": 0, "exiting": 0, "retired": 0}
		byTicker := make(map[string]trader.Stats)
		for _, tr := range deps.Discovery.Traders() {
			byState[string(tr.State())]++
			byTicker[tr.Ticker()] = tr.Stats()
		}

		resp := statusResponse{
			CircuitTripped:        deps.RiskMgr.IsCircuitTripped(),
			TotalExposureCents:    deps.RiskMgr.TotalExposureCents(),
			RealizedPnLTodayCents: deps.RiskMgr.RealizedPnLTodayCents(),
			TradersByState:        byState,
			TraderStats:           byTicker,
			Trades:                deps.Tracker.Snapshot(),
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}
}

func resetCircuitHandler(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deps.RiskMgr.ResetDaily()
		deps.Log.Info("daily loss circuit reset via admin endpoint")
		w.WriteHeader(http.StatusNoContent)
	}
}
