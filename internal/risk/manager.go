// Package risk implements the shared risk gatekeeper (C3): position and
// exposure limits, entry cooldown, and the daily-loss circuit breaker.
// All state is protected by a single mutex; the lock is never held across
// I/O, so a stuck REST call cannot stall other markets' reservations.
package risk

import (
	"errors"
	"sync"
	"time"

	"momentum/internal/engineerr"
	"momentum/internal/metrics"
	"momentum/internal/models"
)

var (
	errCircuitTripped = errors.New("circuit breaker tripped")
	errPositionLimit  = errors.New("position limit exceeded for market")
	errExposureLimit  = errors.New("total exposure limit exceeded")
	errCooldown       = errors.New("cooldown period has not elapsed")
	errShuttingDown   = errors.New("engine is shutting down")
)

// Config mirrors the risk-relevant subset of the engine configuration.
type Config struct {
	MaxPositionPerMarket  int
	MaxTotalExposureCents int64
	MaxDailyLossCents     int64
	CooldownSeconds       time.Duration
	OrderAckTimeout       time.Duration
}

// Reservation is a pending commitment of exposure, held between the moment
// a trade is decided and the moment the order is acknowledged filled.
type Reservation struct {
	id          uint64
	ticker      string
	side        models.Side
	size        int
	priceCents  models.PriceCents
	exposure    int64
	createdAt   time.Time
	committed   bool
	released    bool
}

func (r *Reservation) Ticker() string { return r.ticker }

// Manager is the thread-safe C3 gatekeeper.
type Manager struct {
	mu sync.Mutex

	cfg Config

	positionSize       map[string]int
	totalExposureCents int64
	pendingCents       int64
	realizedPnLToday   int64
	lastTradeAt        map[string]time.Time
	circuitTripped     bool
	shuttingDown       bool

	reservations map[uint64]*Reservation
	nextResID    uint64
}

func New(cfg Config) *Manager {
	return &Manager{
		cfg:          cfg,
		positionSize: make(map[string]int),
		lastTradeAt:  make(map[string]time.Time),
		reservations: make(map[uint64]*Reservation),
	}
}

// CheckAndReserve atomically verifies the position, exposure and cooldown
// invariants and, if all pass, reserves the intended exposure so a second
// concurrent trade cannot double-commit it before the first order is acked.
func (m *Manager) CheckAndReserve(ticker string, side models.Side, size int, price models.PriceCents) (*Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.shuttingDown {
		metrics.RecordReservation(ticker, false)
		return nil, engineerr.RiskRejectf("check_and_reserve", ticker, errShuttingDown)
	}

	if m.circuitTripped {
		metrics.RecordReservation(ticker, false)
		return nil, engineerr.RiskRejectf("check_and_reserve", ticker, errCircuitTripped)
	}

	if m.positionSize[ticker]+size > m.cfg.MaxPositionPerMarket {
		metrics.RecordReservation(ticker, false)
		return nil, engineerr.RiskRejectf("check_and_reserve", ticker, errPositionLimit)
	}

	exposure := int64(size) * int64(price)
	if m.totalExposureCents+m.pendingCents+exposure > m.cfg.MaxTotalExposureCents {
		metrics.RecordReservation(ticker, false)
		return nil, engineerr.RiskRejectf("check_and_reserve", ticker, errExposureLimit)
	}

	if last, ok := m.lastTradeAt[ticker]; ok {
		if time.Since(last) < m.cfg.CooldownSeconds {
			metrics.RecordReservation(ticker, false)
			return nil, engineerr.RiskRejectf("check_and_reserve", ticker, errCooldown)
		}
	}

	m.nextResID++
	res := &Reservation{
		id:         m.nextResID,
		ticker:     ticker,
		side:       side,
		size:       size,
		priceCents: price,
		exposure:   exposure,
		createdAt:  time.Now(),
	}
	m.pendingCents += exposure
	m.reservations[res.id] = res
	metrics.RecordReservation(ticker, true)
	return res, nil
}

// CommitEntry finalizes a reservation once the order is reported filled.
// filledSize/avgFillPrice may differ from the reservation's request on a
// partial fill; exposure is trued up to the actual fill.
func (m *Manager) CommitEntry(res *Reservation, filledSize int, avgFillPrice models.PriceCents) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if res.committed || res.released {
		return
	}
	res.committed = true
	m.pendingCents -= res.exposure

	actualExposure := int64(filledSize) * int64(avgFillPrice)
	m.totalExposureCents += actualExposure
	m.positionSize[res.ticker] += filledSize
	m.lastTradeAt[res.ticker] = time.Now()
	delete(m.reservations, res.id)
}

// Release undoes a reservation that was never filled (rejection, timeout).
func (m *Manager) Release(res *Reservation) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if res.committed || res.released {
		return
	}
	res.released = true
	m.pendingCents -= res.exposure
	delete(m.reservations, res.id)
}

// SweepExpired releases any reservation older than OrderAckTimeout that was
// never committed or released, so a stuck submit path cannot leak exposure.
func (m *Manager) SweepExpired() {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().Add(-m.cfg.OrderAckTimeout)
	for id, res := range m.reservations {
		if res.createdAt.Before(cutoff) {
			res.released = true
			m.pendingCents -= res.exposure
			delete(m.reservations, id)
		}
	}
}

// CommitExit records the closing of a position: exposure returns to the
// pool and the realized P&L updates the daily circuit-breaker total.
func (m *Manager) CommitExit(ticker string, size int, entryPrice models.PriceCents, realizedPnLCents int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.totalExposureCents -= int64(size) * int64(entryPrice)
	if m.totalExposureCents < 0 {
		m.totalExposureCents = 0
	}
	m.positionSize[ticker] -= size
	if m.positionSize[ticker] < 0 {
		m.positionSize[ticker] = 0
	}

	m.realizedPnLToday += realizedPnLCents
	if m.realizedPnLToday <= -m.cfg.MaxDailyLossCents {
		m.circuitTripped = true
	}
	metrics.SetCircuitTripped(m.circuitTripped)
	metrics.ExposureCents.Set(float64(m.totalExposureCents))
}

func (m *Manager) IsCircuitTripped() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.circuitTripped
}

// ResetCircuit clears the circuit trip only; the day's realized P&L is
// kept. Circuit trips are sticky until explicitly cleared (I5). The
// operator HTTP route calls ResetDaily, not this method.
func (m *Manager) ResetCircuit() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.circuitTripped = false
	metrics.SetCircuitTripped(false)
}

// ResetDaily clears the realized P&L counter and circuit trip, mirroring
// the reference implementation's daily reset operation.
func (m *Manager) ResetDaily() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.realizedPnLToday = 0
	m.circuitTripped = false
	metrics.SetCircuitTripped(false)
}

// TotalExposureCents returns the currently committed exposure (P2).
func (m *Manager) TotalExposureCents() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.totalExposureCents
}

func (m *Manager) RealizedPnLTodayCents() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.realizedPnLToday
}

func (m *Manager) PositionSize(ticker string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.positionSize[ticker]
}

// SetShuttingDown is the orchestrator's global switch (§4.8): once set, C3
// refuses every new reservation while still allowing existing positions to
// be committed and closed out.
func (m *Manager) SetShuttingDown(v bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shuttingDown = v
}

func (m *Manager) IsShuttingDown() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.shuttingDown
}
