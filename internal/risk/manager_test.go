package risk

import (
	"errors"
	"sync"
	"testing"
	"time"

	"momentum/internal/engineerr"
	"momentum/internal/models"
)

func testConfig() Config {
	return Config{
		MaxPositionPerMarket:  50,
		MaxTotalExposureCents: 500,
		MaxDailyLossCents:     5000,
		CooldownSeconds:       0,
		OrderAckTimeout:       5 * time.Second,
	}
}

func TestCheckAndReserveExposureCapBoundary(t *testing.T) {
	m := New(testConfig())

	// Exactly at cap: admitted.
	res, err := m.CheckAndReserve("A", models.Yes, 5, 50) // 250
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	res2, err := m.CheckAndReserve("B", models.Yes, 5, 50) // total pending 500
	if err != nil {
		t.Fatalf("unexpected error at exact cap: %v", err)
	}

	// One cent over: rejected.
	_, err = m.CheckAndReserve("C", models.Yes, 1, 1)
	if err == nil {
		t.Fatal("expected rejection one cent over cap")
	}
	kind, ok := engineerr.KindOf(err)
	if !ok || kind != engineerr.RiskReject {
		t.Errorf("expected RiskReject kind, got %v", kind)
	}

	m.CommitEntry(res, 5, 50)
	m.CommitEntry(res2, 5, 50)
	if got := m.TotalExposureCents(); got != 500 {
		t.Errorf("TotalExposureCents() = %d, want 500", got)
	}
}

func TestCircuitBreakerBlocksNewEntriesButAllowsExits(t *testing.T) {
	m := New(testConfig())
	res, err := m.CheckAndReserve("A", models.Yes, 5, 50)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	m.CommitEntry(res, 5, 50)

	// Realize a large loss to trip the circuit (P4).
	m.CommitExit("A", 5, 50, -6000)
	if !m.IsCircuitTripped() {
		t.Fatal("expected circuit to be tripped")
	}

	if _, err := m.CheckAndReserve("B", models.Yes, 1, 1); err == nil {
		t.Error("expected new reservation to be rejected once circuit is tripped")
	}

	// Exits are always allowed — CommitExit itself has no gate.
	m.CommitExit("A", 0, 0, 0) // no-op exit, must not panic or error

	m.ResetCircuit()
	if m.IsCircuitTripped() {
		t.Error("expected circuit to clear after reset")
	}
	if _, err := m.CheckAndReserve("B", models.Yes, 1, 1); err != nil {
		t.Errorf("expected reservation to succeed after reset: %v", err)
	}
}

func TestPositionLimitPerMarket(t *testing.T) {
	m := New(testConfig())
	m.cfg.MaxPositionPerMarket = 5

	res, err := m.CheckAndReserve("A", models.Yes, 5, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	m.CommitEntry(res, 5, 1)

	if _, err := m.CheckAndReserve("A", models.Yes, 1, 1); err == nil {
		t.Error("expected position limit rejection")
	}
}

func TestCooldownBlocksImmediateReentry(t *testing.T) {
	cfg := testConfig()
	cfg.CooldownSeconds = time.Hour
	m := New(cfg)

	res, _ := m.CheckAndReserve("A", models.Yes, 1, 1)
	m.CommitEntry(res, 1, 1)
	m.CommitExit("A", 1, 1, 0)

	if _, err := m.CheckAndReserve("A", models.Yes, 1, 1); err == nil {
		t.Error("expected cooldown rejection")
	}
}

func TestReleaseFreesReservedExposure(t *testing.T) {
	m := New(testConfig())
	res, err := m.CheckAndReserve("A", models.Yes, 5, 50)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	m.Release(res)

	if got := m.TotalExposureCents(); got != 0 {
		t.Errorf("TotalExposureCents() = %d, want 0 after release", got)
	}
	// The exposure should be free again for a new reservation.
	if _, err := m.CheckAndReserve("B", models.Yes, 5, 50); err != nil {
		t.Errorf("expected reservation to succeed after release: %v", err)
	}
}

func TestSweepExpiredReleasesStaleReservations(t *testing.T) {
	cfg := testConfig()
	cfg.OrderAckTimeout = time.Millisecond
	m := New(cfg)

	res, _ := m.CheckAndReserve("A", models.Yes, 5, 50)
	time.Sleep(5 * time.Millisecond)
	m.SweepExpired()

	if got := m.TotalExposureCents(); got != 0 {
		t.Errorf("TotalExposureCents() = %d, want 0 after sweep", got)
	}
	// A late commit on an already-swept reservation must be a no-op.
	m.CommitEntry(res, 5, 50)
	if got := m.TotalExposureCents(); got != 0 {
		t.Errorf("TotalExposureCents() = %d, want 0 after late commit on swept reservation", got)
	}
}

// TestConcurrentReservationsLinearize exercises P2: concurrent reservation
// attempts that would together exceed the exposure cap must not both
// succeed.
func TestConcurrentReservationsLinearize(t *testing.T) {
	cfg := testConfig()
	cfg.MaxTotalExposureCents = 1000
	m := New(cfg)

	const attempts = 20
	var wg sync.WaitGroup
	successes := make([]bool, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			_, err := m.CheckAndReserve("SAME", models.Yes, 10, 10) // 100 each
			successes[idx] = err == nil
		}(i)
	}
	wg.Wait()

	var count int
	for _, ok := range successes {
		if ok {
			count++
		}
	}
	if count != 10 {
		t.Errorf("expected exactly 10 successful reservations (1000/100), got %d", count)
	}
}

func TestErrorsAsUnwraps(t *testing.T) {
	m := New(testConfig())
	m.circuitTripped = true
	_, err := m.CheckAndReserve("A", models.Yes, 1, 1)
	if !errors.Is(err, errCircuitTripped) {
		t.Error("expected errors.Is to unwrap to errCircuitTripped")
	}
}
