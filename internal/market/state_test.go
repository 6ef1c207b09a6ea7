package market

import (
	"testing"
	"time"

	"momentum/internal/models"
)

func sampleAt(t time.Time, yesBid, yesAsk, noBid, noAsk models.PriceCents) models.Sample {
	return models.Sample{
		Timestamp: t,
		Yes:       models.BookSide{Bid: yesBid, Ask: yesAsk},
		No:        models.BookSide{Bid: noBid, Ask: noAsk},
	}
}

func TestInsertDropsOutOfOrder(t *testing.T) {
	s := New("TICK", 5*time.Second, 100*time.Millisecond)
	base := time.Now()

	if !s.Insert(sampleAt(base, 29, 31, 59, 61)) {
		t.Fatal("expected first insert to succeed")
	}
	if !s.Insert(sampleAt(base.Add(time.Second), 30, 32, 58, 60)) {
		t.Fatal("expected second insert to succeed")
	}
	if s.Insert(sampleAt(base.Add(500*time.Millisecond), 30, 32, 58, 60)) {
		t.Error("expected out-of-order insert to be dropped")
	}
	if s.Insert(sampleAt(base.Add(time.Second), 30, 32, 58, 60)) {
		t.Error("expected duplicate timestamp to be dropped")
	}
	if s.Len() != 2 {
		t.Errorf("Len() = %d, want 2", s.Len())
	}
}

func TestInsertRejectsInadmissible(t *testing.T) {
	s := New("TICK", 5*time.Second, 100*time.Millisecond)
	empty := models.Sample{Timestamp: time.Now()}
	if s.Insert(empty) {
		t.Error("expected inadmissible sample to be rejected")
	}
}

func TestEvictionRespectsCapacity(t *testing.T) {
	s := New("TICK", 1*time.Second, 100*time.Millisecond)
	base := time.Now()
	cap := len(s.buf)

	for i := 0; i < cap+5; i++ {
		s.Insert(sampleAt(base.Add(time.Duration(i)*10*time.Millisecond), 29, 31, 59, 61))
	}
	if s.Len() != cap {
		t.Errorf("Len() = %d, want capacity %d", s.Len(), cap)
	}
}

func TestWindowAtInsufficientDataBeforeFullWindow(t *testing.T) {
	s := New("TICK", 5*time.Second, 100*time.Millisecond)
	base := time.Now()

	s.Insert(sampleAt(base, 29, 31, 59, 61))
	s.Insert(sampleAt(base.Add(time.Second), 30, 32, 58, 60))

	_, _, ok := s.WindowAt(base.Add(time.Second), 5*time.Second)
	if ok {
		t.Error("expected insufficient data when history is shorter than the window")
	}
}

func TestWindowAtSucceedsOnceWindowIsSpanned(t *testing.T) {
	s := New("TICK", 5*time.Second, 100*time.Millisecond)
	base := time.Now()

	s.Insert(sampleAt(base, 29, 31, 59, 61))
	s.Insert(sampleAt(base.Add(5*time.Second), 34, 36, 57, 59))
	s.Insert(sampleAt(base.Add(10*time.Second), 40, 42, 55, 57))

	oldest, latest, ok := s.WindowAt(base.Add(10*time.Second), 5*time.Second)
	if !ok {
		t.Fatal("expected sufficient data")
	}
	if !oldest.Timestamp.Equal(base.Add(5 * time.Second)) {
		t.Errorf("oldest timestamp = %v, want %v", oldest.Timestamp, base.Add(5*time.Second))
	}
	if !latest.Timestamp.Equal(base.Add(10 * time.Second)) {
		t.Errorf("latest timestamp = %v, want %v", latest.Timestamp, base.Add(10*time.Second))
	}
}

func TestDeriveGapAndMid(t *testing.T) {
	s := sampleAt(time.Now(), 29, 31, 59, 61)
	d := s.Derive()
	if !d.GapOK {
		t.Fatal("expected gap to be computable")
	}
	// yes_mid = 30.0, no_mid = 60.0, gap = 100 - 30 - 60 = 10.0 -> 100 tenths
	if d.YesMid != 300 {
		t.Errorf("YesMid = %d, want 300", d.YesMid)
	}
	if d.NoMid != 600 {
		t.Errorf("NoMid = %d, want 600", d.NoMid)
	}
	if d.Gap != 100 {
		t.Errorf("Gap = %d, want 100", d.Gap)
	}
}
