package fanout

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"momentum/internal/engineerr"
	"momentum/internal/kalshi"
	"momentum/internal/models"
)

type fakeFeed struct {
	msgs     chan kalshi.Message
	subs     [][]string
	unsubs   [][]string
	mu       sync.Mutex
}

func newFakeFeed() *fakeFeed { return &fakeFeed{msgs: make(chan kalshi.Message, 32)} }

func (f *fakeFeed) Subscribe(tickers []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := append([]string(nil), tickers...)
	f.subs = append(f.subs, cp)
	return nil
}
func (f *fakeFeed) Unsubscribe(tickers []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := append([]string(nil), tickers...)
	f.unsubs = append(f.unsubs, cp)
	return nil
}
func (f *fakeFeed) Messages() <-chan kalshi.Message { return f.msgs }
func (f *fakeFeed) Close() error                    { close(f.msgs); return nil }

type recorder struct {
	mu      sync.Mutex
	samples []models.Sample
}

func (r *recorder) OnSample(s models.Sample) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samples = append(r.samples, s)
}
func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.samples)
}
func (r *recorder) last() models.Sample {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.samples[len(r.samples)-1]
}

func TestAttachQueuesSubscribeAndFlushesOnDebounce(t *testing.T) {
	feed := newFakeFeed()
	r := NewRouter(feed, 20*time.Millisecond, zap.NewNop())
	rec := &recorder{}
	r.Attach("TICK-24", rec)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		feed.mu.Lock()
		n := len(feed.subs)
		feed.mu.Unlock()
		if n > 0 {
			break
		}
		time.Sleep(time.Millisecond)
	}

	feed.mu.Lock()
	defer feed.mu.Unlock()
	if len(feed.subs) == 0 || feed.subs[0][0] != "TICK-24" {
		t.Fatalf("expected a subscribe batch containing TICK-24, got %+v", feed.subs)
	}
}

func TestSnapshotThenDeltaProducesDerivedAsk(t *testing.T) {
	feed := newFakeFeed()
	r := NewRouter(feed, time.Hour, zap.NewNop()) // debounce irrelevant here
	rec := &recorder{}
	r.Attach("TICK-24", rec)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	feed.msgs <- kalshi.Message{
		Type: kalshi.MessageSnapshot, Ticker: "TICK-24",
		HasYesBid: true, YesBid: 29, HasNoBid: true, NoBid: 59,
	}
	waitForCount(t, rec, 1)

	s := rec.last()
	if s.Yes.Bid != 29 || s.Yes.Ask != 41 { // 100 - no_bid(59) = 41
		t.Errorf("Yes = %+v, want Bid=29 Ask=41", s.Yes)
	}
	if s.No.Bid != 59 || s.No.Ask != 71 { // 100 - yes_bid(29) = 71
		t.Errorf("No = %+v, want Bid=59 Ask=71", s.No)
	}

	feed.msgs <- kalshi.Message{
		Type: kalshi.MessageDelta, Ticker: "TICK-24",
		Side: "yes", PriceCents: 34, DeltaSize: 5, IsBid: true,
	}
	waitForCount(t, rec, 2)

	s = rec.last()
	if s.Yes.Bid != 34 {
		t.Errorf("Yes.Bid = %d, want 34 (higher level should win)", s.Yes.Bid)
	}
}

func TestDetachStopsRouting(t *testing.T) {
	feed := newFakeFeed()
	r := NewRouter(feed, time.Hour, zap.NewNop())
	rec := &recorder{}
	r.Attach("TICK-24", rec)
	r.Detach("TICK-24")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	feed.msgs <- kalshi.Message{Type: kalshi.MessageSnapshot, Ticker: "TICK-24", HasYesBid: true, YesBid: 29}
	time.Sleep(20 * time.Millisecond)

	if rec.count() != 0 {
		t.Errorf("expected no samples after detach, got %d", rec.count())
	}
}

func TestPersistentDisconnectSurfacesOnErrChannel(t *testing.T) {
	feed := newFakeFeed()
	r := NewRouter(feed, time.Hour, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	feed.msgs <- kalshi.Message{Type: kalshi.MessageDisconnected}

	select {
	case err := <-r.Err():
		if kind, ok := engineerr.KindOf(err); !ok || kind != engineerr.Unrecoverable {
			t.Errorf("KindOf() = %v, %v, want Unrecoverable", kind, ok)
		}
	case <-time.After(time.Second):
		t.Fatal("expected an error on Err() after MessageDisconnected")
	}
}

func waitForCount(t *testing.T, rec *recorder, n int) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if rec.count() >= n {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("count = %d after timeout, want >= %d", rec.count(), n)
}
