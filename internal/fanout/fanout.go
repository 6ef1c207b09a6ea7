// Package fanout implements the Price Fan-out (C6): a ticker -> trader
// routing table fed by the raw WebSocket feed, maintaining a per-ticker
// best-of-book projection and handing each update to the market as an
// admissible Sample.
package fanout

import (
	"context"
	"fmt"
	"hash/fnv"
	"runtime"
	"sync"
	"time"

	"go.uber.org/zap"

	"momentum/internal/engineerr"
	"momentum/internal/kalshi"
	"momentum/internal/models"
)

// Receiver is anything that can absorb price samples for one ticker; C5's
// Trader.OnSample satisfies it.
type Receiver interface {
	OnSample(models.Sample)
}

const (
	minShards = 4
	maxShards = 64
)

func numShards() int {
	n := runtime.NumCPU()
	if n < minShards {
		return minShards
	}
	if n > maxShards {
		return maxShards
	}
	return n
}

// projection tracks best-of-book for one ticker from bid-only deltas on
// each side; the corresponding ask is always derived as 100 minus the
// other side's best bid, since Yes and No are complementary contracts.
type projection struct {
	yesBids map[int]int // price cents -> qty
	noBids  map[int]int
}

func newProjection() *projection {
	return &projection{yesBids: make(map[int]int), noBids: make(map[int]int)}
}

func bestBid(levels map[int]int) (int, bool) {
	best, found := 0, false
	for price, qty := range levels {
		if qty > 0 && price > best {
			best, found = price, true
		}
	}
	return best, found
}

func (p *projection) applyDelta(side string, price, delta int) {
	levels := p.yesBids
	if side == "no" {
		levels = p.noBids
	}
	levels[price] += delta
	if levels[price] <= 0 {
		delete(levels, price)
	}
}

func (p *projection) resetSnapshot(msg kalshi.Message) {
	p.yesBids = make(map[int]int)
	p.noBids = make(map[int]int)
	if msg.HasYesBid {
		p.yesBids[msg.YesBid] = 1
	}
	if msg.HasNoBid {
		p.noBids[msg.NoBid] = 1
	}
}

func (p *projection) sample(ts time.Time) models.Sample {
	yesBid, yesOK := bestBid(p.yesBids)
	noBid, noOK := bestBid(p.noBids)

	s := models.Sample{Timestamp: ts}
	if yesOK {
		s.Yes.Bid = models.PriceCents(yesBid)
	}
	if noOK {
		s.No.Bid = models.PriceCents(noBid)
	}
	if noOK {
		s.Yes.Ask = models.PriceCents(100 - noBid)
	}
	if yesOK {
		s.No.Ask = models.PriceCents(100 - yesBid)
	}
	return s
}

type shard struct {
	mu        sync.Mutex
	receivers map[string]Receiver
	books     map[string]*projection
}

func newShard() *shard {
	return &shard{receivers: make(map[string]Receiver), books: make(map[string]*projection)}
}

// Router is the concrete C6 implementation: a sharded routing table plus a
// debounced subscription batcher sitting in front of a kalshi.Feed.
type Router struct {
	shards []*shard
	feed   kalshi.Feed
	log    *zap.Logger

	debounce time.Duration

	pendingMu   sync.Mutex
	pendingSubs map[string]bool
	pendingUns  map[string]bool

	errCh chan error
}

func NewRouter(feed kalshi.Feed, debounce time.Duration, log *zap.Logger) *Router {
	n := numShards()
	r := &Router{
		shards:      make([]*shard, n),
		feed:        feed,
		log:         log,
		debounce:    debounce,
		pendingSubs: make(map[string]bool),
		pendingUns:  make(map[string]bool),
		errCh:       make(chan error, 1),
	}
	for i := range r.shards {
		r.shards[i] = newShard()
	}
	return r
}

// Err reports unrecoverable feed conditions, currently a persistent
// disconnect once the feed's reconnect budget is exhausted (§7).
func (r *Router) Err() <-chan error { return r.errCh }

func (r *Router) shardFor(ticker string) *shard {
	h := fnv.New32a()
	h.Write([]byte(ticker))
	return r.shards[h.Sum32()%uint32(len(r.shards))]
}

// Attach registers interest in a ticker and queues it for subscription.
func (r *Router) Attach(ticker string, recv Receiver) {
	sh := r.shardFor(ticker)
	sh.mu.Lock()
	sh.receivers[ticker] = recv
	sh.books[ticker] = newProjection()
	sh.mu.Unlock()

	r.pendingMu.Lock()
	delete(r.pendingUns, ticker)
	r.pendingSubs[ticker] = true
	r.pendingMu.Unlock()
}

// Detach removes a ticker and queues it for unsubscription.
func (r *Router) Detach(ticker string) {
	sh := r.shardFor(ticker)
	sh.mu.Lock()
	delete(sh.receivers, ticker)
	delete(sh.books, ticker)
	sh.mu.Unlock()

	r.pendingMu.Lock()
	delete(r.pendingSubs, ticker)
	r.pendingUns[ticker] = true
	r.pendingMu.Unlock()
}

// Run drains the feed's message channel and flushes debounced subscription
// batches until ctx is cancelled.
func (r *Router) Run(ctx context.Context) {
	ticker := time.NewTicker(r.debounce)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.flushSubscriptions()
		case msg, ok := <-r.feed.Messages():
			if !ok {
				return
			}
			r.dispatch(msg)
		}
	}
}

func (r *Router) flushSubscriptions() {
	r.pendingMu.Lock()
	subs := make([]string, 0, len(r.pendingSubs))
	for t := range r.pendingSubs {
		subs = append(subs, t)
	}
	uns := make([]string, 0, len(r.pendingUns))
	for t := range r.pendingUns {
		uns = append(uns, t)
	}
	r.pendingSubs = make(map[string]bool)
	r.pendingUns = make(map[string]bool)
	r.pendingMu.Unlock()

	if len(subs) > 0 {
		if err := r.feed.Subscribe(subs); err != nil {
			r.log.Warn("subscribe batch failed", zap.Strings("tickers", subs), zap.Error(err))
		}
	}
	if len(uns) > 0 {
		if err := r.feed.Unsubscribe(uns); err != nil {
			r.log.Warn("unsubscribe batch failed", zap.Strings("tickers", uns), zap.Error(err))
		}
	}
}

func (r *Router) dispatch(msg kalshi.Message) {
	switch msg.Type {
	case kalshi.MessageSnapshot:
		r.applyAndRoute(msg.Ticker, msg.Timestamp, func(p *projection) { p.resetSnapshot(msg) })
	case kalshi.MessageDelta:
		r.applyAndRoute(msg.Ticker, msg.Timestamp, func(p *projection) {
			if msg.IsBid {
				p.applyDelta(msg.Side, msg.PriceCents, msg.DeltaSize)
			}
		})
	case kalshi.MessageError:
		r.log.Warn("feed reported error", zap.String("text", msg.ErrorText))
	case kalshi.MessageDisconnected:
		r.log.Error("feed persistently disconnected")
		err := engineerr.Unrecoverablef("fanout.dispatch", "", fmt.Errorf("feed reconnect exhausted"))
		select {
		case r.errCh <- err:
		default:
		}
	}
}

func (r *Router) applyAndRoute(ticker string, ts time.Time, mutate func(*projection)) {
	sh := r.shardFor(ticker)
	sh.mu.Lock()
	book, ok := sh.books[ticker]
	if !ok {
		sh.mu.Unlock()
		return // not attached (any more); drop
	}
	mutate(book)
	sample := book.sample(ts)
	recv := sh.receivers[ticker]
	sh.mu.Unlock()

	if recv != nil {
		recv.OnSample(sample)
	}
}
