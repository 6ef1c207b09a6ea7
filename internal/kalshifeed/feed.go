package kalshifeed

import (
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"momentum/internal/kalshi"
	"momentum/internal/metrics"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type subscribeFrame struct {
	Cmd     string   `json:"cmd"`
	Params  params   `json:"params"`
}

type params struct {
	Channels []string `json:"channels"`
	Tickers  []string `json:"market_tickers"`
}

// wireMessage is the raw envelope shape decoded off the wire before being
// converted into a kalshi.Message.
type wireMessage struct {
	Type string `json:"type"`
	Msg  struct {
		MarketTicker string `json:"market_ticker"`
		Yes          [][2]int `json:"yes"` // [price_cents, size]
		No           [][2]int `json:"no"`
		Side         string   `json:"side"`
		Price        int      `json:"price"`
		Delta        int      `json:"delta"`
		IsBid        bool     `json:"is_bid"`
	} `json:"msg"`
}

// Feed is the concrete kalshi.Feed implementation: a reconnecting WebSocket
// client that decodes raw frames into kalshi.Message and republishes them on
// a bounded channel.
type Feed struct {
	mgr *reconnectManager
	out chan kalshi.Message
	log *zap.Logger
}

func NewFeed(url string, cfg ReconnectConfig, log *zap.Logger) (*Feed, error) {
	f := &Feed{
		mgr: newReconnectManager(url, cfg, log),
		out: make(chan kalshi.Message, 4096),
		log: log,
	}
	f.mgr.setOnMessage(f.handleRaw)
	f.mgr.setOnExhausted(f.handleExhausted)
	if err := f.mgr.connect(); err != nil {
		return nil, err
	}
	return f, nil
}

// handleExhausted fires once the reconnect manager gives up after
// cfg.MaxRetries failed attempts, surfacing the persistent disconnect to
// whoever reads Messages() as a MessageDisconnected envelope.
func (f *Feed) handleExhausted() {
	f.log.Error("feed reconnect attempts exhausted, giving up")
	f.publish(kalshi.Message{Type: kalshi.MessageDisconnected, Timestamp: time.Now()})
}

func (f *Feed) Messages() <-chan kalshi.Message { return f.out }

func (f *Feed) Subscribe(tickers []string) error {
	frame := subscribeFrame{Cmd: "subscribe", Params: params{
		Channels: []string{"orderbook_delta"},
		Tickers:  tickers,
	}}
	f.mgr.addSubscription(frame)
	return f.mgr.send(frame)
}

func (f *Feed) Unsubscribe(tickers []string) error {
	set := make(map[string]bool, len(tickers))
	for _, t := range tickers {
		set[t] = true
	}
	f.mgr.removeSubscription(func(s interface{}) bool {
		sub, ok := s.(subscribeFrame)
		if !ok || len(sub.Params.Tickers) != len(tickers) {
			return false
		}
		for _, t := range sub.Params.Tickers {
			if !set[t] {
				return false
			}
		}
		return true
	})
	frame := subscribeFrame{Cmd: "unsubscribe", Params: params{
		Channels: []string{"orderbook_delta"},
		Tickers:  tickers,
	}}
	return f.mgr.send(frame)
}

func (f *Feed) Close() error {
	close(f.out)
	return f.mgr.close()
}

func (f *Feed) handleRaw(raw []byte) {
	var wm wireMessage
	if err := json.Unmarshal(raw, &wm); err != nil {
		f.log.Warn("feed decode error", zap.Error(err))
		metrics.FeedErrorsTotal.WithLabelValues("decode").Inc()
		f.publish(kalshi.Message{Type: kalshi.MessageError, ErrorText: fmt.Sprintf("decode: %v", err)})
		return
	}

	now := time.Now()
	switch wm.Type {
	case "orderbook_snapshot":
		msg := kalshi.Message{Type: kalshi.MessageSnapshot, Ticker: wm.Msg.MarketTicker, Timestamp: now}
		if len(wm.Msg.Yes) > 0 {
			msg.HasYesBid, msg.YesBid = true, wm.Msg.Yes[0][0]
		}
		if len(wm.Msg.No) > 0 {
			msg.HasNoBid, msg.NoBid = true, wm.Msg.No[0][0]
		}
		f.publish(msg)
	case "orderbook_delta":
		f.publish(kalshi.Message{
			Type:       kalshi.MessageDelta,
			Ticker:     wm.Msg.MarketTicker,
			Timestamp:  now,
			Side:       wm.Msg.Side,
			IsBid:      wm.Msg.IsBid,
			PriceCents: wm.Msg.Price,
			DeltaSize:  wm.Msg.Delta,
		})
	case "subscribed":
		f.publish(kalshi.Message{Type: kalshi.MessageSubscribed, Timestamp: now})
	case "error":
		f.publish(kalshi.Message{Type: kalshi.MessageError, Timestamp: now, ErrorText: string(raw)})
	}
}

func (f *Feed) publish(msg kalshi.Message) {
	select {
	case f.out <- msg:
	default:
		f.log.Warn("feed output channel full, dropping message", zap.String("ticker", msg.Ticker))
	}
}
