// Package kalshi holds the wire types and client interfaces for talking to
// the exchange: REST order placement/market discovery and the WebSocket
// price feed. Concrete transports live in internal/kalshi (REST) and
// internal/kalshifeed (WS); everything upstream of this package depends only
// on the interfaces in interface.go so a mock transport can stand in for
// tests.
package kalshi

import "time"

// PlaceOrderRequest describes a limit order on one side of a binary market.
type PlaceOrderRequest struct {
	Ticker     string
	Side       string // "yes" or "no"
	Action     string // "buy" or "sell"
	Count      int
	PriceCents int
	ClientID   string
}

// OrderResult is the exchange's acknowledgement of an order, possibly
// already filled (Kalshi frequently fills marketable limit orders
// synchronously on the placement response).
type OrderResult struct {
	OrderID      string
	Status       string // "resting", "filled", "partially_filled", "rejected"
	FilledCount  int
	AvgFillPrice int // cents
}

// MarketSummary is the subset of a market listing needed by the discovery
// loop to classify liquidity.
type MarketSummary struct {
	Ticker          string
	Volume24h       int
	OpenInterest    int
	YesBid          int
	YesAsk          int
	NoBid           int
	NoAsk           int
	CloseTime       time.Time
}

// MessageType enumerates the feed envelope types from §6.
type MessageType string

const (
	MessageSnapshot     MessageType = "orderbook_snapshot"
	MessageDelta        MessageType = "orderbook_delta"
	MessageSubscribed   MessageType = "subscribed"
	MessageError        MessageType = "error"
	MessageDisconnected MessageType = "disconnected"
)

// Message is a decoded feed envelope. Only the fields relevant to Type are
// populated.
type Message struct {
	Type      MessageType
	Ticker    string
	Timestamp time.Time

	// Snapshot: absolute best bid/ask on each side.
	YesBid, YesAsk, NoBid, NoAsk int
	HasYesBid, HasYesAsk, HasNoBid, HasNoAsk bool

	// Delta: signed size change at a price level; the fan-out layer
	// maintains a local best-of-book projection from these.
	Side       string // "yes" or "no"
	IsBid      bool
	PriceCents int
	DeltaSize  int

	// Error.
	ErrorText string
}
