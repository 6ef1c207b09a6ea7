package models

import "time"

// Position is the single open position a market may hold at a time (I1).
type Position struct {
	Ticker            string
	Side              Side
	Size              int
	EntryPrice        PriceCents
	HighestSeen       PriceCents
	StopLossPrice     PriceCents
	TrailingStopPrice PriceCents
	OpenedAt          time.Time
	EntryOrderID      string
}

// Trade is an immutable record of a completed or in-flight round trip,
// appended to by the Trade Tracker (C4).
type Trade struct {
	Ticker         string
	Side           Side
	Size           int
	EntryPrice     PriceCents
	ExitPrice      PriceCents
	OpenedAt       time.Time
	ClosedAt       time.Time
	ExitReason     ExitReason
	RealizedPnL    int64 // cents, size already applied
	Closed         bool
}

// Signal is the output of the momentum strategy (C2).
type Signal struct {
	Kind       SignalKind
	Confidence float64
	GapChange  Tenths
	YesChange  Tenths
}
