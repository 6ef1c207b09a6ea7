package models

import "time"

// PriceCents is an integer price in cents, valid in [1,99] for a live quote.
type PriceCents int

// Tenths is a fixed-point value scaled by 10 (tenths of a cent), used for
// mids and gaps so successive samples never drift from rounding.
type Tenths int64

func CentsToTenths(p PriceCents) Tenths { return Tenths(p) * 10 }

// BookSide is the best bid/ask for one contract (Yes or No) at one instant.
// A zero PriceCents means the level is absent.
type BookSide struct {
	Bid PriceCents
	Ask PriceCents
}

func (b BookSide) HasBid() bool { return b.Bid > 0 }
func (b BookSide) HasAsk() bool { return b.Ask > 0 }

// Mid returns the fixed-point mid of this side. Falls back to whichever of
// bid/ask is present if only one is quoted.
func (b BookSide) Mid() (Tenths, bool) {
	switch {
	case b.HasBid() && b.HasAsk():
		return (CentsToTenths(b.Bid) + CentsToTenths(b.Ask)) / 2, true
	case b.HasBid():
		return CentsToTenths(b.Bid), true
	case b.HasAsk():
		return CentsToTenths(b.Ask), true
	default:
		return 0, false
	}
}

func (b BookSide) SpreadCents() (PriceCents, bool) {
	if !b.HasBid() || !b.HasAsk() {
		return 0, false
	}
	return b.Ask - b.Bid, true
}

// Sample is one admissible order-book observation for a market, as defined
// by §3's data model: at least one side must be quoted.
type Sample struct {
	Timestamp time.Time
	Yes       BookSide
	No        BookSide
}

// Admissible reports whether the sample carries enough information to be
// inserted into a market's price history.
func (s Sample) Admissible() bool {
	_, yesOK := s.Yes.Mid()
	_, noOK := s.No.Mid()
	return yesOK || noOK
}

// Derived computes yes_mid, no_mid and gap in tenths of a cent. When a side
// has no quote, its mid is reported as (0, false) and does not enter the gap
// calculation on its own — gap needs both.
type Derived struct {
	Timestamp time.Time
	YesMid    Tenths
	YesMidOK  bool
	NoMid     Tenths
	NoMidOK   bool
	Gap       Tenths
	GapOK     bool
}

func (s Sample) Derive() Derived {
	d := Derived{Timestamp: s.Timestamp}
	d.YesMid, d.YesMidOK = s.Yes.Mid()
	d.NoMid, d.NoMidOK = s.No.Mid()
	if d.YesMidOK && d.NoMidOK {
		d.Gap = Tenths(1000) - d.YesMid - d.NoMid // 100 cents == 1000 tenths
		d.GapOK = true
	}
	return d
}
