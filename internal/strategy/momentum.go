// Package strategy implements the momentum-convergence detector (C2): a
// pure function over a market's price history that classifies the current
// moment as Bullish, Bearish or Neutral.
package strategy

import (
	"time"

	"momentum/internal/market"
	"momentum/internal/models"
)

// Config mirrors the momentum-relevant subset of the engine configuration.
type Config struct {
	WindowSeconds           time.Duration
	EntryThresholdCents     int
	ConvergenceThresholdPct float64
}

// Analyze evaluates the momentum signal for a market at tNow. It has no
// side effects and is deterministic given identical inputs (P6).
func Analyze(state *market.State, tNow time.Time, cfg Config) models.Signal {
	old, cur, ok := state.WindowAt(tNow, cfg.WindowSeconds)
	if !ok || !old.GapOK || !cur.GapOK || !old.YesMidOK || !cur.YesMidOK {
		return models.Signal{Kind: models.Neutral}
	}

	gapChange := cur.Gap - old.Gap
	yesChange := cur.YesMid - old.YesMid

	oldGapAbs := old.Gap
	if oldGapAbs < 0 {
		oldGapAbs = -oldGapAbs
	}
	denom := oldGapAbs
	if denom < 1 {
		denom = 1
	}

	// gapShrinkPct is a plain percentage (so 3% == 3.0), compared directly
	// against ConvergenceThresholdPct.
	gapShrinkPct := float64(-gapChange) / float64(denom) * 100

	entryThreshold := models.Tenths(cfg.EntryThresholdCents) * 10
	convergent := gapShrinkPct >= cfg.ConvergenceThresholdPct

	sig := models.Signal{GapChange: gapChange, YesChange: yesChange}

	switch {
	case convergent && yesChange >= entryThreshold:
		sig.Kind = models.Bullish
		sig.Confidence = confidence(gapShrinkPct, cfg.ConvergenceThresholdPct)
	case convergent && yesChange <= -entryThreshold:
		sig.Kind = models.Bearish
		sig.Confidence = confidence(gapShrinkPct, cfg.ConvergenceThresholdPct)
	default:
		sig.Kind = models.Neutral
	}

	return sig
}

func confidence(gapShrinkPct, threshold float64) float64 {
	if threshold <= 0 {
		return 0
	}
	c := gapShrinkPct / (2 * threshold)
	if c > 1 {
		c = 1
	}
	if c < 0 {
		c = 0
	}
	return c
}
