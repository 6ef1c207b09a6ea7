package utils

// validator.go - domain input validation.
//
// Validates the pieces of configuration and market data the engine trusts
// least: tickers reported by discovery, prices/sizes fed into orders, and
// the strategy/risk knobs loaded from config at startup.

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	ErrInvalidTicker    = fmt.Errorf("invalid ticker")
	ErrInvalidPrice     = fmt.Errorf("invalid price")
	ErrInvalidSpread    = fmt.Errorf("invalid spread")
	ErrInvalidOrderSize = fmt.Errorf("invalid order size")
)

// tickerPattern matches Kalshi-style event tickers, e.g. INXD-24DEC31-T4750.
var tickerPattern = regexp.MustCompile(`^[A-Z0-9]+(-[A-Z0-9]+)*$`)

// ValidateTicker checks that a market ticker is non-empty, reasonably
// sized, and made only of the characters Kalshi tickers actually use.
func ValidateTicker(ticker string) error {
	if ticker == "" {
		return fmt.Errorf("%w: empty", ErrInvalidTicker)
	}
	if len(ticker) > 64 {
		return fmt.Errorf("%w: too long (%d chars)", ErrInvalidTicker, len(ticker))
	}
	if !tickerPattern.MatchString(ticker) {
		return fmt.Errorf("%w: %q contains characters outside [A-Z0-9-]", ErrInvalidTicker, ticker)
	}
	return nil
}

// ValidatePriceCents checks a binary-market price is within the valid
// [1, 99] cents range; 0 and 100 are not tradeable prices on a YES/NO book.
func ValidatePriceCents(cents int) error {
	if cents < 1 || cents > 99 {
		return fmt.Errorf("%w: %d cents, want [1, 99]", ErrInvalidPrice, cents)
	}
	return nil
}

// ValidateSpreadCents checks a configured max-spread threshold is a
// positive number of cents no wider than the book itself can be.
func ValidateSpreadCents(cents int) error {
	if cents <= 0 || cents > 99 {
		return fmt.Errorf("%w: %d cents, want (0, 99]", ErrInvalidSpread, cents)
	}
	return nil
}

// ValidateOrderSize checks a contract count is a positive, sane quantity.
func ValidateOrderSize(size int) error {
	if size <= 0 {
		return fmt.Errorf("%w: %d, want > 0", ErrInvalidOrderSize, size)
	}
	if size > 100000 {
		return fmt.Errorf("%w: %d exceeds the sanity ceiling", ErrInvalidOrderSize, size)
	}
	return nil
}

// ValidationErrors accumulates field-scoped validation failures so a
// config load can report every problem at once instead of failing fast on
// the first one.
type ValidationErrors []FieldError

// FieldError names the field a validation failure applies to.
type FieldError struct {
	Field   string
	Message string
}

func (e FieldError) String() string { return e.Field + ": " + e.Message }

// Add appends a new field error.
func (errs *ValidationErrors) Add(field, message string) {
	*errs = append(*errs, FieldError{Field: field, Message: message})
}

// AddError appends err's message under field, unless err is nil.
func (errs *ValidationErrors) AddError(field string, err error) {
	if err == nil {
		return
	}
	errs.Add(field, err.Error())
}

// HasErrors reports whether any field failed validation.
func (errs ValidationErrors) HasErrors() bool { return len(errs) > 0 }

// Error implements the error interface, joining every field failure.
func (errs ValidationErrors) Error() string {
	parts := make([]string, len(errs))
	for i, e := range errs {
		parts[i] = e.String()
	}
	return strings.Join(parts, "; ")
}

// EngineConfigValidation mirrors the subset of engine configuration whose
// values must satisfy cross-field invariants before the orchestrator
// starts (§9's decision to validate config eagerly rather than on first
// use).
type EngineConfigValidation struct {
	MaxSpreadCents        int
	OrderSize             int
	StopLossCents         int
	TrailingStopCents     int
	MaxPositionPerMarket  int
	MaxTotalExposureCents int64
	MaxDailyLossCents     int64
}

// ValidateEngineConfig runs every field-level validator and cross-field
// invariant, returning a ValidationErrors describing every failure found.
func ValidateEngineConfig(cfg EngineConfigValidation) error {
	var errs ValidationErrors

	errs.AddError("max_spread_cents", ValidateSpreadCents(cfg.MaxSpreadCents))
	errs.AddError("order_size", ValidateOrderSize(cfg.OrderSize))

	if cfg.StopLossCents <= 0 {
		errs.Add("stop_loss_cents", "must be > 0")
	}
	if cfg.TrailingStopCents <= 0 {
		errs.Add("trailing_stop_cents", "must be > 0")
	}
	if cfg.MaxPositionPerMarket <= 0 {
		errs.Add("max_position_per_market", "must be > 0")
	}
	if cfg.MaxTotalExposureCents <= 0 {
		errs.Add("max_total_exposure_cents", "must be > 0")
	}
	if cfg.MaxDailyLossCents <= 0 {
		errs.Add("max_daily_loss_cents", "must be > 0")
	}
	if int64(cfg.MaxPositionPerMarket)*100 > cfg.MaxTotalExposureCents {
		errs.Add("max_position_per_market", "a single market's max position could alone exceed the total exposure cap")
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}

// IsValidTicker is the boolean convenience form of ValidateTicker.
func IsValidTicker(ticker string) bool { return ValidateTicker(ticker) == nil }

// IsValidPriceCents is the boolean convenience form of ValidatePriceCents.
func IsValidPriceCents(cents int) bool { return ValidatePriceCents(cents) == nil }
