package utils

import "testing"

func TestValidateTicker(t *testing.T) {
	tests := []struct {
		name    string
		ticker  string
		wantErr bool
	}{
		{"valid simple", "INXD-24DEC31", false},
		{"valid with strike", "INXD-24DEC31-T4750", false},
		{"valid short", "AB", false},
		{"empty", "", true},
		{"lowercase", "inxd-24dec31", true},
		{"too long", string(make([]byte, 65)), true},
		{"special chars", "INXD_24DEC31", true},
		{"spaces", "INXD 24DEC31", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTicker(tt.ticker)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateTicker(%q) error = %v, wantErr %v", tt.ticker, err, tt.wantErr)
			}
		})
	}
}

func TestValidatePriceCents(t *testing.T) {
	tests := []struct {
		name    string
		cents   int
		wantErr bool
	}{
		{"valid low", 1, false},
		{"valid mid", 50, false},
		{"valid high", 99, false},
		{"zero", 0, true},
		{"hundred", 100, true},
		{"negative", -1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePriceCents(tt.cents)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidatePriceCents(%d) error = %v, wantErr %v", tt.cents, err, tt.wantErr)
			}
		})
	}
}

func TestValidateSpreadCents(t *testing.T) {
	tests := []struct {
		name    string
		cents   int
		wantErr bool
	}{
		{"valid small", 1, false},
		{"valid large", 99, false},
		{"zero", 0, true},
		{"negative", -1, true},
		{"too large", 100, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSpreadCents(tt.cents)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateSpreadCents(%d) error = %v, wantErr %v", tt.cents, err, tt.wantErr)
			}
		})
	}
}

func TestValidateOrderSize(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		wantErr bool
	}{
		{"valid 1", 1, false},
		{"valid 100", 100, false},
		{"zero", 0, true},
		{"negative", -1, true},
		{"too large", 100001, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateOrderSize(tt.size)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateOrderSize(%d) error = %v, wantErr %v", tt.size, err, tt.wantErr)
			}
		})
	}
}

func TestValidateEngineConfig(t *testing.T) {
	valid := EngineConfigValidation{
		MaxSpreadCents:        5,
		OrderSize:             5,
		StopLossCents:         2,
		TrailingStopCents:     2,
		MaxPositionPerMarket:  20,
		MaxTotalExposureCents: 100000,
		MaxDailyLossCents:     50000,
	}
	if err := ValidateEngineConfig(valid); err != nil {
		t.Errorf("unexpected error for valid config: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*EngineConfigValidation)
	}{
		{"bad spread", func(c *EngineConfigValidation) { c.MaxSpreadCents = 0 }},
		{"bad order size", func(c *EngineConfigValidation) { c.OrderSize = 0 }},
		{"bad stop loss", func(c *EngineConfigValidation) { c.StopLossCents = 0 }},
		{"bad trailing stop", func(c *EngineConfigValidation) { c.TrailingStopCents = 0 }},
		{"bad position cap", func(c *EngineConfigValidation) { c.MaxPositionPerMarket = 0 }},
		{"bad exposure cap", func(c *EngineConfigValidation) { c.MaxTotalExposureCents = 0 }},
		{"bad daily loss cap", func(c *EngineConfigValidation) { c.MaxDailyLossCents = 0 }},
		{"position cap exceeds exposure cap", func(c *EngineConfigValidation) {
			c.MaxPositionPerMarket = 10000
			c.MaxTotalExposureCents = 1000
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			if err := ValidateEngineConfig(cfg); err == nil {
				t.Errorf("expected an error for mutated config, got nil")
			}
		})
	}
}

func TestValidationErrors(t *testing.T) {
	var errs ValidationErrors

	errs.Add("field1", "error1")
	errs.Add("field2", "error2")

	if !errs.HasErrors() {
		t.Error("ValidationErrors.HasErrors() = false, want true")
	}
	if errs.Error() == "" {
		t.Error("ValidationErrors.Error() should not be empty")
	}
	if len(errs) != 2 {
		t.Errorf("ValidationErrors length = %d, want 2", len(errs))
	}
}

func TestValidationErrorsAddError(t *testing.T) {
	var errs ValidationErrors

	errs.AddError("field1", nil)
	if errs.HasErrors() {
		t.Error("ValidationErrors.AddError(nil) should not add error")
	}

	errs.AddError("field2", ErrInvalidTicker)
	if !errs.HasErrors() {
		t.Error("ValidationErrors.AddError(err) should add error")
	}
}

func TestIsValidTicker(t *testing.T) {
	if !IsValidTicker("INXD-24DEC31") {
		t.Error("IsValidTicker(INXD-24DEC31) = false, want true")
	}
	if IsValidTicker("") {
		t.Error("IsValidTicker('') = true, want false")
	}
}

func TestIsValidPriceCents(t *testing.T) {
	if !IsValidPriceCents(50) {
		t.Error("IsValidPriceCents(50) = false, want true")
	}
	if IsValidPriceCents(0) {
		t.Error("IsValidPriceCents(0) = true, want false")
	}
}

func BenchmarkValidateTicker(b *testing.B) {
	for i := 0; i < b.N; i++ {
		ValidateTicker("INXD-24DEC31-T4750")
	}
}

func BenchmarkValidateEngineConfig(b *testing.B) {
	cfg := EngineConfigValidation{
		MaxSpreadCents:        5,
		OrderSize:             5,
		StopLossCents:         2,
		TrailingStopCents:     2,
		MaxPositionPerMarket:  20,
		MaxTotalExposureCents: 100000,
		MaxDailyLossCents:     50000,
	}
	for i := 0; i < b.N; i++ {
		ValidateEngineConfig(cfg)
	}
}
