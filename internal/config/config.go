package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds the full runtime configuration for the engine.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Security SecurityConfig
	Market   MarketConfig
	Strategy StrategyConfig
	Risk     RiskConfig
	Trader   TraderConfig
	Logging  LoggingConfig
}

// ServerConfig controls the ambient /healthz, /metrics, /status HTTP surface.
type ServerConfig struct {
	Port       int
	Host       string
	AdminLocal bool // loaded from ADMIN_LOCAL_ONLY; no component reads it, and /admin/* routes share the main listener
}

// DatabaseConfig is only consulted when Trader.TradeLogBackend == "postgres".
type DatabaseConfig struct {
	Driver   string
	Host     string
	Port     int
	Name     string
	User     string
	Password string
	SSLMode  string
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

func (d DatabaseConfig) DSNWithoutPassword() string {
	return fmt.Sprintf("host=%s port=%d user=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Name, d.SSLMode)
}

// SecurityConfig holds the Kalshi credential and the key used to encrypt it
// at rest (see pkg/crypto).
type SecurityConfig struct {
	APIKey         string
	PrivateKeyPath string
	UseDemo        bool
	EncryptionKey  string // must be exactly 32 bytes, AES-256
}

// MarketConfig governs C7's liquidity classification.
type MarketConfig struct {
	MinVolume       int
	MinOpenInterest int
	MaxSpreadCents  int
	MinBidSize      int
	MinAskSize      int
	MaxMarkets      int
	ScanInterval    time.Duration
}

// StrategyConfig governs C2's momentum detection.
type StrategyConfig struct {
	WindowSeconds           time.Duration
	EntryThresholdCents     int
	ConvergenceThresholdPct float64
	MinSampleInterval       time.Duration
}

// RiskConfig governs C3.
type RiskConfig struct {
	OrderSize             int
	MaxPositionPerMarket  int
	MaxTotalExposureCents int64
	MaxDailyLossCents     int64
	CooldownSeconds       time.Duration
	OrderAckTimeout       time.Duration
}

// TraderConfig governs C5's per-tick behavior.
type TraderConfig struct {
	StopLossCents     int
	TrailingStopCents int
	KalshiFeeCents    int
	OrderTimeout      time.Duration
	TickInterval      time.Duration
	ShutdownGrace     time.Duration
	TradeLogBackend   string // "jsonl" or "postgres"
	TradeLogPath      string
}

type LoggingConfig struct {
	Level       string
	Format      string
	Development bool
}

// Load reads configuration from environment variables, applying the
// defaults the reference strategy used where §6 does not name one, then
// validates ranges.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:       getEnvAsInt("SERVER_PORT", 9090),
			Host:       getEnv("SERVER_HOST", "0.0.0.0"),
			AdminLocal: getEnvAsBool("ADMIN_LOCAL_ONLY", true),
		},
		Database: DatabaseConfig{
			Driver:   getEnv("DB_DRIVER", "postgres"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			Name:     getEnv("DB_NAME", "momentum"),
			User:     getEnv("DB_USER", "user"),
			Password: getEnv("DB_PASSWORD", "password"),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
		},
		Security: SecurityConfig{
			APIKey:         getEnv("KALSHI_API_KEY", ""),
			PrivateKeyPath: getEnv("KALSHI_PRIVATE_KEY_PATH", "private_key.pem"),
			UseDemo:        getEnvAsBool("KALSHI_USE_DEMO", true),
			EncryptionKey:  getEnv("ENCRYPTION_KEY", ""),
		},
		Market: MarketConfig{
			MinVolume:       getEnvAsInt("MIN_VOLUME", 100),
			MinOpenInterest: getEnvAsInt("MIN_OPEN_INTEREST", 50),
			MaxSpreadCents:  getEnvAsInt("MAX_SPREAD_CENTS", 10),
			MinBidSize:      getEnvAsInt("MIN_BID_SIZE", 10),
			MinAskSize:      getEnvAsInt("MIN_ASK_SIZE", 10),
			MaxMarkets:      getEnvAsInt("MAX_MARKETS", 10),
			ScanInterval:    getEnvAsDuration("MARKET_SCAN_INTERVAL", 60*time.Second),
		},
		Strategy: StrategyConfig{
			WindowSeconds:           getEnvAsDuration("MOMENTUM_WINDOW", 5*time.Second),
			EntryThresholdCents:     getEnvAsInt("ENTRY_THRESHOLD_CENTS", 2),
			ConvergenceThresholdPct: getEnvAsFloat("CONVERGENCE_THRESHOLD_PCT", 3.0),
			MinSampleInterval:       getEnvAsDuration("MIN_SAMPLE_INTERVAL", 100*time.Millisecond),
		},
		Risk: RiskConfig{
			OrderSize:             getEnvAsInt("ORDER_SIZE", 5),
			MaxPositionPerMarket:  getEnvAsInt("MAX_POSITION_PER_MARKET", 50),
			MaxTotalExposureCents: int64(getEnvAsFloat("MAX_TOTAL_EXPOSURE", 500.0) * 100),
			MaxDailyLossCents:     int64(getEnvAsFloat("MAX_DAILY_LOSS", 50.0) * 100),
			CooldownSeconds:       getEnvAsDuration("COOLDOWN_SECONDS", 2*time.Second),
			OrderAckTimeout:       getEnvAsDuration("ORDER_ACK_TIMEOUT", 5*time.Second),
		},
		Trader: TraderConfig{
			StopLossCents:     getEnvAsInt("STOP_LOSS_CENTS", 2),
			TrailingStopCents: getEnvAsInt("TRAILING_STOP_CENTS", 2),
			KalshiFeeCents:    getEnvAsInt("KALSHI_FEE_CENTS", 1),
			OrderTimeout:      getEnvAsDuration("ORDER_TIMEOUT", 10*time.Second),
			TickInterval:      getEnvAsDuration("TICK_INTERVAL", 200*time.Millisecond),
			ShutdownGrace:     getEnvAsDuration("SHUTDOWN_GRACE", 30*time.Second),
			TradeLogBackend:   getEnv("TRADE_LOG_BACKEND", "jsonl"),
			TradeLogPath:      getEnv("TRADE_LOG_PATH", "trades.jsonl"),
		},
		Logging: LoggingConfig{
			Level:       getEnv("LOG_LEVEL", "info"),
			Format:      getEnv("LOG_FORMAT", "json"),
			Development: getEnvAsBool("LOG_DEVELOPMENT", false),
		},
	}

	if err := cfg.validateSecurity(); err != nil {
		return nil, err
	}
	if err := cfg.validateRanges(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validateSecurity() error {
	if c.Security.APIKey == "" {
		return fmt.Errorf("KALSHI_API_KEY is required")
	}
	if c.Security.EncryptionKey != "" && len(c.Security.EncryptionKey) != 32 {
		return fmt.Errorf("ENCRYPTION_KEY must be exactly 32 bytes for AES-256")
	}
	return nil
}

func (c *Config) validateRanges() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Market.MaxMarkets < 1 {
		return fmt.Errorf("MAX_MARKETS must be at least 1, got %d", c.Market.MaxMarkets)
	}
	if c.Strategy.ConvergenceThresholdPct <= 0 {
		return fmt.Errorf("CONVERGENCE_THRESHOLD_PCT must be positive, got %v", c.Strategy.ConvergenceThresholdPct)
	}
	if c.Risk.OrderSize < 1 {
		return fmt.Errorf("ORDER_SIZE must be at least 1, got %d", c.Risk.OrderSize)
	}
	if c.Risk.MaxTotalExposureCents <= 0 {
		return fmt.Errorf("MAX_TOTAL_EXPOSURE must be positive, got %d", c.Risk.MaxTotalExposureCents)
	}
	if c.Trader.OrderTimeout <= 0 {
		return fmt.Errorf("ORDER_TIMEOUT must be positive, got %v", c.Trader.OrderTimeout)
	}
	if c.Trader.TradeLogBackend != "jsonl" && c.Trader.TradeLogBackend != "postgres" {
		return fmt.Errorf("TRADE_LOG_BACKEND must be jsonl or postgres, got %q", c.Trader.TradeLogBackend)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
