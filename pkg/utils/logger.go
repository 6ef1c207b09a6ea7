package utils

// logger.go - structured logging setup, wrapping go.uber.org/zap with the
// engine's own field vocabulary (ticker, side, signal kind, state,
// price/pnl in cents) so call sites never construct raw zap.Field values
// for domain concepts.

import (
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogConfig controls InitLogger's output format, level, and destination.
type LogConfig struct {
	Level       string // debug, info, warn, error, fatal (default: info)
	Format      string // json or text (default: json)
	Output      string // file path, or "" for stderr
	Development bool   // enables human-friendly stack traces on Error+
}

// Logger wraps zap.Logger and its SugaredLogger together so callers get
// both the structured and printf-style APIs from one value.
type Logger struct {
	*zap.Logger
	sugar *zap.SugaredLogger
}

func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	case "fatal":
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

// InitLogger builds a Logger from cfg, falling back to stderr if an Output
// path cannot be opened rather than panicking on a bad config value.
func InitLogger(cfg LogConfig) *Logger {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "timestamp"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	if strings.ToLower(cfg.Format) == "text" {
		encoderCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	} else {
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	}

	var sink zapcore.WriteSyncer = zapcore.AddSync(os.Stderr)
	if cfg.Output != "" {
		f, err := os.OpenFile(cfg.Output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err == nil {
			sink = zapcore.AddSync(f)
		}
	}

	core := zapcore.NewCore(encoder, sink, parseLevel(cfg.Level))

	var opts []zap.Option
	if cfg.Development {
		opts = append(opts, zap.Development(), zap.AddStacktrace(zapcore.ErrorLevel))
	}

	zl := zap.New(core, opts...)
	return &Logger{Logger: zl, sugar: zl.Sugar()}
}

// With returns a child Logger with fields attached to every subsequent
// entry.
func (l *Logger) With(fields ...zap.Field) *Logger {
	child := l.Logger.With(fields...)
	return &Logger{Logger: child, sugar: child.Sugar()}
}

func (l *Logger) WithComponent(name string) *Logger { return l.With(Component(name)) }
func (l *Logger) WithTicker(ticker string) *Logger  { return l.With(Ticker(ticker)) }
func (l *Logger) WithSide(side string) *Logger      { return l.With(Side(side)) }

// Sugar returns the underlying printf-style logger.
func (l *Logger) Sugar() *zap.SugaredLogger { return l.sugar }

// ============ Global logger ============

var (
	globalMu     sync.Mutex
	globalLogger *Logger
)

// GetGlobalLogger returns the process-wide logger, lazily initializing it
// with default settings on first use.
func GetGlobalLogger() *Logger {
	globalMu.Lock()
	defer globalMu.Unlock()
	if globalLogger == nil {
		globalLogger = InitLogger(LogConfig{})
	}
	return globalLogger
}

// InitGlobalLogger builds a Logger from cfg and installs it globally.
func InitGlobalLogger(cfg LogConfig) *Logger {
	logger := InitLogger(cfg)
	SetGlobalLogger(logger)
	return logger
}

// SetGlobalLogger installs logger as the process-wide logger.
func SetGlobalLogger(logger *Logger) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalLogger = logger
}

// L is shorthand for GetGlobalLogger, mirroring zap's own convention.
func L() *Logger { return GetGlobalLogger() }

func Debug(msg string, fields ...zap.Field) { L().Debug(msg, fields...) }
func Info(msg string, fields ...zap.Field)  { L().Info(msg, fields...) }
func Warn(msg string, fields ...zap.Field)  { L().Warn(msg, fields...) }
func Error(msg string, fields ...zap.Field) { L().Error(msg, fields...) }

func Debugf(template string, args ...interface{}) { L().sugar.Debugf(template, args...) }
func Infof(template string, args ...interface{})  { L().sugar.Infof(template, args...) }
func Warnf(template string, args ...interface{})  { L().sugar.Warnf(template, args...) }
func Errorf(template string, args ...interface{}) { L().sugar.Errorf(template, args...) }

// ============ Domain field constructors ============

func Ticker(ticker string) zap.Field        { return zap.String("ticker", ticker) }
func Side(side string) zap.Field            { return zap.String("side", side) }
func SignalKind(kind string) zap.Field      { return zap.String("signal_kind", kind) }
func State(state string) zap.Field          { return zap.String("state", state) }
func PriceCents(cents int) zap.Field        { return zap.Int("price_cents", cents) }
func PnLCents(cents int64) zap.Field        { return zap.Int64("pnl_cents", cents) }
func Exposure(cents int64) zap.Field        { return zap.Int64("exposure_cents", cents) }
func OrderID(id string) zap.Field           { return zap.String("order_id", id) }
func Reservation(id uint64) zap.Field       { return zap.Uint64("reservation_id", id) }
func Latency(ms float64) zap.Field          { return zap.Float64("latency_ms", ms) }
func Component(name string) zap.Field       { return zap.String("component", name) }

// ============ Re-exported constructors ============
//
// So call sites can depend on this package alone rather than importing
// zap directly for plain-typed fields.

func String(key, value string) zap.Field        { return zap.String(key, value) }
func Int(key string, value int) zap.Field       { return zap.Int(key, value) }
func Int64(key string, value int64) zap.Field   { return zap.Int64(key, value) }
func Float64(key string, value float64) zap.Field { return zap.Float64(key, value) }
func Bool(key string, value bool) zap.Field     { return zap.Bool(key, value) }
func Err(err error) zap.Field                   { return zap.Error(err) }
func Any(key string, value interface{}) zap.Field { return zap.Any(key, value) }

// fieldsToInterface flattens zap fields into key/value pairs in argument
// order, for callers that want a plain interface{} slice instead of typed
// zap.Field values.
func fieldsToInterface(fields []zap.Field) []interface{} {
	out := make([]interface{}, 0, len(fields)*2)
	for _, f := range fields {
		enc := zapcore.NewMapObjectEncoder()
		f.AddTo(enc)
		out = append(out, f.Key, enc.Fields[f.Key])
	}
	return out
}
