// Package logging builds the application logger and holds the event
// helpers used by the ledger and the scheduler.
package logging

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogConfig holds logging configuration.
type LogConfig struct {
	Level      string
	Console    bool
	File       bool
	FilePath   string
	MaxSize    int // megabytes
	MaxBackups int
	MaxAge     int // days
}

// DefaultLogConfig logs info and above to the console and to a rotating
// file under ~/.config/tradekaro/logs.
func DefaultLogConfig() LogConfig {
	home, _ := os.UserHomeDir()
	return LogConfig{
		Level:      "info",
		Console:    true,
		File:       true,
		FilePath:   filepath.Join(home, ".config", "tradekaro", "logs", "tradekaro.log"),
		MaxSize:    100,
		MaxBackups: 7,
		MaxAge:     30,
	}
}

// New builds a logger from cfg and sets the global level. Console output
// goes to stderr so that --json output on stdout stays parseable. A log
// directory that cannot be created disables file output.
func New(cfg LogConfig) zerolog.Logger {
	var writers []io.Writer
	if cfg.Console {
		writers = append(writers, consoleWriter(os.Stderr))
	}
	if w := fileWriter(cfg); w != nil {
		writers = append(writers, w)
	}

	var out io.Writer
	switch len(writers) {
	case 0:
		out = io.Discard
	case 1:
		out = writers[0]
	default:
		out = zerolog.MultiLevelWriter(writers...)
	}

	zerolog.SetGlobalLevel(ParseLevel(cfg.Level))
	return zerolog.New(out).With().Timestamp().Logger()
}

func consoleWriter(f *os.File) zerolog.ConsoleWriter {
	return zerolog.ConsoleWriter{
		Out:        f,
		TimeFormat: time.Kitchen,
		NoColor:    !isatty.IsTerminal(f.Fd()) && !isatty.IsCygwinTerminal(f.Fd()),
	}
}

func fileWriter(cfg LogConfig) io.Writer {
	if !cfg.File || cfg.FilePath == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0755); err != nil {
		return nil
	}
	return &lumberjack.Logger{
		Filename:   cfg.FilePath,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   true,
	}
}

// ParseLevel maps a config string to a zerolog level. Unknown or empty
// values mean info.
func ParseLevel(level string) zerolog.Level {
	level = strings.ToLower(strings.TrimSpace(level))
	if level == "warning" {
		level = "warn"
	}
	l, err := zerolog.ParseLevel(level)
	if err != nil || l == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return l
}

// SetDebugLevel sets the global log level to debug.
func SetDebugLevel() {
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
}

// WithLogger attaches logger to ctx.
func WithLogger(ctx context.Context, logger zerolog.Logger) context.Context {
	return logger.WithContext(ctx)
}

// FromContext returns the logger attached to ctx, or a disabled logger.
func FromContext(ctx context.Context) zerolog.Logger {
	return *zerolog.Ctx(ctx)
}

// WithSymbol adds a symbol to the logger context.
func WithSymbol(logger zerolog.Logger, symbol string) zerolog.Logger {
	return logger.With().Str("symbol", symbol).Logger()
}

// WithOrderID adds an order ID to the logger context.
func WithOrderID(logger zerolog.Logger, orderID string) zerolog.Logger {
	return logger.With().Str("order_id", orderID).Logger()
}

// WithComponent adds a component name to the logger context.
func WithComponent(logger zerolog.Logger, component string) zerolog.Logger {
	return logger.With().Str("component", component).Logger()
}

// LogTrade logs an execution.
func LogTrade(logger zerolog.Logger, symbol, side string, qty int, price, charges float64) {
	l := WithSymbol(logger, symbol)
	l.Info().
		Str("event", "trade").
		Str("side", side).
		Int("quantity", qty).
		Float64("price", price).
		Float64("charges", charges).
		Msg("Trade executed")
}

// LogOrder logs an order status change.
func LogOrder(logger zerolog.Logger, orderID, symbol, side, status string) {
	l := WithOrderID(WithSymbol(logger, symbol), orderID)
	l.Info().
		Str("event", "order").
		Str("side", side).
		Str("status", status).
		Msg("Order update")
}

// LogRejection logs an order that failed validation or a sufficiency check.
func LogRejection(logger zerolog.Logger, symbol, side string, err error) {
	l := WithSymbol(logger, symbol)
	l.Warn().
		Str("event", "rejection").
		Str("side", side).
		Err(err).
		Msg("Order rejected")
}

// LogExpiry logs an option position settled at expiry.
func LogExpiry(logger zerolog.Logger, symbol string, settlement, realized float64) {
	l := WithSymbol(logger, symbol)
	l.Info().
		Str("event", "expiry").
		Float64("settlement", settlement).
		Float64("realized_pnl", realized).
		Msg("Option expired")
}

// LogTick logs one scheduler task run: failures at error, the rest at debug.
func LogTick(logger zerolog.Logger, task string, duration time.Duration, err error) {
	ev := logger.Debug()
	msg := "Task completed"
	if err != nil {
		ev = logger.Error().Err(err)
		msg = "Task failed"
	}
	ev.Str("event", "tick").
		Str("task", task).
		Dur("duration", duration).
		Msg(msg)
}
