// Package logger holds the process-wide zap logger. Init wires it up once
// from config; the rest of the codebase either logs through the package-level
// wrappers or asks New for a component-scoped child.
package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// Config collects everything Init needs. Callers set fields through the
// functional options rather than building a Config directly.
type Config struct {
	Level      string
	FilePath   string
	Format     string
	Version    string
	Component  string
	MaxSize    int
	MaxBackups int
	MaxAge     int
}

type Option func(*Config)

func WithLevel(lvl string) Option      { return func(c *Config) { c.Level = lvl } }
func WithFormat(fmt string) Option     { return func(c *Config) { c.Format = fmt } }
func WithFile(path string) Option      { return func(c *Config) { c.FilePath = path } }
func WithVersion(v string) Option      { return func(c *Config) { c.Version = v } }
func WithComponent(comp string) Option { return func(c *Config) { c.Component = comp } }
func WithRotation(size, backups, age int) Option {
	return func(c *Config) {
		c.MaxSize, c.MaxBackups, c.MaxAge = size, backups, age
	}
}

var (
	root   *zap.Logger
	active bool
	mu     sync.RWMutex
)

// Init builds the global logger. Calling it again replaces the previous one,
// flushing the old file writer first.
func Init(opts ...Option) error {
	cfg := &Config{
		Level:      "info",
		Format:     "console",
		MaxSize:    100,
		MaxBackups: 5,
		MaxAge:     30,
	}
	for _, apply := range opts {
		apply(cfg)
	}

	lvl, err := zap.ParseAtomicLevel(cfg.Level)
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	enc, err := encoderFor(cfg.Format)
	if err != nil {
		return err
	}
	sink, isFile, err := sinkFor(cfg)
	if err != nil {
		return err
	}

	mu.Lock()
	defer mu.Unlock()

	if active && root != nil && isFile {
		_ = root.Sync()
	}

	root = zap.New(zapcore.NewCore(enc, sink, lvl),
		zap.AddStacktrace(zapcore.ErrorLevel),
		zap.Fields(
			zap.String("version", cfg.Version),
			zap.String("component", cfg.Component),
		),
	)
	active = true
	return nil
}

// Shutdown flushes buffered entries and marks the logger inactive. Logging
// after Shutdown is a silent no-op.
func Shutdown() error {
	mu.Lock()
	defer mu.Unlock()

	if !active || root == nil {
		return fmt.Errorf("logger not initialized")
	}
	// Sync on a stdout sink reports a path error on some platforms; that is
	// not a real flush failure.
	if err := root.Sync(); err != nil {
		if _, ok := err.(*os.PathError); !ok {
			return err
		}
	}
	active = false
	return nil
}

// New returns a child logger tagged with the given component name. Before
// Init it returns a nop logger so packages can grab theirs at construction
// time in any order.
func New(component string) *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	if !active {
		return zap.NewNop()
	}
	return root.With(zap.String("component", component))
}

func Debug(msg string, fields ...zap.Field) { log(zapcore.DebugLevel, msg, fields) }
func Info(msg string, fields ...zap.Field)  { log(zapcore.InfoLevel, msg, fields) }
func Warn(msg string, fields ...zap.Field)  { log(zapcore.WarnLevel, msg, fields) }
func Error(msg string, fields ...zap.Field) { log(zapcore.ErrorLevel, msg, fields) }

func log(lvl zapcore.Level, msg string, fields []zap.Field) {
	mu.RLock()
	defer mu.RUnlock()
	if !active {
		return
	}
	if ce := root.Check(lvl, msg); ce != nil {
		ce.Write(fields...)
	}
}

func encoderFor(format string) (zapcore.Encoder, error) {
	switch format {
	case "json":
		return zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()), nil
	case "console":
		cfg := zap.NewDevelopmentEncoderConfig()
		cfg.EncodeTime = zapcore.ISO8601TimeEncoder
		return zapcore.NewConsoleEncoder(cfg), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
}

func sinkFor(cfg *Config) (zapcore.WriteSyncer, bool, error) {
	if cfg.FilePath == "" {
		return zapcore.AddSync(os.Stdout), false, nil
	}
	if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0o750); err != nil {
		return nil, false, fmt.Errorf("create log dir: %w", err)
	}
	sink := zapcore.AddSync(&lumberjack.Logger{
		Filename:   cfg.FilePath,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   true,
	})
	return sink, true, nil
}
