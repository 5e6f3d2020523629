package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"autoposter/internal/config"
)

// Options describes logger construction parameters.
type Options struct {
	Level            string
	Format           string
	OutputPaths      []string
	ErrorOutputPaths []string
	Development      bool
}

// New constructs a zap logger using the provided options.
func New(opts Options) (*zap.Logger, error) {
	level, err := parseLevel(opts.Level)
	if err != nil {
		return nil, err
	}

	format := strings.ToLower(strings.TrimSpace(opts.Format))
	if format == "" {
		format = "console"
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderCfg.EncodeDuration = zapcore.StringDurationEncoder

	var encoder zapcore.Encoder
	switch format {
	case "json":
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	case "console":
		encoderCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		encoderCfg.ConsoleSeparator = " "
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	default:
		return nil, fmt.Errorf("log format: unsupported value %q", opts.Format)
	}

	sink, _, err := zap.Open(dedupe(defaultSlice(opts.OutputPaths, []string{"stdout"}))...)
	if err != nil {
		return nil, fmt.Errorf("open log outputs: %w", err)
	}
	errSink, _, err := zap.Open(dedupe(defaultSlice(opts.ErrorOutputPaths, []string{"stderr"}))...)
	if err != nil {
		return nil, fmt.Errorf("open error outputs: %w", err)
	}

	zopts := []zap.Option{zap.ErrorOutput(errSink)}
	if opts.Development || level.Level() <= zapcore.DebugLevel {
		zopts = append(zopts, zap.AddCaller())
	}
	if opts.Development {
		zopts = append(zopts, zap.Development())
	}

	core := zapcore.NewCore(encoder, sink, level)
	return zap.New(core, zopts...), nil
}

// NewFromConfig creates a logger using application config defaults. When
// logPath is non-empty the file receives a copy of every line.
func NewFromConfig(cfg *config.Config, logPath string) (*zap.Logger, error) {
	if cfg == nil {
		return New(Options{Level: "info", Format: "console"})
	}

	outputPaths := []string{"stdout"}
	errorOutputs := []string{"stderr"}
	if strings.TrimSpace(logPath) != "" {
		if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
			return nil, fmt.Errorf("ensure log directory: %w", err)
		}
		outputPaths = append(outputPaths, logPath)
		errorOutputs = append(errorOutputs, logPath)
	}

	return New(Options{
		Level:            cfg.Logging.Level,
		Format:           cfg.Logging.Format,
		OutputPaths:      outputPaths,
		ErrorOutputPaths: errorOutputs,
	})
}

// NewNop returns a logger that discards everything.
func NewNop() *zap.Logger {
	return zap.NewNop()
}

// NewComponentLogger tags a logger with a component name. A nil base yields a no-op logger.
func NewComponentLogger(base *zap.Logger, component string) *zap.Logger {
	if base == nil {
		base = zap.NewNop()
	}
	return base.With(zap.String(FieldComponent, component))
}

func parseLevel(level string) (zap.AtomicLevel, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zap.NewAtomicLevelAt(zapcore.DebugLevel), nil
	case "warn", "warning":
		return zap.NewAtomicLevelAt(zapcore.WarnLevel), nil
	case "error":
		return zap.NewAtomicLevelAt(zapcore.ErrorLevel), nil
	case "info", "":
		return zap.NewAtomicLevelAt(zapcore.InfoLevel), nil
	default:
		return zap.AtomicLevel{}, fmt.Errorf("log level: unsupported value %q", level)
	}
}

func defaultSlice(value []string, fallback []string) []string {
	if len(value) == 0 {
		return append([]string(nil), fallback...)
	}
	return append([]string(nil), value...)
}

func dedupe(paths []string) []string {
	seen := make(map[string]struct{}, len(paths))
	out := make([]string, 0, len(paths))
	for _, path := range paths {
		trimmed := strings.TrimSpace(path)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		out = append(out, trimmed)
	}
	return out
}
