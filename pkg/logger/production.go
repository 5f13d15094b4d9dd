package logger

import (
	"fmt"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log modes selectable through LOG_MODE
const (
	ModeHighPerformance = "high-performance"
	ModeBalanced        = "balanced"
	ModeDebug           = "debug"
)

// Config provides optimized logging configuration
type Config struct {
	// Performance settings
	DisableCaller     bool // Disable caller information for performance
	DisableStacktrace bool // Disable stacktraces for performance
	SamplingEnabled   bool // Enable sampling to reduce log volume

	// Sampling configuration
	SamplingInitial    int // Initial sampling rate
	SamplingThereafter int // Subsequent sampling rate

	// Output settings
	OutputPaths      []string // Output file paths
	ErrorOutputPaths []string // Error output file paths

	// Level settings
	Level zapcore.Level // Minimum log level
}

// NewLogger creates a highly optimized logger
func NewLogger(config Config) (*zap.Logger, error) {
	// Set defaults
	if config.SamplingInitial == 0 {
		config.SamplingInitial = 100
	}
	if config.SamplingThereafter == 0 {
		config.SamplingThereafter = 100
	}
	if len(config.OutputPaths) == 0 {
		config.OutputPaths = []string{"stdout"}
	}
	if len(config.ErrorOutputPaths) == 0 {
		config.ErrorOutputPaths = []string{"stderr"}
	}

	zapConfig := zap.NewProductionConfig()

	zapConfig.EncoderConfig.TimeKey = "ts"
	zapConfig.EncoderConfig.LevelKey = "level"
	zapConfig.EncoderConfig.MessageKey = "msg"
	zapConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zapConfig.EncoderConfig.EncodeDuration = zapcore.StringDurationEncoder

	// Disable expensive features if requested
	if config.DisableCaller {
		zapConfig.EncoderConfig.CallerKey = ""
	}
	if config.DisableStacktrace {
		zapConfig.EncoderConfig.StacktraceKey = ""
	}

	if config.SamplingEnabled {
		zapConfig.Sampling = &zap.SamplingConfig{
			Initial:    config.SamplingInitial,
			Thereafter: config.SamplingThereafter,
		}
	} else {
		zapConfig.Sampling = nil
	}

	zapConfig.Level = zap.NewAtomicLevelAt(config.Level)
	zapConfig.OutputPaths = config.OutputPaths
	zapConfig.ErrorOutputPaths = config.ErrorOutputPaths

	return zapConfig.Build(
		zap.AddStacktrace(zapcore.DPanicLevel), // Only stacktrace for critical errors
	)
}

// GetHighPerformanceConfig returns a configuration optimized for maximum performance
func GetHighPerformanceConfig() Config {
	return Config{
		DisableCaller:      true,
		DisableStacktrace:  true,
		SamplingEnabled:    true,
		SamplingInitial:    1000, // Sample 1 in 1000 initially
		SamplingThereafter: 1000,
		Level:              zapcore.WarnLevel, // Only warnings and errors
	}
}

// GetBalancedConfig returns a configuration balancing performance and observability
func GetBalancedConfig() Config {
	return Config{
		DisableCaller:      false,
		DisableStacktrace:  true,
		SamplingEnabled:    true,
		SamplingInitial:    100,
		SamplingThereafter: 100,
		Level:              zapcore.InfoLevel,
	}
}

// GetDebugConfig returns a configuration for development/debugging
func GetDebugConfig() Config {
	return Config{
		DisableCaller:     false,
		DisableStacktrace: false,
		SamplingEnabled:   false, // No sampling in debug mode
		Level:             zapcore.DebugLevel,
	}
}

// ConfigForMode returns the preset for mode, with level overriding the
// preset level when non-empty. Output goes to logDir when toFile is set.
func ConfigForMode(mode, level string, toFile bool, logDir string) (Config, error) {
	var config Config
	switch strings.ToLower(mode) {
	case ModeHighPerformance:
		config = GetHighPerformanceConfig()
	case ModeBalanced, "":
		config = GetBalancedConfig()
	case ModeDebug:
		config = GetDebugConfig()
	default:
		return Config{}, fmt.Errorf("unknown log mode %q", mode)
	}

	if level != "" {
		lvl, err := zapcore.ParseLevel(level)
		if err != nil {
			return Config{}, fmt.Errorf("invalid log level %q: %w", level, err)
		}
		config.Level = lvl
	}

	if toFile {
		config.OutputPaths = []string{filepath.Join(logDir, "info.log")}
		config.ErrorOutputPaths = []string{filepath.Join(logDir, "error.log")}
	}
	return config, nil
}

// New builds the process logger from LOG_MODE / LOG_LEVEL style settings
func New(mode, level string, toFile bool, logDir string) (*zap.Logger, error) {
	config, err := ConfigForMode(mode, level, toFile, logDir)
	if err != nil {
		return nil, err
	}
	return NewLogger(config)
}

// NewDefaultLogger creates a logger with balanced configuration on stdout
func NewDefaultLogger() (*zap.Logger, error) {
	return NewLogger(GetBalancedConfig())
}
