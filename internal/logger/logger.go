package logger

import (
	"fmt"

	"go.uber.org/zap"
)

// New builds the production logger at the given verbosity. Format selects
// the encoder: "json" (the default) or "console" for interactive runs.
// Logs go to stderr so they never interleave with the report on stdout.
func New(verbosity, format string) (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	level, err := zap.ParseAtomicLevel(verbosity)
	if err != nil {
		return nil, err
	}
	config.Level = level
	switch format {
	case "", "json":
	case "console":
		config.Encoding = "console"
		config.EncoderConfig = zap.NewDevelopmentEncoderConfig()
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
	config.DisableStacktrace = level.Level() > zap.DebugLevel
	return config.Build()
}
