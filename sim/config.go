// Package sim runs Monte-Carlo experiments over transmission chains: a
// BFER runner sweeping the noise level of a polar-coded BPSK chain and a
// fountain runner sweeping erasure rates over RaptorQ generations. Both
// parallelize across workers that own private chains, so no stage state
// is ever shared.
package sim

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Env carries the process-level knobs read from WAVEKIT_* environment
// variables; command-line flags take precedence where a command exposes
// both.
type Env struct {
	Workers     int    `envconfig:"WORKERS" default:"0"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	LogDev      bool   `envconfig:"LOG_DEV" default:"false"`
	TracePath   string `envconfig:"TRACE" default:""`
	MetricsAddr string `envconfig:"METRICS_ADDR" default:""`
}

// LoadEnv reads the WAVEKIT_* environment.
func LoadEnv() (Env, error) {
	var e Env
	if err := envconfig.Process("WAVEKIT", &e); err != nil {
		return Env{}, fmt.Errorf("failed to load environment: %w", err)
	}
	return e, nil
}

// NewLogger builds the process logger: JSON output at the configured
// level, or a colored console encoder in development mode.
func (e Env) NewLogger() (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(e.LogLevel)); err != nil {
		return nil, fmt.Errorf("bad log level %q: %w", e.LogLevel, err)
	}
	encoding := "json"
	encoder := zap.NewProductionEncoderConfig()
	if e.LogDev {
		encoding = "console"
		encoder = zap.NewDevelopmentEncoderConfig()
		encoder.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	cfg := zap.Config{
		Level:             zap.NewAtomicLevelAt(level),
		Development:       e.LogDev,
		Encoding:          encoding,
		EncoderConfig:     encoder,
		OutputPaths:       []string{"stderr"},
		ErrorOutputPaths:  []string{"stderr"},
		DisableStacktrace: !e.LogDev,
	}
	return cfg.Build()
}
