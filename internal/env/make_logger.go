package env

import (
	zap "go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// MakeLogger builds a production logger at the configured level. It always
// writes to stderr, stdout carries the AGI protocol.
func MakeLogger(config *Config) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(config.LogLevel)); err != nil {
		return nil, err
	}

	logConfig := zap.NewProductionConfig()
	logConfig.Level = zap.NewAtomicLevelAt(level)
	logConfig.Encoding = config.LogEncoding
	logConfig.OutputPaths = []string{"stderr"}
	logConfig.ErrorOutputPaths = []string{"stderr"}

	if config.LogEncoding == "console" {
		logConfig.EncoderConfig = zap.NewDevelopmentEncoderConfig()
	}

	return logConfig.Build()
}
