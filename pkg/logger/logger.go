package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds the process-wide zap logger. Production mode logs JSON at Info,
// anything else gets the human-readable development encoder at Debug.
func New(env string) *zap.Logger {
	if env == "production" {
		cfg := zap.NewProductionConfig()
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		l, err := cfg.Build()
		if err != nil {
			panic(err)
		}
		return l
	}

	l, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	return l
}
