package observability

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"invoice-financing/ledger-backend/internal/config"
)

// NewLogger builds a zap logger: JSON production output by default, the
// console development encoder when cfg.Development is set.
func NewLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	zapCfg := zap.NewProductionConfig()
	if cfg.Development {
		zapCfg = zap.NewDevelopmentConfig()
	}
	if cfg.Level != "" {
		level, err := zapcore.ParseLevel(cfg.Level)
		if err != nil {
			return nil, err
		}
		zapCfg.Level = zap.NewAtomicLevelAt(level)
	}
	return zapCfg.Build()
}
