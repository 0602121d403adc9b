package observability

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"invoice-financing/ledger-backend/internal/config"
)

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger(config.LoggingConfig{Level: "warn"})
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, logger.Core().Enabled(zapcore.WarnLevel))

	dev, err := NewLogger(config.LoggingConfig{Development: true})
	require.NoError(t, err)
	assert.True(t, dev.Core().Enabled(zapcore.DebugLevel))

	_, err = NewLogger(config.LoggingConfig{Level: "loud"})
	assert.Error(t, err)
}
