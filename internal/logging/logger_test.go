package logging_test

import (
	"testing"

	"github.com/omochice/chatstream/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name      string
		cfg       logging.Config
		wantLevel zapcore.Level
		wantErr   bool
	}{
		{"default", logging.DefaultConfig(), zapcore.InfoLevel, false},
		{"debug development", logging.Config{Level: "debug", Development: true}, zapcore.DebugLevel, false},
		{"empty level", logging.Config{}, zapcore.InfoLevel, false},
		{"invalid level", logging.Config{Level: "loud"}, zapcore.InfoLevel, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := logging.New(tt.cfg)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, logger.Core().Enabled(tt.wantLevel))
			assert.False(t, logger.Core().Enabled(tt.wantLevel-1))
		})
	}
}
