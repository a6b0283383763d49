package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		level   string
		env     string
		wantErr bool
	}{
		{name: "dev debug", level: "debug", env: "dev"},
		{name: "prod warn", level: "warn", env: "prod"},
		{name: "bad level", level: "loud", env: "dev", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log, err := New(tt.level, tt.env)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, log)
			_ = log.Sync()
		})
	}
}

func TestNewHonoursLevel(t *testing.T) {
	log, err := New("warn", "prod")
	require.NoError(t, err)
	assert.False(t, log.Core().Enabled(zap.InfoLevel))
	assert.True(t, log.Core().Enabled(zap.ErrorLevel))
}
