package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestConfigForMode(t *testing.T) {
	tests := []struct {
		mode  string
		level string
		want  zapcore.Level
	}{
		{ModeHighPerformance, "", zapcore.WarnLevel},
		{ModeBalanced, "", zapcore.InfoLevel},
		{"", "", zapcore.InfoLevel},
		{ModeDebug, "", zapcore.DebugLevel},
		{ModeBalanced, "error", zapcore.ErrorLevel},
		{"DEBUG", "info", zapcore.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.mode+"/"+tt.level, func(t *testing.T) {
			cfg, err := ConfigForMode(tt.mode, tt.level, false, "")
			require.NoError(t, err)
			assert.Equal(t, tt.want, cfg.Level)
			assert.Empty(t, cfg.OutputPaths)
		})
	}

	_, err := ConfigForMode("verbose", "", false, "")
	assert.Error(t, err)
	_, err = ConfigForMode(ModeBalanced, "loud", false, "")
	assert.Error(t, err)
}

func TestNewWritesToFiles(t *testing.T) {
	dir := t.TempDir()
	log, err := New(ModeDebug, "", true, dir)
	require.NoError(t, err)

	log.Info("hello")
	_ = log.Sync()

	data, err := os.ReadFile(filepath.Join(dir, "info.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"hello"`)
}
