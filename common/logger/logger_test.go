package logger

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewLogger_Levels(t *testing.T) {
	cases := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		"info":    zapcore.InfoLevel,
		"warn":    zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"verbose": zapcore.InfoLevel,
	}
	for _, format := range []string{"json", "console"} {
		for level, want := range cases {
			l := NewLogger(level, format, "residence-data")
			require.True(t, l.Core().Enabled(want), level)
			if want > zapcore.DebugLevel {
				require.False(t, l.Core().Enabled(want-1), level)
			}
			require.True(t, l.Core().Enabled(zapcore.FatalLevel), level)
		}
	}
}
