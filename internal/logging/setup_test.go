package logging

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input   string
		want    slog.Level
		wantErr bool
	}{
		{input: "", want: slog.LevelInfo},
		{input: "debug", want: slog.LevelDebug},
		{input: "INFO", want: slog.LevelInfo},
		{input: "warning", want: slog.LevelWarn},
		{input: "error", want: slog.LevelError},
		{input: "verbose", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseLevel(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNew(t *testing.T) {
	t.Run("json format", func(t *testing.T) {
		var buf bytes.Buffer
		logger, err := New(Options{Level: "info", Format: FormatJSON, Output: &buf})
		require.NoError(t, err)

		logger.Debug("hidden")
		logger.Info("visible", Namespace("primaza-system"))

		assert.NotContains(t, buf.String(), "hidden")
		assert.Contains(t, buf.String(), `"msg":"visible"`)
		assert.Contains(t, buf.String(), `"namespace":"primaza-system"`)
	})

	t.Run("text format", func(t *testing.T) {
		var buf bytes.Buffer
		logger, err := New(Options{Level: "debug", Output: &buf})
		require.NoError(t, err)

		logger.Debug("shown")
		assert.Contains(t, buf.String(), "msg=shown")
	})

	t.Run("invalid format", func(t *testing.T) {
		_, err := New(Options{Format: "xml", Output: &bytes.Buffer{}})
		assert.Error(t, err)
	})
}
