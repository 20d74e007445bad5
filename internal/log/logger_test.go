package log

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestCoreWritesJsonToFile(t *testing.T) {
	var file, console bytes.Buffer
	logger := zap.New(newCore(zapcore.AddSync(&file), zapcore.AddSync(&console), zap.InfoLevel))

	logger.With(zap.String("asset", "0xabc/1")).Info("Marketplace listing")
	logger.Debug("dropped below level")
	require.NoError(t, logger.Sync())

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(file.Bytes(), &entry))
	require.Equal(t, "Marketplace listing", entry["message"])
	require.Equal(t, "0xabc/1", entry["asset"])
	require.Contains(t, entry, "time")

	require.Contains(t, console.String(), "Marketplace listing")
	require.NotContains(t, console.String(), "dropped below level")
}
