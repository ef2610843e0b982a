package logger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readRecords(t *testing.T, path string) []map[string]interface{} {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var records []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		var rec map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &rec))
		records = append(records, rec)
	}
	return records
}

func TestIsolatedLoggerWritesStructuredRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stream.log")
	l := NewIsolatedLogger(path)

	l.Debug("Session", "Frame received", map[string]interface{}{"type": "stream"})
	l.Warn("Session", "Dropping malformed frame", map[string]interface{}{"error": "invalid json"})
	l.Info("Session", "Connected", nil)
	require.NoError(t, l.Close())

	records := readRecords(t, path)
	require.Len(t, records, 3)

	assert.Equal(t, "DEBUG", records[0]["level"])
	assert.Equal(t, "Session", records[0]["module"])
	assert.Equal(t, "Frame received", records[0]["message"])
	assert.Equal(t, map[string]interface{}{"type": "stream"}, records[0]["details"])
	assert.Contains(t, records[0]["caller"], "zap_logger_test.go")

	assert.Equal(t, "invalid json", records[1]["error"])

	_, hasDetails := records[2]["details"]
	assert.False(t, hasDetails)
}

func TestZapLoggerFileSkipsDebug(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	l := NewZapLogger(path, true)

	l.Debug("ChatService", "noise", nil)
	l.Error("ChatService", "Turn failed", map[string]interface{}{"error": "stream interrupted"})
	require.NoError(t, l.Close())

	records := readRecords(t, path)
	require.Len(t, records, 1)
	assert.Equal(t, "ERROR", records[0]["level"])
}

func TestNopLoggerIsSafe(t *testing.T) {
	l := NewNopLogger()
	l.Error("Any", "ignored", map[string]interface{}{"error": "x"})
	assert.NoError(t, l.Sync())
	assert.NoError(t, l.Close())
}
