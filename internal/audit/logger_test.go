package audit

import (
	"bufio"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestRecord_WritesDatePartitionedJSONL(t *testing.T) {
	dir := t.TempDir()
	auditor, err := NewLogger(dir, true, testLogger())
	require.NoError(t, err)

	require.NoError(t, auditor.Record("recommendation", "req-1", map[string]interface{}{
		"infection_type": "uti",
		"confidence":     0.85,
	}))
	require.NoError(t, auditor.Record("recommendation", "req-2", map[string]interface{}{
		"infection_type": "pneumonia",
	}))

	path := filepath.Join(dir, "audit-"+time.Now().UTC().Format("2006-01-02")+".log")
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var events []Event
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var ev Event
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &ev))
		events = append(events, ev)
	}
	require.NoError(t, scanner.Err())

	require.Len(t, events, 2)
	assert.Equal(t, "req-1", events[0].RequestID)
	assert.Equal(t, "recommendation", events[0].EventType)
	assert.NotEmpty(t, events[0].EventID)
	assert.Equal(t, "uti", events[0].Payload["infection_type"])
	assert.Equal(t, "req-2", events[1].RequestID)
}

func TestRecord_RedactsSensitiveKeys(t *testing.T) {
	dir := t.TempDir()
	auditor, err := NewLogger(dir, true, testLogger())
	require.NoError(t, err)

	require.NoError(t, auditor.Record("evidence_search", "req-3", map[string]interface{}{
		"query":   "pyelonephritis empiric therapy",
		"api_key": "sk-very-secret",
		"source": map[string]interface{}{
			"name":       "IDSA",
			"auth_token": "bearer-abc",
		},
		"attempts": []interface{}{
			map[string]interface{}{"Authorization": "Bearer xyz", "status": 200},
		},
	}))

	data, err := os.ReadFile(filepath.Join(dir, "audit-"+time.Now().UTC().Format("2006-01-02")+".log"))
	require.NoError(t, err)

	assert.NotContains(t, string(data), "sk-very-secret")
	assert.NotContains(t, string(data), "bearer-abc")
	assert.NotContains(t, string(data), "Bearer xyz")
	assert.Contains(t, string(data), "[REDACTED]")
	assert.Contains(t, string(data), "pyelonephritis empiric therapy")
}

func TestRecord_DisabledIsNoOp(t *testing.T) {
	dir := t.TempDir()
	auditor, err := NewLogger(dir, false, testLogger())
	require.NoError(t, err)

	require.NoError(t, auditor.Record("recommendation", "req-4", map[string]interface{}{"a": 1}))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRedactMap_NilPayload(t *testing.T) {
	assert.Nil(t, redactMap(nil))
}

func TestSummarize(t *testing.T) {
	dir := t.TempDir()
	auditor, err := NewLogger(dir, true, testLogger())
	require.NoError(t, err)

	require.NoError(t, auditor.Record("recommendation", "r1", map[string]interface{}{"status": "ok"}))
	require.NoError(t, auditor.Record("recommendation", "r2", map[string]interface{}{"status": "failed"}))
	require.NoError(t, auditor.Record("reload", "r3", nil))

	summary, err := auditor.Summarize(time.Now())
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Total)
	assert.Equal(t, 2, summary.ByType["recommendation"])
	assert.Equal(t, 1, summary.ByType["reload"])
	assert.Equal(t, 1, summary.Failed)
}

func TestSummarize_MissingFileIsEmpty(t *testing.T) {
	auditor, err := NewLogger(t.TempDir(), true, testLogger())
	require.NoError(t, err)

	summary, err := auditor.Summarize(time.Now().AddDate(0, 0, -30))
	require.NoError(t, err)
	assert.Zero(t, summary.Total)
}
