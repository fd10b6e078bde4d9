package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestFileReceivesJSON(t *testing.T) {
	var console bytes.Buffer
	path := filepath.Join(t.TempDir(), "logs", "ledgerclaw.log")

	logger, err := New(Options{Level: "info", File: path, Console: &console})
	require.NoError(t, err)
	logger.Info("voucher committed", zap.String("voucher_no", "V202403-0001"))
	logger.Debug("hidden")
	require.NoError(t, logger.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "voucher committed", entry["message"])
	assert.Equal(t, "V202403-0001", entry["voucher_no"])

	assert.Contains(t, console.String(), "voucher committed")
	assert.NotContains(t, console.String(), "hidden")
}

func TestInvalidLevel(t *testing.T) {
	_, err := New(Options{Level: "chatty", Console: &bytes.Buffer{}})
	assert.Error(t, err)
}
