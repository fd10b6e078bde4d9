package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlatten(t *testing.T) {
	got := Flatten(map[string]any{
		"log_level": "info",
		"llm":       map[string]any{"model": "gpt-4o-mini", "max_tokens": 4096.0},
		"company": map[string]any{
			"code":          "1000",
			"account_hints": map[string]any{"cash": []any{"1100"}},
		},
		"http": map[string]any{},
	})
	assert.Equal(t, map[string]any{
		"log_level":                  "info",
		"llm.model":                  "gpt-4o-mini",
		"llm.max_tokens":             4096.0,
		"company.code":               "1000",
		"company.account_hints.cash": []any{"1100"},
	}, got)
}

func TestUnflattenRestoresSections(t *testing.T) {
	original := map[string]any{
		"data_dir":     "/home/test/.ledgerclaw",
		"database_url": "postgres://localhost/ledger",
		"agent":        map[string]any{"max_rounds": 8.0, "max_tool_failures": 2.0},
		"reminder":     map[string]any{"enabled": true, "schedule": "@every 15m"},
	}
	assert.Equal(t, original, Unflatten(Flatten(original)))
}

func TestUnflattenReplacesScalarWithSection(t *testing.T) {
	got := Unflatten(map[string]any{"llm": "openai", "llm.model": "gpt-4o"})
	llm, ok := got["llm"].(map[string]any)
	require.True(t, ok, "llm should become a section, got %T", got["llm"])
	assert.Equal(t, "gpt-4o", llm["model"])
}

func TestSortedKeys(t *testing.T) {
	assert.Equal(t, []string{"a", "agent.max_rounds", "b"},
		SortedKeys(map[string]any{"b": 1, "agent.max_rounds": 2, "a": 3}))
	assert.Empty(t, SortedKeys(nil))
}

func TestMaskSecrets(t *testing.T) {
	tests := []struct {
		key, value, want string
	}{
		{"llm.api_key", "sk-test123456", "***3456"},
		{"llm.api_key", "abcd", "***abcd"},
		{"llm.api_key", "ab", "***ab"},
		{"llm.api_key", "", ""},
		{"telegram.token", "123456:ABCdefGHIjkl", "***Ijkl"},
		{"database_url", "postgres://u:p@db/ledger", "postgres://u:***@db/ledger"},
		{"database_url", "postgres://localhost/ledger", "postgres://localhost/ledger"},
		{"database_url", "host=db user=u password=secret dbname=ledger", "host=db user=u password=*** dbname=ledger"},
		{"database_url", "opaque-dsn-value", "***alue"},
		{"llm.model", "gpt-4o", "gpt-4o"},
	}
	for _, tt := range tests {
		t.Run(tt.key+"/"+tt.value, func(t *testing.T) {
			got := MaskSecrets(map[string]any{tt.key: tt.value, "log_level": "info"})
			assert.Equal(t, tt.want, got[tt.key])
			assert.Equal(t, "info", got["log_level"])
		})
	}
}

func TestIsSecretKey(t *testing.T) {
	assert.True(t, IsSecretKey("llm.api_key"))
	assert.True(t, IsSecretKey("database_url"))
	assert.False(t, IsSecretKey("llm.model"))
}
