package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tempConfigPath(t *testing.T) string {
	t.Helper()
	for _, env := range []string{"OPENAI_API_KEY", "OPENAI_BASE_URL", "TELEGRAM_BOT_TOKEN", "DATABASE_URL"} {
		t.Setenv(env, "")
	}
	return filepath.Join(t.TempDir(), "config.json")
}

func TestLoadWritesDefaults(t *testing.T) {
	path := tempConfigPath(t)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.FileExists(t, path)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 8, cfg.Agent.MaxRounds)
	assert.Equal(t, 2, cfg.Agent.MaxToolFailures)
	assert.InDelta(t, 0.90, cfg.Agent.ScenarioConfidence, 1e-9)
	assert.Equal(t, "JPY", cfg.Company.LocalCurrency)
	assert.Equal(t, "@every 15m", cfg.Reminder.Schedule)
	assert.Equal(t, time.Hour, cfg.ReminderAfter())
	assert.Equal(t, 5*time.Minute, cfg.CatalogTTL())
}

func TestSaveReloadRoundTrip(t *testing.T) {
	path := tempConfigPath(t)

	original := &Config{DataDir: "/tmp/test-data", LogLevel: "debug", DatabaseURL: "postgres://localhost/ledger"}
	original.LLM.Provider = "openai"
	original.LLM.APIKey = "sk-test-round-trip"
	original.LLM.Model = "gpt-4"
	original.LLM.Temperature = 0.5
	original.Agent.MaxRounds = 5
	original.Agent.ScenarioConfidence = 0.8
	original.Company.Code = "acme"
	original.Company.AccountHints = map[string][]string{"expense": {"6100", "6200"}}
	original.Telegram.Token = "bot-token-456"
	require.NoError(t, Save(path, original))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, original.DataDir, loaded.DataDir)
	assert.Equal(t, original.DatabaseURL, loaded.DatabaseURL)
	assert.Equal(t, original.LLM.APIKey, loaded.LLM.APIKey)
	assert.Equal(t, original.LLM.Temperature, loaded.LLM.Temperature)
	assert.Equal(t, 5, loaded.Agent.MaxRounds)
	assert.Equal(t, original.Company.AccountHints, loaded.Company.AccountHints)
	assert.Equal(t, original.Telegram.Token, loaded.Telegram.Token)
}

func TestEnvironmentOverridesFile(t *testing.T) {
	path := tempConfigPath(t)
	cfg := &Config{LogLevel: "info"}
	cfg.LLM.APIKey = "from-file"
	require.NoError(t, Save(path, cfg))

	t.Setenv("OPENAI_API_KEY", "from-env")
	t.Setenv("LEDGERCLAW_AGENT_MAX_ROUNDS", "3")
	t.Setenv("LEDGERCLAW_LOG_LEVEL", "warn")

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", loaded.LLM.APIKey)
	assert.Equal(t, 3, loaded.Agent.MaxRounds)
	assert.Equal(t, "warn", loaded.LogLevel)
}

func TestLoadRejectsOutOfRangeValues(t *testing.T) {
	path := tempConfigPath(t)
	cfg := &Config{LogLevel: "loud"}
	require.NoError(t, Save(path, cfg))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")
}

func TestProfile(t *testing.T) {
	cfg := &Config{}
	cfg.Company.Code = "acme"
	cfg.Company.LocalCurrency = "usd"
	cfg.Company.AccountHints = map[string][]string{"expense": {"6200"}}
	cfg.Company.MaxResidual = 5

	p := cfg.Profile()
	assert.Equal(t, "acme", p.Code)
	assert.Equal(t, "USD", p.LocalCurrency)
	assert.Equal(t, "1000", p.CashAccount)
	assert.Equal(t, 10.0, p.DefaultTaxRate)
	assert.Equal(t, 5.0, p.MaxResidual)
	assert.Equal(t, []string{"6200"}, p.AccountHints["expense"])
}

func TestSaveAtomicWrite(t *testing.T) {
	path := tempConfigPath(t)
	require.NoError(t, Save(path, &Config{LogLevel: "info"}))

	assert.NoFileExists(t, path+".tmp")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var m map[string]any
	assert.NoError(t, json.Unmarshal(data, &m))
}

func TestSaveCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "subdir", "config.json")
	require.NoError(t, Save(path, &Config{LogLevel: "warn"}))
	assert.FileExists(t, path)
}

func TestToMap(t *testing.T) {
	cfg := &Config{DataDir: "/tmp/test", LogLevel: "debug"}
	cfg.LLM.Model = "gpt-4"
	cfg.LLM.MaxTokens = 2000

	m, err := ToMap(cfg)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/test", m["data_dir"])

	llm, ok := m["llm"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "gpt-4", llm["model"])
	assert.Equal(t, float64(2000), llm["max_tokens"])
}

func TestListValues(t *testing.T) {
	cfg := &Config{LogLevel: "info", DatabaseURL: "postgres://u:p@db/ledger"}
	cfg.LLM.APIKey = "sk-secret-key-1234"
	cfg.Telegram.Token = "bot-token-abcd"

	plain, err := ListValues(cfg, false)
	require.NoError(t, err)
	assert.Equal(t, "sk-secret-key-1234", plain["llm.api_key"])
	assert.Equal(t, float64(0), plain["agent.max_rounds"])

	masked, err := ListValues(cfg, true)
	require.NoError(t, err)
	assert.Equal(t, "***1234", masked["llm.api_key"])
	assert.Equal(t, "***abcd", masked["telegram.token"])
	assert.Equal(t, "postgres://u:***@db/ledger", masked["database_url"])
	assert.Equal(t, "info", masked["log_level"])
}

func TestGetValue(t *testing.T) {
	path := tempConfigPath(t)
	cfg := &Config{LogLevel: "debug"}
	cfg.LLM.Model = "gpt-4"
	cfg.Agent.MaxConcurrent = 8
	require.NoError(t, Save(path, cfg))

	v, err := GetValue(path, "llm.model")
	require.NoError(t, err)
	assert.Equal(t, "gpt-4", v)

	v, err = GetValue(path, "agent.max_concurrent")
	require.NoError(t, err)
	assert.Equal(t, float64(8), v)

	_, err = GetValue(path, "nonexistent.key")
	assert.EqualError(t, err, "unknown config key: nonexistent.key")
}

func TestGetValueCreatesDefaults(t *testing.T) {
	path := tempConfigPath(t)

	v, err := GetValue(path, "agent.max_rounds")
	require.NoError(t, err)
	assert.Equal(t, float64(8), v)
}

func TestSetValue(t *testing.T) {
	path := tempConfigPath(t)
	cfg := &Config{LogLevel: "info"}
	cfg.LLM.Provider = "openai"
	require.NoError(t, Save(path, cfg))

	tests := []struct {
		key, value string
		want       any
	}{
		{"log_level", "debug", "debug"},
		{"agent.max_rounds", "12", float64(12)},
		{"reminder.enabled", "false", false},
		{"agent.scenario_confidence", "0.75", 0.75},
		{"custom.setting", "value", "value"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			require.NoError(t, SetValue(path, tt.key, tt.value))
			v, err := GetValue(path, tt.key)
			require.NoError(t, err)
			assert.Equal(t, tt.want, v)
		})
	}

	v, err := GetValue(path, "llm.provider")
	require.NoError(t, err)
	assert.Equal(t, "openai", v, "untouched keys are preserved")
}

func TestSetValueRollsBackInvalidValue(t *testing.T) {
	path := tempConfigPath(t)
	require.NoError(t, Save(path, &Config{LogLevel: "info"}))

	err := SetValue(path, "agent.scenario_confidence", "1.5")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")

	v, err := GetValue(path, "agent.scenario_confidence")
	require.NoError(t, err)
	assert.Equal(t, float64(0), v, "the previous value is restored")
}

func TestSetValueMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "does-not-exist", "config.json")
	assert.Error(t, SetValue(path, "log_level", "debug"))
}
