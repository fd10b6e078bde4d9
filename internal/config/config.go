// Package config loads the daemon configuration from a JSON file, .env and
// the environment.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/user/ledgerclaw/internal/ledger"
)

// EnvPrefix prefixes every environment override, e.g. LEDGERCLAW_AGENT_MAX_ROUNDS.
const EnvPrefix = "LEDGERCLAW"

type Config struct {
	DataDir     string `json:"data_dir" mapstructure:"data_dir"`
	LogLevel    string `json:"log_level" mapstructure:"log_level" validate:"omitempty,oneof=debug info warn error"`
	LogFile     string `json:"log_file" mapstructure:"log_file"`
	DatabaseURL string `json:"database_url" mapstructure:"database_url"`
	LLM         struct {
		Provider         string  `json:"provider" mapstructure:"provider"`
		BaseURL          string  `json:"base_url" mapstructure:"base_url"`
		APIKey           string  `json:"api_key" mapstructure:"api_key"`
		Model            string  `json:"model" mapstructure:"model"`
		MaxTokens        int     `json:"max_tokens" mapstructure:"max_tokens"`
		Temperature      float32 `json:"temperature" mapstructure:"temperature"`
		MaxContextTokens int     `json:"max_context_tokens" mapstructure:"max_context_tokens"`
		OutputReserve    int     `json:"output_reserve" mapstructure:"output_reserve"`
	} `json:"llm" mapstructure:"llm"`
	Agent struct {
		MaxRounds          int     `json:"max_rounds" mapstructure:"max_rounds" validate:"gte=0"`
		MaxToolFailures    int     `json:"max_tool_failures" mapstructure:"max_tool_failures" validate:"gte=0"`
		ScenarioConfidence float64 `json:"scenario_confidence" mapstructure:"scenario_confidence" validate:"gte=0,lte=1"`
		MaxConcurrent      int     `json:"max_concurrent" mapstructure:"max_concurrent" validate:"gte=0"`
		IntakeParallelism  int     `json:"intake_parallelism" mapstructure:"intake_parallelism" validate:"gte=0"`
		HistoryLimit       int     `json:"history_limit" mapstructure:"history_limit" validate:"gte=0"`
	} `json:"agent" mapstructure:"agent"`
	Company struct {
		Code            string              `json:"code" mapstructure:"code"`
		LocalCurrency   string              `json:"local_currency" mapstructure:"local_currency"`
		Currencies      []string            `json:"currencies" mapstructure:"currencies"`
		CashAccount     string              `json:"cash_account" mapstructure:"cash_account"`
		InputTaxAccount string              `json:"input_tax_account" mapstructure:"input_tax_account"`
		DefaultTaxRate  float64             `json:"default_tax_rate" mapstructure:"default_tax_rate" validate:"gte=0,lte=100"`
		MaxResidual     float64             `json:"max_residual" mapstructure:"max_residual" validate:"gte=0"`
		AccountHints    map[string][]string `json:"account_hints" mapstructure:"account_hints"`
		// SeedFile is a masterdata seed; empty uses the built-in chart.
		SeedFile string `json:"seed_file" mapstructure:"seed_file"`
	} `json:"company" mapstructure:"company"`
	Scenarios struct {
		Dir      string `json:"dir" mapstructure:"dir"`
		CacheTTL string `json:"cache_ttl" mapstructure:"cache_ttl"`
	} `json:"scenarios" mapstructure:"scenarios"`
	HTTP struct {
		Addr string `json:"addr" mapstructure:"addr"`
	} `json:"http" mapstructure:"http"`
	Telegram struct {
		Token string `json:"token" mapstructure:"token"`
	} `json:"telegram" mapstructure:"telegram"`
	Reminder struct {
		Enabled  bool   `json:"enabled" mapstructure:"enabled"`
		Schedule string `json:"schedule" mapstructure:"schedule"`
		After    string `json:"after" mapstructure:"after"`
	} `json:"reminder" mapstructure:"reminder"`
	Tracing struct {
		Enabled      bool    `json:"enabled" mapstructure:"enabled"`
		OTLPEndpoint string  `json:"otlp_endpoint" mapstructure:"otlp_endpoint"`
		SampleRate   float64 `json:"sample_rate" mapstructure:"sample_rate" validate:"gte=0,lte=1"`
	} `json:"tracing" mapstructure:"tracing"`
}

// defaults are applied before the file and the environment.
func defaults(home string) map[string]any {
	return map[string]any{
		"data_dir":                  filepath.Join(home, ".ledgerclaw"),
		"log_level":                 "info",
		"log_file":                  "",
		"database_url":              "",
		"llm.provider":              "openai",
		"llm.base_url":              "https://api.openai.com/v1",
		"llm.api_key":               "",
		"llm.model":                 "gpt-4o-mini",
		"llm.max_tokens":            2000,
		"llm.temperature":           0.2,
		"llm.max_context_tokens":    128000,
		"llm.output_reserve":        4096,
		"agent.max_rounds":          8,
		"agent.max_tool_failures":   2,
		"agent.scenario_confidence": 0.90,
		"agent.max_concurrent":      2,
		"agent.intake_parallelism":  4,
		"agent.history_limit":       100,
		"company.code":              "default",
		"company.local_currency":    "JPY",
		"company.currencies":        []string{"JPY", "USD", "EUR", "CNY"},
		"company.cash_account":      "1000",
		"company.input_tax_account": "1500",
		"company.default_tax_rate":  10.0,
		"company.max_residual":      1.0,
		"company.account_hints":     map[string][]string{},
		"company.seed_file":         "",
		"scenarios.dir":             "",
		"scenarios.cache_ttl":       "5m",
		"http.addr":                 "127.0.0.1:8420",
		"telegram.token":            "",
		"reminder.enabled":          true,
		"reminder.schedule":         "@every 15m",
		"reminder.after":            "1h",
		"tracing.enabled":           false,
		"tracing.otlp_endpoint":     "",
		"tracing.sample_rate":       1.0,
	}
}

// aliases are well-known environment variables honored next to the
// LEDGERCLAW_ ones.
var aliases = map[string]string{
	"llm.api_key":    "OPENAI_API_KEY",
	"llm.base_url":   "OPENAI_BASE_URL",
	"telegram.token": "TELEGRAM_BOT_TOKEN",
	"database_url":   "DATABASE_URL",
}

// Load reads path, writing a default file when it does not exist. A .env
// file in the working directory is loaded first; environment variables take
// precedence over the file.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	for key, value := range defaults(os.Getenv("HOME")) {
		v.SetDefault(key, value)
	}
	v.SetConfigFile(path)
	v.SetConfigType("json")

	if _, err := os.Stat(path); err == nil {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else if os.IsNotExist(err) {
		var def Config
		if err := v.Unmarshal(&def); err != nil {
			return nil, fmt.Errorf("decode defaults: %w", err)
		}
		if err := Save(path, &def); err != nil {
			return nil, err
		}
	} else {
		return nil, err
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range aliases {
		if err := v.BindEnv(key, EnvPrefix+"_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env); err != nil {
			return nil, fmt.Errorf("bind %s: %w", env, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Profile is the company profile the consistency engine is built with.
func (c *Config) Profile() ledger.CompanyProfile {
	p := ledger.DefaultProfile()
	if c.Company.Code != "" {
		p.Code = c.Company.Code
	}
	if c.Company.LocalCurrency != "" {
		p.LocalCurrency = strings.ToUpper(c.Company.LocalCurrency)
	}
	if len(c.Company.Currencies) > 0 {
		p.Currencies = append([]string(nil), c.Company.Currencies...)
	}
	if c.Company.CashAccount != "" {
		p.CashAccount = c.Company.CashAccount
	}
	if c.Company.InputTaxAccount != "" {
		p.InputTaxAccount = c.Company.InputTaxAccount
	}
	if c.Company.DefaultTaxRate > 0 {
		p.DefaultTaxRate = c.Company.DefaultTaxRate
	}
	if c.Company.MaxResidual > 0 {
		p.MaxResidual = c.Company.MaxResidual
	}
	if len(c.Company.AccountHints) > 0 {
		p.AccountHints = make(map[string][]string, len(c.Company.AccountHints))
		for k, codes := range c.Company.AccountHints {
			p.AccountHints[k] = append([]string(nil), codes...)
		}
	}
	return p
}

// CatalogTTL is the scenario catalog cache lifetime.
func (c *Config) CatalogTTL() time.Duration {
	return parseDuration(c.Scenarios.CacheTTL, 5*time.Minute)
}

// ReminderAfter is how long a question waits before it is reminded.
func (c *Config) ReminderAfter() time.Duration {
	return parseDuration(c.Reminder.After, time.Hour)
}

func parseDuration(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// Save writes cfg to path atomically, creating the directory.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return writeFile(path, append(data, '\n'))
}

func writeFile(path string, data []byte) error {
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename config: %w", err)
	}
	return nil
}
