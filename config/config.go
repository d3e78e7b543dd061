// Package config loads engine configuration from environment variables,
// layered over an optional config.json base file, matching the precedence
// rule the rest of the pack uses: file values first, environment overrides
// always win.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config is the root configuration object for a running engine process.
type Config struct {
	Upstream        UpstreamConfig        `json:"upstream"`
	Analysis        AnalysisDefaultConfig `json:"analysis"`
	Rulebook        RulebookConfig        `json:"rulebook"`
	MoneyManagement MoneyManagementConfig `json:"money_management"`
	Lot             LotConfig             `json:"lot"`
	Persistence     PersistenceConfig     `json:"persistence"`
	Broadcast       BroadcastConfig       `json:"broadcast"`
	Scanner         ScannerConfig         `json:"scanner"`
	Logging         LoggingConfig         `json:"logging"`
	Server          ServerConfig          `json:"server"`
	Auth            AuthConfig            `json:"auth"`
	Vault           VaultConfig           `json:"vault"`
	Redis           RedisConfig           `json:"redis"`
}

// UpstreamConfig describes how to reach the market-data/brokerage
// WebSocket endpoint.
type UpstreamConfig struct {
	URL                string `json:"url"`
	Token              string `json:"token"` // bearer token for authorize; may come from Vault instead
	HistoryCount       int    `json:"history_count"`
	HistoryTimeoutSecs int    `json:"history_timeout_secs"` // collective timeout across all symbols
	BuyThrottleMillis  int    `json:"buy_throttle_millis"`  // delay between consecutive buy dispatches
}

// AnalysisDefaultConfig seeds AnalysisOptions for symbols that don't carry
// a per-symbol override.
type AnalysisDefaultConfig struct {
	ShortMAType    string  `json:"short_ma_type"`
	ShortMAPeriod  int     `json:"short_ma_period"`
	MediumMAType   string  `json:"medium_ma_type"`
	MediumMAPeriod int     `json:"medium_ma_period"`
	LongMAType     string  `json:"long_ma_type"`
	LongMAPeriod   int     `json:"long_ma_period"`
	ATRPeriod      int     `json:"atr_period"`
	BBPeriod       int     `json:"bb_period"`
	CIPeriod       int     `json:"ci_period"`
	ADXPeriod      int     `json:"adx_period"`
	RSIPeriod      int     `json:"rsi_period"`
	ATRMultiplier  float64 `json:"atr_multiplier"`
	FlatThreshold  float64 `json:"flat_threshold"`
	MACDNarrow     float64 `json:"macd_narrow"`
}

// RulebookConfig points at the external CALL/PUT rulebook file.
type RulebookConfig struct {
	Path string `json:"path"`
}

// MoneyManagementConfig selects and parameterizes the stake progression.
type MoneyManagementConfig struct {
	Mode         string  `json:"mode"` // "fix" or "martingale"
	InitialStake float64 `json:"initial_stake"`
	Currency     string  `json:"currency"`
	Duration     int     `json:"duration"`
	DurationUnit string  `json:"duration_unit"`
}

// LotConfig holds the stop-condition targets for the active lot.
type LotConfig struct {
	TargetProfit float64 `json:"target_profit"` // fix mode
	TargetWin    int     `json:"target_win"`    // martingale mode
	LogDir       string  `json:"log_dir"`
	HistoryDir   string  `json:"history_dir"`
}

// PersistenceConfig configures the document sink.
type PersistenceConfig struct {
	PostgresDSN    string `json:"postgres_dsn"`
	WriteTimeoutMS int    `json:"write_timeout_ms"`
}

// BroadcastConfig configures the browser push hub.
type BroadcastConfig struct {
	BufferSize int `json:"buffer_size"`
}

// ScannerConfig configures the periodic CI/ADX ranking task.
type ScannerConfig struct {
	Enabled      bool   `json:"enabled"`
	CronSchedule string `json:"cron_schedule"`
	MaxSymbols   int    `json:"max_symbols"`
}

// LoggingConfig configures the zerolog root logger.
type LoggingConfig struct {
	Level  string `json:"level"`
	Pretty bool   `json:"pretty"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Port           int    `json:"port"`
	AllowedOrigins string `json:"allowed_origins"`
}

// AuthConfig configures JWT issuance and the single operator login for
// the HTTP surface.
type AuthConfig struct {
	JWTSecret           string        `json:"jwt_secret"`
	AccessTokenDuration time.Duration `json:"access_token_duration"`
	Username            string        `json:"username"`
	Password            string        `json:"password"` // hashed at startup, never stored
}

// VaultConfig configures HashiCorp Vault-backed secret storage.
type VaultConfig struct {
	Enabled    bool   `json:"enabled"`
	Address    string `json:"address"`
	Token      string `json:"token"`
	MountPath  string `json:"mount_path"`
	SecretPath string `json:"secret_path"`
}

// RedisConfig configures the session-snapshot cache.
type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// Load reads config.json if present, then applies environment overrides.
func Load() (*Config, error) {
	cfg, err := loadFromFile("config.json")
	if err != nil {
		cfg = &Config{}
	}
	applyEnvOverrides(cfg)
	return cfg, nil
}

func loadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	cfg.Upstream.URL = getEnvOrDefault("UPSTREAM_URL", cfg.Upstream.URL)
	cfg.Upstream.Token = getEnvOrDefault("UPSTREAM_TOKEN", cfg.Upstream.Token)
	cfg.Upstream.HistoryCount = getEnvIntOrDefault("UPSTREAM_HISTORY_COUNT", orInt(cfg.Upstream.HistoryCount, 1000))
	cfg.Upstream.HistoryTimeoutSecs = getEnvIntOrDefault("UPSTREAM_HISTORY_TIMEOUT_SECS", orInt(cfg.Upstream.HistoryTimeoutSecs, 30))
	cfg.Upstream.BuyThrottleMillis = getEnvIntOrDefault("UPSTREAM_BUY_THROTTLE_MS", orInt(cfg.Upstream.BuyThrottleMillis, 300))

	if cfg.Analysis.ShortMAType == "" {
		cfg.Analysis = AnalysisDefaultConfig{
			ShortMAType: "EMA", ShortMAPeriod: 5,
			MediumMAType: "EMA", MediumMAPeriod: 13,
			LongMAType: "EMA", LongMAPeriod: 34,
			ATRPeriod: 14, BBPeriod: 20, CIPeriod: 14, ADXPeriod: 14, RSIPeriod: 14,
			ATRMultiplier: 2.0, FlatThreshold: 0.0005, MACDNarrow: 0.0002,
		}
	}

	cfg.Rulebook.Path = getEnvOrDefault("RULEBOOK_PATH", orString(cfg.Rulebook.Path, "rulebook.json"))

	cfg.MoneyManagement.Mode = getEnvOrDefault("MONEY_MANAGEMENT_MODE", orString(cfg.MoneyManagement.Mode, "fix"))
	cfg.MoneyManagement.Currency = getEnvOrDefault("MONEY_MANAGEMENT_CURRENCY", orString(cfg.MoneyManagement.Currency, "USD"))
	cfg.MoneyManagement.DurationUnit = getEnvOrDefault("MONEY_MANAGEMENT_DURATION_UNIT", orString(cfg.MoneyManagement.DurationUnit, "m"))
	cfg.MoneyManagement.Duration = getEnvIntOrDefault("MONEY_MANAGEMENT_DURATION", orInt(cfg.MoneyManagement.Duration, 1))
	if cfg.MoneyManagement.InitialStake == 0 {
		cfg.MoneyManagement.InitialStake = 1.0
	}
	cfg.MoneyManagement.InitialStake = getEnvFloatOrDefault("MONEY_MANAGEMENT_INITIAL_STAKE", cfg.MoneyManagement.InitialStake)

	cfg.Lot.LogDir = getEnvOrDefault("LOT_LOG_DIR", orString(cfg.Lot.LogDir, "logs"))
	cfg.Lot.HistoryDir = getEnvOrDefault("LOT_HISTORY_DIR", orString(cfg.Lot.HistoryDir, "tradeHistory"))
	if cfg.Lot.TargetProfit == 0 {
		cfg.Lot.TargetProfit = 10.0
	}
	cfg.Lot.TargetProfit = getEnvFloatOrDefault("LOT_TARGET_PROFIT", cfg.Lot.TargetProfit)
	cfg.Lot.TargetWin = getEnvIntOrDefault("LOT_TARGET_WIN", orInt(cfg.Lot.TargetWin, 5))

	cfg.Persistence.PostgresDSN = getEnvOrDefault("PERSISTENCE_POSTGRES_DSN", cfg.Persistence.PostgresDSN)
	cfg.Persistence.WriteTimeoutMS = getEnvIntOrDefault("PERSISTENCE_WRITE_TIMEOUT_MS", orInt(cfg.Persistence.WriteTimeoutMS, 2000))

	cfg.Broadcast.BufferSize = getEnvIntOrDefault("BROADCAST_BUFFER_SIZE", orInt(cfg.Broadcast.BufferSize, 64))

	cfg.Scanner.Enabled = getEnvOrDefault("SCANNER_ENABLED", boolStr(cfg.Scanner.Enabled, true)) == "true"
	cfg.Scanner.CronSchedule = getEnvOrDefault("SCANNER_CRON_SCHEDULE", orString(cfg.Scanner.CronSchedule, "@every 5m"))
	cfg.Scanner.MaxSymbols = getEnvIntOrDefault("SCANNER_MAX_SYMBOLS", orInt(cfg.Scanner.MaxSymbols, 20))

	cfg.Logging.Level = getEnvOrDefault("LOG_LEVEL", orString(cfg.Logging.Level, "info"))
	cfg.Logging.Pretty = getEnvOrDefault("LOG_PRETTY", boolStr(cfg.Logging.Pretty, false)) == "true"

	cfg.Server.Port = getEnvIntOrDefault("SERVER_PORT", orInt(cfg.Server.Port, 8080))
	cfg.Server.AllowedOrigins = getEnvOrDefault("SERVER_ALLOWED_ORIGINS", orString(cfg.Server.AllowedOrigins, "*"))

	cfg.Auth.JWTSecret = getEnvOrDefault("AUTH_JWT_SECRET", cfg.Auth.JWTSecret)
	cfg.Auth.AccessTokenDuration = getEnvDurationOrDefault("AUTH_ACCESS_TOKEN_DURATION", orDuration(cfg.Auth.AccessTokenDuration, 15*time.Minute))
	cfg.Auth.Username = getEnvOrDefault("AUTH_USERNAME", orString(cfg.Auth.Username, "operator"))
	cfg.Auth.Password = getEnvOrDefault("AUTH_PASSWORD", orString(cfg.Auth.Password, "changeme"))

	cfg.Vault.Enabled = getEnvOrDefault("VAULT_ENABLED", boolStr(cfg.Vault.Enabled, false)) == "true"
	cfg.Vault.Address = getEnvOrDefault("VAULT_ADDR", orString(cfg.Vault.Address, "http://localhost:8200"))
	cfg.Vault.Token = getEnvOrDefault("VAULT_TOKEN", cfg.Vault.Token)
	cfg.Vault.MountPath = getEnvOrDefault("VAULT_MOUNT_PATH", orString(cfg.Vault.MountPath, "secret"))
	cfg.Vault.SecretPath = getEnvOrDefault("VAULT_SECRET_PATH", orString(cfg.Vault.SecretPath, "signalengine/upstream-token"))

	cfg.Redis.Enabled = getEnvOrDefault("REDIS_ENABLED", boolStr(cfg.Redis.Enabled, false)) == "true"
	cfg.Redis.Address = getEnvOrDefault("REDIS_ADDR", orString(cfg.Redis.Address, "localhost:6379"))
	cfg.Redis.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = getEnvIntOrDefault("REDIS_DB", cfg.Redis.DB)
}

func getEnvOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvIntOrDefault(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvFloatOrDefault(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvDurationOrDefault(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func orInt(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}

func orString(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func orDuration(v, def time.Duration) time.Duration {
	if v == 0 {
		return def
	}
	return v
}

func boolStr(v, def bool) string {
	if v {
		return "true"
	}
	if def {
		return "true"
	}
	return "false"
}
