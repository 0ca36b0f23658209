package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config holds the application configuration. It is plain data: packages
// that consume it translate the fields into their own option types.
type Config struct {
	APIKeys    APIKeysConfig    `yaml:"api_keys"`
	Tiers      TiersConfig      `yaml:"tiers"`
	Router     RouterConfig     `yaml:"router"`
	Verify     VerifyConfig     `yaml:"verify"`
	Reflection ReflectionConfig `yaml:"reflection"`
	Gate       GateConfig       `yaml:"gate"`
	Quota      QuotaConfig      `yaml:"quota"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
	Redis      RedisConfig      `yaml:"redis"`

	// AllowEmptyTools lists tools for which an empty result is a valid
	// answer rather than a retry trigger.
	AllowEmptyTools []string `yaml:"allow_empty_tools"`

	LogLevel  string `yaml:"log_level"`
	LogPretty bool   `yaml:"log_pretty"`

	// Dir is the resolved config directory, set by Load.
	Dir string `yaml:"-"`
}

// APIKeysConfig holds API key configuration from file. Environment
// variables take precedence.
type APIKeysConfig struct {
	Anthropic string `yaml:"anthropic"`
	OpenAI    string `yaml:"openai"`
	Google    string `yaml:"google"`
}

// TierConfig describes one completion tier.
type TierConfig struct {
	Provider      string `yaml:"provider"`
	Model         string `yaml:"model"`
	BaseURL       string `yaml:"base_url,omitempty"`
	ContextWindow int    `yaml:"context_window"`
}

// TiersConfig pairs the fast local tier with the quality remote tier.
type TiersConfig struct {
	Fast    TierConfig `yaml:"fast"`
	Quality TierConfig `yaml:"quality"`
}

// RouterConfig tunes the intent router.
type RouterConfig struct {
	Threshold float64 `yaml:"threshold"`
}

// VerifyConfig tunes the tool verification loop.
type VerifyConfig struct {
	MaxAttempts   int   `yaml:"max_attempts"`
	RetryErrored  *bool `yaml:"retry_errored,omitempty"`
	RetryEmpty    *bool `yaml:"retry_empty,omitempty"`
	CallTimeoutMs int   `yaml:"call_timeout_ms"`
}

// CallTimeout returns the per-tool timeout as a duration.
func (v VerifyConfig) CallTimeout() time.Duration {
	return time.Duration(v.CallTimeoutMs) * time.Millisecond
}

// ReflectionConfig tunes the reflection engine.
type ReflectionConfig struct {
	Threshold  float64 `yaml:"threshold"`
	CharBudget int     `yaml:"char_budget"`
}

// GateConfig tunes the quality gate, its breaker and its rate limiter.
type GateConfig struct {
	Mode             string  `yaml:"mode"`
	AutoThreshold    float64 `yaml:"auto_threshold"`
	FailureThreshold int     `yaml:"failure_threshold"`
	CooldownMs       int     `yaml:"cooldown_ms"`
	RateLimit        int     `yaml:"rate_limit"`
	RateWindowMs     int     `yaml:"rate_window_ms"`
}

// Cooldown returns the breaker cooldown as a duration.
func (g GateConfig) Cooldown() time.Duration {
	return time.Duration(g.CooldownMs) * time.Millisecond
}

// RateWindow returns the limiter window as a duration.
func (g GateConfig) RateWindow() time.Duration {
	return time.Duration(g.RateWindowMs) * time.Millisecond
}

// LimitsConfig caps one quota window. Zero means unlimited.
type LimitsConfig struct {
	Calls    int64   `yaml:"calls"`
	Tokens   int64   `yaml:"tokens"`
	SpendUSD float64 `yaml:"spend_usd"`
}

// PricingConfig defines per-1k token pricing for spend estimation.
type PricingConfig struct {
	PromptPer1K     float64 `yaml:"prompt_per_1k"`
	CompletionPer1K float64 `yaml:"completion_per_1k"`
}

// QuotaConfig caps remote-tier usage per day and per month.
type QuotaConfig struct {
	Day     LimitsConfig  `yaml:"day"`
	Month   LimitsConfig  `yaml:"month"`
	Pricing PricingConfig `yaml:"pricing"`
}

// TelemetryConfig selects sinks. Empty paths disable the file and SQLite
// sinks; the memory ring is always on.
type TelemetryConfig struct {
	Dir            string `yaml:"dir,omitempty" envconfig:"TELEMETRY_DIR"`
	SQLitePath     string `yaml:"sqlite_path,omitempty" envconfig:"TELEMETRY_SQLITE"`
	MemoryCapacity int    `yaml:"memory_capacity" envconfig:"TELEMETRY_CAPACITY"`
	Metrics        *bool  `yaml:"metrics,omitempty" envconfig:"TELEMETRY_METRICS"`
}

// MetricsEnabled reports whether the Prometheus bundle should be registered.
func (t TelemetryConfig) MetricsEnabled() bool {
	return t.Metrics == nil || *t.Metrics
}

// RedisConfig locates the optional quota store. An empty address keeps
// quota state in memory.
type RedisConfig struct {
	Addr     string `yaml:"addr" envconfig:"REDIS_ADDR"`
	Password string `yaml:"password" envconfig:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" envconfig:"REDIS_DB"`
}

// Load reads ~/.turnpike/config.yaml when present, then applies defaults,
// environment overrides and validation. A missing file is not an error.
func Load() (*Config, error) {
	dir, err := getConfigDir()
	if err != nil {
		return nil, fmt.Errorf("resolve config directory: %w", err)
	}

	cfg := &Config{Dir: dir}
	path := filepath.Join(dir, "config.yaml")
	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	return finish(cfg)
}

// LoadFile reads configuration from an explicit path. Unlike Load, a
// missing file is an error here.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg := &Config{Dir: filepath.Dir(path)}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return finish(cfg)
}

func finish(cfg *Config) (*Config, error) {
	applyDefaults(cfg)
	applyEnvOverrides(cfg)
	if err := envconfig.Process("turnpike", &cfg.Redis); err != nil {
		return nil, fmt.Errorf("redis env config: %w", err)
	}
	if err := envconfig.Process("turnpike", &cfg.Telemetry); err != nil {
		return nil, fmt.Errorf("telemetry env config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// KeyFor returns the configured API key for a provider. Providers that need
// no key return empty.
func (c *Config) KeyFor(provider string) string {
	switch provider {
	case "anthropic":
		return c.APIKeys.Anthropic
	case "openai":
		return c.APIKeys.OpenAI
	case "google":
		return c.APIKeys.Google
	default:
		return ""
	}
}

// HasProvider reports whether the given provider is usable: local and mock
// need no key, the rest need one configured.
func (c *Config) HasProvider(name string) bool {
	switch name {
	case "local", "mock":
		return true
	case "anthropic", "openai", "google":
		return c.KeyFor(name) != ""
	default:
		return false
	}
}

// Validate rejects configurations the pipeline cannot run with.
func (c *Config) Validate() error {
	switch c.Gate.Mode {
	case "auto", "always", "never":
	default:
		return fmt.Errorf("gate mode %q is not one of auto, always, never", c.Gate.Mode)
	}
	if c.Router.Threshold < 0 || c.Router.Threshold > 1 {
		return fmt.Errorf("router threshold %.2f outside [0,1]", c.Router.Threshold)
	}
	if c.Reflection.Threshold < 0 || c.Reflection.Threshold > 1 {
		return fmt.Errorf("reflection threshold %.2f outside [0,1]", c.Reflection.Threshold)
	}
	if c.Gate.AutoThreshold < 0 || c.Gate.AutoThreshold > 1 {
		return fmt.Errorf("gate auto threshold %.2f outside [0,1]", c.Gate.AutoThreshold)
	}
	for name, tier := range map[string]TierConfig{"fast": c.Tiers.Fast, "quality": c.Tiers.Quality} {
		if !knownProvider(tier.Provider) {
			return fmt.Errorf("%s tier: unknown provider %q", name, tier.Provider)
		}
		if tier.ContextWindow <= 0 {
			return fmt.Errorf("%s tier: context window must be positive", name)
		}
	}
	return nil
}

func knownProvider(name string) bool {
	switch name {
	case "local", "openai", "anthropic", "google", "mock":
		return true
	}
	return false
}

func applyDefaults(cfg *Config) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}

	if cfg.Tiers.Fast.Provider == "" {
		cfg.Tiers.Fast.Provider = "local"
	}
	if cfg.Tiers.Fast.Model == "" {
		cfg.Tiers.Fast.Model = "fast"
	}
	if cfg.Tiers.Fast.BaseURL == "" {
		cfg.Tiers.Fast.BaseURL = "http://localhost:11434"
	}
	if cfg.Tiers.Fast.ContextWindow == 0 {
		cfg.Tiers.Fast.ContextWindow = 8192
	}
	if cfg.Tiers.Quality.Provider == "" {
		cfg.Tiers.Quality.Provider = "openai"
	}
	if cfg.Tiers.Quality.Model == "" {
		cfg.Tiers.Quality.Model = "quality"
	}
	if cfg.Tiers.Quality.ContextWindow == 0 {
		cfg.Tiers.Quality.ContextWindow = 32768
	}

	if cfg.Router.Threshold == 0 {
		cfg.Router.Threshold = 0.65
	}

	if cfg.Verify.MaxAttempts == 0 {
		cfg.Verify.MaxAttempts = 1
	}
	if cfg.Verify.RetryErrored == nil {
		retry := true
		cfg.Verify.RetryErrored = &retry
	}
	if cfg.Verify.RetryEmpty == nil {
		retry := true
		cfg.Verify.RetryEmpty = &retry
	}
	if cfg.Verify.CallTimeoutMs == 0 {
		cfg.Verify.CallTimeoutMs = 30000
	}

	if cfg.Reflection.Threshold == 0 {
		cfg.Reflection.Threshold = 0.4
	}
	if cfg.Reflection.CharBudget == 0 {
		cfg.Reflection.CharBudget = 600
	}

	if cfg.Gate.Mode == "" {
		cfg.Gate.Mode = "auto"
	}
	if cfg.Gate.AutoThreshold == 0 {
		cfg.Gate.AutoThreshold = 0.45
	}
	if cfg.Gate.FailureThreshold == 0 {
		cfg.Gate.FailureThreshold = 3
	}
	if cfg.Gate.CooldownMs == 0 {
		cfg.Gate.CooldownMs = 30000
	}
	if cfg.Gate.RateLimit == 0 {
		cfg.Gate.RateLimit = 6
	}
	if cfg.Gate.RateWindowMs == 0 {
		cfg.Gate.RateWindowMs = 60000
	}

	if len(cfg.AllowEmptyTools) == 0 {
		cfg.AllowEmptyTools = []string{"calendar.list_events", "mail.search", "files.search"}
	}

	if cfg.Telemetry.Metrics == nil {
		enabled := true
		cfg.Telemetry.Metrics = &enabled
	}
}

func applyEnvOverrides(cfg *Config) {
	cfg.APIKeys.Anthropic = getEnvOrDefault("ANTHROPIC_API_KEY", cfg.APIKeys.Anthropic)
	cfg.APIKeys.OpenAI = getEnvOrDefault("OPENAI_API_KEY", cfg.APIKeys.OpenAI)
	cfg.APIKeys.Google = getEnvOrDefault("GOOGLE_API_KEY", cfg.APIKeys.Google)
	cfg.LogLevel = getEnvOrDefault("TURNPIKE_LOG_LEVEL", cfg.LogLevel)
	cfg.Gate.Mode = getEnvOrDefault("TURNPIKE_GATE_MODE", cfg.Gate.Mode)
	cfg.Tiers.Fast.BaseURL = getEnvOrDefault("TURNPIKE_LOCAL_URL", cfg.Tiers.Fast.BaseURL)
}

// getEnvOrDefault returns the environment variable value if set,
// otherwise returns the default value.
func getEnvOrDefault(envVar, defaultValue string) string {
	if val := os.Getenv(envVar); val != "" {
		return val
	}
	return defaultValue
}

func getConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	configDir := filepath.Join(home, ".turnpike")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return "", err
	}
	return configDir, nil
}
