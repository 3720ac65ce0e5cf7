package team

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/hupe1980/weatherteam/core"
	"github.com/hupe1980/weatherteam/guardrail"
	"github.com/hupe1980/weatherteam/logging"
	"github.com/hupe1980/weatherteam/weather"
)

// ErrInvalidConfig is wrapped by every Config validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// Model providers.
const (
	ProviderRules     = "rules"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// Weather modes.
const (
	WeatherMock = "mock"
	WeatherLive = "live"
)

// Session stores.
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
)

// Config is the typed configuration of a Team.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Model     ModelConfig     `mapstructure:"model"`
	Weather   WeatherConfig   `mapstructure:"weather"`
	Session   SessionConfig   `mapstructure:"session"`
	Guardrail GuardrailConfig `mapstructure:"guardrail"`
	Runner    RunnerConfig    `mapstructure:"runner"`
	Log       LogConfig       `mapstructure:"log"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
}

// AppConfig names the conversation the team serves.
type AppConfig struct {
	Name      string `mapstructure:"name"`
	UserID    string `mapstructure:"user_id"`
	SessionID string `mapstructure:"session_id"`
}

// ModelConfig selects the language model.
type ModelConfig struct {
	Provider    string  `mapstructure:"provider"`
	Name        string  `mapstructure:"name"`
	APIKey      string  `mapstructure:"api_key"`
	BaseURL     string  `mapstructure:"base_url"`
	Temperature float64 `mapstructure:"temperature"`
}

// WeatherConfig selects the weather source.
type WeatherConfig struct {
	Mode        string        `mapstructure:"mode"`
	APIKey      string        `mapstructure:"api_key"`
	BaseURL     string        `mapstructure:"base_url"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxAttempts int           `mapstructure:"max_attempts"`
}

// SessionConfig selects the session store and the initial state.
type SessionConfig struct {
	Store         string        `mapstructure:"store"`
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
	KeyPrefix     string        `mapstructure:"key_prefix"`
	TTL           time.Duration `mapstructure:"ttl"`
	InitialUnit   string        `mapstructure:"initial_unit"`
}

// GuardrailConfig parameterizes both guardrails.
type GuardrailConfig struct {
	Keyword     string `mapstructure:"keyword"`
	BlockedCity string `mapstructure:"blocked_city"`
}

// RunnerConfig bounds model usage per turn.
type RunnerConfig struct {
	MaxModelCalls       int     `mapstructure:"max_model_calls"`
	ModelCallsPerSecond float64 `mapstructure:"model_calls_per_second"`
}

// LogConfig configures the slog logger.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// MetricsConfig configures the Prometheus endpoint; an empty Addr disables it.
type MetricsConfig struct {
	Addr      string `mapstructure:"addr"`
	Namespace string `mapstructure:"namespace"`
}

// TracingConfig configures span export over OTLP/HTTP; an empty Endpoint
// leaves the global tracer provider untouched.
type TracingConfig struct {
	Endpoint    string  `mapstructure:"endpoint"`
	ServiceName string  `mapstructure:"service_name"`
	SampleRate  float64 `mapstructure:"sample_rate"`
}

// DefaultConfig returns the offline tutorial setup: rules model, mock
// weather, in-memory sessions.
func DefaultConfig() Config {
	return Config{
		App: AppConfig{
			Name:      "weather_tutorial_app",
			UserID:    "user_state_demo",
			SessionID: "session_state_demo_001",
		},
		Model: ModelConfig{Provider: ProviderRules, Temperature: 0.2},
		Weather: WeatherConfig{
			Mode:        WeatherMock,
			BaseURL:     weather.DefaultBaseURL,
			Timeout:     10 * time.Second,
			MaxAttempts: 3,
		},
		Session: SessionConfig{
			Store:       StoreMemory,
			KeyPrefix:   "weatherteam:session:",
			InitialUnit: string(weather.Celsius),
		},
		Guardrail: GuardrailConfig{
			Keyword:     guardrail.DefaultKeyword,
			BlockedCity: guardrail.DefaultBlockedCity,
		},
		Runner:  RunnerConfig{MaxModelCalls: 25},
		Log:     LogConfig{Level: "info", Format: "text"},
		Metrics: MetricsConfig{Namespace: "weatherteam"},
		Tracing: TracingConfig{ServiceName: "weatherteam", SampleRate: 1},
	}
}

// SetDefaults registers DefaultConfig on v so environment variables can
// override every key.
func SetDefaults(v *viper.Viper) {
	d := DefaultConfig()

	v.SetDefault("app.name", d.App.Name)
	v.SetDefault("app.user_id", d.App.UserID)
	v.SetDefault("app.session_id", d.App.SessionID)

	v.SetDefault("model.provider", d.Model.Provider)
	v.SetDefault("model.name", d.Model.Name)
	v.SetDefault("model.api_key", d.Model.APIKey)
	v.SetDefault("model.base_url", d.Model.BaseURL)
	v.SetDefault("model.temperature", d.Model.Temperature)

	v.SetDefault("weather.mode", d.Weather.Mode)
	v.SetDefault("weather.api_key", d.Weather.APIKey)
	v.SetDefault("weather.base_url", d.Weather.BaseURL)
	v.SetDefault("weather.timeout", d.Weather.Timeout)
	v.SetDefault("weather.max_attempts", d.Weather.MaxAttempts)

	v.SetDefault("session.store", d.Session.Store)
	v.SetDefault("session.redis_addr", d.Session.RedisAddr)
	v.SetDefault("session.redis_password", d.Session.RedisPassword)
	v.SetDefault("session.redis_db", d.Session.RedisDB)
	v.SetDefault("session.key_prefix", d.Session.KeyPrefix)
	v.SetDefault("session.ttl", d.Session.TTL)
	v.SetDefault("session.initial_unit", d.Session.InitialUnit)

	v.SetDefault("guardrail.keyword", d.Guardrail.Keyword)
	v.SetDefault("guardrail.blocked_city", d.Guardrail.BlockedCity)

	v.SetDefault("runner.max_model_calls", d.Runner.MaxModelCalls)
	v.SetDefault("runner.model_calls_per_second", d.Runner.ModelCallsPerSecond)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)

	v.SetDefault("metrics.addr", d.Metrics.Addr)
	v.SetDefault("metrics.namespace", d.Metrics.Namespace)

	v.SetDefault("tracing.endpoint", d.Tracing.Endpoint)
	v.SetDefault("tracing.service_name", d.Tracing.ServiceName)
	v.SetDefault("tracing.sample_rate", d.Tracing.SampleRate)
}

// LoadConfig resolves a Config with precedence flags > environment > file >
// defaults. v may carry bound flags; nil means a fresh viper. path is an
// optional YAML file. Environment keys use the WEATHERTEAM_ prefix
// (WEATHERTEAM_WEATHER_MODE); WEATHERAPI_KEY, OPENAI_API_KEY and
// ANTHROPIC_API_KEY are honoured as well.
func LoadConfig(v *viper.Viper, path string) (Config, error) {
	if v == nil {
		v = viper.New()
	}

	SetDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	v.SetEnvPrefix("WEATHERTEAM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.BindEnv("weather.api_key", "WEATHERTEAM_WEATHER_API_KEY", "WEATHERAPI_KEY"); err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}

	if cfg.Model.APIKey == "" {
		cfg.Model.APIKey = providerKey(v, cfg.Model.Provider)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func providerKey(v *viper.Viper, provider string) string {
	switch provider {
	case ProviderOpenAI:
		_ = v.BindEnv("openai_api_key", "OPENAI_API_KEY")
		return v.GetString("openai_api_key")
	case ProviderAnthropic:
		_ = v.BindEnv("anthropic_api_key", "ANTHROPIC_API_KEY")
		return v.GetString("anthropic_api_key")
	default:
		return ""
	}
}

// Validate checks every field once and reports all problems together.
func (c Config) Validate() error {
	var problems []string

	if c.App.Name == "" || c.App.UserID == "" || c.App.SessionID == "" {
		problems = append(problems, "app.name, app.user_id and app.session_id must be set")
	}

	switch c.Model.Provider {
	case ProviderRules, ProviderOpenAI, ProviderAnthropic:
	default:
		problems = append(problems, fmt.Sprintf("model.provider %q is not one of rules, openai, anthropic", c.Model.Provider))
	}

	switch c.Weather.Mode {
	case WeatherMock:
	case WeatherLive:
		if c.Weather.APIKey == "" {
			problems = append(problems, "weather.api_key (WEATHERAPI_KEY) is required in live mode")
		}
	default:
		problems = append(problems, fmt.Sprintf("weather.mode %q is not one of mock, live", c.Weather.Mode))
	}

	if c.Weather.MaxAttempts < 1 {
		problems = append(problems, "weather.max_attempts must be at least 1")
	}

	switch c.Session.Store {
	case StoreMemory:
	case StoreRedis:
		if c.Session.RedisAddr == "" {
			problems = append(problems, "session.redis_addr is required for the redis store")
		}
	default:
		problems = append(problems, fmt.Sprintf("session.store %q is not one of memory, redis", c.Session.Store))
	}

	if _, ok := weather.ParseUnit(c.Session.InitialUnit); !ok {
		problems = append(problems, fmt.Sprintf("session.initial_unit %q is not Celsius or Fahrenheit", c.Session.InitialUnit))
	}

	if strings.TrimSpace(c.Guardrail.Keyword) == "" {
		problems = append(problems, "guardrail.keyword must not be empty")
	}

	if strings.TrimSpace(c.Guardrail.BlockedCity) == "" {
		problems = append(problems, "guardrail.blocked_city must not be empty")
	}

	if c.Runner.MaxModelCalls < 0 {
		problems = append(problems, "runner.max_model_calls must not be negative")
	}

	if _, ok := logging.ParseLevel(c.Log.Level); !ok {
		problems = append(problems, fmt.Sprintf("log.level %q is unknown", c.Log.Level))
	}

	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		problems = append(problems, "tracing.sample_rate must be between 0 and 1")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}

	return nil
}

// SessionKey returns the configured conversation key.
func (c Config) SessionKey() core.SessionKey {
	return core.SessionKey{AppName: c.App.Name, UserID: c.App.UserID, SessionID: c.App.SessionID}
}
