// File: internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Database() DatabaseConfig
	Browser() BrowserConfig
	Network() NetworkConfig
	LLM() LLMRouterConfig
	Notify() NotifyConfig
	Autofill() AutofillConfig
}

// Config is the root configuration, unmarshalled by viper.
type Config struct {
	LoggerCfg   LoggerConfig    `mapstructure:"logger" yaml:"logger"`
	DatabaseCfg DatabaseConfig  `mapstructure:"database" yaml:"database"`
	BrowserCfg  BrowserConfig   `mapstructure:"browser" yaml:"browser"`
	NetworkCfg  NetworkConfig   `mapstructure:"network" yaml:"network"`
	LLMCfg      LLMRouterConfig `mapstructure:"llm" yaml:"llm"`
	NotifyCfg   NotifyConfig    `mapstructure:"notify" yaml:"notify"`
	AutofillCfg AutofillConfig  `mapstructure:"autofill" yaml:"autofill"`
}

func (c *Config) Logger() LoggerConfig     { return c.LoggerCfg }
func (c *Config) Database() DatabaseConfig { return c.DatabaseCfg }
func (c *Config) Browser() BrowserConfig   { return c.BrowserCfg }
func (c *Config) Network() NetworkConfig   { return c.NetworkCfg }
func (c *Config) LLM() LLMRouterConfig     { return c.LLMCfg }
func (c *Config) Notify() NotifyConfig     { return c.NotifyCfg }
func (c *Config) Autofill() AutofillConfig { return c.AutofillCfg }

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// Database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// DatabaseConfig selects and locates the run history store.
type DatabaseConfig struct {
	Driver string `mapstructure:"driver" yaml:"driver"`
	// URL is a postgres connection string or a sqlite file path.
	URL string `mapstructure:"url" yaml:"url"`
}

// BrowserConfig controls the Chrome instance launched for a run.
type BrowserConfig struct {
	Headless        bool     `mapstructure:"headless" yaml:"headless"`
	IgnoreTLSErrors bool     `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	UserAgent       string   `mapstructure:"user_agent" yaml:"user_agent"`
	ExecPath        string   `mapstructure:"exec_path" yaml:"exec_path"`
	Args            []string `mapstructure:"args" yaml:"args"`
	ViewportWidth   int      `mapstructure:"viewport_width" yaml:"viewport_width"`
	ViewportHeight  int      `mapstructure:"viewport_height" yaml:"viewport_height"`
	Debug           bool     `mapstructure:"debug" yaml:"debug"`
	// Locale drives navigator.language and the Accept-Language header.
	Locale          string   `mapstructure:"locale" yaml:"locale"`
	Timezone        string   `mapstructure:"timezone" yaml:"timezone"`
}

// NetworkConfig holds navigation timing.
type NetworkConfig struct {
	Timeout           time.Duration `mapstructure:"timeout" yaml:"timeout"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	PostLoadWait      time.Duration `mapstructure:"post_load_wait" yaml:"post_load_wait"`
}

// LLMProvider defines the type for LLM providers.
type LLMProvider string

const (
	ProviderGemini    LLMProvider = "gemini"
	ProviderAnthropic LLMProvider = "anthropic"
)

// LLMRouterConfig maps model tiers onto configured models.
type LLMRouterConfig struct {
	DefaultFastModel     string                    `mapstructure:"default_fast_model" yaml:"default_fast_model"`
	DefaultPowerfulModel string                    `mapstructure:"default_powerful_model" yaml:"default_powerful_model"`
	RequestsPerMinute    int                       `mapstructure:"requests_per_minute" yaml:"requests_per_minute"`
	Models               map[string]LLMModelConfig `mapstructure:"models" yaml:"models"`
}

// LLMModelConfig holds the settings for a single LLM.
type LLMModelConfig struct {
	Provider    LLMProvider   `mapstructure:"provider" yaml:"provider"`
	Model       string        `mapstructure:"model" yaml:"model"`
	APIKey      string        `mapstructure:"api_key" yaml:"api_key"`
	Endpoint    string        `mapstructure:"endpoint" yaml:"endpoint"`
	APITimeout  time.Duration `mapstructure:"api_timeout" yaml:"api_timeout"`
	Temperature float32       `mapstructure:"temperature" yaml:"temperature"`
	TopP        float32       `mapstructure:"top_p" yaml:"top_p"`
	TopK        int           `mapstructure:"top_k" yaml:"top_k"`
	MaxTokens   int           `mapstructure:"max_tokens" yaml:"max_tokens"`
}

// NotifyConfig configures delivery of run outcomes.
type NotifyConfig struct {
	Email            bool       `mapstructure:"email" yaml:"email"`
	AttachScreenshot bool       `mapstructure:"attach_screenshot" yaml:"attach_screenshot"`
	SMTP             SMTPConfig `mapstructure:"smtp" yaml:"smtp"`
}

// SMTPConfig holds mail server credentials.
type SMTPConfig struct {
	Host      string `mapstructure:"host" yaml:"host"`
	Port      int    `mapstructure:"port" yaml:"port"`
	Username  string `mapstructure:"username" yaml:"username"`
	Password  string `mapstructure:"password" yaml:"password"`
	Recipient string `mapstructure:"recipient" yaml:"recipient"`
}

// AutofillConfig bounds the form filling engine.
type AutofillConfig struct {
	MaxSubmitAttempts int           `mapstructure:"max_submit_attempts" yaml:"max_submit_attempts"`
	MaxDropdownRounds int           `mapstructure:"max_dropdown_rounds" yaml:"max_dropdown_rounds"`
	SubmitSettle      time.Duration `mapstructure:"submit_settle" yaml:"submit_settle"`
	FieldGap          time.Duration `mapstructure:"field_gap" yaml:"field_gap"`
	IndexPostings     bool          `mapstructure:"index_postings" yaml:"index_postings"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "formpilot")
	v.SetDefault("logger.log_file", "formpilot.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Database --
	v.SetDefault("database.driver", DriverSQLite)
	v.SetDefault("database.url", "formpilot.db")

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.ignore_tls_errors", false)
	v.SetDefault("browser.viewport_width", 1920)
	v.SetDefault("browser.viewport_height", 1080)
	v.SetDefault("browser.debug", false)
	v.SetDefault("browser.locale", "en-US")

	// -- Network --
	v.SetDefault("network.timeout", "30s")
	v.SetDefault("network.navigation_timeout", "90s")
	v.SetDefault("network.post_load_wait", "2s")

	// -- LLM --
	v.SetDefault("llm.default_fast_model", "gemini-flash")
	v.SetDefault("llm.default_powerful_model", "gemini-pro")
	v.SetDefault("llm.requests_per_minute", 30)
	v.SetDefault("llm.models", map[string]interface{}{
		"gemini-flash": map[string]interface{}{
			"provider":    string(ProviderGemini),
			"model":       "gemini-2.5-flash",
			"api_timeout": "2m",
			"temperature": 0.2,
			"max_tokens":  4096,
		},
		"gemini-pro": map[string]interface{}{
			"provider":    string(ProviderGemini),
			"model":       "gemini-2.5-pro",
			"api_timeout": "3m",
			"temperature": 0.2,
			"max_tokens":  8192,
		},
	})

	// -- Notify --
	v.SetDefault("notify.email", false)
	v.SetDefault("notify.attach_screenshot", true)
	v.SetDefault("notify.smtp.host", "smtp.gmail.com")
	v.SetDefault("notify.smtp.port", 587)

	// -- Autofill --
	v.SetDefault("autofill.max_submit_attempts", 3)
	v.SetDefault("autofill.max_dropdown_rounds", 5)
	v.SetDefault("autofill.submit_settle", "4s")
	v.SetDefault("autofill.field_gap", "500ms")
	v.SetDefault("autofill.index_postings", true)
}

// BindLegacyEnv maps the bare SMTP environment variables onto their config keys.
func BindLegacyEnv(v *viper.Viper) error {
	bindings := map[string]string{
		"notify.smtp.username":  "SMTP_EMAIL",
		"notify.smtp.password":  "SMTP_PASSWORD",
		"notify.smtp.recipient": "RECIPIENT_EMAIL",
	}
	for key, env := range bindings {
		if err := v.BindEnv(key, "FORMPILOT_"+envKey(key), env); err != nil {
			return fmt.Errorf("failed to bind env %s: %w", env, err)
		}
	}
	return nil
}

func envKey(key string) string {
	return strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// Validate checks the configuration for values the pipeline cannot run with.
func (c *Config) Validate() error {
	switch c.DatabaseCfg.Driver {
	case DriverSQLite, DriverPostgres:
	default:
		return fmt.Errorf("database.driver must be one of [%s, %s], got '%s'", DriverSQLite, DriverPostgres, c.DatabaseCfg.Driver)
	}
	if c.AutofillCfg.MaxSubmitAttempts <= 0 {
		return fmt.Errorf("autofill.max_submit_attempts must be a positive integer")
	}
	if c.AutofillCfg.MaxDropdownRounds <= 0 {
		return fmt.Errorf("autofill.max_dropdown_rounds must be a positive integer")
	}
	if err := c.LLMCfg.Validate(); err != nil {
		return fmt.Errorf("llm configuration invalid: %w", err)
	}
	if c.NotifyCfg.Email {
		if err := c.NotifyCfg.SMTP.Validate(); err != nil {
			return fmt.Errorf("notify.smtp configuration invalid: %w", err)
		}
	}
	return nil
}

// Validate checks that both default tiers point at configured models.
func (l *LLMRouterConfig) Validate() error {
	for _, name := range []string{l.DefaultFastModel, l.DefaultPowerfulModel} {
		m, ok := l.Models[name]
		if !ok {
			return fmt.Errorf("model '%s' is not defined under llm.models", name)
		}
		if m.Provider != ProviderGemini && m.Provider != ProviderAnthropic {
			return fmt.Errorf("model '%s' has unsupported provider '%s'", name, m.Provider)
		}
	}
	return nil
}

// Validate checks the SMTP settings needed to send mail.
func (s *SMTPConfig) Validate() error {
	if s.Host == "" || s.Port <= 0 {
		return fmt.Errorf("host and port are required")
	}
	if s.Username == "" || s.Password == "" {
		return fmt.Errorf("credentials are required. Ensure SMTP_EMAIL and SMTP_PASSWORD are set")
	}
	return nil
}

// RecipientOrSender returns the configured recipient, defaulting to the sender.
func (s SMTPConfig) RecipientOrSender() string {
	if s.Recipient != "" {
		return s.Recipient
	}
	return s.Username
}
