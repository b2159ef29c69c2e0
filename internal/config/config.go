package config

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"resumetailor/internal/errors"

	"github.com/spf13/viper"
)

// Config holds all application configuration
// API Key Precedence Order:
// 1. Vault (if configured) - Highest priority
// 2. Config File values
// 3. Environment Variables (RESUMETAILOR_AI_APIKEY, then OPENAI_API_KEY / GEMINI_API_KEY)
// 4. Default values - Lowest priority
type Config struct {
	AI            AIConfig            `mapstructure:"ai"`
	Server        ServerConfig        `mapstructure:"server"`
	App           AppConfig           `mapstructure:"app"`
	Vault         VaultConfig         `mapstructure:"vault"`
	Observability ObservabilityConfig `mapstructure:"observability"`

	prompts *PromptStore
}

// AIConfig holds language model configuration
type AIConfig struct {
	Provider    string        `mapstructure:"provider"`
	Model       string        `mapstructure:"model"`
	BaseURL     string        `mapstructure:"baseURL"`
	Timeout     time.Duration `mapstructure:"timeout"`
	APIKey      string        `mapstructure:"apiKey"`
	MaxRetries  int           `mapstructure:"maxRetries"`
	Temperature float32       `mapstructure:"temperature"`

	// Persona is the shared opening system message of the tailor, explain and edit calls.
	Persona     string `mapstructure:"persona"`
	PersonaFile string `mapstructure:"personaFile"`

	Extract OperationAIConfig `mapstructure:"extract"`
	Tailor  OperationAIConfig `mapstructure:"tailor"`
	Explain OperationAIConfig `mapstructure:"explain"`
	Edit    OperationAIConfig `mapstructure:"edit"`
}

// CircuitBreakerConfig represents circuit breaker configuration
type CircuitBreakerConfig struct {
	Enabled          bool          `mapstructure:"enabled"`          // Whether circuit breaker is enabled
	MaxRequests      uint32        `mapstructure:"maxRequests"`      // Max requests allowed when half-open
	Interval         time.Duration `mapstructure:"interval"`         // Interval to clear counts
	Timeout          time.Duration `mapstructure:"timeout"`          // Timeout for half-open to open
	MinRequests      uint32        `mapstructure:"minRequests"`      // Minimum requests before tripping
	FailureThreshold float64       `mapstructure:"failureThreshold"` // Failure ratio threshold (0.0-1.0)
}

// OperationAIConfig holds model settings for one call shape. Unset fields
// inherit from AIConfig.
type OperationAIConfig struct {
	Provider       string               `mapstructure:"provider"`
	Model          string               `mapstructure:"model"`
	BaseURL        string               `mapstructure:"baseURL"`
	Timeout        *time.Duration       `mapstructure:"timeout"`
	APIKey         string               `mapstructure:"apiKey"`
	MaxRetries     *int                 `mapstructure:"maxRetries"`
	Temperature    *float32             `mapstructure:"temperature"`
	Prompts        PromptConfig         `mapstructure:"prompts"`
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuitBreaker"`
}

// PromptConfig overrides the built-in instruction of an operation, inline or from a file.
// File content wins over inline text.
type PromptConfig struct {
	System     string `mapstructure:"system"`
	SystemFile string `mapstructure:"systemFile"`
	User       string `mapstructure:"user"`
	UserFile   string `mapstructure:"userFile"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         string        `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"readTimeout"`
	WriteTimeout time.Duration `mapstructure:"writeTimeout"`
	IdleTimeout  time.Duration `mapstructure:"idleTimeout"`

	// API Authentication
	APIKeys []string `mapstructure:"apiKeys"`

	RateLimit RateLimitConfig `mapstructure:"rateLimit"`
	Sessions  SessionConfig   `mapstructure:"sessions"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	Enabled        bool          `mapstructure:"enabled"`        // Enable/disable rate limiting
	RequestsPerMin int           `mapstructure:"requestsPerMin"` // Requests allowed per minute
	BurstCapacity  int           `mapstructure:"burstCapacity"`  // Burst capacity for token bucket
	ByIP           bool          `mapstructure:"byIP"`           // Enable per-IP rate limiting
	ByAPIKey       bool          `mapstructure:"byAPIKey"`       // Enable per-API-key rate limiting
	Window         time.Duration `mapstructure:"window"`         // Rate limiting window duration
}

// SessionConfig bounds the in-memory conversation store of the HTTP server
type SessionConfig struct {
	TTL             time.Duration `mapstructure:"ttl"`
	CleanupInterval time.Duration `mapstructure:"cleanupInterval"`
	MaxSessions     int           `mapstructure:"maxSessions"`
}

// AppConfig holds general application configuration
type AppConfig struct {
	LogLevel         string   `mapstructure:"logLevel"`
	BotName          string   `mapstructure:"botName"`
	ExportDir        string   `mapstructure:"exportDir"`
	DefaultFormat    string   `mapstructure:"defaultFormat"`
	SupportedFormats []string `mapstructure:"supportedFormats"`
	MaxFileSize      int64    `mapstructure:"maxFileSize"`
	WatchPrompts     bool     `mapstructure:"watchPrompts"`
}

// ObservabilityConfig holds observability configuration
type ObservabilityConfig struct {
	Enabled         bool                `mapstructure:"enabled"`
	ServiceName     string              `mapstructure:"serviceName"`
	ServiceVersion  string              `mapstructure:"serviceVersion"`
	ServiceInstance string              `mapstructure:"serviceInstance"`
	ConsoleOutput   bool                `mapstructure:"consoleOutput"`
	SampleRate      float64             `mapstructure:"sampleRate"`
	Metrics         MetricsConfig       `mapstructure:"metrics"`
	CustomMetrics   CustomMetricsConfig `mapstructure:"customMetrics"`
	Console         ConsoleConfig       `mapstructure:"console"`
	Prometheus      PrometheusConfig    `mapstructure:"prometheus"`
	OTLP            OTLPConfig          `mapstructure:"otlp"`
	HealthCheck     HealthCheckConfig   `mapstructure:"healthCheck"`
}

// MetricsConfig holds metrics configuration
type MetricsConfig struct {
	Enabled            bool          `mapstructure:"enabled"`
	CollectionInterval time.Duration `mapstructure:"collectionInterval"`
}

// ConsoleConfig holds console output configuration
type ConsoleConfig struct {
	PrettyPrint bool `mapstructure:"prettyPrint"`
}

// CustomMetricsConfig switches individual metric groups on and off
type CustomMetricsConfig struct {
	AIOperations   AIOperationsMetricsConfig   `mapstructure:"aiOperations"`
	Conversation   ConversationMetricsConfig   `mapstructure:"conversation"`
	Infrastructure InfrastructureMetricsConfig `mapstructure:"infrastructure"`
}

type AIOperationsMetricsConfig struct {
	Enabled         bool `mapstructure:"enabled"`
	TrackDuration   bool `mapstructure:"trackDuration"`
	TrackTokenUsage bool `mapstructure:"trackTokenUsage"`
}

type ConversationMetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

type InfrastructureMetricsConfig struct {
	TrackRateLimits bool `mapstructure:"trackRateLimits"`
}

// PrometheusConfig holds Prometheus configuration
type PrometheusConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
	Port     string `mapstructure:"port"`
}

// OTLPConfig holds OTLP exporter configuration
type OTLPConfig struct {
	Enabled  bool              `mapstructure:"enabled"`
	Endpoint string            `mapstructure:"endpoint"`
	Insecure bool              `mapstructure:"insecure"`
	Headers  map[string]string `mapstructure:"headers"`
}

// HealthCheckConfig holds health check configuration
type HealthCheckConfig struct {
	Timeout             time.Duration `mapstructure:"timeout"`
	AIModelCheckTimeout time.Duration `mapstructure:"aiModelCheckTimeout"`
}

// LoadConfig loads configuration from defaults, a config file, the environment and Vault
func LoadConfig() (*Config, error) {
	log.Println("[CONFIG] Starting configuration loading process")

	v := newViper()

	configFileUsed := ""
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, errors.NewConfigError(errors.ErrCodeInvalidConfig, "failed to read config file", err)
		}
		log.Println("[CONFIG] No config file found, using defaults and environment variables")
	} else {
		configFileUsed = v.ConfigFileUsed()
		log.Printf("[CONFIG] Successfully loaded config file: %s", configFileUsed)
	}

	return decode(v, configFileUsed)
}

// LoadConfigFile loads configuration from an explicit file path instead of the search paths
func LoadConfigFile(path string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, errors.NewConfigError(errors.ErrCodeInvalidConfig, fmt.Sprintf("failed to read config file %s", path), err)
	}
	log.Printf("[CONFIG] Successfully loaded config file: %s", path)
	return decode(v, path)
}

func newViper() *viper.Viper {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("RESUMETAILOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("/etc/resumetailor/")
	v.AddConfigPath("$HOME/.resumetailor")
	v.AddConfigPath(".")
	return v
}

func decode(v *viper.Viper, configFileUsed string) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.NewConfigError(errors.ErrCodeInvalidConfig, "failed to unmarshal config", err)
	}

	config.applyFallbacks()
	config.logConfigurationSources(configFileUsed)

	if err := ApplyVaultSecrets(context.Background(), &config, nil); err != nil {
		return nil, errors.NewConfigError(errors.ErrCodeInvalidConfig, "failed to apply vault secrets", err)
	}

	if err := config.validatePromptFiles(); err != nil {
		return nil, err
	}

	config.prompts = NewPromptStore()
	if err := config.prompts.Load(&config); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	log.Println("[CONFIG] Configuration loading completed successfully")
	return &config, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	for _, op := range Operations {
		opCfg := c.ForOperation(op)
		if opCfg.APIKey == "" {
			return errors.NewConfigError(errors.ErrCodeMissingAPIKey,
				"AI API key is required (set RESUMETAILOR_AI_APIKEY or OPENAI_API_KEY)", nil).
				WithContext("operation", op)
		}
		if !isSupportedProvider(opCfg.Provider) {
			return errors.NewConfigError(errors.ErrCodeInvalidConfig,
				fmt.Sprintf("unsupported AI provider: %s", opCfg.Provider), nil).
				WithContext("operation", op)
		}
		if *opCfg.Timeout <= 0 {
			return errors.NewConfigError(errors.ErrCodeInvalidConfig, "AI timeout must be positive", nil).
				WithContext("operation", op)
		}
		if *opCfg.MaxRetries < 0 {
			return errors.NewConfigError(errors.ErrCodeInvalidConfig, "AI maxRetries must not be negative", nil).
				WithContext("operation", op)
		}
	}

	if c.Server.Port == "" {
		return errors.NewConfigError(errors.ErrCodeInvalidConfig, "server port is required", nil)
	}

	if _, err := errors.ParseLevel(c.App.LogLevel); err != nil {
		return err
	}

	validFormats := make(map[string]bool)
	for _, format := range c.App.SupportedFormats {
		validFormats[format] = true
	}
	if !validFormats[c.App.DefaultFormat] {
		return errors.NewConfigError(errors.ErrCodeInvalidConfig,
			fmt.Sprintf("invalid default format: %s", c.App.DefaultFormat), nil)
	}

	return nil
}

// Prompts returns the prompt store loaded for this configuration.
func (c *Config) Prompts() *PromptStore {
	if c.prompts == nil {
		c.prompts = NewPromptStore()
	}
	return c.prompts
}

func isSupportedProvider(provider string) bool {
	switch provider {
	case ProviderOpenAI, ProviderGemini:
		return true
	}
	return false
}
