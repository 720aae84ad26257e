package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tributary-ai/llm-router-waf/internal/circuitbreaker"
	"github.com/tributary-ai/llm-router-waf/internal/costtable"
	"github.com/tributary-ai/llm-router-waf/internal/failover"
	"github.com/tributary-ai/llm-router-waf/internal/middleware"
	"github.com/tributary-ai/llm-router-waf/internal/providers/anthropic"
	"github.com/tributary-ai/llm-router-waf/internal/providers/openai"
	"github.com/tributary-ai/llm-router-waf/internal/retry"
	"github.com/tributary-ai/llm-router-waf/internal/security"
	"github.com/tributary-ai/llm-router-waf/internal/server"
	"github.com/tributary-ai/llm-router-waf/internal/types"
)

// Config represents the complete application configuration
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Router        RouterConfig        `yaml:"router"`
	Providers     ProvidersConfig     `yaml:"providers"`
	Logging       LoggingConfig       `yaml:"logging"`
	Security      SecurityConfig      `yaml:"security"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
	Retry         RetryConfig         `yaml:"retry"`
	Failover      FailoverConfig      `yaml:"failover"`
	Alias         AliasConfig         `yaml:"alias"`
	Overflow      OverflowConfig      `yaml:"overflow"`
}

// CircuitBreakerConfig mirrors circuitbreaker.Config for YAML/env wiring.
type CircuitBreakerConfig struct {
	FailureThreshold int           `yaml:"failure_threshold"`
	SuccessThreshold int           `yaml:"success_threshold"`
	ResetTimeout     time.Duration `yaml:"reset_timeout"`
}

// RetryConfig mirrors retry.Policy for YAML/env wiring.
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
	Factor      float64       `yaml:"factor"`
	Jitter      bool          `yaml:"jitter"`
}

// FailoverConfig configures the chat-completions failover group.
type FailoverConfig struct {
	Strategy        string  `yaml:"strategy"`
	MaxAttempts     int     `yaml:"max_attempts"`
	HealthThreshold float64 `yaml:"health_threshold"`
}

// AliasConfig configures the hot-reloadable alias store.
type AliasConfig struct {
	Path           string        `yaml:"path"`
	ReloadDebounce time.Duration `yaml:"reload_debounce"`
}

// OverflowConfig configures the Redis-backed overflow queue.
type OverflowConfig struct {
	Enabled           bool          `yaml:"enabled"`
	RedisURL          string        `yaml:"redis_url"`
	IdempotencyWindow time.Duration `yaml:"idempotency_window"`
	MaxAttempts       int           `yaml:"max_attempts"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port           string        `yaml:"port"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	MaxHeaderBytes int           `yaml:"max_header_bytes"`
}

// RouterConfig holds routing engine configuration
type RouterConfig struct {
	Policy              string        `yaml:"policy"` // "default", "cost", "health", "enhanced"
	DefaultProvider     string        `yaml:"default_provider"`
	HealthThreshold     float64       `yaml:"health_threshold"`
	HealthCheckInterval time.Duration `yaml:"health_check_interval"`
	MaxCostThreshold    float64       `yaml:"max_cost_threshold"`
	RequestTimeout      time.Duration `yaml:"request_timeout"`
}

// ProvidersConfig holds configuration for all providers
type ProvidersConfig struct {
	OpenAI    *openai.OpenAIConfig       `yaml:"openai"`
	Anthropic *anthropic.AnthropicConfig `yaml:"anthropic"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json" or "text"
	Output string `yaml:"output"` // "stdout", "stderr", or file path
}

// SecurityConfig holds security-related configuration
type SecurityConfig struct {
	APIKeys          []string          `yaml:"api_keys"`
	RateLimiting     RateLimitConfig   `yaml:"rate_limiting"`
	CORS             CORSConfig        `yaml:"cors"`
	RequestValidation ValidationConfig `yaml:"request_validation"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	Enabled         bool          `yaml:"enabled"`
	RequestsPerMin  int           `yaml:"requests_per_minute"`
	BurstSize       int           `yaml:"burst_size"`
	WindowDuration  time.Duration `yaml:"window_duration"`
}

// CORSConfig holds CORS configuration
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// ValidationConfig holds request validation configuration
type ValidationConfig struct {
	MaxRequestSize   int64 `yaml:"max_request_size"`
	MaxMessageLength int   `yaml:"max_message_length"`
	MaxMessages      int   `yaml:"max_messages"`
}

// LoadConfig loads configuration from file and environment variables
func LoadConfig(configPath string) (*Config, error) {
	config := &Config{}
	
	// Set defaults
	config.setDefaults()
	
	// Load from file if provided
	if configPath != "" {
		if err := config.loadFromFile(configPath); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}
	
	// Override with environment variables
	config.loadFromEnv()
	
	// Validate configuration
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	
	return config, nil
}

// setDefaults sets default configuration values
func (c *Config) setDefaults() {
	// Server defaults
	c.Server = ServerConfig{
		Port:           "8080",
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   30 * time.Second,
		MaxHeaderBytes: 1 << 20, // 1MB
	}
	
	// Router defaults
	c.Router = RouterConfig{
		Policy:              "default",
		DefaultProvider:     "openai",
		HealthThreshold:     0.5,
		HealthCheckInterval: 30 * time.Second,
		MaxCostThreshold:    1.0,
		RequestTimeout:      120 * time.Second,
	}

	c.CircuitBreaker = CircuitBreakerConfig{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		ResetTimeout:     60 * time.Second,
	}

	c.Retry = RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    10 * time.Second,
		Factor:      2.0,
		Jitter:      true,
	}

	c.Failover = FailoverConfig{
		Strategy:        "priority",
		HealthThreshold: 0.5,
	}

	c.Alias = AliasConfig{
		Path:           "",
		ReloadDebounce: 250 * time.Millisecond,
	}

	c.Overflow = OverflowConfig{
		Enabled:           false,
		IdempotencyWindow: 10 * time.Minute,
		MaxAttempts:       5,
	}
	
	// Logging defaults
	c.Logging = LoggingConfig{
		Level:  "info",
		Format: "json",
		Output: "stdout",
	}
	
	// Security defaults
	c.Security = SecurityConfig{
		APIKeys: []string{},
		RateLimiting: RateLimitConfig{
			Enabled:        false,
			RequestsPerMin: 60,
			BurstSize:      10,
			WindowDuration: time.Minute,
		},
		CORS: CORSConfig{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Content-Type", "Authorization", "X-API-Key"},
		},
		RequestValidation: ValidationConfig{
			MaxRequestSize:   10 << 20, // 10MB
			MaxMessageLength: 100000,   // 100k characters
			MaxMessages:      50,
		},
	}
	
	// Provider defaults
	c.Providers = ProvidersConfig{
		OpenAI: &openai.OpenAIConfig{
			Models: []types.ModelInfo{
				{
					Name:              "gpt-4o",
					ProviderModelID:   "gpt-4o",
					InputCostPer1K:    0.005,
					OutputCostPer1K:   0.015,
					MaxContextWindow:  128000,
					MaxOutputTokens:   4096,
				},
				{
					Name:              "gpt-4o-mini",
					ProviderModelID:   "gpt-4o-mini",
					InputCostPer1K:    0.00015,
					OutputCostPer1K:   0.0006,
					MaxContextWindow:  128000,
					MaxOutputTokens:   16384,
				},
				{
					Name:              "gpt-3.5-turbo",
					ProviderModelID:   "gpt-3.5-turbo",
					InputCostPer1K:    0.0015,
					OutputCostPer1K:   0.002,
					MaxContextWindow:  16385,
					MaxOutputTokens:   4096,
				},
			},
			Timeout: 120 * time.Second,
		},
		Anthropic: &anthropic.AnthropicConfig{
			Models: []types.ModelInfo{
				{
					Name:              "claude-3-5-sonnet-20241022",
					ProviderModelID:   "claude-3-5-sonnet-20241022",
					InputCostPer1K:    0.003,
					OutputCostPer1K:   0.015,
					MaxContextWindow:  200000,
					MaxOutputTokens:   8192,
				},
				{
					Name:              "claude-3-haiku-20240307",
					ProviderModelID:   "claude-3-haiku-20240307",
					InputCostPer1K:    0.00025,
					OutputCostPer1K:   0.00125,
					MaxContextWindow:  200000,
					MaxOutputTokens:   4096,
				},
			},
			Timeout: 120 * time.Second,
		},
	}
}

// loadFromFile loads configuration from YAML file
func (c *Config) loadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse YAML config: %w", err)
	}
	
	return nil
}

// loadFromEnv loads configuration from environment variables
func (c *Config) loadFromEnv() {
	// Server configuration
	if port := os.Getenv("LLM_ROUTER_PORT"); port != "" {
		c.Server.Port = port
	}
	
	// Provider API keys
	if openaiKey := os.Getenv("OPENAI_API_KEY"); openaiKey != "" {
		if c.Providers.OpenAI != nil {
			c.Providers.OpenAI.APIKey = openaiKey
		}
	}
	
	if anthropicKey := os.Getenv("ANTHROPIC_API_KEY"); anthropicKey != "" {
		if c.Providers.Anthropic != nil {
			c.Providers.Anthropic.APIKey = anthropicKey
		}
	}
	
	// Logging configuration
	if level := os.Getenv("LLM_ROUTER_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	
	if format := os.Getenv("LLM_ROUTER_LOG_FORMAT"); format != "" {
		c.Logging.Format = format
	}
	
	// Router configuration
	if policy := os.Getenv("LLM_ROUTER_POLICY"); policy != "" {
		c.Router.Policy = policy
	}

	// Overflow queue configuration
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		c.Overflow.RedisURL = redisURL
		c.Overflow.Enabled = true
	}
	if window := os.Getenv("OVERFLOW_QUEUE_IDEMPOTENCY_WINDOW"); window != "" {
		if d, err := time.ParseDuration(window); err == nil {
			c.Overflow.IdempotencyWindow = d
		}
	}
	if attempts := os.Getenv("OVERFLOW_QUEUE_MAX_ATTEMPTS"); attempts != "" {
		if n, err := strconv.Atoi(attempts); err == nil {
			c.Overflow.MaxAttempts = n
		}
	}

	// Alias hot-reload configuration
	if ms := os.Getenv("ALIASES_RELOAD_DEBOUNCE_MS"); ms != "" {
		if n, err := strconv.Atoi(ms); err == nil {
			c.Alias.ReloadDebounce = time.Duration(n) * time.Millisecond
		}
	}
	if path := os.Getenv("ALIASES_PATH"); path != "" {
		c.Alias.Path = path
	}
}

// validate validates the configuration
func (c *Config) validate() error {
	// Validate server port
	if c.Server.Port == "" {
		return fmt.Errorf("server port cannot be empty")
	}
	
	// Validate router policy
	validPolicies := map[string]bool{
		"default":  true,
		"cost":     true,
		"health":   true,
		"enhanced": true,
	}

	if !validPolicies[c.Router.Policy] {
		return fmt.Errorf("invalid router policy: %s", c.Router.Policy)
	}
	
	// Validate logging level
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
		"fatal": true,
	}
	
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}
	
	// Validate provider configurations
	providerCount := 0
	
	if c.Providers.OpenAI != nil {
		if c.Providers.OpenAI.APIKey == "" {
			return fmt.Errorf("OpenAI API key is required when OpenAI provider is enabled")
		}
		if len(c.Providers.OpenAI.Models) == 0 {
			return fmt.Errorf("OpenAI provider must have at least one model configured")
		}
		providerCount++
	}
	
	if c.Providers.Anthropic != nil {
		if c.Providers.Anthropic.APIKey == "" {
			return fmt.Errorf("Anthropic API key is required when Anthropic provider is enabled")
		}
		if len(c.Providers.Anthropic.Models) == 0 {
			return fmt.Errorf("Anthropic provider must have at least one model configured")
		}
		providerCount++
	}
	
	if providerCount == 0 {
		return fmt.Errorf("at least one provider must be configured")
	}
	
	return nil
}

// ToServerConfig converts to server.ServerConfig
func (c *Config) ToServerConfig() *server.ServerConfig {
	return &server.ServerConfig{
		Port:           c.Server.Port,
		ReadTimeout:    c.Server.ReadTimeout,
		WriteTimeout:   c.Server.WriteTimeout,
		MaxHeaderBytes: c.Server.MaxHeaderBytes,
		Security:       c.ToSecurityMiddlewareConfig(),
	}
}

// ToSecurityMiddlewareConfig converts to middleware.SecurityMiddlewareConfig
func (c *Config) ToSecurityMiddlewareConfig() *middleware.SecurityMiddlewareConfig {
	return &middleware.SecurityMiddlewareConfig{
		Auth: &security.Config{
			APIKeys:        c.Security.APIKeys,
			RequireAuth:    len(c.Security.APIKeys) > 0,
			AllowedOrigins: c.Security.CORS.AllowedOrigins,
		},
		RateLimit: &security.RateLimitConfig{
			Enabled:           c.Security.RateLimiting.Enabled,
			RequestsPerMinute: c.Security.RateLimiting.RequestsPerMin,
			BurstSize:         c.Security.RateLimiting.BurstSize,
			WindowDuration:    c.Security.RateLimiting.WindowDuration,
			CleanupInterval:   5 * time.Minute,
		},
		Validation: &security.ValidationConfig{
			MaxRequestSize:    10 * 1024 * 1024, // 10MB
			AllowedMethods:    c.Security.CORS.AllowedMethods,
			ContentTypes:      []string{"application/json", "text/plain"},
			MaxJSONDepth:      20,
			MaxFieldLength:    1024,
		},
		Audit: &security.AuditConfig{
			Enabled:     true,
			BufferSize:  1000,
			FlushInterval: 10 * time.Second,
		},
	}
}

// ToCircuitBreakerConfig converts to circuitbreaker.Config
func (c *Config) ToCircuitBreakerConfig() circuitbreaker.Config {
	cb := c.CircuitBreaker
	if cb.FailureThreshold <= 0 && cb.SuccessThreshold <= 0 && cb.ResetTimeout <= 0 {
		return circuitbreaker.DefaultConfig()
	}
	return circuitbreaker.Config{
		FailureThreshold: cb.FailureThreshold,
		SuccessThreshold: cb.SuccessThreshold,
		ResetTimeout:     cb.ResetTimeout,
	}
}

// ToRetryPolicy converts to retry.Policy
func (c *Config) ToRetryPolicy() retry.Policy {
	r := c.Retry
	if r.MaxAttempts <= 0 {
		return retry.DefaultPolicy()
	}
	return retry.Policy{
		MaxAttempts: r.MaxAttempts,
		BaseDelay:   r.BaseDelay,
		MaxDelay:    r.MaxDelay,
		Factor:      r.Factor,
		Jitter:      r.Jitter,
	}
}

// ToCostEntries flattens every configured provider's models into cost
// table rows for the Router's cost policy.
func (c *Config) ToCostEntries() []costtable.Entry {
	var entries []costtable.Entry
	if c.Providers.OpenAI != nil {
		for i, m := range c.Providers.OpenAI.Models {
			entries = append(entries, costtable.Entry{
				Provider:        "openai",
				Model:           m.Name,
				InputCostPer1K:  m.InputCostPer1K,
				OutputCostPer1K: m.OutputCostPer1K,
				Priority:        i,
			})
		}
	}
	if c.Providers.Anthropic != nil {
		for i, m := range c.Providers.Anthropic.Models {
			entries = append(entries, costtable.Entry{
				Provider:        "anthropic",
				Model:           m.Name,
				InputCostPer1K:  m.InputCostPer1K,
				OutputCostPer1K: m.OutputCostPer1K,
				Priority:        i,
			})
		}
	}
	return entries
}

// ToFailoverGroup builds the failover.Group serving a logical service from
// the currently registered provider names, the cost table (for
// cost_optimized ordering) and the circuit breaker registry (for each
// provider's starting health score).
func (c *Config) ToFailoverGroup(serviceName string, providerNames []string, costs *costtable.Table, breakers *circuitbreaker.Registry) *failover.Group {
	entries := make([]*failover.ProviderEntry, 0, len(providerNames))
	for i, name := range providerNames {
		costPer1K := 0.0
		for _, e := range costs.All() {
			if e.Provider == name {
				costPer1K = e.CostPer1KTokens()
				break
			}
		}
		health := 1.0
		if breakers != nil && breakers.State(name) == circuitbreaker.StateOpen {
			health = 0.0
		}
		entries = append(entries, &failover.ProviderEntry{
			Name:        name,
			Priority:    i,
			CostPer1K:   costPer1K,
			HealthScore: health,
		})
	}

	return &failover.Group{
		ServiceName:     serviceName,
		Strategy:        failover.Strategy(c.Failover.Strategy),
		Providers:       entries,
		MaxAttempts:     c.Failover.MaxAttempts,
		HealthThreshold: c.Failover.HealthThreshold,
	}
}

// SaveToFile saves the current configuration to a YAML file
func (c *Config) SaveToFile(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}
	
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	
	return nil
}

// GetEnabledProviders returns a list of enabled provider names
func (c *Config) GetEnabledProviders() []string {
	var providers []string
	
	if c.Providers.OpenAI != nil && c.Providers.OpenAI.APIKey != "" {
		providers = append(providers, "openai")
	}
	
	if c.Providers.Anthropic != nil && c.Providers.Anthropic.APIKey != "" {
		providers = append(providers, "anthropic")
	}
	
	return providers
}