package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration options for the Reddit scraper
type Config struct {
	// Reddit endpoint settings
	Reddit RedditConfig `yaml:"reddit" json:"reddit"`

	// Egress proxy identities
	Proxies []ProxyConfig `yaml:"proxies" json:"proxies"`

	// Captcha solver service
	Solver SolverConfig `yaml:"solver" json:"solver"`

	// Rate limiting configuration
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`

	// Retry and backoff configuration
	Retry RetryConfig `yaml:"retry" json:"retry"`

	// Proxy health monitoring
	Health HealthConfig `yaml:"health" json:"health"`

	// Output settings
	Output OutputConfig `yaml:"output" json:"output"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// RedditConfig holds Reddit-specific configuration
type RedditConfig struct {
	BaseURL          string   `yaml:"base_url" json:"base_url"`
	UserAgent        string   `yaml:"user_agent" json:"user_agent"`
	UserAgents       []string `yaml:"user_agents" json:"user_agents"`
	RotateUserAgents bool     `yaml:"rotate_user_agents" json:"rotate_user_agents"`
	RequestTimeout   time.Duration `yaml:"request_timeout" json:"request_timeout"`
}

// ProxyConfig describes one egress identity
type ProxyConfig struct {
	Host     string `yaml:"host" json:"host"`
	Port     int    `yaml:"port" json:"port"`
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
	Kind     string `yaml:"kind" json:"kind"` // "http" or "socks5"
}

// SolverConfig holds captcha solver service configuration
type SolverConfig struct {
	APIKey       string            `yaml:"api_key" json:"api_key"`
	BaseURL      string            `yaml:"base_url" json:"base_url"`
	SiteKeys     map[string]string `yaml:"site_keys" json:"site_keys"`
	MaxWait      time.Duration     `yaml:"max_wait" json:"max_wait"`
	PollInterval time.Duration     `yaml:"poll_interval" json:"poll_interval"`
	MinBalance   float64           `yaml:"min_balance" json:"min_balance"`
}

// RateLimitConfig holds per-identity and global rate limits
type RateLimitConfig struct {
	PerProxyPerMinute int           `yaml:"per_proxy_per_minute" json:"per_proxy_per_minute"`
	PerProxyBurst     int           `yaml:"per_proxy_burst" json:"per_proxy_burst"`
	GlobalPerMinute   int           `yaml:"global_per_minute" json:"global_per_minute"`
	GlobalBurst       int           `yaml:"global_burst" json:"global_burst"`
	Patience          time.Duration `yaml:"patience" json:"patience"`
}

// RetryConfig holds retry and backoff configuration
type RetryConfig struct {
	MaxAttempts  int           `yaml:"max_attempts" json:"max_attempts"`
	BaseDelay    time.Duration `yaml:"base_delay" json:"base_delay"`
	MaxDelay     time.Duration `yaml:"max_delay" json:"max_delay"`
	Multiplier   float64       `yaml:"multiplier" json:"multiplier"`
	JitterFactor float64       `yaml:"jitter_factor" json:"jitter_factor"`
}

// HealthConfig holds proxy health monitoring configuration
type HealthConfig struct {
	ProbeURL        string        `yaml:"probe_url" json:"probe_url"`
	ProbeTimeout    time.Duration `yaml:"probe_timeout" json:"probe_timeout"`
	FreshnessWindow time.Duration `yaml:"freshness_window" json:"freshness_window"`
	Cooldown        time.Duration `yaml:"cooldown" json:"cooldown"`
	Interval        time.Duration `yaml:"interval" json:"interval"`
	Concurrency     int           `yaml:"concurrency" json:"concurrency"`
}

// OutputConfig holds output directory configuration
type OutputConfig struct {
	Directory string `yaml:"directory" json:"directory"`
	Format    string `yaml:"format" json:"format"` // "json" or "csv"
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Reddit: RedditConfig{
			BaseURL:          "https://www.reddit.com",
			UserAgent:        "redscrape/1.0",
			RotateUserAgents: true,
			RequestTimeout:   30 * time.Second,
		},
		Solver: SolverConfig{
			BaseURL:      "https://api.capsolver.com",
			MaxWait:      120 * time.Second,
			PollInterval: 3 * time.Second,
			MinBalance:   0.01,
		},
		RateLimit: RateLimitConfig{
			PerProxyPerMinute: 30,
			PerProxyBurst:     5,
			GlobalPerMinute:   60,
			GlobalBurst:       10,
			Patience:          30 * time.Second,
		},
		Retry: RetryConfig{
			MaxAttempts:  3,
			BaseDelay:    1 * time.Second,
			MaxDelay:     30 * time.Second,
			Multiplier:   2.0,
			JitterFactor: 0.1,
		},
		Health: HealthConfig{
			ProbeURL:        "https://httpbin.org/ip",
			ProbeTimeout:    10 * time.Second,
			FreshnessWindow: 5 * time.Minute,
			Cooldown:        2 * time.Minute,
			Interval:        30 * time.Second,
			Concurrency:     10,
		},
		Output: OutputConfig{
			Directory: "./output",
			Format:    "json",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() error {
	if apiKey := os.Getenv("REDSCRAPE_SOLVER_API_KEY"); apiKey != "" {
		c.Solver.APIKey = apiKey
	}
	if baseURL := os.Getenv("REDSCRAPE_SOLVER_BASE_URL"); baseURL != "" {
		c.Solver.BaseURL = baseURL
	}
	if userAgent := os.Getenv("REDSCRAPE_USER_AGENT"); userAgent != "" {
		c.Reddit.UserAgent = userAgent
	}
	if rpm := os.Getenv("REDSCRAPE_GLOBAL_PER_MINUTE"); rpm != "" {
		if val, err := strconv.Atoi(rpm); err == nil && val > 0 {
			c.RateLimit.GlobalPerMinute = val
		}
	}
	if rpm := os.Getenv("REDSCRAPE_PER_PROXY_PER_MINUTE"); rpm != "" {
		if val, err := strconv.Atoi(rpm); err == nil && val > 0 {
			c.RateLimit.PerProxyPerMinute = val
		}
	}
	if outputDir := os.Getenv("REDSCRAPE_OUTPUT_DIR"); outputDir != "" {
		c.Output.Directory = outputDir
	}
	if logLevel := os.Getenv("REDSCRAPE_LOG_LEVEL"); logLevel != "" {
		c.Logging.Level = logLevel
	}

	// Single proxies can be injected without a config file, one env var per
	// transport kind, formatted host:port:user:pass
	if p := os.Getenv("REDSCRAPE_PROXY_HTTP"); p != "" {
		if pc, err := ParseProxyString(p, "http"); err == nil {
			c.Proxies = append(c.Proxies, pc)
		}
	}
	if p := os.Getenv("REDSCRAPE_PROXY_SOCKS5"); p != "" {
		if pc, err := ParseProxyString(p, "socks5"); err == nil {
			c.Proxies = append(c.Proxies, pc)
		}
	}

	return nil
}

// ParseProxyString parses a host:port or host:port:username:password string
func ParseProxyString(s, kind string) (ProxyConfig, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 && len(parts) != 4 {
		return ProxyConfig{}, fmt.Errorf("invalid proxy format: %q", s)
	}

	port, err := strconv.Atoi(parts[1])
	if err != nil || port <= 0 || port > 65535 {
		return ProxyConfig{}, fmt.Errorf("invalid proxy port in %q", s)
	}

	pc := ProxyConfig{
		Host: parts[0],
		Port: port,
		Kind: strings.ToLower(kind),
	}
	if len(parts) == 4 {
		pc.Username = parts[2]
		pc.Password = parts[3]
	}
	return pc, nil
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	// If path is empty, try default locations
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil // No config file found, not an error
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// findConfigFile searches for config file in standard locations
func (c *Config) findConfigFile() string {
	locations := []string{
		".redscrape.yaml",
		".redscrape.yml",
		filepath.Join(os.Getenv("HOME"), ".config", "redscrape", "config.yaml"),
		filepath.Join(os.Getenv("HOME"), ".config", "redscrape", "config.yml"),
		filepath.Join(os.Getenv("HOME"), ".redscrape.yaml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	if c.Reddit.BaseURL == "" {
		errs = append(errs, errors.New("reddit base URL is required"))
	}
	if c.Reddit.RequestTimeout <= 0 {
		errs = append(errs, errors.New("request timeout must be positive"))
	}

	for i, p := range c.Proxies {
		if p.Host == "" {
			errs = append(errs, fmt.Errorf("proxy %d: host is required", i))
		}
		if p.Port <= 0 || p.Port > 65535 {
			errs = append(errs, fmt.Errorf("proxy %d: invalid port %d", i, p.Port))
		}
		kind := strings.ToLower(p.Kind)
		if kind != "http" && kind != "socks5" {
			errs = append(errs, fmt.Errorf("proxy %d: unsupported kind %q", i, p.Kind))
		}
	}

	if c.RateLimit.GlobalPerMinute <= 0 {
		errs = append(errs, errors.New("global requests per minute must be positive"))
	}
	if c.RateLimit.PerProxyPerMinute <= 0 {
		errs = append(errs, errors.New("per-proxy requests per minute must be positive"))
	}
	if c.RateLimit.GlobalBurst <= 0 || c.RateLimit.PerProxyBurst <= 0 {
		errs = append(errs, errors.New("burst size must be positive"))
	}

	if c.Retry.MaxAttempts <= 0 {
		errs = append(errs, errors.New("max attempts must be positive"))
	}
	if c.Retry.BaseDelay <= 0 || c.Retry.MaxDelay < c.Retry.BaseDelay {
		errs = append(errs, errors.New("invalid backoff delays"))
	}

	if c.Health.ProbeURL == "" {
		errs = append(errs, errors.New("health probe URL is required"))
	}
	if c.Health.ProbeTimeout <= 0 {
		errs = append(errs, errors.New("probe timeout must be positive"))
	}

	if c.Output.Directory == "" {
		errs = append(errs, errors.New("output directory is required"))
	}
	switch strings.ToLower(c.Output.Format) {
	case "json", "csv":
	default:
		errs = append(errs, fmt.Errorf("unsupported output format %q", c.Output.Format))
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// MergeCommandLineFlags merges command line flags into the configuration
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if outputDir, ok := flags["output"].(string); ok && outputDir != "" {
		c.Output.Directory = outputDir
	}
	if format, ok := flags["format"].(string); ok && format != "" {
		c.Output.Format = format
	}
	if rpm, ok := flags["rate-limit"].(int); ok && rpm > 0 {
		c.RateLimit.GlobalPerMinute = rpm
	}
	if attempts, ok := flags["max-attempts"].(int); ok && attempts > 0 {
		c.Retry.MaxAttempts = attempts
	}
	if logLevel, ok := flags["log-level"].(string); ok && logLevel != "" {
		c.Logging.Level = logLevel
	}
	if apiKey, ok := flags["solver-key"].(string); ok && apiKey != "" {
		c.Solver.APIKey = apiKey
	}
}

// Load loads configuration from all sources with proper precedence
// Precedence order: Command line flags > Environment variables > .env file > Config file > Defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	// Try to load .env files (don't fail if they don't exist)
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".redscrape.env"))

	config := DefaultConfig()

	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	config.MergeCommandLineFlags(flags)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}
