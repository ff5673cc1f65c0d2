// Package config provides application configuration management with support for environment variables, command-line flags, and .env files.
package config

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config holds the application configuration.
type Config struct {
	App       AppConfig
	Logger    LoggerConfig
	Server    ServerConfig
	Data      DataConfig
	Libraries LibrariesConfig
	Search    SearchConfig
	Breaker   BreakerConfig
	Retry     RetryConfig
	RateLimit RateLimitConfig
	Browser   BrowserConfig
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Environment string
}

// LoggerConfig holds logging configuration.
type LoggerConfig struct {
	Level  string
	Format string
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host         string
	Port         string        // Server port (default: 8080)
	ReadTimeout  time.Duration // HTTP read timeout (default: 15s)
	WriteTimeout time.Duration // HTTP write timeout (default: 35s, must outlive the global search deadline)
	IdleTimeout  time.Duration // HTTP idle timeout (default: 60s)
}

// DataConfig holds on-disk storage configuration.
type DataConfig struct {
	// Path is the badger data directory. Empty means in-memory, which
	// is what tests and ephemeral deployments want.
	Path string
}

// LibrariesConfig holds the library registry configuration.
type LibrariesConfig struct {
	// Dir is the directory of YAML library-system definitions.
	Dir string
}

// SearchConfig holds the coordinator's timeout and cache tunables.
type SearchConfig struct {
	GlobalTimeout  time.Duration // whole fan-out (default: 30s)
	SystemTimeout  time.Duration // one adapter search incl. retries (default: 20s)
	RequestTimeout time.Duration // single upstream HTTP call (default: 10s)
	CacheTTL       time.Duration // search result cache (default: 1h)
	MaxConcurrency int           // default per-host concurrency bound (default: 2)
}

// BreakerConfig holds per-system circuit breaker tunables.
type BreakerConfig struct {
	FailureThreshold int           // consecutive failures that open the circuit (default: 5)
	ResetTimeout     time.Duration // open -> half-open delay (default: 60s)
}

// RetryConfig holds the retry engine tunables.
type RetryConfig struct {
	Max       int           // retries after the first attempt (default: 2)
	BaseDelay time.Duration // full-jitter backoff base (default: 500ms)
}

// RateLimitConfig holds inbound rate limiting configuration.
type RateLimitConfig struct {
	// RPM is requests per minute per client IP; 0 disables the limiter.
	RPM int
}

// BrowserConfig holds the headless-browser service configuration.
type BrowserConfig struct {
	// ServiceURL is the Browserless-style façade; empty disables
	// browser-context adapters.
	ServiceURL string
	// MaxContexts bounds concurrently open browser contexts (default: 3).
	MaxContexts int
}

// LoadConfig loads configuration from multiple sources with precedence:
// 1. Command-line flags (highest priority).
// 2. Environment variables.
// 3. .env file.
// 4. Default values (lowest priority).
func LoadConfig() (*Config, error) {
	// Define command-line flags.
	env := flag.String("env", "", "Environment (development, staging, production)")
	logLevel := flag.String("log-level", "", "Log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", "", "Log format (json, pretty)")
	dataPath := flag.String("data-path", "", "Badger data directory (empty = in-memory)")
	librariesDir := flag.String("libraries-dir", "", "Directory of YAML library definitions")

	// Server flags
	serverHost := flag.String("host", "", "Server listen host (default: 0.0.0.0)")
	serverPort := flag.String("port", "", "Server port (default: 8080)")
	readTimeout := flag.String("read-timeout", "", "HTTP read timeout (default: 15s)")
	writeTimeout := flag.String("write-timeout", "", "HTTP write timeout (default: 35s)")
	idleTimeout := flag.String("idle-timeout", "", "HTTP idle timeout (default: 60s)")

	// Search flags
	globalTimeout := flag.String("global-timeout", "", "Whole-search deadline (default: 30s)")
	systemTimeout := flag.String("system-timeout", "", "Per-system search deadline (default: 20s)")
	requestTimeout := flag.String("request-timeout", "", "Per-request HTTP deadline (default: 10s)")
	cacheTTL := flag.String("cache-ttl", "", "Search cache TTL (default: 1h)")

	envFile := flag.String("env-file", ".env", "Path to .env file")

	// Browser service flags
	browserURL := flag.String("browser-service-url", "", "Headless browser service URL")
	browserContexts := flag.String("browser-max-contexts", "", "Max concurrent browser contexts (default: 3)")

	// Parse flags but don't exit on error - we want to handle it gracefully.
	flag.Parse()

	// Load .env file if it exists (silently ignore if not found).
	_ = loadEnvFile(*envFile)

	// Build config with proper precedence.
	cfg := &Config{
		App: AppConfig{
			Environment: getConfigValue(*env, "ENV", "development"),
		},
		Logger: LoggerConfig{
			Level:  getConfigValue(*logLevel, "LOG_LEVEL", "info"),
			Format: getConfigValue(*logFormat, "LOG_FORMAT", ""),
		},
		Server: ServerConfig{
			Host: getConfigValue(*serverHost, "SERVER_HOST", "0.0.0.0"),
			Port: getConfigValue(*serverPort, "SERVER_PORT", "8080"),
		},
		Data: DataConfig{
			Path: getConfigValue(*dataPath, "DATA_PATH", ""),
		},
		Libraries: LibrariesConfig{
			Dir: getConfigValue(*librariesDir, "LIBRARIES_DIR", "libraries"),
		},
		Search: SearchConfig{
			MaxConcurrency: getIntConfigValue("", "SEARCH_MAX_CONCURRENCY", 2),
		},
		Breaker: BreakerConfig{
			FailureThreshold: getIntConfigValue("", "BREAKER_FAILURE_THRESHOLD", 5),
		},
		Retry: RetryConfig{
			Max: getIntConfigValue("", "RETRY_MAX", 2),
		},
		RateLimit: RateLimitConfig{
			RPM: getIntConfigValue("", "RATE_LIMIT_RPM", 0),
		},
		Browser: BrowserConfig{
			ServiceURL:  getConfigValue(*browserURL, "BROWSER_SERVICE_URL", ""),
			MaxContexts: getIntConfigValue(*browserContexts, "BROWSER_MAX_CONTEXTS", 3),
		},
	}

	// Parse durations.
	durations := []struct {
		dst      *time.Duration
		flagVal  string
		envKey   string
		fallback string
	}{
		{&cfg.Server.ReadTimeout, *readTimeout, "SERVER_READ_TIMEOUT", "15s"},
		{&cfg.Server.WriteTimeout, *writeTimeout, "SERVER_WRITE_TIMEOUT", "35s"},
		{&cfg.Server.IdleTimeout, *idleTimeout, "SERVER_IDLE_TIMEOUT", "60s"},
		{&cfg.Search.GlobalTimeout, *globalTimeout, "SEARCH_GLOBAL_TIMEOUT", "30s"},
		{&cfg.Search.SystemTimeout, *systemTimeout, "SEARCH_SYSTEM_TIMEOUT", "20s"},
		{&cfg.Search.RequestTimeout, *requestTimeout, "SEARCH_REQUEST_TIMEOUT", "10s"},
		{&cfg.Search.CacheTTL, *cacheTTL, "SEARCH_CACHE_TTL", "1h"},
		{&cfg.Breaker.ResetTimeout, "", "BREAKER_RESET_TIMEOUT", "60s"},
		{&cfg.Retry.BaseDelay, "", "RETRY_BASE_DELAY", "500ms"},
	}
	for _, d := range durations {
		raw := getConfigValue(d.flagVal, d.envKey, d.fallback)
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid %s %q: %w", d.envKey, raw, err)
		}
		*d.dst = parsed
	}

	// Expand and validate the data path.
	if err := cfg.expandDataPath(); err != nil {
		return nil, fmt.Errorf("invalid data path: %w", err)
	}

	// Expand the libraries dir.
	if err := cfg.expandLibrariesDir(); err != nil {
		return nil, fmt.Errorf("invalid libraries dir: %w", err)
	}

	// Validate configuration.
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required config values are present and valid.
func (c *Config) Validate() error {
	if c.App.Environment == "" {
		return errors.New("ENV is required")
	}

	validEnvs := map[string]bool{
		"development": true,
		"staging":     true,
		"production":  true,
	}
	if !validEnvs[c.App.Environment] {
		return fmt.Errorf("invalid environment: %s (must be development, staging, or production)", c.App.Environment)
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[strings.ToLower(c.Logger.Level)] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logger.Level)
	}

	if c.Libraries.Dir == "" {
		return errors.New("libraries dir cannot be empty after expansion")
	}

	// The deadlines must nest: request <= system <= global, or inner
	// work would routinely outlive the outer scope that started it.
	if c.Search.RequestTimeout > c.Search.SystemTimeout {
		return fmt.Errorf("SEARCH_REQUEST_TIMEOUT (%s) must not exceed SEARCH_SYSTEM_TIMEOUT (%s)",
			c.Search.RequestTimeout, c.Search.SystemTimeout)
	}
	if c.Search.SystemTimeout > c.Search.GlobalTimeout {
		return fmt.Errorf("SEARCH_SYSTEM_TIMEOUT (%s) must not exceed SEARCH_GLOBAL_TIMEOUT (%s)",
			c.Search.SystemTimeout, c.Search.GlobalTimeout)
	}

	if c.Breaker.FailureThreshold < 1 {
		return fmt.Errorf("BREAKER_FAILURE_THRESHOLD must be at least 1, got %d", c.Breaker.FailureThreshold)
	}
	if c.Retry.Max < 0 {
		return fmt.Errorf("RETRY_MAX cannot be negative, got %d", c.Retry.Max)
	}
	if c.Browser.MaxContexts < 1 {
		return fmt.Errorf("BROWSER_MAX_CONTEXTS must be at least 1, got %d", c.Browser.MaxContexts)
	}

	return nil
}

// expandPath expands ~ and makes the path absolute.
// If path is empty and defaultPath is provided, uses the default.
func expandPath(path, defaultPath string) (string, error) {
	if path == "" {
		return defaultPath, nil
	}

	// Expand tilde.
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(homeDir, path[2:])
	}

	// Make absolute if needed.
	if !filepath.IsAbs(path) {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return "", fmt.Errorf("failed to get absolute path: %w", err)
		}
		path = absPath
	}

	return filepath.Clean(path), nil
}

// expandDataPath expands ~ and makes the path absolute. Empty stays
// empty; that selects the in-memory store.
func (c *Config) expandDataPath() error {
	if c.Data.Path == "" {
		return nil
	}

	expanded, err := expandPath(c.Data.Path, "")
	if err != nil {
		return err
	}
	c.Data.Path = expanded
	return nil
}

// expandLibrariesDir expands ~ and makes the path absolute.
func (c *Config) expandLibrariesDir() error {
	expanded, err := expandPath(c.Libraries.Dir, "")
	if err != nil {
		return err
	}
	c.Libraries.Dir = expanded
	return nil
}

// getConfigValue returns the first non-empty value from flag, env var, or default.
func getConfigValue(flagValue, envKey, defaultValue string) string {
	// Priority 1: Command-line flag.
	if flagValue != "" {
		return flagValue
	}

	// Priority 2: Environment variable.
	if envValue := os.Getenv(envKey); envValue != "" {
		return envValue
	}

	// Priority 3: Default value.
	return defaultValue
}

// getIntConfigValue returns an int from flag, env var, or default.
func getIntConfigValue(flagValue, envKey string, defaultValue int) int {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	var result int
	if _, err := fmt.Sscanf(strValue, "%d", &result); err != nil {
		return defaultValue
	}
	return result
}

// loadEnvFile loads environment variables from a .env file.
// Format: KEY=value (one per line, # for comments).
func loadEnvFile(path string) error {
	file, err := os.Open(path) //#nosec G304 -- Config file path from user input is expected
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments.
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse KEY=value.
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return fmt.Errorf("invalid format at line %d: %s", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		// Remove quotes if present.
		value = strings.Trim(value, `"'`)

		// Only set if not already set (env vars take precedence over .env file).
		if os.Getenv(key) == "" {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("failed to set env var %s: %w", key, err)
			}
		}
	}

	return scanner.Err()
}
