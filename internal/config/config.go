package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port        string
	Env         string
	LogLevel    string
	WebhookPath string

	RetellAPIKey  string
	RetellAgentID string
	RetellBaseURL string
	RetellTimeout time.Duration

	EvolutionURL        string
	EvolutionToken      string
	EvolutionInstance   string
	EvolutionAuthScheme string
	EvolutionTimeout    time.Duration

	AdminJWTSecret string

	RedisAddr         string
	RedisPassword     string
	RedisDB           int
	RedisTLS          bool
	ProcessedEventTTL time.Duration

	ShutdownTimeout time.Duration
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:        getEnv("PORT", "8080"),
		Env:         getEnv("ENV", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		WebhookPath: normalizePath(getEnv("WEBHOOK_PATH", "/webhook")),

		RetellAPIKey:  getEnv("RETELL_API_KEY", ""),
		RetellAgentID: getEnv("RETELL_AGENT_ID", ""),
		RetellBaseURL: getEnv("RETELL_BASE_URL", "https://api.retell.ai/v1/chat"),
		RetellTimeout: getEnvAsDuration("RETELL_TIMEOUT", 15*time.Second),

		EvolutionURL:        strings.TrimRight(getEnv("EVO_URL", ""), "/"),
		EvolutionToken:      getEnv("EVO_TOKEN", ""),
		EvolutionInstance:   getEnv("EVO_ID", ""),
		EvolutionAuthScheme: strings.ToLower(getEnv("EVO_AUTH_SCHEME", "bearer")),
		EvolutionTimeout:    getEnvAsDuration("EVO_TIMEOUT", 15*time.Second),

		AdminJWTSecret: getEnv("ADMIN_JWT_SECRET", ""),

		RedisAddr:         getEnv("REDIS_ADDR", ""),
		RedisPassword:     getEnv("REDIS_PASSWORD", ""),
		RedisDB:           getEnvAsInt("REDIS_DB", 0),
		RedisTLS:          getEnvAsBool("REDIS_TLS", false),
		ProcessedEventTTL: getEnvAsDuration("PROCESSED_EVENT_TTL", 24*time.Hour),

		ShutdownTimeout: getEnvAsDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
	}
}

// Validate reports every missing or invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	required := []struct {
		key, value string
	}{
		{"RETELL_API_KEY", c.RetellAPIKey},
		{"RETELL_AGENT_ID", c.RetellAgentID},
		{"EVO_URL", c.EvolutionURL},
		{"EVO_TOKEN", c.EvolutionToken},
		{"EVO_ID", c.EvolutionInstance},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			errs = append(errs, fmt.Errorf("config: %s is required", r.key))
		}
	}
	switch c.EvolutionAuthScheme {
	case "bearer", "apikey":
	default:
		errs = append(errs, fmt.Errorf("config: EVO_AUTH_SCHEME must be bearer or apikey, got %q", c.EvolutionAuthScheme))
	}
	durations := []struct {
		key   string
		value time.Duration
	}{
		{"RETELL_TIMEOUT", c.RetellTimeout},
		{"EVO_TIMEOUT", c.EvolutionTimeout},
		{"SHUTDOWN_TIMEOUT", c.ShutdownTimeout},
	}
	for _, d := range durations {
		if d.value <= 0 {
			errs = append(errs, fmt.Errorf("config: %s must be positive, got %s", d.key, d.value))
		}
	}
	if c.WebhookPath == "/" {
		errs = append(errs, errors.New("config: WEBHOOK_PATH cannot be /"))
	}
	return errors.Join(errs...)
}

// UseRedis reports whether the processed-event tracker should use Redis.
func (c *Config) UseRedis() bool {
	return strings.TrimSpace(c.RedisAddr) != ""
}

func normalizePath(p string) string {
	p = strings.TrimSpace(p)
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return p
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
