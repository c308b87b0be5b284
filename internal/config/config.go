package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	v *viper.Viper
}

// New creates a new configuration instance
func New() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("/etc/meeting-scheduler/")
	v.AddConfigPath("$HOME/.meeting-scheduler")
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")

	// Set defaults
	setDefaults(v)

	// Environment variables
	v.AutomaticEnv()
	v.SetEnvPrefix("MEETING_SCHEDULER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, using defaults
	}

	return &Config{v: v}, nil
}

// NewFromViper creates a new configuration instance from an existing Viper instance
func NewFromViper(v *viper.Viper) *Config {
	return &Config{v: v}
}

// NewEmptyViper creates a new Viper instance with defaults
func NewEmptyViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	return v
}

// setDefaults sets the default configuration values
func setDefaults(v *viper.Viper) {
	// Classifier provider defaults
	v.SetDefault("classifier.provider", "openai")
	v.SetDefault("classifier.min_confidence", 0.6)

	// OpenAI defaults
	v.SetDefault("openai.api_key", "")
	v.SetDefault("openai.model_name", "gpt-4")
	v.SetDefault("openai.max_tokens", 1000)
	v.SetDefault("openai.temperature", 0.1)
	v.SetDefault("openai.top_p", 0.9)
	v.SetDefault("openai.max_body_size", 4096)

	// Bedrock defaults
	v.SetDefault("bedrock.region", "us-east-1")
	v.SetDefault("bedrock.model_id", "anthropic.claude-v2")
	v.SetDefault("bedrock.max_tokens", 1000)
	v.SetDefault("bedrock.temperature", 0.1)
	v.SetDefault("bedrock.top_p", 0.9)
	v.SetDefault("bedrock.max_body_size", 4096)

	// Gemini defaults
	v.SetDefault("gemini.api_key", "")
	v.SetDefault("gemini.model_name", "gemini-pro")
	v.SetDefault("gemini.max_tokens", 1000)
	v.SetDefault("gemini.temperature", 0.1)
	v.SetDefault("gemini.top_p", 0.9)
	v.SetDefault("gemini.max_body_size", 4096)

	// Scheduling defaults
	v.SetDefault("scheduler.default_duration_minutes", 60)
	v.SetDefault("scheduler.max_suggestions", 3)
	v.SetDefault("scheduler.hold_expiry", "24h")
	v.SetDefault("scheduler.max_retries", 3)
	v.SetDefault("scheduler.auto_confirm_threshold", 0.85)
	v.SetDefault("scheduler.sweep_schedule", "*/10 * * * *")
	v.SetDefault("scheduler.evening_cutoff_hour", 17)

	// Business hours defaults
	v.SetDefault("business_hours.start_hour", 9)
	v.SetDefault("business_hours.end_hour", 17)
	v.SetDefault("business_hours.working_days", []string{"Mon", "Tue", "Wed", "Thu", "Fri"})

	// Timezone defaults
	v.SetDefault("timezone.default_zone", "UTC")

	// Store defaults
	v.SetDefault("store.type", "memory")
	v.SetDefault("store.sqlite_path", "/data/meeting_scheduler.db")
	v.SetDefault("store.mysql_dsn", "user:password@tcp(localhost:3306)/meeting_scheduler")

	// Calendar defaults
	v.SetDefault("calendar.type", "memory")
	v.SetDefault("calendar.account", "primary")
	v.SetDefault("calendar.ics_feed_url", "")
	v.SetDefault("calendar.ics_local_path", "/data/scheduled_events.ics")
	v.SetDefault("calendar.ics_refresh", "15m")

	// Ingress defaults
	v.SetDefault("ingress.listen_address", "0.0.0.0:10025")
	v.SetDefault("ingress.relay_address", "127.0.0.1")
	v.SetDefault("ingress.relay_port", 10026)
	v.SetDefault("ingress.relay_enabled", false)

	// User defaults
	v.SetDefault("user.id", "primary")

	// Sender defaults
	v.SetDefault("sender.known_domains", []string{})

	// Response defaults
	v.SetDefault("response.default_tone", "professional")
	v.SetDefault("response.user_name", "")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// GetString gets a string value from the configuration
func (c *Config) GetString(key string) string {
	return c.v.GetString(key)
}

// GetInt gets an integer value from the configuration
func (c *Config) GetInt(key string) int {
	return c.v.GetInt(key)
}

// GetFloat64 gets a float64 value from the configuration
func (c *Config) GetFloat64(key string) float64 {
	return c.v.GetFloat64(key)
}

// GetBool gets a boolean value from the configuration
func (c *Config) GetBool(key string) bool {
	return c.v.GetBool(key)
}

// GetStringSlice gets a string slice value from the configuration
func (c *Config) GetStringSlice(key string) []string {
	return c.v.GetStringSlice(key)
}

// GetDuration gets a duration value from the configuration
func (c *Config) GetDuration(key string) (time.Duration, error) {
	return time.ParseDuration(c.GetString(key))
}

// GetViper returns the underlying Viper instance
func (c *Config) GetViper() *viper.Viper {
	return c.v
}
