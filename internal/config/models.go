package config

import (
	"time"

	"github.com/mikey/meeting-scheduler/internal/core"
)

// ClassifierConfig represents the configuration for the intent classifier
type ClassifierConfig struct {
	Provider      string
	MinConfidence float64
}

// OpenAIConfig represents the configuration for OpenAI
type OpenAIConfig struct {
	APIKey      string
	ModelName   string
	MaxTokens   int
	Temperature float32
	TopP        float32
	MaxBodySize int
}

// BedrockConfig represents the configuration for Amazon Bedrock
type BedrockConfig struct {
	Region      string
	ModelID     string
	MaxTokens   int
	Temperature float32
	TopP        float32
	MaxBodySize int
}

// GeminiConfig represents the configuration for Google Gemini
type GeminiConfig struct {
	APIKey      string
	ModelName   string
	MaxTokens   int
	Temperature float32
	TopP        float32
	MaxBodySize int
}

// SchedulerConfig represents the scheduling engine configuration
type SchedulerConfig struct {
	DefaultDurationMinutes int
	MaxSuggestions         int
	HoldExpiry             time.Duration
	MaxRetries             int
	AutoConfirmThreshold   float64
	SweepSchedule          string
	EveningCutoffHour      int
}

// IngressConfig represents the inbound SMTP configuration
type IngressConfig struct {
	ListenAddress string
	RelayAddress  string
	RelayPort     int
	RelayEnabled  bool
}

// GetClassifier returns the classifier configuration
func (c *Config) GetClassifier() ClassifierConfig {
	return ClassifierConfig{
		Provider:      c.GetString("classifier.provider"),
		MinConfidence: c.GetFloat64("classifier.min_confidence"),
	}
}

// GetOpenAI returns the OpenAI configuration
func (c *Config) GetOpenAI() OpenAIConfig {
	return OpenAIConfig{
		APIKey:      c.GetString("openai.api_key"),
		ModelName:   c.GetString("openai.model_name"),
		MaxTokens:   c.GetInt("openai.max_tokens"),
		Temperature: float32(c.GetFloat64("openai.temperature")),
		TopP:        float32(c.GetFloat64("openai.top_p")),
		MaxBodySize: c.GetInt("openai.max_body_size"),
	}
}

// GetBedrock returns the Bedrock configuration
func (c *Config) GetBedrock() BedrockConfig {
	return BedrockConfig{
		Region:      c.GetString("bedrock.region"),
		ModelID:     c.GetString("bedrock.model_id"),
		MaxTokens:   c.GetInt("bedrock.max_tokens"),
		Temperature: float32(c.GetFloat64("bedrock.temperature")),
		TopP:        float32(c.GetFloat64("bedrock.top_p")),
		MaxBodySize: c.GetInt("bedrock.max_body_size"),
	}
}

// GetGemini returns the Gemini configuration
func (c *Config) GetGemini() GeminiConfig {
	return GeminiConfig{
		APIKey:      c.GetString("gemini.api_key"),
		ModelName:   c.GetString("gemini.model_name"),
		MaxTokens:   c.GetInt("gemini.max_tokens"),
		Temperature: float32(c.GetFloat64("gemini.temperature")),
		TopP:        float32(c.GetFloat64("gemini.top_p")),
		MaxBodySize: c.GetInt("gemini.max_body_size"),
	}
}

// GetScheduler returns the scheduling engine configuration
func (c *Config) GetScheduler() (SchedulerConfig, error) {
	holdExpiry, err := c.GetDuration("scheduler.hold_expiry")
	if err != nil {
		return SchedulerConfig{}, err
	}
	return SchedulerConfig{
		DefaultDurationMinutes: c.GetInt("scheduler.default_duration_minutes"),
		MaxSuggestions:         c.GetInt("scheduler.max_suggestions"),
		HoldExpiry:             holdExpiry,
		MaxRetries:             c.GetInt("scheduler.max_retries"),
		AutoConfirmThreshold:   c.GetFloat64("scheduler.auto_confirm_threshold"),
		SweepSchedule:          c.GetString("scheduler.sweep_schedule"),
		EveningCutoffHour:      c.GetInt("scheduler.evening_cutoff_hour"),
	}, nil
}

// GetIngress returns the inbound SMTP configuration
func (c *Config) GetIngress() IngressConfig {
	return IngressConfig{
		ListenAddress: c.GetString("ingress.listen_address"),
		RelayAddress:  c.GetString("ingress.relay_address"),
		RelayPort:     c.GetInt("ingress.relay_port"),
		RelayEnabled:  c.GetBool("ingress.relay_enabled"),
	}
}

// weekdayNames maps config day abbreviations to weekdays
var weekdayNames = map[string]time.Weekday{
	"Sun": time.Sunday, "Mon": time.Monday, "Tue": time.Tuesday,
	"Wed": time.Wednesday, "Thu": time.Thursday, "Fri": time.Friday,
	"Sat": time.Saturday,
}

// GetBusinessHours returns the configured business hours window
func (c *Config) GetBusinessHours() core.BusinessHours {
	hours := core.BusinessHours{
		StartHour: c.GetInt("business_hours.start_hour"),
		EndHour:   c.GetInt("business_hours.end_hour"),
	}
	for _, name := range c.GetStringSlice("business_hours.working_days") {
		if wd, ok := weekdayNames[name]; ok {
			hours.WorkingDays = append(hours.WorkingDays, wd)
		}
	}
	if len(hours.WorkingDays) == 0 {
		hours.WorkingDays = []time.Weekday{
			time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday,
		}
	}
	return hours
}
