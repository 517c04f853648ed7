package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the API service.
type Config struct {
	AppName      string
	AppEnv       string
	AppPort      string
	LogLevel     string
	AllowOrigins string

	DatabaseURL   string
	RedisURL      string
	NATSURL       string
	EventsChannel string

	JWTSecret    string
	DemoEmail    string
	DemoPassword string
	TokenTTL     time.Duration

	AIProvider   string
	OpenAIAPIKey string
	OpenAIModel  string
	OpenAIURL    string
	GeminiAPIKey string
	GeminiModel  string

	QuestionTimeout   time.Duration
	FeedbackTimeout   time.Duration
	ProctoringTimeout time.Duration
	ReportTimeout     time.Duration
	FinalizeTimeout   time.Duration

	ProctoringInterval time.Duration
	SessionIdleTTL     time.Duration
	DashboardCacheTTL  time.Duration
	TranscriptLimit    int
	FeedbackLimit      int
	ResponsesPerMinute int

	CloudinaryCloudName string
	CloudinaryAPIKey    string
	CloudinaryAPISecret string
	CloudinaryFolder    string
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("PROPREP")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	cfg := Config{
		AppName:      v.GetString("app.name"),
		AppEnv:       v.GetString("app.env"),
		AppPort:      v.GetString("app.port"),
		LogLevel:     strings.ToLower(v.GetString("log.level")),
		AllowOrigins: v.GetString("cors.allow_origins"),

		DatabaseURL:   v.GetString("database.url"),
		RedisURL:      v.GetString("redis.url"),
		NATSURL:       v.GetString("nats.url"),
		EventsChannel: v.GetString("events.channel"),

		JWTSecret:    v.GetString("jwt.secret"),
		DemoEmail:    v.GetString("auth.demo_email"),
		DemoPassword: v.GetString("auth.demo_password"),

		AIProvider:   strings.ToLower(strings.TrimSpace(v.GetString("ai.provider"))),
		OpenAIAPIKey: v.GetString("openai_api_key"),
		OpenAIModel:  v.GetString("openai.model"),
		OpenAIURL:    v.GetString("openai.base_url"),
		GeminiAPIKey: v.GetString("gemini_api_key"),
		GeminiModel:  v.GetString("gemini.model"),

		TranscriptLimit:    v.GetInt("report.transcript_limit"),
		FeedbackLimit:      v.GetInt("report.feedback_limit"),
		ResponsesPerMinute: v.GetInt("rate_limit.responses"),

		CloudinaryCloudName: v.GetString("cloudinary.cloud_name"),
		CloudinaryAPIKey:    v.GetString("cloudinary.api_key"),
		CloudinaryAPISecret: v.GetString("cloudinary.api_secret"),
		CloudinaryFolder:    v.GetString("cloudinary.folder"),
	}

	durations := []struct {
		key    string
		target *time.Duration
	}{
		{"jwt.ttl", &cfg.TokenTTL},
		{"ai.question_timeout", &cfg.QuestionTimeout},
		{"ai.feedback_timeout", &cfg.FeedbackTimeout},
		{"ai.proctoring_timeout", &cfg.ProctoringTimeout},
		{"ai.report_timeout", &cfg.ReportTimeout},
		{"interview.finalize_timeout", &cfg.FinalizeTimeout},
		{"proctoring.interval", &cfg.ProctoringInterval},
		{"interview.idle_ttl", &cfg.SessionIdleTTL},
		{"dashboard.cache_ttl", &cfg.DashboardCacheTTL},
	}
	for _, d := range durations {
		parsed, err := time.ParseDuration(v.GetString(d.key))
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", d.key, err)
		}
		*d.target = parsed
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "ProPrep API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("cors.allow_origins", "*")
	v.SetDefault("events.channel", "proprep")
	v.SetDefault("jwt.ttl", "24h")
	v.SetDefault("auth.demo_email", "demo@proprep.dev")
	v.SetDefault("ai.provider", "openai")
	v.SetDefault("openai.model", "gpt-4o-mini")
	v.SetDefault("gemini.model", "gemini-2.5-flash")
	v.SetDefault("ai.question_timeout", "30s")
	v.SetDefault("ai.feedback_timeout", "30s")
	v.SetDefault("ai.proctoring_timeout", "15s")
	v.SetDefault("ai.report_timeout", "2m")
	v.SetDefault("interview.finalize_timeout", "4m")
	v.SetDefault("proctoring.interval", "5s")
	v.SetDefault("interview.idle_ttl", "2h")
	v.SetDefault("dashboard.cache_ttl", "1m")
	v.SetDefault("report.transcript_limit", 2000)
	v.SetDefault("report.feedback_limit", 1000)
	v.SetDefault("rate_limit.responses", 20)
	v.SetDefault("cloudinary.folder", "proprep/proctoring")
}

func (c Config) validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("jwt secret must be provided")
	}
	if c.DemoPassword == "" {
		return fmt.Errorf("demo account password must be provided")
	}

	switch c.AIProvider {
	case "openai":
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("openai api key must be provided when ai.provider is openai")
		}
	case "gemini":
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("gemini api key must be provided when ai.provider is gemini")
		}
	default:
		return fmt.Errorf("unsupported ai provider %q", c.AIProvider)
	}

	if c.ProctoringInterval <= 0 {
		return fmt.Errorf("proctoring interval must be positive")
	}
	return nil
}
