package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Supported evaluator providers.
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// Config holds runtime configuration values for the API service.
type Config struct {
	AppName            string
	AppEnv             string
	AppPort            string
	AllowOrigins       string
	DatabaseURL        string
	RedisURL           string
	NATSURL            string
	EventSubjectPrefix string
	JWTSecret          string
	AIProvider         string
	AIModel            string
	AIBaseURL          string
	OpenAIAPIKey       string
	GeminiAPIKey       string
	EvaluationTimeout  time.Duration
	RazorpayKeyID      string
	RazorpayKeySecret  string
	PaymentTimeout     time.Duration
	SummaryCacheTTL    time.Duration
	EvaluateRateLimit  int
	EvaluateRateWindow time.Duration
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// AIKey returns the API key of the selected evaluator provider.
func (c Config) AIKey() string {
	if c.AIProvider == ProviderGemini {
		return c.GeminiAPIKey
	}
	return c.OpenAIAPIKey
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("CODEGRADE")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "CodeGrade API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("cors.allow_origins", "*")
	v.SetDefault("events.subject_prefix", "codegrade")
	v.SetDefault("ai.provider", ProviderOpenAI)
	v.SetDefault("ai.timeout", "45s")
	v.SetDefault("payment.timeout", "15s")
	v.SetDefault("summary.cache_ttl", "5m")
	v.SetDefault("evaluate.rate_limit", 10)
	v.SetDefault("evaluate.rate_window", "1m")

	durations := map[string]time.Duration{}
	for _, key := range []string{"ai.timeout", "payment.timeout", "summary.cache_ttl", "evaluate.rate_window"} {
		parsed, err := time.ParseDuration(v.GetString(key))
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", key, err)
		}
		if parsed <= 0 {
			return Config{}, fmt.Errorf("%s must be positive", key)
		}
		durations[key] = parsed
	}

	cfg := Config{
		AppName:            v.GetString("app.name"),
		AppEnv:             v.GetString("app.env"),
		AppPort:            v.GetString("app.port"),
		AllowOrigins:       v.GetString("cors.allow_origins"),
		DatabaseURL:        v.GetString("database.url"),
		RedisURL:           v.GetString("redis.url"),
		NATSURL:            v.GetString("nats.url"),
		EventSubjectPrefix: v.GetString("events.subject_prefix"),
		JWTSecret:          v.GetString("jwt.secret"),
		AIProvider:         strings.ToLower(strings.TrimSpace(v.GetString("ai.provider"))),
		AIModel:            v.GetString("ai.model"),
		AIBaseURL:          v.GetString("ai.base_url"),
		OpenAIAPIKey:       v.GetString("openai_api_key"),
		GeminiAPIKey:       v.GetString("gemini_api_key"),
		EvaluationTimeout:  durations["ai.timeout"],
		RazorpayKeyID:      v.GetString("razorpay.key_id"),
		RazorpayKeySecret:  v.GetString("razorpay.key_secret"),
		PaymentTimeout:     durations["payment.timeout"],
		SummaryCacheTTL:    durations["summary.cache_ttl"],
		EvaluateRateLimit:  v.GetInt("evaluate.rate_limit"),
		EvaluateRateWindow: durations["evaluate.rate_window"],
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) validate() error {
	var problems []error
	if c.DatabaseURL == "" {
		problems = append(problems, errors.New("database url must be provided"))
	}
	if c.RazorpayKeyID == "" || c.RazorpayKeySecret == "" {
		problems = append(problems, errors.New("razorpay key id and secret must be provided"))
	}
	switch c.AIProvider {
	case ProviderOpenAI, ProviderGemini:
		if c.AIKey() == "" {
			problems = append(problems, fmt.Errorf("api key for ai provider %q must be provided", c.AIProvider))
		}
	default:
		problems = append(problems, fmt.Errorf("unsupported ai provider %q", c.AIProvider))
	}
	if c.EvaluateRateLimit <= 0 {
		problems = append(problems, errors.New("evaluate rate limit must be positive"))
	}
	return errors.Join(problems...)
}
