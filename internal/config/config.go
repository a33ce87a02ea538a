package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPPort  string
	LogLevel  string
	LogFormat string
	BaseURL   string

	DatabaseURL string
	RedisURL    string

	JWTSecret       string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	LLMProvider  string
	LLMTimeout   time.Duration
	GeminiAPIKey string
	GeminiModel  string
	OpenAIAPIKey string
	OpenAIModel  string
	GroqAPIKey   string
	GroqModel    string

	TwilioAccountSID  string
	TwilioAuthToken   string
	TwilioPhoneNumber string

	VerificationCodeTTL time.Duration
	OTPRatePerMinute    int

	AllowedOrigins []string
	MediaRoot      string
	CloudinaryURL  string

	ChatHistoryLimit int
	StreamChunkDelay time.Duration
}

// Load reads configuration from the environment, loading a .env file first
// when one is present. The returned bool reports whether .env was found.
func Load() (*Config, bool, error) {
	dotenv := godotenv.Load() == nil

	cfg := &Config{
		HTTPPort:  getEnv("HTTP_PORT", "8000"),
		LogLevel:  strings.ToUpper(getEnv("LOG_LEVEL", "INFO")),
		LogFormat: getEnv("LOG_FORMAT", "json"),
		BaseURL:   strings.TrimRight(getEnv("BASE_URL", "http://localhost:8000"), "/"),

		DatabaseURL: getEnv("DATABASE_URL", "lemon_health.db"),
		RedisURL:    getEnv("REDIS_URL", "redis://localhost:6379/0"),

		JWTSecret:       getEnv("JWT_SECRET", ""),
		AccessTokenTTL:  getEnvAsDuration("ACCESS_TOKEN_TTL", 24*time.Hour),
		RefreshTokenTTL: getEnvAsDuration("REFRESH_TOKEN_TTL", 90*24*time.Hour),

		LLMProvider:  strings.ToLower(getEnv("LLM_PROVIDER", "openai")),
		LLMTimeout:   getEnvAsDuration("LLM_TIMEOUT", 30*time.Second),
		GeminiAPIKey: getEnv("GEMINI_API_KEY", ""),
		GeminiModel:  getEnv("GEMINI_MODEL", "gemini-1.5-flash-latest"),
		OpenAIAPIKey: getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:  getEnv("OPENAI_MODEL", "gpt-4o"),
		GroqAPIKey:   getEnv("GROQ_API_KEY", ""),
		GroqModel:    getEnv("GROQ_MODEL", "llama-3.3-70b-versatile"),

		TwilioAccountSID:  getEnv("TWILIO_ACCOUNT_SID", ""),
		TwilioAuthToken:   getEnv("TWILIO_AUTH_TOKEN", ""),
		TwilioPhoneNumber: getEnv("TWILIO_PHONE_NUMBER", ""),

		VerificationCodeTTL: getEnvAsDuration("VERIFICATION_CODE_TTL", 5*time.Minute),
		OTPRatePerMinute:    getEnvAsInt("OTP_RATE_PER_MINUTE", 3),

		AllowedOrigins: getEnvAsList("ALLOWED_ORIGINS", []string{"http://localhost:3000", "http://localhost:8000"}),
		MediaRoot:      getEnv("MEDIA_ROOT", "media"),
		CloudinaryURL:  getEnv("CLOUDINARY_URL", ""),

		ChatHistoryLimit: getEnvAsInt("CHAT_HISTORY_LIMIT", 20),
		StreamChunkDelay: getEnvAsDuration("STREAM_CHUNK_DELAY", 100*time.Millisecond),
	}

	if err := cfg.Validate(); err != nil {
		return nil, dotenv, err
	}
	return cfg, dotenv, nil
}

func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET environment variable is required")
	}
	switch c.LLMProvider {
	case "gemini":
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY environment variable is required for provider gemini")
		}
	case "openai":
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY environment variable is required for provider openai")
		}
	case "groq":
		if c.GroqAPIKey == "" {
			return fmt.Errorf("GROQ_API_KEY environment variable is required for provider groq")
		}
	default:
		return fmt.Errorf("unknown LLM_PROVIDER %q (want gemini, openai or groq)", c.LLMProvider)
	}
	if c.ChatHistoryLimit <= 0 {
		return fmt.Errorf("CHAT_HISTORY_LIMIT must be positive")
	}
	return nil
}

// SMSEnabled reports whether Twilio credentials are configured.
func (c *Config) SMSEnabled() bool {
	return c.TwilioAccountSID != "" && c.TwilioAuthToken != "" && c.TwilioPhoneNumber != ""
}

func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := strings.TrimSpace(getEnv(key, ""))
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
