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
)

const defaultAdminPassword = "change-me"

// Config aggregates runtime configuration for the API server and supporting services.
type Config struct {
	Env            string
	LogLevel       string
	HTTPListenAddr string
	BaseURL        string
	CORSOrigins    []string

	MySQLDSN string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	SessionSecret string
	SessionTTL    time.Duration

	OpenAIAPIKey      string
	OpenAIBaseURL     string
	OpenAIImageModel  string
	OpenAISpeechModel string
	ImageBackend      string
	GeminiAPIKey      string
	GeminiImageModel  string
	RequestTimeout    time.Duration
	GenerationTimeout time.Duration

	ImageCreditCost  int
	SpeechCreditCost int

	RateLimitRequests int
	RateLimitWindow   time.Duration
	GlobalRateLimit   int

	StripeSecretKey     string
	StripeWebhookSecret string
	StripeBasicPriceID  string
	StripeMediumPriceID string
	StripeProPriceID    string
	PlanBasicCredits    int
	PlanMediumCredits   int
	PlanProCredits      int

	StorageBackend    string
	S3Endpoint        string
	S3Region          string
	S3AccessKey       string
	S3SecretKey       string
	S3Bucket          string
	S3PublicBaseURL   string
	S3UsePathStyle    bool
	S3Prefix          string
	GCSBucket         string
	GCSPublicBaseURL  string
	GCSPrefix         string

	ResendAPIKey string
	EmailFrom    string

	GoogleClientID     string
	GoogleClientSecret string

	AdminUsername string
	AdminPassword string

	TelegramBotToken    string
	TelegramAlertChatID int64

	ReservationReapInterval time.Duration
	ReservationStaleAfter   time.Duration

	GalleryCacheTTL time.Duration
}

// Production reports whether the server runs behind TLS in production.
func (c Config) Production() bool {
	return c.Env == "production"
}

// Load reads configuration from environment variables, applying sane defaults.
func Load() (Config, error) {
	if err := loadEnvFile(); err != nil {
		return Config{}, err
	}

	cfg := Config{
		Env:               getEnv("APP_ENV", "development"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		HTTPListenAddr:    getEnv("HTTP_LISTEN_ADDR", ":8080"),
		BaseURL:           strings.TrimRight(getEnv("BASE_URL", "http://localhost:8080"), "/"),
		CORSOrigins:       splitList(getEnv("CORS_ORIGINS", "*")),
		RedisAddr:         getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:     os.Getenv("REDIS_PASSWORD"),
		RedisDB:           getInt("REDIS_DB", 0),
		SessionTTL:        getDuration("SESSION_TTL", 30*24*time.Hour),
		OpenAIBaseURL:     strings.TrimRight(getEnv("OPENAI_BASE_URL", "https://api.openai.com"), "/"),
		OpenAIImageModel:  getEnv("OPENAI_IMAGE_MODEL", "dall-e-3"),
		OpenAISpeechModel: getEnv("OPENAI_SPEECH_MODEL", "tts-1"),
		ImageBackend:      strings.ToLower(getEnv("IMAGE_BACKEND", "openai")),
		GeminiImageModel:  getEnv("GEMINI_IMAGE_MODEL", "imagen-4.0-generate-001"),
		RequestTimeout:    time.Second * time.Duration(getInt("HTTP_TIMEOUT_SECONDS", 120)),
		GenerationTimeout: getDuration("GENERATION_TIMEOUT", 5*time.Minute),
		ImageCreditCost:   getInt("IMAGE_CREDIT_COST", 1),
		SpeechCreditCost:  getInt("SPEECH_CREDIT_COST", 2),
		RateLimitRequests: getInt("RATE_LIMIT_REQUESTS", 5),
		RateLimitWindow:   getDuration("RATE_LIMIT_WINDOW", 30*time.Second),
		GlobalRateLimit:   getInt("GLOBAL_RATE_LIMIT", 100),
		PlanBasicCredits:  getInt("PLAN_BASIC_CREDITS", 10),
		PlanMediumCredits: getInt("PLAN_MEDIUM_CREDITS", 30),
		PlanProCredits:    getInt("PLAN_PRO_CREDITS", 50),
		StorageBackend:    strings.ToLower(getEnv("STORAGE_BACKEND", "s3")),
		S3Endpoint:        getEnv("S3_ENDPOINT", ""),
		S3Region:          os.Getenv("S3_REGION"),
		S3AccessKey:       os.Getenv("S3_ACCESS_KEY"),
		S3SecretKey:       os.Getenv("S3_SECRET_KEY"),
		S3Bucket:          os.Getenv("S3_BUCKET"),
		S3PublicBaseURL:   os.Getenv("S3_PUBLIC_BASE_URL"),
		S3UsePathStyle:    getBool("S3_USE_PATH_STYLE", false),
		S3Prefix:          getEnv("S3_PREFIX", "generations"),
		GCSBucket:         os.Getenv("GCS_BUCKET"),
		GCSPublicBaseURL:  getEnv("GCS_PUBLIC_BASE_URL", "https://storage.googleapis.com"),
		GCSPrefix:         getEnv("GCS_PREFIX", "generations"),
		EmailFrom:         getEnv("EMAIL_FROM", "AI Image Generator <noreply@example.com>"),
		AdminUsername:     getEnv("ADMIN_USERNAME", "admin"),
		AdminPassword:     getEnv("ADMIN_PASSWORD", defaultAdminPassword),

		TelegramAlertChatID:     getInt64("TELEGRAM_ALERT_CHAT_ID", 0),
		ReservationReapInterval: getDuration("RESERVATION_REAP_INTERVAL", time.Minute),
		GalleryCacheTTL:         getDuration("GALLERY_CACHE_TTL", 5*time.Minute),
	}

	cfg.MySQLDSN = os.Getenv("MYSQL_DSN")
	cfg.SessionSecret = os.Getenv("SESSION_SECRET")
	cfg.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	cfg.GeminiAPIKey = os.Getenv("GEMINI_API_KEY")
	cfg.StripeSecretKey = os.Getenv("STRIPE_SECRET_KEY")
	cfg.StripeWebhookSecret = os.Getenv("STRIPE_WEBHOOK_SECRET")
	cfg.StripeBasicPriceID = os.Getenv("STRIPE_BASIC_PRICE_ID")
	cfg.StripeMediumPriceID = os.Getenv("STRIPE_MEDIUM_PRICE_ID")
	cfg.StripeProPriceID = os.Getenv("STRIPE_PRO_PRICE_ID")
	cfg.ResendAPIKey = os.Getenv("RESEND_API_KEY")
	cfg.GoogleClientID = os.Getenv("GOOGLE_CLIENT_ID")
	cfg.GoogleClientSecret = os.Getenv("GOOGLE_CLIENT_SECRET")
	cfg.TelegramBotToken = os.Getenv("TELEGRAM_BOT_TOKEN")

	// Pending reservations older than the generation ceiling can only be orphans.
	cfg.ReservationStaleAfter = getDuration("RESERVATION_STALE_AFTER", 2*cfg.GenerationTimeout)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	var missing []string
	require := func(value, key string) {
		if value == "" {
			missing = append(missing, key)
		}
	}

	require(c.MySQLDSN, "MYSQL_DSN")
	require(c.SessionSecret, "SESSION_SECRET")
	require(c.OpenAIAPIKey, "OPENAI_API_KEY")
	require(c.StripeSecretKey, "STRIPE_SECRET_KEY")
	require(c.StripeWebhookSecret, "STRIPE_WEBHOOK_SECRET")
	require(c.StripeBasicPriceID, "STRIPE_BASIC_PRICE_ID")
	require(c.StripeMediumPriceID, "STRIPE_MEDIUM_PRICE_ID")
	require(c.StripeProPriceID, "STRIPE_PRO_PRICE_ID")

	switch c.ImageBackend {
	case "openai":
	case "gemini":
		require(c.GeminiAPIKey, "GEMINI_API_KEY")
	default:
		return fmt.Errorf("unsupported IMAGE_BACKEND: %s", c.ImageBackend)
	}

	switch c.StorageBackend {
	case "s3":
		require(c.S3Region, "S3_REGION")
		require(c.S3AccessKey, "S3_ACCESS_KEY")
		require(c.S3SecretKey, "S3_SECRET_KEY")
		require(c.S3Bucket, "S3_BUCKET")
		require(c.S3PublicBaseURL, "S3_PUBLIC_BASE_URL")
	case "gcs":
		require(c.GCSBucket, "GCS_BUCKET")
	default:
		return fmt.Errorf("unsupported STORAGE_BACKEND: %s", c.StorageBackend)
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %v", missing)
	}
	// Admin routes grant credits, so production never runs on the shipped password.
	if c.Production() && c.AdminPassword == defaultAdminPassword {
		return errors.New("ADMIN_PASSWORD must be set to a non-default value in production")
	}
	if c.ImageCreditCost <= 0 || c.SpeechCreditCost <= 0 {
		return errors.New("credit costs must be positive")
	}
	if c.RateLimitRequests <= 0 || c.RateLimitWindow <= 0 {
		return errors.New("rate limit must be positive")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func getInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return i
}

func getBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// loadEnvFile overlays the first env file found. Running without one is fine,
// containers usually inject the environment directly.
func loadEnvFile() error {
	candidates := []string{}
	if custom, ok := os.LookupEnv("CONFIG_ENV_PATH"); ok && custom != "" {
		candidates = append(candidates, custom)
	}
	candidates = append(candidates,
		filepath.Join("configs", ".env"),
		".env",
	)

	for _, path := range candidates {
		info, err := os.Stat(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("access env file %s: %w", path, err)
		}
		if info.IsDir() {
			continue
		}
		if err := godotenv.Overload(path); err != nil {
			return fmt.Errorf("load env file %s: %w", path, err)
		}
		return nil
	}
	return nil
}
