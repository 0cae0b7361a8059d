package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

type Config struct {
	Environment    string
	HTTPAddr       string
	AllowedOrigins string
	HTTPRead       time.Duration
	HTTPWrite      time.Duration

	Storage        string
	DBDSN          string
	StorageTimeout time.Duration

	JWTSecret string
	JWTTTL    time.Duration
	OTPTTL    time.Duration

	RazorpayKeyID         string
	RazorpayKeySecret     string
	RazorpayWebhookSecret string
	BillingTimeout        time.Duration

	MailjetPublicKey  string
	MailjetPrivateKey string
	MailSender        string

	TelegramToken     string
	TelegramOpsChatID int64

	CleanupSchedule string
}

// Load reads the .env file when present and then the process environment.
func Load() (*Config, error) {
	// Пытаемся загрузить .env файл (игнорируем ошибку, если файла нет)
	if err := godotenv.Load(".env"); err != nil {
		log.Println("No .env file found, using environment variables")
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds the config from a lookup function and applies defaults.
func FromEnv(getenv func(string) string) (*Config, error) {
	p := parser{getenv: getenv}

	cfg := &Config{
		Environment:    p.str("ENV", "development"),
		HTTPAddr:       p.str("HTTP_ADDR", ":8080"),
		AllowedOrigins: p.str("ALLOWED_ORIGINS", "*"),
		HTTPRead:       p.duration("HTTP_READ_TIMEOUT", 15*time.Second),
		HTTPWrite:      p.duration("HTTP_WRITE_TIMEOUT", 15*time.Second),

		Storage:        p.str("STORAGE", StoragePostgres),
		DBDSN:          getenv("DB_DSN"),
		StorageTimeout: p.duration("STORAGE_TIMEOUT", 5*time.Second),

		JWTSecret: getenv("JWT_SECRET"),
		JWTTTL:    p.duration("JWT_TTL", 7*24*time.Hour),
		OTPTTL:    p.duration("OTP_TTL", 10*time.Minute),

		RazorpayKeyID:         getenv("RAZORPAY_KEY_ID"),
		RazorpayKeySecret:     getenv("RAZORPAY_KEY_SECRET"),
		RazorpayWebhookSecret: getenv("RAZORPAY_WEBHOOK_SECRET"),
		BillingTimeout:        p.duration("BILLING_TIMEOUT", 10*time.Second),

		MailjetPublicKey:  getenv("MAILJET_API_KEY_PUBLIC"),
		MailjetPrivateKey: getenv("MAILJET_API_KEY_PRIVATE"),
		MailSender:        p.str("MAIL_SENDER", "no-reply@studyroom.local"),

		TelegramToken:     getenv("TELEGRAM_TOKEN"),
		TelegramOpsChatID: p.integer("TELEGRAM_OPS_CHAT_ID"),

		CleanupSchedule: p.str("CLEANUP_SCHEDULE", "@every 1h"),
	}
	if p.err != nil {
		return nil, p.err
	}

	// Проверяем обязательные поля
	switch cfg.Storage {
	case StoragePostgres:
		if cfg.DBDSN == "" {
			return nil, fmt.Errorf("DB_DSN is required but not set")
		}
	case StorageMemory:
	default:
		return nil, fmt.Errorf("STORAGE must be %q or %q, got %q", StoragePostgres, StorageMemory, cfg.Storage)
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required but not set")
	}
	if cfg.TelegramToken != "" && cfg.TelegramOpsChatID == 0 {
		return nil, fmt.Errorf("TELEGRAM_OPS_CHAT_ID is required when TELEGRAM_TOKEN is set")
	}

	return cfg, nil
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// parser keeps the first conversion error.
type parser struct {
	getenv func(string) string
	err    error
}

func (p *parser) str(key, def string) string {
	if v := p.getenv(key); v != "" {
		return v
	}
	return def
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	raw := p.getenv(key)
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		p.fail(fmt.Errorf("%s: invalid duration %q", key, raw))
		return def
	}
	return d
}

func (p *parser) integer(key string) int64 {
	raw := p.getenv(key)
	if raw == "" {
		return 0
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		p.fail(fmt.Errorf("%s: invalid integer %q", key, raw))
		return 0
	}
	return n
}

func (p *parser) fail(err error) {
	if p.err == nil {
		p.err = err
	}
}
