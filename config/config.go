// Package config loads process settings from the environment and
// Operation definitions from TOML files.
package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all process configuration loaded from environment variables.
type Config struct {
	// Exchange
	BinanceAPIKey          string
	BinanceSecretKey       string
	BinanceBaseURL         string
	RequestWeightPerMinute int
	RecordsPerRequest      int
	HTTPTimeout            time.Duration
	InfiniteRetry          bool

	// Infrastructure
	KlinesDBPath  string
	OperationsDSN string
	RedisAddr     string
	RedisPassword string
	HTTPAddr      string
	LogLevel      string

	// Broadcasters
	TelegramBotToken   string
	TelegramChatID     string
	WhatsAppWebhookURL string
	SMTPAddr           string
	SMTPUser           string
	SMTPPassword       string
	EmailFrom          string
	EmailTo            []string
}

// Load reads an optional .env file at envPath, then the environment.
func Load(envPath string) *Config {
	if envPath != "" {
		if err := godotenv.Load(envPath); err != nil && !os.IsNotExist(err) {
			log.Printf("[config] could not load %s: %v", envPath, err)
		}
	}

	return &Config{
		BinanceAPIKey:          getEnv("BINANCE_API_KEY", ""),
		BinanceSecretKey:       getEnv("BINANCE_SECRET_KEY", ""),
		BinanceBaseURL:         getEnv("BINANCE_BASE_URL", ""),
		RequestWeightPerMinute: getInt("REQUEST_WEIGHT_PER_MINUTE", 1100),
		RecordsPerRequest:      getInt("RECORDS_PER_REQUEST", 1000),
		HTTPTimeout:            getDuration("HTTP_TIMEOUT", 10*time.Second),
		InfiniteRetry:          getBool("INFINITE_RETRY", true),

		KlinesDBPath:  getEnv("KLINES_DB_PATH", "data/klines.db"),
		OperationsDSN: getEnv("OPERATIONS_DSN", "sqlite3://data/operations.db"),
		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		HTTPAddr:      getEnv("HTTP_ADDR", ":8080"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),

		TelegramBotToken:   getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:     getEnv("TELEGRAM_CHAT_ID", ""),
		WhatsAppWebhookURL: getEnv("WHATSAPP_WEBHOOK_URL", ""),
		SMTPAddr:           getEnv("SMTP_ADDR", ""),
		SMTPUser:           getEnv("SMTP_USER", ""),
		SMTPPassword:       getEnv("SMTP_PASSWORD", ""),
		EmailFrom:          getEnv("EMAIL_FROM", ""),
		EmailTo:            splitList(getEnv("EMAIL_TO", "")),
	}
}

// RequireExchangeKeys exits when the signed exchange endpoints cannot be used.
func (c *Config) RequireExchangeKeys() {
	c.BinanceAPIKey = mustEnv("BINANCE_API_KEY")
	c.BinanceSecretKey = mustEnv("BINANCE_SECRET_KEY")
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func mustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		log.Fatalf("[config] required env var %s not set", key)
	}
	return v
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		log.Printf("[config] %s=%q is not a positive integer, using %d", key, v, fallback)
		return fallback
	}
	return n
}

func getBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Printf("[config] %s=%q is not a boolean, using %t", key, v, fallback)
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
	if err != nil {
		log.Printf("[config] %s=%q is not a duration, using %s", key, v, fallback)
		return fallback
	}
	return d
}
