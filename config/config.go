package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Trading
	TradingMode string `validate:"oneof=test production"`

	// Binance credentials (required in production mode)
	BinanceAPIKey    string
	BinanceSecretKey string
	BinanceAPIURL    string `validate:"url"`
	StreamEnabled    bool
	StreamSymbols    []string

	// Infrastructure
	SQLitePath    string `validate:"required"`
	RedisAddr     string
	RedisPassword string
	RedisDB       int    `validate:"gte=0"`
	SignalStore   string `validate:"oneof=memory redis"`
	HTTPAddr      string `validate:"required"`
	MetricsAddr   string

	// Notification
	TelegramBotToken string
	TelegramChatID   string
	WebhookURL       string `validate:"omitempty,url"`
	AMQPURL          string
	AMQPQueue        string

	// Guards
	PanicTOTPSecret string
	CronSecret      string

	// Engines
	KlineInterval string
	KlineLimit    int `validate:"gte=100,lte=1000"`

	LogLevel string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	cfg := &Config{
		TradingMode: strings.ToLower(getEnv("TRADING_MODE", "test")),

		BinanceAPIKey:    os.Getenv("BINANCE_API_KEY"),
		BinanceSecretKey: os.Getenv("BINANCE_SECRET_KEY"),
		BinanceAPIURL:    getEnv("BINANCE_API_URL", "https://api.binance.com"),
		StreamEnabled:    getEnvBool("BINANCE_STREAM_ENABLED", false),
		StreamSymbols:    parseList(getEnv("BINANCE_STREAM_SYMBOLS", "BTCUSDT,ETHUSDT,SOLUSDT")),

		SQLitePath:    getEnv("SQLITE_PATH", "data/signals.db"),
		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		SignalStore:   strings.ToLower(getEnv("SIGNAL_STORE", "memory")),
		HTTPAddr:      getEnv("HTTP_ADDR", ":8080"),
		MetricsAddr:   getEnv("METRICS_ADDR", ":9090"),

		TelegramBotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramChatID:   os.Getenv("TELEGRAM_CHAT_ID"),
		WebhookURL:       os.Getenv("WEBHOOK_URL"),
		AMQPURL:          os.Getenv("AMQP_URL"),
		AMQPQueue:        getEnv("AMQP_QUEUE", "signal_alerts"),

		PanicTOTPSecret: os.Getenv("PANIC_TOTP_SECRET"),
		CronSecret:      os.Getenv("CRON_SECRET"),

		KlineInterval: getEnv("KLINE_INTERVAL", "1h"),
		KlineLimit:    getEnvInt("KLINE_LIMIT", 200),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	// Live orders need signed requests.
	if cfg.Production() {
		cfg.BinanceAPIKey = mustEnv("BINANCE_API_KEY")
		cfg.BinanceSecretKey = mustEnv("BINANCE_SECRET_KEY")
	}
	return cfg
}

// Production reports whether orders go to the live exchange.
func (c *Config) Production() bool { return c.TradingMode == "production" }

// Validate checks value ranges and cross-field requirements.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.SignalStore == "redis" && c.RedisAddr == "" {
		return fmt.Errorf("config: SIGNAL_STORE=redis requires REDIS_ADDR")
	}
	if (c.TelegramBotToken == "") != (c.TelegramChatID == "") {
		return fmt.Errorf("config: TELEGRAM_BOT_TOKEN and TELEGRAM_CHAT_ID must be set together")
	}
	return nil
}

func parseList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		p = strings.ToUpper(strings.TrimSpace(p))
		if p != "" {
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

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("[config] invalid %s=%q, using %d", key, v, fallback)
		return fallback
	}
	return n
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Printf("[config] invalid %s=%q, using %t", key, v, fallback)
		return fallback
	}
	return b
}
