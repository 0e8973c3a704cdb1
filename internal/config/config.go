/**
 * @description
 * This package handles the configuration management for the pool service. It uses the
 * Viper library to read configuration from environment variables (and an optional .env
 * file), providing a single Config shared by the server, scheduler and migrate binaries.
 *
 * @dependencies
 * - github.com/spf13/viper: Configuration loading.
 * - github.com/sirupsen/logrus: Warnings about ignored or coerced values.
 */

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

const (
	SelectionModeLenient = "lenient"
	SelectionModeStrict  = "strict"
)

// Config holds all the configuration variables for the pool service.
// These values are loaded from environment variables.
type Config struct {
	ServerPort                 string   `mapstructure:"SERVER_PORT"`
	DatabaseURL                string   `mapstructure:"DATABASE_URL"`
	DBMaxConns                 int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns                 int32    `mapstructure:"DB_MIN_CONNS"`
	RedisURL                   string   `mapstructure:"REDIS_URL"`
	RedisKeyPrefix             string   `mapstructure:"REDIS_KEY_PREFIX"`
	PoolCacheKeysRaw           string   `mapstructure:"POOL_CACHE_KEYS"`
	RabbitMQURL                string   `mapstructure:"RABBITMQ_URL"`
	EventsExchange             string   `mapstructure:"EVENTS_EXCHANGE"`
	DeclareQueue               string   `mapstructure:"DECLARE_QUEUE"`
	PayoutAPIBaseURL           string   `mapstructure:"PAYOUT_API_BASE_URL"`
	PayoutKeyID                string   `mapstructure:"PAYOUT_KEY_ID"`
	PayoutKeySecret            string   `mapstructure:"PAYOUT_KEY_SECRET"`
	PayoutAccountNumber        string   `mapstructure:"PAYOUT_ACCOUNT_NUMBER"`
	PayoutCurrency             string   `mapstructure:"PAYOUT_CURRENCY"`
	JWTSecret                  string   `mapstructure:"JWT_SECRET"`
	InternalAPIKey             string   `mapstructure:"INTERNAL_API_KEY"`
	CORSAllowedOriginsRaw      string   `mapstructure:"CORS_ALLOWED_ORIGINS"`
	WinnerSelectionMode        string   `mapstructure:"WINNER_SELECTION_MODE"`
	SettlementPopulation       int      `mapstructure:"SETTLEMENT_POPULATION"`
	PoolMaintenanceSchedule    string   `mapstructure:"POOL_MAINTENANCE_SCHEDULE"`
	SchedulerTimezone          string   `mapstructure:"SCHEDULER_TIMEZONE"`
	TicketRateLimitPerMinute   int      `mapstructure:"TICKET_RATE_LIMIT_PER_MINUTE"`
	WithdrawRateLimitPerMinute int      `mapstructure:"WITHDRAW_RATE_LIMIT_PER_MINUTE"`
	LogLevel                   string   `mapstructure:"LOG_LEVEL"`
	LogFormat                  string   `mapstructure:"LOG_FORMAT"`
	PoolCacheKeys              []string `mapstructure:"-"`
	CORSAllowedOrigins         []string `mapstructure:"-"`
}

var defaults = map[string]interface{}{
	"SERVER_PORT":                    "8080",
	"DB_MAX_CONNS":                   50,
	"DB_MIN_CONNS":                   5,
	"REDIS_KEY_PREFIX":               "luckypool",
	"POOL_CACHE_KEYS":                "pools:all:v1",
	"EVENTS_EXCHANGE":                "lottery_events",
	"DECLARE_QUEUE":                  "pool_declare_requests",
	"PAYOUT_API_BASE_URL":            "https://api.razorpay.com",
	"PAYOUT_CURRENCY":                "INR",
	"CORS_ALLOWED_ORIGINS":           "*",
	"WINNER_SELECTION_MODE":          SelectionModeLenient,
	"SETTLEMENT_POPULATION":          100,
	"POOL_MAINTENANCE_SCHEDULE":      "0 */6 * * *",
	"SCHEDULER_TIMEZONE":             "Asia/Kolkata",
	"TICKET_RATE_LIMIT_PER_MINUTE":   30,
	"WITHDRAW_RATE_LIMIT_PER_MINUTE": 5,
	"LOG_LEVEL":                      "info",
	"LOG_FORMAT":                     "text",
}

var boundKeys = []string{
	"DATABASE_URL",
	"REDIS_URL",
	"RABBITMQ_URL",
	"PAYOUT_KEY_ID",
	"PAYOUT_KEY_SECRET",
	"PAYOUT_ACCOUNT_NUMBER",
	"JWT_SECRET",
	"INTERNAL_API_KEY",
}

// LoadConfig reads configuration from environment variables and an optional .env file in path.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	for key, value := range defaults {
		viper.SetDefault(key, value)
		_ = viper.BindEnv(key)
	}
	for _, key := range boundKeys {
		_ = viper.BindEnv(key)
	}
	_ = viper.BindEnv("PORT")

	if err = viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			logrus.WithField("component", "config").WithError(err).Warn("failed to read config file; using environment values")
		}
		err = nil
	}

	if err = viper.Unmarshal(&config); err != nil {
		return
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}

	err = normalize(&config)
	return
}

func normalize(config *Config) error {
	config.DatabaseURL = strings.TrimSpace(config.DatabaseURL)
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RabbitMQURL = strings.TrimSpace(config.RabbitMQURL)
	config.JWTSecret = strings.TrimSpace(config.JWTSecret)
	config.InternalAPIKey = strings.TrimSpace(config.InternalAPIKey)
	config.PayoutAPIBaseURL = strings.TrimRight(strings.TrimSpace(config.PayoutAPIBaseURL), "/")
	config.PayoutCurrency = strings.ToUpper(strings.TrimSpace(config.PayoutCurrency))
	if config.PayoutCurrency == "" {
		config.PayoutCurrency = "INR"
	}
	config.RedisKeyPrefix = strings.TrimSpace(config.RedisKeyPrefix)
	if config.RedisKeyPrefix == "" {
		config.RedisKeyPrefix = "luckypool"
	}

	config.WinnerSelectionMode = strings.ToLower(strings.TrimSpace(config.WinnerSelectionMode))
	switch config.WinnerSelectionMode {
	case "":
		config.WinnerSelectionMode = SelectionModeLenient
	case SelectionModeLenient, SelectionModeStrict:
	default:
		return fmt.Errorf("invalid WINNER_SELECTION_MODE %q: expected %q or %q", config.WinnerSelectionMode, SelectionModeLenient, SelectionModeStrict)
	}

	if config.SettlementPopulation <= 0 {
		logrus.WithFields(logrus.Fields{"component": "config", "value": config.SettlementPopulation}).Warn("non-positive settlement population; using 100")
		config.SettlementPopulation = 100
	}
	if config.DBMaxConns <= 0 {
		config.DBMaxConns = 50
	}
	if config.DBMinConns < 0 || config.DBMinConns > config.DBMaxConns {
		config.DBMinConns = 0
	}
	if config.TicketRateLimitPerMinute <= 0 {
		config.TicketRateLimitPerMinute = 30
	}
	if config.WithdrawRateLimitPerMinute <= 0 {
		config.WithdrawRateLimitPerMinute = 5
	}
	if strings.TrimSpace(config.PoolMaintenanceSchedule) == "" {
		config.PoolMaintenanceSchedule = "0 */6 * * *"
	}

	config.PoolCacheKeys = splitList(config.PoolCacheKeysRaw)
	config.CORSAllowedOrigins = splitList(config.CORSAllowedOriginsRaw)
	if len(config.CORSAllowedOrigins) == 0 {
		config.CORSAllowedOrigins = []string{"*"}
	}
	return nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
