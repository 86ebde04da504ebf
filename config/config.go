package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/farellandr/lunchticket/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type Config struct {
	Environment string
	LogLevel    string
	LogFile     string
	SentryDSN   string
	Release     string

	DiscordToken   string
	TicketCategory string
	LunchPrice     string
	Currency       string
	PaymentAccount string

	DBURL            string
	DBMinConnections int
	DBMaxConnections int
	DBConnectRetries int
	DBConnectDelay   time.Duration

	Port              string
	JWTSecret         string
	AdminPasswordHash string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	KafkaBrokers []string
}

func LoadConfig() (*Config, error) {
	cfg := &Config{
		Environment:       getEnv("ENVIRONMENT", "development"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		LogFile:           getEnv("LOG_FILE", "logs/bot.log"),
		SentryDSN:         os.Getenv("SENTRY_DSN"),
		Release:           getEnv("BOT_VERSION", "1.0.0"),
		DiscordToken:      os.Getenv("DISCORD_TOKEN"),
		TicketCategory:    getEnv("TICKET_CATEGORY", "Lunch Tickets"),
		LunchPrice:        getEnv("LUNCH_PRICE", "55.000 VND"),
		Currency:          getEnv("CURRENCY", "VND"),
		PaymentAccount:    os.Getenv("PAYMENT_ACCOUNT"),
		DBURL:             withSSLModeDisabled(os.Getenv("DB_URL")),
		Port:              getEnv("PORT", "8080"),
		JWTSecret:         os.Getenv("JWT_SECRET"),
		AdminPasswordHash: os.Getenv("ADMIN_PASSWORD_HASH"),
		RedisAddr:         os.Getenv("REDIS_ADDR"),
		RedisPassword:     os.Getenv("REDIS_PASSWORD"),
		KafkaBrokers:      splitList(os.Getenv("KAFKA_BROKERS")),
	}

	var err error
	if cfg.DBMinConnections, err = getEnvInt("DB_MIN_CONNECTIONS", 1); err != nil {
		return nil, err
	}
	if cfg.DBMaxConnections, err = getEnvInt("DB_MAX_CONNECTIONS", 10); err != nil {
		return nil, err
	}
	if cfg.DBConnectRetries, err = getEnvInt("DB_CONNECT_RETRIES", 10); err != nil {
		return nil, err
	}
	if cfg.RedisDB, err = getEnvInt("REDIS_DB", 0); err != nil {
		return nil, err
	}
	if cfg.DBConnectDelay, err = time.ParseDuration(getEnv("DB_CONNECT_DELAY", "5s")); err != nil {
		return nil, fmt.Errorf("invalid DB_CONNECT_DELAY: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.DiscordToken == "" {
		errs = append(errs, errors.New("DISCORD_TOKEN is required"))
	}
	if c.DBURL == "" {
		errs = append(errs, errors.New("DB_URL is required"))
	}
	if c.DBMinConnections < 0 || c.DBMaxConnections < 1 || c.DBMinConnections > c.DBMaxConnections {
		errs = append(errs, fmt.Errorf("invalid pool bounds: min=%d max=%d", c.DBMinConnections, c.DBMaxConnections))
	}
	if c.DBConnectRetries < 1 {
		errs = append(errs, errors.New("DB_CONNECT_RETRIES must be at least 1"))
	}
	return errors.Join(errs...)
}

// withSSLModeDisabled appends sslmode=disable unless the URL already sets
// an sslmode; the database normally sits on a private docker network.
func withSSLModeDisabled(dbURL string) string {
	if dbURL == "" || strings.Contains(dbURL, "sslmode=") {
		return dbURL
	}
	sep := "?"
	if strings.Contains(dbURL, "?") {
		sep = "&"
	}
	return dbURL + sep + "sslmode=disable"
}

// OpenDatabase makes a single connection attempt and applies pool bounds.
func OpenDatabase(cfg *Config) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DBURL), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(cfg.DBMinConnections)
	sqlDB.SetMaxOpenConns(cfg.DBMaxConnections)

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return db, nil
}

// InitDatabase connects with retries and brings the schema up to date.
func InitDatabase(cfg *Config, log zerolog.Logger) (*gorm.DB, error) {
	var db *gorm.DB
	var err error
	for attempt := 1; attempt <= cfg.DBConnectRetries; attempt++ {
		db, err = OpenDatabase(cfg)
		if err == nil {
			break
		}
		log.Error().Err(err).Int("attempt", attempt).Msg("failed to connect to the database")
		if attempt < cfg.DBConnectRetries {
			log.Info().Dur("delay", cfg.DBConnectDelay).Msg("retrying database connection")
			time.Sleep(cfg.DBConnectDelay)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("all %d connection attempts failed: %w", cfg.DBConnectRetries, err)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}
	log.Info().Msg("database tables are set up")
	return db, nil
}

// Migrate creates missing tables and adds missing columns; it never drops.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.User{}, &models.Transaction{}); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

// InitRedis returns nil when no address is configured.
func InitRedis(ctx context.Context, cfg *Config) (*redis.Client, error) {
	if cfg.RedisAddr == "" {
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if _, err := client.Ping(ctx).Result(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect redis at %s: %w", cfg.RedisAddr, err)
	}
	return client, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
