// Package config reads service settings from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port           string
	DatabaseURL    string
	DBMaxConns     int32
	Migrate        bool
	JWTSecret      string
	JWTTTL         time.Duration
	RequestTimeout time.Duration
	TxMaxRetries   int
	AdminEmail     string

	KafkaBrokers string
	KafkaTopic   string
	KafkaGroupID string
	OutboxPoll   time.Duration
	OutboxBatch  int
}

// Load reads the API settings. DATABASE_URL and JWT_SECRET are required.
func Load() (Config, error) {
	c, err := LoadBase()
	if err != nil {
		return Config{}, err
	}
	c.JWTSecret = strings.TrimSpace(os.Getenv("JWT_SECRET"))
	if c.JWTSecret == "" {
		return Config{}, errors.New("JWT_SECRET is required")
	}
	return c, nil
}

// LoadBase reads the settings shared by every service; only DATABASE_URL is
// required.
func LoadBase() (Config, error) {
	db := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if db == "" {
		return Config{}, errors.New("DATABASE_URL is required")
	}

	var errs []error
	c := Config{
		Port:         getenv("PORT", "8080"),
		DatabaseURL:  db,
		AdminEmail:   strings.ToLower(getenv("ADMIN_EMAIL", "")),
		KafkaBrokers: getenv("KAFKA_BROKERS", ""),
		KafkaTopic:   getenv("KAFKA_TOPIC", "storefront.orders"),
		KafkaGroupID: getenv("KAFKA_GROUP_ID", "notification-service"),
	}
	c.JWTTTL = duration("JWT_TTL", "24h", &errs)
	c.RequestTimeout = millis("REQUEST_TIMEOUT_MS", 5000, &errs)
	c.OutboxPoll = millis("OUTBOX_POLL_MS", 500, &errs)
	c.TxMaxRetries = integer("TX_MAX_RETRIES", 3, &errs)
	c.OutboxBatch = integer("OUTBOX_BATCH", 100, &errs)
	c.DBMaxConns = int32(integer("DB_MAX_CONNS", 25, &errs))
	c.Migrate = boolean(getenv("MIGRATE", "true"))

	if err := errors.Join(errs...); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return c, nil
}

func getenv(k, def string) string {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	return v
}

func integer(k string, def int, errs *[]error) int {
	n, err := strconv.Atoi(getenv(k, strconv.Itoa(def)))
	if err != nil || n < 0 {
		*errs = append(*errs, fmt.Errorf("%s must be a non-negative integer", k))
		return def
	}
	return n
}

func millis(k string, def int, errs *[]error) time.Duration {
	return time.Duration(integer(k, def, errs)) * time.Millisecond
}

func duration(k, def string, errs *[]error) time.Duration {
	d, err := time.ParseDuration(getenv(k, def))
	if err != nil || d <= 0 {
		*errs = append(*errs, fmt.Errorf("%s must be a positive duration", k))
	}
	return d
}

func boolean(v string) bool {
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}
