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
	Port                   string
	AllowedOrigin          string
	AppEnv                 string
	DatabaseURL            string
	DatabaseMigrate        bool
	RedisAddr              string
	RedisPassword          string
	RedisDB                int
	SaleCacheTTLSeconds    int
	AuthSecret             string
	AccessTokenTTLMinutes  int
	StaffModeEnabled       bool
	GatewayKeyID           string
	GatewaySecret          string
	Currency               string
	MetricsEnabled         bool
	BootstrapAdminUsername string
	BootstrapAdminPassword string
}

// Load reads the process environment. A .env file in the working directory, when
// present, fills in keys that are not already set.
func Load() Config {
	_ = godotenv.Load()

	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))

	cfg := Config{
		Port:                   getEnv("PORT", "8080"),
		AllowedOrigin:          getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		AppEnv:                 strings.ToLower(getEnv("APP_ENV", "production")),
		DatabaseURL:            os.Getenv("DATABASE_URL"),
		DatabaseMigrate:        getBool("DATABASE_MIGRATE", false),
		RedisAddr:              os.Getenv("REDIS_ADDR"),
		RedisPassword:          os.Getenv("REDIS_PASSWORD"),
		RedisDB:                redisDB,
		SaleCacheTTLSeconds:    getPositiveInt("SALE_CACHE_TTL_SECONDS", 300),
		AuthSecret:             strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		AccessTokenTTLMinutes:  getPositiveInt("ACCESS_TOKEN_TTL_MINUTES", 480),
		StaffModeEnabled:       getBool("STAFF_MODE_ENABLED", false),
		GatewayKeyID:           strings.TrimSpace(os.Getenv("GATEWAY_KEY_ID")),
		GatewaySecret:          strings.TrimSpace(os.Getenv("GATEWAY_SECRET")),
		Currency:               strings.ToUpper(getEnv("CURRENCY", "USD")),
		MetricsEnabled:         getBool("METRICS_ENABLED", true),
		BootstrapAdminUsername: getEnv("BOOTSTRAP_ADMIN_USERNAME", "admin"),
		BootstrapAdminPassword: strings.TrimSpace(os.Getenv("BOOTSTRAP_ADMIN_PASSWORD")),
	}

	return cfg
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func (c Config) SaleCacheTTL() time.Duration {
	return time.Duration(c.SaleCacheTTLSeconds) * time.Second
}

func (c Config) AccessTokenTTL() time.Duration {
	return time.Duration(c.AccessTokenTTLMinutes) * time.Minute
}

func (c Config) Development() bool {
	return c.AppEnv == "development"
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

func getPositiveInt(key string, fallback int) int {
	n, err := strconv.Atoi(getEnv(key, strconv.Itoa(fallback)))
	if err != nil || n < 1 {
		return fallback
	}
	return n
}

func getBool(key string, fallback bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return v
}
