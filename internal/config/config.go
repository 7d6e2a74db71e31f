package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Env      string `yaml:"env"`
	LogLevel string `yaml:"log_level"`
	Port     int    `yaml:"port"`
	Storage  string `yaml:"storage"` // postgres | memory

	DBURL       string `yaml:"db_url"`
	DBMaxConns  int    `yaml:"db_max_conns"`
	AutoMigrate bool   `yaml:"auto_migrate"`

	JWTSecret           string `yaml:"jwt_secret"`
	JWTAccessTTLMinutes int    `yaml:"jwt_access_ttl_minutes"`
	JWTRefreshTTLDays   int    `yaml:"jwt_refresh_ttl_days"`
	BcryptCost          int    `yaml:"bcrypt_cost"`

	AdminEmail    string `yaml:"admin_email"`
	AdminPassword string `yaml:"admin_password"`
	AdminName     string `yaml:"admin_name"`

	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`

	LoginRateLimit         int `yaml:"login_rate_limit"`
	LoginRateWindowSeconds int `yaml:"login_rate_window_seconds"`

	OTelEnabled  bool    `yaml:"otel_enabled"`
	OTelEndpoint string  `yaml:"otel_endpoint"`
	OTelSampling float64 `yaml:"otel_sampling"`

	CORSAllowedOrigins []string `yaml:"cors_allowed_origins"`
	MaxBodyBytes       int64    `yaml:"max_body_bytes"`
}

const devJWTSecret = "dev-secret-change-me"

func defaults() Config {
	return Config{
		Env:                    "dev",
		Port:                   8080,
		Storage:                "postgres",
		DBMaxConns:             5,
		AutoMigrate:            true,
		JWTSecret:              devJWTSecret,
		JWTAccessTTLMinutes:    15,
		JWTRefreshTTLDays:      7,
		AdminName:              "Administrator",
		LoginRateLimit:         10,
		LoginRateWindowSeconds: 60,
		OTelSampling:           1,
		MaxBodyBytes:           1 << 20,
	}
}

// Load builds the config from defaults, then an optional YAML file named by
// APP_CONFIG_FILE, then environment variables (a .env file is read first
// when present). Later sources win.
func Load() (Config, error) {
	// a missing .env is fine
	_ = godotenv.Load()

	cfg := defaults()

	if path := os.Getenv("APP_CONFIG_FILE"); path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read file %s: %w", path, err)
		}

		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse yaml: %w", err)
		}
	}

	var errs []error

	cfg.Env = getEnv("APP_ENV", cfg.Env)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.Port = getEnvInt("PORT", cfg.Port, &errs)
	cfg.Storage = getEnv("STORAGE", cfg.Storage)
	cfg.DBURL = getEnv("DATABASE_URL", cfg.DBURL)
	if cfg.DBURL == "" {
		cfg.DBURL = buildDBURL()
	}
	cfg.DBMaxConns = getEnvInt("DB_MAX_CONNS", cfg.DBMaxConns, &errs)
	cfg.AutoMigrate = getEnvBool("DB_AUTO_MIGRATE", cfg.AutoMigrate, &errs)

	cfg.JWTSecret = getEnv("JWT_SECRET", cfg.JWTSecret)
	cfg.JWTAccessTTLMinutes = getEnvInt("JWT_ACCESS_TTL_MINUTES", cfg.JWTAccessTTLMinutes, &errs)
	cfg.JWTRefreshTTLDays = getEnvInt("JWT_REFRESH_TTL_DAYS", cfg.JWTRefreshTTLDays, &errs)
	cfg.BcryptCost = getEnvInt("BCRYPT_COST", cfg.BcryptCost, &errs)

	cfg.AdminEmail = getEnv("ADMIN_EMAIL", cfg.AdminEmail)
	cfg.AdminPassword = getEnv("ADMIN_PASSWORD", cfg.AdminPassword)
	cfg.AdminName = getEnv("ADMIN_NAME", cfg.AdminName)

	cfg.RedisAddr = getEnv("REDIS_ADDR", cfg.RedisAddr)
	cfg.RedisPassword = getEnv("REDIS_PASSWORD", cfg.RedisPassword)
	cfg.RedisDB = getEnvInt("REDIS_DB", cfg.RedisDB, &errs)

	cfg.LoginRateLimit = getEnvInt("LOGIN_RATE_LIMIT", cfg.LoginRateLimit, &errs)
	cfg.LoginRateWindowSeconds = getEnvInt("LOGIN_RATE_WINDOW_SECONDS", cfg.LoginRateWindowSeconds, &errs)

	cfg.OTelEnabled = getEnvBool("OTEL_ENABLED", cfg.OTelEnabled, &errs)
	cfg.OTelEndpoint = getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.OTelEndpoint)

	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		cfg.CORSAllowedOrigins = splitList(v)
	}

	if len(errs) > 0 {
		return Config{}, errors.Join(errs...)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) Validate() error {
	switch c.Storage {
	case "postgres", "memory":
	default:
		return fmt.Errorf("config: unknown storage %q", c.Storage)
	}

	if c.Env == "prod" && (c.JWTSecret == "" || c.JWTSecret == devJWTSecret) {
		return errors.New("config: JWT_SECRET must be set in prod")
	}

	if c.JWTAccessTTLMinutes <= 0 || c.JWTRefreshTTLDays <= 0 {
		return errors.New("config: token TTLs must be positive")
	}

	if c.LoginRateLimit <= 0 || c.LoginRateWindowSeconds <= 0 {
		return errors.New("config: LOGIN_RATE_LIMIT and LOGIN_RATE_WINDOW_SECONDS must be positive")
	}

	return c.validateAdmin()
}

// validateAdmin applies the account field rules to the seeded admin so a bad
// value fails at startup with a readable message.
func (c Config) validateAdmin() error {
	if c.AdminEmail == "" || c.AdminPassword == "" {
		return nil
	}

	if n := utf8.RuneCountInString(strings.TrimSpace(c.AdminName)); n < 2 || n > 32 {
		return errors.New("config: ADMIN_NAME must be 2-32 characters")
	}

	if len(c.AdminEmail) > 64 || !strings.Contains(c.AdminEmail, "@") {
		return errors.New("config: ADMIN_EMAIL must be a valid address of at most 64 characters")
	}

	// bcrypt refuses inputs longer than 72 bytes
	if n := utf8.RuneCountInString(c.AdminPassword); n < 8 || n > 32 || len(c.AdminPassword) > 72 {
		return errors.New("config: ADMIN_PASSWORD must be 8-32 characters")
	}

	return nil
}

func (c Config) AccessTTL() time.Duration {
	return time.Duration(c.JWTAccessTTLMinutes) * time.Minute
}

func (c Config) RefreshTTL() time.Duration {
	return time.Duration(c.JWTRefreshTTLDays) * 24 * time.Hour
}

func (c Config) LoginRateWindow() time.Duration {
	return time.Duration(c.LoginRateWindowSeconds) * time.Second
}

func buildDBURL() string {
	host := getEnv("DB_HOST", "127.0.0.1")
	port := getEnv("DB_PORT", "5432")
	user := getEnv("DB_USER", "accounthub")
	pass := getEnv("DB_PASSWORD", "accounthub")
	name := getEnv("DB_NAME", "accounthub")
	ssl := getEnv("DB_SSLMODE", "disable")

	return "postgres://" + user + ":" + pass + "@" + host + ":" + port + "/" + name + "?sslmode=" + ssl
}

func WithTimeout(duration time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), duration)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return fallback
}

func getEnvInt(key string, fallback int, errs *[]error) int {
	if v := os.Getenv(key); v != "" {
		num, err := strconv.Atoi(v)

		if err != nil {
			*errs = append(*errs, fmt.Errorf("config: %s: %w", key, err))
			return fallback
		}

		return num
	}
	return fallback
}

func getEnvBool(key string, fallback bool, errs *[]error) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)

		if err != nil {
			*errs = append(*errs, fmt.Errorf("config: %s: %w", key, err))
			return fallback
		}

		return b
	}
	return fallback
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))

	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}

	return out
}
