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
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	KurrentDB  KurrentDBConfig
	Auth       AuthConfig
	AI         AIConfig
	Complaints ComplaintsConfig
	RateLimit  RateLimitConfig
	SMTP       SMTPConfig
	CORS       CORSConfig
}

type ServerConfig struct {
	Port            int
	Env             string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Database, d.SSLMode,
	)
}

// RedisConfig holds configuration for the tracking-code cache.
type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
	CacheTTL time.Duration
}

// KurrentDBConfig holds configuration for KurrentDB (EventStoreDB).
type KurrentDBConfig struct {
	Enabled bool
	// Host is the KurrentDB server hostname
	Host string
	// Port is the gRPC/HTTP port (default 2113)
	Port int
	// Insecure disables TLS (for development)
	Insecure bool
	Username string
	Password string
}

// URL builds the esdb connection string.
func (k KurrentDBConfig) URL() string {
	auth := ""
	if k.Username != "" {
		auth = k.Username + ":" + k.Password + "@"
	}
	return fmt.Sprintf("esdb://%s%s:%d?tls=%t", auth, k.Host, k.Port, !k.Insecure)
}

type AuthConfig struct {
	JWTSecret string
	Issuer    string
}

// AIConfig points at the external classifier used to route complaints.
type AIConfig struct {
	URL     string
	Enabled bool
	Timeout time.Duration
}

// ComplaintsConfig holds complaint lifecycle settings.
type ComplaintsConfig struct {
	// OverdueThresholdDays is used when a request does not pick a threshold.
	OverdueThresholdDays int
	// AllowedThresholds are the thresholds a caller may request.
	AllowedThresholds []int
	DefaultPageSize   int
	MaxPageSize       int
}

// RateLimitConfig limits anonymous submission and tracking traffic per IP.
type RateLimitConfig struct {
	Enabled           bool
	RequestsPerMinute int
	Burst             int
}

// SMTPConfig configures citizen email notifications. An empty Host selects
// the console provider.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	Sender   string
	// TrackURL prefixes tracking codes in citizen emails.
	TrackURL string
}

type CORSConfig struct {
	AllowedOrigins []string
}

// Load reads configuration from the environment. A .env file in the working
// directory is loaded first when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnvInt("SERVER_PORT", 8080),
			Env:             getEnv("ENV", "development"),
			ReadTimeout:     getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			RequestTimeout:  getEnvDuration("SERVER_REQUEST_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "complaints"),
			Password: getEnv("DB_PASSWORD", "complaints"),
			Database: getEnv("DB_NAME", "complaints"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Enabled:  getEnvBool("REDIS_ENABLED", true),
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			CacheTTL: getEnvDuration("REDIS_CACHE_TTL", 5*time.Minute),
		},
		KurrentDB: KurrentDBConfig{
			Enabled:  getEnvBool("KURRENTDB_ENABLED", true),
			Host:     getEnv("KURRENTDB_HOST", "localhost"),
			Port:     getEnvInt("KURRENTDB_PORT", 2113),
			Insecure: getEnvBool("KURRENTDB_INSECURE", true),
			Username: getEnv("KURRENTDB_USERNAME", ""),
			Password: getEnv("KURRENTDB_PASSWORD", ""),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", "dev-secret-change-in-prod"),
			Issuer:    getEnv("JWT_ISSUER", ""),
		},
		AI: AIConfig{
			URL:     getEnv("AI_SERVICE_URL", "http://localhost:5000"),
			Enabled: getEnvBool("AI_ENABLED", true),
			Timeout: getEnvDuration("AI_TIMEOUT", 20*time.Second),
		},
		Complaints: ComplaintsConfig{
			OverdueThresholdDays: getEnvInt("OVERDUE_THRESHOLD_DAYS", 7),
			AllowedThresholds:    getEnvIntSlice("OVERDUE_ALLOWED_THRESHOLDS", []int{3, 7, 14, 30}),
			DefaultPageSize:      getEnvInt("COMPLAINTS_PAGE_SIZE", 20),
			MaxPageSize:          getEnvInt("COMPLAINTS_MAX_PAGE_SIZE", 100),
		},
		RateLimit: RateLimitConfig{
			Enabled:           getEnvBool("RATE_LIMIT_ENABLED", true),
			RequestsPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
			Burst:             getEnvInt("RATE_LIMIT_BURST", 10),
		},
		SMTP: SMTPConfig{
			Host:     getEnv("SMTP_HOST", ""),
			Port:     getEnvInt("SMTP_PORT", 587),
			Username: getEnv("SMTP_USERNAME", ""),
			Password: getEnv("SMTP_PASSWORD", ""),
			Sender:   getEnv("SMTP_SENDER_EMAIL", "no-reply@complaints.local"),
			TrackURL: getEnv("PUBLIC_TRACK_URL", "http://localhost:3000/track/"),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvSlice("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the service cannot run with.
func (c *Config) Validate() error {
	if c.Complaints.OverdueThresholdDays <= 0 {
		return fmt.Errorf("OVERDUE_THRESHOLD_DAYS must be positive, got %d", c.Complaints.OverdueThresholdDays)
	}
	if !c.Complaints.IsAllowedThreshold(c.Complaints.OverdueThresholdDays) {
		return fmt.Errorf("OVERDUE_THRESHOLD_DAYS %d is not in OVERDUE_ALLOWED_THRESHOLDS", c.Complaints.OverdueThresholdDays)
	}
	if c.Complaints.DefaultPageSize <= 0 || c.Complaints.MaxPageSize < c.Complaints.DefaultPageSize {
		return fmt.Errorf("invalid page size settings: default=%d max=%d", c.Complaints.DefaultPageSize, c.Complaints.MaxPageSize)
	}
	if c.Server.Env == "production" && c.Auth.JWTSecret == "dev-secret-change-in-prod" {
		return fmt.Errorf("JWT_SECRET must be set in production")
	}
	return nil
}

// IsAllowedThreshold reports whether days may be requested as an overdue threshold.
func (c ComplaintsConfig) IsAllowedThreshold(days int) bool {
	for _, t := range c.AllowedThresholds {
		if t == days {
			return true
		}
	}
	return false
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		var result []string
		for _, v := range strings.Split(value, ",") {
			if v = strings.TrimSpace(v); v != "" {
				result = append(result, v)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultValue
}

func getEnvIntSlice(key string, defaultValue []int) []int {
	var result []int
	for _, v := range getEnvSlice(key, nil) {
		i, err := strconv.Atoi(v)
		if err != nil {
			return defaultValue
		}
		result = append(result, i)
	}
	if len(result) == 0 {
		return defaultValue
	}
	return result
}
