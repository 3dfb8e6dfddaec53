// Package config provides configuration management and environment variable handling for the application
package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the broadcast engine
type Config struct {
	Database  DatabaseConfig  `json:"database"`
	Server    ServerConfig    `json:"server"`
	Broadcast BroadcastConfig `json:"broadcast"`
	SMS       SMSConfig       `json:"sms"`
	Mail      MailConfig      `json:"mail"`
	Tracking  TrackingConfig  `json:"tracking"`
	Logging   LoggingConfig   `json:"logging"`
	Metrics   MetricsConfig   `json:"metrics"`
	Cache     CacheConfig     `json:"cache"`
}

type DatabaseConfig struct {
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	Name            string        `json:"name"`
	User            string        `json:"user"`
	Password        string        `json:"password"`
	SSLMode         string        `json:"ssl_mode"`
	MaxOpenConns    int           `json:"max_open_conns"`
	MaxIdleConns    int           `json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `json:"conn_max_idle_time"`
	SlowQueryLog    bool          `json:"slow_query_log"`
	SlowQueryTime   time.Duration `json:"slow_query_time"`
}

type ServerConfig struct {
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	ReadTimeout     time.Duration `json:"read_timeout"`
	WriteTimeout    time.Duration `json:"write_timeout"`
	IdleTimeout     time.Duration `json:"idle_timeout"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout"`
	BodyLimit       int           `json:"body_limit"`
	AllowedOrigins  []string      `json:"allowed_origins"`
	ProxyHeader     string        `json:"proxy_header"`
}

// BroadcastConfig tunes the coordinator and the delivery task worker
type BroadcastConfig struct {
	DefaultEmailRatePerMinute int           `json:"default_email_rate_per_minute"`
	DefaultSMSRatePerMinute   int           `json:"default_sms_rate_per_minute"`
	LockTTL                   time.Duration `json:"lock_ttl"`
	WorkerPollInterval        time.Duration `json:"worker_poll_interval"`
	WorkerBatchSize           int           `json:"worker_batch_size"`
	WorkerPoolSize            int           `json:"worker_pool_size"`
	DeliveryTimeout           time.Duration `json:"delivery_timeout"`
	MaxDeliveryAttempts       int           `json:"max_delivery_attempts"`
}

type SMSConfig struct {
	Timeout    time.Duration `json:"timeout"`
	RetryCount int           `json:"retry_count"`
}

// MailConfig holds SMTP transport tuning. Credentials are per tenant and live
// in each user's mail settings, not here.
type MailConfig struct {
	Timeout      time.Duration `json:"timeout"`
	DefaultFrom  string        `json:"default_from"`
	HeloHostname string        `json:"helo_hostname"`
}

// TrackingConfig holds the signing material and public base URL used to build
// click tracking, open pixel, and unsubscribe URLs.
type TrackingConfig struct {
	SecretKey      string        `json:"secret_key"`
	PublicBaseURL  string        `json:"public_base_url"`
	UnsubscribeTTL time.Duration `json:"unsubscribe_ttl"`
	Issuer         string        `json:"issuer"`
}

type LoggingConfig struct {
	Level      string `json:"level"`
	Output     string `json:"output"` // stdout, file, both
	FilePath   string `json:"file_path"`
	MaxSize    int    `json:"max_size"` // MB
	MaxBackups int    `json:"max_backups"`
	MaxAge     int    `json:"max_age"` // days
	Compress   bool   `json:"compress"`
}

type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Port    int    `json:"port"`
	Path    string `json:"path"`
}

type CacheConfig struct {
	Enabled     bool   `json:"enabled"`
	RedisURL    string `json:"redis_url"`
	RedisDB     int    `json:"redis_db"`
	RedisPrefix string `json:"redis_prefix"`
}

// Load loads and validates configuration from environment variables
func Load() (*Config, error) {
	if err := loadEnvFile(); err != nil {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	cfg := &Config{
		Database: DatabaseConfig{
			Host:            getEnvString("DB_HOST", "localhost"),
			Port:            getEnvInt("DB_PORT", 5432),
			Name:            getEnvString("DB_NAME", "outreach"),
			User:            getEnvString("DB_USER", "postgres"),
			Password:        getEnvString("DB_PASSWORD", ""),
			SSLMode:         getEnvString("DB_SSL_MODE", "disable"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 50),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 10),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
			ConnMaxIdleTime: getEnvDuration("DB_CONN_MAX_IDLE_TIME", 15*time.Minute),
			SlowQueryLog:    getEnvBool("DB_SLOW_QUERY_LOG", true),
			SlowQueryTime:   getEnvDuration("DB_SLOW_QUERY_TIME", 1*time.Second),
		},
		Server: ServerConfig{
			Host:            getEnvString("SERVER_HOST", "0.0.0.0"),
			Port:            getEnvInt("SERVER_PORT", 8080),
			ReadTimeout:     getEnvDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:     getEnvDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
			ShutdownTimeout: getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
			BodyLimit:       getEnvInt("SERVER_BODY_LIMIT", 4*1024*1024), // 4MB
			AllowedOrigins:  getEnvStringSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),
			ProxyHeader:     getEnvString("SERVER_PROXY_HEADER", "X-Real-IP"),
		},
		Broadcast: BroadcastConfig{
			DefaultEmailRatePerMinute: getEnvInt("BROADCAST_DEFAULT_EMAIL_RATE", 100),
			DefaultSMSRatePerMinute:   getEnvInt("BROADCAST_DEFAULT_SMS_RATE", 30),
			LockTTL:                   getEnvDuration("BROADCAST_LOCK_TTL", 30*time.Minute),
			WorkerPollInterval:        getEnvDuration("BROADCAST_WORKER_POLL_INTERVAL", 1*time.Second),
			WorkerBatchSize:           getEnvInt("BROADCAST_WORKER_BATCH_SIZE", 100),
			WorkerPoolSize:            getEnvInt("BROADCAST_WORKER_POOL_SIZE", 8),
			DeliveryTimeout:           getEnvDuration("BROADCAST_DELIVERY_TIMEOUT", 30*time.Second),
			MaxDeliveryAttempts:       getEnvInt("BROADCAST_MAX_DELIVERY_ATTEMPTS", 3),
		},
		SMS: SMSConfig{
			Timeout:    getEnvDuration("SMS_TIMEOUT", 30*time.Second),
			RetryCount: getEnvInt("SMS_RETRY_COUNT", 0),
		},
		Mail: MailConfig{
			Timeout:      getEnvDuration("MAIL_TIMEOUT", 30*time.Second),
			DefaultFrom:  getEnvString("MAIL_DEFAULT_FROM", "noreply@calyxsuite.com"),
			HeloHostname: getEnvString("MAIL_HELO_HOSTNAME", "localhost"),
		},
		Tracking: TrackingConfig{
			SecretKey:      getEnvString("TRACKING_SECRET_KEY", ""),
			PublicBaseURL:  getEnvString("TRACKING_PUBLIC_BASE_URL", "https://app.calyxsuite.com"),
			UnsubscribeTTL: getEnvDuration("TRACKING_UNSUBSCRIBE_TTL", 30*24*time.Hour),
			Issuer:         getEnvString("TRACKING_ISSUER", "outreach"),
		},
		Logging: LoggingConfig{
			Level:      getEnvString("LOG_LEVEL", "info"),
			Output:     getEnvString("LOG_OUTPUT", "stdout"),
			FilePath:   getEnvString("LOG_FILE_PATH", "/var/log/outreach/app.log"),
			MaxSize:    getEnvInt("LOG_MAX_SIZE", 100),
			MaxBackups: getEnvInt("LOG_MAX_BACKUPS", 10),
			MaxAge:     getEnvInt("LOG_MAX_AGE", 30),
			Compress:   getEnvBool("LOG_COMPRESS", true),
		},
		Metrics: MetricsConfig{
			Enabled: getEnvBool("METRICS_ENABLED", true),
			Port:    getEnvInt("METRICS_PORT", 9090),
			Path:    getEnvString("METRICS_PATH", "/metrics"),
		},
		Cache: CacheConfig{
			Enabled:     getEnvBool("CACHE_ENABLED", true),
			RedisURL:    getEnvString("CACHE_REDIS_URL", "redis://localhost:6379"),
			RedisDB:     getEnvInt("CACHE_REDIS_DB", 0),
			RedisPrefix: getEnvString("CACHE_REDIS_PREFIX", "outreach"),
		},
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadEnvFile loads environment variables from a .env file if present
func loadEnvFile() error {
	envFile := getEnvString("ENV_FILE", ".env")

	if _, err := os.Stat(envFile); os.IsNotExist(err) {
		return nil
	}

	file, err := os.Open(envFile)
	if err != nil {
		return fmt.Errorf("failed to open .env file: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if strings.Contains(line, "=") {
			parts := strings.SplitN(line, "=", 2)
			if len(parts) == 2 {
				key := strings.TrimSpace(parts[0])
				value := strings.TrimSpace(parts[1])

				if (strings.HasPrefix(value, `"`) && strings.HasSuffix(value, `"`)) ||
					(strings.HasPrefix(value, `'`) && strings.HasSuffix(value, `'`)) {
					value = value[1 : len(value)-1]
				}

				if os.Getenv(key) == "" {
					os.Setenv(key, value)
				}
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading .env file: %w", err)
	}

	return nil
}

// Helper functions for environment variable parsing
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		var result []string
		for _, item := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(item); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultValue
}

// Validate validates the loaded configuration
func Validate(cfg *Config) error {
	var errors []string

	if cfg.Database.Host == "" {
		errors = append(errors, "DB_HOST is required")
	}
	if cfg.Database.Port <= 0 || cfg.Database.Port > 65535 {
		errors = append(errors, "DB_PORT must be between 1 and 65535")
	}
	if cfg.Database.Name == "" {
		errors = append(errors, "DB_NAME is required")
	}
	if cfg.Database.User == "" {
		errors = append(errors, "DB_USER is required")
	}

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		errors = append(errors, "SERVER_PORT must be between 1 and 65535")
	}
	if cfg.Server.ReadTimeout <= 0 {
		errors = append(errors, "SERVER_READ_TIMEOUT must be positive")
	}
	if cfg.Server.WriteTimeout <= 0 {
		errors = append(errors, "SERVER_WRITE_TIMEOUT must be positive")
	}

	if cfg.Broadcast.DefaultEmailRatePerMinute <= 0 {
		errors = append(errors, "BROADCAST_DEFAULT_EMAIL_RATE must be positive")
	}
	if cfg.Broadcast.DefaultSMSRatePerMinute <= 0 {
		errors = append(errors, "BROADCAST_DEFAULT_SMS_RATE must be positive")
	}
	if cfg.Broadcast.WorkerBatchSize <= 0 {
		errors = append(errors, "BROADCAST_WORKER_BATCH_SIZE must be positive")
	}
	if cfg.Broadcast.WorkerPoolSize <= 0 {
		errors = append(errors, "BROADCAST_WORKER_POOL_SIZE must be positive")
	}
	if cfg.Broadcast.MaxDeliveryAttempts <= 0 {
		errors = append(errors, "BROADCAST_MAX_DELIVERY_ATTEMPTS must be positive")
	}

	if cfg.Tracking.SecretKey == "" {
		errors = append(errors, "TRACKING_SECRET_KEY is required")
	} else if len(cfg.Tracking.SecretKey) < 32 {
		errors = append(errors, "TRACKING_SECRET_KEY must be at least 32 characters long")
	}
	if cfg.Tracking.PublicBaseURL == "" {
		errors = append(errors, "TRACKING_PUBLIC_BASE_URL is required")
	}
	if cfg.Tracking.UnsubscribeTTL <= 0 {
		errors = append(errors, "TRACKING_UNSUBSCRIBE_TTL must be positive")
	}

	if cfg.Logging.Level != "" {
		validLevels := []string{"debug", "info", "warn", "error"}
		valid := false
		for _, level := range validLevels {
			if cfg.Logging.Level == level {
				valid = true
				break
			}
		}
		if !valid {
			errors = append(errors, fmt.Sprintf("LOG_LEVEL must be one of: %v", validLevels))
		}
	}

	if cfg.Cache.Enabled && cfg.Cache.RedisURL == "" {
		errors = append(errors, "CACHE_REDIS_URL is required when cache is enabled")
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errors, "; "))
	}

	return nil
}
