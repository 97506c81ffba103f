package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Scraper  ScraperConfig
	Browser  BrowserConfig
	Export   ExportConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Jobs     JobsConfig
	Logging  LoggingConfig
}

type ServerConfig struct {
	Port            string
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
}

type ScraperConfig struct {
	RateLimitMin        time.Duration
	RateLimitMax        time.Duration
	RequestTimeout      time.Duration
	MaxAPIPages         int
	OzonOutlierFactor   float64
	YandexOutlierFactor float64
	UserAgent           string
}

type BrowserConfig struct {
	Headless          bool
	Timeout           time.Duration
	ViewportWidth     int
	ViewportHeight    int
	AcceptLanguage    string
	TimezoneID        string
	Locale            string
	ScrollPause       time.Duration
	MaxScrollAttempts int
}

type ExportConfig struct {
	Dir string
}

type DatabaseConfig struct {
	Enabled  bool
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int32
}

type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
	Stream   string
	MaxLen   int64
}

type JobsConfig struct {
	Workers   int
	QueueSize int
}

type LoggingConfig struct {
	Level  string
	Format string
}

// Load reads configuration from the environment. Values from a .env file in
// the working directory are applied first without overriding real env vars.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnvOrDefault("SERVER_PORT", "8080"),
			Host:            getEnvOrDefault("SERVER_HOST", "0.0.0.0"),
			ReadTimeout:     getDurationOrDefault("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getDurationOrDefault("SERVER_WRITE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getDurationOrDefault("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
			AllowedOrigins:  getStringSliceOrDefault("SERVER_ALLOWED_ORIGINS", []string{"http://localhost:*", "https://localhost:*"}),
		},
		Scraper: ScraperConfig{
			RateLimitMin:        getDurationOrDefault("SCRAPER_RATE_LIMIT_MIN", 500*time.Millisecond),
			RateLimitMax:        getDurationOrDefault("SCRAPER_RATE_LIMIT_MAX", 1500*time.Millisecond),
			RequestTimeout:      getDurationOrDefault("SCRAPER_REQUEST_TIMEOUT", 15*time.Second),
			MaxAPIPages:         getIntOrDefault("SCRAPER_MAX_API_PAGES", 9),
			OzonOutlierFactor:   getFloatOrDefault("SCRAPER_OZON_OUTLIER_FACTOR", 0.51),
			YandexOutlierFactor: getFloatOrDefault("SCRAPER_YANDEX_OUTLIER_FACTOR", 0.41),
			UserAgent:           getEnvOrDefault("SCRAPER_USER_AGENT", "Chrome/51.0.2704.103 Safari/537.36"),
		},
		Browser: BrowserConfig{
			Headless:          getBoolOrDefault("BROWSER_HEADLESS", true),
			Timeout:           getDurationOrDefault("BROWSER_TIMEOUT", 30*time.Second),
			ViewportWidth:     getIntOrDefault("BROWSER_VIEWPORT_WIDTH", 1920),
			ViewportHeight:    getIntOrDefault("BROWSER_VIEWPORT_HEIGHT", 1080),
			AcceptLanguage:    getEnvOrDefault("BROWSER_ACCEPT_LANGUAGE", "ru-RU,ru;q=0.9,en;q=0.8"),
			TimezoneID:        getEnvOrDefault("BROWSER_TIMEZONE", "Europe/Moscow"),
			Locale:            getEnvOrDefault("BROWSER_LOCALE", "ru-RU"),
			ScrollPause:       getDurationOrDefault("BROWSER_SCROLL_PAUSE", 2*time.Second),
			MaxScrollAttempts: getIntOrDefault("BROWSER_MAX_SCROLL_ATTEMPTS", 30),
		},
		Export: ExportConfig{
			Dir: getEnvOrDefault("EXPORT_DIR", ""),
		},
		Database: DatabaseConfig{
			Enabled:  getBoolOrDefault("DB_ENABLED", false),
			Host:     getEnvOrDefault("DB_HOST", "localhost"),
			Port:     getIntOrDefault("DB_PORT", 5432),
			User:     getEnvOrDefault("DB_USER", "postgres"),
			Password: getEnvOrDefault("DB_PASSWORD", ""),
			DBName:   getEnvOrDefault("DB_NAME", "price_spread"),
			SSLMode:  getEnvOrDefault("DB_SSL_MODE", "disable"),
			MaxConns: int32(getIntOrDefault("DB_MAX_CONNS", 10)),
		},
		Redis: RedisConfig{
			Enabled:  getBoolOrDefault("REDIS_ENABLED", false),
			Addr:     getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
			Password: getEnvOrDefault("REDIS_PASSWORD", ""),
			DB:       getIntOrDefault("REDIS_DB", 0),
			Stream:   getEnvOrDefault("REDIS_STREAM", "price-spread:messages"),
			MaxLen:   int64(getIntOrDefault("REDIS_STREAM_MAXLEN", 10000)),
		},
		Jobs: JobsConfig{
			Workers:   getIntOrDefault("JOBS_WORKERS", 2),
			QueueSize: getIntOrDefault("JOBS_QUEUE_SIZE", 100),
		},
		Logging: LoggingConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Format: getEnvOrDefault("LOG_FORMAT", "json"),
		},
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Scraper.RateLimitMin > c.Scraper.RateLimitMax {
		return fmt.Errorf("SCRAPER_RATE_LIMIT_MIN cannot be greater than SCRAPER_RATE_LIMIT_MAX")
	}

	if c.Scraper.MaxAPIPages < 1 {
		return fmt.Errorf("SCRAPER_MAX_API_PAGES must be at least 1")
	}

	for name, f := range map[string]float64{
		"SCRAPER_OZON_OUTLIER_FACTOR":   c.Scraper.OzonOutlierFactor,
		"SCRAPER_YANDEX_OUTLIER_FACTOR": c.Scraper.YandexOutlierFactor,
	} {
		if f < 0 || f > 1 {
			return fmt.Errorf("%s must be between 0 and 1", name)
		}
	}

	if c.Browser.MaxScrollAttempts < 1 {
		return fmt.Errorf("BROWSER_MAX_SCROLL_ATTEMPTS must be at least 1")
	}

	if c.Jobs.Workers < 1 {
		return fmt.Errorf("JOBS_WORKERS must be at least 1")
	}

	if c.Jobs.QueueSize < 1 {
		return fmt.Errorf("JOBS_QUEUE_SIZE must be at least 1")
	}

	return nil
}

// DSN returns the postgres connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getStringSliceOrDefault(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	}
	return defaultValue
}
