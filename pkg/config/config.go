package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database  DatabaseConfig
	Redis     RedisConfig
	CORS      CORSConfig
	Log       LogConfig
	RFID      RFIDConfig
	Dashboard DashboardConfig
	Tito      TitoConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int

	ConnectAttempts int
	ConnectBackoff  time.Duration
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
	// KeyPrefix namespaces dashboard payloads when several events share a Redis.
	KeyPrefix string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// RFIDConfig tunes the tag lifecycle engine and its population snapshot.
type RFIDConfig struct {
	SnapshotTTL       time.Duration
	BulkMax           int
	RecentScanLimit   int
	StaleAfter        time.Duration
	AllowReencodeVoid bool
	UpdateRetries     int
	StorePageSize     int
}

// DashboardConfig governs the shared dashboard payload cache.
type DashboardConfig struct {
	CacheEnabled bool
	CacheTTL     time.Duration
}

// TitoConfig points the ticketing client at an event and maps stations to check-in lists.
type TitoConfig struct {
	Enabled        bool
	BaseURL        string
	CheckinBaseURL string
	Account        string
	Event          string
	Token          string
	Timeout        time.Duration
	CheckinLists   map[string]string
	RetryWorkers   int
	RetryAttempts  int
	RetryDelay     time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),

		ConnectAttempts: v.GetInt("DB_CONNECT_ATTEMPTS"),
		ConnectBackoff:  parseDuration(v.GetString("DB_CONNECT_BACKOFF"), 2*time.Second),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),

		KeyPrefix: v.GetString("REDIS_KEY_PREFIX"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.RFID = RFIDConfig{
		SnapshotTTL:       parseDuration(v.GetString("RFID_SNAPSHOT_TTL"), 2*time.Minute),
		BulkMax:           v.GetInt("RFID_BULK_MAX"),
		RecentScanLimit:   v.GetInt("RFID_RECENT_SCAN_LIMIT"),
		StaleAfter:        parseDuration(v.GetString("RFID_STALE_AFTER"), 45*time.Minute),
		AllowReencodeVoid: v.GetBool("RFID_ALLOW_REENCODE_VOID"),
		UpdateRetries:     v.GetInt("RFID_UPDATE_RETRIES"),
		StorePageSize:     v.GetInt("RFID_STORE_PAGE_SIZE"),
	}

	cfg.Dashboard = DashboardConfig{
		CacheEnabled: v.GetBool("ENABLE_DASHBOARD_CACHE"),
		CacheTTL:     parseDuration(v.GetString("DASHBOARD_CACHE_TTL"), 30*time.Second),
	}

	cfg.Tito = TitoConfig{
		Enabled:        v.GetBool("ENABLE_TITO"),
		BaseURL:        v.GetString("TITO_BASE_URL"),
		CheckinBaseURL: v.GetString("TITO_CHECKIN_BASE_URL"),
		Account:        v.GetString("TITO_ACCOUNT"),
		Event:          v.GetString("TITO_EVENT"),
		Token:          v.GetString("TITO_TOKEN"),
		Timeout:        parseDuration(v.GetString("TITO_TIMEOUT"), 5*time.Second),
		CheckinLists:   parsePairs(v.GetString("TITO_CHECKIN_LISTS")),
		RetryWorkers:   v.GetInt("TITO_RETRY_WORKERS"),
		RetryAttempts:  v.GetInt("TITO_RETRY_ATTEMPTS"),
		RetryDelay:     parseDuration(v.GetString("TITO_RETRY_DELAY"), 5*time.Second),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "convocation")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_CONNECT_ATTEMPTS", 5)
	v.SetDefault("DB_CONNECT_BACKOFF", "2s")

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_KEY_PREFIX", "rfid")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("RFID_SNAPSHOT_TTL", "2m")
	v.SetDefault("RFID_BULK_MAX", 100)
	v.SetDefault("RFID_RECENT_SCAN_LIMIT", 20)
	v.SetDefault("RFID_STALE_AFTER", "45m")
	v.SetDefault("RFID_ALLOW_REENCODE_VOID", false)
	v.SetDefault("RFID_UPDATE_RETRIES", 3)
	v.SetDefault("RFID_STORE_PAGE_SIZE", 100)

	v.SetDefault("ENABLE_DASHBOARD_CACHE", false)
	v.SetDefault("DASHBOARD_CACHE_TTL", "30s")

	v.SetDefault("ENABLE_TITO", false)
	v.SetDefault("TITO_BASE_URL", "https://api.tito.io/v3")
	v.SetDefault("TITO_CHECKIN_BASE_URL", "https://checkin.tito.io")
	v.SetDefault("TITO_ACCOUNT", "")
	v.SetDefault("TITO_EVENT", "")
	v.SetDefault("TITO_TOKEN", "")
	v.SetDefault("TITO_TIMEOUT", "5s")
	v.SetDefault("TITO_CHECKIN_LISTS", "")
	v.SetDefault("TITO_RETRY_WORKERS", 1)
	v.SetDefault("TITO_RETRY_ATTEMPTS", 3)
	v.SetDefault("TITO_RETRY_DELAY", "5s")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}

// parsePairs reads "key=value,key=value" lists such as station=checkin-list mappings.
func parsePairs(raw string) map[string]string {
	result := map[string]string{}
	for _, part := range splitAndTrim(raw) {
		key, value, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)
		if key != "" && value != "" {
			result[key] = value
		}
	}
	return result
}
