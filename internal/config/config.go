package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the engine
type Config struct {
	App    AppConfig
	DB     DBConfig
	Redis  RedisConfig
	JWT    JWTConfig
	Push   PushConfig
	Engine EngineConfig
	Sync   SyncConfig
	Admin  AdminConfig
	CORS   CORSConfig
}

type AppConfig struct {
	Env  string
	Port string
}

type DBConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

// DSN returns the PostgreSQL connection string
func (d DBConfig) DSN() string {
	return "host=" + d.Host +
		" user=" + d.User +
		" password=" + d.Password +
		" dbname=" + d.Name +
		" port=" + d.Port +
		" sslmode=" + d.SSLMode +
		" TimeZone=UTC"
}

// URL returns the PostgreSQL connection URL (for golang-migrate)
func (d DBConfig) URL() string {
	return "postgres://" + d.User + ":" + d.Password +
		"@" + d.Host + ":" + d.Port +
		"/" + d.Name + "?sslmode=" + d.SSLMode
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
}

// Addr returns the Redis address
func (r RedisConfig) Addr() string {
	return r.Host + ":" + r.Port
}

type JWTConfig struct {
	Secret string
	Expiry time.Duration
}

type PushConfig struct {
	// Path to the Firebase service-account credentials file. Empty disables push.
	CredentialsFile string
	// Per-call timeout for provider requests.
	Timeout time.Duration
}

// EngineConfig tunes the populator, worker and eligibility gate.
type EngineConfig struct {
	PopulateInterval time.Duration // populator tick
	WorkerInterval   time.Duration // worker tick
	Lookahead        time.Duration // how far ahead a fire instant may be queued
	DefaultGrace     time.Duration // catch-up window for missed fire instants
	MaxAttempts      int
	BatchSize        int // max claims per worker tick

	BackfillCooldown time.Duration // wait after backfill completes before notifying
	SourceRecency    time.Duration // max age of source data worth notifying about
	BaselineMinDays  int
	BaselineMinCount int
	BaselineWindow   time.Duration // trailing window for the baseline query
	GateCacheTTL     time.Duration
}

type SyncConfig struct {
	MaxConcurrent int
	MinInterval   time.Duration // minimum gap between dispatches to the provider
}

type AdminConfig struct {
	Username     string
	PasswordHash string // bcrypt hash of the admin password
}

type CORSConfig struct {
	Origins []string
}

// Load reads configuration from .env file and environment variables
func Load() *Config {
	// Load .env file (ignore error if not exists - e.g. in Docker)
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading from environment variables")
	}

	return &Config{
		App: AppConfig{
			Env:  getEnv("APP_ENV", "development"),
			Port: getEnv("APP_PORT", "8080"),
		},
		DB: DBConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "healthpulse"),
			Password: getEnv("DB_PASSWORD", "healthpulse"),
			Name:     getEnv("DB_NAME", "healthpulse"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
		},
		JWT: JWTConfig{
			Secret: getEnv("JWT_SECRET", "default-secret"),
			Expiry: getDuration("JWT_EXPIRY", 24*time.Hour),
		},
		Push: PushConfig{
			CredentialsFile: getEnv("FIREBASE_CREDENTIALS_FILE", ""),
			Timeout:         getDuration("PUSH_TIMEOUT", 10*time.Second),
		},
		Engine: EngineConfig{
			PopulateInterval: getDuration("ENGINE_POPULATE_INTERVAL", time.Minute),
			WorkerInterval:   getDuration("ENGINE_WORKER_INTERVAL", time.Minute),
			Lookahead:        getDuration("ENGINE_LOOKAHEAD", time.Minute),
			DefaultGrace:     getDuration("ENGINE_DEFAULT_GRACE", 30*time.Minute),
			MaxAttempts:      getInt("ENGINE_MAX_ATTEMPTS", 3),
			BatchSize:        getInt("ENGINE_BATCH_SIZE", 50),

			BackfillCooldown: getDuration("GATE_BACKFILL_COOLDOWN", 24*time.Hour),
			SourceRecency:    getDuration("GATE_SOURCE_RECENCY", 48*time.Hour),
			BaselineMinDays:  getInt("GATE_BASELINE_MIN_DAYS", 5),
			BaselineMinCount: getInt("GATE_BASELINE_MIN_COUNT", 100),
			BaselineWindow:   getDuration("GATE_BASELINE_WINDOW", 14*24*time.Hour),
			GateCacheTTL:     getDuration("GATE_CACHE_TTL", 10*time.Minute),
		},
		Sync: SyncConfig{
			MaxConcurrent: getInt("SYNC_MAX_CONCURRENT", 3),
			MinInterval:   getDuration("SYNC_MIN_INTERVAL", 2*time.Second),
		},
		Admin: AdminConfig{
			Username:     getEnv("ADMIN_USERNAME", "admin"),
			PasswordHash: getEnv("ADMIN_PASSWORD_HASH", ""),
		},
		CORS: CORSConfig{
			Origins: strings.Split(getEnv("CORS_ORIGINS", "http://localhost:3000"), ","),
		},
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		log.Printf("⚠️  Invalid duration for %s, using default %s", key, fallback)
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
		log.Printf("⚠️  Invalid integer for %s, using default %d", key, fallback)
	}
	return fallback
}
