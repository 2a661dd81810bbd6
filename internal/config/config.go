package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/crucial707/keykiosk/internal/db"
	"github.com/crucial707/keykiosk/internal/timeutil"
)

// LoadDotEnv reads a .env file into the environment when one exists.
// Variables already set win over the file.
func LoadDotEnv(paths ...string) {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			_ = godotenv.Load(p)
		}
	}
}

type Config struct {
	Port string

	DBHost string
	DBPort string
	DBName string
	DBUser string
	DBPass string

	// DBMaxOpenConns is the maximum number of open connections to the database (default 25).
	DBMaxOpenConns int
	// DBMaxIdleConns is the maximum number of idle connections (default 5).
	DBMaxIdleConns int

	JWTSecret string

	// Env is "dev" (default) or "prod". When "prod", JWT_SECRET must be set and not the default.
	Env string

	// TokenTTL is the lifetime of issued kiosk tokens; zero never expires.
	TokenTTL time.Duration

	// TLSCertFile and TLSKeyFile enable HTTPS when both are set.
	TLSCertFile string
	TLSKeyFile  string

	// LogFormat is "text" (default) or "json".
	LogFormat string

	// CORSAllowedOrigins lists display origins allowed to read the status board.
	CORSAllowedOrigins []string

	// RedisAddr enables change broadcasts over Redis pub/sub when set.
	RedisAddr     string
	RedisPassword string
	NotifyChannel string
	// NotifyPerMinute limits /api/notify per kiosk.
	NotifyPerMinute int

	// Zone is the site's wall-clock zone. Offline timestamps sent without an
	// offset are read in it.
	Zone string

	// VacuumSchedule is the cron spec for database compaction.
	VacuumSchedule string
}

const defaultJWTSecret = "supersecretkey"

func Load() Config {
	return Config{
		Port: getEnv("PORT", "8080"),

		DBHost: getEnv("DB_HOST", "localhost"),
		DBPort: getEnv("DB_PORT", "5432"),
		DBName: getEnv("DB_NAME", "keykiosk"),
		DBUser: getEnv("DB_USER", "keykiosk"),
		DBPass: getEnv("DB_PASS", "keykiosk"),

		DBMaxOpenConns: getEnvInt("DB_MAX_OPEN_CONNS", 25),
		DBMaxIdleConns: getEnvInt("DB_MAX_IDLE_CONNS", 5),

		JWTSecret: getEnv("JWT_SECRET", defaultJWTSecret),
		Env:       getEnv("ENV", "dev"),
		TokenTTL:  getEnvDuration("TOKEN_TTL", 0),

		TLSCertFile: getEnv("TLS_CERT_FILE", ""),
		TLSKeyFile:  getEnv("TLS_KEY_FILE", ""),

		LogFormat: getEnv("LOG_FORMAT", "text"),

		CORSAllowedOrigins: splitList(getEnv("CORS_ALLOWED_ORIGINS", "")),

		RedisAddr:       getEnv("REDIS_ADDR", ""),
		RedisPassword:   getEnv("REDIS_PASSWORD", ""),
		NotifyChannel:   getEnv("NOTIFY_CHANNEL", "keykiosk:changes"),
		NotifyPerMinute: getEnvInt("NOTIFY_PER_MINUTE", 60),

		Zone:           getEnv("TZ_NAME", "America/Chicago"),
		VacuumSchedule: getEnv("VACUUM_SCHEDULE", "@weekly"),
	}
}

// Validate rejects settings that are unsafe in production.
func (c Config) Validate() error {
	if c.Env == "prod" && (c.JWTSecret == "" || c.JWTSecret == defaultJWTSecret) {
		return fmt.Errorf("JWT_SECRET must be set in prod")
	}
	if (c.TLSCertFile == "") != (c.TLSKeyFile == "") {
		return fmt.Errorf("TLS_CERT_FILE and TLS_KEY_FILE must be set together")
	}
	if _, err := timeutil.LoadZone(c.Zone); err != nil {
		return fmt.Errorf("TZ_NAME: %w", err)
	}
	return nil
}

// Postgres returns the ledger database options.
func (c Config) Postgres() db.PostgresOptions {
	return db.PostgresOptions{
		Host:         c.DBHost,
		Port:         c.DBPort,
		Name:         c.DBName,
		User:         c.DBUser,
		Password:     c.DBPass,
		MaxOpenConns: c.DBMaxOpenConns,
		MaxIdleConns: c.DBMaxIdleConns,
	}
}

// splitList splits a comma-separated list and trims spaces. Empty strings are omitted.
func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if o := strings.TrimSpace(p); o != "" {
			out = append(out, o)
		}
	}
	return out
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d >= 0 {
			return d
		}
	}
	return fallback
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// ==========================
// Kiosk
// ==========================

// Kiosk configures one kiosk. Values come from an optional YAML file and
// are overridden by the environment.
type Kiosk struct {
	ID        string `yaml:"id"`
	ServerURL string `yaml:"server_url"`
	Token     string `yaml:"token"`
	DBPath    string `yaml:"db_path"`

	RequestTimeout time.Duration `yaml:"request_timeout"`
	ProbeInterval  time.Duration `yaml:"probe_interval"`
	ProbeTimeout   time.Duration `yaml:"probe_timeout"`
	SessionTimeout time.Duration `yaml:"session_timeout"`

	// SyncAlertAfter escalates an entry that has failed this many times.
	SyncAlertAfter int `yaml:"sync_alert_after"`

	MirrorSchedule string `yaml:"mirror_schedule"`
	VacuumSchedule string `yaml:"vacuum_schedule"`

	MetricsAddr string `yaml:"metrics_addr"`
	LogFormat   string `yaml:"log_format"`
	Zone        string `yaml:"zone"`

	// RedisAddr lets `watch` follow change broadcasts.
	RedisAddr     string `yaml:"redis_addr"`
	NotifyChannel string `yaml:"notify_channel"`
}

func defaultKiosk() Kiosk {
	host, _ := os.Hostname()
	if host == "" {
		host = "kiosk"
	}
	return Kiosk{
		ID:             host,
		ServerURL:      "http://localhost:8080",
		DBPath:         "kiosk.db",
		RequestTimeout: 5 * time.Second,
		ProbeInterval:  30 * time.Second,
		ProbeTimeout:   2 * time.Second,
		SessionTimeout: 30 * time.Second,
		SyncAlertAfter: 10,
		MirrorSchedule: "@every 5m",
		VacuumSchedule: "@weekly",
		MetricsAddr:    "127.0.0.1:9101",
		LogFormat:      "text",
		Zone:           "America/Chicago",
		NotifyChannel:  "keykiosk:changes",
	}
}

// LoadKiosk reads path (if non-empty) and then applies KIOSK_* overrides.
func LoadKiosk(path string) (Kiosk, error) {
	k := defaultKiosk()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Kiosk{}, fmt.Errorf("reading kiosk config: %w", err)
		}
		if err := yaml.Unmarshal(b, &k); err != nil {
			return Kiosk{}, fmt.Errorf("parsing %s: %w", path, err)
		}
	}

	k.ID = getEnv("KIOSK_ID", k.ID)
	k.ServerURL = strings.TrimRight(getEnv("KIOSK_SERVER_URL", k.ServerURL), "/")
	k.Token = getEnv("KIOSK_TOKEN", k.Token)
	k.DBPath = getEnv("KIOSK_DB_PATH", k.DBPath)
	k.RequestTimeout = getEnvDuration("REQUEST_TIMEOUT", k.RequestTimeout)
	k.ProbeInterval = getEnvDuration("PROBE_INTERVAL", k.ProbeInterval)
	k.ProbeTimeout = getEnvDuration("PROBE_TIMEOUT", k.ProbeTimeout)
	k.SessionTimeout = getEnvDuration("SESSION_TIMEOUT", k.SessionTimeout)
	k.SyncAlertAfter = getEnvInt("SYNC_ALERT_AFTER", k.SyncAlertAfter)
	k.MirrorSchedule = getEnv("MIRROR_SCHEDULE", k.MirrorSchedule)
	k.VacuumSchedule = getEnv("VACUUM_SCHEDULE", k.VacuumSchedule)
	k.MetricsAddr = getEnv("METRICS_ADDR", k.MetricsAddr)
	k.LogFormat = getEnv("LOG_FORMAT", k.LogFormat)
	k.Zone = getEnv("TZ_NAME", k.Zone)
	k.RedisAddr = getEnv("REDIS_ADDR", k.RedisAddr)
	k.NotifyChannel = getEnv("NOTIFY_CHANNEL", k.NotifyChannel)

	if k.ID == "" {
		return Kiosk{}, fmt.Errorf("kiosk id is empty")
	}
	return k, nil
}
