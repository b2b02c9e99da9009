package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Scheduler floors and defaults, in seconds.
const (
	DefaultMinIntervalSeconds       = 30
	DefaultTaskIntervalSeconds      = 60
	DefaultThresholdSeconds         = 86400
	DefaultBlacklistIntervalSeconds = 120
	DefaultStatsIntervalSeconds     = 600
	StatsMinIntervalSeconds         = 600
)

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMySQL    = "mysql"
	DriverRedis    = "redis"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App          AppConfig          `yaml:"app"`
	Store        StoreConfig        `yaml:"store"`
	Postgres     PostgresConfig     `yaml:"postgres"`
	SQL          SQLConfig          `yaml:"sql"`
	Redis        RedisConfig        `yaml:"redis"`
	Logger       LoggerConfig       `yaml:"logger"`
	Auth         AuthConfig         `yaml:"auth"`
	Notification NotificationConfig `yaml:"notification"`
	Telegram     TelegramConfig     `yaml:"telegram"`
	Archive      ArchiveConfig      `yaml:"archive"`
	Maintenance  MaintenanceConfig  `yaml:"maintenance"`
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                   string `yaml:"name"`
	Env                    string `yaml:"env"`
	Host                   string `yaml:"host"`
	Port                   string `yaml:"port"`
	Version                string `yaml:"version"`
	RequestTimeoutSeconds  int    `yaml:"request_timeout_seconds"`
	ShutdownTimeoutSeconds int    `yaml:"shutdown_timeout_seconds"`
}

// StoreConfig selects the ticket store backend.
type StoreConfig struct {
	Driver string `yaml:"driver"`
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string `yaml:"dsn"`
	MaxConns       int32  `yaml:"max_conns"`
	MinConns       int32  `yaml:"min_conns"`
	RunMigrations  bool   `yaml:"run_migrations"`
	MigrationsDir  string `yaml:"migrations_dir"`
	ConnMaxIdleSec int32  `yaml:"conn_max_idle_seconds"`
	ConnMaxLifeSec int32  `yaml:"conn_max_life_seconds"`
}

// SQLConfig configures the database/sql backends (sqlite, mysql).
type SQLConfig struct {
	DSN          string `yaml:"dsn"`
	MaxOpenConns int    `yaml:"max_open_conns"`
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string `yaml:"level"`
}

// AuthConfig defines authentication parameters.
type AuthConfig struct {
	JWTSecret             string `yaml:"jwt_secret"`
	AccessTokenTTLMinutes int    `yaml:"access_token_ttl_minutes"`
}

// NotificationConfig holds stub notification endpoints.
type NotificationConfig struct {
	EmailFrom  string `yaml:"email_from"`
	WebhookURL string `yaml:"webhook_url"`
}

// TelegramConfig enables staff notifications through a Telegram bot.
type TelegramConfig struct {
	BotToken string `yaml:"bot_token"`
	ChatID   int64  `yaml:"chat_id"`
}

// Enabled reports whether a bot token and target chat are configured.
func (t TelegramConfig) Enabled() bool {
	return t.BotToken != "" && t.ChatID != 0
}

// ArchiveConfig configures transcript storage and the chat bridge.
type ArchiveConfig struct {
	Dir                  string   `yaml:"dir"`
	Compression          string   `yaml:"compression"`
	Recipients           []string `yaml:"recipients"`
	BridgeURL            string   `yaml:"bridge_url"`
	BridgeToken          string   `yaml:"bridge_token"`
	BridgeTimeoutSeconds int      `yaml:"bridge_timeout_seconds"`
}

// TaskConfig is the per-task scheduler configuration.
type TaskConfig struct {
	Enabled          bool `yaml:"enabled"`
	IntervalSeconds  int  `yaml:"interval_seconds"`
	ThresholdSeconds int  `yaml:"threshold_seconds"`
	DryRun           bool `yaml:"dry_run"`
}

// Threshold returns the configured threshold as a duration.
func (t TaskConfig) Threshold() time.Duration {
	return time.Duration(t.ThresholdSeconds) * time.Second
}

// MaintenanceConfig is the scheduler configuration surface.
type MaintenanceConfig struct {
	MinIntervalSeconds int        `yaml:"min_interval_seconds"`
	AutoClose          TaskConfig `yaml:"auto_close"`
	AutoDelete         TaskConfig `yaml:"auto_delete"`
	BlacklistCleanup   TaskConfig `yaml:"blacklist_cleanup"`
	Stats              TaskConfig `yaml:"stats"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		App: AppConfig{
			Name:                   "ticket-lifecycle",
			Env:                    "development",
			Host:                   "0.0.0.0",
			Port:                   "8080",
			Version:                "dev",
			RequestTimeoutSeconds:  30,
			ShutdownTimeoutSeconds: 30,
		},
		Store: StoreConfig{Driver: DriverSQLite},
		Postgres: PostgresConfig{
			MaxConns:       10,
			MinConns:       2,
			RunMigrations:  true,
			MigrationsDir:  "migrations",
			ConnMaxIdleSec: 30,
			ConnMaxLifeSec: 300,
		},
		SQL: SQLConfig{
			DSN:          "file:data/tickets.sqlite?_busy_timeout=5000",
			MaxOpenConns: 1,
		},
		Redis: RedisConfig{
			Addr:      "127.0.0.1:6379",
			KeyPrefix: "tickets",
		},
		Logger: LoggerConfig{Level: "info"},
		Auth: AuthConfig{
			JWTSecret:             "dev-secret",
			AccessTokenTTLMinutes: 60,
		},
		Notification: NotificationConfig{
			EmailFrom: "noreply@example.com",
		},
		Archive: ArchiveConfig{
			Dir:                  "data/transcripts",
			Compression:          "zstd",
			BridgeTimeoutSeconds: 10,
		},
		Maintenance: MaintenanceConfig{
			MinIntervalSeconds: DefaultMinIntervalSeconds,
			AutoClose: TaskConfig{
				IntervalSeconds:  DefaultTaskIntervalSeconds,
				ThresholdSeconds: DefaultThresholdSeconds,
			},
			AutoDelete: TaskConfig{
				IntervalSeconds:  DefaultTaskIntervalSeconds,
				ThresholdSeconds: DefaultThresholdSeconds,
			},
			BlacklistCleanup: TaskConfig{
				Enabled:         true,
				IntervalSeconds: DefaultBlacklistIntervalSeconds,
			},
			Stats: TaskConfig{
				IntervalSeconds: DefaultStatsIntervalSeconds,
			},
		},
	}
}

// Load reads configuration from defaults, the optional YAML file at path and
// environment variables, in that order of precedence (env wins).
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path == "" {
		path = os.Getenv("TICKETS_CONFIG")
	}
	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return nil, err
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadFile(path string, cfg *Config) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", strconv.Itoa(cfg.Redis.DB)))
	if err != nil {
		return fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	cfg.App.Name = getEnv("APP_NAME", cfg.App.Name)
	cfg.App.Env = getEnv("APP_ENV", cfg.App.Env)
	cfg.App.Host = getEnv("APP_HOST", cfg.App.Host)
	cfg.App.Port = getEnv("APP_PORT", cfg.App.Port)
	cfg.App.Version = getEnv("APP_VERSION", cfg.App.Version)
	cfg.App.RequestTimeoutSeconds = getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", cfg.App.RequestTimeoutSeconds)
	cfg.App.ShutdownTimeoutSeconds = getEnvAsInt("SHUTDOWN_TIMEOUT_SECONDS", cfg.App.ShutdownTimeoutSeconds)

	cfg.Store.Driver = getEnv("STORE_DRIVER", cfg.Store.Driver)

	cfg.Postgres.DSN = getEnv("POSTGRES_DSN", cfg.Postgres.DSN)
	cfg.Postgres.MaxConns = int32(getEnvAsInt("POSTGRES_MAX_CONNS", int(cfg.Postgres.MaxConns)))
	cfg.Postgres.MinConns = int32(getEnvAsInt("POSTGRES_MIN_CONNS", int(cfg.Postgres.MinConns)))
	cfg.Postgres.RunMigrations = getEnvAsBool("POSTGRES_RUN_MIGRATIONS", cfg.Postgres.RunMigrations)
	cfg.Postgres.MigrationsDir = getEnv("POSTGRES_MIGRATIONS_DIR", cfg.Postgres.MigrationsDir)
	cfg.Postgres.ConnMaxIdleSec = int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", int(cfg.Postgres.ConnMaxIdleSec)))
	cfg.Postgres.ConnMaxLifeSec = int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", int(cfg.Postgres.ConnMaxLifeSec)))

	cfg.SQL.DSN = getEnv("SQL_DSN", cfg.SQL.DSN)
	cfg.SQL.MaxOpenConns = getEnvAsInt("SQL_MAX_OPEN_CONNS", cfg.SQL.MaxOpenConns)

	cfg.Redis.Addr = getEnv("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = redisDB
	cfg.Redis.KeyPrefix = getEnv("REDIS_KEY_PREFIX", cfg.Redis.KeyPrefix)

	cfg.Logger.Level = getEnv("LOG_LEVEL", cfg.Logger.Level)

	cfg.Auth.JWTSecret = getEnv("AUTH_JWT_SECRET", cfg.Auth.JWTSecret)
	cfg.Auth.AccessTokenTTLMinutes = getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", cfg.Auth.AccessTokenTTLMinutes)

	cfg.Notification.EmailFrom = getEnv("NOTIFY_EMAIL_FROM", cfg.Notification.EmailFrom)
	cfg.Notification.WebhookURL = getEnv("NOTIFY_WEBHOOK_URL", cfg.Notification.WebhookURL)

	cfg.Telegram.BotToken = getEnv("TELEGRAM_BOT_TOKEN", cfg.Telegram.BotToken)
	cfg.Telegram.ChatID = int64(getEnvAsInt("TELEGRAM_CHAT_ID", int(cfg.Telegram.ChatID)))

	cfg.Archive.Dir = getEnv("ARCHIVE_DIR", cfg.Archive.Dir)
	cfg.Archive.Compression = getEnv("ARCHIVE_COMPRESSION", cfg.Archive.Compression)
	if recipients := os.Getenv("ARCHIVE_RECIPIENTS"); recipients != "" {
		cfg.Archive.Recipients = splitList(recipients)
	}
	cfg.Archive.BridgeURL = getEnv("CHAT_BRIDGE_URL", cfg.Archive.BridgeURL)
	cfg.Archive.BridgeToken = getEnv("CHAT_BRIDGE_TOKEN", cfg.Archive.BridgeToken)
	cfg.Archive.BridgeTimeoutSeconds = getEnvAsInt("CHAT_BRIDGE_TIMEOUT_SECONDS", cfg.Archive.BridgeTimeoutSeconds)

	m := &cfg.Maintenance
	m.MinIntervalSeconds = getEnvAsInt("MAINTENANCE_MIN_INTERVAL_SECONDS", m.MinIntervalSeconds)
	applyTaskEnv("AUTO_CLOSE", &m.AutoClose)
	applyTaskEnv("AUTO_DELETE", &m.AutoDelete)
	applyTaskEnv("BLACKLIST_CLEANUP", &m.BlacklistCleanup)
	applyTaskEnv("STATS", &m.Stats)
	return nil
}

func applyTaskEnv(prefix string, task *TaskConfig) {
	task.Enabled = getEnvAsBool(prefix+"_ENABLED", task.Enabled)
	task.IntervalSeconds = getEnvAsInt(prefix+"_INTERVAL_SECONDS", task.IntervalSeconds)
	task.ThresholdSeconds = getEnvAsInt(prefix+"_THRESHOLD_SECONDS", task.ThresholdSeconds)
	task.DryRun = getEnvAsBool(prefix+"_DRY_RUN", task.DryRun)
}

// normalize replaces zero or negative values with their documented defaults.
func (c *Config) normalize() {
	m := &c.Maintenance
	if m.MinIntervalSeconds <= 0 {
		m.MinIntervalSeconds = DefaultMinIntervalSeconds
	}
	for _, task := range []*TaskConfig{&m.AutoClose, &m.AutoDelete} {
		if task.IntervalSeconds <= 0 {
			task.IntervalSeconds = DefaultTaskIntervalSeconds
		}
		if task.ThresholdSeconds <= 0 {
			task.ThresholdSeconds = DefaultThresholdSeconds
		}
	}
	if m.BlacklistCleanup.IntervalSeconds <= 0 {
		m.BlacklistCleanup.IntervalSeconds = DefaultBlacklistIntervalSeconds
	}
	if m.Stats.IntervalSeconds <= 0 {
		m.Stats.IntervalSeconds = DefaultStatsIntervalSeconds
	}
	c.Store.Driver = strings.ToLower(strings.TrimSpace(c.Store.Driver))
	if c.Store.Driver == "" {
		c.Store.Driver = DriverSQLite
	}
	c.Archive.Compression = strings.ToLower(strings.TrimSpace(c.Archive.Compression))
	if c.Archive.Compression == "" {
		c.Archive.Compression = "zstd"
	}
	if c.Archive.BridgeTimeoutSeconds <= 0 {
		c.Archive.BridgeTimeoutSeconds = 10
	}
}

func (c *Config) validate() error {
	switch c.Store.Driver {
	case DriverMemory, DriverSQLite, DriverMySQL, DriverRedis:
	case DriverPostgres:
		if c.Postgres.DSN == "" {
			return errors.New("store driver postgres requires POSTGRES_DSN")
		}
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	if c.Store.Driver == DriverMySQL && strings.HasPrefix(c.SQL.DSN, "file:") {
		return errors.New("store driver mysql requires SQL_DSN")
	}
	switch c.Archive.Compression {
	case "none", "zstd", "lz4":
	default:
		return fmt.Errorf("unknown archive compression %q", c.Archive.Compression)
	}
	return nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// ShutdownTimeout bounds how long shutdown waits for in-flight work.
func (a AppConfig) ShutdownTimeout() time.Duration {
	if a.ShutdownTimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(a.ShutdownTimeoutSeconds) * time.Second
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func splitList(val string) []string {
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
