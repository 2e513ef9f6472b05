package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App          AppConfig
	Postgres     PostgresConfig
	Redis        RedisConfig
	Logger       LoggerConfig
	Auth         AuthConfig
	Notification NotificationConfig
	Discord      DiscordConfig
	Scheduler    SchedulerConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
	AdminAPIEnabled       bool
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values. An empty Addr disables Redis
// and the schedulers fall back to in-process locking.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines admin API authentication parameters.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
	OperatorKeyHash       string
	OperatorID            int64
}

// NotificationConfig holds lifecycle event sinks.
type NotificationConfig struct {
	WebhookURL string
}

// DiscordConfig holds the platform binding values.
type DiscordConfig struct {
	BotToken    string
	GuildIDs    []int64
	MutedRoleID string
	// SystemActorID is recorded as closer/releaser for automatic actions.
	SystemActorID int64
}

// SchedulerConfig enumerates the tunables consumed by the ticket core.
type SchedulerConfig struct {
	InactivityWarnSeconds        int
	InactivityCloseSeconds       int
	InactivityIntervalSeconds    int
	MuteSchedulerIntervalSeconds int
	ArchiveRetentionSeconds      int
	ArchiveIntervalSeconds       int
	MaxConcurrentOps             int
	OpsPerSecond                 float64
	MaxOpenTicketsPerUser        int
}

const (
	day = 24 * 60 * 60

	// DefaultMaxConcurrentOps caps simultaneous outbound platform calls.
	DefaultMaxConcurrentOps = 10
)

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}
	guildIDs, err := parseIDList(os.Getenv("DISCORD_GUILD_IDS"))
	if err != nil {
		return nil, fmt.Errorf("invalid DISCORD_GUILD_IDS: %w", err)
	}
	opsPerSecond, err := strconv.ParseFloat(getEnv("SCHEDULER_OPS_PER_SECOND", "0"), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid SCHEDULER_OPS_PER_SECOND: %w", err)
	}

	maxConns := int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10))
	minConns := int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2))
	runMigrations := getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true)
	connMaxIdle := int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30))
	connMaxLife := int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300))

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "ticket-scheduler"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
			AdminAPIEnabled:       getEnvAsBool("ADMIN_API_ENABLED", true),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       maxConns,
			MinConns:       minConns,
			RunMigrations:  runMigrations,
			ConnMaxIdleSec: connMaxIdle,
			ConnMaxLifeSec: connMaxLife,
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
			OperatorKeyHash:       os.Getenv("AUTH_OPERATOR_KEY_HASH"),
			OperatorID:            getEnvAsInt64("AUTH_OPERATOR_ID", 0),
		},
		Notification: NotificationConfig{
			WebhookURL: getEnv("NOTIFY_WEBHOOK_URL", ""),
		},
		Discord: DiscordConfig{
			BotToken:      os.Getenv("DISCORD_BOT_TOKEN"),
			GuildIDs:      guildIDs,
			MutedRoleID:   os.Getenv("DISCORD_MUTED_ROLE_ID"),
			SystemActorID: getEnvAsInt64("DISCORD_SYSTEM_ACTOR_ID", 0),
		},
		Scheduler: SchedulerConfig{
			InactivityWarnSeconds:        getEnvAsInt("INACTIVITY_WARN_SECONDS", 3*day),
			InactivityCloseSeconds:       getEnvAsInt("INACTIVITY_CLOSE_SECONDS", 2*day),
			InactivityIntervalSeconds:    getEnvAsInt("INACTIVITY_INTERVAL_SECONDS", 600),
			MuteSchedulerIntervalSeconds: getEnvAsInt("MUTE_SCHEDULER_INTERVAL_SECONDS", 30),
			ArchiveRetentionSeconds:      getEnvAsInt("ARCHIVE_RETENTION_SECONDS", 7*day),
			ArchiveIntervalSeconds:       getEnvAsInt("ARCHIVE_INTERVAL_SECONDS", 3600),
			MaxConcurrentOps:             getEnvAsInt("MAX_CONCURRENT_OPS", DefaultMaxConcurrentOps),
			OpsPerSecond:                 opsPerSecond,
			MaxOpenTicketsPerUser:        getEnvAsInt("MAX_OPEN_TICKETS_PER_USER", 1),
		},
	}

	if err := cfg.Scheduler.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Discord.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate requires a muted role whenever the bot is enabled. Releasing a
// mute with no role id would hit a missing route and read as "member gone".
func (d DiscordConfig) Validate() error {
	if d.BotToken == "" {
		return nil
	}
	if d.MutedRoleID == "" {
		return errors.New("DISCORD_MUTED_ROLE_ID is required when DISCORD_BOT_TOKEN is set")
	}
	if _, err := strconv.ParseUint(d.MutedRoleID, 10, 64); err != nil {
		return fmt.Errorf("invalid DISCORD_MUTED_ROLE_ID: %w", err)
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

// Validate rejects values the schedulers cannot run with.
func (s SchedulerConfig) Validate() error {
	positive := map[string]int{
		"INACTIVITY_WARN_SECONDS":         s.InactivityWarnSeconds,
		"INACTIVITY_CLOSE_SECONDS":        s.InactivityCloseSeconds,
		"INACTIVITY_INTERVAL_SECONDS":     s.InactivityIntervalSeconds,
		"MUTE_SCHEDULER_INTERVAL_SECONDS": s.MuteSchedulerIntervalSeconds,
		"ARCHIVE_RETENTION_SECONDS":       s.ArchiveRetentionSeconds,
		"ARCHIVE_INTERVAL_SECONDS":        s.ArchiveIntervalSeconds,
		"MAX_CONCURRENT_OPS":              s.MaxConcurrentOps,
	}
	for key, val := range positive {
		if val <= 0 {
			return fmt.Errorf("%s must be positive, got %d", key, val)
		}
	}
	if s.OpsPerSecond < 0 {
		return fmt.Errorf("SCHEDULER_OPS_PER_SECOND must not be negative, got %v", s.OpsPerSecond)
	}
	return nil
}

// InactivityWarnAfter is the idle period before a warning is posted.
func (s SchedulerConfig) InactivityWarnAfter() time.Duration {
	return seconds(s.InactivityWarnSeconds)
}

// InactivityCloseAfter is measured from the warning, not from last activity.
func (s SchedulerConfig) InactivityCloseAfter() time.Duration {
	return seconds(s.InactivityCloseSeconds)
}

func (s SchedulerConfig) InactivityInterval() time.Duration {
	return seconds(s.InactivityIntervalSeconds)
}

func (s SchedulerConfig) MuteInterval() time.Duration {
	return seconds(s.MuteSchedulerIntervalSeconds)
}

func (s SchedulerConfig) ArchiveRetention() time.Duration {
	return seconds(s.ArchiveRetentionSeconds)
}

func (s SchedulerConfig) ArchiveInterval() time.Duration {
	return seconds(s.ArchiveIntervalSeconds)
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
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

func getEnvAsInt64(key string, fallback int64) int64 {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseInt(val, 10, 64)
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

// parseIDList reads a comma separated list of snowflake ids.
func parseIDList(raw string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse %q: %w", part, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
