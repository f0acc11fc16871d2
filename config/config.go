package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"laundryonline/internal/status"
)

// Config represents the overall application configuration.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	Push          PushConfig          `yaml:"push"`
	WorkerPool    WorkerPoolConfig    `yaml:"worker_pool"`
	Auth          AuthConfig          `yaml:"auth"`
	Sync          SyncConfig          `yaml:"sync"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Messaging     MessagingConfig     `yaml:"messaging"`
}

// WorkerPoolConfig holds the configuration for the notification worker pool.
type WorkerPoolConfig struct {
	Size int `yaml:"size"`
}

// PushConfig holds the VAPID keys for web push notifications.
type PushConfig struct {
	PublicKey  string `yaml:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
}

// ServerConfig holds the server-related configuration.
type ServerConfig struct {
	Port            int     `yaml:"port"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int     `yaml:"rate_limit_burst"`
	CacheTTLSeconds int     `yaml:"cache_ttl_seconds"`
	GinMode         string  `yaml:"gin_mode"`
}

// DatabaseConfig holds the database connection configuration. DSNs starting
// with "sqlite:" or "file:" open SQLite; anything else is Postgres.
type DatabaseConfig struct {
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
	LogSQL                 bool   `yaml:"log_sql"`
}

// AuthConfig configures token issuance and the admin role lookup.
type AuthConfig struct {
	JWTSecret         string        `yaml:"jwt_secret"`
	TokenExpiryHours  int           `yaml:"token_expiry_hours"`
	TokenExpiry       time.Duration `yaml:"-"`
	ResetTokenMinutes int           `yaml:"reset_token_minutes"`
	ResetTokenTTL     time.Duration `yaml:"-"`
	AdminEmails       []string      `yaml:"admin_emails"`
	MinPasswordLength int           `yaml:"min_password_length"`
	PasswordResetURL  string        `yaml:"password_reset_url"`
}

// SyncConfig configures the machine synchronizer.
type SyncConfig struct {
	StatusAliases       map[string]string `yaml:"status_aliases"`
	Buckets             BucketsConfig     `yaml:"buckets"`
	PollIntervalSeconds int               `yaml:"poll_interval_seconds"`
	PollInterval        time.Duration     `yaml:"-"`
	ReconnectMinMillis  int               `yaml:"reconnect_min_ms"`
	ReconnectMaxMillis  int               `yaml:"reconnect_max_ms"`
	ReconnectMin        time.Duration     `yaml:"-"`
	ReconnectMax        time.Duration     `yaml:"-"`
	DefaultDurationMins int               `yaml:"default_duration_minutes"`
}

// BucketsConfig lists the canonical statuses that belong to each display bucket.
type BucketsConfig struct {
	Available []string `yaml:"available"`
	InUse     []string `yaml:"in_use"`
}

// NotificationsConfig configures the dispatcher.
type NotificationsConfig struct {
	Enabled          bool `yaml:"enabled"`
	InboxSize        int  `yaml:"inbox_size"`
	MessagingEnabled bool `yaml:"messaging_enabled"`
}

// MessagingConfig points at the external push-messaging relay. An empty URL
// disables the listener.
type MessagingConfig struct {
	URL                string            `yaml:"url"`
	Headers            map[string]string `yaml:"headers"`
	ReconnectMinMillis int               `yaml:"reconnect_min_ms"`
	ReconnectMaxMillis int               `yaml:"reconnect_max_ms"`
}

// Load reads the configuration from the given path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyDefaults fills unset values and derives the duration fields.
func (cfg *Config) ApplyDefaults() {
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 5
	}
	if cfg.Server.CacheTTLSeconds < 0 {
		cfg.Server.CacheTTLSeconds = 0
	}

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}

	if cfg.WorkerPool.Size <= 0 {
		log.Printf("worker_pool.size is not set or invalid; defaulting to 1")
		cfg.WorkerPool.Size = 1
	}

	if cfg.Auth.TokenExpiryHours <= 0 {
		cfg.Auth.TokenExpiryHours = 7 * 24
	}
	cfg.Auth.TokenExpiry = time.Duration(cfg.Auth.TokenExpiryHours) * time.Hour
	if cfg.Auth.ResetTokenMinutes <= 0 {
		cfg.Auth.ResetTokenMinutes = 60
	}
	cfg.Auth.ResetTokenTTL = time.Duration(cfg.Auth.ResetTokenMinutes) * time.Minute
	if cfg.Auth.MinPasswordLength <= 0 {
		cfg.Auth.MinPasswordLength = 6
	}

	if len(cfg.Sync.Buckets.Available) == 0 && len(cfg.Sync.Buckets.InUse) == 0 {
		cfg.Sync.Buckets.Available = []string{string(status.Available)}
		cfg.Sync.Buckets.InUse = []string{string(status.Running), string(status.Complete)}
	}
	if cfg.Sync.PollIntervalSeconds <= 0 {
		cfg.Sync.PollIntervalSeconds = 5
	}
	cfg.Sync.PollInterval = time.Duration(cfg.Sync.PollIntervalSeconds) * time.Second
	if cfg.Sync.ReconnectMinMillis <= 0 {
		cfg.Sync.ReconnectMinMillis = 500
	}
	if cfg.Sync.ReconnectMaxMillis < cfg.Sync.ReconnectMinMillis {
		cfg.Sync.ReconnectMaxMillis = 30000
	}
	cfg.Sync.ReconnectMin = time.Duration(cfg.Sync.ReconnectMinMillis) * time.Millisecond
	cfg.Sync.ReconnectMax = time.Duration(cfg.Sync.ReconnectMaxMillis) * time.Millisecond
	if cfg.Sync.DefaultDurationMins <= 0 {
		cfg.Sync.DefaultDurationMins = 45
	}

	if cfg.Notifications.InboxSize <= 0 {
		cfg.Notifications.InboxSize = 200
	}

	if cfg.Messaging.ReconnectMinMillis <= 0 {
		cfg.Messaging.ReconnectMinMillis = 1000
	}
	if cfg.Messaging.ReconnectMaxMillis < cfg.Messaging.ReconnectMinMillis {
		cfg.Messaging.ReconnectMaxMillis = 60000
	}
}

// Validate rejects configurations the service cannot run with.
func (cfg *Config) Validate() error {
	if cfg.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is required")
	}
	if _, err := status.NewBuckets(cfg.Sync.Buckets.Available, cfg.Sync.Buckets.InUse); err != nil {
		return fmt.Errorf("sync.buckets: %w", err)
	}
	if _, err := status.NewNormalizer(cfg.Sync.StatusAliases); err != nil {
		return fmt.Errorf("sync.status_aliases: %w", err)
	}
	return nil
}
