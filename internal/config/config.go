package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/playfab-session/internal/domain"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	PlayFab     PlayFabConfig     `yaml:"playfab"`
	Login       LoginConfig       `yaml:"login"`
	Leaderboard LeaderboardConfig `yaml:"leaderboard"`
	Session     SessionConfig     `yaml:"session"`
	Redis       RedisConfig       `yaml:"redis"`
	Postgres    PostgresConfig    `yaml:"postgres"`
	Kafka       KafkaConfig       `yaml:"kafka"`
	Sync        SyncConfig        `yaml:"sync"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         int           `yaml:"port" env:"SERVER_PORT"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

// PlayFabConfig holds the player backend connection settings
type PlayFabConfig struct {
	TitleID            string        `yaml:"title_id" env:"PLAYFAB_TITLE_ID"`
	DeveloperSecretKey string        `yaml:"developer_secret_key" env:"PLAYFAB_DEVELOPER_SECRET_KEY"`
	BaseURL            string        `yaml:"base_url" env:"PLAYFAB_BASE_URL"`
	Timeout            time.Duration `yaml:"timeout"`
}

// Endpoint returns the base URL for backend API calls
func (c *PlayFabConfig) Endpoint() string {
	if c.BaseURL != "" {
		return c.BaseURL
	}
	return fmt.Sprintf("https://%s.playfabapi.com", c.TitleID)
}

// LoginConfig controls the session login workflow
type LoginConfig struct {
	AutoLogin             bool                     `yaml:"auto_login" env:"LOGIN_AUTO_LOGIN"`
	InfoRequestParameters domain.InfoRequestParams `yaml:"info_request_parameters"`
	ExtendedProfileKey    string                   `yaml:"extended_profile_key" env:"LOGIN_EXTENDED_PROFILE_KEY"`
	MaxNewProfileRetries  int                      `yaml:"max_new_profile_retries" env:"LOGIN_MAX_NEW_PROFILE_RETRIES"`
}

// LeaderboardConfig controls leaderboard aggregation
type LeaderboardConfig struct {
	TopMax             int                       `yaml:"top_max" env:"LEADERBOARD_TOP_MAX"`
	NeighborMax        int                       `yaml:"neighbor_max" env:"LEADERBOARD_NEIGHBOR_MAX"`
	ProfileConstraints domain.ProfileConstraints `yaml:"profile_constraints"`
	UserDataKeys       []string                  `yaml:"user_data_keys" env:"LEADERBOARD_USER_DATA_KEYS"`
}

// SessionConfig holds conversation state storage configuration
type SessionConfig struct {
	Store string        `yaml:"store" env:"SESSION_STORE"` // "redis" or "memory"
	TTL   time.Duration `yaml:"ttl"`
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Addr         string        `yaml:"addr" env:"REDIS_ADDR"`
	Password     string        `yaml:"password" env:"REDIS_PASSWORD"`
	DB           int           `yaml:"db"`
	PoolSize     int           `yaml:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// PostgresConfig holds PostgreSQL connection configuration
type PostgresConfig struct {
	Enabled         bool          `yaml:"enabled" env:"POSTGRES_ENABLED"`
	Host            string        `yaml:"host" env:"POSTGRES_HOST"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user" env:"POSTGRES_USER"`
	Password        string        `yaml:"password" env:"POSTGRES_PASSWORD"`
	Database        string        `yaml:"database" env:"POSTGRES_DATABASE"`
	SSLMode         string        `yaml:"ssl_mode"`
	MaxConnections  int           `yaml:"max_connections"`
	MinConnections  int           `yaml:"min_connections"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time"`
}

// ConnectionString returns the PostgreSQL connection string
func (c *PostgresConfig) ConnectionString() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, sslMode,
	)
}

// KafkaConfig holds Kafka connection configuration
type KafkaConfig struct {
	Brokers      []string      `yaml:"brokers" env:"KAFKA_BROKERS"`
	StatsTopic   string        `yaml:"stats_topic"`
	EventsTopic  string        `yaml:"events_topic"`
	GroupID      string        `yaml:"group_id"`
	Enabled      bool          `yaml:"enabled" env:"KAFKA_ENABLED"`
	BatchSize    int           `yaml:"batch_size"`
	BatchTimeout time.Duration `yaml:"batch_timeout"`
}

// SyncConfig holds profile snapshot worker configuration
type SyncConfig struct {
	Interval  time.Duration `yaml:"interval"`
	BatchSize int           `yaml:"batch_size"`
	Enabled   bool          `yaml:"enabled"`
}

// Load reads configuration from a YAML file, then applies environment overrides
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables
	data = []byte(os.ExpandEnv(string(data)))

	// Start from defaults so explicit zero values in the file (auto_login: false,
	// top_max: 0) survive.
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the bounds the login and leaderboard workflows rely on
func (c *Config) Validate() error {
	if c.PlayFab.TitleID == "" && c.PlayFab.BaseURL == "" {
		return fmt.Errorf("playfab.title_id is missing")
	}
	if c.Login.MaxNewProfileRetries < 0 || c.Login.MaxNewProfileRetries > 10 {
		return fmt.Errorf("login.max_new_profile_retries must be between 0-10, got %d. Each retry is an API call", c.Login.MaxNewProfileRetries)
	}
	if c.Leaderboard.TopMax < 0 || c.Leaderboard.TopMax > 100 {
		return fmt.Errorf("leaderboard.top_max must be between 0-100, got %d", c.Leaderboard.TopMax)
	}
	if c.Leaderboard.NeighborMax < 0 || c.Leaderboard.NeighborMax > 100 {
		return fmt.Errorf("leaderboard.neighbor_max must be between 0-100, got %d", c.Leaderboard.NeighborMax)
	}
	if c.Session.Store != "redis" && c.Session.Store != "memory" {
		return fmt.Errorf("session.store must be redis or memory, got %q", c.Session.Store)
	}
	return nil
}

// applyDefaults sets default values for missing configuration
func (c *Config) applyDefaults() {
	// Server defaults
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 5 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 10 * time.Second
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = 120 * time.Second
	}

	// Backend defaults
	if c.PlayFab.Timeout == 0 {
		c.PlayFab.Timeout = 10 * time.Second
	}

	// Session defaults
	if c.Session.Store == "" {
		c.Session.Store = "redis"
	}
	if c.Session.TTL == 0 {
		c.Session.TTL = 30 * time.Minute
	}

	// Redis defaults
	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}
	if c.Redis.PoolSize == 0 {
		c.Redis.PoolSize = 100
	}
	if c.Redis.MinIdleConns == 0 {
		c.Redis.MinIdleConns = 10
	}
	if c.Redis.DialTimeout == 0 {
		c.Redis.DialTimeout = 5 * time.Second
	}
	if c.Redis.ReadTimeout == 0 {
		c.Redis.ReadTimeout = 3 * time.Second
	}
	if c.Redis.WriteTimeout == 0 {
		c.Redis.WriteTimeout = 3 * time.Second
	}

	// PostgreSQL defaults
	if c.Postgres.Host == "" {
		c.Postgres.Host = "localhost"
	}
	if c.Postgres.Port == 0 {
		c.Postgres.Port = 5432
	}
	if c.Postgres.MaxConnections == 0 {
		c.Postgres.MaxConnections = 20
	}
	if c.Postgres.MinConnections == 0 {
		c.Postgres.MinConnections = 2
	}
	if c.Postgres.MaxConnLifetime == 0 {
		c.Postgres.MaxConnLifetime = 1 * time.Hour
	}
	if c.Postgres.MaxConnIdleTime == 0 {
		c.Postgres.MaxConnIdleTime = 30 * time.Minute
	}

	// Kafka defaults
	if len(c.Kafka.Brokers) == 0 {
		c.Kafka.Brokers = []string{"localhost:9092"}
	}
	if c.Kafka.StatsTopic == "" {
		c.Kafka.StatsTopic = "player-stats"
	}
	if c.Kafka.EventsTopic == "" {
		c.Kafka.EventsTopic = "session-events"
	}
	if c.Kafka.GroupID == "" {
		c.Kafka.GroupID = "playfab-session"
	}
	if c.Kafka.BatchSize == 0 {
		c.Kafka.BatchSize = 100
	}
	if c.Kafka.BatchTimeout == 0 {
		c.Kafka.BatchTimeout = 1 * time.Second
	}

	// Sync defaults
	if c.Sync.Interval == 0 {
		c.Sync.Interval = 5 * time.Minute
	}
	if c.Sync.BatchSize == 0 {
		c.Sync.BatchSize = 500
	}
}

// DefaultConfig returns a configuration with all defaults
func DefaultConfig() *Config {
	cfg := &Config{
		Login: LoginConfig{
			AutoLogin:            true,
			MaxNewProfileRetries: 2,
		},
		Leaderboard: LeaderboardConfig{
			TopMax:      5,
			NeighborMax: 2,
		},
	}
	cfg.applyDefaults()
	cfg.Sync.Enabled = true
	return cfg
}

// FromEnv builds a configuration from defaults and environment variables only
func FromEnv() (*Config, error) {
	cfg := DefaultConfig()
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
