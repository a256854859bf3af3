package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for specsync.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
	Lock       LockConfig       `yaml:"lock"`
	CodeRAG    CodeRAGConfig    `yaml:"coderag"`
	Annotation AnnotationConfig `yaml:"annotation"`
	Security   SecurityConfig   `yaml:"security"`
	History    HistoryConfig    `yaml:"history"`
	Publish    PublishConfig    `yaml:"publish"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Listen      string          `yaml:"listen"`
	CORSOrigins []string        `yaml:"cors_origins"`
	RateLimit   RateLimitConfig `yaml:"rate_limit"`
}

// RateLimitConfig contains per-IP rate limits for the HTTP API.
type RateLimitConfig struct {
	Enabled bool            `yaml:"enabled"`
	Public  RateLimitBucket `yaml:"public"`
	Trigger RateLimitBucket `yaml:"trigger"`
}

// RateLimitBucket is a token bucket definition.
type RateLimitBucket struct {
	RequestsPerMinute int `yaml:"requests_per_minute"`
	Burst             int `yaml:"burst"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Driver   string         `yaml:"driver"`
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	Postgres PostgresConfig `yaml:"postgres"`
}

// SQLiteConfig contains SQLite-specific settings.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// PostgresConfig contains PostgreSQL-specific settings.
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"sslmode"`
}

// PipelineConfig contains sync pipeline settings.
type PipelineConfig struct {
	FetchTimeout      time.Duration `yaml:"fetch_timeout"`
	MaxSpecBytes      int64         `yaml:"max_spec_bytes"`
	ValidateSpec      bool          `yaml:"validate_spec"`
	IndexPollInterval time.Duration `yaml:"index_poll_interval"`
	IndexTimeout      time.Duration `yaml:"index_timeout"`
}

// LockConfig selects the per-project lock implementation.
type LockConfig struct {
	Driver string `yaml:"driver"` // memory or file
	Dir    string `yaml:"dir"`
}

// CodeRAGConfig contains settings for the code-aware retrieval service.
type CodeRAGConfig struct {
	URL           string        `yaml:"url"`
	APIKey        string        `yaml:"api_key"`
	SetupTimeout  time.Duration `yaml:"setup_timeout"`
	StatusTimeout time.Duration `yaml:"status_timeout"`
	QueryTimeout  time.Duration `yaml:"query_timeout"`
}

// AnnotationConfig contains the instructions sent with every annotation
// request. RewritePrompt may contain a {language} placeholder.
type AnnotationConfig struct {
	SystemPrompt  string `yaml:"system_prompt"`
	RewritePrompt string `yaml:"rewrite_prompt"`
}

// SecurityConfig contains secrets used to protect stored credentials.
type SecurityConfig struct {
	SecretKey string `yaml:"secret_key"`
}

// HistoryConfig contains snapshot history retention settings.
type HistoryConfig struct {
	RetentionDays   int           `yaml:"retention_days"`   // default 30, -1 to disable
	CleanupInterval time.Duration `yaml:"cleanup_interval"` // default 1h
}

// PublishConfig contains optional sinks for generated documents.
type PublishConfig struct {
	GitHub GitHubPublishConfig `yaml:"github"`
	S3     S3PublishConfig     `yaml:"s3"`
}

// GitHubPublishConfig commits generated documents back to each project's
// GitHub repository.
type GitHubPublishConfig struct {
	Enabled bool   `yaml:"enabled"`
	Token   string `yaml:"token"`
	Branch  string `yaml:"branch"`
	Path    string `yaml:"path"`
	Message string `yaml:"message"`
}

// S3PublishConfig archives every snapshot in an S3-compatible bucket.
type S3PublishConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Endpoint  string `yaml:"endpoint"`
	Region    string `yaml:"region"`
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// Load reads and parses configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	return Parse(data)
}

// Parse parses configuration from YAML bytes.
func Parse(data []byte) (*Config, error) {
	// Expand environment variables.
	expanded := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Apply defaults.
	applyDefaults(&cfg)

	// Validate configuration.
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR} and $VAR patterns with environment variable values.
func expandEnvVars(s string) string {
	// Match ${VAR} pattern.
	re := regexp.MustCompile(`\$\{([a-zA-Z_][a-zA-Z0-9_]*)\}`)
	s = re.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		if val, ok := os.LookupEnv(varName); ok {
			return val
		}

		return match
	})

	// Match $VAR pattern (only at word boundaries).
	re = regexp.MustCompile(`\$([a-zA-Z_][a-zA-Z0-9_]*)`)
	s = re.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[1:]
		if val, ok := os.LookupEnv(varName); ok {
			return val
		}

		return match
	})

	return s
}

// applyDefaults sets default values for unset configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Server.Listen == "" {
		cfg.Server.Listen = ":8080"
	}

	if cfg.Server.RateLimit.Public.RequestsPerMinute == 0 {
		cfg.Server.RateLimit.Public.RequestsPerMinute = 120
	}

	if cfg.Server.RateLimit.Public.Burst == 0 {
		cfg.Server.RateLimit.Public.Burst = 20
	}

	if cfg.Server.RateLimit.Trigger.RequestsPerMinute == 0 {
		cfg.Server.RateLimit.Trigger.RequestsPerMinute = 10
	}

	if cfg.Server.RateLimit.Trigger.Burst == 0 {
		cfg.Server.RateLimit.Trigger.Burst = 3
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "sqlite"
	}

	if cfg.Database.SQLite.Path == "" {
		cfg.Database.SQLite.Path = "./specsync.db"
	}

	if cfg.Database.Postgres.Port == 0 {
		cfg.Database.Postgres.Port = 5432
	}

	if cfg.Database.Postgres.SSLMode == "" {
		cfg.Database.Postgres.SSLMode = "disable"
	}

	if cfg.Pipeline.FetchTimeout == 0 {
		cfg.Pipeline.FetchTimeout = 20 * time.Second
	}

	if cfg.Pipeline.MaxSpecBytes == 0 {
		cfg.Pipeline.MaxSpecBytes = 32 << 20
	}

	if cfg.Pipeline.IndexPollInterval == 0 {
		cfg.Pipeline.IndexPollInterval = 10 * time.Second
	}

	if cfg.Pipeline.IndexTimeout == 0 {
		cfg.Pipeline.IndexTimeout = 30 * time.Minute
	}

	if cfg.Lock.Driver == "" {
		cfg.Lock.Driver = "memory"
	}

	if cfg.Lock.Dir == "" {
		cfg.Lock.Dir = "./locks"
	}

	if cfg.CodeRAG.SetupTimeout == 0 {
		cfg.CodeRAG.SetupTimeout = 30 * time.Minute
	}

	if cfg.CodeRAG.StatusTimeout == 0 {
		cfg.CodeRAG.StatusTimeout = 60 * time.Second
	}

	if cfg.CodeRAG.QueryTimeout == 0 {
		cfg.CodeRAG.QueryTimeout = 300 * time.Second
	}

	if cfg.Annotation.SystemPrompt == "" {
		cfg.Annotation.SystemPrompt = DefaultSystemPrompt
	}

	if cfg.Annotation.RewritePrompt == "" {
		cfg.Annotation.RewritePrompt = DefaultRewritePrompt
	}

	if cfg.History.RetentionDays == 0 {
		cfg.History.RetentionDays = 30
	}

	if cfg.History.CleanupInterval == 0 {
		cfg.History.CleanupInterval = time.Hour
	}

	if cfg.Publish.GitHub.Branch == "" {
		cfg.Publish.GitHub.Branch = "main"
	}

	if cfg.Publish.GitHub.Path == "" {
		cfg.Publish.GitHub.Path = "docs/openapi.json"
	}

	if cfg.Publish.GitHub.Message == "" {
		cfg.Publish.GitHub.Message = "docs: update generated OpenAPI document"
	}

	if cfg.Publish.S3.Prefix == "" {
		cfg.Publish.S3.Prefix = "specsync"
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	// Validate database config.
	switch c.Database.Driver {
	case "sqlite":
		if c.Database.SQLite.Path == "" {
			return fmt.Errorf("sqlite.path is required when driver is sqlite")
		}
	case "postgres":
		if c.Database.Postgres.Host == "" {
			return fmt.Errorf("postgres.host is required when driver is postgres")
		}

		if c.Database.Postgres.Database == "" {
			return fmt.Errorf("postgres.database is required when driver is postgres")
		}
	default:
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}

	switch c.Lock.Driver {
	case "memory", "file":
	default:
		return fmt.Errorf("unsupported lock driver: %s", c.Lock.Driver)
	}

	if c.CodeRAG.URL == "" {
		return fmt.Errorf("coderag.url is required")
	}

	if c.Pipeline.IndexPollInterval > c.Pipeline.IndexTimeout {
		return fmt.Errorf("pipeline.index_poll_interval must not exceed pipeline.index_timeout")
	}

	if c.Publish.GitHub.Enabled && c.Publish.GitHub.Token == "" {
		return fmt.Errorf("publish.github.token is required when github publishing is enabled")
	}

	if c.Publish.S3.Enabled {
		if c.Publish.S3.Endpoint == "" {
			return fmt.Errorf("publish.s3.endpoint is required when s3 publishing is enabled")
		}

		if c.Publish.S3.Bucket == "" {
			return fmt.Errorf("publish.s3.bucket is required when s3 publishing is enabled")
		}
	}

	return nil
}

// GetDSN returns the database connection string.
func (c *Config) GetDSN() string {
	switch c.Database.Driver {
	case "sqlite":
		return c.Database.SQLite.Path
	case "postgres":
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			c.Database.Postgres.Host,
			c.Database.Postgres.Port,
			c.Database.Postgres.User,
			c.Database.Postgres.Password,
			c.Database.Postgres.Database,
			c.Database.Postgres.SSLMode,
		)
	default:
		return ""
	}
}

// RewritePromptFor renders the rewrite prompt for a project language.
func (c *Config) RewritePromptFor(language string) string {
	if language == "" {
		language = "unknown"
	}

	return strings.ReplaceAll(c.Annotation.RewritePrompt, "{language}", language)
}

// String returns a sanitized string representation of the config (no secrets).
func (c *Config) String() string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Server: listen=%s rate_limit=%t\n", c.Server.Listen, c.Server.RateLimit.Enabled))
	sb.WriteString(fmt.Sprintf("Database: driver=%s\n", c.Database.Driver))
	sb.WriteString(fmt.Sprintf("Pipeline: fetch_timeout=%s validate_spec=%t index_poll_interval=%s index_timeout=%s\n",
		c.Pipeline.FetchTimeout, c.Pipeline.ValidateSpec, c.Pipeline.IndexPollInterval, c.Pipeline.IndexTimeout))
	sb.WriteString(fmt.Sprintf("Lock: driver=%s\n", c.Lock.Driver))
	sb.WriteString(fmt.Sprintf("CodeRAG: url=%s api_key_set=%t\n", c.CodeRAG.URL, c.CodeRAG.APIKey != ""))
	sb.WriteString(fmt.Sprintf("Security: secret_key_set=%t\n", c.Security.SecretKey != ""))
	sb.WriteString(fmt.Sprintf("History: retention_days=%d cleanup_interval=%s\n",
		c.History.RetentionDays, c.History.CleanupInterval))
	sb.WriteString(fmt.Sprintf("Publish: github=%t s3=%t\n", c.Publish.GitHub.Enabled, c.Publish.S3.Enabled))

	return sb.String()
}
