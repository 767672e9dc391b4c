package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	Database  DatabaseConfig  `yaml:"database"`
	JWT       JWTConfig       `yaml:"jwt"`
	Admin     AdminConfig     `yaml:"admin"`
	AI        AIConfig        `yaml:"ai"`
	Redis     RedisConfig     `yaml:"redis"`
	GitHub    GitHubConfig    `yaml:"github"`
	Workspace WorkspaceConfig `yaml:"workspace"`
	Tests     TestsConfig     `yaml:"tests"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
}

type ServerConfig struct {
	Host string `yaml:"host" env:"SERVER_HOST, overwrite"`
	Port string `yaml:"port" env:"SERVER_PORT, overwrite"`
	Mode string `yaml:"mode" env:"SERVER_MODE, overwrite"` // debug, release, test
}

type LogConfig struct {
	Level string `yaml:"level" env:"LOG_LEVEL, overwrite"`
}

type DatabaseConfig struct {
	Driver string `yaml:"driver" env:"DB_DRIVER, overwrite"` // sqlite, mysql, postgres
	DSN    string `yaml:"dsn" env:"DB_DSN, overwrite"`
}

type JWTConfig struct {
	Secret            string `yaml:"secret" env:"JWT_SECRET, overwrite"`
	ExpireHour        int    `yaml:"expire_hour" env:"JWT_EXPIRE_HOUR, overwrite"`
	RefreshExpireHour int    `yaml:"refresh_expire_hour" env:"JWT_REFRESH_EXPIRE_HOUR, overwrite"`
}

// AdminConfig seeds the first administrator on an empty database.
type AdminConfig struct {
	Username string `yaml:"username" env:"ADMIN_USERNAME, overwrite"`
	Password string `yaml:"password" env:"ADMIN_PASSWORD, overwrite"`
}

// AIConfig is the last-resort provider when no LLM config row is usable.
type AIConfig struct {
	Provider string `yaml:"provider" env:"AI_PROVIDER, overwrite"` // openai, azure, anthropic, ollama, gemini
	BaseURL  string `yaml:"base_url" env:"AI_BASE_URL, overwrite"`
	APIKey   string `yaml:"api_key" env:"AI_API_KEY, overwrite"`
	Model    string `yaml:"model" env:"AI_MODEL, overwrite"`
}

// RedisConfig for optional async task queue
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled" env:"REDIS_ENABLED, overwrite"`
	Addr     string `yaml:"addr" env:"REDIS_ADDR, overwrite"`
	Password string `yaml:"password" env:"REDIS_PASSWORD, overwrite"`
	DB       int    `yaml:"db" env:"REDIS_DB, overwrite"`
}

type GitHubConfig struct {
	Token         string `yaml:"token" env:"GITHUB_TOKEN, overwrite"`
	WebhookSecret string `yaml:"webhook_secret" env:"GITHUB_WEBHOOK_SECRET, overwrite"`
	APIBaseURL    string `yaml:"api_base_url" env:"GITHUB_API_BASE_URL, overwrite"`
	MergeMethod   string `yaml:"merge_method" env:"GITHUB_MERGE_METHOD, overwrite"` // squash, merge, rebase
	// Only honored when the server runs in debug mode.
	SkipSignatureVerification bool `yaml:"skip_signature_verification" env:"GITHUB_SKIP_SIGNATURE_VERIFICATION, overwrite"`
}

type WorkspaceConfig struct {
	ReposDir         string        `yaml:"repos_dir" env:"REPOS_DIR, overwrite"`
	CloneTimeout     time.Duration `yaml:"clone_timeout" env:"CLONE_TIMEOUT, overwrite"`
	PullTimeout      time.Duration `yaml:"pull_timeout" env:"PULL_TIMEOUT, overwrite"`
	MaxFirstRunFiles int           `yaml:"max_first_run_files" env:"MAX_FIRST_RUN_FILES, overwrite"`
	MaxFileSize      int64         `yaml:"max_file_size" env:"MAX_FILE_SIZE, overwrite"`
}

type TestsConfig struct {
	Mode    string        `yaml:"mode" env:"TESTS_MODE, overwrite"` // simulated, local
	Timeout time.Duration `yaml:"timeout" env:"TESTS_TIMEOUT, overwrite"`
}

type SchedulerConfig struct {
	AnalysisCron       string        `yaml:"analysis_cron" env:"ANALYSIS_CRON, overwrite"` // empty disables
	MergeRetryInterval time.Duration `yaml:"merge_retry_interval" env:"MERGE_RETRY_INTERVAL, overwrite"`
	LogRetentionDays   int           `yaml:"log_retention_days" env:"LOG_RETENTION_DAYS, overwrite"`
}

var GlobalConfig *Config

func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
	}

	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); err == nil {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, err
		}
		// Unmarshal over the defaults so omitted keys keep their default value.
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", configPath, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	if err := cfg.overrideFromEnv(context.Background()); err != nil {
		return nil, err
	}
	GlobalConfig = cfg
	return cfg, nil
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: "8080",
			Mode: "debug",
		},
		Log: LogConfig{Level: "info"},
		Database: DatabaseConfig{
			Driver: "sqlite",
			DSN:    "codemender.db",
		},
		JWT: JWTConfig{
			Secret:            "codemender-secret-key-change-in-production",
			ExpireHour:        24,
			RefreshExpireHour: 720,
		},
		Admin: AdminConfig{
			Username: "admin",
			Password: "admin",
		},
		AI: AIConfig{
			Provider: "openai",
			BaseURL:  "https://api.openai.com/v1",
			Model:    "gpt-4o",
		},
		Redis: RedisConfig{
			Enabled: false,
			Addr:    "localhost:6379",
			DB:      0,
		},
		GitHub: GitHubConfig{
			MergeMethod: "squash",
		},
		Workspace: WorkspaceConfig{
			ReposDir:         "data/repos",
			CloneTimeout:     120 * time.Second,
			PullTimeout:      60 * time.Second,
			MaxFirstRunFiles: 15,
			MaxFileSize:      500000,
		},
		Tests: TestsConfig{
			Mode:    "simulated",
			Timeout: 120 * time.Second,
		},
		Scheduler: SchedulerConfig{
			MergeRetryInterval: 5 * time.Minute,
			LogRetentionDays:   30,
		},
	}
}

func (c *Config) overrideFromEnv(ctx context.Context) error {
	if err := envconfig.Process(ctx, c); err != nil {
		return fmt.Errorf("load env overrides: %w", err)
	}
	// Redis URL override (format: redis://:password@host:port/db)
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		c.Redis.Enabled = true
		c.parseRedisURL(redisURL)
	}
	return nil
}

// IsRelease reports whether the server runs in production mode.
func (c *Config) IsRelease() bool {
	return c.Server.Mode == "release"
}

// parseRedisURL parses a Redis URL and sets config values
// Format: redis://:password@host:port/db
func (c *Config) parseRedisURL(redisURL string) {
	url := strings.TrimPrefix(redisURL, "redis://")

	if atIdx := strings.Index(url, "@"); atIdx != -1 {
		authPart := url[:atIdx]
		url = url[atIdx+1:]
		// Password format: :password or user:password
		if colonIdx := strings.Index(authPart, ":"); colonIdx != -1 {
			c.Redis.Password = authPart[colonIdx+1:]
		}
	}

	if slashIdx := strings.LastIndex(url, "/"); slashIdx != -1 {
		dbStr := url[slashIdx+1:]
		url = url[:slashIdx]
		if db, err := strconv.Atoi(dbStr); err == nil {
			c.Redis.DB = db
		}
	}

	c.Redis.Addr = url
}
