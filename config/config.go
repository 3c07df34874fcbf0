package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type ServerConfig struct {
	Port        int      `mapstructure:"port"`
	BaseUrl     string   `mapstructure:"base_url"`
	StaticDir   string   `mapstructure:"static_dir"`
	CorsOrigins []string `mapstructure:"cors_origins"`
}

type SessionConfig struct {
	Secret        string        `mapstructure:"secret"`
	TTL           time.Duration `mapstructure:"ttl"`
	AdminPassword string        `mapstructure:"admin_password"`
}

type StorageConfig struct {
	// Backend is "file" or "table".
	Backend  string `mapstructure:"backend"`
	PostsDir string `mapstructure:"posts_dir"`
	// Driver is "mysql" or "sqlite" for the table backend.
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

type SyncConfig struct {
	RepoUrl   string        `mapstructure:"repo_url"`
	Branch    string        `mapstructure:"branch"`
	WorkDir   string        `mapstructure:"work_dir"`
	StampFile string        `mapstructure:"stamp_file"`
	Interval  time.Duration `mapstructure:"interval"`
	Timeout   time.Duration `mapstructure:"timeout"`
	Token     string        `mapstructure:"token"`
}

type AssistantConfig struct {
	Url    string `mapstructure:"url"`
	ApiKey string `mapstructure:"api_key"`
	User   string `mapstructure:"user"`
}

type BlogConfig struct {
	DefaultAuthor string `mapstructure:"default_author"`
	PageSize      int    `mapstructure:"page_size"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Session   SessionConfig   `mapstructure:"session"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Sync      SyncConfig      `mapstructure:"sync"`
	Assistant AssistantConfig `mapstructure:"assistant"`
	Blog      BlogConfig      `mapstructure:"blog"`
	Log       LogConfig       `mapstructure:"log"`
}

const (
	BackendFile  = "file"
	BackendTable = "table"
)

var defaults = map[string]interface{}{
	"server.port":            3000,
	"server.base_url":        "",
	"server.static_dir":      "static",
	"server.cors_origins":    []string{"*"},
	"session.secret":         "",
	"session.ttl":            "24h",
	"session.admin_password": "",
	"storage.backend":        BackendFile,
	"storage.posts_dir":      "posts",
	"storage.driver":         "mysql",
	"storage.dsn":            "",
	"sync.repo_url":          "",
	"sync.branch":            "main",
	"sync.work_dir":          "",
	"sync.stamp_file":        "data/last_sync",
	"sync.interval":          "5m",
	"sync.timeout":           "30s",
	"sync.token":             "",
	"assistant.url":          "",
	"assistant.api_key":      "",
	"assistant.user":         "blog-user",
	"blog.default_author":    "admin",
	"blog.page_size":         10,
	"log.level":              "info",
	"log.pretty":             false,
}

// conventional environment names accepted next to the BLOG_ prefixed ones
var aliases = map[string][]string{
	"server.port":            {"BLOG_SERVER_PORT", "PORT"},
	"session.secret":         {"BLOG_SESSION_SECRET", "SESSION_SECRET"},
	"session.admin_password": {"BLOG_SESSION_ADMIN_PASSWORD", "ADMIN_PASSWORD"},
	"sync.repo_url":          {"BLOG_SYNC_REPO_URL", "POSTS_REPO_URL"},
	"assistant.url":          {"BLOG_ASSISTANT_URL", "DIFY_API_URL"},
	"assistant.api_key":      {"BLOG_ASSISTANT_API_KEY", "DIFY_API_KEY"},
	"storage.dsn":            {"BLOG_STORAGE_DSN", "DATABASE_URL"},
}

// Load reads defaults, then the optional config file at path, then the
// environment.
func Load(path string) (*Config, error) {
	v := viper.New()

	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	v.SetEnvPrefix("BLOG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, names := range aliases {
		if err := v.BindEnv(append([]string{key}, names...)...); err != nil {
			return nil, err
		}
	}

	var cfg Config

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Storage.Backend {
	case BackendFile:
	case BackendTable:
		if c.Storage.DSN == "" {
			return errors.New("config: storage.dsn is required for the table backend")
		}
	default:
		return fmt.Errorf("config: unknown storage.backend %q", c.Storage.Backend)
	}

	if c.Server.Port <= 0 {
		return fmt.Errorf("config: invalid server.port %d", c.Server.Port)
	}
	if c.Sync.WorkDir == "" {
		c.Sync.WorkDir = c.Storage.PostsDir
	}
	return nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}
