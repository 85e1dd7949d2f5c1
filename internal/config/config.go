package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	toml "github.com/pelletier/go-toml/v2"
	log "github.com/sirupsen/logrus"

	"taskflow/internal/task"
)

const (
	DefaultConfigFileName = "config.toml"
	DefaultDBName         = "taskflow.db"
	DefaultLogFile        = "taskflow.log"
	DefaultServerAddr     = ":8080"

	EnvConfigPath = "TASKFLOW_CONFIG"
	EnvDBPath     = "TASKFLOW_DB_PATH"
	EnvRedisURL   = "TASKFLOW_REDIS_URL"
	EnvLogLevel   = "TASKFLOW_LOG_LEVEL"
)

type Keymap struct {
	Quit        string `toml:"quit"`
	Add         string `toml:"add"`
	Up          string `toml:"up"`
	Down        string `toml:"down"`
	Toggle      string `toml:"toggle"`
	Delete      string `toml:"delete"`
	Confirm     string `toml:"confirm"`
	Cancel      string `toml:"cancel"`
	Edit        string `toml:"edit"`
	Search      string `toml:"search"`
	QuickFilter string `toml:"quick_filter"`
	Priority    string `toml:"priority_filter"`
	Category    string `toml:"category_filter"`
	AddCategory string `toml:"add_category"`
	Reload      string `toml:"reload"`
}

type CategoryDefaults struct {
	Color string `toml:"color"`
	Icon  string `toml:"icon"`
}

type Redis struct {
	URL       string `toml:"url"`
	TTL       string `toml:"ttl"`
	Namespace string `toml:"namespace"`
}

type Server struct {
	Addr string `toml:"addr"`
}

type Config struct {
	DBPath          string           `toml:"db_path"`
	LogFile         string           `toml:"log_file"`
	LogLevel        string           `toml:"log_level"`
	DefaultFilter   string           `toml:"default_filter"`
	DefaultPriority string           `toml:"default_priority"`
	Category        CategoryDefaults `toml:"category"`
	Redis           Redis            `toml:"redis"`
	Server          Server           `toml:"server"`
	Keys            Keymap           `toml:"keys"`
}

// ResolveConfigPath loads a .env file from the working directory if one
// exists, then picks the config path from TASKFLOW_CONFIG or the user
// config directory.
func ResolveConfigPath() (string, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.WithError(err).Warn("ignoring unreadable .env")
	}
	if p := strings.TrimSpace(os.Getenv(EnvConfigPath)); p != "" {
		return p, nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locate config dir: %w", err)
	}
	return filepath.Join(dir, "taskflow", DefaultConfigFileName), nil
}

// LoadOrCreate reads the config at path, writing the defaults there first
// if the file does not exist. Relative db and log paths are resolved
// against the config file's directory. Environment overrides apply last.
func LoadOrCreate(path string) (Config, error) {
	cfg := defaultConfig()
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := write(path, cfg); err != nil {
			return cfg, err
		}
	} else {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	cfg.fillDefaults()
	cfg.applyEnv()
	cfg.resolvePaths(filepath.Dir(path))
	return cfg, cfg.Validate()
}

// Validate rejects values the rest of the program cannot interpret.
func (c Config) Validate() error {
	if _, err := task.ParseQuickFilter(c.DefaultFilter); err != nil {
		return fmt.Errorf("default_filter: %w", err)
	}
	if _, err := task.ParsePriority(c.DefaultPriority); err != nil {
		return fmt.Errorf("default_priority: %w", err)
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	if _, err := c.RedisTTL(); err != nil {
		return err
	}
	return nil
}

// RedisTTL parses redis.ttl. An empty value means no caching.
func (c Config) RedisTTL() (time.Duration, error) {
	if strings.TrimSpace(c.Redis.TTL) == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.Redis.TTL)
	if err != nil {
		return 0, fmt.Errorf("redis.ttl: %w", err)
	}
	if d < 0 {
		return 0, fmt.Errorf("redis.ttl: must not be negative")
	}
	return d, nil
}

// InitialCriteria is the filter state a new session starts with.
func (c Config) InitialCriteria() task.Criteria {
	crit := task.DefaultCriteria()
	if q, err := task.ParseQuickFilter(c.DefaultFilter); err == nil {
		crit.QuickFilter = q
	}
	return crit
}

func (c *Config) fillDefaults() {
	def := defaultConfig()
	if c.DBPath == "" {
		c.DBPath = def.DBPath
	}
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
	if c.DefaultFilter == "" {
		c.DefaultFilter = def.DefaultFilter
	}
	if c.DefaultPriority == "" {
		c.DefaultPriority = def.DefaultPriority
	}
	if c.Category.Color == "" {
		c.Category.Color = def.Category.Color
	}
	if c.Category.Icon == "" {
		c.Category.Icon = def.Category.Icon
	}
	if c.Redis.Namespace == "" {
		c.Redis.Namespace = def.Redis.Namespace
	}
	if c.Server.Addr == "" {
		c.Server.Addr = def.Server.Addr
	}
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvDBPath); v != "" {
		c.DBPath = v
	}
	if v := os.Getenv(EnvRedisURL); v != "" {
		c.Redis.URL = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
}

func (c *Config) resolvePaths(base string) {
	if c.DBPath != "" && !filepath.IsAbs(c.DBPath) && !strings.HasPrefix(c.DBPath, "file:") {
		c.DBPath = filepath.Join(base, c.DBPath)
	}
	if c.LogFile != "" && !filepath.IsAbs(c.LogFile) {
		c.LogFile = filepath.Join(base, c.LogFile)
	}
}

func write(path string, cfg Config) error {
	data, err := toml.Marshal(cfg)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func defaultConfig() Config {
	return Config{
		DBPath:          DefaultDBName,
		LogFile:         DefaultLogFile,
		LogLevel:        "info",
		DefaultFilter:   string(task.QuickAll),
		DefaultPriority: string(task.PriorityMedium),
		Category: CategoryDefaults{
			Color: task.DefaultCategoryColor,
			Icon:  task.DefaultCategoryIcon,
		},
		Redis: Redis{
			TTL:       "5m",
			Namespace: "taskflow",
		},
		Server: Server{Addr: DefaultServerAddr},
		Keys: Keymap{
			Quit:        "q",
			Add:         "a",
			Up:          "k",
			Down:        "j",
			Toggle:      " ",
			Delete:      "d",
			Confirm:     "enter",
			Cancel:      "esc",
			Edit:        "e",
			Search:      "/",
			QuickFilter: "f",
			Priority:    "p",
			Category:    "c",
			AddCategory: "C",
			Reload:      "r",
		},
	}
}
