package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"racing-insights/internal/storage"
)

// Config holds all application configuration
type Config struct {
	// Backend settings
	APIURL     string
	APITimeout time.Duration

	// Session settings
	SessionTimeout time.Duration
	HistoryLimit   int

	// Storage settings
	StorageType   string
	StoragePath   string
	SQLitePath    string
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string

	// Logging settings
	LogLevel  string
	LogFormat string
	LogFile   string
}

// NewConfig creates a new configuration with default values
func NewConfig() *Config {
	return &Config{
		// Backend defaults
		APIURL:     "http://localhost:8000",
		APITimeout: 60 * time.Second,

		// Session defaults
		SessionTimeout: 30 * time.Minute,
		HistoryLimit:   50,

		// Storage defaults
		StorageType: storage.BackendFile,
		StoragePath: expandHome("~/.racing-insights/session.json"),
		SQLitePath:  expandHome("~/.racing-insights/session.db"),
		RedisHost:   "localhost",
		RedisPort:   "6379",
		RedisPrefix: "racing-insights:",

		// Logging defaults
		LogLevel:  "info",
		LogFormat: "console",
		LogFile:   expandHome("~/.racing-insights/client.log"),
	}
}

// LoadDotEnv loads variables from the given .env files into the process
// environment. Missing files are ignored. Variables already set win.
func LoadDotEnv(files ...string) error {
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return nil
}

// ApplyEnv overrides fields from environment variables. Malformed numbers
// are reported rather than silently ignored.
func (c *Config) ApplyEnv() error {
	if v := GetEnv("RACING_API_URL"); v != "" {
		c.APIURL = v
	}
	if err := envSeconds("RACING_API_TIMEOUT_SECONDS", &c.APITimeout); err != nil {
		return err
	}
	if err := envInt("HISTORY_LIMIT", &c.HistoryLimit); err != nil {
		return err
	}
	var minutes int
	if err := envInt("SESSION_TIMEOUT_MINUTES", &minutes); err != nil {
		return err
	}
	if minutes != 0 {
		c.SessionTimeout = time.Duration(minutes) * time.Minute
	}

	if v := GetEnv("STORAGE_TYPE"); v != "" {
		c.StorageType = strings.ToLower(v)
	}
	if v := GetEnv("STORAGE_PATH"); v != "" {
		c.StoragePath = expandHome(v)
	}
	if v := GetEnv("SQLITE_PATH"); v != "" {
		c.SQLitePath = expandHome(v)
	}
	if v := GetEnv("REDIS_HOST"); v != "" {
		c.RedisHost = v
	}
	if v := GetEnv("REDIS_PORT"); v != "" {
		c.RedisPort = v
	}
	if v := GetEnv("REDIS_PASSWORD"); v != "" {
		c.RedisPassword = v
	}
	if err := envInt("REDIS_DB", &c.RedisDB); err != nil {
		return err
	}
	if v := GetEnv("REDIS_PREFIX"); v != "" {
		c.RedisPrefix = v
	}

	if v := GetEnv("LOG_LEVEL"); v != "" {
		c.LogLevel = strings.ToLower(v)
	}
	if v := GetEnv("LOG_FORMAT"); v != "" {
		c.LogFormat = strings.ToLower(v)
	}
	if v := GetEnv("LOG_FILE"); v != "" {
		c.LogFile = expandHome(v)
	}
	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.APIURL == "" {
		return fmt.Errorf("API URL cannot be empty")
	}
	u, err := url.Parse(c.APIURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("API URL %q is not an absolute URL", c.APIURL)
	}
	if c.APITimeout <= 0 {
		return fmt.Errorf("API timeout must be positive")
	}
	if c.SessionTimeout <= 0 {
		return fmt.Errorf("session timeout must be positive")
	}
	if c.HistoryLimit < 1 || c.HistoryLimit > 500 {
		return fmt.Errorf("history limit must be between 1 and 500")
	}

	switch c.StorageType {
	case storage.BackendFile:
		if c.StoragePath == "" {
			return fmt.Errorf("storage path cannot be empty")
		}
	case storage.BackendSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("sqlite path cannot be empty")
		}
	case storage.BackendRedis:
		if c.RedisHost == "" || c.RedisPort == "" {
			return fmt.Errorf("redis host and port are required")
		}
	case storage.BackendMemory:
	default:
		return fmt.Errorf("unknown storage type %q", c.StorageType)
	}

	switch c.LogFormat {
	case "console", "json":
	default:
		return fmt.Errorf("log format must be console or json")
	}
	return nil
}

// Storage returns the storage backend configuration.
func (c *Config) Storage() storage.Config {
	return storage.Config{
		Type:          c.StorageType,
		FilePath:      c.StoragePath,
		SQLitePath:    c.SQLitePath,
		RedisHost:     c.RedisHost,
		RedisPort:     c.RedisPort,
		RedisPassword: c.RedisPassword,
		RedisDB:       c.RedisDB,
		RedisPrefix:   c.RedisPrefix,
		DialTimeout:   5 * time.Second,
	}
}

func envInt(key string, dst *int) error {
	v := GetEnv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	*dst = n
	return nil
}

func envSeconds(key string, dst *time.Duration) error {
	var n int
	if err := envInt(key, &n); err != nil {
		return err
	}
	if n != 0 {
		*dst = time.Duration(n) * time.Second
	}
	return nil
}

// expandHome expands the ~ in file paths to the user's home directory
func expandHome(path string) string {
	if len(path) > 0 && path[0] == '~' {
		homeDir := getHomeDir()
		return homeDir + path[1:]
	}
	return path
}

// getHomeDir returns the user's home directory
func getHomeDir() string {
	if home := GetEnv("HOME"); home != "" {
		return home
	}
	// Fallback for Windows
	if home := GetEnv("USERPROFILE"); home != "" {
		return home
	}
	return "."
}

// GetEnv is a wrapper around os.Getenv for easier testing
var GetEnv = func(key string) string {
	// Will be replaced with os.Getenv in main
	return ""
}
