package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Source kinds understood by the registry builder.
const (
	SourceKindHTML        = "html"
	SourceKindGoogleBooks = "googlebooks"
)

// Store backends understood by store.Open.
const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
	StoreRedis  = "redis"
)

// SourceConfig declares one catalog in the lookup order.
type SourceConfig struct {
	Name     string `mapstructure:"name"`
	Kind     string `mapstructure:"kind"`
	Profile  string `mapstructure:"profile"`
	BaseURL  string `mapstructure:"base_url"`
	APIKey   string `mapstructure:"api_key"`
	Disabled bool   `mapstructure:"disabled"`
}

// StoreConfig selects and configures the session/result store.
type StoreConfig struct {
	Backend       string `mapstructure:"backend"`
	SQLitePath    string `mapstructure:"sqlite_path"`
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
	RedisPrefix   string `mapstructure:"redis_prefix"`
}

// Config holds lookup service configuration.
type Config struct {
	Sources        []SourceConfig `mapstructure:"sources"`
	Timeout        time.Duration  `mapstructure:"timeout"`
	SourceTimeout  time.Duration  `mapstructure:"source_timeout"`
	Delay          time.Duration  `mapstructure:"delay"`
	RandomDelay    time.Duration  `mapstructure:"random_delay"`
	BulkItemDelay  time.Duration  `mapstructure:"bulk_item_delay"`
	CacheSize      int            `mapstructure:"cache_size"`
	CacheTTL       time.Duration  `mapstructure:"cache_ttl"`
	UserAgent      string         `mapstructure:"user_agent"`
	AcceptLanguage string         `mapstructure:"accept_language"`
	Store          StoreConfig    `mapstructure:"store"`
	HTTPAddr       string         `mapstructure:"http_addr"`
	MetricsAddr    string         `mapstructure:"metrics_addr"`
	OutputFile     string         `mapstructure:"output_file"`
	OutputFormat   string         `mapstructure:"output_format"` // csv, json, xlsx, or dual
	Verbose        bool           `mapstructure:"verbose"`
}

// DefaultSources returns the catalogs in their default priority order.
func DefaultSources() []SourceConfig {
	return []SourceConfig{
		{Name: "Babil", Kind: SourceKindHTML, Profile: "babil", BaseURL: "https://www.babil.com"},
		{Name: "D&R", Kind: SourceKindHTML, Profile: "dr", BaseURL: "https://www.dr.com.tr"},
		{Name: "Kitapsec", Kind: SourceKindHTML, Profile: "kitapsec", BaseURL: "https://www.kitapsec.com"},
		{Name: "BKM Kitap", Kind: SourceKindHTML, Profile: "bkm", BaseURL: "https://www.bkmkitap.com"},
		{Name: "Google Books", Kind: SourceKindGoogleBooks, BaseURL: "https://www.googleapis.com/books/v1"},
	}
}

// DefaultConfig returns conservative defaults for the public catalogs.
func DefaultConfig() *Config {
	return &Config{
		Sources:        DefaultSources(),
		Timeout:        10 * time.Second,
		SourceTimeout:  30 * time.Second,
		Delay:          0,
		RandomDelay:    0,
		BulkItemDelay:  time.Second,
		CacheSize:      1024,
		CacheTTL:       6 * time.Hour,
		UserAgent:      "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/117.0.0.0 Safari/537.36",
		AcceptLanguage: "tr-TR,tr;q=0.9,en;q=0.8",
		Store: StoreConfig{
			Backend:     StoreMemory,
			SQLitePath:  "data/isbnfinder.db",
			RedisAddr:   "localhost:6379",
			RedisPrefix: "isbnfinder",
		},
		HTTPAddr:     ":8080",
		MetricsAddr:  "",
		OutputFile:   "output/results.csv",
		OutputFormat: "csv",
		Verbose:      false,
	}
}

// EnabledSources returns the enabled sources in configured order.
func (c *Config) EnabledSources() []SourceConfig {
	out := make([]SourceConfig, 0, len(c.Sources))
	for _, s := range c.Sources {
		if !s.Disabled {
			out = append(out, s)
		}
	}
	return out
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if len(c.EnabledSources()) == 0 {
		return fmt.Errorf("at least one source must be enabled")
	}
	names := make(map[string]struct{}, len(c.Sources))
	for i, s := range c.Sources {
		if strings.TrimSpace(s.Name) == "" {
			return fmt.Errorf("source %d: name cannot be empty", i)
		}
		if _, dup := names[s.Name]; dup {
			return fmt.Errorf("source %q: duplicate name", s.Name)
		}
		names[s.Name] = struct{}{}

		switch s.Kind {
		case SourceKindHTML:
			if s.Profile == "" {
				return fmt.Errorf("source %q: html sources need a profile", s.Name)
			}
		case SourceKindGoogleBooks:
		default:
			return fmt.Errorf("source %q: unknown kind %q", s.Name, s.Kind)
		}

		if s.BaseURL == "" {
			return fmt.Errorf("source %q: base URL cannot be empty", s.Name)
		}
		parsedURL, err := url.Parse(s.BaseURL)
		if err != nil {
			return fmt.Errorf("source %q: invalid base URL: %w", s.Name, err)
		}
		if parsedURL.Host == "" {
			return fmt.Errorf("source %q: base URL must include a host", s.Name)
		}
	}

	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.SourceTimeout < 0 {
		return fmt.Errorf("source timeout cannot be negative")
	}
	if c.Delay < 0 {
		return fmt.Errorf("delay cannot be negative")
	}
	if c.RandomDelay < 0 {
		return fmt.Errorf("random delay cannot be negative")
	}
	if c.BulkItemDelay < 0 {
		return fmt.Errorf("bulk item delay cannot be negative")
	}
	if c.CacheSize < 0 {
		return fmt.Errorf("cache size cannot be negative")
	}
	if c.CacheSize > 0 && c.CacheTTL <= 0 {
		return fmt.Errorf("cache ttl must be positive when the cache is enabled")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}

	switch c.Store.Backend {
	case StoreMemory:
	case StoreSQLite:
		if c.Store.SQLitePath == "" {
			return fmt.Errorf("sqlite store needs a path")
		}
	case StoreRedis:
		if c.Store.RedisAddr == "" {
			return fmt.Errorf("redis store needs an address")
		}
	default:
		return fmt.Errorf("store backend must be memory, sqlite, or redis")
	}

	if c.OutputFile == "" {
		return fmt.Errorf("output file cannot be empty")
	}
	switch c.OutputFormat {
	case "csv", "json", "xlsx", "dual":
	default:
		return fmt.Errorf("output format must be csv, json, xlsx, or dual")
	}

	return nil
}

// EnvString returns the trimmed value of key when it is set and non-empty.
func EnvString(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return "", false
	}
	return value, true
}

// EnvInt parses key as an integer when it is set.
func EnvInt(key string) (int, bool, error) {
	value, ok := EnvString(key)
	if !ok {
		return 0, false, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, false, fmt.Errorf("%s: %w", key, err)
	}
	return parsed, true, nil
}
