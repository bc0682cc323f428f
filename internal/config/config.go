package config

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/vango-dev/storefront/internal/errors"
	"github.com/vango-dev/storefront/pkg/routepath"
)

const (
	// ConfigFileName is the name of the configuration file.
	ConfigFileName = "storefront.json"

	// DefaultPort is the default listen port.
	DefaultPort = 8080

	// DefaultHost is the default listen host (all interfaces).
	DefaultHost = ""

	// DefaultQuietPeriodMs is the search debounce quiet period.
	DefaultQuietPeriodMs = 400

	// DefaultPageSize is the number of results per page.
	DefaultPageSize = 12

	// DefaultResumeWindowSec is how long a disconnected session can resume.
	DefaultResumeWindowSec = 300
)

// Session store backends.
const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
)

// Config represents the complete storefront.json configuration.
type Config struct {
	// Name is shown in the page title.
	Name string `json:"name,omitempty"`

	// Host and Port form the listen address.
	Host string `json:"host,omitempty"`
	Port int    `json:"port,omitempty"`

	Search    SearchConfig    `json:"search"`
	Session   SessionConfig   `json:"session"`
	Catalog   CatalogConfig   `json:"catalog"`
	Telemetry TelemetryConfig `json:"telemetry"`
	Log       LogConfig       `json:"log"`

	// DebugMode enables verbose per-frame logging.
	DebugMode bool `json:"debug,omitempty"`

	configPath string
}

// SearchConfig configures the search box and results page.
type SearchConfig struct {
	// Path is the results page navigated to on settle.
	Path string `json:"path,omitempty"`

	// QuietPeriodMs is the debounce quiet period in milliseconds.
	QuietPeriodMs int `json:"quietPeriodMs,omitempty"`

	// PageSize is the number of results per page.
	PageSize int `json:"pageSize,omitempty"`

	// SkipMountNavigation suppresses the navigation issued when a page that
	// already carries a query opens its live session.
	SkipMountNavigation bool `json:"skipMountNavigation,omitempty"`
}

// SessionConfig configures live sessions and their persistence.
type SessionConfig struct {
	// MaxSessions caps concurrent live sessions; 0 means no limit.
	MaxSessions int `json:"maxSessions,omitempty"`

	// ResumeWindowSec is how long state survives a disconnect.
	ResumeWindowSec int `json:"resumeWindowSec,omitempty"`

	// Store is "memory" or "sqlite".
	Store string `json:"store,omitempty"`

	// DSN is the database path or URL for SQL stores.
	DSN string `json:"dsn,omitempty"`

	// MaxMessageSize bounds incoming WebSocket messages, in bytes.
	MaxMessageSize int64 `json:"maxMessageSize,omitempty"`
}

// CatalogConfig selects where products come from.
type CatalogConfig struct {
	// Store is "memory" (the demo products) or "sqlite".
	Store string `json:"store,omitempty"`

	// DSN is the database path for the sqlite catalog.
	DSN string `json:"dsn,omitempty"`

	// Seed inserts the demo products into an SQL catalog on startup.
	Seed bool `json:"seed,omitempty"`
}

// TelemetryConfig toggles metrics and tracing.
type TelemetryConfig struct {
	// Metrics exposes /metrics when true.
	Metrics *bool `json:"metrics,omitempty"`

	// Tracing wraps HTTP handlers in OpenTelemetry spans when true.
	Tracing bool `json:"tracing,omitempty"`

	// Namespace prefixes metric names.
	Namespace string `json:"namespace,omitempty"`
}

// LogConfig configures slog output.
type LogConfig struct {
	// Level is debug, info, warn or error.
	Level string `json:"level,omitempty"`

	// Format is text or json.
	Format string `json:"format,omitempty"`
}

// New returns a Config with all defaults applied.
func New() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

// Load reads storefront.json from dir.
func Load(dir string) (*Config, error) {
	return LoadFile(filepath.Join(dir, ConfigFileName))
}

// LoadFile reads the configuration at path and applies defaults.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.New("S100").WithSource(path).Wrap(err)
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, errors.New("S102").
			WithSource(path).
			WithSuggestion("Check that " + ConfigFileName + " is valid JSON").
			Wrap(err)
	}

	cfg.configPath = path
	cfg.applyDefaults()
	return cfg, nil
}

// Save writes the configuration back to the path it was loaded from.
func (c *Config) Save() error {
	if c.configPath == "" {
		return errors.Newf(errors.CategoryConfig, "no config path set")
	}
	return c.SaveTo(c.configPath)
}

// SaveTo writes the configuration to path.
func (c *Config) SaveTo(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return errors.New("S102").Wrap(err)
	}
	data = append(data, '\n')

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.New("S100").WithSource(path).Wrap(err)
	}
	c.configPath = path
	return nil
}

// Path returns where the configuration was loaded from, if anywhere.
func (c *Config) Path() string {
	return c.configPath
}

func (c *Config) applyDefaults() {
	if c.Name == "" {
		c.Name = "Storefront"
	}
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.Search.Path == "" {
		c.Search.Path = "/search"
	}
	if c.Search.QuietPeriodMs == 0 {
		c.Search.QuietPeriodMs = DefaultQuietPeriodMs
	}
	if c.Search.PageSize == 0 {
		c.Search.PageSize = DefaultPageSize
	}
	if c.Session.ResumeWindowSec == 0 {
		c.Session.ResumeWindowSec = DefaultResumeWindowSec
	}
	if c.Session.Store == "" {
		c.Session.Store = StoreMemory
	}
	if c.Session.MaxMessageSize == 0 {
		c.Session.MaxMessageSize = 16 * 1024
	}
	if c.Catalog.Store == "" {
		c.Catalog.Store = StoreMemory
	}
	if c.Telemetry.Metrics == nil {
		enabled := true
		c.Telemetry.Metrics = &enabled
	}
	if c.Telemetry.Namespace == "" {
		c.Telemetry.Namespace = "storefront"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// ApplyEnv overrides fields from STOREFRONT_* environment variables.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if getenv == nil {
		getenv = os.Getenv
	}
	if v := getenv("STOREFRONT_HOST"); v != "" {
		c.Host = v
	}
	if v := getenv("STOREFRONT_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return errors.New("S103").WithSource("STOREFRONT_PORT").Wrap(err)
		}
		c.Port = port
	}
	if v := getenv("STOREFRONT_SESSION_STORE"); v != "" {
		c.Session.Store = v
	}
	if v := getenv("STOREFRONT_SESSION_DSN"); v != "" {
		c.Session.DSN = v
	}
	if v := getenv("STOREFRONT_CATALOG_DSN"); v != "" {
		c.Catalog.DSN = v
	}
	if v := getenv("STOREFRONT_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	return nil
}

// Validate checks value ranges and cross-field consistency.
func (c *Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return errors.New("S101").
			WithSource(c.source()).
			WithSuggestion(fmt.Sprintf(format, args...))
	}

	if c.Port < 0 || c.Port > 65535 {
		return invalid("port must be between 0 and 65535, got %d", c.Port)
	}
	if c.Search.QuietPeriodMs < 0 {
		return invalid("search.quietPeriodMs must be positive, got %d", c.Search.QuietPeriodMs)
	}
	if c.Search.PageSize < 1 || c.Search.PageSize > 200 {
		return invalid("search.pageSize must be between 1 and 200, got %d", c.Search.PageSize)
	}
	if len(c.Search.Path) == 0 || c.Search.Path[0] != '/' {
		return invalid("search.path must start with '/', got %q", c.Search.Path)
	}
	if clean, err := routepath.Clean(c.Search.Path); err != nil || clean != c.Search.Path {
		return invalid("search.path must be a canonical path like %q, got %q", clean, c.Search.Path)
	}
	if c.Session.MaxSessions < 0 {
		return invalid("session.maxSessions must not be negative")
	}
	switch c.Session.Store {
	case StoreMemory:
	case StoreSQLite:
		if c.Session.DSN == "" {
			return invalid("session.dsn is required for the %q store", c.Session.Store)
		}
	default:
		return invalid("session.store must be %q or %q, got %q", StoreMemory, StoreSQLite, c.Session.Store)
	}
	switch c.Catalog.Store {
	case StoreMemory:
	case StoreSQLite:
		if c.Catalog.DSN == "" {
			return invalid("catalog.dsn is required for the %q store", c.Catalog.Store)
		}
	default:
		return invalid("catalog.store must be %q or %q, got %q", StoreMemory, StoreSQLite, c.Catalog.Store)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return invalid("log.format must be text or json, got %q", c.Log.Format)
	}
	return nil
}

func (c *Config) source() string {
	if c.configPath != "" {
		return c.configPath
	}
	return ConfigFileName
}

// Address returns the listen address.
func (c *Config) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// QuietPeriod returns the debounce quiet period.
func (c *Config) QuietPeriod() time.Duration {
	return time.Duration(c.Search.QuietPeriodMs) * time.Millisecond
}

// ResumeWindow returns how long a disconnected session stays resumable.
func (c *Config) ResumeWindow() time.Duration {
	return time.Duration(c.Session.ResumeWindowSec) * time.Second
}

// MetricsEnabled reports whether /metrics is served.
func (c *Config) MetricsEnabled() bool {
	return c.Telemetry.Metrics == nil || *c.Telemetry.Metrics
}
