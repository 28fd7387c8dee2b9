package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/lucasriondel/use-persisting-state-for-react-table-sub001/internal/errors"
	"github.com/lucasriondel/use-persisting-state-for-react-table-sub001/pkg/tablestate"
)

const (
	// ConfigFileName is the name of the configuration file.
	ConfigFileName = "tablestate.json"

	// DefaultPort is the default server port.
	DefaultPort = 8080

	// DefaultHost is the default server host.
	DefaultHost = "localhost"

	// DefaultDebounce coalesces URL bucket navigations.
	DefaultDebounce = "300ms"

	// DefaultSessionTTL drops idle table sessions.
	DefaultSessionTTL = "30m"

	// DefaultStateDir is where the file backend stores blobs.
	DefaultStateDir = ".tablestate"
)

// Local bucket backends.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendS3     = "s3"
	BackendRedis  = "redis"
)

// Config represents the complete tablestate.json configuration.
type Config struct {
	// Name is the project name.
	Name string `json:"name,omitempty"`

	// Server contains HTTP host configuration.
	Server ServerConfig `json:"server,omitempty"`

	// Local selects and configures the local bucket backend.
	Local LocalConfig `json:"local,omitempty"`

	// Tables declares the tables served, by name.
	Tables map[string]TableConfig `json:"tables,omitempty"`

	// configPath stores the path where the config was loaded from.
	configPath string
}

// ServerConfig contains HTTP host settings.
type ServerConfig struct {
	// Host is the host to bind to.
	Host string `json:"host,omitempty"`

	// Port is the port to listen on.
	Port int `json:"port,omitempty"`

	// HistoryMode is "push" or "replace" for URL bucket navigations.
	HistoryMode string `json:"historyMode,omitempty"`

	// Debounce coalesces URL bucket navigations (e.g. "300ms").
	Debounce string `json:"debounce,omitempty"`

	// SessionTTL drops sessions idle for longer (e.g. "30m").
	SessionTTL string `json:"sessionTTL,omitempty"`

	// Metrics exposes /metrics when true.
	Metrics bool `json:"metrics,omitempty"`
}

// LocalConfig configures the local bucket backend.
type LocalConfig struct {
	// Backend is one of memory, file, s3 or redis.
	Backend string `json:"backend,omitempty"`

	// Dir is the directory of the file backend.
	Dir string `json:"dir,omitempty"`

	// Watch reloads sessions when the file backend changes on disk.
	Watch bool `json:"watch,omitempty"`

	S3    S3Config    `json:"s3,omitempty"`
	Redis RedisConfig `json:"redis,omitempty"`
}

// S3Config configures the S3 backend. Credentials come from the
// AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY environment variables.
type S3Config struct {
	Bucket    string `json:"bucket,omitempty"`
	Prefix    string `json:"prefix,omitempty"`
	Region    string `json:"region,omitempty"`
	Endpoint  string `json:"endpoint,omitempty"`
	PathStyle bool   `json:"pathStyle,omitempty"`
}

// RedisConfig configures the Redis backend.
type RedisConfig struct {
	Addr     string `json:"addr,omitempty"`
	Password string `json:"password,omitempty"`
	DB       int    `json:"db,omitempty"`
	Prefix   string `json:"prefix,omitempty"`

	// TTL expires blobs (e.g. "720h"). Empty keeps them forever.
	TTL string `json:"ttl,omitempty"`
}

// TableConfig declares one table.
type TableConfig struct {
	Persistence  tablestate.Persistence  `json:"persistence"`
	Columns      []tablestate.Column     `json:"columns,omitempty"`
	InitialState tablestate.InitialState `json:"initialState,omitempty"`

	// AutomaticPageReset defaults to true.
	AutomaticPageReset *bool `json:"automaticPageReset,omitempty"`
}

// Options returns the table options the declaration describes.
func (t TableConfig) Options() []tablestate.Option {
	opts := []tablestate.Option{
		tablestate.WithPersistence(t.Persistence),
		tablestate.WithInitialState(t.InitialState),
	}
	if t.AutomaticPageReset != nil {
		opts = append(opts, tablestate.WithAutomaticPageReset(*t.AutomaticPageReset))
	}
	return opts
}

// New creates a new Config with default values.
func New() *Config {
	return &Config{
		Server: ServerConfig{
			Host:        DefaultHost,
			Port:        DefaultPort,
			HistoryMode: "replace",
			Debounce:    DefaultDebounce,
			SessionTTL:  DefaultSessionTTL,
		},
		Local: LocalConfig{
			Backend: BackendMemory,
			Dir:     DefaultStateDir,
		},
		Tables: map[string]TableConfig{},
	}
}

// Load reads configuration from the specified directory.
// It looks for tablestate.json in the directory.
func Load(dir string) (*Config, error) {
	return LoadFile(filepath.Join(dir, ConfigFileName))
}

// LoadFile reads configuration from the specified file path.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New("TS141").
				WithDetail("No " + ConfigFileName + " found in " + filepath.Dir(path)).
				WithSuggestion("Create " + ConfigFileName + " or pass --config")
		}
		return nil, errors.New("TS120").Wrap(err)
	}

	cfg := New()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, errors.New("TS120").
			WithDetail("Failed to parse " + ConfigFileName + ": " + err.Error()).
			WithSuggestion("Check that " + ConfigFileName + " is valid JSON")
	}

	cfg.configPath = path
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SaveTo writes the configuration to the specified path.
func (c *Config) SaveTo(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return errors.New("TS120").Wrap(err)
	}
	data = append(data, '\n')

	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.New("TS120").Wrap(err)
	}

	c.configPath = path
	return nil
}

// Path returns the path where the config was loaded from.
func (c *Config) Path() string {
	return c.configPath
}

// Dir returns the directory containing the config file.
func (c *Config) Dir() string {
	if c.configPath == "" {
		return ""
	}
	return filepath.Dir(c.configPath)
}

// applyDefaults fills in default values for empty fields.
func (c *Config) applyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = DefaultHost
	}
	if c.Server.Port == 0 {
		c.Server.Port = DefaultPort
	}
	if c.Server.HistoryMode == "" {
		c.Server.HistoryMode = "replace"
	}
	if c.Server.Debounce == "" {
		c.Server.Debounce = DefaultDebounce
	}
	if c.Server.SessionTTL == "" {
		c.Server.SessionTTL = DefaultSessionTTL
	}
	if c.Local.Backend == "" {
		c.Local.Backend = BackendMemory
	}
	if c.Local.Dir == "" {
		c.Local.Dir = DefaultStateDir
	}
	if c.Tables == nil {
		c.Tables = map[string]TableConfig{}
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return errors.New("TS120").
			WithDetail("Port must be between 0 and 65535")
	}
	if c.Server.HistoryMode != "push" && c.Server.HistoryMode != "replace" {
		return errors.New("TS120").
			WithDetail(fmt.Sprintf("historyMode must be push or replace, got %q", c.Server.HistoryMode))
	}
	for field, value := range map[string]string{
		"server.debounce":   c.Server.Debounce,
		"server.sessionTTL": c.Server.SessionTTL,
		"local.redis.ttl":   c.Local.Redis.TTL,
	} {
		if value == "" {
			continue
		}
		if _, err := time.ParseDuration(value); err != nil {
			return errors.New("TS120").
				WithDetail(fmt.Sprintf("%s: %v", field, err))
		}
	}

	switch c.Local.Backend {
	case BackendMemory, BackendFile:
	case BackendS3:
		if c.Local.S3.Bucket == "" {
			return errors.New("TS120").WithDetail("local.s3.bucket is required for the s3 backend")
		}
	case BackendRedis:
		if c.Local.Redis.Addr == "" {
			return errors.New("TS120").WithDetail("local.redis.addr is required for the redis backend")
		}
	default:
		return errors.New("TS142").WithDetail(fmt.Sprintf("got %q", c.Local.Backend))
	}

	for _, name := range c.TableNames() {
		t := c.Tables[name]
		if err := tablestate.Validate(t.Columns, t.Persistence); err != nil {
			return fmt.Errorf("table %q: %w", name, err)
		}
	}
	return nil
}

// Table returns the declaration of the named table.
func (c *Config) Table(name string) (TableConfig, error) {
	t, ok := c.Tables[name]
	if !ok {
		return TableConfig{}, errors.New("TS123").
			WithDetail(fmt.Sprintf("table %q is not declared in %s", name, ConfigFileName))
	}
	return t, nil
}

// TableNames returns the declared table names, sorted.
func (c *Config) TableNames() []string {
	names := make([]string, 0, len(c.Tables))
	for name := range c.Tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Address returns the listen address of the server.
func (c *Config) Address() string {
	return c.Server.Host + ":" + strconv.Itoa(c.Server.Port)
}

// DebounceDuration returns the parsed navigation debounce.
func (c *Config) DebounceDuration() time.Duration {
	d, _ := time.ParseDuration(c.Server.Debounce)
	return d
}

// SessionTTLDuration returns the parsed session TTL.
func (c *Config) SessionTTLDuration() time.Duration {
	d, _ := time.ParseDuration(c.Server.SessionTTL)
	return d
}

// RedisTTL returns the parsed Redis blob TTL, 0 when unset.
func (c *Config) RedisTTL() time.Duration {
	d, _ := time.ParseDuration(c.Local.Redis.TTL)
	return d
}

// StateDir returns the absolute path of the file backend directory.
func (c *Config) StateDir() string {
	if filepath.IsAbs(c.Local.Dir) {
		return c.Local.Dir
	}
	return filepath.Join(c.Dir(), c.Local.Dir)
}

// Exists checks if a config file exists in the given directory.
func Exists(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, ConfigFileName))
	return err == nil
}

// FindProjectRoot walks up directories to find the directory containing
// tablestate.json.
func FindProjectRoot(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", err
	}

	for {
		if Exists(dir) {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errors.New("TS141").
				WithDetail("No " + ConfigFileName + " found in " + startDir + " or any parent directory").
				WithSuggestion("Create " + ConfigFileName + " or pass --config")
		}
		dir = parent
	}
}

// LoadFromWorkingDir loads configuration from the current working directory
// or its nearest parent holding tablestate.json.
func LoadFromWorkingDir() (*Config, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, err
	}

	root, err := FindProjectRoot(wd)
	if err != nil {
		return nil, err
	}

	return Load(root)
}
