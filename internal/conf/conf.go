package conf

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultDBPath       = "./taskengine.sqlite"
	DefaultAPIAddr      = "127.0.0.1:9876"
	DefaultPollSeconds  = 15
	DefaultFeishuRPS    = 5
	DefaultConfigPath   = "configs/engine.yaml"
	minimumPollInterval = 1
)

// Config represents application configuration
type Config struct {
	Feishu    FeishuConfig    `yaml:"feishu"`
	Store     StoreConfig     `yaml:"store"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	API       APIConfig       `yaml:"api"`
	MCP       MCPConfig       `yaml:"mcp"`
	ScopeID   string          `yaml:"scope_id"` // Tenant used when a command names none
	Debug     bool            `yaml:"debug"`
}

// FeishuConfig contains Feishu configuration
type FeishuConfig struct {
	AppID     string  `yaml:"app_id"`
	AppSecret string  `yaml:"app_secret"`
	RPS       float64 `yaml:"rps"` // API calls per second
}

// StoreConfig contains task store configuration
type StoreConfig struct {
	DBPath string `yaml:"db_path"`
}

// SchedulerConfig contains polling configuration
type SchedulerConfig struct {
	PollSeconds int `yaml:"poll_seconds"`
}

// APIConfig contains HTTP API configuration
type APIConfig struct {
	Addr string `yaml:"addr"`
}

// MCPConfig contains the defaults the MCP server applies to tool calls
type MCPConfig struct {
	ChannelID string `yaml:"channel_id"`
	CreatedBy string `yaml:"created_by"`
}

// Load reads .env, then the YAML file, then environment overrides.
// An empty path means ENGINE_CONFIG or configs/engine.yaml; a missing
// default file is not an error.
func Load(path string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	explicit := path != ""
	if path == "" {
		path = os.Getenv("ENGINE_CONFIG")
		explicit = path != ""
	}
	if path == "" {
		path = DefaultConfigPath
	}

	cfg := Default()
	if err := cfg.loadFile(path, explicit); err != nil {
		return nil, err
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.fillDefaults()
	return cfg, nil
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Feishu:    FeishuConfig{RPS: DefaultFeishuRPS},
		Store:     StoreConfig{DBPath: DefaultDBPath},
		Scheduler: SchedulerConfig{PollSeconds: DefaultPollSeconds},
		API:       APIConfig{Addr: DefaultAPIAddr},
		MCP:       MCPConfig{CreatedBy: "mcp"},
	}
}

func (c *Config) loadFile(path string, explicit bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && !explicit {
			return nil
		}
		return fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	setString(&c.Feishu.AppID, "FEISHU_APP_ID")
	setString(&c.Feishu.AppSecret, "FEISHU_APP_SECRET")
	setString(&c.Store.DBPath, "ENGINE_DB_PATH")
	setString(&c.API.Addr, "ENGINE_API_ADDR")
	setString(&c.ScopeID, "ENGINE_SCOPE_ID")
	setString(&c.MCP.ChannelID, "ENGINE_CHANNEL_ID")

	if val := os.Getenv("ENGINE_POLL_SECONDS"); val != "" {
		n, err := strconv.Atoi(val)
		if err != nil {
			return &ConfigError{Field: "ENGINE_POLL_SECONDS", Message: "must be an integer"}
		}
		c.Scheduler.PollSeconds = n
	}
	if val := os.Getenv("FEISHU_API_RPS"); val != "" {
		n, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return &ConfigError{Field: "FEISHU_API_RPS", Message: "must be a number"}
		}
		c.Feishu.RPS = n
	}
	if val := os.Getenv("DEBUG"); val != "" {
		c.Debug = val == "true" || val == "1"
	}
	return nil
}

func setString(dst *string, key string) {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		*dst = val
	}
}

func (c *Config) fillDefaults() {
	if c.Store.DBPath == "" {
		c.Store.DBPath = DefaultDBPath
	}
	if c.API.Addr == "" {
		c.API.Addr = DefaultAPIAddr
	}
	if c.Scheduler.PollSeconds == 0 {
		c.Scheduler.PollSeconds = DefaultPollSeconds
	}
	if c.Feishu.RPS <= 0 {
		c.Feishu.RPS = DefaultFeishuRPS
	}
}

// PollInterval returns the scheduler tick
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Scheduler.PollSeconds) * time.Second
}

// LockPath is the single-instance lock file next to the database
func (c *Config) LockPath() string {
	return c.Store.DBPath + ".lock"
}

// Validate validates the configuration needed to reach Feishu
func (c *Config) Validate() error {
	if c.Feishu.AppID == "" || c.Feishu.AppSecret == "" {
		return &ConfigError{Field: "FEISHU_APP_ID/FEISHU_APP_SECRET", Message: "required"}
	}
	if c.Scheduler.PollSeconds < minimumPollInterval {
		return &ConfigError{Field: "ENGINE_POLL_SECONDS", Message: "must be at least 1"}
	}
	return nil
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Field + ": " + e.Message
}
