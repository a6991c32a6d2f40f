package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variables read by Load
const (
	EnvStagingDir  = "MOSQUITTO_DIR"
	EnvDataDir     = "DATA_DIR"
	EnvWebUsername = "WEB_USERNAME"
	EnvWebPassword = "WEB_PASSWORD"
	EnvPort        = "PORT"
	EnvConfigFile  = "MOSQUITTO_MANAGER_CONFIG"
)

// Config is the runtime configuration of the manager
type Config struct {
	// StagingDir receives rendered artifacts; usually a mounted volume
	StagingDir string `yaml:"staging_dir"`

	// SecureDir is the broker-owned copy of credentials and ACLs
	SecureDir string `yaml:"secure_dir"`

	// DataDir holds the document database. Defaults to StagingDir.
	DataDir string `yaml:"data_dir"`

	// LogFile is the broker log. Defaults to <staging>/mosquitto.log.
	LogFile string `yaml:"log_file"`

	PIDFile string `yaml:"pid_file"`

	Broker   BrokerConfig   `yaml:"broker"`
	API      APIConfig      `yaml:"api"`
	Health   HealthConfig   `yaml:"health"`
	Log      LogConfig      `yaml:"log"`
	Tools    ToolsConfig    `yaml:"tools"`
	Internal InternalConfig `yaml:"internal"`

	// Bootstrap is only read from the environment, never from the file
	Bootstrap Bootstrap `yaml:"-"`
}

// BrokerConfig describes the broker process the manager controls
type BrokerConfig struct {
	UID int `yaml:"uid"`
	GID int `yaml:"gid"`
}

// APIConfig configures the HTTP shell
type APIConfig struct {
	Listen string `yaml:"listen"`

	// Auth requires HTTP basic auth against the administrator accounts
	Auth bool `yaml:"auth"`

	// LogLines is how many lines /api/logs returns
	LogLines int `yaml:"log_lines"`
}

// HealthConfig configures the broker health collector
type HealthConfig struct {
	Interval time.Duration `yaml:"interval"`
	Timeout  time.Duration `yaml:"timeout"`
	Retries  int           `yaml:"retries"`
}

// LogConfig configures the manager's own logging
type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// ToolsConfig names the external binaries
type ToolsConfig struct {
	Passwd           string `yaml:"passwd"`
	OpenSSL          string `yaml:"openssl"`
	CertValidityDays int    `yaml:"cert_validity_days"`
}

// InternalConfig is the loopback listener the manager connects to
type InternalConfig struct {
	Address  string `yaml:"address"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
}

// Bootstrap is the administrator created when the document has none
type Bootstrap struct {
	Username string
	Password string
}

// Default returns the configuration of a standard container deployment
func Default() *Config {
	return &Config{
		StagingDir: "/mymosquitto",
		SecureDir:  "/etc/mosquitto/secure",
		PIDFile:    "/run/mosquitto.pid",
		Broker: BrokerConfig{
			UID: 100,
			GID: 101,
		},
		API: APIConfig{
			Listen:   ":3000",
			Auth:     true,
			LogLines: 2000,
		},
		Health: HealthConfig{
			Interval: 10 * time.Second,
			Timeout:  3 * time.Second,
			Retries:  3,
		},
		Log: LogConfig{
			Level: "info",
			JSON:  true,
		},
		Tools: ToolsConfig{
			Passwd:           "mosquitto_passwd",
			OpenSSL:          "openssl",
			CertValidityDays: 3650,
		},
		Internal: InternalConfig{
			Address:  "127.0.0.1",
			Port:     10883,
			Username: "sys_monitor",
		},
		Bootstrap: Bootstrap{
			Username: "admin",
			Password: "admin",
		},
	}
}

// Load builds the configuration from defaults, the optional YAML file at
// path and the environment, in that order of precedence.
func Load(path string) (*Config, error) {
	return load(path, os.Getenv)
}

func load(path string, getenv func(string) string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = getenv(EnvConfigFile)
	}
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(getenv); err != nil {
		return nil, err
	}
	cfg.fillDerived()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	if v := getenv(EnvStagingDir); v != "" {
		c.StagingDir = v
	}
	if v := getenv(EnvDataDir); v != "" {
		c.DataDir = v
	}
	if v := getenv(EnvWebUsername); v != "" {
		c.Bootstrap.Username = v
	}
	if v := getenv(EnvWebPassword); v != "" {
		c.Bootstrap.Password = v
	}
	if v := getenv(EnvPort); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil || port < 1 || port > 65535 {
			return fmt.Errorf("invalid %s %q", EnvPort, v)
		}
		c.API.Listen = fmt.Sprintf(":%d", port)
	}
	return nil
}

func (c *Config) fillDerived() {
	if c.DataDir == "" {
		c.DataDir = c.StagingDir
	}
	if c.LogFile == "" {
		c.LogFile = filepath.Join(c.StagingDir, "mosquitto.log")
	}
}

// Validate checks for settings the manager cannot run with
func (c *Config) Validate() error {
	if c.StagingDir == "" {
		return errors.New("staging_dir is required")
	}
	if c.SecureDir == "" {
		return errors.New("secure_dir is required")
	}
	if filepath.Clean(c.StagingDir) == filepath.Clean(c.SecureDir) {
		return errors.New("staging_dir and secure_dir must differ")
	}
	if c.Internal.Port < 1 || c.Internal.Port > 65535 {
		return fmt.Errorf("invalid internal port %d", c.Internal.Port)
	}
	if c.Internal.Username == "" {
		return errors.New("internal.username is required")
	}
	if c.API.LogLines <= 0 {
		return fmt.Errorf("invalid api.log_lines %d", c.API.LogLines)
	}
	return nil
}

// InternalHostPort returns the loopback listener as host:port
func (c *Config) InternalHostPort() string {
	return fmt.Sprintf("%s:%d", c.Internal.Address, c.Internal.Port)
}

// CertDir is where generated TLS material is written
func (c *Config) CertDir() string {
	return filepath.Join(c.StagingDir, "certs")
}
