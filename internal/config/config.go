// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/signalnine/fleetwatch/internal/logging"
)

// ServerConfig for the dashboard server
type ServerConfig struct {
	ListenAddr   string         `yaml:"listen_addr"`
	DBPath       string         `yaml:"db_path"`
	DBMaxConns   int            `yaml:"db_max_conns"`
	TLSCert      string         `yaml:"tls_cert"`
	TLSKey       string         `yaml:"tls_key"`
	ProxyTimeout time.Duration  `yaml:"proxy_timeout"`
	PollInterval time.Duration  `yaml:"poll_interval"`
	Logging      logging.Config `yaml:"logging"`
}

// AgentConfig for the reference metrics agent
type AgentConfig struct {
	ListenAddr   string         `yaml:"listen_addr"`
	TopProcesses int            `yaml:"top_processes"`
	Logging      logging.Config `yaml:"logging"`
}

// DefaultServerConfig returns the settings used when a file leaves them out
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		ListenAddr:   ":3000",
		DBPath:       "fleetwatch.db",
		DBMaxConns:   4,
		ProxyTimeout: 10 * time.Second,
		PollInterval: 5 * time.Second,
		Logging:      logging.Config{Level: "info"},
	}
}

// DefaultAgentConfig returns the settings used when a file leaves them out
func DefaultAgentConfig() *AgentConfig {
	return &AgentConfig{
		ListenAddr:   ":8001",
		TopProcesses: 50,
		Logging:      logging.Config{Level: "info"},
	}
}

// LoadServerConfig loads server config from YAML file with env overrides.
// An empty path yields the defaults plus env overrides.
func LoadServerConfig(path string) (*ServerConfig, error) {
	cfg := DefaultServerConfig()
	if err := readYAML(path, cfg); err != nil {
		return nil, err
	}

	// Env overrides
	if addr := os.Getenv("FLEETWATCH_LISTEN_ADDR"); addr != "" {
		cfg.ListenAddr = addr
	}
	if db := os.Getenv("FLEETWATCH_DB_PATH"); db != "" {
		cfg.DBPath = db
	}
	if level := os.Getenv("FLEETWATCH_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports settings the server cannot start with
func (c *ServerConfig) Validate() error {
	var errs []error
	if c.ListenAddr == "" {
		errs = append(errs, errors.New("listen_addr is required"))
	}
	if c.DBPath == "" {
		errs = append(errs, errors.New("db_path is required"))
	}
	if c.DBMaxConns < 1 {
		errs = append(errs, fmt.Errorf("db_max_conns must be at least 1, got %d", c.DBMaxConns))
	}
	if (c.TLSCert == "") != (c.TLSKey == "") {
		errs = append(errs, errors.New("tls_cert and tls_key must be set together"))
	}
	if c.ProxyTimeout <= 0 {
		errs = append(errs, fmt.Errorf("proxy_timeout must be positive, got %s", c.ProxyTimeout))
	}
	if c.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("poll_interval must be positive, got %s", c.PollInterval))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid server config: %w", errors.Join(errs...))
	}
	return nil
}

// TLSEnabled reports whether the server should terminate TLS itself
func (c *ServerConfig) TLSEnabled() bool {
	return c.TLSCert != "" && c.TLSKey != ""
}

// LoadAgentConfig loads agent config from YAML file with env overrides
func LoadAgentConfig(path string) (*AgentConfig, error) {
	cfg := DefaultAgentConfig()
	if err := readYAML(path, cfg); err != nil {
		return nil, err
	}

	if addr := os.Getenv("FLEETWATCH_AGENT_ADDR"); addr != "" {
		cfg.ListenAddr = addr
	}
	if level := os.Getenv("FLEETWATCH_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}

	if cfg.ListenAddr == "" {
		return nil, errors.New("invalid agent config: listen_addr is required")
	}
	if cfg.TopProcesses < 0 {
		cfg.TopProcesses = 0
	}
	return cfg, nil
}

func readYAML(path string, out any) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}
