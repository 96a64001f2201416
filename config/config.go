// Package config loads application configuration from environment variables.
package config

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v9"
)

// Config holds all configuration for the application.
type Config struct {
	Server    ServerConfig
	Portainer PortainerConfig
	Synology  SynologyConfig
	Rules     RulesConfig
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
}

// ServerConfig holds the HTTP API listener settings.
type ServerConfig struct {
	Host string `env:"SERVER_HOST" envDefault:"0.0.0.0"`
	Port int    `env:"SERVER_PORT" envDefault:"8080"`
}

// PortainerConfig holds the inventory source connection settings.
type PortainerConfig struct {
	Host     string `env:"PORTAINER_HOST"`
	Port     int    `env:"PORTAINER_PORT" envDefault:"9000"`
	Username string `env:"PORTAINER_USERNAME"`
	Password string `env:"PORTAINER_PASSWORD"`
	Insecure bool   `env:"PORTAINER_INSECURE" envDefault:"true"`
}

// SynologyConfig holds the proxy-rule store connection settings.
type SynologyConfig struct {
	Host     string `env:"SYNOLOGY_HOST"`
	Port     int    `env:"SYNOLOGY_PORT" envDefault:"5000"`
	Username string `env:"SYNOLOGY_USERNAME"`
	Password string `env:"SYNOLOGY_PASSWORD"`
	Insecure bool   `env:"SYNOLOGY_INSECURE" envDefault:"true"`
}

// RulesConfig holds rule creation defaults and heuristic table extensions.
type RulesConfig struct {
	// DomainSuffix forms suggested domains as <service>.<suffix>.
	DomainSuffix string `env:"DOMAIN_SUFFIX" envDefault:"akibrhast.synology.me"`
	// BackendHost is the forwarding target for auto-created rules, normally
	// the NAS itself.
	BackendHost string `env:"BACKEND_HOST" envDefault:"notmyproblemnas"`
	// ExtraDenylist extends the internal-service keywords (comma separated).
	ExtraDenylist string `env:"PROXY_DENYLIST_EXTRA"`
	// ExtraWebsocket extends the websocket keywords (comma separated).
	ExtraWebsocket string `env:"WEBSOCKET_ALLOWLIST_EXTRA"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Portainer.Host == "" {
		return fmt.Errorf("PORTAINER_HOST is required")
	}
	if c.Portainer.Username == "" || c.Portainer.Password == "" {
		return fmt.Errorf("PORTAINER_USERNAME and PORTAINER_PASSWORD are required")
	}
	if c.Synology.Host == "" {
		return fmt.Errorf("SYNOLOGY_HOST is required")
	}
	if c.Synology.Username == "" || c.Synology.Password == "" {
		return fmt.Errorf("SYNOLOGY_USERNAME and SYNOLOGY_PASSWORD are required")
	}
	if c.Rules.DomainSuffix == "" {
		return fmt.Errorf("DOMAIN_SUFFIX must not be empty")
	}
	return nil
}

// Addr returns the listener address in host:port format.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// URL returns the Portainer base URL.
func (c *PortainerConfig) URL() string {
	return fmt.Sprintf("http://%s:%d", c.Host, c.Port)
}

// URL returns the DSM base URL.
func (c *SynologyConfig) URL() string {
	return fmt.Sprintf("http://%s:%d", c.Host, c.Port)
}

// DenylistKeywords returns the extra denylist entries as a slice.
func (c *RulesConfig) DenylistKeywords() []string {
	return splitKeywords(c.ExtraDenylist)
}

// WebsocketKeywords returns the extra websocket entries as a slice.
func (c *RulesConfig) WebsocketKeywords() []string {
	return splitKeywords(c.ExtraWebsocket)
}

func splitKeywords(raw string) []string {
	if raw == "" {
		return nil
	}
	var keywords []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			keywords = append(keywords, strings.ToLower(trimmed))
		}
	}
	return keywords
}
