package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// ConnectorConfig configures one connector daemon.
type ConnectorConfig struct {
	ID          string   `toml:"id"`
	Title       string   `toml:"title"`
	Addr        string   `toml:"addr"`
	LogLevel    string   `toml:"log_level"`
	CorsOrigins []string `toml:"cors_origins"`

	TokenSecret   string `toml:"token_secret"`
	TokenAudience string `toml:"token_audience"`
	TokenTTL      string `toml:"token_ttl"`

	OutboundTimeout string   `toml:"outbound_timeout"`
	InboundVersions []string `toml:"inbound_versions"`
	AutoDownload    bool     `toml:"auto_download"`

	Brokers   []string         `toml:"brokers"`
	Resources []ResourceConfig `toml:"resources"`
}

// ResourceConfig describes one offered resource and its artifacts.
type ResourceConfig struct {
	ID          string           `toml:"id"`
	Title       string           `toml:"title"`
	Description string           `toml:"description"`
	Artifacts   []ArtifactConfig `toml:"artifacts"`
}

// ArtifactConfig points an artifact at its data: either inline content or
// a file path, never both.
type ArtifactConfig struct {
	ID    string `toml:"id"`
	Title string `toml:"title"`
	Data  string `toml:"data"`
	Path  string `toml:"path"`
}

func LoadConnectorConfig(path string) (ConnectorConfig, error) {
	var cfg ConnectorConfig
	if err := loadToml(path, &cfg); err != nil {
		return ConnectorConfig{}, err
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8280"
	}
	if cfg.Title == "" {
		cfg.Title = "dexc connector"
	}
	if cfg.TokenTTL == "" {
		cfg.TokenTTL = "10m"
	}
	if cfg.OutboundTimeout == "" {
		cfg.OutboundTimeout = "15s"
	}
	if err := ValidateConnectorConfig(cfg); err != nil {
		return ConnectorConfig{}, err
	}
	return cfg, nil
}

func loadToml(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := toml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return nil
}

func ValidateConnectorConfig(cfg ConnectorConfig) error {
	if strings.TrimSpace(cfg.ID) == "" {
		return fmt.Errorf("connector config missing id")
	}
	if u, err := url.Parse(cfg.ID); err != nil || u.Scheme == "" {
		return fmt.Errorf("connector id must be an absolute uri")
	}
	if strings.TrimSpace(cfg.TokenSecret) == "" {
		return fmt.Errorf("connector config missing token_secret")
	}
	if _, err := time.ParseDuration(cfg.TokenTTL); err != nil {
		return fmt.Errorf("invalid token_ttl: %w", err)
	}
	if _, err := time.ParseDuration(cfg.OutboundTimeout); err != nil {
		return fmt.Errorf("invalid outbound_timeout: %w", err)
	}
	for i, broker := range cfg.Brokers {
		if u, err := url.Parse(broker); err != nil || u.Scheme == "" {
			return fmt.Errorf("broker[%d] must be an absolute url", i)
		}
	}
	for i, res := range cfg.Resources {
		if err := ValidateResourceEntry(res); err != nil {
			return fmt.Errorf("resource[%d] invalid: %w", i, err)
		}
	}
	return nil
}

func ValidateResourceEntry(res ResourceConfig) error {
	if strings.TrimSpace(res.ID) == "" {
		return fmt.Errorf("id is required")
	}
	for i, a := range res.Artifacts {
		if strings.TrimSpace(a.ID) == "" {
			return fmt.Errorf("artifact[%d] missing id", i)
		}
		if a.Data != "" && a.Path != "" {
			return fmt.Errorf("artifact[%d] sets both data and path", i)
		}
	}
	return nil
}

// TokenTTLDuration returns the parsed token lifetime. Call after validation.
func (c ConnectorConfig) TokenTTLDuration() time.Duration {
	d, _ := time.ParseDuration(c.TokenTTL)
	return d
}

// OutboundTimeoutDuration returns the parsed dispatch timeout.
func (c ConnectorConfig) OutboundTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.OutboundTimeout)
	return d
}
