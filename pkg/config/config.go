// Package config holds the publishing configuration: product naming, the
// kickstart inclusion rule, promotion and retention settings, signing
// service coordinates and optional metrics push.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	pkgerrors "github.com/AlmaLinux/pungi-scripts-public/pkg/errors"
)

// Default configuration values exported for documentation and validation
const (
	DefaultProduct                 = "almalinux"
	DefaultIncludedToKickstartRepo = "AppStream"
	DefaultInProgressPrefix        = "last_compose_dir"
	DefaultMetricsJob              = "compose_publisher"
)

// DefaultProtectedPrefixes are result directory prefixes the retention
// pruner must never delete.
var DefaultProtectedPrefixes = []string{"latest-", "minimal_iso"}

// SigningConfig carries the signing service coordinates. Signing is
// optional: it is skipped entirely when the credentials are not set.
type SigningConfig struct {
	Endpoint string `yaml:"endpoint"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	KeyID    string `yaml:"keyid"`
}

// MetricsConfig enables pushing run metrics to a Prometheus Pushgateway.
type MetricsConfig struct {
	GatewayURL string `yaml:"gateway_url"`
	Job        string `yaml:"job"`
}

// Config represents the complete publisher configuration
type Config struct {
	// Product is the product name used in platform repository directory
	// names when locating updateinfo sources.
	Product string `yaml:"product"`

	// IncludedToKickstartRepo names the variant whose treeinfo locations
	// are redirected into the kickstart tree.
	IncludedToKickstartRepo string `yaml:"included_to_kickstart_repo"`

	// InProgressPrefix marks result directories that are still eligible
	// for promotion.
	InProgressPrefix string `yaml:"in_progress_prefix"`

	// ProtectedPrefixes are never pruned by cleanup.
	ProtectedPrefixes []string `yaml:"protected_prefixes"`

	Signing SigningConfig `yaml:"signing"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// Default returns the configuration used when no config file is given.
func Default() *Config {
	return &Config{
		Product:                 DefaultProduct,
		IncludedToKickstartRepo: DefaultIncludedToKickstartRepo,
		InProgressPrefix:        DefaultInProgressPrefix,
		ProtectedPrefixes:       append([]string{}, DefaultProtectedPrefixes...),
		Metrics:                 MetricsConfig{Job: DefaultMetricsJob},
	}
}

// Load reads a YAML config file and merges it over the defaults. An empty
// path returns the defaults unchanged.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.ErrCodeConfigLoad, "read config file").
			WithContext("path", path)
	}
	var override Config
	if err := yaml.Unmarshal(data, &override); err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.ErrCodeConfigLoad, "parse config file").
			WithContext("path", path)
	}
	merge(cfg, &override)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func merge(base, override *Config) {
	if override.Product != "" {
		base.Product = override.Product
	}
	if override.IncludedToKickstartRepo != "" {
		base.IncludedToKickstartRepo = override.IncludedToKickstartRepo
	}
	if override.InProgressPrefix != "" {
		base.InProgressPrefix = override.InProgressPrefix
	}
	if len(override.ProtectedPrefixes) > 0 {
		base.ProtectedPrefixes = override.ProtectedPrefixes
	}
	if override.Signing.Endpoint != "" {
		base.Signing.Endpoint = override.Signing.Endpoint
	}
	if override.Signing.Username != "" {
		base.Signing.Username = override.Signing.Username
	}
	if override.Signing.Password != "" {
		base.Signing.Password = override.Signing.Password
	}
	if override.Signing.KeyID != "" {
		base.Signing.KeyID = override.Signing.KeyID
	}
	if override.Metrics.GatewayURL != "" {
		base.Metrics.GatewayURL = override.Metrics.GatewayURL
	}
	if override.Metrics.Job != "" {
		base.Metrics.Job = override.Metrics.Job
	}
}

// Validate checks internal consistency of the configuration.
func (c *Config) Validate() error {
	if c.Product == "" {
		return pkgerrors.New(pkgerrors.ErrCodeConfigInvalid, "product must not be empty")
	}
	if c.InProgressPrefix == "" {
		return pkgerrors.New(pkgerrors.ErrCodeConfigInvalid, "in_progress_prefix must not be empty")
	}
	partial := c.Signing.Username != "" || c.Signing.Password != "" || c.Signing.Endpoint != ""
	complete := c.Signing.Username != "" && c.Signing.Password != "" && c.Signing.Endpoint != ""
	if partial && !complete {
		return pkgerrors.New(pkgerrors.ErrCodeConfigInvalid,
			fmt.Sprintf("signing requires endpoint, username and password together (endpoint=%q)", c.Signing.Endpoint))
	}
	return nil
}
