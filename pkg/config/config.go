package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// DefaultPath is the configuration file read by Load.
const DefaultPath = "config.yaml"

// Config holds all configuration for ontology-impact.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"3450"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	BaseURL  string `yaml:"base_url" env:"BASE_URL" env-default:""` // Auto-derived from Port if empty
	Version  string `yaml:"-"`                                      // Set at load time, not from config

	// TLS configuration (optional - if both provided, server uses HTTPS)
	TLSCertPath string `yaml:"tls_cert_path" env:"TLS_CERT_PATH" env-default:""`
	TLSKeyPath  string `yaml:"tls_key_path" env:"TLS_KEY_PATH" env-default:""`

	// Database configuration (PostgreSQL) holding the dependency index
	Database DatabaseConfig `yaml:"database"`

	// GraphStore is the SPARQL endpoint holding the canonical ontology graphs
	GraphStore GraphStoreConfig `yaml:"graph_store"`

	// Tracking controls dependency extraction and change detection
	Tracking TrackingConfig `yaml:"tracking"`

	MCP MCPConfig `yaml:"mcp"`
}

// DatabaseConfig holds PostgreSQL database configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"ontology_impact"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"ontology_impact"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`
	MaxIdleConns   int32  `yaml:"max_idle_conns" env:"PGMAX_IDLE_CONNS" env-default:"5"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
}

// GraphStoreConfig holds SPARQL endpoint settings.
type GraphStoreConfig struct {
	QueryURL string `yaml:"query_url" env:"GRAPH_STORE_QUERY_URL" env-default:"http://localhost:3030/ontologies/query"`
	// UpdateURL is the Graph Store Protocol endpoint. Leave empty to disable persisting ontologies.
	UpdateURL string        `yaml:"update_url" env:"GRAPH_STORE_UPDATE_URL" env-default:""`
	Username  string        `yaml:"username" env:"GRAPH_STORE_USERNAME" env-default:""`
	Password  string        `yaml:"-" env:"GRAPH_STORE_PASSWORD"` // Secret - not in YAML
	Timeout   time.Duration `yaml:"timeout" env:"GRAPH_STORE_TIMEOUT" env-default:"10s"`

	Breaker BreakerConfig `yaml:"breaker"`
}

// BreakerConfig holds circuit breaker settings for the graph store client.
type BreakerConfig struct {
	// MaxRequests is the number of trial requests allowed while half-open.
	MaxRequests uint32 `yaml:"max_requests" env:"GRAPH_STORE_BREAKER_MAX_REQUESTS" env-default:"3"`
	// Interval is the cyclic period of the closed state for clearing counts.
	Interval time.Duration `yaml:"interval" env:"GRAPH_STORE_BREAKER_INTERVAL" env-default:"30s"`
	// Timeout is how long the breaker stays open before probing again.
	Timeout time.Duration `yaml:"timeout" env:"GRAPH_STORE_BREAKER_TIMEOUT" env-default:"30s"`
	// FailureThreshold is the failure ratio that trips the breaker.
	FailureThreshold float64 `yaml:"failure_threshold" env:"GRAPH_STORE_BREAKER_FAILURE_THRESHOLD" env-default:"0.6"`
	// MinRequests is the number of requests before the ratio is considered.
	MinRequests uint32 `yaml:"min_requests" env:"GRAPH_STORE_BREAKER_MIN_REQUESTS" env-default:"5"`
}

// TrackingConfig controls dependency extraction and change detection.
type TrackingConfig struct {
	// IgnoreIRIs are never recorded as dependencies.
	IgnoreIRIs []string `yaml:"ignore_iris" env:"TRACKING_IGNORE_IRIS" env-separator:","`
	// IgnoreNamespaces drop every IRI in these namespaces.
	IgnoreNamespaces []string `yaml:"ignore_namespaces" env:"TRACKING_IGNORE_NAMESPACES" env-separator:"," env-default:"http://www.w3.org/1999/02/22-rdf-syntax-ns#,http://www.w3.org/2000/01/rdf-schema#,http://www.w3.org/2002/07/owl#,http://www.w3.org/2001/XMLSchema#"`
	// BookkeepingTypes are skipped as rdf:type objects.
	BookkeepingTypes []string `yaml:"bookkeeping_types" env:"TRACKING_BOOKKEEPING_TYPES" env-separator:"," env-default:"http://www.w3.org/2002/07/owl#NamedIndividual,http://www.w3.org/2002/07/owl#Thing,http://www.w3.org/2000/01/rdf-schema#Resource"`

	ClassifyOnSave  bool          `yaml:"classify_on_save" env:"TRACKING_CLASSIFY_ON_SAVE" env-default:"true"`
	ClassifyTimeout time.Duration `yaml:"classify_timeout" env:"TRACKING_CLASSIFY_TIMEOUT" env-default:"2s"`

	// ValidationTimeout and DiffTimeout bound requests that do not pass ?timeout=.
	ValidationTimeout time.Duration `yaml:"validation_timeout" env:"TRACKING_VALIDATION_TIMEOUT" env-default:"30s"`
	DiffTimeout       time.Duration `yaml:"diff_timeout" env:"TRACKING_DIFF_TIMEOUT" env-default:"30s"`
	// MaxTimeout caps any per-request ?timeout= override.
	MaxTimeout time.Duration `yaml:"max_timeout" env:"TRACKING_MAX_TIMEOUT" env-default:"5m"`
}

// MCPConfig holds MCP server settings.
type MCPConfig struct {
	Enabled bool `yaml:"enabled" env:"MCP_ENABLED" env-default:"true"`
}

// Load reads configuration from config.yaml with environment variable overrides.
// The version parameter is injected at build time and set on the returned Config.
// Environment variables override YAML values. Secrets (PGPASSWORD,
// GRAPH_STORE_PASSWORD) must come from environment variables (yaml:"-" fields).
func Load(version string) (*Config, error) {
	return LoadFrom(DefaultPath, version)
}

// LoadFrom reads configuration from path with environment variable overrides.
func LoadFrom(path, version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	// Load config from YAML file with environment variable overrides
	if err := cleanenv.ReadConfig(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	if err := cfg.validateTLS(); err != nil {
		return nil, fmt.Errorf("invalid TLS configuration: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	// Auto-derive BaseURL from Port if not explicitly set
	// Use HTTPS scheme if TLS is configured
	if cfg.BaseURL == "" {
		scheme := "http"
		if cfg.TLSCertPath != "" {
			scheme = "https"
		}
		cfg.BaseURL = (&url.URL{
			Scheme: scheme,
			Host:   "localhost:" + cfg.Port,
		}).String()
	}

	cfg.GraphStore.QueryURL = ResolveURLForDocker(cfg.GraphStore.QueryURL)
	cfg.GraphStore.UpdateURL = ResolveURLForDocker(cfg.GraphStore.UpdateURL)

	return cfg, nil
}

// validate checks the graph store and tracking settings.
func (c *Config) validate() error {
	if c.GraphStore.QueryURL == "" {
		return fmt.Errorf("graph_store.query_url is required")
	}
	if _, err := url.ParseRequestURI(c.GraphStore.QueryURL); err != nil {
		return fmt.Errorf("graph_store.query_url: %w", err)
	}
	if c.GraphStore.UpdateURL != "" {
		if _, err := url.ParseRequestURI(c.GraphStore.UpdateURL); err != nil {
			return fmt.Errorf("graph_store.update_url: %w", err)
		}
	}
	if c.GraphStore.Breaker.FailureThreshold <= 0 || c.GraphStore.Breaker.FailureThreshold > 1 {
		return fmt.Errorf("graph_store.breaker.failure_threshold must be in (0, 1]")
	}

	for name, d := range map[string]time.Duration{
		"tracking.validation_timeout": c.Tracking.ValidationTimeout,
		"tracking.diff_timeout":       c.Tracking.DiffTimeout,
		"tracking.max_timeout":        c.Tracking.MaxTimeout,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	return nil
}

// validateTLS ensures TLS configuration is valid if provided.
// Both cert and key must be provided together, and files must exist and be readable.
func (c *Config) validateTLS() error {
	certSet := c.TLSCertPath != ""
	keySet := c.TLSKeyPath != ""

	// Both must be provided together or both empty
	if certSet != keySet {
		return fmt.Errorf("both tls_cert_path and tls_key_path must be provided together")
	}

	// If both provided, verify files exist (actual readability checked by tls.LoadX509KeyPair at startup)
	if certSet {
		if _, err := os.Stat(c.TLSCertPath); err != nil {
			return fmt.Errorf("TLS cert file does not exist: %w", err)
		}
		if _, err := os.Stat(c.TLSKeyPath); err != nil {
			return fmt.Errorf("TLS key file does not exist: %w", err)
		}
	}

	return nil
}

// ConnectionString returns a PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		ResolveHostForDocker(c.Host), c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// RequestTimeout picks the deadline for a request: the override when it is
// positive, capped at MaxTimeout, otherwise fallback.
func (t *TrackingConfig) RequestTimeout(override, fallback time.Duration) time.Duration {
	if override <= 0 {
		return fallback
	}
	if t.MaxTimeout > 0 && override > t.MaxTimeout {
		return t.MaxTimeout
	}
	return override
}
