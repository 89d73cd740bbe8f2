package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// writeConfig writes yamlContent to a config.yaml in a temp directory and
// returns its path.
func writeConfig(t *testing.T, yamlContent string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

// clearEnv unsets variables that would override YAML values, restoring them afterwards.
func clearEnv(t *testing.T, names ...string) {
	t.Helper()
	for _, name := range names {
		t.Setenv(name, "")
		os.Unsetenv(name)
	}
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	configPath := writeConfig(t, `
port: "3450"
env: "test"
database:
  host: "db.example.com"
  port: 5432
  user: "testuser"
  database: "testdb"
graph_store:
  query_url: "http://fuseki.example.com:3030/onto/query"
`)

	// Change to temp directory so Load() finds config.yaml
	originalDir, err := os.Getwd()
	if err != nil {
		t.Fatalf("failed to get working directory: %v", err)
	}
	if err := os.Chdir(filepath.Dir(configPath)); err != nil {
		t.Fatalf("failed to change directory: %v", err)
	}
	t.Cleanup(func() {
		os.Chdir(originalDir)
	})

	clearEnv(t, "PGHOST", "BASE_URL", "GRAPH_STORE_QUERY_URL")

	// Set env vars to override YAML values
	t.Setenv("PORT", "4450")
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("GRAPH_STORE_PASSWORD", "s3cret")

	cfg, err := Load("test-version")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Port != "4450" {
		t.Errorf("expected Port=4450 (from env), got %s", cfg.Port)
	}
	if cfg.Env != "production" {
		t.Errorf("expected Env=production (from env), got %s", cfg.Env)
	}
	if cfg.Version != "test-version" {
		t.Errorf("expected Version=test-version, got %s", cfg.Version)
	}
	if cfg.BaseURL != "http://localhost:4450" {
		t.Errorf("expected BaseURL=http://localhost:4450 (auto-derived from PORT), got %s", cfg.BaseURL)
	}
	if cfg.Database.Host != "db.example.com" {
		t.Errorf("expected Database.Host=db.example.com (from yaml), got %s", cfg.Database.Host)
	}
	if cfg.GraphStore.QueryURL != "http://fuseki.example.com:3030/onto/query" {
		t.Errorf("expected graph store query URL from yaml, got %s", cfg.GraphStore.QueryURL)
	}
	if cfg.GraphStore.Password != "s3cret" {
		t.Errorf("expected graph store password from env")
	}
}

func TestLoad_BaseURLExplicit(t *testing.T) {
	configPath := writeConfig(t, `
port: "3450"
base_url: "http://my-server.internal:8080"
`)
	clearEnv(t, "BASE_URL", "PORT")

	cfg, err := LoadFrom(configPath, "test")
	if err != nil {
		t.Fatalf("LoadFrom() failed: %v", err)
	}
	if cfg.BaseURL != "http://my-server.internal:8080" {
		t.Errorf("expected explicit BaseURL, got %s", cfg.BaseURL)
	}
}

func TestLoad_MissingConfigFile(t *testing.T) {
	_, err := LoadFrom(filepath.Join(t.TempDir(), "missing.yaml"), "test")
	if err == nil {
		t.Fatal("expected error for missing config file")
	}
	if !strings.Contains(err.Error(), "missing.yaml") {
		t.Errorf("expected error to name the file, got %v", err)
	}
}

func TestLoad_TrackingDefaults(t *testing.T) {
	configPath := writeConfig(t, `env: "test"`)
	clearEnv(t, "TRACKING_IGNORE_IRIS", "TRACKING_IGNORE_NAMESPACES", "TRACKING_BOOKKEEPING_TYPES",
		"TRACKING_CLASSIFY_ON_SAVE", "TRACKING_CLASSIFY_TIMEOUT", "TRACKING_VALIDATION_TIMEOUT",
		"TRACKING_DIFF_TIMEOUT", "TRACKING_MAX_TIMEOUT", "GRAPH_STORE_QUERY_URL", "GRAPH_STORE_TIMEOUT")

	cfg, err := LoadFrom(configPath, "test")
	if err != nil {
		t.Fatalf("LoadFrom() failed: %v", err)
	}

	tr := cfg.Tracking
	if len(tr.IgnoreIRIs) != 0 {
		t.Errorf("expected no ignored IRIs by default, got %v", tr.IgnoreIRIs)
	}
	if len(tr.IgnoreNamespaces) != 4 {
		t.Errorf("expected 4 default ignored namespaces, got %v", tr.IgnoreNamespaces)
	}
	if len(tr.BookkeepingTypes) != 3 || tr.BookkeepingTypes[0] != "http://www.w3.org/2002/07/owl#NamedIndividual" {
		t.Errorf("unexpected default bookkeeping types %v", tr.BookkeepingTypes)
	}
	if !tr.ClassifyOnSave {
		t.Error("expected classify_on_save to default to true")
	}
	if tr.ClassifyTimeout != 2*time.Second {
		t.Errorf("expected classify timeout 2s, got %s", tr.ClassifyTimeout)
	}
	if tr.ValidationTimeout != 30*time.Second || tr.DiffTimeout != 30*time.Second {
		t.Errorf("expected 30s validation/diff timeouts, got %s/%s", tr.ValidationTimeout, tr.DiffTimeout)
	}
	if cfg.GraphStore.Timeout != 10*time.Second {
		t.Errorf("expected graph store timeout 10s, got %s", cfg.GraphStore.Timeout)
	}
	if cfg.GraphStore.Breaker.FailureThreshold != 0.6 {
		t.Errorf("expected breaker threshold 0.6, got %v", cfg.GraphStore.Breaker.FailureThreshold)
	}
	if !cfg.MCP.Enabled {
		t.Error("expected MCP to be enabled by default")
	}
}

func TestLoad_TrackingFromYAML(t *testing.T) {
	configPath := writeConfig(t, `
tracking:
  ignore_iris:
    - "http://ex.org/onto#internal"
  ignore_namespaces:
    - "http://www.w3.org/2002/07/owl#"
  classify_on_save: false
  diff_timeout: "45s"
`)
	clearEnv(t, "TRACKING_IGNORE_IRIS", "TRACKING_IGNORE_NAMESPACES", "TRACKING_CLASSIFY_ON_SAVE", "TRACKING_DIFF_TIMEOUT")

	cfg, err := LoadFrom(configPath, "test")
	if err != nil {
		t.Fatalf("LoadFrom() failed: %v", err)
	}

	if len(cfg.Tracking.IgnoreIRIs) != 1 || cfg.Tracking.IgnoreIRIs[0] != "http://ex.org/onto#internal" {
		t.Errorf("unexpected ignore IRIs %v", cfg.Tracking.IgnoreIRIs)
	}
	if len(cfg.Tracking.IgnoreNamespaces) != 1 {
		t.Errorf("expected yaml namespaces to replace the defaults, got %v", cfg.Tracking.IgnoreNamespaces)
	}
	if cfg.Tracking.ClassifyOnSave {
		t.Error("expected classify_on_save=false from yaml")
	}
	if cfg.Tracking.DiffTimeout != 45*time.Second {
		t.Errorf("expected diff timeout 45s, got %s", cfg.Tracking.DiffTimeout)
	}
}

func TestLoad_TrackingFromEnv(t *testing.T) {
	configPath := writeConfig(t, `env: "test"`)
	t.Setenv("TRACKING_IGNORE_IRIS", "http://ex.org/a,http://ex.org/b")
	t.Setenv("TRACKING_VALIDATION_TIMEOUT", "5s")

	cfg, err := LoadFrom(configPath, "test")
	if err != nil {
		t.Fatalf("LoadFrom() failed: %v", err)
	}

	if len(cfg.Tracking.IgnoreIRIs) != 2 || cfg.Tracking.IgnoreIRIs[1] != "http://ex.org/b" {
		t.Errorf("expected two ignored IRIs from env, got %v", cfg.Tracking.IgnoreIRIs)
	}
	if cfg.Tracking.ValidationTimeout != 5*time.Second {
		t.Errorf("expected validation timeout 5s from env, got %s", cfg.Tracking.ValidationTimeout)
	}
}

func TestLoad_InvalidGraphStore(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "bad query url",
			yaml: "graph_store:\n  query_url: \"not a url\"\n",
			want: "graph_store.query_url",
		},
		{
			name: "bad update url",
			yaml: "graph_store:\n  update_url: \"::\"\n",
			want: "graph_store.update_url",
		},
		{
			name: "threshold out of range",
			yaml: "graph_store:\n  breaker:\n    failure_threshold: 1.5\n",
			want: "failure_threshold",
		},
		{
			name: "zero diff timeout",
			yaml: "tracking:\n  diff_timeout: \"0s\"\n",
			want: "tracking.diff_timeout",
		},
	}

	clearEnv(t, "GRAPH_STORE_QUERY_URL", "GRAPH_STORE_UPDATE_URL", "GRAPH_STORE_BREAKER_FAILURE_THRESHOLD", "TRACKING_DIFF_TIMEOUT")

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFrom(writeConfig(t, tt.yaml), "test")
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error mentioning %q, got %v", tt.want, err)
			}
		})
	}
}

func TestLoad_TLSRequiresBothFiles(t *testing.T) {
	configPath := writeConfig(t, `tls_cert_path: "/tmp/cert.pem"`)
	clearEnv(t, "TLS_CERT_PATH", "TLS_KEY_PATH")

	_, err := LoadFrom(configPath, "test")
	if err == nil || !strings.Contains(err.Error(), "TLS") {
		t.Errorf("expected TLS configuration error, got %v", err)
	}
}

func TestTrackingConfig_RequestTimeout(t *testing.T) {
	tr := TrackingConfig{MaxTimeout: time.Minute}

	tests := []struct {
		override time.Duration
		want     time.Duration
	}{
		{0, 30 * time.Second},
		{-time.Second, 30 * time.Second},
		{5 * time.Second, 5 * time.Second},
		{time.Hour, time.Minute},
	}
	for _, tt := range tests {
		if got := tr.RequestTimeout(tt.override, 30*time.Second); got != tt.want {
			t.Errorf("RequestTimeout(%s) = %s, want %s", tt.override, got, tt.want)
		}
	}
}

func TestDatabaseConfig_ConnectionString(t *testing.T) {
	db := DatabaseConfig{Host: "db.internal", Port: 5433, User: "u", Password: "p", Database: "d", SSLMode: "require"}

	want := "host=db.internal port=5433 user=u password=p dbname=d sslmode=require"
	if got := db.ConnectionString(); got != want {
		t.Errorf("ConnectionString() = %q, want %q", got, want)
	}
}
