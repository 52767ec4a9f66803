package config

import (
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config holds all application configuration.
type Config struct {
	// fail2ban backend
	Client         string        `koanf:"f2b_client"`
	UseSudo        bool          `koanf:"f2b_use_sudo"`
	SSHHost        string        `koanf:"f2b_ssh_host"`
	SSHUser        string        `koanf:"f2b_ssh_user"`
	SSHKey         string        `koanf:"f2b_ssh_key"`
	Demo           string        `koanf:"f2b_demo"` // auto | true | false
	CommandTimeout time.Duration `koanf:"command_timeout"`

	// Durable store
	DBPath string `koanf:"f2b_db_path"`

	// Data directory (rate-gate database)
	DataDir string `koanf:"data_dir"`

	// Enrichment
	GeoIPDir string `koanf:"geoip_dir"`

	// Snapshot recorder; 0 disables
	SnapshotInterval time.Duration `koanf:"snapshot_interval"`

	// Manual-action rate gate; 0 max disables
	RateLimitWindow   time.Duration `koanf:"ratelimit_window"`
	RateLimitMaxCalls int           `koanf:"ratelimit_max_calls"`

	// Servers
	ListenAddr     string `koanf:"listen_addr"`
	HealthAddr     string `koanf:"health_addr"`
	MetricsEnabled bool   `koanf:"metrics_enabled"`
	MetricsAddr    string `koanf:"metrics_addr"`

	// Logging
	LogLevel  string `koanf:"log_level"`
	LogFormat string `koanf:"log_format"`
}

// sanitise removes a single layer of matching surrounding quotes from all
// string fields. This normalises values from Docker --env-file which does
// not strip shell quoting.
func (c *Config) sanitise() {
	c.Client = stripEnvQuotes(c.Client)
	c.SSHHost = stripEnvQuotes(c.SSHHost)
	c.SSHUser = stripEnvQuotes(c.SSHUser)
	c.SSHKey = stripEnvQuotes(c.SSHKey)
	c.Demo = stripEnvQuotes(c.Demo)
	c.DBPath = stripEnvQuotes(c.DBPath)
	c.DataDir = stripEnvQuotes(c.DataDir)
	c.GeoIPDir = stripEnvQuotes(c.GeoIPDir)
	c.ListenAddr = stripEnvQuotes(c.ListenAddr)
	c.HealthAddr = stripEnvQuotes(c.HealthAddr)
	c.MetricsAddr = stripEnvQuotes(c.MetricsAddr)
	c.LogLevel = stripEnvQuotes(c.LogLevel)
	c.LogFormat = stripEnvQuotes(c.LogFormat)
}

// defaults sets sensible default values.
func defaults() map[string]interface{} {
	return map[string]interface{}{
		"f2b_client":          "fail2ban-client",
		"f2b_use_sudo":        true,
		"f2b_ssh_user":        "root",
		"f2b_demo":            "auto",
		"command_timeout":     "10s",
		"f2b_db_path":         "f2b_dashboard.db",
		"data_dir":            "/data",
		"snapshot_interval":   "0s",
		"ratelimit_window":    "1m",
		"ratelimit_max_calls": 0,
		"listen_addr":         ":8502",
		"health_addr":         ":8081",
		"metrics_enabled":     true,
		"metrics_addr":        ":9090",
		"log_level":           "info",
		"log_format":          "json",
	}
}

// stripEnvQuotes removes a single layer of matching surrounding single or
// double quotes from s. Only symmetric pairs are stripped: 'x' → x, "x" → x.
// Unpaired or mismatched quotes are left as-is.
func stripEnvQuotes(s string) string {
	if len(s) < 2 {
		return s
	}
	if (s[0] == '\'' && s[len(s)-1] == '\'') ||
		(s[0] == '"' && s[len(s)-1] == '"') {
		return s[1 : len(s)-1]
	}
	return s
}

// Load reads configuration from environment variables, applying _FILE secret injection.
func Load() (*Config, error) {
	// Use "." as delimiter so that env vars with "_" in their names are
	// treated as flat keys, not nested paths. E.g. F2B_SSH_HOST → "f2b_ssh_host"
	// maps to struct tag koanf:"f2b_ssh_host" without any nesting.
	k := koanf.New(".")

	defs := defaults()
	if err := k.Load(&rawProvider{data: defs}, nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if err := k.Load(env.Provider("", ".", func(s string) string {
		return strings.ToLower(s)
	}), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	if err := injectFileSecrets(k); err != nil {
		return nil, fmt.Errorf("inject file secrets: %w", err)
	}

	cfg := &Config{}
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.sanitise()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required fields and semantic constraints.
func (c *Config) Validate() error {
	if c.Client == "" {
		return fmt.Errorf("F2B_CLIENT must not be empty")
	}

	switch c.Demo {
	case "auto", "true", "false":
	default:
		return fmt.Errorf("F2B_DEMO must be auto, true, or false; got %q", c.Demo)
	}

	if c.SSHHost != "" {
		if c.SSHUser == "" {
			return fmt.Errorf("F2B_SSH_USER is required when F2B_SSH_HOST is set")
		}
		if host := strings.TrimSpace(c.SSHHost); strings.ContainsAny(host, " \t") {
			return fmt.Errorf("F2B_SSH_HOST must be a single hostname or address; got %q", c.SSHHost)
		}
		if ip := net.ParseIP(c.SSHHost); ip == nil {
			// hostname is fine; just reject obviously malformed values
			if strings.Contains(c.SSHHost, "@") {
				return fmt.Errorf("F2B_SSH_HOST must not contain a user part; set F2B_SSH_USER instead")
			}
		}
	}

	if c.CommandTimeout <= 0 {
		return fmt.Errorf("COMMAND_TIMEOUT must be > 0; got %s", c.CommandTimeout)
	}

	if c.RateLimitMaxCalls < 0 {
		return fmt.Errorf("RATELIMIT_MAX_CALLS must be >= 0; got %d", c.RateLimitMaxCalls)
	}
	if c.RateLimitMaxCalls > 0 && c.RateLimitWindow <= 0 {
		return fmt.Errorf("RATELIMIT_WINDOW must be > 0 when RATELIMIT_MAX_CALLS is set; got %s", c.RateLimitWindow)
	}

	if c.SnapshotInterval < 0 {
		return fmt.Errorf("SNAPSHOT_INTERVAL must be >= 0; got %s", c.SnapshotInterval)
	}

	validLogLevels := map[string]bool{
		"trace": true, "debug": true, "info": true,
		"warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("LOG_LEVEL must be one of trace,debug,info,warn,error,fatal,panic; got %q", c.LogLevel)
	}

	if c.LogFormat != "json" && c.LogFormat != "text" {
		return fmt.Errorf("LOG_FORMAT must be json or text; got %q", c.LogFormat)
	}

	return nil
}

// injectFileSecrets reads _FILE env vars and injects their file contents.
// The ssh identity path is the only secret-ish value; _FILE lets it live in
// a mounted Docker secret.
var fileSecretKeys = []string{
	"f2b_ssh_key",
}

func injectFileSecrets(k *koanf.Koanf) error {
	for _, key := range fileSecretKeys {
		fileKey := key + "_file"
		filePath := k.String(fileKey)
		if filePath == "" {
			envKey := strings.ToUpper(key) + "_FILE"
			filePath = os.Getenv(envKey)
		}
		if filePath == "" {
			continue
		}
		filePath = stripEnvQuotes(filePath)
		content, err := os.ReadFile(filePath)
		if err != nil {
			return fmt.Errorf("reading secret file for %s (%s): %w", key, filePath, err)
		}
		val := strings.TrimSpace(string(content))
		if err := k.Set(key, val); err != nil {
			return fmt.Errorf("setting %s from file: %w", key, err)
		}
	}
	return nil
}

// rawProvider implements koanf.Provider for a map[string]interface{}.
type rawProvider struct {
	data map[string]interface{}
}

// Read returns the config map directly (no Parser needed).
func (r *rawProvider) Read() (map[string]interface{}, error) {
	return r.data, nil
}

// ReadBytes is not used by rawProvider; koanf calls Read() when no Parser is given.
func (r *rawProvider) ReadBytes() ([]byte, error) {
	return nil, fmt.Errorf("rawProvider does not support ReadBytes")
}
