// Package config loads server configuration from YAML with environment
// overrides.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML can express it as "5s" or "500ms".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config is the full server configuration.
type Config struct {
	// Listen is the HTTP bind address.
	Listen string `yaml:"listen"`
	// DBPath is the SQLite database file.
	DBPath string `yaml:"db_path"`
	// ServiceDID is the repo DID records are written under when no
	// caller identity applies.
	ServiceDID string `yaml:"service_did"`
	// ScriptTimeout bounds handler script execution.
	ScriptTimeout Duration `yaml:"script_timeout"`

	// Network endpoints for lexicon resolution and backfill.
	PLCURL     string `yaml:"plc_url"`
	AppviewURL string `yaml:"appview_url"`
	RelayURL   string `yaml:"relay_url"`

	// BackfillMaxRepos caps repo discovery per backfill job.
	BackfillMaxRepos int `yaml:"backfill_max_repos"`

	// AdminKey is an optional master API key accepted alongside keys
	// minted through the admin API. Useful for bootstrap.
	AdminKey string `yaml:"admin_key"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Listen:           ":8080",
		DBPath:           "lexhost.db",
		ServiceDID:       "did:web:localhost",
		ScriptTimeout:    Duration(5 * time.Second),
		BackfillMaxRepos: 1000,
	}
}

// Load reads a YAML config file over the defaults, then applies
// environment overrides. An empty path skips the file.
//
// Overrides: LEXHOST_LISTEN, LEXHOST_DB_PATH, LEXHOST_SERVICE_DID,
// LEXHOST_PLC_URL, LEXHOST_APPVIEW_URL, LEXHOST_RELAY_URL,
// LEXHOST_ADMIN_KEY.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}

	for env, target := range map[string]*string{
		"LEXHOST_LISTEN":      &cfg.Listen,
		"LEXHOST_DB_PATH":     &cfg.DBPath,
		"LEXHOST_SERVICE_DID": &cfg.ServiceDID,
		"LEXHOST_PLC_URL":     &cfg.PLCURL,
		"LEXHOST_APPVIEW_URL": &cfg.AppviewURL,
		"LEXHOST_RELAY_URL":   &cfg.RelayURL,
		"LEXHOST_ADMIN_KEY":   &cfg.AdminKey,
	} {
		if v := os.Getenv(env); v != "" {
			*target = v
		}
	}

	if cfg.ScriptTimeout <= 0 {
		cfg.ScriptTimeout = Duration(5 * time.Second)
	}
	return cfg, nil
}
