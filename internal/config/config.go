// Package config loads the static application configuration shared by
// the gateway, the sources subprocess and the HTTP surface.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/oaglazunova/HDT-agentic-interop-sub000/internal/connectors"
)

// Config is the full application configuration.
type Config struct {
	ClientID   string          `yaml:"client_id"`
	PolicyPath string          `yaml:"policy_path"`
	Vault      VaultConfig     `yaml:"vault"`
	Audit      AuditConfig     `yaml:"audit"`
	Sources    SourcesConfig   `yaml:"sources"`
	HTTP       HTTPConfig      `yaml:"http"`
	Providers  ProvidersConfig `yaml:"providers"`
	Users      []UserConfig    `yaml:"users"`
}

// VaultConfig configures the embedded cache store.
type VaultConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Path          string `yaml:"path"`
	RetentionDays int    `yaml:"retention_days"`
}

// AuditConfig configures the append-only audit logs. SourcesPath is
// the subprocess-side log; both sides share the subject-hash salt so
// events can be linked across the process boundary.
type AuditConfig struct {
	Path        string `yaml:"path"`
	SourcesPath string `yaml:"sources_path"`
	Salt        string `yaml:"salt"`
}

// SourcesConfig tells the gateway how to spawn the sources subprocess.
type SourcesConfig struct {
	Command        string   `yaml:"command"`
	Args           []string `yaml:"args"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
}

// HTTPConfig configures the read-only presentation surface.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// ProvidersConfig holds the upstream provider endpoints.
type ProvidersConfig struct {
	WearableBaseURL string `yaml:"wearable_base_url"`
	GamehubBaseURL  string `yaml:"gamehub_base_url"`
}

// UserConfig is one user's connector directory entry.
type UserConfig struct {
	ID         int               `yaml:"id"`
	Connectors []ConnectorConfig `yaml:"connectors"`
}

// ConnectorConfig is one configured link to an external provider.
type ConnectorConfig struct {
	Category    string `yaml:"category"`
	Application string `yaml:"application"`
	PlayerID    string `yaml:"player_id"`
	Token       string `yaml:"token"`
}

// Default returns a configuration suitable for local development.
func Default() *Config {
	home, _ := os.UserHomeDir()
	dataDir := filepath.Join(home, ".hdt")
	return &Config{
		ClientID:   "hdt-gateway",
		PolicyPath: filepath.Join(dataDir, "policy.json"),
		Vault: VaultConfig{
			Enabled:       true,
			Path:          filepath.Join(dataDir, "vault.db"),
			RetentionDays: 90,
		},
		Audit: AuditConfig{
			Path:        filepath.Join(dataDir, "audit", "gateway.jsonl"),
			SourcesPath: filepath.Join(dataDir, "audit", "sources.jsonl"),
			Salt:        "hdt-dev-salt",
		},
		Sources: SourcesConfig{
			Command:        "hdt-sources",
			Args:           []string{"serve"},
			TimeoutSeconds: 30,
		},
		HTTP: HTTPConfig{Addr: ":8080"},
		Providers: ProvidersConfig{
			WearableBaseURL: "https://api.wearable.example",
			GamehubBaseURL:  "https://api.gamehub.example",
		},
	}
}

// Load reads a YAML config file, layering it over Default. An empty
// path returns Default unchanged.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// Directory builds the static user/connector directory from the
// configured users.
func (c *Config) Directory() connectors.StaticDirectory {
	dir := connectors.StaticDirectory{}
	for _, u := range c.Users {
		for _, conn := range u.Connectors {
			dir[u.ID] = append(dir[u.ID], connectors.UserConnector{
				Category:    connectors.Category(conn.Category),
				Application: conn.Application,
				PlayerID:    conn.PlayerID,
				Token:       conn.Token,
			})
		}
	}
	return dir
}
