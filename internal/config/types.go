package config

import (
	"path/filepath"

	"github.com/netwrench/netwrench/internal/utils"
)

type Config struct {
	// ConfigVersion is the configuration file version.
	ConfigVersion uint8 `toml:"config_version" json:"config_version"`
	// General holds general configuration.
	General *GeneralConfig `toml:"general" json:"general"`
	// Executor holds safe executor settings.
	Executor *ExecutorConfig `toml:"executor" json:"executor"`
	// Checkpoints holds checkpoint store settings.
	Checkpoints *CheckpointConfig `toml:"checkpoints" json:"checkpoints"`
	// Audit holds audit trail settings.
	Audit *AuditConfig `toml:"audit" json:"audit"`
	// API holds HTTP API server settings.
	API *APIConfig `toml:"api" json:"api"`

	_absConfigFilePath string
}

type GeneralConfig struct {
	// CatalogDir is a directory with parameter card and profile YAML documents. Empty means the built-in catalog.
	CatalogDir string `toml:"catalog_dir" json:"catalog_dir"`
	// AllowlistPath is the YAML document listing binaries the executor may spawn. Empty means the built-in allowlist.
	AllowlistPath string `toml:"allowlist_path" json:"allowlist_path"`
	// StateDir is the directory for persistent state (checkpoint database, audit logs) (default: /var/lib/netwrench).
	StateDir string `toml:"state_dir" json:"state_dir" validate:"required"`
	// LockDir is the directory for per-interface apply lock files (default: /run/netwrench).
	LockDir string `toml:"lock_dir" json:"lock_dir" validate:"required"`
}

type ExecutorConfig struct {
	// CommandTimeoutSeconds is the per-command execution timeout (default: 30).
	CommandTimeoutSeconds int `toml:"command_timeout_seconds" json:"command_timeout_seconds" validate:"min=1,max=600"`
	// RulesetTimeoutSeconds is the timeout for firewall ruleset check and load commands (default: 5).
	RulesetTimeoutSeconds int `toml:"ruleset_timeout_seconds" json:"ruleset_timeout_seconds" validate:"min=1,max=600"`
}

type CheckpointConfig struct {
	// DatabasePath is the SQLite database file for checkpoints. Empty means <state_dir>/checkpoints.db.
	DatabasePath string `toml:"database_path" json:"database_path"`
	// Keep is how many checkpoints the prune command retains (default: 50).
	Keep int `toml:"keep" json:"keep" validate:"min=1"`
}

type AuditConfig struct {
	// Enabled turns the audit trail on (default: true).
	Enabled bool `toml:"enabled" json:"enabled"`
	// Dir is the audit log directory. Empty means <state_dir>/audit.
	Dir string `toml:"dir" json:"dir"`
}

type APIConfig struct {
	// Listen is the HTTP API listen address (default: 127.0.0.1:8787).
	Listen string `toml:"listen" json:"listen" validate:"hostport"`
}

// Default returns a configuration with every field at its default value.
func Default() *Config {
	return &Config{
		ConfigVersion: 1,
		General: &GeneralConfig{
			StateDir: "/var/lib/netwrench",
			LockDir:  "/run/netwrench",
		},
		Executor: &ExecutorConfig{
			CommandTimeoutSeconds: 30,
			RulesetTimeoutSeconds: 5,
		},
		Checkpoints: &CheckpointConfig{
			Keep: 50,
		},
		Audit: &AuditConfig{
			Enabled: true,
		},
		API: &APIConfig{
			Listen: "127.0.0.1:8787",
		},
	}
}

// fillDefaults populates missing sections and zero fields after decoding.
func (c *Config) fillDefaults() {
	def := Default()
	if c.ConfigVersion == 0 {
		c.ConfigVersion = def.ConfigVersion
	}
	if c.General == nil {
		c.General = def.General
	}
	if c.General.StateDir == "" {
		c.General.StateDir = def.General.StateDir
	}
	if c.General.LockDir == "" {
		c.General.LockDir = def.General.LockDir
	}
	if c.Executor == nil {
		c.Executor = def.Executor
	}
	if c.Executor.CommandTimeoutSeconds == 0 {
		c.Executor.CommandTimeoutSeconds = def.Executor.CommandTimeoutSeconds
	}
	if c.Executor.RulesetTimeoutSeconds == 0 {
		c.Executor.RulesetTimeoutSeconds = def.Executor.RulesetTimeoutSeconds
	}
	if c.Checkpoints == nil {
		c.Checkpoints = def.Checkpoints
	}
	if c.Checkpoints.Keep == 0 {
		c.Checkpoints.Keep = def.Checkpoints.Keep
	}
	if c.Audit == nil {
		c.Audit = def.Audit
	}
	if c.API == nil {
		c.API = def.API
	}
	if c.API.Listen == "" {
		c.API.Listen = def.API.Listen
	}
}

// ConfigDir returns the directory holding the loaded configuration file.
func (c *Config) ConfigDir() string {
	return filepath.Dir(c._absConfigFilePath)
}

// AbsCatalogDir resolves the catalog directory relative to the config file.
// Empty when the built-in catalog should be used.
func (c *Config) AbsCatalogDir() string {
	if c.General.CatalogDir == "" {
		return ""
	}
	return utils.GetAbsolutePath(c.General.CatalogDir, c.ConfigDir())
}

// AbsAllowlistPath resolves the allowlist path relative to the config file.
// Empty when the built-in allowlist should be used.
func (c *Config) AbsAllowlistPath() string {
	if c.General.AllowlistPath == "" {
		return ""
	}
	return utils.GetAbsolutePath(c.General.AllowlistPath, c.ConfigDir())
}

// DatabasePath resolves the checkpoint database location.
func (c *Config) DatabasePath() string {
	if c.Checkpoints.DatabasePath != "" {
		return utils.GetAbsolutePath(c.Checkpoints.DatabasePath, c.ConfigDir())
	}
	return filepath.Join(c.General.StateDir, "checkpoints.db")
}

// AuditDir resolves the audit log directory.
func (c *Config) AuditDir() string {
	if c.Audit.Dir != "" {
		return utils.GetAbsolutePath(c.Audit.Dir, c.ConfigDir())
	}
	return filepath.Join(c.General.StateDir, "audit")
}
