package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v9"
	"github.com/pelletier/go-toml/v2"

	"github.com/netwrench/netwrench/internal/log"
)

// EnvOverrides are environment settings applied on top of the TOML file,
// used by the serve command.
type EnvOverrides struct {
	// APIListen overrides [api].listen.
	APIListen string `env:"NETWRENCH_API_LISTEN"`
	// DatabasePath overrides [checkpoints].database_path.
	DatabasePath string `env:"NETWRENCH_DB_PATH"`
	// Verbose enables debug logging.
	Verbose bool `env:"NETWRENCH_VERBOSE"`
}

func LoadConfig(configPath string) (*Config, error) {
	configFile := filepath.Clean(configPath)

	if !filepath.IsAbs(configFile) {
		if path, err := filepath.Abs(configFile); err != nil {
			return nil, fmt.Errorf("failed to get absolute path: %v", err)
		} else {
			configFile = path
		}
	}

	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		log.Errorf("Configuration file not found: %s", configFile)
		return nil, fmt.Errorf("configuration file not found: %s", configFile)
	}

	content, err := os.ReadFile(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %v", err)
	}

	var config Config
	if err := toml.Unmarshal(content, &config); err != nil {
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			log.Errorf(derr.String())
			row, col := derr.Position()
			log.Errorf("Error at line %d, column %d", row, col)
			return nil, fmt.Errorf("failed to parse config file")
		}
		return nil, fmt.Errorf("failed to parse config file: %v", err)
	}

	config._absConfigFilePath = configFile
	config.fillDefaults()

	log.Debugf("Configuration file path: %s", configFile)
	log.Debugf("Checkpoint database: %s", config.DatabasePath())

	return &config, nil
}

// ApplyEnvOverrides parses NETWRENCH_* environment variables and applies them
// over the loaded configuration.
func (c *Config) ApplyEnvOverrides() error {
	var overrides EnvOverrides
	if err := env.Parse(&overrides); err != nil {
		return fmt.Errorf("failed to parse environment overrides: %v", err)
	}

	if overrides.APIListen != "" {
		c.API.Listen = overrides.APIListen
	}
	if overrides.DatabasePath != "" {
		c.Checkpoints.DatabasePath = overrides.DatabasePath
	}
	if overrides.Verbose {
		log.SetVerbose(true)
	}

	return nil
}

func (c *Config) SerializeConfig() (*bytes.Buffer, error) {
	buf := bytes.Buffer{}
	enc := toml.NewEncoder(&buf)
	enc.SetIndentTables(true)
	if err := enc.Encode(c); err != nil {
		return nil, err
	}
	return &buf, nil
}
