package connpool

import (
	"fmt"
	"os"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

const envPrefix = "CONNPOOL"

// LoadConfig reads a YAML config from path, when path is not empty, and then
// applies CONNPOOL_* environment variables on top of it.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("reading config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return cfg, fmt.Errorf("reading environment: %w", err)
	}
	return cfg, cfg.validate()
}

func (c *Config) validate() error {
	if c.MaxConnectionsPerAddress < 0 {
		return fmt.Errorf("invalid configuration, max connections per address can not be negative")
	}
	if c.AcquisitionTimeout < 0 {
		return fmt.Errorf("invalid configuration, acquisition timeout can not be negative")
	}
	if c.AcquisitionTimeout > 0 && c.MaxConnectionsPerAddress == 0 {
		return fmt.Errorf("acquisition timeout needs max connections per address to be set")
	}
	return nil
}
