package common

import (
	"log"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

// CommonConfig holds the infra settings shared by every binary
type CommonConfig struct {
	PromPort        string `yaml:"prom_port"`
	HealthCheckPort string `yaml:"health_check_port"`
	PostgresConfig  string `yaml:"postgres"`
	RedisConfig     string `yaml:"redis"`
	LogLevel        string `yaml:"log_level"`
}

// LoadConfig reads a yaml file into out. A missing file is not an error so
// binaries can run entirely from flags and defaults.
func LoadConfig(path string, out any) error {
	log.Printf("loading config @ `%s`", path)
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		log.Printf("config file not found, using defaults")
		return nil
	}
	if err != nil {
		return errors.Wrapf(err, "failed reading config %s", path)
	}
	if err := yaml.Unmarshal(raw, out); err != nil {
		return errors.Wrapf(err, "failed parsing config %s", path)
	}
	return nil
}
