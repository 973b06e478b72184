package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v2"

	"github.com/charleshuang3/finansecure/internal/auth"
	"github.com/charleshuang3/finansecure/internal/gormw"
	"github.com/charleshuang3/finansecure/internal/handlers/firewall"
	"github.com/charleshuang3/finansecure/internal/handlers/middleware"
	"github.com/charleshuang3/finansecure/internal/token"
)

var (
	logger = log.With().Str("component", "config").Logger()
)

// EnvJWTSecret overrides jwt.secret_key. Deployments keep the signing key out
// of the config file.
const EnvJWTSecret = "AUTH_JWT_SECRET"

type SweeperConfig struct {
	// Cron expression, defaults to daily at 04:00.
	Schedule string `yaml:"schedule"`
	Disabled bool   `yaml:"disabled"`
}

type Config struct {
	Port uint `yaml:"port"`
	// AdminPort serves /metrics. Zero disables the admin listener.
	AdminPort uint   `yaml:"admin_port"`
	GinMode   string `yaml:"gin_mode"`

	JWT     token.Config          `yaml:"jwt"`
	Auth    auth.Config           `yaml:"auth"`
	DB      gormw.Config          `yaml:"db"`
	CORS    middleware.CORSConfig `yaml:"cors"`
	Sweeper SweeperConfig         `yaml:"sweeper"`

	// Firewall is optional, nil means no ban middleware.
	Firewall *firewall.Config `yaml:"firewall"`
}

// LoadConfig loads the config or exits the process.
func LoadConfig(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		logger.Fatal().Err(err).Str("path", path).Msg("Invalid config")
	}
	return cfg
}

func Load(path string) (*Config, error) {
	cfg := &Config{}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file %s: %w", path, err)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	if err := decoder.Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}

	if secret := os.Getenv(EnvJWTSecret); secret != "" {
		cfg.JWT.SecretKey = secret
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate applies the defaults of every section and reports the first error.
func (c *Config) Validate() error {
	if c.Port == 0 {
		return errors.New("port is missing")
	}
	if c.AdminPort != 0 && c.AdminPort == c.Port {
		return errors.New("admin_port must differ from port")
	}

	if c.GinMode == "" {
		return errors.New("gin_mode is missing")
	}

	if err := c.JWT.Validate(); err != nil {
		return err
	}
	if err := c.Auth.Validate(); err != nil {
		return err
	}

	if c.Firewall != nil {
		if err := c.Firewall.Validate(); err != nil {
			return err
		}
	}

	return nil
}
