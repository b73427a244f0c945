/*
Package config loads service configuration.

PURPOSE:
  One Config struct for the whole binary, resolved in priority order:
  defaults < optional YAML file < MARGIN_* environment variables. Everything
  has a working default so `go run ./cmd/server` starts with no setup.
*/
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Port   int    `mapstructure:"port"`
	DBPath string `mapstructure:"db_path"`

	// TolerancePct is the variance dead band applied to comparisons.
	TolerancePct float64 `mapstructure:"tolerance_pct"`

	// ServiceLevel selects the safety-stock z-score ("0.90".."0.99").
	ServiceLevel string `mapstructure:"service_level"`

	// FlagThreshold is the classifier score at which an item is flagged.
	FlagThreshold float64 `mapstructure:"flag_threshold"`

	// Concept picks default statement targets when none are supplied.
	Concept string `mapstructure:"concept"`

	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// Load resolves configuration. path may be empty; a missing config file is
// not an error, a malformed one is.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("port", 8080)
	v.SetDefault("db_path", "margin.db")
	v.SetDefault("tolerance_pct", 5.0)
	v.SetDefault("service_level", "0.95")
	v.SetDefault("flag_threshold", 60.0)
	v.SetDefault("concept", "casual_dining")
	v.SetDefault("allowed_origins", []string{"*"})

	v.SetEnvPrefix("MARGIN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("invalid port %d", cfg.Port)
	}
	return &cfg, nil
}
