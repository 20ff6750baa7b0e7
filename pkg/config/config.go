package config

// Package config provides a reusable loader for Radiance configuration files
// and environment variables. It is versioned so that applications can depend
// on a stable API contract.
//
// Version: v0.1.0

import (
	"fmt"

	"github.com/spf13/viper"

	"radiance-network/pkg/utils"
)

// Version is the semantic version of this configuration package.
const Version = "v0.1.0"

// Config represents the unified configuration for a Radiance simulator
// instance. It mirrors the structure of the YAML files under cmd/config.
type Config struct {
	Data struct {
		Dir string `mapstructure:"dir" json:"dir"`
	} `mapstructure:"data" json:"data"`

	Engine struct {
		CostUnitPrice string `mapstructure:"cost_unit_price" json:"cost_unit_price"`
		MaxCostUnits  uint64 `mapstructure:"max_cost_units" json:"max_cost_units"`
		SystemLoan    uint64 `mapstructure:"system_loan" json:"system_loan"`
	} `mapstructure:"engine" json:"engine"`

	Logging struct {
		Level string `mapstructure:"level" json:"level"`
		File  string `mapstructure:"file" json:"file"`
	} `mapstructure:"logging" json:"logging"`
}

// AppConfig holds the configuration loaded via Load or LoadFromEnv.
var AppConfig Config

// Load reads configuration files and merges any environment specific
// overrides. The resulting configuration is stored in AppConfig and
// returned. Missing config files are not an error: every field has an
// environment or built-in fallback.
func Load(env string) (*Config, error) {
	viper.SetConfigName("default")
	viper.AddConfigPath("cmd/config")
	viper.AddConfigPath("config")
	viper.SetConfigType("yaml")
	if err := viper.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return nil, utils.Wrap(err, "load config")
		}
	} else if env != "" {
		viper.SetConfigName(env)
		if err := viper.MergeInConfig(); err != nil {
			return nil, utils.Wrap(err, fmt.Sprintf("merge %s config", env))
		}
	}

	viper.AutomaticEnv() // picks up from .env

	if err := viper.Unmarshal(&AppConfig); err != nil {
		return nil, utils.Wrap(err, "unmarshal config")
	}
	return &AppConfig, nil
}

// LoadFromEnv loads configuration using the RADIANCE_ENV environment
// variable.
func LoadFromEnv() (*Config, error) {
	return Load(utils.EnvOrDefault("RADIANCE_ENV", ""))
}
