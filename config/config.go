/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

// Package config loads docseed settings from an optional .env file, an
// optional YAML config file and DOCSTORE_ prefixed environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "DOCSTORE"

// Config is the resolved configuration.
type Config struct {
	Log          LogConfig `mapstructure:"log"`
	StudentsFile string    `mapstructure:"students_file"`
	Scenario     string    `mapstructure:"scenario"`
	AWS          AWSConfig `mapstructure:"aws"`
}

// LogConfig selects the log level and output format.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// AWSConfig holds the DynamoDB connection used by dynamodb scenario sources.
type AWSConfig struct {
	Region    string `mapstructure:"region"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Endpoint  string `mapstructure:"endpoint"`
	Table     string `mapstructure:"table"`
}

// Options tells Load where to look.
type Options struct {
	// ConfigFile is an optional YAML file.
	ConfigFile string
	// EnvFile is a .env file that must exist. When empty, ./.env is loaded if present.
	EnvFile string
}

// Load resolves the configuration. Precedence, highest first: environment,
// config file, defaults. Variables from the .env file never override the
// process environment.
func Load(opts Options) (*Config, error) {
	if opts.EnvFile != "" {
		if err := godotenv.Load(opts.EnvFile); err != nil {
			return nil, fmt.Errorf("failed to load env file %s: %w", opts.EnvFile, err)
		}
	} else if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("students_file", "")
	v.SetDefault("scenario", "")
	v.SetDefault("aws.region", "us-east-1")
	v.SetDefault("aws.access_key", "")
	v.SetDefault("aws.secret_key", "")
	v.SetDefault("aws.endpoint", "")
	v.SetDefault("aws.table", "")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Standard AWS variables are honoured when the prefixed ones are unset
	if err := bindEnv(v, "aws.region", "DOCSTORE_AWS_REGION", "AWS_REGION"); err != nil {
		return nil, err
	}
	if err := bindEnv(v, "aws.access_key", "DOCSTORE_AWS_ACCESS_KEY", "AWS_ACCESS_KEY_ID"); err != nil {
		return nil, err
	}
	if err := bindEnv(v, "aws.secret_key", "DOCSTORE_AWS_SECRET_KEY", "AWS_SECRET_ACCESS_KEY"); err != nil {
		return nil, err
	}

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", opts.ConfigFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

func bindEnv(v *viper.Viper, key string, envs ...string) error {
	if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
		return fmt.Errorf("failed to bind %s: %w", key, err)
	}
	return nil
}
