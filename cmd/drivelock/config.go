package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/saylorsolutions/drivelock/pkg/passlock"
	"gopkg.in/yaml.v3"
)

// Config is read from an optional YAML file, and then overridden by flags.
type Config struct {
	Store     string    `yaml:"store"`
	Root      string    `yaml:"root"`
	Plaintext bool      `yaml:"plaintext"`
	LogLevel  string    `yaml:"log_level"`
	KDF       KDFConfig `yaml:"kdf"`
}

// KDFConfig only applies to stores without saved key generator settings.
type KDFConfig struct {
	Algorithm  string `yaml:"algorithm"`
	Iterations uint64 `yaml:"iterations"`
}

const defaultRoot = "drivelock"

func defaultConfig() Config {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}
	return Config{
		Store:    filepath.Join(dir, "drivelock", "drivelock.db"),
		Root:     defaultRoot,
		LogLevel: "warn",
		KDF: KDFConfig{
			Algorithm: passlock.PBKDF2.String(),
		},
	}
}

// loadConfig returns the default config, merged with the file at path if path is not empty.
func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	if len(path) == 0 {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file '%s': %w", path, err)
	}
	return cfg, cfg.validate()
}

func (c Config) validate() error {
	if len(c.Store) == 0 {
		return errors.New("store path must be set")
	}
	if len(c.Root) == 0 {
		return errors.New("root folder name must be set")
	}
	_, err := c.generatorOpts()
	return err
}

func (c Config) generatorOpts() ([]passlock.GeneratorOpt, error) {
	alg, err := passlock.ParseAlgorithm(c.KDF.Algorithm)
	if err != nil {
		return nil, err
	}
	opts := []passlock.GeneratorOpt{passlock.UseAlgorithm(alg)}
	if c.KDF.Iterations > 0 {
		opts = append(opts, passlock.SetIterations(c.KDF.Iterations))
	}
	return opts, nil
}
