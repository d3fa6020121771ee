package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Source selects which staging family the build pipeline consumes.
type Source string

const (
	SourceCSV  Source = "csv"
	SourceFHIR Source = "fhir"
)

// ParseSource validates a --source flag value.
func ParseSource(s string) (Source, error) {
	switch Source(s) {
	case SourceCSV, SourceFHIR:
		return Source(s), nil
	}
	return "", fmt.Errorf("unknown source %q (want csv or fhir)", s)
}

// Config holds all runtime configuration for a hawload run.
type Config struct {
	DSN       string
	LogFormat string // "text" or "json"
	Source    string `yaml:"source"`

	RawDir  string `yaml:"raw_dir"`  // directory of raw CSV extracts
	FHIRDir string `yaml:"fhir_dir"` // directory of FHIR JSON bundles
	OutDir  string `yaml:"out_dir"`  // report export destination
}

// yamlConfig is the on-disk YAML structure.
type yamlConfig struct {
	Source  string `yaml:"source"`
	RawDir  string `yaml:"raw_dir"`
	FHIRDir string `yaml:"fhir_dir"`
	OutDir  string `yaml:"out_dir"`
}

// LoadFromFile reads a YAML config file and merges its non-empty values
// into Config. Flag values already set take precedence over the file.
func (c *Config) LoadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var yc yamlConfig
	if err := yaml.Unmarshal(data, &yc); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	if c.Source == "" {
		c.Source = yc.Source
	}
	if c.RawDir == "" {
		c.RawDir = yc.RawDir
	}
	if c.FHIRDir == "" {
		c.FHIRDir = yc.FHIRDir
	}
	if c.OutDir == "" {
		c.OutDir = yc.OutDir
	}
	if c.Source != "" {
		if _, err := ParseSource(c.Source); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks the source selector, defaulting to csv when unset.
func (c *Config) Validate() error {
	if c.Source == "" {
		c.Source = string(SourceCSV)
	}
	_, err := ParseSource(c.Source)
	return err
}

// ValidateWithDSN checks both the source selector and the DSN.
func (c *Config) ValidateWithDSN() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.DSN == "" {
		return fmt.Errorf("--dsn or DATABASE_URL is required")
	}
	return nil
}
