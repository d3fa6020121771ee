package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadFromFile_Valid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	os.WriteFile(path, []byte("source: fhir\nraw_dir: data/raw\n"), 0644)

	var c Config
	if err := c.LoadFromFile(path); err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}
	if c.Source != "fhir" {
		t.Errorf("Source: got %q, want fhir", c.Source)
	}
	if c.RawDir != "data/raw" {
		t.Errorf("RawDir: got %q, want data/raw", c.RawDir)
	}
}

func TestLoadFromFile_FlagWins(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	os.WriteFile(path, []byte("source: fhir\n"), 0644)

	c := Config{Source: "csv"}
	if err := c.LoadFromFile(path); err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}
	if c.Source != "csv" {
		t.Errorf("flag-set source should win, got %q", c.Source)
	}
}

func TestLoadFromFile_UnknownSource(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	os.WriteFile(path, []byte("source: hl7\n"), 0644)

	var c Config
	if err := c.LoadFromFile(path); err == nil {
		t.Fatal("expected error for unknown source")
	}
}

func TestLoadFromFile_MissingFile(t *testing.T) {
	var c Config
	if err := c.LoadFromFile("/nonexistent/config.yaml"); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestValidate_DefaultsToCSV(t *testing.T) {
	var c Config
	if err := c.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if c.Source != "csv" {
		t.Errorf("default source: got %q, want csv", c.Source)
	}
}

func TestValidateWithDSN_MissingDSN(t *testing.T) {
	c := Config{Source: "csv"}
	if err := c.ValidateWithDSN(); err == nil {
		t.Fatal("expected error for missing DSN")
	}
}
