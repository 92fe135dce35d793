package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type sample struct {
	Name string `yaml:"name"`
	Port int    `yaml:"port"`
}

type validated struct {
	Name string `yaml:"name"`
}

func (v *validated) Validate() error {
	if v.Name == "" {
		return os.ErrInvalid
	}
	return nil
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadExpandsEnv(t *testing.T) {
	t.Setenv("TEST_CFG_NAME", "from-env")
	path := writeFile(t, "name: ${TEST_CFG_NAME}\nport: 9090\n")

	var cfg sample
	if err := Load(path, &cfg); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Name != "from-env" || cfg.Port != 9090 {
		t.Fatalf("got %+v", cfg)
	}
}

func TestLoadMissingFileKeepsDefaults(t *testing.T) {
	cfg := sample{Name: "default", Port: 8080}
	if err := Load(filepath.Join(t.TempDir(), "nope.yaml"), &cfg); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Name != "default" || cfg.Port != 8080 {
		t.Fatalf("defaults clobbered: %+v", cfg)
	}
}

func TestLoadRunsValidator(t *testing.T) {
	path := writeFile(t, "name: \"\"\n")
	var cfg validated
	err := Load(path, &cfg)
	if err == nil || !strings.Contains(err.Error(), "validation failed") {
		t.Fatalf("err = %v, want validation failure", err)
	}
}

func TestLoadStrictMissingFile(t *testing.T) {
	var cfg sample
	err := LoadStrict(filepath.Join(t.TempDir(), "nope.yaml"), &cfg)
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("err = %v, want not found", err)
	}
}
