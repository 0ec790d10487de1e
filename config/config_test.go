package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestDefaults(t *testing.T) {
	v := viper.New()
	if err := Init(v, t.TempDir()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if actual := v.GetInt(KeyMaxAttempts); actual != 3 {
		t.Errorf("expected 3 attempts, got %d", actual)
	}
	if actual := v.GetDuration(KeyBuildTimeout); actual != 30*time.Minute {
		t.Errorf("expected 30m timeout, got %v", actual)
	}
	if actual := v.GetString(KeyOutput); actual != "table" {
		t.Errorf("expected table output, got %q", actual)
	}
	if v.GetString(KeyNixpkgs) == "" {
		t.Error("expected a default nixpkgs ref")
	}
	if v.GetString(KeyImage) == "" {
		t.Error("expected a default runtime image")
	}
}

func TestEnvironmentOverridesDefaults(t *testing.T) {
	t.Setenv("FLAKEWRIGHT_MAX_ATTEMPTS", "5")
	t.Setenv("FLAKEWRIGHT_BUILD_TIMEOUT", "10m")
	v := viper.New()
	if err := Init(v, t.TempDir()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if actual := v.GetInt(KeyMaxAttempts); actual != 5 {
		t.Errorf("expected 5 attempts, got %d", actual)
	}
	if actual := v.GetDuration(KeyBuildTimeout); actual != 10*time.Minute {
		t.Errorf("expected 10m timeout, got %v", actual)
	}
}

func TestProjectConfigFile(t *testing.T) {
	dir := t.TempDir()
	data := "nixpkgs: github:NixOS/nixpkgs/nixos-unstable\nmax-attempts: 4\n"
	if err := os.WriteFile(filepath.Join(dir, ".flakewright.yaml"), []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	v := viper.New()
	if err := Init(v, dir); err != nil {
		t.Fatalf("Init: %v", err)
	}

	if actual := v.GetString(KeyNixpkgs); actual != "github:NixOS/nixpkgs/nixos-unstable" {
		t.Errorf("expected file nixpkgs ref, got %q", actual)
	}
	if actual := v.GetInt(KeyMaxAttempts); actual != 4 {
		t.Errorf("expected 4 attempts, got %d", actual)
	}
	// Keys the file does not set keep their defaults.
	if actual := v.GetDuration(KeyBuildTimeout); actual != 30*time.Minute {
		t.Errorf("expected 30m timeout, got %v", actual)
	}
}

func TestMalformedConfigFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".flakewright.yaml"), []byte("{not yaml"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := Init(viper.New(), dir); err == nil {
		t.Error("expected an error")
	}
}
