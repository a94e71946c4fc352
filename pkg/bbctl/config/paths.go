package config

import (
	"os"
	"path/filepath"
)

const (
	defaultConfigDirName = "bbctl"
	defaultConfigFile    = "config.yaml"
)

// DefaultConfigPath returns the config file location, honoring the
// BBCTL_CONFIG override.
func DefaultConfigPath() string {
	if env := os.Getenv("BBCTL_CONFIG"); env != "" {
		return env
	}
	return filepath.Join(DefaultConfigDir(), defaultConfigFile)
}

// DefaultConfigDir returns the directory holding the config file and,
// in fallback mode, the encrypted secret files.
func DefaultConfigDir() string {
	if env := os.Getenv("BBCTL_CONFIG"); env != "" {
		return filepath.Dir(env)
	}
	base, err := os.UserConfigDir()
	if err == nil {
		return filepath.Join(base, defaultConfigDirName)
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".bbctl")
}
