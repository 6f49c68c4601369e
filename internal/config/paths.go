package config

import (
	"os"
	"path/filepath"
)

// LooprPath returns the root directory for Loopr's user-level data. It
// uses $LOOPR_PATH if set, otherwise defaults to ~/.loopr.
func LooprPath() string {
	if v := os.Getenv("LOOPR_PATH"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".loopr")
	}
	return filepath.Join(home, ".loopr")
}

// ConfigPath returns the path to the user-home Global config document,
// the last entry in Load's search order.
func ConfigPath() string {
	return filepath.Join(LooprPath(), "config.jsonc")
}

// ProjectConfigPath returns the path to a project-local Global config
// document, checked before ConfigPath in Load's search order.
func ProjectConfigPath() string {
	return ".loopr.jsonc"
}

// DotenvPath returns the path to Loopr's .env file.
func DotenvPath() string {
	return filepath.Join(LooprPath(), ".env")
}
