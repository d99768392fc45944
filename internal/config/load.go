package config

import (
	"errors"
	"fmt"
	"os"
)

// DotEnvPath is the optional dotenv file consulted before environment overrides.
var DotEnvPath = ".env"

// Loaded captures resolved config path, parsed values, and non-fatal warnings.
type Loaded struct {
	Path     string
	Config   Config
	Warnings []Warning
	Exists   bool
}

// Load resolves and parses the config file, overlays .env and SAYSHOT_*
// environment overrides, and validates the merged result.
func Load(explicitPath string) (Loaded, error) {
	resolvedPath, err := ResolvePath(explicitPath)
	if err != nil {
		return Loaded{}, err
	}

	loaded := Loaded{Path: resolvedPath, Config: Default()}

	content, err := os.ReadFile(resolvedPath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		loaded.Warnings = append(loaded.Warnings, Warning{
			Message: fmt.Sprintf("config file %q not found; using defaults", resolvedPath),
		})
	case err != nil:
		return Loaded{}, fmt.Errorf("read config %q: %w", resolvedPath, err)
	default:
		cfg, _, err := Parse(string(content), loaded.Config)
		if err != nil {
			return Loaded{}, fmt.Errorf("parse config %q: %w", resolvedPath, err)
		}
		loaded.Config = cfg
		loaded.Exists = true
	}

	loaded.Warnings = append(loaded.Warnings, loadDotEnv(DotEnvPath)...)
	if err := applyEnv(&loaded.Config); err != nil {
		return Loaded{}, err
	}

	warnings, err := Validate(loaded.Config)
	if err != nil {
		return Loaded{}, err
	}
	loaded.Warnings = append(loaded.Warnings, warnings...)
	return loaded, nil
}
