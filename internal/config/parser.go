package config

import (
	"fmt"
	"strings"
)

// Parse reads JSONC configuration content onto base and validates the result.
// Empty content yields base unchanged.
func Parse(content string, base Config) (Config, []Warning, error) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		validatedWarnings, err := Validate(base)
		if err != nil {
			return Config{}, nil, err
		}
		return base, validatedWarnings, nil
	}

	if !strings.HasPrefix(trimmed, "{") && !strings.HasPrefix(trimmed, "//") && !strings.HasPrefix(trimmed, "/*") {
		return Config{}, nil, fmt.Errorf("config must be a JSONC object")
	}
	return parseJSONC(content, base)
}
