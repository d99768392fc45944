package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
)

var logLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

// Validate enforces config invariants and returns non-fatal warnings.
func Validate(cfg Config) ([]Warning, error) {
	warnings := make([]Warning, 0)

	rawURL := strings.TrimSpace(cfg.Backend.URL)
	if rawURL == "" {
		return nil, fmt.Errorf("backend.url must not be empty")
	}
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return nil, fmt.Errorf("backend.url must be an absolute URL, got %q", rawURL)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("backend.url scheme must be http or https")
	}
	if parsed.Scheme == "http" && !isLoopback(parsed.Hostname()) {
		warnings = append(warnings, Warning{Message: fmt.Sprintf("backend.url %q is plain http to a non-local host", rawURL)})
	}

	for key, path := range map[string]string{
		"backend.process_path":      cfg.Backend.ProcessPath,
		"backend.process_text_path": cfg.Backend.ProcessTextPath,
		"backend.health_path":       cfg.Backend.HealthPath,
	} {
		if strings.TrimSpace(path) == "" {
			return nil, fmt.Errorf("%s must not be empty", key)
		}
		if !strings.HasPrefix(path, "/") {
			return nil, fmt.Errorf("%s must start with '/'", key)
		}
	}
	if cfg.Backend.TimeoutMS <= 0 {
		return nil, fmt.Errorf("backend.timeout_ms must be > 0")
	}

	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode != "image" && mode != "text" {
		return nil, fmt.Errorf("mode must be one of: image, text")
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Capture.Backend)) {
	case CaptureBackendPortal:
		if cfg.Capture.Output != "" {
			warnings = append(warnings, Warning{Message: "capture.output is ignored when capture.backend=portal"})
		}
	case CaptureBackendGrim:
	default:
		return nil, fmt.Errorf("capture.backend must be one of: portal, grim")
	}

	backend := strings.ToLower(strings.TrimSpace(cfg.Indicator.Backend))
	if backend == "" {
		return nil, fmt.Errorf("indicator.backend must not be empty")
	}
	if backend != IndicatorBackendHypr && backend != IndicatorBackendDesktop {
		return nil, fmt.Errorf("indicator.backend must be one of: hypr, desktop")
	}
	if backend == IndicatorBackendDesktop && strings.TrimSpace(cfg.Indicator.DesktopAppName) == "" {
		return nil, fmt.Errorf("indicator.desktop_app_name must not be empty when indicator.backend=desktop")
	}
	if cfg.Indicator.ErrorTimeoutMS < 0 {
		return nil, fmt.Errorf("indicator.error_timeout_ms must be >= 0")
	}
	for key, path := range map[string]string{
		"indicator.sound_complete_file": cfg.Indicator.SoundCompleteFile,
		"indicator.sound_error_file":    cfg.Indicator.SoundErrorFile,
	} {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); err != nil {
			warnings = append(warnings, Warning{Message: fmt.Sprintf("%s %q is not readable; using synthesized cue", key, path)})
		}
	}

	if cfg.CopyCaption && len(cfg.Clipboard.Argv) == 0 {
		return nil, fmt.Errorf("clipboard_cmd must not be empty when copy_caption=true")
	}
	if !logLevels[strings.ToLower(strings.TrimSpace(cfg.LogLevel))] {
		return nil, fmt.Errorf("log_level must be one of: debug, info, warn, error")
	}

	return warnings, nil
}

func isLoopback(host string) bool {
	switch host {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	return strings.HasPrefix(host, "127.")
}
