// Package config resolves, parses, validates, and defaults sayshot configuration.
package config

import "time"

// Config is the fully materialized runtime configuration used by sayshot.
type Config struct {
	Backend     BackendConfig
	Translate   bool
	Mode        string
	Capture     CaptureConfig
	Indicator   IndicatorConfig
	Playback    PlaybackConfig
	Clipboard   CommandConfig
	CopyCaption bool
	LogLevel    string
}

// BackendConfig locates the orchestrator endpoints.
type BackendConfig struct {
	URL             string
	ProcessPath     string
	ProcessTextPath string
	HealthPath      string
	TimeoutMS       int
}

// Timeout returns the per-request budget as a duration.
func (b BackendConfig) Timeout() time.Duration {
	return time.Duration(b.TimeoutMS) * time.Millisecond
}

// CaptureConfig selects the screen-share backend.
type CaptureConfig struct {
	Backend     string
	Output      string
	Interactive bool
}

// IndicatorConfig controls visual indicator and audio cue behavior.
type IndicatorConfig struct {
	Enable            bool
	Backend           string
	DesktopAppName    string
	SoundEnable       bool
	SoundCompleteFile string
	SoundErrorFile    string
	ErrorTimeoutMS    int
}

// ErrorTimeout is how long an error banner stays up. Zero means the default 5s.
func (i IndicatorConfig) ErrorTimeout() time.Duration {
	if i.ErrorTimeoutMS <= 0 {
		return 5 * time.Second
	}
	return time.Duration(i.ErrorTimeoutMS) * time.Millisecond
}

// PlaybackConfig controls how synthesized captions are played.
type PlaybackConfig struct {
	Enable bool
	Sink   string
}

// CommandConfig stores a raw command string and its parsed argv form.
type CommandConfig struct {
	Raw  string
	Argv []string
}

// Warning is a non-fatal parse/validation message.
type Warning struct {
	Line    int
	Message string
}
