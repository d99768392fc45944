package config

// Capture backends.
const (
	CaptureBackendPortal = "portal"
	CaptureBackendGrim   = "grim"
)

// Indicator backends.
const (
	IndicatorBackendHypr    = "hypr"
	IndicatorBackendDesktop = "desktop"
)

// Default returns the canonical runtime configuration used when no file is present.
func Default() Config {
	return Config{
		Backend: BackendConfig{
			URL:             "http://127.0.0.1:3000",
			ProcessPath:     "/api/process",
			ProcessTextPath: "/api/process_text",
			HealthPath:      "/api/health",
			TimeoutMS:       120000,
		},
		Translate: false,
		Mode:      "image",
		Capture: CaptureConfig{
			Backend:     CaptureBackendPortal,
			Interactive: false,
		},
		Indicator: IndicatorConfig{
			Enable:         true,
			Backend:        IndicatorBackendHypr,
			DesktopAppName: "sayshot",
			SoundEnable:    true,
			ErrorTimeoutMS: 5000,
		},
		Playback:    PlaybackConfig{Enable: true},
		Clipboard:   CommandConfig{Raw: "wl-copy --trim-newline", Argv: []string{"wl-copy", "--trim-newline"}},
		CopyCaption: true,
		LogLevel:    "info",
	}
}
