package config

import (
	"encoding/json"
	"strings"
)

type jsoncConfig struct {
	Backend   *jsoncBackend   `json:"backend"`
	Translate *bool           `json:"translate"`
	Mode      *string         `json:"mode"`
	Capture   *jsoncCapture   `json:"capture"`
	Indicator *jsoncIndicator `json:"indicator"`
	Playback  *jsoncPlayback  `json:"playback"`

	ClipboardCmd *string `json:"clipboard_cmd"`
	CopyCaption  *bool   `json:"copy_caption"`
	LogLevel     *string `json:"log_level"`
}

type jsoncBackend struct {
	URL             *string `json:"url"`
	ProcessPath     *string `json:"process_path"`
	ProcessTextPath *string `json:"process_text_path"`
	HealthPath      *string `json:"health_path"`
	TimeoutMS       *int    `json:"timeout_ms"`
}

type jsoncCapture struct {
	Backend     *string `json:"backend"`
	Output      *string `json:"output"`
	Interactive *bool   `json:"interactive"`
}

type jsoncIndicator struct {
	Enable            *bool   `json:"enable"`
	Backend           *string `json:"backend"`
	DesktopAppName    *string `json:"desktop_app_name"`
	SoundEnable       *bool   `json:"sound_enable"`
	SoundCompleteFile *string `json:"sound_complete_file"`
	SoundErrorFile    *string `json:"sound_error_file"`
	ErrorTimeoutMS    *int    `json:"error_timeout_ms"`
}

type jsoncPlayback struct {
	Enable *bool   `json:"enable"`
	Sink   *string `json:"sink"`
}

func parseJSONC(content string, base Config) (Config, []Warning, error) {
	normalized, err := normalizeJSONC(content)
	if err != nil {
		return Config{}, nil, err
	}

	decoder := json.NewDecoder(strings.NewReader(normalized))
	decoder.DisallowUnknownFields()

	var payload jsoncConfig
	if err := decoder.Decode(&payload); err != nil {
		return Config{}, nil, wrapJSONDecodeError(normalized, err)
	}
	if err := ensureSingleJSONValue(decoder); err != nil {
		return Config{}, nil, wrapJSONDecodeError(normalized, err)
	}

	cfg := base
	if err := payload.applyTo(&cfg); err != nil {
		return Config{}, nil, err
	}

	warnings, err := Validate(cfg)
	if err != nil {
		return Config{}, nil, err
	}
	return cfg, warnings, nil
}

func (payload jsoncConfig) applyTo(cfg *Config) error {
	if b := payload.Backend; b != nil {
		setString(&cfg.Backend.URL, b.URL)
		setString(&cfg.Backend.ProcessPath, b.ProcessPath)
		setString(&cfg.Backend.ProcessTextPath, b.ProcessTextPath)
		setString(&cfg.Backend.HealthPath, b.HealthPath)
		if b.TimeoutMS != nil {
			cfg.Backend.TimeoutMS = *b.TimeoutMS
		}
	}

	if payload.Translate != nil {
		cfg.Translate = *payload.Translate
	}
	setString(&cfg.Mode, payload.Mode)

	if c := payload.Capture; c != nil {
		setString(&cfg.Capture.Backend, c.Backend)
		setString(&cfg.Capture.Output, c.Output)
		if c.Interactive != nil {
			cfg.Capture.Interactive = *c.Interactive
		}
	}

	if ind := payload.Indicator; ind != nil {
		if ind.Enable != nil {
			cfg.Indicator.Enable = *ind.Enable
		}
		setString(&cfg.Indicator.Backend, ind.Backend)
		setString(&cfg.Indicator.DesktopAppName, ind.DesktopAppName)
		if ind.SoundEnable != nil {
			cfg.Indicator.SoundEnable = *ind.SoundEnable
		}
		setString(&cfg.Indicator.SoundCompleteFile, ind.SoundCompleteFile)
		setString(&cfg.Indicator.SoundErrorFile, ind.SoundErrorFile)
		if ind.ErrorTimeoutMS != nil {
			cfg.Indicator.ErrorTimeoutMS = *ind.ErrorTimeoutMS
		}
	}

	if p := payload.Playback; p != nil {
		if p.Enable != nil {
			cfg.Playback.Enable = *p.Enable
		}
		setString(&cfg.Playback.Sink, p.Sink)
	}

	if payload.ClipboardCmd != nil {
		cmd, err := parseCommand("clipboard_cmd", *payload.ClipboardCmd)
		if err != nil {
			return err
		}
		cfg.Clipboard = cmd
	}
	if payload.CopyCaption != nil {
		cfg.CopyCaption = *payload.CopyCaption
	}
	setString(&cfg.LogLevel, payload.LogLevel)

	return nil
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = strings.TrimSpace(*src)
	}
}
