package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix namespaces every environment override (SAYSHOT_BACKEND_URL, ...).
const EnvPrefix = "sayshot"

// envOverrides mirrors the config keys that may be set from the environment.
// Unset variables leave the file value untouched.
type envOverrides struct {
	BackendURL       *string `split_words:"true"`
	BackendTimeoutMS *int    `split_words:"true"`
	Translate        *bool
	Mode             *string
	CaptureBackend   *string `split_words:"true"`
	CaptureOutput    *string `split_words:"true"`
	IndicatorEnable  *bool   `split_words:"true"`
	IndicatorBackend *string `split_words:"true"`
	PlaybackEnable   *bool   `split_words:"true"`
	PlaybackSink     *string `split_words:"true"`
	ClipboardCmd     *string `split_words:"true"`
	CopyCaption      *bool   `split_words:"true"`
	LogLevel         *string `split_words:"true"`
}

// loadDotEnv reads an optional .env file from dotenvPath without replacing
// variables already present in the process environment.
func loadDotEnv(dotenvPath string) []Warning {
	if err := godotenv.Load(dotenvPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return []Warning{{Message: fmt.Sprintf("ignoring %s: %v", dotenvPath, err)}}
	}
	return nil
}

// applyEnv overlays SAYSHOT_* variables onto cfg.
func applyEnv(cfg *Config) error {
	var env envOverrides
	if err := envconfig.Process(EnvPrefix, &env); err != nil {
		return fmt.Errorf("environment overrides: %w", err)
	}

	setString(&cfg.Backend.URL, env.BackendURL)
	if env.BackendTimeoutMS != nil {
		cfg.Backend.TimeoutMS = *env.BackendTimeoutMS
	}
	if env.Translate != nil {
		cfg.Translate = *env.Translate
	}
	setString(&cfg.Mode, env.Mode)
	setString(&cfg.Capture.Backend, env.CaptureBackend)
	setString(&cfg.Capture.Output, env.CaptureOutput)
	if env.IndicatorEnable != nil {
		cfg.Indicator.Enable = *env.IndicatorEnable
	}
	setString(&cfg.Indicator.Backend, env.IndicatorBackend)
	if env.PlaybackEnable != nil {
		cfg.Playback.Enable = *env.PlaybackEnable
	}
	setString(&cfg.Playback.Sink, env.PlaybackSink)
	if env.ClipboardCmd != nil {
		cmd, err := parseCommand(EnvPrefix+"_CLIPBOARD_CMD", *env.ClipboardCmd)
		if err != nil {
			return err
		}
		cfg.Clipboard = cmd
	}
	if env.CopyCaption != nil {
		cfg.CopyCaption = *env.CopyCaption
	}
	setString(&cfg.LogLevel, env.LogLevel)
	return nil
}
