// Package doctor runs runtime readiness diagnostics for config, tools, audio, and the backend.
package doctor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/rbright/sayshot/internal/audio"
	"github.com/rbright/sayshot/internal/config"
	"github.com/rbright/sayshot/internal/orchestrator"
)

const portalBusName = "org.freedesktop.portal.Desktop"

// Check is one doctor assertion result.
type Check struct {
	Name    string
	Pass    bool
	Message string
}

// Report is the full doctor output contract.
type Report struct {
	Checks []Check
}

// OK returns true when all checks pass.
func (r Report) OK() bool {
	for _, check := range r.Checks {
		if !check.Pass {
			return false
		}
	}
	return true
}

// String renders the report as user-facing text output.
func (r Report) String() string {
	var b strings.Builder
	for _, check := range r.Checks {
		status := "OK"
		if !check.Pass {
			status = "FAIL"
		}
		fmt.Fprintf(&b, "[%s] %s: %s\n", status, check.Name, check.Message)
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// Probes are the live environment lookups doctor relies on.
type Probes struct {
	Portal func(context.Context) error
	Sink   func(context.Context, string) (audio.Selection, error)
}

// DefaultProbes talks to the real session bus and Pulse server.
func DefaultProbes() Probes {
	return Probes{Portal: portalReachable, Sink: audio.SelectSink}
}

// Run executes environment/config/runtime checks for a loaded config.
func Run(ctx context.Context, cfg config.Loaded, probes Probes) Report {
	if probes.Portal == nil {
		probes.Portal = portalReachable
	}
	if probes.Sink == nil {
		probes.Sink = audio.SelectSink
	}

	checks := []Check{{
		Name:    "config",
		Pass:    true,
		Message: configMessage(cfg),
	}}

	checks = append(checks, checkEnv("XDG_SESSION_TYPE", func(v string) bool {
		return strings.EqualFold(strings.TrimSpace(v), "wayland")
	}, "session type is wayland", "expected XDG_SESSION_TYPE=wayland"))

	needsHypr := strings.EqualFold(cfg.Config.Indicator.Backend, config.IndicatorBackendHypr) ||
		strings.EqualFold(cfg.Config.Capture.Backend, config.CaptureBackendGrim)
	if needsHypr {
		checks = append(checks, checkEnv("HYPRLAND_INSTANCE_SIGNATURE", func(v string) bool {
			return strings.TrimSpace(v) != ""
		}, "Hyprland session detected", "HYPRLAND_INSTANCE_SIGNATURE is empty"))
		checks = append(checks, checkBinary("hyprctl", "compositor queries and notifications"))
	}

	switch strings.ToLower(cfg.Config.Capture.Backend) {
	case config.CaptureBackendGrim:
		checks = append(checks, checkBinary("grim", "wlroots screencopy capture"))
	default:
		checks = append(checks, checkPortal(ctx, probes.Portal))
	}

	if cfg.Config.CopyCaption {
		checks = append(checks, checkCommand(cfg.Config.Clipboard.Argv, "clipboard_cmd"))
	}
	if cfg.Config.Playback.Enable {
		checks = append(checks, checkPlaybackSink(ctx, probes.Sink, cfg.Config.Playback.Sink))
	}
	checks = append(checks, checkBackendHealth(ctx, cfg.Config))

	return Report{Checks: checks}
}

func configMessage(cfg config.Loaded) string {
	if !cfg.Exists {
		return fmt.Sprintf("%q not found; using defaults", cfg.Path)
	}
	return fmt.Sprintf("loaded %q", cfg.Path)
}

// checkEnv validates an environment variable through a caller-supplied predicate.
func checkEnv(name string, predicate func(string) bool, okMsg, failMsg string) Check {
	value := os.Getenv(name)
	if predicate(value) {
		return Check{Name: name, Pass: true, Message: okMsg}
	}
	return Check{Name: name, Pass: false, Message: failMsg}
}

// checkCommand validates that argv contains a runnable command.
func checkCommand(argv []string, name string) Check {
	if len(argv) == 0 {
		return Check{Name: name, Pass: false, Message: "command is empty"}
	}
	return checkBinary(argv[0], fmt.Sprintf("%s command is available", name))
}

// checkBinary validates that a binary exists in PATH.
func checkBinary(bin string, okMsg string) Check {
	path, err := exec.LookPath(bin)
	if err != nil {
		return Check{Name: bin, Pass: false, Message: fmt.Sprintf("binary not found in PATH: %s", bin)}
	}
	return Check{Name: bin, Pass: true, Message: fmt.Sprintf("found at %s (%s)", path, okMsg)}
}

func checkPortal(ctx context.Context, probe func(context.Context) error) Check {
	if err := probe(ctx); err != nil {
		return Check{Name: "capture.portal", Pass: false, Message: err.Error()}
	}
	return Check{Name: "capture.portal", Pass: true, Message: portalBusName + " is running"}
}

// portalReachable asks the session bus whether the desktop portal is running.
func portalReachable(ctx context.Context) error {
	probeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	conn, err := dbus.ConnectSessionBus(dbus.WithContext(probeCtx))
	if err != nil {
		return fmt.Errorf("connect session bus: %w", err)
	}
	defer conn.Close()

	var owned bool
	call := conn.BusObject().CallWithContext(probeCtx, "org.freedesktop.DBus.NameHasOwner", 0, portalBusName)
	if err := call.Store(&owned); err != nil {
		return fmt.Errorf("query %s: %w", portalBusName, err)
	}
	if !owned {
		return fmt.Errorf("%s has no owner; install xdg-desktop-portal", portalBusName)
	}
	return nil
}

// checkPlaybackSink runs live sink selection to surface fallback issues.
func checkPlaybackSink(ctx context.Context, probe func(context.Context, string) (audio.Selection, error), sink string) Check {
	selection, err := probe(ctx, sink)
	if err != nil {
		return Check{Name: "playback.sink", Pass: false, Message: err.Error()}
	}
	message := fmt.Sprintf("selected %q", selection.Sink.ID)
	if selection.Warning != "" {
		message = message + " (" + selection.Warning + ")"
	}
	return Check{Name: "playback.sink", Pass: true, Message: message}
}

// checkBackendHealth probes the orchestrator health endpoint.
func checkBackendHealth(ctx context.Context, cfg config.Config) Check {
	client, err := orchestrator.New(orchestrator.ConfigFrom(cfg.Backend), nil, nil)
	if err != nil {
		return Check{Name: "backend.health", Pass: false, Message: err.Error()}
	}

	url := strings.TrimRight(cfg.Backend.URL, "/") + cfg.Backend.HealthPath
	health, err := client.Health(ctx)
	if err != nil {
		return Check{Name: "backend.health", Pass: false, Message: fmt.Sprintf("%s: %v", url, err)}
	}

	message := fmt.Sprintf("%s at %s", health.Status, url)
	if len(health.Services) > 0 {
		message += fmt.Sprintf(" (%d service entries)", len(health.Services))
	}
	return Check{Name: "backend.health", Pass: true, Message: message}
}
