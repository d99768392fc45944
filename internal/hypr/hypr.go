package hypr

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// Monitor is the subset of `hyprctl -j monitors` used for capture targeting.
type Monitor struct {
	Name    string  `json:"name"`
	Width   int     `json:"width"`
	Height  int     `json:"height"`
	Scale   float64 `json:"scale"`
	Focused bool    `json:"focused"`
}

// QueryMonitors lists the compositor outputs.
func QueryMonitors(ctx context.Context) ([]Monitor, error) {
	output, err := runHyprctlOutput(ctx, "-j", "monitors")
	if err != nil {
		return nil, err
	}

	var monitors []Monitor
	if err := json.Unmarshal(output, &monitors); err != nil {
		return nil, fmt.Errorf("decode hyprctl monitors json: %w", err)
	}
	for i := range monitors {
		monitors[i].Name = strings.TrimSpace(monitors[i].Name)
	}
	return monitors, nil
}

// QueryFocusedMonitor returns the focused monitor (or the first monitor fallback).
func QueryFocusedMonitor(ctx context.Context) (Monitor, error) {
	monitors, err := QueryMonitors(ctx)
	if err != nil {
		return Monitor{}, err
	}
	for _, mon := range monitors {
		if mon.Focused {
			return mon, nil
		}
	}
	if len(monitors) == 0 {
		return Monitor{}, fmt.Errorf("hyprctl monitors returned no outputs")
	}
	return monitors[0], nil
}

// Notification icons understood by `hyprctl dispatch notify`.
const (
	IconWarning = 0
	IconInfo    = 1
	IconHint    = 2
	IconError   = 3
	IconOK      = 5
)

// Notify sends a Hyprland notification payload.
func Notify(ctx context.Context, icon int, timeoutMS int, color string, text string) error {
	if strings.TrimSpace(color) == "" {
		color = "rgb(89b4fa)"
	}
	return runHyprctl(
		ctx,
		"--quiet",
		"dispatch",
		"notify",
		strconv.Itoa(icon),
		strconv.Itoa(timeoutMS),
		color,
		text,
	)
}

// DismissNotify dismisses active Hyprland notifications.
func DismissNotify(ctx context.Context) error {
	return runHyprctl(ctx, "--quiet", "dispatch", "dismissnotify")
}

func runHyprctl(ctx context.Context, args ...string) error {
	_, err := runHyprctlOutput(ctx, args...)
	return err
}

func runHyprctlOutput(ctx context.Context, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "hyprctl", args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		trimmed := strings.TrimSpace(string(out))
		if trimmed == "" {
			return nil, fmt.Errorf("hyprctl %v failed: %w", args, err)
		}
		return nil, fmt.Errorf("hyprctl %v failed: %w (%s)", args, err, trimmed)
	}
	return out, nil
}
