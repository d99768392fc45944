package doctor

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rbright/sayshot/internal/audio"
	"github.com/rbright/sayshot/internal/config"
	"github.com/stretchr/testify/require"
)

func TestReportOKAndString(t *testing.T) {
	report := Report{Checks: []Check{
		{Name: "one", Pass: true, Message: "good"},
		{Name: "two", Pass: false, Message: "bad"},
	}}

	require.False(t, report.OK())
	text := report.String()
	require.Contains(t, text, "[OK] one: good")
	require.Contains(t, text, "[FAIL] two: bad")
}

func TestReportOKAllPassing(t *testing.T) {
	report := Report{Checks: []Check{{Name: "one", Pass: true}, {Name: "two", Pass: true}}}
	require.True(t, report.OK())
}

func TestCheckEnv(t *testing.T) {
	t.Setenv("TEST_DOCTOR_ENV", "wayland")

	check := checkEnv(
		"TEST_DOCTOR_ENV",
		func(v string) bool { return strings.EqualFold(v, "wayland") },
		"looks good",
		"unexpected",
	)

	require.True(t, check.Pass)
	require.Equal(t, "looks good", check.Message)
}

func TestCheckCommandEmpty(t *testing.T) {
	check := checkCommand(nil, "clipboard_cmd")
	require.False(t, check.Pass)
	require.Contains(t, check.Message, "command is empty")
}

func TestCheckBinaryFound(t *testing.T) {
	check := checkBinary("sh", "shell available")
	require.True(t, check.Pass)
	require.Contains(t, check.Message, "shell available")
}

func TestCheckBinaryMissing(t *testing.T) {
	check := checkBinary("definitely-not-a-real-binary", "unused")
	require.False(t, check.Pass)
	require.Contains(t, check.Message, "binary not found")
}

func TestCheckCommandUsesBinaryFromPath(t *testing.T) {
	dir := t.TempDir()
	scriptPath := filepath.Join(dir, "fake-bin")
	require.NoError(t, os.WriteFile(scriptPath, []byte("#!/usr/bin/env bash\nexit 0\n"), 0o755))
	t.Setenv("PATH", dir+":"+os.Getenv("PATH"))

	check := checkCommand([]string{"fake-bin", "--arg"}, "clipboard_cmd")
	require.True(t, check.Pass)
	require.Contains(t, check.Message, "clipboard_cmd command is available")
}

func TestCheckBackendHealthSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/health", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"healthy","vision":"up","tts":"up"}`))
	}))
	t.Cleanup(server.Close)

	cfg := config.Default()
	cfg.Backend.URL = server.URL

	check := checkBackendHealth(context.Background(), cfg)
	require.True(t, check.Pass)
	require.Contains(t, check.Message, "healthy at")
	require.Contains(t, check.Message, "2 service entries")
}

func TestCheckBackendHealthFailureStatusCode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(server.Close)

	cfg := config.Default()
	cfg.Backend.URL = server.URL

	check := checkBackendHealth(context.Background(), cfg)
	require.False(t, check.Pass)
	require.Contains(t, check.Message, "HTTP 503")
}

func TestCheckBackendHealthEmptyBaseURL(t *testing.T) {
	cfg := config.Default()
	cfg.Backend.URL = ""

	check := checkBackendHealth(context.Background(), cfg)
	require.False(t, check.Pass)
	require.Contains(t, check.Message, "backend url is empty")
}

func TestCheckPlaybackSinkReportsFallback(t *testing.T) {
	probe := func(context.Context, string) (audio.Selection, error) {
		return audio.Selection{Sink: audio.Sink{ID: "alsa_output.pci"}, Warning: "playback.sink \"usb\" is muted"}, nil
	}

	check := checkPlaybackSink(context.Background(), probe, "usb")
	require.True(t, check.Pass)
	require.Contains(t, check.Message, `selected "alsa_output.pci"`)
	require.Contains(t, check.Message, "muted")
}

func TestCheckPlaybackSinkFailureWithInvalidPulseServer(t *testing.T) {
	t.Setenv("PULSE_SERVER", "unix:/tmp/definitely-missing-pulse-server")

	check := checkPlaybackSink(context.Background(), audio.SelectSink, "")
	require.False(t, check.Pass)
	require.Equal(t, "playback.sink", check.Name)
}

func TestRunWithGrimBackendChecksBinariesNotPortal(t *testing.T) {
	binDir := t.TempDir()
	for _, bin := range []string{"grim", "hyprctl", "wl-copy"} {
		require.NoError(t, os.WriteFile(filepath.Join(binDir, bin), []byte("#!/usr/bin/env sh\nexit 0\n"), 0o755))
	}
	t.Setenv("PATH", binDir+":"+os.Getenv("PATH"))
	t.Setenv("XDG_SESSION_TYPE", "wayland")
	t.Setenv("HYPRLAND_INSTANCE_SIGNATURE", "abc123")

	cfg := config.Default()
	cfg.Capture.Backend = config.CaptureBackendGrim
	cfg.Playback.Enable = false
	cfg.Backend.URL = ""

	portalCalled := false
	report := Run(context.Background(), config.Loaded{Path: "/tmp/config.jsonc", Exists: true, Config: cfg}, Probes{
		Portal: func(context.Context) error { portalCalled = true; return nil },
	})

	names := checkNames(report)
	require.False(t, portalCalled)
	require.Contains(t, names, "grim")
	require.Contains(t, names, "hyprctl")
	require.Contains(t, names, "wl-copy")
	require.NotContains(t, names, "playback.sink")
	require.Equal(t, `loaded "/tmp/config.jsonc"`, report.Checks[0].Message)
	require.False(t, report.OK())
}

func TestRunWithPortalDesktopSkipsHyprChecks(t *testing.T) {
	t.Setenv("XDG_SESSION_TYPE", "wayland")

	cfg := config.Default()
	cfg.Indicator.Backend = config.IndicatorBackendDesktop
	cfg.CopyCaption = false
	cfg.Backend.URL = ""

	report := Run(context.Background(), config.Loaded{Path: "/tmp/missing.jsonc", Config: cfg}, Probes{
		Portal: func(context.Context) error { return errors.New("portal missing") },
		Sink: func(context.Context, string) (audio.Selection, error) {
			return audio.Selection{Sink: audio.Sink{ID: "default-sink"}}, nil
		},
	})

	names := checkNames(report)
	require.NotContains(t, names, "HYPRLAND_INSTANCE_SIGNATURE")
	require.NotContains(t, names, "hyprctl")
	require.NotContains(t, names, "clipboard_cmd")
	require.Contains(t, report.Checks[0].Message, "using defaults")

	for _, check := range report.Checks {
		switch check.Name {
		case "capture.portal":
			require.False(t, check.Pass)
			require.Equal(t, "portal missing", check.Message)
		case "playback.sink":
			require.True(t, check.Pass)
		}
	}
}

func checkNames(report Report) []string {
	names := make([]string, 0, len(report.Checks))
	for _, check := range report.Checks {
		names = append(names, check.Name)
	}
	return names
}
