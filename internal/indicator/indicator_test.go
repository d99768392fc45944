package indicator

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rbright/sayshot/internal/audio"
	"github.com/rbright/sayshot/internal/config"
	"github.com/stretchr/testify/require"
)

type fakeBus struct {
	mu     sync.Mutex
	nextID uint32
	sent   []desktopNotification
	closed []uint32
	err    error
}

func (f *fakeBus) Notify(_ context.Context, n desktopNotification) (uint32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	f.sent = append(f.sent, n)
	if n.ReplaceID != 0 {
		return n.ReplaceID, nil
	}
	f.nextID++
	return f.nextID, nil
}

func (f *fakeBus) Close(_ context.Context, id uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = append(f.closed, id)
	return nil
}

type fakeCuePlayer struct {
	mu    sync.Mutex
	clips []audio.Clip
}

func (f *fakeCuePlayer) Play(_ context.Context, clip audio.Clip) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clips = append(f.clips, clip)
	return nil
}

func (f *fakeCuePlayer) played() []audio.Clip {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]audio.Clip(nil), f.clips...)
}

func TestNotifierHyprDispatch(t *testing.T) {
	argsFile := filepath.Join(t.TempDir(), "hypr-args.log")
	t.Setenv("HYPR_ARGS_FILE", argsFile)
	installHyprctlStub(t, `
printf '%s\n' "$*" >> "${HYPR_ARGS_FILE}"
`)

	cfg := config.Default().Indicator
	cfg.SoundEnable = false

	notify := New(cfg, &fakeCuePlayer{}, nil)
	notify.ShowProcessing(context.Background(), "Analyzing image...")
	notify.ShowError(context.Background(), "")
	notify.Hide(context.Background())

	data, err := os.ReadFile(argsFile)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Equal(t, []string{
		"--quiet dispatch dismissnotify",
		"--quiet dispatch notify 1 300000 rgb(cba6f7) Analyzing image...",
		"--quiet dispatch dismissnotify",
		"--quiet dispatch notify 3 5000 rgb(f38ba8) Something went wrong",
		"--quiet dispatch dismissnotify",
	}, lines)
}

func TestNotifierShowErrorUsesProvidedTextAndDefaultTimeout(t *testing.T) {
	argsFile := filepath.Join(t.TempDir(), "hypr-args.log")
	t.Setenv("HYPR_ARGS_FILE", argsFile)
	installHyprctlStub(t, `
if [[ "${3:-}" == "notify" ]]; then
  printf '%s\n' "$*" >> "${HYPR_ARGS_FILE}"
fi
`)

	cfg := config.Default().Indicator
	cfg.SoundEnable = false
	cfg.ErrorTimeoutMS = 0

	notify := New(cfg, &fakeCuePlayer{}, nil)
	notify.ShowError(context.Background(), "Server error: 500")

	data, err := os.ReadFile(argsFile)
	require.NoError(t, err)
	require.Equal(t, "--quiet dispatch notify 3 5000 rgb(f38ba8) Server error: 500\n", string(data))
}

func TestNotifierDisabledSkipsHyprctlDispatch(t *testing.T) {
	argsFile := filepath.Join(t.TempDir(), "hypr-args.log")
	t.Setenv("HYPR_ARGS_FILE", argsFile)
	installHyprctlStub(t, `
printf '%s\n' "$*" >> "${HYPR_ARGS_FILE}"
`)

	cfg := config.Default().Indicator
	cfg.Enable = false
	cfg.SoundEnable = false

	notify := New(cfg, &fakeCuePlayer{}, nil)
	notify.ShowProcessing(context.Background(), "Capturing screenshot...")
	notify.ShowError(context.Background(), "ignored")
	notify.Hide(context.Background())

	_, err := os.Stat(argsFile)
	require.True(t, os.IsNotExist(err))
}

func TestNotifierDesktopReplacesAndClosesNotification(t *testing.T) {
	cfg := config.Default().Indicator
	cfg.Backend = config.IndicatorBackendDesktop
	cfg.DesktopAppName = "sayshot-test"
	cfg.SoundEnable = false

	bus := &fakeBus{}
	notify := New(cfg, &fakeCuePlayer{}, nil)
	notify.desktop = bus

	notify.ShowProcessing(context.Background(), "Capturing screenshot...")
	notify.ShowProcessing(context.Background(), "Analyzing image...")
	notify.ShowError(context.Background(), "Screen capture permission denied.")
	notify.Hide(context.Background())
	notify.Hide(context.Background())

	require.Len(t, bus.sent, 3)
	require.Equal(t, uint32(0), bus.sent[0].ReplaceID)
	require.Equal(t, uint32(1), bus.sent[1].ReplaceID)
	require.Equal(t, "Analyzing image...", bus.sent[1].Body)
	require.Equal(t, "sayshot-test", bus.sent[2].AppName)
	require.Equal(t, int32(5000), bus.sent[2].TimeoutMS)
	require.Equal(t, []uint32{1}, bus.closed)
}

func TestNotifierDesktopErrorExpiresWithConfiguredTimeout(t *testing.T) {
	cfg := config.Default().Indicator
	cfg.Backend = config.IndicatorBackendDesktop
	cfg.SoundEnable = false
	cfg.ErrorTimeoutMS = 2500

	bus := &fakeBus{}
	notify := New(cfg, &fakeCuePlayer{}, nil)
	notify.desktop = bus

	notify.ShowProcessing(context.Background(), "")
	notify.ShowError(context.Background(), "")

	require.Len(t, bus.sent, 2)
	for _, sent := range bus.sent {
		require.Equal(t, urgencyNormal, sent.Urgency)
	}
	require.Equal(t, defaultMessages.processing, bus.sent[0].Body)
	require.Equal(t, defaultMessages.errorText, bus.sent[1].Body)
	require.Equal(t, defaultMessages.summary, bus.sent[1].Summary)
	require.Equal(t, int32(2500), bus.sent[1].TimeoutMS)
}

func TestNotifierDesktopFailureIsSwallowed(t *testing.T) {
	cfg := config.Default().Indicator
	cfg.Backend = config.IndicatorBackendDesktop
	cfg.SoundEnable = false

	notify := New(cfg, &fakeCuePlayer{}, nil)
	notify.desktop = &fakeBus{err: errors.New("no notification daemon")}

	notify.ShowError(context.Background(), "boom")
	notify.Hide(context.Background())
}

func TestNotifierCuesUseSynthesizedTones(t *testing.T) {
	cfg := config.Default().Indicator
	cfg.Enable = false

	player := &fakeCuePlayer{}
	notify := New(cfg, player, nil)

	ctx, cancel := context.WithCancel(context.Background())
	notify.CueComplete(ctx)
	notify.CueError(ctx)
	cancel()
	notify.Wait()

	clips := player.played()
	require.Len(t, clips, 2)
	for _, clip := range clips {
		require.Equal(t, cueSampleRate, clip.SampleRate)
		require.Equal(t, 1, clip.Channels)
		require.NotEmpty(t, clip.Samples)
	}
}

func TestNotifierCuePrefersConfiguredFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "done.wav")
	want := audio.Clip{SampleRate: 44100, Channels: 2, Samples: []int16{1, -1, 2, -2}}
	require.NoError(t, os.WriteFile(path, audio.EncodeWAV(want), 0o600))

	cfg := config.Default().Indicator
	cfg.SoundCompleteFile = path
	cfg.SoundErrorFile = filepath.Join(t.TempDir(), "missing.wav")

	player := &fakeCuePlayer{}
	notify := New(cfg, player, nil)
	notify.CueComplete(context.Background())
	notify.Wait()
	notify.CueError(context.Background())
	notify.Wait()

	clips := player.played()
	require.Len(t, clips, 2)
	require.Equal(t, want, clips[0])
	require.Equal(t, errorCuePCM, clips[1].Samples)
}

func TestNotifierSoundDisabledSkipsCues(t *testing.T) {
	cfg := config.Default().Indicator
	cfg.SoundEnable = false

	player := &fakeCuePlayer{}
	notify := New(cfg, player, nil)
	notify.CueComplete(context.Background())
	notify.CueError(context.Background())
	notify.Wait()

	require.Empty(t, player.played())
}

func TestCueSamplesPresent(t *testing.T) {
	require.NotEmpty(t, cueSamples(cueComplete))
	require.NotEmpty(t, cueSamples(cueError))
	require.Nil(t, cueSamples(cueKind(99)))
}

func TestSynthesizeToneDuration(t *testing.T) {
	got := synthesizeTone(toneSpec{frequencyHz: 440, duration: 100 * time.Millisecond, volume: 0.2})
	require.Len(t, got, samplesForDuration(100*time.Millisecond))
	require.Zero(t, got[0])
}

func TestSynthesizeToneInvalidSpecReturnsEmpty(t *testing.T) {
	require.Empty(t, synthesizeTone(toneSpec{frequencyHz: 0, duration: 100 * time.Millisecond, volume: 0.2}))
	require.Empty(t, synthesizeTone(toneSpec{frequencyHz: 440, duration: 0, volume: 0.2}))
	require.Empty(t, synthesizeTone(toneSpec{frequencyHz: 440, duration: 100 * time.Millisecond, volume: 0}))
}

func TestSynthesizeCueInsertsGapBetweenTones(t *testing.T) {
	parts := []toneSpec{
		{frequencyHz: 440, duration: 10 * time.Millisecond, volume: 0.2},
		{frequencyHz: 880, duration: 10 * time.Millisecond, volume: 0.2},
	}
	got := synthesizeCue(parts)
	want := 2*samplesForDuration(10*time.Millisecond) + samplesForDuration(22*time.Millisecond)
	require.Len(t, got, want)
}

func TestExpandUserPath(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	require.Equal(t, "", expandUserPath("  "))
	require.Equal(t, home, expandUserPath("~"))
	require.Equal(t, filepath.Join(home, "cues", "done.wav"), expandUserPath("~/cues/done.wav"))
	require.Equal(t, "/abs/done.wav", expandUserPath("/abs/done.wav"))
}

func installHyprctlStub(t *testing.T, body string) {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "hyprctl")
	script := "#!/usr/bin/env bash\nset -euo pipefail\n" + body + "\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	t.Setenv("PATH", dir+":"+os.Getenv("PATH"))
}
