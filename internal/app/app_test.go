package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rbright/sayshot/internal/audio"
	"github.com/rbright/sayshot/internal/classify"
	"github.com/rbright/sayshot/internal/doctor"
	"github.com/rbright/sayshot/internal/fsm"
	"github.com/rbright/sayshot/internal/ipc"
	"github.com/rbright/sayshot/internal/orchestrator"
	"github.com/rbright/sayshot/internal/session"
	"github.com/rbright/sayshot/internal/steps"
	"github.com/stretchr/testify/require"
)

func TestExecuteHelp(t *testing.T) {
	var stdout bytes.Buffer
	var stderr bytes.Buffer

	exitCode := Execute(context.Background(), []string{"--help"}, &stdout, &stderr)
	require.Equal(t, 0, exitCode)
	require.Contains(t, stdout.String(), "Usage:")
	require.Empty(t, stderr.String())
}

func TestExecuteVersion(t *testing.T) {
	var stdout bytes.Buffer
	var stderr bytes.Buffer

	exitCode := Execute(context.Background(), []string{"version"}, &stdout, &stderr)
	require.Equal(t, 0, exitCode)
	require.Contains(t, stdout.String(), "sayshot")
	require.Empty(t, stderr.String())
}

func TestExecuteUnknownCommand(t *testing.T) {
	var stdout bytes.Buffer
	var stderr bytes.Buffer

	exitCode := Execute(context.Background(), []string{"definitely-not-a-command"}, &stdout, &stderr)
	require.Equal(t, 2, exitCode)
	require.Contains(t, stderr.String(), "unknown command")
	require.Contains(t, stderr.String(), "Usage:")
}

func TestExecuteInvalidConfigFails(t *testing.T) {
	paths := setupRunnerEnv(t, `{"mode": "video"}`)

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	runner := Runner{Stdout: &stdout, Stderr: &stderr}

	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "status"})
	require.Equal(t, 1, exitCode)
	require.Contains(t, stderr.String(), "mode")
}

func TestRunnerStatusIdleWhenSocketUnavailable(t *testing.T) {
	paths := setupRunnerEnv(t, "")

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	runner := Runner{Stdout: &stdout, Stderr: &stderr}

	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "status"})
	require.Equal(t, 0, exitCode)
	require.Equal(t, "idle\n", stdout.String())
	require.Empty(t, stderr.String())
}

func TestRunnerStatusPrintsOwnerState(t *testing.T) {
	paths := setupRunnerEnv(t, "")

	shutdown := startIPCServerForRunnerTest(t, paths.socketPath(), func(_ context.Context, req ipc.Request) ipc.Response {
		require.Equal(t, ipc.CommandStatus, req.Command)
		return ipc.Response{OK: true, State: "running", Message: "mode=image translate=false step=analyze"}
	})
	defer shutdown()

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	runner := Runner{Stdout: &stdout, Stderr: &stderr}

	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "status"})
	require.Equal(t, 0, exitCode)
	require.Equal(t, "running mode=image translate=false step=analyze\n", stdout.String())
}

func TestRunnerStatusFallsBackToIdleWhenServerStateEmpty(t *testing.T) {
	paths := setupRunnerEnv(t, "")

	shutdown := startIPCServerForRunnerTest(t, paths.socketPath(), func(_ context.Context, req ipc.Request) ipc.Response {
		require.Equal(t, "status", req.Command)
		return ipc.Response{OK: true, State: ""}
	})
	defer shutdown()

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	runner := Runner{Stdout: &stdout, Stderr: &stderr}

	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "status"})
	require.Equal(t, 0, exitCode)
	require.Equal(t, "idle\n", stdout.String())
	require.Empty(t, stderr.String())
}

func TestRunnerForwardsRunsToSocketOwner(t *testing.T) {
	paths := setupRunnerEnv(t, "")
	requests := make(chan ipc.Request, 4)

	shutdown := startIPCServerForRunnerTest(t, paths.socketPath(), func(_ context.Context, req ipc.Request) ipc.Response {
		requests <- req
		return ipc.Response{OK: true, State: "running", Message: "run started"}
	})
	defer shutdown()

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	runner := Runner{Stdout: &stdout, Stderr: &stderr}

	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "--translate", "say", "Hello", "world"})
	require.Equal(t, 0, exitCode, stderr.String())
	require.Equal(t, "run started\n", stdout.String())

	req := <-requests
	require.Equal(t, ipc.CommandSay, req.Command)
	require.Equal(t, "Hello world", req.Text)
	require.NotNil(t, req.Translate)
	require.True(t, *req.Translate)

	stdout.Reset()
	exitCode = runner.Execute(context.Background(), []string{"--config", paths.configPath, "capture"})
	require.Equal(t, 0, exitCode, stderr.String())

	req = <-requests
	require.Equal(t, ipc.CommandCapture, req.Command)
	require.Nil(t, req.Translate)
}

func TestRunnerForwardReportsOwnerRejection(t *testing.T) {
	paths := setupRunnerEnv(t, "")

	shutdown := startIPCServerForRunnerTest(t, paths.socketPath(), func(context.Context, ipc.Request) ipc.Response {
		return ipc.Response{OK: false, State: "running", Error: session.ErrRunInProgress.Error()}
	})
	defer shutdown()

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	runner := Runner{Stdout: &stdout, Stderr: &stderr}

	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "capture"})
	require.Equal(t, 1, exitCode)
	require.Contains(t, stderr.String(), "a run is already in progress")
}

func TestRunnerSayOwnerPathPrintsCaption(t *testing.T) {
	var gotPath string
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.RequestURI()
		w.Header().Set(orchestrator.HeaderCaption, "Hallo Welt")
		w.Header().Set(orchestrator.HeaderOriginal, "Hello world")
		w.Header().Set(orchestrator.HeaderTranslated, "true")
		w.Header().Set("Content-Type", "audio/wav")
		_, _ = w.Write(audio.EncodeWAV(audio.Clip{SampleRate: 16000, Channels: 1, Samples: []int16{0, 1, 2}}))
	}))
	defer backend.Close()

	paths := setupRunnerEnv(t, quietConfig(backend.URL))

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	runner := Runner{Stdout: &stdout, Stderr: &stderr}

	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "--translate", "say", "Hello", "world"})
	require.Equal(t, 0, exitCode, stderr.String())
	require.Equal(t, "Hallo Welt\noriginal: Hello world\n", stdout.String())
	require.Equal(t, "/api/process_text?translate=true", gotPath)

	_, statErr := os.Stat(paths.socketPath())
	require.ErrorIs(t, statErr, os.ErrNotExist)
	_, statErr = os.Stat(filepath.Join(paths.runtimeDir, "sayshot", "caption.wav"))
	require.NoError(t, statErr)
}

func TestRunnerSayOwnerPathReportsClassifiedFailure(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusGatewayTimeout)
	}))
	defer backend.Close()

	paths := setupRunnerEnv(t, quietConfig(backend.URL))

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	runner := Runner{Stdout: &stdout, Stderr: &stderr}

	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "say", "hi"})
	require.Equal(t, 1, exitCode)
	require.Contains(t, stderr.String(), classify.MsgGatewayTimeout)
	require.Empty(t, stdout.String())

	_, statErr := os.Stat(paths.socketPath())
	require.ErrorIs(t, statErr, os.ErrNotExist)
}

func TestRunnerHealthCommand(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/health", r.URL.Path)
		_, _ = fmt.Fprint(w, `{"status":"healthy","tts":"ready","vision":"loading"}`)
	}))
	defer backend.Close()

	paths := setupRunnerEnv(t, quietConfig(backend.URL))

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	runner := Runner{Stdout: &stdout, Stderr: &stderr}

	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "health"})
	require.Equal(t, 0, exitCode, stderr.String())
	require.Equal(t, "status=healthy http=200\n  tts: ready\n  vision: loading\n", stdout.String())
}

func TestRunnerHealthCommandFailsWhenBackendDown(t *testing.T) {
	backend := httptest.NewServer(http.NotFoundHandler())
	url := backend.URL
	backend.Close()

	paths := setupRunnerEnv(t, quietConfig(url))

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	runner := Runner{Stdout: &stdout, Stderr: &stderr}

	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "health"})
	require.Equal(t, 1, exitCode)
	require.Contains(t, stderr.String(), "error:")
}

func TestRunnerDoctorCommandDispatchesAndPrintsReport(t *testing.T) {
	paths := setupRunnerEnv(t, "")
	t.Setenv("XDG_SESSION_TYPE", "x11")
	t.Setenv("HYPRLAND_INSTANCE_SIGNATURE", "")

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	runner := Runner{Stdout: &stdout, Stderr: &stderr, Probes: doctor.Probes{
		Portal: func(context.Context) error { return errors.New("no session bus") },
		Sink: func(context.Context, string) (audio.Selection, error) {
			return audio.Selection{Sink: audio.Sink{ID: "alsa_output.test", Default: true}}, nil
		},
	}}

	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "doctor"})
	require.Equal(t, 1, exitCode)
	require.Contains(t, stdout.String(), "config: loaded")
	require.Contains(t, stdout.String(), "XDG_SESSION_TYPE")
}

func TestRunnerSinksCommandDispatches(t *testing.T) {
	paths := setupRunnerEnv(t, "")
	t.Setenv("PULSE_SERVER", "unix:/tmp/definitely-missing-pulse-server")

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	runner := Runner{Stdout: &stdout, Stderr: &stderr}

	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "sinks"})
	require.Equal(t, 1, exitCode)
	require.Contains(t, stderr.String(), "error:")
}

func TestDispatcherStartsRunAndRejectsWhileBusy(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{}, 1)
	client := &blockingClient{release: release, entered: entered}
	controller := session.NewController(session.Deps{Client: client}, steps.ModeImage, false)

	outcomes := make(chan session.Outcome, 1)
	d := newDispatcher(context.Background(), controller, nil, func(out session.Outcome) { outcomes <- out })
	mux := d.Mux()

	translate := true
	resp := mux.Handle(context.Background(), ipc.Request{Command: ipc.CommandSay, Text: "Hello", Translate: &translate})
	require.True(t, resp.OK)
	require.Equal(t, "run started", resp.Message)
	require.Equal(t, "text", resp.Mode)

	<-entered
	busy := mux.Handle(context.Background(), ipc.Request{Command: ipc.CommandCapture})
	require.False(t, busy.OK)
	require.Equal(t, session.ErrRunInProgress.Error(), busy.Error)

	status := mux.Handle(context.Background(), ipc.Request{Command: ipc.CommandStatus})
	require.Equal(t, string(fsm.StateRunning), status.State)

	close(release)
	out := <-outcomes
	d.Wait()
	require.NoError(t, out.Err)
	require.True(t, out.Translate)
	require.Equal(t, "Hallo", out.Result.Caption)
}

func TestDispatcherRejectsBackToBackRequests(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{}, 2)
	client := &blockingClient{release: release, entered: entered}
	controller := session.NewController(session.Deps{Client: client}, steps.ModeText, false)

	outcomes := make(chan session.Outcome, 2)
	d := newDispatcher(context.Background(), controller, nil, func(out session.Outcome) { outcomes <- out })
	mux := d.Mux()

	translate := true
	first := mux.Handle(context.Background(), ipc.Request{Command: ipc.CommandSay, Text: "one"})
	second := mux.Handle(context.Background(), ipc.Request{Command: ipc.CommandSay, Text: "two", Translate: &translate})

	require.True(t, first.OK)
	require.Equal(t, "run started", first.Message)
	require.False(t, second.OK)
	require.Equal(t, session.ErrRunInProgress.Error(), second.Error)
	require.False(t, controller.Translate())

	close(release)
	d.Wait()
	close(outcomes)

	var got []session.Outcome
	for out := range outcomes {
		got = append(got, out)
	}
	require.Len(t, got, 1)
	require.NoError(t, got[0].Err)
	require.False(t, got[0].Translate)
	require.Len(t, entered, 1)
	require.False(t, controller.Running())
}

func TestDispatcherRejectsEmptySay(t *testing.T) {
	controller := session.NewController(session.Deps{}, steps.ModeText, false)
	d := newDispatcher(context.Background(), controller, nil, nil)

	resp := d.Mux().Handle(context.Background(), ipc.Request{Command: ipc.CommandSay, Text: "  "})
	require.False(t, resp.OK)
	require.Equal(t, session.MsgEmptyText, resp.Error)
	require.False(t, controller.Running())
}

func TestLogRunOutcomeWritesFailureAndSuccess(t *testing.T) {
	var logBuf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logBuf, nil))

	started := time.Now()
	finished := started.Add(1500 * time.Millisecond)

	logRunOutcome(logger, session.Outcome{
		RunID:      "run-1",
		Mode:       steps.ModeText,
		State:      fsm.StateSucceeded,
		StartedAt:  started,
		FinishedAt: finished,
		Result:     orchestrator.Result{Caption: "hello", Latency: 20 * time.Millisecond},
	})

	require.Contains(t, logBuf.String(), "run complete")
	require.Contains(t, logBuf.String(), "\"caption_length\":5")
	require.Contains(t, logBuf.String(), "\"duration_ms\":1500")

	logBuf.Reset()
	logRunOutcome(logger, session.Outcome{
		RunID:          "run-2",
		Mode:           steps.ModeImage,
		State:          fsm.StateFailed,
		StartedAt:      started,
		FinishedAt:     finished,
		FailedStep:     "analyze",
		Classification: classify.Classification{Kind: classify.KindServerError, Status: 504},
		Err:            errors.New("boom"),
	})
	require.Contains(t, logBuf.String(), "run failed")
	require.Contains(t, logBuf.String(), "\"failed_step\":\"analyze\"")
	require.Contains(t, logBuf.String(), "\"http_status\":504")
	require.Contains(t, logBuf.String(), "boom")
}

type blockingClient struct {
	release chan struct{}
	entered chan struct{}
}

func (b *blockingClient) SendImage(ctx context.Context, _ []byte, translate bool) (orchestrator.Result, error) {
	return b.SendText(ctx, "", translate)
}

func (b *blockingClient) SendText(ctx context.Context, _ string, _ bool) (orchestrator.Result, error) {
	b.entered <- struct{}{}
	select {
	case <-b.release:
	case <-ctx.Done():
		return orchestrator.Result{}, ctx.Err()
	}
	return orchestrator.Result{Caption: "Hallo"}, nil
}

type runnerPaths struct {
	configPath string
	runtimeDir string
}

func (p runnerPaths) socketPath() string {
	return filepath.Join(p.runtimeDir, "sayshot.sock")
}

// quietConfig points at backendURL with every desktop side effect disabled.
func quietConfig(backendURL string) string {
	return fmt.Sprintf(`{
  // test backend
  "backend": {"url": %q, "timeout_ms": 2000},
  "indicator": {"enable": false, "sound_enable": false},
  "playback": {"enable": false},
  "copy_caption": false,
}`, backendURL)
}

func setupRunnerEnv(t *testing.T, content string) runnerPaths {
	t.Helper()

	xdgStateHome := t.TempDir()
	runtimeDir := t.TempDir()
	t.Setenv("XDG_STATE_HOME", xdgStateHome)
	t.Setenv("XDG_RUNTIME_DIR", runtimeDir)
	for _, key := range []string{"SAYSHOT_BACKEND_URL", "SAYSHOT_MODE", "SAYSHOT_TRANSLATE", "SAYSHOT_LOG_LEVEL"} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
	t.Chdir(t.TempDir())

	configPath := filepath.Join(t.TempDir(), "config.jsonc")
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0o600))

	return runnerPaths{configPath: configPath, runtimeDir: runtimeDir}
}

func startIPCServerForRunnerTest(t *testing.T, socketPath string, handler func(context.Context, ipc.Request) ipc.Response) func() {
	t.Helper()

	listener, err := net.Listen("unix", socketPath)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- ipc.Serve(ctx, listener, ipc.HandlerFunc(handler))
	}()

	return func() {
		cancel()
		require.NoError(t, <-done)
	}
}
