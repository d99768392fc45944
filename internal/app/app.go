package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/rbright/sayshot/internal/audio"
	"github.com/rbright/sayshot/internal/cli"
	"github.com/rbright/sayshot/internal/config"
	"github.com/rbright/sayshot/internal/doctor"
	"github.com/rbright/sayshot/internal/ipc"
	"github.com/rbright/sayshot/internal/logging"
	"github.com/rbright/sayshot/internal/orchestrator"
	"github.com/rbright/sayshot/internal/session"
	"github.com/rbright/sayshot/internal/steps"
	"github.com/rbright/sayshot/internal/tui"
	"github.com/rbright/sayshot/internal/version"
)

const binaryName = "sayshot"

type Runner struct {
	Stdout io.Writer
	Stderr io.Writer
	Logger *slog.Logger
	// Probes overrides the doctor's portal and sink probes.
	Probes doctor.Probes
}

func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	r := Runner{Stdout: stdout, Stderr: stderr}
	return r.Execute(ctx, args)
}

func (r Runner) Execute(ctx context.Context, args []string) int {
	parsed, err := cli.Parse(args)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n\n", err)
		fmt.Fprint(r.Stderr, cli.HelpText(binaryName))
		return 2
	}

	if parsed.ShowHelp {
		fmt.Fprint(r.Stdout, cli.HelpText(binaryName))
		return 0
	}

	if parsed.Command == cli.CommandVersion {
		fmt.Fprintln(r.Stdout, version.String())
		return 0
	}

	cfgLoaded, err := config.Load(parsed.ConfigPath)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	logRuntime, err := logging.New(cfgLoaded.Config.LogLevel)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: setup logging: %v\n", err)
		return 1
	}
	defer func() { _ = logRuntime.Close() }()

	logger := r.Logger
	if logger == nil {
		logger = logRuntime.Logger
	}

	for _, w := range cfgLoaded.Warnings {
		msg := w.Message
		if w.Line > 0 {
			msg = fmt.Sprintf("line %d: %s", w.Line, w.Message)
		}
		fmt.Fprintf(r.Stderr, "warning: %s\n", msg)
		logger.Warn("config warning", "line", w.Line, "message", w.Message)
	}

	logger.Info("command start",
		"command", parsed.Command,
		"config", cfgLoaded.Path,
		"log", logRuntime.Path,
	)

	switch parsed.Command {
	case cli.CommandDoctor:
		report := doctor.Run(ctx, cfgLoaded, r.Probes)
		fmt.Fprintln(r.Stdout, report.String())
		if report.OK() {
			return 0
		}
		return 1
	case cli.CommandSinks:
		return r.commandSinks(ctx)
	case cli.CommandHealth:
		return r.commandHealth(ctx, cfgLoaded.Config, logger)
	case cli.CommandStatus:
		return r.commandStatus(ctx)
	case cli.CommandCapture:
		return r.commandRun(ctx, cfgLoaded.Config, parsed, steps.ModeImage, logger)
	case cli.CommandSay:
		return r.commandRun(ctx, cfgLoaded.Config, parsed, steps.ModeText, logger)
	case cli.CommandTUI:
		return r.commandTUI(ctx, cfgLoaded.Config, parsed, logger)
	default:
		fmt.Fprintf(r.Stderr, "error: unsupported command %q\n", parsed.Command)
		return 2
	}
}

func (r Runner) commandSinks(ctx context.Context) int {
	sinks, err := audio.ListSinks(ctx)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if len(sinks) == 0 {
		fmt.Fprintln(r.Stdout, "no playback sinks found")
		return 1
	}

	for _, sink := range sinks {
		defaultMark := " "
		if sink.Default {
			defaultMark = "*"
		}
		fmt.Fprintf(
			r.Stdout,
			"%s id=%s | description=%q | state=%s | available=%s | muted=%s\n",
			defaultMark,
			sink.ID,
			sink.Description,
			sink.State,
			yesNo(sink.Available),
			yesNo(sink.Muted),
		)
	}

	return 0
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}

func (r Runner) commandHealth(ctx context.Context, cfg config.Config, logger *slog.Logger) int {
	client, err := orchestrator.New(orchestrator.ConfigFrom(cfg.Backend), nil, logger)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	health, err := client.Health(ctx)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	fmt.Fprintf(r.Stdout, "status=%s http=%d\n", health.Status, health.StatusCode)
	names := make([]string, 0, len(health.Services))
	for name := range health.Services {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(r.Stdout, "  %s: %v\n", name, health.Services[name])
	}
	return 0
}

func (r Runner) commandStatus(ctx context.Context) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintln(r.Stdout, "idle")
		return 0
	}

	resp, err := ipc.Forward(ctx, socketPath, ipc.Request{Command: ipc.CommandStatus}, ipc.DefaultClaimOptions().ForwardTimeout)
	if errors.Is(err, ipc.ErrNoOwner) {
		fmt.Fprintln(r.Stdout, "idle")
		return 0
	}
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if resp.State == "" {
		resp.State = "idle"
	}
	if resp.Message != "" {
		fmt.Fprintf(r.Stdout, "%s %s\n", resp.State, resp.Message)
		return 0
	}
	fmt.Fprintln(r.Stdout, resp.State)
	return 0
}

// commandRun performs one capture or say run, or hands it to the process
// already owning the run socket.
func (r Runner) commandRun(ctx context.Context, cfg config.Config, parsed cli.Parsed, mode steps.Mode, logger *slog.Logger) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	req := ipc.Request{Command: string(parsed.Command), Text: parsed.Text, Translate: parsed.Translate}
	own, err := ipc.Claim(ctx, socketPath, req, ipc.DefaultClaimOptions())
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if !own.Owner() {
		if own.Response.Message != "" {
			fmt.Fprintln(r.Stdout, own.Response.Message)
		}
		return 0
	}
	listener := own.Listener
	defer func() {
		_ = listener.Close()
		_ = os.Remove(socketPath)
	}()

	rt, err := buildWiring(cfg, resolveTranslate(cfg, parsed), logger)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	dispatch := newDispatcher(ctx, rt.controller, logger, nil)

	serverCtx, serverCancel := context.WithCancel(ctx)
	defer serverCancel()

	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- ipc.Serve(serverCtx, listener, dispatch.Mux())
	}()

	out := rt.controller.Run(ctx, session.Request{Mode: mode, Text: parsed.Text})
	logRunOutcome(logger, out)

	serverCancel()
	serverErr := <-serverErrCh
	dispatch.Wait()
	rt.wait(logger)

	if serverErr != nil {
		fmt.Fprintf(r.Stderr, "error: ipc server failed: %v\n", serverErr)
		return 1
	}
	if out.Err != nil {
		fmt.Fprintf(r.Stderr, "error: %s\n", failureText(out))
		return 1
	}

	printResult(r.Stdout, out.Result)
	return 0
}

func (r Runner) commandTUI(ctx context.Context, cfg config.Config, parsed cli.Parsed, logger *slog.Logger) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	listener, err := ipc.Acquire(ctx, socketPath, ipc.DefaultClaimOptions())
	if err != nil {
		if errors.Is(err, ipc.ErrAlreadyRunning) {
			fmt.Fprintln(r.Stderr, "error: another sayshot instance is running")
			return 1
		}
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	defer func() {
		_ = listener.Close()
		_ = os.Remove(socketPath)
	}()

	rt, err := buildWiring(cfg, resolveTranslate(cfg, parsed), logger)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	go rt.client.LogHealth(ctx)

	program := tui.NewProgram(ctx, rt.controller, tui.Options{
		Logger:        logger,
		Output:        r.Stdout,
		BannerTimeout: cfg.Indicator.ErrorTimeout(),
	})
	dispatch := newDispatcher(program.Context(), rt.controller, logger, program.Deliver)

	serverCtx, serverCancel := context.WithCancel(ctx)
	defer serverCancel()

	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- ipc.Serve(serverCtx, listener, dispatch.Mux())
	}()

	uiErr := program.Run()

	serverCancel()
	serverErr := <-serverErrCh
	dispatch.Wait()
	rt.wait(logger)

	if uiErr != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", uiErr)
		return 1
	}
	if serverErr != nil {
		fmt.Fprintf(r.Stderr, "error: ipc server failed: %v\n", serverErr)
		return 1
	}
	return 0
}

func resolveTranslate(cfg config.Config, parsed cli.Parsed) bool {
	if parsed.Translate != nil {
		return *parsed.Translate
	}
	return cfg.Translate
}

func failureText(out session.Outcome) string {
	if msg := strings.TrimSpace(out.Classification.Message); msg != "" {
		return msg
	}
	return out.Err.Error()
}

func printResult(w io.Writer, result orchestrator.Result) {
	caption := strings.TrimSpace(result.Caption)
	if caption != "" {
		fmt.Fprintln(w, caption)
	}
	if result.WasTranslated && strings.TrimSpace(result.OriginalCaption) != "" {
		fmt.Fprintf(w, "original: %s\n", strings.TrimSpace(result.OriginalCaption))
	}
}

func logRunOutcome(logger *slog.Logger, out session.Outcome) {
	if logger == nil {
		return
	}
	fields := []any{
		"run_id", out.RunID,
		"mode", string(out.Mode),
		"translate", out.Translate,
		"state", string(out.State),
		"started_at", out.StartedAt.Format(time.RFC3339Nano),
		"finished_at", out.FinishedAt.Format(time.RFC3339Nano),
		"duration_ms", out.FinishedAt.Sub(out.StartedAt).Milliseconds(),
		"caption_length", len(out.Result.Caption),
		"audio_bytes", len(out.Result.Audio),
		"was_translated", out.Result.WasTranslated,
		"backend_latency_ms", out.Result.Latency.Milliseconds(),
	}
	if out.PresentErr != nil {
		fields = append(fields, "present_error", out.PresentErr.Error())
	}

	if out.Err != nil {
		fields = append(fields,
			"failed_step", out.FailedStep,
			"kind", string(out.Classification.Kind),
			"http_status", out.Classification.Status,
			"error", out.Err.Error(),
		)
		logger.Error("run failed", fields...)
		return
	}
	logger.Info("run complete", fields...)
}
