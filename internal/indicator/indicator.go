// Package indicator handles transient progress/error notifications and audio cues.
package indicator

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/rbright/sayshot/internal/audio"
	"github.com/rbright/sayshot/internal/config"
	"github.com/rbright/sayshot/internal/hypr"
)

const (
	processingTimeoutMS = 300000
	dispatchTimeout     = 400 * time.Millisecond
	cueTimeout          = 4 * time.Second
)

// CuePlayer renders cue clips.
type CuePlayer interface {
	Play(context.Context, audio.Clip) error
}

// Notifier is the concrete indicator used by runs. It routes notifications
// via Hyprland or the freedesktop notification service based on config backend.
type Notifier struct {
	cfg      config.IndicatorConfig
	logger   *slog.Logger
	messages messages
	desktop  desktopBus
	cues     CuePlayer

	mu                    sync.Mutex
	desktopNotificationID uint32

	soundMu sync.Mutex
	pending sync.WaitGroup
}

// New creates a notifier from config. A nil player plays cues on the default sink.
func New(cfg config.IndicatorConfig, player CuePlayer, logger *slog.Logger) *Notifier {
	if player == nil {
		player = audio.NewPlayer("", "sayshot cue", logger)
	}
	return &Notifier{
		cfg:      cfg,
		logger:   logger,
		messages: defaultMessages,
		desktop:  sessionBus{},
		cues:     player,
	}
}

// ShowProcessing replaces the visible indicator with the active step label.
func (n *Notifier) ShowProcessing(ctx context.Context, label string) {
	if !n.cfg.Enable {
		return
	}
	if strings.TrimSpace(label) == "" {
		label = n.messages.processing
	}
	n.run(ctx, func(ctx context.Context) error {
		return n.notify(ctx, notification{
			icon:      hypr.IconInfo,
			timeoutMS: processingTimeoutMS,
			color:     "rgb(cba6f7)",
			text:      label,
		})
	})
}

// ShowError displays the error banner; it dismisses itself after the
// configured timeout.
func (n *Notifier) ShowError(ctx context.Context, text string) {
	if !n.cfg.Enable {
		return
	}
	if text == "" {
		text = n.messages.errorText
	}
	timeout := int(n.cfg.ErrorTimeout().Milliseconds())
	n.run(ctx, func(ctx context.Context) error {
		return n.notify(ctx, notification{
			icon:      hypr.IconError,
			timeoutMS: timeout,
			color:     "rgb(f38ba8)",
			text:      text,
		})
	})
}

// Hide dismisses the active indicator surface.
func (n *Notifier) Hide(ctx context.Context) {
	if !n.cfg.Enable {
		return
	}
	n.run(ctx, n.dismiss)
}

// CueComplete emits the success cue.
func (n *Notifier) CueComplete(ctx context.Context) {
	n.playCue(ctx, cueComplete)
}

// CueError emits the failure cue.
func (n *Notifier) CueError(ctx context.Context) {
	n.playCue(ctx, cueError)
}

// Wait blocks until queued cues have finished playing.
func (n *Notifier) Wait() {
	n.pending.Wait()
}

type notification struct {
	icon      int
	timeoutMS int
	color     string
	text      string
}

func (n *Notifier) desktopBackend() bool {
	return strings.EqualFold(strings.TrimSpace(n.cfg.Backend), config.IndicatorBackendDesktop)
}

// notify dispatches indicator output through the configured backend.
func (n *Notifier) notify(ctx context.Context, note notification) error {
	if n.desktopBackend() {
		return n.notifyDesktop(ctx, note)
	}
	// Hyprland stacks notifications; keep a single visible line.
	if err := hypr.DismissNotify(ctx); err != nil {
		n.log("indicator dismiss failed", err)
	}
	return hypr.Notify(ctx, note.icon, note.timeoutMS, note.color, note.text)
}

// dismiss removes indicator output from the configured backend.
func (n *Notifier) dismiss(ctx context.Context) error {
	if n.desktopBackend() {
		return n.dismissDesktop(ctx)
	}
	return hypr.DismissNotify(ctx)
}

// notifyDesktop sends a replaceable desktop notification and stores its ID.
func (n *Notifier) notifyDesktop(ctx context.Context, note notification) error {
	n.mu.Lock()
	replaceID := n.desktopNotificationID
	n.mu.Unlock()

	appName := strings.TrimSpace(n.cfg.DesktopAppName)
	if appName == "" {
		appName = "sayshot"
	}

	// Critical urgency ignores the expire timeout on most daemons.
	id, err := n.desktop.Notify(ctx, desktopNotification{
		AppName:   appName,
		ReplaceID: replaceID,
		Summary:   n.messages.summary,
		Body:      note.text,
		Urgency:   urgencyNormal,
		TimeoutMS: int32(note.timeoutMS),
	})
	if err != nil {
		return err
	}

	n.mu.Lock()
	n.desktopNotificationID = id
	n.mu.Unlock()
	return nil
}

// dismissDesktop closes the current desktop notification ID when present.
func (n *Notifier) dismissDesktop(ctx context.Context) error {
	n.mu.Lock()
	id := n.desktopNotificationID
	n.desktopNotificationID = 0
	n.mu.Unlock()

	if id == 0 {
		return nil
	}
	return n.desktop.Close(ctx, id)
}

// run executes an indicator operation with a bounded timeout.
func (n *Notifier) run(ctx context.Context, fn func(context.Context) error) {
	runCtx, cancel := context.WithTimeout(ctx, dispatchTimeout)
	defer cancel()
	if err := fn(runCtx); err != nil {
		n.log("indicator dispatch failed", err)
	}
}

// playCue serializes cue playback and emits audio asynchronously. Cues
// outlive the caller's cancellation so a finished run still sounds.
func (n *Notifier) playCue(ctx context.Context, kind cueKind) {
	if !n.cfg.SoundEnable {
		return
	}
	n.pending.Add(1)
	go func() {
		defer n.pending.Done()
		n.soundMu.Lock()
		defer n.soundMu.Unlock()

		cueCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cueTimeout)
		defer cancel()
		if err := n.emitCue(cueCtx, kind); err != nil {
			n.log("indicator audio cue failed", err)
		}
	}()
}

// log emits debug-only indicator failures to the runtime logger.
func (n *Notifier) log(message string, err error) {
	if n.logger == nil || err == nil {
		return
	}
	n.logger.Debug(message, "error", err.Error())
}
