package app

import (
	"log/slog"
	"strings"

	"github.com/rbright/sayshot/internal/audio"
	"github.com/rbright/sayshot/internal/capture"
	"github.com/rbright/sayshot/internal/config"
	"github.com/rbright/sayshot/internal/indicator"
	"github.com/rbright/sayshot/internal/orchestrator"
	"github.com/rbright/sayshot/internal/output"
	"github.com/rbright/sayshot/internal/session"
	"github.com/rbright/sayshot/internal/steps"
)

// wiring holds the collaborators behind one controller.
type wiring struct {
	controller *session.Controller
	client     *orchestrator.Client
	presenter  *output.Presenter
	notifier   *indicator.Notifier
}

func buildWiring(cfg config.Config, translate bool, logger *slog.Logger) (*wiring, error) {
	client, err := orchestrator.New(orchestrator.ConfigFrom(cfg.Backend), nil, logger)
	if err != nil {
		return nil, err
	}

	mode, err := steps.ParseMode(cfg.Mode)
	if err != nil {
		mode = steps.ModeImage
	}

	var player output.Player
	if cfg.Playback.Enable {
		player = audio.NewPlayer(cfg.Playback.Sink, "sayshot caption", logger)
	}
	var clipboard output.Copier
	if cfg.CopyCaption {
		clipboard = output.NewClipboard(cfg.Clipboard)
	}

	presenter := output.NewPresenter(output.Options{
		Player:    player,
		Clipboard: clipboard,
		Logger:    logger,
	})
	notifier := indicator.New(cfg.Indicator, audio.NewPlayer(cfg.Playback.Sink, "sayshot cue", logger), logger)

	controller := session.NewController(session.Deps{
		Logger:    logger,
		Capturer:  capture.NewService(captureSource(cfg.Capture), logger),
		Client:    client,
		Presenter: presenter,
		Indicator: notifier,
	}, mode, translate)

	return &wiring{
		controller: controller,
		client:     client,
		presenter:  presenter,
		notifier:   notifier,
	}, nil
}

func captureSource(cfg config.CaptureConfig) capture.Source {
	if strings.EqualFold(cfg.Backend, config.CaptureBackendGrim) {
		return capture.NewGrim(cfg.Output)
	}
	return capture.NewPortal(cfg.Interactive)
}

// wait blocks until caption playback and pending cues have finished.
func (rt *wiring) wait(logger *slog.Logger) {
	if err := rt.presenter.Wait(); err != nil && logger != nil {
		logger.Warn("caption playback failed", "error", err.Error())
	}
	rt.notifier.Wait()
}
