package session

import (
	"context"
	"errors"

	"github.com/rbright/sayshot/internal/capture"
	"github.com/rbright/sayshot/internal/orchestrator"
)

var (
	// ErrRunInProgress rejects a trigger while another run is active.
	ErrRunInProgress = errors.New("a run is already in progress")
	// ErrEmptyText rejects a text run with no usable input.
	ErrEmptyText = errors.New("text input is empty")
	// ErrUnknownMode rejects a request for a mode the controller cannot run.
	ErrUnknownMode = errors.New("unknown run mode")
	// ErrBackendUnavailable indicates no orchestrator client is wired.
	ErrBackendUnavailable = errors.New("backend client not configured")
	// ErrCaptureUnavailable indicates no capture source is wired.
	ErrCaptureUnavailable = errors.New("screen capture not configured")
)

// Capturer produces one still of the screen.
type Capturer interface {
	Capture(context.Context) (capture.Image, error)
}

// Client sends run payloads to the backend.
type Client interface {
	SendImage(ctx context.Context, png []byte, translate bool) (orchestrator.Result, error)
	SendText(ctx context.Context, text string, translate bool) (orchestrator.Result, error)
}

// Presenter renders run output. Clear revokes everything previously shown.
type Presenter interface {
	ShowPreview(context.Context, capture.Image) error
	ShowResult(context.Context, orchestrator.Result) error
	Clear(context.Context)
}

// Indicator is the session-facing subset of indicator behavior.
type Indicator interface {
	ShowProcessing(context.Context, string)
	ShowError(context.Context, string)
	CueComplete(context.Context)
	CueError(context.Context)
	Hide(context.Context)
}

type noopIndicator struct{}

func (noopIndicator) ShowProcessing(context.Context, string) {}
func (noopIndicator) ShowError(context.Context, string)      {}
func (noopIndicator) CueComplete(context.Context)            {}
func (noopIndicator) CueError(context.Context)               {}
func (noopIndicator) Hide(context.Context)                   {}

type noopPresenter struct{}

func (noopPresenter) ShowPreview(context.Context, capture.Image) error       { return nil }
func (noopPresenter) ShowResult(context.Context, orchestrator.Result) error { return nil }
func (noopPresenter) Clear(context.Context)                                 {}

type unavailableCapturer struct{}

func (unavailableCapturer) Capture(context.Context) (capture.Image, error) {
	return capture.Image{}, ErrCaptureUnavailable
}

type unavailableClient struct{}

func (unavailableClient) SendImage(context.Context, []byte, bool) (orchestrator.Result, error) {
	return orchestrator.Result{}, ErrBackendUnavailable
}

func (unavailableClient) SendText(context.Context, string, bool) (orchestrator.Result, error) {
	return orchestrator.Result{}, ErrBackendUnavailable
}
