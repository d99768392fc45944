// Package session coordinates one capture or text run: stage progress,
// backend dispatch, failure classification, and trigger ownership.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rbright/sayshot/internal/capture"
	"github.com/rbright/sayshot/internal/classify"
	"github.com/rbright/sayshot/internal/fsm"
	"github.com/rbright/sayshot/internal/ipc"
	"github.com/rbright/sayshot/internal/orchestrator"
	"github.com/rbright/sayshot/internal/steps"
	"github.com/rbright/sayshot/internal/uictl"
)

// MsgEmptyText is shown when a text run is triggered without input.
const MsgEmptyText = "Please enter some text to process."

// Request is one trigger of the pipeline.
type Request struct {
	Mode steps.Mode
	Text string
	// Translate, when set, replaces the translate preference once the run
	// is claimed.
	Translate *bool
}

// Outcome is the complete output of one Run invocation.
type Outcome struct {
	RunID          string
	Mode           steps.Mode
	Translate      bool
	State          fsm.State
	Result         orchestrator.Result
	Preview        capture.Image
	Classification classify.Classification
	FailedStep     string
	Err            error
	PresentErr     error
	StartedAt      time.Time
	FinishedAt     time.Time
}

// Deps wires the controller's collaborators. Nil members fall back to
// no-op or unavailable implementations.
type Deps struct {
	Logger    *slog.Logger
	Capturer  Capturer
	Client    Client
	Presenter Presenter
	Indicator Indicator
	Tracker   *steps.Tracker
	Trigger   uictl.Knob
}

// Controller drives runs through the fsm and step tracker.
type Controller struct {
	logger    *slog.Logger
	capturer  Capturer
	client    Client
	presenter Presenter
	indicator Indicator
	tracker   *steps.Tracker
	trigger   uictl.Knob

	// gate serializes claiming a run against mode and translate changes.
	gate    sync.Mutex
	running atomic.Bool

	mu        sync.RWMutex
	state     fsm.State
	mode      steps.Mode
	translate bool
}

// NewController constructs a run controller in mode with the given
// translate preference.
func NewController(deps Deps, mode steps.Mode, translate bool) *Controller {
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.DiscardHandler)
	}
	if deps.Capturer == nil {
		deps.Capturer = unavailableCapturer{}
	}
	if deps.Client == nil {
		deps.Client = unavailableClient{}
	}
	if deps.Presenter == nil {
		deps.Presenter = noopPresenter{}
	}
	if deps.Indicator == nil {
		deps.Indicator = noopIndicator{}
	}
	if deps.Trigger == nil {
		deps.Trigger = uictl.NewSwitch(true)
	}
	if mode != steps.ModeText {
		mode = steps.ModeImage
	}
	if deps.Tracker == nil {
		deps.Tracker = steps.NewTracker(mode, translate)
	} else {
		deps.Tracker.Reset(mode, translate)
	}
	deps.Trigger.On()

	return &Controller{
		logger:    deps.Logger,
		capturer:  deps.Capturer,
		client:    deps.Client,
		presenter: deps.Presenter,
		indicator: deps.Indicator,
		tracker:   deps.Tracker,
		trigger:   deps.Trigger,
		state:     fsm.StateIdle,
		mode:      mode,
		translate: translate,
	}
}

// State returns the current FSM state snapshot.
func (c *Controller) State() fsm.State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Controller) Mode() steps.Mode {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.mode
}

// Translate returns the translate preference for the next run.
func (c *Controller) Translate() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.translate
}

// Running reports whether a run currently holds the controller.
func (c *Controller) Running() bool {
	return c.running.Load()
}

func (c *Controller) Tracker() *steps.Tracker {
	return c.tracker
}

func (c *Controller) Trigger() uictl.Knob {
	return c.trigger
}

// SetMode switches the pipeline path. It is rejected while a run is active
// and otherwise clears presented output and recomputes the visible steps.
func (c *Controller) SetMode(ctx context.Context, mode steps.Mode) error {
	if mode != steps.ModeImage && mode != steps.ModeText {
		return fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}

	c.gate.Lock()
	defer c.gate.Unlock()
	if c.running.Load() {
		return ErrRunInProgress
	}

	c.mu.Lock()
	c.mode = mode
	translate := c.translate
	if c.state != fsm.StateIdle {
		if next, err := fsm.Transition(c.state, fsm.EventReset); err == nil {
			c.state = next
		}
	}
	c.mu.Unlock()

	c.presenter.Clear(ctx)
	c.tracker.Reset(mode, translate)
	return nil
}

// SetTranslate updates the translate preference. An active run keeps the
// value it started with; the visible steps follow only while idle.
func (c *Controller) SetTranslate(on bool) {
	c.gate.Lock()
	defer c.gate.Unlock()

	c.mu.Lock()
	c.translate = on
	mode := c.mode
	c.mu.Unlock()

	if !c.running.Load() {
		c.tracker.Reset(mode, on)
	}
}

// transition applies one FSM event to the controller state.
func (c *Controller) transition(event fsm.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	next, err := fsm.Transition(c.state, event)
	if err != nil {
		return err
	}
	c.state = next
	return nil
}

// Claim is a run reserved by Begin. It holds the controller until Run
// returns.
type Claim struct {
	c         *Controller
	mode      steps.Mode
	text      string
	translate bool
	startedAt time.Time
	used      atomic.Bool
}

// Begin validates req and reserves the controller for it. The trigger is
// disabled before Begin returns, so a second Begin fails with
// ErrRunInProgress until the claimed run finishes. The caller must Run the
// claim; nothing else releases it.
func (c *Controller) Begin(req Request) (*Claim, error) {
	if req.Mode != steps.ModeImage && req.Mode != steps.ModeText {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, req.Mode)
	}
	text := strings.TrimSpace(req.Text)
	if req.Mode == steps.ModeText && text == "" {
		return nil, ErrEmptyText
	}

	c.gate.Lock()
	defer c.gate.Unlock()
	if !c.running.CompareAndSwap(false, true) {
		return nil, ErrRunInProgress
	}
	c.trigger.Off()

	c.mu.Lock()
	c.mode = req.Mode
	if req.Translate != nil {
		c.translate = *req.Translate
	}
	translate := c.translate
	c.mu.Unlock()

	return &Claim{c: c, mode: req.Mode, text: text, translate: translate, startedAt: time.Now()}, nil
}

// Run executes one run to completion. The trigger is re-enabled and the
// in-progress guard released on every return path, including panics.
func (c *Controller) Run(ctx context.Context, req Request) Outcome {
	claim, err := c.Begin(req)
	if err != nil {
		out := Outcome{Mode: req.Mode, StartedAt: time.Now(), Err: err}
		if errors.Is(err, ErrEmptyText) {
			c.indicator.ShowError(ctx, MsgEmptyText)
			out.Classification = classify.Classification{Kind: classify.KindUnknown, Message: MsgEmptyText}
		}
		out.State = c.State()
		out.FinishedAt = time.Now()
		return out
	}
	return claim.Run(ctx)
}

// Run executes the claimed run. A claim runs at most once; later calls
// report ErrRunInProgress.
func (cl *Claim) Run(ctx context.Context) (out Outcome) {
	c := cl.c
	out = Outcome{Mode: cl.mode, Translate: cl.translate, StartedAt: cl.startedAt}
	if !cl.used.CompareAndSwap(false, true) {
		out.Err = ErrRunInProgress
		out.State = c.State()
		out.FinishedAt = time.Now()
		return out
	}

	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("run panicked", "run_id", out.RunID, "panic", fmt.Sprint(r))
			out = c.fail(ctx, out, fmt.Errorf("unexpected failure: %v", r))
		}
		c.trigger.On()
		c.running.Store(false)
		out.FinishedAt = time.Now()
	}()

	out.RunID = uuid.NewString()

	if err := c.transition(fsm.EventStart); err != nil {
		out.Err = err
		out.State = c.State()
		return out
	}

	c.presenter.Clear(ctx)
	c.tracker.Reset(cl.mode, cl.translate)
	c.logger.Info("run start", "run_id", out.RunID, "mode", string(cl.mode), "translate", cl.translate)

	var err error
	switch cl.mode {
	case steps.ModeImage:
		err = c.runImage(ctx, &out, cl.translate)
	default:
		err = c.runText(ctx, &out, cl.text, cl.translate)
	}
	if err != nil {
		return c.fail(ctx, out, err)
	}

	if err := c.transition(fsm.EventSucceed); err != nil {
		return c.fail(ctx, out, err)
	}

	c.indicator.Hide(ctx)
	if err := c.presenter.ShowResult(ctx, out.Result); err != nil {
		out.PresentErr = err
		c.logger.Warn("result presentation failed", "run_id", out.RunID, "error", err.Error())
	}
	c.indicator.CueComplete(ctx)
	out.State = c.State()
	return out
}

func (c *Controller) runImage(ctx context.Context, out *Outcome, translate bool) error {
	err := c.stage(ctx, steps.Capture, func() error {
		img, err := c.capturer.Capture(ctx)
		if err != nil {
			return err
		}
		out.Preview = img
		return nil
	})
	if err != nil {
		return err
	}

	if err := c.presenter.ShowPreview(ctx, out.Preview); err != nil {
		c.logger.Warn("preview presentation failed", "run_id", out.RunID, "error", err.Error())
	}

	err = c.stage(ctx, steps.Analyze, func() error {
		result, err := c.client.SendImage(ctx, out.Preview.PNG, translate)
		if err != nil {
			return err
		}
		out.Result = result
		return nil
	})
	if err != nil {
		return err
	}
	return c.advance(ctx, steps.Translate, steps.Synthesize)
}

func (c *Controller) runText(ctx context.Context, out *Outcome, text string, translate bool) error {
	active := c.tracker.Active()
	if len(active) == 0 {
		return fmt.Errorf("%w: no active steps for text mode", ErrUnknownMode)
	}

	// The request covers the first visible backend stage; the rest advance
	// once the response is in.
	err := c.stage(ctx, active[0], func() error {
		result, err := c.client.SendText(ctx, text, translate)
		if err != nil {
			return err
		}
		out.Result = result
		return nil
	})
	if err != nil {
		return err
	}
	return c.advance(ctx, active[1:]...)
}

// stage marks idx processing, runs fn, then marks idx complete.
func (c *Controller) stage(ctx context.Context, idx steps.Index, fn func() error) error {
	if err := c.tracker.SetStatus(idx, steps.StatusProcessing); err != nil {
		return err
	}
	c.indicator.ShowProcessing(ctx, idx.Label())
	if err := fn(); err != nil {
		return err
	}
	return c.tracker.SetStatus(idx, steps.StatusComplete)
}

// advance walks the remaining backend stages that are visible for this run.
func (c *Controller) advance(ctx context.Context, rest ...steps.Index) error {
	for _, idx := range rest {
		if !c.tracker.IsActive(idx) {
			continue
		}
		if err := c.stage(ctx, idx, func() error { return nil }); err != nil {
			return err
		}
	}
	return nil
}

// fail marks the processing step errored, classifies err, and shows the banner.
func (c *Controller) fail(ctx context.Context, out Outcome, err error) Outcome {
	if failed, ok := c.tracker.Fail(); ok {
		out.FailedStep = failed.String()
	}

	classCtx := classify.ContextImage
	if out.Mode == steps.ModeText {
		classCtx = classify.ContextText
	}
	out.Err = err
	out.Classification = classify.Classify(err, classCtx)

	c.indicator.CueError(ctx)
	c.indicator.ShowError(ctx, out.Classification.Message)

	if c.State() == fsm.StateRunning {
		_ = c.transition(fsm.EventFail)
	}
	out.State = c.State()
	return out
}

// Handle serves IPC commands for the process owning the run socket.
func (c *Controller) Handle(_ context.Context, req ipc.Request) ipc.Response {
	switch req.Command {
	case ipc.CommandStatus:
		resp := ipc.Response{OK: true, State: string(c.State()), Mode: string(c.Mode()), Message: c.statusMessage()}
		if idx, ok := c.tracker.Current(); ok {
			resp.Step = idx.String()
		}
		return resp
	default:
		return ipc.Response{OK: false, State: string(c.State()), Error: fmt.Sprintf("unknown command: %s", req.Command)}
	}
}

func (c *Controller) statusMessage() string {
	msg := fmt.Sprintf("mode=%s translate=%t", c.Mode(), c.Translate())
	if idx, ok := c.tracker.Current(); ok {
		msg += " step=" + idx.String()
	}
	return msg
}
