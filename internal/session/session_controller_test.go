package session

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rbright/sayshot/internal/capture"
	"github.com/rbright/sayshot/internal/orchestrator"
	"github.com/rbright/sayshot/internal/steps"
)

type fakeIndicator struct {
	processing    atomic.Int32
	completeCues  atomic.Int32
	errorCues     atomic.Int32
	hides         atomic.Int32
	mu            sync.Mutex
	errorMessages []string
}

func (f *fakeIndicator) ShowProcessing(context.Context, string) { f.processing.Add(1) }
func (f *fakeIndicator) ShowError(_ context.Context, msg string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errorMessages = append(f.errorMessages, msg)
}
func (f *fakeIndicator) CueComplete(context.Context) { f.completeCues.Add(1) }
func (f *fakeIndicator) CueError(context.Context)    { f.errorCues.Add(1) }
func (f *fakeIndicator) Hide(context.Context)        { f.hides.Add(1) }

func (f *fakeIndicator) errors() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.errorMessages...)
}

type fakeCapturer struct {
	img      capture.Image
	err      error
	panicMsg string
	calls    atomic.Int32
}

func (f *fakeCapturer) Capture(context.Context) (capture.Image, error) {
	f.calls.Add(1)
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	return f.img, f.err
}

type fakeClient struct {
	result     orchestrator.Result
	err        error
	release    chan struct{}
	entered    chan struct{}
	imageCalls atomic.Int32
	textCalls  atomic.Int32
	mu         sync.Mutex
	translate  []bool
	texts      []string
}

func (f *fakeClient) wait(ctx context.Context) {
	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
		}
	}
}

func (f *fakeClient) SendImage(ctx context.Context, _ []byte, translate bool) (orchestrator.Result, error) {
	f.imageCalls.Add(1)
	f.mu.Lock()
	f.translate = append(f.translate, translate)
	f.mu.Unlock()
	f.wait(ctx)
	return f.result, f.err
}

func (f *fakeClient) SendText(ctx context.Context, text string, translate bool) (orchestrator.Result, error) {
	f.textCalls.Add(1)
	f.mu.Lock()
	f.translate = append(f.translate, translate)
	f.texts = append(f.texts, text)
	f.mu.Unlock()
	f.wait(ctx)
	return f.result, f.err
}

type fakePresenter struct {
	previews   atomic.Int32
	results    atomic.Int32
	clears     atomic.Int32
	resultErr  error
	mu         sync.Mutex
	lastResult orchestrator.Result
}

func (f *fakePresenter) ShowPreview(context.Context, capture.Image) error {
	f.previews.Add(1)
	return nil
}

func (f *fakePresenter) ShowResult(_ context.Context, result orchestrator.Result) error {
	f.results.Add(1)
	f.mu.Lock()
	f.lastResult = result
	f.mu.Unlock()
	return f.resultErr
}

func (f *fakePresenter) Clear(context.Context) { f.clears.Add(1) }

// stepRecorder captures every tracker snapshot of a run.
type stepRecorder struct {
	mu        sync.Mutex
	snapshots [][]steps.Step
}

func recordSteps(tracker *steps.Tracker) *stepRecorder {
	rec := &stepRecorder{}
	tracker.OnChange(func(s []steps.Step) {
		rec.mu.Lock()
		rec.snapshots = append(rec.snapshots, s)
		rec.mu.Unlock()
	})
	return rec
}

// history returns the distinct status sequence each step went through.
func (r *stepRecorder) history() map[steps.Index][]steps.Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := map[steps.Index][]steps.Status{}
	for _, snap := range r.snapshots {
		for _, step := range snap {
			seq := out[step.Index]
			if len(seq) == 0 || seq[len(seq)-1] != step.Status {
				out[step.Index] = append(seq, step.Status)
			}
		}
	}
	return out
}

func (r *stepRecorder) maxProcessing() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	maxSeen := 0
	for _, snap := range r.snapshots {
		n := 0
		for _, step := range snap {
			if step.Status == steps.StatusProcessing {
				n++
			}
		}
		if n > maxSeen {
			maxSeen = n
		}
	}
	return maxSeen
}

func testImage() capture.Image {
	return capture.Image{PNG: []byte("\x89PNG"), Width: 4, Height: 3, Source: "fake", CapturedAt: time.Now()}
}

func newTestController(t *testing.T, capturer Capturer, client Client, mode steps.Mode, translate bool) (*Controller, *fakeIndicator, *fakePresenter, *stepRecorder) {
	t.Helper()

	ind := &fakeIndicator{}
	presenter := &fakePresenter{}
	tracker := steps.NewTracker(mode, translate)
	ctrl := NewController(Deps{
		Capturer:  capturer,
		Client:    client,
		Presenter: presenter,
		Indicator: ind,
		Tracker:   tracker,
	}, mode, translate)
	rec := recordSteps(tracker)
	return ctrl, ind, presenter, rec
}

func waitForRunning(t *testing.T, ctrl *Controller) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if ctrl.Running() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for run to start (state=%s)", ctrl.State())
}
