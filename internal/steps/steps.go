// Package steps tracks the ordered stages of one capture/narration run.
package steps

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// Mode selects the pipeline path of a run.
type Mode string

const (
	ModeImage Mode = "image"
	ModeText  Mode = "text"
)

// ParseMode accepts the user-facing mode names.
func ParseMode(raw string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(raw))) {
	case ModeImage:
		return ModeImage, nil
	case ModeText:
		return ModeText, nil
	default:
		return "", fmt.Errorf("unknown mode %q (expected image or text)", raw)
	}
}

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusComplete   Status = "complete"
	StatusError      Status = "error"
)

// Index identifies one of the fixed pipeline stages.
type Index int

const (
	Capture Index = iota
	Analyze
	Translate
	Synthesize
)

const stepCount = 4

var labels = [stepCount]string{
	Capture:    "Capturing screenshot...",
	Analyze:    "Analyzing image...",
	Translate:  "Translating caption...",
	Synthesize: "Generating audio...",
}

// Label is the user-facing progress text of i.
func (i Index) Label() string {
	if i < 0 || i >= stepCount {
		return ""
	}
	return labels[i]
}

func (i Index) String() string {
	switch i {
	case Capture:
		return "capture"
	case Analyze:
		return "analyze"
	case Translate:
		return "translate"
	case Synthesize:
		return "synthesize"
	default:
		return fmt.Sprintf("step(%d)", int(i))
	}
}

var (
	ErrUnknownStep       = errors.New("unknown step")
	ErrInactiveStep      = errors.New("step is not active for this run")
	ErrInvalidTransition = errors.New("invalid step transition")
	ErrRunFailed         = errors.New("run already failed")
)

// Step is a snapshot of one stage.
type Step struct {
	Index  Index
	Label  string
	Status Status
}

// Marker renders the stage badge: "OK" when complete, "X" on error,
// otherwise the 1-based ordinal.
func (s Step) Marker() string {
	switch s.Status {
	case StatusComplete:
		return "OK"
	case StatusError:
		return "X"
	default:
		return strconv.Itoa(int(s.Index) + 1)
	}
}

// Tracker owns the step statuses of the current run.
type Tracker struct {
	mu        sync.Mutex
	mode      Mode
	translate bool
	status    [stepCount]Status
	active    []Index
	failed    bool
	observer  func([]Step)
}

// NewTracker returns a tracker reset for mode with the given translate preference.
func NewTracker(mode Mode, translate bool) *Tracker {
	t := &Tracker{}
	t.Reset(mode, translate)
	return t
}

// OnChange registers fn to receive the visible steps after every mutation.
// fn runs with the tracker unlocked.
func (t *Tracker) OnChange(fn func([]Step)) {
	t.mu.Lock()
	t.observer = fn
	t.mu.Unlock()
}

// Reset marks every step pending and recomputes the active subset.
func (t *Tracker) Reset(mode Mode, translate bool) {
	t.mu.Lock()
	t.mode = mode
	t.translate = translate
	t.failed = false
	for i := range t.status {
		t.status[i] = StatusPending
	}
	t.active = activeFor(mode, translate)
	t.mu.Unlock()

	t.notify()
}

func activeFor(mode Mode, translate bool) []Index {
	var active []Index
	if mode == ModeImage {
		active = append(active, Capture, Analyze)
	}
	if translate {
		active = append(active, Translate)
	}
	return append(active, Synthesize)
}

func (t *Tracker) Mode() Mode {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.mode
}

func (t *Tracker) Translate() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.translate
}

// Active returns the active step indices in pipeline order.
func (t *Tracker) Active() []Index {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Index(nil), t.active...)
}

func (t *Tracker) IsActive(idx Index) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.isActiveLocked(idx)
}

func (t *Tracker) isActiveLocked(idx Index) bool {
	for _, a := range t.active {
		if a == idx {
			return true
		}
	}
	return false
}

// Steps returns a snapshot of the active steps in pipeline order.
func (t *Tracker) Steps() []Step {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

func (t *Tracker) snapshotLocked() []Step {
	out := make([]Step, 0, len(t.active))
	for _, idx := range t.active {
		out = append(out, Step{Index: idx, Label: labels[idx], Status: t.status[idx]})
	}
	return out
}

// Status returns the status of idx regardless of visibility.
func (t *Tracker) Status(idx Index) (Status, error) {
	if idx < 0 || idx >= stepCount {
		return "", fmt.Errorf("%w: %d", ErrUnknownStep, int(idx))
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status[idx], nil
}

// Current returns the step that is processing, if any.
func (t *Tracker) Current() (Index, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, idx := range t.active {
		if t.status[idx] == StatusProcessing {
			return idx, true
		}
	}
	return 0, false
}

// SetStatus moves idx to next. Statuses only move forward
// (pending, processing, then complete or error) and nothing moves
// after a step of the same run has failed.
func (t *Tracker) SetStatus(idx Index, next Status) error {
	if idx < 0 || idx >= stepCount {
		return fmt.Errorf("%w: %d", ErrUnknownStep, int(idx))
	}

	t.mu.Lock()
	if !t.isActiveLocked(idx) {
		t.mu.Unlock()
		return fmt.Errorf("%w: %s (mode=%s translate=%t)", ErrInactiveStep, idx, t.mode, t.translate)
	}
	if t.failed {
		t.mu.Unlock()
		return fmt.Errorf("%w: cannot set %s to %s", ErrRunFailed, idx, next)
	}
	current := t.status[idx]
	if !validTransition(current, next) {
		t.mu.Unlock()
		return fmt.Errorf("%w: %s %s -> %s", ErrInvalidTransition, idx, current, next)
	}
	if next == StatusProcessing {
		for _, other := range t.active {
			if other != idx && t.status[other] == StatusProcessing {
				t.mu.Unlock()
				return fmt.Errorf("%w: %s is still processing", ErrInvalidTransition, other)
			}
		}
	}
	t.status[idx] = next
	if next == StatusError {
		t.failed = true
	}
	t.mu.Unlock()

	t.notify()
	return nil
}

func validTransition(from Status, to Status) bool {
	switch from {
	case StatusPending:
		return to == StatusProcessing
	case StatusProcessing:
		return to == StatusComplete || to == StatusError
	default:
		return false
	}
}

// Fail marks the processing step as errored. It reports the failed step,
// or false when no step was processing.
func (t *Tracker) Fail() (Index, bool) {
	idx, ok := t.Current()
	if !ok {
		return 0, false
	}
	if err := t.SetStatus(idx, StatusError); err != nil {
		return 0, false
	}
	return idx, true
}

func (t *Tracker) notify() {
	t.mu.Lock()
	fn := t.observer
	var snapshot []Step
	if fn != nil {
		snapshot = t.snapshotLocked()
	}
	t.mu.Unlock()

	if fn != nil {
		fn(snapshot)
	}
}

// Read returns the number of completed active steps.
func (t *Tracker) Read() int {
	done, _ := t.Cap()
	return done
}

// Cap returns completed and total active steps.
func (t *Tracker) Cap() (int, int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	done := 0
	for _, idx := range t.active {
		if t.status[idx] == StatusComplete {
			done++
		}
	}
	return done, len(t.active)
}
