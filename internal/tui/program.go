package tui

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/rbright/sayshot/internal/session"
	"github.com/rbright/sayshot/internal/steps"
)

// Options configures a Program.
type Options struct {
	Logger        *slog.Logger
	Input         io.Reader
	Output        io.Writer
	BannerTimeout time.Duration
}

// Program runs the model in a terminal and feeds it tracker changes and
// runs started elsewhere.
type Program struct {
	ctx     context.Context
	cancel  context.CancelFunc
	program *tea.Program
	logger  *slog.Logger
}

func NewProgram(ctx context.Context, controller *session.Controller, opts Options) *Program {
	ctx, cancel := context.WithCancel(ctx)
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}

	teaOpts := []tea.ProgramOption{tea.WithContext(ctx), tea.WithAltScreen()}
	if opts.Input != nil {
		teaOpts = append(teaOpts, tea.WithInput(opts.Input))
	}
	if opts.Output != nil {
		teaOpts = append(teaOpts, tea.WithOutput(opts.Output))
	}

	model := New(ctx, controller, cancel, opts.BannerTimeout)
	p := &Program{
		ctx:     ctx,
		cancel:  cancel,
		program: tea.NewProgram(model, teaOpts...),
		logger:  opts.Logger,
	}
	WatchSteps(ctx, controller.Tracker(), p.program.Send)
	return p
}

// Run blocks until the user quits or the parent context ends.
func (p *Program) Run() error {
	defer p.cancel()
	_, err := p.program.Run()
	if errors.Is(err, tea.ErrProgramKilled) && p.ctx.Err() != nil {
		return nil
	}
	if err != nil {
		p.logger.Error("tui exited with error", "error", err.Error())
	}
	return err
}

// Context is cancelled when the UI quits.
func (p *Program) Context() context.Context {
	return p.ctx
}

// Deliver hands a run outcome produced outside the model to the UI.
func (p *Program) Deliver(out session.Outcome) {
	p.program.Send(OutcomeMsg(out))
}

// WatchSteps forwards tracker changes as StepsChangedMsg. The observer never
// blocks the tracker; bursts collapse into one message since the model
// re-reads the full snapshot.
func WatchSteps(ctx context.Context, tracker *steps.Tracker, send func(tea.Msg)) {
	changed := make(chan struct{}, 1)
	tracker.OnChange(func([]steps.Step) {
		select {
		case changed <- struct{}{}:
		default:
		}
	})

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-changed:
				send(StepsChangedMsg{})
			}
		}
	}()
}
