package app

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/rbright/sayshot/internal/fsm"
	"github.com/rbright/sayshot/internal/ipc"
	"github.com/rbright/sayshot/internal/session"
	"github.com/rbright/sayshot/internal/steps"
)

// dispatcher starts runs requested over the owner socket. Runs use the
// process context so they outlive the request connection.
type dispatcher struct {
	ctx        context.Context
	controller *session.Controller
	logger     *slog.Logger
	onOutcome  func(session.Outcome)
	wg         sync.WaitGroup
}

func newDispatcher(ctx context.Context, controller *session.Controller, logger *slog.Logger, onOutcome func(session.Outcome)) *dispatcher {
	return &dispatcher{ctx: ctx, controller: controller, logger: logger, onOutcome: onOutcome}
}

func (d *dispatcher) Mux() ipc.Mux {
	return ipc.Mux{
		ipc.CommandStatus:  d.controller,
		ipc.CommandCapture: d.start(steps.ModeImage),
		ipc.CommandSay:     d.start(steps.ModeText),
	}
}

func (d *dispatcher) start(mode steps.Mode) ipc.Handler {
	return ipc.HandlerFunc(func(_ context.Context, req ipc.Request) ipc.Response {
		if mode == steps.ModeText && strings.TrimSpace(req.Text) == "" {
			return ipc.Response{OK: false, State: string(d.controller.State()), Error: session.MsgEmptyText}
		}
		// The claim is taken before replying so back-to-back requests
		// cannot both be told the run started.
		claim, err := d.controller.Begin(session.Request{Mode: mode, Text: req.Text, Translate: req.Translate})
		if errors.Is(err, session.ErrRunInProgress) {
			return d.busy()
		}
		if err != nil {
			return ipc.Response{OK: false, State: string(d.controller.State()), Error: err.Error()}
		}

		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			out := claim.Run(d.ctx)
			logRunOutcome(d.logger, out)
			if d.onOutcome != nil {
				d.onOutcome(out)
			}
		}()

		return ipc.Response{OK: true, State: string(fsm.StateRunning), Mode: string(mode), Message: "run started"}
	})
}

func (d *dispatcher) busy() ipc.Response {
	return ipc.Response{OK: false, State: string(d.controller.State()), Error: session.ErrRunInProgress.Error()}
}

// Wait blocks until every socket-started run has returned.
func (d *dispatcher) Wait() {
	d.wg.Wait()
}
