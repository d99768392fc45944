// Package tui is the interactive front end: mode switch, translate toggle,
// text entry, the step list, and the caption of the last run.
package tui

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/rbright/sayshot/internal/orchestrator"
	"github.com/rbright/sayshot/internal/session"
	"github.com/rbright/sayshot/internal/steps"
	"github.com/rbright/sayshot/internal/uictl"
)

const defaultBannerTimeout = 5 * time.Second

// StepsChangedMsg tells the model to re-read the tracker.
type StepsChangedMsg struct{}

// OutcomeMsg carries a finished run into the model.
type OutcomeMsg session.Outcome

type bannerExpiredMsg struct {
	seq int
}

// Model renders one controller. Runs execute as commands; the tracker is
// polled for step state whenever a StepsChangedMsg arrives.
type Model struct {
	ctx        context.Context
	cancel     context.CancelFunc
	controller *session.Controller
	progressOf uictl.CappedDial[int]
	keys       keyMap

	input    textarea.Model
	spinner  spinner.Model
	progress progress.Model

	mode      steps.Mode
	translate bool
	running   bool
	steps     []steps.Step

	banner        string
	bannerSeq     int
	bannerTimeout time.Duration

	result    orchestrator.Result
	hasResult bool
}

// New builds a model bound to controller. cancel, when set, is called on quit.
func New(ctx context.Context, controller *session.Controller, cancel context.CancelFunc, bannerTimeout time.Duration) *Model {
	if bannerTimeout <= 0 {
		bannerTimeout = defaultBannerTimeout
	}

	input := textarea.New()
	input.Placeholder = "Type text to speak…"
	input.ShowLineNumbers = false
	input.SetWidth(60)
	input.SetHeight(4)
	input.KeyMap.InsertNewline = key.NewBinding(key.WithKeys("ctrl+j"))

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = Processing

	m := &Model{
		ctx:           ctx,
		cancel:        cancel,
		controller:    controller,
		progressOf:    controller.Tracker(),
		keys:          defaultKeyMap(),
		input:         input,
		spinner:       sp,
		progress:      progress.New(progress.WithDefaultGradient(), progress.WithWidth(40), progress.WithoutPercentage()),
		mode:          controller.Mode(),
		translate:     controller.Translate(),
		steps:         controller.Tracker().Steps(),
		bannerTimeout: bannerTimeout,
	}
	if m.mode == steps.ModeText {
		m.input.Focus()
	}
	return m
}

func (m *Model) Init() tea.Cmd {
	return textarea.Blink
}

func (m *Model) Update(teaMsg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := teaMsg.(type) {
	case tea.WindowSizeMsg:
		if msg.Width > 4 {
			m.input.SetWidth(min(msg.Width-4, 100))
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case StepsChangedMsg:
		m.steps = m.controller.Tracker().Steps()
		return m, m.syncRunning()

	case OutcomeMsg:
		return m, m.finish(session.Outcome(msg))

	case bannerExpiredMsg:
		if msg.seq == m.bannerSeq {
			m.banner = ""
		}
		return m, nil

	case spinner.TickMsg:
		if !m.running {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case progress.FrameMsg:
		progressModel, cmd := m.progress.Update(msg)
		m.progress = progressModel.(progress.Model) //nolint:forcetypeassert // bubbles library contract
		return m, cmd
	}

	if m.mode == steps.ModeText {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(teaMsg)
		return m, cmd
	}
	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		if m.cancel != nil {
			m.cancel()
		}
		return m, tea.Quit

	case key.Matches(msg, m.keys.SwitchMode):
		if m.busy() {
			return m, nil
		}
		next := steps.ModeText
		if m.mode == steps.ModeText {
			next = steps.ModeImage
		}
		if err := m.controller.SetMode(m.ctx, next); err != nil {
			return m, m.showBanner(err.Error())
		}
		m.mode = next
		m.result, m.hasResult = orchestrator.Result{}, false
		m.steps = m.controller.Tracker().Steps()
		if next == steps.ModeText {
			return m, m.input.Focus()
		}
		m.input.Blur()
		return m, nil

	case key.Matches(msg, m.keys.Translate):
		m.translate = !m.translate
		m.controller.SetTranslate(m.translate)
		m.steps = m.controller.Tracker().Steps()
		return m, nil

	case key.Matches(msg, m.keys.Capture), key.Matches(msg, m.keys.Submit):
		return m, m.trigger()
	}

	if m.mode == steps.ModeText && !m.busy() {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}
	return m, nil
}

// busy reports whether the trigger is disabled.
func (m *Model) busy() bool {
	return m.running || m.controller.Running() || !m.controller.Trigger().Read()
}

func (m *Model) trigger() tea.Cmd {
	if m.busy() {
		return nil
	}

	req := session.Request{Mode: m.mode}
	if m.mode == steps.ModeText {
		req.Text = strings.TrimSpace(m.input.Value())
		if req.Text == "" {
			return m.showBanner(session.MsgEmptyText)
		}
	}

	m.running = true
	m.banner = ""
	m.result, m.hasResult = orchestrator.Result{}, false

	ctx, controller := m.ctx, m.controller
	return tea.Batch(m.spinner.Tick, func() tea.Msg {
		return OutcomeMsg(controller.Run(ctx, req))
	})
}

// syncRunning starts the spinner when a run begins outside the model, such
// as one requested over the owner socket.
func (m *Model) syncRunning() tea.Cmd {
	if m.controller.Running() && !m.running {
		m.running = true
		m.banner = ""
		m.result, m.hasResult = orchestrator.Result{}, false
		return m.spinner.Tick
	}
	return nil
}

func (m *Model) finish(out session.Outcome) tea.Cmd {
	m.running = false
	m.steps = m.controller.Tracker().Steps()
	m.mode = m.controller.Mode()
	m.translate = m.controller.Translate()

	if out.Err != nil {
		msg := strings.TrimSpace(out.Classification.Message)
		if msg == "" {
			msg = out.Err.Error()
		}
		return m.showBanner(msg)
	}

	m.result, m.hasResult = out.Result, true
	if m.mode == steps.ModeText {
		m.input.Reset()
	}
	return nil
}

func (m *Model) showBanner(text string) tea.Cmd {
	m.bannerSeq++
	m.banner = text
	seq := m.bannerSeq
	return tea.Tick(m.bannerTimeout, func(time.Time) tea.Msg {
		return bannerExpiredMsg{seq: seq}
	})
}

func (m *Model) View() string {
	var sb strings.Builder

	sb.WriteString(Title.Render("sayshot"))
	sb.WriteString("  ")
	sb.WriteString(m.renderTabs())
	sb.WriteString("  ")
	if m.translate {
		sb.WriteString(Success.Render("translate: on"))
	} else {
		sb.WriteString(Muted.Render("translate: off"))
	}
	sb.WriteString("\n\n")

	if m.mode == steps.ModeText {
		sb.WriteString(m.input.View())
		sb.WriteString("\n\n")
	}

	for _, step := range m.steps {
		sb.WriteString(renderStep(step))
		sb.WriteString("\n")
	}
	sb.WriteString("\n")

	if m.running {
		done, total := m.progressOf.Cap()
		percent := 0.0
		if total > 0 {
			percent = float64(done) / float64(total)
		}
		sb.WriteString(m.spinner.View())
		sb.WriteString(" ")
		sb.WriteString(m.progress.ViewAs(percent))
		sb.WriteString("\n\n")
	}

	if m.banner != "" {
		sb.WriteString(Banner.Render(m.banner))
		sb.WriteString("\n\n")
	}

	if m.hasResult {
		sb.WriteString(m.renderResult())
		sb.WriteString("\n\n")
	}

	sb.WriteString(m.renderHelp())
	return sb.String()
}

func (m *Model) renderTabs() string {
	image, text := InactiveTab.Render("image"), InactiveTab.Render("text")
	if m.mode == steps.ModeText {
		text = ActiveTab.Render("text")
	} else {
		image = ActiveTab.Render("image")
	}
	return image + " " + text
}

func renderStep(step steps.Step) string {
	line := "[" + step.Marker() + "] " + step.Label
	switch step.Status {
	case steps.StatusComplete:
		return Success.Render(line)
	case steps.StatusError:
		return Error.Render(line)
	case steps.StatusProcessing:
		return Processing.Render(line)
	default:
		return Muted.Render(line)
	}
}

func (m *Model) renderResult() string {
	caption := m.result.Caption
	if strings.TrimSpace(caption) == "" {
		caption = orchestrator.NoCaption
	}
	if !m.result.WasTranslated || strings.TrimSpace(m.result.OriginalCaption) == "" {
		return Caption.Render(caption)
	}
	return Caption.Render("Original: "+m.result.OriginalCaption) + "\n" +
		Caption.Render("Translation: "+caption)
}

func (m *Model) renderHelp() string {
	trigger := m.keys.Capture
	if m.mode == steps.ModeText {
		trigger = m.keys.Submit
	}
	line := renderHelpLine(trigger, m.keys.SwitchMode, m.keys.Translate, m.keys.Quit)
	if m.busy() {
		line = Muted.Render("working… ") + line
	}
	return line
}
