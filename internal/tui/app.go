// Package tui provides the interactive terminal UI for a screening session.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/fentz26/mindscan/internal/models"
	"github.com/fentz26/mindscan/internal/session"
)

const tickInterval = 200 * time.Millisecond

// App is the main TUI application model.
type App struct {
	orch     *session.Orchestrator
	reg      models.Registration
	ctx      context.Context
	cancel   context.CancelFunc
	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model
	width    int
	height   int
	stop     chan struct{}
	busy     bool
	message  string
}

// New creates a TUI for orch. The registration is submitted on start and
// reused when a new session is requested.
func New(orch *session.Orchestrator, reg models.Registration) *App {
	ti := textinput.New()
	ti.Placeholder = "Describe the clock you would draw"
	ti.CharLimit = 512
	ti.Width = 80

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(primaryColor)

	ctx, cancel := context.WithCancel(context.Background())
	return &App{
		orch:     orch,
		reg:      reg,
		ctx:      ctx,
		cancel:   cancel,
		input:    ti,
		viewport: viewport.New(80, 20),
		spinner:  sp,
		width:    80,
		height:   24,
	}
}

// Run starts the TUI application.
func (a *App) Run() error {
	defer a.shutdown()
	p := tea.NewProgram(a, tea.WithAltScreen())
	_, err := p.Run()
	return err
}

func (a *App) shutdown() {
	a.stopRecording()
	a.cancel()
	a.orch.Close()
}

// Init implements tea.Model
func (a *App) Init() tea.Cmd {
	a.busy = true
	a.message = "Registering..."
	return tea.Batch(
		textinput.Blink,
		a.spinner.Tick,
		a.onboard(),
	)
}

// Update implements tea.Model
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			a.shutdown()
			return a, tea.Quit
		}
		cmds = append(cmds, a.handleKey(msg))

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.viewport.Width = msg.Width - 4
		a.viewport.Height = max(msg.Height-10, 5)
		a.input.Width = max(msg.Width-6, 20)

	case onboardedMsg:
		a.busy = false
		if msg.err != nil {
			a.message = "Error: " + msg.err.Error() + " (enter to retry)"
		} else {
			a.message = "Registered. Press r to start recording."
		}

	case speechDoneMsg:
		a.busy = false
		a.stop = nil
		switch {
		case msg.err != nil:
			a.message = "Error: " + a.describe(msg.err)
		case msg.done:
			a.message = "Speech tasks complete."
		default:
			a.message = "Uploaded. Press r for the next task."
		}

	case resultsMsg:
		a.busy = false
		if msg.err != nil {
			a.message = "Error: " + a.describe(msg.err)
		} else if n := a.orch.Snapshot().Notice; n != session.NoticeNone {
			a.message = string(n)
		} else {
			a.message = "Result ready."
		}

	case tickMsg:
		if a.recording() {
			cmds = append(cmds, tick())
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		cmds = append(cmds, cmd)
	}

	a.syncInput()
	a.viewport.SetContent(a.body())
	return a, tea.Batch(cmds...)
}

func (a *App) handleKey(msg tea.KeyMsg) tea.Cmd {
	phase := a.orch.Phase()

	if a.input.Focused() {
		switch msg.String() {
		case "enter":
			return a.completeFreeResponse()
		case "esc":
			a.input.Blur()
			return nil
		}
		var cmd tea.Cmd
		a.input, cmd = a.input.Update(msg)
		return cmd
	}

	switch msg.String() {
	case "q":
		if a.recording() {
			return nil
		}
		a.shutdown()
		return tea.Quit
	case "pgup", "pgdown", "up", "down":
		var cmd tea.Cmd
		a.viewport, cmd = a.viewport.Update(msg)
		return cmd
	}

	switch phase {
	case models.PhaseOnboarding:
		if msg.String() == "enter" && !a.busy {
			a.busy = true
			a.message = "Registering..."
			return a.onboard()
		}

	case models.PhaseSpeech:
		return a.speechKey(msg.String())

	case models.PhaseCognitive:
		return a.cognitiveKey(msg.String())

	case models.PhaseResults:
		switch msg.String() {
		case "c":
			if a.busy {
				return nil
			}
			snap := a.orch.Snapshot()
			if !snap.Pending {
				return nil
			}
			a.busy = true
			a.message = "Checking for your result..."
			return a.results(true)
		case "n":
			if a.busy {
				return nil
			}
			a.orch.Reset()
			a.busy = true
			a.message = "Starting a new session..."
			return a.onboard()
		}
	}
	return nil
}

func (a *App) speechKey(key string) tea.Cmd {
	switch key {
	case "r", "enter":
		if a.busy {
			return nil
		}
		a.busy = true
		a.stop = make(chan struct{})
		a.message = "Recording. Press s to stop."
		return tea.Batch(a.record(a.stop), tick())
	case "s":
		if a.recording() {
			a.stopRecording()
			a.message = "Uploading..."
		}
	case "u":
		if a.busy {
			return nil
		}
		st, err := a.orch.Speech()
		if err != nil || !st.Pending {
			return nil
		}
		a.busy = true
		a.message = "Retrying upload..."
		return a.retryUpload()
	}
	return nil
}

func (a *App) cognitiveKey(key string) tea.Cmd {
	task, _, _, err := a.orch.Cognitive()
	if err != nil {
		a.message = "Error: " + err.Error()
		return nil
	}

	switch {
	case key == "enter":
		if task.Modality == models.ModalityFreeResponse {
			a.input.Focus()
			return textinput.Blink
		}
		return a.enter()
	case key == "backspace" && task.Modality == models.ModalityOrderedSequence:
		if err := a.orch.Undo(); err != nil {
			a.message = "Error: " + err.Error()
		}
	case len(key) == 1 && key >= "1" && key <= "9":
		n, _ := strconv.Atoi(key)
		return a.choose(task, n-1)
	}
	return nil
}

// enter begins an idle task or completes an active ordered sequence.
func (a *App) enter() tea.Cmd {
	task, st, _, err := a.orch.Cognitive()
	if err != nil {
		return nil
	}
	if isIdle(st) {
		if err := a.orch.BeginTask(); err != nil {
			a.message = "Error: " + err.Error()
		} else {
			a.message = ""
		}
		return nil
	}
	if task.Modality != models.ModalityOrderedSequence {
		return nil
	}
	finished, err := a.orch.CompleteTask()
	return a.afterStep(finished, err)
}

func (a *App) choose(task models.Task, option int) tea.Cmd {
	if option >= len(task.Options) {
		return nil
	}
	switch task.Modality {
	case models.ModalitySingleChoice:
		finished, err := a.orch.Select(option)
		return a.afterStep(finished, err)
	case models.ModalityOrderedSequence:
		if err := a.orch.Append(option); err != nil {
			a.message = "Error: " + err.Error()
		}
	}
	return nil
}

func (a *App) completeFreeResponse() tea.Cmd {
	if err := a.orch.SetText(strings.TrimSpace(a.input.Value())); err != nil {
		a.message = "Error: " + err.Error()
		return nil
	}
	finished, err := a.orch.CompleteTask()
	a.input.Reset()
	a.input.Blur()
	return a.afterStep(finished, err)
}

func (a *App) afterStep(finished bool, err error) tea.Cmd {
	if err != nil {
		a.message = "Error: " + err.Error()
		return nil
	}
	a.message = ""
	if !finished {
		return nil
	}
	a.busy = true
	a.message = "Submitting your answers..."
	return a.results(false)
}

func (a *App) syncInput() {
	task, _, _, err := a.orch.Cognitive()
	if err != nil || task.Modality != models.ModalityFreeResponse {
		a.input.Blur()
	}
}

func (a *App) recording() bool {
	st, err := a.orch.Speech()
	return err == nil && st.Recording
}

func (a *App) stopRecording() {
	if a.stop != nil {
		close(a.stop)
		a.stop = nil
	}
}

// describe prefers the session notice, which is worded for the participant.
func (a *App) describe(err error) string {
	if errors.Is(err, session.ErrCredentialExpired) {
		return err.Error() + " (n for a new session)"
	}
	if n := a.orch.Snapshot().Notice; n != session.NoticeNone {
		return string(n)
	}
	return err.Error()
}

// --- Commands ---

func (a *App) onboard() tea.Cmd {
	orch, ctx, reg := a.orch, a.ctx, a.reg
	return func() tea.Msg {
		return onboardedMsg{err: orch.Onboard(ctx, reg)}
	}
}

func (a *App) record(stop <-chan struct{}) tea.Cmd {
	orch, ctx := a.orch, a.ctx
	return func() tea.Msg {
		done, err := orch.RecordSpeech(ctx, stop)
		return speechDoneMsg{done: done, err: err}
	}
}

func (a *App) retryUpload() tea.Cmd {
	orch, ctx := a.orch, a.ctx
	return func() tea.Msg {
		done, err := orch.RetryUpload(ctx)
		return speechDoneMsg{done: done, err: err}
	}
}

func (a *App) results(recheck bool) tea.Cmd {
	orch, ctx := a.orch, a.ctx
	return func() tea.Msg {
		if recheck {
			return resultsMsg{err: orch.CheckResult(ctx)}
		}
		return resultsMsg{err: orch.SubmitResults(ctx)}
	}
}

func tick() tea.Cmd {
	return tea.Tick(tickInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// --- View ---

// View implements tea.Model
func (a *App) View() string {
	var b strings.Builder

	snap := a.orch.Snapshot()
	header := titleStyle.Render("MINDSCAN") + "  " + renderPhases(snap.Phase)
	if snap.Credential.User.Name != "" {
		header += "  " + lipgloss.NewStyle().Foreground(cyanColor).Render(snap.Credential.User.Name)
	}
	b.WriteString(header + "\n")
	b.WriteString(strings.Repeat("─", max(a.width, 1)) + "\n")

	b.WriteString(a.viewport.View() + "\n")

	// Message bar
	if a.message != "" {
		msgStyle := lipgloss.NewStyle().Foreground(successColor)
		if strings.HasPrefix(a.message, "Error") {
			msgStyle = lipgloss.NewStyle().Foreground(errorColor)
		}
		line := msgStyle.Render(a.message)
		if a.busy {
			line = a.spinner.View() + " " + line
		}
		b.WriteString("\n" + line)
	} else {
		b.WriteString("\n")
	}

	if a.input.Focused() {
		b.WriteString("\n" + inputBoxStyle.Render(a.input.View()))
	}
	b.WriteString("\n")

	b.WriteString(statusBarStyle.Width(max(a.width, 1)).Render(a.statusLine(snap)))
	return b.String()
}

func (a *App) body() string {
	snap := a.orch.Snapshot()
	switch snap.Phase {
	case models.PhaseOnboarding:
		return fmt.Sprintf("\nWelcome %s.\n\nThis screening has three speech tasks and a short set of cognitive tasks.\n", a.reg.Name)
	case models.PhaseSpeech:
		st, err := a.orch.Speech()
		if err != nil {
			return ""
		}
		return renderSpeech(st)
	case models.PhaseCognitive:
		task, st, idx, err := a.orch.Cognitive()
		if err != nil {
			return ""
		}
		return renderCognitive(task, st, idx, len(snap.CognitiveTasks))
	case models.PhaseResults:
		return renderResult(snap)
	}
	return ""
}

func (a *App) statusLine(snap session.Session) string {
	switch snap.Phase {
	case models.PhaseOnboarding:
		return " Enter:retry | q:quit"
	case models.PhaseSpeech:
		return " r:record | s:stop | u:retry upload | q:quit"
	case models.PhaseCognitive:
		task, _, _, err := a.orch.Cognitive()
		if err == nil {
			switch task.Modality {
			case models.ModalitySingleChoice:
				return " Enter:start | 1-9:answer | Ctrl+C:quit"
			case models.ModalityOrderedSequence:
				return " Enter:start/done | 1-9:add | Backspace:undo | Ctrl+C:quit"
			case models.ModalityFreeResponse:
				return " Enter:type answer, then Enter to submit | Esc:cancel | Ctrl+C:quit"
			}
		}
		return " Ctrl+C:quit"
	default:
		if snap.Pending {
			return " c:check again | n:new session | q:quit"
		}
		return " n:new session | q:quit"
	}
}
