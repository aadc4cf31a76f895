package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/fentz26/mindscan/internal/cognitive"
	"github.com/fentz26/mindscan/internal/models"
	"github.com/fentz26/mindscan/internal/session"
)

var (
	// Colors
	primaryColor   = lipgloss.Color("#7C3AED")
	secondaryColor = lipgloss.Color("#6366F1")
	successColor   = lipgloss.Color("#10B981")
	warningColor   = lipgloss.Color("#F59E0B")
	errorColor     = lipgloss.Color("#EF4444")
	mutedColor     = lipgloss.Color("#6B7280")
	fgColor        = lipgloss.Color("#F9FAFB")
	cyanColor      = lipgloss.Color("#06B6D4")

	// Styles
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			Padding(0, 1)

	statusBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("#374151")).
			Foreground(fgColor).
			Padding(0, 1)

	inputBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(primaryColor).
			Padding(0, 1)

	optionStyle = lipgloss.NewStyle().
			Padding(0, 2)

	pickedStyle = lipgloss.NewStyle().
			Background(primaryColor).
			Foreground(fgColor).
			Bold(true).
			Padding(0, 2)

	helpStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Italic(true)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(mutedColor).
			Padding(0, 1)

	activePhaseStyle = lipgloss.NewStyle().
				Foreground(fgColor).
				Background(secondaryColor).
				Bold(true).
				Padding(0, 1)

	phaseStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Padding(0, 1)
)

var phases = []models.Phase{
	models.PhaseOnboarding,
	models.PhaseSpeech,
	models.PhaseCognitive,
	models.PhaseResults,
}

func renderPhases(current models.Phase) string {
	parts := make([]string, len(phases))
	for i, p := range phases {
		label := strings.ToUpper(string(p))
		if p == current {
			parts[i] = activePhaseStyle.Render(label)
		} else {
			parts[i] = phaseStyle.Render(label)
		}
	}
	return strings.Join(parts, lipgloss.NewStyle().Foreground(mutedColor).Render("›"))
}

func renderSpeech(st session.SpeechStatus) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Speech task %d of %d\n\n", st.Index+1, st.Total)
	b.WriteString(panelStyle.Render(st.Task.Prompt) + "\n\n")

	elapsed := st.Elapsed.Truncate(100 * time.Millisecond)
	limit := st.Task.MaxDuration
	switch {
	case st.Recording:
		b.WriteString(lipgloss.NewStyle().Foreground(errorColor).Bold(true).Render("● REC"))
		fmt.Fprintf(&b, "  %s / %s\n", elapsed, limit)
	case st.Pending:
		b.WriteString(lipgloss.NewStyle().Foreground(warningColor).Render("Recording kept, not yet uploaded"))
		fmt.Fprintf(&b, "  (%s)\n", elapsed)
	default:
		fmt.Fprintf(&b, "Up to %s of speech.\n", limit)
	}
	return b.String()
}

func renderCognitive(task models.Task, st cognitive.State, index, total int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Task %d of %d\n\n", index+1, total)
	b.WriteString(panelStyle.Render(task.Prompt) + "\n\n")

	if isIdle(st) && task.Modality != models.ModalityFreeResponse {
		b.WriteString(helpStyle.Render("Press enter when you are ready to start.") + "\n")
		return b.String()
	}

	var picked []int
	if active, ok := st.(cognitive.Active); ok {
		picked = active.Sequence
	}

	switch task.Modality {
	case models.ModalitySingleChoice, models.ModalityOrderedSequence:
		for i, opt := range task.Options {
			line := fmt.Sprintf("%d. %s", i+1, opt)
			if pos := indexOf(picked, i); pos >= 0 {
				b.WriteString(pickedStyle.Render(fmt.Sprintf("%s  #%d", line, pos+1)) + "\n")
			} else {
				b.WriteString(optionStyle.Render(line) + "\n")
			}
		}
		if task.Modality == models.ModalityOrderedSequence {
			seq := make([]string, len(picked))
			for i, p := range picked {
				seq[i] = task.Options[p]
			}
			fmt.Fprintf(&b, "\nYour order (%d/%d): %s\n", len(picked), len(task.Expected), strings.Join(seq, ", "))
		}
	}
	return b.String()
}

func riskStyle(level models.RiskLevel) lipgloss.Style {
	switch level {
	case models.RiskLow:
		return lipgloss.NewStyle().Foreground(successColor).Bold(true)
	case models.RiskMedium:
		return lipgloss.NewStyle().Foreground(warningColor).Bold(true)
	default:
		return lipgloss.NewStyle().Foreground(errorColor).Bold(true)
	}
}

func renderResult(s session.Session) string {
	var b strings.Builder
	if s.Result == nil {
		if s.Pending {
			b.WriteString("Your answers are being analysed.\n")
		}
		if s.Scores != nil {
			b.WriteString("\n" + renderScores(*s.Scores))
		}
		return b.String()
	}

	r := s.Result
	fmt.Fprintf(&b, "Risk level: %s   probability %.0f%%\n\n",
		riskStyle(r.RiskLevel).Render(string(r.RiskLevel)), r.Probability*100)
	b.WriteString(renderScores(r.SubScores))

	if len(r.FeatureImportances) > 0 {
		b.WriteString("\nTop factors\n")
		for _, f := range r.FeatureImportances {
			fmt.Fprintf(&b, "  %-20s %+.2f  %s\n", f.Feature, f.Contribution, f.Direction)
		}
	}
	if len(r.Recommendations) > 0 {
		b.WriteString("\nRecommendations\n")
		for _, rec := range r.Recommendations {
			b.WriteString("  • " + rec + "\n")
		}
	}
	if !r.GeneratedAt.IsZero() {
		b.WriteString("\n" + helpStyle.Render("Generated "+r.GeneratedAt.Local().Format(time.RFC1123)) + "\n")
	}
	return b.String()
}

func renderScores(s models.CognitiveScores) string {
	return lipgloss.NewStyle().Foreground(cyanColor).Render(fmt.Sprintf(
		"Memory %.1f  Attention %.1f  Language %.1f  Executive %.1f",
		s.Memory, s.Attention, s.Language, s.Executive)) + "\n"
}

func isIdle(st cognitive.State) bool {
	_, ok := st.(cognitive.Idle)
	return ok
}

func indexOf(xs []int, v int) int {
	for i, x := range xs {
		if x == v {
			return i
		}
	}
	return -1
}
