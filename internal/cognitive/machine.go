// Package cognitive drives the timed cognitive tasks of a session.
package cognitive

import (
	"errors"
	"fmt"
	"time"

	"github.com/fentz26/mindscan/internal/models"
	"github.com/fentz26/mindscan/internal/scoring"
)

// Sentinel errors for illegal transitions.
var (
	ErrNoTasks            = errors.New("no cognitive tasks")
	ErrFinished           = errors.New("all cognitive tasks are completed")
	ErrNotFinished        = errors.New("cognitive tasks are still in progress")
	ErrAlreadyActive      = errors.New("task already started")
	ErrNotActive          = errors.New("task not started")
	ErrWrongModality      = errors.New("input not accepted by this task")
	ErrOptionOutOfRange   = errors.New("option out of range")
	ErrDuplicateSelection = errors.New("option already selected")
	ErrSequenceFull       = errors.New("sequence already complete")
	ErrNothingToUndo      = errors.New("nothing to undo")
	ErrNoSelection        = errors.New("select an option to complete this task")
)

// Machine owns the state of every cognitive task and enforces strict
// sequential progression: only the current task accepts input.
type Machine struct {
	tasks   []models.Task
	states  []State
	current int
	now     func() time.Time
}

// New creates a machine over tasks with every task idle.
func New(tasks []models.Task) *Machine {
	return NewWithClock(tasks, time.Now)
}

// NewWithClock is New with an injectable clock.
func NewWithClock(tasks []models.Task, now func() time.Time) *Machine {
	states := make([]State, len(tasks))
	for i := range states {
		states[i] = Idle{}
	}
	return &Machine{
		tasks:  append([]models.Task(nil), tasks...),
		states: states,
		now:    now,
	}
}

// Len returns the number of tasks.
func (m *Machine) Len() int { return len(m.tasks) }

// Index returns the position of the current task.
func (m *Machine) Index() int { return m.current }

// Finished reports whether every task is completed.
func (m *Machine) Finished() bool {
	return len(m.tasks) > 0 && m.current >= len(m.tasks)
}

// Current returns the current task and its state.
func (m *Machine) Current() (models.Task, State, error) {
	if len(m.tasks) == 0 {
		return models.Task{}, nil, ErrNoTasks
	}
	if m.Finished() {
		return models.Task{}, nil, ErrFinished
	}
	return m.tasks[m.current], m.states[m.current], nil
}

// StateOf returns the state of the task with the given id.
func (m *Machine) StateOf(taskID string) (State, bool) {
	for i, t := range m.tasks {
		if t.ID == taskID {
			return m.states[i], true
		}
	}
	return nil, false
}

// Begin starts the timer of the current task.
func (m *Machine) Begin() error {
	_, st, err := m.Current()
	if err != nil {
		return err
	}
	if _, ok := st.(Idle); !ok {
		return ErrAlreadyActive
	}
	m.states[m.current] = Active{Start: m.now()}
	return nil
}

// Select answers a single-choice task and completes it immediately.
func (m *Machine) Select(option int) (finished bool, err error) {
	task, active, err := m.active()
	if err != nil {
		return false, err
	}
	if task.Modality != models.ModalitySingleChoice {
		return false, ErrWrongModality
	}
	if option < 0 || option >= len(task.Options) {
		return false, fmt.Errorf("%w: %d", ErrOptionOutOfRange, option)
	}

	out := Outcome{
		ResponseTime: m.now().Sub(active.Start),
		Selected:     option,
	}
	if task.HasCorrectOption() {
		ok := option == task.CorrectOption
		out.Correct = &ok
	}
	return m.complete(out), nil
}

// Append adds an option to the in-progress sequence of an ordered task.
// It never completes the task.
func (m *Machine) Append(option int) error {
	task, active, err := m.active()
	if err != nil {
		return err
	}
	if task.Modality != models.ModalityOrderedSequence {
		return ErrWrongModality
	}
	if option < 0 || option >= len(task.Options) {
		return fmt.Errorf("%w: %d", ErrOptionOutOfRange, option)
	}
	for _, s := range active.Sequence {
		if s == option {
			return ErrDuplicateSelection
		}
	}
	if len(active.Sequence) >= len(task.Expected) {
		return ErrSequenceFull
	}

	active.Sequence = append(append([]int(nil), active.Sequence...), option)
	m.states[m.current] = active
	return nil
}

// Undo removes the most recent element of the in-progress sequence.
// Timing is not affected.
func (m *Machine) Undo() error {
	task, active, err := m.active()
	if err != nil {
		return err
	}
	if task.Modality != models.ModalityOrderedSequence {
		return ErrWrongModality
	}
	if len(active.Sequence) == 0 {
		return ErrNothingToUndo
	}
	active.Sequence = append([]int(nil), active.Sequence[:len(active.Sequence)-1]...)
	m.states[m.current] = active
	return nil
}

// SetText records the free-text answer of a free-response task.
func (m *Machine) SetText(text string) error {
	task, st, err := m.Current()
	if err != nil {
		return err
	}
	if task.Modality != models.ModalityFreeResponse {
		return ErrWrongModality
	}
	active, ok := st.(Active)
	if !ok {
		if _, done := st.(Completed); done {
			return ErrFinished
		}
		active = Active{Start: m.now()}
	}
	active.Text = text
	m.states[m.current] = active
	return nil
}

// Complete finishes the current task explicitly.
//
// Ordered tasks count element-wise mismatches over the longer of the
// expected and selected sequences; a missing position is a mismatch.
// Free-response tasks are always correct, and an idle free-response task
// is started implicitly.
func (m *Machine) Complete() (finished bool, err error) {
	task, st, err := m.Current()
	if err != nil {
		return false, err
	}

	if task.Modality == models.ModalityFreeResponse {
		active, ok := st.(Active)
		if !ok {
			active = Active{Start: m.now()}
		}
		correct := true
		return m.complete(Outcome{
			ResponseTime: m.now().Sub(active.Start),
			Correct:      &correct,
			Selected:     -1,
			Text:         active.Text,
		}), nil
	}

	active, ok := st.(Active)
	if !ok {
		return false, ErrNotActive
	}

	switch task.Modality {
	case models.ModalityOrderedSequence:
		mismatches := Mismatches(task.Expected, active.Sequence)
		correct := mismatches == 0 && len(task.Expected) == len(active.Sequence)
		return m.complete(Outcome{
			ResponseTime: m.now().Sub(active.Start),
			Correct:      &correct,
			Errors:       mismatches,
			Selected:     -1,
			Sequence:     active.Sequence,
		}), nil
	case models.ModalitySingleChoice:
		return false, ErrNoSelection
	default:
		return false, ErrWrongModality
	}
}

// Mismatches counts positions where expected and selected differ over the
// longer of the two; positions present in only one count as mismatches.
func Mismatches(expected, selected []int) int {
	n := len(expected)
	if len(selected) > n {
		n = len(selected)
	}
	count := 0
	for i := 0; i < n; i++ {
		if i >= len(expected) || i >= len(selected) || expected[i] != selected[i] {
			count++
		}
	}
	return count
}

// Outcomes returns the scoring inputs of every task. It fails until all
// tasks are completed.
func (m *Machine) Outcomes() ([]scoring.Outcome, error) {
	if !m.Finished() {
		return nil, ErrNotFinished
	}
	out := make([]scoring.Outcome, len(m.tasks))
	for i, t := range m.tasks {
		c := m.states[i].(Completed)
		out[i] = scoring.Outcome{Kind: t.Kind, Correct: c.Outcome.Correct, Errors: c.Outcome.Errors}
	}
	return out, nil
}

// Logs assembles the interaction logs of every task. It fails until all
// tasks are completed.
func (m *Machine) Logs() ([]models.InteractionLog, error) {
	if !m.Finished() {
		return nil, ErrNotFinished
	}
	logs := make([]models.InteractionLog, len(m.tasks))
	for i, t := range m.tasks {
		o := m.states[i].(Completed).Outcome
		errs := o.Errors
		logs[i] = models.InteractionLog{
			TaskID:         t.ID,
			TaskType:       t.Category(),
			Prompt:         t.Prompt,
			ResponseTimeMS: o.ResponseTime.Milliseconds(),
			Correct:        o.Correct,
			Errors:         &errs,
			Metadata:       metadata(t, o),
		}
	}
	return logs, nil
}

// FreeText returns the text recorded for the first free-response task.
func (m *Machine) FreeText() string {
	for i, t := range m.tasks {
		if t.Modality != models.ModalityFreeResponse {
			continue
		}
		switch st := m.states[i].(type) {
		case Completed:
			return st.Outcome.Text
		case Active:
			return st.Text
		}
	}
	return ""
}

func metadata(t models.Task, o Outcome) map[string]any {
	switch t.Modality {
	case models.ModalityOrderedSequence:
		return map[string]any{
			"kind":     string(t.Kind),
			"expected": t.Expected,
			"selected": o.Sequence,
		}
	case models.ModalitySingleChoice:
		md := map[string]any{
			"kind":     string(t.Kind),
			"selected": o.Selected,
		}
		if t.HasCorrectOption() {
			md["correct_option"] = t.CorrectOption
		}
		return md
	case models.ModalityFreeResponse:
		return map[string]any{
			"kind":        string(t.Kind),
			"text_length": len([]rune(o.Text)),
		}
	}
	return nil
}

func (m *Machine) active() (models.Task, Active, error) {
	task, st, err := m.Current()
	if err != nil {
		return models.Task{}, Active{}, err
	}
	active, ok := st.(Active)
	if !ok {
		return models.Task{}, Active{}, ErrNotActive
	}
	return task, active, nil
}

// complete freezes the current task and advances the pointer.
func (m *Machine) complete(out Outcome) bool {
	m.states[m.current] = Completed{Outcome: out}
	m.current++
	return m.Finished()
}
