package cognitive

import "time"

// State is the tagged union of per-task states: Idle, Active or Completed.
type State interface {
	state()
}

// Idle is the initial state; the timer has not started.
type Idle struct{}

// Active means the timer is running and input is accepted.
type Active struct {
	Start    time.Time
	Sequence []int
	Text     string
}

// Completed is terminal; the response is frozen.
type Completed struct {
	Outcome Outcome
}

func (Idle) state()      {}
func (Active) state()    {}
func (Completed) state() {}

// Outcome is the recorded response of a completed task.
type Outcome struct {
	ResponseTime time.Duration
	// Correct is nil when no correctness oracle exists.
	Correct *bool
	Errors  int
	// Selected is the chosen option for single-choice tasks, -1 otherwise.
	Selected int
	Sequence []int
	Text     string
}
