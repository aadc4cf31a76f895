package tui

import "time"

// onboardedMsg reports the end of an onboarding attempt.
type onboardedMsg struct {
	err error
}

// speechDoneMsg reports the end of a record-and-upload or retry.
type speechDoneMsg struct {
	done bool
	err  error
}

// resultsMsg reports the end of a submit or re-check.
type resultsMsg struct {
	err error
}

type tickMsg time.Time
