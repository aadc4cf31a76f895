package session

import (
	"errors"
	"fmt"
)

// Sentinel errors for orchestration.
var (
	ErrNoAssessment      = errors.New("no assessment in progress")
	ErrWrongPhase        = errors.New("operation not allowed in this phase")
	ErrBusy              = errors.New("another operation is in progress")
	ErrStaleSession      = errors.New("session was reset while the operation was running")
	ErrCredentialExpired = errors.New("access credential expired, please start a new session")
	ErrNotPending        = errors.New("no result is pending")
)

// ValidationError rejects onboarding input before anything is sent.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Notice is the user-facing status left by the last operation.
type Notice string

const (
	NoticeNone              Notice = ""
	NoticeUploadFailed      Notice = "Upload failed. Please try again."
	NoticeDeviceUnavailable Notice = "Microphone unavailable. Check the recording device and try again."
	NoticeStillComputing    Notice = "Your result is still processing. Check again in a moment."
	NoticeSubmitFailed      Notice = "Could not submit your answers. Please try again."
)
