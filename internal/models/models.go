// Package models defines the core domain types for mindscan.
package models

import (
	"strings"
	"time"
)

// Phase is one of the four top-level stages of a session.
type Phase string

const (
	PhaseOnboarding Phase = "onboarding"
	PhaseSpeech     Phase = "speech"
	PhaseCognitive  Phase = "cognitive"
	PhaseResults    Phase = "results"
)

// Modality is the single input modality of a task.
type Modality string

const (
	ModalitySingleChoice    Modality = "single-choice"
	ModalityOrderedSequence Modality = "ordered-sequence"
	ModalityFreeResponse    Modality = "free-response"
	ModalityTimedAudio      Modality = "timed-audio"
)

// TaskKind identifies what a task probes. It drives domain attribution.
type TaskKind string

const (
	KindWordRecall   TaskKind = "word-recall"
	KindDigitSpan    TaskKind = "digit-span"
	KindAttention    TaskKind = "attention"
	KindClockDrawing TaskKind = "clock-drawing"
	// KindMotor is reserved for motor/articulation probes. No generator emits it.
	KindMotor TaskKind = "motor"

	KindSpeechReading     TaskKind = "speech-reading"
	KindSpeechDescription TaskKind = "speech-description"
	KindSpeechFluency     TaskKind = "speech-fluency"
)

// Category is the task category reported to the backend.
type Category string

const (
	CategorySpeech    Category = "speech"
	CategoryCognitive Category = "cognitive"
)

// NoCorrectOption marks a single-choice task without a designated answer.
const NoCorrectOption = -1

// Task is one atomic interaction unit requiring a timed response.
type Task struct {
	ID       string   `json:"id"`
	Kind     TaskKind `json:"kind"`
	Modality Modality `json:"modality"`
	Prompt   string   `json:"prompt"`
	Options  []string `json:"options,omitempty"`
	// CorrectOption is the designated answer for single-choice tasks, or NoCorrectOption.
	CorrectOption int `json:"correct_option"`
	// Expected is the index permutation into Options for ordered-sequence tasks.
	Expected    []int         `json:"expected,omitempty"`
	MaxDuration time.Duration `json:"max_duration,omitempty"`
}

// Category returns speech for timed-audio tasks and cognitive otherwise.
func (t Task) Category() Category {
	if t.Modality == ModalityTimedAudio {
		return CategorySpeech
	}
	return CategoryCognitive
}

// HasCorrectOption reports whether a single-choice task has a designated answer.
func (t Task) HasCorrectOption() bool {
	return t.CorrectOption >= 0 && t.CorrectOption < len(t.Options)
}

// InteractionLog is the immutable projection of a completed task for transmission.
type InteractionLog struct {
	TaskID         string         `json:"task_id"`
	TaskType       Category       `json:"task_type"`
	Prompt         string         `json:"prompt"`
	ResponseTimeMS int64          `json:"response_time_ms"`
	Correct        *bool          `json:"correct"`
	Errors         *int           `json:"errors"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// CognitiveScores holds the four domain sub-scores.
type CognitiveScores struct {
	Memory    float64 `json:"memory"`
	Attention float64 `json:"attention"`
	Language  float64 `json:"language"`
	Executive float64 `json:"executive"`
}

// RiskLevel is the three-way categorical output of the prediction service.
type RiskLevel string

const (
	RiskLow    RiskLevel = "Low"
	RiskMedium RiskLevel = "Medium"
	RiskHigh   RiskLevel = "High"
)

// ParseRiskLevel maps a wire label onto the canonical scale.
// The historical label "Moderate" is a synonym for Medium.
func ParseRiskLevel(label string) (RiskLevel, bool) {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "low":
		return RiskLow, true
	case "medium", "moderate":
		return RiskMedium, true
	case "high":
		return RiskHigh, true
	}
	return "", false
}

// FeatureImportance is one ranked entry explaining a prediction.
type FeatureImportance struct {
	Feature      string  `json:"feature"`
	Contribution float64 `json:"contribution"`
	Direction    string  `json:"direction"`
}

// AssessmentResult is the server-computed outcome of an assessment.
type AssessmentResult struct {
	AssessmentID       string              `json:"assessment_id"`
	RiskLevel          RiskLevel           `json:"risk_level"`
	Probability        float64             `json:"probability"`
	FeatureImportances []FeatureImportance `json:"feature_importances"`
	SubScores          CognitiveScores     `json:"sub_scores"`
	Recommendations    []string            `json:"recommendations"`
	GeneratedAt        time.Time           `json:"generated_at"`
}

// Registration is the onboarding payload.
type Registration struct {
	Name     string `json:"name"`
	Age      int    `json:"age"`
	Language string `json:"language"`
	Consent  bool   `json:"consent"`
}

// User is the registered user record.
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Age       int       `json:"age"`
	Language  string    `json:"language"`
	Consent   bool      `json:"consent"`
	CreatedAt time.Time `json:"created_at"`
}

// Credential is the access credential returned by registration.
type Credential struct {
	User        User      `json:"user"`
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Expired reports whether the credential has a known expiry before now.
func (c Credential) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && !now.Before(c.ExpiresAt)
}

// SpeechSample is one uploaded audio artifact.
type SpeechSample struct {
	AssessmentID string
	TaskID       string
	Language     string
	Audio        []byte
	Duration     time.Duration
}

// CognitiveSubmission is the payload of the cognitive phase.
type CognitiveSubmission struct {
	Logs         []InteractionLog `json:"logs"`
	Scores       CognitiveScores  `json:"cognitive_scores"`
	ClockDrawing string           `json:"clock_drawing,omitempty"`
}

// HistoryEntry is one cached result in a user's history.
type HistoryEntry struct {
	UserKey      string           `json:"user_key"`
	AssessmentID string           `json:"assessment_id"`
	Result       AssessmentResult `json:"result"`
	StoredAt     time.Time        `json:"stored_at"`
}
