package backend

import (
	"fmt"
	"time"

	"github.com/fentz26/mindscan/internal/models"
	"github.com/golang-jwt/jwt/v5"
)

// Wire types mirror the backend's snake_case JSON.

type registerRequest struct {
	Name     string `json:"name"`
	Age      int    `json:"age"`
	Language string `json:"language"`
	Consent  bool   `json:"consent"`
}

type userRecord struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Age       int       `json:"age"`
	Language  string    `json:"language"`
	Consent   bool      `json:"consent"`
	CreatedAt time.Time `json:"created_at"`
}

type registerResponse struct {
	User        userRecord `json:"user"`
	AccessToken string     `json:"access_token"`
	ExpiresAt   time.Time  `json:"expires_at"`
}

type startResponse struct {
	AssessmentID string `json:"assessment_id"`
}

type uploadResponse struct {
	SampleID string `json:"sample_id"`
	Path     string `json:"path"`
}

type successResponse struct {
	Success bool `json:"success"`
}

type interactionLog struct {
	TaskID         string         `json:"task_id"`
	TaskType       string         `json:"task_type"`
	Prompt         string         `json:"prompt"`
	ResponseTimeMS int64          `json:"response_time_ms"`
	Correct        *bool          `json:"correct"`
	Errors         *int           `json:"errors"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

type cognitiveScores struct {
	Memory    float64 `json:"memory_score"`
	Attention float64 `json:"attention_score"`
	Language  float64 `json:"language_score"`
	Executive float64 `json:"executive_score"`
}

type cognitiveRequest struct {
	Logs         []interactionLog `json:"logs"`
	Scores       cognitiveScores  `json:"cognitive_scores"`
	ClockDrawing *string          `json:"clock_drawing,omitempty"`
}

type featureImportance struct {
	Feature      string  `json:"feature"`
	Contribution float64 `json:"contribution"`
	Direction    string  `json:"direction"`
}

type resultResponse struct {
	AssessmentID       string              `json:"assessment_id"`
	RiskLevel          string              `json:"risk_level"`
	Probability        float64             `json:"probability"`
	FeatureImportances []featureImportance `json:"feature_importances"`
	SubScores          cognitiveScores     `json:"sub_scores"`
	Recommendations    []string            `json:"recommendations"`
	GeneratedAt        time.Time           `json:"generated_at"`
}

func (r resultResponse) toModel() (models.AssessmentResult, error) {
	level, ok := models.ParseRiskLevel(r.RiskLevel)
	if !ok {
		return models.AssessmentResult{}, fmt.Errorf("%w: unknown risk level %q", ErrInvalidResponse, r.RiskLevel)
	}
	if r.Probability < 0 || r.Probability > 1 {
		return models.AssessmentResult{}, fmt.Errorf("%w: probability %v out of range", ErrInvalidResponse, r.Probability)
	}

	out := models.AssessmentResult{
		AssessmentID: r.AssessmentID,
		RiskLevel:    level,
		Probability:  r.Probability,
		SubScores: models.CognitiveScores{
			Memory:    r.SubScores.Memory,
			Attention: r.SubScores.Attention,
			Language:  r.SubScores.Language,
			Executive: r.SubScores.Executive,
		},
		Recommendations: r.Recommendations,
		GeneratedAt:     r.GeneratedAt,
	}
	for _, f := range r.FeatureImportances {
		out.FeatureImportances = append(out.FeatureImportances, models.FeatureImportance{
			Feature:      f.Feature,
			Contribution: f.Contribution,
			Direction:    f.Direction,
		})
	}
	return out, nil
}

// TokenExpiry reads the exp claim of a JWT without verifying its signature.
// The client never holds the signing key; the claim only schedules re-login.
func TokenExpiry(token string) (time.Time, bool) {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}
