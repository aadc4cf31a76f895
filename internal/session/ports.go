package session

import (
	"context"

	"github.com/fentz26/mindscan/internal/models"
	"github.com/fentz26/mindscan/internal/store"
)

//go:generate mockgen -destination=mock_backend_test.go -package=session . Backend

// Backend is the assessment service contract. *backend.Client implements it.
type Backend interface {
	Register(ctx context.Context, reg models.Registration) (models.Credential, error)
	StartAssessment(ctx context.Context, token string) (string, error)
	UploadSpeech(ctx context.Context, token string, sample models.SpeechSample) error
	SubmitCognitive(ctx context.Context, token, assessmentID string, sub models.CognitiveSubmission) error
	RequestPrediction(ctx context.Context, token, assessmentID string) error
	FetchResult(ctx context.Context, token, assessmentID string) (models.AssessmentResult, error)
}

// HistoryCache is the per-user result cache. *store.Store implements it.
type HistoryCache interface {
	AppendHistory(ctx context.Context, userKey string, result models.AssessmentResult) (bool, error)
	SavePending(ctx context.Context, p store.PendingResult) error
	DeletePending(ctx context.Context, assessmentID string) error
}
