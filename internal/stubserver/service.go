// Package stubserver is an in-memory implementation of the assessment
// backend contract for local development and end-to-end tests.
package stubserver

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/fentz26/mindscan/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Defaults for Config.
const (
	DefaultTokenTTL   = 24 * time.Hour
	DefaultReadyAfter = 2
	DefaultSecret     = "change-me"
)

// Config configures the stub backend.
type Config struct {
	// Secret signs HS256 access tokens.
	Secret   []byte
	TokenTTL time.Duration
	// ReadyAfter is the number of result fetches answered with 404 after a
	// prediction is requested. Zero makes the result ready immediately.
	ReadyAfter int
	// StorageDir receives uploaded audio. Empty keeps only byte counts.
	StorageDir string
	Logger     *slog.Logger
}

type speechRecord struct {
	ID         string
	TaskID     string
	Language   string
	DurationMS int64
	Path       string
	Bytes      int64
}

type assessmentRecord struct {
	ID           string
	UserID       string
	Language     string
	CreatedAt    time.Time
	Samples      []speechRecord
	LogCount     int
	Scores       models.CognitiveScores
	ClockDrawing string
	Predicted    bool
	Fetches      int
	Result       *models.AssessmentResult
}

// Service holds stub backend state.
type Service struct {
	cfg Config
	log *slog.Logger
	now func() time.Time

	mu          sync.Mutex
	users       map[string]models.User
	assessments map[string]*assessmentRecord
}

// NewService creates a stub backend service.
func NewService(cfg Config) *Service {
	if len(cfg.Secret) == 0 {
		cfg.Secret = []byte(DefaultSecret)
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = DefaultTokenTTL
	}
	if cfg.ReadyAfter < 0 {
		cfg.ReadyAfter = 0
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Service{
		cfg:         cfg,
		log:         cfg.Logger.With("component", "stubserver"),
		now:         time.Now,
		users:       make(map[string]models.User),
		assessments: make(map[string]*assessmentRecord),
	}
}

// ValidateRegistration checks the onboarding payload the way the backend does.
func ValidateRegistration(reg models.Registration) error {
	verr := &ValidationError{}
	if n := utf8.RuneCountInString(reg.Name); n < 2 || n > 120 {
		verr.add("name", "String should have between 2 and 120 characters")
	}
	if reg.Age < 18 || reg.Age > 120 {
		verr.add("age", "Input should be between 18 and 120")
	}
	if n := utf8.RuneCountInString(reg.Language); n < 2 || n > 16 {
		verr.add("language", "String should have between 2 and 16 characters")
	}
	if len(verr.Fields) > 0 {
		return verr
	}
	return nil
}

const nonNegative = "Input should be greater than or equal to 0"

// ValidateCognitive checks a cognitive submission the way the backend does:
// at least one log, and no negative timings, error counts or scores.
func ValidateCognitive(sub models.CognitiveSubmission) error {
	verr := &ValidationError{}
	if len(sub.Logs) == 0 {
		verr.add("logs", "At least one log is required")
	}
	for i, l := range sub.Logs {
		if l.ResponseTimeMS < 0 {
			verr.add(fmt.Sprintf("logs.%d.response_time_ms", i), nonNegative)
		}
		if l.Errors != nil && *l.Errors < 0 {
			verr.add(fmt.Sprintf("logs.%d.errors", i), nonNegative)
		}
	}
	scores := []struct {
		field string
		value float64
	}{
		{"memory_score", sub.Scores.Memory},
		{"attention_score", sub.Scores.Attention},
		{"language_score", sub.Scores.Language},
		{"executive_score", sub.Scores.Executive},
	}
	for _, sc := range scores {
		if sc.value < 0 {
			verr.add("cognitive_scores."+sc.field, nonNegative)
		}
	}
	if len(verr.Fields) > 0 {
		return verr
	}
	return nil
}

// Register creates a user and issues a signed access token.
func (s *Service) Register(reg models.Registration) (models.Credential, error) {
	if err := ValidateRegistration(reg); err != nil {
		return models.Credential{}, err
	}

	now := s.now().UTC()
	user := models.User{
		ID:        uuid.New().String(),
		Name:      reg.Name,
		Age:       reg.Age,
		Language:  reg.Language,
		Consent:   reg.Consent,
		CreatedAt: now,
	}
	expires := now.Add(s.cfg.TokenTTL)
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   user.ID,
		ExpiresAt: jwt.NewNumericDate(expires),
		IssuedAt:  jwt.NewNumericDate(now),
	}).SignedString(s.cfg.Secret)
	if err != nil {
		return models.Credential{}, fmt.Errorf("sign token: %w", err)
	}

	s.mu.Lock()
	s.users[user.ID] = user
	s.mu.Unlock()

	s.log.Info("user registered", "user_id", user.ID, "language", user.Language)
	return models.Credential{User: user, AccessToken: token, ExpiresAt: expires.Truncate(time.Second)}, nil
}

// Authenticate verifies a bearer token and returns its subject.
func (s *Service) Authenticate(token string) (string, error) {
	if token == "" {
		return "", ErrMissingCredentials
	}
	claims := jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return s.cfg.Secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired(), jwt.WithTimeFunc(s.now))
	if err != nil || claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}

// StartAssessment opens an assessment in the user's language.
func (s *Service) StartAssessment(userID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[userID]
	if !ok {
		return "", ErrUserNotFound
	}
	a := &assessmentRecord{
		ID:        uuid.New().String(),
		UserID:    userID,
		Language:  user.Language,
		CreatedAt: s.now().UTC(),
	}
	s.assessments[a.ID] = a
	s.log.Info("assessment started", "assessment_id", a.ID, "user_id", userID)
	return a.ID, nil
}

// lookup returns the assessment if it belongs to userID. Callers hold mu.
func (s *Service) lookup(userID, assessmentID string) (*assessmentRecord, error) {
	a, ok := s.assessments[assessmentID]
	if !ok || a.UserID != userID {
		return nil, ErrNotFound
	}
	return a, nil
}

// StoreSpeech saves one uploaded audio sample.
func (s *Service) StoreSpeech(userID, assessmentID, taskID, language string, durationMS int64, audio io.Reader) (string, string, error) {
	s.mu.Lock()
	_, err := s.lookup(userID, assessmentID)
	s.mu.Unlock()
	if err != nil {
		return "", "", err
	}
	if taskID == "" {
		taskID = "speech"
	}

	rec := speechRecord{
		ID:         uuid.New().String(),
		TaskID:     taskID,
		Language:   language,
		DurationMS: durationMS,
	}
	if s.cfg.StorageDir != "" {
		dir := filepath.Join(s.cfg.StorageDir, assessmentID)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", "", fmt.Errorf("create storage dir: %w", err)
		}
		rec.Path = filepath.Join(dir, filepath.Base(taskID)+".wav")
		f, err := os.Create(rec.Path)
		if err != nil {
			return "", "", fmt.Errorf("create sample file: %w", err)
		}
		rec.Bytes, err = io.Copy(f, audio)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return "", "", fmt.Errorf("write sample: %w", err)
		}
	} else {
		rec.Path = "memory://" + assessmentID + "/" + taskID
		rec.Bytes, err = io.Copy(io.Discard, audio)
		if err != nil {
			return "", "", fmt.Errorf("read sample: %w", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	a, err := s.lookup(userID, assessmentID)
	if err != nil {
		return "", "", err
	}
	a.Samples = append(a.Samples, rec)
	s.log.Info("speech sample stored", "assessment_id", assessmentID, "task_id", taskID, "bytes", rec.Bytes)
	return rec.ID, rec.Path, nil
}

// SubmitCognitive records the cognitive phase data.
func (s *Service) SubmitCognitive(userID, assessmentID string, sub models.CognitiveSubmission) error {
	if err := ValidateCognitive(sub); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	a, err := s.lookup(userID, assessmentID)
	if err != nil {
		return err
	}
	a.LogCount += len(sub.Logs)
	a.Scores = sub.Scores
	a.ClockDrawing = sub.ClockDrawing
	return nil
}

// Predict runs the placeholder prediction pipeline. It is idempotent.
func (s *Service) Predict(userID, assessmentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, err := s.lookup(userID, assessmentID)
	if err != nil {
		return err
	}
	if a.Predicted {
		return nil
	}
	a.Predicted = true
	a.Fetches = 0
	a.Result = &models.AssessmentResult{
		AssessmentID: a.ID,
		// The historical label is kept so clients exercise synonym mapping.
		RiskLevel:   "Moderate",
		Probability: 0.55,
		FeatureImportances: []models.FeatureImportance{
			{Feature: "speech_rate", Contribution: 0.2, Direction: "positive"},
			{Feature: "memory_score", Contribution: 0.15, Direction: "negative"},
		},
		Recommendations: []string{
			"Consult a clinician for comprehensive evaluation",
			"Maintain mentally stimulating activities",
		},
		GeneratedAt: s.now().UTC(),
	}
	s.log.Info("prediction requested", "assessment_id", a.ID, "samples", len(a.Samples), "logs", a.LogCount)
	return nil
}

// Result returns the prediction once ReadyAfter fetches have been answered
// with ErrNotReady.
func (s *Service) Result(userID, assessmentID string) (models.AssessmentResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, err := s.lookup(userID, assessmentID)
	if err != nil {
		return models.AssessmentResult{}, err
	}
	if !a.Predicted || a.Result == nil {
		return models.AssessmentResult{}, ErrNotReady
	}
	if a.Fetches < s.cfg.ReadyAfter {
		a.Fetches++
		return models.AssessmentResult{}, ErrNotReady
	}
	res := *a.Result
	res.SubScores = a.Scores
	return res, nil
}

// SampleCount returns the number of stored samples for an assessment.
func (s *Service) SampleCount(assessmentID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.assessments[assessmentID]; ok {
		return len(a.Samples)
	}
	return 0
}

func isValidation(err error) bool {
	var verr *ValidationError
	return errors.As(err, &verr)
}
