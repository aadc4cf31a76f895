package backend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fentz26/mindscan/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL + "/")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestRegister(t *testing.T) {
	exp := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/users", r.URL.Path)

		var req registerRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "Ada", req.Name)
		assert.Equal(t, 70, req.Age)
		assert.True(t, req.Consent)

		writeJSON(w, http.StatusCreated, map[string]any{
			"user":         map[string]any{"id": "u1", "name": "Ada", "age": 70, "language": "en", "consent": true},
			"access_token": "tok",
			"expires_at":   exp,
		})
	})

	cred, err := c.Register(context.Background(), models.Registration{Name: "Ada", Age: 70, Language: "en", Consent: true})
	require.NoError(t, err)
	assert.Equal(t, "u1", cred.User.ID)
	assert.Equal(t, "tok", cred.AccessToken)
	assert.True(t, cred.ExpiresAt.Equal(exp))
}

func TestRegisterFallsBackToTokenExpiry(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "u1",
		ExpiresAt: jwt.NewNumericDate(exp),
	}).SignedString([]byte("secret"))
	require.NoError(t, err)

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"user":         map[string]any{"id": "u1"},
			"access_token": token,
		})
	})

	cred, err := c.Register(context.Background(), models.Registration{Name: "Ada", Age: 70, Language: "en", Consent: true})
	require.NoError(t, err)
	assert.True(t, cred.ExpiresAt.Equal(exp))
}

func TestRegisterValidationErrorSurfacedVerbatim(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"detail": []map[string]any{
				{"loc": []any{"body", "age"}, "msg": "Input should be greater than or equal to 18"},
			},
		})
	})

	_, err := c.Register(context.Background(), models.Registration{Name: "Ada", Age: 12, Language: "en", Consent: true})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.True(t, apiErr.IsValidation())
	assert.Equal(t, "age: Input should be greater than or equal to 18", apiErr.Detail)
	assert.Contains(t, err.Error(), "greater than or equal to 18")
}

func TestStartAssessmentSendsBearer(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		writeJSON(w, http.StatusOK, map[string]string{"assessment_id": "a1"})
	})

	id, err := c.StartAssessment(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, "a1", id)
}

func TestStartAssessmentUnauthorized(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Invalid token"})
	})

	_, err := c.StartAssessment(context.Background(), "bad")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.True(t, apiErr.IsUnauthorized())
	assert.Equal(t, "Invalid token", apiErr.Detail)
}

func TestUploadSpeechMultipart(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/assessments/a1/speech", r.URL.Path)
		assert.Equal(t, "speech-reading", r.URL.Query().Get("task_id"))
		assert.Equal(t, "es", r.URL.Query().Get("language"))
		assert.Equal(t, "1500", r.URL.Query().Get("duration_ms"))

		f, hdr, err := r.FormFile("file")
		require.NoError(t, err)
		defer f.Close()
		data, _ := io.ReadAll(f)
		assert.Equal(t, "RIFFdata", string(data))
		assert.Equal(t, "speech-reading.wav", hdr.Filename)

		writeJSON(w, http.StatusOK, map[string]string{"sample_id": "s1", "path": "/tmp/s1.wav"})
	})

	err := c.UploadSpeech(context.Background(), "tok", models.SpeechSample{
		AssessmentID: "a1",
		TaskID:       "speech-reading",
		Language:     "es",
		Audio:        []byte("RIFFdata"),
		Duration:     1500 * time.Millisecond,
	})
	require.NoError(t, err)
}

func TestSubmitCognitiveWireFormat(t *testing.T) {
	correct := true
	errs := 0
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		scores := body["cognitive_scores"].(map[string]any)
		assert.Equal(t, 0.9, scores["memory_score"])
		assert.Equal(t, 2.0, scores["attention_score"])
		assert.Equal(t, "ten past eleven", body["clock_drawing"])

		logs := body["logs"].([]any)
		require.Len(t, logs, 1)
		entry := logs[0].(map[string]any)
		assert.Equal(t, "word-recall", entry["task_id"])
		assert.Equal(t, "cognitive", entry["task_type"])
		assert.Equal(t, 1200.0, entry["response_time_ms"])

		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
	})

	err := c.SubmitCognitive(context.Background(), "tok", "a1", models.CognitiveSubmission{
		Logs: []models.InteractionLog{{
			TaskID:         "word-recall",
			TaskType:       models.CategoryCognitive,
			ResponseTimeMS: 1200,
			Correct:        &correct,
			Errors:         &errs,
		}},
		Scores:       models.CognitiveScores{Memory: 0.9, Attention: 2},
		ClockDrawing: "ten past eleven",
	})
	require.NoError(t, err)
}

func TestRequestPredictionUnsuccessful(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]bool{"success": false})
	})
	err := c.RequestPrediction(context.Background(), "tok", "a1")
	assert.ErrorIs(t, err, ErrUnsuccessful)
}

func TestFetchResultNormalizesModerate(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"assessment_id": "a1",
			"risk_level":    "Moderate",
			"probability":   0.52,
			"feature_importances": []map[string]any{
				{"feature": "pause_rate", "contribution": 0.2, "direction": "increase"},
			},
			"sub_scores":      map[string]float64{"memory_score": 0.8, "attention_score": 1.5},
			"recommendations": []string{"Follow up in 6 months"},
			"generated_at":    "2026-01-02T03:04:05Z",
		})
	})

	res, err := c.FetchResult(context.Background(), "tok", "a1")
	require.NoError(t, err)
	assert.Equal(t, models.RiskMedium, res.RiskLevel)
	assert.Equal(t, 0.52, res.Probability)
	assert.Equal(t, 0.8, res.SubScores.Memory)
	require.Len(t, res.FeatureImportances, 1)
	assert.Equal(t, "pause_rate", res.FeatureImportances[0].Feature)
	assert.Equal(t, 2026, res.GeneratedAt.Year())
}

func TestFetchResultNotReady(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Prediction not ready"})
	})
	_, err := c.FetchResult(context.Background(), "tok", "a1")
	assert.ErrorIs(t, err, ErrNotReady)
}

func TestFetchResultUnknownRiskLevel(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"risk_level": "Severe", "probability": 0.9})
	})
	_, err := c.FetchResult(context.Background(), "tok", "a1")
	assert.ErrorIs(t, err, ErrInvalidResponse)
}

func TestServerErrorIsAPIError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	err := c.RequestPrediction(context.Background(), "tok", "a1")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusInternalServerError, apiErr.Status)
	assert.Equal(t, "boom", apiErr.Detail)
}

func TestTokenExpiryRejectsGarbage(t *testing.T) {
	_, ok := TokenExpiry("not-a-jwt")
	assert.False(t, ok)
}
