// Package backend is the HTTP client for the assessment backend.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/fentz26/mindscan/internal/models"
)

// DefaultClientTimeout is the default timeout for API requests.
const DefaultClientTimeout = 30 * time.Second

// Client wraps HTTP calls to the assessment API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	log        *slog.Logger
	now        func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger sets the client logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.log = l }
}

// NewClient creates a new API client with timeout.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: DefaultClientTimeout,
		},
		log: slog.Default(),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.With("component", "backend")
	return c
}

// BaseURL returns the API root.
func (c *Client) BaseURL() string { return c.baseURL }

// Register creates the user and returns the issued credential.
func (c *Client) Register(ctx context.Context, reg models.Registration) (models.Credential, error) {
	body := registerRequest{
		Name:     reg.Name,
		Age:      reg.Age,
		Language: reg.Language,
		Consent:  reg.Consent,
	}
	var resp registerResponse
	if err := c.do(ctx, "register", http.MethodPost, "/api/users", "", body, &resp); err != nil {
		return models.Credential{}, err
	}
	if resp.AccessToken == "" || resp.User.ID == "" {
		return models.Credential{}, fmt.Errorf("register: %w: missing user or token", ErrInvalidResponse)
	}

	expires := resp.ExpiresAt
	if expires.IsZero() {
		if exp, ok := TokenExpiry(resp.AccessToken); ok {
			expires = exp
		}
	}
	cred := models.Credential{
		User: models.User{
			ID:        resp.User.ID,
			Name:      resp.User.Name,
			Age:       resp.User.Age,
			Language:  resp.User.Language,
			Consent:   resp.User.Consent,
			CreatedAt: resp.User.CreatedAt,
		},
		AccessToken: resp.AccessToken,
		ExpiresAt:   expires,
	}
	c.log.Info("user registered", "user_id", cred.User.ID, "expires_at", cred.ExpiresAt)
	return cred, nil
}

// StartAssessment opens a new assessment for the credential's user.
func (c *Client) StartAssessment(ctx context.Context, token string) (string, error) {
	var resp startResponse
	if err := c.do(ctx, "start assessment", http.MethodPost, "/api/assessments", token, nil, &resp); err != nil {
		return "", err
	}
	if resp.AssessmentID == "" {
		return "", fmt.Errorf("start assessment: %w: missing assessment_id", ErrInvalidResponse)
	}
	c.log.Info("assessment started", "assessment_id", resp.AssessmentID)
	return resp.AssessmentID, nil
}

// UploadSpeech sends one WAV sample as multipart form data.
func (c *Client) UploadSpeech(ctx context.Context, token string, sample models.SpeechSample) error {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", sample.TaskID+".wav")
	if err != nil {
		return fmt.Errorf("upload speech: %w", err)
	}
	if _, err := part.Write(sample.Audio); err != nil {
		return fmt.Errorf("upload speech: %w", err)
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("upload speech: %w", err)
	}

	q := url.Values{}
	q.Set("task_id", sample.TaskID)
	q.Set("language", sample.Language)
	q.Set("duration_ms", strconv.FormatInt(sample.Duration.Milliseconds(), 10))
	path := "/api/assessments/" + url.PathEscape(sample.AssessmentID) + "/speech?" + q.Encode()

	req, err := c.newRequest(ctx, http.MethodPost, path, token, &buf)
	if err != nil {
		return fmt.Errorf("upload speech: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var resp uploadResponse
	if err := c.send(req, "upload speech", &resp); err != nil {
		return err
	}
	c.log.Debug("speech sample stored", "task_id", sample.TaskID, "sample_id", resp.SampleID)
	return nil
}

// SubmitCognitive posts interaction logs and domain scores.
func (c *Client) SubmitCognitive(ctx context.Context, token, assessmentID string, sub models.CognitiveSubmission) error {
	body := cognitiveRequest{
		Logs: make([]interactionLog, len(sub.Logs)),
		Scores: cognitiveScores{
			Memory:    sub.Scores.Memory,
			Attention: sub.Scores.Attention,
			Language:  sub.Scores.Language,
			Executive: sub.Scores.Executive,
		},
	}
	for i, l := range sub.Logs {
		body.Logs[i] = interactionLog{
			TaskID:         l.TaskID,
			TaskType:       string(l.TaskType),
			Prompt:         l.Prompt,
			ResponseTimeMS: l.ResponseTimeMS,
			Correct:        l.Correct,
			Errors:         l.Errors,
			Metadata:       l.Metadata,
		}
	}
	if sub.ClockDrawing != "" {
		body.ClockDrawing = &sub.ClockDrawing
	}

	var resp successResponse
	path := "/api/assessments/" + url.PathEscape(assessmentID) + "/cognitive"
	if err := c.do(ctx, "submit cognitive", http.MethodPost, path, token, body, &resp); err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("submit cognitive: %w", ErrUnsuccessful)
	}
	return nil
}

// RequestPrediction asks the backend to compute the result.
func (c *Client) RequestPrediction(ctx context.Context, token, assessmentID string) error {
	var resp successResponse
	path := "/api/assessments/" + url.PathEscape(assessmentID) + "/predict"
	if err := c.do(ctx, "request prediction", http.MethodPost, path, token, nil, &resp); err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("request prediction: %w", ErrUnsuccessful)
	}
	return nil
}

// FetchResult returns the computed result, or an error wrapping ErrNotReady
// while the prediction is still running.
func (c *Client) FetchResult(ctx context.Context, token, assessmentID string) (models.AssessmentResult, error) {
	var resp resultResponse
	path := "/api/assessments/" + url.PathEscape(assessmentID) + "/result"
	err := c.do(ctx, "fetch result", http.MethodGet, path, token, nil, &resp)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
			return models.AssessmentResult{}, fmt.Errorf("fetch result: %w: %s", ErrNotReady, apiErr.Detail)
		}
		return models.AssessmentResult{}, err
	}
	result, err := resp.toModel()
	if err != nil {
		return models.AssessmentResult{}, fmt.Errorf("fetch result: %w", err)
	}
	if result.AssessmentID == "" {
		result.AssessmentID = assessmentID
	}
	return result, nil
}

func (c *Client) newRequest(ctx context.Context, method, path, token string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

// do performs a JSON request and decodes the JSON response into out.
func (c *Client) do(ctx context.Context, op, method, path, token string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		body = bytes.NewReader(data)
	}
	req, err := c.newRequest(ctx, method, path, token, body)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(req, op, out)
}

func (c *Client) send(req *http.Request, op string, out any) error {
	start := c.now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: API request failed: %w", op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s: failed to read response body: %w", op, err)
	}
	c.log.Debug("api call", "op", op, "method", req.Method, "path", req.URL.Path, "status", resp.StatusCode, "took", c.now().Sub(start))

	if resp.StatusCode >= 400 {
		return &APIError{Op: op, Status: resp.StatusCode, Detail: parseDetail(body)}
	}
	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%s: %w: %v", op, ErrInvalidResponse, err)
	}
	return nil
}
