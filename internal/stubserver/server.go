package stubserver

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/fentz26/mindscan/internal/models"
)

// maxUploadBytes bounds one multipart speech upload.
const maxUploadBytes = 64 << 20

// Server provides the HTTP API of the stub backend.
type Server struct {
	service *Service
	addr    string
	server  *http.Server
	log     *slog.Logger
}

// NewServer creates a new HTTP server.
func NewServer(service *Service, addr string) *Server {
	return &Server{
		service: service,
		addr:    addr,
		log:     service.log,
	}
}

// Handler returns the routed API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/users", s.handleUsers)
	mux.HandleFunc("/api/assessments", s.handleAssessments)
	mux.HandleFunc("/api/assessments/", s.handleAssessmentByID)

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return mux
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	s.log.Info("starting stub backend", "addr", s.addr)
	return s.server.ListenAndServe()
}

// Serve serves on an existing listener.
func (s *Server) Serve(ln net.Listener) error {
	s.server = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	s.log.Info("starting stub backend", "addr", ln.Addr().String())
	return s.server.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// handleUsers handles POST /api/users
func (s *Server) handleUsers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeDetail(w, http.StatusMethodNotAllowed, "Method Not Allowed")
		return
	}

	var req struct {
		Name     string `json:"name"`
		Age      int    `json:"age"`
		Language string `json:"language"`
		Consent  bool   `json:"consent"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "invalid json")
		return
	}

	cred, err := s.service.Register(models.Registration{
		Name:     req.Name,
		Age:      req.Age,
		Language: req.Language,
		Consent:  req.Consent,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"user": map[string]any{
			"id":         cred.User.ID,
			"name":       cred.User.Name,
			"age":        cred.User.Age,
			"language":   cred.User.Language,
			"consent":    cred.User.Consent,
			"created_at": cred.User.CreatedAt,
		},
		"access_token": cred.AccessToken,
		"expires_at":   cred.ExpiresAt,
	})
}

// handleAssessments handles POST /api/assessments
func (s *Server) handleAssessments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeDetail(w, http.StatusMethodNotAllowed, "Method Not Allowed")
		return
	}
	userID, ok := s.authenticate(w, r)
	if !ok {
		return
	}

	id, err := s.service.StartAssessment(userID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"assessment_id": id})
}

// handleAssessmentByID handles /api/assessments/{id}/*
func (s *Server) handleAssessmentByID(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/assessments/")
	parts := strings.Split(path, "/")
	if len(parts) == 0 || parts[0] == "" {
		writeDetail(w, http.StatusNotFound, "Not Found")
		return
	}

	userID, ok := s.authenticate(w, r)
	if !ok {
		return
	}

	assessmentID := parts[0]
	action := ""
	if len(parts) > 1 {
		action = parts[1]
	}

	switch {
	case action == "speech" && r.Method == http.MethodPost:
		s.uploadSpeech(w, r, userID, assessmentID)
	case action == "cognitive" && r.Method == http.MethodPost:
		s.submitCognitive(w, r, userID, assessmentID)
	case action == "predict" && r.Method == http.MethodPost:
		s.predict(w, userID, assessmentID)
	case action == "result" && r.Method == http.MethodGet:
		s.result(w, userID, assessmentID)
	default:
		writeDetail(w, http.StatusNotFound, "Not Found")
	}
}

func (s *Server) uploadSpeech(w http.ResponseWriter, r *http.Request, userID, assessmentID string) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, hdr, err := r.FormFile("file")
	if err != nil {
		writeValidation(w, &ValidationError{Fields: []FieldError{{Field: "file", Message: "Field required"}}})
		return
	}
	defer file.Close()

	q := r.URL.Query()
	taskID := q.Get("task_id")
	if taskID == "" {
		taskID = hdr.Filename
	}
	var durationMS int64
	if v := q.Get("duration_ms"); v != "" {
		durationMS, err = strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeValidation(w, &ValidationError{Fields: []FieldError{{Field: "duration_ms", Message: "Input should be a valid integer"}}})
			return
		}
	}

	sampleID, path, err := s.service.StoreSpeech(userID, assessmentID, taskID, q.Get("language"), durationMS, file)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"sample_id": sampleID, "path": path})
}

func (s *Server) submitCognitive(w http.ResponseWriter, r *http.Request, userID, assessmentID string) {
	var req struct {
		Logs   []models.InteractionLog `json:"logs"`
		Scores struct {
			Memory    float64 `json:"memory_score"`
			Attention float64 `json:"attention_score"`
			Language  float64 `json:"language_score"`
			Executive float64 `json:"executive_score"`
		} `json:"cognitive_scores"`
		ClockDrawing *string `json:"clock_drawing"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "invalid json")
		return
	}

	sub := models.CognitiveSubmission{
		Logs: req.Logs,
		Scores: models.CognitiveScores{
			Memory:    req.Scores.Memory,
			Attention: req.Scores.Attention,
			Language:  req.Scores.Language,
			Executive: req.Scores.Executive,
		},
	}
	if req.ClockDrawing != nil {
		sub.ClockDrawing = *req.ClockDrawing
	}
	if err := s.service.SubmitCognitive(userID, assessmentID, sub); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) predict(w http.ResponseWriter, userID, assessmentID string) {
	if err := s.service.Predict(userID, assessmentID); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) result(w http.ResponseWriter, userID, assessmentID string) {
	res, err := s.service.Result(userID, assessmentID)
	if err != nil {
		s.writeError(w, err)
		return
	}

	features := make([]map[string]any, len(res.FeatureImportances))
	for i, f := range res.FeatureImportances {
		features[i] = map[string]any{
			"feature":      f.Feature,
			"contribution": f.Contribution,
			"direction":    f.Direction,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"assessment_id":       res.AssessmentID,
		"risk_level":          res.RiskLevel,
		"probability":         res.Probability,
		"feature_importances": features,
		"sub_scores": map[string]float64{
			"memory_score":    res.SubScores.Memory,
			"attention_score": res.SubScores.Attention,
			"language_score":  res.SubScores.Language,
			"executive_score": res.SubScores.Executive,
		},
		"recommendations": res.Recommendations,
		"generated_at":    res.GeneratedAt,
	})
}

func (s *Server) authenticate(w http.ResponseWriter, r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	token, found := strings.CutPrefix(auth, "Bearer ")
	if !found {
		token = ""
	}
	userID, err := s.service.Authenticate(strings.TrimSpace(token))
	if err != nil {
		s.writeError(w, err)
		return "", false
	}
	return userID, true
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	switch {
	case isValidation(err):
		var verr *ValidationError
		errors.As(err, &verr)
		writeValidation(w, verr)
	case errors.Is(err, ErrMissingCredentials):
		writeDetail(w, http.StatusUnauthorized, "Missing credentials")
	case errors.Is(err, ErrInvalidToken):
		writeDetail(w, http.StatusUnauthorized, "Invalid token")
	case errors.Is(err, ErrUserNotFound):
		writeDetail(w, http.StatusBadRequest, "User not found")
	case errors.Is(err, ErrNotFound):
		writeDetail(w, http.StatusNotFound, "Assessment not found")
	case errors.Is(err, ErrNotReady):
		writeDetail(w, http.StatusNotFound, "Prediction not ready")
	default:
		s.log.Error("request failed", "error", err)
		writeDetail(w, http.StatusInternalServerError, "Internal Server Error")
	}
}

func writeValidation(w http.ResponseWriter, verr *ValidationError) {
	items := make([]map[string]any, len(verr.Fields))
	for i, f := range verr.Fields {
		items[i] = map[string]any{
			"loc":  fieldLoc(f.Field),
			"msg":  f.Message,
			"type": "value_error",
		}
	}
	writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"detail": items})
}

// fieldLoc splits a dotted field path into a loc list. List indexes are
// emitted as numbers.
func fieldLoc(field string) []any {
	loc := []any{"body"}
	for _, part := range strings.Split(field, ".") {
		if n, err := strconv.Atoi(part); err == nil {
			loc = append(loc, n)
			continue
		}
		loc = append(loc, part)
	}
	return loc
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
