// Package session sequences a screening session through onboarding, speech
// capture, cognitive tasks and result retrieval.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/fentz26/mindscan/internal/capture"
	"github.com/fentz26/mindscan/internal/catalog"
	"github.com/fentz26/mindscan/internal/cognitive"
	"github.com/fentz26/mindscan/internal/models"
	"github.com/fentz26/mindscan/internal/retrying"
	"github.com/fentz26/mindscan/internal/scoring"
	"github.com/fentz26/mindscan/internal/store"
	"github.com/google/uuid"
)

// Result polling defaults.
const (
	DefaultPollAttempts = 15
	DefaultPollDelay    = time.Second
)

// Options configures an Orchestrator.
type Options struct {
	Device      capture.Device
	Format      capture.Format
	Timeslice   time.Duration
	UploadRetry retrying.Policy
	PollRetry   retrying.Policy
	// History is optional.
	History HistoryCache
	Logger  *slog.Logger
	Now     func() time.Time
	// Seed draws the catalog seed of a new session.
	Seed func() uint64
}

// Session is a snapshot of the session aggregate.
type Session struct {
	ID           string
	Generation   uint64
	Credential   models.Credential
	AssessmentID string
	Language     string
	Seed         uint64
	Phase        models.Phase

	SpeechTasks    []models.Task
	CognitiveTasks []models.Task

	Logs         []models.InteractionLog
	Scores       *models.CognitiveScores
	ClockDrawing string
	Result       *models.AssessmentResult
	Pending      bool
	Notice       Notice
}

// Orchestrator owns one session at a time. Its mutex guards session state
// and is never held across network or device waits.
type Orchestrator struct {
	backend Backend
	history HistoryCache
	opts    Options
	log     *slog.Logger

	mu         sync.Mutex
	sess       Session
	pipeline   *capture.Pipeline
	machine    *cognitive.Machine
	speechLogs []models.InteractionLog
	submitted  bool
	predicted  bool
	busy       bool
	busyGen    uint64
}

// New creates an orchestrator in the onboarding phase.
func New(b Backend, opts Options) *Orchestrator {
	if opts.Device == nil {
		opts.Device = noDevice{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Seed == nil {
		opts.Seed = rand.Uint64
	}
	if opts.UploadRetry.Attempts == 0 {
		opts.UploadRetry = retrying.Policy{Attempts: capture.DefaultUploadAttempts, Delay: capture.DefaultUploadDelay}
	}
	if opts.UploadRetry.Retryable == nil {
		opts.UploadRetry.Retryable = transient
	}
	if opts.PollRetry.Attempts == 0 {
		opts.PollRetry = retrying.Policy{Attempts: DefaultPollAttempts, Delay: DefaultPollDelay}
	}
	if opts.PollRetry.Retryable == nil {
		opts.PollRetry.Retryable = transient
	}
	return &Orchestrator{
		backend: b,
		history: opts.History,
		opts:    opts,
		log:     opts.Logger.With("component", "session"),
		sess:    Session{Phase: models.PhaseOnboarding},
	}
}

// transient treats every failure as retryable except cancellation and an
// expired credential.
func transient(err error) bool {
	return !errors.Is(err, context.Canceled) && !errors.Is(err, ErrCredentialExpired)
}

// Snapshot returns a copy of the current session.
func (o *Orchestrator) Snapshot() Session {
	o.mu.Lock()
	defer o.mu.Unlock()

	s := o.sess
	s.Logs = append([]models.InteractionLog(nil), o.sess.Logs...)
	if o.sess.Scores != nil {
		scores := *o.sess.Scores
		s.Scores = &scores
	}
	if o.sess.Result != nil {
		res := *o.sess.Result
		s.Result = &res
	}
	return s
}

// Phase returns the current phase.
func (o *Orchestrator) Phase() models.Phase {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.sess.Phase
}

// acquire marks a long-running operation in flight for the current
// generation and returns that generation.
func (o *Orchestrator) acquire(phase models.Phase) (uint64, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.sess.Phase != phase {
		return 0, fmt.Errorf("%w: session is in %s, need %s", ErrWrongPhase, o.sess.Phase, phase)
	}
	if o.busy && o.busyGen == o.sess.Generation {
		return 0, ErrBusy
	}
	o.busy = true
	o.busyGen = o.sess.Generation
	return o.sess.Generation, nil
}

func (o *Orchestrator) release(gen uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.busyGen == gen {
		o.busy = false
	}
}

// ValidateRegistration checks onboarding input locally and returns it
// trimmed.
func ValidateRegistration(reg models.Registration) (models.Registration, error) {
	reg.Name = strings.TrimSpace(reg.Name)
	reg.Language = strings.TrimSpace(reg.Language)

	if n := utf8.RuneCountInString(reg.Name); n < 2 || n > 120 {
		return reg, &ValidationError{Field: "name", Message: "must be between 2 and 120 characters"}
	}
	if reg.Age < 18 || reg.Age > 120 {
		return reg, &ValidationError{Field: "age", Message: "must be between 18 and 120"}
	}
	if n := utf8.RuneCountInString(reg.Language); n < 2 || n > 16 {
		return reg, &ValidationError{Field: "language", Message: "must be between 2 and 16 characters"}
	}
	if !reg.Consent {
		return reg, &ValidationError{Field: "consent", Message: "consent is required to continue"}
	}
	return reg, nil
}

// Onboard validates the registration, registers the user and starts an
// assessment. On any failure the session is left untouched.
func (o *Orchestrator) Onboard(ctx context.Context, reg models.Registration) error {
	reg, err := ValidateRegistration(reg)
	if err != nil {
		return err
	}
	gen, err := o.acquire(models.PhaseOnboarding)
	if err != nil {
		return err
	}
	defer o.release(gen)

	cred, err := o.backend.Register(ctx, reg)
	if err != nil {
		o.log.Warn("registration failed", "error", err)
		return fmt.Errorf("register: %w", err)
	}
	assessmentID, err := o.backend.StartAssessment(ctx, cred.AccessToken)
	if err != nil {
		o.log.Warn("start assessment failed", "user_id", cred.User.ID, "error", err)
		return fmt.Errorf("start assessment: %w", err)
	}

	lang := catalog.NormalizeLanguage(reg.Language)
	seed := o.opts.Seed()
	cat := catalog.Generate(lang, seed)

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.sess.Generation != gen {
		return ErrStaleSession
	}

	o.pipeline = capture.NewPipeline(cat.Speech, o.opts.Device, o.uploader(cred, assessmentID, lang), capture.PipelineOptions{
		Format:      o.opts.Format,
		Timeslice:   o.opts.Timeslice,
		UploadRetry: o.opts.UploadRetry,
		Logger:      o.opts.Logger,
	})
	o.machine = cognitive.NewWithClock(cat.Cognitive, o.opts.Now)
	o.speechLogs = nil
	o.submitted, o.predicted = false, false
	o.sess = Session{
		ID:             uuid.New().String(),
		Generation:     gen,
		Credential:     cred,
		AssessmentID:   assessmentID,
		Language:       lang,
		Seed:           seed,
		Phase:          models.PhaseSpeech,
		SpeechTasks:    cat.Speech,
		CognitiveTasks: cat.Cognitive,
	}
	o.log.Info("session started", "session_id", o.sess.ID, "assessment_id", assessmentID, "language", lang, "seed", seed)
	return nil
}

func (o *Orchestrator) uploader(cred models.Credential, assessmentID, lang string) capture.Uploader {
	return capture.UploaderFunc(func(ctx context.Context, sample models.SpeechSample) error {
		if cred.Expired(o.opts.Now()) {
			return ErrCredentialExpired
		}
		sample.AssessmentID = assessmentID
		sample.Language = lang
		return o.backend.UploadSpeech(ctx, cred.AccessToken, sample)
	})
}

// --- Speech ---

// SpeechStatus describes the speech phase for display.
type SpeechStatus struct {
	Task      models.Task
	Index     int
	Total     int
	Elapsed   time.Duration
	Recording bool
	// Pending is set when a recording is buffered but not yet uploaded.
	Pending bool
}

// Speech returns the current speech task status.
func (o *Orchestrator) Speech() (SpeechStatus, error) {
	o.mu.Lock()
	p := o.pipeline
	phase := o.sess.Phase
	o.mu.Unlock()
	if phase != models.PhaseSpeech || p == nil {
		return SpeechStatus{}, fmt.Errorf("%w: session is in %s", ErrWrongPhase, phase)
	}
	task, _ := p.Current()
	return SpeechStatus{
		Task:      task,
		Index:     p.Index(),
		Total:     p.Len(),
		Elapsed:   p.Elapsed(),
		Recording: p.Recording(),
		Pending:   p.Pending(),
	}, nil
}

// RecordSpeech records the current speech task until stop is closed or its
// max duration elapses, then uploads it. It reports whether the speech
// phase is complete, in which case the session moves to cognitive.
func (o *Orchestrator) RecordSpeech(ctx context.Context, stop <-chan struct{}) (bool, error) {
	gen, err := o.acquire(models.PhaseSpeech)
	if err != nil {
		return false, err
	}
	defer o.release(gen)

	o.mu.Lock()
	p := o.pipeline
	o.sess.Notice = NoticeNone
	o.mu.Unlock()

	if err := p.Record(ctx, stop); err != nil {
		o.mu.Lock()
		defer o.mu.Unlock()
		if o.sess.Generation != gen {
			return false, ErrStaleSession
		}
		if errors.Is(err, capture.ErrDeviceUnavailable) {
			o.sess.Notice = NoticeDeviceUnavailable
		}
		return false, err
	}
	return o.upload(ctx, gen, p)
}

// RetryUpload re-sends the buffered recording of the current speech task.
func (o *Orchestrator) RetryUpload(ctx context.Context) (bool, error) {
	gen, err := o.acquire(models.PhaseSpeech)
	if err != nil {
		return false, err
	}
	defer o.release(gen)

	o.mu.Lock()
	p := o.pipeline
	o.mu.Unlock()
	return o.upload(ctx, gen, p)
}

func (o *Orchestrator) upload(ctx context.Context, gen uint64, p *capture.Pipeline) (bool, error) {
	task, _ := p.Current()
	elapsed := p.Elapsed()
	done, err := p.Upload(ctx)

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.sess.Generation != gen {
		return false, ErrStaleSession
	}
	if err != nil {
		if !errors.Is(err, capture.ErrNothingToUpload) && ctx.Err() == nil {
			o.sess.Notice = NoticeUploadFailed
		}
		return false, err
	}

	o.speechLogs = append(o.speechLogs, models.InteractionLog{
		TaskID:         task.ID,
		TaskType:       task.Category(),
		Prompt:         task.Prompt,
		ResponseTimeMS: elapsed.Milliseconds(),
	})
	o.sess.Notice = NoticeNone
	if done {
		o.sess.Phase = models.PhaseCognitive
		o.log.Info("speech phase complete", "session_id", o.sess.ID, "samples", len(o.speechLogs))
	}
	return done, nil
}

// --- Cognitive ---

// Cognitive returns the current cognitive task and its state.
func (o *Orchestrator) Cognitive() (models.Task, cognitive.State, int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.sess.Phase != models.PhaseCognitive || o.machine == nil {
		return models.Task{}, nil, 0, fmt.Errorf("%w: session is in %s", ErrWrongPhase, o.sess.Phase)
	}
	task, st, err := o.machine.Current()
	return task, st, o.machine.Index(), err
}

// cognitiveStep applies fn to the state machine and closes the phase when
// the last task completes.
func (o *Orchestrator) cognitiveStep(fn func(m *cognitive.Machine) (bool, error)) (bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.sess.Phase != models.PhaseCognitive || o.machine == nil {
		return false, fmt.Errorf("%w: session is in %s, need %s", ErrWrongPhase, o.sess.Phase, models.PhaseCognitive)
	}
	finished, err := fn(o.machine)
	if err != nil {
		return false, err
	}
	if finished {
		if err := o.finishCognitiveLocked(); err != nil {
			return false, err
		}
	}
	return finished, nil
}

// BeginTask starts the current cognitive task.
func (o *Orchestrator) BeginTask() error {
	_, err := o.cognitiveStep(func(m *cognitive.Machine) (bool, error) {
		return false, m.Begin()
	})
	return err
}

// Select answers a single-choice task. It reports whether the cognitive
// phase finished.
func (o *Orchestrator) Select(option int) (bool, error) {
	return o.cognitiveStep(func(m *cognitive.Machine) (bool, error) {
		return m.Select(option)
	})
}

// Append adds an option to an ordered-sequence answer.
func (o *Orchestrator) Append(option int) error {
	_, err := o.cognitiveStep(func(m *cognitive.Machine) (bool, error) {
		return false, m.Append(option)
	})
	return err
}

// Undo removes the last appended option.
func (o *Orchestrator) Undo() error {
	_, err := o.cognitiveStep(func(m *cognitive.Machine) (bool, error) {
		return false, m.Undo()
	})
	return err
}

// SetText records the free-response answer.
func (o *Orchestrator) SetText(text string) error {
	_, err := o.cognitiveStep(func(m *cognitive.Machine) (bool, error) {
		return false, m.SetText(text)
	})
	return err
}

// CompleteTask completes the current task. It reports whether the
// cognitive phase finished.
func (o *Orchestrator) CompleteTask() (bool, error) {
	return o.cognitiveStep(func(m *cognitive.Machine) (bool, error) {
		return m.Complete()
	})
}

func (o *Orchestrator) finishCognitiveLocked() error {
	logs, err := o.machine.Logs()
	if err != nil {
		return err
	}
	outcomes, err := o.machine.Outcomes()
	if err != nil {
		return err
	}
	scores := scoring.Score(outcomes)

	all := make([]models.InteractionLog, 0, len(o.speechLogs)+len(logs))
	all = append(all, o.speechLogs...)
	all = append(all, logs...)

	o.sess.Logs = all
	o.sess.Scores = &scores
	o.sess.ClockDrawing = o.machine.FreeText()
	o.sess.Phase = models.PhaseResults
	o.sess.Pending = true
	o.log.Info("cognitive phase complete", "session_id", o.sess.ID,
		"memory", scores.Memory, "attention", scores.Attention,
		"language", scores.Language, "executive", scores.Executive)
	return nil
}

// --- Results ---

// SubmitResults submits the cognitive data, requests the prediction and
// polls for the result. A poll that runs out of attempts is a soft timeout:
// it returns nil, leaves the session pending and sets NoticeStillComputing.
func (o *Orchestrator) SubmitResults(ctx context.Context) error {
	return o.results(ctx, false)
}

// CheckResult polls again for a session left pending by a soft timeout.
func (o *Orchestrator) CheckResult(ctx context.Context) error {
	return o.results(ctx, true)
}

func (o *Orchestrator) results(ctx context.Context, recheck bool) error {
	gen, err := o.acquire(models.PhaseResults)
	if err != nil {
		return err
	}
	defer o.release(gen)

	o.mu.Lock()
	if o.sess.AssessmentID == "" {
		o.mu.Unlock()
		return ErrNoAssessment
	}
	if recheck && !o.sess.Pending {
		o.mu.Unlock()
		return ErrNotPending
	}
	cred := o.sess.Credential
	id := o.sess.AssessmentID
	sessionID := o.sess.ID
	sub := models.CognitiveSubmission{
		Logs:         o.sess.Logs,
		ClockDrawing: o.sess.ClockDrawing,
	}
	if o.sess.Scores != nil {
		sub.Scores = *o.sess.Scores
	}
	submitted, predicted := o.submitted, o.predicted
	o.sess.Notice = NoticeNone
	o.mu.Unlock()

	if cred.Expired(o.opts.Now()) {
		return ErrCredentialExpired
	}

	if !submitted {
		if err := o.backend.SubmitCognitive(ctx, cred.AccessToken, id, sub); err != nil {
			o.failResults(ctx, gen)
			o.log.Warn("submit cognitive failed", "session_id", sessionID, "error", err)
			return fmt.Errorf("submit cognitive: %w", err)
		}
		if err := o.mark(gen, func() { o.submitted = true }); err != nil {
			return err
		}
	}
	if !predicted {
		if err := o.backend.RequestPrediction(ctx, cred.AccessToken, id); err != nil {
			o.failResults(ctx, gen)
			o.log.Warn("request prediction failed", "session_id", sessionID, "error", err)
			return fmt.Errorf("request prediction: %w", err)
		}
		if err := o.mark(gen, func() { o.predicted = true }); err != nil {
			return err
		}
	}

	policy := o.opts.PollRetry
	policy.OnRetry = func(attempt int, err error) {
		o.log.Debug("result not available", "session_id", sessionID, "attempt", attempt, "error", err)
	}
	result, ready, err := Poll(ctx, o.backend, policy, cred.AccessToken, id)
	if err != nil {
		if ctx.Err() != nil {
			// The prediction was requested, so the result can still be
			// fetched later with the saved credential.
			o.mu.Lock()
			if o.sess.Generation == gen {
				o.sess.Pending = true
				o.sess.Notice = NoticeStillComputing
			}
			o.mu.Unlock()
			o.savePending(context.WithoutCancel(ctx), cred, id)
		}
		return err
	}

	o.mu.Lock()
	if o.sess.Generation != gen {
		o.mu.Unlock()
		return ErrStaleSession
	}
	userKey := cred.User.ID
	if !ready {
		o.sess.Pending = true
		o.sess.Notice = NoticeStillComputing
		o.mu.Unlock()

		o.log.Info("result still computing", "session_id", sessionID, "assessment_id", id, "attempts", policy.Attempts)
		o.savePending(ctx, cred, id)
		return nil
	}

	o.sess.Result = &result
	o.sess.Pending = false
	o.sess.Notice = NoticeNone
	o.mu.Unlock()

	o.log.Info("result received", "session_id", sessionID, "assessment_id", id,
		"risk_level", result.RiskLevel, "probability", result.Probability)
	if o.history != nil {
		if _, err := o.history.AppendHistory(ctx, userKey, result); err != nil {
			o.log.Warn("append history failed", "assessment_id", id, "error", err)
		}
		if err := o.history.DeletePending(ctx, id); err != nil {
			o.log.Warn("clear pending result failed", "assessment_id", id, "error", err)
		}
	}
	return nil
}

// savePending records an assessment whose prediction was requested but
// whose result has not been fetched.
func (o *Orchestrator) savePending(ctx context.Context, cred models.Credential, id string) {
	if o.history == nil {
		return
	}
	err := o.history.SavePending(ctx, store.PendingResult{
		AssessmentID: id,
		UserKey:      cred.User.ID,
		AccessToken:  cred.AccessToken,
		ExpiresAt:    cred.ExpiresAt,
	})
	if err != nil {
		o.log.Warn("save pending result failed", "assessment_id", id, "error", err)
	}
}

func (o *Orchestrator) mark(gen uint64, fn func()) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.sess.Generation != gen {
		return ErrStaleSession
	}
	fn()
	return nil
}

func (o *Orchestrator) failResults(ctx context.Context, gen uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.sess.Generation == gen && ctx.Err() == nil {
		o.sess.Notice = NoticeSubmitFailed
	}
}

// Poll fetches the result under policy. The first successful fetch wins.
// When the attempts run out it returns ready=false and no error; only
// context cancellation and non-retryable errors are returned.
func Poll(ctx context.Context, b Backend, policy retrying.Policy, token, assessmentID string) (models.AssessmentResult, bool, error) {
	if policy.Retryable == nil {
		policy.Retryable = transient
	}
	var result models.AssessmentResult
	err := retrying.Do(ctx, policy, func(ctx context.Context, attempt int) error {
		r, err := b.FetchResult(ctx, token, assessmentID)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	switch {
	case err == nil:
		return result, true, nil
	case ctx.Err() != nil:
		return models.AssessmentResult{}, false, ctx.Err()
	case errors.Is(err, retrying.ErrInvalidPolicy), !policy.Retryable(err):
		return models.AssessmentResult{}, false, fmt.Errorf("fetch result: %w", err)
	}
	return models.AssessmentResult{}, false, nil
}

// --- Lifecycle ---

// Reset discards the current session and returns to onboarding. An
// in-flight recording is stopped; in-flight network calls finish but their
// results are dropped.
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.pipeline != nil {
		o.pipeline.Close()
	}
	prev := o.sess.ID
	gen := o.sess.Generation + 1
	o.sess = Session{Generation: gen, Phase: models.PhaseOnboarding}
	o.pipeline = nil
	o.machine = nil
	o.speechLogs = nil
	o.submitted, o.predicted = false, false
	o.log.Info("session reset", "previous_session_id", prev, "generation", gen)
}

// Close releases the capture device.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.pipeline != nil {
		o.pipeline.Close()
	}
}

type noDevice struct{}

func (noDevice) Name() string { return "none" }

func (noDevice) Open(ctx context.Context) (capture.Stream, error) {
	return nil, fmt.Errorf("%w: no recording device configured", capture.ErrDeviceUnavailable)
}
