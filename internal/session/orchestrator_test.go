package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fentz26/mindscan/internal/backend"
	"github.com/fentz26/mindscan/internal/capture"
	"github.com/fentz26/mindscan/internal/models"
	"github.com/fentz26/mindscan/internal/observability"
	"github.com/fentz26/mindscan/internal/retrying"
	"github.com/fentz26/mindscan/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type fakeHistory struct {
	mu      sync.Mutex
	entries map[string][]models.AssessmentResult
	pending map[string]store.PendingResult
}

func newFakeHistory() *fakeHistory {
	return &fakeHistory{
		entries: make(map[string][]models.AssessmentResult),
		pending: make(map[string]store.PendingResult),
	}
}

func (h *fakeHistory) AppendHistory(ctx context.Context, userKey string, result models.AssessmentResult) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, r := range h.entries[userKey] {
		if r.AssessmentID == result.AssessmentID {
			return false, nil
		}
	}
	h.entries[userKey] = append(h.entries[userKey], result)
	return true, nil
}

func (h *fakeHistory) SavePending(ctx context.Context, p store.PendingResult) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pending[p.AssessmentID] = p
	return nil
}

func (h *fakeHistory) DeletePending(ctx context.Context, id string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.pending, id)
	return nil
}

var (
	validReg = models.Registration{Name: "Ada Lovelace", Age: 71, Language: "en-GB", Consent: true}
	testCred = models.Credential{
		User:        models.User{ID: "user-1", Name: "Ada Lovelace", Age: 71, Language: "en-GB", Consent: true},
		AccessToken: "token-1",
		ExpiresAt:   time.Now().Add(time.Hour),
	}
	errUnavailable = errors.New("503 service unavailable")
)

func readyResult(id string) models.AssessmentResult {
	return models.AssessmentResult{
		AssessmentID: id,
		RiskLevel:    models.RiskMedium,
		Probability:  0.55,
		GeneratedAt:  time.Now(),
	}
}

func notReady() error {
	return fmt.Errorf("fetch result: %w: Prediction not ready", backend.ErrNotReady)
}

// wavDevice replays a short tone-free WAV file.
func wavDevice(t *testing.T) capture.Device {
	t.Helper()
	path := filepath.Join(t.TempDir(), "speech.wav")
	pcm := make([]byte, capture.DefaultFormat.BytesInDuration(100*time.Millisecond))
	require.NoError(t, os.WriteFile(path, capture.EncodeWAV(capture.DefaultFormat, pcm), 0o644))
	return capture.NewFileDevice(path, capture.DefaultFormat, false)
}

func testOptions(t *testing.T, hist HistoryCache) Options {
	return Options{
		Device:      wavDevice(t),
		Timeslice:   10 * time.Millisecond,
		UploadRetry: retrying.Policy{Attempts: 3, Delay: time.Millisecond},
		PollRetry:   retrying.Policy{Attempts: DefaultPollAttempts, Delay: time.Millisecond},
		History:     hist,
		Logger:      observability.Discard(),
		Seed:        func() uint64 { return 42 },
	}
}

func expectOnboarding(b *MockBackend, cred models.Credential, assessmentID string) {
	b.EXPECT().Register(gomock.Any(), gomock.Any()).Return(cred, nil)
	b.EXPECT().StartAssessment(gomock.Any(), cred.AccessToken).Return(assessmentID, nil)
}

// runSpeech records and uploads every speech task.
func runSpeech(t *testing.T, o *Orchestrator) {
	t.Helper()
	for {
		done, err := o.RecordSpeech(context.Background(), nil)
		require.NoError(t, err)
		if done {
			return
		}
	}
}

// answerCognitive completes every cognitive task, correctly or not.
func answerCognitive(t *testing.T, o *Orchestrator, correct bool) {
	t.Helper()
	for o.Phase() == models.PhaseCognitive {
		task, _, _, err := o.Cognitive()
		require.NoError(t, err)

		switch task.Modality {
		case models.ModalitySingleChoice:
			require.NoError(t, o.BeginTask())
			choice := task.CorrectOption
			if !correct {
				choice = (choice + 1) % len(task.Options)
			}
			_, err = o.Select(choice)
			require.NoError(t, err)
		case models.ModalityOrderedSequence:
			require.NoError(t, o.BeginTask())
			seq := task.Expected
			if !correct {
				seq = seq[:len(seq)-1]
			}
			for _, i := range seq {
				require.NoError(t, o.Append(i))
			}
			_, err = o.CompleteTask()
			require.NoError(t, err)
		case models.ModalityFreeResponse:
			require.NoError(t, o.SetText("hands at ten past eleven"))
			_, err = o.CompleteTask()
			require.NoError(t, err)
		default:
			t.Fatalf("unexpected modality %s", task.Modality)
		}
	}
}

func TestOnboardValidationDoesNotMutate(t *testing.T) {
	ctrl := gomock.NewController(t)
	o := New(NewMockBackend(ctrl), testOptions(t, nil))

	cases := []struct {
		reg   models.Registration
		field string
	}{
		{models.Registration{Name: "A", Age: 40, Language: "en", Consent: true}, "name"},
		{models.Registration{Name: "Ada", Age: 17, Language: "en", Consent: true}, "age"},
		{models.Registration{Name: "Ada", Age: 121, Language: "en", Consent: true}, "age"},
		{models.Registration{Name: "Ada", Age: 40, Language: "e", Consent: true}, "language"},
		{models.Registration{Name: "Ada", Age: 40, Language: "en"}, "consent"},
	}
	for _, tc := range cases {
		err := o.Onboard(context.Background(), tc.reg)
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, tc.field, verr.Field)
	}

	s := o.Snapshot()
	assert.Equal(t, models.PhaseOnboarding, s.Phase)
	assert.Empty(t, s.AssessmentID)
}

func TestOnboardFailureHalts(t *testing.T) {
	ctrl := gomock.NewController(t)
	b := NewMockBackend(ctrl)
	apiErr := &backend.APIError{Op: "register", Status: 422, Detail: "age: Input should be greater than or equal to 18"}
	b.EXPECT().Register(gomock.Any(), gomock.Any()).Return(models.Credential{}, apiErr)

	o := New(b, testOptions(t, nil))
	err := o.Onboard(context.Background(), validReg)
	require.ErrorAs(t, err, new(*backend.APIError))
	assert.Contains(t, err.Error(), "greater than or equal to 18")

	s := o.Snapshot()
	assert.Equal(t, models.PhaseOnboarding, s.Phase)
	assert.Empty(t, s.AssessmentID)
	assert.Empty(t, s.Credential.AccessToken)
}

func TestOnboardStartAssessmentFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	b := NewMockBackend(ctrl)
	b.EXPECT().Register(gomock.Any(), gomock.Any()).Return(testCred, nil)
	b.EXPECT().StartAssessment(gomock.Any(), testCred.AccessToken).Return("", errUnavailable)

	o := New(b, testOptions(t, nil))
	assert.ErrorIs(t, o.Onboard(context.Background(), validReg), errUnavailable)
	assert.Equal(t, models.PhaseOnboarding, o.Phase())
	assert.Empty(t, o.Snapshot().AssessmentID)
}

func TestFullSession(t *testing.T) {
	ctrl := gomock.NewController(t)
	b := NewMockBackend(ctrl)
	hist := newFakeHistory()
	o := New(b, testOptions(t, hist))

	b.EXPECT().Register(gomock.Any(), models.Registration{Name: "Ada Lovelace", Age: 71, Language: "en-GB", Consent: true}).Return(testCred, nil)
	b.EXPECT().StartAssessment(gomock.Any(), "token-1").Return("a-1", nil)
	require.NoError(t, o.Onboard(context.Background(), validReg))

	s := o.Snapshot()
	assert.Equal(t, models.PhaseSpeech, s.Phase)
	assert.Equal(t, "en", s.Language)
	assert.Equal(t, uint64(42), s.Seed)
	require.Len(t, s.SpeechTasks, 3)

	var uploaded []models.SpeechSample
	b.EXPECT().UploadSpeech(gomock.Any(), "token-1", gomock.Any()).Times(3).
		DoAndReturn(func(ctx context.Context, token string, sample models.SpeechSample) error {
			uploaded = append(uploaded, sample)
			return nil
		})
	runSpeech(t, o)
	require.Len(t, uploaded, 3)
	for i, sample := range uploaded {
		assert.Equal(t, "a-1", sample.AssessmentID)
		assert.Equal(t, "en", sample.Language)
		assert.Equal(t, s.SpeechTasks[i].ID, sample.TaskID)
	}
	assert.Equal(t, models.PhaseCognitive, o.Phase())

	answerCognitive(t, o, true)

	s = o.Snapshot()
	assert.Equal(t, models.PhaseResults, s.Phase)
	assert.True(t, s.Pending, "pending is set as soon as the cognitive phase ends")
	require.NotNil(t, s.Scores)
	assert.Equal(t, models.CognitiveScores{Memory: 1, Attention: 4, Language: 0, Executive: 1}, *s.Scores)
	assert.Equal(t, "hands at ten past eleven", s.ClockDrawing)
	assert.Len(t, s.Logs, len(s.SpeechTasks)+len(s.CognitiveTasks))

	var sub models.CognitiveSubmission
	gomock.InOrder(
		b.EXPECT().SubmitCognitive(gomock.Any(), "token-1", "a-1", gomock.Any()).
			DoAndReturn(func(ctx context.Context, token, id string, s models.CognitiveSubmission) error {
				sub = s
				return nil
			}),
		b.EXPECT().RequestPrediction(gomock.Any(), "token-1", "a-1").Return(nil),
		b.EXPECT().FetchResult(gomock.Any(), "token-1", "a-1").Return(readyResult("a-1"), nil),
	)
	require.NoError(t, o.SubmitResults(context.Background()))

	assert.Equal(t, *s.Scores, sub.Scores)
	assert.Equal(t, models.CategorySpeech, sub.Logs[0].TaskType)
	assert.Equal(t, models.CategoryCognitive, sub.Logs[len(sub.Logs)-1].TaskType)

	s = o.Snapshot()
	require.NotNil(t, s.Result)
	assert.Equal(t, models.RiskMedium, s.Result.RiskLevel)
	assert.False(t, s.Pending)
	assert.Equal(t, NoticeNone, s.Notice)
	assert.Len(t, hist.entries["user-1"], 1)
}

func TestWrongAnswersScoreLower(t *testing.T) {
	ctrl := gomock.NewController(t)
	b := NewMockBackend(ctrl)
	o := New(b, testOptions(t, nil))
	expectOnboarding(b, testCred, "a-1")
	require.NoError(t, o.Onboard(context.Background(), validReg))

	b.EXPECT().UploadSpeech(gomock.Any(), gomock.Any(), gomock.Any()).Times(3).Return(nil)
	runSpeech(t, o)
	answerCognitive(t, o, false)

	s := o.Snapshot()
	require.NotNil(t, s.Scores)
	assert.InDelta(t, 0.0, s.Scores.Memory, 1e-9, "one missing position costs the correct point and 0.1")
	assert.InDelta(t, 0.0, s.Scores.Attention, 1e-9)
	assert.InDelta(t, 1.0, s.Scores.Executive, 1e-9, "clock drawing is always correct")
}

// toResults drives a fresh orchestrator to the results phase.
func toResults(t *testing.T, b *MockBackend, hist HistoryCache) *Orchestrator {
	t.Helper()
	o := New(b, testOptions(t, hist))
	expectOnboarding(b, testCred, "a-1")
	require.NoError(t, o.Onboard(context.Background(), validReg))
	b.EXPECT().UploadSpeech(gomock.Any(), gomock.Any(), gomock.Any()).Times(3).Return(nil)
	runSpeech(t, o)
	answerCognitive(t, o, true)
	require.Equal(t, models.PhaseResults, o.Phase())
	return o
}

func TestPollSucceedsOnFifteenthAttempt(t *testing.T) {
	ctrl := gomock.NewController(t)
	b := NewMockBackend(ctrl)
	o := toResults(t, b, nil)

	b.EXPECT().SubmitCognitive(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)
	b.EXPECT().RequestPrediction(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)
	gomock.InOrder(
		b.EXPECT().FetchResult(gomock.Any(), "token-1", "a-1").Times(14).Return(models.AssessmentResult{}, notReady()),
		b.EXPECT().FetchResult(gomock.Any(), "token-1", "a-1").Return(readyResult("a-1"), nil),
	)

	require.NoError(t, o.SubmitResults(context.Background()))
	s := o.Snapshot()
	require.NotNil(t, s.Result)
	assert.False(t, s.Pending)
}

func TestPollSoftTimeout(t *testing.T) {
	ctrl := gomock.NewController(t)
	b := NewMockBackend(ctrl)
	hist := newFakeHistory()
	o := toResults(t, b, hist)

	b.EXPECT().SubmitCognitive(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)
	b.EXPECT().RequestPrediction(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)
	b.EXPECT().FetchResult(gomock.Any(), gomock.Any(), gomock.Any()).Times(DefaultPollAttempts).
		Return(models.AssessmentResult{}, notReady())

	require.NoError(t, o.SubmitResults(context.Background()), "exhaustion is not an error")
	s := o.Snapshot()
	assert.True(t, s.Pending)
	assert.Nil(t, s.Result)
	assert.Equal(t, NoticeStillComputing, s.Notice)
	assert.Contains(t, hist.pending, "a-1")

	// Re-checking polls only; submit and predict are not repeated.
	b.EXPECT().FetchResult(gomock.Any(), gomock.Any(), gomock.Any()).Return(readyResult("a-1"), nil)
	require.NoError(t, o.CheckResult(context.Background()))
	s = o.Snapshot()
	assert.False(t, s.Pending)
	require.NotNil(t, s.Result)
	assert.NotContains(t, hist.pending, "a-1")
	assert.Len(t, hist.entries["user-1"], 1)

	assert.ErrorIs(t, o.CheckResult(context.Background()), ErrNotPending)
}

func TestPollTreatsServerErrorsAsRetryable(t *testing.T) {
	ctrl := gomock.NewController(t)
	b := NewMockBackend(ctrl)
	o := toResults(t, b, nil)

	b.EXPECT().SubmitCognitive(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)
	b.EXPECT().RequestPrediction(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)
	gomock.InOrder(
		b.EXPECT().FetchResult(gomock.Any(), gomock.Any(), gomock.Any()).Times(2).
			Return(models.AssessmentResult{}, &backend.APIError{Op: "fetch result", Status: 500}),
		b.EXPECT().FetchResult(gomock.Any(), gomock.Any(), gomock.Any()).Return(readyResult("a-1"), nil),
	)

	require.NoError(t, o.SubmitResults(context.Background()))
	assert.NotNil(t, o.Snapshot().Result)
}

func TestSubmitFailureStaysInResults(t *testing.T) {
	ctrl := gomock.NewController(t)
	b := NewMockBackend(ctrl)
	o := toResults(t, b, nil)

	b.EXPECT().SubmitCognitive(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(errUnavailable)
	err := o.SubmitResults(context.Background())
	assert.ErrorIs(t, err, errUnavailable)
	s := o.Snapshot()
	assert.Equal(t, models.PhaseResults, s.Phase)
	assert.True(t, s.Pending)
	assert.Equal(t, NoticeSubmitFailed, s.Notice)

	// The retry submits again and goes on to predict.
	b.EXPECT().SubmitCognitive(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)
	b.EXPECT().RequestPrediction(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)
	b.EXPECT().FetchResult(gomock.Any(), gomock.Any(), gomock.Any()).Return(readyResult("a-1"), nil)
	require.NoError(t, o.SubmitResults(context.Background()))
}

func TestResetDropsInFlightResult(t *testing.T) {
	ctrl := gomock.NewController(t)
	b := NewMockBackend(ctrl)
	hist := newFakeHistory()
	o := toResults(t, b, hist)

	b.EXPECT().SubmitCognitive(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)
	b.EXPECT().RequestPrediction(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)
	b.EXPECT().FetchResult(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, token, id string) (models.AssessmentResult, error) {
			o.Reset()
			return readyResult(id), nil
		})

	assert.ErrorIs(t, o.SubmitResults(context.Background()), ErrStaleSession)
	s := o.Snapshot()
	assert.Equal(t, models.PhaseOnboarding, s.Phase)
	assert.Empty(t, s.AssessmentID)
	assert.Nil(t, s.Result)
	assert.False(t, s.Pending)
	assert.Empty(t, hist.entries)
}

func TestResetStopsRecording(t *testing.T) {
	ctrl := gomock.NewController(t)
	b := NewMockBackend(ctrl)
	opts := testOptions(t, nil)
	path := filepath.Join(t.TempDir(), "long.wav")
	pcm := make([]byte, capture.DefaultFormat.BytesInDuration(10*time.Second))
	require.NoError(t, os.WriteFile(path, capture.EncodeWAV(capture.DefaultFormat, pcm), 0o644))
	opts.Device = capture.NewFileDevice(path, capture.DefaultFormat, true)

	o := New(b, opts)
	expectOnboarding(b, testCred, "a-1")
	require.NoError(t, o.Onboard(context.Background(), validReg))

	errCh := make(chan error, 1)
	go func() {
		_, err := o.RecordSpeech(context.Background(), nil)
		errCh <- err
	}()
	require.Eventually(t, func() bool {
		st, err := o.Speech()
		return err == nil && st.Recording
	}, time.Second, time.Millisecond)

	o.Reset()
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrStaleSession)
	case <-time.After(2 * time.Second):
		t.Fatal("recording did not stop on reset")
	}
	assert.Equal(t, models.PhaseOnboarding, o.Phase())

	// A new session can start right away.
	expectOnboarding(b, testCred, "a-2")
	require.NoError(t, o.Onboard(context.Background(), validReg))
	assert.Equal(t, "a-2", o.Snapshot().AssessmentID)
	assert.Greater(t, o.Snapshot().Generation, uint64(0))
}

func TestBusyRejectsSecondSubmit(t *testing.T) {
	ctrl := gomock.NewController(t)
	b := NewMockBackend(ctrl)
	o := toResults(t, b, nil)

	entered := make(chan struct{})
	unblock := make(chan struct{})
	b.EXPECT().SubmitCognitive(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, token, id string, sub models.CognitiveSubmission) error {
			close(entered)
			<-unblock
			return nil
		})
	b.EXPECT().RequestPrediction(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)
	b.EXPECT().FetchResult(gomock.Any(), gomock.Any(), gomock.Any()).Return(readyResult("a-1"), nil)

	errCh := make(chan error, 1)
	go func() { errCh <- o.SubmitResults(context.Background()) }()
	<-entered

	assert.ErrorIs(t, o.SubmitResults(context.Background()), ErrBusy)
	assert.ErrorIs(t, o.CheckResult(context.Background()), ErrBusy)
	close(unblock)
	require.NoError(t, <-errCh)
}

func TestUploadFailureKeepsTask(t *testing.T) {
	ctrl := gomock.NewController(t)
	b := NewMockBackend(ctrl)
	o := New(b, testOptions(t, nil))
	expectOnboarding(b, testCred, "a-1")
	require.NoError(t, o.Onboard(context.Background(), validReg))

	b.EXPECT().UploadSpeech(gomock.Any(), gomock.Any(), gomock.Any()).Times(3).Return(errUnavailable)
	_, err := o.RecordSpeech(context.Background(), nil)
	assert.ErrorIs(t, err, errUnavailable)

	s := o.Snapshot()
	assert.Equal(t, NoticeUploadFailed, s.Notice)
	st, err := o.Speech()
	require.NoError(t, err)
	assert.Equal(t, 0, st.Index)
	assert.True(t, st.Pending)

	b.EXPECT().UploadSpeech(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)
	done, err := o.RetryUpload(context.Background())
	require.NoError(t, err)
	assert.False(t, done)
	st, err = o.Speech()
	require.NoError(t, err)
	assert.Equal(t, 1, st.Index)
	assert.Equal(t, NoticeNone, o.Snapshot().Notice)
}

func TestExpiredCredentialIsNotRetried(t *testing.T) {
	ctrl := gomock.NewController(t)
	b := NewMockBackend(ctrl)
	cred := testCred
	cred.ExpiresAt = time.Now().Add(-time.Minute)
	o := New(b, testOptions(t, nil))
	expectOnboarding(b, cred, "a-1")
	require.NoError(t, o.Onboard(context.Background(), validReg))

	_, err := o.RecordSpeech(context.Background(), nil)
	assert.ErrorIs(t, err, ErrCredentialExpired)
}

func TestDeviceUnavailable(t *testing.T) {
	ctrl := gomock.NewController(t)
	b := NewMockBackend(ctrl)
	opts := testOptions(t, nil)
	opts.Device = nil
	o := New(b, opts)
	expectOnboarding(b, testCred, "a-1")
	require.NoError(t, o.Onboard(context.Background(), validReg))

	_, err := o.RecordSpeech(context.Background(), nil)
	assert.ErrorIs(t, err, capture.ErrDeviceUnavailable)
	assert.Equal(t, NoticeDeviceUnavailable, o.Snapshot().Notice)
	assert.Equal(t, models.PhaseSpeech, o.Phase())
}

func TestPhaseGuards(t *testing.T) {
	ctrl := gomock.NewController(t)
	o := New(NewMockBackend(ctrl), testOptions(t, nil))
	ctx := context.Background()

	_, err := o.RecordSpeech(ctx, nil)
	assert.ErrorIs(t, err, ErrWrongPhase)
	_, err = o.RetryUpload(ctx)
	assert.ErrorIs(t, err, ErrWrongPhase)
	assert.ErrorIs(t, o.BeginTask(), ErrWrongPhase)
	_, err = o.Select(0)
	assert.ErrorIs(t, err, ErrWrongPhase)
	assert.ErrorIs(t, o.SubmitResults(ctx), ErrWrongPhase)
	assert.ErrorIs(t, o.CheckResult(ctx), ErrWrongPhase)
	_, err = o.Speech()
	assert.ErrorIs(t, err, ErrWrongPhase)
	_, _, _, err = o.Cognitive()
	assert.ErrorIs(t, err, ErrWrongPhase)
}

func TestPollHelperReturnsContextError(t *testing.T) {
	ctrl := gomock.NewController(t)
	b := NewMockBackend(ctrl)
	ctx, cancel := context.WithCancel(context.Background())
	b.EXPECT().FetchResult(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, token, id string) (models.AssessmentResult, error) {
			cancel()
			return models.AssessmentResult{}, notReady()
		})

	_, ready, err := Poll(ctx, b, retrying.Policy{Attempts: 5, Delay: time.Millisecond}, "t", "a")
	assert.False(t, ready)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCancelledPollKeepsPending(t *testing.T) {
	ctrl := gomock.NewController(t)
	b := NewMockBackend(ctrl)
	hist := newFakeHistory()
	o := toResults(t, b, hist)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	b.EXPECT().SubmitCognitive(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)
	b.EXPECT().RequestPrediction(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)
	b.EXPECT().FetchResult(gomock.Any(), "token-1", "a-1").
		DoAndReturn(func(ctx context.Context, token, id string) (models.AssessmentResult, error) {
			cancel()
			return models.AssessmentResult{}, notReady()
		})

	err := o.SubmitResults(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	require.Contains(t, hist.pending, "a-1")
	p := hist.pending["a-1"]
	assert.Equal(t, "token-1", p.AccessToken)
	assert.Equal(t, "user-1", p.UserKey)

	s := o.Snapshot()
	assert.True(t, s.Pending)
	assert.Equal(t, NoticeStillComputing, s.Notice)

	// The next check fetches without resubmitting.
	b.EXPECT().FetchResult(gomock.Any(), gomock.Any(), gomock.Any()).Return(readyResult("a-1"), nil)
	require.NoError(t, o.CheckResult(context.Background()))
	assert.NotContains(t, hist.pending, "a-1")
}

func TestCancelledSubmitSavesNothing(t *testing.T) {
	ctrl := gomock.NewController(t)
	b := NewMockBackend(ctrl)
	hist := newFakeHistory()
	o := toResults(t, b, hist)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	b.EXPECT().SubmitCognitive(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, token, id string, sub models.CognitiveSubmission) error {
			cancel()
			return ctx.Err()
		})

	err := o.SubmitResults(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, hist.pending)
	assert.NotEqual(t, NoticeStillComputing, o.Snapshot().Notice)
}

func TestNewDefaultPollPolicy(t *testing.T) {
	o := New(NewMockBackend(gomock.NewController(t)), Options{Logger: observability.Discard()})
	assert.Equal(t, 15, o.opts.PollRetry.Attempts)
	assert.Equal(t, time.Second, o.opts.PollRetry.Delay)
	assert.NotNil(t, o.opts.PollRetry.Retryable)
	assert.Equal(t, 15, DefaultPollAttempts)
	assert.Equal(t, time.Second, DefaultPollDelay)
}
