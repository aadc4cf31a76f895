package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fentz26/mindscan/internal/models"
	"github.com/fentz26/mindscan/internal/retrying"
)

// Upload retry defaults.
const (
	DefaultUploadAttempts = 3
	DefaultUploadDelay    = 600 * time.Millisecond
)

// Uploader sends one assembled speech sample. The pipeline fills TaskID,
// Audio and Duration; the implementation adds session context.
type Uploader interface {
	UploadSpeech(ctx context.Context, sample models.SpeechSample) error
}

// UploaderFunc adapts a function to Uploader.
type UploaderFunc func(ctx context.Context, sample models.SpeechSample) error

// UploadSpeech calls f.
func (f UploaderFunc) UploadSpeech(ctx context.Context, sample models.SpeechSample) error {
	return f(ctx, sample)
}

// PipelineOptions configures a Pipeline.
type PipelineOptions struct {
	Format      Format
	Timeslice   time.Duration
	UploadRetry retrying.Policy
	Logger      *slog.Logger
}

// Pipeline walks speech tasks in order: record, then upload exactly once
// per task before advancing.
type Pipeline struct {
	device   Device
	uploader Uploader
	recorder *Recorder
	format   Format
	policy   retrying.Policy
	log      *slog.Logger

	mu        sync.Mutex
	tasks     []models.Task
	current   int
	chunks    [][]byte
	elapsed   time.Duration
	started   time.Time
	recording bool
	cancel    context.CancelFunc
	closed    bool
}

// NewPipeline creates a pipeline over the speech tasks.
func NewPipeline(tasks []models.Task, device Device, uploader Uploader, opts PipelineOptions) *Pipeline {
	if opts.Format == (Format{}) {
		opts.Format = DefaultFormat
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.UploadRetry.Attempts == 0 {
		opts.UploadRetry.Attempts = DefaultUploadAttempts
		opts.UploadRetry.Delay = DefaultUploadDelay
	}

	rec := NewRecorder(opts.Format, opts.Logger)
	if opts.Timeslice > 0 {
		rec.Timeslice = opts.Timeslice
	}

	return &Pipeline{
		device:   device,
		uploader: uploader,
		recorder: rec,
		format:   opts.Format,
		policy:   opts.UploadRetry,
		log:      opts.Logger.With("component", "capture"),
		tasks:    append([]models.Task(nil), tasks...),
	}
}

// Current returns the task awaiting capture.
func (p *Pipeline) Current() (models.Task, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current >= len(p.tasks) {
		return models.Task{}, false
	}
	return p.tasks[p.current], true
}

// Index returns the position of the current task.
func (p *Pipeline) Index() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// Len returns the number of speech tasks.
func (p *Pipeline) Len() int { return len(p.tasks) }

// Done reports whether every task has been uploaded.
func (p *Pipeline) Done() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current >= len(p.tasks)
}

// Recording reports whether a recording is in progress.
func (p *Pipeline) Recording() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.recording
}

// Pending reports whether a recording is buffered but not yet uploaded.
func (p *Pipeline) Pending() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.recording && len(p.chunks) > 0
}

// Elapsed returns the elapsed-time counter of the current task.
func (p *Pipeline) Elapsed() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.recording {
		return time.Since(p.started)
	}
	return p.elapsed
}

// Record captures the current task until stop is closed or the task's max
// duration elapses. The device is held only for the duration of the call.
// A new recording replaces any buffered one.
func (p *Pipeline) Record(ctx context.Context, stop <-chan struct{}) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	if p.recording {
		p.mu.Unlock()
		return ErrRecording
	}
	if p.current >= len(p.tasks) {
		p.mu.Unlock()
		return ErrPhaseComplete
	}
	task := p.tasks[p.current]
	recCtx, cancel := context.WithCancel(ctx)
	p.recording = true
	p.cancel = cancel
	p.chunks = nil
	p.elapsed = 0
	p.started = time.Now()
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.recording = false
		p.cancel = nil
		p.mu.Unlock()
		cancel()
	}()

	stream, err := p.device.Open(recCtx)
	if err != nil {
		if !errors.Is(err, ErrDeviceUnavailable) {
			err = fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
		}
		p.log.Warn("device unavailable", "task_id", task.ID, "device", p.device.Name(), "error", err)
		return err
	}
	defer stream.Close()

	p.log.Info("recording started", "task_id", task.ID, "device", p.device.Name(), "max_duration", task.MaxDuration)
	elapsed, reason, err := p.recorder.Record(recCtx, stream, task.MaxDuration, stop, func(chunk []byte, elapsed time.Duration) {
		p.mu.Lock()
		p.chunks = append(p.chunks, chunk)
		p.elapsed = elapsed
		p.mu.Unlock()
	})

	p.mu.Lock()
	defer p.mu.Unlock()
	if err != nil {
		p.chunks = nil
		return fmt.Errorf("record %s: %w", task.ID, err)
	}
	p.elapsed = elapsed
	if len(p.chunks) == 0 {
		return fmt.Errorf("record %s: %w", task.ID, ErrNoAudio)
	}
	p.log.Info("recording finished", "task_id", task.ID, "reason", reason, "elapsed", elapsed, "chunks", len(p.chunks))
	return nil
}

// Upload assembles the buffered chunks into one WAV blob and uploads it
// under the retry policy. The buffer is cleared only after a successful
// upload; on failure the last error is returned and the task does not
// advance. It reports whether the speech phase is complete.
func (p *Pipeline) Upload(ctx context.Context) (bool, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return false, ErrClosed
	}
	if p.recording {
		p.mu.Unlock()
		return false, ErrRecording
	}
	if p.current >= len(p.tasks) {
		p.mu.Unlock()
		return true, ErrPhaseComplete
	}
	if len(p.chunks) == 0 {
		p.mu.Unlock()
		return false, ErrNothingToUpload
	}
	task := p.tasks[p.current]
	size := 0
	for _, c := range p.chunks {
		size += len(c)
	}
	pcm := make([]byte, 0, size)
	for _, c := range p.chunks {
		pcm = append(pcm, c...)
	}
	p.mu.Unlock()

	sample := models.SpeechSample{
		TaskID:   task.ID,
		Audio:    EncodeWAV(p.format, pcm),
		Duration: p.format.Duration(len(pcm)),
	}

	policy := p.policy
	policy.OnRetry = func(attempt int, err error) {
		p.log.Warn("upload failed, retrying", "task_id", task.ID, "attempt", attempt, "error", err)
	}
	err := retrying.Do(ctx, policy, func(ctx context.Context, attempt int) error {
		return p.uploader.UploadSpeech(ctx, sample)
	})
	if err != nil {
		p.log.Error("upload failed", "task_id", task.ID, "attempts", policy.Attempts, "error", err)
		return false, fmt.Errorf("upload %s: %w", task.ID, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false, ErrClosed
	}
	p.chunks = nil
	p.current++
	p.elapsed = 0
	p.log.Info("speech sample uploaded", "task_id", task.ID, "bytes", len(sample.Audio), "duration", sample.Duration)
	return p.current >= len(p.tasks), nil
}

// Run records the current task and uploads it.
func (p *Pipeline) Run(ctx context.Context, stop <-chan struct{}) (bool, error) {
	if err := p.Record(ctx, stop); err != nil {
		return false, err
	}
	return p.Upload(ctx)
}

// Close stops any in-flight recording, releasing the device.
func (p *Pipeline) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	if p.cancel != nil {
		p.cancel()
	}
	p.chunks = nil
}
