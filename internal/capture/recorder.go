package capture

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"
)

// DefaultTimeslice is the cadence at which recorded data is emitted.
const DefaultTimeslice = time.Second

// StopReason tells why a recording ended.
type StopReason string

const (
	StopUser        StopReason = "user"
	StopMaxDuration StopReason = "max-duration"
	StopEndOfStream StopReason = "end-of-stream"
)

// Recorder reads a stream and emits fixed time slices instead of one blob
// at the end, so memory stays bounded by the slice size.
type Recorder struct {
	Timeslice time.Duration
	ReadSize  int
	Logger    *slog.Logger
}

// NewRecorder creates a recorder with a one-second timeslice.
func NewRecorder(f Format, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		Timeslice: DefaultTimeslice,
		ReadSize:  f.BytesInDuration(20 * time.Millisecond),
		Logger:    logger,
	}
}

type readResult struct {
	data []byte
	err  error
}

// Record reads stream until stop is closed, limit elapses (when positive), or
// the stream ends. Every slice, including the final partial one flushed
// before returning, is passed to onSlice with the elapsed time. The caller
// owns and closes the stream.
func (r *Recorder) Record(ctx context.Context, stream Stream, limit time.Duration, stop <-chan struct{}, onSlice func(chunk []byte, elapsed time.Duration)) (time.Duration, StopReason, error) {
	timeslice := r.Timeslice
	if timeslice <= 0 {
		timeslice = DefaultTimeslice
	}
	readSize := r.ReadSize
	if readSize <= 0 {
		readSize = 640
	}

	reads := make(chan readResult, 16)
	done := make(chan struct{})
	defer close(done)

	go func() {
		buf := make([]byte, readSize)
		for {
			n, err := stream.Read(buf)
			if n > 0 {
				select {
				case reads <- readResult{data: append([]byte(nil), buf[:n]...)}:
				case <-done:
					return
				}
			}
			if err != nil {
				select {
				case reads <- readResult{err: err}:
				case <-done:
				}
				return
			}
		}
	}()

	start := time.Now()
	ticker := time.NewTicker(timeslice)
	defer ticker.Stop()

	var deadline <-chan time.Time
	if limit > 0 {
		timer := time.NewTimer(limit)
		defer timer.Stop()
		deadline = timer.C
	}

	var slice []byte
	var readErr error
	flush := func() {
		if len(slice) > 0 {
			onSlice(slice, time.Since(start))
			slice = nil
		}
	}
	// drain collects data already read so the final slice is complete.
	drain := func() {
		for {
			select {
			case rr := <-reads:
				if rr.err != nil {
					readErr = rr.err
					return
				}
				slice = append(slice, rr.data...)
			default:
				return
			}
		}
	}
	finish := func(reason StopReason) (time.Duration, StopReason, error) {
		drain()
		flush()
		elapsed := time.Since(start)
		r.Logger.Debug("recording stopped", "reason", reason, "elapsed", elapsed)
		if readErr != nil && !errors.Is(readErr, io.EOF) {
			return elapsed, reason, readErr
		}
		return elapsed, reason, nil
	}

	for {
		select {
		case <-ctx.Done():
			return time.Since(start), "", ctx.Err()
		case <-stop:
			return finish(StopUser)
		case <-deadline:
			return finish(StopMaxDuration)
		case <-ticker.C:
			flush()
		case rr := <-reads:
			if rr.err != nil {
				readErr = rr.err
				return finish(StopEndOfStream)
			}
			slice = append(slice, rr.data...)
		}
	}
}
