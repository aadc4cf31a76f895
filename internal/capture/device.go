// Package capture records speech tasks and uploads the audio.
package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Sentinel errors for capture operations.
var (
	// ErrDeviceUnavailable is terminal for the current task attempt.
	ErrDeviceUnavailable = errors.New("audio capture device unavailable")
	ErrNoAudio           = errors.New("no audio captured")
	ErrRecording         = errors.New("recording already in progress")
	ErrNothingToUpload   = errors.New("no recording to upload")
	ErrPhaseComplete     = errors.New("all speech tasks are uploaded")
	ErrClosed            = errors.New("capture pipeline closed")
)

// Stream is an exclusively held source of raw PCM audio.
type Stream interface {
	io.Reader
	io.Closer
}

// Device acquires audio streams. Open fails with an error wrapping
// ErrDeviceUnavailable when the device cannot be acquired.
type Device interface {
	Name() string
	Open(ctx context.Context) (Stream, error)
}

// allowedRecorders is the allowlist of external recorder programs.
var allowedRecorders = map[string]bool{
	"arecord": true,
	"ffmpeg":  true,
	"rec":     true,
	"sox":     true,
	"parec":   true,
}

// CommandDevice captures audio from an external recorder that writes raw
// s16le PCM to stdout.
type CommandDevice struct {
	command string
	args    []string
}

// NewCommandDevice creates a device for an allowlisted recorder. With no
// args, DefaultRecorderArgs is used.
func NewCommandDevice(command string, args []string, f Format) *CommandDevice {
	if len(args) == 0 {
		args = DefaultRecorderArgs(command, f)
	}
	return &CommandDevice{command: command, args: args}
}

// DefaultRecorderArgs returns arguments that make a known recorder emit raw
// PCM in format f on stdout.
func DefaultRecorderArgs(command string, f Format) []string {
	rate := strconv.Itoa(f.SampleRate)
	channels := strconv.Itoa(f.Channels)
	switch filepath.Base(command) {
	case "arecord":
		return []string{"-q", "-t", "raw", "-f", "S16_LE", "-r", rate, "-c", channels}
	case "ffmpeg":
		return []string{"-loglevel", "error", "-f", "pulse", "-i", "default", "-ac", channels, "-ar", rate, "-f", "s16le", "-"}
	case "rec", "sox":
		args := []string{"-q", "-t", "raw", "-b", "16", "-e", "signed-integer", "-r", rate, "-c", channels, "-"}
		if filepath.Base(command) == "sox" {
			args = append([]string{"-d"}, args...)
		}
		return args
	case "parec":
		return []string{"--raw", "--format=s16le", "--rate=" + rate, "--channels=" + channels}
	}
	return nil
}

// Name returns the device identifier.
func (d *CommandDevice) Name() string {
	return "command:" + filepath.Base(d.command)
}

// IsAllowed checks if the recorder is in the allowlist.
func (d *CommandDevice) IsAllowed() bool {
	return allowedRecorders[filepath.Base(d.command)]
}

// Open starts the recorder process.
func (d *CommandDevice) Open(ctx context.Context) (Stream, error) {
	if !d.IsAllowed() {
		return nil, fmt.Errorf("%w: recorder not allowed: %s", ErrDeviceUnavailable, d.command)
	}

	cmd := exec.CommandContext(ctx, d.command, d.args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: start %s: %v", ErrDeviceUnavailable, d.command, err)
	}
	return &commandStream{cmd: cmd, out: stdout, stderr: &stderr}, nil
}

type commandStream struct {
	cmd    *exec.Cmd
	out    io.ReadCloser
	stderr *bytes.Buffer

	closed    atomic.Bool
	closeOnce sync.Once
	waitOnce  sync.Once
	waitErr   error
}

func (s *commandStream) wait() error {
	s.waitOnce.Do(func() { s.waitErr = s.cmd.Wait() })
	return s.waitErr
}

func (s *commandStream) Read(p []byte) (int, error) {
	n, err := s.out.Read(p)
	if err == io.EOF && !s.closed.Load() {
		if werr := s.wait(); werr != nil {
			msg := strings.TrimSpace(s.stderr.String())
			return n, fmt.Errorf("%w: recorder exited: %v %s", ErrDeviceUnavailable, werr, msg)
		}
	}
	return n, err
}

// Close stops the recorder and releases the device.
func (s *commandStream) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		if s.cmd.Process != nil {
			_ = s.cmd.Process.Kill()
		}
		_ = s.wait()
	})
	return nil
}

// FileDevice replays a WAV or raw PCM file as if it were captured live.
type FileDevice struct {
	path     string
	format   Format
	realtime bool
}

// NewFileDevice creates a device that replays path. When realtime is set,
// reads are paced at the format's byte rate.
func NewFileDevice(path string, f Format, realtime bool) *FileDevice {
	return &FileDevice{path: path, format: f, realtime: realtime}
}

// Name returns the device identifier.
func (d *FileDevice) Name() string {
	return "file:" + filepath.Base(d.path)
}

// Open loads the file.
func (d *FileDevice) Open(ctx context.Context) (Stream, error) {
	data, err := os.ReadFile(d.path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	data = data[wavHeaderSize(data):]

	s := &fileStream{data: data}
	if d.realtime {
		s.step = d.format.BytesInDuration(100 * time.Millisecond)
		s.pace = 100 * time.Millisecond
	}
	return s, nil
}

type fileStream struct {
	mu     sync.Mutex
	data   []byte
	off    int
	step   int
	pace   time.Duration
	closed bool
}

func (s *fileStream) Read(p []byte) (int, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return 0, io.EOF
	}
	if s.off >= len(s.data) {
		s.mu.Unlock()
		return 0, io.EOF
	}
	if s.step > 0 && len(p) > s.step {
		p = p[:s.step]
	}
	n := copy(p, s.data[s.off:])
	s.off += n
	pace := s.pace
	s.mu.Unlock()

	if pace > 0 {
		time.Sleep(pace)
	}
	return n, nil
}

func (s *fileStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
