// Package config loads mindscan settings from YAML, .env and the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds mindscan configuration.
type Config struct {
	// APIURL is the root of the assessment backend.
	APIURL      string        `yaml:"api_url"`
	Language    string        `yaml:"language"`
	DBPath      string        `yaml:"db_path"`
	HTTPTimeout time.Duration `yaml:"http_timeout"`
	Log         LogConfig     `yaml:"log"`
	Capture     CaptureConfig `yaml:"capture"`
	Upload      RetryConfig   `yaml:"upload"`
	Poll        RetryConfig   `yaml:"poll"`
	Stub        StubConfig    `yaml:"stub"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	// File receives logs while the terminal UI owns the screen.
	File string `yaml:"file"`
}

// CaptureConfig selects the audio source.
type CaptureConfig struct {
	// Recorder is an allowlisted external program (arecord, ffmpeg, sox, rec, parec).
	Recorder   string        `yaml:"recorder"`
	Args       []string      `yaml:"args"`
	ReplayFile string        `yaml:"replay_file"`
	SampleRate int           `yaml:"sample_rate"`
	Channels   int           `yaml:"channels"`
	Timeslice  time.Duration `yaml:"timeslice"`
}

// RetryConfig is a bounded fixed-delay retry policy.
type RetryConfig struct {
	Attempts int           `yaml:"attempts"`
	Delay    time.Duration `yaml:"delay"`
}

// StubConfig configures the local stub backend.
type StubConfig struct {
	Listen     string        `yaml:"listen"`
	Secret     string        `yaml:"secret"`
	TokenTTL   time.Duration `yaml:"token_ttl"`
	ReadyAfter int           `yaml:"ready_after"`
	StorageDir string        `yaml:"storage_dir"`
}

// Environment variables that override the file.
const (
	EnvAPI         = "MINDSCAN_API"
	EnvLanguage    = "MINDSCAN_LANGUAGE"
	EnvDB          = "MINDSCAN_DB"
	EnvLogLevel    = "MINDSCAN_LOG_LEVEL"
	EnvRecorder    = "MINDSCAN_RECORDER"
	EnvTokenSecret = "MINDSCAN_TOKEN_SECRET"
	EnvReadyAfter  = "MINDSCAN_READY_AFTER"
)

// Dir returns ~/.mindscan, or .mindscan when the home directory is unknown.
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".mindscan"
	}
	return filepath.Join(home, ".mindscan")
}

// DefaultPath returns ~/.mindscan/config.yaml.
func DefaultPath() string {
	return filepath.Join(Dir(), "config.yaml")
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() *Config {
	dir := Dir()
	return &Config{
		APIURL:      "http://127.0.0.1:8000",
		Language:    "en",
		DBPath:      filepath.Join(dir, "mindscan.db"),
		HTTPTimeout: 30 * time.Second,
		Log: LogConfig{
			Level:  "info",
			Format: "text",
			File:   filepath.Join(dir, "mindscan.log"),
		},
		Capture: CaptureConfig{
			Recorder:   "arecord",
			SampleRate: 16000,
			Channels:   1,
			Timeslice:  time.Second,
		},
		Upload: RetryConfig{Attempts: 3, Delay: 600 * time.Millisecond},
		Poll:   RetryConfig{Attempts: 15, Delay: time.Second},
		Stub: StubConfig{
			Listen:     "127.0.0.1:8000",
			Secret:     "change-me",
			TokenTTL:   24 * time.Hour,
			ReadyAfter: 2,
		},
	}
}

// Load reads path over the defaults, then applies .env and environment
// overrides. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := LoadDotEnv(".env"); err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadDotEnv loads variables from a .env file without overriding ones
// already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides fields from environment variables.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvAPI); ok && v != "" {
		c.APIURL = v
	}
	if v, ok := lookup(EnvLanguage); ok && v != "" {
		c.Language = v
	}
	if v, ok := lookup(EnvDB); ok && v != "" {
		c.DBPath = v
	}
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		c.Log.Level = v
	}
	if v, ok := lookup(EnvRecorder); ok && v != "" {
		c.Capture.Recorder = v
	}
	if v, ok := lookup(EnvTokenSecret); ok && v != "" {
		c.Stub.Secret = v
	}
	if v, ok := lookup(EnvReadyAfter); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvReadyAfter, err)
		}
		c.Stub.ReadyAfter = n
	}
	return nil
}

// Save writes the configuration to path, creating parent directories if needed.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if !strings.HasPrefix(c.APIURL, "http://") && !strings.HasPrefix(c.APIURL, "https://") {
		return fmt.Errorf("api_url must be an http(s) URL, got %q", c.APIURL)
	}
	if c.DBPath == "" {
		return fmt.Errorf("db_path is required")
	}
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("http_timeout must be positive")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Log.Level)] {
		return fmt.Errorf("invalid log level %q, must be: debug, info, warn, or error", c.Log.Level)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("invalid log format %q, must be: text or json", c.Log.Format)
	}

	if c.Capture.SampleRate <= 0 || c.Capture.Channels <= 0 {
		return fmt.Errorf("capture sample_rate and channels must be positive")
	}
	if c.Upload.Attempts < 1 {
		return fmt.Errorf("upload.attempts must be at least 1")
	}
	if c.Poll.Attempts < 1 {
		return fmt.Errorf("poll.attempts must be at least 1")
	}
	if c.Upload.Delay < 0 || c.Poll.Delay < 0 {
		return fmt.Errorf("retry delays cannot be negative")
	}
	if c.Stub.ReadyAfter < 0 {
		return fmt.Errorf("stub.ready_after cannot be negative")
	}
	return nil
}
