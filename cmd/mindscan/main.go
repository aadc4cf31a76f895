package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"runtime"

	"github.com/fentz26/mindscan/internal/backend"
	"github.com/fentz26/mindscan/internal/config"
	"github.com/fentz26/mindscan/internal/observability"
	"github.com/fentz26/mindscan/internal/retrying"
	"github.com/fentz26/mindscan/internal/store"
	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "mindscan",
	Short: "mindscan - guided cognitive screening sessions",
	Long: `mindscan runs a guided screening session in the terminal: short speech
recordings, a set of timed cognitive tasks, and a risk estimate computed by
the assessment backend.`,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

var (
	configPath  string
	apiOverride string
	logLevel    string

	cfg *config.Config
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath(), "Path to config file")
	rootCmd.PersistentFlags().StringVar(&apiOverride, "api", "", "Assessment backend URL (overrides config)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")

	rootCmd.AddCommand(sessionCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(resultCmd)
	rootCmd.AddCommand(catalogCmd)
	rootCmd.AddCommand(stubCmd)
	rootCmd.AddCommand(versionCmd)
}

func loadConfig(cmd *cobra.Command, args []string) error {
	c, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if apiOverride != "" {
		c.APIURL = apiOverride
	}
	if logLevel != "" {
		if _, err := observability.ParseLevel(logLevel); err != nil {
			return err
		}
		c.Log.Level = logLevel
	}
	cfg = c
	return nil
}

// stderrLogger is used by commands that keep the terminal in line mode.
func stderrLogger() *slog.Logger {
	logger, err := observability.NewLogger(cfg.Log.Level, cfg.Log.Format, os.Stderr)
	if err != nil {
		return observability.Discard()
	}
	return logger
}

func newBackend(logger *slog.Logger) *backend.Client {
	return backend.NewClient(cfg.APIURL,
		backend.WithHTTPClient(&http.Client{Timeout: cfg.HTTPTimeout}),
		backend.WithLogger(logger),
	)
}

// openStore opens the local history database and checks it answers.
func openStore(ctx context.Context, path string) (*store.Store, error) {
	s, err := store.New(path)
	if err != nil {
		return nil, err
	}
	if err := s.Ping(ctx); err != nil {
		s.Close()
		return nil, fmt.Errorf("history store: %w", err)
	}
	return s, nil
}

func policy(r config.RetryConfig) retrying.Policy {
	return retrying.Policy{Attempts: r.Attempts, Delay: r.Delay}
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version of mindscan",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("mindscan version %s\n", version)
		fmt.Printf("  OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		fmt.Printf("  Go version: %s\n", runtime.Version())
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
