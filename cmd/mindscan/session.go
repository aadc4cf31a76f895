package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/fentz26/mindscan/internal/capture"
	"github.com/fentz26/mindscan/internal/models"
	"github.com/fentz26/mindscan/internal/observability"
	"github.com/fentz26/mindscan/internal/session"
	"github.com/fentz26/mindscan/internal/tui"
	"github.com/spf13/cobra"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Run an interactive screening session",
	Long: `Collects your details, then walks through the speech and cognitive tasks
and shows the result. Results are cached locally for the history command.`,
	RunE: runSession,
}

var (
	regName     string
	regAge      int
	regLanguage string
	replayFile  string
)

func init() {
	sessionCmd.Flags().StringVar(&regName, "name", "", "Pre-fill the participant name")
	sessionCmd.Flags().IntVar(&regAge, "age", 0, "Pre-fill the participant age")
	sessionCmd.Flags().StringVar(&regLanguage, "language", "", "Session language (overrides config)")
	sessionCmd.Flags().StringVar(&replayFile, "replay", "", "Play a WAV file instead of recording from the microphone")
}

func runSession(cmd *cobra.Command, args []string) error {
	logger, closer, err := observability.OpenLogFile(cfg.Log.Level, cfg.Log.Format, cfg.Log.File)
	if err != nil {
		return err
	}
	defer closer.Close()

	lang := cfg.Language
	if regLanguage != "" {
		lang = regLanguage
	}
	reg, err := tui.RunOnboardingForm(os.Stdin, os.Stdout, models.Registration{
		Name:     regName,
		Age:      regAge,
		Language: lang,
	})
	if err != nil {
		return err
	}
	if _, err := session.ValidateRegistration(reg); err != nil {
		return err
	}

	s, err := openStore(cmd.Context(), cfg.DBPath)
	if err != nil {
		return err
	}
	defer s.Close()

	orch := session.New(newBackend(logger), session.Options{
		Device:      device(logger),
		Format:      capture.Format{SampleRate: cfg.Capture.SampleRate, Channels: cfg.Capture.Channels},
		Timeslice:   cfg.Capture.Timeslice,
		UploadRetry: policy(cfg.Upload),
		PollRetry:   policy(cfg.Poll),
		History:     s,
		Logger:      logger,
	})

	app := tui.New(orch, reg)
	if err := app.Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}

	if hint := pendingHint(orch.Snapshot()); hint != "" {
		fmt.Println(hint)
	}
	return nil
}

// pendingHint tells the user how to fetch a result that was still computing
// when the session ended. A failed poll leaves nothing to fetch later.
func pendingHint(snap session.Session) string {
	if snap.Notice != session.NoticeStillComputing || snap.AssessmentID == "" {
		return ""
	}
	return fmt.Sprintf("Your result is still processing. Run: mindscan result %s", snap.AssessmentID)
}

func device(logger *slog.Logger) capture.Device {
	f := capture.Format{SampleRate: cfg.Capture.SampleRate, Channels: cfg.Capture.Channels}
	file := cfg.Capture.ReplayFile
	if replayFile != "" {
		file = replayFile
	}
	if file != "" {
		logger.Info("using replay audio", "file", file)
		return capture.NewFileDevice(file, f, true)
	}
	return capture.NewCommandDevice(cfg.Capture.Recorder, cfg.Capture.Args, f)
}
