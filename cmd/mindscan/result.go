package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fentz26/mindscan/internal/session"
	"github.com/fentz26/mindscan/internal/store"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var resultCmd = &cobra.Command{
	Use:   "result [assessment-id]",
	Short: "Check results that were still processing when a session ended",
	Long: `Polls the backend for results that timed out during a session. With no
argument, every pending assessment is checked.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runResult,
}

const maxConcurrentChecks = 4

func runResult(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	s, err := openStore(ctx, cfg.DBPath)
	if err != nil {
		return err
	}
	defer s.Close()

	var pending []store.PendingResult
	if len(args) == 1 {
		p, err := s.GetPending(ctx, args[0])
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("no pending result for assessment %s", args[0])
		}
		if err != nil {
			return err
		}
		pending = append(pending, p)
	} else {
		pending, err = s.ListPending(ctx)
		if err != nil {
			return err
		}
	}
	if len(pending) == 0 {
		fmt.Println("No pending results.")
		return nil
	}

	c := &checker{store: s, backend: newBackend(stderrLogger()), now: time.Now}
	reports := make([]string, len(pending))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentChecks)
	for i, p := range pending {
		g.Go(func() error {
			report, err := c.check(gctx, p)
			reports[i] = report
			return err
		})
	}
	err = g.Wait()
	for _, r := range reports {
		if r != "" {
			fmt.Print(r)
		}
	}
	return err
}

type checker struct {
	store   *store.Store
	backend session.Backend
	now     func() time.Time
}

// check polls one pending assessment. A ready result moves into history;
// an expired credential drops the entry.
func (c *checker) check(ctx context.Context, p store.PendingResult) (string, error) {
	id := shortID(p.AssessmentID)
	if !p.ExpiresAt.IsZero() && !c.now().Before(p.ExpiresAt) {
		if err := c.store.DeletePending(ctx, p.AssessmentID); err != nil {
			return "", err
		}
		return fmt.Sprintf("%s: access expired, the result can no longer be fetched\n", id), nil
	}

	result, ready, err := session.Poll(ctx, c.backend, policy(cfg.Poll), p.AccessToken, p.AssessmentID)
	if err != nil {
		return "", fmt.Errorf("%s: %w", id, err)
	}
	if !ready {
		return fmt.Sprintf("%s: still processing\n", id), nil
	}

	if _, err := c.store.AppendHistory(ctx, p.UserKey, result); err != nil {
		return "", err
	}
	if err := c.store.DeletePending(ctx, p.AssessmentID); err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s risk (%.0f%%)\n", id, result.RiskLevel, result.Probability*100)
	for _, rec := range result.Recommendations {
		fmt.Fprintf(&b, "  - %s\n", rec)
	}
	return b.String(), nil
}
