package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/fentz26/mindscan/internal/models"
	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List cached assessment results",
	RunE:  runHistory,
}

var (
	historyUser string
	historyJSON bool
)

func init() {
	historyCmd.Flags().StringVar(&historyUser, "user", "", "Only show results for this user ID")
	historyCmd.Flags().BoolVar(&historyJSON, "json", false, "Output as JSON")
}

func runHistory(cmd *cobra.Command, args []string) error {
	s, err := openStore(cmd.Context(), cfg.DBPath)
	if err != nil {
		return err
	}
	defer s.Close()

	entries, err := s.ListHistory(cmd.Context(), historyUser)
	if err != nil {
		return err
	}

	if historyJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}

	if len(entries) == 0 {
		fmt.Println("No results yet.")
		return nil
	}
	printHistory(entries)
	return nil
}

func printHistory(entries []models.HistoryEntry) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DATE\tASSESSMENT\tRISK\tPROBABILITY\tMEMORY\tATTENTION\tLANGUAGE\tEXECUTIVE")
	for _, e := range entries {
		r := e.Result
		fmt.Fprintf(w, "%s\t%s\t%s\t%.0f%%\t%.1f\t%.1f\t%.1f\t%.1f\n",
			e.StoredAt.Local().Format("2006-01-02 15:04"),
			shortID(e.AssessmentID),
			strings.ToUpper(string(r.RiskLevel)),
			r.Probability*100,
			r.SubScores.Memory, r.SubScores.Attention, r.SubScores.Language, r.SubScores.Executive,
		)
	}
	w.Flush()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
