package main

import (
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/fentz26/mindscan/internal/catalog"
	"github.com/spf13/cobra"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Print the task catalog for a language and seed",
	RunE:  runCatalog,
}

var (
	catalogLang string
	catalogSeed uint64
	catalogJSON bool
)

func init() {
	catalogCmd.Flags().StringVar(&catalogLang, "lang", "", "Language code (defaults to config)")
	catalogCmd.Flags().Uint64Var(&catalogSeed, "seed", 0, "Catalog seed (random when 0)")
	catalogCmd.Flags().BoolVar(&catalogJSON, "json", false, "Output as JSON")
}

func runCatalog(cmd *cobra.Command, args []string) error {
	lang := catalogLang
	if lang == "" {
		lang = cfg.Language
	}
	seed := catalogSeed
	if seed == 0 {
		seed = rand.Uint64()
	}
	c := catalog.Generate(lang, seed)

	if catalogJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(c)
	}

	fmt.Printf("Language: %s  Seed: %d\n\n", c.Language, c.Seed)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tKIND\tMODALITY\tPROMPT")
	for _, t := range append(c.Speech, c.Cognitive...) {
		prompt := t.Prompt
		if len(t.Options) > 0 {
			prompt += " [" + strings.Join(t.Options, ", ") + "]"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", t.ID, t.Kind, t.Modality, truncate(prompt, 80))
	}
	return w.Flush()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
