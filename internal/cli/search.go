package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/engramdb/engram/internal/engine"
	"github.com/engramdb/engram/internal/score"
)

var (
	searchLimit     int
	searchCategory  string
	searchPreset    string
	searchModelSize string
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search memories by semantic similarity",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSearch,
}

func init() {
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 10, "max results")
	searchCmd.Flags().StringVarP(&searchCategory, "category", "c", "", "filter by category")
	searchCmd.Flags().StringVarP(&searchPreset, "preset", "p", "", "balanced, semantic, recent, important, or popular")
	searchCmd.Flags().StringVarP(&searchModelSize, "model-size", "m", "", "small, medium, or large (tier cutoffs)")
}

func runSearch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	eng, db, err := openEngine(cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	defer eng.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	results, err := eng.Search(ctx, strings.Join(args, " "), engine.SearchOpts{
		Limit:     searchLimit,
		Category:  searchCategory,
		Preset:    searchPreset,
		ModelSize: score.ModelSize(searchModelSize),
	})
	if err != nil {
		return err
	}
	if len(results) == 0 {
		fmt.Println("no results")
		return nil
	}

	for _, r := range results {
		fmt.Printf("%s  %s  [%s] sim=%.3f score=%.3f urs=%.3f\n  %s\n",
			r.Tier, r.Record.ID, r.Record.Category, r.Similarity, r.Score, r.URS,
			firstLine(r.Record.Content))
	}
	return nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
