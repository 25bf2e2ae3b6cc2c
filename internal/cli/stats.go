package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/engramdb/engram/internal/engine"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show store and index statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(func(eng *engine.Engine) error {
			s, err := eng.Stats()
			if err != nil {
				return err
			}
			fmt.Printf("db:              %s (%.1f KiB)\n", s.DBPath, float64(s.DBSizeBytes)/1024)
			fmt.Printf("records:         %d total, %d active, %d protected\n",
				s.TotalRecords, s.ActiveRecords, s.ProtectedCount)
			fmt.Printf("index:           %s (%d vectors)\n", s.IndexStrategy, s.IndexedVectors)
			fmt.Printf("avg decay score: %.3f\n", s.AvgDecayScore)

			if len(s.ByCategory) > 0 {
				cats := make([]string, 0, len(s.ByCategory))
				for c := range s.ByCategory {
					cats = append(cats, c)
				}
				sort.Strings(cats)
				fmt.Println("by category:")
				for _, c := range cats {
					fmt.Printf("  %-12s %d\n", c, s.ByCategory[c])
				}
			}
			return nil
		})
	},
}
