package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/engramdb/engram/internal/engine"
)

var (
	forgetThreshold float64
	forgetBatch     int
	forgetDryRun    bool
)

var forgetCmd = &cobra.Command{
	Use:   "forget",
	Short: "Run one forgetting sweep over decayed memories",
	RunE: func(cmd *cobra.Command, args []string) error {
		if forgetThreshold <= 0 || forgetThreshold >= 1 {
			return fmt.Errorf("threshold must be in (0,1), got %v", forgetThreshold)
		}
		return withEngine(func(eng *engine.Engine) error {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			defer cancel()

			res, err := eng.RunForgetting(ctx, forgetThreshold, forgetBatch, forgetDryRun)
			if err != nil {
				return err
			}
			verb := "forgot"
			if res.DryRun {
				verb = "would forget"
			}
			fmt.Printf("%s %d of %d scanned memories\n", verb, res.Forgotten, res.Scanned)
			for _, id := range res.IDs {
				fmt.Printf("  %s\n", id)
			}
			return nil
		})
	},
}

func init() {
	forgetCmd.Flags().Float64VarP(&forgetThreshold, "threshold", "t", 0.05, "decay score below which memories are forgotten")
	forgetCmd.Flags().IntVarP(&forgetBatch, "batch", "b", 100, "max records per sweep")
	forgetCmd.Flags().BoolVar(&forgetDryRun, "dry-run", false, "report without deleting")
}
