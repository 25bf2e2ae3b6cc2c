package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/engramdb/engram/internal/engine"
)

var (
	putCategory   string
	putImportance float64
	putProtected  bool
)

var putCmd = &cobra.Command{
	Use:   "put [content]",
	Short: "Store a memory",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runPut,
}

func init() {
	putCmd.Flags().StringVarP(&putCategory, "category", "c", "fact", "fact, observation, action, or plan")
	putCmd.Flags().Float64VarP(&putImportance, "importance", "i", 0, "importance in (0,1], default 0.5")
	putCmd.Flags().BoolVar(&putProtected, "protected", false, "never forget this memory")
}

func runPut(cmd *cobra.Command, args []string) error {
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

	res, err := eng.Store(ctx, engine.StoreInput{
		Content:    strings.Join(args, " "),
		Category:   putCategory,
		Importance: putImportance,
		Protected:  putProtected,
	})
	if err != nil {
		return err
	}

	switch res.Decision {
	case engine.DecisionRedundant:
		fmt.Printf("redundant: reinforced %s (similarity %.3f)\n", res.ID, res.Similarity)
	case engine.DecisionNew:
		fmt.Printf("stored %s\n", res.ID)
	default:
		fmt.Printf("%s: %s supersedes %s\n", res.Decision, res.ID, res.Superseded)
	}
	return nil
}
