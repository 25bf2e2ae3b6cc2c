package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/engramdb/engram/internal/engine"
	"github.com/engramdb/engram/internal/store"
)

var chainCmd = &cobra.Command{
	Use:   "chain",
	Short: "Inspect supersession chains",
}

var chainShowCmd = &cobra.Command{
	Use:   "show [id]",
	Short: "Print the full chain containing a memory, oldest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(func(eng *engine.Engine) error {
			chain, err := eng.GetChain(args[0])
			if err != nil {
				return err
			}
			for i, r := range chain {
				marker := " "
				if r.ID == args[0] {
					marker = "*"
				}
				fmt.Printf("%s %d. %s  %s  %s\n", marker, i+1, r.ID,
					r.InsertedAt.Format(time.RFC3339), chainNote(&r))
				fmt.Printf("      %s\n", firstLine(r.Content))
			}
			return nil
		})
	},
}

var chainCurrentCmd = &cobra.Command{
	Use:   "current [id]",
	Short: "Print the terminal memory of the chain containing id",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(func(eng *engine.Engine) error {
			r, err := eng.GetCurrent(args[0])
			if err != nil {
				return err
			}
			printRecord(r)
			return nil
		})
	},
}

var chainOriginalCmd = &cobra.Command{
	Use:   "original [id]",
	Short: "Print the root memory of the chain containing id",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(func(eng *engine.Engine) error {
			r, err := eng.GetOriginal(args[0])
			if err != nil {
				return err
			}
			printRecord(r)
			return nil
		})
	},
}

func init() {
	chainCmd.AddCommand(chainShowCmd)
	chainCmd.AddCommand(chainCurrentCmd)
	chainCmd.AddCommand(chainOriginalCmd)
}

func chainNote(r *store.Record) string {
	if r.Active() {
		return "(current)"
	}
	return fmt.Sprintf("(superseded: %s)", r.SupersessionType)
}

func printRecord(r *store.Record) {
	fmt.Printf("%s  [%s] importance=%.2f accesses=%d\n%s\n",
		r.ID, r.Category, r.Importance, r.AccessCount, r.Content)
}
