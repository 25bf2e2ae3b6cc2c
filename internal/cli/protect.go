package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/engramdb/engram/internal/engine"
)

var protectOff bool

var protectCmd = &cobra.Command{
	Use:   "protect [id]",
	Short: "Mark a memory as never-forgotten (or clear the flag with --off)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(func(eng *engine.Engine) error {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			if err := eng.MarkProtected(ctx, args[0], !protectOff); err != nil {
				return err
			}
			if protectOff {
				fmt.Printf("%s is no longer protected\n", args[0])
			} else {
				fmt.Printf("%s is protected\n", args[0])
			}
			return nil
		})
	},
}

func init() {
	protectCmd.Flags().BoolVar(&protectOff, "off", false, "clear the protected flag")
}
