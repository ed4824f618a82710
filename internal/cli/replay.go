package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"polymirror/internal/app"
)

var (
	replayFromBlock uint64
	replayToBlock   uint64
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Dry-run the target's fills over a historical block range",
	RunE: func(cmd *cobra.Command, args []string) error {
		if replayFromBlock == 0 || replayToBlock == 0 {
			return fmt.Errorf("--from-block and --to-block must be provided")
		}
		if replayToBlock < replayFromBlock {
			return fmt.Errorf("--from-block must not exceed --to-block")
		}

		return getApp().Replay(cmd.Context(), app.ReplayOptions{
			FromBlock: replayFromBlock,
			ToBlock:   replayToBlock,
		})
	},
}

func init() {
	replayCmd.Flags().Uint64Var(&replayFromBlock, "from-block", 0, "First block to scan (inclusive)")
	replayCmd.Flags().Uint64Var(&replayToBlock, "to-block", 0, "Last block to scan (inclusive)")
}
