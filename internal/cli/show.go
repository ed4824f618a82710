package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"polymirror/internal/app"
)

var showLimit int

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display recent outcomes with success rate and traded volume",
	RunE: func(cmd *cobra.Command, args []string) error {
		if showLimit <= 0 {
			return fmt.Errorf("--limit must be greater than zero")
		}
		return getApp().Show(cmd.Context(), app.ShowOptions{Limit: showLimit})
	},
}

func init() {
	showCmd.Flags().IntVarP(&showLimit, "limit", "n", 25, "Number of outcomes to display, newest first")
}
