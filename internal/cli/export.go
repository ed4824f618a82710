package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"polymirror/internal/app"
)

var (
	exportFrom      string
	exportTo        string
	exportPNGPath   string
	exportCSVPath   string
	exportMaxPoints int
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export recorded outcomes as CSV and/or a PNG chart",
	RunE: func(cmd *cobra.Command, args []string) error {
		from, err := parseTimeFlag("from", exportFrom)
		if err != nil {
			return err
		}
		to, err := parseTimeFlag("to", exportTo)
		if err != nil {
			return err
		}

		return getApp().Export(cmd.Context(), app.ExportOptions{
			From:      from,
			To:        to,
			PNGPath:   exportPNGPath,
			CSVPath:   exportCSVPath,
			MaxPoints: exportMaxPoints,
		})
	},
}

// parseTimeFlag accepts RFC3339 or a bare UTC date. An empty value yields nil.
func parseTimeFlag(name, value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, time.DateOnly} {
		if t, err := time.Parse(layout, value); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("invalid --%s value %q: want RFC3339 or YYYY-MM-DD", name, value)
}

func init() {
	exportCmd.Flags().StringVar(&exportFrom, "from", "", "Start time, RFC3339 or YYYY-MM-DD (inclusive, default 30 days before --to)")
	exportCmd.Flags().StringVar(&exportTo, "to", "", "End time, RFC3339 or YYYY-MM-DD (exclusive, default now)")
	exportCmd.Flags().StringVar(&exportPNGPath, "png", "", "Path to write the price and volume chart")
	exportCmd.Flags().StringVar(&exportCSVPath, "csv", "", "Path to write outcome rows")
	exportCmd.Flags().IntVar(&exportMaxPoints, "max-points", 0, "Maximum rows or chart points to export (defaults to config)")
}
