package cli

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"polymirror/internal/app"
)

var (
	simulateToken string
	simulateSide  string
	simulatePrice string
	simulateSize  string
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-fill",
	Short: "Run a synthetic target fill through the guard without placing an order",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulateToken == "" {
			return errors.New("--token must be provided")
		}
		price, err := decimal.NewFromString(simulatePrice)
		if err != nil {
			return fmt.Errorf("invalid --price value: %w", err)
		}
		size, err := decimal.NewFromString(simulateSize)
		if err != nil {
			return fmt.Errorf("invalid --size value: %w", err)
		}

		return getApp().SimulateFill(cmd.Context(), app.SimulateOptions{
			TokenID: simulateToken,
			Side:    simulateSide,
			Price:   price,
			Size:    size,
		})
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateToken, "token", "", "Outcome token id")
	simulateCmd.Flags().StringVar(&simulateSide, "side", "BUY", "BUY or SELL")
	simulateCmd.Flags().StringVar(&simulatePrice, "price", "0.5", "Observed fill price")
	simulateCmd.Flags().StringVar(&simulateSize, "size", "10", "Observed collateral size in USDC")
}
