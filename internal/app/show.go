package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
)

// Show prints recent outcomes followed by ledger-wide metrics.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	ledger, _, closeLedger, err := a.openLedger(ctx)
	if err != nil {
		return err
	}
	defer closeLedger()

	out := a.out()

	outcomes, err := ledger.ListRecentOutcomes(ctx, opts.Limit)
	if err != nil {
		return err
	}
	if len(outcomes) == 0 {
		fmt.Fprintln(out, "no outcomes recorded")
	} else {
		table := tablewriter.NewWriter(out)
		table.Header("Time (UTC)", "Market", "Outcome", "Side", "Size", "Price", "Status", "Order", "Reason")
		for _, o := range outcomes {
			table.Append(
				o.Timestamp.UTC().Format(time.RFC3339),
				truncate(o.Market, 48),
				o.OutcomeLabel,
				o.Side,
				o.SizeBase.StringFixed(2),
				o.Price.StringFixed(4),
				o.Status,
				truncate(o.OrderID, 18),
				sanitizeInline(o.Reason),
			)
		}
		table.Render()
	}

	summary, err := ledger.Summarize(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "\nTotal: %d  Success: %d  Failed: %d  Skipped: %d\n",
		summary.Total, summary.Success, summary.Failed, summary.Skipped)
	fmt.Fprintf(out, "Success rate: %s%%  Volume: %s USDC\n",
		summary.SuccessRate().StringFixed(2), summary.Volume.StringFixed(2))
	return nil
}

func truncate(v string, max int) string {
	if len(v) <= max {
		return v
	}
	return v[:max-3] + "..."
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}
