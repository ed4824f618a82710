package app

import (
	"context"
	"encoding/csv"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	chart "github.com/wcharczuk/go-chart/v2"

	"polymirror/internal/storage"
)

const defaultExportWindow = 30 * 24 * time.Hour

// Export renders recorded outcomes as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	ledger, _, closeLedger, err := a.openLedger(ctx)
	if err != nil {
		return err
	}
	defer closeLedger()

	to := time.Now().UTC()
	if opts.To != nil {
		to = opts.To.UTC()
	}

	from := to.Add(-defaultExportWindow)
	if opts.From != nil {
		from = opts.From.UTC()
	}

	if !from.Before(to) {
		return errors.New("from must be before to")
	}

	outcomes, err := ledger.ListOutcomesBetween(ctx, from, to)
	if err != nil {
		return err
	}
	if len(outcomes) == 0 {
		a.Logger.Info().Msg("no outcomes found for export window")
		return nil
	}

	a.Logger.Info().Int("total", len(outcomes)).Msg("exporting outcomes")

	if opts.CSVPath != "" {
		if err := writeOutcomesCSV(opts.CSVPath, downsampleOutcomes(outcomes, opts.MaxPoints)); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writeOutcomesPNG(opts.PNGPath, outcomes, opts.MaxPoints); err != nil {
			return err
		}
	}

	return nil
}

func downsampleOutcomes(outcomes []storage.Outcome, max int) []storage.Outcome {
	if max <= 1 || len(outcomes) <= max {
		return outcomes
	}
	return pick(outcomes, downsampleIndexes(len(outcomes), max))
}

func writeOutcomesCSV(path string, outcomes []storage.Outcome) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"id", "timestamp", "market", "outcome", "side", "size_usdc", "price", "status", "order_id", "reason", "token_id", "tx_hash", "block_number"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, o := range outcomes {
		record := []string{
			o.ID.String(),
			o.Timestamp.UTC().Format(time.RFC3339),
			o.Market,
			o.OutcomeLabel,
			o.Side,
			o.SizeBase.String(),
			o.Price.String(),
			o.Status,
			o.OrderID,
			o.Reason,
			o.TokenID,
			o.TxHash,
			strconv.FormatUint(o.BlockNumber, 10),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

// outcomeSeries splits outcomes into the fill price of successful orders and
// the cumulative collateral they committed.
func outcomeSeries(outcomes []storage.Outcome) (x []time.Time, price, volume []float64) {
	cumulative := decimal.Zero
	for _, o := range outcomes {
		if o.Status != storage.StatusSuccess {
			continue
		}
		cumulative = cumulative.Add(o.SizeBase)
		x = append(x, o.Timestamp)
		price = append(price, o.Price.InexactFloat64())
		volume = append(volume, cumulative.InexactFloat64())
	}
	return x, price, volume
}

func writeOutcomesPNG(path string, outcomes []storage.Outcome, maxPoints int) error {
	x, price, volume := outcomeSeries(outcomes)
	if len(x) < 2 {
		return errors.New("need at least two successful outcomes to draw a chart")
	}
	if maxPoints > 1 && len(x) > maxPoints {
		idx := downsampleIndexes(len(x), maxPoints)
		x, price, volume = pick(x, idx), pick(price, idx), pick(volume, idx)
	}

	if err := ensureDir(path); err != nil {
		return err
	}

	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name: "Price",
			ValueFormatter: func(v interface{}) string {
				return chart.FloatValueFormatterWithFormat(v, "%.3f")
			},
		},
		YAxisSecondary: chart.YAxis{
			Name: "Cumulative volume (USDC)",
			ValueFormatter: func(v interface{}) string {
				return chart.FloatValueFormatterWithFormat(v, "%.0f")
			},
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Fill price",
				XValues: x,
				YValues: price,
			},
			chart.TimeSeries{
				Name:    "Cumulative volume",
				XValues: x,
				YValues: volume,
				YAxis:   chart.YAxisSecondary,
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func downsampleIndexes(n, max int) []int {
	idx := make([]int, 0, max)
	step := float64(n-1) / float64(max-1)
	for i := 0; i < max; i++ {
		j := int(math.Round(step * float64(i)))
		if j >= n {
			j = n - 1
		}
		idx = append(idx, j)
	}
	return idx
}

func pick[T any](values []T, idx []int) []T {
	out := make([]T, len(idx))
	for i, j := range idx {
		out[i] = values[j]
	}
	return out
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
