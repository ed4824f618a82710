package app

import (
	"bytes"
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"polymirror/internal/classifier"
	"polymirror/internal/config"
	"polymirror/internal/settings"
	"polymirror/internal/storage"
)

func testApp(t *testing.T) (*App, *bytes.Buffer) {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{
		Ledger:   config.LedgerConfig{Driver: "sqlite", SQLitePath: filepath.Join(dir, "trades.db"), RecordSkipped: true},
		Settings: config.SettingsConfig{Source: "file", Path: filepath.Join(dir, "state", "config.json")},
		Export:   config.ExportConfig{MaxDataPoints: 100},
	}
	buf := &bytes.Buffer{}
	a := NewApp(cfg, zerolog.Nop())
	a.Out = buf
	return a, buf
}

func seedOutcomes(t *testing.T, a *App, statuses ...string) {
	t.Helper()
	ledger, err := storage.OpenSQLite(a.Config.Ledger.SQLitePath)
	require.NoError(t, err)
	defer ledger.Close()

	base := time.Now().UTC().Add(-time.Hour)
	for i, status := range statuses {
		o := storage.NewOutcome()
		o.Timestamp = base.Add(time.Duration(i) * time.Minute)
		o.Market = "Will it rain?"
		o.OutcomeLabel = "Yes"
		o.Side = "BUY"
		o.SizeBase = decimal.NewFromInt(10)
		o.Price = decimal.RequireFromString("0.52")
		o.Status = status
		require.NoError(t, ledger.AppendOutcome(context.Background(), o))
	}
}

func TestInitWritesDefaultsOnce(t *testing.T) {
	a, _ := testApp(t)
	ctx := context.Background()

	require.NoError(t, a.Init(ctx))
	params, err := settings.NewFileStore(a.Config.Settings.Path).Read(ctx)
	require.NoError(t, err)
	def := settings.Defaults()
	assert.False(t, params.Active)
	assert.True(t, params.CopyRatio.Equal(def.CopyRatio), params.CopyRatio.String())
	assert.True(t, params.MaxCapBase.Equal(def.MaxCapBase), params.MaxCapBase.String())
	assert.Equal(t, def.TargetAddress, params.TargetAddress)

	require.NoError(t, os.WriteFile(a.Config.Settings.Path, []byte(`{"is_active":true,"copy_ratio":0.5,"max_cap_usdc":10,"target_wallet":"0x00000000000000000000000000000000000000aa"}`), 0o644))
	require.NoError(t, a.Init(ctx))

	params, err = settings.NewFileStore(a.Config.Settings.Path).Read(ctx)
	require.NoError(t, err)
	assert.True(t, params.Active, "existing parameters are left untouched")
	_, err = os.Stat(a.Config.Ledger.SQLitePath)
	assert.NoError(t, err)
}

func TestShowPrintsOutcomesAndMetrics(t *testing.T) {
	a, buf := testApp(t)
	seedOutcomes(t, a, storage.StatusSuccess, storage.StatusFailed, storage.StatusSkipped)

	require.NoError(t, a.Show(context.Background(), ShowOptions{Limit: 10}))

	text := buf.String()
	assert.Contains(t, text, "Will it rain?")
	assert.Contains(t, text, "SKIPPED")
	assert.Contains(t, text, "Total: 3  Success: 1  Failed: 1  Skipped: 1")
	assert.Contains(t, text, "Success rate: 50.00%  Volume: 10.00 USDC")
}

func TestShowEmptyLedger(t *testing.T) {
	a, buf := testApp(t)
	require.NoError(t, a.Show(context.Background(), ShowOptions{Limit: 10}))
	assert.Contains(t, buf.String(), "no outcomes recorded")
}

func TestExportCSV(t *testing.T) {
	a, _ := testApp(t)
	seedOutcomes(t, a, storage.StatusSuccess, storage.StatusFailed)
	path := filepath.Join(t.TempDir(), "out", "outcomes.csv")

	require.NoError(t, a.Export(context.Background(), ExportOptions{CSVPath: path}))

	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()
	records, err := csv.NewReader(file).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "status", records[0][7])
	assert.Equal(t, storage.StatusSuccess, records[1][7])
	assert.Equal(t, storage.StatusFailed, records[2][7])
}

func TestExportRequiresOutput(t *testing.T) {
	a, _ := testApp(t)
	assert.Error(t, a.Export(context.Background(), ExportOptions{}))
}

func TestOutcomeSeriesCountsSuccessOnly(t *testing.T) {
	now := time.Now()
	mk := func(status string, size int64) storage.Outcome {
		o := storage.NewOutcome()
		o.Timestamp = now
		o.Status = status
		o.SizeBase = decimal.NewFromInt(size)
		o.Price = decimal.RequireFromString("0.5")
		return o
	}
	x, price, volume := outcomeSeries([]storage.Outcome{
		mk(storage.StatusSuccess, 10),
		mk(storage.StatusFailed, 99),
		mk(storage.StatusSuccess, 5),
	})
	assert.Len(t, x, 2)
	assert.Equal(t, []float64{0.5, 0.5}, price)
	assert.Equal(t, []float64{10, 15}, volume)
}

func TestDownsampleKeepsEndpoints(t *testing.T) {
	idx := downsampleIndexes(10, 3)
	assert.Equal(t, []int{0, 5, 9}, idx)
}

func TestSyntheticFillRoundTripsThroughClassifier(t *testing.T) {
	target := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	cases := []struct {
		side string
		dir  classifier.Direction
	}{
		{"buy", classifier.Acquire},
		{"SELL", classifier.Dispose},
	}
	for _, tc := range cases {
		t.Run(tc.side, func(t *testing.T) {
			ev, err := SyntheticFill(SimulateOptions{
				TokenID: "777",
				Side:    tc.side,
				Price:   decimal.RequireFromString("0.5"),
				Size:    decimal.NewFromInt(20),
			}, target)
			require.NoError(t, err)

			intent, err := classifier.Classify(ev, target)
			require.NoError(t, err)
			assert.Equal(t, tc.dir, intent.Direction)
			assert.Equal(t, "777", intent.TokenIDString())
			assert.True(t, intent.ImpliedPrice.Equal(decimal.RequireFromString("0.5")), intent.ImpliedPrice.String())
			assert.True(t, intent.ObservedSizeBase.Equal(decimal.NewFromInt(20)), intent.ObservedSizeBase.String())
		})
	}
}

func TestSyntheticFillValidation(t *testing.T) {
	target := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	_, err := SyntheticFill(SimulateOptions{TokenID: "abc", Side: "BUY", Price: decimal.NewFromInt(1), Size: decimal.NewFromInt(1)}, target)
	assert.Error(t, err)
	_, err = SyntheticFill(SimulateOptions{TokenID: "1", Side: "HOLD", Price: decimal.NewFromInt(1), Size: decimal.NewFromInt(1)}, target)
	assert.Error(t, err)
	_, err = SyntheticFill(SimulateOptions{TokenID: "1", Side: "BUY", Price: decimal.Zero, Size: decimal.NewFromInt(1)}, target)
	assert.Error(t, err)
}
