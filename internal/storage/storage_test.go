package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"polymirror/internal/config"
)

func sampleOutcome(ts time.Time, status, size string) Outcome {
	o := NewOutcome()
	o.Timestamp = ts
	o.Market = "Will it rain?"
	o.OutcomeLabel = "Yes"
	o.Side = "BUY"
	o.SizeBase = decimal.RequireFromString(size)
	o.Price = decimal.RequireFromString("0.52")
	o.Status = status
	o.TokenID = "123"
	o.TxHash = "0xabc"
	o.BlockNumber = 42
	return o
}

func openMemory(t *testing.T) *SQLiteLedger {
	t.Helper()
	ledger, err := OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ledger.Close() })
	return ledger
}

func TestSQLiteAppendAndList(t *testing.T) {
	ledger := openMemory(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	first := sampleOutcome(base, StatusSuccess, "10")
	first.OrderID = "0xorder"
	second := sampleOutcome(base.Add(time.Minute), StatusFailed, "5")
	second.Reason = "order couldn't be fully filled"

	require.NoError(t, ledger.AppendOutcome(ctx, first))
	require.NoError(t, ledger.AppendOutcome(ctx, second))
	require.NoError(t, ledger.AppendOutcome(ctx, first), "duplicate ids are ignored")

	recent, err := ledger.ListRecentOutcomes(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, second.ID, recent[0].ID)
	assert.Equal(t, "order couldn't be fully filled", recent[0].Reason)
	assert.Equal(t, first.ID, recent[1].ID)
	assert.Equal(t, "0xorder", recent[1].OrderID)
	assert.True(t, recent[1].Price.Equal(first.Price))
	assert.Equal(t, uint64(42), recent[1].BlockNumber)
	assert.True(t, recent[1].Timestamp.Equal(base))

	window, err := ledger.ListOutcomesBetween(ctx, base, base.Add(30*time.Second))
	require.NoError(t, err)
	require.Len(t, window, 1)
	assert.Equal(t, first.ID, window[0].ID)
}

func TestSQLiteSummarize(t *testing.T) {
	ledger := openMemory(t)
	ctx := context.Background()
	now := time.Now().UTC()

	for _, o := range []Outcome{
		sampleOutcome(now, StatusSuccess, "10.5"),
		sampleOutcome(now, StatusSuccess, "4.5"),
		sampleOutcome(now, StatusFailed, "3"),
		sampleOutcome(now, StatusSkipped, "8"),
	} {
		require.NoError(t, ledger.AppendOutcome(ctx, o))
	}

	summary, err := ledger.Summarize(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), summary.Total)
	assert.Equal(t, int64(2), summary.Success)
	assert.Equal(t, int64(1), summary.Failed)
	assert.Equal(t, int64(1), summary.Skipped)
	assert.True(t, summary.Volume.Equal(decimal.NewFromInt(15)), summary.Volume.String())
	assert.Equal(t, "66.67", summary.SuccessRate().StringFixed(2))
}

func TestSummarySuccessRateWithoutAttempts(t *testing.T) {
	assert.True(t, Summary{Skipped: 3}.SuccessRate().IsZero())
}

func TestOpenLedgerSQLiteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trades.db")
	ledger, store, err := OpenLedger(context.Background(), config.LedgerConfig{Driver: "sqlite", SQLitePath: path}, config.DatabaseConfig{})
	require.NoError(t, err)
	assert.Nil(t, store)
	require.NoError(t, ledger.AppendOutcome(context.Background(), sampleOutcome(time.Now(), StatusSuccess, "1")))
	require.NoError(t, ledger.Close())

	_, err = os.Stat(path)
	require.NoError(t, err)

	_, _, err = OpenLedger(context.Background(), config.LedgerConfig{Driver: "mongo"}, config.DatabaseConfig{})
	require.Error(t, err)
}

func TestStoreNotConfigured(t *testing.T) {
	var store *Store
	require.ErrorIs(t, store.AppendOutcome(context.Background(), NewOutcome()), ErrNotConfigured)
	_, _, err := store.TryAdvisoryLock(context.Background(), 1)
	require.ErrorIs(t, err, ErrNotConfigured)
	require.NoError(t, store.Close())
}

func TestPostgresStoreRoundTrip(t *testing.T) {
	dsn := os.Getenv("POLYMIRROR_TEST_DSN")
	if dsn == "" {
		t.Skip("POLYMIRROR_TEST_DSN not set")
	}
	ctx := context.Background()
	pool, err := NewPool(ctx, config.DatabaseConfig{DSN: dsn})
	require.NoError(t, err)
	store := NewStore(pool)
	defer store.Close()
	require.NoError(t, store.EnsureSchema(ctx))

	o := sampleOutcome(time.Now().UTC().Truncate(time.Microsecond), StatusSuccess, "12.34")
	require.NoError(t, store.AppendOutcome(ctx, o))
	recent, err := store.ListRecentOutcomes(ctx, 50)
	require.NoError(t, err)

	found := false
	for _, r := range recent {
		if r.ID == o.ID {
			found = true
			assert.True(t, r.SizeBase.Equal(o.SizeBase))
		}
	}
	assert.True(t, found)

	unlock, ok, err := store.TryAdvisoryLock(ctx, 0x706d6972)
	require.NoError(t, err)
	require.True(t, ok)
	unlock()
}
