package feed

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stepbackfx/stepback/market"
)

func writeTicks(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ticks.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestCSVReadsQuotes(t *testing.T) {
	t.Parallel()
	path := writeTicks(t, `time,bid,ask
2026-01-05T09:00:00Z,1.10440,1.10450
2026-01-05T09:00:01Z,1.10445,1.10455
`)

	f, err := OpenCSV(path, "EUR_USD", time.Time{}, time.Time{})
	require.NoError(t, err)
	defer f.Close()

	ctx := context.Background()
	q, err := f.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "EUR_USD", q.Instrument)
	assert.True(t, q.Bid.Equal(decimal.RequireFromString("1.10440")))
	assert.Equal(t, time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC), q.Time)

	q, err = f.Next(ctx)
	require.NoError(t, err)
	assert.True(t, q.Ask.Equal(decimal.RequireFromString("1.10455")))

	_, err = f.Next(ctx)
	assert.ErrorIs(t, err, io.EOF)
}

func TestCSVUnixMillisTimestamps(t *testing.T) {
	t.Parallel()
	path := writeTicks(t, "1767601200000,1.10440,1.10450\n")

	f, err := OpenCSV(path, "EUR_USD", time.Time{}, time.Time{})
	require.NoError(t, err)
	defer f.Close()

	q, err := f.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, time.UnixMilli(1767601200000).UTC(), q.Time)
}

func TestCSVDateFilter(t *testing.T) {
	t.Parallel()
	path := writeTicks(t, `2026-01-04T23:59:59Z,1.1,1.2
2026-01-05T09:00:00Z,1.3,1.4
2026-01-06T00:00:00Z,1.5,1.6
`)

	start := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 1, 6, 0, 0, 0, 0, time.UTC)
	f, err := OpenCSV(path, "EUR_USD", start, end)
	require.NoError(t, err)
	defer f.Close()

	ctx := context.Background()
	q, err := f.Next(ctx)
	require.NoError(t, err)
	assert.True(t, q.Bid.Equal(decimal.RequireFromString("1.3")))

	// The first row past end terminates the stream.
	_, err = f.Next(ctx)
	assert.ErrorIs(t, err, io.EOF)
}

func TestCSVBadRow(t *testing.T) {
	t.Parallel()
	path := writeTicks(t, "2026-01-05T09:00:00Z,not-a-price,1.10450\n")

	f, err := OpenCSV(path, "EUR_USD", time.Time{}, time.Time{})
	require.NoError(t, err)
	defer f.Close()

	_, err = f.Next(context.Background())
	assert.Error(t, err)
}

func TestScriptFeed(t *testing.T) {
	t.Parallel()

	q1 := market.Quote{Instrument: "EUR_USD", Bid: decimal.RequireFromString("1.1")}
	q2 := market.Quote{Instrument: "EUR_USD", Bid: decimal.RequireFromString("1.2")}
	s := NewScript([]market.Quote{q1, q2}, 0)

	ctx := context.Background()
	got, err := s.Next(ctx)
	require.NoError(t, err)
	assert.True(t, got.Bid.Equal(q1.Bid))
	got, err = s.Next(ctx)
	require.NoError(t, err)
	assert.True(t, got.Bid.Equal(q2.Bid))
	_, err = s.Next(ctx)
	assert.ErrorIs(t, err, io.EOF)

	empty := NewScript(nil, 0)
	_, err = empty.Next(ctx)
	assert.ErrorIs(t, err, io.EOF)
}
