package feed

import (
	"context"
	"encoding/binary"
	"io"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ulikunitz/xz/lzma"
)

type rawTick struct {
	ms       uint32
	ask, bid uint32
	askVol   float32
	bidVol   float32
}

func writeBI5(t *testing.T, path string, ticks []rawTick) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	f, err := os.Create(path)
	require.NoError(t, err)
	w, err := lzma.NewWriter(f)
	require.NoError(t, err)
	buf := make([]byte, bi5RecordSize)
	for _, tk := range ticks {
		binary.BigEndian.PutUint32(buf[0:4], tk.ms)
		binary.BigEndian.PutUint32(buf[4:8], tk.ask)
		binary.BigEndian.PutUint32(buf[8:12], tk.bid)
		binary.BigEndian.PutUint32(buf[12:16], math.Float32bits(tk.askVol))
		binary.BigEndian.PutUint32(buf[16:20], math.Float32bits(tk.bidVol))
		_, err = w.Write(buf)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	require.NoError(t, f.Close())
}

func TestDukasReadsHourFiles(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	hour := time.Date(2026, 1, 5, 13, 0, 0, 0, time.UTC)
	// Zero-based month in the layout: January is 00.
	path := filepath.Join(dir, "EURUSD", "2026", "00", "05", "13h_ticks.bi5")
	writeBI5(t, path, []rawTick{
		{ms: 0, ask: 110450, bid: 110440, askVol: 1.5, bidVol: 1.2},
		{ms: 1250, ask: 110460, bid: 110450, askVol: 0.8, bidVol: 1.1},
	})

	f, err := OpenDukas(dir, "EUR_USD", 5, hour, hour.Add(time.Hour))
	require.NoError(t, err)
	defer f.Close()

	ctx := context.Background()
	q, err := f.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "EUR_USD", q.Instrument)
	assert.True(t, q.Ask.Equal(decimal.RequireFromString("1.10450")), "ask %s", q.Ask)
	assert.True(t, q.Bid.Equal(decimal.RequireFromString("1.10440")), "bid %s", q.Bid)
	assert.Equal(t, hour, q.Time)

	q, err = f.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, hour.Add(1250*time.Millisecond), q.Time)

	_, err = f.Next(ctx)
	assert.ErrorIs(t, err, io.EOF)
}

func TestDukasSkipsMissingHours(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	h0 := time.Date(2026, 1, 5, 13, 0, 0, 0, time.UTC)
	h2 := h0.Add(2 * time.Hour)
	writeBI5(t, filepath.Join(dir, "EURUSD", "2026", "00", "05", "13h_ticks.bi5"),
		[]rawTick{{ms: 0, ask: 110450, bid: 110440}})
	writeBI5(t, filepath.Join(dir, "EURUSD", "2026", "00", "05", "15h_ticks.bi5"),
		[]rawTick{{ms: 0, ask: 110470, bid: 110460}})

	f, err := OpenDukas(dir, "EUR_USD", 5, h0, h0.Add(3*time.Hour))
	require.NoError(t, err)
	defer f.Close()

	ctx := context.Background()
	q, err := f.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, h0, q.Time)

	q, err = f.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, h2, q.Time)

	_, err = f.Next(ctx)
	assert.ErrorIs(t, err, io.EOF)
}

func TestDukasNoFiles(t *testing.T) {
	t.Parallel()
	start := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	_, err := OpenDukas(t.TempDir(), "EUR_USD", 5, start, start.Add(time.Hour))
	assert.Error(t, err)
}

func TestDukasSymbol(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "EURUSD", dukasSymbol("EUR_USD"))
	assert.Equal(t, "USDJPY", dukasSymbol("USD/JPY"))
}
