package journal

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

var ts = time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)

func sampleRecord(kind string, history []string, trade *TradeRecord) Record {
	h := make([]decimal.Decimal, len(history))
	for i, s := range history {
		h[i] = d(s)
	}
	return Record{
		Kind: kind,
		TS:   ts,
		Ladder: LadderSnapshot{
			History:        h,
			StepIndex:      len(h) - 1,
			CurrentBalance: h[len(h)-1],
		},
		Trade: trade,
		Stats: Stats{TotalTrades: 1, Wins: 1, WinRate: 1, TotalReturn: d("0.3")},
	}
}

func sampleTrade() *TradeRecord {
	return &TradeRecord{
		ID:           "01HTRADE",
		Instrument:   "EUR_USD",
		Side:         "long",
		Units:        d("130"),
		Stake:        d("100"),
		EntryPrice:   d("1.00010"),
		ExitPrice:    d("1.30013"),
		TakeProfit:   d("1.30013"),
		StopLoss:     d("0.76931"),
		LossFraction: d("0.3"),
		RealizedPL:   d("39.0039"),
		OpenedAt:     ts,
		ClosedAt:     ts.Add(time.Minute),
		Outcome:      "win",
	}
}

func TestMemoryPreservesOrder(t *testing.T) {
	t.Parallel()
	m := NewMemory()

	require.NoError(t, m.Record(sampleRecord(KindEngineStart, []string{"100"}, nil)))
	require.NoError(t, m.Record(sampleRecord(KindLadderProfit, []string{"100", "130"}, nil)))

	records := m.Records()
	require.Len(t, records, 2)
	assert.Equal(t, KindEngineStart, records[0].Kind)
	assert.Equal(t, KindLadderProfit, records[1].Kind)
}

func TestNDJSONRoundTrip(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "journal.ndjson")

	j, err := NewNDJSON(path)
	require.NoError(t, err)
	require.NoError(t, j.Record(sampleRecord(KindEngineStart, []string{"100"}, nil)))
	require.NoError(t, j.Record(sampleRecord(KindTradeClosed, []string{"100"}, sampleTrade())))
	require.NoError(t, j.Close())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := bytes.Split(bytes.TrimSpace(raw), []byte("\n"))
	require.Len(t, lines, 2)

	// Decimals must serialize as plain numbers, not float artifacts.
	assert.Contains(t, string(lines[1]), `"loss_fraction":"0.3"`)
	assert.Contains(t, string(lines[1]), `"outcome":"win"`)
}

func TestNDJSONAppends(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "journal.ndjson")

	j, err := NewNDJSON(path)
	require.NoError(t, err)
	require.NoError(t, j.Record(sampleRecord(KindEngineStart, []string{"100"}, nil)))
	require.NoError(t, j.Close())

	j, err = NewNDJSON(path)
	require.NoError(t, err)
	require.NoError(t, j.Record(sampleRecord(KindEngineStop, []string{"100"}, nil)))
	require.NoError(t, j.Close())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Len(t, bytes.Split(bytes.TrimSpace(raw), []byte("\n")), 2)
}

func TestReplayRebuildsLadder(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "journal.ndjson")

	j, err := NewNDJSON(path)
	require.NoError(t, err)
	require.NoError(t, j.Record(sampleRecord(KindEngineStart, []string{"100"}, nil)))
	require.NoError(t, j.Record(sampleRecord(KindLadderProfit, []string{"100", "130"}, nil)))
	require.NoError(t, j.Record(sampleRecord(KindLadderProfit, []string{"100", "130", "169"}, nil)))
	require.NoError(t, j.Record(sampleRecord(KindLadderLoss, []string{"100", "130"}, nil)))
	require.NoError(t, j.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	l, err := Replay(f, d("1.30"))
	require.NoError(t, err)
	assert.True(t, l.Balance().Equal(d("130")), "balance %s", l.Balance())
	assert.Equal(t, 1, l.StepIndex())
}

func TestReplayDetectsCorruption(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	write := func(r Record) {
		b, err := json.Marshal(r)
		require.NoError(t, err)
		buf.Write(b)
		buf.WriteByte('\n')
	}
	write(sampleRecord(KindEngineStart, []string{"100"}, nil))
	// Journalled balance disagrees with the transition.
	write(sampleRecord(KindLadderProfit, []string{"100", "200"}, nil))

	_, err := Replay(&buf, d("1.30"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rebuilt balance")
}

func TestReplayEmptyJournal(t *testing.T) {
	t.Parallel()
	_, err := Replay(bytes.NewReader(nil), d("1.30"))
	assert.Error(t, err)
}

func TestSQLiteRecordAndQuery(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "journal.db")

	j, err := NewSQLite(path)
	require.NoError(t, err)
	defer j.Close()

	require.NoError(t, j.Record(sampleRecord(KindEngineStart, []string{"100"}, nil)))
	require.NoError(t, j.Record(sampleRecord(KindTradeClosed, []string{"100"}, sampleTrade())))

	trades, err := j.TradesClosedBetween(ts.Add(-time.Hour), ts.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, "01HTRADE", trades[0].ID)
	assert.Equal(t, "win", trades[0].Outcome)

	trades, err = j.TradesClosedBetween(ts.Add(time.Hour), ts.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, trades)
}
