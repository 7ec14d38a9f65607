// Package journal is the append-only record of everything the engine
// does: ladder transitions, order submissions, fills, closed trades and
// running statistics. The record stream is the source of truth; the
// ladder can be rebuilt from it alone (see Replay).
package journal

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Record kinds.
const (
	KindEngineStart   = "engine_start"
	KindEntry         = "entry"
	KindEntryRejected = "entry_rejected"
	KindFill          = "fill"
	KindTradeClosed   = "trade_closed"
	KindLadderProfit  = "ladder_profit"
	KindLadderLoss    = "ladder_loss"
	KindPaused        = "paused"
	KindResumed       = "resumed"
	KindHalted        = "halted"
	KindEngineStop    = "engine_stop"
)

// LadderSnapshot is the ladder state embedded in every record.
type LadderSnapshot struct {
	History        []decimal.Decimal `json:"history"`
	StepIndex      int               `json:"step_index"`
	CurrentBalance decimal.Decimal   `json:"current_balance"`
}

// Stats is the cumulative statistics snapshot embedded in every record.
type Stats struct {
	TotalTrades int             `json:"total_trades"`
	Wins        int             `json:"wins"`
	Losses      int             `json:"losses"`
	WinRate     float64         `json:"win_rate"`
	MaxStep     int             `json:"max_step"`
	TotalReturn decimal.Decimal `json:"total_return"`
}

// TradeRecord is a trade as journalled. Immutable once the trade closes.
type TradeRecord struct {
	ID           string          `json:"id"`
	Instrument   string          `json:"instrument"`
	Side         string          `json:"side"`
	Units        decimal.Decimal `json:"units"`
	Stake        decimal.Decimal `json:"stake"`
	EntryPrice   decimal.Decimal `json:"entry_price"`
	ExitPrice    decimal.Decimal `json:"exit_price"`
	TakeProfit   decimal.Decimal `json:"take_profit"`
	StopLoss     decimal.Decimal `json:"stop_loss"`
	LossFraction decimal.Decimal `json:"loss_fraction"`
	RealizedPL   decimal.Decimal `json:"realized_pl"`
	OpenedAt     time.Time       `json:"opened_at"`
	ClosedAt     time.Time       `json:"closed_at"`
	Outcome      string          `json:"outcome"`
}

// Record is one journal line.
type Record struct {
	Kind   string         `json:"kind"`
	TS     time.Time      `json:"ts"`
	Ladder LadderSnapshot `json:"ladder"`
	Trade  *TradeRecord   `json:"trade,omitempty"`
	Stats  Stats          `json:"stats"`
	Note   string         `json:"note,omitempty"`
}

// Journal is the sink the engine writes to. Implementations must preserve
// record order; the engine writes from a single goroutine.
type Journal interface {
	Record(Record) error
	Close() error
}

// Memory keeps records in a slice. Used by tests and the demo mode.
type Memory struct {
	mu      sync.Mutex
	records []Record
}

func NewMemory() *Memory { return &Memory{} }

func (m *Memory) Record(r Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, r)
	return nil
}

func (m *Memory) Close() error { return nil }

// Records returns a copy of everything recorded so far.
func (m *Memory) Records() []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Record, len(m.records))
	copy(out, m.records)
	return out
}
