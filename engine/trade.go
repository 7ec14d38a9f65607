package engine

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/stepbackfx/stepback/journal"
	"github.com/stepbackfx/stepback/market"
	"github.com/stepbackfx/stepback/risk"
)

// Outcome classifies a closed trade.
type Outcome string

const (
	OutcomeWin     Outcome = "win"
	OutcomeLoss    Outcome = "loss"
	OutcomeNeutral Outcome = "neutral_close"
)

// tradeState is the lifecycle of the one open trade:
// pendingEntry -> open -> pendingExit -> closed. A trade that never
// reaches open is discarded without touching the ladder.
type tradeState int

const (
	statePendingEntry tradeState = iota
	stateOpen
	statePendingExit
	stateClosed
)

func (s tradeState) String() string {
	switch s {
	case statePendingEntry:
		return "pending_entry"
	case stateOpen:
		return "open"
	case statePendingExit:
		return "pending_exit"
	case stateClosed:
		return "closed"
	}
	return "unknown"
}

// Trade is the engine's record of the one-and-only position, from entry
// decision to settlement.
type Trade struct {
	ID         string
	Instrument string
	Side       market.Side
	Units      decimal.Decimal // positive for both sides
	Stake      decimal.Decimal

	EntryPrice   decimal.Decimal
	ExitPrice    decimal.Decimal
	TakeProfit   decimal.Decimal
	StopLoss     decimal.Decimal
	LossFraction decimal.Decimal

	OpenedAt time.Time
	ClosedAt time.Time
	Outcome  Outcome

	state tradeState

	// Client order ids for the three legs.
	entryID string
	stopID  string
	limitID string
}

// classify maps an exit price onto win/loss by comparing it with the
// protective levels within eps (one tick). Exits beyond both bounds are
// classified by P&L sign; the caller warns about those.
func (t *Trade) classify(exit, eps decimal.Decimal) (Outcome, bool) {
	if t.Side == market.Long {
		if exit.GreaterThanOrEqual(t.TakeProfit.Sub(eps)) {
			return OutcomeWin, false
		}
		if exit.LessThanOrEqual(t.StopLoss.Add(eps)) {
			return OutcomeLoss, false
		}
	} else {
		if exit.LessThanOrEqual(t.TakeProfit.Add(eps)) {
			return OutcomeWin, false
		}
		if exit.GreaterThanOrEqual(t.StopLoss.Sub(eps)) {
			return OutcomeLoss, false
		}
	}

	pl := risk.RealizedPL(t.Side, t.Units, t.EntryPrice, exit)
	switch {
	case pl.IsPositive():
		return OutcomeWin, true
	case pl.IsNegative():
		return OutcomeLoss, true
	default:
		return OutcomeNeutral, true
	}
}

// RealizedPL is the trade's signed cash P&L in quote currency.
func (t *Trade) RealizedPL() decimal.Decimal {
	if t.ExitPrice.IsZero() {
		return decimal.Zero
	}
	return risk.RealizedPL(t.Side, t.Units, t.EntryPrice, t.ExitPrice)
}

func (t *Trade) journalRecord() *journal.TradeRecord {
	return &journal.TradeRecord{
		ID:           t.ID,
		Instrument:   t.Instrument,
		Side:         t.Side.String(),
		Units:        t.Units,
		Stake:        t.Stake,
		EntryPrice:   t.EntryPrice,
		ExitPrice:    t.ExitPrice,
		TakeProfit:   t.TakeProfit,
		StopLoss:     t.StopLoss,
		LossFraction: t.LossFraction,
		RealizedPL:   t.RealizedPL(),
		OpenedAt:     t.OpenedAt,
		ClosedAt:     t.ClosedAt,
		Outcome:      string(t.Outcome),
	}
}
