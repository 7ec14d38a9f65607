// Package ladder implements the step-back balance ladder: a discrete
// sequence of permitted account balances where a win advances one rung
// (balance times the growth factor) and a loss returns to the previous rung.
package ladder

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// BaseLossPolicy selects how a loss is sized when the ladder sits on the
// base rung, where there is no previous rung to step back to. The ladder
// stays on the base rung either way.
type BaseLossPolicy int

const (
	// FixedFraction risks the full growth fraction (G-1) of the base rung,
	// the same absolute amount a win on the base rung would earn.
	FixedFraction BaseLossPolicy = iota

	// MirrorStepBack risks (G-1)/G of the base rung, the same fraction a
	// step-back from any upper rung works out to.
	MirrorStepBack
)

// Ladder is the balance state machine. It is pure: no I/O, no clock.
// All arithmetic is exact decimal; monetary rounding happens only in the
// accessors that expose amounts to sizing and reporting.
type Ladder struct {
	history  []decimal.Decimal // full precision, oldest first, never empty
	growth   decimal.Decimal   // > 1
	places   int32             // monetary rounding places
	baseLoss BaseLossPolicy

	consecutiveLosses int
	maxStep           int
}

// Option adjusts ladder construction.
type Option func(*Ladder)

// WithRounding sets the monetary rounding places (default 2).
func WithRounding(places int32) Option {
	return func(l *Ladder) { l.places = places }
}

// WithBaseLossPolicy sets the loss sizing used on the base rung.
func WithBaseLossPolicy(p BaseLossPolicy) Option {
	return func(l *Ladder) { l.baseLoss = p }
}

var one = decimal.NewFromInt(1)

// New builds a ladder with a single base rung.
func New(initial, growth decimal.Decimal, opts ...Option) (*Ladder, error) {
	if !initial.IsPositive() {
		return nil, fmt.Errorf("ladder: initial balance must be positive, got %s", initial)
	}
	if !growth.GreaterThan(one) {
		return nil, fmt.Errorf("ladder: growth factor must be > 1, got %s", growth)
	}
	l := &Ladder{
		history: []decimal.Decimal{initial},
		growth:  growth,
		places:  2,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Growth returns the growth factor G.
func (l *Ladder) Growth() decimal.Decimal { return l.growth }

// ProfitFraction returns G-1, the fraction a win must realize.
func (l *Ladder) ProfitFraction() decimal.Decimal { return l.growth.Sub(one) }

// Balance returns the current rung at monetary rounding.
func (l *Ladder) Balance() decimal.Decimal {
	return l.round(l.balance())
}

// Stake is the notional for the next trade: the current rung.
func (l *Ladder) Stake() decimal.Decimal { return l.Balance() }

// StepIndex is the number of wins beyond the base rung.
func (l *Ladder) StepIndex() int { return len(l.history) - 1 }

// MaxStep is the highest step index reached over the ladder's lifetime.
func (l *Ladder) MaxStep() int { return l.maxStep }

// ConsecutiveLosses is the number of losses since the last win.
func (l *Ladder) ConsecutiveLosses() int { return l.consecutiveLosses }

// History returns a copy of the rungs at monetary rounding, oldest first.
func (l *Ladder) History() []decimal.Decimal {
	out := make([]decimal.Decimal, len(l.history))
	for i, b := range l.history {
		out[i] = l.round(b)
	}
	return out
}

// ProfitTarget is the absolute amount a win from the current rung must
// realize: balance * (G-1).
func (l *Ladder) ProfitTarget() decimal.Decimal {
	return l.round(l.balance().Mul(l.ProfitFraction()))
}

// LossForStepBack is the absolute amount a loss must realize so that the
// balance lands exactly on the previous rung. On the base rung the amount
// is set by the base-loss policy.
func (l *Ladder) LossForStepBack() decimal.Decimal {
	return l.round(l.lossForStepBack())
}

// LossFraction is LossForStepBack divided by the current balance: the
// dynamic percentage that reverses one step. It is derived, never the
// closed form (G-1)/G, so it stays correct under rounding and policy.
func (l *Ladder) LossFraction() decimal.Decimal {
	return l.lossForStepBack().Div(l.balance())
}

// RecordProfit advances one rung and resets the loss streak.
func (l *Ladder) RecordProfit() {
	l.history = append(l.history, l.balance().Mul(l.growth))
	l.consecutiveLosses = 0
	if step := l.StepIndex(); step > l.maxStep {
		l.maxStep = step
	}
}

// RecordLoss steps back one rung, or holds on the base rung. The loss
// streak grows either way.
func (l *Ladder) RecordLoss() {
	if l.StepIndex() >= 1 {
		l.pop()
	}
	l.consecutiveLosses++
}

// ResetLossStreak clears the consecutive-loss counter. Used when an
// operator resumes a paused engine.
func (l *Ladder) ResetLossStreak() {
	l.consecutiveLosses = 0
}

// TotalReturn is (balance - base) / base at monetary rounding, as a
// fraction (0.69 means +69%).
func (l *Ladder) TotalReturn() decimal.Decimal {
	base := l.history[0]
	return l.balance().Sub(base).Div(base).Round(4)
}

func (l *Ladder) balance() decimal.Decimal {
	return l.history[len(l.history)-1]
}

func (l *Ladder) lossForStepBack() decimal.Decimal {
	if l.StepIndex() >= 1 {
		return l.balance().Sub(l.history[len(l.history)-2])
	}
	switch l.baseLoss {
	case MirrorStepBack:
		return l.balance().Mul(l.ProfitFraction()).Div(l.growth)
	default:
		return l.balance().Mul(l.ProfitFraction())
	}
}

func (l *Ladder) pop() {
	if len(l.history) <= 1 {
		// Callers guard on StepIndex; reaching this is ladder corruption.
		panic("ladder: pop below base rung")
	}
	l.history = l.history[:len(l.history)-1]
}

func (l *Ladder) round(d decimal.Decimal) decimal.Decimal {
	return d.Round(l.places)
}
