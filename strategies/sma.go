package strategies

import (
	"github.com/shopspring/decimal"

	"github.com/stepbackfx/stepback/market"
)

// SMAMomentum enters in the direction of the mid price relative to a
// streaming simple moving average: long above, short below. It skips
// until the window is full.
type SMAMomentum struct {
	period int
	window []decimal.Decimal
	sum    decimal.Decimal
}

// NewSMAMomentum builds the predicate over a period-quote window.
func NewSMAMomentum(period int) *SMAMomentum {
	if period < 1 {
		period = 1
	}
	return &SMAMomentum{
		period: period,
		window: make([]decimal.Decimal, 0, period),
	}
}

func (m *SMAMomentum) update(mid decimal.Decimal) {
	m.window = append(m.window, mid)
	m.sum = m.sum.Add(mid)
	if len(m.window) > m.period {
		m.sum = m.sum.Sub(m.window[0])
		m.window = m.window[1:]
	}
}

// Ready reports whether the window is full.
func (m *SMAMomentum) Ready() bool { return len(m.window) >= m.period }

// Value is the current average, zero until Ready.
func (m *SMAMomentum) Value() decimal.Decimal {
	if !m.Ready() {
		return decimal.Zero
	}
	return m.sum.Div(decimal.NewFromInt(int64(len(m.window))))
}

func (m *SMAMomentum) Decide(q market.Quote, s State) Decision {
	mid := q.Mid()
	m.update(mid)
	if !m.Ready() {
		return Skip()
	}
	avg := m.Value()
	switch {
	case mid.GreaterThan(avg):
		return Enter(market.Long)
	case mid.LessThan(avg):
		return Enter(market.Short)
	default:
		return Skip()
	}
}

func init() {
	Register("sma-momentum", func() Predicate { return NewSMAMomentum(20) })
}
