// Package risk converts ladder state and a market price into an exact
// order plan: quantity, stop price and take-profit price such that a stop
// fill realizes the ladder's step-back amount.
package risk

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/stepbackfx/stepback/market"
)

// ErrBelowMinimum is returned when the computed quantity is under the
// venue's minimum trade size. The caller must not open the trade.
var ErrBelowMinimum = errors.New("risk: quantity below minimum trade size")

// Inputs describes one sizing request.
type Inputs struct {
	Stake decimal.Decimal // current ladder rung, account currency
	Entry decimal.Decimal // intended entry price (ask for long, bid for short)
	Side  market.Side
	Meta  market.InstrumentMeta

	ProfitFraction decimal.Decimal // G-1
	LossFraction   decimal.Decimal // dynamic step-back fraction L
	TargetProfit   decimal.Decimal // stake * (G-1), monetary-rounded
	PlannedLoss    decimal.Decimal // ladder LossForStepBack, monetary-rounded

	// Fixed-pip overrides. When both are positive the plan uses flat pip
	// distances instead of the geometric fractions (the fixed-distance
	// engine variant); the ladder still records win/loss transitions.
	FixedTakePips decimal.Decimal
	FixedStopPips decimal.Decimal
}

// Plan is the computed order set for one trade.
type Plan struct {
	Units      decimal.Decimal // always positive; direction carried by Side
	Side       market.Side
	Entry      decimal.Decimal
	StopLoss   decimal.Decimal
	TakeProfit decimal.Decimal

	LossFraction  decimal.Decimal
	TargetProfit  decimal.Decimal
	PlannedLoss   decimal.Decimal
	EffectiveLoss decimal.Decimal // realized loss after snapping, at the stop
	Residual      decimal.Decimal // PlannedLoss - EffectiveLoss
}

var one = decimal.NewFromInt(1)

// Size computes the order plan. Quantity is chosen so that a fill at the
// stop realizes PlannedLoss within one tick; prices are snapped to the
// instrument grid away from the entry so rounding never tightens risk.
func Size(in Inputs) (Plan, error) {
	if !in.Entry.IsPositive() {
		return Plan{}, fmt.Errorf("risk: entry price must be positive, got %s", in.Entry)
	}
	if !in.Stake.IsPositive() {
		return Plan{}, fmt.Errorf("risk: stake must be positive, got %s", in.Stake)
	}

	var stop, take decimal.Decimal
	fixed := in.FixedStopPips.IsPositive() && in.FixedTakePips.IsPositive()
	if fixed {
		stopDist := in.FixedStopPips.Mul(in.Meta.PipSize)
		takeDist := in.FixedTakePips.Mul(in.Meta.PipSize)
		if in.Side == market.Long {
			stop = in.Entry.Sub(stopDist)
			take = in.Entry.Add(takeDist)
		} else {
			stop = in.Entry.Add(stopDist)
			take = in.Entry.Sub(takeDist)
		}
	} else {
		if !in.LossFraction.IsPositive() || in.LossFraction.GreaterThanOrEqual(one) {
			return Plan{}, fmt.Errorf("risk: loss fraction must be in (0,1), got %s", in.LossFraction)
		}
		if !in.ProfitFraction.IsPositive() {
			return Plan{}, fmt.Errorf("risk: profit fraction must be positive, got %s", in.ProfitFraction)
		}
		if in.Side == market.Long {
			stop = in.Entry.Mul(one.Sub(in.LossFraction))
			take = in.Entry.Mul(one.Add(in.ProfitFraction))
		} else {
			stop = in.Entry.Mul(one.Add(in.LossFraction))
			take = in.Entry.Mul(one.Sub(in.ProfitFraction))
		}
	}

	stop = in.Meta.SnapAway(stop, in.Entry)
	take = in.Meta.SnapAway(take, in.Entry)

	// Quantity such that units * |entry - stop| == PlannedLoss. In the
	// geometric mode |entry - stop| = entry*L, so this is the full-stake
	// notional stake/entry before snapping.
	stopDist := in.Entry.Sub(stop).Abs()
	if !stopDist.IsPositive() {
		return Plan{}, fmt.Errorf("risk: zero stop distance (entry %s stop %s)", in.Entry, stop)
	}
	units := in.PlannedLoss.Div(stopDist)
	units = in.Meta.SnapQuantity(units)

	if units.LessThan(in.Meta.MinTradeSize) {
		return Plan{}, fmt.Errorf("%w: %s < %s for stake %s",
			ErrBelowMinimum, units, in.Meta.MinTradeSize, in.Stake)
	}

	effective := units.Mul(stopDist)

	return Plan{
		Units:         units,
		Side:          in.Side,
		Entry:         in.Entry,
		StopLoss:      stop,
		TakeProfit:    take,
		LossFraction:  in.LossFraction,
		TargetProfit:  in.TargetProfit,
		PlannedLoss:   in.PlannedLoss,
		EffectiveLoss: effective,
		Residual:      in.PlannedLoss.Sub(effective),
	}, nil
}

// RealizedPL is the signed cash P&L of a closed position in quote
// currency: units * (exit - entry) for longs, negated for shorts.
func RealizedPL(side market.Side, units, entry, exit decimal.Decimal) decimal.Decimal {
	pl := units.Mul(exit.Sub(entry))
	if side == market.Short {
		pl = pl.Neg()
	}
	return pl
}
