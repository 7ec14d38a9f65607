package market

import "github.com/shopspring/decimal"

// InstrumentMeta describes the price and size grid of a tradable instrument.
// All snapping of prices and quantities goes through this type so rounding
// decisions live in one place.
type InstrumentMeta struct {
	Name          string
	BaseCurrency  string
	QuoteCurrency string

	PipSize           decimal.Decimal // 0.0001 for EUR_USD
	TickSize          decimal.Decimal // smallest price increment, 0.00001
	PricePrecision    int32
	QuantityPrecision int32
	ContractSize      decimal.Decimal // units per whole lot
	MinTradeSize      decimal.Decimal // smallest order the venue accepts
	MarginRate        decimal.Decimal
}

var Instruments = map[string]InstrumentMeta{
	"EUR_USD": {
		Name:              "EUR_USD",
		BaseCurrency:      "EUR",
		QuoteCurrency:     "USD",
		PipSize:           decimal.New(1, -4),
		TickSize:          decimal.New(1, -5),
		PricePrecision:    5,
		QuantityPrecision: 0,
		ContractSize:      decimal.NewFromInt(100_000),
		MinTradeSize:      decimal.NewFromInt(1),
		MarginRate:        decimal.NewFromFloat(0.02),
	},
	"USD_JPY": {
		Name:              "USD_JPY",
		BaseCurrency:      "USD",
		QuoteCurrency:     "JPY",
		PipSize:           decimal.New(1, -2),
		TickSize:          decimal.New(1, -3),
		PricePrecision:    3,
		QuantityPrecision: 0,
		ContractSize:      decimal.NewFromInt(100_000),
		MinTradeSize:      decimal.NewFromInt(1),
		MarginRate:        decimal.NewFromFloat(0.02),
	},
}

// SnapDown rounds a price down to the nearest tick.
func (m InstrumentMeta) SnapDown(p decimal.Decimal) decimal.Decimal {
	return p.Div(m.TickSize).Floor().Mul(m.TickSize)
}

// SnapUp rounds a price up to the nearest tick.
func (m InstrumentMeta) SnapUp(p decimal.Decimal) decimal.Decimal {
	return p.Div(m.TickSize).Ceil().Mul(m.TickSize)
}

// SnapAway rounds a price to the tick grid in the direction away from ref,
// so a protective level is never tightened by rounding.
func (m InstrumentMeta) SnapAway(p, ref decimal.Decimal) decimal.Decimal {
	if p.LessThan(ref) {
		return m.SnapDown(p)
	}
	return m.SnapUp(p)
}

// SnapQuantity floors an order quantity to the instrument's size grid.
func (m InstrumentMeta) SnapQuantity(q decimal.Decimal) decimal.Decimal {
	return q.RoundFloor(m.QuantityPrecision)
}
