package sim

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stepbackfx/stepback/broker"
	"github.com/stepbackfx/stepback/market"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func quote(bid, ask string, ts time.Time) market.Quote {
	return market.Quote{
		Instrument: "EUR_USD",
		Bid:        d(bid),
		Ask:        d(ask),
		Time:       ts,
	}
}

func nextFill(t *testing.T, g *Gateway) broker.Fill {
	t.Helper()
	select {
	case ev := <-g.Events():
		f, ok := ev.(broker.Fill)
		require.True(t, ok, "expected fill, got %T", ev)
		return f
	case <-time.After(time.Second):
		t.Fatal("no fill emitted")
		return broker.Fill{}
	}
}

func TestMarketOrderFillsAtTouch(t *testing.T) {
	t.Parallel()
	g := NewGateway(8)
	ts := time.Now()
	g.UpdateQuote(quote("1.10440", "1.10450", ts))

	_, err := g.SubmitMarket(context.Background(), broker.MarketOrder{
		ClientID:   "m1",
		Instrument: "EUR_USD",
		Side:       market.Long,
		Units:      d("100"),
	})
	require.NoError(t, err)

	f := nextFill(t, g)
	assert.Equal(t, "m1", f.ClientID)
	assert.True(t, f.Price.Equal(d("1.10450")), "price %s", f.Price)
	assert.Equal(t, ts, f.Time)
}

func TestMarketOrderWithoutQuoteIsTransient(t *testing.T) {
	t.Parallel()
	g := NewGateway(8)

	_, err := g.SubmitMarket(context.Background(), broker.MarketOrder{
		ClientID:   "m1",
		Instrument: "EUR_USD",
		Side:       market.Long,
		Units:      d("100"),
	})
	require.Error(t, err)
	assert.True(t, broker.IsTransient(err))
}

func TestStopTriggersThroughLevel(t *testing.T) {
	t.Parallel()
	g := NewGateway(8)

	_, err := g.SubmitStop(context.Background(), broker.StopOrder{
		ClientID:   "s1",
		Instrument: "EUR_USD",
		Side:       market.Short, // closing a long
		Units:      d("100"),
		Trigger:    d("1.10000"),
	})
	require.NoError(t, err)
	require.Equal(t, 1, g.RestingCount())

	// Above the trigger nothing happens.
	g.UpdateQuote(quote("1.10500", "1.10510", time.Now()))
	require.Equal(t, 1, g.RestingCount())

	// Gap through the trigger fills at the touch, not the trigger.
	g.UpdateQuote(quote("1.09800", "1.09810", time.Now()))
	f := nextFill(t, g)
	assert.Equal(t, "s1", f.ClientID)
	assert.True(t, f.Price.Equal(d("1.09800")), "price %s", f.Price)
	assert.Equal(t, 0, g.RestingCount())
}

func TestLimitTriggersAtPriceOrBetter(t *testing.T) {
	t.Parallel()
	g := NewGateway(8)

	_, err := g.SubmitLimit(context.Background(), broker.LimitOrder{
		ClientID:   "l1",
		Instrument: "EUR_USD",
		Side:       market.Short, // take profit on a long
		Units:      d("100"),
		Price:      d("1.20000"),
	})
	require.NoError(t, err)

	g.UpdateQuote(quote("1.19990", "1.20000", time.Now()))
	require.Equal(t, 1, g.RestingCount())

	g.UpdateQuote(quote("1.20010", "1.20020", time.Now()))
	f := nextFill(t, g)
	assert.Equal(t, "l1", f.ClientID)
	assert.True(t, f.Price.Equal(d("1.20010")), "price %s", f.Price)
}

func TestBuySideTriggers(t *testing.T) {
	t.Parallel()
	g := NewGateway(8)
	ctx := context.Background()

	// Closing a short: buy stop above, buy limit below, both against the ask.
	_, err := g.SubmitStop(ctx, broker.StopOrder{
		ClientID: "s1", Instrument: "EUR_USD", Side: market.Long,
		Units: d("100"), Trigger: d("1.21000"),
	})
	require.NoError(t, err)
	_, err = g.SubmitLimit(ctx, broker.LimitOrder{
		ClientID: "l1", Instrument: "EUR_USD", Side: market.Long,
		Units: d("100"), Price: d("1.19000"),
	})
	require.NoError(t, err)

	g.UpdateQuote(quote("1.20990", "1.21000", time.Now()))
	f := nextFill(t, g)
	assert.Equal(t, "s1", f.ClientID)

	g.UpdateQuote(quote("1.18980", "1.18990", time.Now()))
	f = nextFill(t, g)
	assert.Equal(t, "l1", f.ClientID)
}

func TestCancel(t *testing.T) {
	t.Parallel()
	g := NewGateway(8)
	ctx := context.Background()

	_, err := g.SubmitStop(ctx, broker.StopOrder{
		ClientID: "s1", Instrument: "EUR_USD", Side: market.Short,
		Units: d("100"), Trigger: d("1.10000"),
	})
	require.NoError(t, err)

	_, err = g.Cancel(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 0, g.RestingCount())

	// Cancelled orders never trigger.
	g.UpdateQuote(quote("1.05000", "1.05010", time.Now()))
	select {
	case ev := <-g.Events():
		t.Fatalf("unexpected event %v", ev)
	case <-time.After(50 * time.Millisecond):
	}

	_, err = g.Cancel(ctx, "nope")
	assert.ErrorIs(t, err, broker.ErrUnknownOrder)
}

func TestCloseStopsEventStream(t *testing.T) {
	t.Parallel()
	g := NewGateway(8)
	g.Close()

	_, ok := <-g.Events()
	assert.False(t, ok)

	_, err := g.SubmitMarket(context.Background(), broker.MarketOrder{
		ClientID: "m1", Instrument: "EUR_USD", Side: market.Long, Units: d("1"),
	})
	assert.Error(t, err)
}
