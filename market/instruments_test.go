package market

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestSnapAway(t *testing.T) {
	t.Parallel()
	meta := Instruments["EUR_USD"]

	// Below the reference: snapping moves down, never toward it.
	got := meta.SnapAway(d("1.101234"), d("1.2"))
	assert.True(t, got.Equal(d("1.10123")), "got %s", got)

	// Above the reference: snapping moves up.
	got = meta.SnapAway(d("1.301231"), d("1.2"))
	assert.True(t, got.Equal(d("1.30124")), "got %s", got)

	// Already on the grid: unchanged either way.
	got = meta.SnapAway(d("1.10120"), d("1.2"))
	assert.True(t, got.Equal(d("1.10120")), "got %s", got)
	got = meta.SnapAway(d("1.30120"), d("1.2"))
	assert.True(t, got.Equal(d("1.30120")), "got %s", got)
}

func TestSnapQuantity(t *testing.T) {
	t.Parallel()
	meta := Instruments["EUR_USD"]

	assert.True(t, meta.SnapQuantity(d("153.999")).Equal(d("153")))
	assert.True(t, meta.SnapQuantity(d("153")).Equal(d("153")))
}

func TestQuoteTouch(t *testing.T) {
	t.Parallel()
	q := Quote{
		Instrument: "EUR_USD",
		Bid:        d("1.10440"),
		Ask:        d("1.10450"),
		Time:       time.Now(),
	}

	assert.True(t, q.Touch(Long).Equal(d("1.10450")))
	assert.True(t, q.Touch(Short).Equal(d("1.10440")))
	assert.True(t, q.Mid().Equal(d("1.10445")))
	assert.True(t, q.Spread().Equal(d("0.0001")))
}

func TestSideOpposite(t *testing.T) {
	t.Parallel()
	assert.Equal(t, Short, Long.Opposite())
	assert.Equal(t, Long, Short.Opposite())
	assert.Equal(t, "long", Long.String())
	assert.Equal(t, "short", Short.String())
}

func TestQuoteStore(t *testing.T) {
	t.Parallel()
	qs := NewQuoteStore()

	_, err := qs.Get("EUR_USD")
	require.ErrorIs(t, err, ErrNoQuote)

	q := Quote{Instrument: "EUR_USD", Bid: d("1.1"), Ask: d("1.2")}
	qs.Set(q)
	got, err := qs.Get("EUR_USD")
	require.NoError(t, err)
	assert.True(t, got.Bid.Equal(d("1.1")))
}
