package market

import (
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Side is the direction of a trade or order.
type Side int

const (
	Long  Side = 1
	Short Side = -1
)

func (s Side) String() string {
	switch s {
	case Long:
		return "long"
	case Short:
		return "short"
	}
	return "unknown"
}

// Opposite returns the closing side for a position side.
func (s Side) Opposite() Side {
	return -s
}

// Quote is a single best bid/ask observation.
type Quote struct {
	Instrument string
	Bid        decimal.Decimal
	Ask        decimal.Decimal
	Time       time.Time
}

func (q Quote) Mid() decimal.Decimal {
	return q.Bid.Add(q.Ask).Div(two)
}

func (q Quote) Spread() decimal.Decimal {
	return q.Ask.Sub(q.Bid)
}

// Touch returns the price a marketable order of the given side would hit.
func (q Quote) Touch(side Side) decimal.Decimal {
	if side == Long {
		return q.Ask
	}
	return q.Bid
}

var two = decimal.NewFromInt(2)

var ErrNoQuote = errors.New("quote not found")

// QuoteStore keeps the latest quote per instrument.
type QuoteStore struct {
	mu     sync.RWMutex
	quotes map[string]Quote
}

func NewQuoteStore() *QuoteStore {
	return &QuoteStore{quotes: make(map[string]Quote)}
}

func (qs *QuoteStore) Set(q Quote) {
	qs.mu.Lock()
	defer qs.mu.Unlock()
	qs.quotes[q.Instrument] = q
}

func (qs *QuoteStore) Get(instrument string) (Quote, error) {
	qs.mu.RLock()
	defer qs.mu.RUnlock()
	q, ok := qs.quotes[instrument]
	if !ok {
		return Quote{}, ErrNoQuote
	}
	return q, nil
}
