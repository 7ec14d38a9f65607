package feed

import (
	"context"
	"io"
	"time"

	"github.com/stepbackfx/stepback/market"
)

// Script replays a fixed quote sequence, optionally paced in real time.
// The demo mode and tests use it.
type Script struct {
	quotes []market.Quote
	pace   time.Duration
	idx    int
}

// NewScript builds a feed over quotes. A positive pace sleeps between
// quotes so each one's consequences settle before the next arrives.
func NewScript(quotes []market.Quote, pace time.Duration) *Script {
	return &Script{quotes: quotes, pace: pace}
}

func (s *Script) Next(ctx context.Context) (market.Quote, error) {
	if s.idx >= len(s.quotes) {
		return market.Quote{}, io.EOF
	}
	if s.pace > 0 && s.idx > 0 {
		select {
		case <-time.After(s.pace):
		case <-ctx.Done():
			return market.Quote{}, ctx.Err()
		}
	}
	q := s.quotes[s.idx]
	s.idx++
	return q, nil
}

func (s *Script) Close() error {
	s.idx = len(s.quotes)
	return nil
}
