// Package feed supplies quote streams to the engine: CSV tick files and
// Dukascopy bi5 archives for backtests, a websocket client for live runs.
package feed

import (
	"context"
	"errors"
	"io"

	"github.com/stepbackfx/stepback/engine"
	"github.com/stepbackfx/stepback/market"
)

// Feed yields quotes in time order. Next returns io.EOF when the stream
// is exhausted; live feeds return io.EOF only after Close.
type Feed interface {
	Next(ctx context.Context) (market.Quote, error)
	Close() error
}

// Pump drains a feed into the engine's event channel. Returns nil when
// the feed is exhausted or ctx is cancelled.
func Pump(ctx context.Context, f Feed, e *engine.Engine) error {
	for {
		q, err := f.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		if err := e.Enqueue(ctx, engine.QuoteEvent{Quote: q}); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
	}
}
