// Package sim provides an in-process order gateway driven by quote
// updates. Market orders fill at the touch of the latest quote; resting
// stop and limit orders trigger as quotes trade through their levels.
// Fills are emitted asynchronously on the Events channel, so the engine
// sees the same interface a live gateway would present.
package sim

import (
	"context"
	"fmt"
	"sync"

	"github.com/stepbackfx/stepback/broker"
	"github.com/stepbackfx/stepback/market"
)

// Gateway simulates order execution against the latest quote.
type Gateway struct {
	mu     sync.Mutex
	quotes *market.QuoteStore
	stops  map[string]broker.StopOrder
	limits map[string]broker.LimitOrder
	events chan broker.Event
	closed bool
}

// NewGateway creates a simulated gateway. buffer sizes the event channel;
// 0 picks a sensible default.
func NewGateway(buffer int) *Gateway {
	if buffer <= 0 {
		buffer = 128
	}
	return &Gateway{
		quotes: market.NewQuoteStore(),
		stops:  make(map[string]broker.StopOrder),
		limits: make(map[string]broker.LimitOrder),
		events: make(chan broker.Event, buffer),
	}
}

func (g *Gateway) Events() <-chan broker.Event { return g.events }

// Close stops the event stream. No further orders may be submitted.
func (g *Gateway) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.closed {
		g.closed = true
		close(g.events)
	}
}

// SubmitMarket fills immediately at the touch of the latest quote.
func (g *Gateway) SubmitMarket(ctx context.Context, o broker.MarketOrder) (broker.Ack, error) {
	if err := ctx.Err(); err != nil {
		return broker.Ack{}, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return broker.Ack{}, fmt.Errorf("sim: gateway closed")
	}

	q, err := g.quotes.Get(o.Instrument)
	if err != nil {
		// No quote yet is a recoverable condition: the next tick fixes it.
		return broker.Ack{}, broker.Transient(fmt.Errorf("sim: no quote for %s", o.Instrument))
	}
	if !o.Units.IsPositive() {
		return broker.Ack{}, fmt.Errorf("sim: units must be positive, got %s", o.Units)
	}

	g.emit(broker.Fill{
		ClientID: o.ClientID,
		Price:    q.Touch(o.Side),
		Units:    o.Units,
		Time:     q.Time,
	})
	return broker.Ack{ClientID: o.ClientID, Time: q.Time}, nil
}

// SubmitStop rests a stop order until a quote trades through its trigger.
func (g *Gateway) SubmitStop(ctx context.Context, o broker.StopOrder) (broker.Ack, error) {
	if err := ctx.Err(); err != nil {
		return broker.Ack{}, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return broker.Ack{}, fmt.Errorf("sim: gateway closed")
	}
	if !o.Trigger.IsPositive() {
		return broker.Ack{}, fmt.Errorf("sim: stop trigger must be positive, got %s", o.Trigger)
	}
	g.stops[o.ClientID] = o
	return broker.Ack{ClientID: o.ClientID}, nil
}

// SubmitLimit rests a limit order until a quote reaches its price.
func (g *Gateway) SubmitLimit(ctx context.Context, o broker.LimitOrder) (broker.Ack, error) {
	if err := ctx.Err(); err != nil {
		return broker.Ack{}, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return broker.Ack{}, fmt.Errorf("sim: gateway closed")
	}
	if !o.Price.IsPositive() {
		return broker.Ack{}, fmt.Errorf("sim: limit price must be positive, got %s", o.Price)
	}
	g.limits[o.ClientID] = o
	return broker.Ack{ClientID: o.ClientID}, nil
}

// Cancel removes a resting order.
func (g *Gateway) Cancel(ctx context.Context, clientID string) (broker.Ack, error) {
	if err := ctx.Err(); err != nil {
		return broker.Ack{}, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.stops[clientID]; ok {
		delete(g.stops, clientID)
		return broker.Ack{ClientID: clientID}, nil
	}
	if _, ok := g.limits[clientID]; ok {
		delete(g.limits, clientID)
		return broker.Ack{ClientID: clientID}, nil
	}
	return broker.Ack{}, fmt.Errorf("sim: cancel %s: %w", clientID, broker.ErrUnknownOrder)
}

// UpdateQuote stores the latest quote and triggers any resting orders it
// trades through. Triggered orders fill at the touch, not the trigger, so
// gap slippage through a level is modelled.
func (g *Gateway) UpdateQuote(q market.Quote) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return
	}
	g.quotes.Set(q)

	for id, o := range g.stops {
		if o.Instrument != q.Instrument {
			continue
		}
		touch := q.Touch(o.Side)
		hit := false
		if o.Side == market.Short {
			hit = touch.LessThanOrEqual(o.Trigger)
		} else {
			hit = touch.GreaterThanOrEqual(o.Trigger)
		}
		if hit {
			delete(g.stops, id)
			g.emit(broker.Fill{ClientID: id, Price: touch, Units: o.Units, Time: q.Time})
		}
	}

	for id, o := range g.limits {
		if o.Instrument != q.Instrument {
			continue
		}
		touch := q.Touch(o.Side)
		hit := false
		if o.Side == market.Short {
			hit = touch.GreaterThanOrEqual(o.Price)
		} else {
			hit = touch.LessThanOrEqual(o.Price)
		}
		if hit {
			delete(g.limits, id)
			g.emit(broker.Fill{ClientID: id, Price: touch, Units: o.Units, Time: q.Time})
		}
	}
}

// Backlog reports how many emitted events have not been consumed yet.
func (g *Gateway) Backlog() int { return len(g.events) }

// RestingCount reports how many protective orders are currently resting.
func (g *Gateway) RestingCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.stops) + len(g.limits)
}

func (g *Gateway) emit(ev broker.Event) {
	g.events <- ev
}
