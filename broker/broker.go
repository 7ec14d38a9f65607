// Package broker defines the order gateway and clock collaborators the
// trading engine consumes. Implementations live elsewhere (sim, live
// adapters); the engine depends only on these interfaces.
package broker

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/stepbackfx/stepback/market"
)

// MarketOrder is an immediate order at the touch.
type MarketOrder struct {
	ClientID   string
	Instrument string
	Side       market.Side
	Units      decimal.Decimal
}

// StopOrder rests until the market trades through its trigger.
type StopOrder struct {
	ClientID   string
	Instrument string
	Side       market.Side
	Units      decimal.Decimal
	Trigger    decimal.Decimal
}

// LimitOrder rests until the market reaches its price or better.
type LimitOrder struct {
	ClientID   string
	Instrument string
	Side       market.Side
	Units      decimal.Decimal
	Price      decimal.Decimal
}

// Ack confirms a gateway accepted a request.
type Ack struct {
	ClientID string
	Time     time.Time
}

// Event is an asynchronous gateway notification: Fill or Reject.
type Event interface{ event() }

// Fill reports a (possibly partial) execution of an order.
type Fill struct {
	ClientID string
	Price    decimal.Decimal
	Units    decimal.Decimal
	Time     time.Time
}

// Reject reports a permanent refusal of an order.
type Reject struct {
	ClientID string
	Reason   string
	Time     time.Time
}

func (Fill) event()   {}
func (Reject) event() {}

// Gateway submits orders and emits fills asynchronously. Submit calls are
// synchronous up to acknowledgement; executions arrive on Events.
type Gateway interface {
	SubmitMarket(ctx context.Context, o MarketOrder) (Ack, error)
	SubmitStop(ctx context.Context, o StopOrder) (Ack, error)
	SubmitLimit(ctx context.Context, o LimitOrder) (Ack, error)
	Cancel(ctx context.Context, clientID string) (Ack, error)
	Events() <-chan Event
}

// QuoteSink is implemented by gateways that are driven by the engine's
// quote stream (the simulated gateway). Live gateways ignore quotes.
type QuoteSink interface {
	UpdateQuote(q market.Quote)
}

// Clock is a monotonic time source.
type Clock interface {
	Now() time.Time
}

// RealClock reads the system clock.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

var (
	ErrTimeout      = errors.New("broker: request timed out")
	ErrUnknownOrder = errors.New("broker: unknown client order id")
)

// TransientError marks a failure worth retrying: timeout, network blip,
// rate limit. Anything else from a gateway is permanent.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return "transient: " + e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// Transient wraps err as retryable. Returns nil for a nil err.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// IsTransient reports whether err is retryable.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te) || errors.Is(err, ErrTimeout)
}
