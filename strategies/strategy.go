// Package strategies holds the pluggable entry predicate. The engine owns
// every risk and sizing decision; a predicate only answers "enter long,
// enter short, or skip" for the current quote.
package strategies

import (
	"fmt"
	"strings"
	"time"

	"github.com/stepbackfx/stepback/market"
)

// State is the read-only slice of engine runtime state a predicate may
// consult. Predicates may keep their own state derived from the quote
// stream, but must never block.
type State struct {
	OpenTrade         bool
	Paused            bool
	ConsecutiveLosses int
	LastExit          time.Time
	StepIndex         int
}

// Decision is the predicate's answer for one quote.
type Decision struct {
	Enter bool
	Side  market.Side
}

func Enter(side market.Side) Decision { return Decision{Enter: true, Side: side} }
func Skip() Decision                  { return Decision{} }

// Predicate decides whether to enter on a quote. It is invoked only when
// the engine's gates (single position, pause, delay) already permit entry.
type Predicate interface {
	Decide(q market.Quote, s State) Decision
}

var registry = make(map[string]func() Predicate)

// Register makes a predicate constructor available to ByName.
func Register(name string, ctor func() Predicate) {
	registry[strings.ToLower(name)] = ctor
}

// ByName builds a registered predicate.
func ByName(name string) (Predicate, error) {
	ctor, ok := registry[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("unknown predicate %q (supported: %s)", name, strings.Join(Names(), ", "))
	}
	return ctor(), nil
}

// Names lists the registered predicates.
func Names() []string {
	out := make([]string, 0, len(registry))
	for name := range registry {
		out = append(out, name)
	}
	return out
}

func init() {
	Register("always-long", func() Predicate { return FixedSide{Side: market.Long} })
	Register("always-short", func() Predicate { return FixedSide{Side: market.Short} })
	Register("never", func() Predicate { return Never{} })
}

// FixedSide always enters on the configured side. always-long is the
// demonstration default.
type FixedSide struct {
	Side market.Side
}

func (f FixedSide) Decide(q market.Quote, s State) Decision {
	return Enter(f.Side)
}

// Never skips every quote.
type Never struct{}

func (Never) Decide(q market.Quote, s State) Decision { return Skip() }
