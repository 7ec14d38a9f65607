// Package engine is the trading core: a single-consumer event loop that
// gates entries, submits orders, reconciles fills into ladder transitions
// and journals every step. The ladder, runtime state and order lifecycle
// are owned by the loop goroutine alone; collaborators only enqueue
// events, so trading state needs no locks.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/stepbackfx/stepback/broker"
	"github.com/stepbackfx/stepback/internal/id"
	"github.com/stepbackfx/stepback/internal/metrics"
	"github.com/stepbackfx/stepback/journal"
	"github.com/stepbackfx/stepback/ladder"
	"github.com/stepbackfx/stepback/market"
	"github.com/stepbackfx/stepback/risk"
	"github.com/stepbackfx/stepback/strategies"
)

// Event is anything the engine consumes from its channel.
type Event interface{ engineEvent() }

// QuoteEvent carries a best bid/ask observation.
type QuoteEvent struct{ Quote market.Quote }

// FillEvent carries an asynchronous execution report.
type FillEvent struct{ Fill broker.Fill }

// RejectEvent carries a permanent gateway refusal.
type RejectEvent struct{ Reject broker.Reject }

// TimerEvent unblocks the delay gate between quotes.
type TimerEvent struct{ Time time.Time }

// ResumeEvent is the operator reset that lifts a pause or halt.
type ResumeEvent struct{}

// settleEvent is the marker Quiesce round-trips through the loop.
type settleEvent struct{ resp chan settleState }

type settleState struct {
	dispatched uint64
	queued     int
	backlog    int
}

func (QuoteEvent) engineEvent()  {}
func (FillEvent) engineEvent()   {}
func (RejectEvent) engineEvent() {}
func (TimerEvent) engineEvent()  {}
func (ResumeEvent) engineEvent() {}
func (settleEvent) engineEvent() {}

// maxTimerSkew bounds how far the latest quote's timestamp may sit from
// the ticker's wall time before timer ticks stop driving entries. The
// delay gate runs on quote-stream time; replayed historical quotes fall
// far outside this window, so only fresh quotes move a backtest.
const maxTimerSkew = time.Minute

// Config is the engine's own tuning; collaborator handles go in Deps.
type Config struct {
	Instrument string
	Meta       market.InstrumentMeta

	TradeDelay           time.Duration // min wall-time between close and next entry
	MaxConsecutiveLosses int           // pause threshold

	// Fixed-pip variant: when both positive, protective distances are
	// flat pips instead of the geometric fractions.
	FixedTakePips decimal.Decimal
	FixedStopPips decimal.Decimal

	GatewayTimeout time.Duration // per gateway call, default 5s
	MaxRetries     uint64        // transient-error retries, default 4
	EventBuffer    int           // event channel capacity, default 256
	TimerInterval  time.Duration // delay-gate tick, default 1s
}

// Deps are the explicit collaborator handles the engine needs. Metrics is
// optional; everything else is required.
type Deps struct {
	Ladder    *ladder.Ladder
	Gateway   broker.Gateway
	Clock     broker.Clock
	Predicate strategies.Predicate
	Journal   journal.Journal
	Log       *logrus.Logger
	Metrics   *metrics.Set
}

// Engine is the orchestrator. Construct with New, drive with Run, feed
// with Enqueue.
type Engine struct {
	cfg  Config
	lad  *ladder.Ladder
	gw   broker.Gateway
	clk  broker.Clock
	pred strategies.Predicate
	jrnl journal.Journal
	log  *logrus.Entry
	met  *metrics.Set

	events chan Event

	open       *Trade
	lastExit   time.Time
	paused     bool
	halted     bool // gateway state ambiguous or position unprotected
	lastQuote  market.Quote
	haveQuote  bool
	dispatched uint64

	totalTrades int
	wins        int
	losses      int
}

func New(cfg Config, deps Deps) (*Engine, error) {
	if cfg.Instrument == "" {
		return nil, errors.New("engine: instrument is required")
	}
	if deps.Ladder == nil || deps.Gateway == nil || deps.Journal == nil || deps.Predicate == nil {
		return nil, errors.New("engine: ladder, gateway, journal and predicate are required")
	}
	if deps.Clock == nil {
		deps.Clock = broker.RealClock{}
	}
	if deps.Log == nil {
		deps.Log = logrus.New()
	}
	if cfg.GatewayTimeout <= 0 {
		cfg.GatewayTimeout = 5 * time.Second
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 4
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = 256
	}
	if cfg.TimerInterval <= 0 {
		cfg.TimerInterval = time.Second
	}
	if cfg.TradeDelay < 0 {
		return nil, fmt.Errorf("engine: trade delay must be >= 0, got %s", cfg.TradeDelay)
	}

	return &Engine{
		cfg:    cfg,
		lad:    deps.Ladder,
		gw:     deps.Gateway,
		clk:    deps.Clock,
		pred:   deps.Predicate,
		jrnl:   deps.Journal,
		log:    deps.Log.WithField("instrument", cfg.Instrument),
		met:    deps.Metrics,
		events: make(chan Event, cfg.EventBuffer),
	}, nil
}

// Enqueue adds an event to the engine's channel, blocking until accepted
// or ctx is cancelled.
func (e *Engine) Enqueue(ctx context.Context, ev Event) error {
	select {
	case e.events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Resume lifts a loss-streak pause or a gateway halt and clears the loss
// streak. Safe to call from any goroutine.
func (e *Engine) Resume(ctx context.Context) error {
	return e.Enqueue(ctx, ResumeEvent{})
}

// Quiesce blocks until the event stream has drained: nothing queued,
// nothing pending at the gateway, and no event besides the marker
// dispatched between two consecutive round trips. Batch runs call this
// after the feed is exhausted so in-flight fills settle before Run is
// cancelled.
func (e *Engine) Quiesce(ctx context.Context) error {
	var prev uint64
	for first := true; ; first = false {
		resp := make(chan settleState, 1)
		if err := e.Enqueue(ctx, settleEvent{resp: resp}); err != nil {
			return err
		}
		var st settleState
		select {
		case st = <-resp:
		case <-ctx.Done():
			return ctx.Err()
		}
		if !first && st.dispatched == prev+1 && st.queued == 0 && st.backlog == 0 {
			return nil
		}
		prev = st.dispatched
		// Yield so the gateway pump can forward anything in flight.
		time.Sleep(time.Millisecond)
	}
}

// Stats is the cumulative statistics snapshot.
func (e *Engine) Stats() journal.Stats {
	winRate := 0.0
	if e.totalTrades > 0 {
		winRate = float64(e.wins) / float64(e.totalTrades)
	}
	return journal.Stats{
		TotalTrades: e.totalTrades,
		Wins:        e.wins,
		Losses:      e.losses,
		WinRate:     winRate,
		MaxStep:     e.lad.MaxStep(),
		TotalReturn: e.lad.TotalReturn(),
	}
}

// Run consumes events until ctx is cancelled, then shuts down cleanly:
// resting protective orders are cancelled, an open trade is reported as
// neutral_close and the ladder is not moved. The returned error is nil on
// clean shutdown and non-nil only for unrecoverable engine errors.
func (e *Engine) Run(ctx context.Context) error {
	e.record(journal.KindEngineStart, e.clk.Now(), nil, "")
	e.log.WithFields(logrus.Fields{
		"balance":       e.lad.Balance(),
		"growth_factor": e.lad.Growth(),
		"trade_delay":   e.cfg.TradeDelay,
	}).Info("engine started")
	e.publishGauges()

	// Gateway fills/rejects are pumped into the single event channel so
	// the loop below sees one totally ordered stream.
	go func() {
		for {
			var ev broker.Event
			var ok bool
			select {
			case <-ctx.Done():
				return
			case ev, ok = <-e.gw.Events():
				if !ok {
					return
				}
			}
			var wrapped Event
			switch v := ev.(type) {
			case broker.Fill:
				wrapped = FillEvent{Fill: v}
			case broker.Reject:
				wrapped = RejectEvent{Reject: v}
			default:
				continue
			}
			if err := e.Enqueue(ctx, wrapped); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(e.cfg.TimerInterval)
	defer ticker.Stop()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case t := <-ticker.C:
				_ = e.Enqueue(ctx, TimerEvent{Time: t})
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			e.shutdown()
			return nil
		case ev := <-e.events:
			if err := e.dispatch(ctx, ev); err != nil {
				e.shutdown()
				return err
			}
		}
	}
}

func (e *Engine) dispatch(ctx context.Context, ev Event) error {
	e.dispatched++
	switch v := ev.(type) {
	case QuoteEvent:
		return e.onQuote(ctx, v.Quote)
	case FillEvent:
		return e.onFill(ctx, v.Fill)
	case RejectEvent:
		e.onReject(v.Reject)
		return nil
	case TimerEvent:
		if !e.haveQuote {
			return nil
		}
		// The ticker carries wall time while lastExit carries quote-stream
		// time. When the stream is a historical replay the two domains are
		// unrelated and the delay gate must not trust the ticker.
		if skew := v.Time.Sub(e.lastQuote.Time); skew < -maxTimerSkew || skew > maxTimerSkew {
			return nil
		}
		return e.maybeEnter(ctx, e.lastQuote, v.Time)
	case ResumeEvent:
		e.onResume()
		return nil
	case settleEvent:
		st := settleState{dispatched: e.dispatched, queued: len(e.events)}
		if b, ok := e.gw.(interface{ Backlog() int }); ok {
			st.backlog = b.Backlog()
		}
		v.resp <- st
		return nil
	default:
		e.log.Warnf("ignoring unknown event %T", ev)
		return nil
	}
}

func (e *Engine) onQuote(ctx context.Context, q market.Quote) error {
	if q.Instrument != e.cfg.Instrument {
		return nil
	}
	e.lastQuote = q
	e.haveQuote = true

	// A simulated gateway consumes the quote stream through the engine so
	// protective triggers fire in event order.
	if qs, ok := e.gw.(broker.QuoteSink); ok {
		qs.UpdateQuote(q)
	}

	return e.maybeEnter(ctx, q, q.Time)
}

// maybeEnter runs the entry gates and, when all pass, sizes and submits a
// new position.
func (e *Engine) maybeEnter(ctx context.Context, q market.Quote, now time.Time) error {
	if e.open != nil || e.paused || e.halted {
		return nil
	}
	if !e.lastExit.IsZero() && now.Sub(e.lastExit) < e.cfg.TradeDelay {
		return nil
	}

	dec := e.decide(q)
	if !dec.Enter {
		return nil
	}

	entry := q.Touch(dec.Side)
	plan, err := risk.Size(risk.Inputs{
		Stake:          e.lad.Stake(),
		Entry:          entry,
		Side:           dec.Side,
		Meta:           e.cfg.Meta,
		ProfitFraction: e.lad.ProfitFraction(),
		LossFraction:   e.lad.LossFraction(),
		TargetProfit:   e.lad.ProfitTarget(),
		PlannedLoss:    e.lad.LossForStepBack(),
		FixedTakePips:  e.cfg.FixedTakePips,
		FixedStopPips:  e.cfg.FixedStopPips,
	})
	if err != nil {
		reason := "sizing"
		if errors.Is(err, risk.ErrBelowMinimum) {
			reason = "below_minimum"
		}
		e.log.WithError(err).Warn("entry refused by sizer")
		e.record(journal.KindEntryRejected, now, nil, err.Error())
		if e.met != nil {
			e.met.EntryRejected(reason)
		}
		return nil
	}
	if !plan.Residual.IsZero() {
		e.log.WithFields(logrus.Fields{
			"planned_loss":   plan.PlannedLoss,
			"effective_loss": plan.EffectiveLoss,
			"residual":       plan.Residual,
		}).Info("quantity snapping left residual risk")
	}

	t := &Trade{
		ID:           id.New(),
		Instrument:   e.cfg.Instrument,
		Side:         dec.Side,
		Units:        plan.Units,
		Stake:        e.lad.Stake(),
		EntryPrice:   plan.Entry,
		TakeProfit:   plan.TakeProfit,
		StopLoss:     plan.StopLoss,
		LossFraction: plan.LossFraction,
		state:        statePendingEntry,
		entryID:      id.New(),
		stopID:       id.New(),
		limitID:      id.New(),
	}
	e.open = t

	e.log.WithFields(logrus.Fields{
		"trade":         t.ID,
		"side":          t.Side,
		"stake":         t.Stake,
		"units":         t.Units,
		"entry":         plan.Entry,
		"take_profit":   plan.TakeProfit,
		"stop_loss":     plan.StopLoss,
		"loss_fraction": plan.LossFraction.Round(6),
	}).Info("entering position")
	e.record(journal.KindEntry, now, t.journalRecord(), "")

	err = e.withRetry(ctx, func(cctx context.Context) error {
		_, err := e.gw.SubmitMarket(cctx, broker.MarketOrder{
			ClientID:   t.entryID,
			Instrument: t.Instrument,
			Side:       t.Side,
			Units:      t.Units,
		})
		return err
	})
	if err != nil {
		e.open = nil
		if retriesExhausted(err) {
			// The order may or may not exist at the gateway. Cancel
			// best-effort and refuse entries until an operator resolves it.
			e.cancelQuiet(t.entryID)
			e.halt(now, fmt.Sprintf("market order %s state unknown: %v", t.entryID, err))
			return nil
		}
		e.log.WithError(err).Warn("market order rejected")
		e.record(journal.KindEntryRejected, now, t.journalRecord(), err.Error())
		if e.met != nil {
			e.met.EntryRejected("gateway")
		}
	}
	return nil
}

func (e *Engine) onFill(ctx context.Context, f broker.Fill) error {
	t := e.open
	if t == nil {
		e.log.WithField("client_id", f.ClientID).Warn("fill for no open trade, ignoring")
		return nil
	}

	switch f.ClientID {
	case t.entryID:
		return e.onEntryFill(ctx, t, f)
	case t.stopID, t.limitID:
		return e.onExitFill(t, f)
	default:
		e.log.WithField("client_id", f.ClientID).Warn("fill for unknown order, ignoring")
		return nil
	}
}

func (e *Engine) onEntryFill(ctx context.Context, t *Trade, f broker.Fill) error {
	if t.state != statePendingEntry {
		e.log.WithField("client_id", f.ClientID).Warn("duplicate entry fill, ignoring")
		return nil
	}
	t.state = stateOpen
	t.OpenedAt = f.Time
	t.Units = f.Units

	// The market order can fill away from the quoted touch; protective
	// levels are recomputed from the actual entry so the step-back amount
	// stays exact.
	if !f.Price.Equal(t.EntryPrice) {
		t.EntryPrice = f.Price
		e.reprotect(t)
	}

	e.record(journal.KindFill, f.Time, t.journalRecord(), "entry")
	if e.met != nil {
		e.met.EntryOpened()
	}

	err := e.withRetry(ctx, func(cctx context.Context) error {
		_, err := e.gw.SubmitStop(cctx, broker.StopOrder{
			ClientID:   t.stopID,
			Instrument: t.Instrument,
			Side:       t.Side.Opposite(),
			Units:      t.Units,
			Trigger:    t.StopLoss,
		})
		return err
	})
	if err == nil {
		err = e.withRetry(ctx, func(cctx context.Context) error {
			_, err := e.gw.SubmitLimit(cctx, broker.LimitOrder{
				ClientID:   t.limitID,
				Instrument: t.Instrument,
				Side:       t.Side.Opposite(),
				Units:      t.Units,
				Price:      t.TakeProfit,
			})
			return err
		})
	}
	if err != nil {
		// An open position without working protection is not tradable
		// state; stop entering and wait for the operator.
		e.halt(f.Time, fmt.Sprintf("protective orders for trade %s failed: %v", t.ID, err))
	}
	return nil
}

func (e *Engine) onExitFill(t *Trade, f broker.Fill) error {
	if t.state != stateOpen {
		e.log.WithFields(logrus.Fields{
			"client_id": f.ClientID,
			"state":     t.state.String(),
		}).Warn("exit fill in wrong state, ignoring")
		return nil
	}
	t.state = statePendingExit
	t.ExitPrice = f.Price
	t.ClosedAt = f.Time

	sibling := t.limitID
	if f.ClientID == t.limitID {
		sibling = t.stopID
	}
	e.cancelQuiet(sibling)

	outcome, slipped := t.classify(f.Price, e.cfg.Meta.TickSize)
	if slipped {
		e.log.WithFields(logrus.Fields{
			"trade": t.ID,
			"exit":  f.Price,
			"stop":  t.StopLoss,
			"take":  t.TakeProfit,
		}).Warn("exit beyond both protective bounds, classifying by P&L sign")
	}

	return e.settle(t, outcome, f.Time)
}

// settle finalizes a closed trade: ladder transition, stats, journal.
func (e *Engine) settle(t *Trade, outcome Outcome, ts time.Time) error {
	t.Outcome = outcome
	t.state = stateClosed
	e.open = nil
	e.lastExit = ts
	e.totalTrades++

	switch outcome {
	case OutcomeWin:
		e.wins++
		e.lad.RecordProfit()
		e.record(journal.KindTradeClosed, ts, t.journalRecord(), "")
		e.record(journal.KindLadderProfit, ts, nil, "")
		e.log.WithFields(logrus.Fields{
			"trade":   t.ID,
			"pl":      t.RealizedPL().Round(2),
			"balance": e.lad.Balance(),
			"step":    e.lad.StepIndex(),
		}).Info("winning trade, ladder advanced")
	case OutcomeLoss:
		e.losses++
		e.lad.RecordLoss()
		e.record(journal.KindTradeClosed, ts, t.journalRecord(), "")
		e.record(journal.KindLadderLoss, ts, nil, "")
		e.log.WithFields(logrus.Fields{
			"trade":              t.ID,
			"pl":                 t.RealizedPL().Round(2),
			"balance":            e.lad.Balance(),
			"consecutive_losses": e.lad.ConsecutiveLosses(),
		}).Info("losing trade, stepped back")
	default:
		// Neutral closes leave the ladder alone.
		e.record(journal.KindTradeClosed, ts, t.journalRecord(), "")
		e.log.WithField("trade", t.ID).Info("trade closed neutral")
	}

	if e.met != nil {
		e.met.TradeClosed(string(outcome))
	}
	e.publishGauges()

	if e.cfg.MaxConsecutiveLosses > 0 && e.lad.ConsecutiveLosses() >= e.cfg.MaxConsecutiveLosses && !e.paused {
		e.paused = true
		e.record(journal.KindPaused, ts, nil,
			fmt.Sprintf("%d consecutive losses", e.lad.ConsecutiveLosses()))
		e.log.WithField("consecutive_losses", e.lad.ConsecutiveLosses()).
			Warn("loss streak limit reached, pausing entries")
		if e.met != nil {
			e.met.SetPaused(true)
		}
	}
	return nil
}

func (e *Engine) onReject(rj broker.Reject) {
	t := e.open
	if t == nil {
		e.log.WithField("client_id", rj.ClientID).Warn("reject for no open trade, ignoring")
		return
	}
	switch rj.ClientID {
	case t.entryID:
		if t.state != statePendingEntry {
			e.log.WithField("client_id", rj.ClientID).Warn("late entry reject, ignoring")
			return
		}
		// Entry never happened: discard without touching the ladder.
		e.open = nil
		e.log.WithFields(logrus.Fields{
			"trade":  t.ID,
			"reason": rj.Reason,
		}).Warn("entry order rejected")
		e.record(journal.KindEntryRejected, rj.Time, t.journalRecord(), rj.Reason)
		if e.met != nil {
			e.met.EntryRejected("gateway")
		}
	case t.stopID, t.limitID:
		e.halt(rj.Time, fmt.Sprintf("protective order %s rejected: %s", rj.ClientID, rj.Reason))
	default:
		e.log.WithField("client_id", rj.ClientID).Warn("reject for unknown order, ignoring")
	}
}

func (e *Engine) onResume() {
	if !e.paused && !e.halted {
		return
	}
	e.paused = false
	e.halted = false
	e.lad.ResetLossStreak()
	e.record(journal.KindResumed, e.clk.Now(), nil, "")
	e.log.Info("engine resumed by operator")
	if e.met != nil {
		e.met.SetPaused(false)
	}
	e.publishGauges()
}

// shutdown cancels working protection and reports an open trade as a
// neutral close. The ladder is not moved.
func (e *Engine) shutdown() {
	if t := e.open; t != nil {
		switch t.state {
		case statePendingEntry:
			e.cancelQuiet(t.entryID)
			e.open = nil
			e.record(journal.KindEntryRejected, e.clk.Now(), t.journalRecord(), "shutdown before entry fill")
		case stateOpen:
			e.cancelQuiet(t.stopID)
			e.cancelQuiet(t.limitID)
			t.Outcome = OutcomeNeutral
			t.ClosedAt = e.clk.Now()
			if e.haveQuote {
				t.ExitPrice = e.lastQuote.Touch(t.Side.Opposite())
			}
			t.state = stateClosed
			e.open = nil
			e.totalTrades++
			e.record(journal.KindTradeClosed, t.ClosedAt, t.journalRecord(), "shutdown")
			if e.met != nil {
				e.met.TradeClosed(string(OutcomeNeutral))
			}
		}
	}

	stats := e.Stats()
	e.record(journal.KindEngineStop, e.clk.Now(), nil, "")
	e.log.WithFields(logrus.Fields{
		"total_trades": stats.TotalTrades,
		"wins":         stats.Wins,
		"losses":       stats.Losses,
		"win_rate":     fmt.Sprintf("%.1f%%", stats.WinRate*100),
		"max_step":     stats.MaxStep,
		"balance":      e.lad.Balance(),
		"total_return": stats.TotalReturn,
	}).Info("engine stopped")
}

// decide asks the predicate, treating a panic as Skip.
func (e *Engine) decide(q market.Quote) (dec strategies.Decision) {
	defer func() {
		if r := recover(); r != nil {
			e.log.WithField("panic", r).Warn("entry predicate failed, skipping")
			dec = strategies.Skip()
		}
	}()
	return e.pred.Decide(q, strategies.State{
		OpenTrade:         e.open != nil,
		Paused:            e.paused,
		ConsecutiveLosses: e.lad.ConsecutiveLosses(),
		LastExit:          e.lastExit,
		StepIndex:         e.lad.StepIndex(),
	})
}

// reprotect recomputes protective levels after the entry filled away
// from the quoted price. The quantity is already filled, so the levels
// offset the fill by amount-per-unit rather than refitting the
// fractions; refitting would scale the realized loss by fill/quoted.
// Fixed pip distances simply shift with the entry.
func (e *Engine) reprotect(t *Trade) {
	if !t.Units.IsPositive() {
		return
	}
	var stopDist, takeDist decimal.Decimal
	if e.cfg.FixedStopPips.IsPositive() && e.cfg.FixedTakePips.IsPositive() {
		stopDist = e.cfg.FixedStopPips.Mul(e.cfg.Meta.PipSize)
		takeDist = e.cfg.FixedTakePips.Mul(e.cfg.Meta.PipSize)
	} else {
		stopDist = e.lad.LossForStepBack().Div(t.Units)
		takeDist = e.lad.ProfitTarget().Div(t.Units)
	}
	if t.Side == market.Long {
		t.StopLoss = e.cfg.Meta.SnapAway(t.EntryPrice.Sub(stopDist), t.EntryPrice)
		t.TakeProfit = e.cfg.Meta.SnapAway(t.EntryPrice.Add(takeDist), t.EntryPrice)
	} else {
		t.StopLoss = e.cfg.Meta.SnapAway(t.EntryPrice.Add(stopDist), t.EntryPrice)
		t.TakeProfit = e.cfg.Meta.SnapAway(t.EntryPrice.Sub(takeDist), t.EntryPrice)
	}
}

// withRetry runs a gateway call with bounded exponential backoff on
// transient errors. Permanent errors return immediately.
func (e *Engine) withRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	b := retry.WithMaxRetries(e.cfg.MaxRetries, retry.NewExponential(250*time.Millisecond))
	return retry.Do(ctx, b, func(rctx context.Context) error {
		cctx, cancel := context.WithTimeout(rctx, e.cfg.GatewayTimeout)
		defer cancel()
		err := fn(cctx)
		if broker.IsTransient(err) || errors.Is(err, context.DeadlineExceeded) {
			return retry.RetryableError(err)
		}
		return err
	})
}

func retriesExhausted(err error) bool {
	return broker.IsTransient(err) || errors.Is(err, context.DeadlineExceeded)
}

func (e *Engine) cancelQuiet(clientID string) {
	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.GatewayTimeout)
	defer cancel()
	if _, err := e.gw.Cancel(ctx, clientID); err != nil && !errors.Is(err, broker.ErrUnknownOrder) {
		e.log.WithError(err).WithField("client_id", clientID).Warn("cancel failed")
	}
}

func (e *Engine) halt(ts time.Time, reason string) {
	if e.halted {
		return
	}
	e.halted = true
	e.record(journal.KindHalted, ts, nil, reason)
	e.log.WithField("reason", reason).Error("engine halted, refusing new entries until resume")
}

func (e *Engine) record(kind string, ts time.Time, t *journal.TradeRecord, note string) {
	if ts.IsZero() {
		ts = e.clk.Now()
	}
	rec := journal.Record{
		Kind: kind,
		TS:   ts,
		Ladder: journal.LadderSnapshot{
			History:        e.lad.History(),
			StepIndex:      e.lad.StepIndex(),
			CurrentBalance: e.lad.Balance(),
		},
		Trade: t,
		Stats: e.Stats(),
		Note:  note,
	}
	if err := e.jrnl.Record(rec); err != nil {
		e.log.WithError(err).Error("journal write failed")
	}
}

func (e *Engine) publishGauges() {
	if e.met == nil {
		return
	}
	e.met.SetBalance(e.lad.Balance().InexactFloat64())
	e.met.SetStepIndex(e.lad.StepIndex())
	e.met.SetConsecutiveLosses(e.lad.ConsecutiveLosses())
}
