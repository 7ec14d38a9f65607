// Package metrics exposes the engine's Prometheus instrumentation.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Set bundles the engine's metrics on a private registry so tests can
// create independent instances.
type Set struct {
	registry *prometheus.Registry

	trades       *prometheus.CounterVec
	entries      prometheus.Counter
	rejected     *prometheus.CounterVec
	balance      prometheus.Gauge
	stepIndex    prometheus.Gauge
	lossStreak   prometheus.Gauge
	pausedGauge  prometheus.Gauge
}

func New() *Set {
	s := &Set{
		registry: prometheus.NewRegistry(),
		trades: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stepback_trades_total",
				Help: "Closed trades by outcome (win|loss|neutral_close)",
			},
			[]string{"outcome"},
		),
		entries: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "stepback_entries_total",
				Help: "Positions opened",
			},
		),
		rejected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stepback_entries_rejected_total",
				Help: "Entry attempts refused, by reason",
			},
			[]string{"reason"},
		),
		balance: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "stepback_balance",
				Help: "Current ladder balance in account currency",
			},
		),
		stepIndex: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "stepback_step_index",
				Help: "Current ladder step index",
			},
		),
		lossStreak: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "stepback_consecutive_losses",
				Help: "Losses since the last win",
			},
		),
		pausedGauge: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "stepback_paused",
				Help: "1 while the loss-streak pause is active",
			},
		),
	}
	s.registry.MustRegister(s.trades, s.entries, s.rejected,
		s.balance, s.stepIndex, s.lossStreak, s.pausedGauge)
	return s
}

func (s *Set) TradeClosed(outcome string)   { s.trades.WithLabelValues(outcome).Inc() }
func (s *Set) EntryOpened()                 { s.entries.Inc() }
func (s *Set) EntryRejected(reason string)  { s.rejected.WithLabelValues(reason).Inc() }
func (s *Set) SetBalance(balance float64)   { s.balance.Set(balance) }
func (s *Set) SetStepIndex(step int)        { s.stepIndex.Set(float64(step)) }
func (s *Set) SetConsecutiveLosses(n int)   { s.lossStreak.Set(float64(n)) }

func (s *Set) SetPaused(paused bool) {
	if paused {
		s.pausedGauge.Set(1)
	} else {
		s.pausedGauge.Set(0)
	}
}

// Handler serves the set in Prometheus text exposition format.
func (s *Set) Handler() http.Handler {
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})
}
