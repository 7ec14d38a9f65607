package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/stepbackfx/stepback/config"
	"github.com/stepbackfx/stepback/engine"
	"github.com/stepbackfx/stepback/feed"
	"github.com/stepbackfx/stepback/internal/metrics"
	"github.com/stepbackfx/stepback/journal"
	"github.com/stepbackfx/stepback/ladder"
	"github.com/stepbackfx/stepback/market"
	"github.com/stepbackfx/stepback/sim"
	"github.com/stepbackfx/stepback/strategies"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the engine in demo, backtest or live mode",
	Long: `Run the step-back engine.

Modes:
  demo      scripted quote sequence, in-memory journal, no files needed
  backtest  quotes from CSV tick files or Dukascopy bi5 archives
  live      quotes from a websocket stream, simulated execution

Examples:
  stepback run --mode demo
  stepback run --mode backtest -f stepback.yaml --start-date 2026-01-05 --end-date 2026-01-09
  stepback run --mode live -f stepback.yaml`,
	RunE: runRun,
}

var (
	runConfigPath     string
	runMode           string
	runInitialBalance string
	runGrowthFactor   string
	runPredicate      string
	runStartDate      string
	runEndDate        string
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runConfigPath, "config", "f", "", "path to config file (YAML or JSON)")
	runCmd.Flags().StringVar(&runMode, "mode", "demo", "demo, backtest or live")
	runCmd.Flags().StringVar(&runInitialBalance, "initial-balance", "", "override account.initial_balance")
	runCmd.Flags().StringVar(&runGrowthFactor, "growth-factor", "", "override account.growth_factor")
	runCmd.Flags().StringVar(&runPredicate, "predicate", "", "override trading.predicate")
	runCmd.Flags().StringVar(&runStartDate, "start-date", "", "backtest start, YYYY-MM-DD (UTC)")
	runCmd.Flags().StringVar(&runEndDate, "end-date", "", "backtest end (exclusive), YYYY-MM-DD (UTC)")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg := config.Default()
	if runConfigPath != "" {
		loaded, err := config.LoadFromFile(runConfigPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if err := applyOverrides(cfg); err != nil {
		return err
	}

	log := newLogger(cfg.LogLevel)
	meta, err := cfg.InstrumentMeta()
	if err != nil {
		return err
	}
	delay, err := cfg.TradeDelay()
	if err != nil {
		return err
	}

	opts := []ladder.Option{ladder.WithRounding(cfg.Account.RoundingPlaces)}
	if cfg.Account.BaseLossPolicy == "mirror_step_back" {
		opts = append(opts, ladder.WithBaseLossPolicy(ladder.MirrorStepBack))
	}
	lad, err := ladder.New(cfg.Account.InitialBalance.Decimal, cfg.Account.GrowthFactor.Decimal, opts...)
	if err != nil {
		return err
	}

	jrnl, err := buildJournal(cfg)
	if err != nil {
		return err
	}
	defer jrnl.Close()

	pred, err := strategies.ByName(cfg.Trading.Predicate)
	if err != nil {
		return err
	}

	var met *metrics.Set
	if cfg.Metrics.Addr != "" {
		met = metrics.New()
		mux := http.NewServeMux()
		mux.Handle("/metrics", met.Handler())
		srv := &http.Server{Addr: cfg.Metrics.Addr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.WithError(err).Error("metrics server failed")
			}
		}()
		defer srv.Close()
		log.WithField("addr", cfg.Metrics.Addr).Info("metrics listening")
	}

	gw := sim.NewGateway(0)
	eng, err := engine.New(engine.Config{
		Instrument:           cfg.Instrument.Name,
		Meta:                 meta,
		TradeDelay:           delay,
		MaxConsecutiveLosses: cfg.Trading.MaxConsecutiveLosses,
		FixedTakePips:        cfg.Trading.FixedTakePips.Decimal,
		FixedStopPips:        cfg.Trading.FixedStopPips.Decimal,
	}, engine.Deps{
		Ladder:    lad,
		Gateway:   gw,
		Predicate: pred,
		Journal:   jrnl,
		Log:       log,
		Metrics:   met,
	})
	if err != nil {
		return err
	}

	src, err := buildFeed(cfg, meta, log)
	if err != nil {
		return err
	}
	defer src.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- eng.Run(runCtx) }()

	if err := feed.Pump(ctx, src, eng); err != nil {
		cancel()
		<-done
		return err
	}

	// Feed exhausted (or interrupted): drain in-flight fills before
	// shutting the engine down. On interrupt the context is already done
	// and the drain returns immediately.
	if err := eng.Quiesce(ctx); err != nil && ctx.Err() == nil {
		log.WithError(err).Warn("drain before shutdown failed")
	}
	cancel()
	if err := <-done; err != nil {
		return err
	}

	printSummary(lad, eng.Stats())
	return nil
}

func applyOverrides(cfg *config.Config) error {
	if runInitialBalance != "" {
		d, err := decimal.NewFromString(runInitialBalance)
		if err != nil {
			return fmt.Errorf("bad --initial-balance %q: %w", runInitialBalance, err)
		}
		cfg.Account.InitialBalance = config.D(d)
	}
	if runGrowthFactor != "" {
		d, err := decimal.NewFromString(runGrowthFactor)
		if err != nil {
			return fmt.Errorf("bad --growth-factor %q: %w", runGrowthFactor, err)
		}
		cfg.Account.GrowthFactor = config.D(d)
	}
	if runPredicate != "" {
		cfg.Trading.Predicate = runPredicate
	}
	if runMode == "demo" {
		cfg.Journal.Type = "memory"
	}
	return cfg.Validate()
}

func newLogger(level string) *logrus.Logger {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if lvl, err := logrus.ParseLevel(level); err == nil {
		log.SetLevel(lvl)
	}
	return log
}

func buildJournal(cfg *config.Config) (journal.Journal, error) {
	switch cfg.Journal.Type {
	case "sqlite":
		return journal.NewSQLite(cfg.Journal.DBPath)
	case "memory":
		return journal.NewMemory(), nil
	default:
		return journal.NewNDJSON(cfg.Journal.Path)
	}
}

func buildFeed(cfg *config.Config, meta market.InstrumentMeta, log *logrus.Logger) (feed.Feed, error) {
	switch runMode {
	case "demo":
		return demoFeed(cfg.Instrument.Name), nil
	case "backtest":
		start, end, err := parseDates()
		if err != nil {
			return nil, err
		}
		switch cfg.Feed.Type {
		case "dukas":
			return feed.OpenDukas(cfg.Feed.Path, cfg.Instrument.Name, meta.PricePrecision, start, end)
		case "csv", "":
			if cfg.Feed.Path == "" {
				return nil, fmt.Errorf("backtest needs feed.path in the config")
			}
			return feed.OpenCSV(cfg.Feed.Path, cfg.Instrument.Name, start, end)
		default:
			return nil, fmt.Errorf("feed type %q is not a backtest source", cfg.Feed.Type)
		}
	case "live":
		if cfg.Feed.URL == "" {
			return nil, fmt.Errorf("live mode needs feed.url in the config")
		}
		return feed.OpenWS(cfg.Feed.URL, cfg.Instrument.Name, log), nil
	default:
		return nil, fmt.Errorf("unknown mode %q (demo, backtest or live)", runMode)
	}
}

func parseDates() (start, end time.Time, err error) {
	if runStartDate != "" {
		start, err = time.ParseInLocation("2006-01-02", runStartDate, time.UTC)
		if err != nil {
			return start, end, fmt.Errorf("bad --start-date %q: %w", runStartDate, err)
		}
	}
	if runEndDate != "" {
		end, err = time.ParseInLocation("2006-01-02", runEndDate, time.UTC)
		if err != nil {
			return start, end, fmt.Errorf("bad --end-date %q: %w", runEndDate, err)
		}
	}
	if !start.IsZero() && !end.IsZero() && !end.After(start) {
		return start, end, fmt.Errorf("--end-date must be after --start-date")
	}
	return start, end, nil
}

// demoFeed scripts three winning moves and one losing move so a default
// run shows the ladder climb 100 -> 130 -> 169 -> 219.70 and step back
// to 169. Prices are synthetic; each quote's consequences settle during
// the pacing gap.
func demoFeed(instrument string) feed.Feed {
	t0 := time.Now().UTC()
	mk := func(bid string, sec int) market.Quote {
		b, _ := decimal.NewFromString(bid)
		return market.Quote{
			Instrument: instrument,
			Bid:        b,
			Ask:        b.Add(decimal.New(1, -4)),
			Time:       t0.Add(time.Duration(sec) * time.Second),
		}
	}
	quotes := []market.Quote{
		mk("1.00000", 0),  // entry 1
		mk("1.32000", 2),  // take profit 1
		mk("1.32000", 4),  // entry 2
		mk("1.74000", 6),  // take profit 2
		mk("1.74000", 8),  // entry 3
		mk("2.29000", 10), // take profit 3
		mk("2.29000", 12), // entry 4
		mk("1.70000", 14), // stop loss 4, back one rung
		mk("1.70000", 16),
	}
	return feed.NewScript(quotes, 400*time.Millisecond)
}

func printSummary(lad *ladder.Ladder, s journal.Stats) {
	fmt.Println()
	fmt.Println("=== Summary ===")
	fmt.Printf("Trades:        %d (%d wins, %d losses, %.1f%% win rate)\n",
		s.TotalTrades, s.Wins, s.Losses, s.WinRate*100)
	fmt.Printf("Balance:       %s\n", lad.Balance())
	fmt.Printf("Step index:    %d (max %d)\n", lad.StepIndex(), s.MaxStep)
	fmt.Printf("Total return:  %s%%\n", s.TotalReturn.Mul(decimal.NewFromInt(100)).Round(2))
}
