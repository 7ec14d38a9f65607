// Package config loads and validates the runtime configuration from YAML
// or JSON files, with sane defaults for everything but the account.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/stepbackfx/stepback/market"
)

// Dec is a decimal config value. yaml.v3 does not consult
// encoding.TextUnmarshaler, so the YAML hook is spelled out here; JSON
// decoding is inherited from the embedded decimal.
type Dec struct{ decimal.Decimal }

func D(d decimal.Decimal) Dec { return Dec{Decimal: d} }

func (d *Dec) UnmarshalYAML(value *yaml.Node) error {
	if value.Value == "" {
		d.Decimal = decimal.Decimal{}
		return nil
	}
	v, err := decimal.NewFromString(value.Value)
	if err != nil {
		return fmt.Errorf("config: bad decimal %q: %w", value.Value, err)
	}
	d.Decimal = v
	return nil
}

func (d Dec) MarshalYAML() (interface{}, error) {
	return d.Decimal.String(), nil
}

// Config is the complete runtime configuration.
type Config struct {
	Account    AccountConfig    `json:"account" yaml:"account"`
	Trading    TradingConfig    `json:"trading" yaml:"trading"`
	Instrument InstrumentConfig `json:"instrument" yaml:"instrument"`
	Journal    JournalConfig    `json:"journal" yaml:"journal"`
	Feed       FeedConfig       `json:"feed" yaml:"feed"`
	Metrics    MetricsConfig    `json:"metrics,omitempty" yaml:"metrics,omitempty"`
	LogLevel   string           `json:"log_level,omitempty" yaml:"log_level,omitempty"`
}

// AccountConfig seeds the balance ladder.
type AccountConfig struct {
	InitialBalance Dec   `json:"initial_balance" yaml:"initial_balance"`
	GrowthFactor   Dec   `json:"growth_factor" yaml:"growth_factor"`
	RoundingPlaces int32 `json:"rounding_places,omitempty" yaml:"rounding_places,omitempty"`

	// BaseLossPolicy sizes the loss taken on the base rung:
	// "fixed_fraction" (default) or "mirror_step_back".
	BaseLossPolicy string `json:"base_loss_policy,omitempty" yaml:"base_loss_policy,omitempty"`
}

// TradingConfig gates entries and selects the predicate.
type TradingConfig struct {
	Predicate            string `json:"predicate,omitempty" yaml:"predicate,omitempty"`
	TradeDelay           string `json:"trade_delay,omitempty" yaml:"trade_delay,omitempty"`
	MaxConsecutiveLosses int    `json:"max_consecutive_losses,omitempty" yaml:"max_consecutive_losses,omitempty"`

	// Fixed-pip variant. When both are set the protective distances are
	// flat pips instead of the geometric fractions.
	FixedTakePips Dec `json:"fixed_take_pips,omitempty" yaml:"fixed_take_pips,omitempty"`
	FixedStopPips Dec `json:"fixed_stop_pips,omitempty" yaml:"fixed_stop_pips,omitempty"`
}

// InstrumentConfig names the traded instrument. Metadata overrides are
// optional; unset fields fall back to the built-in instrument table.
type InstrumentConfig struct {
	Name              string `json:"name" yaml:"name"`
	PipSize           Dec    `json:"pip_size,omitempty" yaml:"pip_size,omitempty"`
	TickSize          Dec    `json:"tick_size,omitempty" yaml:"tick_size,omitempty"`
	PricePrecision    int32  `json:"price_precision,omitempty" yaml:"price_precision,omitempty"`
	QuantityPrecision int32  `json:"quantity_precision,omitempty" yaml:"quantity_precision,omitempty"`
	MinTradeSize      Dec    `json:"min_trade_size,omitempty" yaml:"min_trade_size,omitempty"`
}

// JournalConfig selects the journal backend.
type JournalConfig struct {
	Type   string `json:"type,omitempty" yaml:"type,omitempty"` // "ndjson", "sqlite" or "memory"
	Path   string `json:"path,omitempty" yaml:"path,omitempty"`
	DBPath string `json:"db_path,omitempty" yaml:"db_path,omitempty"`
}

// FeedConfig selects the quote source.
type FeedConfig struct {
	Type string `json:"type,omitempty" yaml:"type,omitempty"` // "csv", "dukas" or "ws"
	Path string `json:"path,omitempty" yaml:"path,omitempty"` // csv file or dukas directory
	URL  string `json:"url,omitempty" yaml:"url,omitempty"`   // ws endpoint
}

// MetricsConfig enables the Prometheus endpoint when Addr is set.
type MetricsConfig struct {
	Addr string `json:"addr,omitempty" yaml:"addr,omitempty"`
}

// Default returns a configuration that runs the demo out of the box.
func Default() *Config {
	return &Config{
		Account: AccountConfig{
			InitialBalance: D(decimal.NewFromInt(100)),
			GrowthFactor:   D(decimal.RequireFromString("1.30")),
			RoundingPlaces: 2,
			BaseLossPolicy: "fixed_fraction",
		},
		Trading: TradingConfig{
			Predicate:            "always-long",
			TradeDelay:           "1s",
			MaxConsecutiveLosses: 5,
		},
		Instrument: InstrumentConfig{Name: "EUR_USD"},
		Journal:    JournalConfig{Type: "ndjson", Path: "stepback.ndjson"},
		Feed:       FeedConfig{Type: "csv"},
		LogLevel:   "info",
	}
}

// LoadFromFile reads path as YAML, falling back to JSON, layered over the
// defaults, and validates the result.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()
	if yerr := yaml.Unmarshal(data, cfg); yerr != nil {
		if jerr := json.Unmarshal(data, cfg); jerr != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", yerr)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the engine would refuse at runtime.
func (c *Config) Validate() error {
	if !c.Account.InitialBalance.IsPositive() {
		return fmt.Errorf("config: initial_balance must be positive, got %s", c.Account.InitialBalance)
	}
	if !c.Account.GrowthFactor.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("config: growth_factor must be > 1, got %s", c.Account.GrowthFactor)
	}
	switch c.Account.BaseLossPolicy {
	case "", "fixed_fraction", "mirror_step_back":
	default:
		return fmt.Errorf("config: unknown base_loss_policy %q", c.Account.BaseLossPolicy)
	}
	if c.Trading.MaxConsecutiveLosses < 0 {
		return fmt.Errorf("config: max_consecutive_losses must be >= 0")
	}
	if _, err := c.TradeDelay(); err != nil {
		return err
	}
	one := c.Trading.FixedTakePips.IsPositive()
	two := c.Trading.FixedStopPips.IsPositive()
	if one != two {
		return fmt.Errorf("config: fixed_take_pips and fixed_stop_pips must be set together")
	}
	if c.Instrument.Name == "" {
		return fmt.Errorf("config: instrument.name is required")
	}
	if _, err := c.InstrumentMeta(); err != nil {
		return err
	}
	switch c.Journal.Type {
	case "", "ndjson", "sqlite", "memory":
	default:
		return fmt.Errorf("config: unknown journal type %q", c.Journal.Type)
	}
	switch c.Feed.Type {
	case "", "csv", "dukas", "ws":
	default:
		return fmt.Errorf("config: unknown feed type %q", c.Feed.Type)
	}
	return nil
}

// TradeDelay parses the configured minimum time between trades.
func (c *Config) TradeDelay() (time.Duration, error) {
	if c.Trading.TradeDelay == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.Trading.TradeDelay)
	if err != nil {
		return 0, fmt.Errorf("config: bad trade_delay %q: %w", c.Trading.TradeDelay, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("config: trade_delay must be >= 0, got %s", d)
	}
	return d, nil
}

// InstrumentMeta resolves the instrument metadata: the built-in table
// entry with any configured overrides applied.
func (c *Config) InstrumentMeta() (market.InstrumentMeta, error) {
	meta, ok := market.Instruments[c.Instrument.Name]
	if !ok {
		// Unknown instruments are allowed when the config supplies the
		// metadata itself.
		if c.Instrument.PipSize.IsZero() || c.Instrument.TickSize.IsZero() {
			return market.InstrumentMeta{}, fmt.Errorf(
				"config: unknown instrument %q needs pip_size and tick_size", c.Instrument.Name)
		}
		meta = market.InstrumentMeta{Name: c.Instrument.Name}
	}
	overrideDecimal(&meta.PipSize, c.Instrument.PipSize)
	overrideDecimal(&meta.TickSize, c.Instrument.TickSize)
	if c.Instrument.PricePrecision != 0 {
		meta.PricePrecision = c.Instrument.PricePrecision
	}
	if c.Instrument.QuantityPrecision != 0 {
		meta.QuantityPrecision = c.Instrument.QuantityPrecision
	}
	overrideDecimal(&meta.MinTradeSize, c.Instrument.MinTradeSize)
	if !meta.TickSize.IsPositive() {
		return market.InstrumentMeta{}, fmt.Errorf("config: instrument %q has no tick size", c.Instrument.Name)
	}
	return meta, nil
}

func overrideDecimal(dst *decimal.Decimal, v Dec) {
	if !v.IsZero() {
		*dst = v.Decimal
	}
}
