package journal

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS records (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	kind TEXT NOT NULL,
	ts DATETIME NOT NULL,
	step_index INTEGER NOT NULL,
	current_balance TEXT NOT NULL,
	history TEXT NOT NULL,
	trade_id TEXT,
	instrument TEXT,
	side TEXT,
	units TEXT,
	stake TEXT,
	entry_price TEXT,
	exit_price TEXT,
	take_profit TEXT,
	stop_loss TEXT,
	loss_fraction TEXT,
	realized_pl TEXT,
	opened_at DATETIME,
	closed_at DATETIME,
	outcome TEXT,
	total_trades INTEGER NOT NULL,
	wins INTEGER NOT NULL,
	losses INTEGER NOT NULL,
	win_rate REAL NOT NULL,
	max_step INTEGER NOT NULL,
	total_return TEXT NOT NULL,
	note TEXT
);

CREATE INDEX IF NOT EXISTS idx_records_ts ON records(ts);
CREATE INDEX IF NOT EXISTS idx_records_kind ON records(kind);
`

// SQLite stores journal records in a single table. Money columns are TEXT
// so decimal values survive round-trips exactly.
type SQLite struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("journal: open sqlite %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("journal: init schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (j *SQLite) Record(r Record) error {
	history, err := json.Marshal(r.Ladder.History)
	if err != nil {
		return fmt.Errorf("journal: marshal history: %w", err)
	}

	var (
		tradeID, instrument, side, units, stake       sql.NullString
		entryPrice, exitPrice, takeProfit, stopLoss   sql.NullString
		lossFraction, realizedPL, outcome             sql.NullString
		openedAt, closedAt                            sql.NullTime
	)
	if t := r.Trade; t != nil {
		tradeID = str(t.ID)
		instrument = str(t.Instrument)
		side = str(t.Side)
		units = str(t.Units.String())
		stake = str(t.Stake.String())
		entryPrice = str(t.EntryPrice.String())
		exitPrice = str(t.ExitPrice.String())
		takeProfit = str(t.TakeProfit.String())
		stopLoss = str(t.StopLoss.String())
		lossFraction = str(t.LossFraction.String())
		realizedPL = str(t.RealizedPL.String())
		outcome = str(t.Outcome)
		openedAt = sql.NullTime{Time: t.OpenedAt, Valid: !t.OpenedAt.IsZero()}
		closedAt = sql.NullTime{Time: t.ClosedAt, Valid: !t.ClosedAt.IsZero()}
	}

	_, err = j.db.Exec(`
		INSERT INTO records
		(kind, ts, step_index, current_balance, history,
		 trade_id, instrument, side, units, stake,
		 entry_price, exit_price, take_profit, stop_loss, loss_fraction, realized_pl,
		 opened_at, closed_at, outcome,
		 total_trades, wins, losses, win_rate, max_step, total_return, note)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.Kind, r.TS, r.Ladder.StepIndex, r.Ladder.CurrentBalance.String(), string(history),
		tradeID, instrument, side, units, stake,
		entryPrice, exitPrice, takeProfit, stopLoss, lossFraction, realizedPL,
		openedAt, closedAt, outcome,
		r.Stats.TotalTrades, r.Stats.Wins, r.Stats.Losses, r.Stats.WinRate,
		r.Stats.MaxStep, r.Stats.TotalReturn.String(), r.Note,
	)
	return err
}

// TradesClosedBetween lists closed-trade records in [from, to), oldest
// first. Used for backtest summaries.
func (j *SQLite) TradesClosedBetween(from, to time.Time) ([]TradeRecord, error) {
	rows, err := j.db.Query(`
		SELECT trade_id, instrument, side, outcome, closed_at
		FROM records
		WHERE kind = ? AND ts >= ? AND ts < ?
		ORDER BY id`,
		KindTradeClosed, from, to,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TradeRecord
	for rows.Next() {
		var t TradeRecord
		var closedAt sql.NullTime
		if err := rows.Scan(&t.ID, &t.Instrument, &t.Side, &t.Outcome, &closedAt); err != nil {
			return nil, err
		}
		if closedAt.Valid {
			t.ClosedAt = closedAt.Time
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (j *SQLite) Close() error { return j.db.Close() }

func str(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
