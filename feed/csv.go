package feed

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/stepbackfx/stepback/market"
)

// CSV reads tick files with rows of the form
//
//	time,bid,ask
//
// where time is RFC 3339 (2026-01-02T13:04:05.123Z) or Unix milliseconds.
// A header row starting with "time" is skipped. Rows outside [Start, End)
// are filtered out; a zero bound is open.
type CSV struct {
	instrument string
	start, end time.Time

	f *os.File
	r *csv.Reader

	line int
}

// OpenCSV opens path as a tick feed for instrument.
func OpenCSV(path, instrument string, start, end time.Time) (*CSV, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("feed: open %s: %w", path, err)
	}
	r := csv.NewReader(f)
	r.FieldsPerRecord = 3
	r.ReuseRecord = true
	return &CSV{
		instrument: instrument,
		start:      start,
		end:        end,
		f:          f,
		r:          r,
	}, nil
}

func (c *CSV) Next(ctx context.Context) (market.Quote, error) {
	for {
		if err := ctx.Err(); err != nil {
			return market.Quote{}, err
		}
		row, err := c.r.Read()
		if err == io.EOF {
			return market.Quote{}, io.EOF
		}
		if err != nil {
			return market.Quote{}, fmt.Errorf("feed: %s: %w", c.f.Name(), err)
		}
		c.line++
		if c.line == 1 && strings.EqualFold(strings.TrimSpace(row[0]), "time") {
			continue
		}

		ts, err := parseTime(row[0])
		if err != nil {
			return market.Quote{}, fmt.Errorf("feed: %s line %d: %w", c.f.Name(), c.line, err)
		}
		if !c.start.IsZero() && ts.Before(c.start) {
			continue
		}
		if !c.end.IsZero() && !ts.Before(c.end) {
			return market.Quote{}, io.EOF
		}

		bid, err := decimal.NewFromString(strings.TrimSpace(row[1]))
		if err != nil {
			return market.Quote{}, fmt.Errorf("feed: %s line %d: bad bid %q", c.f.Name(), c.line, row[1])
		}
		ask, err := decimal.NewFromString(strings.TrimSpace(row[2]))
		if err != nil {
			return market.Quote{}, fmt.Errorf("feed: %s line %d: bad ask %q", c.f.Name(), c.line, row[2])
		}

		return market.Quote{
			Instrument: c.instrument,
			Bid:        bid,
			Ask:        ask,
			Time:       ts,
		}, nil
	}
}

func (c *CSV) Close() error { return c.f.Close() }

func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	var ms int64
	if _, err := fmt.Sscanf(s, "%d", &ms); err == nil && ms > 0 {
		return time.UnixMilli(ms).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", s)
}
