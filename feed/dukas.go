package feed

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"
	"github.com/ulikunitz/xz/lzma"

	"github.com/stepbackfx/stepback/market"
)

// bi5Record is one Dukascopy tick: 20 bytes big-endian. Prices are
// integers scaled by the instrument's point value (10^price precision);
// volumes are float32 millions.
const bi5RecordSize = 20

// Dukas reads hour files downloaded from the Dukascopy datafeed
// (<symbol>/<year>/<month0>/<day>/<hour>h_ticks.bi5, LZMA compressed).
// Hours are consumed in the order given; the caller supplies them sorted.
type Dukas struct {
	instrument string
	scale      int32 // price precision, prices divide by 10^scale

	hours []dukasHour
	idx   int

	buf []byte
	off int
	cur dukasHour
}

type dukasHour struct {
	Path  string
	Start time.Time // hour boundary in UTC
}

// OpenDukas builds a feed over the bi5 files for [start, end) under dir.
// Missing hours (weekends, gaps) are skipped. pricePrecision matches the
// instrument metadata (5 for EUR_USD, 3 for USD_JPY).
func OpenDukas(dir, instrument string, pricePrecision int32, start, end time.Time) (*Dukas, error) {
	if !end.After(start) {
		return nil, fmt.Errorf("feed: dukas range end %s not after start %s", end, start)
	}
	symbol := dukasSymbol(instrument)
	var hours []dukasHour
	for t := start.UTC().Truncate(time.Hour); t.Before(end); t = t.Add(time.Hour) {
		p := filepath.Join(dir, symbol,
			fmt.Sprintf("%04d", t.Year()),
			fmt.Sprintf("%02d", int(t.Month())-1), // zero-based month, as served
			fmt.Sprintf("%02d", t.Day()),
			fmt.Sprintf("%02dh_ticks.bi5", t.Hour()))
		if st, err := os.Stat(p); err != nil || st.Size() == 0 {
			continue
		}
		hours = append(hours, dukasHour{Path: p, Start: t})
	}
	if len(hours) == 0 {
		return nil, fmt.Errorf("feed: no bi5 files for %s in %s between %s and %s",
			symbol, dir, start.Format(time.RFC3339), end.Format(time.RFC3339))
	}
	return &Dukas{
		instrument: instrument,
		scale:      pricePrecision,
		hours:      hours,
	}, nil
}

func (d *Dukas) Next(ctx context.Context) (market.Quote, error) {
	for {
		if err := ctx.Err(); err != nil {
			return market.Quote{}, err
		}
		if d.off+bi5RecordSize <= len(d.buf) {
			rec := d.buf[d.off : d.off+bi5RecordSize]
			d.off += bi5RecordSize

			ms := binary.BigEndian.Uint32(rec[0:4])
			ask := binary.BigEndian.Uint32(rec[4:8])
			bid := binary.BigEndian.Uint32(rec[8:12])

			return market.Quote{
				Instrument: d.instrument,
				Bid:        decimal.New(int64(bid), -d.scale),
				Ask:        decimal.New(int64(ask), -d.scale),
				Time:       d.cur.Start.Add(time.Duration(ms) * time.Millisecond),
			}, nil
		}

		if d.idx >= len(d.hours) {
			return market.Quote{}, io.EOF
		}
		h := d.hours[d.idx]
		d.idx++
		buf, err := readBI5(h.Path)
		if err != nil {
			return market.Quote{}, fmt.Errorf("feed: %s: %w", h.Path, err)
		}
		if len(buf)%bi5RecordSize != 0 {
			return market.Quote{}, fmt.Errorf("feed: %s: truncated record stream (%d bytes)", h.Path, len(buf))
		}
		d.buf, d.off, d.cur = buf, 0, h
	}
}

func (d *Dukas) Close() error {
	d.buf = nil
	d.idx = len(d.hours)
	return nil
}

func readBI5(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	r, err := lzma.NewReader(f)
	if err != nil {
		return nil, err
	}
	return io.ReadAll(r)
}

// dukasSymbol maps "EUR_USD" to the datafeed's "EURUSD" form.
func dukasSymbol(instrument string) string {
	out := make([]byte, 0, len(instrument))
	for i := 0; i < len(instrument); i++ {
		if instrument[i] != '_' && instrument[i] != '/' {
			out = append(out, instrument[i])
		}
	}
	return string(out)
}
