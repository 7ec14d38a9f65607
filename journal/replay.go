package journal

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"

	"github.com/shopspring/decimal"

	"github.com/stepbackfx/stepback/ladder"
)

// Replay rebuilds a ladder purely from the ordered stream of
// ladder_profit / ladder_loss records in an NDJSON journal. Every applied
// transition is cross-checked against the balance snapshot carried by the
// record, so corruption is detected rather than propagated.
func Replay(r io.Reader, growth decimal.Decimal) (*ladder.Ladder, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var l *ladder.Ladder
	line := 0
	for sc.Scan() {
		line++
		if len(sc.Bytes()) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			return nil, fmt.Errorf("journal: replay line %d: %w", line, err)
		}

		if l == nil {
			if len(rec.Ladder.History) == 0 {
				return nil, fmt.Errorf("journal: replay line %d: record has no ladder snapshot", line)
			}
			var err error
			l, err = ladder.New(rec.Ladder.History[0], growth)
			if err != nil {
				return nil, fmt.Errorf("journal: replay line %d: %w", line, err)
			}
		}

		switch rec.Kind {
		case KindLadderProfit:
			l.RecordProfit()
		case KindLadderLoss:
			l.RecordLoss()
		default:
			continue
		}

		if !l.Balance().Equal(rec.Ladder.CurrentBalance) {
			return nil, fmt.Errorf("journal: replay line %d: rebuilt balance %s != journalled %s",
				line, l.Balance(), rec.Ladder.CurrentBalance)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("journal: replay: %w", err)
	}
	if l == nil {
		return nil, fmt.Errorf("journal: replay: empty journal")
	}
	return l, nil
}
