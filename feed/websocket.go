package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/stepbackfx/stepback/market"
)

const (
	wsHandshakeTimeout = 10 * time.Second
	wsPongWait         = 60 * time.Second
	wsPingPeriod       = 25 * time.Second
	wsWriteWait        = 5 * time.Second
)

// wsTick is the wire form a price server pushes, one JSON object per
// message.
type wsTick struct {
	Instrument string          `json:"instrument"`
	Bid        decimal.Decimal `json:"bid"`
	Ask        decimal.Decimal `json:"ask"`
	TS         time.Time       `json:"ts"`
}

// WS is a live quote feed over a websocket. It subscribes to one
// instrument and reconnects forever with paced attempts until Close.
type WS struct {
	url        string
	instrument string
	log        *logrus.Entry

	quotes chan market.Quote
	done   chan struct{}
	once   sync.Once
}

// OpenWS dials url and starts the read loop. Quotes become available
// through Next as they arrive.
func OpenWS(url, instrument string, log *logrus.Logger) *WS {
	if log == nil {
		log = logrus.New()
	}
	w := &WS{
		url:        url,
		instrument: instrument,
		log:        log.WithFields(logrus.Fields{"feed": "ws", "instrument": instrument}),
		quotes:     make(chan market.Quote, 64),
		done:       make(chan struct{}),
	}
	go w.run()
	return w
}

func (w *WS) Next(ctx context.Context) (market.Quote, error) {
	select {
	case q, ok := <-w.quotes:
		if !ok {
			return market.Quote{}, io.EOF
		}
		return q, nil
	case <-w.done:
		return market.Quote{}, io.EOF
	case <-ctx.Done():
		return market.Quote{}, ctx.Err()
	}
}

func (w *WS) Close() error {
	w.once.Do(func() { close(w.done) })
	return nil
}

// run owns the connection lifecycle. Reconnect attempts are paced to one
// per two seconds with a small burst so a flapping server is not hammered.
func (w *WS) run() {
	limiter := rate.NewLimiter(rate.Every(2*time.Second), 3)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-w.done
		cancel()
	}()

	for {
		if err := limiter.Wait(ctx); err != nil {
			return
		}
		if err := w.readOnce(ctx); err != nil {
			select {
			case <-w.done:
				return
			default:
			}
			w.log.WithError(err).Warn("connection lost, reconnecting")
		}
	}
}

func (w *WS) readOnce(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: wsHandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, w.url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", w.url, err)
	}
	defer conn.Close()
	w.log.Info("connected")

	sub := map[string]any{"op": "subscribe", "instrument": w.instrument}
	if err := conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	pingDone := make(chan struct{})
	defer close(pingDone)
	go func() {
		t := time.NewTicker(wsPingPeriod)
		defer t.Stop()
		for {
			select {
			case <-pingDone:
				return
			case <-t.C:
				_ = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait))
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(wsWriteWait))
			return nil
		default:
		}

		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		var t wsTick
		if err := json.Unmarshal(msg, &t); err != nil {
			w.log.WithError(err).Debug("skipping unparseable message")
			continue
		}
		if t.Instrument != w.instrument || t.Bid.IsZero() || t.Ask.IsZero() {
			continue
		}
		ts := t.TS
		if ts.IsZero() {
			ts = time.Now().UTC()
		}
		q := market.Quote{Instrument: t.Instrument, Bid: t.Bid, Ask: t.Ask, Time: ts}

		select {
		case w.quotes <- q:
		case <-ctx.Done():
			return nil
		default:
			// Slow consumer: drop the oldest quote, latest price wins.
			select {
			case <-w.quotes:
			default:
			}
			select {
			case w.quotes <- q:
			default:
			}
		}
	}
}
