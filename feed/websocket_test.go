package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLog() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func tickServer(t *testing.T, payloads []string) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// Consume the subscribe message.
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
		for _, p := range payloads {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(p)); err != nil {
				return
			}
		}
		// Hold the connection open until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
}

func wsURL(s *httptest.Server) string {
	return "ws" + strings.TrimPrefix(s.URL, "http")
}

func TestWSDeliversQuotes(t *testing.T) {
	t.Parallel()
	srv := tickServer(t, []string{
		`{"instrument":"EUR_USD","bid":"1.10440","ask":"1.10450","ts":"2026-01-05T09:00:00Z"}`,
	})
	defer srv.Close()

	w := OpenWS(wsURL(srv), "EUR_USD", quietLog())
	defer w.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	q, err := w.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "EUR_USD", q.Instrument)
	assert.True(t, q.Bid.Equal(decimal.RequireFromString("1.10440")))
	assert.Equal(t, time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC), q.Time)
}

func TestWSFiltersOtherInstrumentsAndGarbage(t *testing.T) {
	t.Parallel()
	srv := tickServer(t, []string{
		`not json`,
		`{"instrument":"USD_JPY","bid":"150.000","ask":"150.010"}`,
		`{"instrument":"EUR_USD","bid":"1.10440","ask":"1.10450"}`,
	})
	defer srv.Close()

	w := OpenWS(wsURL(srv), "EUR_USD", quietLog())
	defer w.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	q, err := w.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "EUR_USD", q.Instrument)
	// Messages without a timestamp get stamped on arrival.
	assert.False(t, q.Time.IsZero())
}

func TestWSCloseUnblocksNext(t *testing.T) {
	t.Parallel()
	srv := tickServer(t, nil)
	defer srv.Close()

	w := OpenWS(wsURL(srv), "EUR_USD", quietLog())

	done := make(chan error, 1)
	go func() {
		_, err := w.Next(context.Background())
		done <- err
	}()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, w.Close())

	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Next did not unblock on Close")
	}
}
