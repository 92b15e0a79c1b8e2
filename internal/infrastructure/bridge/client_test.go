package bridge_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitos/trade_lifecycle/internal/domain"
	"github.com/vitos/trade_lifecycle/internal/infrastructure/bridge"
)

// fakeHost answers requests from a table and pushes one bar event after the first request.
func fakeHost(t *testing.T, replies map[string]bridge.Envelope) *httptest.Server {
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		pushed := false
		for {
			var req bridge.Envelope
			if err := conn.ReadJSON(&req); err != nil {
				return
			}
			if !pushed {
				bar, _ := json.Marshal(domain.Bar{OpenTime: 1709632800, Open: 1.1, High: 1.2, Low: 1.0, Close: 1.15})
				_ = conn.WriteJSON(bridge.Envelope{Type: bridge.EventBar, Payload: bar})
				pushed = true
			}
			reply, ok := replies[req.Type]
			if !ok {
				continue // let the client time out
			}
			reply.ID = req.ID
			reply.Type = req.Type
			if err := conn.WriteJSON(reply); err != nil {
				return
			}
		}
	}))
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func raw(t *testing.T, v any) json.RawMessage {
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func TestClient_RequestsAndEvents(t *testing.T) {
	stop := 1.09
	srv := fakeHost(t, map[string]bridge.Envelope{
		bridge.TypeAccount:       {Payload: raw(t, domain.AccountState{Balance: 10000, Currency: "SEK"})},
		bridge.TypeExecuteOrder:  {Payload: raw(t, domain.OpenPosition{ID: "42", Side: domain.SideLong, StopLoss: &stop, Volume: 1000})},
		bridge.TypeCrossRate:     {Payload: raw(t, map[string]float64{"ask": 10.5})},
		bridge.TypeClosePosition: {Error: "position not found"},
	})
	defer srv.Close()

	client := bridge.NewClient(wsURL(srv), time.Second, nil)
	events := make(chan domain.Event, 1)
	client.OnEvent(func(ev domain.Event) { events <- ev })

	ctx := context.Background()
	require.NoError(t, client.Connect(ctx))
	defer client.Close()

	acct, err := client.Account(ctx)
	require.NoError(t, err)
	assert.Equal(t, 10000.0, acct.Balance)
	assert.Equal(t, "SEK", acct.Currency)

	select {
	case ev := <-events:
		assert.Equal(t, domain.EventBar, ev.Kind)
		require.NotNil(t, ev.Bar)
		assert.Equal(t, 1.15, ev.Bar.Close)
	case <-time.After(time.Second):
		t.Fatal("no bar event")
	}

	pos, err := client.ExecuteMarketOrder(ctx, domain.OrderRequest{Side: domain.SideLong, Volume: 1000, StopLossPips: 100})
	require.NoError(t, err)
	assert.Equal(t, "42", pos.ID)
	require.NotNil(t, pos.StopLoss)

	rate, err := client.CrossRate(ctx, "USDSEK")
	require.NoError(t, err)
	assert.Equal(t, 10.5, rate)

	err = client.ClosePosition(ctx, "42")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "position not found")
}

func TestClient_Timeout(t *testing.T) {
	srv := fakeHost(t, map[string]bridge.Envelope{})
	defer srv.Close()

	client := bridge.NewClient(wsURL(srv), 50*time.Millisecond, nil)
	require.NoError(t, client.Connect(context.Background()))
	defer client.Close()

	_, err := client.MarketOpen(context.Background())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClient_NotConnected(t *testing.T) {
	client := bridge.NewClient("ws://127.0.0.1:1", time.Second, nil)
	_, err := client.Positions(context.Background())
	assert.ErrorIs(t, err, bridge.ErrClosed)
}
