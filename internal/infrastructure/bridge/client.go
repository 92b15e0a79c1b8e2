// Package bridge talks to the trading host over a single websocket. Requests and replies share one
// JSON envelope; the host also pushes bar and position events on the same connection.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vitos/trade_lifecycle/internal/domain"
	"github.com/vitos/trade_lifecycle/internal/id"
	"go.uber.org/zap"
)

// Message types sent by the engine.
const (
	TypeAccount       = "account"
	TypeSymbol        = "symbol"
	TypePositions     = "positions"
	TypeHistory       = "history"
	TypeCrossRate     = "cross_rate"
	TypeMarketOpen    = "market_open"
	TypeExecuteOrder  = "execute_order"
	TypeModifyStop    = "modify_stop"
	TypeModifyVolume  = "modify_volume"
	TypeSetTrailing   = "set_trailing"
	TypeClosePosition = "close_position"
)

// Event types pushed by the host.
const (
	EventBar            = "bar"
	EventPositionOpened = "position_opened"
	EventPositionClosed = "position_closed"
)

var ErrClosed = errors.New("bridge connection closed")

// Envelope is the only frame on the wire. Replies echo the request ID; pushed events have none.
type Envelope struct {
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   string          `json:"error,omitempty"`
}

type Client struct {
	url     string
	timeout time.Duration
	logger  *zap.Logger

	mu      sync.Mutex
	conn    *websocket.Conn
	pending map[string]chan Envelope
	done    chan struct{}

	writeMu   sync.Mutex
	callbacks []func(domain.Event)
}

func NewClient(url string, timeout time.Duration, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		url:     url,
		timeout: timeout,
		logger:  logger,
		pending: make(map[string]chan Envelope),
		done:    make(chan struct{}),
	}
}

// OnEvent registers a callback for host-pushed events. Callbacks run on the read goroutine and
// must not block.
func (c *Client) OnEvent(cb func(domain.Event)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.callbacks = append(c.callbacks, cb)
}

func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return nil
	}
	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.url, err)
	}
	c.conn = conn

	go c.readLoop(conn)
	return nil
}

// Done is closed when the read loop exits.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return nil
	}

	c.writeMu.Lock()
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()
	return conn.Close()
}

func (c *Client) readLoop(conn *websocket.Conn) {
	defer func() {
		conn.Close()
		c.mu.Lock()
		c.conn = nil
		for reqID, ch := range c.pending {
			close(ch)
			delete(c.pending, reqID)
		}
		c.mu.Unlock()
		close(c.done)
	}()

	for {
		var env Envelope
		if err := conn.ReadJSON(&env); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				c.logger.Warn("Bridge read error", zap.Error(err))
			}
			return
		}

		if env.ID != "" {
			c.mu.Lock()
			ch, ok := c.pending[env.ID]
			delete(c.pending, env.ID)
			c.mu.Unlock()
			if ok {
				ch <- env
			} else {
				c.logger.Debug("Reply for unknown request", zap.String("id", env.ID), zap.String("type", env.Type))
			}
			continue
		}

		ev, err := decodeEvent(env)
		if err != nil {
			c.logger.Warn("Bad event from host", zap.String("type", env.Type), zap.Error(err))
			continue
		}

		c.mu.Lock()
		callbacks := make([]func(domain.Event), len(c.callbacks))
		copy(callbacks, c.callbacks)
		c.mu.Unlock()

		for _, cb := range callbacks {
			cb(ev)
		}
	}
}

func decodeEvent(env Envelope) (domain.Event, error) {
	ev := domain.Event{At: time.Now()}
	switch env.Type {
	case EventBar:
		var bar domain.Bar
		if err := json.Unmarshal(env.Payload, &bar); err != nil {
			return ev, err
		}
		ev.Kind = domain.EventBar
		ev.Bar = &bar
	case EventPositionOpened:
		var pos domain.OpenPosition
		if err := json.Unmarshal(env.Payload, &pos); err != nil {
			return ev, err
		}
		ev.Kind = domain.EventPositionOpened
		ev.Position = &pos
	case EventPositionClosed:
		var trade domain.TradeRecord
		if err := json.Unmarshal(env.Payload, &trade); err != nil {
			return ev, err
		}
		ev.Kind = domain.EventPositionClosed
		ev.Trade = &trade
	default:
		return ev, fmt.Errorf("unknown event type %q", env.Type)
	}
	return ev, nil
}

// call sends a request and decodes the reply payload into out (which may be nil).
func (c *Client) call(ctx context.Context, typ string, payload any, out any) error {
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		raw = b
	}

	reqID := id.New()
	reply := make(chan Envelope, 1)

	c.mu.Lock()
	conn := c.conn
	if conn == nil {
		c.mu.Unlock()
		return ErrClosed
	}
	c.pending[reqID] = reply
	c.mu.Unlock()

	c.writeMu.Lock()
	err := conn.WriteJSON(Envelope{ID: reqID, Type: typ, Payload: raw})
	c.writeMu.Unlock()
	if err != nil {
		c.forget(reqID)
		return fmt.Errorf("%s: write: %w", typ, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	select {
	case env, ok := <-reply:
		if !ok {
			return ErrClosed
		}
		if env.Error != "" {
			return fmt.Errorf("%s: host error: %s", typ, env.Error)
		}
		if out != nil && len(env.Payload) > 0 {
			if err := json.Unmarshal(env.Payload, out); err != nil {
				return fmt.Errorf("%s: decode reply: %w", typ, err)
			}
		}
		return nil
	case <-ctx.Done():
		c.forget(reqID)
		return fmt.Errorf("%s: %w", typ, ctx.Err())
	}
}

func (c *Client) forget(reqID string) {
	c.mu.Lock()
	delete(c.pending, reqID)
	c.mu.Unlock()
}

// AccountProvider Implementation

func (c *Client) Account(ctx context.Context) (domain.AccountState, error) {
	var acct domain.AccountState
	err := c.call(ctx, TypeAccount, nil, &acct)
	return acct, err
}

func (c *Client) Symbol(ctx context.Context, name string) (domain.SymbolInfo, error) {
	var sym domain.SymbolInfo
	err := c.call(ctx, TypeSymbol, map[string]string{"name": name}, &sym)
	return sym, err
}

func (c *Client) Positions(ctx context.Context) ([]domain.OpenPosition, error) {
	var positions []domain.OpenPosition
	err := c.call(ctx, TypePositions, nil, &positions)
	return positions, err
}

func (c *Client) History(ctx context.Context) ([]domain.TradeRecord, error) {
	var trades []domain.TradeRecord
	err := c.call(ctx, TypeHistory, nil, &trades)
	return trades, err
}

func (c *Client) CrossRate(ctx context.Context, pair string) (float64, error) {
	var reply struct {
		Ask float64 `json:"ask"`
	}
	if err := c.call(ctx, TypeCrossRate, map[string]string{"pair": pair}, &reply); err != nil {
		return 0, err
	}
	return reply.Ask, nil
}

func (c *Client) MarketOpen(ctx context.Context) (bool, error) {
	var reply struct {
		Open bool `json:"open"`
	}
	err := c.call(ctx, TypeMarketOpen, nil, &reply)
	return reply.Open, err
}

// ExecutionSurface Implementation

func (c *Client) ExecuteMarketOrder(ctx context.Context, req domain.OrderRequest) (*domain.OpenPosition, error) {
	var pos domain.OpenPosition
	if err := c.call(ctx, TypeExecuteOrder, req, &pos); err != nil {
		return nil, err
	}
	if pos.ID == "" {
		return nil, fmt.Errorf("%s: reply has no position", TypeExecuteOrder)
	}
	return &pos, nil
}

type positionCommand struct {
	PositionID string   `json:"position_id"`
	Price      *float64 `json:"price,omitempty"`
	Volume     *float64 `json:"volume,omitempty"`
	Enabled    *bool    `json:"enabled,omitempty"`
}

func (c *Client) ModifyStopLoss(ctx context.Context, positionID string, price float64) error {
	return c.call(ctx, TypeModifyStop, positionCommand{PositionID: positionID, Price: &price}, nil)
}

func (c *Client) ModifyVolume(ctx context.Context, positionID string, volume float64) error {
	return c.call(ctx, TypeModifyVolume, positionCommand{PositionID: positionID, Volume: &volume}, nil)
}

func (c *Client) SetTrailingStop(ctx context.Context, positionID string, enabled bool) error {
	return c.call(ctx, TypeSetTrailing, positionCommand{PositionID: positionID, Enabled: &enabled}, nil)
}

func (c *Client) ClosePosition(ctx context.Context, positionID string) error {
	return c.call(ctx, TypeClosePosition, positionCommand{PositionID: positionID}, nil)
}
