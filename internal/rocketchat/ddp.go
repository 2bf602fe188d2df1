package rocketchat

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// ddpConn: одно websocket-соединение с сервером по протоколу DDP.
// Чтение идёт в своей горутине, ответы на вызовы раздаются по id.
type ddpConn struct {
	ws        *websocket.Conn
	log       *zap.SugaredLogger
	onChanged func(ddpMessage)

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[string]chan ddpMessage
	subs    map[string]chan ddpMessage
	err     error
	done    chan struct{}
}

func dialDDP(ctx context.Context, dialer *websocket.Dialer, wsURL string, onChanged func(ddpMessage), log *zap.SugaredLogger) (*ddpConn, error) {
	ws, _, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("rocketchat: dial %s: %w", wsURL, err)
	}
	c := &ddpConn{
		ws:        ws,
		log:       log,
		onChanged: onChanged,
		pending:   make(map[string]chan ddpMessage),
		subs:      make(map[string]chan ddpMessage),
		done:      make(chan struct{}),
	}
	if err := c.handshake(ctx); err != nil {
		ws.Close()
		return nil, err
	}
	go c.readLoop()
	return c, nil
}

// handshake отправляет connect и ждёт connected до запуска readLoop.
func (c *ddpConn) handshake(ctx context.Context) error {
	if deadline, ok := ctx.Deadline(); ok {
		_ = c.ws.SetReadDeadline(deadline)
		defer c.ws.SetReadDeadline(time.Time{})
	}
	if err := c.send(ddpMessage{Msg: "connect", Version: "1", Support: []string{"1"}}); err != nil {
		return err
	}
	for {
		var m ddpMessage
		if err := c.ws.ReadJSON(&m); err != nil {
			return fmt.Errorf("rocketchat: handshake: %w", err)
		}
		switch m.Msg {
		case "connected":
			c.log.Debugf("🔌 DDP сессия %s", m.Session)
			return nil
		case "failed":
			return fmt.Errorf("rocketchat: handshake: server wants DDP version %s", m.Version)
		case "ping":
			if err := c.send(ddpMessage{Msg: "pong", ID: m.ID}); err != nil {
				return err
			}
		}
	}
}

func (c *ddpConn) send(m ddpMessage) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.ws.WriteJSON(m); err != nil {
		return fmt.Errorf("rocketchat: write %s: %w", m.Msg, err)
	}
	return nil
}

// call вызывает метод и ждёт result с тем же id.
func (c *ddpConn) call(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	id := uuid.NewString()
	ch := make(chan ddpMessage, 1)

	c.mu.Lock()
	if c.err != nil {
		c.mu.Unlock()
		return nil, c.err
	}
	c.pending[id] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	if params == nil {
		params = []any{}
	}
	if err := c.send(ddpMessage{Msg: "method", ID: id, Method: method, Params: params}); err != nil {
		return nil, err
	}

	select {
	case m := <-ch:
		if m.Error != nil {
			return nil, m.Error.toError()
		}
		return m.Result, nil
	case <-c.done:
		return nil, c.closeErr()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// subscribe подписывается и ждёт ready.
func (c *ddpConn) subscribe(ctx context.Context, name string, params ...any) error {
	id := uuid.NewString()
	ch := make(chan ddpMessage, 1)

	c.mu.Lock()
	if c.err != nil {
		c.mu.Unlock()
		return c.err
	}
	c.subs[id] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}()

	if err := c.send(ddpMessage{Msg: "sub", ID: id, Name: name, Params: params}); err != nil {
		return err
	}

	select {
	case m := <-ch:
		if m.Msg == "nosub" {
			if m.Error != nil {
				return m.Error.toError()
			}
			return fmt.Errorf("rocketchat: subscription %s rejected", name)
		}
		return nil
	case <-c.done:
		return c.closeErr()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *ddpConn) readLoop() {
	for {
		var m ddpMessage
		if err := c.ws.ReadJSON(&m); err != nil {
			c.fail(fmt.Errorf("%w: %v", ErrClosed, err))
			return
		}
		switch m.Msg {
		case "ping":
			if err := c.send(ddpMessage{Msg: "pong", ID: m.ID}); err != nil {
				c.log.Warnf("⚠️ Не удалось ответить на ping: %v", err)
			}
		case "result":
			c.mu.Lock()
			ch, ok := c.pending[m.ID]
			c.mu.Unlock()
			if ok {
				ch <- m
			}
		case "ready":
			c.mu.Lock()
			for _, id := range m.Subs {
				if ch, ok := c.subs[id]; ok {
					ch <- m
					delete(c.subs, id)
				}
			}
			c.mu.Unlock()
		case "nosub":
			c.mu.Lock()
			if ch, ok := c.subs[m.ID]; ok {
				ch <- m
				delete(c.subs, m.ID)
			}
			c.mu.Unlock()
		case "changed", "added":
			if c.onChanged != nil {
				c.onChanged(m)
			}
		case "error":
			c.log.Warnf("⚠️ DDP ошибка от сервера: %s", string(m.Fields))
		}
	}
}

func (c *ddpConn) fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return
	}
	c.err = err
	close(c.done)
}

func (c *ddpConn) closeErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *ddpConn) close() error {
	c.fail(ErrClosed)
	c.writeMu.Lock()
	_ = c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()
	return c.ws.Close()
}
