// Package live keeps the authenticated WebSocket to the backend open: it
// dispatches server events and carries acknowledged requests.
package live

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kacharaalert/internal/apiclient"
	"github.com/kacharaalert/internal/config"
	"github.com/kacharaalert/internal/logger"
	"github.com/kacharaalert/internal/model"
)

var (
	ErrNotConnected = errors.New("live channel not connected")
	ErrAckFailed    = errors.New("live request rejected")
	ErrAckTimeout   = errors.New("live request timed out")

	errUnauthorized = errors.New("upgrade rejected: unauthorized")
)

// Handler receives the payload of a server event.
type Handler func(event string, data json.RawMessage)

type Options struct {
	// BaseURL is the REST base; the scheme is switched to ws/wss.
	BaseURL string
	Session *apiclient.Session
	Config  config.LiveConfig
	Dialer  *websocket.Dialer
	// Refresher, when set, is asked for a new token after the upgrade is
	// rejected with 401.
	Refresher Refresher
}

// Refresher is implemented by *apiclient.Client.
type Refresher interface {
	Refresh(ctx context.Context) bool
}

type Client struct {
	url     string
	session *apiclient.Session
	cfg     config.LiveConfig
	dialer  *websocket.Dialer
	refresh Refresher
	timing  timing

	mu       sync.RWMutex
	current  *conn
	handlers map[string]map[uint64]Handler
	nextSub  uint64

	nextID atomic.Uint64
}

func New(opts Options) *Client {
	cfg := opts.Config
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 10 * time.Second
	}
	if cfg.ReconnectMin <= 0 {
		cfg.ReconnectMin = time.Second
	}
	if cfg.ReconnectMax < cfg.ReconnectMin {
		cfg.ReconnectMax = cfg.ReconnectMin
	}
	t := timing{
		writeWait:      cfg.WriteTimeout,
		pongWait:       cfg.PongTimeout,
		maxMessageSize: cfg.MaxMessageSize,
		sendBufSize:    cfg.SendBufferSize,
	}
	if t.writeWait <= 0 {
		t.writeWait = 10 * time.Second
	}
	if t.pongWait <= 0 {
		t.pongWait = 60 * time.Second
	}
	t.pingPeriod = (t.pongWait * 9) / 10
	if t.maxMessageSize <= 0 {
		t.maxMessageSize = 64 << 10
	}
	if t.sendBufSize <= 0 {
		t.sendBufSize = 256
	}
	dialer := opts.Dialer
	if dialer == nil {
		dialer = &websocket.Dialer{HandshakeTimeout: cfg.DialTimeout, Proxy: http.ProxyFromEnvironment}
	}
	return &Client{
		url:      wsURL(opts.BaseURL),
		session:  opts.Session,
		cfg:      cfg,
		dialer:   dialer,
		refresh:  opts.Refresher,
		timing:   t,
		handlers: make(map[string]map[uint64]Handler),
	}
}

func wsURL(base string) string {
	base = strings.TrimSuffix(base, "/")
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + "/ws"
}

// Connected reports whether a connection is currently open.
func (c *Client) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current != nil
}

// On registers h for event and returns a function that removes it.
func (c *Client) On(event string, h Handler) (unsubscribe func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextSub++
	id := c.nextSub
	if c.handlers[event] == nil {
		c.handlers[event] = make(map[uint64]Handler)
	}
	c.handlers[event][id] = h
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.handlers[event], id)
	}
}

func (c *Client) dispatch(f model.Frame) {
	c.mu.RLock()
	hs := make([]Handler, 0, len(c.handlers[f.Event]))
	for _, h := range c.handlers[f.Event] {
		hs = append(hs, h)
	}
	c.mu.RUnlock()
	for _, h := range hs {
		h(f.Event, f.Data)
	}
}

// Run keeps the channel open until ctx ends. Without a token it stays
// disconnected; a token change tears the connection down and re-dials.
func (c *Client) Run(ctx context.Context) error {
	backoff := c.cfg.ReconnectMin
	// One refresh per dial cycle; a rejection right after a refresh backs off.
	refreshed := false
	for {
		token := c.session.Token()
		changed := c.session.Changed()
		if token == "" {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-changed:
				continue
			}
		}

		wsConn, err := c.dial(ctx, token)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, errUnauthorized) && !refreshed && c.refresh != nil {
				refreshed = true
				if c.refresh.Refresh(ctx) {
					continue
				}
			}
			logger.Errorf("live: dial: %v (retry in %s)", err, backoff)
			if !c.pause(ctx, changed, backoff) {
				return ctx.Err()
			}
			refreshed = false
			backoff = min(backoff*2, c.cfg.ReconnectMax)
			continue
		}
		backoff = c.cfg.ReconnectMin
		refreshed = false

		cn := newConn(wsConn, c.timing, c.dispatch)
		c.setCurrent(cn)
		cn.start(ctx)
		logger.Debugf("live: connected to %s", c.url)

		var redial bool
		select {
		case <-ctx.Done():
		case <-changed:
			logger.Debugf("live: token changed, reconnecting")
			redial = true
		case <-cn.done:
			logger.Infof("live: disconnected")
		}
		c.setCurrent(nil)
		cn.close()
		cn.wait()

		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !redial && !c.pause(ctx, changed, backoff) {
			return ctx.Err()
		}
	}
}

// pause waits d, cutting it short on a token change. It reports false when
// ctx ended.
func (c *Client) pause(ctx context.Context, changed <-chan struct{}, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-changed:
	case <-t.C:
	}
	return true
}

func (c *Client) dial(ctx context.Context, token string) (*websocket.Conn, error) {
	dctx, cancel := context.WithTimeout(ctx, c.cfg.DialTimeout)
	defer cancel()
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	wsConn, resp, err := c.dialer.DialContext(dctx, c.url, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, fmt.Errorf("%s: %w", c.url, errUnauthorized)
		}
		if resp != nil {
			return nil, fmt.Errorf("%s: %w (status %d)", c.url, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("%s: %w", c.url, err)
	}
	return wsConn, nil
}

func (c *Client) setCurrent(cn *conn) {
	c.mu.Lock()
	c.current = cn
	c.mu.Unlock()
}

func (c *Client) active() *conn {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

// Emit sends a request and waits for its ack or for ctx to end. The ack
// data is decoded into out when out is non-nil.
func (c *Client) Emit(ctx context.Context, event string, payload, out any) error {
	cn := c.active()
	if cn == nil {
		return ErrNotConnected
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s: %w", event, err)
	}
	id := c.nextID.Add(1)
	ackc := cn.expect(id)
	defer cn.forget(id)

	select {
	case cn.send <- model.Frame{Type: model.FrameEmit, ID: id, Event: event, Data: raw}:
	case <-cn.done:
		return ErrNotConnected
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case ack := <-ackc:
		if !ack.Success {
			msg := ack.Error
			if msg == "" {
				msg = "no reason given"
			}
			return fmt.Errorf("%w: %s", ErrAckFailed, msg)
		}
		if out != nil && len(ack.Data) > 0 {
			if err := json.Unmarshal(ack.Data, out); err != nil {
				return fmt.Errorf("%w: decode ack: %v", ErrAckFailed, err)
			}
		}
		return nil
	case <-cn.done:
		return ErrNotConnected
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w: %w", ErrAckTimeout, ctx.Err())
		}
		return ctx.Err()
	}
}

// SendMessage is the live path of a message send.
func (c *Client) SendMessage(ctx context.Context, req model.SendMessageRequest) (*model.Message, error) {
	var msg model.Message
	if err := c.Emit(ctx, model.EventMessageSend, req, &msg); err != nil {
		return nil, err
	}
	if msg.ID == "" {
		return nil, fmt.Errorf("%w: ack carried no message", ErrAckFailed)
	}
	return &msg, nil
}
