package live

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kacharaalert/internal/logger"
	"github.com/kacharaalert/internal/model"
)

// bufPool pools bytes.Buffer for frame encoding in writePump.
var bufPool = sync.Pool{
	New: func() any { return new(bytes.Buffer) },
}

// conn is one dialled WebSocket.
// Lifecycle: newConn -> start -> [readPump, writePump] -> close -> wait.
type conn struct {
	ws       *websocket.Conn
	send     chan model.Frame
	dispatch func(model.Frame)
	opts     timing

	mu   sync.Mutex
	acks map[uint64]chan model.Ack

	done   chan struct{}
	cancel context.CancelFunc
	once   sync.Once
	wg     sync.WaitGroup
}

type timing struct {
	writeWait      time.Duration
	pongWait       time.Duration
	pingPeriod     time.Duration
	maxMessageSize int64
	sendBufSize    int
}

func newConn(c *websocket.Conn, t timing, dispatch func(model.Frame)) *conn {
	return &conn{
		ws:       c,
		send:     make(chan model.Frame, t.sendBufSize),
		dispatch: dispatch,
		opts:     t,
		acks:     make(map[uint64]chan model.Ack),
		done:     make(chan struct{}),
	}
}

func (c *conn) start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)
	c.wg.Add(2)
	go c.writePump(ctx)
	go c.readPump(ctx)
}

func (c *conn) wait() { c.wg.Wait() }

// close is safe to call multiple times from any goroutine.
func (c *conn) close() {
	c.once.Do(func() {
		if c.cancel != nil {
			c.cancel()
		}
		close(c.done)
		c.ws.Close()
	})
}

func (c *conn) expect(id uint64) chan model.Ack {
	ch := make(chan model.Ack, 1)
	c.mu.Lock()
	c.acks[id] = ch
	c.mu.Unlock()
	return ch
}

func (c *conn) forget(id uint64) {
	c.mu.Lock()
	delete(c.acks, id)
	c.mu.Unlock()
}

func (c *conn) resolve(id uint64, ack model.Ack) {
	c.mu.Lock()
	ch, ok := c.acks[id]
	delete(c.acks, id)
	c.mu.Unlock()
	if !ok {
		logger.Debugf("live: ack for unknown id %d", id)
		return
	}
	ch <- ack
}

func (c *conn) readPump(ctx context.Context) {
	defer c.wg.Done()
	defer c.close()

	c.ws.SetReadLimit(c.opts.maxMessageSize)
	if err := c.ws.SetReadDeadline(time.Now().Add(c.opts.pongWait)); err != nil {
		logger.Errorf("live: set read deadline: %v", err)
		return
	}
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(c.opts.pongWait))
	})

	for {
		if ctx.Err() != nil {
			return
		}
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			if ctx.Err() == nil && websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Errorf("live: read: %v", err)
			}
			return
		}
		var f model.Frame
		if err := json.Unmarshal(raw, &f); err != nil {
			logger.Errorf("live: unmarshal frame: %v", err)
			continue
		}
		switch f.Type {
		case model.FrameAck:
			var ack model.Ack
			if err := json.Unmarshal(f.Data, &ack); err != nil {
				ack = model.Ack{Error: "malformed ack"}
			}
			c.resolve(f.ID, ack)
		case model.FrameError:
			if f.ID != 0 {
				c.resolve(f.ID, model.Ack{Error: f.Error})
			} else {
				logger.Errorf("live: server error: %s", f.Error)
			}
		case model.FrameEvent:
			c.dispatch(f)
		default:
			logger.Debugf("live: ignoring frame type %q", f.Type)
		}
	}
}

func (c *conn) writePump(ctx context.Context) {
	defer c.wg.Done()
	ticker := time.NewTicker(c.opts.pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case <-ctx.Done():
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.opts.writeWait))
			_ = c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case f := <-c.send:
			if err := c.ws.SetWriteDeadline(time.Now().Add(c.opts.writeWait)); err != nil {
				logger.Errorf("live: set write deadline: %v", err)
				return
			}
			buf := bufPool.Get().(*bytes.Buffer)
			buf.Reset()
			if err := json.NewEncoder(buf).Encode(f); err != nil {
				bufPool.Put(buf)
				logger.Errorf("live: marshal frame: %v", err)
				continue
			}
			data := bytes.TrimSuffix(buf.Bytes(), []byte{'\n'})
			writeErr := c.ws.WriteMessage(websocket.TextMessage, data)
			bufPool.Put(buf)
			if writeErr != nil {
				return
			}
		case <-ticker.C:
			if err := c.ws.SetWriteDeadline(time.Now().Add(c.opts.writeWait)); err != nil {
				return
			}
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
