package gateway

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/tushaar82/VELOX-N8N-sub000/internal/candle"
	"github.com/tushaar82/VELOX-N8N-sub000/pkg/logger"
	"github.com/tushaar82/VELOX-N8N-sub000/pkg/timeframe"
)

const (
	writeWait      = 2 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBufferSize = 256
)

// ErrSendBufferFull is returned by Deliver when a connection's outbound
// buffer is saturated; the frame is dropped so a slow client cannot stall
// fan-out to the others.
var ErrSendBufferFull = errors.New("send buffer full")

// Conn is one client's persistent duplex channel. It implements
// stream.Subscriber, so the registry delivers candle updates straight into
// its outbound queue.
type Conn struct {
	id        string
	gateway   *Gateway
	ws        *websocket.Conn
	send      chan OutboundMessage
	createdAt time.Time

	mu   sync.Mutex
	subs map[string]map[string]struct{} // symbol -> set of timeframe codes

	received      atomic.Int64
	sent          atomic.Int64
	droppedFrames atomic.Int64

	closeOnce sync.Once
}

// ConnStats is the per-connection monitoring view.
type ConnStats struct {
	ID               string              `json:"id"`
	ConnectedAt      time.Time           `json:"connectedAt"`
	UptimeSeconds    int64               `json:"uptimeSeconds"`
	Subscriptions    map[string][]string `json:"subscriptions"`
	MessagesSent     int64               `json:"messagesSent"`
	MessagesReceived int64               `json:"messagesReceived"`
	DroppedFrames    int64               `json:"droppedFrames"`
}

func newConn(id string, g *Gateway, ws *websocket.Conn) *Conn {
	return &Conn{
		id:        id,
		gateway:   g,
		ws:        ws,
		send:      make(chan OutboundMessage, sendBufferSize),
		createdAt: time.Now(),
		subs:      make(map[string]map[string]struct{}),
	}
}

// ID returns the opaque connection id, also used as the subscriber id.
func (c *Conn) ID() string { return c.id }

// Deliver implements stream.Subscriber: it serializes the snapshot into a
// candle frame and queues it for this connection's write pump.
func (c *Conn) Deliver(symbol string, tf timeframe.Timeframe, snap candle.Snapshot) error {
	msg := newOutbound(TypeCandle, newCandleData(snap))
	select {
	case c.send <- msg:
		return nil
	default:
		c.droppedFrames.Add(1)
		return errors.Wrapf(ErrSendBufferFull, "%s %s/%s", c.id, symbol, tf.Code)
	}
}

// enqueue queues a control frame (ack, error, pong) without ever blocking the
// caller.
func (c *Conn) enqueue(msg OutboundMessage) {
	select {
	case c.send <- msg:
	default:
		c.droppedFrames.Add(1)
	}
}

func (c *Conn) sendError(message string) {
	c.enqueue(newOutbound(TypeError, ErrorData{Message: message}))
}

// readPump handles incoming frames and acts as the connection watchdog.
func (c *Conn) readPump() {
	defer func() {
		c.gateway.drop(c)
		c.ws.Close()
	}()

	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.gateway.logger.Warn("websocket read failed",
					logger.Field{Key: "connection_id", Value: c.id},
					logger.Field{Key: "reason", Value: err.Error()},
				)
			}
			return
		}
		c.received.Add(1)
		c.gateway.handleMessage(c, message)
	}
}

// writePump sends queued frames to the client and keeps the connection alive
// with pings. One writer per connection; gorilla allows a single concurrent
// writer.
func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteJSON(msg); err != nil {
				return
			}
			c.sent.Add(1)

		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// trackSubscribe mirrors a successful subscribe into the connection's own
// bookkeeping, for introspection only. The registry remains authoritative.
func (c *Conn) trackSubscribe(symbols []string, tfs []timeframe.Timeframe) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, symbol := range symbols {
		set, ok := c.subs[symbol]
		if !ok {
			set = make(map[string]struct{})
			c.subs[symbol] = set
		}
		for _, tf := range tfs {
			set[tf.Code] = struct{}{}
		}
	}
}

func (c *Conn) trackUnsubscribe(symbols []string, tfs []timeframe.Timeframe) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, symbol := range symbols {
		set, ok := c.subs[symbol]
		if !ok {
			continue
		}
		for _, tf := range tfs {
			delete(set, tf.Code)
		}
		if len(set) == 0 {
			delete(c.subs, symbol)
		}
	}
}

// Stats returns the connection's monitoring counters.
func (c *Conn) Stats() ConnStats {
	c.mu.Lock()
	subs := make(map[string][]string, len(c.subs))
	for symbol, set := range c.subs {
		codes := make([]string, 0, len(set))
		for code := range set {
			codes = append(codes, code)
		}
		subs[symbol] = codes
	}
	c.mu.Unlock()

	return ConnStats{
		ID:               c.id,
		ConnectedAt:      c.createdAt,
		UptimeSeconds:    int64(time.Since(c.createdAt).Seconds()),
		Subscriptions:    subs,
		MessagesSent:     c.sent.Load(),
		MessagesReceived: c.received.Load(),
		DroppedFrames:    c.droppedFrames.Load(),
	}
}

// close shuts the outbound queue exactly once. Must only be called after the
// registry no longer delivers to this connection.
func (c *Conn) close() {
	c.closeOnce.Do(func() {
		close(c.send)
	})
}
