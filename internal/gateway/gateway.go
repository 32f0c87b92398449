package gateway

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/tushaar82/VELOX-N8N-sub000/internal/stream"
	"github.com/tushaar82/VELOX-N8N-sub000/pkg/logger"
	"github.com/tushaar82/VELOX-N8N-sub000/pkg/timeframe"
)

// ErrCapacityExceeded is logged when a connect attempt arrives beyond
// maxConnections. The socket is closed immediately, no payload is sent.
var ErrCapacityExceeded = errors.New("connection capacity exceeded")

// Gateway owns every client connection: lifecycle, the subscribe/unsubscribe
// protocol, and the bridge between registry deliveries and socket writes.
// It is constructed once at process start next to the stream registry.
type Gateway struct {
	logger         logger.Interface
	registry       *stream.Registry
	maxConnections int
	upgrader       websocket.Upgrader

	mu    sync.Mutex
	conns map[string]*Conn
}

// NewGateway creates a gateway bound to the given registry.
func NewGateway(registry *stream.Registry, log logger.Interface, maxConnections int) *Gateway {
	return &Gateway{
		logger:         log,
		registry:       registry,
		maxConnections: maxConnections,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		conns: make(map[string]*Conn),
	}
}

// ServeWS upgrades an HTTP request into a managed WebSocket connection.
func (g *Gateway) ServeWS(w http.ResponseWriter, r *http.Request) {
	ws, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Warn("websocket upgrade failed",
			logger.Field{Key: "remote", Value: r.RemoteAddr},
			logger.Field{Key: "reason", Value: err.Error()},
		)
		return
	}

	conn, err := g.register(ws)
	if err != nil {
		// Over capacity: distinct close reason, no payload.
		deadline := time.Now().Add(writeWait)
		ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "capacity exceeded"), deadline)
		ws.Close()
		g.logger.Warn("connection refused",
			logger.Field{Key: "remote", Value: r.RemoteAddr},
			logger.Field{Key: "reason", Value: err.Error()},
		)
		return
	}

	go conn.writePump()
	go conn.readPump()

	conn.enqueue(newOutbound(TypeAck, AckData{
		ConnectionID: conn.id,
		Message:      "connected",
	}))

	g.logger.Info("client connected",
		logger.Field{Key: "connection_id", Value: conn.id},
	)
}

func (g *Gateway) register(ws *websocket.Conn) (*Conn, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if len(g.conns) >= g.maxConnections {
		return nil, errors.Wrapf(ErrCapacityExceeded, "limit %d", g.maxConnections)
	}

	conn := newConn(uuid.NewString(), g, ws)
	g.conns[conn.id] = conn
	return conn, nil
}

// drop removes a connection after its read pump exits: all of its registry
// subscriptions go first, then the outbound queue is closed.
func (g *Gateway) drop(c *Conn) {
	g.mu.Lock()
	_, known := g.conns[c.id]
	delete(g.conns, c.id)
	g.mu.Unlock()

	if !known {
		return
	}

	g.registry.UnsubscribeAll(c.id)
	c.close()

	g.logger.Info("client disconnected",
		logger.Field{Key: "connection_id", Value: c.id},
	)
}

// handleMessage dispatches one inbound frame. Malformed or unknown frames get
// an "error" reply; the connection stays open.
func (g *Gateway) handleMessage(c *Conn, raw []byte) {
	var msg InboundMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.sendError("malformed JSON")
		return
	}

	switch msg.Type {
	case TypeSubscription:
		g.handleSubscription(c, msg.Data)
	case TypePing:
		c.enqueue(newOutbound(TypePong, nil))
	default:
		c.sendError("unknown message type: " + msg.Type)
	}
}

func (g *Gateway) handleSubscription(c *Conn, data json.RawMessage) {
	var req SubscriptionRequest
	if err := json.Unmarshal(data, &req); err != nil {
		c.sendError("malformed subscription payload")
		return
	}
	if len(req.Symbols) == 0 {
		c.sendError("no symbols given")
		return
	}
	if len(req.Timeframes) == 0 {
		c.sendError("no timeframes given")
		return
	}

	// Normalize up front so one bad timeframe rejects the whole request
	// before any symbol is touched.
	tfs := make([]timeframe.Timeframe, 0, len(req.Timeframes))
	for _, input := range req.Timeframes {
		tf, err := timeframe.Normalize(input)
		if err != nil {
			c.sendError("invalid timeframe: " + input)
			return
		}
		tfs = append(tfs, tf)
	}
	codes := make([]string, len(tfs))
	for i, tf := range tfs {
		codes[i] = tf.Code
	}

	switch req.Action {
	case ActionSubscribe:
		for _, symbol := range req.Symbols {
			if err := g.registry.Subscribe(symbol, codes, c.id, c); err != nil {
				g.logger.Error(err, logger.Field{Key: "connection_id", Value: c.id})
				c.sendError("subscribe failed")
				return
			}
		}
		c.trackSubscribe(req.Symbols, tfs)
	case ActionUnsubscribe:
		for _, symbol := range req.Symbols {
			if err := g.registry.Unsubscribe(symbol, codes, c.id); err != nil {
				g.logger.Error(err, logger.Field{Key: "connection_id", Value: c.id})
				c.sendError("unsubscribe failed")
				return
			}
		}
		c.trackUnsubscribe(req.Symbols, tfs)
	default:
		c.sendError("unknown action: " + req.Action)
		return
	}

	c.enqueue(newOutbound(TypeAck, AckData{
		Action:     req.Action,
		Symbols:    req.Symbols,
		Timeframes: codes,
	}))
}

// ConnectionCount returns the number of live connections.
func (g *Gateway) ConnectionCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.conns)
}

// Stats returns per-connection monitoring data.
func (g *Gateway) Stats() []ConnStats {
	g.mu.Lock()
	conns := make([]*Conn, 0, len(g.conns))
	for _, c := range g.conns {
		conns = append(conns, c)
	}
	g.mu.Unlock()

	stats := make([]ConnStats, 0, len(conns))
	for _, c := range conns {
		stats = append(stats, c.Stats())
	}
	return stats
}

// Shutdown closes every live connection. Their read pumps observe the close
// and run the usual teardown path.
func (g *Gateway) Shutdown() {
	g.mu.Lock()
	conns := make([]*Conn, 0, len(g.conns))
	for _, c := range g.conns {
		conns = append(conns, c)
	}
	g.mu.Unlock()

	for _, c := range conns {
		deadline := time.Now().Add(writeWait)
		c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"), deadline)
		c.ws.Close()
	}
}
