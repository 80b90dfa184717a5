package realtime

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/planline/planline/internal/config"
	apperrors "github.com/planline/planline/internal/errors"
	"github.com/planline/planline/internal/logger"
	"github.com/planline/planline/internal/metrics"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// WsConnection wraps a single client websocket. It owns the write mutex, the
// keepalive ping loop and the inbound rate limiter; scope state lives in the
// registry, not here.
type WsConnection struct {
	ws           *websocket.Conn
	hub          *Hub
	connID       string
	realClientIP string
	idleTimeout  time.Duration
	writeTimeout time.Duration
	maxLifetime  time.Duration
	startTime    time.Time

	pingTicker *time.Ticker

	writeMu      sync.Mutex
	closeMu      sync.Once
	limiter      *rate.Limiter
	isClosed     atomic.Bool
	lastActivity atomic.Int64 // unix nanos

	// closeReason records why the connection went away. The read loop, the
	// monitor goroutine and Send can all race to close; the first recorded
	// reason wins.
	reasonMu    sync.Mutex
	closeReason string

	violationCount      int
	violationCloseLimit int
	backpressureChan    chan struct{}
}

// errConnClosed reports a send on a connection that already shut down.
var errConnClosed = apperrors.DeliveryError("send", nil)

var _ Transport = (*WsConnection)(nil)

// NewWsConnection initializes a websocket connection and registers it with
// the hub. The returned connection is already receiving pings; the caller
// starts the read loop.
func NewWsConnection(ctx context.Context, ws *websocket.Conn, hub *Hub, cfg config.ServerConfig, realClientIP string) *WsConnection {
	limiter := rate.NewLimiter(
		rate.Limit(cfg.Throttling.MaxMessagesPerSecond),
		cfg.Throttling.BurstSize,
	)

	conn := &WsConnection{
		ws:                  ws,
		hub:                 hub,
		realClientIP:        realClientIP,
		idleTimeout:         cfg.IdleTimeout,
		writeTimeout:        cfg.WriteTimeout,
		maxLifetime:         24 * time.Hour,
		startTime:           time.Now(),
		pingTicker:          time.NewTicker(15 * time.Second),
		limiter:             limiter,
		violationCloseLimit: cfg.Throttling.ViolationCloseLimit,
		backpressureChan:    make(chan struct{}, 100),
	}
	conn.lastActivity.Store(time.Now().UnixNano())
	conn.connID = hub.Attach(conn)

	ws.EnableWriteCompression(true)
	_ = ws.SetCompressionLevel(2) // nolint:errcheck // compression level is non-critical

	_ = ws.SetReadDeadline(time.Now().Add(60 * time.Second)) // nolint:errcheck // deadline is non-critical
	ws.SetReadLimit(int64(cfg.Throttling.MaxMessageBytes))

	// Ping handler must echo back the same data
	ws.SetPingHandler(func(appData string) error {
		conn.lastActivity.Store(time.Now().UnixNano())
		conn.writeMu.Lock()
		defer conn.writeMu.Unlock()
		_ = conn.ws.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(5*time.Second))
		return nil
	})

	go conn.monitorConnection(ctx)

	return conn
}

// ID returns the registry connection id.
func (c *WsConnection) ID() string {
	return c.connID
}

// RemoteAddr returns the client's real remote address (extracted from proxy headers)
func (c *WsConnection) RemoteAddr() string {
	return c.realClientIP
}

// Send writes one serialized envelope to the client. It never blocks the
// caller for long: writes past the backpressure buffer close the connection
// instead of queueing without bound.
func (c *WsConnection) Send(msg []byte) error {
	if c.isClosed.Load() {
		return errConnClosed
	}

	select {
	case c.backpressureChan <- struct{}{}:
		defer func() { <-c.backpressureChan }()
	default:
		c.setCloseReason("backpressure overflow")
		c.close()
		return errConnClosed
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.isClosed.Load() {
		return errConnClosed
	}

	_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout)) // nolint:errcheck // deadline is non-critical
	if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
		logger.Debug("Failed to write message",
			zap.Error(err),
			zap.String("client", c.RemoteAddr()))
		c.setCloseReason("write error")
		c.close()
		return err
	}

	metrics.IncrementMessagesSent()
	return nil
}

// Close satisfies Transport: record the reason and tear the socket down.
func (c *WsConnection) Close(reason string) {
	c.setCloseReason(reason)
	c.close()
}

// setCloseReason records the cause of the shutdown. Only the first caller's
// reason is kept.
func (c *WsConnection) setCloseReason(reason string) {
	c.reasonMu.Lock()
	if c.closeReason == "" {
		c.closeReason = reason
	}
	c.reasonMu.Unlock()
}

func (c *WsConnection) getCloseReason() string {
	c.reasonMu.Lock()
	defer c.reasonMu.Unlock()
	return c.closeReason
}

// HandleMessages runs the read loop until the client disconnects, the
// context is canceled or a limit is breached. It always finishes with the
// hub's disconnect sequence so the lock release and presence republish run
// exactly once.
func (c *WsConnection) HandleMessages(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Recovered from panic in HandleMessages",
				zap.Any("panic", r),
				zap.String("client", c.RemoteAddr()),
			)
		}
		c.setCloseReason("message handler terminated")
		c.close()

		// Teardown touches the database, so it gets its own deadline
		// instead of the (possibly canceled) connection context.
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		c.hub.HandleDisconnect(cleanupCtx, c.connID)
	}()

	logger.Debug("Starting message handler",
		zap.String("client_ip", c.realClientIP),
		zap.String("conn_id", c.connID))

	lastPong := time.Now()
	c.ws.SetPongHandler(func(string) error {
		c.lastActivity.Store(time.Now().UnixNano())
		lastPong = time.Now()
		return nil
	})

	connCtx, cancel := context.WithTimeout(ctx, c.maxLifetime)
	defer cancel()

	for {
		select {
		case <-connCtx.Done():
			c.setCloseReason("connection context canceled")
			return
		default:
		}

		_ = c.ws.SetReadDeadline(time.Now().Add(60 * time.Second)) // nolint:errcheck // deadline is non-critical
		if time.Since(lastPong) > 90*time.Second {
			logger.Debug("No pong response in 90s, closing connection",
				zap.String("client", c.RemoteAddr()))
			c.setCloseReason("no pong response")
			return
		}

		_, rawMsg, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.setCloseReason("client closed connection")
				logger.Debug("Client closed connection normally",
					zap.String("client", c.RemoteAddr()))
			} else {
				c.setCloseReason("read error")
				logger.Debug("WS read error, disconnecting client",
					zap.Error(err),
					zap.String("client", c.RemoteAddr()))
			}
			return
		}

		metrics.IncrementMessagesReceived()
		metrics.MessageSizeBytes.Observe(float64(len(rawMsg)))

		c.lastActivity.Store(time.Now().UnixNano())

		if !c.limiter.Allow() {
			c.violationCount++
			logger.Debug("Client rate limit violation",
				zap.String("client_ip", c.realClientIP),
				zap.Int("violation_count", c.violationCount))
			if c.violationCount >= c.violationCloseLimit {
				c.setCloseReason("rate limit exceeded")
				return
			}
			continue
		}
		c.violationCount = 0

		msg, err := ParseControl(rawMsg)
		if err != nil {
			metrics.IncrementProtocolErrors()
			logger.Debug("Dropping malformed frame",
				zap.Error(err),
				zap.String("client", c.RemoteAddr()))
			continue
		}

		metrics.ControlEventsReceived.WithLabelValues(msg.Event).Inc()

		start := time.Now()
		c.hub.HandleControl(connCtx, c.connID, msg)
		metrics.ControlProcessingDuration.WithLabelValues(msg.Event).Observe(time.Since(start).Seconds())
	}
}

// close shuts the websocket down once, with a polite close frame when the
// peer is still reachable.
func (c *WsConnection) close() {
	c.closeMu.Do(func() {
		c.isClosed.Store(true)

		reason := c.getCloseReason()
		if reason != "" {
			logger.Debug("WebSocket connection closed",
				zap.String("reason", reason),
				zap.String("client_ip", c.RemoteAddr()),
				zap.Duration("connection_duration", time.Since(c.startTime)))
		}

		if c.pingTicker != nil {
			c.pingTicker.Stop()
		}

		closeCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		closeChan := make(chan struct{})
		go func() {
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
			c.writeMu.Lock()
			_ = c.ws.SetWriteDeadline(time.Now().Add(time.Second))
			_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
			_ = c.ws.SetWriteDeadline(time.Time{})
			c.writeMu.Unlock()
			close(closeChan)
		}()

		select {
		case <-closeChan:
		case <-closeCtx.Done():
			logger.Debug("Close message timeout",
				zap.String("client", c.RemoteAddr()))
		}

		_ = c.ws.Close()
	})
}

// monitorConnection handles keepalive pings and timeout enforcement.
func (c *WsConnection) monitorConnection(ctx context.Context) {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.setCloseReason("server shutting down")
			c.close()
			return
		case <-c.pingTicker.C:
			c.writeMu.Lock()
			if !c.isClosed.Load() {
				_ = c.ws.SetWriteDeadline(time.Now().Add(5 * time.Second))
				err := c.ws.WriteControl(websocket.PingMessage, []byte("keepalive"), time.Now().Add(5*time.Second))
				_ = c.ws.SetWriteDeadline(time.Time{})
				if err != nil {
					c.writeMu.Unlock()
					logger.Debug("Failed to send ping, closing connection",
						zap.Error(err),
						zap.String("client", c.RemoteAddr()))
					c.setCloseReason("ping failed")
					c.close()
					return
				}
			}
			c.writeMu.Unlock()
		case <-ticker.C:
			now := time.Now()

			if now.Sub(time.Unix(0, c.lastActivity.Load())) > c.idleTimeout {
				c.setCloseReason("idle timeout")
				c.close()
				return
			}

			if now.Sub(c.startTime) > c.maxLifetime {
				c.setCloseReason("max lifetime exceeded")
				c.close()
				return
			}
		}
	}
}
