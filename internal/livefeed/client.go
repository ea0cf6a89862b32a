// Package livefeed maintains the websocket connection to the attack feed.
package livefeed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/nshruti113/ddos-defense-dashboard/internal/metrics"
	"github.com/nshruti113/ddos-defense-dashboard/internal/models"
)

const closeWait = 5 * time.Second

// Sink receives accepted events in arrival order
type Sink func(models.AlertEvent)

// Client holds at most one feed connection. It never reconnects on its own.
type Client struct {
	url         string
	dialer      *websocket.Dialer
	dialTimeout time.Duration
	sink        Sink
	now         func() time.Time
	logger      *logrus.Logger
	metrics     *metrics.Metrics

	mu         sync.Mutex
	conn       *websocket.Conn
	done       chan struct{}
	dialing    bool
	dialCancel context.CancelFunc
	// generation is bumped by Close so stale dials and read loops know to stop
	generation uint64
}

type Option func(*Client)

func WithDialTimeout(d time.Duration) Option {
	return func(c *Client) { c.dialTimeout = d }
}

func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

func NewClient(url string, sink Sink, logger *logrus.Logger, m *metrics.Metrics, opts ...Option) *Client {
	if m == nil {
		m = metrics.NewNop()
	}
	c := &Client{
		url:         url,
		dialer:      &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		dialTimeout: 5 * time.Second,
		sink:        sink,
		now:         time.Now,
		logger:      logger,
		metrics:     m,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Open dials the feed. It does nothing if a connection is open or a dial is
// already in flight. A Close during the dial discards the new connection.
func (c *Client) Open(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	if c.conn != nil || c.dialing {
		c.mu.Unlock()
		return nil
	}
	gen := c.generation
	dialCtx, cancel := context.WithTimeout(ctx, c.dialTimeout)
	c.dialing = true
	c.dialCancel = cancel
	c.mu.Unlock()

	conn, _, err := c.dialer.DialContext(dialCtx, c.url, nil)
	cancel()

	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		c.logger.Debug("Feed dial discarded after close")
		return nil
	}
	c.dialing = false
	c.dialCancel = nil

	if err != nil {
		c.mu.Unlock()
		c.metrics.FeedConnections.WithLabelValues("failed").Inc()
		return fmt.Errorf("failed to connect to feed %s: %w", c.url, err)
	}

	done := make(chan struct{})
	c.conn = conn
	c.done = done
	c.mu.Unlock()

	c.metrics.FeedConnections.WithLabelValues("opened").Inc()
	c.logger.Infof("Connected to attack feed %s", c.url)

	go c.readLoop(conn, gen, done)
	return nil
}

func (c *Client) readLoop(conn *websocket.Conn, gen uint64, done chan struct{}) {
	defer close(done)
	defer conn.Close()

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if c.current(gen) {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					c.logger.Info("Attack feed closed by remote")
				} else {
					c.logger.Warnf("Attack feed read error: %v", err)
				}
			}
			break
		}

		if msgType != websocket.TextMessage {
			c.metrics.FeedMessages.WithLabelValues("malformed").Inc()
			continue
		}

		msg, err := ParseMessage(data)
		if err != nil {
			c.metrics.FeedMessages.WithLabelValues("malformed").Inc()
			c.logger.Debugf("Dropping feed message: %v", err)
			continue
		}

		if !c.current(gen) {
			break
		}
		c.metrics.FeedMessages.WithLabelValues("accepted").Inc()
		c.sink(NewEvent(msg, c.now()))
	}

	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
		c.done = nil
	}
	c.mu.Unlock()

	c.metrics.FeedConnections.WithLabelValues("closed").Inc()
}

func (c *Client) current(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation == gen
}

// Close shuts the connection and cancels any in-flight dial. When it returns
// no further event reaches the sink.
func (c *Client) Close() error {
	c.mu.Lock()
	c.generation++
	if c.dialCancel != nil {
		c.dialCancel()
		c.dialCancel = nil
	}
	c.dialing = false
	conn, done := c.conn, c.done
	c.conn, c.done = nil, nil
	c.mu.Unlock()

	if conn == nil {
		return nil
	}

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second)); err != nil &&
		!errors.Is(err, websocket.ErrCloseSent) {
		c.logger.Debugf("Feed close frame not sent: %v", err)
	}
	conn.Close()

	select {
	case <-done:
	case <-time.After(closeWait):
		c.logger.Warn("Timed out waiting for feed reader to exit")
	}
	return nil
}

// IsOpen reports whether a connection is currently held
func (c *Client) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}
