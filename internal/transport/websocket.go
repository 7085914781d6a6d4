package transport

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/zhouzirui/chatbox/internal/protocol"
)

// Options configures a websocket Client.
type Options struct {
	URL               string
	Header            http.Header
	HandshakeTimeout  time.Duration // dial handshake limit
	ReadTimeout       time.Duration // extended on every frame and pong
	WriteTimeout      time.Duration
	PingInterval      time.Duration
	ReconnectDelay    time.Duration // base delay, multiplied by the attempt number
	MaxReconnectDelay time.Duration
	MaxRetries        int // consecutive failed dials before giving up, 0 means never
	OutboxSize        int // emissions queued while disconnected
}

// DefaultOptions returns options suitable for an interactive client.
func DefaultOptions(url string) Options {
	return Options{
		URL:               url,
		HandshakeTimeout:  10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
		PingInterval:      25 * time.Second,
		ReconnectDelay:    time.Second,
		MaxReconnectDelay: 5 * time.Second,
		OutboxSize:        64,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions(o.URL)
	if o.HandshakeTimeout <= 0 {
		o.HandshakeTimeout = def.HandshakeTimeout
	}
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = def.ReadTimeout
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = def.WriteTimeout
	}
	if o.PingInterval <= 0 {
		o.PingInterval = def.PingInterval
	}
	if o.ReconnectDelay <= 0 {
		o.ReconnectDelay = def.ReconnectDelay
	}
	if o.MaxReconnectDelay < o.ReconnectDelay {
		o.MaxReconnectDelay = o.ReconnectDelay
	}
	if o.OutboxSize <= 0 {
		o.OutboxSize = def.OutboxSize
	}
	return o
}

// Client keeps one websocket to the endpoint alive, reconnecting with a
// linear backoff. Each failed dial is reported as a protocol.ConnectError.
type Client struct {
	opts   Options
	log    zerolog.Logger
	dialer *websocket.Dialer

	events chan protocol.Inbound
	outbox chan []byte

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

var _ Transport = (*Client)(nil)

// Dial starts connecting in the background and returns immediately. Failures
// show up on Events; ctx bounds the whole lifetime of the client.
func Dial(ctx context.Context, opts Options, logger zerolog.Logger) *Client {
	opts = opts.withDefaults()
	ctx, cancel := context.WithCancel(ctx)

	c := &Client{
		opts: opts,
		log:  logger.With().Str("component", "transport").Str("url", opts.URL).Logger(),
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: opts.HandshakeTimeout,
		},
		events: make(chan protocol.Inbound, 16),
		outbox: make(chan []byte, opts.OutboxSize),
		ctx:    ctx,
		cancel: cancel,
	}

	c.wg.Add(1)
	go c.run()
	return c
}

func (c *Client) Events() <-chan protocol.Inbound {
	return c.events
}

// Emit queues out for sending. It never waits for the endpoint; when the
// queue is full the emission is dropped.
func (c *Client) Emit(out protocol.Outbound) error {
	if c.ctx.Err() != nil {
		return ErrClosed
	}

	frame, err := protocol.EncodeOutbound(out)
	if err != nil {
		return err
	}

	select {
	case c.outbox <- frame:
	default:
		c.log.Warn().Int("queued", len(c.outbox)).Msg("outbox full, dropping emission")
	}
	return nil
}

// Close stops reconnecting, closes the socket and waits for every goroutine.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.cancel()
		c.wg.Wait()
		close(c.events)
	})
	return nil
}

func (c *Client) run() {
	defer c.wg.Done()

	attempt := 0
	for {
		conn, err := c.connect()
		if err != nil {
			if c.ctx.Err() != nil {
				return
			}
			attempt++
			c.log.Warn().Err(err).Int("attempt", attempt).Msg("dial failed")
			if !c.deliver(protocol.ConnectError{Err: err}) {
				return
			}
			if c.opts.MaxRetries > 0 && attempt >= c.opts.MaxRetries {
				c.log.Error().Int("attempts", attempt).Msg("giving up reconnecting")
				return
			}
			if !c.sleep(c.backoff(attempt)) {
				return
			}
			continue
		}

		attempt = 0
		c.log.Info().Msg("connected")
		c.serve(conn)
		if c.ctx.Err() != nil {
			return
		}
		c.log.Info().Msg("connection lost, reconnecting")
		if !c.sleep(c.opts.ReconnectDelay) {
			return
		}
	}
}

func (c *Client) connect() (*websocket.Conn, error) {
	conn, _, err := c.dialer.DialContext(c.ctx, c.opts.URL, c.opts.Header)
	if err != nil {
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}
	return conn, nil
}

// serve pumps frames until the connection drops or the client is closed.
func (c *Client) serve(conn *websocket.Conn) {
	connCtx, cancel := context.WithCancel(c.ctx)

	_ = conn.SetReadDeadline(time.Now().Add(c.opts.ReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(c.opts.ReadTimeout))
	})

	var writer sync.WaitGroup
	writer.Add(1)
	go func() {
		defer writer.Done()
		c.writeLoop(connCtx, conn)
	}()

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			if connCtx.Err() == nil && websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Warn().Err(err).Msg("read failed")
			}
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(c.opts.ReadTimeout))

		in, err := protocol.DecodeInbound(frame)
		if err != nil {
			c.log.Warn().Err(err).Msg("dropping malformed frame")
			continue
		}
		if !c.deliver(in) {
			break
		}
	}

	cancel()
	writer.Wait()
}

// writeLoop is the only writer of data frames on conn. It owns closing it.
func (c *Client) writeLoop(ctx context.Context, conn *websocket.Conn) {
	defer conn.Close()

	ticker := time.NewTicker(c.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			deadline := time.Now().Add(c.opts.WriteTimeout)
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
			return
		case frame := <-c.outbox:
			_ = conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.log.Warn().Err(err).Msg("write failed")
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.log.Warn().Err(err).Msg("ping failed")
				return
			}
		}
	}
}

func (c *Client) deliver(in protocol.Inbound) bool {
	select {
	case c.events <- in:
		return true
	case <-c.ctx.Done():
		return false
	}
}

func (c *Client) sleep(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-c.ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (c *Client) backoff(attempt int) time.Duration {
	delay := time.Duration(attempt) * c.opts.ReconnectDelay
	if delay > c.opts.MaxReconnectDelay {
		return c.opts.MaxReconnectDelay
	}
	return delay
}
